package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/hub"
	"github.com/vendemais/vendas-hub-go/internal/infra/observability"
	"github.com/vendemais/vendas-hub-go/internal/service"
)

var tracer = otel.Tracer("handler")

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(h *hub.Hub, authSvc *service.AuthService, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler())
	r.Get("/readyz", readyzHandler())
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {

		// =============================================
		// 1. 📨 Webhook de WhatsApp
		// POST /v1/webhook/whatsapp
		// =============================================
		r.Post("/webhook/whatsapp", webhookHandler(h, logger))

		// =============================================
		// 2. 📊 Roteamento (scrape aberto, como /metrics)
		// GET /v1/stats/routing
		// =============================================
		r.Get("/stats/routing", routingStatsHandler(h))

		// =============================================
		// 3. 🔑 Autenticação administrativa
		// POST /v1/auth/token
		// =============================================
		r.Post("/auth/token", authTokenHandler(authSvc, logger))

		// =============================================
		// 4. 💬 Administração (rotas protegidas)
		// GET  /v1/conversations/{phone}
		// POST /v1/conversations/{phone}/reset
		// GET  /v1/stats | GET /v1/locks
		// =============================================
		r.Group(func(r chi.Router) {
			r.Use(JWTAuthMiddleware(authSvc, logger))
			r.Get("/conversations/{phone}", conversationGetHandler(h, logger))
			r.Post("/conversations/{phone}/reset", conversationResetHandler(h, logger))
			r.Get("/stats", statsHandler(h, logger))
			r.Get("/locks", locksHandler(h))
		})
	})

	return r
}
