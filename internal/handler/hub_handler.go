package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/hub"
)

// ============================================================
// 1. Webhook de WhatsApp
// ============================================================

func webhookHandler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/webhook/whatsapp")
		defer span.End()

		var msg domain.InboundMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if msg.Phone == "" {
			writeError(w, http.StatusBadRequest, "phone é obrigatório")
			return
		}
		if msg.Text == "" {
			writeError(w, http.StatusBadRequest, "text é obrigatório")
			return
		}

		result := h.ProcessMessage(ctx, &msg)

		// lock_timeout é a única falha que vale a pena o gateway reenviar
		// mais tarde — sinaliza com 429. O resto sai 200 com o corpo
		// dizendo o que houve.
		status := http.StatusOK
		if !result.Success && result.Error == domain.ErrCodeLockTimeout {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, result)
	}
}

// ============================================================
// 2. Conversas (admin)
// ============================================================

func conversationGetHandler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/conversations/{phone}")
		defer span.End()

		phone := chi.URLParam(r, "phone")
		state, err := h.GetConversation(ctx, phone)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, state)
	}
}

func conversationResetHandler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/conversations/{phone}/reset")
		defer span.End()

		phone := chi.URLParam(r, "phone")
		result, err := h.ResetConversation(ctx, phone)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}

// ============================================================
// 3. Estatísticas e locks
// ============================================================

func statsHandler(h *hub.Hub, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/stats")
		defer span.End()

		stats, err := h.GetStats(ctx)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func routingStatsHandler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.GetRoutingStats())
	}
}

func locksHandler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, h.GetLockStats())
	}
}

// ============================================================
// 4. Operational endpoints
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
