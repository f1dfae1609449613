package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/service"
)

// ============================================================
// 5. Autenticação administrativa
// ============================================================

type tokenRequest struct {
	Password string `json:"password"`
}

func authTokenHandler(authSvc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/token")
		defer span.End()

		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		resp, err := authSvc.IssueToken(ctx, req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
