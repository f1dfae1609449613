package agents

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

// Atendimento é a fila humana: o lead pediu (ou o roteador detectou que
// precisa de) um atendente de verdade. O agente só segura a conversa e
// registra o contexto para o humano — não tenta vender nada.
type Atendimento struct {
	logger *zap.Logger
}

// NewAtendimento cria o agente de atendimento humano.
func NewAtendimento(logger *zap.Logger) *Atendimento {
	return &Atendimento{logger: logger}
}

func (a *Atendimento) Name() string { return domain.AgentAtendimento }

func (a *Atendimento) Process(ctx context.Context, message string, agentCtx *domain.AgentContext) (*domain.AgentResult, error) {
	return &domain.AgentResult{
		Success: true,
		Message: "Recebido! 🙋 Um dos nossos consultores já foi avisado e responde você em instantes, dentro do horário comercial.",
		UpdateState: map[string]any{
			"metadata": map[string]any{
				"humanQueue": map[string]any{
					"lastMessageAt": time.Now().UTC().Format(time.RFC3339),
					"pending":       true,
				},
			},
		},
	}, nil
}

// OnHandoffReceived avisa o lead que um humano assume a partir daqui.
func (a *Atendimento) OnHandoffReceived(ctx context.Context, phone string, state *domain.LeadState) (*domain.HandoffHookResult, error) {
	a.logger.Info("conversation moved to human queue", zap.String("phone", phone))
	return &domain.HandoffHookResult{
		Message: "Claro! A partir de agora um consultor humano continua com você. 😊",
	}, nil
}
