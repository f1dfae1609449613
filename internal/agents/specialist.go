package agents

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

// Specialist é o agente consultivo: aprofunda o diagnóstico a partir do
// perfil coletado pelo SDR e conduz o lead até o interesse em reunião.
type Specialist struct {
	logger *zap.Logger
}

// NewSpecialist cria o agente consultivo.
func NewSpecialist(logger *zap.Logger) *Specialist {
	return &Specialist{logger: logger}
}

func (a *Specialist) Name() string { return domain.AgentSpecialist }

// Process responde no modo consultivo e acumula o diagnóstico no saco
// consultativeEngine. touchpoints conta as interações desta etapa; a lista
// de sinais é SUBSTITUÍDA a cada patch (arrays nunca são merged).
func (a *Specialist) Process(ctx context.Context, message string, agentCtx *domain.AgentContext) (*domain.AgentResult, error) {
	engine := agentCtx.State.ConsultativeEngine

	// Após round-trip JSON o número vira float64; em memória ainda é int.
	touchpoints := 1
	switch v := engine["touchpoints"].(type) {
	case float64:
		touchpoints = int(v) + 1
	case int:
		touchpoints = v + 1
	}

	signals := detectBuyingSignals(message)

	// Lead pedindo reunião mas o roteador não trocou (confiança baixa):
	// o specialist mesmo passa o bastão, sem reprocessar a mensagem — o
	// scheduler se apresenta propondo horários.
	if agentCtx.Intent != nil && wantsMeeting(agentCtx.Intent.Intent) {
		a.logger.Info("specialist forwarding to scheduler",
			zap.String("phone", agentCtx.State.PhoneNumber),
			zap.String("intent", agentCtx.Intent.Intent),
		)
		return &domain.AgentResult{
			Success: true,
			Message: "Perfeito, vamos marcar! 🙌",
			Handoff: &domain.HandoffRequest{
				NextAgent: domain.AgentScheduler,
				Mode:      domain.HandoffSilent,
				Reason:    "meeting_interest",
				Data: map[string]any{
					"qualificationScore": agentCtx.State.QualificationScore + 20,
					"consultativeEngine": map[string]any{"meetingRequest": firstWords(message, 12)},
				},
			},
		}, nil
	}

	reply := "Entendi. Com base no que você me contou, tenho algumas ideias práticas pra atacar esse desafio. Quer que eu detalhe como funcionaria no caso de vocês?"
	score := agentCtx.State.QualificationScore

	if agentCtx.Intent != nil && agentCtx.Intent.Intent == "pricing_request" {
		reply = "Ótima pergunta! O investimento depende do tamanho da operação — normalmente nossos clientes recuperam o valor no primeiro mês. Posso te mostrar os números numa conversa rápida de 20 minutos?"
		score += 15
	} else if len(signals) > 0 {
		reply = "Isso que você citou é exatamente o tipo de situação em que mais geramos resultado. Faz sentido marcarmos um papo rápido pra eu te mostrar casos parecidos?"
		score += 10
	}

	update := map[string]any{
		"consultativeEngine": map[string]any{
			"touchpoints": touchpoints,
			"lastTopic":   firstWords(message, 8),
			"signals":     signals,
		},
	}
	if score != agentCtx.State.QualificationScore {
		update["qualificationScore"] = score
	}

	return &domain.AgentResult{
		Success:     true,
		Message:     reply,
		UpdateState: update,
	}, nil
}

// OnHandoffReceived se apresenta ao assumir a conversa vinda do SDR.
func (a *Specialist) OnHandoffReceived(ctx context.Context, phone string, state *domain.LeadState) (*domain.HandoffHookResult, error) {
	a.logger.Info("specialist received handoff", zap.String("phone", phone))

	return &domain.HandoffHookResult{
		Message: "Oi! Aqui é o consultor especialista da VendeMais. Já vi o resumo da sua conversa — vou te ajudar a destravar isso. 💪",
		UpdateState: map[string]any{
			"consultativeEngine": map[string]any{
				"receivedProfile": true,
			},
		},
	}, nil
}

func wantsMeeting(intent string) bool {
	return intent == "meeting_request" || intent == "scheduling_request"
}

// detectBuyingSignals procura sinais de compra no texto do lead.
func detectBuyingSignals(message string) []any {
	lower := strings.ToLower(message)
	signals := []any{}
	for keyword, signal := range map[string]string{
		"preço":     "asked_pricing",
		"quanto":    "asked_pricing",
		"prazo":     "asked_timeline",
		"contrato":  "asked_terms",
		"resultado": "asked_outcomes",
		"urgente":   "urgency",
	} {
		if strings.Contains(lower, keyword) {
			signals = append(signals, signal)
		}
	}
	return signals
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}
