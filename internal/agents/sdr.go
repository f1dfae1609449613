// Package agents implementa os agentes conversacionais registrados no hub.
//
// ============================================================
// PAPÉIS DOS AGENTES
// ============================================================
//
//	sdr          → prospecção: coleta o perfil inicial da empresa
//	specialist   → diagnóstico consultivo e proposta de valor
//	scheduler    → agendamento da reunião
//	atendimento  → fila humana (lead pediu atendente)
//
// Cada agente devolve um AgentResult com a resposta e um UpdateState
// PARCIAL — só as chaves que ele é dono. O hub aplica o patch via merge
// profundo; os agentes nunca mutam o LeadState diretamente.
//
// A geração de texto aqui é scriptada (playbook fixo). A qualidade da
// conversa vem do serviço de geração externo em produção; para o hub o que
// importa é o CONTRATO: resposta + patch de estado + pedido de hand-off.
package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

// Perguntas de perfil do SDR, na ordem do playbook.
// A chave é onde a resposta entra no companyProfile.
var sdrQuestions = []struct {
	key      string
	question string
}{
	{"segment", "Legal! Pra eu te ajudar melhor: qual é o segmento da sua empresa?"},
	{"teamSize", "Entendi! E quantas pessoas tem no time de vendas hoje?"},
	{"mainChallenge", "Boa! Última pergunta: qual é o maior desafio de vendas de vocês no momento?"},
}

// SDR é o agente de prospecção. Coleta o perfil inicial e, completo o
// playbook, pede hand-off para o specialist com replay da mensagem.
type SDR struct {
	logger *zap.Logger
}

// NewSDR cria o agente SDR.
func NewSDR(logger *zap.Logger) *SDR {
	return &SDR{logger: logger}
}

// Name devolve o nome estável do agente.
func (a *SDR) Name() string { return domain.AgentSDR }

// Process avança o playbook de perfil.
//
// A resposta do lead preenche a primeira pergunta pendente; quando todas
// estão preenchidas, o SDR fecha o perfil e emite o hand-off: o specialist
// recebe o snapshot (companyProfile + resumo de qualificação) e REPROCESSA
// a mensagem original, para a fala do lead não morrer na troca.
func (a *SDR) Process(ctx context.Context, message string, agentCtx *domain.AgentContext) (*domain.AgentResult, error) {
	profile := agentCtx.State.CompanyProfile

	patch := map[string]any{}
	answered := -1

	// Primeira mensagem da conversa: só se apresenta e abre o playbook.
	if agentCtx.State.MessageCount <= 1 && len(profile) == 0 {
		return &domain.AgentResult{
			Success: true,
			Message: "Oi! 👋 Sou da equipe de consultoria da VendeMais. " + sdrQuestions[0].question,
			UpdateState: map[string]any{
				"companyProfile": map[string]any{"playbookStarted": true},
			},
		}, nil
	}

	// A mensagem atual responde a primeira pergunta ainda sem resposta.
	for i, q := range sdrQuestions {
		if _, ok := profile[q.key]; !ok {
			patch[q.key] = message
			answered = i
			break
		}
	}

	// Ainda há pergunta pendente depois desta?
	if answered >= 0 && answered < len(sdrQuestions)-1 {
		return &domain.AgentResult{
			Success:     true,
			Message:     sdrQuestions[answered+1].question,
			UpdateState: map[string]any{"companyProfile": patch},
		}, nil
	}

	// Perfil completo — fecha a etapa de SDR e passa o bastão.
	patch["profilingComplete"] = true
	snapshot := map[string]any{}
	for k, v := range profile {
		snapshot[k] = v
	}
	for k, v := range patch {
		snapshot[k] = v
	}

	a.logger.Info("sdr profiling complete, requesting handoff",
		zap.String("phone", agentCtx.State.PhoneNumber),
	)

	return &domain.AgentResult{
		Success: true,
		Message: "Perfeito, obrigado! Já entendi o cenário de vocês. 🙌",
		Handoff: &domain.HandoffRequest{
			NextAgent:       domain.AgentSpecialist,
			Mode:            domain.HandoffReplay,
			OriginalMessage: message,
			Reason:          "profiling_complete",
			Data: map[string]any{
				"companyProfile":     snapshot,
				"bantSummary":        fmt.Sprintf("Segmento: %v; time: %v; desafio: %v", snapshot["segment"], snapshot["teamSize"], snapshot["mainChallenge"]),
				"qualificationScore": 40.0,
			},
		},
	}, nil
}

// OnHandoffReceived é chamado quando uma conversa VOLTA para o SDR
// (ex.: auto-revert do roteador).
func (a *SDR) OnHandoffReceived(ctx context.Context, phone string, state *domain.LeadState) (*domain.HandoffHookResult, error) {
	return &domain.HandoffHookResult{
		Message: "Vamos retomar do início então! Me conta mais sobre a sua empresa?",
	}, nil
}
