package hub

import (
	"time"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/infra/observability"
	"github.com/vendemais/vendas-hub-go/internal/port"
)

// ============================================================
// ROTEADOR DE INTENÇÕES
// ============================================================
//
// O roteador decide QUAL agente responde a mensagem, a partir da intenção
// classificada e do estado do lead. As regras, em ordem:
//
//  1. Sem sugestão de troca (shouldSwitch=false) → mantém o agente atual.
//  2. Catraca do SDR: uma vez escalado, o lead não volta silenciosamente
//     para a prospecção. targetMode sdr resolve para specialist quando o
//     perfil já foi coletado ou o specialist já é o agente da vez; voltar
//     ao SDR de verdade só por reset ou auto-revert.
//  3. Confiança abaixo do limiar → mantém. Intenções de alto valor
//     (agendamento, preço, reunião) usam limiar mais baixo: perder um lead
//     querendo marcar reunião custa mais caro que uma troca errada.
//  4. Anti-oscilação: 4+ trocas em 5 minutos indicam classificador confuso;
//     o roteador reverte para o agente anterior e registra auto_revert.
//
// O roteador MUTA o estado (ponteiros de agente + contextSwitches); o
// chamador deve estar com o lock do contato.

const (
	defaultConfidenceThreshold   = 0.7
	highValueConfidenceThreshold = 0.5

	oscillationWindow      = 5 * time.Minute
	oscillationMaxSwitches = 4
)

// Intenções em que hesitar custa caro → limiar reduzido.
var highValueIntents = map[string]bool{
	"scheduling_request": true,
	"pricing_request":    true,
	"meeting_request":    true,
}

// Router aplica as regras de troca de modo de conversa.
type Router struct {
	agents  map[string]port.Agent
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewRouter cria o roteador sobre o conjunto de agentes registrados.
func NewRouter(agents map[string]port.Agent, metrics *observability.Metrics, logger *zap.Logger) *Router {
	return &Router{
		agents:  agents,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Route decide o agente da vez e registra a troca no estado quando houver.
// Devolve o nome do agente que deve processar a mensagem.
func (r *Router) Route(state *domain.LeadState, intent *domain.IntentResult) string {
	current := state.CurrentAgent
	if _, ok := r.agents[current]; !ok {
		// Estado corrompido ou agente desregistrado — volta ao começo do funil.
		r.logger.Warn("current agent not registered, falling back",
			zap.String("phone", state.PhoneNumber),
			zap.String("agent", current),
		)
		current = domain.AgentSDR
		state.CurrentAgent = current
	}

	if intent == nil || !intent.ShouldSwitch {
		return current
	}

	target := intent.TargetMode
	if target == "" {
		return current
	}

	// A catraca: depois que o lead escalou, sugestão de voltar ao SDR
	// resolve para o specialist. Lead com perfil coletado (ou já nas mãos
	// do specialist) não regride silenciosamente no funil.
	if target == domain.AgentSDR {
		profiled, _ := state.CompanyProfile["profilingComplete"].(bool)
		if profiled || current == domain.AgentSpecialist {
			target = domain.AgentSpecialist
		}
	}

	if target == current {
		return current
	}
	if _, ok := r.agents[target]; !ok {
		r.logger.Warn("classifier suggested unregistered agent",
			zap.String("phone", state.PhoneNumber),
			zap.String("target", target),
		)
		return current
	}

	threshold := defaultConfidenceThreshold
	if highValueIntents[intent.Intent] {
		threshold = highValueConfidenceThreshold
	}
	if intent.Confidence < threshold {
		return current
	}

	now := r.now()
	state.PreviousAgent = current
	state.CurrentAgent = target
	state.AppendContextSwitch(domain.ContextSwitch{
		From:       current,
		To:         target,
		Intent:     intent.Intent,
		Confidence: intent.Confidence,
		Timestamp:  now,
	})
	r.metrics.IncrSwitch(current, target)

	r.logger.Info("context switch",
		zap.String("phone", state.PhoneNumber),
		zap.String("from", current),
		zap.String("to", target),
		zap.String("intent", intent.Intent),
		zap.Float64("confidence", intent.Confidence),
	)

	// Circuit breaker anti-oscilação: trocas demais numa janela curta
	// significam classificador em loop — reverte e deixa a poeira baixar.
	if state.SwitchesWithin(oscillationWindow, now) >= oscillationMaxSwitches {
		state.CurrentAgent = current
		state.PreviousAgent = target
		state.AppendContextSwitch(domain.ContextSwitch{
			From:      target,
			To:        current,
			Intent:    "auto_revert",
			Timestamp: now,
		})
		r.metrics.IncrAutoRevert()
		r.logger.Warn("oscillation detected, reverting switch",
			zap.String("phone", state.PhoneNumber),
			zap.String("reverted_to", current),
		)
		return current
	}

	return target
}
