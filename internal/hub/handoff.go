package hub

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/port"
)

// ============================================================
// ORQUESTRAÇÃO DE HAND-OFF
// ============================================================
//
// O hand-off é uma transação sobre o estado do lead:
//
//	lock("handoff") → recarregar estado → aplicar payload → trocar
//	ponteiros de agente → persistir → CRM (best-effort) → hook do agente
//	receptor → replay opcional da mensagem original
//
// Falha do hook ou do save do hook REVERTE os ponteiros de agente para o
// estado pré-transação e devolve handoff_failed — o lead continua com o
// agente de origem, nunca fica órfão entre dois agentes.
//
// O chamador DEVE ter soltado o lock de mensagem antes: o orquestrador
// adquire o próprio lock, e os dois no mesmo contato deadlockariam.

// executeHandoff executa a transação de hand-off e monta a resposta
// composta: despedida do agente de origem + saudação do novo agente +
// resposta ao replay, nessa ordem.
func (h *Hub) executeHandoff(ctx context.Context, phone, fromAgent, farewell string, req *domain.HandoffRequest) *domain.ProcessResult {
	ctx, span := tracer.Start(ctx, "Hub.executeHandoff")
	defer span.End()

	fail := func(reason string, err error) *domain.ProcessResult {
		h.metrics.IncrHandoff(fromAgent, req.NextAgent, "failed")
		h.metrics.IncrMessage("handoff_failed")
		h.logger.Error("handoff failed",
			zap.String("phone", phone),
			zap.String("from", fromAgent),
			zap.String("to", req.NextAgent),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return &domain.ProcessResult{
			Success:       false,
			Agent:         fromAgent,
			Error:         domain.ErrCodeHandoffFailed,
			HandoffFailed: true,
			Message:       msgHandoffFailed,
		}
	}

	next, ok := h.agents[req.NextAgent]
	if !ok {
		return fail("unknown target agent", &domain.ErrUnknownAgent{Name: req.NextAgent})
	}

	lockID, err := h.locks.Acquire(ctx, phone, "handoff")
	if err != nil {
		return fail("lock acquisition", err)
	}
	defer h.locks.Release(phone, lockID)

	// Recarrega dentro do lock: o payload foi montado sobre um snapshot que
	// pode ter envelhecido.
	state := h.loadOrCreate(ctx, phone)
	priorCurrent := state.CurrentAgent
	priorPrevious := state.PreviousAgent

	// Os ponteiros de agente dentro do payload são descartados — autoridade
	// exclusiva do orquestrador.
	payload := map[string]any{}
	for k, v := range req.Data {
		if k == "currentAgent" || k == "previousAgent" {
			continue
		}
		payload[k] = v
	}
	h.applyStatePatch(state, payload, handoffPatchDepth)

	state.PreviousAgent = fromAgent
	state.CurrentAgent = req.NextAgent
	state.Metadata.AppendHandoff(domain.HandoffRecord{
		From:      fromAgent,
		To:        req.NextAgent,
		Reason:    req.Reason,
		Timestamp: h.now().UTC(),
	})
	state.LastUpdate = h.now().UTC()

	if err := h.store.Save(ctx, state); err != nil {
		// Nada foi gravado — sem rollback a fazer.
		return fail("persist", err)
	}

	// Estágio de CRM acompanha o hand-off; falha aqui não reverte nada.
	if h.crm != nil {
		if stage, ok := agentStages[req.NextAgent]; ok {
			if err := h.crm.MoveStage(ctx, phone, stage); err != nil {
				h.logger.Warn("crm stage sync failed during handoff",
					zap.String("phone", phone),
					zap.String("stage", stage),
					zap.Error(err),
				)
			}
		}
	}

	// Hook de inicialização do agente receptor. Falha aqui reverte a
	// transação: o lead volta para o agente de origem.
	var greeting string
	if receiver, ok := next.(port.HandoffReceiver); ok {
		hook, err := receiver.OnHandoffReceived(ctx, phone, state)
		if err != nil {
			h.rollback(ctx, state, priorCurrent, priorPrevious)
			return fail("receiver hook", err)
		}
		if hook != nil {
			greeting = hook.Message
			if len(hook.UpdateState) > 0 {
				// Patch do hook é raso: um nível, sem merge recursivo.
				h.applyStatePatch(state, hook.UpdateState, 1)
			}
			if err := h.store.Save(ctx, state); err != nil {
				h.rollback(ctx, state, priorCurrent, priorPrevious)
				return fail("persist after hook", err)
			}
		}
	}

	// Replay: o novo agente reprocessa a mensagem que disparou a troca.
	// Falha no replay NÃO reverte — o hand-off já está consolidado; o lead
	// fica com a saudação e repete a pergunta se quiser.
	var followUp string
	if req.Mode == domain.HandoffReplay && req.OriginalMessage != "" {
		res, err := next.Process(ctx, req.OriginalMessage, &domain.AgentContext{State: state})
		if err != nil {
			h.logger.Warn("replay after handoff failed",
				zap.String("phone", phone),
				zap.String("agent", req.NextAgent),
				zap.Error(err),
			)
		} else {
			followUp = res.Message
			h.applyStatePatch(state, res.UpdateState, agentPatchDepth)
			state.LastUpdate = h.now().UTC()
			h.persist(ctx, state)
		}
	}

	h.metrics.IncrHandoff(fromAgent, req.NextAgent, "success")
	h.metrics.IncrMessage("success")
	h.recordOutcome("handoff", map[string]any{
		"phone":  phone,
		"from":   fromAgent,
		"to":     req.NextAgent,
		"reason": req.Reason,
	})
	h.logger.Info("handoff completed",
		zap.String("phone", phone),
		zap.String("from", fromAgent),
		zap.String("to", req.NextAgent),
		zap.String("reason", req.Reason),
	)

	// A despedida do agente de origem abre a resposta; saudação e replay
	// seguem como mensagem de continuação.
	parts := make([]string, 0, 3)
	for _, p := range []string{farewell, greeting, followUp} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	var message, continuation string
	if len(parts) > 0 {
		message = parts[0]
		continuation = strings.Join(parts[1:], "\n\n")
	}
	return &domain.ProcessResult{
		Success:         true,
		Agent:           req.NextAgent,
		Message:         message,
		FollowUpMessage: continuation,
		LeadState:       state,
	}
}

// rollback restaura os ponteiros de agente pré-transação e persiste.
// O payload já aplicado permanece — dado transferido não é perdido, só a
// troca de agente é desfeita.
func (h *Hub) rollback(ctx context.Context, state *domain.LeadState, priorCurrent, priorPrevious string) {
	state.CurrentAgent = priorCurrent
	state.PreviousAgent = priorPrevious
	if len(state.Metadata.HandoffHistory) > 0 {
		state.Metadata.HandoffHistory = state.Metadata.HandoffHistory[:len(state.Metadata.HandoffHistory)-1]
	}
	if err := h.store.Save(ctx, state); err != nil {
		h.logger.Error("rollback persist failed", zap.String("phone", state.PhoneNumber), zap.Error(err))
	}
}
