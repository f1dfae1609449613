// Package hub implementa o orquestrador central de conversas: o pipeline de
// mensagens, o roteador de intenções e o protocolo de hand-off.
//
// ============================================================
// PIPELINE DE UMA MENSAGEM
// ============================================================
//
//	normalizar telefone → lock do contato → carregar/criar estado →
//	short-circuits (conversa concluída, opt-out) → classificar intenção →
//	intenções especiais → rotear → enriquecer contexto (paralelo) →
//	invocar agente → aplicar patch OU delegar hand-off → persistir →
//	sync de CRM em background → liberar lock
//
// O lock é liberado SEMPRE, inclusive em pânico de agente — sem isso um
// contato ficaria travado até o TTL expirar. Só duas condições produzem
// Success=false para o gateway: lock_timeout e handoff_failed; todo o
// resto degrada com resposta amigável, porque no WhatsApp não existe
// "tela de erro" — existe uma pessoa esperando resposta.
package hub

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/infra/observability"
	"github.com/vendemais/vendas-hub-go/internal/infra/resilience"
	"github.com/vendemais/vendas-hub-go/internal/lock"
	"github.com/vendemais/vendas-hub-go/internal/merge"
	"github.com/vendemais/vendas-hub-go/internal/port"
)

var tracer = otel.Tracer("hub")

// Profundidades de merge dos patches de estado.
const (
	// Patch de resposta normal de agente.
	agentPatchDepth = 3
	// Payload de hand-off — snapshots mais profundos.
	handoffPatchDepth = 5
)

// Respostas fixas do pipeline.
const (
	msgPleaseWait    = "Um momento, por favor! 🙏 Ainda estou finalizando sua mensagem anterior."
	msgCompleted     = "Sua reunião já está agendada! 🎉 Qualquer coisa antes dela, é só chamar por aqui."
	msgOptedOut      = "Tudo bem! Você não vai mais receber mensagens nossas. Se mudar de ideia, é só mandar um oi. 👋"
	msgHumanQueued   = "Entendido! 🙋 Já acionei um consultor humano — ele assume a conversa a partir de agora."
	msgAgentStumbled = "Opa, me perdi aqui por um instante. 😅 Pode repetir, por favor?"
	msgHandoffFailed = "Vamos continuar nossa conversa! Me conta mais sobre o que você precisa."
)

// Estágio de CRM correspondente a cada agente.
var agentStages = map[string]string{
	domain.AgentSDR:         "qualificacao",
	domain.AgentSpecialist:  "diagnostico",
	domain.AgentScheduler:   "agendamento",
	domain.AgentAtendimento: "atendimento_humano",
}

// Deps agrupa as dependências do hub (todas obrigatórias exceto CRM e sink).
type Deps struct {
	Classifier port.IntentClassifier
	Agents     []port.Agent
	Store      port.LeadStore
	Locks      *lock.Manager
	CRM        port.CRMSyncer
	Outcomes   port.OutcomeSink
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Bulkhead   *resilience.Bulkhead
}

// Hub é o orquestrador de conversas.
type Hub struct {
	classifier port.IntentClassifier
	agents     map[string]port.Agent
	store      port.LeadStore
	locks      *lock.Manager
	crm        port.CRMSyncer
	outcomes   port.OutcomeSink
	metrics    *observability.Metrics
	logger     *zap.Logger
	bulkhead   *resilience.Bulkhead
	router     *Router
	now        func() time.Time
}

// New monta o hub com os agentes indexados por nome.
func New(deps Deps) *Hub {
	agents := make(map[string]port.Agent, len(deps.Agents))
	for _, a := range deps.Agents {
		agents[a.Name()] = a
	}
	return &Hub{
		classifier: deps.Classifier,
		agents:     agents,
		store:      deps.Store,
		locks:      deps.Locks,
		crm:        deps.CRM,
		outcomes:   deps.Outcomes,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		bulkhead:   deps.Bulkhead,
		router:     NewRouter(agents, deps.Metrics, deps.Logger),
		now:        time.Now,
	}
}

// ProcessMessage executa o pipeline completo para uma mensagem inbound.
func (h *Hub) ProcessMessage(ctx context.Context, msg *domain.InboundMessage) (result *domain.ProcessResult) {
	ctx, span := tracer.Start(ctx, "Hub.ProcessMessage")
	defer span.End()

	// Pânico em agente ou enriquecimento não pode derrubar o worker nem
	// deixar o lead sem resposta. O defer de Release roda no unwind.
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("panic in message pipeline",
				zap.String("phone", msg.Phone),
				zap.Any("panic", r),
			)
			h.metrics.IncrMessage("panic")
			result = &domain.ProcessResult{Success: true, Message: msgAgentStumbled}
		}
	}()

	start := h.now()
	phone := domain.NormalizePhone(msg.Phone)
	text := strings.TrimSpace(msg.Text)

	lockID, err := h.locks.Acquire(ctx, phone, "process_message")
	if err != nil {
		h.metrics.IncrLockTimeout()
		h.metrics.IncrMessage("lock_timeout")
		h.logger.Warn("contact lock timeout", zap.String("phone", phone), zap.Error(err))
		return &domain.ProcessResult{
			Success: false,
			Error:   domain.ErrCodeLockTimeout,
			Message: msgPleaseWait,
		}
	}
	// Release com lockID errado é no-op: se o caminho de hand-off já soltou
	// o lock (e outra mensagem o pegou), este defer não derruba o lock alheio.
	defer h.locks.Release(phone, lockID)

	state := h.loadOrCreate(ctx, phone)

	// Conversa encerrada — responde fixo sem acordar nenhum agente.
	if state.Metadata.ConversationCompleted {
		h.metrics.IncrMessage("completed")
		return &domain.ProcessResult{
			Success: true,
			Agent:   state.CurrentAgent,
			Message: msgCompleted,
		}
	}
	if state.Metadata.OptedOut {
		h.metrics.IncrMessage("opted_out")
		return &domain.ProcessResult{Success: true, Message: msgOptedOut}
	}

	state.MessageCount++
	state.LastMessage = text

	intent := h.classify(ctx, text, state)

	// Intenções especiais curto-circuitam o roteamento normal.
	if result := h.handleSpecialIntent(ctx, state, intent); result != nil {
		return result
	}

	agentName := h.router.Route(state, intent)
	agent := h.agents[agentName]

	agentCtx := &domain.AgentContext{State: state, Intent: intent}
	h.enrichContext(text, agentCtx)

	res, err := agent.Process(ctx, text, agentCtx)
	if err != nil {
		// Falha de agente não vira erro para o lead — pede pra repetir.
		h.logger.Error("agent failed to process message",
			zap.String("phone", phone),
			zap.String("agent", agentName),
			zap.Error(err),
		)
		h.metrics.IncrMessage("agent_error")
		h.persist(ctx, state)
		return &domain.ProcessResult{
			Success: true,
			Agent:   agentName,
			Message: msgAgentStumbled,
		}
	}

	// O agente pediu hand-off: persiste o progresso, solta o lock de
	// mensagem e delega — o orquestrador adquire o próprio lock.
	if res.Handoff != nil {
		state.LastUpdate = h.now().UTC()
		h.persist(ctx, state)
		h.locks.Release(phone, lockID)

		out := h.executeHandoff(ctx, phone, agentName, res.Message, res.Handoff)
		h.metrics.RecordMessageDuration(agentName, h.now().Sub(start))
		return out
	}

	h.applyStatePatch(state, res.UpdateState, agentPatchDepth)
	state.LastUpdate = h.now().UTC()
	h.persist(ctx, state)

	h.syncInBackground(phone, state.CurrentAgent, map[string]any{
		"event":   "message_processed",
		"agent":   agentName,
		"intent":  intent.Intent,
		"message": text,
	})

	h.metrics.RecordMessageDuration(agentName, h.now().Sub(start))
	h.metrics.IncrMessage("success")

	return &domain.ProcessResult{
		Success:   true,
		Agent:     agentName,
		Message:   res.Message,
		LeadState: state,
		Metadata:  res.Metadata,
	}
}

// ResetConversation volta o lead ao estado canônico default.
func (h *Hub) ResetConversation(ctx context.Context, phone string) (*domain.ResetResult, error) {
	phone = domain.NormalizePhone(phone)

	lockID, err := h.locks.Acquire(ctx, phone, "reset")
	if err != nil {
		return nil, err
	}
	defer h.locks.Release(phone, lockID)

	if err := h.store.Reset(ctx, phone); err != nil {
		return nil, err
	}
	h.logger.Info("conversation reset", zap.String("phone", phone))
	return &domain.ResetResult{Success: true, Message: "conversa reiniciada"}, nil
}

// GetConversation devolve o estado persistido de um contato.
func (h *Hub) GetConversation(ctx context.Context, phone string) (*domain.LeadState, error) {
	phone = domain.NormalizePhone(phone)
	state, err := h.store.Get(ctx, phone)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, &domain.ErrNotFound{Resource: "conversation", ID: phone}
	}
	state.Hydrate()
	return state, nil
}

// GetStats agrega os números operacionais do hub.
func (h *Hub) GetStats(ctx context.Context) (map[string]any, error) {
	leads, err := h.store.Count(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"leads": leads,
		"locks": h.locks.Stats(),
	}, nil
}

// GetRoutingStats devolve o snapshot dos contadores de roteamento.
func (h *Hub) GetRoutingStats() *observability.RoutingStats {
	return h.metrics.GetRoutingSnapshot()
}

// GetLockStats expõe as estatísticas do gerenciador de locks.
func (h *Hub) GetLockStats() lock.Stats {
	return h.locks.Stats()
}

// ============================================================
// Etapas internas do pipeline
// ============================================================

func (h *Hub) loadOrCreate(ctx context.Context, phone string) *domain.LeadState {
	state, err := h.store.Get(ctx, phone)
	if err != nil {
		// Banco indisponível não pode derrubar a conversa: segue com estado
		// novo em memória e tenta persistir no fim.
		h.logger.Error("failed to load lead state", zap.String("phone", phone), zap.Error(err))
		state = nil
	}
	if state == nil {
		state = domain.NewLeadState(phone)
	}
	state.Hydrate()
	return state
}

// classify chama o classificador externo; falha vira intenção neutra que
// mantém o agente atual — nunca propaga para o lead.
func (h *Hub) classify(ctx context.Context, text string, state *domain.LeadState) *domain.IntentResult {
	intent, err := h.classifier.Classify(ctx, text, state)
	if err != nil || intent == nil {
		h.logger.Warn("intent classification failed, staying with current agent",
			zap.String("phone", state.PhoneNumber),
			zap.Error(err),
		)
		return &domain.IntentResult{
			Intent:     "unknown",
			TargetMode: state.CurrentAgent,
		}
	}
	return intent
}

// handleSpecialIntent trata opt-out e pedido de humano. Devolve nil quando a
// mensagem deve seguir o fluxo normal.
func (h *Hub) handleSpecialIntent(ctx context.Context, state *domain.LeadState, intent *domain.IntentResult) *domain.ProcessResult {
	now := h.now().UTC()

	switch intent.Intent {
	case domain.IntentOptOut:
		state.Metadata.OptedOut = true
		state.Metadata.OptedOutAt = &now
		state.LastUpdate = now
		h.persist(ctx, state)

		h.recordOutcome("opt_out", map[string]any{"phone": state.PhoneNumber})
		h.metrics.IncrMessage("opt_out")
		h.logger.Info("lead opted out", zap.String("phone", state.PhoneNumber))

		return &domain.ProcessResult{Success: true, Message: msgOptedOut}

	case domain.IntentHumanRequest:
		state.Metadata.HumanRequested = true
		state.Metadata.HumanRequestedAt = &now
		if state.CurrentAgent != domain.AgentAtendimento {
			state.AppendContextSwitch(domain.ContextSwitch{
				From:       state.CurrentAgent,
				To:         domain.AgentAtendimento,
				Intent:     domain.IntentHumanRequest,
				Confidence: intent.Confidence,
				Timestamp:  now,
			})
			state.PreviousAgent = state.CurrentAgent
			state.CurrentAgent = domain.AgentAtendimento
		}
		state.LastUpdate = now
		h.persist(ctx, state)

		h.recordOutcome("human_request", map[string]any{"phone": state.PhoneNumber})
		h.metrics.IncrMessage("human_request")
		h.syncInBackground(state.PhoneNumber, domain.AgentAtendimento, nil)

		return &domain.ProcessResult{
			Success: true,
			Agent:   domain.AgentAtendimento,
			Message: msgHumanQueued,
		}
	}
	return nil
}

// enrichContext computa os enriquecimentos best-effort em paralelo.
// São cálculos locais e rápidos, sem I/O, então não há timeout aqui.
// Qualquer campo que falte fica vazio; os agentes toleram contexto parcial.
func (h *Hub) enrichContext(text string, agentCtx *domain.AgentContext) {
	var g errgroup.Group

	g.Go(func() error {
		agentCtx.RiskAnalysis = analyzeRisk(text, agentCtx.State)
		return nil
	})
	g.Go(func() error {
		agentCtx.PromptHints = buildPromptHints(agentCtx.State)
		return nil
	})
	_ = g.Wait()
}

// analyzeRisk estima o risco de perder o lead nesta interação.
func analyzeRisk(text string, state *domain.LeadState) map[string]any {
	lower := strings.ToLower(text)
	risk := "low"
	for _, kw := range []string{"caro", "desisto", "cancelar", "não gostei", "nao gostei", "concorrente"} {
		if strings.Contains(lower, kw) {
			risk = "high"
			break
		}
	}
	return map[string]any{
		"level":           risk,
		"messageCount":    state.MessageCount,
		"recentSwitches":  len(state.ContextSwitches),
		"qualified":       state.QualificationScore >= 60,
	}
}

// buildPromptHints resume o que já se sabe do lead para o agente da vez.
func buildPromptHints(state *domain.LeadState) map[string]any {
	hints := map[string]any{}
	if seg, ok := state.CompanyProfile["segment"]; ok {
		hints["segment"] = seg
	}
	if state.BANTSummary != "" {
		hints["bantSummary"] = state.BANTSummary
	}
	if state.PainType != "" {
		hints["painType"] = state.PainType
	}
	return hints
}

// persist salva absorvendo o erro — a resposta ao lead não depende do save.
func (h *Hub) persist(ctx context.Context, state *domain.LeadState) {
	if err := h.store.Save(ctx, state); err != nil {
		h.logger.Error("failed to persist lead state",
			zap.String("phone", state.PhoneNumber),
			zap.Error(err),
		)
	}
}

// syncInBackground move o estágio no CRM e registra o desfecho sem segurar a
// resposta. O bulkhead limita a concorrência; estouro é descartado com log.
func (h *Hub) syncInBackground(phone, agent string, outcome map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := h.bulkhead.Acquire(ctx); err != nil {
			h.logger.Warn("background sync skipped, bulkhead full", zap.String("phone", phone))
			return
		}
		defer h.bulkhead.Release()

		if h.crm != nil {
			if stage, ok := agentStages[agent]; ok {
				if err := h.crm.MoveStage(ctx, phone, stage); err != nil {
					h.logger.Warn("crm stage sync failed",
						zap.String("phone", phone),
						zap.String("stage", stage),
						zap.Error(err),
					)
				}
			}
		}
		if outcome != nil {
			h.recordOutcome("message_processed", outcome)
		}
	}()
}

func (h *Hub) recordOutcome(event string, payload map[string]any) {
	if h.outcomes == nil {
		return
	}
	h.outcomes.Record(context.Background(), event, payload)
}

// ============================================================
// Aplicação de patches de estado
// ============================================================

// Chaves de autoridade exclusiva do hub — descartadas de qualquer patch.
var hubOwnedKeys = map[string]bool{
	"phoneNumber":     true,
	"currentAgent":    true,
	"previousAgent":   true,
	"messageCount":    true,
	"contextSwitches": true,
	"handoffHistory":  true,
	"lastMessage":     true,
	"lastUpdate":      true,
}

// applyStatePatch aplica um patch parcial de agente ao estado.
//
// Os sacos aninhados (companyProfile, consultativeEngine, scheduler,
// metadata) são combinados via merge profundo até maxDepth; os campos de
// qualificação são sobrescritos direto; chaves desconhecidas caem em
// metadata.agentData em vez de sumirem.
func (h *Hub) applyStatePatch(state *domain.LeadState, patch map[string]any, maxDepth int) {
	for key, value := range patch {
		if hubOwnedKeys[key] {
			continue
		}
		switch key {
		case "companyProfile":
			if m, ok := value.(map[string]any); ok {
				state.CompanyProfile = merge.Merge(state.CompanyProfile, m, maxDepth)
			}
		case "consultativeEngine":
			if m, ok := value.(map[string]any); ok {
				state.ConsultativeEngine = merge.Merge(state.ConsultativeEngine, m, maxDepth)
			}
		case "scheduler":
			if m, ok := value.(map[string]any); ok {
				state.Scheduler = merge.Merge(state.Scheduler, m, maxDepth)
			}
		case "metadata":
			if m, ok := value.(map[string]any); ok {
				h.applyMetadataPatch(state.Metadata, m, maxDepth)
			}
		case "bantSummary":
			if s, ok := value.(string); ok {
				state.BANTSummary = s
			}
		case "painType":
			if s, ok := value.(string); ok {
				state.PainType = s
			}
		case "qualificationScore":
			switch n := value.(type) {
			case float64:
				state.QualificationScore = n
			case int:
				state.QualificationScore = float64(n)
			}
		case "conversationCompleted":
			if b, ok := value.(bool); ok {
				state.Metadata.ConversationCompleted = b
			}
		default:
			state.Metadata.AgentData = merge.Merge(
				state.Metadata.AgentData,
				map[string]any{key: value},
				maxDepth,
			)
		}
	}
}

// applyMetadataPatch separa as flags tipadas do resto — o resto vai para o
// saco agentData.
func (h *Hub) applyMetadataPatch(meta *domain.Metadata, patch map[string]any, maxDepth int) {
	rest := map[string]any{}
	for key, value := range patch {
		switch key {
		case "optedOut":
			if b, ok := value.(bool); ok {
				meta.OptedOut = b
			}
		case "humanRequested":
			if b, ok := value.(bool); ok {
				meta.HumanRequested = b
			}
		case "conversationCompleted":
			if b, ok := value.(bool); ok {
				meta.ConversationCompleted = b
			}
		case "handoffHistory":
			// audit trail é só do hub
		default:
			rest[key] = value
		}
	}
	if len(rest) > 0 {
		meta.AgentData = merge.Merge(meta.AgentData, rest, maxDepth)
	}
}
