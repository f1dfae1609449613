// Package domain — message.go define os tipos que circulam pelo pipeline:
// mensagem inbound, resultado da classificação de intenção, resultado de
// agente, pedido de hand-off e a resposta final do hub.
package domain

import "time"

// ============================================================
// Inbound — o que chega do gateway de WhatsApp
// ============================================================

// InboundMessage é uma mensagem recebida via webhook.
type InboundMessage struct {
	ID        string    `json:"id,omitempty"`
	Phone     string    `json:"phone"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ============================================================
// Intenção — contrato do classificador externo
// ============================================================

// Intenções especiais interceptadas ANTES do roteamento normal.
const (
	IntentOptOut       = "opt_out"
	IntentHumanRequest = "human_request"
)

// IntentResult é o que o classificador devolve para uma mensagem.
// Confidence fica em [0,1]. TargetMode é o modo de conversa sugerido
// (sdr, specialist, scheduler, atendimento) — o roteador decide se aceita.
type IntentResult struct {
	Intent          string  `json:"intent"`
	Confidence      float64 `json:"confidence"`
	TargetMode      string  `json:"target_mode"`
	ShouldSwitch    bool    `json:"should_switch"`
	IsSpecialIntent bool    `json:"is_special_intent"`
}

// ============================================================
// Agente — contrato de invocação e resultado
// ============================================================

// AgentContext é o pacote de contexto entregue ao agente junto com a
// mensagem: resultado da classificação mais os enriquecimentos best-effort
// (análise de risco, dicas de prompt) computados em paralelo pelo pipeline.
type AgentContext struct {
	State        *LeadState
	Intent       *IntentResult
	RiskAnalysis map[string]any
	PromptHints  map[string]any
}

// AgentResult é o que um agente devolve ao processar uma mensagem.
//
// Quando Handoff != nil, Message é a fala de despedida do agente de
// origem: ela abre a resposta composta montada pelo orquestrador.
// UpdateState é um patch parcial: só as chaves presentes são aplicadas,
// via merge profundo (ver internal/merge).
type AgentResult struct {
	Message     string
	Success     bool
	Handoff     *HandoffRequest
	UpdateState map[string]any
	Metadata    map[string]any
}

// HandoffHookResult é o retorno opcional do hook OnHandoffReceived do
// agente receptor. UpdateState aqui é aplicado com merge RASO de um nível.
type HandoffHookResult struct {
	Message     string
	UpdateState map[string]any
}

// ============================================================
// Hand-off — pedido explícito de troca de agente
// ============================================================

// HandoffMode diz o que fazer com a mensagem que disparou o hand-off.
type HandoffMode int

const (
	// HandoffSilent: o novo agente só se apresenta; a mensagem original
	// não é reprocessada.
	HandoffSilent HandoffMode = iota

	// HandoffReplay: a mensagem original é reprocessada pelo novo agente,
	// para a pergunta do lead não morrer na troca.
	HandoffReplay
)

// HandoffRequest é o pedido de hand-off emitido por um agente.
//
// Data carrega o snapshot parcial de estado que o agente quer transferir.
// Os campos currentAgent/previousAgent dentro de Data são descartados pelo
// orquestrador — os ponteiros de agente são autoridade exclusiva do hub.
type HandoffRequest struct {
	NextAgent       string
	Mode            HandoffMode
	OriginalMessage string // obrigatório quando Mode == HandoffReplay
	Reason          string
	Data            map[string]any
}

// ============================================================
// Resposta final do hub
// ============================================================

// Códigos de erro tipados que aparecem em ProcessResult.Error.
const (
	ErrCodeLockTimeout   = "lock_timeout"
	ErrCodeHandoffFailed = "handoff_failed"
)

// ProcessResult é a resposta de ProcessMessage para o chamador (webhook).
type ProcessResult struct {
	Success         bool           `json:"success"`
	Agent           string         `json:"agent,omitempty"`
	Message         string         `json:"message"`
	FollowUpMessage string         `json:"follow_up_message,omitempty"`
	Error           string         `json:"error,omitempty"`
	HandoffFailed   bool           `json:"handoff_failed,omitempty"`
	LeadState       *LeadState     `json:"lead_state,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ResetResult é a resposta de ResetConversation.
type ResetResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
