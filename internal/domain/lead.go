// Package domain — lead.go define o LeadState, a entidade central do hub.
//
// Cada contato de WhatsApp tem exatamente UM LeadState persistido, indexado
// pelo telefone normalizado (E.164). Todos os agentes (sdr, specialist,
// scheduler, atendimento) leem e escrevem nesse mesmo registro — por isso
// toda mutação só é válida com o lock do contato em mãos (ver internal/lock).
//
// O ciclo de vida:
//  1. Primeira mensagem de um número nunca visto → NewLeadState (defaults canônicos)
//  2. Cada mensagem processada muta o estado (messageCount, lastMessage, merges)
//  3. Hand-offs trocam currentAgent/previousAgent e registram auditoria
//  4. O registro nunca é deletado — só resetado para os defaults canônicos
//
// As listas de auditoria (contextSwitches, handoffHistory) são limitadas:
// ao estourar o teto, a entrada mais ANTIGA é descartada (FIFO).
package domain

import (
	"strings"
	"time"
)

// Nomes dos agentes registrados no hub.
const (
	AgentSDR         = "sdr"
	AgentSpecialist  = "specialist"
	AgentScheduler   = "scheduler"
	AgentAtendimento = "atendimento"
)

// Tetos das listas de auditoria.
const (
	MaxContextSwitches = 20
	MaxHandoffHistory  = 10
)

// ContextSwitch registra uma troca de agente decidida pelo roteador.
type ContextSwitch struct {
	From       string    `json:"from"`
	To         string    `json:"to"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// HandoffRecord registra um hand-off concluído (ou revertido) entre agentes.
type HandoffRecord struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Metadata agrupa flags de conversa e o saco de dados legados.
//
// AgentData é o "saco de extensão": campos que um agente escreveu mas que
// não existem no schema canônico são varridos para cá no save, em vez de
// serem perdidos ou ficarem soltos no topo do documento.
type Metadata struct {
	OptedOut              bool            `json:"optedOut,omitempty"`
	OptedOutAt            *time.Time      `json:"optedOutAt,omitempty"`
	HumanRequested        bool            `json:"humanRequested,omitempty"`
	HumanRequestedAt      *time.Time      `json:"humanRequestedAt,omitempty"`
	ConversationCompleted bool            `json:"conversationCompleted,omitempty"`
	HandoffHistory        []HandoffRecord `json:"handoffHistory"`
	AgentData             map[string]any  `json:"agentData,omitempty"`
}

// LeadState é o registro mutável por contato.
//
// Campos com dono exclusivo:
//   - messageCount, lastMessage, lastUpdate → pipeline
//   - currentAgent, previousAgent, contextSwitches → roteador/hand-off
//   - companyProfile → sdr/specialist; consultativeEngine → specialist;
//     scheduler → scheduler
//
// Os sacos aninhados são map[string]any de propósito: cada agente evolui o
// próprio sub-objeto sem migração de schema, e o merge profundo combina
// atualizações parciais sem clobber dos campos irmãos.
type LeadState struct {
	PhoneNumber   string `json:"phoneNumber"`
	CurrentAgent  string `json:"currentAgent"`
	PreviousAgent string `json:"previousAgent,omitempty"`

	MessageCount    int             `json:"messageCount"`
	ContextSwitches []ContextSwitch `json:"contextSwitches"`
	Metadata        *Metadata       `json:"metadata"`

	// Resumo de qualificação — sobrescritos direto no hand-off, nunca merged.
	BANTSummary        string  `json:"bantSummary,omitempty"`
	QualificationScore float64 `json:"qualificationScore,omitempty"`
	PainType           string  `json:"painType,omitempty"`

	CompanyProfile     map[string]any `json:"companyProfile"`
	ConsultativeEngine map[string]any `json:"consultativeEngine"`
	Scheduler          map[string]any `json:"scheduler"`

	LastMessage string    `json:"lastMessage,omitempty"`
	LastUpdate  time.Time `json:"lastUpdate"`
}

// NewLeadState cria o estado canônico default para um telefone nunca visto.
// Todo lead começa com o SDR.
func NewLeadState(phone string) *LeadState {
	return &LeadState{
		PhoneNumber:  phone,
		CurrentAgent: AgentSDR,
		Metadata: &Metadata{
			HandoffHistory: []HandoffRecord{},
			AgentData:      map[string]any{},
		},
		ContextSwitches:    []ContextSwitch{},
		CompanyProfile:     map[string]any{},
		ConsultativeEngine: map[string]any{},
		Scheduler:          map[string]any{},
		LastUpdate:         time.Now().UTC(),
	}
}

// Hydrate reconstrói campos estruturais ausentes após um load.
// Estados antigos no banco podem não ter metadata/handoffHistory — toda
// leitura passa por aqui antes do hub tocar no registro.
func (s *LeadState) Hydrate() {
	if s.CurrentAgent == "" {
		s.CurrentAgent = AgentSDR
	}
	if s.Metadata == nil {
		s.Metadata = &Metadata{}
	}
	if s.Metadata.HandoffHistory == nil {
		s.Metadata.HandoffHistory = []HandoffRecord{}
	}
	if s.Metadata.AgentData == nil {
		s.Metadata.AgentData = map[string]any{}
	}
	if s.ContextSwitches == nil {
		s.ContextSwitches = []ContextSwitch{}
	}
	if s.CompanyProfile == nil {
		s.CompanyProfile = map[string]any{}
	}
	if s.ConsultativeEngine == nil {
		s.ConsultativeEngine = map[string]any{}
	}
	if s.Scheduler == nil {
		s.Scheduler = map[string]any{}
	}
}

// AppendContextSwitch adiciona uma troca mantendo o teto — a mais antiga sai.
func (s *LeadState) AppendContextSwitch(cs ContextSwitch) {
	s.ContextSwitches = append(s.ContextSwitches, cs)
	if len(s.ContextSwitches) > MaxContextSwitches {
		s.ContextSwitches = s.ContextSwitches[len(s.ContextSwitches)-MaxContextSwitches:]
	}
}

// SwitchesWithin conta as trocas registradas dentro da janela que termina em now.
// Usado pelo circuit breaker anti-oscilação do roteador.
func (s *LeadState) SwitchesWithin(window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	n := 0
	for _, cs := range s.ContextSwitches {
		if cs.Timestamp.After(cutoff) {
			n++
		}
	}
	return n
}

// AppendHandoff adiciona um registro de hand-off mantendo o teto.
func (m *Metadata) AppendHandoff(rec HandoffRecord) {
	m.HandoffHistory = append(m.HandoffHistory, rec)
	if len(m.HandoffHistory) > MaxHandoffHistory {
		m.HandoffHistory = m.HandoffHistory[len(m.HandoffHistory)-MaxHandoffHistory:]
	}
}

// NormalizePhone normaliza um identificador de contato para E.164 brasileiro.
//
// Aceita qualquer formato que chegue do gateway ("+55 11 99999-9999",
// "5511999999999", "11999999999") e devolve sempre a mesma chave — mensagens
// do mesmo contato PRECISAM serializar no mesmo lock, então a normalização
// acontece antes de qualquer operação de lock ou estado.
func NormalizePhone(raw string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)

	// Sem DDI → assume Brasil.
	if len(digits) == 10 || len(digits) == 11 {
		digits = "55" + digits
	}
	return digits
}
