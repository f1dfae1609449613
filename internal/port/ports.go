// Package port define as interfaces (ports) que o hub consome.
//
// Seguindo a arquitetura hexagonal, o AgentHub depende SOMENTE dessas
// interfaces — nunca dos adapters concretos (HTTP client, SQLite, agentes).
// Isso permite testar o hub inteiro com mocks em memória.
package port

import (
	"context"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

// IntentClassifier classifica a intenção de uma mensagem inbound.
// O adapter concreto chama o serviço externo de classificação (LLM);
// o hub trata o classificador como caixa-preta.
type IntentClassifier interface {
	Classify(ctx context.Context, text string, state *domain.LeadState) (*domain.IntentResult, error)
}

// Agent é o contrato de um agente conversacional registrado no hub.
type Agent interface {
	// Name devolve o nome estável do agente (sdr, specialist...).
	Name() string

	// Process gera a resposta do agente para a mensagem, com o contexto
	// enriquecido montado pelo pipeline. Pode pedir hand-off via
	// AgentResult.Handoff.
	Process(ctx context.Context, message string, agentCtx *domain.AgentContext) (*domain.AgentResult, error)
}

// HandoffReceiver é o hook opcional de inicialização pós-hand-off.
// Agentes que precisam se apresentar ou semear estado ao assumir uma
// conversa implementam essa interface além de Agent.
type HandoffReceiver interface {
	OnHandoffReceived(ctx context.Context, phone string, state *domain.LeadState) (*domain.HandoffHookResult, error)
}

// LeadStore é o port de persistência do LeadState.
//
// Get devolve (nil, nil) para telefone nunca visto — criar o estado
// canônico é decisão do hub, não do store. Save canonicaliza: o estado
// persistido é sempre o merge do schema default com o estado de trabalho.
type LeadStore interface {
	Get(ctx context.Context, phone string) (*domain.LeadState, error)
	Save(ctx context.Context, state *domain.LeadState) error
	Reset(ctx context.Context, phone string) error
	Count(ctx context.Context) (int, error)
}

// CRMSyncer move o lead de estágio no pipeline de vendas externo.
// Contrato best-effort: falha é logada no call site e nunca propaga.
type CRMSyncer interface {
	MoveStage(ctx context.Context, phone, stage string) error
}

// OutcomeSink recebe eventos de desfecho (opt-out, hand-off, resposta).
// Fire-and-forget: aceita o payload e nunca lança erro no chamador.
type OutcomeSink interface {
	Record(ctx context.Context, event string, payload map[string]any)
}

// Cache is a read-through cache port (kept generic like the TTL cache
// that backs it).
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
