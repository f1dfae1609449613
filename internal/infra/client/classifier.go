// Package client — classifier.go implementa o client HTTP do serviço
// externo de classificação de intenção (LLM).
//
// O hub trata o classificador como caixa-preta: manda o texto + contexto da
// conversa, recebe {intent, confidence, target_mode, should_switch,
// is_special_intent}. Quem decide trocar de agente é o roteador do hub —
// o classificador só sugere.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/infra/resilience"
)

var tracer = otel.Tracer("infra/client")

// classifyRequest é o payload de POST /v1/classify.
type classifyRequest struct {
	Text         string `json:"text"`
	CurrentMode  string `json:"current_mode"`
	MessageCount int    `json:"message_count"`
	LastMessage  string `json:"last_message,omitempty"`
}

// ClassifierClient chama o serviço externo de classificação de intenção.
type ClassifierClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewClassifierClient cria o client. baseURL sem o path /v1/classify.
func NewClassifierClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *ClassifierClient {
	return &ClassifierClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
	}
}

// Classify envia a mensagem para o classificador e devolve o resultado.
//
// Circuit breaker + retry com backoff: se o classificador estiver fora, o
// breaker abre e as próximas chamadas falham na hora em vez de empilhar.
func (c *ClassifierClient) Classify(ctx context.Context, text string, state *domain.LeadState) (*domain.IntentResult, error) {
	ctx, span := tracer.Start(ctx, "ClassifierClient.Classify")
	defer span.End()
	span.SetAttributes(attribute.String("contact.phone", state.PhoneNumber))

	req := &classifyRequest{
		Text:         text,
		CurrentMode:  state.CurrentAgent,
		MessageCount: state.MessageCount,
		LastMessage:  state.LastMessage,
	}

	var intentResp domain.IntentResult

	result, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(req)
			if err != nil {
				return fmt.Errorf("marshal classify request: %w", err)
			}

			url := fmt.Sprintf("%s/v1/classify", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("create http request: %w", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return fmt.Errorf("http call to classifier: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("classifier returned status %d", resp.StatusCode)
			}

			return json.NewDecoder(resp.Body).Decode(&intentResp)
		})

		if innerErr != nil {
			return nil, innerErr
		}
		return &intentResp, nil
	})

	if err != nil {
		return nil, &domain.ErrExternalService{Service: "classifier", Err: err}
	}

	return result.(*domain.IntentResult), nil
}
