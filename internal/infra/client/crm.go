// Package client — crm.go implementa o syncer do pipeline de vendas (CRM).
//
// Contrato best-effort: o hand-off NUNCA aborta porque o CRM está fora.
// Falha aqui é logada e engolida no call site. O cache TTL evita repetir o
// mesmo movimento de estágio em toda mensagem do contato.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/infra/observability"
	"github.com/vendemais/vendas-hub-go/internal/infra/resilience"
	"github.com/vendemais/vendas-hub-go/internal/port"
)

type moveStageRequest struct {
	Phone string `json:"phone"`
	Stage string `json:"stage"`
}

// CRMClient move leads de estágio no CRM externo.
type CRMClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	cache      port.Cache[string]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewCRMClient cria o syncer. cache de-duplica movimentos repetidos:
// chave = telefone, valor = último estágio sincronizado.
func NewCRMClient(
	httpClient *http.Client,
	baseURL string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	cache port.Cache[string],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *CRMClient {
	return &CRMClient{
		httpClient: httpClient,
		baseURL:    baseURL,
		cb:         cb,
		cfg:        cfg,
		cache:      cache,
		metrics:    metrics,
		logger:     logger,
	}
}

// MoveStage sincroniza o estágio do lead no CRM.
func (c *CRMClient) MoveStage(ctx context.Context, phone, stage string) error {
	ctx, span := tracer.Start(ctx, "CRMClient.MoveStage")
	defer span.End()

	cacheKey := fmt.Sprintf("crm-stage:%s", phone)
	if last, ok := c.cache.Get(cacheKey); ok && last == stage {
		c.metrics.IncrCacheHit("crm-stage")
		return nil // já está nesse estágio, não repete a chamada
	}
	c.metrics.IncrCacheMiss("crm-stage")

	_, err := c.cb.Execute(func() (any, error) {
		innerErr := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := json.Marshal(&moveStageRequest{Phone: phone, Stage: stage})
			if err != nil {
				return fmt.Errorf("marshal move-stage request: %w", err)
			}

			url := fmt.Sprintf("%s/v1/pipeline/move", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("create http request: %w", err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return fmt.Errorf("http call to crm: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
				return fmt.Errorf("crm returned status %d", resp.StatusCode)
			}
			return nil
		})
		return nil, innerErr
	})

	if err != nil {
		c.metrics.IncrExternalError("crm")
		return &domain.ErrExternalService{Service: "crm", Err: err}
	}

	c.cache.Set(cacheKey, stage)
	return nil
}
