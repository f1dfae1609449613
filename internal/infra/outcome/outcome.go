// Package outcome traz o sink padrão de eventos de desfecho: log
// estruturado. Em produção os eventos alimentam o funil de analytics; o
// contrato é fire-and-forget, então o sink nunca devolve erro.
package outcome

import (
	"context"

	"go.uber.org/zap"
)

// LogSink registra cada desfecho como uma linha de log estruturado.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink cria o sink sobre o logger dado.
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("outcome")}
}

// Record emite o evento. Nunca bloqueia nem falha.
func (s *LogSink) Record(ctx context.Context, event string, payload map[string]any) {
	s.logger.Info("outcome",
		zap.String("event", event),
		zap.Any("payload", payload),
	)
}
