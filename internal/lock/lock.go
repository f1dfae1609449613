// Package lock implementa o lock de exclusão mútua por contato.
//
// Webhooks concorrentes de contatos DIFERENTES seguem em paralelo
// (throughput); mensagens do MESMO contato são estritamente serializadas
// (correção — dois reads de estado stale seguidos de dois writes é o
// lost-update clássico que este lock existe para impedir).
//
// Modelo de falha escolhido: TTL com release checado por lockId, em vez de
// transação distribuída. Um lock abandonado que bloqueia um contato para
// sempre é falha pior que uma janela rara de corrida na expiração.
//
// O Manager é um componente injetado (não singleton) para que testes possam
// instanciar managers independentes. As tabelas internas são protegidas por
// mutex explícito: goroutines são paralelismo real, não interleaving
// cooperativo.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vendemais/vendas-hub-go/internal/domain"
)

// Options parametriza o manager. Zero values recebem os defaults.
type Options struct {
	// TTL é a idade máxima de um lock antes de ser tratado como abandonado.
	TTL time.Duration
	// MaxWait é quanto tempo Acquire espera antes de falhar com timeout.
	MaxWait time.Duration
	// PollInterval é o intervalo de verificação durante a espera.
	PollInterval time.Duration
	// SweepInterval é o intervalo da limpeza de fundo.
	SweepInterval time.Duration
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.TTL <= 0 {
		out.TTL = 30 * time.Second
	}
	if out.MaxWait <= 0 {
		out.MaxWait = 5 * time.Second
	}
	if out.PollInterval <= 0 {
		out.PollInterval = 100 * time.Millisecond
	}
	if out.SweepInterval <= 0 {
		out.SweepInterval = 30 * time.Second
	}
	return out
}

type holder struct {
	lockID     string
	operation  string
	acquiredAt time.Time
}

type waiter struct {
	id           string
	registeredAt time.Time
}

// Stats é o snapshot de estatísticas do manager.
type Stats struct {
	ActiveLocks   int   `json:"active_locks"`
	WaitingTotal  int   `json:"waiting_total"`
	TotalAcquired int64 `json:"total_acquired"`
	TotalReleased int64 `json:"total_released"`
	TotalTimeouts int64 `json:"total_timeouts"`
	TotalExpired  int64 `json:"total_expired"`
}

// LockInfo é o resultado da inspeção não-bloqueante de IsLocked.
type LockInfo struct {
	Locked    bool          `json:"locked"`
	Operation string        `json:"operation,omitempty"`
	Age       time.Duration `json:"age,omitempty"`
}

// Manager serializa operações por contato com locks com TTL e fila FIFO.
type Manager struct {
	mu      sync.Mutex
	locks   map[string]*holder
	waiters map[string][]waiter

	opts   Options
	logger *zap.Logger

	totalAcquired int64
	totalReleased int64
	totalTimeouts int64
	totalExpired  int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewManager cria o manager e inicia a varredura de fundo.
// Chame Close ao descartar (testes) para não vazar a goroutine.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	m := &Manager{
		locks:   make(map[string]*holder),
		waiters: make(map[string][]waiter),
		opts:    opts.withDefaults(),
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Acquire tenta tomar posse exclusiva do contato.
//
// Se o lock está livre (ou expirado — caso em que é reivindicado à força),
// retorna na hora. Se está ocupado, espera em fila FIFO, verificando a cada
// PollInterval, até MaxWait — aí falha com ErrLockTimeout. A falha é
// não-fatal por contrato: o chamador converte em "aguarde um momento".
func (m *Manager) Acquire(ctx context.Context, contactID, operation string) (string, error) {
	lockID := uuid.NewString()

	if m.tryAcquire(contactID, operation, lockID, "") {
		return lockID, nil
	}

	// Ocupado — entra na fila e espera a vez.
	waiterID := lockID
	m.enqueue(contactID, waiterID)
	defer m.dequeue(contactID, waiterID)

	deadline := time.Now().Add(m.opts.MaxWait)
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
			if m.tryAcquire(contactID, operation, lockID, waiterID) {
				return lockID, nil
			}
			if time.Now().After(deadline) {
				m.mu.Lock()
				m.totalTimeouts++
				m.mu.Unlock()
				m.logger.Warn("lock acquire timed out",
					zap.String("contact", contactID),
					zap.String("operation", operation),
					zap.Duration("max_wait", m.opts.MaxWait),
				)
				return "", &domain.ErrLockTimeout{Contact: contactID, Operation: operation}
			}
		}
	}
}

// tryAcquire toma o lock se estiver livre/expirado E se waiterID respeitar a
// ordem FIFO (fila vazia ou waiterID na cabeça). waiterID vazio = primeiro
// contato com a fila, só passa se não houver ninguém esperando.
func (m *Manager) tryAcquire(contactID, operation, lockID, waiterID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur, ok := m.locks[contactID]; ok {
		age := time.Since(cur.acquiredAt)
		if age < m.opts.TTL {
			return false
		}
		// Dono sumiu sem release — lock abandonado, reivindica à força.
		m.totalExpired++
		m.logger.Warn("reclaiming expired lock",
			zap.String("contact", contactID),
			zap.String("operation", cur.operation),
			zap.Duration("age", age),
		)
		delete(m.locks, contactID)
	}

	queue := m.waiters[contactID]
	if len(queue) > 0 && queue[0].id != waiterID {
		return false // não é a vez deste chamador
	}

	m.locks[contactID] = &holder{
		lockID:     lockID,
		operation:  operation,
		acquiredAt: time.Now(),
	}
	m.totalAcquired++
	return true
}

// Release libera o lock SOMENTE se lockID bate com o dono atual.
// O mismatch defende contra o chamador que perdeu o lock por TTL e tenta
// liberar o lock que já pertence a outro — é no-op logado, nunca pânico.
func (m *Manager) Release(contactID, lockID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.locks[contactID]
	if !ok {
		return false
	}
	if cur.lockID != lockID {
		m.logger.Warn("lock release mismatch ignored",
			zap.String("contact", contactID),
			zap.String("held_operation", cur.operation),
		)
		return false
	}

	delete(m.locks, contactID)
	m.totalReleased++
	return true
}

// IsLocked inspeciona sem bloquear. Lock expirado é limpo como efeito
// colateral da checagem (self-healing).
func (m *Manager) IsLocked(contactID string) LockInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.locks[contactID]
	if !ok {
		return LockInfo{}
	}
	age := time.Since(cur.acquiredAt)
	if age >= m.opts.TTL {
		m.totalExpired++
		delete(m.locks, contactID)
		return LockInfo{}
	}
	return LockInfo{Locked: true, Operation: cur.operation, Age: age}
}

// Stats devolve o snapshot atual.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	waiting := 0
	for _, q := range m.waiters {
		waiting += len(q)
	}
	return Stats{
		ActiveLocks:   len(m.locks),
		WaitingTotal:  waiting,
		TotalAcquired: m.totalAcquired,
		TotalReleased: m.totalReleased,
		TotalTimeouts: m.totalTimeouts,
		TotalExpired:  m.totalExpired,
	}
}

// Close para a varredura de fundo.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Manager) enqueue(contactID, waiterID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.waiters[contactID] = append(m.waiters[contactID], waiter{
		id:           waiterID,
		registeredAt: time.Now(),
	})
}

func (m *Manager) dequeue(contactID, waiterID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	queue := m.waiters[contactID]
	for i, w := range queue {
		if w.id == waiterID {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	if len(queue) == 0 {
		delete(m.waiters, contactID)
	} else {
		m.waiters[contactID] = queue
	}
}

// sweepLoop limpa locks expirados e filas órfãs, independente de qualquer
// Acquire — um dono que crashou sem release nunca pode deixar um contato
// eternamente bloqueado.
func (m *Manager) sweepLoop() {
	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for contact, cur := range m.locks {
		if now.Sub(cur.acquiredAt) >= m.opts.TTL {
			m.totalExpired++
			delete(m.locks, contact)
			m.logger.Info("sweep cleared expired lock",
				zap.String("contact", contact),
				zap.String("operation", cur.operation),
			)
		}
	}

	// Entradas de fila bem mais velhas que MaxWait são de waiters que já
	// desistiram (ou morreram antes do dequeue).
	staleCutoff := now.Add(-2 * m.opts.MaxWait)
	for contact, queue := range m.waiters {
		kept := queue[:0]
		for _, w := range queue {
			if w.registeredAt.After(staleCutoff) {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			delete(m.waiters, contact)
		} else {
			m.waiters[contact] = kept
		}
	}
}
