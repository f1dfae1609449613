// Package sqlite persiste o LeadState em SQLite (modernc.org/sqlite, sem cgo).
//
// Cada contato tem exatamente UMA linha, indexada pelo telefone normalizado.
// O estado vive como documento JSON canônico na coluna state:
//
//   - no SAVE, o documento gravado é o merge profundo do schema canônico
//     default com o estado de trabalho — estrutura sempre completa no banco;
//   - no GET, campos estruturais ausentes são re-hidratados e chaves legadas
//     desconhecidas no topo do documento são varridas para
//     metadata.agentData em vez de serem perdidas.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	_ "modernc.org/sqlite"

	"github.com/vendemais/vendas-hub-go/internal/domain"
	"github.com/vendemais/vendas-hub-go/internal/merge"
)

const canonicalMergeDepth = 5

// Chaves do schema canônico no topo do documento. Qualquer outra chave em um
// documento antigo é legado e vai para metadata.agentData no load.
var canonicalKeys = map[string]struct{}{
	"phoneNumber":        {},
	"currentAgent":       {},
	"previousAgent":      {},
	"messageCount":       {},
	"contextSwitches":    {},
	"metadata":           {},
	"bantSummary":        {},
	"qualificationScore": {},
	"painType":           {},
	"companyProfile":     {},
	"consultativeEngine": {},
	"scheduler":          {},
	"lastMessage":        {},
	"lastUpdate":         {},
}

// Store implementa port.LeadStore sobre SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New abre (ou cria) o banco no caminho dado, com WAL e schema automático.
func New(path string, logger *zap.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// WAL melhora a concorrência de leitura durante writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("sqlite lead store initialized", zap.String("path", path))
	return s, nil
}

func (s *Store) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS leads (
			phone      TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Get carrega o estado de um contato. Telefone nunca visto → (nil, nil);
// criar o default canônico é decisão do hub.
func (s *Store) Get(ctx context.Context, phone string) (*domain.LeadState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT state FROM leads WHERE phone = ?", phone,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying lead %s: %w", phone, err)
	}

	var state domain.LeadState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decoding lead %s: %w", phone, err)
	}
	state.Hydrate()

	s.sweepLegacyFields(&state, raw)
	return &state, nil
}

// sweepLegacyFields move chaves desconhecidas no topo de documentos antigos
// para metadata.agentData. O unmarshal tipado as descartaria — o contrato é
// varrer, não perder.
func (s *Store) sweepLegacyFields(state *domain.LeadState, raw string) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return
	}
	for k, v := range doc {
		if _, known := canonicalKeys[k]; known {
			continue
		}
		if _, taken := state.Metadata.AgentData[k]; taken {
			continue
		}
		state.Metadata.AgentData[k] = v
		s.logger.Debug("legacy field swept into agentData",
			zap.String("phone", state.PhoneNumber),
			zap.String("field", k),
		)
	}
}

// Save canonicaliza e faz upsert do estado.
func (s *Store) Save(ctx context.Context, state *domain.LeadState) error {
	if state.PhoneNumber == "" {
		return &domain.ErrValidation{Field: "phoneNumber", Message: "obrigatório"}
	}

	// Campos estruturais nil serializariam como null e o null-clear do merge
	// apagaria o default canônico — hidrata antes.
	state.Hydrate()

	doc, err := canonicalize(state)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO leads (phone, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, state.PhoneNumber, doc, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("saving lead %s: %w", state.PhoneNumber, err)
	}
	return nil
}

// canonicalize produz o documento persistido: merge profundo de uma cópia
// fresca do schema default com o estado de trabalho. Campos que o estado de
// trabalho não tem saem do default — nunca fica buraco estrutural no banco.
func canonicalize(state *domain.LeadState) (string, error) {
	defaults, err := toMap(domain.NewLeadState(state.PhoneNumber))
	if err != nil {
		return "", err
	}
	working, err := toMap(state)
	if err != nil {
		return "", err
	}

	canonical := merge.Merge(defaults, working, canonicalMergeDepth)

	out, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("encoding canonical state: %w", err)
	}
	return string(out), nil
}

func toMap(state *domain.LeadState) (map[string]any, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decoding state document: %w", err)
	}
	return m, nil
}

// Reset sobrescreve o contato com os defaults canônicos (o registro é
// logicamente imortal — nunca há DELETE).
func (s *Store) Reset(ctx context.Context, phone string) error {
	return s.Save(ctx, domain.NewLeadState(phone))
}

// Count devolve o total de leads conhecidos.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting leads: %w", err)
	}
	return n, nil
}

// Close fecha o banco.
func (s *Store) Close() error {
	return s.db.Close()
}
