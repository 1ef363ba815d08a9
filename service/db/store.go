package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/ptoken/service/analysis"
	"github.com/brojonat/ptoken/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAnalysisNotFound is returned when no stored analysis matches a lookup.
var ErrAnalysisNotFound = errors.New("analysis not found")

// DefaultHistoryLimit is the number of analyses listed when no limit is given.
const DefaultHistoryLimit = 5

// MaxHistoryLimit caps a single history listing.
const MaxHistoryLimit = 100

const schema = `
CREATE TABLE IF NOT EXISTS analyses (
    id          BIGSERIAL PRIMARY KEY,
    signature   TEXT        NOT NULL,
    network     TEXT        NOT NULL CHECK (network IN ('mainnet', 'devnet')),
    result      JSONB       NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS analyses_created_at_idx ON analyses (created_at DESC);
CREATE INDEX IF NOT EXISTS analyses_signature_network_idx ON analyses (signature, network, created_at DESC);
`

// DBTX is the subset of pgx used by the store. Both *pgxpool.Pool and
// pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store provides database operations for analysis history.
type Store struct {
	db      DBTX
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{db: pool, metrics: m}
}

// Analysis is one stored analysis result.
type Analysis struct {
	ID        int64            `json:"id"`
	Signature string           `json:"signature"` // full, untruncated
	Network   string           `json:"network"`
	Result    *analysis.Result `json:"result"`
	CreatedAt time.Time        `json:"created_at"`
}

// ListAnalysesParams filters a history listing.
type ListAnalysesParams struct {
	Network string // empty for all networks
	Limit   int32
}

// Migrate creates the analyses table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// RecordAnalysis stores a result under the full signature it was computed for.
func (s *Store) RecordAnalysis(ctx context.Context, signature string, network analysis.Network, result *analysis.Result) (*Analysis, error) {
	if result == nil {
		return nil, fmt.Errorf("result is required")
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}

	start := time.Now()
	row := s.db.QueryRow(ctx,
		`INSERT INTO analyses (signature, network, result)
		 VALUES ($1, $2, $3)
		 RETURNING id, signature, network, result, created_at`,
		signature, string(network), payload,
	)
	a, err := scanAnalysis(row)
	s.record("insert", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to insert analysis: %w", err)
	}
	return a, nil
}

// GetAnalysis returns the most recent analysis of signature on network.
func (s *Store) GetAnalysis(ctx context.Context, signature string, network analysis.Network) (*Analysis, error) {
	start := time.Now()
	row := s.db.QueryRow(ctx,
		`SELECT id, signature, network, result, created_at
		 FROM analyses
		 WHERE signature = $1 AND network = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		signature, string(network),
	)
	a, err := scanAnalysis(row)
	if errors.Is(err, pgx.ErrNoRows) {
		s.record("select", start, nil)
		return nil, ErrAnalysisNotFound
	}
	s.record("select", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return a, nil
}

// ListRecentAnalyses returns the newest analyses first.
func (s *Store) ListRecentAnalyses(ctx context.Context, params ListAnalysesParams) ([]*Analysis, error) {
	limit := NormalizeLimit(params.Limit)

	start := time.Now()
	rows, err := s.db.Query(ctx,
		`SELECT id, signature, network, result, created_at
		 FROM analyses
		 WHERE ($1::text = '' OR network = $1::text)
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		params.Network, limit,
	)
	if err != nil {
		s.record("select", start, err)
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	analyses := make([]*Analysis, 0, limit)
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			s.record("select", start, err)
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	err = rows.Err()
	s.record("select", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return analyses, nil
}

// NormalizeLimit applies the default and maximum history limits.
func NormalizeLimit(limit int32) int32 {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(operation, "analyses", time.Since(start).Seconds(), err)
	}
}

func scanAnalysis(row pgx.Row) (*Analysis, error) {
	var a Analysis
	var payload []byte
	if err := row.Scan(&a.ID, &a.Signature, &a.Network, &payload, &a.CreatedAt); err != nil {
		return nil, err
	}
	result, err := decodeResult(payload)
	if err != nil {
		return nil, err
	}
	a.Result = result
	return &a, nil
}

func decodeResult(payload []byte) (*analysis.Result, error) {
	var r analysis.Result
	if err := json.Unmarshal(payload, &r); err != nil {
		return nil, fmt.Errorf("failed to decode stored result: %w", err)
	}
	return &r, nil
}
