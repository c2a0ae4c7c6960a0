package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumenpipe/lumenpipe/service/metrics"
	"github.com/lumenpipe/lumenpipe/service/submitter"
)

// ErrNotFound is returned when a requested submission does not exist.
var ErrNotFound = errors.New("submission not found")

// Store provides database operations for the service. Every submission
// attempt is recorded as an append-only audit row; rows are never updated,
// matching the terminal, never-mutated nature of a submission result.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Submission is one recorded submission attempt.
type Submission struct {
	ID            int64     `json:"id"`
	IntentKind    string    `json:"intent_kind"`
	SourceAccount string    `json:"source_account,omitempty"`
	Status        string    `json:"status"`
	ResultKind    string    `json:"result_kind,omitempty"`
	TxHash        string    `json:"tx_hash,omitempty"`
	Summary       string    `json:"summary,omitempty"`
	RawDetails    string    `json:"raw_details,omitempty"`
	Error         string    `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// ListSubmissionsParams contains pagination parameters.
type ListSubmissionsParams struct {
	SourceAccount string // optional filter
	Limit         int32
	Offset        int32
}

// RecordSubmission inserts a new submission audit row. It satisfies the
// orchestrator's Recorder interface.
func (s *Store) RecordSubmission(ctx context.Context, rec submitter.SubmissionRecord) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (
			intent_kind, source_account, status, result_kind,
			tx_hash, summary, raw_details, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.IntentKind, rec.SourceAccount, rec.Status, rec.ResultKind,
		rec.TxHash, rec.Summary, rec.RawDetails, rec.Error,
	)
	s.metrics.RecordDBQuery("insert", "submissions", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("failed to record submission: %w", err)
	}
	return nil
}

// GetSubmission retrieves a submission by id.
func (s *Store) GetSubmission(ctx context.Context, id int64) (*Submission, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, intent_kind, source_account, status, result_kind,
		       tx_hash, summary, raw_details, error, created_at
		FROM submissions
		WHERE id = $1`, id)

	sub, err := scanSubmission(row)
	s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return sub, nil
}

// GetSubmissionByTxHash retrieves the submission that produced a transaction
// hash.
func (s *Store) GetSubmissionByTxHash(ctx context.Context, txHash string) (*Submission, error) {
	start := time.Now()
	row := s.pool.QueryRow(ctx, `
		SELECT id, intent_kind, source_account, status, result_kind,
		       tx_hash, summary, raw_details, error, created_at
		FROM submissions
		WHERE tx_hash = $1
		ORDER BY created_at DESC
		LIMIT 1`, txHash)

	sub, err := scanSubmission(row)
	s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get submission by tx hash: %w", err)
	}
	return sub, nil
}

// ListSubmissions returns submission rows, newest first, optionally filtered
// by source account.
func (s *Store) ListSubmissions(ctx context.Context, params ListSubmissionsParams) ([]*Submission, error) {
	limit := params.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	start := time.Now()
	var rows pgx.Rows
	var err error
	if params.SourceAccount != "" {
		rows, err = s.pool.Query(ctx, `
			SELECT id, intent_kind, source_account, status, result_kind,
			       tx_hash, summary, raw_details, error, created_at
			FROM submissions
			WHERE source_account = $1
			ORDER BY created_at DESC
			LIMIT $2 OFFSET $3`,
			params.SourceAccount, limit, params.Offset)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, intent_kind, source_account, status, result_kind,
			       tx_hash, summary, raw_details, error, created_at
			FROM submissions
			ORDER BY created_at DESC
			LIMIT $1 OFFSET $2`,
			limit, params.Offset)
	}
	if err != nil {
		s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}
	err = rows.Err()
	s.metrics.RecordDBQuery("select", "submissions", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to read submissions: %w", err)
	}
	return subs, nil
}

func scanSubmission(row pgx.Row) (*Submission, error) {
	var sub Submission
	err := row.Scan(
		&sub.ID, &sub.IntentKind, &sub.SourceAccount, &sub.Status, &sub.ResultKind,
		&sub.TxHash, &sub.Summary, &sub.RawDetails, &sub.Error, &sub.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
