// Package repository keeps the recent evaluation history of the running
// process in an in-memory SQLite database.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-finance/creditguard/internal/domain"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// SQLRepository implements domain.EvaluationRepository on database/sql.
type SQLRepository struct {
	db      *sql.DB
	maxRows int
}

// New opens the history store and creates its schema.
// MaxRows caps retained evaluations; non-positive means 10000.
func New(cfg domain.HistoryConfig) (*SQLRepository, error) {
	db, err := openSQLite()
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = 10000
	}

	repo := &SQLRepository{
		db:      db,
		maxRows: maxRows,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveEvaluation stores a result and prunes the oldest rows beyond MaxRows.
func (r *SQLRepository) SaveEvaluation(ctx context.Context, result *domain.FraudResult) error {
	if result == nil || result.EvaluationID == "" {
		return fmt.Errorf("evaluation id is required")
	}

	triggers, err := json.Marshal(result.TriggeredRules)
	if err != nil {
		return fmt.Errorf("failed to marshal triggered rules: %w", err)
	}
	var faults []byte
	if len(result.Faults) > 0 {
		if faults, err = json.Marshal(result.Faults); err != nil {
			return fmt.Errorf("failed to marshal faults: %w", err)
		}
	}

	query := `
		INSERT INTO evaluations (
			id, user_id, risk_level, total_score, triggered_rules, faults, timestamp, duration_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := r.db.ExecContext(ctx, query,
		result.EvaluationID, result.UserID, string(result.RiskLevel), result.TotalScore,
		string(triggers), string(faults),
		result.Timestamp.UTC().Format(time.RFC3339Nano), result.DurationMs,
	); err != nil {
		return fmt.Errorf("failed to save evaluation %s: %w", result.EvaluationID, err)
	}

	prune := `DELETE FROM evaluations WHERE seq <= (SELECT MAX(seq) FROM evaluations) - ?`
	if _, err := r.db.ExecContext(ctx, prune, r.maxRows); err != nil {
		return fmt.Errorf("failed to prune evaluations: %w", err)
	}

	return nil
}

// GetEvaluation retrieves an evaluation by ID.
func (r *SQLRepository) GetEvaluation(ctx context.Context, id string) (*domain.FraudResult, error) {
	query := `
		SELECT id, user_id, risk_level, total_score, triggered_rules, faults, timestamp, duration_ms
		FROM evaluations
		WHERE id = ?
	`

	result, err := scanEvaluation(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListEvaluations returns the newest evaluations first, optionally for one
// user. limit defaults to 50 and is capped at 1000.
func (r *SQLRepository) ListEvaluations(ctx context.Context, userID string, limit int) ([]*domain.FraudResult, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	query := `
		SELECT id, user_id, risk_level, total_score, triggered_rules, faults, timestamp, duration_ms
		FROM evaluations
		WHERE (? = '' OR user_id = ?)
		ORDER BY seq DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.FraudResult, 0)
	for rows.Next() {
		result, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// Count returns the number of retained evaluations.
func (r *SQLRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM evaluations`).Scan(&n)
	return n, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(s scanner) (*domain.FraudResult, error) {
	var result domain.FraudResult
	var riskLevel, triggers, ts string
	var faults sql.NullString

	if err := s.Scan(
		&result.EvaluationID, &result.UserID, &riskLevel, &result.TotalScore,
		&triggers, &faults, &ts, &result.DurationMs,
	); err != nil {
		return nil, err
	}

	result.RiskLevel = domain.RiskLevel(riskLevel)
	if err := json.Unmarshal([]byte(triggers), &result.TriggeredRules); err != nil {
		return nil, fmt.Errorf("failed to parse triggered rules for %s: %w", result.EvaluationID, err)
	}
	if faults.Valid && faults.String != "" {
		if err := json.Unmarshal([]byte(faults.String), &result.Faults); err != nil {
			return nil, fmt.Errorf("failed to parse faults for %s: %w", result.EvaluationID, err)
		}
	}

	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp for %s: %w", result.EvaluationID, err)
	}
	result.Timestamp = t

	return &result, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection, discarding the history.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}
