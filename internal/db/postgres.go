package db

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rawblock/ring-engine/pkg/models"
)

// schemaSQL is compiled into the binary so schema init works from any
// working directory.
//
//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("run not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

// Connect initializes the connection pool to PostgreSQL using pgx
func Connect(ctx context.Context, connStr string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping failed: %w", err)
	}

	log.Println("[DB] Connected to PostgreSQL report store")
	return &PostgresStore{pool: pool}, nil
}

// Close gracefully closes the connection pool
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// InitSchema executes the embedded schema.sql DDL statements.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema migrations: %w", err)
	}

	log.Println("[DB] Fraud ring schema initialized")
	return nil
}

// SaveRun persists a completed run: the full report as JSONB plus the
// normalized ring, member and account rows, in one transaction.
func (s *PostgresStore) SaveRun(ctx context.Context, run *models.AnalysisRun) error {
	if run.Report == nil {
		return fmt.Errorf("save run %s: nil report", run.RunID)
	}
	reportJSON, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	insertRunSQL := `
		INSERT INTO analysis_runs
			(run_id, created_at, source, transaction_count, fingerprint,
			 accounts_analyzed, accounts_flagged, rings_detected, processing_secs, report)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	summary := run.Report.Summary
	_, err = tx.Exec(ctx, insertRunSQL,
		run.RunID, run.CreatedAt, run.Source, run.TransactionCount, run.Fingerprint,
		summary.TotalAccountsAnalyzed, summary.SuspiciousAccountsFlagged,
		summary.FraudRingsDetected, summary.ProcessingTimeSeconds, reportJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis_runs: %w", err)
	}

	batch := &pgx.Batch{}
	for _, ring := range run.Report.FraudRings {
		batch.Queue(`
			INSERT INTO fraud_rings (run_id, ring_id, pattern_type, risk_score, member_count)
			VALUES ($1, $2, $3, $4, $5)`,
			run.RunID, ring.RingID, string(ring.PatternType), ring.RiskScore, len(ring.MemberAccounts))
		for pos, account := range ring.MemberAccounts {
			batch.Queue(`
				INSERT INTO ring_members (run_id, ring_id, position, account_id)
				VALUES ($1, $2, $3, $4)`,
				run.RunID, ring.RingID, pos, account)
		}
	}
	for _, acc := range run.Report.SuspiciousAccounts {
		batch.Queue(`
			INSERT INTO suspicious_accounts (run_id, account_id, suspicion_score, detected_patterns, ring_id)
			VALUES ($1, $2, $3, $4, $5)`,
			run.RunID, acc.AccountID, acc.SuspicionScore, acc.DetectedPatterns, acc.RingID)
	}

	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert report rows: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetRun loads a run with its full report.
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*models.AnalysisRun, error) {
	sql := `
		SELECT run_id::text, created_at, source, transaction_count, fingerprint, report
		FROM analysis_runs
		WHERE run_id = $1
	`
	var run models.AnalysisRun
	var reportJSON []byte
	err := s.pool.QueryRow(ctx, sql, runID).Scan(
		&run.RunID, &run.CreatedAt, &run.Source, &run.TransactionCount, &run.Fingerprint, &reportJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	run.Report = &models.DetectionReport{}
	if err := json.Unmarshal(reportJSON, run.Report); err != nil {
		return nil, fmt.Errorf("decode stored report %s: %w", runID, err)
	}
	return &run, nil
}

// ListRuns pages through run summaries, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, page, limit int) ([]models.RunSummary, int, error) {
	page, limit = NormalizePage(page, limit)
	offset := (page - 1) * limit

	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_runs`).Scan(&totalCount); err != nil {
		return nil, 0, err
	}

	dataSQL := `
		SELECT run_id::text, created_at, source, transaction_count,
		       accounts_flagged, rings_detected, processing_secs
		FROM analysis_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := s.pool.Query(ctx, dataSQL, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	runs := make([]models.RunSummary, 0)
	for rows.Next() {
		var r models.RunSummary
		if err := rows.Scan(&r.RunID, &r.CreatedAt, &r.Source, &r.TransactionCount,
			&r.SuspiciousAccounts, &r.FraudRings, &r.ProcessingTimeSeconds); err != nil {
			return nil, 0, err
		}
		runs = append(runs, r)
	}
	if rows.Err() != nil {
		return nil, 0, rows.Err()
	}
	return runs, totalCount, nil
}

// AccountHistory returns the runs in which an account was flagged, newest first.
func (s *PostgresStore) AccountHistory(ctx context.Context, accountID string, limit int) ([]models.AccountVerdict, error) {
	_, limit = NormalizePage(1, limit)
	sql := `
		SELECT sa.run_id::text, r.created_at, sa.account_id, sa.suspicion_score, sa.detected_patterns, sa.ring_id
		FROM suspicious_accounts sa
		JOIN analysis_runs r ON r.run_id = sa.run_id
		WHERE sa.account_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2
	`
	rows, err := s.pool.Query(ctx, sql, accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	history := make([]models.AccountVerdict, 0)
	for rows.Next() {
		var a models.AccountVerdict
		if err := rows.Scan(&a.RunID, &a.CreatedAt, &a.AccountID, &a.SuspicionScore, &a.DetectedPatterns, &a.RingID); err != nil {
			return nil, err
		}
		history = append(history, a)
	}
	return history, rows.Err()
}

// SaveShadowResult writes a shadow comparison. Shadow output never reaches
// the production tables.
func (s *PostgresStore) SaveShadowResult(ctx context.Context, c *models.ShadowComparison) error {
	sql := `INSERT INTO shadow_results
		(experiment, fingerprint, production_flagged, shadow_flagged, production_rings, shadow_rings,
		 adjusted_rand_index, variation_of_info, flagged_jaccard, diverged, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.pool.Exec(ctx, sql,
		c.Experiment, c.Fingerprint,
		c.ProductionFlagged, c.ShadowFlagged,
		c.ProductionRings, c.ShadowRings,
		c.AdjustedRandIndex, c.VariationOfInfo, c.FlaggedJaccard,
		c.Diverged, c.CreatedAt,
	)
	return err
}

// ShadowDrift aggregates stored comparisons for an experiment.
func (s *PostgresStore) ShadowDrift(ctx context.Context, experiment string) (*models.DriftReport, error) {
	sql := `SELECT
		COUNT(*),
		COUNT(*) FILTER (WHERE diverged),
		COALESCE(AVG(adjusted_rand_index), 0),
		COALESCE(AVG(shadow_flagged - production_flagged), 0)
	FROM shadow_results WHERE experiment = $1`

	report := &models.DriftReport{Experiment: experiment}
	err := s.pool.QueryRow(ctx, sql, experiment).Scan(
		&report.TotalRuns, &report.Divergences, &report.AvgRandIndex, &report.AvgFlaggedDelta)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// NormalizePage clamps pagination input: page >= 1, limit in [1, 500]
// with 50 as the default.
func NormalizePage(page, limit int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if page < 1 {
		page = 1
	}
	return page, limit
}
