package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/your-org/inspectline/internal/config"
)

// CycleRecord is one row of the per-trigger-cycle statistics ledger.
type CycleRecord struct {
	ID              uuid.UUID
	Timestamp       time.Time
	Passed          bool
	TargetCountSeen int
	TotalDetections int
	Reason          string
	UsedRole        string
	UsedModelName   string
	WasFallback     bool
	PreprocessMS    float64
	InferenceMS     float64
	PostprocessMS   float64
	TotalMS         float64
	FPS             float64
	PrimaryHit      int64
	Aux1Hit         int64
	Aux2Hit         int64
	ImagePath       string
}

// StatsStore is the ledger collaborator interface; PostgresStore is
// the concrete adapter.
type StatsStore interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
	RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error)
	Summary(ctx context.Context) (total, passed, failed int, err error)
	Close()
	Ping(ctx context.Context) error
}

// PostgresStore persists the cycle ledger in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects and verifies the connection with a ping.
func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RecordCycle inserts one completed trigger cycle's final verdict,
// timings, and cascade counters. Intermediate retry attempts are
// never recorded; the Orchestrator calls this once per cycle.
func (s *PostgresStore) RecordCycle(ctx context.Context, rec CycleRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO cycle_records (
			id, ts, passed, target_count_seen, total_detections, reason,
			used_role, used_model_name, was_fallback,
			preprocess_ms, inference_ms, postprocess_ms, total_ms, fps,
			primary_hit, aux1_hit, aux2_hit, image_path
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		rec.ID, rec.Timestamp, rec.Passed, rec.TargetCountSeen, rec.TotalDetections, rec.Reason,
		rec.UsedRole, rec.UsedModelName, rec.WasFallback,
		rec.PreprocessMS, rec.InferenceMS, rec.PostprocessMS, rec.TotalMS, rec.FPS,
		rec.PrimaryHit, rec.Aux1Hit, rec.Aux2Hit, rec.ImagePath,
	)
	if err != nil {
		return fmt.Errorf("record cycle: %w", err)
	}
	return nil
}

// RecentCycles returns the most recent cycles, newest first, for the
// operator UI's history view.
func (s *PostgresStore) RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, ts, passed, target_count_seen, total_detections, reason,
			used_role, used_model_name, was_fallback,
			preprocess_ms, inference_ms, postprocess_ms, total_ms, fps,
			primary_hit, aux1_hit, aux2_hit, image_path
		 FROM cycle_records ORDER BY ts DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list cycles: %w", err)
	}
	defer rows.Close()

	var out []CycleRecord
	for rows.Next() {
		var rec CycleRecord
		if err := rows.Scan(
			&rec.ID, &rec.Timestamp, &rec.Passed, &rec.TargetCountSeen, &rec.TotalDetections, &rec.Reason,
			&rec.UsedRole, &rec.UsedModelName, &rec.WasFallback,
			&rec.PreprocessMS, &rec.InferenceMS, &rec.PostprocessMS, &rec.TotalMS, &rec.FPS,
			&rec.PrimaryHit, &rec.Aux1Hit, &rec.Aux2Hit, &rec.ImagePath,
		); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Summary returns the lifetime total/passed/failed cycle counts
// backing the operator UI's stats panel.
func (s *PostgresStore) Summary(ctx context.Context) (total, passed, failed int, err error) {
	err = s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE passed), COUNT(*) FILTER (WHERE NOT passed) FROM cycle_records`,
	).Scan(&total, &passed, &failed)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, 0, 0, nil
		}
		return 0, 0, 0, fmt.Errorf("summary: %w", err)
	}
	return total, passed, failed, nil
}

// Schema is the DDL RecordCycle/RecentCycles/Summary expect; applied
// by an operator migration step, not by this package at runtime.
const Schema = `
CREATE TABLE IF NOT EXISTS cycle_records (
	id                 UUID PRIMARY KEY,
	ts                 TIMESTAMPTZ NOT NULL,
	passed             BOOLEAN NOT NULL,
	target_count_seen  INTEGER NOT NULL,
	total_detections   INTEGER NOT NULL,
	reason             TEXT NOT NULL,
	used_role          TEXT NOT NULL,
	used_model_name    TEXT NOT NULL,
	was_fallback       BOOLEAN NOT NULL,
	preprocess_ms      DOUBLE PRECISION NOT NULL,
	inference_ms       DOUBLE PRECISION NOT NULL,
	postprocess_ms     DOUBLE PRECISION NOT NULL,
	total_ms           DOUBLE PRECISION NOT NULL,
	fps                DOUBLE PRECISION NOT NULL,
	primary_hit        BIGINT NOT NULL,
	aux1_hit           BIGINT NOT NULL,
	aux2_hit           BIGINT NOT NULL,
	image_path         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS cycle_records_ts_idx ON cycle_records (ts DESC);
`
