// Package analytics streams graded Attempts and XP ledger writes to
// ClickHouse for time-series reporting (answers-per-day, XP-earned-per-day).
// It is purely an observability sink: writes are best-effort and never
// participate in the ledger invariant computed from Postgres/memstore.
package analytics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/rs/zerolog/log"

	"medtutor/internal/config"
)

// Sink streams Attempt/XP events to ClickHouse. A nil *Sink is valid and a
// no-op, so callers that don't configure a DSN don't need a branch.
type Sink struct {
	conn    clickhouse.Conn
	table   string
	timeout time.Duration
}

// New opens the ClickHouse connection and ensures the attempts table exists.
// Returns (nil, nil) when dsn is empty, so callers can treat an unconfigured
// sink the same as a configured-but-best-effort one.
func New(ctx context.Context, obs config.ObsConfig) (*Sink, error) {
	dsn := strings.TrimSpace(obs.ClickHouseDSN)
	if dsn == "" {
		return nil, nil
	}

	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse clickhouse dsn: %w", err)
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse connection: %w", err)
	}

	const timeout = 5 * time.Second
	ctxPing, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := conn.Ping(ctxPing); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	s := &Sink{conn: conn, table: "question_attempts", timeout: timeout}
	if err := s.ensureTable(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	ctxTimeout, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	sql := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	OwnerID LowCardinality(String),
	QuestionID String,
	Topic LowCardinality(String),
	IsCorrect Bool,
	XPEarned Int32,
	AnsweredAt DateTime64(3)
) ENGINE = MergeTree()
ORDER BY (OwnerID, AnsweredAt)
TTL AnsweredAt + INTERVAL 180 DAY
`, s.table)
	if err := s.conn.Exec(ctxTimeout, sql); err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// Close releases the underlying connection. Safe to call on a nil Sink.
func (s *Sink) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

// RecordAttempt streams one graded Attempt. It never blocks the caller's
// transaction: the insert runs in a detached goroutine with its own timeout,
// and a failure is logged, never returned.
func (s *Sink) RecordAttempt(ownerID, questionID, topic string, isCorrect bool, xpEarned int, answeredAt time.Time) {
	if s == nil || s.conn == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		query := fmt.Sprintf("INSERT INTO %s (OwnerID, QuestionID, Topic, IsCorrect, XPEarned, AnsweredAt) VALUES (?, ?, ?, ?, ?, ?)", s.table)
		if err := s.conn.AsyncInsert(ctx, query, false, ownerID, questionID, topic, isCorrect, xpEarned, answeredAt); err != nil {
			log.Warn().Err(err).Msg("analytics: record attempt failed")
		}
	}()
}
