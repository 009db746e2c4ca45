package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/store"
)

// Questions is the Postgres-backed implementation of store.Questions.
type Questions struct {
	pool *pgxpool.Pool
}

// NewQuestions returns a Questions repository bound to pool.
func NewQuestions(pool *pgxpool.Pool) *Questions {
	return &Questions{pool: pool}
}

func (s *Questions) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS questions (
    id UUID PRIMARY KEY,
    owner_id TEXT NOT NULL,
    source_material_id TEXT NOT NULL DEFAULT '',
    vignette TEXT NOT NULL,
    options JSONB NOT NULL,
    correct_index INTEGER NOT NULL,
    explanation TEXT NOT NULL DEFAULT '',
    topic TEXT NOT NULL DEFAULT '',
    subtopic TEXT NOT NULL DEFAULT '',
    difficulty TEXT NOT NULL,
    predicted_difficulty INTEGER NOT NULL DEFAULT 0,
    quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
    is_verified BOOLEAN NOT NULL DEFAULT FALSE,
    is_flagged BOOLEAN NOT NULL DEFAULT FALSE,
    times_answered INTEGER NOT NULL DEFAULT 0,
    times_correct INTEGER NOT NULL DEFAULT 0,
    source_chunk_ids JSONB NOT NULL DEFAULT '[]',
    generation_model TEXT NOT NULL DEFAULT '',
    generation_metadata JSONB NOT NULL DEFAULT '{}',
    duplicate_hash TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS questions_owner_idx ON questions(owner_id, created_at DESC);
CREATE UNIQUE INDEX IF NOT EXISTS questions_owner_duphash_idx ON questions(owner_id, duplicate_hash);

CREATE TABLE IF NOT EXISTS attempts (
    id UUID PRIMARY KEY,
    owner_id TEXT NOT NULL,
    question_id UUID NOT NULL REFERENCES questions(id) ON DELETE CASCADE,
    selected_index INTEGER NOT NULL,
    is_correct BOOLEAN NOT NULL,
    confidence INTEGER NOT NULL,
    time_taken_seconds INTEGER NOT NULL,
    xp_earned INTEGER NOT NULL,
    sm2_interval_days INTEGER NOT NULL,
    sm2_easiness DOUBLE PRECISION NOT NULL,
    sm2_repetition INTEGER NOT NULL,
    next_review_date TIMESTAMPTZ NOT NULL,
    review_status TEXT NOT NULL,
    answered_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS attempts_owner_question_idx ON attempts(owner_id, question_id, answered_at DESC);
CREATE INDEX IF NOT EXISTS attempts_owner_nextreview_idx ON attempts(owner_id, question_id, next_review_date);
`)
	return err
}

func (s *Questions) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	optsJSON, err := json.Marshal(q.Options)
	if err != nil {
		return domain.Question{}, err
	}
	chunksJSON, err := json.Marshal(q.SourceChunkIDs)
	if err != nil {
		return domain.Question{}, err
	}
	metaJSON, err := json.Marshal(q.GenerationMetadata)
	if err != nil {
		return domain.Question{}, err
	}

	row := s.pool.QueryRow(ctx, `
INSERT INTO questions (id, owner_id, source_material_id, vignette, options, correct_index, explanation,
    topic, subtopic, difficulty, predicted_difficulty, quality_score, is_verified, is_flagged,
    source_chunk_ids, generation_model, generation_metadata, duplicate_hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
RETURNING id, owner_id, source_material_id, vignette, options, correct_index, explanation, topic, subtopic,
    difficulty, predicted_difficulty, quality_score, is_verified, is_flagged, times_answered, times_correct,
    source_chunk_ids, generation_model, generation_metadata, duplicate_hash, created_at`,
		q.ID, q.OwnerID, q.SourceMaterialID, q.Vignette, optsJSON, q.CorrectIndex, q.Explanation,
		q.Topic, q.Subtopic, string(q.Difficulty), q.PredictedDifficulty, q.QualityScore, q.IsVerified, q.IsFlagged,
		chunksJSON, q.GenerationModel, metaJSON, q.DuplicateHash)
	return scanQuestion(row)
}

func (s *Questions) GetQuestion(ctx context.Context, id string) (domain.Question, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, owner_id, source_material_id, vignette, options, correct_index, explanation, topic, subtopic,
    difficulty, predicted_difficulty, quality_score, is_verified, is_flagged, times_answered, times_correct,
    source_chunk_ids, generation_model, generation_metadata, duplicate_hash, created_at
FROM questions WHERE id = $1`, id)
	q, err := scanQuestion(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Question{}, errs.NewOwnership("question", id)
	}
	return q, err
}

func (s *Questions) DeleteQuestion(ctx context.Context, ownerID, id string) error {
	cmd, err := s.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errs.NewOwnership("question", id)
	}
	return nil
}

func (s *Questions) HasDuplicateHash(ctx context.Context, ownerID, hash string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS(SELECT 1 FROM questions WHERE owner_id = $1 AND duplicate_hash = $2)`, ownerID, hash).Scan(&exists)
	return exists, err
}

func (s *Questions) DueForReview(ctx context.Context, ownerID string, asOf time.Time) ([]store.DueItem, error) {
	rows, err := s.pool.Query(ctx, `
SELECT q.id, q.owner_id, q.source_material_id, q.vignette, q.options, q.correct_index, q.explanation, q.topic,
    q.subtopic, q.difficulty, q.predicted_difficulty, q.quality_score, q.is_verified, q.is_flagged,
    q.times_answered, q.times_correct, q.source_chunk_ids, q.generation_model, q.generation_metadata,
    q.duplicate_hash, q.created_at,
    latest.next_review_date, latest.review_status
FROM questions q
LEFT JOIN LATERAL (
    SELECT next_review_date, review_status
    FROM attempts a
    WHERE a.question_id = q.id AND a.owner_id = q.owner_id
    ORDER BY a.answered_at DESC
    LIMIT 1
) latest ON true
WHERE q.owner_id = $1
  AND (latest.next_review_date IS NULL OR latest.next_review_date <= $2)
ORDER BY COALESCE(latest.next_review_date, TIMESTAMPTZ 'epoch') ASC, q.id ASC`, ownerID, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]store.DueItem, 0)
	for rows.Next() {
		var q domain.Question
		var nextReview *time.Time
		var reviewStatus *string
		var status string
		var optsJSON, chunksJSON, metaJSON []byte
		if err := rows.Scan(&q.ID, &q.OwnerID, &q.SourceMaterialID, &q.Vignette, &optsJSON, &q.CorrectIndex,
			&q.Explanation, &q.Topic, &q.Subtopic, &status, &q.PredictedDifficulty, &q.QualityScore,
			&q.IsVerified, &q.IsFlagged, &q.TimesAnswered, &q.TimesCorrect, &chunksJSON, &q.GenerationModel,
			&metaJSON, &q.DuplicateHash, &q.CreatedAt, &nextReview, &reviewStatus); err != nil {
			return nil, err
		}
		q.Difficulty = domain.Difficulty(status)
		if err := unmarshalQuestionJSON(&q, optsJSON, chunksJSON, metaJSON); err != nil {
			return nil, err
		}
		item := store.DueItem{Question: q, ReviewStatus: domain.ReviewNew}
		if nextReview != nil {
			item.NextReviewDate = *nextReview
		}
		if reviewStatus != nil {
			item.ReviewStatus = domain.ReviewStatus(*reviewStatus)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *Questions) LatestAttempt(ctx context.Context, ownerID, questionID string) (domain.Attempt, bool, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, owner_id, question_id, selected_index, is_correct, confidence, time_taken_seconds, xp_earned,
    sm2_interval_days, sm2_easiness, sm2_repetition, next_review_date, review_status, answered_at
FROM attempts WHERE owner_id = $1 AND question_id = $2 ORDER BY answered_at DESC LIMIT 1`, ownerID, questionID)
	a, err := scanAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Attempt{}, false, nil
	}
	if err != nil {
		return domain.Attempt{}, false, err
	}
	return a, true, nil
}

func (s *Questions) RecordAttempt(ctx context.Context, a domain.Attempt, ledgerEntry domain.XPLedgerEntry) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
INSERT INTO attempts (id, owner_id, question_id, selected_index, is_correct, confidence, time_taken_seconds,
    xp_earned, sm2_interval_days, sm2_easiness, sm2_repetition, next_review_date, review_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		a.ID, a.OwnerID, a.QuestionID, a.SelectedIndex, a.IsCorrect, a.Confidence, a.TimeTakenSeconds,
		a.XPEarned, a.SM2.IntervalDays, a.SM2.Easiness, a.SM2.Repetition, a.NextReviewDate, string(a.ReviewStatus)); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	correctDelta := 0
	if a.IsCorrect {
		correctDelta = 1
	}
	cmd, err := tx.Exec(ctx, `
UPDATE questions SET times_answered = times_answered + 1, times_correct = times_correct + $2
WHERE id = $1`, a.QuestionID, correctDelta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return errs.NewOwnership("question", a.QuestionID)
	}

	metaJSON, err := json.Marshal(ledgerEntry.Metadata)
	if err != nil {
		return err
	}
	if ledgerEntry.ID == "" {
		ledgerEntry.ID = uuid.NewString()
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO xp_ledger (id, owner_id, amount, source, idempotency_key, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (idempotency_key) DO NOTHING`,
		ledgerEntry.ID, ledgerEntry.OwnerID, ledgerEntry.Amount, string(ledgerEntry.Source), ledgerEntry.IdempotencyKey, metaJSON); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}

	return tx.Commit(ctx)
}

func (s *Questions) RecentAttemptWithin(ctx context.Context, ownerID, questionID string, windowSeconds int) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
SELECT EXISTS(
    SELECT 1 FROM attempts
    WHERE owner_id = $1 AND question_id = $2
      AND answered_at > NOW() - ($3 || ' seconds')::INTERVAL
)`, ownerID, questionID, windowSeconds).Scan(&exists)
	return exists, err
}

func scanQuestion(row pgx.Row) (domain.Question, error) {
	var q domain.Question
	var status string
	var optsJSON, chunksJSON, metaJSON []byte
	if err := row.Scan(&q.ID, &q.OwnerID, &q.SourceMaterialID, &q.Vignette, &optsJSON, &q.CorrectIndex,
		&q.Explanation, &q.Topic, &q.Subtopic, &status, &q.PredictedDifficulty, &q.QualityScore,
		&q.IsVerified, &q.IsFlagged, &q.TimesAnswered, &q.TimesCorrect, &chunksJSON, &q.GenerationModel,
		&metaJSON, &q.DuplicateHash, &q.CreatedAt); err != nil {
		return domain.Question{}, err
	}
	q.Difficulty = domain.Difficulty(status)
	if err := unmarshalQuestionJSON(&q, optsJSON, chunksJSON, metaJSON); err != nil {
		return domain.Question{}, err
	}
	return q, nil
}

func unmarshalQuestionJSON(q *domain.Question, optsJSON, chunksJSON, metaJSON []byte) error {
	if len(optsJSON) > 0 {
		if err := json.Unmarshal(optsJSON, &q.Options); err != nil {
			return err
		}
	}
	if len(chunksJSON) > 0 {
		if err := json.Unmarshal(chunksJSON, &q.SourceChunkIDs); err != nil {
			return err
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &q.GenerationMetadata); err != nil {
			return err
		}
	}
	return nil
}

func scanAttempt(row pgx.Row) (domain.Attempt, error) {
	var a domain.Attempt
	var status string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.QuestionID, &a.SelectedIndex, &a.IsCorrect, &a.Confidence,
		&a.TimeTakenSeconds, &a.XPEarned, &a.SM2.IntervalDays, &a.SM2.Easiness, &a.SM2.Repetition,
		&a.NextReviewDate, &status, &a.AnsweredAt); err != nil {
		return domain.Attempt{}, err
	}
	a.ReviewStatus = domain.ReviewStatus(status)
	return a, nil
}
