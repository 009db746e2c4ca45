// Package store defines the repository interfaces over the domain's
// relational entities, plus two interchangeable implementations selected at
// startup by internal/config: memstore (in-process, for tests and local
// dev) and pgstore (pgx/v5 + pgxpool, for real deployments).
package store

import (
	"context"
	"time"

	"medtutor/internal/domain"
)

// Materials is the repository for Material records and their Chunks.
type Materials interface {
	Init(ctx context.Context) error

	CreateMaterial(ctx context.Context, m domain.Material) (domain.Material, error)
	GetMaterial(ctx context.Context, ownerID, id string) (domain.Material, error)
	ListMaterials(ctx context.Context, ownerID string) ([]domain.Material, error)

	// TransitionPendingToProcessing atomically flips status pending->processing.
	// Returns ok=false without error if the Material was not in pending state
	// (the idempotent no-op case for a second enqueue call).
	TransitionPendingToProcessing(ctx context.Context, id string) (ok bool, err error)

	// DeleteChunksForMaterial removes any partial Chunks from a prior failed
	// run, used before re-running ingestion.
	DeleteChunksForMaterial(ctx context.Context, materialID string) error

	// CompleteIngestion persists the final Chunk set and flips the Material
	// to completed with chunk_count, in one transaction.
	CompleteIngestion(ctx context.Context, materialID string, chunks []domain.Chunk) error

	// FailIngestion flips the Material to failed and records errMsg.
	FailIngestion(ctx context.Context, materialID string, errMsg string) error

	GetChunks(ctx context.Context, materialID string) ([]domain.Chunk, error)
	GetChunksByIDs(ctx context.Context, ids []string) ([]domain.Chunk, error)
}

// Conversations is the repository for Conversation and Message records.
type Conversations interface {
	Init(ctx context.Context) error

	CreateConversation(ctx context.Context, c domain.Conversation) (domain.Conversation, error)
	GetConversation(ctx context.Context, ownerID, id string) (domain.Conversation, error)
	AppendMessage(ctx context.Context, msg domain.Message) (domain.Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error)
}

// Questions is the repository for Question records.
type Questions interface {
	Init(ctx context.Context) error

	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	GetQuestion(ctx context.Context, id string) (domain.Question, error)
	DeleteQuestion(ctx context.Context, ownerID, id string) error

	// HasDuplicateHash reports whether a Question with the given duplicate
	// hash already exists for this owner.
	HasDuplicateHash(ctx context.Context, ownerID, hash string) (bool, error)

	// DueForReview returns the due queue per the SM-2 scheduler's ordering:
	// ascending next_review_date, tie-break by question_id. A Question with
	// no Attempt history is always due (next_review_date treated as zero).
	DueForReview(ctx context.Context, ownerID string, asOf time.Time) ([]DueItem, error)

	// LatestAttempt returns the most recent Attempt for (owner, question), if
	// any, used to seed the next SM-2 transition.
	LatestAttempt(ctx context.Context, ownerID, questionID string) (domain.Attempt, bool, error)

	// RecordAttempt atomically: inserts the Attempt, conditionally increments
	// times_answered/times_correct on the Question, and appends the XP
	// ledger entry. All writes succeed together or none do.
	RecordAttempt(ctx context.Context, a domain.Attempt, ledgerEntry domain.XPLedgerEntry) error

	// RecentAttemptWithin reports whether an Attempt for (owner, question)
	// was recorded within the double-submit guard window, used as the
	// in-process fallback when Redis isn't configured.
	RecentAttemptWithin(ctx context.Context, ownerID, questionID string, windowSeconds int) (bool, error)
}

// DueItem pairs a Question with the scheduling state derived from its most
// recent Attempt. Scheduling state lives on Attempt, not Question, so the
// due queue is necessarily a join rather than a plain Question read.
type DueItem struct {
	Question       domain.Question
	NextReviewDate time.Time
	ReviewStatus   domain.ReviewStatus
}

// Ledger is the repository for XP ledger entries.
type Ledger interface {
	Init(ctx context.Context) error

	// SumXP returns the sum of a user's ledger entries — the only
	// permitted way to compute reported XP.
	SumXP(ctx context.Context, ownerID string) (int, error)
}
