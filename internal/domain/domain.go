// Package domain holds the typed records shared by every component of the
// medical-learning core. Dynamic dicts and JSON blobs at the source are
// replaced here by tagged records with explicit schemas at the boundary;
// JSON is retained only for provenance metadata that logic never inspects.
package domain

import "time"

// MaterialStatus is the lifecycle state of an uploaded Material.
type MaterialStatus string

const (
	MaterialPending    MaterialStatus = "pending"
	MaterialProcessing MaterialStatus = "processing"
	MaterialCompleted  MaterialStatus = "completed"
	MaterialFailed     MaterialStatus = "failed"
)

// Material is one uploaded study document.
type Material struct {
	ID               string
	OwnerID          string
	OriginalFilename string
	StoredLocation   string // URI into internal/objectstore
	ContentType      string
	Status           MaterialStatus
	ChunkCount       int
	ErrorMessage     string
	Archived         bool
	CreatedAt        time.Time
}

// Chunk is a semantic fragment of a Material's text, immutable once created.
type Chunk struct {
	ID               string
	MaterialID       string
	OwnerID          string
	Ordinal          int // dense from 0, unique within Material
	CharStart        int
	CharEnd          int // end > start
	PageHint         *int
	Text             string
	Embedding        []float32
	EmbeddingDim     int
	SectionHeading   string
	CreatedAt        time.Time
}

// MessageRole is the speaker of a chat Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Citation ties an assistant Message to the retrieved Chunk that grounded it.
type Citation struct {
	ChunkID    string
	Source     string
	Page       *int
	Similarity float64
}

// Conversation is an ordered sequence of Messages belonging to one User.
type Conversation struct {
	ID            string
	OwnerID       string
	Title         string
	CreatedAt     time.Time
	LastMessageAt time.Time
}

// Message is one turn in a Conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	Citations      []Citation // user messages never carry citations
	Interrupted    bool
	CreatedAt      time.Time
}

// Difficulty is the closed difficulty tag stored on a Question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyNBME   Difficulty = "nbme"
)

// DifficultyFromLevel maps the 1-5 generator input to the closed Difficulty
// enum: {1->easy, 2->medium, 3->medium, 4->hard, 5->nbme}.
func DifficultyFromLevel(d int) Difficulty {
	switch d {
	case 1:
		return DifficultyEasy
	case 2, 3:
		return DifficultyMedium
	case 4:
		return DifficultyHard
	default:
		return DifficultyNBME
	}
}

// DifficultyMultiplier returns M(difficulty) used in the XP formula.
func DifficultyMultiplier(d Difficulty) float64 {
	switch d {
	case DifficultyEasy:
		return 1.0
	case DifficultyMedium:
		return 1.5
	case DifficultyHard:
		return 2.0
	case DifficultyNBME:
		return 2.5
	default:
		return 1.0
	}
}

// Question is one NBME-style multiple-choice item.
type Question struct {
	ID                 string
	OwnerID            string
	SourceMaterialID   string // optional, may be empty
	Vignette           string
	Options            [4]string
	CorrectIndex       int // [0,4)
	Explanation        string
	Topic              string
	Subtopic           string
	Difficulty         Difficulty
	PredictedDifficulty int // [1,5], 0 means unset
	QualityScore       float64
	IsVerified         bool
	IsFlagged          bool
	TimesAnswered      int
	TimesCorrect       int
	SourceChunkIDs     []string
	GenerationModel    string
	GenerationMetadata map[string]any
	DuplicateHash      string
	CreatedAt          time.Time
}

// ReviewStatus is the derived SM-2 scheduling state of a card.
type ReviewStatus string

const (
	ReviewNew       ReviewStatus = "new"
	ReviewLearning  ReviewStatus = "learning"
	ReviewReviewing ReviewStatus = "reviewing"
	ReviewMastered  ReviewStatus = "mastered"
)

// SM2State is the per-(user,question) spaced-repetition state. A value
// type: each grading call is a pure function (prevState, quality) ->
// nextState, with persistence wrapping the read-compute-write.
type SM2State struct {
	IntervalDays int     // >= 1
	Easiness     float64 // in [1.3, 2.5]
	Repetition   int     // >= 0
}

// InitialSM2State is the state of a fresh card with no prior Attempt.
func InitialSM2State() SM2State {
	return SM2State{IntervalDays: 1, Easiness: 2.5, Repetition: 0}
}

// Attempt is one submitted answer to a Question.
type Attempt struct {
	ID               string
	OwnerID          string
	QuestionID       string
	SelectedIndex    int
	IsCorrect        bool
	Confidence       int // [1,5]
	TimeTakenSeconds int // [1,3600]
	XPEarned         int
	SM2              SM2State
	NextReviewDate   time.Time
	ReviewStatus     ReviewStatus
	AnsweredAt       time.Time
}

// XPSource is the closed set of ledger entry sources.
type XPSource string

const (
	XPQuestionAnswered  XPSource = "question_answered"
	XPStreakBonus       XPSource = "streak_bonus"
	XPAchievementUnlock XPSource = "achievement_unlock"
	XPMilestoneComplete XPSource = "milestone_complete"
	XPReviewComplete    XPSource = "review_complete"
	XPDailyGoalMet      XPSource = "daily_goal_met"
)

// XPLedgerEntry is one append-only ledger write. A user's XP total is the
// sum of their ledger entries; never recomputed from Attempts.
type XPLedgerEntry struct {
	ID             string
	OwnerID        string
	Amount         int // signed
	Source         XPSource
	IdempotencyKey string
	Metadata       map[string]any
	CreatedAt      time.Time
}

// LevelForXP maps a cumulative XP total to a level using the inverse of
// xp_for_level(L) = floor(1000 * L^1.5). Implemented in package xp, kept
// here only as the glossary pointer for the ledger invariant.
