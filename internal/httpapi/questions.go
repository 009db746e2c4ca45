package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"medtutor/internal/domain"
	"medtutor/internal/errs"
	"medtutor/internal/grader"
	"medtutor/internal/questiongen"
	"medtutor/internal/rag/retrieve"
)

// questionView is a Question with correct_index and explanation stripped,
// per SPEC_FULL.md §6 — a student must not see the answer before submitting.
type questionView struct {
	ID         string   `json:"id"`
	Vignette   string   `json:"vignette"`
	Options    [4]string `json:"options"`
	Topic      string   `json:"topic"`
	Subtopic   string   `json:"subtopic,omitempty"`
	Difficulty string   `json:"difficulty"`
}

func toQuestionView(q domain.Question) questionView {
	return questionView{
		ID:         q.ID,
		Vignette:   q.Vignette,
		Options:    q.Options,
		Topic:      q.Topic,
		Subtopic:   q.Subtopic,
		Difficulty: string(q.Difficulty),
	}
}

type generateRequest struct {
	MaterialID    string `json:"material_id,omitempty"`
	Topic         string `json:"topic"`
	NumQuestions  int    `json:"num_questions"`
	Difficulty    int    `json:"difficulty"`
	UserLevel     int    `json:"user_level"`
	UseRAG        bool   `json:"use_rag"`
}

func (s *Server) handleGenerateQuestions(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}
	if req.Topic == "" {
		respondError(w, errs.NewValidation("topic", "must not be empty"))
		return
	}

	var ragResult retrieve.Result
	if req.UseRAG {
		ragResult, err = s.rag.RetrieveContext(r.Context(), owner, req.Topic, retrieve.Options{MaterialID: req.MaterialID})
		if err != nil {
			respondError(w, err)
			return
		}
	}

	questions, err := s.generator.Generate(r.Context(), questiongen.Request{
		OwnerID:      owner,
		Topic:        req.Topic,
		Difficulty:   req.Difficulty,
		Count:        req.NumQuestions,
		StudentLevel: req.UserLevel,
		Context:      ragResult,
		Model:        s.defaultModel,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	views := make([]questionView, len(questions))
	for i, q := range questions {
		views[i] = toQuestionView(q)
	}
	respondJSON(w, http.StatusCreated, views)
}

func (s *Server) handleGetQuestion(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	id := r.PathValue("id")
	q, err := s.questions.GetQuestion(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	if q.OwnerID != "" && q.OwnerID != owner {
		respondError(w, errs.NewOwnership("question", id))
		return
	}
	respondJSON(w, http.StatusOK, toQuestionView(q))
}

type answerRequest struct {
	SelectedIndex    int `json:"selected_index"`
	Confidence       int `json:"confidence"`
	TimeTakenSeconds int `json:"time_taken_seconds"`
}

type answerResponse struct {
	IsCorrect      bool                `json:"is_correct"`
	CorrectIndex   int                 `json:"correct_index"`
	Explanation    string              `json:"explanation"`
	XPEarned       int                 `json:"xp_earned"`
	NextReviewDate string              `json:"next_review_date"`
	ReviewStatus   domain.ReviewStatus `json:"review_status"`
}

func (s *Server) handleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	id := r.PathValue("id")

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]any{"error": "malformed request body"})
		return
	}

	result, err := s.grader.Submit(r.Context(), grader.Submission{
		OwnerID:          owner,
		QuestionID:       id,
		SelectedIndex:    req.SelectedIndex,
		Confidence:       req.Confidence,
		TimeTakenSeconds: req.TimeTakenSeconds,
	})
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, answerResponse{
		IsCorrect:      result.IsCorrect,
		CorrectIndex:   result.CorrectIndex,
		Explanation:    result.Explanation,
		XPEarned:       result.XPEarned,
		NextReviewDate: result.NextReviewDate.UTC().Format("2006-01-02T15:04:05Z07:00"),
		ReviewStatus:   result.ReviewStatus,
	})
}

type dueItemView struct {
	Question       questionView        `json:"question"`
	NextReviewDate string              `json:"next_review_date"`
	ReviewStatus   domain.ReviewStatus `json:"review_status"`
}

func (s *Server) handleDueReviews(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	due, err := s.questions.DueForReview(r.Context(), owner, time.Now().UTC())
	if err != nil {
		respondError(w, err)
		return
	}
	views := make([]dueItemView, len(due))
	for i, d := range due {
		views[i] = dueItemView{
			Question:       toQuestionView(d.Question),
			NextReviewDate: d.NextReviewDate.UTC().Format("2006-01-02T15:04:05Z07:00"),
			ReviewStatus:   d.ReviewStatus,
		}
	}
	respondJSON(w, http.StatusOK, map[string]any{"due": views})
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	owner, err := ownerID(r)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
		return
	}
	id := r.PathValue("id")
	if err := s.questions.DeleteQuestion(r.Context(), owner, id); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
