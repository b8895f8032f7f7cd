package httpserver

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

// CreateInterviewHandler starts an attempt for a user, or resumes the open one.
func (s *Server) CreateInterviewHandler() http.HandlerFunc {
	type request struct {
		Email         string                `json:"email" validate:"required"`
		CandidateInfo *domain.CandidateInfo `json:"candidateInfo"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if details, err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, details)
			return
		}
		res, err := s.Tracker.StartAttempt(r.Context(), req.Email, req.CandidateInfo)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		status, msg := http.StatusCreated, "Interview created successfully"
		if res.Resumed {
			status, msg = http.StatusOK, "Unfinished interview resumed"
			observability.RecordAttemptTransition("resumed")
		} else {
			observability.RecordAttemptTransition("started")
		}
		a := res.Attempt
		writeJSON(w, status, map[string]any{
			"success": true,
			"message": msg,
			"resumed": res.Resumed,
			"interview": map[string]any{
				"id":            a.ID,
				"candidateInfo": a.Candidate,
				"startedAt":     a.StartedAt,
				"questions":     a.Questions,
				"resumeCount":   a.ResumeCount,
			},
		})
	}
}

// UnfinishedInterviewHandler returns the open attempt of a user or null.
func (s *Server) UnfinishedInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, ok, err := s.Tracker.GetOpenAttempt(r.Context(), emailParam(r))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		var interview any
		if ok {
			interview = a
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "interview": interview})
	}
}

// RecordQuestionHandler upserts one question slot of an open attempt.
func (s *Server) RecordQuestionHandler() http.HandlerFunc {
	type request struct {
		QuestionData *domain.SlotPatch `json:"questionData" validate:"required"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if details, err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, details)
			return
		}
		slot, err := s.Tracker.RecordQuestion(r.Context(), chi.URLParam(r, "id"), *req.QuestionData)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Question updated successfully", "question": slot})
	}
}

// CompleteInterviewHandler finalises an attempt with the submitted answers.
func (s *Server) CompleteInterviewHandler() http.HandlerFunc {
	type request struct {
		AllAnswers       []domain.SlotPatch `json:"allAnswers"`
		CreateNewSession bool               `json:"createNewSession"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if details, err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, details)
			return
		}
		id := chi.URLParam(r, "id")
		a, err := s.Tracker.CompleteAttempt(r.Context(), id, req.AllAnswers, req.CreateNewSession)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		if a.ID != id {
			observability.RecordAttemptTransition("abandoned")
		}
		observability.RecordAttemptTransition("completed")
		body := map[string]any{
			"id":           a.ID,
			"totalScore":   a.TotalScore,
			"averageScore": a.AverageScore,
			"status":       a.Status,
			"completedAt":  a.CompletedAt,
			"duration":     a.Duration,
		}
		if a.ResumedFrom != "" {
			body["resumedFrom"] = a.ResumedFrom
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Interview completed successfully", "interview": body})
	}
}

// ListInterviewsHandler is the interviewer dashboard listing.
func (s *Server) ListInterviewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, err := intQuery(q.Get("page"), "page")
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		limit, err := intQuery(q.Get("limit"), "limit")
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		res, err := s.Dashboard.ListAttempts(r.Context(), usecase.ListQuery{
			Status:    q.Get("status"),
			Search:    q.Get("search"),
			SortBy:    q.Get("sortBy"),
			SortOrder: q.Get("sortOrder"),
			Page:      page,
			Limit:     limit,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success":    true,
			"count":      res.Count,
			"total":      res.Total,
			"page":       res.Page,
			"interviews": nonNil(res.Items),
		})
	}
}

// StatsHandler returns dashboard aggregates.
func (s *Server) StatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := s.Dashboard.Stats(r.Context())
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "stats": st})
	}
}

// UserInterviewsHandler lists every attempt of one user.
func (s *Server) UserInterviewsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := s.Tracker.ListForUser(r.Context(), emailParam(r))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "interviews": nonNil(rows)})
	}
}

// GetInterviewHandler returns one attempt by id.
func (s *Server) GetInterviewHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := s.Tracker.GetAttempt(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "interview": a})
	}
}

// SummaryHandler returns the final score breakdown and a short assessment.
func (s *Server) SummaryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		a, err := s.Tracker.GetAttempt(ctx, chi.URLParam(r, "id"))
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		sum, err := s.Evaluate.Summarize(ctx, a)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		if sum.Error != "" {
			observability.RecordEvaluationFallback("summary_" + sum.Error)
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			usecase.Summary
		}{true, sum})
	}
}

func intQuery(v, name string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidArgument, name)
	}
	return n, nil
}

func nonNil(rows []domain.Attempt) []domain.Attempt {
	if rows == nil {
		return []domain.Attempt{}
	}
	return rows
}
