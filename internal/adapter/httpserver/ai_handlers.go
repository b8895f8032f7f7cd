package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/fairyhunter13/ai-interviewer/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interviewer/internal/domain"
	"github.com/fairyhunter13/ai-interviewer/internal/usecase"
)

const (
	mimePDF  = "application/pdf"
	mimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// resumeFileType maps an upload to "pdf" or "docx" from its extension and
// sniffed content; both must agree.
func resumeFileType(fileName string, data []byte) (string, bool) {
	mt := mimetype.Detect(data)
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".pdf":
		return "pdf", mt.Is(mimePDF)
	case ".docx":
		return "docx", mt.Is(mimeDOCX)
	}
	return "", false
}

// NextQuestionHandler returns the next question of a tier, excluding the
// ones already asked.
func (s *Server) NextQuestionHandler() http.HandlerFunc {
	type request struct {
		Difficulty domain.Difficulty `json:"difficulty" validate:"required"`
		Asked      []string          `json:"asked"`
		ResumeText string            `json:"resumeText"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if details, err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, details)
			return
		}
		q, err := s.Questions.Next(r.Context(), domain.QuestionRequest{
			Difficulty: req.Difficulty, Asked: req.Asked, ResumeText: req.ResumeText,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			usecase.NextQuestion
		}{true, q})
	}
}

// EvaluateAnswerHandler scores one answer. Upstream failures never surface
// as errors; the evaluation carries error "service_unavailable" instead.
func (s *Server) EvaluateAnswerHandler() http.HandlerFunc {
	type request struct {
		Question   string            `json:"question" validate:"required"`
		Answer     string            `json:"answer"`
		Difficulty domain.Difficulty `json:"difficulty" validate:"required"`
		TimeTaken  int               `json:"timeTaken" validate:"gte=0"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if details, err := decodeJSON(w, r, &req); err != nil {
			s.writeError(w, r, err, details)
			return
		}
		ev, err := s.Evaluate.Evaluate(r.Context(), domain.AnswerInput{
			Question: req.Question, Answer: req.Answer, Difficulty: req.Difficulty, TimeTaken: req.TimeTaken,
		})
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		if ev.Error != "" {
			observability.RecordEvaluationFallback(ev.Error)
		}
		observability.ObserveAnswerScore(string(req.Difficulty), ev.Provider, ev.Score)
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			domain.Evaluation
		}{true, ev})
	}
}

// ParseResumeHandler accepts a multipart "resume" upload (PDF or DOCX),
// extracts its text and detects the candidate's contact details.
func (s *Server) ParseResumeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			s.writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}
		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024*1024)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
					Message: fmt.Sprintf("File too large (max %d MB)", s.Cfg.MaxUploadMB),
				})
				return
			}
			s.writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		f, h, err := r.FormFile("resume")
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: resume file required", domain.ErrInvalidArgument), map[string]string{"field": "resume"})
			return
		}
		defer func() { _ = f.Close() }()
		if h.Size > maxBytes {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Message: fmt.Sprintf("File too large (max %d MB)", s.Cfg.MaxUploadMB),
			})
			return
		}
		data, err := io.ReadAll(f)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: resume read: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		fileType, ok := resumeFileType(h.Filename, data)
		if !ok {
			writeJSON(w, http.StatusUnsupportedMediaType, errorBody{
				Message: "Please upload a PDF or DOCX file",
				Details: map[string]string{"filename": h.Filename, "mime": mimetype.Detect(data).String()},
			})
			return
		}
		parsed, err := s.Resumes.Parse(r.Context(), h.Filename, fileType, data)
		if err != nil {
			s.writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, struct {
			Success bool `json:"success"`
			usecase.ParsedResume
		}{true, parsed})
	}
}
