package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"classroom-quiz-service/internal/app"
	"classroom-quiz-service/internal/auth"
	"classroom-quiz-service/internal/domain"
	"classroom-quiz-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// QuizHandler serves the JSON quiz endpoints on top of QuizService.
type QuizHandler struct {
	service *app.QuizService
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewQuizHandler(service *app.QuizService, m *metrics.Metrics, logger *zap.Logger) *QuizHandler {
	return &QuizHandler{service: service, metrics: m, logger: logger}
}

type errorBody struct {
	Error string `json:"error"`
}

func (h *QuizHandler) SubmitAttempt(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	quizID := chi.URLParam(r, "quizId")

	var input app.SubmitAttemptInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.observe(metrics.OutcomeInvalid)
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	attempt, err := h.service.SubmitAttempt(r.Context(), principal, quizID, input)
	if err != nil {
		h.observe(submissionOutcome(err))
		h.writeServiceError(w, r, err, "Failed to submit quiz")
		return
	}
	h.observe(metrics.OutcomeAccepted)
	writeJSON(w, http.StatusOK, attempt)
}

func (h *QuizHandler) CreateQuiz(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	var input app.CreateQuizInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	quiz, err := h.service.CreateQuiz(r.Context(), principal, input)
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to create quiz")
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (h *QuizHandler) ListQuizzes(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())

	quizzes, err := h.service.ListQuizzes(r.Context(), principal, r.URL.Query().Get("subjectId"))
	if err != nil {
		h.writeServiceError(w, r, err, "Failed to fetch quizzes")
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (h *QuizHandler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveSubmission(outcome)
	}
}

// writeServiceError maps domain errors onto status codes. Anything unmapped is
// logged and reported with the generic fallback message.
func (h *QuizHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, domain.ErrQuizNotFound):
		writeError(w, http.StatusNotFound, "Quiz not found")
	case errors.Is(err, domain.ErrOutOfWindow):
		writeError(w, http.StatusBadRequest, "Quiz is not currently active")
	case errors.Is(err, domain.ErrAlreadySubmitted):
		writeError(w, http.StatusBadRequest, "You have already submitted this quiz")
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error(fallback,
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, fallback)
	}
}

func submissionOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrQuizNotFound):
		return metrics.OutcomeNotFound
	case errors.Is(err, domain.ErrOutOfWindow):
		return metrics.OutcomeOutOfWindow
	case errors.Is(err, domain.ErrAlreadySubmitted):
		return metrics.OutcomeAlreadySubmitted
	case domain.IsValidation(err), errors.Is(err, domain.ErrUnauthenticated):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeFailed
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
