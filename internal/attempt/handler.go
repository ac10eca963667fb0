package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"quizsystem/internal/app/apiresp"
	"quizsystem/internal/auth"
	"quizsystem/internal/quiz"

	"github.com/go-chi/chi/v5"
)

var errAttemptForbidden = errors.New("attempt forbidden")

type Handler struct {
	svc attemptService
}

type attemptService interface {
	StartAttempt(ctx context.Context, testID, userID string) (*quiz.Attempt, error)
	SaveAnswer(ctx context.Context, attemptID string, in AnswerInput) (*quiz.Attempt, error)
	SubmitAttempt(ctx context.Context, attemptID string) (*quiz.Attempt, error)
	GetAttemptByID(ctx context.Context, attemptID string) (*quiz.Attempt, error)
	GetUserAttempts(ctx context.Context, userID string) ([]quiz.Attempt, error)
	GetTestAttempts(ctx context.Context, testID string) ([]quiz.Attempt, error)
	AttemptsInfo(ctx context.Context, testID, userID string) (*AttemptsInfo, error)
}

type response struct {
	OK    bool        `json:"ok"`
	Data  interface{} `json:"data,omitempty"`
	Code  string      `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

type startAttemptRequest struct {
	UserID string `json:"user_id"`
}

type saveAnswerRequest struct {
	SelectedChoices []string `json:"selected_choices"`
	TextAnswer      *string  `json:"text_answer"`
	NumericAnswer   *string  `json:"numeric_answer"`
}

func NewHandler(svc attemptService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	testID := strings.TrimSpace(chi.URLParam(r, "testID"))
	if testID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "test id is required"})
		return
	}

	var req startAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}
	userID, err := resolveSubject(user, req.UserID)
	if err != nil {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return
	}

	attempt, err := h.svc.StartAttempt(r.Context(), testID, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: attempt})
}

func (h *Handler) AttemptsInfo(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	userID, err := resolveSubject(user, r.URL.Query().Get("user_id"))
	if err != nil {
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
		return
	}

	info, err := h.svc.AttemptsInfo(r.Context(), chi.URLParam(r, "testID"), userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: info})
}

func (h *Handler) ListTestAttempts(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.GetTestAttempts(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) MyAttempts(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return
	}

	items, err := h.svc.GetUserAttempts(r.Context(), user.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: items})
}

func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, response{OK: true, Data: attempt})
}

func (h *Handler) SaveAnswer(w http.ResponseWriter, r *http.Request) {
	questionID := strings.TrimSpace(chi.URLParam(r, "questionID"))
	if questionID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid question id"})
		return
	}

	var req saveAnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid request body"})
		return
	}

	attempt, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	updated, err := h.svc.SaveAnswer(r.Context(), attempt.ID, AnswerInput{
		QuestionID:      questionID,
		SelectedChoices: req.SelectedChoices,
		TextAnswer:      req.TextAnswer,
		NumericAnswer:   req.NumericAnswer,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: updated})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	attempt, ok := h.authorizedAttempt(w, r)
	if !ok {
		return
	}

	graded, err := h.svc.SubmitAttempt(r.Context(), attempt.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, response{OK: true, Data: graded})
}

// authorizedAttempt loads the attempt named in the path and checks that the
// caller owns it or is an admin. It writes the error response itself.
func (h *Handler) authorizedAttempt(w http.ResponseWriter, r *http.Request) (*quiz.Attempt, bool) {
	user, ok := auth.CurrentUser(r.Context())
	if !ok {
		writeJSON(w, r, http.StatusUnauthorized, response{OK: false, Error: "unauthorized"})
		return nil, false
	}

	attemptID := strings.TrimSpace(chi.URLParam(r, "id"))
	if attemptID == "" {
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: "invalid attempt id"})
		return nil, false
	}

	attempt, err := h.svc.GetAttemptByID(r.Context(), attemptID)
	if err != nil {
		writeServiceError(w, r, err)
		return nil, false
	}
	if !user.IsAdmin() && attempt.UserID != user.ID {
		writeServiceError(w, r, errAttemptForbidden)
		return nil, false
	}
	return attempt, true
}

// resolveSubject picks whose attempts a request acts on. Admins may name any
// user; everyone else acts on themselves.
func resolveSubject(user *auth.User, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if user.IsAdmin() && requested != "" {
		return requested, nil
	}
	if requested != "" && requested != user.ID {
		return "", errAttemptForbidden
	}
	return user.ID, nil
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrTestNotFound), errors.Is(err, ErrAttemptNotFound):
		writeJSON(w, r, http.StatusNotFound, response{OK: false, Code: "NOT_FOUND", Error: err.Error()})
	case errors.Is(err, errAttemptForbidden):
		writeJSON(w, r, http.StatusForbidden, response{OK: false, Error: "forbidden"})
	case errors.Is(err, ErrMaxAttemptsReached):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "MAX_ATTEMPTS_REACHED", Error: err.Error()})
	case errors.Is(err, ErrTimeExpired):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "TIME_EXPIRED", Error: err.Error()})
	case errors.Is(err, ErrAttemptClosed):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "ATTEMPT_CLOSED", Error: err.Error()})
	case errors.Is(err, ErrAlreadySubmitted):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "ALREADY_SUBMITTED", Error: err.Error()})
	case errors.Is(err, ErrConcurrentStartConflict):
		writeJSON(w, r, http.StatusConflict, response{OK: false, Code: "CONCURRENT_START_CONFLICT", Error: err.Error()})
	case errors.Is(err, ErrQuestionNotInTest), errors.Is(err, ErrInvalidInput):
		writeJSON(w, r, http.StatusBadRequest, response{OK: false, Error: err.Error()})
	default:
		writeJSON(w, r, http.StatusInternalServerError, response{OK: false, Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, r *http.Request, code int, payload response) {
	if payload.OK {
		apiresp.WriteOK(w, r, code, payload.Data)
		return
	}
	if payload.Code != "" {
		apiresp.WriteErrorCode(w, r, code, payload.Code, payload.Error)
		return
	}
	apiresp.WriteError(w, r, code, payload.Error)
}
