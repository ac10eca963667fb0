package report

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"quizsystem/internal/app/apiresp"

	"github.com/go-chi/chi/v5"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type reportService interface {
	SummaryByTest(ctx context.Context, testID string) (*TestSummary, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
	ExportTestAttemptsExcel(ctx context.Context, testID string) ([]byte, error)
}

type Handler struct {
	svc reportService
}

func NewHandler(svc reportService) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	testID := strings.TrimSpace(chi.URLParam(r, "testID"))
	if testID == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "test id is required")
		return
	}

	out, err := h.svc.SummaryByTest(r.Context(), testID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	testID := strings.TrimSpace(chi.URLParam(r, "testID"))
	if testID == "" {
		apiresp.WriteError(w, r, http.StatusBadRequest, "test id is required")
		return
	}

	data, err := h.svc.ExportTestAttemptsExcel(r.Context(), testID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="attempts-%s.xlsx"`, testID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			apiresp.WriteError(w, r, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	out, err := h.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, out)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if IsNotFound(err) {
		apiresp.WriteErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", err.Error())
		return
	}
	apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
}
