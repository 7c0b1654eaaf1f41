package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/knjiznica/internal/store"
)

// SettingsHandler handles library configuration endpoints.
type SettingsHandler struct {
	DB *sql.DB
}

type loanPeriodRequest struct {
	Days int `json:"days"`
}

// GetLoanPeriod handles GET /api/settings/loan-period.
func (h *SettingsHandler) GetLoanPeriod(w http.ResponseWriter, r *http.Request) {
	days, err := store.GetLoanPeriodDays(r.Context(), h.DB)
	if err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to get loan period")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]int{"days": days})
}

// SetLoanPeriod handles PUT /api/settings/loan-period (admin only).
func (h *SettingsHandler) SetLoanPeriod(w http.ResponseWriter, r *http.Request) {
	var req loanPeriodRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := store.SetLoanPeriodDays(r.Context(), h.DB, req.Days); err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	claims := GetClaims(r.Context())
	slog.Info("loan period updated", "user", claims.Username, "days", req.Days)
	jsonResponse(w, http.StatusOK, map[string]int{"days": req.Days})
}
