package handlers

import (
	"net/http"
)

// MonthlySummary returns per-month totals for the user's most recent twelve
// months with expenses, newest first.
func (h *Handlers) MonthlySummary(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	summary, err := h.expenses.MonthlySummary(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// CategorySummary returns per-category totals over the trailing 30 days,
// largest first.
func (h *Handlers) CategorySummary(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	summary, err := h.expenses.CategorySummary(r.Context(), user.ID, h.now())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
