package handlers

import (
	"context"
	"net/http"
	"time"

	"pocketbook/internal/log"
)

const healthTimeout = 2 * time.Second

// Healthz reports whether the database is reachable.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.expenses.Ping(ctx); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "health check failed", log.FieldError, err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("unavailable\n"))
		return
	}
	_, _ = w.Write([]byte("ok\n"))
}
