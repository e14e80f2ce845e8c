package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"pocketbook/internal/events"
	"pocketbook/internal/log"
	"pocketbook/internal/models"
	"pocketbook/internal/storage"
)

// ListExpenses returns the user's expenses, newest first.
func (h *Handlers) ListExpenses(w http.ResponseWriter, r *http.Request) {
	user := GetUserFromContext(r)
	expenses, err := h.expenses.ListExpenses(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expenses)
}

// GetExpense returns one expense.
func (h *Handlers) GetExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(r)
	if !ok {
		writeError(w, r, storage.ErrNotFound)
		return
	}
	user := GetUserFromContext(r)
	expense, err := h.expenses.GetExpense(r.Context(), user.ID, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

// CreateExpense adds an expense and returns it with its id.
func (h *Handlers) CreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := h.readExpenseInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user := GetUserFromContext(r)
	expense, err := h.expenses.CreateExpense(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.notify(r, events.ExpenseCreated, expense.ID, user.ID)
	writeJSON(w, http.StatusCreated, expense)
}

// UpdateExpense replaces amount, category and date of an expense.
func (h *Handlers) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(r)
	if !ok {
		writeError(w, r, storage.ErrNotFound)
		return
	}
	in, err := h.readExpenseInput(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user := GetUserFromContext(r)
	expense, err := h.expenses.UpdateExpense(r.Context(), user.ID, id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.notify(r, events.ExpenseUpdated, expense.ID, user.ID)
	writeJSON(w, http.StatusOK, expense)
}

// DeleteExpense removes an expense.
func (h *Handlers) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := expenseID(r)
	if !ok {
		writeError(w, r, storage.ErrNotFound)
		return
	}

	user := GetUserFromContext(r)
	if err := h.expenses.DeleteExpense(r.Context(), user.ID, id); err != nil {
		writeError(w, r, err)
		return
	}

	h.notify(r, events.ExpenseDeleted, id, user.ID)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Expense deleted successfully"})
}

// expenseID parses the {id} path value. Anything that is not a positive
// integer cannot name an owned row.
func expenseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// readExpenseInput decodes a JSON body or an HTML form, then normalizes and
// validates it.
func (h *Handlers) readExpenseInput(w http.ResponseWriter, r *http.Request) (models.ExpenseInput, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var in models.ExpenseInput
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			var verr *models.ValidationError
			if errors.As(err, &verr) {
				return in, verr
			}
			if errors.Is(err, io.EOF) {
				return in, &models.ValidationError{Field: "amount", Message: "amount is required"}
			}
			return in, &models.ValidationError{Field: "body", Message: "request body must be a JSON object"}
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return in, &models.ValidationError{Field: "body", Message: "malformed form body"}
		}
		if s := strings.TrimSpace(r.PostFormValue("amount")); s != "" {
			amount, err := models.ParseAmount(s)
			if err != nil {
				return in, err
			}
			in.Amount = amount
		}
		in.Category = r.PostFormValue("category")
		if s := strings.TrimSpace(r.PostFormValue("date")); s != "" {
			date, err := models.ParseDate(s)
			if err != nil {
				return in, err
			}
			in.Date = date
		}
	}

	in = in.Normalize(h.now())
	if err := in.Validate(); err != nil {
		return in, err
	}
	return in, nil
}

// notify publishes a change notification. Failures are logged and never
// affect the response.
func (h *Handlers) notify(r *http.Request, eventType string, expenseID, userID int64) {
	ev := events.NewExpenseEvent(eventType, expenseID, userID)
	if err := h.publisher.Publish(r.Context(), ev); err != nil {
		log.FromContext(r.Context()).WithComponent(log.ComponentEvents).WarnContext(r.Context(), "failed to publish expense event",
			"type", eventType,
			log.FieldExpenseID, expenseID,
			log.FieldError, err,
		)
	}
}
