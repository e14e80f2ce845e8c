package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxCategoryLength is the longest category name accepted, in characters.
const MaxCategoryLength = 50

// Expense represents a single expense owned by one user.
type Expense struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"-"`
	Amount   Amount `json:"amount"`
	Category string `json:"category"`
	Date     Date   `json:"date"`
}

// ExpenseInput carries the client-editable fields of an expense. Add and
// update both replace all three.
type ExpenseInput struct {
	Amount   Amount `json:"amount"`
	Category string `json:"category"`
	Date     Date   `json:"date"`
}

// Normalize trims the category and defaults a missing date to the calendar
// date of now.
func (in ExpenseInput) Normalize(now time.Time) ExpenseInput {
	in.Category = strings.TrimSpace(in.Category)
	if in.Date.IsZero() {
		in.Date = DateOf(now)
	}
	return in
}

// Validate reports the first invalid field as a *ValidationError.
func (in ExpenseInput) Validate() error {
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	category := strings.TrimSpace(in.Category)
	if category == "" {
		return &ValidationError{Field: "category", Message: "category is required"}
	}
	if utf8.RuneCountInString(category) > MaxCategoryLength {
		return &ValidationError{Field: "category", Message: "category must be at most 50 characters"}
	}
	return nil
}

// MonthlyTotal is one row of the per-month summary.
type MonthlyTotal struct {
	Month string `json:"month"` // "Mar 2024"
	Total Amount `json:"total"`
	Count int    `json:"count"`
}

// CategoryTotal is one row of the per-category summary.
type CategoryTotal struct {
	Category string `json:"category"`
	Total    Amount `json:"total"`
	Count    int    `json:"count"`
}

// ValidationError describes malformed client input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
