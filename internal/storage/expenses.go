package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"pocketbook/internal/models"
)

// monthsInSummary caps the monthly summary to the most recent months.
const monthsInSummary = 12

// categoryWindowDays is the trailing window of the category summary.
const categoryWindowDays = 30

// CreateExpense inserts a validated expense for userID and returns it with
// its assigned id. A zero date is stored as today.
func (db *DB) CreateExpense(ctx context.Context, userID int64, in models.ExpenseInput) (*models.Expense, error) {
	now := db.now()
	if in.Date.IsZero() {
		in.Date = models.DateOf(now)
	}
	category := strings.TrimSpace(in.Category)

	result, err := db.conn.ExecContext(ctx,
		"INSERT INTO expenses (user_id, amount_cents, category, date, created_at) VALUES (?, ?, ?, ?, ?)",
		userID, in.Amount.Cents(), category, in.Date.String(), now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert expense: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("expense id: %w", err)
	}

	return &models.Expense{
		ID:       id,
		UserID:   userID,
		Amount:   models.NewAmountFromCents(in.Amount.Cents()),
		Category: category,
		Date:     in.Date,
	}, nil
}

// GetExpense retrieves a single expense owned by userID.
func (db *DB) GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error) {
	row := db.conn.QueryRowContext(ctx,
		"SELECT id, user_id, amount_cents, category, date FROM expenses WHERE id = ? AND user_id = ?",
		id, userID,
	)
	return scanExpense(row)
}

// UpdateExpense replaces amount, category and date of an expense owned by
// userID. ErrNotFound is returned, and nothing changes, when the id does not
// exist or belongs to someone else.
func (db *DB) UpdateExpense(ctx context.Context, userID, id int64, in models.ExpenseInput) (*models.Expense, error) {
	if in.Date.IsZero() {
		in.Date = models.DateOf(db.now())
	}

	row := db.conn.QueryRowContext(ctx, `
		UPDATE expenses SET amount_cents = ?, category = ?, date = ?
		WHERE id = ? AND user_id = ?
		RETURNING id, user_id, amount_cents, category, date
	`, in.Amount.Cents(), strings.TrimSpace(in.Category), in.Date.String(), id, userID)
	return scanExpense(row)
}

// DeleteExpense removes an expense owned by userID.
func (db *DB) DeleteExpense(ctx context.Context, userID, id int64) error {
	result, err := db.conn.ExecContext(ctx, "DELETE FROM expenses WHERE id = ? AND user_id = ?", id, userID)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpenses retrieves all expenses of userID, newest date first.
func (db *DB) ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT id, user_id, amount_cents, category, date FROM expenses WHERE user_id = ? ORDER BY date DESC, id DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	expenses := make([]models.Expense, 0)
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, err
		}
		expenses = append(expenses, *e)
	}

	return expenses, rows.Err()
}

// MonthlySummary totals userID's expenses per calendar month for the most
// recent twelve months that have any, newest first.
// Totals are summed as int64 cents; a month whose sum overflows returns an
// error rather than a wrapped-around total.
func (db *DB) MonthlySummary(ctx context.Context, userID int64) ([]models.MonthlyTotal, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT substr(date, 1, 7) AS month, SUM(amount_cents), COUNT(*)
		FROM expenses
		WHERE user_id = ?
		GROUP BY month
		ORDER BY month DESC
		LIMIT ?
	`, userID, monthsInSummary)
	if err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}
	defer rows.Close()

	summary := make([]models.MonthlyTotal, 0, monthsInSummary)
	for rows.Next() {
		var month string
		var cents int64
		var count int
		if err := rows.Scan(&month, &cents, &count); err != nil {
			return nil, fmt.Errorf("scan monthly summary: %w", err)
		}
		label, err := monthLabel(month)
		if err != nil {
			return nil, err
		}
		summary = append(summary, models.MonthlyTotal{
			Month: label,
			Total: models.NewAmountFromCents(cents),
			Count: count,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monthly summary: %w", err)
	}

	return summary, nil
}

// CategorySummary totals userID's expenses per category over the 30 days
// up to now, largest total first. Overflowing totals fail as in
// MonthlySummary.
func (db *DB) CategorySummary(ctx context.Context, userID int64, now time.Time) ([]models.CategoryTotal, error) {
	since := models.DateOf(now).AddDays(-categoryWindowDays)

	rows, err := db.conn.QueryContext(ctx, `
		SELECT category, SUM(amount_cents) AS total, COUNT(*)
		FROM expenses
		WHERE user_id = ? AND date >= ?
		GROUP BY category
		ORDER BY total DESC, category ASC
	`, userID, since.String())
	if err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}
	defer rows.Close()

	summary := make([]models.CategoryTotal, 0)
	for rows.Next() {
		var ct models.CategoryTotal
		var cents int64
		if err := rows.Scan(&ct.Category, &cents, &ct.Count); err != nil {
			return nil, fmt.Errorf("scan category summary: %w", err)
		}
		ct.Total = models.NewAmountFromCents(cents)
		summary = append(summary, ct)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("category summary: %w", err)
	}

	return summary, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanExpense(s scanner) (*models.Expense, error) {
	var e models.Expense
	var cents int64
	var date string
	if err := s.Scan(&e.ID, &e.UserID, &cents, &e.Category, &date); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan expense: %w", err)
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("expense %d has malformed date %q: %w", e.ID, date, err)
	}
	e.Amount = models.NewAmountFromCents(cents)
	e.Date = d
	return &e, nil
}

func monthLabel(month string) (string, error) {
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return "", fmt.Errorf("malformed month %q: %w", month, err)
	}
	return t.Format("Jan 2006"), nil
}
