package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"pocketbook/internal/auth"
	"pocketbook/internal/events"
	"pocketbook/internal/log"
	"pocketbook/internal/models"
	"pocketbook/internal/storage"
)

// Context key type to avoid collisions.
type contextKey string

const (
	// UserContextKey is the context key for the authenticated user.
	UserContextKey contextKey = "user"
	// SessionCookieName is the name of the session cookie.
	SessionCookieName = "session"

	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20
)

// ExpenseStore is the user-scoped expense repository.
type ExpenseStore interface {
	ListExpenses(ctx context.Context, userID int64) ([]models.Expense, error)
	GetExpense(ctx context.Context, userID, id int64) (*models.Expense, error)
	CreateExpense(ctx context.Context, userID int64, in models.ExpenseInput) (*models.Expense, error)
	UpdateExpense(ctx context.Context, userID, id int64, in models.ExpenseInput) (*models.Expense, error)
	DeleteExpense(ctx context.Context, userID, id int64) error
	MonthlySummary(ctx context.Context, userID int64) ([]models.MonthlyTotal, error)
	CategorySummary(ctx context.Context, userID int64, now time.Time) ([]models.CategoryTotal, error)
	Ping(ctx context.Context) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	expenses     ExpenseStore
	credentials  *auth.Credentials
	sessions     *auth.SessionManager
	publisher    events.Publisher
	secureCookie bool
	now          func() time.Time
}

// NewHandlers creates a new Handlers instance. A nil publisher disables
// change notifications.
func NewHandlers(expenses ExpenseStore, credentials *auth.Credentials, sessions *auth.SessionManager, publisher events.Publisher, secureCookie bool) *Handlers {
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Handlers{
		expenses:     expenses,
		credentials:  credentials,
		sessions:     sessions,
		publisher:    publisher,
		secureCookie: secureCookie,
		now:          time.Now,
	}
}

// SetClock replaces the time source used for default dates and the
// category window.
func (h *Handlers) SetClock(now func() time.Time) {
	h.now = now
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require authentication. Requests without
// a live session get a JSON 401. Sessions past the halfway point of their
// lifetime are renewed and the cookie is re-issued.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, r, auth.ErrUnauthenticated)
			return
		}

		res, err := h.sessions.Resolve(r.Context(), cookie.Value)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				h.clearSessionCookie(w)
			}
			writeError(w, r, err)
			return
		}

		if res.Renewed {
			h.setSessionCookie(w, cookie.Value)
		}

		ctx := context.WithValue(r.Context(), UserContextKey, res.User)
		ctx = log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, res.User.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account and redirects to the login page.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	req, err := readCredentials(w, r)
	if err != nil {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	_, err = h.credentials.Register(r.Context(), req.Username, req.Password)
	var verr *models.ValidationError
	switch {
	case err == nil:
		http.Redirect(w, r, "/login.html", http.StatusSeeOther)
	case errors.As(err, &verr):
		http.Error(w, verr.Message, http.StatusBadRequest)
	case errors.Is(err, storage.ErrDuplicateUsername):
		http.Error(w, "Username already exists", http.StatusConflict)
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "registration failed", log.FieldError, err)
		http.Error(w, "An error occurred during registration", http.StatusInternalServerError)
	}
}

// Login verifies credentials, starts a session and redirects to the
// expenses page. Unknown users and wrong passwords get the same 401.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, err := readCredentials(w, r)
	if err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "Username and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.credentials.Verify(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		log.FromContext(r.Context()).ErrorContext(r.Context(), "login failed", log.FieldError, err)
		http.Error(w, "An error occurred during login", http.StatusInternalServerError)
		return
	}

	value, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to create session", log.FieldUserID, user.ID, log.FieldError, err)
		http.Error(w, "An error occurred during login", http.StatusInternalServerError)
		return
	}

	h.setSessionCookie(w, value)
	http.Redirect(w, r, "/expenses.html", http.StatusSeeOther)
}

// Logout destroys the session and redirects to the login page.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookieName); err == nil {
		if err := h.sessions.Destroy(r.Context(), cookie.Value); err != nil {
			log.FromContext(r.Context()).ErrorContext(r.Context(), "failed to delete session", log.FieldError, err)
			http.Error(w, "An error occurred during logout", http.StatusInternalServerError)
			return
		}
	}
	h.clearSessionCookie(w)
	http.Redirect(w, r, "/login.html", http.StatusSeeOther)
}

func (h *Handlers) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(h.sessions.Duration().Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// readCredentials accepts a JSON body or an HTML form.
func readCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req credentialsRequest
	if isJSON(r) {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Username = r.PostFormValue("username")
	req.Password = r.PostFormValue("password")
	return req, nil
}

func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}
