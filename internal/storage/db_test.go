package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"pocketbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// testHash stands in for a bcrypt hash; storage never inspects it.
const testHash = "$2a$10$abcdefghijklmnopqrstuuJ7nq1bQkq8pNwS4yJ0Q2bQm6sB0xK1e"

var fixedNow = time.Date(2024, time.March, 20, 15, 4, 5, 0, time.UTC)

func expenseInput(cents int64, category string, date models.Date) models.ExpenseInput {
	return models.ExpenseInput{
		Amount:   models.NewAmountFromCents(cents),
		Category: category,
		Date:     date,
	}
}

// DBTestSuite provides a test suite for expense operations
type DBTestSuite struct {
	suite.Suite
	db    *DB
	ctx   context.Context
	alice *models.User
	bob   *models.User
}

// SetupTest runs before each test
func (suite *DBTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	db.SetClock(func() time.Time { return fixedNow })
	suite.db = db
	suite.ctx = context.Background()

	suite.alice, err = db.CreateUser(suite.ctx, "alice", testHash)
	require.NoError(suite.T(), err)
	suite.bob, err = db.CreateUser(suite.ctx, "bob", testHash)
	require.NoError(suite.T(), err)
}

// TearDownTest runs after each test
func (suite *DBTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *DBTestSuite) TestCreateExpense() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(1050, "Food", models.NewDate(2024, time.March, 1)))
	require.NoError(suite.T(), err)
	assert.NotZero(suite.T(), e.ID)
	assert.Equal(suite.T(), int64(1050), e.Amount.Cents())
	assert.Equal(suite.T(), "Food", e.Category)
	assert.Equal(suite.T(), "2024-03-01", e.Date.String())
}

func (suite *DBTestSuite) TestCreateExpenseDefaultsDateToToday() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(500, "Transport", models.Date{}))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "2024-03-20", e.Date.String())
}

func (suite *DBTestSuite) TestAddThenListReturnsMatchingEntry() {
	created, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(4250, "Food", models.NewDate(2024, time.March, 1)))
	require.NoError(suite.T(), err)

	list, err := suite.db.ListExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), created.ID, list[0].ID)
	assert.Equal(suite.T(), "42.50", list[0].Amount.String())
	assert.Equal(suite.T(), "Food", list[0].Category)
	assert.Equal(suite.T(), "2024-03-01", list[0].Date.String())
}

func (suite *DBTestSuite) TestListExpensesOrderedByDateDescending() {
	dates := []models.Date{
		models.NewDate(2024, time.January, 5),
		models.NewDate(2024, time.March, 2),
		models.NewDate(2023, time.December, 31),
	}
	for _, d := range dates {
		_, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(100, "Misc", d))
		require.NoError(suite.T(), err)
	}

	list, err := suite.db.ListExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 3)
	assert.Equal(suite.T(), "2024-03-02", list[0].Date.String())
	assert.Equal(suite.T(), "2024-01-05", list[1].Date.String())
	assert.Equal(suite.T(), "2023-12-31", list[2].Date.String())
}

func (suite *DBTestSuite) TestListExpensesEmpty() {
	list, err := suite.db.ListExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.NotNil(suite.T(), list)
	assert.Empty(suite.T(), list)
}

func (suite *DBTestSuite) TestOtherUserCannotTouchExpense() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(999, "Food", models.NewDate(2024, time.March, 1)))
	require.NoError(suite.T(), err)

	_, err = suite.db.GetExpense(suite.ctx, suite.bob.ID, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	_, err = suite.db.UpdateExpense(suite.ctx, suite.bob.ID, e.ID, expenseInput(1, "Hacked", models.NewDate(2024, time.March, 2)))
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	err = suite.db.DeleteExpense(suite.ctx, suite.bob.ID, e.ID)
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	bobs, err := suite.db.ListExpenses(suite.ctx, suite.bob.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), bobs)

	got, err := suite.db.GetExpense(suite.ctx, suite.alice.ID, e.ID)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "Food", got.Category)
	assert.Equal(suite.T(), int64(999), got.Amount.Cents())
}

func (suite *DBTestSuite) TestUpdateExpense() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(100, "Food", models.NewDate(2024, time.March, 1)))
	require.NoError(suite.T(), err)

	updated, err := suite.db.UpdateExpense(suite.ctx, suite.alice.ID, e.ID, expenseInput(2599, " Rent ", models.NewDate(2024, time.February, 29)))
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), e.ID, updated.ID)
	assert.Equal(suite.T(), "25.99", updated.Amount.String())
	assert.Equal(suite.T(), "Rent", updated.Category)
	assert.Equal(suite.T(), "2024-02-29", updated.Date.String())
}

func (suite *DBTestSuite) TestUpdateMissingExpenseLeavesStorageUnchanged() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(100, "Food", models.NewDate(2024, time.March, 1)))
	require.NoError(suite.T(), err)

	_, err = suite.db.UpdateExpense(suite.ctx, suite.alice.ID, e.ID+1000, expenseInput(5, "Other", models.NewDate(2024, time.March, 3)))
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	list, err := suite.db.ListExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), list, 1)
	assert.Equal(suite.T(), "Food", list[0].Category)
	assert.Equal(suite.T(), int64(100), list[0].Amount.Cents())
}

func (suite *DBTestSuite) TestDeleteScenario() {
	e, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(4250, "Food", models.NewDate(2024, time.March, 1)))
	require.NoError(suite.T(), err)

	require.NoError(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.alice.ID, e.ID))

	list, err := suite.db.ListExpenses(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), list)

	assert.ErrorIs(suite.T(), suite.db.DeleteExpense(suite.ctx, suite.alice.ID, e.ID), ErrNotFound)
}

func (suite *DBTestSuite) TestMonthlySummary() {
	// Fourteen distinct months, two expenses in the newest one.
	start := models.NewDate(2023, time.January, 15)
	for i := range 14 {
		d := models.Date{Time: start.AddDate(0, i, 0)}
		_, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(int64(100+i), "Misc", d))
		require.NoError(suite.T(), err)
	}
	_, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(10, "Food", models.NewDate(2024, time.February, 1)))
	require.NoError(suite.T(), err)
	_, err = suite.db.CreateExpense(suite.ctx, suite.bob.ID, expenseInput(100000, "Food", models.NewDate(2024, time.February, 1)))
	require.NoError(suite.T(), err)

	summary, err := suite.db.MonthlySummary(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), summary, 12)

	assert.Equal(suite.T(), "Feb 2024", summary[0].Month)
	assert.Equal(suite.T(), "1.23", summary[0].Total.String()) // 113 + 10 cents
	assert.Equal(suite.T(), 2, summary[0].Count)
	assert.Equal(suite.T(), "Jan 2024", summary[1].Month)
	assert.Equal(suite.T(), "Mar 2023", summary[11].Month)

	for i := 1; i < len(summary); i++ {
		assert.Equal(suite.T(), 1, summary[i].Count)
	}
}

func (suite *DBTestSuite) TestMonthlySummaryExactTotals() {
	for range 3 {
		_, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(10, "Misc", models.NewDate(2024, time.March, 1)))
		require.NoError(suite.T(), err)
	}
	_, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(20, "Misc", models.NewDate(2024, time.March, 31)))
	require.NoError(suite.T(), err)

	summary, err := suite.db.MonthlySummary(suite.ctx, suite.alice.ID)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), summary, 1)
	assert.Equal(suite.T(), "Mar 2024", summary[0].Month)
	assert.Equal(suite.T(), "0.50", summary[0].Total.String())
	assert.Equal(suite.T(), 4, summary[0].Count)
}

func (suite *DBTestSuite) TestSummariesReportOverflowingTotals() {
	date := models.NewDate(2024, time.March, 10)
	for range 2 {
		_, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, expenseInput(math.MaxInt64, "Yacht", date))
		require.NoError(suite.T(), err)
	}

	_, err := suite.db.MonthlySummary(suite.ctx, suite.alice.ID)
	require.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "monthly summary")

	_, err = suite.db.CategorySummary(suite.ctx, suite.alice.ID, fixedNow)
	require.Error(suite.T(), err)
	assert.Contains(suite.T(), err.Error(), "category summary")

	// Other users are unaffected.
	summary, err := suite.db.MonthlySummary(suite.ctx, suite.bob.ID)
	require.NoError(suite.T(), err)
	assert.Empty(suite.T(), summary)
}

func (suite *DBTestSuite) TestCategorySummaryTrailingThirtyDays() {
	inputs := []models.ExpenseInput{
		expenseInput(1000, "Food", models.NewDate(2024, time.March, 19)),
		expenseInput(250, "Food", models.NewDate(2024, time.February, 19)),  // exactly 30 days back
		expenseInput(5000, "Rent", models.NewDate(2024, time.March, 1)),
		expenseInput(700, "Travel", models.NewDate(2024, time.February, 18)), // 31 days back
		expenseInput(300, "Books", models.NewDate(2024, time.March, 10)),
	}
	for _, in := range inputs {
		_, err := suite.db.CreateExpense(suite.ctx, suite.alice.ID, in)
		require.NoError(suite.T(), err)
	}
	_, err := suite.db.CreateExpense(suite.ctx, suite.bob.ID, expenseInput(99999, "Food", models.NewDate(2024, time.March, 19)))
	require.NoError(suite.T(), err)

	summary, err := suite.db.CategorySummary(suite.ctx, suite.alice.ID, fixedNow)
	require.NoError(suite.T(), err)
	require.Len(suite.T(), summary, 3)

	assert.Equal(suite.T(), "Rent", summary[0].Category)
	assert.Equal(suite.T(), "50.00", summary[0].Total.String())
	assert.Equal(suite.T(), "Food", summary[1].Category)
	assert.Equal(suite.T(), "12.50", summary[1].Total.String())
	assert.Equal(suite.T(), 2, summary[1].Count)
	assert.Equal(suite.T(), "Books", summary[2].Category)

	for _, row := range summary {
		assert.NotEqual(suite.T(), "Travel", row.Category)
	}
}

func (suite *DBTestSuite) TestCreateUserDuplicate() {
	_, err := suite.db.CreateUser(suite.ctx, "alice", testHash)
	assert.ErrorIs(suite.T(), err, ErrDuplicateUsername)

	count, err := suite.db.UserCount(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), 2, count)
}

func (suite *DBTestSuite) TestGetUserByUsername() {
	u, err := suite.db.GetUserByUsername(suite.ctx, "bob")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.bob.ID, u.ID)
	assert.Equal(suite.T(), testHash, u.PasswordHash)

	_, err = suite.db.GetUserByUsername(suite.ctx, "carol")
	assert.ErrorIs(suite.T(), err, ErrNotFound)
}

// SessionTestSuite provides a test suite for session operations
type SessionTestSuite struct {
	suite.Suite
	db   *DB
	ctx  context.Context
	now  time.Time
	user *models.User
}

// SetupTest runs before each test
func (suite *SessionTestSuite) SetupTest() {
	db, err := NewDB(":memory:")
	require.NoError(suite.T(), err, "failed to create test database")
	suite.now = fixedNow
	db.SetClock(func() time.Time { return suite.now })
	suite.db = db
	suite.ctx = context.Background()

	user, err := suite.db.CreateUser(suite.ctx, "testuser", testHash)
	require.NoError(suite.T(), err, "failed to create test user")
	suite.user = user
}

// TearDownTest runs after each test
func (suite *SessionTestSuite) TearDownTest() {
	if suite.db != nil {
		suite.db.Close()
	}
}

func (suite *SessionTestSuite) TestCreateAndValidateSession() {
	err := suite.db.CreateSession(suite.ctx, "token-1", suite.user.ID, suite.now.Add(time.Hour))
	require.NoError(suite.T(), err)

	info, err := suite.db.ValidateSessionWithInfo(suite.ctx, "token-1")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), "testuser", info.User.Username)
	assert.Equal(suite.T(), suite.now.Unix(), info.LastActivity.Unix())
	assert.Equal(suite.T(), suite.now.Add(time.Hour).Unix(), info.ExpiresAt.Unix())
}

func (suite *SessionTestSuite) TestExpiredSessionIsInvalid() {
	err := suite.db.CreateSession(suite.ctx, "token-2", suite.user.ID, suite.now.Add(time.Minute))
	require.NoError(suite.T(), err)

	suite.now = suite.now.Add(2 * time.Minute)
	_, err = suite.db.ValidateSessionWithInfo(suite.ctx, "token-2")
	assert.ErrorIs(suite.T(), err, ErrNotFound)

	n, err := suite.db.CleanExpiredSessions(suite.ctx)
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1), n)
}

func (suite *SessionTestSuite) TestRenewSession() {
	err := suite.db.CreateSession(suite.ctx, "token-3", suite.user.ID, suite.now.Add(time.Hour))
	require.NoError(suite.T(), err)

	suite.now = suite.now.Add(30 * time.Minute)
	err = suite.db.RenewSession(suite.ctx, "token-3", suite.now.Add(2*time.Hour))
	require.NoError(suite.T(), err)

	info, err := suite.db.ValidateSessionWithInfo(suite.ctx, "token-3")
	require.NoError(suite.T(), err)
	assert.Equal(suite.T(), suite.now.Unix(), info.LastActivity.Unix(), "LastActivity should be updated after renewal")
	assert.Equal(suite.T(), suite.now.Add(2*time.Hour).Unix(), info.ExpiresAt.Unix(), "ExpiresAt should be extended after renewal")
}

func (suite *SessionTestSuite) TestDeleteSession() {
	err := suite.db.CreateSession(suite.ctx, "token-4", suite.user.ID, suite.now.Add(time.Hour))
	require.NoError(suite.T(), err)

	_, err = suite.db.ValidateSessionWithInfo(suite.ctx, "token-4")
	require.NoError(suite.T(), err, "session should exist before deletion")

	require.NoError(suite.T(), suite.db.DeleteSession(suite.ctx, "token-4"))

	_, err = suite.db.ValidateSessionWithInfo(suite.ctx, "token-4")
	assert.ErrorIs(suite.T(), err, ErrNotFound, "expected error after deleting session")

	assert.NoError(suite.T(), suite.db.DeleteSession(suite.ctx, "token-4"), "deleting twice is harmless")
}

// Test suite runners
func TestDBSuite(t *testing.T) {
	suite.Run(t, new(DBTestSuite))
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func TestNewDBOnDiskRunsMigrationsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expenses.db")

	db, err := NewDB(path)
	require.NoError(t, err)
	_, err = db.CreateUser(context.Background(), "persisted", testHash)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	reopened, err := NewDB(path)
	require.NoError(t, err, "reopening must not re-apply migrations")
	defer reopened.Close()

	u, err := reopened.GetUserByUsername(context.Background(), "persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", u.Username)
}
