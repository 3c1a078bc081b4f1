package services

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"circulation/internal/config"
	"circulation/internal/database"
	"circulation/internal/models"
)

type txnFixture struct {
	id      string
	bookID  string
	title   string
	student string
	due     time.Time
}

type txnFixtures []txnFixture

func (fs txnFixtures) build() []models.Transaction {
	out := make([]models.Transaction, 0, len(fs))
	for _, f := range fs {
		out = append(out, models.Transaction{
			ID:        f.id,
			BookID:    f.bookID,
			Book:      models.Book{ID: f.bookID, Title: f.title},
			StudentID: f.student,
			Student:   models.Student{ID: f.student, Name: "Student " + f.student},
			IssuedAt:  f.due.AddDate(0, 0, -LoanPeriodDays),
			DueAt:     f.due,
			Status:    models.TransactionStatusIssued,
		})
	}
	return out
}

func studentFixture(id string, issued int) models.Student {
	return models.Student{ID: id, Name: "Student " + id, Email: id + "@example.com", Phone: "5550100", BooksIssued: issued}
}

// testClock is a settable clock for driving loan ages in tests.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t.UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestDB returns a migrated in-memory SQLite database private to the test.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := &config.Config{
		DBDriver:       config.DriverSQLite,
		DatabaseURL:    ":memory:",
		DBMaxOpenConns: 1,
		DBMaxIdleConns: 1,
	}
	db, err := database.Open(cfg, discardLogger())
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
