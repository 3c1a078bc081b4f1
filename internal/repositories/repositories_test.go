package repositories

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"circulation/internal/config"
	"circulation/internal/database"
	"circulation/internal/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.Config{DBDriver: config.DriverSQLite, DatabaseURL: ":memory:"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func TestLikePattern(t *testing.T) {
	assert.Equal(t, "%dune%", likePattern("DUNE"))
	assert.Equal(t, `%50\%%`, likePattern("50%"))
	assert.Equal(t, `%a\_b%`, likePattern("a_b"))
	assert.Equal(t, `%c:\\dir%`, likePattern(`C:\dir`))
}

func TestSequenceNext(t *testing.T) {
	db := openTestDB(t)
	repo := NewSequenceRepository(db)

	for want := int64(1); want <= 3; want++ {
		got, err := repo.Next(nil, "transactions")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	other, err := repo.Next(nil, "other")
	require.NoError(t, err)
	assert.Equal(t, int64(1), other)
}

func TestSequenceNextRollsBackWithTransaction(t *testing.T) {
	db := openTestDB(t)
	repo := NewSequenceRepository(db)

	_, err := repo.Next(nil, "transactions")
	require.NoError(t, err)

	_ = db.Transaction(func(tx *gorm.DB) error {
		n, err := repo.Next(tx, "transactions")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		return assert.AnError
	})

	n, err := repo.Next(nil, "transactions")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestBookUpdateStatusIsGuarded(t *testing.T) {
	db := openTestDB(t)
	repo := NewBookRepository(db)
	require.NoError(t, repo.Create(nil, &models.Book{
		ID: "001", Title: "Dune", Author: "Herbert", ISBN: "I", Category: "Fiction", Status: models.BookStatusAvailable,
	}))

	require.NoError(t, repo.UpdateStatus(nil, "001", models.BookStatusAvailable, models.BookStatusIssued))
	err := repo.UpdateStatus(nil, "001", models.BookStatusAvailable, models.BookStatusIssued)
	assert.ErrorIs(t, err, ErrNoRowsAffected)

	exists, err := repo.Exists(nil, "001")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestStudentIssuedCounterBounds(t *testing.T) {
	db := openTestDB(t)
	repo := NewStudentRepository(db)
	require.NoError(t, repo.Create(nil, &models.Student{ID: "STU00001", Name: "Ada", Email: "a@example.com", Phone: "1"}))

	assert.ErrorIs(t, repo.DecrementBooksIssued(nil, "STU00001"), ErrNoRowsAffected)

	require.NoError(t, repo.IncrementBooksIssued(nil, "STU00001", 2))
	require.NoError(t, repo.IncrementBooksIssued(nil, "STU00001", 2))
	assert.ErrorIs(t, repo.IncrementBooksIssued(nil, "STU00001", 2), ErrNoRowsAffected)

	st, err := repo.GetByIDForUpdate(nil, "STU00001")
	require.NoError(t, err)
	assert.Equal(t, 2, st.BooksIssued)
}

func TestCountByCategory(t *testing.T) {
	db := openTestDB(t)
	repo := NewBookRepository(db)
	for _, b := range []models.Book{
		{ID: "001", Title: "A", Author: "A", ISBN: "1", Category: "Science", Status: models.BookStatusAvailable},
		{ID: "002", Title: "B", Author: "B", ISBN: "2", Category: "History", Status: models.BookStatusAvailable},
		{ID: "003", Title: "C", Author: "C", ISBN: "3", Category: "Science", Status: models.BookStatusAvailable},
	} {
		b := b
		require.NoError(t, repo.Create(nil, &b))
	}

	counts, err := repo.CountByCategory(nil)
	require.NoError(t, err)
	assert.Equal(t, []CategoryCount{{Category: "Science", Count: 2}, {Category: "History", Count: 1}}, counts)
}
