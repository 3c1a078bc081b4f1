package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"circulation/internal/handlers"
	"circulation/internal/middleware"
	"circulation/internal/models"
	"circulation/internal/rfid"
	"circulation/internal/services"
)

// --- MOCK SERVICE ---

type MockCirculationService struct {
	mock.Mock
}

func (m *MockCirculationService) AddBook(ctx context.Context, in services.NewBook) (*models.Book, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Book), args.Error(1)
}

func (m *MockCirculationService) AddStudent(ctx context.Context, in services.NewStudent) (*models.Student, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Student), args.Error(1)
}

func (m *MockCirculationService) IssueBook(ctx context.Context, in services.IssueRequest) (*models.Transaction, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockCirculationService) ReturnBook(ctx context.Context, in services.ReturnRequest) (*models.Transaction, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Transaction), args.Error(1)
}

func (m *MockCirculationService) SearchBooks(ctx context.Context, query string) ([]models.Book, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]models.Book), args.Error(1)
}

func (m *MockCirculationService) SearchStudents(ctx context.Context, query string) ([]services.StudentOverview, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]services.StudentOverview), args.Error(1)
}

func (m *MockCirculationService) SearchTransactions(ctx context.Context, query string) ([]services.TransactionView, error) {
	args := m.Called(ctx, query)
	return args.Get(0).([]services.TransactionView), args.Error(1)
}

func (m *MockCirculationService) Statistics(ctx context.Context) (*services.Statistics, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Statistics), args.Error(1)
}

func (m *MockCirculationService) Summary(ctx context.Context) (*services.Summary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.Summary), args.Error(1)
}

// --- SETUP ---

func setupRouter(svc *MockCirculationService, ping func(context.Context) error, write ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers.RegisterRoutes(r, handlers.Deps{
		Service:         svc,
		Scanner:         rfid.NewSeededScanner(1),
		Ping:            ping,
		WriteMiddleware: write,
	})
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

// --- TESTS ---

func TestAddBook_Success(t *testing.T) {
	svc := new(MockCirculationService)
	in := services.NewBook{ID: "001", Title: "Dune", Author: "Herbert", ISBN: "978-0441013593", Category: "Fiction"}
	svc.On("AddBook", mock.Anything, in).Return(&models.Book{
		ID: "001", Title: "Dune", Author: "Herbert", ISBN: "978-0441013593", Category: "Fiction", Status: models.BookStatusAvailable,
	}, nil)

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/books", map[string]string{
		"book_id": "001", "title": "Dune", "author": "Herbert", "isbn": "978-0441013593", "category": "Fiction",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "001", body["id"])
	assert.Equal(t, "Available", body["status"])
	svc.AssertExpectations(t)
}

func TestAddBook_MissingField(t *testing.T) {
	svc := new(MockCirculationService)

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/books", map[string]string{"book_id": "001"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decode(t, w)["kind"])
	svc.AssertNotCalled(t, "AddBook", mock.Anything, mock.Anything)
}

func TestAddBook_ValidationFields(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("AddBook", mock.Anything, mock.Anything).Return(nil, &services.ValidationError{
		Fields: map[string]string{"book_id": "book id must be 3 digits"},
	})

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/books", map[string]string{
		"book_id": "12", "title": "T", "author": "A", "isbn": "I", "category": "Fiction",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "validation", body["kind"])
	fields, ok := body["fields"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "book id must be 3 digits", fields["book_id"])
}

func TestAddStudent_Conflict(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("AddStudent", mock.Anything, mock.Anything).Return(nil, services.ErrStudentExists)

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/students", map[string]string{
		"student_id": "STU00001", "name": "Ada", "email": "ada@example.com", "phone": "5550100",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode(t, w)
	assert.Equal(t, "conflict", body["kind"])
	assert.Equal(t, "student id already exists", body["error"])
}

func TestIssueBook_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		kind   string
	}{
		{"already issued", services.ErrBookAlreadyIssued, http.StatusConflict, "conflict"},
		{"unknown book", services.ErrBookNotFound, http.StatusNotFound, "not_found"},
		{"limit reached", services.ErrBookLimitReached, http.StatusUnprocessableEntity, "limit_exceeded"},
		{"storage", fmt.Errorf("IssueBook: %w: %w", services.ErrStorageUnavailable, errors.New("disk full")), http.StatusServiceUnavailable, "storage_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockCirculationService)
			svc.On("IssueBook", mock.Anything, services.IssueRequest{BookID: "001", StudentID: "STU00001", RFID: "ABC123"}).
				Return(nil, tt.err)

			w := doJSON(setupRouter(svc, nil), http.MethodPost, "/transactions/issue", map[string]string{
				"book_id": "001", "student_id": "STU00001", "rfid": "ABC123",
			})

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.kind, decode(t, w)["kind"])
			svc.AssertExpectations(t)
		})
	}
}

func TestIssueBook_StorageErrorHidesCause(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("IssueBook", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("IssueBook: %w: %w", services.ErrStorageUnavailable, errors.New("password authentication failed")))

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/transactions/issue", map[string]string{
		"book_id": "001", "student_id": "STU00001", "rfid": "ABC123",
	})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestIssueBook_Success(t *testing.T) {
	svc := new(MockCirculationService)
	issued := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	svc.On("IssueBook", mock.Anything, mock.Anything).Return(&models.Transaction{
		ID: "T001", BookID: "001", StudentID: "STU00001", RFID: "ABC123",
		IssuedAt: issued, DueAt: issued.AddDate(0, 0, 14), Status: models.TransactionStatusIssued,
	}, nil)

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/transactions/issue", map[string]string{
		"book_id": "001", "student_id": "STU00001", "rfid": "ABC123",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.Equal(t, "T001", body["id"])
	assert.Equal(t, "2024-05-15T09:00:00Z", body["due_date"])
	assert.Nil(t, body["return_date"])
	assert.Equal(t, "Issued", body["status"])
}

func TestReturnBook_Success(t *testing.T) {
	svc := new(MockCirculationService)
	returned := time.Date(2024, 5, 18, 9, 0, 0, 0, time.UTC)
	svc.On("ReturnBook", mock.Anything, services.ReturnRequest{BookID: "001", StudentID: "STU00001"}).Return(&models.Transaction{
		ID: "T001", BookID: "001", StudentID: "STU00001", ReturnedAt: &returned, Status: models.TransactionStatusReturned, Fee: 30,
	}, nil)

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/transactions/return", map[string]string{
		"book_id": "001", "student_id": "STU00001",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(30), body["fee"])
	assert.Equal(t, "Returned", body["status"])
}

func TestReturnBook_NoActiveLoan(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("ReturnBook", mock.Anything, mock.Anything).Return(nil, services.ErrNoActiveLoan)

	w := doJSON(setupRouter(svc, nil), http.MethodPost, "/transactions/return", map[string]string{
		"book_id": "001", "student_id": "STU00001",
	})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchBooks_PassesQuery(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("SearchBooks", mock.Anything, "dune").Return([]models.Book{{ID: "001", Title: "Dune"}}, nil)

	w := doJSON(setupRouter(svc, nil), http.MethodGet, "/books?q=dune", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var books []models.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &books))
	assert.Len(t, books, 1)
	svc.AssertExpectations(t)
}

func TestSearchStudents_EmptyListIsArray(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("SearchStudents", mock.Anything, "").Return([]services.StudentOverview{}, nil)

	w := doJSON(setupRouter(svc, nil), http.MethodGet, "/students", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestSearchTransactions(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("SearchTransactions", mock.Anything, "T001").Return([]services.TransactionView{{
		Transaction: models.Transaction{ID: "T001", BookID: "001", StudentID: "STU00001", Status: models.TransactionStatusIssued},
		BookTitle:   "Dune",
		StudentName: "Ada",
		Overdue:     true,
	}}, nil)

	w := doJSON(setupRouter(svc, nil), http.MethodGet, "/transactions?q=T001", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var out []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Dune", out[0]["book_title"])
	assert.Equal(t, true, out[0]["overdue"])
}

func TestStatisticsAndSummary(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("Statistics", mock.Anything).Return(&services.Statistics{}, nil)
	svc.On("Summary", mock.Anything).Return(&services.Summary{TotalBooks: 3, ActiveIssues: 1}, nil)
	r := setupRouter(svc, nil)

	w := doJSON(r, http.MethodGet, "/stats", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(r, http.MethodGet, "/summary", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, float64(3), body["total_books"])
	assert.Equal(t, float64(1), body["active_issues"])
}

func TestCategories(t *testing.T) {
	w := doJSON(setupRouter(new(MockCirculationService), nil), http.MethodGet, "/categories", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var cats []string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cats))
	assert.Equal(t, models.Categories, cats)
}

func TestScanRFID(t *testing.T) {
	w := doJSON(setupRouter(new(MockCirculationService), nil), http.MethodGet, "/rfid/scan", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	tag, _ := decode(t, w)["rfid"].(string)
	assert.Regexp(t, regexp.MustCompile(`^[A-Z0-9]{6}$`), tag)
}

func TestHealth(t *testing.T) {
	ok := setupRouter(new(MockCirculationService), func(context.Context) error { return nil })
	w := doJSON(ok, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	down := setupRouter(new(MockCirculationService), func(context.Context) error { return errors.New("connection refused") })
	w = doJSON(down, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unavailable", decode(t, w)["status"])
}

func TestWriteMiddlewareGuardsMutationsOnly(t *testing.T) {
	svc := new(MockCirculationService)
	svc.On("SearchBooks", mock.Anything, "").Return([]models.Book{}, nil)
	r := setupRouter(svc, nil, middleware.RateLimit(0.001, 1))

	body := map[string]string{"book_id": "001", "student_id": "STU00001"}
	svc.On("ReturnBook", mock.Anything, mock.Anything).Return(nil, services.ErrNoActiveLoan)

	assert.Equal(t, http.StatusNotFound, doJSON(r, http.MethodPost, "/transactions/return", body).Code)
	assert.Equal(t, http.StatusTooManyRequests, doJSON(r, http.MethodPost, "/transactions/return", body).Code)

	// Reads bypass the write limiter.
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/books", nil).Code)
	assert.Equal(t, http.StatusOK, doJSON(r, http.MethodGet, "/books", nil).Code)
}
