package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"circulation/internal/models"
	"circulation/internal/repositories"
)

// TopIssuedLimit is the number of books listed in the most-issued ranking.
const TopIssuedLimit = 5

// LoanView is one open loan as seen from the student table.
type LoanView struct {
	TransactionID string    `json:"transaction_id"`
	BookID        string    `json:"book_id"`
	BookTitle     string    `json:"book_title"`
	IssuedAt      time.Time `json:"issue_date"`
	DueAt         time.Time `json:"due_date"`
	OverdueDays   int       `json:"overdue_days"`
	Fee           int       `json:"fee"`
}

// StudentOverview is a student annotated with their open loans and derived standing.
type StudentOverview struct {
	models.Student
	CurrentLoans   []LoanView    `json:"current_loans"`
	OverdueBooks   int           `json:"overdue_books"`
	MaxOverdueDays int           `json:"max_overdue_days"`
	TotalDueFee    int           `json:"total_due_fee"`
	LibraryStatus  LibraryStatus `json:"library_status"`
}

// TransactionView is a transaction annotated with resolved names.
type TransactionView struct {
	models.Transaction
	BookTitle   string `json:"book_title"`
	StudentName string `json:"student_name"`
	Overdue     bool   `json:"overdue"`
}

type OverdueLoan struct {
	TransactionID string    `json:"transaction_id"`
	BookID        string    `json:"book_id"`
	BookTitle     string    `json:"book_title"`
	StudentID     string    `json:"student_id"`
	StudentName   string    `json:"student_name"`
	DueAt         time.Time `json:"due_date"`
	OverdueDays   int       `json:"overdue_days"`
}

type Statistics struct {
	Categories   []repositories.CategoryCount `json:"categories"`
	OverdueLoans []OverdueLoan                `json:"overdue_loans"`
	MostIssued   []repositories.IssueCount    `json:"most_issued"`
}

// Summary holds the dashboard counters.
type Summary struct {
	TotalBooks    int64 `json:"total_books"`
	TotalStudents int64 `json:"total_students"`
	ActiveIssues  int64 `json:"active_issues"`
	OverdueIssues int64 `json:"overdue_issues"`
}

// BuildStudentOverview derives loan annotations and library status for one student from
// their open transactions. Transactions must have Book preloaded for titles.
func BuildStudentOverview(student models.Student, active []models.Transaction, now time.Time) StudentOverview {
	ov := StudentOverview{
		Student:      student,
		CurrentLoans: make([]LoanView, 0, len(active)),
	}
	for _, t := range active {
		days := OverdueDays(t.DueAt, now)
		fee := CalculateFee(t.DueAt, now)
		ov.CurrentLoans = append(ov.CurrentLoans, LoanView{
			TransactionID: t.ID,
			BookID:        t.BookID,
			BookTitle:     t.Book.Title,
			IssuedAt:      t.IssuedAt,
			DueAt:         t.DueAt,
			OverdueDays:   days,
			Fee:           fee,
		})
		if IsOverdue(t.DueAt, now) {
			ov.OverdueBooks++
		}
		if days > ov.MaxOverdueDays {
			ov.MaxOverdueDays = days
		}
		ov.TotalDueFee += fee
	}
	ov.LibraryStatus = DetermineLibraryStatus(ov.OverdueBooks, ov.MaxOverdueDays)
	return ov
}

// collectOverdue lists the open loans past due at now, most overdue first.
func collectOverdue(active []models.Transaction, now time.Time) []OverdueLoan {
	loans := []OverdueLoan{}
	for _, t := range active {
		if !IsOverdue(t.DueAt, now) {
			continue
		}
		loans = append(loans, OverdueLoan{
			TransactionID: t.ID,
			BookID:        t.BookID,
			BookTitle:     t.Book.Title,
			StudentID:     t.StudentID,
			StudentName:   t.Student.Name,
			DueAt:         t.DueAt,
			OverdueDays:   OverdueDays(t.DueAt, now),
		})
	}
	sort.SliceStable(loans, func(i, j int) bool {
		if !loans[i].DueAt.Equal(loans[j].DueAt) {
			return loans[i].DueAt.Before(loans[j].DueAt)
		}
		return loans[i].TransactionID < loans[j].TransactionID
	})
	return loans
}

// ─── Queries ──────────────────────────────────────────────────────────────────

// SearchBooks matches the query against title and author case-insensitively and
// against the id as a substring. An empty query lists the whole catalogue.
func (s *circulationService) SearchBooks(ctx context.Context, query string) ([]models.Book, error) {
	books, err := s.bookRepo.Search(s.db.WithContext(ctx), strings.TrimSpace(query))
	if err != nil {
		return nil, s.fail("SearchBooks", storageError("SearchBooks", err))
	}
	return books, nil
}

// SearchStudents matches the query against name and id and annotates every match with
// its open loans and library status.
func (s *circulationService) SearchStudents(ctx context.Context, query string) ([]StudentOverview, error) {
	db := s.db.WithContext(ctx)
	students, err := s.studentRepo.Search(db, strings.TrimSpace(query))
	if err != nil {
		return nil, s.fail("SearchStudents", storageError("SearchStudents", err))
	}

	ids := make([]string, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	active, err := s.txnRepo.ListActiveByStudents(db, ids)
	if err != nil {
		return nil, s.fail("SearchStudents", storageError("SearchStudents: load loans", err))
	}
	byStudent := make(map[string][]models.Transaction, len(students))
	for _, t := range active {
		byStudent[t.StudentID] = append(byStudent[t.StudentID], t)
	}

	now := s.clock()
	overviews := make([]StudentOverview, 0, len(students))
	for _, st := range students {
		overviews = append(overviews, BuildStudentOverview(st, byStudent[st.ID], now))
	}
	return overviews, nil
}

// SearchTransactions matches the query against transaction, book and student ids and
// returns the newest issues first.
func (s *circulationService) SearchTransactions(ctx context.Context, query string) ([]TransactionView, error) {
	txns, err := s.txnRepo.Search(s.db.WithContext(ctx), strings.TrimSpace(query))
	if err != nil {
		return nil, s.fail("SearchTransactions", storageError("SearchTransactions", err))
	}
	now := s.clock()
	views := make([]TransactionView, 0, len(txns))
	for _, t := range txns {
		views = append(views, TransactionView{
			Transaction: t,
			BookTitle:   t.Book.Title,
			StudentName: t.Student.Name,
			Overdue:     t.Status == models.TransactionStatusIssued && IsOverdue(t.DueAt, now),
		})
	}
	return views, nil
}

// Statistics reports the category breakdown, the overdue list and the most issued books.
func (s *circulationService) Statistics(ctx context.Context) (*Statistics, error) {
	db := s.db.WithContext(ctx)
	categories, err := s.bookRepo.CountByCategory(db)
	if err != nil {
		return nil, s.fail("Statistics", storageError("Statistics: categories", err))
	}
	active, err := s.txnRepo.ListActive(db)
	if err != nil {
		return nil, s.fail("Statistics", storageError("Statistics: active loans", err))
	}
	top, err := s.txnRepo.MostIssued(db, TopIssuedLimit)
	if err != nil {
		return nil, s.fail("Statistics", storageError("Statistics: most issued", err))
	}
	return &Statistics{
		Categories:   categories,
		OverdueLoans: collectOverdue(active, s.clock()),
		MostIssued:   top,
	}, nil
}

// Summary returns the dashboard counters.
func (s *circulationService) Summary(ctx context.Context) (*Summary, error) {
	db := s.db.WithContext(ctx)
	books, err := s.bookRepo.Count(db)
	if err != nil {
		return nil, s.fail("Summary", storageError("Summary: books", err))
	}
	students, err := s.studentRepo.Count(db)
	if err != nil {
		return nil, s.fail("Summary", storageError("Summary: students", err))
	}
	active, err := s.txnRepo.ListActive(db)
	if err != nil {
		return nil, s.fail("Summary", storageError("Summary: active loans", err))
	}
	return &Summary{
		TotalBooks:    books,
		TotalStudents: students,
		ActiveIssues:  int64(len(active)),
		OverdueIssues: int64(len(collectOverdue(active, s.clock()))),
	}, nil
}
