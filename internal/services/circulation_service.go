package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"circulation/internal/metrics"
	"circulation/internal/models"
	"circulation/internal/repositories"
)

const transactionSequence = "transactions"

// ─── Service Interface ────────────────────────────────────────────────────────

// CirculationService defines the operations of the library circulation desk.
type CirculationService interface {
	AddBook(ctx context.Context, in NewBook) (*models.Book, error)
	AddStudent(ctx context.Context, in NewStudent) (*models.Student, error)

	IssueBook(ctx context.Context, in IssueRequest) (*models.Transaction, error)
	ReturnBook(ctx context.Context, in ReturnRequest) (*models.Transaction, error)

	SearchBooks(ctx context.Context, query string) ([]models.Book, error)
	SearchStudents(ctx context.Context, query string) ([]StudentOverview, error)
	SearchTransactions(ctx context.Context, query string) ([]TransactionView, error)
	Statistics(ctx context.Context) (*Statistics, error)
	Summary(ctx context.Context) (*Summary, error)
}

// Clock supplies the current time to the service.
type Clock func() time.Time

type Option func(*circulationService)

// WithClock replaces the wall clock, mainly for tests and backdated seeding.
func WithClock(clock Clock) Option {
	return func(s *circulationService) {
		s.now = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *circulationService) {
		s.log = logger
	}
}

// ─── Implementation ───────────────────────────────────────────────────────────

type circulationService struct {
	db          *gorm.DB
	bookRepo    repositories.BookRepository
	studentRepo repositories.StudentRepository
	txnRepo     repositories.TransactionRepository
	seqRepo     repositories.SequenceRepository

	now Clock
	log *slog.Logger

	// mu serializes all mutations within this process. Database transactions keep
	// each mutation atomic; the lock keeps check-then-set sequences from interleaving
	// on backends without row locks.
	mu sync.Mutex
}

// NewCirculationService wires up all dependencies and returns a CirculationService.
func NewCirculationService(
	db *gorm.DB,
	bookRepo repositories.BookRepository,
	studentRepo repositories.StudentRepository,
	txnRepo repositories.TransactionRepository,
	seqRepo repositories.SequenceRepository,
	opts ...Option,
) CirculationService {
	s := &circulationService{
		db:          db,
		bookRepo:    bookRepo,
		studentRepo: studentRepo,
		txnRepo:     txnRepo,
		seqRepo:     seqRepo,
		now:         func() time.Time { return time.Now().UTC() },
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New builds a CirculationService with the default gorm repositories.
func New(db *gorm.DB, opts ...Option) CirculationService {
	return NewCirculationService(
		db,
		repositories.NewBookRepository(db),
		repositories.NewStudentRepository(db),
		repositories.NewTransactionRepository(db),
		repositories.NewSequenceRepository(db),
		opts...,
	)
}

func (s *circulationService) clock() time.Time {
	return s.now().UTC()
}

// fail records a rejected operation and hands the error back.
func (s *circulationService) fail(op string, err error, attrs ...any) error {
	kind := Kind(err)
	metrics.OperationFailed(op, kind)
	attrs = append(attrs, "err", err)
	if kind == "storage_unavailable" {
		s.log.Error(op+": transaction failed", attrs...)
	} else {
		s.log.Warn(op+": rejected", attrs...)
	}
	return err
}

// ─── Catalogue ────────────────────────────────────────────────────────────────

// AddBook registers a new book as Available.
func (s *circulationService) AddBook(ctx context.Context, in NewBook) (*models.Book, error) {
	in.normalize()
	if err := validateInput(in); err != nil {
		return nil, s.fail("AddBook", err, "book_id", in.ID)
	}

	book := &models.Book{
		ID:       in.ID,
		Title:    in.Title,
		Author:   in.Author,
		ISBN:     in.ISBN,
		Category: in.Category,
		Status:   models.BookStatusAvailable,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.bookRepo.Exists(tx, book.ID)
		if err != nil {
			return storageError("AddBook: check id", err)
		}
		if exists {
			return ErrBookExists
		}
		if err := s.bookRepo.Create(tx, book); err != nil {
			if isUniqueViolation(err) {
				return ErrBookExists
			}
			return storageError("AddBook: insert", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("AddBook", err, "book_id", book.ID)
	}
	s.log.Info("AddBook: book added", "book_id", book.ID, "title", book.Title, "category", book.Category)
	return book, nil
}

// AddStudent registers a new student with no books issued.
func (s *circulationService) AddStudent(ctx context.Context, in NewStudent) (*models.Student, error) {
	in.normalize()
	if err := validateInput(in); err != nil {
		return nil, s.fail("AddStudent", err, "student_id", in.ID)
	}

	student := &models.Student{
		ID:          in.ID,
		Name:        in.Name,
		Email:       in.Email,
		Phone:       in.Phone,
		BooksIssued: 0,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		exists, err := s.studentRepo.Exists(tx, student.ID)
		if err != nil {
			return storageError("AddStudent: check id", err)
		}
		if exists {
			return ErrStudentExists
		}
		if err := s.studentRepo.Create(tx, student); err != nil {
			if isUniqueViolation(err) {
				return ErrStudentExists
			}
			return storageError("AddStudent: insert", err)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("AddStudent", err, "student_id", student.ID)
	}
	s.log.Info("AddStudent: student added", "student_id", student.ID, "name", student.Name)
	return student, nil
}

// ─── Issue ────────────────────────────────────────────────────────────────────

// IssueBook lends a book to a student.
//
// Steps (all in one transaction):
//  1. Lock the book row and require it to be Available.
//  2. Lock the student row and require fewer than MaxBooksPerStudent loans.
//  3. Allocate the next transaction id from the sequence.
//  4. Insert the Issued transaction (due LoanPeriodDays later).
//  5. Mark the book Issued and bump the student's issued count.
func (s *circulationService) IssueBook(ctx context.Context, in IssueRequest) (*models.Transaction, error) {
	in.normalize()
	if err := validateInput(in); err != nil {
		return nil, s.fail("IssueBook", err, "book_id", in.BookID, "student_id", in.StudentID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var issued *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, in.BookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return storageError("IssueBook: load book", err)
		}
		if book.Status == models.BookStatusIssued {
			return ErrBookAlreadyIssued
		}

		student, err := s.studentRepo.GetByIDForUpdate(tx, in.StudentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStudentNotFound
			}
			return storageError("IssueBook: load student", err)
		}
		if student.BooksIssued >= MaxBooksPerStudent {
			return ErrBookLimitReached
		}

		seq, err := s.seqRepo.Next(tx, transactionSequence)
		if err != nil {
			return storageError("IssueBook: allocate id", err)
		}

		now := s.clock()
		txn := &models.Transaction{
			ID:        FormatTransactionID(seq),
			BookID:    book.ID,
			StudentID: student.ID,
			RFID:      in.RFID,
			IssuedAt:  now,
			DueAt:     DueDate(now),
			Status:    models.TransactionStatusIssued,
			Fee:       0,
		}
		if err := s.txnRepo.Create(tx, txn); err != nil {
			return storageError("IssueBook: insert transaction", err)
		}

		if err := s.bookRepo.UpdateStatus(tx, book.ID, models.BookStatusAvailable, models.BookStatusIssued); err != nil {
			if errors.Is(err, repositories.ErrNoRowsAffected) {
				return ErrBookAlreadyIssued
			}
			return storageError("IssueBook: mark book issued", err)
		}
		if err := s.studentRepo.IncrementBooksIssued(tx, student.ID, MaxBooksPerStudent); err != nil {
			if errors.Is(err, repositories.ErrNoRowsAffected) {
				return ErrBookLimitReached
			}
			return storageError("IssueBook: increment issued count", err)
		}
		issued = txn
		return nil
	})
	if err != nil {
		return nil, s.fail("IssueBook", err, "book_id", in.BookID, "student_id", in.StudentID)
	}

	metrics.BookIssued()
	s.log.Info("IssueBook: book issued",
		"transaction_id", issued.ID,
		"book_id", issued.BookID,
		"student_id", issued.StudentID,
		"rfid", issued.RFID,
		"due", issued.DueAt.Format("2006-01-02"),
	)
	return issued, nil
}

// ─── Return ───────────────────────────────────────────────────────────────────

// ReturnBook closes the open loan of a book by a student and charges any late fee.
//
// Steps (all in one transaction):
//  1. Lock the book row and require it to be Issued.
//  2. Lock the student row.
//  3. Lock the matching Issued transaction.
//  4. Compute the fee from whole days past due.
//  5. Mark the transaction Returned, the book Available, and decrement the issued count.
func (s *circulationService) ReturnBook(ctx context.Context, in ReturnRequest) (*models.Transaction, error) {
	in.normalize()
	if err := validateInput(in); err != nil {
		return nil, s.fail("ReturnBook", err, "book_id", in.BookID, "student_id", in.StudentID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var returned *models.Transaction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		book, err := s.bookRepo.GetByIDForUpdate(tx, in.BookID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBookNotFound
			}
			return storageError("ReturnBook: load book", err)
		}
		if book.Status == models.BookStatusAvailable {
			return ErrBookAlreadyAvailable
		}

		student, err := s.studentRepo.GetByIDForUpdate(tx, in.StudentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrStudentNotFound
			}
			return storageError("ReturnBook: load student", err)
		}

		txn, err := s.txnRepo.FindActiveForUpdate(tx, book.ID, student.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoActiveLoan
			}
			return storageError("ReturnBook: load transaction", err)
		}

		now := s.clock()
		fee := CalculateFee(txn.DueAt, now)

		if err := s.txnRepo.MarkReturned(tx, txn.ID, now, fee); err != nil {
			if errors.Is(err, repositories.ErrNoRowsAffected) {
				return ErrNoActiveLoan
			}
			return storageError("ReturnBook: mark returned", err)
		}
		if err := s.bookRepo.UpdateStatus(tx, book.ID, models.BookStatusIssued, models.BookStatusAvailable); err != nil {
			if errors.Is(err, repositories.ErrNoRowsAffected) {
				return ErrBookAlreadyAvailable
			}
			return storageError("ReturnBook: mark book available", err)
		}
		if err := s.studentRepo.DecrementBooksIssued(tx, student.ID); err != nil {
			if errors.Is(err, repositories.ErrNoRowsAffected) {
				return ErrIssuedCountMismatch
			}
			return storageError("ReturnBook: decrement issued count", err)
		}

		txn.ReturnedAt = &now
		txn.Status = models.TransactionStatusReturned
		txn.Fee = fee
		returned = txn
		return nil
	})
	if err != nil {
		return nil, s.fail("ReturnBook", err, "book_id", in.BookID, "student_id", in.StudentID)
	}

	metrics.BookReturned(returned.Fee)
	s.log.Info("ReturnBook: book returned",
		"transaction_id", returned.ID,
		"book_id", returned.BookID,
		"student_id", returned.StudentID,
		"fee", returned.Fee,
	)
	return returned, nil
}
