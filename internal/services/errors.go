package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// ─── Error Kinds ──────────────────────────────────────────────────────────────

// Every error returned by the circulation service wraps exactly one of these kinds, so
// callers can branch with errors.Is without knowing the specific failure.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrLimitExceeded      = errors.New("limit exceeded")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ─── Sentinel Errors ──────────────────────────────────────────────────────────

var (
	// ErrBookExists is returned when add-book is called with an id already in the catalogue.
	ErrBookExists = newDomainError(ErrConflict, "book id already exists")

	// ErrStudentExists is returned when add-student is called with an id already registered.
	ErrStudentExists = newDomainError(ErrConflict, "student id already exists")

	ErrBookNotFound    = newDomainError(ErrNotFound, "book not found")
	ErrStudentNotFound = newDomainError(ErrNotFound, "student not found")

	// ErrNoActiveLoan is returned when a return names a (book, student) pair with no open loan.
	ErrNoActiveLoan = newDomainError(ErrNotFound, "no active issue found for this book and student")

	ErrBookAlreadyIssued    = newDomainError(ErrConflict, "book is already issued")
	ErrBookAlreadyAvailable = newDomainError(ErrConflict, "book is already available")

	// ErrIssuedCountMismatch is returned when a return would drive a student's issued
	// count below zero. The return is rolled back.
	ErrIssuedCountMismatch = newDomainError(ErrConflict, "student has no issued books on record")

	// ErrBookLimitReached is returned when the student already holds MaxBooksPerStudent books.
	ErrBookLimitReached = newDomainError(ErrLimitExceeded, "student has reached maximum book limit")
)

type domainError struct {
	kind error
	msg  string
}

func newDomainError(kind error, msg string) error {
	return &domainError{kind: kind, msg: msg}
}

func (e *domainError) Error() string { return e.msg }
func (e *domainError) Unwrap() error { return e.kind }

// ValidationError lists every rejected input field with a human readable reason.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// storageError marks an unexpected persistence failure.
func storageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// Kind names the error kind of err for transport layers and metrics.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrLimitExceeded):
		return "limit_exceeded"
	default:
		return "storage_unavailable"
	}
}

// isUniqueViolation reports a primary-key or unique-index collision on either backend.
// PostgreSQL error code 23505 = unique_violation.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
