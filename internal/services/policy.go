package services

import (
	"fmt"
	"time"
)

// ─── Circulation Policy ───────────────────────────────────────────────────────

const (
	// LoanPeriodDays is the number of days a student may keep a book before it is overdue.
	LoanPeriodDays = 14

	// FinePerDay is the fee (in currency units) charged per whole day overdue.
	FinePerDay = 10

	// MaxBooksPerStudent caps the number of books a student may hold at once.
	MaxBooksPerStudent = 3

	// BlockedAfterDays is the overdue age past which a student is blocked.
	BlockedAfterDays = 14
)

const day = 24 * time.Hour

type LibraryStatus string

const (
	LibraryStatusOK      LibraryStatus = "OK"
	LibraryStatusWarning LibraryStatus = "Warning"
	LibraryStatusBlocked LibraryStatus = "Blocked"
)

// DueDate returns the fixed due timestamp of a loan issued at issuedAt.
func DueDate(issuedAt time.Time) time.Time {
	return issuedAt.AddDate(0, 0, LoanPeriodDays)
}

// IsOverdue reports whether an open loan is past due at now.
func IsOverdue(due, now time.Time) bool {
	return now.After(due)
}

// OverdueDays is the number of whole days now lies past due, or 0 if it does not.
func OverdueDays(due, now time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(now.Sub(due) / day)
}

// CalculateFee computes the late fee of a loan closed (or valued) at the given time.
//
// A partial day late is free; each whole day costs FinePerDay.
func CalculateFee(due, at time.Time) int {
	return OverdueDays(due, at) * FinePerDay
}

// DetermineLibraryStatus derives a student's standing from their open loans.
func DetermineLibraryStatus(overdueLoans, maxOverdueDays int) LibraryStatus {
	switch {
	case maxOverdueDays > BlockedAfterDays:
		return LibraryStatusBlocked
	case overdueLoans > 0:
		return LibraryStatusWarning
	default:
		return LibraryStatusOK
	}
}

// FormatTransactionID renders a sequence value as a transaction identifier.
func FormatTransactionID(seq int64) string {
	return fmt.Sprintf("T%03d", seq)
}
