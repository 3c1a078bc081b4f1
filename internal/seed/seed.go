// Package seed fills an empty library with sample books, students and loan history.
//
// Everything goes through the public circulation operations. Backdated history is
// produced by replaying issue and return events in time order against a settable clock
// shared with the service, so seeded data obeys the same invariants as live data.
package seed

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"circulation/internal/models"
	"circulation/internal/rfid"
	"circulation/internal/services"
)

var (
	authors = []string{
		"John Smith", "Jane Doe", "Robert Johnson", "Emily Brown", "Michael Wilson",
		"Sarah Davis", "David Miller", "Lisa Anderson", "James Taylor", "Mary Thomas",
	}
	firstNames = []string{
		"John", "Jane", "Michael", "Emily", "David", "Sarah", "James", "Lisa",
		"Robert", "Mary", "William", "Emma", "Daniel", "Sophia", "Matthew",
	}
	lastNames = []string{
		"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
		"Rodriguez", "Martinez", "Hernandez", "Lopez", "Gonzalez", "Wilson", "Anderson",
	}
)

type Options struct {
	Books        int
	Students     int
	Transactions int
	// MaxAgeDays bounds how far in the past a seeded loan may start.
	MaxAgeDays int
	Seed       int64
}

func DefaultOptions() Options {
	return Options{
		Books:        100,
		Students:     25,
		Transactions: 50,
		MaxAgeDays:   30,
		Seed:         time.Now().UnixNano(),
	}
}

func (o Options) validate() error {
	switch {
	case o.Books < 0 || o.Books > 999:
		return fmt.Errorf("books must be between 0 and 999, got %d", o.Books)
	case o.Students < 0 || o.Students > 99999:
		return fmt.Errorf("students must be between 0 and 99999, got %d", o.Students)
	case o.Transactions < 0:
		return fmt.Errorf("transactions must not be negative, got %d", o.Transactions)
	case o.MaxAgeDays < 1:
		return fmt.Errorf("max age must be at least 1 day, got %d", o.MaxAgeDays)
	}
	return nil
}

// Report summarises what a seeding run added.
type Report struct {
	Skipped  bool `json:"skipped"`
	Books    int  `json:"books"`
	Students int  `json:"students"`
	Issued   int  `json:"issued"`
	Returned int  `json:"returned"`
	Rejected int  `json:"rejected"`
}

// Clock is a settable time source. Pass Clock.Now to services.WithClock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{}
}

// Now returns the pinned time, or the wall clock when nothing is pinned.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.now.IsZero() {
		return time.Now().UTC()
	}
	return c.now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}

func (c *Clock) pinned() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type Seeder struct {
	svc   services.CirculationService
	clock *Clock
	log   *slog.Logger
}

// New returns a Seeder. svc must have been built with services.WithClock(clock.Now).
func New(svc services.CirculationService, clock *Clock, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{svc: svc, clock: clock, log: logger}
}

// Run seeds the library unless it already holds books.
func (s *Seeder) Run(ctx context.Context, opts Options) (*Report, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	prev := s.clock.pinned()
	defer s.clock.Set(prev)

	summary, err := s.svc.Summary(ctx)
	if err != nil {
		return nil, err
	}
	if summary.TotalBooks > 0 {
		s.log.Info("seed: catalogue not empty, skipping", "books", summary.TotalBooks)
		return &Report{Skipped: true}, nil
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	scanner := rfid.NewSeededScanner(opts.Seed)
	report := &Report{}
	now := s.clock.Now()

	// Register the catalogue and the students before the oldest possible loan.
	s.clock.Set(now.AddDate(0, 0, -opts.MaxAgeDays-1))

	bookIDs := make([]string, 0, opts.Books)
	for i := 1; i <= opts.Books; i++ {
		in := services.NewBook{
			ID:       fmt.Sprintf("%03d", i),
			Title:    fmt.Sprintf("Book %d", i),
			Author:   authors[rng.Intn(len(authors))],
			ISBN:     fmt.Sprintf("978-%d", 1000000000+rng.Int63n(9000000000)),
			Category: models.Categories[rng.Intn(len(models.Categories))],
		}
		if _, err := s.svc.AddBook(ctx, in); err != nil {
			return report, fmt.Errorf("seed book %s: %w", in.ID, err)
		}
		bookIDs = append(bookIDs, in.ID)
		report.Books++
	}

	studentIDs := make([]string, 0, opts.Students)
	for i := 1; i <= opts.Students; i++ {
		name := firstNames[rng.Intn(len(firstNames))] + " " + lastNames[rng.Intn(len(lastNames))]
		in := services.NewStudent{
			ID:    fmt.Sprintf("STU%05d", i),
			Name:  name,
			Email: strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com",
			Phone: fmt.Sprintf("%d", 1000000000+rng.Int63n(9000000000)),
		}
		if _, err := s.svc.AddStudent(ctx, in); err != nil {
			return report, fmt.Errorf("seed student %s: %w", in.ID, err)
		}
		studentIDs = append(studentIDs, in.ID)
		report.Students++
	}

	if len(bookIDs) == 0 || len(studentIDs) == 0 {
		return report, nil
	}

	loans := planLoans(rng, opts, now, bookIDs, studentIDs)
	if err := s.replay(ctx, loans, now, scanner, report); err != nil {
		return report, err
	}

	s.log.Info("seed: done",
		"books", report.Books,
		"students", report.Students,
		"issued", report.Issued,
		"returned", report.Returned,
		"rejected", report.Rejected,
	)
	return report, nil
}

type plannedLoan struct {
	bookID    string
	studentID string
	issueAt   time.Time
	// returnAt is zero for loans that stay open.
	returnAt time.Time
}

// planLoans draws loan attempts the way a busy desk would produce them: roughly half
// are returned between one and ten days late, the rest remain open.
func planLoans(rng *rand.Rand, opts Options, now time.Time, bookIDs, studentIDs []string) []plannedLoan {
	loans := make([]plannedLoan, 0, opts.Transactions)
	for i := 0; i < opts.Transactions; i++ {
		issueAt := now.AddDate(0, 0, -(1 + rng.Intn(opts.MaxAgeDays))).Add(time.Duration(rng.Intn(86400)) * time.Second)
		l := plannedLoan{
			bookID:    bookIDs[rng.Intn(len(bookIDs))],
			studentID: studentIDs[rng.Intn(len(studentIDs))],
			issueAt:   issueAt,
		}
		if rng.Float64() < 0.5 {
			returnAt := services.DueDate(issueAt).AddDate(0, 0, 1+rng.Intn(10))
			if returnAt.Before(now) {
				l.returnAt = returnAt
			}
		}
		loans = append(loans, l)
	}
	sort.SliceStable(loans, func(i, j int) bool { return loans[i].issueAt.Before(loans[j].issueAt) })
	return loans
}

// replay issues loans in time order, closing every scheduled return that falls due
// before the next issue.
func (s *Seeder) replay(ctx context.Context, loans []plannedLoan, now time.Time, scanner *rfid.Scanner, report *Report) error {
	pending := &returnQueue{}
	for _, l := range loans {
		if err := s.drainReturns(ctx, pending, l.issueAt, report); err != nil {
			return err
		}

		s.clock.Set(l.issueAt)
		_, err := s.svc.IssueBook(ctx, services.IssueRequest{
			BookID:    l.bookID,
			StudentID: l.studentID,
			RFID:      scanner.Scan(),
		})
		switch {
		case err == nil:
			report.Issued++
			if !l.returnAt.IsZero() {
				heap.Push(pending, l)
			}
		case errors.Is(err, services.ErrConflict), errors.Is(err, services.ErrLimitExceeded):
			report.Rejected++
		default:
			return fmt.Errorf("seed issue %s to %s: %w", l.bookID, l.studentID, err)
		}
	}
	return s.drainReturns(ctx, pending, now, report)
}

func (s *Seeder) drainReturns(ctx context.Context, pending *returnQueue, until time.Time, report *Report) error {
	for pending.Len() > 0 && !(*pending)[0].returnAt.After(until) {
		l := heap.Pop(pending).(plannedLoan)
		s.clock.Set(l.returnAt)
		if _, err := s.svc.ReturnBook(ctx, services.ReturnRequest{BookID: l.bookID, StudentID: l.studentID}); err != nil {
			return fmt.Errorf("seed return %s from %s: %w", l.bookID, l.studentID, err)
		}
		report.Returned++
	}
	return nil
}

// returnQueue is a min-heap of loans ordered by return time.
type returnQueue []plannedLoan

func (q returnQueue) Len() int            { return len(q) }
func (q returnQueue) Less(i, j int) bool  { return q[i].returnAt.Before(q[j].returnAt) }
func (q returnQueue) Swap(i, j int)       { q[i], q[j] = q[j], q[i] }
func (q *returnQueue) Push(x interface{}) { *q = append(*q, x.(plannedLoan)) }
func (q *returnQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}
