package repositories

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"circulation/internal/models"
)

// ErrNoRowsAffected is returned by guarded updates whose WHERE clause matched nothing.
var ErrNoRowsAffected = errors.New("no rows affected")

type BookRepository interface {
	Create(db *gorm.DB, book *models.Book) error
	GetByIDForUpdate(db *gorm.DB, id string) (*models.Book, error)
	Exists(db *gorm.DB, id string) (bool, error)
	Search(db *gorm.DB, query string) ([]models.Book, error)
	UpdateStatus(db *gorm.DB, id string, from, to models.BookStatus) error
	Count(db *gorm.DB) (int64, error)
	CountByCategory(db *gorm.DB) ([]CategoryCount, error)
}

type StudentRepository interface {
	Create(db *gorm.DB, student *models.Student) error
	GetByIDForUpdate(db *gorm.DB, id string) (*models.Student, error)
	Exists(db *gorm.DB, id string) (bool, error)
	Search(db *gorm.DB, query string) ([]models.Student, error)
	IncrementBooksIssued(db *gorm.DB, id string, limit int) error
	DecrementBooksIssued(db *gorm.DB, id string) error
	Count(db *gorm.DB) (int64, error)
}

type TransactionRepository interface {
	Create(db *gorm.DB, txn *models.Transaction) error
	FindActiveForUpdate(db *gorm.DB, bookID, studentID string) (*models.Transaction, error)
	MarkReturned(db *gorm.DB, id string, returnedAt time.Time, fee int) error
	Search(db *gorm.DB, query string) ([]models.Transaction, error)
	ListActive(db *gorm.DB) ([]models.Transaction, error)
	ListActiveByStudents(db *gorm.DB, studentIDs []string) ([]models.Transaction, error)
	MostIssued(db *gorm.DB, limit int) ([]IssueCount, error)
}

type SequenceRepository interface {
	Next(db *gorm.DB, name string) (int64, error)
}

// CategoryCount is one row of the per-category catalogue breakdown.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// IssueCount is the number of transactions ever recorded against a book.
type IssueCount struct {
	BookID string `json:"book_id"`
	Title  string `json:"title"`
	Count  int64  `json:"issue_count"`
}

// forUpdate adds a row lock on dialects that support one. SQLite serializes writers at
// the database level instead.
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// likePattern builds a case-insensitive substring pattern with LIKE wildcards escaped.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(query)) + "%"
}

// concrete implementations

type bookRepository struct {
	db *gorm.DB
}

func NewBookRepository(db *gorm.DB) BookRepository {
	return &bookRepository{db: db}
}

func (r *bookRepository) Create(db *gorm.DB, book *models.Book) error {
	if db == nil {
		db = r.db
	}
	return db.Create(book).Error
}

func (r *bookRepository) GetByIDForUpdate(db *gorm.DB, id string) (*models.Book, error) {
	if db == nil {
		db = r.db
	}
	var book models.Book
	if err := forUpdate(db).First(&book, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &book, nil
}

func (r *bookRepository) Exists(db *gorm.DB, id string) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	if err := db.Model(&models.Book{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *bookRepository) Search(db *gorm.DB, query string) ([]models.Book, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Book{})
	if query != "" {
		p := likePattern(query)
		q = q.Where(`LOWER(title) LIKE ? ESCAPE '\' OR LOWER(author) LIKE ? ESCAPE '\' OR LOWER(id) LIKE ? ESCAPE '\'`, p, p, p)
	}
	books := []models.Book{}
	if err := q.Order("id").Find(&books).Error; err != nil {
		return nil, err
	}
	return books, nil
}

// UpdateStatus moves a book from one status to another. The current status is part of
// the WHERE clause so a stale caller cannot overwrite a concurrent change.
func (r *bookRepository) UpdateStatus(db *gorm.DB, id string, from, to models.BookStatus) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Book{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("book %s not in status %s: %w", id, from, ErrNoRowsAffected)
	}
	return nil
}

func (r *bookRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Book{}).Count(&n).Error
	return n, err
}

func (r *bookRepository) CountByCategory(db *gorm.DB) ([]CategoryCount, error) {
	if db == nil {
		db = r.db
	}
	counts := []CategoryCount{}
	err := db.Model(&models.Book{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Order("count DESC, category ASC").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

type studentRepository struct {
	db *gorm.DB
}

func NewStudentRepository(db *gorm.DB) StudentRepository {
	return &studentRepository{db: db}
}

func (r *studentRepository) Create(db *gorm.DB, student *models.Student) error {
	if db == nil {
		db = r.db
	}
	return db.Create(student).Error
}

func (r *studentRepository) GetByIDForUpdate(db *gorm.DB, id string) (*models.Student, error) {
	if db == nil {
		db = r.db
	}
	var student models.Student
	if err := forUpdate(db).First(&student, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepository) Exists(db *gorm.DB, id string) (bool, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	if err := db.Model(&models.Student{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *studentRepository) Search(db *gorm.DB, query string) ([]models.Student, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Student{})
	if query != "" {
		p := likePattern(query)
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\' OR LOWER(id) LIKE ? ESCAPE '\'`, p, p)
	}
	students := []models.Student{}
	if err := q.Order("id").Find(&students).Error; err != nil {
		return nil, err
	}
	return students, nil
}

// IncrementBooksIssued bumps the loan counter unless the student already holds limit books.
func (r *studentRepository) IncrementBooksIssued(db *gorm.DB, id string, limit int) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Student{}).
		Where("id = ? AND books_issued < ?", id, limit).
		UpdateColumn("books_issued", gorm.Expr("books_issued + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("student %s at limit %d: %w", id, limit, ErrNoRowsAffected)
	}
	return nil
}

// DecrementBooksIssued lowers the loan counter, never below zero.
func (r *studentRepository) DecrementBooksIssued(db *gorm.DB, id string) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Student{}).
		Where("id = ? AND books_issued > 0", id).
		UpdateColumn("books_issued", gorm.Expr("books_issued - 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("student %s has no issued books: %w", id, ErrNoRowsAffected)
	}
	return nil
}

func (r *studentRepository) Count(db *gorm.DB) (int64, error) {
	if db == nil {
		db = r.db
	}
	var n int64
	err := db.Model(&models.Student{}).Count(&n).Error
	return n, err
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) Create(db *gorm.DB, txn *models.Transaction) error {
	if db == nil {
		db = r.db
	}
	return db.Omit(clause.Associations).Create(txn).Error
}

func (r *transactionRepository) FindActiveForUpdate(db *gorm.DB, bookID, studentID string) (*models.Transaction, error) {
	if db == nil {
		db = r.db
	}
	var txn models.Transaction
	err := forUpdate(db).
		Where("book_id = ? AND student_id = ? AND status = ?", bookID, studentID, models.TransactionStatusIssued).
		Order("issued_at DESC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) MarkReturned(db *gorm.DB, id string, returnedAt time.Time, fee int) error {
	if db == nil {
		db = r.db
	}
	res := db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusIssued).
		Updates(map[string]interface{}{
			"returned_at": returnedAt,
			"status":      models.TransactionStatusReturned,
			"fee":         fee,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("transaction %s already returned: %w", id, ErrNoRowsAffected)
	}
	return nil
}

func (r *transactionRepository) Search(db *gorm.DB, query string) ([]models.Transaction, error) {
	if db == nil {
		db = r.db
	}
	q := db.Model(&models.Transaction{}).Preload("Book").Preload("Student")
	if query != "" {
		p := likePattern(query)
		q = q.Where(`LOWER(id) LIKE ? ESCAPE '\' OR LOWER(book_id) LIKE ? ESCAPE '\' OR LOWER(student_id) LIKE ? ESCAPE '\'`, p, p, p)
	}
	txns := []models.Transaction{}
	if err := q.Order("issued_at DESC, id DESC").Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) ListActive(db *gorm.DB) ([]models.Transaction, error) {
	if db == nil {
		db = r.db
	}
	txns := []models.Transaction{}
	err := db.Preload("Book").Preload("Student").
		Where("status = ?", models.TransactionStatusIssued).
		Order("due_at ASC, id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) ListActiveByStudents(db *gorm.DB, studentIDs []string) ([]models.Transaction, error) {
	if db == nil {
		db = r.db
	}
	txns := []models.Transaction{}
	if len(studentIDs) == 0 {
		return txns, nil
	}
	err := db.Preload("Book").
		Where("status = ? AND student_id IN ?", models.TransactionStatusIssued, studentIDs).
		Order("issued_at ASC, id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *transactionRepository) MostIssued(db *gorm.DB, limit int) ([]IssueCount, error) {
	if db == nil {
		db = r.db
	}
	counts := []IssueCount{}
	err := db.Table("transactions").
		Select("transactions.book_id AS book_id, books.title AS title, COUNT(*) AS count").
		Joins("JOIN books ON books.id = transactions.book_id").
		Group("transactions.book_id, books.title").
		Order("count DESC, transactions.book_id ASC").
		Limit(limit).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

type sequenceRepository struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepository{db: db}
}

// Next atomically advances the named sequence and returns the new value. It must run
// inside the caller's transaction so the allocation rolls back with it.
func (r *sequenceRepository) Next(db *gorm.DB, name string) (int64, error) {
	if db == nil {
		db = r.db
	}
	seq := models.Sequence{Name: name}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seq).Error; err != nil {
		return 0, err
	}
	res := db.Model(&models.Sequence{}).
		Where("name = ?", name).
		UpdateColumn("value", gorm.Expr("value + 1"))
	if res.Error != nil {
		return 0, res.Error
	}
	if err := db.First(&seq, "name = ?", name).Error; err != nil {
		return 0, err
	}
	return seq.Value, nil
}
