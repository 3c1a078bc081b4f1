package models

import (
	"time"
)

type BookStatus string

const (
	BookStatusAvailable BookStatus = "Available"
	BookStatusIssued    BookStatus = "Issued"
)

type TransactionStatus string

const (
	TransactionStatusIssued   TransactionStatus = "Issued"
	TransactionStatusReturned TransactionStatus = "Returned"
)

// Categories is the fixed catalogue classification a book must belong to.
var Categories = []string{
	"Fiction",
	"Non-Fiction",
	"Science",
	"Technology",
	"History",
	"Biography",
	"Mathematics",
	"Physics",
	"Chemistry",
	"Biology",
	"Computer Science",
	"Literature",
	"Philosophy",
	"Psychology",
	"Economics",
}

func IsValidCategory(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

type Book struct {
	ID       string     `gorm:"size:3;primaryKey" json:"id"`
	Title    string     `gorm:"size:255;not null" json:"title"`
	Author   string     `gorm:"size:255;not null" json:"author"`
	ISBN     string     `gorm:"size:32;not null" json:"isbn"`
	Category string     `gorm:"size:64;not null;index" json:"category"`
	Status   BookStatus `gorm:"size:16;not null;default:Available;index" json:"status"`
}

type Student struct {
	ID          string `gorm:"size:8;primaryKey" json:"id"`
	Name        string `gorm:"size:255;not null" json:"name"`
	Email       string `gorm:"size:255;not null" json:"email"`
	Phone       string `gorm:"size:32;not null" json:"phone"`
	BooksIssued int    `gorm:"not null;default:0" json:"books_issued"`
}

type Transaction struct {
	ID         string            `gorm:"size:16;primaryKey" json:"id"`
	BookID     string            `gorm:"size:3;not null;index" json:"book_id"`
	Book       Book              `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	StudentID  string            `gorm:"size:8;not null;index" json:"student_id"`
	Student    Student           `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"-"`
	RFID       string            `gorm:"column:rfid;size:64;not null" json:"rfid"`
	IssuedAt   time.Time         `gorm:"not null;index" json:"issue_date"`
	DueAt      time.Time         `gorm:"not null" json:"due_date"`
	ReturnedAt *time.Time        `json:"return_date"`
	Status     TransactionStatus `gorm:"size:16;not null;default:Issued;index" json:"status"`
	Fee        int               `gorm:"not null;default:0" json:"fee"`
}

// Sequence is a named monotonic counter used to allocate record identifiers.
type Sequence struct {
	Name  string `gorm:"size:64;primaryKey"`
	Value int64  `gorm:"not null;default:0"`
}

// All lists every persisted model, in dependency order, for table creation.
func All() []interface{} {
	return []interface{}{
		&Book{},
		&Student{},
		&Transaction{},
		&Sequence{},
	}
}
