package services

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"circulation/internal/models"
)

var (
	bookIDPattern    = regexp.MustCompile(`^[0-9]{3}$`)
	studentIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)
)

// NewBook is the input of AddBook.
type NewBook struct {
	ID       string `json:"book_id" validate:"required,bookid"`
	Title    string `json:"title" validate:"required"`
	Author   string `json:"author" validate:"required"`
	ISBN     string `json:"isbn" validate:"required"`
	Category string `json:"category" validate:"required,category"`
}

// NewStudent is the input of AddStudent.
type NewStudent struct {
	ID    string `json:"student_id" validate:"required,studentid"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required"`
	Phone string `json:"phone" validate:"required"`
}

// IssueRequest is the input of IssueBook.
type IssueRequest struct {
	BookID    string `json:"book_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
	RFID      string `json:"rfid" validate:"required"`
}

// ReturnRequest is the input of ReturnBook.
type ReturnRequest struct {
	BookID    string `json:"book_id" validate:"required"`
	StudentID string `json:"student_id" validate:"required"`
}

func (in *NewBook) normalize() {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Author = strings.TrimSpace(in.Author)
	in.ISBN = strings.TrimSpace(in.ISBN)
	in.Category = strings.TrimSpace(in.Category)
}

func (in *NewStudent) normalize() {
	in.ID = strings.TrimSpace(in.ID)
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	in.Phone = strings.TrimSpace(in.Phone)
}

func (in *IssueRequest) normalize() {
	in.BookID = strings.TrimSpace(in.BookID)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.RFID = strings.TrimSpace(in.RFID)
}

func (in *ReturnRequest) normalize() {
	in.BookID = strings.TrimSpace(in.BookID)
	in.StudentID = strings.TrimSpace(in.StudentID)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	// Registration only fails on an empty tag or nil func.
	_ = v.RegisterValidation("bookid", func(fl validator.FieldLevel) bool {
		return bookIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("studentid", func(fl validator.FieldLevel) bool {
		return studentIDPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return models.IsValidCategory(fl.Field().String())
	})
	return v
}

// validateInput runs struct validation and converts failures into a ValidationError.
func validateInput(in interface{}) error {
	err := validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Fields: map[string]string{"input": err.Error()}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fieldMessage(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "bookid":
		return "book id must be 3 digits"
	case "studentid":
		return "student id must be 8 alphanumeric characters"
	case "category":
		return "category must be one of: " + strings.Join(models.Categories, ", ")
	default:
		return fe.Field() + " is invalid"
	}
}
