package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"circulation/internal/models"
	"circulation/internal/rfid"
	"circulation/internal/services"
)

// Deps are the collaborators the HTTP layer calls into.
type Deps struct {
	Service services.CirculationService
	Scanner *rfid.Scanner
	// Ping reports storage reachability for /health.
	Ping func(ctx context.Context) error
	// WriteMiddleware runs in front of every mutating route.
	WriteMiddleware []gin.HandlerFunc
}

type LibraryHandler struct {
	svc     services.CirculationService
	scanner *rfid.Scanner
	ping    func(ctx context.Context) error
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	h := &LibraryHandler{svc: deps.Service, scanner: deps.Scanner, ping: deps.Ping}
	if h.scanner == nil {
		h.scanner = rfid.NewScanner()
	}

	// Circulation desk endpoints
	w := r.Group("/", deps.WriteMiddleware...)
	w.POST("/books", h.addBook)
	w.POST("/students", h.addStudent)
	w.POST("/transactions/issue", h.issueBook)
	w.POST("/transactions/return", h.returnBook)

	// Views
	r.GET("/books", h.searchBooks)
	r.GET("/students", h.searchStudents)
	r.GET("/transactions", h.searchTransactions)
	r.GET("/stats", h.statistics)
	r.GET("/summary", h.summary)
	r.GET("/categories", h.categories)
	r.GET("/rfid/scan", h.scanRFID)

	// Operations
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// respondError maps a service error kind onto an HTTP status.
func respondError(c *gin.Context, err error) {
	kind := services.Kind(err)
	body := gin.H{"error": err.Error(), "kind": kind}

	var status int
	switch kind {
	case "validation":
		status = http.StatusBadRequest
		var ve *services.ValidationError
		if errors.As(err, &ve) {
			body["fields"] = ve.Fields
		}
	case "conflict":
		status = http.StatusConflict
	case "not_found":
		status = http.StatusNotFound
	case "limit_exceeded":
		status = http.StatusUnprocessableEntity
	default:
		status = http.StatusServiceUnavailable
		body["error"] = services.ErrStorageUnavailable.Error()
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "kind": "validation"})
}

type addBookRequest struct {
	BookID   string `json:"book_id" binding:"required"`
	Title    string `json:"title" binding:"required"`
	Author   string `json:"author" binding:"required"`
	ISBN     string `json:"isbn" binding:"required"`
	Category string `json:"category" binding:"required"`
}

func (h *LibraryHandler) addBook(c *gin.Context) {
	var req addBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	book, err := h.svc.AddBook(c.Request.Context(), services.NewBook{
		ID:       req.BookID,
		Title:    req.Title,
		Author:   req.Author,
		ISBN:     req.ISBN,
		Category: req.Category,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

type addStudentRequest struct {
	StudentID string `json:"student_id" binding:"required"`
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Phone     string `json:"phone" binding:"required"`
}

func (h *LibraryHandler) addStudent(c *gin.Context) {
	var req addStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	student, err := h.svc.AddStudent(c.Request.Context(), services.NewStudent{
		ID:    req.StudentID,
		Name:  req.Name,
		Email: req.Email,
		Phone: req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, student)
}

type issueRequest struct {
	BookID    string `json:"book_id" binding:"required"`
	StudentID string `json:"student_id" binding:"required"`
	RFID      string `json:"rfid" binding:"required"`
}

func (h *LibraryHandler) issueBook(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	txn, err := h.svc.IssueBook(c.Request.Context(), services.IssueRequest{
		BookID:    req.BookID,
		StudentID: req.StudentID,
		RFID:      req.RFID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, txn)
}

type returnRequest struct {
	BookID    string `json:"book_id" binding:"required"`
	StudentID string `json:"student_id" binding:"required"`
}

func (h *LibraryHandler) returnBook(c *gin.Context) {
	var req returnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	txn, err := h.svc.ReturnBook(c.Request.Context(), services.ReturnRequest{
		BookID:    req.BookID,
		StudentID: req.StudentID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *LibraryHandler) searchBooks(c *gin.Context) {
	books, err := h.svc.SearchBooks(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, books)
}

func (h *LibraryHandler) searchStudents(c *gin.Context) {
	students, err := h.svc.SearchStudents(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

func (h *LibraryHandler) searchTransactions(c *gin.Context) {
	txns, err := h.svc.SearchTransactions(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, txns)
}

func (h *LibraryHandler) statistics(c *gin.Context) {
	stats, err := h.svc.Statistics(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *LibraryHandler) summary(c *gin.Context) {
	sum, err := h.svc.Summary(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (h *LibraryHandler) categories(c *gin.Context) {
	c.JSON(http.StatusOK, models.Categories)
}

func (h *LibraryHandler) scanRFID(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rfid": h.scanner.Scan()})
}

func (h *LibraryHandler) health(c *gin.Context) {
	if h.ping != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
