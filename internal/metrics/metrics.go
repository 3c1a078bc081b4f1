package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "circulation_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "route"})

	booksIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulation_books_issued_total",
		Help: "Books issued to students",
	})

	booksReturned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulation_books_returned_total",
		Help: "Books returned by students",
	})

	feesCharged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "circulation_fees_charged_total",
		Help: "Late fees charged at return, in currency units",
	})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_operation_errors_total",
		Help: "Rejected or failed circulation operations",
	}, []string{"operation", "kind"})
)

func BookIssued() {
	booksIssued.Inc()
}

// BookReturned counts a completed return and the fee charged for it.
func BookReturned(fee int) {
	booksReturned.Inc()
	if fee > 0 {
		feesCharged.Add(float64(fee))
	}
}

func OperationFailed(operation, kind string) {
	operationErrors.WithLabelValues(operation, kind).Inc()
}
