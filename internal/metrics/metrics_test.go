package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookReturnedCountsFees(t *testing.T) {
	returned := testutil.ToFloat64(booksReturned)
	fees := testutil.ToFloat64(feesCharged)

	BookReturned(0)
	BookReturned(30)

	assert.Equal(t, returned+2, testutil.ToFloat64(booksReturned))
	assert.Equal(t, fees+30, testutil.ToFloat64(feesCharged))
}

func TestOperationFailedIsLabelled(t *testing.T) {
	c := operationErrors.WithLabelValues("IssueBook", "conflict")
	before := testutil.ToFloat64(c)

	OperationFailed("IssueBook", "conflict")

	assert.Equal(t, before+1, testutil.ToFloat64(c))
}
