package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAfterInit(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(paymentsSettled.WithLabelValues(ResultError))
	IncPaymentSettled(errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(paymentsSettled.WithLabelValues(ResultError)))

	before = testutil.ToFloat64(overdueMarked)
	AddOverdueMarked(3)
	AddOverdueMarked(0)
	assert.Equal(t, before+3, testutil.ToFloat64(overdueMarked))

	before = testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404"))
	ObserveHTTP("GET", "", "404", time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")))

	before = testutil.ToFloat64(jobRuns.WithLabelValues("overdue_sweep", ResultSuccess))
	ObserveJob("overdue_sweep", nil, time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(jobRuns.WithLabelValues("overdue_sweep", ResultSuccess)))
}
