package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTimer(t *testing.T) {
	timer := NewTimer("ListSets")
	time.Sleep(5 * time.Millisecond)
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}

func TestObserveRequest(t *testing.T) {
	t.Run("success increments the success counter", func(t *testing.T) {
		before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GetRecord", "success"))
		ObserveRequest("GetRecord", 10*time.Millisecond, nil)
		assert.Equal(t, before+1,
			testutil.ToFloat64(RequestsTotal.WithLabelValues("GetRecord", "success")))
	})

	t.Run("failure increments the failure counter", func(t *testing.T) {
		before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GetRecord", "failure"))
		ObserveRequest("GetRecord", 10*time.Millisecond, assert.AnError)
		assert.Equal(t, before+1,
			testutil.ToFloat64(RequestsTotal.WithLabelValues("GetRecord", "failure")))
	})
}
