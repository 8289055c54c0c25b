package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRedirectsByOutcome(t *testing.T) {
	before := testutil.ToFloat64(Redirects.WithLabelValues("expired"))
	Redirects.WithLabelValues("expired").Inc()

	if got := testutil.ToFloat64(Redirects.WithLabelValues("expired")); got != before+1 {
		t.Errorf("expired redirects = %v, want %v", got, before+1)
	}
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("GET", "/links", 200, 15*time.Millisecond)

	if n := testutil.CollectAndCount(APIRequestDuration); n < 1 {
		t.Errorf("expected at least one histogram series, got %d", n)
	}
}
