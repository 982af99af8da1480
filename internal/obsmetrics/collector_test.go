package obsmetrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestGetCollector_IsSingleton(t *testing.T) {
	a := GetCollector()
	b := GetCollector()
	if a != b {
		t.Error("expected GetCollector to return the same instance")
	}
}

func TestRecordOrder(t *testing.T) {
	c := GetCollector()
	before := testutil.ToFloat64(c.OrdersTotal.WithLabelValues("AAPL", "BUY"))
	c.RecordOrder("AAPL", "BUY")
	after := testutil.ToFloat64(c.OrdersTotal.WithLabelValues("AAPL", "BUY"))
	if after != before+1 {
		t.Errorf("expected counter to increment by 1, went from %v to %v", before, after)
	}
}

func TestRecordRejected(t *testing.T) {
	c := GetCollector()
	before := testutil.ToFloat64(c.OrdersRejected.WithLabelValues("AAPL", "risk_check_failed"))
	c.RecordRejected("AAPL", "risk_check_failed")
	after := testutil.ToFloat64(c.OrdersRejected.WithLabelValues("AAPL", "risk_check_failed"))
	if after != before+1 {
		t.Errorf("expected rejected counter to increment by 1, went from %v to %v", before, after)
	}
}

func TestRecordFill(t *testing.T) {
	c := GetCollector()
	beforeFills := testutil.ToFloat64(c.MatchesTotal.WithLabelValues("MSFT"))
	beforeShares := testutil.ToFloat64(c.MatchedShares.WithLabelValues("MSFT"))

	c.RecordFill("MSFT", 150)

	afterFills := testutil.ToFloat64(c.MatchesTotal.WithLabelValues("MSFT"))
	afterShares := testutil.ToFloat64(c.MatchedShares.WithLabelValues("MSFT"))

	if afterFills != beforeFills+1 {
		t.Errorf("expected fills counter to increment by 1, went from %v to %v", beforeFills, afterFills)
	}
	if afterShares != beforeShares+150 {
		t.Errorf("expected shares counter to increase by 150, went from %v to %v", beforeShares, afterShares)
	}
}

func TestSetBookDepthAndSpread(t *testing.T) {
	c := GetCollector()
	c.SetBookDepth("GOOGL", "bid", 7)
	if got := testutil.ToFloat64(c.BookDepth.WithLabelValues("GOOGL", "bid")); got != 7 {
		t.Errorf("expected book depth gauge 7, got %v", got)
	}

	c.SetSpread("GOOGL", 25)
	if got := testutil.ToFloat64(c.SpreadTicks.WithLabelValues("GOOGL")); got != 25 {
		t.Errorf("expected spread gauge 25, got %v", got)
	}
}

func TestRecordRateLimitHit(t *testing.T) {
	c := GetCollector()
	before := testutil.ToFloat64(c.RateLimitHits.WithLabelValues("TRADER1"))
	c.RecordRateLimitHit("TRADER1")
	after := testutil.ToFloat64(c.RateLimitHits.WithLabelValues("TRADER1"))
	if after != before+1 {
		t.Errorf("expected rate limit hit counter to increment by 1, went from %v to %v", before, after)
	}
}

func TestRecordMatchLatency_DoesNotPanic(t *testing.T) {
	c := GetCollector()
	c.RecordMatchLatency("AAPL", 42*time.Microsecond)
}

func TestTimer_ElapsedIsMonotonicallyNonNegative(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	if timer.Elapsed() <= 0 {
		t.Error("expected positive elapsed duration")
	}
}

func TestHandler_ServesPrometheusFormat(t *testing.T) {
	GetCollector().RecordOrder("AAPL", "SELL")

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !containsMetricName(rec.Body.String(), "lobcore_orders_total") {
		t.Error("expected lobcore_orders_total to appear in /metrics output")
	}
}

func containsMetricName(body, name string) bool {
	for i := 0; i+len(name) <= len(body); i++ {
		if body[i:i+len(name)] == name {
			return true
		}
	}
	return false
}
