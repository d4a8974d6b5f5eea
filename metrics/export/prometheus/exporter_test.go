package prometheus

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrEthical07/authgate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSource struct {
	snapshot authgate.MetricsSnapshot
	dropped  uint64
}

func (f fakeSource) MetricsSnapshot() authgate.MetricsSnapshot { return f.snapshot }
func (f fakeSource) AuditDropped() uint64                      { return f.dropped }

func sampleSource() fakeSource {
	return fakeSource{
		snapshot: authgate.MetricsSnapshot{
			Counters: map[authgate.MetricID]uint64{
				authgate.MetricLoginSuccess:   7,
				authgate.MetricRefreshExpired: 2,
			},
			Histograms: map[authgate.MetricID][]uint64{
				authgate.MetricAuthenticateLatency: {1, 2, 3, 4, 5, 6, 7, 8},
			},
		},
		dropped: 2,
	}
}

func TestCollectorLintsClean(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(sampleSource()))
	if err != nil {
		t.Fatalf("lint failed: %v", err)
	}
	if len(problems) != 0 {
		t.Fatalf("lint problems: %+v", problems)
	}
}

func TestCollectorValues(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(sampleSource())); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	byName := map[string]float64{}
	var histCount uint64
	var firstBucket uint64
	for _, mf := range families {
		m := mf.GetMetric()[0]
		switch {
		case m.GetCounter() != nil:
			byName[mf.GetName()] = m.GetCounter().GetValue()
		case m.GetHistogram() != nil && mf.GetName() == "authgate_authenticate_latency_seconds":
			histCount = m.GetHistogram().GetSampleCount()
			firstBucket = m.GetHistogram().GetBucket()[0].GetCumulativeCount()
		}
	}

	if byName["authgate_login_success_total"] != 7 {
		t.Fatalf("login success = %v", byName["authgate_login_success_total"])
	}
	if byName["authgate_refresh_expired_total"] != 2 {
		t.Fatalf("refresh expired = %v", byName["authgate_refresh_expired_total"])
	}
	if byName["authgate_audit_dropped_total"] != 2 {
		t.Fatalf("audit dropped = %v", byName["authgate_audit_dropped_total"])
	}
	if histCount != 36 || firstBucket != 1 {
		t.Fatalf("histogram count=%d first bucket=%d", histCount, firstBucket)
	}
}

func TestHandlerServesTextFormat(t *testing.T) {
	h, err := Handler(sampleSource())
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	out := string(body)
	if !strings.Contains(out, "authgate_login_success_total 7") {
		t.Fatalf("expected login counter, got:\n%s", out)
	}
	if !strings.Contains(out, `authgate_authenticate_latency_seconds_bucket{le="+Inf"} 36`) {
		t.Fatalf("expected +Inf bucket, got:\n%s", out)
	}
}
