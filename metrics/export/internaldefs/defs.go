package internaldefs

import (
	"github.com/MrEthical07/authgate"
)

// CounterDef names one engine counter.
type CounterDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram.
type HistogramDef struct {
	ID   authgate.MetricID
	Name string
	Help string
}

// AuditDroppedName is the counter for audit events lost to backpressure.
const AuditDroppedName = "authgate_audit_dropped_total"

var CounterDefs = []CounterDef{
	{ID: authgate.MetricRegisterSuccess, Name: "authgate_register_success_total", Help: "Successful registrations."},
	{ID: authgate.MetricRegisterRejected, Name: "authgate_register_rejected_total", Help: "Registrations rejected by validation."},
	{ID: authgate.MetricRegisterConflict, Name: "authgate_register_conflict_total", Help: "Registrations rejected because login or email is taken."},
	{ID: authgate.MetricLoginSuccess, Name: "authgate_login_success_total", Help: "Successful login attempts."},
	{ID: authgate.MetricLoginFailure, Name: "authgate_login_failure_total", Help: "Failed login attempts."},
	{ID: authgate.MetricLoginRateLimited, Name: "authgate_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: authgate.MetricRefreshSuccess, Name: "authgate_refresh_success_total", Help: "Successful refresh operations."},
	{ID: authgate.MetricRefreshInvalid, Name: "authgate_refresh_invalid_total", Help: "Refresh attempts with unknown or already used tokens."},
	{ID: authgate.MetricRefreshExpired, Name: "authgate_refresh_expired_total", Help: "Refresh attempts with expired tokens."},
	{ID: authgate.MetricLogout, Name: "authgate_logout_total", Help: "Logout operations."},
	{ID: authgate.MetricAuthenticateSuccess, Name: "authgate_authenticate_success_total", Help: "Access tokens resolved to an identity."},
	{ID: authgate.MetricAuthenticateRejected, Name: "authgate_authenticate_rejected_total", Help: "Access tokens rejected."},
	{ID: authgate.MetricSweepRuns, Name: "authgate_sweep_runs_total", Help: "Completed expiry sweeps."},
	{ID: authgate.MetricSweepFailures, Name: "authgate_sweep_failures_total", Help: "Failed expiry sweeps."},
	{ID: authgate.MetricSweptTokens, Name: "authgate_swept_tokens_total", Help: "Refresh tokens removed by sweeps."},
	{ID: authgate.MetricInternalErrors, Name: "authgate_internal_errors_total", Help: "Backend faults surfaced as internal errors."},
}

var HistogramDefs = []HistogramDef{
	{ID: authgate.MetricAuthenticateLatency, Name: "authgate_authenticate_latency_seconds", Help: "Access token authentication latency."},
	{ID: authgate.MetricLoginLatency, Name: "authgate_login_latency_seconds", Help: "Login latency."},
}

// HistogramUpperBounds are the finite bucket bounds in seconds. The eighth bucket
// is +Inf.
var HistogramUpperBounds = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5}

// HistogramBoundSuffix names each bucket for exporters without native histograms.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed-size array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into running totals.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
