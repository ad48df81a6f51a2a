package internaldefs

import (
	goSession "github.com/MrEthical07/goSession"
)

// CounterDef names one counter of [goSession.Metrics].
type CounterDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// HistogramDef names one histogram of [goSession.Metrics].
type HistogramDef struct {
	ID   goSession.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter.
var CounterDefs = []CounterDef{
	{ID: goSession.MetricLoginSuccess, Name: "gosession_login_success_total", Help: "Logins that stored a session."},
	{ID: goSession.MetricLoginFailure, Name: "gosession_login_failure_total", Help: "Logins rejected by the server or the network."},
	{ID: goSession.MetricLoginProtocolError, Name: "gosession_login_protocol_error_total", Help: "Login responses missing a token or user."},
	{ID: goSession.MetricLogout, Name: "gosession_logout_total", Help: "User-initiated logouts."},
	{ID: goSession.MetricLogoutNotifyFailure, Name: "gosession_logout_notify_failure_total", Help: "Logouts whose server notification failed."},
	{ID: goSession.MetricRefreshSuccess, Name: "gosession_refresh_success_total", Help: "Refresh calls that stored new tokens."},
	{ID: goSession.MetricRefreshFailure, Name: "gosession_refresh_failure_total", Help: "Refresh calls that failed."},
	{ID: goSession.MetricRefreshCoalesced, Name: "gosession_refresh_coalesced_total", Help: "Callers that shared an in-flight refresh."},
	{ID: goSession.MetricRefreshDiscarded, Name: "gosession_refresh_discarded_total", Help: "Refresh results dropped after the session changed."},
	{ID: goSession.MetricRequestRetried, Name: "gosession_request_retried_total", Help: "Requests resent after a 401."},
	{ID: goSession.MetricRequestUnauthorized, Name: "gosession_request_unauthorized_total", Help: "Requests left with a 401 after a failed refresh."},
	{ID: goSession.MetricVerifySuccess, Name: "gosession_verify_success_total", Help: "Server-side token verifications that passed."},
	{ID: goSession.MetricVerifyFailure, Name: "gosession_verify_failure_total", Help: "Server-side token verifications that failed."},
	{ID: goSession.MetricDecodeFailure, Name: "gosession_decode_failure_total", Help: "Stored access tokens that could not be decoded."},
	{ID: goSession.MetricCorruptProfile, Name: "gosession_corrupt_profile_total", Help: "Stored user profiles that could not be parsed."},
	{ID: goSession.MetricSessionInvalidated, Name: "gosession_session_invalidated_total", Help: "Forced session invalidations."},
	{ID: goSession.MetricStoreError, Name: "gosession_store_error_total", Help: "Session store failures."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: goSession.MetricRefreshLatency, Name: "gosession_refresh_latency_seconds", Help: "Refresh round-trip latency histogram."},
}

// AuditDroppedName is the counter of audit events dropped on a full buffer.
const (
	AuditDroppedName = "gosession_audit_dropped_total"
	AuditDroppedHelp = "Dropped audit events due to dispatcher backpressure."

	AuditDroppedByEventName = "gosession_audit_dropped_by_event_total"
	AuditDroppedByEventHelp = "Dropped audit events by event type."
)

// HistogramBounds are the upper bounds of the eight latency buckets, in
// seconds.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in a form usable in metric names.
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

// NormalizeBuckets copies raw into a fixed eight-bucket array. Missing
// buckets are zero.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into cumulative counts.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
