package internaldefs

import (
	goDeliver "github.com/MrEthical07/goDeliver"
)

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   goDeliver.MetricID
	Name string
	Help string
}

// HistogramDef names one engine latency histogram for export.
type HistogramDef struct {
	ID   goDeliver.MetricID
	Name string
	Help string
}

const (
	// AuditDroppedName is the exported name of the audit backpressure counter.
	AuditDroppedName = "godeliver_audit_dropped_total"
	AuditDroppedHelp = "Audit events dropped because the dispatcher buffer was full."
)

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: goDeliver.MetricCheckoutSuccess, Name: "godeliver_checkout_success_total", Help: "Checkouts that produced an invoice."},
	{ID: goDeliver.MetricCheckoutFailure, Name: "godeliver_checkout_failure_total", Help: "Checkouts that returned an error."},
	{ID: goDeliver.MetricCheckoutEmptyCart, Name: "godeliver_checkout_empty_cart_total", Help: "Checkouts rejected for an empty cart."},
	{ID: goDeliver.MetricCheckoutUnknownAccount, Name: "godeliver_checkout_unknown_account_total", Help: "Checkouts rejected for an unknown account."},
	{ID: goDeliver.MetricCheckoutRenderFailed, Name: "godeliver_checkout_render_failed_total", Help: "Checkouts whose invoice failed to render."},
	{ID: goDeliver.MetricOTPIssued, Name: "godeliver_otp_issued_total", Help: "One-time passwords issued."},
	{ID: goDeliver.MetricOTPRedeemed, Name: "godeliver_otp_redeemed_total", Help: "One-time passwords exchanged for a download token."},
	{ID: goDeliver.MetricOTPDenied, Name: "godeliver_otp_denied_total", Help: "Denied one-time password exchanges."},
	{ID: goDeliver.MetricTokenConsumed, Name: "godeliver_token_consumed_total", Help: "Download tokens spent."},
	{ID: goDeliver.MetricTokenDenied, Name: "godeliver_token_denied_total", Help: "Fetches with an unknown, spent or malformed token."},
	{ID: goDeliver.MetricTokenExpired, Name: "godeliver_token_expired_total", Help: "Fetches with an expired token."},
	{ID: goDeliver.MetricStatusCheck, Name: "godeliver_status_check_total", Help: "One-time password status checks."},
	{ID: goDeliver.MetricSweepReclaimed, Name: "godeliver_sweep_reclaimed_total", Help: "Expired credentials reclaimed by the sweeper."},
}

// HistogramDefs lists every exported latency histogram.
var HistogramDefs = []HistogramDef{
	{ID: goDeliver.MetricCheckoutLatency, Name: "godeliver_checkout_latency_seconds", Help: "Time from cart submission to rendered invoice."},
}

// HistogramBounds are the upper bounds of the engine's eight latency buckets.
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

// Source is what both exporters read: the engine or a test double.
type Source interface {
	MetricsSnapshot() goDeliver.MetricsSnapshot
	AuditDropped() uint64
}

// CounterValue is one counter as read at collection time.
type CounterValue struct {
	CounterDef
	Value uint64
}

// HistogramValue is one histogram with running bucket totals. Cumulative[7]
// is the sample count.
type HistogramValue struct {
	HistogramDef
	Cumulative [8]uint64
}

// View is a consistent read of every exported series, in definition order.
type View struct {
	Counters     []CounterValue
	Histograms   []HistogramValue
	AuditDropped uint64
}

// Empty reports whether nothing has been recorded, which is also what a
// source with metrics disabled returns.
func (v View) Empty() bool {
	if v.AuditDropped != 0 {
		return false
	}
	for _, c := range v.Counters {
		if c.Value != 0 {
			return false
		}
	}
	for _, h := range v.Histograms {
		if h.Cumulative[7] != 0 {
			return false
		}
	}
	return true
}

// Read takes one snapshot from src.
func Read(src Source) View {
	snap := src.MetricsSnapshot()
	v := View{
		Counters:     make([]CounterValue, len(CounterDefs)),
		Histograms:   make([]HistogramValue, len(HistogramDefs)),
		AuditDropped: src.AuditDropped(),
	}
	for i, def := range CounterDefs {
		v.Counters[i] = CounterValue{CounterDef: def, Value: snap.Counters[def.ID]}
	}
	for i, def := range HistogramDefs {
		v.Histograms[i] = HistogramValue{HistogramDef: def, Cumulative: cumulative(snap.Histograms[def.ID])}
	}
	return v
}

// cumulative folds per-bucket counts into running totals, treating missing
// buckets as zero.
func cumulative(raw []uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
