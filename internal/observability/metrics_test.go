package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTransferCountsBytes(t *testing.T) {
	before := testutil.ToFloat64(transferBytes.WithLabelValues("inbound"))
	RecordTransfer("inbound", "completed", 524288)
	RecordTransfer("inbound", "aborted", 0)

	got := testutil.ToFloat64(transferBytes.WithLabelValues("inbound")) - before
	if got != 524288 {
		t.Fatalf("bytes delta = %v, want 524288", got)
	}
	if n := testutil.ToFloat64(transfers.WithLabelValues("inbound", "aborted")); n < 1 {
		t.Fatalf("aborted counter = %v", n)
	}
}

func TestSessionGauge(t *testing.T) {
	before := testutil.ToFloat64(sessionsActive)
	SessionOpened()
	SessionOpened()
	SessionClosed()
	if got := testutil.ToFloat64(sessionsActive) - before; got != 1 {
		t.Fatalf("gauge delta = %v, want 1", got)
	}
}
