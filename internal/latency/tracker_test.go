package latency

import (
	"math"
	"testing"
	"time"
)

func msTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func TestTracker_FirstSampleSetsAverage(t *testing.T) {
	tr := NewTracker(nil)

	base := int64(1_700_000_000_000)
	tr.ObserveEvent(base, msTime(base+120))

	got := tr.Event()
	if got.EMA != 120*time.Millisecond {
		t.Errorf("EMA = %v, want 120ms", got.EMA)
	}
	if got.Samples != 1 {
		t.Errorf("Samples = %d, want 1", got.Samples)
	}
}

func TestTracker_EMASmoothing(t *testing.T) {
	tr := NewTracker(nil)

	base := int64(1_700_000_000_000)
	tr.ObserveEvent(base, msTime(base+100))
	tr.ObserveEvent(base, msTime(base+200))

	// 0.3*200 + 0.7*100 = 130.
	got := tr.Event().EMA
	want := 130 * time.Millisecond
	if diff := got - want; diff < -time.Microsecond || diff > time.Microsecond {
		t.Errorf("EMA = %v, want %v", got, want)
	}
}

func TestTracker_CustomAlpha(t *testing.T) {
	tr := NewTracker(nil, WithAlpha(0.5))

	base := int64(1_700_000_000_000)
	tr.ObserveEvent(base, msTime(base+100))
	tr.ObserveEvent(base, msTime(base+300))

	got := float64(tr.Event().EMA) / float64(time.Millisecond)
	if math.Abs(got-200) > 0.001 {
		t.Errorf("EMA = %vms, want 200ms", got)
	}
}

func TestTracker_RejectsImplausibleTimestamp(t *testing.T) {
	tr := NewTracker(nil)

	// Seconds where milliseconds are expected.
	tr.ObserveEvent(1_700_000_000, time.Now())

	got := tr.Event()
	if got.Samples != 0 {
		t.Errorf("Samples = %d, want 0", got.Samples)
	}
	if got.Rejected != 1 {
		t.Errorf("Rejected = %d, want 1", got.Rejected)
	}
}

func TestTracker_RejectsOutOfRange(t *testing.T) {
	tr := NewTracker(nil)

	base := int64(1_700_000_000_000)
	tr.ObserveEvent(base, msTime(base+100))
	before := tr.Event().EMA

	// Negative latency: venue clock ahead of ours.
	tr.ObserveEvent(base+500, msTime(base+400))
	// Above the sanity bound.
	tr.ObserveEvent(base, msTime(base+15_000))

	got := tr.Event()
	if got.EMA != before {
		t.Errorf("EMA moved on rejected samples: %v != %v", got.EMA, before)
	}
	if got.Rejected != 2 {
		t.Errorf("Rejected = %d, want 2", got.Rejected)
	}
}

func TestTracker_CustomMaxSample(t *testing.T) {
	tr := NewTracker(nil, WithMaxSample(500*time.Millisecond))

	base := int64(1_700_000_000_000)
	tr.ObserveEvent(base, msTime(base+800))

	if got := tr.Event().Rejected; got != 1 {
		t.Errorf("Rejected = %d, want 1", got)
	}
}

func TestTracker_RTTIndependentOfEvent(t *testing.T) {
	tr := NewTracker(nil)

	tr.ObserveRTT(40 * time.Millisecond)
	tr.ObserveRTT(80 * time.Millisecond)

	// 0.3*80 + 0.7*40 = 52.
	got := float64(tr.RTT().EMA) / float64(time.Millisecond)
	if math.Abs(got-52) > 0.001 {
		t.Errorf("RTT EMA = %vms, want 52ms", got)
	}
	if tr.Event().Samples != 0 {
		t.Error("RTT samples leaked into event channel")
	}
}

func TestTracker_RTTRejectsNegative(t *testing.T) {
	tr := NewTracker(nil)

	tr.ObserveRTT(-time.Millisecond)

	got := tr.RTT()
	if got.Samples != 0 || got.Rejected != 1 {
		t.Errorf("Samples = %d Rejected = %d, want 0 and 1", got.Samples, got.Rejected)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := NewTracker(nil)

	base := int64(1_700_000_000_000)
	tr.ObserveEvent(base, msTime(base+100))
	tr.ObserveRTT(40 * time.Millisecond)
	tr.Reset()

	if got := tr.Event().Samples; got != 0 {
		t.Errorf("event Samples = %d after Reset, want 0", got)
	}
	if got := tr.RTT().Samples; got != 0 {
		t.Errorf("rtt Samples = %d after Reset, want 0", got)
	}

	// First sample after a reset sets the average directly again.
	tr.ObserveEvent(base, msTime(base+300))
	if got := tr.Event().EMA; got != 300*time.Millisecond {
		t.Errorf("EMA = %v after Reset, want 300ms", got)
	}
}
