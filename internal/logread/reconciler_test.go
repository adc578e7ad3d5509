package logread

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestReconciler() *Reconciler {
	return NewReconciler(testLogger(), 6*time.Hour+30*time.Minute, "", "")
}

func TestReconcileIdempotent(t *testing.T) {
	r := newTestReconciler()
	now := time.Date(2026, 8, 28, 14, 2, 20, 0, time.UTC)

	raw := "14:02:05 Combat started\n14:02:10 Going to vendor\n"

	first := r.Reconcile(raw, now)
	if len(first) != 3 { // 2 new lines + the duplicate recheck of the newest
		t.Fatalf("expected 2 new lines plus recheck, got %d", len(first))
	}
	if !first[2].Duplicate {
		t.Errorf("last returned line should be the duplicate recheck")
	}

	second := r.Reconcile(raw, now)
	if len(second) != 0 {
		t.Errorf("same snapshot reconciled twice should yield nothing, got %d lines", len(second))
	}
	if len(r.History()) != 2 {
		t.Errorf("history should hold 2 entries, got %d", len(r.History()))
	}
}

func TestReconcileClampsMinuteField(t *testing.T) {
	r := newTestReconciler()
	now := time.Date(2026, 8, 28, 14, 59, 40, 0, time.UTC)

	lines := r.Reconcile("14:75:30 Looting items finished\n", now)
	if len(lines) == 0 {
		t.Fatal("clamped line should be accepted")
	}
	if !strings.Contains(lines[0].Text, "14:59:30") {
		t.Errorf("minute 75 should clamp to 59, got %q", lines[0].Text)
	}
	if lines[0].Timestamp.Minute() != 59 {
		t.Errorf("timestamp minute = %d, want 59", lines[0].Timestamp.Minute())
	}
}

func TestReconcileClampsSecondField(t *testing.T) {
	r := newTestReconciler()
	now := time.Date(2026, 8, 28, 14, 2, 59, 0, time.UTC)

	lines := r.Reconcile("14:02:87 Combat started\n", now)
	if len(lines) == 0 {
		t.Fatal("clamped line should be accepted")
	}
	if !strings.Contains(lines[0].Text, "14:02:59") {
		t.Errorf("second 87 should clamp to 59, got %q", lines[0].Text)
	}
}

func TestReconcileFuzzyDedup(t *testing.T) {
	r := newTestReconciler()
	now := time.Date(2026, 8, 28, 14, 2, 20, 0, time.UTC)

	original := "14:02:05 Player is stucked near the gathering node"
	r.Reconcile(original+"\n", now)

	// One misread glyph: similarity above the threshold, must be dropped.
	noisy := "14:02:05 P1ayer is stucked near the gathering node"
	if got := Ratio(strings.ToLower(original), strings.ToLower(noisy)); got < dedupThreshold {
		t.Fatalf("test strings not similar enough: %f", got)
	}
	if lines := r.Reconcile(noisy+"\n", now); len(lines) != 0 {
		t.Errorf("near-duplicate should be dropped, got %d lines", len(lines))
	}

	// A genuinely different line must be appended.
	fresh := "14:02:12 Combat started with mob"
	if got := Ratio(strings.ToLower(original), strings.ToLower(fresh)); got > 0.90 {
		t.Fatalf("test strings too similar: %f", got)
	}
	if lines := r.Reconcile(noisy+"\n"+fresh+"\n", now); len(lines) == 0 {
		t.Error("new line should be appended")
	}
	if len(r.History()) != 2 {
		t.Errorf("history should hold 2 entries, got %d", len(r.History()))
	}
}

func TestReconcileDropsStaleLines(t *testing.T) {
	r := newTestReconciler()
	now := time.Date(2026, 8, 28, 14, 30, 0, 0, time.UTC)

	// Same hour but several minutes old: leftover from an earlier frame.
	if lines := r.Reconcile("14:20:00 Combat started\n", now); len(lines) != 0 {
		t.Errorf("stale line should be dropped, got %d lines", len(lines))
	}
}

func TestReconcileSkewCorrection(t *testing.T) {
	r := newTestReconciler()

	// The console clock is 6h30m behind the host: at 20:32:15 host time it
	// renders 14:02:10. The parsed delta exceeds an hour, so the configured
	// correction applies and the line lands within the staleness window.
	now := time.Date(2026, 8, 28, 20, 32, 15, 0, time.UTC)
	lines := r.Reconcile("14:02:10 Combat started\n", now)
	if len(lines) == 0 {
		t.Fatal("skew-corrected line should be accepted")
	}
	if !strings.Contains(lines[0].Text, "20:32:10") {
		t.Errorf("timestamp should be rewritten to the corrected time, got %q", lines[0].Text)
	}
	if lines[0].Timestamp.Hour() != 20 || lines[0].Timestamp.Minute() != 32 {
		t.Errorf("corrected timestamp = %v, want 20:32:10", lines[0].Timestamp)
	}
}

func TestReconcileMergesContinuations(t *testing.T) {
	r := newTestReconciler()
	now := time.Date(2026, 8, 28, 14, 2, 20, 0, time.UTC)

	// The second fragment has no timestamp: it is a wrapped tail of the
	// first entry and must be concatenated, not treated as its own line.
	raw := "14:02:05 Failed to sell and\nmail items\n"
	lines := r.Reconcile(raw, now)
	if len(lines) == 0 {
		t.Fatal("merged line should be accepted")
	}
	if !strings.Contains(lines[0].Lowered, "failed to sell and mail items") {
		t.Errorf("continuation not merged: %q", lines[0].Lowered)
	}
}

func TestReconcileHistoryCap(t *testing.T) {
	r := newTestReconciler()
	r.history = make([]Line, HistoryCap)
	for i := range r.history {
		r.history[i] = Line{Lowered: "old entry"}
	}

	now := time.Date(2026, 8, 28, 14, 2, 20, 0, time.UTC)
	r.Reconcile("14:02:10 Combat started\n", now)
	if len(r.History()) != HistoryCap {
		t.Errorf("history should stay at cap %d, got %d", HistoryCap, len(r.History()))
	}
	latest, _ := r.Latest()
	if !strings.Contains(latest.Lowered, "combat started") {
		t.Errorf("newest entry should be the accepted line, got %q", latest.Lowered)
	}
}
