package logread

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

const (
	// HistoryCap bounds the reconciled history; the oldest entries are
	// evicted beyond it.
	HistoryCap = 200

	// dedupThreshold is the similarity ratio above which a candidate is the
	// same line as the newest history entry, only re-read with OCR noise.
	dedupThreshold = 0.95

	// staleTolerance filters leftover lines from earlier frames that are
	// still visible in the capture region.
	staleTolerance = 30 * time.Second

	// skewTrigger decides when the configured clock skew correction applies.
	skewTrigger = time.Hour

	// tailFileCap is the line cap of the rolling recent-tail file.
	tailFileCap = 70
)

// Reconciler turns raw OCR/DOM text into an ordered, deduplicated sequence of
// timestamped log lines aligned against what it has already seen.
type Reconciler struct {
	logger   *slog.Logger
	skew     time.Duration
	tailPath string
	fullPath string

	history []Line
}

// NewReconciler builds a reconciler. skew is the deployment clock offset
// applied when a parsed timestamp is more than an hour behind the wall clock.
// tailPath/fullPath are the rolling tail and append-only log files; either
// may be empty to disable that output.
func NewReconciler(logger *slog.Logger, skew time.Duration, tailPath, fullPath string) *Reconciler {
	return &Reconciler{
		logger:   logger,
		skew:     skew,
		tailPath: tailPath,
		fullPath: fullPath,
	}
}

func (r *Reconciler) History() []Line {
	return r.history
}

func (r *Reconciler) Latest() (Line, bool) {
	if len(r.history) == 0 {
		return Line{}, false
	}
	return r.history[len(r.history)-1], true
}

// Reset drops the reconciled history, e.g. after a full client relaunch when
// the log console starts empty again.
func (r *Reconciler) Reset() {
	r.history = nil
}

// Reconcile ingests one snapshot of the log console and returns the lines not
// seen before, oldest first. When at least one line is new, the newest one is
// returned a second time marked Duplicate for the repeat-only predicates.
// Feeding the same snapshot twice yields nothing the second time.
func (r *Reconciler) Reconcile(raw string, now time.Time) []Line {
	candidates := r.accept(r.splitEntries(raw, now), now)
	if len(candidates) == 0 {
		return nil
	}

	offset := len(candidates)
	if last, ok := r.Latest(); ok {
		offset = 0
		for i := len(candidates) - 1; i >= 0; i-- {
			if Ratio(last.Lowered, candidates[i].Lowered) < dedupThreshold {
				offset++
			} else {
				break
			}
		}
	}
	if offset == 0 {
		return nil
	}

	newLines := candidates[len(candidates)-offset:]
	for _, l := range newLines {
		r.history = append(r.history, l)
		if len(r.history) > HistoryCap {
			r.history = r.history[1:]
		}
		r.persist(l)
	}

	recheck := newLines[len(newLines)-1]
	recheck.Duplicate = true

	return append(newLines, recheck)
}

// splitEntries splits raw text into candidate entries, merging wrapped
// continuation fragments into the preceding timestamped entry. A fragment is
// its own entry only when it carries a timestamp token whose hour field reads
// as the current hour (or the skew-shifted hour, for a console rendering a
// lagging clock); OCR line wrapping produces everything else.
func (r *Reconciler) splitEntries(raw string, now time.Time) []string {
	hourTag := fmt.Sprintf("%02d", now.Hour())
	skewTag := fmt.Sprintf("%02d", now.Add(-r.skew).Hour())

	var entries []string
	for _, fragment := range strings.Split(raw, "\n") {
		fragment = strings.TrimRight(fragment, "\r")
		if len(fragment) <= 2 {
			continue
		}

		i := strings.IndexByte(fragment, ':')
		if i >= 2 && (fragment[i-2:i] == hourTag || fragment[i-2:i] == skewTag) {
			entries = append(entries, fragment)
		} else if len(entries) > 0 {
			entries[len(entries)-1] += " " + fragment
		}
	}
	return entries
}

// accept parses and filters candidate entries: timestamp fields are clamped,
// the skew correction applied, stale lines dropped, and immediately adjacent
// duplicates collapsed.
func (r *Reconciler) accept(entries []string, now time.Time) []Line {
	var accepted []Line
	for _, entry := range entries {
		t, start, end, ok := parseStamp(entry, now)
		if !ok {
			continue
		}

		if now.Sub(t) > skewTrigger {
			t = t.Add(r.skew)
		}
		if now.Sub(t) >= staleTolerance {
			continue
		}

		text := rewriteStamp(entry, start, end, t)
		lowered := strings.ToLower(text)

		if len(accepted) > 0 && accepted[len(accepted)-1].Lowered == lowered {
			continue
		}

		accepted = append(accepted, Line{
			Text:      text,
			Lowered:   lowered,
			Timestamp: t,
		})
	}
	return accepted
}

// persist writes one new line to the rolling tail file (newest on top once
// the cap is reached) and appends it to the unbounded full log.
func (r *Reconciler) persist(l Line) {
	if r.tailPath != "" {
		if err := r.writeTail(l.Text); err != nil {
			r.logger.Error("error writing log tail file", slog.Any("error", err))
		}
	}
	if r.fullPath != "" {
		f, err := os.OpenFile(r.fullPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			r.logger.Error("error opening full log file", slog.Any("error", err))
			return
		}
		if _, err = f.WriteString(l.Text + "\n"); err != nil {
			r.logger.Error("error appending full log file", slog.Any("error", err))
		}
		_ = f.Close()
	}
}

func (r *Reconciler) writeTail(text string) error {
	var lines []string
	raw, err := os.ReadFile(r.tailPath)
	if err == nil && len(raw) > 0 {
		lines = strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	}

	if len(lines) > tailFileCap {
		lines = append([]string{text}, lines[:len(lines)-1]...)
	} else {
		lines = append(lines, text)
	}

	return os.WriteFile(r.tailPath, []byte(strings.Join(lines, "\n")+"\n"), 0644)
}
