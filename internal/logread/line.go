package logread

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Line is one reconciled log console entry. Text is the raw entry with the
// timestamp token rewritten to the corrected value; Lowered is the case-folded
// form the classifier matches against. Immutable once appended to history.
type Line struct {
	Text      string
	Lowered   string
	Timestamp time.Time

	// Duplicate marks the near-duplicate re-check of the newest entry; such
	// lines are never appended to history and only feed the corpse-failed
	// repeat predicate.
	Duplicate bool
}

// parseStamp extracts the HH:MM:SS token around the first ':' of raw,
// clamping OCR-mangled fields (minute/second > 59 become 59, hour > 23
// becomes 23) and returns the token boundaries for later rewriting.
func parseStamp(raw string, now time.Time) (t time.Time, start, end int, ok bool) {
	i := strings.IndexByte(raw, ':')
	if i < 2 || i+6 > len(raw) {
		return time.Time{}, 0, 0, false
	}

	hour, err := strconv.Atoi(raw[i-2 : i])
	if err != nil {
		return time.Time{}, 0, 0, false
	}
	minute, err := strconv.Atoi(raw[i+1 : i+3])
	if err != nil {
		return time.Time{}, 0, 0, false
	}
	second, err := strconv.Atoi(raw[i+4 : i+6])
	if err != nil {
		return time.Time{}, 0, 0, false
	}

	if second > 59 {
		second = 59
	}
	if minute > 59 {
		minute = 59
	}
	if hour > 23 {
		hour = 23
	}

	t = time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, now.Location())
	if hour > now.Hour() {
		// The console can still show entries from just before midnight.
		t = t.AddDate(0, 0, -1)
	}

	return t, i - 2, i + 6, true
}

// rewriteStamp replaces the timestamp token of raw with the corrected time.
func rewriteStamp(raw string, start, end int, t time.Time) string {
	return raw[:start] + fmt.Sprintf("%02d:%02d:%02d", t.Hour(), t.Minute(), t.Second()) + raw[end:]
}
