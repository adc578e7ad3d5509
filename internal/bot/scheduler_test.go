package bot

import (
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/kadzielawa/wowsup/internal/config"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	// t.Chdir needs Go 1.24+; replicate it for the local 1.21 toolchain.
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Fatal(err)
		}
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(nil, logger, nil)
}

// seedOffsets pins the daily jitter to zero so window boundaries are exact.
func seedOffsets(s *Scheduler, name string, day time.Time) {
	s.offsets[name] = &dayOffsets{Date: day.Format("2006-01-02")}
}

func at(hour, min int) time.Time {
	return time.Date(2026, 3, 10, hour, min, 0, 0, time.Local)
}

func TestInWindowDaytime(t *testing.T) {
	s := newTestScheduler(t)
	slot := &config.SlotCfg{}
	slot.Schedule.LowerHour = 9
	slot.Schedule.UpperHour = 17
	seedOffsets(s, "day", at(0, 0))

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"before early open", at(7, 59), false},
		{"early open hour", at(8, 30), true}, // window opens an hour before LowerHour
		{"mid window", at(12, 0), true},
		{"last minute", at(16, 59), true},
		{"at close", at(17, 0), false},
		{"evening", at(21, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.inWindow("day", slot, tt.now); got != tt.want {
				t.Errorf("inWindow(%s) = %v, want %v", tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestInWindowOvernight(t *testing.T) {
	s := newTestScheduler(t)
	slot := &config.SlotCfg{}
	slot.Schedule.LowerHour = 22
	slot.Schedule.UpperHour = 2
	seedOffsets(s, "night", at(0, 0))

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"afternoon", at(14, 0), false},
		{"early open", at(21, 30), true},
		{"before midnight", at(23, 45), true},
		{"after midnight", at(1, 30), true},
		{"at close", at(2, 0), false},
		{"morning", at(9, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.inWindow("night", slot, tt.now); got != tt.want {
				t.Errorf("inWindow(%s) = %v, want %v", tt.now.Format("15:04"), got, tt.want)
			}
		})
	}
}

func TestInWindowJitterShiftsBoundaries(t *testing.T) {
	s := newTestScheduler(t)
	slot := &config.SlotCfg{}
	slot.Schedule.LowerHour = 9
	slot.Schedule.UpperHour = 17

	s.offsets["jit"] = &dayOffsets{
		Date:        at(0, 0).Format("2006-01-02"),
		StartOffset: 0.5,  // opens at 08:30 instead of 08:00
		EndOffset:   -0.5, // closes at 16:30 instead of 17:00
	}

	if s.inWindow("jit", slot, at(8, 15)) {
		t.Error("window open before the jittered start")
	}
	if !s.inWindow("jit", slot, at(8, 45)) {
		t.Error("window closed after the jittered start")
	}
	if s.inWindow("jit", slot, at(16, 45)) {
		t.Error("window open past the jittered end")
	}
}

func TestOffsetsPersistAcrossRestarts(t *testing.T) {
	s := newTestScheduler(t)
	now := at(10, 0)

	first := s.offsetsFor("slot1", now)
	if first.Date != now.Format("2006-01-02") {
		t.Fatalf("offset date = %q, want today", first.Date)
	}
	if first.StartOffset < -1 || first.StartOffset >= 1 || first.EndOffset < -1 || first.EndOffset >= 1 {
		t.Fatalf("offsets out of range: %+v", first)
	}

	// Same day, same scheduler: cached.
	if again := s.offsetsFor("slot1", now.Add(time.Hour)); *again != *first {
		t.Fatalf("same-day lookup re-rolled: %+v vs %+v", again, first)
	}

	// A fresh scheduler in the same directory must load the persisted pair
	// instead of rolling new jitter.
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	restarted := NewScheduler(nil, logger, nil)
	if loaded := restarted.offsetsFor("slot1", now); *loaded != *first {
		t.Fatalf("restart re-rolled offsets: %+v vs %+v", loaded, first)
	}
}

func TestOffsetsRollOverAtMidnight(t *testing.T) {
	s := newTestScheduler(t)

	today := s.offsetsFor("slot1", at(23, 0))
	tomorrow := s.offsetsFor("slot1", at(23, 0).Add(2*time.Hour))

	if today.Date == tomorrow.Date {
		t.Fatal("next-day lookup kept the previous date")
	}
}
