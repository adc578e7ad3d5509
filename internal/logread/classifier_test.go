package logread

import (
	"testing"
	"time"

	"github.com/kadzielawa/wowsup/internal/event"
)

func classify(t *testing.T, text string) []event.LogEvent {
	t.Helper()
	c := NewClassifier(testLogger(), "")
	c.SetActiveProfile("tanaris route", "personal gathering", false)
	return c.Classify(Line{
		Text:      text,
		Lowered:   toLowerLine(text),
		Timestamp: time.Date(2026, 8, 28, 14, 2, 5, 0, time.UTC),
	})
}

func toLowerLine(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

func hasKind(events []event.LogEvent, k event.Kind) bool {
	for _, e := range events {
		if e.Kind == k {
			return true
		}
	}
	return false
}

func TestClassifyPredicates(t *testing.T) {
	tests := []struct {
		line string
		want event.Kind
	}{
		{"14:02:05 Auction house reached", event.AuctionHouseReached},
		{"14:02:05 Profile 'Tanaris Route' finished successfully", event.ProfileFinished},
		{"14:02:05 Incoming whisper from Someone", event.WhisperReceived},
		{"14:02:05 No bag free space left", event.BagFreeSpace},
		{"14:02:05 Combat started", event.CombatStarted},
		{"14:02:05 Profile finished with error", event.UnhandledError},
		{"14:02:05 Player is stucked", event.PlayerStuck},
		{"14:02:05 Running 'Tanaris Route'", event.ActiveProfileMentioned},
		{"14:02:05 Gear durability percent is 12", event.LowDurability},
		{"14:02:05 Interacting with Flight Master in town", event.FlightMasterInteract},
		{"14:02:05 Resurrection started", event.ResurrectionStarted},
		{"14:02:05 Going to vendor", event.GoingToVendor},
		{"14:02:05 Deaths by players: 3", event.DeathsByPlayers},
		{"14:02:05 Taking transport to Orgrimmar", event.TransportRide},
		{"14:02:05 Corpse position lookup failed", event.CorpsePositionFailed},
		{"14:02:05 Please login again", event.PleaseLoginAgain},
		{"14:02:05 Task 'Use hearthstone' completed", event.HearthstoneUsed},
		{"14:02:05 Closest vendor path fail", event.VendorPathFailed},
		{"14:02:05 Could not find any vendor nearby", event.VendorNotFound},
		{"14:02:05 Flying and the destination is in the air", event.AirborneDestination},
		{"14:02:05 Pause for input requested", event.PauseForInput},
		{"14:02:05 Failed to sell and mail items", event.SellAndMailFailed},
		{"14:02:05 Mailbox error: attachment refused", event.MailError},
		{"14:02:05 Mailing failed, no object found", event.MailWindowError},
		{"14:02:05 Go to Outlands", event.GoToOutlands},
		{"14:02:05 Stop now", event.StopNow},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			events := classify(t, tt.line)
			if !hasKind(events, tt.want) {
				t.Errorf("line %q did not produce %s", tt.line, tt.want)
			}
		})
	}
}

func TestClassifySkillLevelPayload(t *testing.T) {
	events := classify(t, "14:02:05 Training 225 skills")
	for _, e := range events {
		if e.Kind == event.TrainingSkills {
			if e.SkillLevel != 225 {
				t.Errorf("skill level = %d, want 225", e.SkillLevel)
			}
			return
		}
	}
	t.Fatal("TrainingSkills event not produced")
}

func TestClassifyIndependentTriggers(t *testing.T) {
	// One line can satisfy several predicates at once.
	events := classify(t, "14:02:05 Profile 'Tanaris Route' finished successfully")
	for _, k := range []event.Kind{event.ProfileFinished, event.ActiveProfileMentioned, event.ProfileMentioned} {
		if !hasKind(events, k) {
			t.Errorf("expected %s among events", k)
		}
	}
}

func TestClassifyDuplicateOnlyFeedsRepeatPredicate(t *testing.T) {
	c := NewClassifier(testLogger(), "")
	l := Line{
		Text:      "14:02:05 Finding corpse failed",
		Lowered:   "14:02:05 finding corpse failed",
		Duplicate: true,
	}
	events := c.Classify(l)
	if len(events) != 1 || events[0].Kind != event.CorpseRunFailedRepeat {
		t.Errorf("duplicate line should only produce the repeat event, got %v", events)
	}
}

func TestClassifyExceptionNotSustainedOnSingleLine(t *testing.T) {
	// A lone unhandled-exception reading is a possible OCR misread; Classify
	// must not promote it to the sustained error events.
	events := classify(t, "14:02:05 Unhandled exception in profile runner")
	if hasKind(events, event.UnhandledError) {
		t.Error("single exception occurrence should not set the sustained error")
	}
}

func TestScanLatestDebounce(t *testing.T) {
	c := NewClassifier(testLogger(), "")
	l := Line{
		Text:    "14:02:05 Unhandled exception in profile runner",
		Lowered: "14:02:05 unhandled exception in profile runner",
	}

	if events := c.ScanLatest(l); len(events) != 0 {
		t.Fatalf("first pass must not promote, got %v", events)
	}
	events := c.ScanLatest(l)
	if !hasKind(events, event.UnhandledError) || !hasKind(events, event.MailWindowError) {
		t.Fatalf("second consecutive pass should promote the error events, got %v", events)
	}

	// Counter resets after promotion and on non-matching passes.
	if events := c.ScanLatest(l); len(events) != 0 {
		t.Error("counter should reset after promotion")
	}
	c.ScanLatest(Line{Lowered: "14:02:09 combat started"})
	if events := c.ScanLatest(l); len(events) != 0 {
		t.Error("non-matching pass should reset the counter")
	}
}
