package logread

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/kadzielawa/wowsup/internal/event"
)

// Classifier maps reconciled log lines to typed events. Predicates are
// independent: one line can produce several events. The only state kept
// across calls is the restock timestamp and the exception debounce counter.
type Classifier struct {
	logger *slog.Logger

	activeProfile   string
	personalProfile string
	gathering       bool
	errorsDir       string

	exceptionCount int
	lastRestock    time.Time
}

func NewClassifier(logger *slog.Logger, errorsDir string) *Classifier {
	return &Classifier{
		logger:    logger,
		errorsDir: errorsDir,
	}
}

// SetActiveProfile updates the profile names the wrong-profile predicate
// matches against. route is the schedule-selected profile, personal the
// slot's own override profile.
func (c *Classifier) SetActiveProfile(route, personal string, gathering bool) {
	c.activeProfile = strings.ToLower(route)
	c.personalProfile = strings.ToLower(personal)
	c.gathering = gathering
}

// LastRestock returns when a "bag free" restock line was last seen.
func (c *Classifier) LastRestock() time.Time {
	return c.lastRestock
}

func has(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}

func hasAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// trailingDigits extracts the integer payload of the skill-training lines:
// every digit after the timestamp token.
func trailingDigits(s string) int {
	i := strings.IndexByte(s, ':')
	if i < 0 || i+6 > len(s) {
		return 0
	}
	n := 0
	found := false
	for _, r := range s[i+6:] {
		if unicode.IsDigit(r) {
			n = n*10 + int(r-'0')
			found = true
		}
	}
	if !found {
		return 0
	}
	return n
}

// ScanLatest is the exception debounce: called once per snapshot that moved
// the log forward, it re-scans the newest visible line and promotes the
// sustained error events only on the second consecutive scan still showing an
// unhandled exception. A single sighting is treated as a transient misread.
func (c *Classifier) ScanLatest(l Line) []event.LogEvent {
	c.exceptionCount++
	if has(l.Lowered, "unhandled", "exception") {
		if c.exceptionCount >= 2 {
			c.exceptionCount = 0
			return []event.LogEvent{
				{Kind: event.UnhandledError, Line: l.Text, At: l.Timestamp},
				{Kind: event.MailWindowError, Line: l.Text, At: l.Timestamp},
			}
		}
		return nil
	}
	c.exceptionCount = 0
	return nil
}

// Classify runs the predicate table over one accepted line. Duplicate-marked
// lines only feed the repeat predicates.
func (c *Classifier) Classify(l Line) []event.LogEvent {
	log := l.Lowered

	emit := func(events []event.LogEvent, k event.Kind) []event.LogEvent {
		return append(events, event.LogEvent{Kind: k, Line: l.Text, At: l.Timestamp})
	}

	var events []event.LogEvent

	if l.Duplicate {
		if has(log, "corpse", "failed") {
			events = emit(events, event.CorpseRunFailedRepeat)
		}
		return events
	}

	if has(log, "auction house reached") {
		events = emit(events, event.AuctionHouseReached)
	}
	if has(log, "profile 'hearthstone' finished successfully") || has(log, "profile", "finished successfully") {
		events = emit(events, event.ProfileFinished)
	}
	if has(log, "whisper") {
		events = emit(events, event.WhisperReceived)
	}
	if has(log, "bag free") {
		c.lastRestock = time.Now()
		events = emit(events, event.BagFreeSpace)
	}
	if has(log, "flying path") {
		events = emit(events, event.FlyingPath)
	}
	if has(log, "combat started") {
		events = emit(events, event.CombatStarted)
	}
	if has(log, "finished with error") {
		events = emit(events, event.UnhandledError)
	}
	if hasAny(log, "player is stucked", "player stucked") {
		events = emit(events, event.PlayerStuck)
	}
	if c.profileMentioned(log) {
		events = emit(events, event.ActiveProfileMentioned)
	}
	if has(log, "gear durability percent is") {
		events = emit(events, event.LowDurability)
	}
	if has(log, "group #3") {
		events = emit(events, event.VendorGroupTask)
	}
	if has(log, "interacting with", "flight master") {
		events = emit(events, event.FlightMasterInteract)
	}
	if has(log, "resurrection started") {
		events = emit(events, event.ResurrectionStarted)
	}
	if has(log, "going to vendor") {
		events = emit(events, event.GoingToVendor)
	}
	if has(log, "task 'sell, mail and repair items' in group", "completed") {
		events = emit(events, event.SellMailRepairDone)
	}
	if has(log, "preparation started") {
		events = emit(events, event.PreparationStarted)
	}
	if has(log, "deaths by players") {
		events = emit(events, event.DeathsByPlayers)
	}
	if has(log, "transport") {
		events = emit(events, event.TransportRide)
	}
	if has(log, "preparation finished") {
		events = emit(events, event.PreparationFinished)
	}
	if (hasAny(log, "corpse position", "carpse position")) && has(log, "failed") {
		events = emit(events, event.CorpsePositionFailed)
	}
	if hasAny(log, "login again", "logged in") {
		events = emit(events, event.LoginAgain)
	}
	if has(log, "not", "read addon data") || has(log, "not", "pixel cell") {
		events = emit(events, event.AddonDataUnreadable)
	}
	if has(log, "looting items finished") {
		events = emit(events, event.LootingFinished)
	}
	if has(log, "failed to sell and mail items") {
		events = emit(events, event.SellAndMailFailed)
	}
	if has(log, "please login again") {
		events = emit(events, event.PleaseLoginAgain)
	}
	if has(log, "training", "skills") {
		events = append(events, event.LogEvent{Kind: event.TrainingSkills, Line: l.Text, At: l.Timestamp, SkillLevel: trailingDigits(log)})
	}
	if has(log, "use hearthstone", "completed") {
		events = emit(events, event.HearthstoneUsed)
	}
	if has(log, "trained", "skills") {
		events = append(events, event.LogEvent{Kind: event.TrainedSkills, Line: l.Text, At: l.Timestamp, SkillLevel: trailingDigits(log)})
	}
	if has(log, "closest vendor", "fail") {
		events = emit(events, event.VendorPathFailed)
	}
	if has(log, "not find", "vendor") {
		events = emit(events, event.VendorNotFound)
	}
	if has(log, "flying", "and", "destination", "is", "in", "the", "air") {
		events = emit(events, event.AirborneDestination)
	}
	if has(log, "77-82") {
		events = emit(events, event.NorthrendRoute)
	}
	if hasAny(log, "free bag slots is", "going to repair items") {
		events = emit(events, event.RepairNeeded)
	}
	if has(log, "restart auto") {
		events = emit(events, event.RestartRequested)
	}
	if has(log, "interact with npc") {
		events = emit(events, event.NPCInteractFailed)
	}
	if has(log, "mining only") {
		events = emit(events, event.MiningOnly)
	}
	if has(log, "travelling py") {
		events = emit(events, event.TravelScript)
	}
	if has(log, "gathering py") {
		events = emit(events, event.GatherScript)
	}
	if has(log, "pause for input") {
		events = emit(events, event.PauseForInput)
	}
	if has(log, "destiny but no object") {
		events = emit(events, event.GossipFailed)
	}
	if has(log, "train ") && hasAny(log, "miner", "herbalist") {
		events = emit(events, event.TrainProfession)
	}
	if has(log, "profile") {
		events = emit(events, event.ProfileMentioned)
	}
	if has(log, "corpse", "failed") {
		events = emit(events, event.CorpseRunFailed)
	}
	if has(log, "mail", "error") {
		events = emit(events, event.MailError)
	}
	if has(log, "mailing", "no object found") {
		events = emit(events, event.MailWindowError)
	}
	if has(log, "go to outlands") {
		events = emit(events, event.GoToOutlands)
	}
	if has(log, "stop now") {
		events = emit(events, event.StopNow)
	}

	if has(log, "blacklisting gathering node") && c.gathering {
		c.recordBlacklistedNode(l.Text)
	}

	return events
}

func (c *Classifier) profileMentioned(log string) bool {
	for _, name := range []string{c.activeProfile, c.personalProfile} {
		if name == "" {
			continue
		}
		if strings.Contains(log, name) || strings.Contains(log, "'"+name+"'") {
			return true
		}
	}
	return false
}

// recordBlacklistedNode appends blacklisted gathering node lines to the
// shared per-profile errors file so broken nodes can be pruned from routes.
func (c *Classifier) recordBlacklistedNode(line string) {
	if c.errorsDir == "" || c.personalProfile == "" {
		return
	}
	path := filepath.Join(c.errorsDir, c.personalProfile+"_errors.txt")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		c.logger.Error("error opening profile errors file", slog.Any("error", err))
		return
	}
	defer f.Close()
	if _, err = f.WriteString(line + "\n"); err != nil {
		c.logger.Error("error writing profile errors file", slog.Any("error", err))
	}
}
