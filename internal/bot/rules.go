package bot

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/kadzielawa/wowsup/internal/event"
)

const (
	stuckWindow     = 30 * time.Second
	stuckThreshold  = 4
	errorWindow     = 300 * time.Second
	errorThreshold  = 5
	airborneWindow  = 60 * time.Second
	airborneLimit   = 3
	vendorCooldown  = 300 * time.Second
	repairCooldown  = 1800 * time.Second
	trainerCooldown = 1800 * time.Second
	npcCooldown     = 600 * time.Second

	deathsPause      = 300 * time.Second
	housekeepingGap  = 30 * time.Second
	inGameMissLimit  = 10
	combatCheckDelay = 20
)

// Rule is one entry of the ordered recovery table. Rules are evaluated every
// cycle in table order and are not mutually exclusive: several can fire in
// one pass. Each clears the triggers it consumed so stale state never
// re-fires it.
type Rule struct {
	Name   string
	When   func(e *Engine, now time.Time) bool
	Do     func(e *Engine, now time.Time) error
	Clears []event.Kind
}

func active(kinds ...event.Kind) func(e *Engine, now time.Time) bool {
	return func(e *Engine, _ time.Time) bool {
		for _, k := range kinds {
			if e.actions.Active(k) {
				return true
			}
		}
		return false
	}
}

// recoveryRules is the priority-ordered table: external stop first, then
// mail/exception handling, stuck detection, vendor/repair, travel and mail
// task work, and schedule housekeeping last.
func recoveryRules() []Rule {
	return []Rule{
		{
			Name: "stop-command",
			When: active(event.StopNow),
			Do: func(e *Engine, _ time.Time) error {
				e.input.Press("f4")
				e.sleep(1000)
				return ErrStopRequested
			},
			Clears: []event.Kind{event.StopNow},
		},
		{
			Name: "pause-for-input",
			When: active(event.PauseForInput),
			Do: func(e *Engine, _ time.Time) error {
				return ErrStopRequested
			},
			Clears: []event.Kind{event.PauseForInput},
		},
		{
			Name: "mail-error",
			When: active(event.MailError),
			Do: func(e *Engine, _ time.Time) error {
				e.holdKey("x", 5000)
				return nil
			},
			Clears: []event.Kind{event.MailError},
		},
		{
			Name: "mail-window-error",
			When: active(event.MailWindowError),
			Do:   (*Engine).recoverMailWindow,
			Clears: []event.Kind{
				event.MailWindowError,
			},
		},
		{
			Name: "schedule-mail-task",
			When: func(e *Engine, _ time.Time) bool {
				if e.actions.Active(event.SellAndMailFailed) {
					return true
				}
				// Repeated restock lines mean bags stay full: the restock
				// timestamp moved since we last reacted to it.
				restock := e.classifier.LastRestock()
				return e.actions.Active(event.BagFreeSpace) && restock.After(e.session.LastRestockSeen)
			},
			Do:     (*Engine).scheduleMailTask,
			Clears: []event.Kind{event.SellAndMailFailed, event.BagFreeSpace},
		},
		{
			Name: "auction-house",
			When: active(event.AuctionHouseReached),
			Do: func(e *Engine, _ time.Time) error {
				// The mailbox sub-profile parks at the auction house to sell;
				// hold the movement compare back while the sell step runs.
				e.session.MoveCheckCount = -combatCheckDelay
				e.session.VendorElapsed = 0
				return nil
			},
			Clears: []event.Kind{event.AuctionHouseReached},
		},
		{
			Name:   "sustained-error",
			When:   active(event.UnhandledError),
			Do:     (*Engine).handleSustainedError,
			Clears: []event.Kind{event.UnhandledError},
		},
		{
			Name:   "player-stuck",
			When:   active(event.PlayerStuck),
			Do:     (*Engine).handleStuck,
			Clears: []event.Kind{event.PlayerStuck},
		},
		{
			Name: "combat-backoff",
			When: active(event.CombatStarted),
			Do: func(e *Engine, _ time.Time) error {
				// Combat interrupts movement legitimately; push the next
				// screenshot comparisons out instead of flagging a stall.
				e.session.MoveCheckCount = -combatCheckDelay
				return nil
			},
			Clears: []event.Kind{event.CombatStarted},
		},
		{
			Name:   "corpse-run-repeat",
			When:   active(event.CorpseRunFailedRepeat),
			Do:     (*Engine).reviveAtSpiritHealer,
			Clears: []event.Kind{event.CorpseRunFailedRepeat, event.CorpseRunFailed, event.CorpsePositionFailed},
		},
		{
			Name: "resurrection",
			When: active(event.ResurrectionStarted),
			Do: func(e *Engine, now time.Time) error {
				e.session.ResurrectAt = now
				return nil
			},
			Clears: []event.Kind{event.ResurrectionStarted},
		},
		{
			Name: "deaths-by-players",
			When: active(event.DeathsByPlayers),
			Do: func(e *Engine, now time.Time) error {
				// Ganked repeatedly: sit out until the camper moves on.
				e.session.PausedUntil = now.Add(deathsPause)
				return nil
			},
			Clears: []event.Kind{event.DeathsByPlayers},
		},
		{
			Name: "vendor-visit",
			When: func(e *Engine, _ time.Time) bool {
				return e.actions.Active(event.GoingToVendor) && e.session.VendorElapsed >= vendorCooldown
			},
			Do: func(e *Engine, _ time.Time) error {
				e.session.VendorElapsed = 0
				return nil
			},
			Clears: []event.Kind{event.GoingToVendor},
		},
		{
			Name: "vendor-failed",
			When: active(event.VendorPathFailed, event.VendorNotFound),
			Do: func(e *Engine, _ time.Time) error {
				e.input.Press("z")
				e.sleep(500)
				e.reloadProfile()
				return nil
			},
			Clears: []event.Kind{event.VendorPathFailed, event.VendorNotFound},
		},
		{
			Name: "repair",
			When: func(e *Engine, _ time.Time) bool {
				return (e.actions.Active(event.LowDurability) || e.actions.Active(event.RepairNeeded)) &&
					e.session.RepairElapsed >= repairCooldown
			},
			Do: func(e *Engine, _ time.Time) error {
				e.session.RepairElapsed = 0
				e.reloadProfile()
				return nil
			},
			Clears: []event.Kind{event.LowDurability, event.RepairNeeded},
		},
		{
			Name: "flight-master",
			When: active(event.FlightMasterInteract),
			Do: func(e *Engine, _ time.Time) error {
				e.session.FlyingElapsed = 0
				return nil
			},
			Clears: []event.Kind{event.FlightMasterInteract},
		},
		{
			Name: "transport-ride",
			When: active(event.TransportRide),
			Do: func(e *Engine, _ time.Time) error {
				// The client is a passenger: movement checks would read the
				// ride as a stall.
				e.watchdogs.Stop("movement")
				e.session.MoveCheckCount = -combatCheckDelay
				return nil
			},
			Clears: []event.Kind{event.TransportRide},
		},
		{
			Name:   "airborne-destination",
			When:   active(event.AirborneDestination),
			Do:     (*Engine).handleAirborne,
			Clears: []event.Kind{event.AirborneDestination},
		},
		{
			Name:   "profile-finished",
			When:   active(event.ProfileFinished),
			Do:     (*Engine).handleProfileFinished,
			Clears: []event.Kind{event.ProfileFinished, event.ProfileMentioned, event.ActiveProfileMentioned},
		},
		{
			Name: "bot-switch-ready",
			When: active(event.PreparationStarted, event.LootingFinished),
			Do: func(e *Engine, _ time.Time) error {
				e.session.BotSwitchReady = true
				return nil
			},
			Clears: []event.Kind{event.PreparationStarted, event.LootingFinished},
		},
		{
			Name: "hearthstone-trainer",
			When: func(e *Engine, _ time.Time) bool {
				return e.actions.Active(event.HearthstoneUsed) && e.session.TrainerElapsed >= trainerCooldown
			},
			Do: func(e *Engine, _ time.Time) error {
				e.session.TrainerElapsed = 0
				return e.macro.StartProfile(context.Background(), "hearthstone")
			},
			Clears: []event.Kind{event.HearthstoneUsed},
		},
		{
			Name: "wrong-profile",
			When: func(e *Engine, _ time.Time) bool {
				return e.actions.Active(event.ProfileMentioned) && !e.actions.Active(event.ActiveProfileMentioned) &&
					!e.actions.Active(event.ProfileFinished)
			},
			Do: func(e *Engine, _ time.Time) error {
				e.logger.Warn("log mentions a profile that is not the scheduled one, restarting",
					slog.String("profile", e.session.ActiveProfile))
				return e.macro.StartProfile(context.Background(), e.session.ActiveProfile)
			},
			Clears: []event.Kind{event.ProfileMentioned},
		},
		{
			Name: "please-login-again",
			When: active(event.PleaseLoginAgain),
			Do: func(e *Engine, _ time.Time) error {
				return e.relaunchAll(context.Background(), "please login again")
			},
			Clears: []event.Kind{event.PleaseLoginAgain, event.LoginAgain},
		},
		{
			Name: "login-again",
			When: active(event.LoginAgain),
			Do: func(e *Engine, _ time.Time) error {
				ctx := context.Background()
				if pt, ok := e.screen.FindAnchor(ctx, "login-button", 5*time.Second); ok {
					e.input.Click(pt.X, pt.Y)
					e.sleep(2000)
				}
				e.input.Press("enter")
				return nil
			},
			Clears: []event.Kind{event.LoginAgain},
		},
		{
			Name: "restart-requested",
			When: active(event.RestartRequested),
			Do: func(e *Engine, _ time.Time) error {
				e.reloadProfile()
				return nil
			},
			Clears: []event.Kind{event.RestartRequested},
		},
		{
			Name: "npc-interact-failed",
			When: func(e *Engine, _ time.Time) bool {
				return e.actions.Active(event.NPCInteractFailed) && e.session.NPCElapsed >= npcCooldown
			},
			Do: func(e *Engine, _ time.Time) error {
				e.session.NPCElapsed = 0
				e.holdKey("w", 1500)
				e.input.Press("x")
				return nil
			},
			Clears: []event.Kind{event.NPCInteractFailed},
		},
		{
			Name: "gossip-failed",
			When: active(event.GossipFailed),
			Do: func(e *Engine, _ time.Time) error {
				e.input.Press("esc")
				e.sleep(500)
				e.input.Press("x")
				return nil
			},
			Clears: []event.Kind{event.GossipFailed},
		},
		{
			Name: "prep-stuck-forward",
			When: func(e *Engine, _ time.Time) bool {
				return e.actions.Active(event.PreparationStarted) && e.actions.Active(event.PreparationFinished)
			},
			Do: func(e *Engine, _ time.Time) error {
				e.holdKey("w", 1000)
				return nil
			},
			Clears: []event.Kind{event.PreparationFinished},
		},
		{
			Name: "gathering-toggle",
			When: active(event.TravelScript, event.GatherScript),
			Do: func(e *Engine, _ time.Time) error {
				e.session.Gathering = e.actions.Active(event.GatherScript)
				e.classifier.SetActiveProfile(e.session.ActiveProfile, e.slot.PersonalProfile, e.session.Gathering)
				return nil
			},
			Clears: []event.Kind{event.TravelScript, event.GatherScript},
		},
		{
			Name: "custom-script-popup",
			When: active(event.ProfileMentioned),
			Do: func(e *Engine, _ time.Time) error {
				ctx := context.Background()
				if pt, ok := e.screen.FindAnchor(ctx, "script-popup-accept", 2*time.Second); ok {
					e.input.Click(pt.X, pt.Y)
					e.sleep(500)
				}
				return nil
			},
			Clears: []event.Kind{event.ProfileMentioned},
		},
		{
			Name: "housekeeping",
			When: func(e *Engine, now time.Time) bool {
				return now.Sub(e.session.LastHousekeeping) >= housekeepingGap
			},
			Do: (*Engine).housekeeping,
		},
	}
}

func isLevelingProfile(profile string) bool {
	return strings.Contains(strings.ToLower(profile), "leveling")
}
