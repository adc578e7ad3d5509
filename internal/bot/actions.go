package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadzielawa/wowsup/internal/event"
)

// handleSustainedError accumulates error occurrences over a rolling 300s
// window. At the threshold it issues the terminal machine reboot exactly
// once and resets the counter, so the same window can never reboot twice.
func (e *Engine) handleSustainedError(now time.Time) error {
	if now.Sub(e.session.ErrorWindowStart) > errorWindow {
		e.session.ErrorCount = 0
		e.session.ErrorWindowStart = now
		e.session.RebootIssued = false
	}

	e.session.ErrorCount += e.actions.Get(event.UnhandledError)
	e.logger.Warn("unhandled error reported by macro tool",
		slog.Int("count", e.session.ErrorCount),
		slog.String("window_start", e.session.ErrorWindowStart.Format(time.TimeOnly)))

	if e.session.ErrorCount < errorThreshold || e.session.RebootIssued {
		return nil
	}

	e.errorEscapeSequence()

	e.session.RebootIssued = true
	count := e.session.ErrorCount
	e.session.ErrorCount = 0
	e.session.ErrorWindowStart = now

	event.Send(event.MachineReboot(event.Text(e.slotName, "error threshold reached, rebooting machine"), count))
	if !e.allowShutdown {
		e.logger.Error("machine reboot required but shutdown is disabled in config")
		return nil
	}
	return e.procs.Reboot()
}

// errorEscapeSequence is the last set of local recoveries tried before the
// reboot: drop out of a possible airborne stall, then the z-key error retry
// with a profile reload.
func (e *Engine) errorEscapeSequence() {
	e.holdKey("s", 1000)
	e.input.Press("z")
	e.sleep(500)
	e.reloadProfile()
}

// handleStuck advances the stuck counter inside a rolling 30s window. At 4
// occurrences it issues exactly one recovery sequence (strafe key from the
// fixed movement cycle plus a jump and a profile reload) and resets the
// window.
func (e *Engine) handleStuck(now time.Time) error {
	if now.Sub(e.session.StuckWindowStart) > stuckWindow {
		e.session.StuckCount = 0
		e.session.StuckWindowStart = now
	}

	e.session.StuckCount += e.actions.Get(event.PlayerStuck)
	if e.session.StuckCount < stuckThreshold {
		return nil
	}

	key := e.session.NextMovementKey()
	e.input.Press("x")
	e.sleep(200)
	e.holdKey(key, 1200)
	e.input.Press("space")
	e.sleep(200)
	e.reloadProfile()

	event.Send(event.StuckRecovered(event.Text(e.slotName, "stuck recovery fired"), e.session.StuckCount, key))

	e.session.StuckCount = 0
	e.session.StuckWindowStart = now
	return nil
}

// handleAirborne counts airborne-destination reports in a 60s window; three
// of them mean the character is hovering over the target and needs a manual
// descend.
func (e *Engine) handleAirborne(now time.Time) error {
	if now.Sub(e.session.AirborneWindowStart) > airborneWindow {
		e.session.AirborneCount = 0
		e.session.AirborneWindowStart = now
	}

	e.session.AirborneCount += e.actions.Get(event.AirborneDestination)
	if e.session.AirborneCount < airborneLimit {
		return nil
	}

	e.input.Press("x")
	e.sleep(300)
	e.holdKey("s", 2000)
	e.reloadProfile()

	e.session.AirborneCount = 0
	e.session.AirborneWindowStart = now
	return nil
}

// scheduleMailTask cancels the running profile and sends the character to
// the mailbox sub-profile; the actual addon-driven mailing sequence runs when
// that profile finishes.
func (e *Engine) scheduleMailTask(now time.Time) error {
	if e.slot.MailProfile == "" {
		return nil
	}
	ctx := context.Background()

	if err := e.macro.StopProfile(ctx); err != nil {
		return fmt.Errorf("stopping profile for mail task: %w", err)
	}
	if err := e.macro.StartProfile(ctx, e.slot.MailProfile); err != nil {
		return fmt.Errorf("starting mail profile: %w", err)
	}

	e.session.MailTaskPending = true
	e.session.LastRestockSeen = e.classifier.LastRestock()
	event.Send(event.MailTaskStarted(event.Text(e.slotName, "mail task scheduled")))
	return nil
}

// handleProfileFinished branches on what kind of profile just completed:
// pending mail task, leveling rotation, hearthstone restart, or the normal
// profile rotation.
func (e *Engine) handleProfileFinished(now time.Time) error {
	ctx := context.Background()

	switch {
	case e.session.MailTaskPending:
		if err := e.runMailSequence(ctx); err != nil {
			e.logger.Error("mail sequence failed", slog.Any("error", err))
		}
		e.session.MailTaskPending = false
		return e.macro.StartProfile(ctx, e.session.ActiveProfile)

	case isLevelingProfile(e.session.ActiveProfile) && len(e.slot.LevelingOrder) > 0:
		current, _, err := e.statusIO.Value("Location")
		if err != nil {
			return fmt.Errorf("reading leveling location: %w", err)
		}
		next := NextInRotation(e.slot.LevelingOrder, current)
		if err := e.statusIO.Set("Location", next); err != nil {
			return fmt.Errorf("persisting leveling location: %w", err)
		}
		e.logger.Info("leveling route advanced", slog.String("from", current), slog.String("to", next))
		return e.macro.StartProfile(ctx, e.session.ActiveProfile)

	case isHearthstoneProfile(e.session.ActiveProfile):
		return e.macro.StartProfile(ctx, e.session.ActiveProfile)

	default:
		return e.rotateProfile(ctx)
	}
}

// rotateProfile marks the finished profile COMPLETED in the status file and
// starts the next one in the slot's rotation list.
func (e *Engine) rotateProfile(ctx context.Context) error {
	previous := e.session.ActiveProfile
	if err := e.statusIO.Set("Profile", previous); err == nil {
		_ = e.statusIO.MarkCompleted("Profile")
	}

	next := NextInRotation(e.slot.Profiles, previous)
	if next == "" {
		return nil
	}
	e.session.ActiveProfile = next
	e.classifier.SetActiveProfile(next, e.slot.PersonalProfile, e.session.Gathering)

	if err := e.statusIO.Set("Profile", next); err != nil {
		e.logger.Error("error persisting profile rotation", slog.Any("error", err))
	}

	event.Send(event.ProfileRotated(event.Text(e.slotName, "profile rotation"), previous, next))
	return e.macro.StartProfile(ctx, next)
}

// recoverMailWindow handles the mail window throwing errors while open:
// dismiss whatever popup blocks it and hold the interact key to reset the
// addon state.
func (e *Engine) recoverMailWindow(now time.Time) error {
	ctx := context.Background()
	if pt, ok := e.screen.FindAnchor(ctx, "mail-popup-accept", 2*time.Second); ok {
		e.input.Click(pt.X, pt.Y)
		e.sleep(500)
	}
	e.input.Press("esc")
	e.sleep(300)
	e.holdKey("x", 2000)
	return nil
}

// reloadProfile is the soft restart: reload the macro profile in place via
// the tool's hotkey, with the modifier release guaranteed.
func (e *Engine) reloadProfile() {
	e.combo("alt", "f3")
}

// relaunchAll tears the whole session down and brings game plus macro tool
// back up. The reconciled history is dropped: the fresh log console starts
// empty.
func (e *Engine) relaunchAll(ctx context.Context, cause string) error {
	e.logger.Info("relaunching game and macro tool", slog.String("cause", cause))

	e.watchdogs.StopAll()
	if err := e.macro.RelaunchAll(ctx); err != nil {
		return fmt.Errorf("relaunching session: %w", err)
	}

	e.reconciler.Reset()
	e.actions.Reset()
	e.session.InGameMisses = 0

	event.Send(event.GameRelaunched(event.Text(e.slotName, "session relaunched"), cause))
	return nil
}

func isHearthstoneProfile(profile string) bool {
	return strings.Contains(strings.ToLower(profile), "hearthstone")
}
