package bot

import (
	"context"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/kadzielawa/wowsup/internal/config"
)

// housekeeping is the low-frequency health pass: process table, in-game
// presence, and the frozen-screen comparison. It runs from the rule table at
// most once per housekeepingGap.
func (e *Engine) housekeeping(now time.Time) error {
	e.session.LastHousekeeping = now
	ctx := context.Background()

	if err := e.checkProcesses(ctx); err != nil {
		return err
	}
	if err := e.checkInGame(ctx); err != nil {
		return err
	}
	return e.compareMovement(ctx)
}

// checkProcesses verifies the game client is alive and responsive and sweeps
// up crash-reporter dialogs that would otherwise steal focus.
func (e *Engine) checkProcesses(ctx context.Context) error {
	tasks, err := e.procs.Tasks()
	if err != nil {
		e.logger.Warn("process table poll failed", slog.Any("error", err))
		return nil
	}

	gameExe := ""
	if config.Wowsup != nil {
		gameExe = config.Wowsup.GameExe
	}

	gameRunning := false
	for _, t := range tasks {
		if strings.Contains(t.Name, "BlizzardError") {
			e.logger.Info("killing crash reporter", slog.String("process", t.Name), slog.Any("pid", t.PID))
			if err := e.procs.Kill(t.PID); err != nil {
				e.logger.Warn("crash reporter kill failed", slog.Any("error", err))
			}
			continue
		}
		if gameExe != "" && strings.EqualFold(t.Name, gameExe) {
			gameRunning = true
			if t.NotResponding {
				e.logger.Warn("game client not responding", slog.Any("pid", t.PID))
				e.input.Press("f4")
				if err := e.procs.Kill(t.PID); err != nil {
					e.logger.Warn("hung client kill failed", slog.Any("error", err))
				}
				return e.relaunchAll(ctx, "game client hung")
			}
		}
	}

	if gameExe != "" && !gameRunning {
		return e.relaunchAll(ctx, "game process missing")
	}
	return nil
}

// checkInGame looks for the fixed UI marker that only renders on the live
// game screen. Single misses are normal during loading screens; only a
// sustained run of them means the client fell out of the world.
func (e *Engine) checkInGame(ctx context.Context) error {
	if _, ok := e.screen.FindAnchor(ctx, "ingame-marker", 2*time.Second); ok {
		e.session.InGameMisses = 0
		return nil
	}

	e.session.InGameMisses++
	if e.session.InGameMisses < inGameMissLimit {
		return nil
	}
	e.session.InGameMisses = 0
	return e.relaunchAll(ctx, "in-game marker missing")
}

// compareMovement captures the fixed world-view region and compares it with
// the previous pass. A negative MoveCheckCount suppresses the check; combat
// and transport rules park the counter well below zero so a stationary but
// healthy character is not mistaken for a frozen client.
func (e *Engine) compareMovement(ctx context.Context) error {
	e.session.MoveCheckCount++
	if e.session.MoveCheckCount < 0 {
		return nil
	}

	img, err := e.screen.CaptureRegion(e.moveRegion)
	if err != nil {
		e.logger.Warn("movement capture failed", slog.Any("error", err))
		return nil
	}

	prev := e.captures[e.captureIdx]
	e.captureIdx = (e.captureIdx + 1) % len(e.captures)
	e.captures[e.captureIdx] = img

	if prev == nil || !imagesEqual(prev, img) {
		e.session.UnchangedCount = 0
		e.session.Attempt = 0
		return nil
	}

	e.session.UnchangedCount++
	switch {
	case e.session.Attempt == 2:
		return ErrUnrecoverableClient

	case e.session.Attempt == 1:
		e.session.Attempt = 2
		e.session.UnchangedCount = 0
		return e.relaunchAll(ctx, "screen frozen after profile retry")

	case e.session.UnchangedCount > 3:
		e.logger.Info("screen unchanged, retrying profile",
			slog.Int("unchanged", e.session.UnchangedCount))
		e.reloadProfile()
		e.session.Attempt = 1
		e.session.UnchangedCount = 0
	}
	return nil
}

func imagesEqual(a, b image.Image) bool {
	if a.Bounds().Size() != b.Bounds().Size() {
		return false
	}
	ab, bb := a.Bounds(), b.Bounds()
	for y := 0; y < ab.Dy(); y++ {
		for x := 0; x < ab.Dx(); x++ {
			ar, ag, abl, _ := a.At(ab.Min.X+x, ab.Min.Y+y).RGBA()
			br, bg, bbl, _ := b.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			if ar != br || ag != bg || abl != bbl {
				return false
			}
		}
	}
	return true
}
