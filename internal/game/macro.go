package game

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/kadzielawa/wowsup/internal/config"
	"github.com/kadzielawa/wowsup/internal/utils"
)

const (
	toolAnchorTimeout = 8 * time.Second
	clientBootDelay   = 45000 // ms, character select reachable after this
	toolBootDelay     = 15000 // ms
)

// Tool drives the macro tool's own UI window: profile selection, start/stop,
// and the log console tab. The tool exposes no API, so everything goes
// through anchors and keystrokes like a human operator.
type Tool struct {
	logger *slog.Logger
	procs  *Controller

	gamePath string
	gameExe  string
	toolPath string
	toolExe  string

	win      *Window
	capturer *Capturer
	input    *Input
}

func NewTool(logger *slog.Logger, procs *Controller) *Tool {
	t := &Tool{logger: logger, procs: procs}
	if config.Wowsup != nil {
		t.gamePath = config.Wowsup.GamePath
		t.gameExe = config.Wowsup.GameExe
		t.toolPath = config.Wowsup.MacroToolPath
		t.toolExe = config.Wowsup.MacroToolExe
	}
	return t
}

// attach resolves the tool's window, launching the executable first when no
// window exists yet.
func (t *Tool) attach() error {
	if t.win != nil && t.win.PID() != 0 {
		return nil
	}

	title := strings.TrimSuffix(t.toolExe, filepath.Ext(t.toolExe))
	win, err := FindWindow(title)
	if err != nil {
		if t.toolPath == "" {
			return fmt.Errorf("macro tool not running and no path configured")
		}
		t.logger.Info("launching macro tool", slog.String("path", t.toolPath))
		if err := t.procs.Start(filepath.Join(t.toolPath, t.toolExe)); err != nil {
			return err
		}
		utils.Sleep(toolBootDelay)
		win, err = FindWindow(title)
		if err != nil {
			return fmt.Errorf("macro tool window did not appear: %w", err)
		}
	}

	t.win = win
	t.capturer = NewCapturer(win, "anchors")
	t.input = NewInput(win)
	return nil
}

// StartProfile selects the named profile in the tool's dropdown and starts
// it.
func (t *Tool) StartProfile(ctx context.Context, profile string) error {
	if err := t.attach(); err != nil {
		return err
	}
	t.win.Focus()

	pt, ok := t.capturer.FindAnchor(ctx, "profile-select", toolAnchorTimeout)
	if !ok {
		return fmt.Errorf("profile selector not found")
	}
	t.input.Click(pt.X, pt.Y)
	utils.Sleep(500)

	t.input.TypeText(profile)
	utils.Sleep(300)
	t.input.Press("enter")
	utils.Sleep(500)

	if pt, ok := t.capturer.FindAnchor(ctx, "profile-start", toolAnchorTimeout); ok {
		t.input.Click(pt.X, pt.Y)
	} else {
		t.input.Press("f9")
	}

	t.logger.Info("profile started", slog.String("profile", profile))
	return nil
}

func (t *Tool) StopProfile(ctx context.Context) error {
	if err := t.attach(); err != nil {
		return err
	}
	t.win.Focus()

	if pt, ok := t.capturer.FindAnchor(ctx, "profile-stop", toolAnchorTimeout); ok {
		t.input.Click(pt.X, pt.Y)
	} else {
		t.input.Press("f10")
	}
	utils.Sleep(1000)
	return nil
}

// OpenLogConsole switches the tool to its log tab so the console region is
// visible for OCR.
func (t *Tool) OpenLogConsole(ctx context.Context) error {
	if err := t.attach(); err != nil {
		return err
	}
	t.win.Focus()

	pt, ok := t.capturer.FindAnchor(ctx, "log-tab", toolAnchorTimeout)
	if !ok {
		return fmt.Errorf("log console tab not found")
	}
	t.input.Click(pt.X, pt.Y)
	return nil
}

// RelaunchAll tears down both client and tool and brings the whole stack
// back up: game first, then the tool, then the log console.
func (t *Tool) RelaunchAll(ctx context.Context) error {
	if err := t.Close(); err != nil {
		t.logger.Warn("macro tool close during relaunch failed", slog.Any("error", err))
	}
	t.killByName(t.gameExe)
	utils.Sleep(3000)

	if t.gamePath == "" {
		return fmt.Errorf("no game path configured")
	}
	t.logger.Info("relaunching game client", slog.String("path", t.gamePath))
	if err := t.procs.Start(filepath.Join(t.gamePath, t.gameExe)); err != nil {
		return fmt.Errorf("starting game client: %w", err)
	}
	utils.Sleep(clientBootDelay)

	if err := t.attach(); err != nil {
		return err
	}
	return t.OpenLogConsole(ctx)
}

// CaptureConsole screenshots the log console region of the tool window. The
// attach means a relaunched tool is picked up transparently between reads.
func (t *Tool) CaptureConsole() (image.Image, error) {
	if err := t.attach(); err != nil {
		return nil, err
	}
	return t.capturer.CaptureRegion(logConsoleRegion)
}

// Close quits the tool process. The window handle is dropped so the next
// call re-attaches.
func (t *Tool) Close() error {
	t.killByName(t.toolExe)
	t.win = nil
	t.capturer = nil
	t.input = nil
	return nil
}

func (t *Tool) killByName(exe string) {
	if exe == "" {
		return
	}
	tasks, err := t.procs.Tasks()
	if err != nil {
		return
	}
	for _, p := range tasks {
		if strings.EqualFold(p.Name, exe) {
			if err := t.procs.Kill(p.PID); err != nil {
				t.logger.Warn("process kill failed", slog.String("process", exe), slog.Any("error", err))
			}
		}
	}
}
