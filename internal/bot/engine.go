package bot

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/kadzielawa/wowsup/internal/config"
	"github.com/kadzielawa/wowsup/internal/game"
	"github.com/kadzielawa/wowsup/internal/logread"
	"github.com/kadzielawa/wowsup/internal/utils"
)

var (
	// ErrStopRequested is raised when the log stream carries the external
	// stop command; the supervisor shuts the slot down cleanly.
	ErrStopRequested = errors.New("stop requested from log stream")

	// ErrUnrecoverableClient means the recovery ladder is exhausted; the
	// supervisor tears the session down and exits.
	ErrUnrecoverableClient = errors.New("game client is in an unrecoverable state")
)

// TextSensor produces one snapshot of the macro tool's log console, either
// from OCR over a screenshot or from the DOM fallback.
type TextSensor interface {
	ReadLog(ctx context.Context) (string, error)
}

// Screen is the perception collaborator: raw captures plus anchor-template
// lookup with a polled wall-clock deadline that returns a definite miss
// instead of hanging.
type Screen interface {
	Capture() (image.Image, error)
	CaptureRegion(r image.Rectangle) (image.Image, error)
	FindAnchor(ctx context.Context, name string, timeout time.Duration) (image.Point, bool)
	SaveScreenshot(path string) error
}

// Input drives synthetic keyboard/mouse events. Implementations must pair
// every key-down with a key-up; the engine additionally defers releases on
// its own combo helpers so no exit path leaves a key held.
type Input interface {
	Press(key string)
	KeyDown(key string)
	KeyUp(key string)
	Click(x, y int)
}

// ProcessController polls and manipulates the OS process table, and owns the
// terminal machine-level actions.
type ProcessController interface {
	Tasks() ([]game.Process, error)
	Kill(pid uint32) error
	Start(path string, args ...string) error
	RestartShell() error
	Reboot() error
	Shutdown() error
}

// MacroTool drives the supervised automation tool: profile lifecycle and the
// tool process itself.
type MacroTool interface {
	StartProfile(ctx context.Context, profile string) error
	StopProfile(ctx context.Context) error
	OpenLogConsole(ctx context.Context) error
	RelaunchAll(ctx context.Context) error
	Close() error
}

// Engine is the per-slot recovery decision loop: reconcile the log console,
// classify new lines, then evaluate the ordered rule table against the
// trigger map and the session counters.
type Engine struct {
	logger     *slog.Logger
	slot       *config.SlotCfg
	slotName   string
	reconciler *logread.Reconciler
	classifier *logread.Classifier
	session    *SessionState
	actions    *ActionState
	watchdogs  *WatchdogRegistry
	rules      []Rule

	sensor TextSensor
	screen Screen
	input  Input
	procs  ProcessController
	macro  MacroTool

	statusIO      *StatusFile
	reviveLogPath string
	machineID     string
	allowShutdown bool

	// moveRegion is the fixed screen region compared across cycles for the
	// no-movement check.
	moveRegion image.Rectangle
	captures   [3]image.Image
	captureIdx int

	sleep func(milliseconds int)
}

// Collaborators bundles the external interfaces an Engine drives.
type Collaborators struct {
	Sensor TextSensor
	Screen Screen
	Input  Input
	Procs  ProcessController
	Macro  MacroTool
}

func NewEngine(logger *slog.Logger, slotName string, slot *config.SlotCfg, runID string, c Collaborators) *Engine {
	skew := 6*time.Hour + 30*time.Minute
	errorsDir := ""
	reviveLog := ""
	allowShutdown := false
	logDir := "logs"
	if config.Wowsup != nil {
		skew = config.Wowsup.OCR.ClockSkew
		errorsDir = config.Wowsup.ProfileErrorsDir
		reviveLog = config.Wowsup.ReviveLogFile
		allowShutdown = config.Wowsup.AllowMachineShutdown
		if config.Wowsup.LogSaveDirectory != "" {
			logDir = config.Wowsup.LogSaveDirectory
		}
	}

	tailPath := fmt.Sprintf("%s/%s_recent.txt", logDir, slotName)
	fullPath := fmt.Sprintf("%s/%s_full.txt", logDir, slotName)

	e := &Engine{
		logger:        logger,
		slot:          slot,
		slotName:      slotName,
		reconciler:    logread.NewReconciler(logger, skew, tailPath, fullPath),
		classifier:    logread.NewClassifier(logger, errorsDir),
		session:       NewSessionState(runID),
		actions:       NewActionState(),
		watchdogs:     NewWatchdogRegistry(),
		sensor:        c.Sensor,
		screen:        c.Screen,
		input:         c.Input,
		procs:         c.Procs,
		macro:         c.Macro,
		statusIO:      NewStatusFile(fmt.Sprintf("config/%s/saved_status.txt", slotName)),
		reviveLogPath: reviveLog,
		machineID:     config.MachineID(),
		allowShutdown: allowShutdown,
		moveRegion:    image.Rect(266, 32, 840, 320),
		sleep:         utils.Sleep,
	}
	e.rules = recoveryRules()

	if len(slot.Profiles) > 0 {
		e.session.ActiveProfile = slot.Profiles[0]
	}
	e.session.Gathering = slot.Gathering
	e.classifier.SetActiveProfile(e.session.ActiveProfile, slot.PersonalProfile, slot.Gathering)

	return e
}

func (e *Engine) Session() *SessionState {
	return e.session
}

func (e *Engine) Actions() *ActionState {
	return e.actions
}

func (e *Engine) Watchdogs() *WatchdogRegistry {
	return e.watchdogs
}

// Cycle runs one pass: ingest the log console, update the trigger map, then
// walk the rule table in priority order. Rules clear the triggers they
// consume. Returns a sentinel error when the slot must stop.
func (e *Engine) Cycle(ctx context.Context, now time.Time) error {
	delta := now.Sub(e.session.LastCycle)
	e.session.LastCycle = now
	e.session.Advance(delta)

	if now.Before(e.session.PausedUntil) {
		e.session.Status = StatusPaused
		return nil
	}

	raw, err := e.sensor.ReadLog(ctx)
	if err != nil {
		// Transient perception miss: no signal this cycle.
		e.session.Status = StatusNotWorking
		e.logger.Debug("log sensor returned no data", slog.Any("error", err))
		return nil
	}
	e.session.Status = StatusRunning

	lines := e.reconciler.Reconcile(raw, now)
	for _, line := range lines {
		for _, ev := range e.classifier.Classify(line) {
			e.actions.Apply(ev)
		}
	}
	// The debounce scan only runs when this snapshot moved the log forward.
	// A frozen console must not keep re-promoting its last visible line; a
	// hung client is the not-responding and frozen-screen ladders' job.
	if len(lines) > 0 {
		if latest, ok := e.reconciler.Latest(); ok {
			for _, ev := range e.classifier.ScanLatest(latest) {
				e.actions.Apply(ev)
			}
		}
	}

	for _, rule := range e.rules {
		if !rule.When(e, now) {
			continue
		}
		e.logger.Debug("recovery rule fired", slog.String("rule", rule.Name))
		if err := rule.Do(e, now); err != nil {
			return fmt.Errorf("rule %s: %w", rule.Name, err)
		}
		e.actions.Clear(rule.Clears...)
	}

	return nil
}

// Teardown drains the watchdog registry and stops the running profile. Used
// by the supervisor's exception boundary and clean shutdown alike.
func (e *Engine) Teardown(ctx context.Context) {
	e.watchdogs.StopAll()
	if err := e.macro.StopProfile(ctx); err != nil {
		e.logger.Warn("error stopping profile during teardown", slog.Any("error", err))
	}
}

// holdKey presses key for the given duration with the release deferred, so
// the key never stays down on a panic inside the hold window.
func (e *Engine) holdKey(key string, ms int) {
	e.input.KeyDown(key)
	defer e.input.KeyUp(key)
	e.sleep(ms)
}

// combo presses key with the modifier held, releasing the modifier on every
// exit path.
func (e *Engine) combo(modifier, key string) {
	e.input.KeyDown(modifier)
	defer e.input.KeyUp(modifier)
	e.sleep(50)
	e.input.Press(key)
}
