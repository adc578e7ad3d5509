package bot

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/kadzielawa/wowsup/internal/config"
	"github.com/kadzielawa/wowsup/internal/event"
	"github.com/kadzielawa/wowsup/internal/game"
	"github.com/kadzielawa/wowsup/internal/logread"
)

type fakeSensor struct {
	outputs []string
	idx     int
}

func (f *fakeSensor) ReadLog(ctx context.Context) (string, error) {
	if f.idx >= len(f.outputs) {
		return "", errors.New("no console data")
	}
	out := f.outputs[f.idx]
	f.idx++
	return out, nil
}

type fakeScreen struct {
	anchors map[string]image.Point
	frames  []image.Image
}

func (f *fakeScreen) Capture() (image.Image, error) {
	return f.nextFrame()
}

func (f *fakeScreen) CaptureRegion(r image.Rectangle) (image.Image, error) {
	return f.nextFrame()
}

func (f *fakeScreen) nextFrame() (image.Image, error) {
	if len(f.frames) == 0 {
		return nil, errors.New("no frames scripted")
	}
	img := f.frames[0]
	if len(f.frames) > 1 {
		f.frames = f.frames[1:]
	}
	return img, nil
}

func (f *fakeScreen) FindAnchor(ctx context.Context, name string, timeout time.Duration) (image.Point, bool) {
	pt, ok := f.anchors[name]
	return pt, ok
}

func (f *fakeScreen) SaveScreenshot(path string) error {
	return nil
}

type fakeInput struct {
	presses []string
	downs   []string
	ups     []string
	clicks  []image.Point
}

func (f *fakeInput) Press(key string)   { f.presses = append(f.presses, key) }
func (f *fakeInput) KeyDown(key string) { f.downs = append(f.downs, key) }
func (f *fakeInput) KeyUp(key string)   { f.ups = append(f.ups, key) }
func (f *fakeInput) Click(x, y int)     { f.clicks = append(f.clicks, image.Pt(x, y)) }

type fakeProcs struct {
	tasks     []game.Process
	killed    []uint32
	reboots   int
	shutdowns int
	restarts  int
}

func (f *fakeProcs) Tasks() ([]game.Process, error)         { return f.tasks, nil }
func (f *fakeProcs) Kill(pid uint32) error                  { f.killed = append(f.killed, pid); return nil }
func (f *fakeProcs) Start(path string, args ...string) error { return nil }
func (f *fakeProcs) RestartShell() error                    { f.restarts++; return nil }
func (f *fakeProcs) Reboot() error                          { f.reboots++; return nil }
func (f *fakeProcs) Shutdown() error                        { f.shutdowns++; return nil }

type fakeMacro struct {
	started    []string
	stops      int
	relaunches int
	closes     int
	consoles   int
}

func (f *fakeMacro) StartProfile(ctx context.Context, profile string) error {
	f.started = append(f.started, profile)
	return nil
}
func (f *fakeMacro) StopProfile(ctx context.Context) error    { f.stops++; return nil }
func (f *fakeMacro) OpenLogConsole(ctx context.Context) error { f.consoles++; return nil }
func (f *fakeMacro) RelaunchAll(ctx context.Context) error    { f.relaunches++; return nil }
func (f *fakeMacro) Close() error                             { f.closes++; return nil }

type testRig struct {
	engine *Engine
	sensor *fakeSensor
	screen *fakeScreen
	input  *fakeInput
	procs  *fakeProcs
	macro  *fakeMacro
}

func newTestRig(t *testing.T, slot *config.SlotCfg) *testRig {
	t.Helper()

	rig := &testRig{
		sensor: &fakeSensor{},
		screen: &fakeScreen{anchors: map[string]image.Point{"ingame-marker": image.Pt(10, 10)}},
		input:  &fakeInput{},
		procs:  &fakeProcs{},
		macro:  &fakeMacro{},
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rig.engine = NewEngine(logger, "slot1", slot, "test-run", Collaborators{
		Sensor: rig.sensor,
		Screen: rig.screen,
		Input:  rig.input,
		Procs:  rig.procs,
		Macro:  rig.macro,
	})

	// Redirect every disk side effect into the test sandbox and make the
	// humanized waits instant.
	dir := t.TempDir()
	rig.engine.reconciler = logread.NewReconciler(logger, 6*time.Hour+30*time.Minute, "", "")
	rig.engine.statusIO = NewStatusFile(filepath.Join(dir, "saved_status.txt"))
	rig.engine.reviveLogPath = filepath.Join(dir, "revive.log")
	rig.engine.sleep = func(int) {}

	return rig
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func count(list []string, want string) int {
	n := 0
	for _, v := range list {
		if v == want {
			n++
		}
	}
	return n
}

// A fixed clock in the recent past keeps the housekeeping rule quiet (its
// last-run marker is initialized to the real wall clock) while the log
// timestamps still parse against the cycle time.
var testBase = time.Date(2026, 1, 2, 14, 2, 30, 0, time.Local)

func TestCycleStuckRecoveryFiresAtThreshold(t *testing.T) {
	slot := &config.SlotCfg{Profiles: []string{"tanaris route"}}
	rig := newTestRig(t, slot)

	rig.sensor.outputs = []string{
		"14:02:01 Combat started\n" +
			"14:02:05 Player is stucked\n" +
			"14:02:10 Player is stucked\n" +
			"14:02:27 Player is stucked\n",
		"14:02:27 Player is stucked\n" +
			"14:02:39 Player is stucked\n",
	}

	ctx := context.Background()
	if err := rig.engine.Cycle(ctx, testBase); err != nil {
		t.Fatalf("first cycle: %v", err)
	}

	if got := rig.engine.Session().StuckCount; got != 3 {
		t.Fatalf("StuckCount after three hits = %d, want 3", got)
	}
	if contains(rig.input.presses, "space") {
		t.Fatal("recovery fired before the fourth stuck report")
	}

	if err := rig.engine.Cycle(ctx, testBase.Add(15*time.Second)); err != nil {
		t.Fatalf("second cycle: %v", err)
	}

	if !contains(rig.input.presses, "space") {
		t.Fatal("recovery jump did not fire on the fourth stuck report")
	}
	if !contains(rig.input.downs, "w") {
		t.Fatal("recovery did not hold the first movement-pattern key")
	}
	if !contains(rig.input.downs, "alt") || !contains(rig.input.presses, "f3") {
		t.Fatal("recovery did not reload the profile")
	}
	if got := rig.engine.Session().StuckCount; got != 0 {
		t.Fatalf("StuckCount after recovery = %d, want 0", got)
	}
}

func TestCycleCombatBacksOffMovementChecks(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	rig.sensor.outputs = []string{"14:02:25 Combat started\n"}

	if err := rig.engine.Cycle(context.Background(), testBase); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if got := rig.engine.Session().MoveCheckCount; got != -combatCheckDelay {
		t.Fatalf("MoveCheckCount = %d, want %d", got, -combatCheckDelay)
	}
}

func TestSustainedErrorRebootsExactlyOnce(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	rig.engine.allowShutdown = true

	rig.sensor.outputs = []string{
		"14:02:01 Movement task finished with error\n" +
			"14:02:09 Loot task finished with error\n" +
			"14:02:18 Combat task finished with error\n" +
			"14:02:23 Gather task finished with error\n" +
			"14:02:27 Repair task finished with error\n",
		"14:02:36 Buff task finished with error\n" +
			"14:02:41 Path task finished with error\n" +
			"14:02:48 Cast task finished with error\n" +
			"14:02:53 Skin task finished with error\n" +
			"14:02:58 Mount task finished with error\n",
	}

	ctx := context.Background()
	if err := rig.engine.Cycle(ctx, testBase); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if rig.procs.reboots != 1 {
		t.Fatalf("reboots after fifth error = %d, want 1", rig.procs.reboots)
	}
	if !rig.engine.Session().RebootIssued {
		t.Fatal("RebootIssued not latched after the reboot")
	}

	// Five more errors inside the same window must not reboot again.
	if err := rig.engine.Cycle(ctx, testBase.Add(30*time.Second)); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if rig.procs.reboots != 1 {
		t.Fatalf("reboots after repeat burst = %d, want 1", rig.procs.reboots)
	}
}

func TestSustainedErrorRespectsShutdownGate(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	// allowShutdown stays false.

	rig.sensor.outputs = []string{
		"14:02:01 Movement task finished with error\n" +
			"14:02:09 Loot task finished with error\n" +
			"14:02:18 Combat task finished with error\n" +
			"14:02:23 Gather task finished with error\n" +
			"14:02:27 Repair task finished with error\n",
	}

	if err := rig.engine.Cycle(context.Background(), testBase); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if rig.procs.reboots != 0 {
		t.Fatalf("reboots = %d, want 0 with shutdown disabled", rig.procs.reboots)
	}
}

func TestCycleFrozenExceptionLineDoesNotAccumulate(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	rig.engine.allowShutdown = true

	// The console freezes on one exception line; every snapshot reads back
	// identical. The line must count at most once, not once per cycle.
	frozen := "14:02:27 Unhandled exception: object reference not set\n"
	for i := 0; i < 10; i++ {
		rig.sensor.outputs = append(rig.sensor.outputs, frozen)
	}

	ctx := context.Background()
	for i := 0; i < 10; i++ {
		if err := rig.engine.Cycle(ctx, testBase.Add(time.Duration(i)*2*time.Second)); err != nil {
			t.Fatalf("cycle %d: %v", i, err)
		}
	}

	if got := rig.engine.Session().ErrorCount; got != 0 {
		t.Fatalf("ErrorCount after frozen snapshots = %d, want 0", got)
	}
	if rig.procs.reboots != 0 {
		t.Fatalf("reboots = %d, want 0 from a frozen console", rig.procs.reboots)
	}
	if contains(rig.input.presses, "esc") {
		t.Fatal("mail window recovery fired from a frozen console")
	}
}

func TestCycleExceptionPromotedOnSecondSighting(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})

	first := "14:02:27 Unhandled exception: object reference not set\n"
	second := "14:02:39 Unhandled exception: stack empty\n"
	rig.sensor.outputs = []string{first, first + second}

	ctx := context.Background()
	if err := rig.engine.Cycle(ctx, testBase); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if got := rig.engine.Session().ErrorCount; got != 0 {
		t.Fatalf("ErrorCount after one sighting = %d, want 0", got)
	}

	if err := rig.engine.Cycle(ctx, testBase.Add(15*time.Second)); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if got := rig.engine.Session().ErrorCount; got != 1 {
		t.Fatalf("ErrorCount after second sighting = %d, want 1", got)
	}
	if !contains(rig.input.presses, "esc") {
		t.Fatal("mail window recovery did not fire on the promoted exception")
	}
}

func TestCycleStopCommand(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	rig.sensor.outputs = []string{"14:02:25 Stop now requested by operator\n"}

	err := rig.engine.Cycle(context.Background(), testBase)
	if !errors.Is(err, ErrStopRequested) {
		t.Fatalf("Cycle error = %v, want ErrStopRequested", err)
	}
	if !contains(rig.input.presses, "f4") {
		t.Fatal("stop command did not press the profile stop hotkey")
	}
}

func TestCycleProfileRotationOnFinish(t *testing.T) {
	slot := &config.SlotCfg{Profiles: []string{"tanaris route", "un'goro route"}}
	rig := newTestRig(t, slot)
	rig.sensor.outputs = []string{"14:02:25 Profile 'Tanaris Route' finished successfully\n"}

	if err := rig.engine.Cycle(context.Background(), testBase); err != nil {
		t.Fatalf("cycle: %v", err)
	}

	if got := rig.engine.Session().ActiveProfile; got != "un'goro route" {
		t.Fatalf("ActiveProfile = %q, want next profile in rotation", got)
	}
	if !contains(rig.macro.started, "un'goro route") {
		t.Fatalf("macro started %v, want the rotated profile", rig.macro.started)
	}

	v, completed, err := rig.engine.statusIO.Value("Profile")
	if err != nil {
		t.Fatalf("reading status file: %v", err)
	}
	if v != "un'goro route" || completed {
		t.Fatalf("status file Profile = %q (completed=%v), want next profile uncompleted", v, completed)
	}
}

func TestCyclePausedSkipsSensor(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	rig.engine.Session().PausedUntil = testBase.Add(time.Minute)

	if err := rig.engine.Cycle(context.Background(), testBase); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if rig.sensor.idx != 0 {
		t.Fatal("paused cycle still read the log sensor")
	}
	if got := rig.engine.Session().Status; got != StatusPaused {
		t.Fatalf("Status = %q, want %q", got, StatusPaused)
	}
}

func uniformFrame(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestCompareMovementLadder(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	frozen := uniformFrame(color.RGBA{120, 120, 120, 255})
	rig.screen.frames = []image.Image{frozen}

	ctx := context.Background()

	// First pass has nothing to compare against; four more identical frames
	// push UnchangedCount past the light-retry bar.
	for i := 0; i < 5; i++ {
		if err := rig.engine.compareMovement(ctx); err != nil {
			t.Fatalf("pass %d: %v", i+1, err)
		}
	}
	if count(rig.input.presses, "f3") != 1 {
		t.Fatalf("profile reload count = %d, want 1 after four unchanged frames", count(rig.input.presses, "f3"))
	}
	if rig.macro.relaunches != 0 {
		t.Fatal("relaunch fired before the retry had a chance")
	}
	if got := rig.engine.Session().Attempt; got != 1 {
		t.Fatalf("Attempt = %d, want 1", got)
	}

	// Still frozen after the reload: full relaunch.
	if err := rig.engine.compareMovement(ctx); err != nil {
		t.Fatalf("relaunch pass: %v", err)
	}
	if rig.macro.relaunches != 1 {
		t.Fatalf("relaunches = %d, want 1", rig.macro.relaunches)
	}
	if got := rig.engine.Session().Attempt; got != 2 {
		t.Fatalf("Attempt = %d, want 2", got)
	}

	// Frozen even after the relaunch: give up.
	err := rig.engine.compareMovement(ctx)
	if !errors.Is(err, ErrUnrecoverableClient) {
		t.Fatalf("error = %v, want ErrUnrecoverableClient", err)
	}
}

func TestCompareMovementResetsOnChange(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	frozen := uniformFrame(color.RGBA{120, 120, 120, 255})
	moving := uniformFrame(color.RGBA{40, 200, 90, 255})
	rig.screen.frames = []image.Image{frozen, frozen, frozen, moving}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := rig.engine.compareMovement(ctx); err != nil {
			t.Fatalf("pass %d: %v", i+1, err)
		}
	}

	s := rig.engine.Session()
	if s.UnchangedCount != 0 || s.Attempt != 0 {
		t.Fatalf("unchanged=%d attempt=%d after a changed frame, want both 0", s.UnchangedCount, s.Attempt)
	}
	if contains(rig.input.presses, "f3") {
		t.Fatal("profile reload fired although the screen moved again")
	}
}

func TestCheckInGameRelaunchAfterSustainedMisses(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	delete(rig.screen.anchors, "ingame-marker")

	ctx := context.Background()
	for i := 0; i < inGameMissLimit-1; i++ {
		if err := rig.engine.checkInGame(ctx); err != nil {
			t.Fatalf("miss %d: %v", i+1, err)
		}
	}
	if rig.macro.relaunches != 0 {
		t.Fatal("relaunch fired before the miss limit")
	}

	if err := rig.engine.checkInGame(ctx); err != nil {
		t.Fatalf("final miss: %v", err)
	}
	if rig.macro.relaunches != 1 {
		t.Fatalf("relaunches = %d, want 1 at the miss limit", rig.macro.relaunches)
	}
	if got := rig.engine.Session().InGameMisses; got != 0 {
		t.Fatalf("InGameMisses = %d, want reset to 0", got)
	}

	// A hit resets the streak.
	rig.screen.anchors["ingame-marker"] = image.Pt(5, 5)
	rig.engine.Session().InGameMisses = 7
	if err := rig.engine.checkInGame(ctx); err != nil {
		t.Fatalf("hit: %v", err)
	}
	if got := rig.engine.Session().InGameMisses; got != 0 {
		t.Fatalf("InGameMisses after hit = %d, want 0", got)
	}
}

func TestReconcileSameSnapshotTwiceIsQuiet(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	snapshot := "14:02:25 Going to vendor\n"
	rig.sensor.outputs = []string{snapshot, snapshot}

	ctx := context.Background()
	if err := rig.engine.Cycle(ctx, testBase); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if !rig.engine.Actions().Active(event.GoingToVendor) {
		t.Fatal("vendor trigger not set on first sight")
	}
	rig.engine.Actions().Reset()

	if err := rig.engine.Cycle(ctx, testBase.Add(2*time.Second)); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if rig.engine.Actions().Active(event.GoingToVendor) {
		t.Fatal("unchanged snapshot re-triggered the vendor event")
	}
}

func TestRelaunchAllResetsPerceptionState(t *testing.T) {
	rig := newTestRig(t, &config.SlotCfg{})
	rig.sensor.outputs = []string{"14:02:25 Going to vendor\n"}

	ctx := context.Background()
	if err := rig.engine.Cycle(ctx, testBase); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if _, ok := rig.engine.reconciler.Latest(); !ok {
		t.Fatal("no reconciled history before relaunch")
	}

	if err := rig.engine.relaunchAll(ctx, "test relaunch"); err != nil {
		t.Fatalf("relaunchAll: %v", err)
	}
	if _, ok := rig.engine.reconciler.Latest(); ok {
		t.Fatal("reconciled history survived the relaunch")
	}
	if rig.macro.relaunches != 1 {
		t.Fatalf("relaunches = %d, want 1", rig.macro.relaunches)
	}
}
