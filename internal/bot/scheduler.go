package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kadzielawa/wowsup/internal/config"
	"github.com/kadzielawa/wowsup/internal/event"
	"github.com/kadzielawa/wowsup/internal/utils"
)

// SchedulerPhase is the scheduler's coarse state between ticks.
type SchedulerPhase string

const (
	PhaseIdle           SchedulerPhase = "idle"
	PhaseSlotActive     SchedulerPhase = "slotActive"
	PhaseSwitchingSlots SchedulerPhase = "switchingSlots"
	PhaseShuttingDown   SchedulerPhase = "shuttingDown"
)

const switchSettleDelay = 30 * time.Second

// dayOffsets is the persisted per-day jitter for one slot's play window.
// Offsets are fractional hours drawn once per day so a restart mid-day keeps
// the same window instead of re-rolling it.
type dayOffsets struct {
	Date        string  `json:"date"`
	StartOffset float64 `json:"startOffset"`
	EndOffset   float64 `json:"endOffset"`
}

// Scheduler opens and closes slot play windows against the wall clock. Each
// slot plays inside [LowerHour-1, UpperHour) shifted by its daily jitter;
// when one window closes while another is open the scheduler performs a full
// slot switch with a client teardown in between.
type Scheduler struct {
	manager *SupervisorManager
	logger  *slog.Logger
	procs   ProcessController
	stop    chan struct{}

	// WindowProbe reports whether a top-level window with the given title
	// exists. Set by the composition root; used to adopt a client that
	// survived a supervisor restart.
	WindowProbe func(title string) bool

	mu      sync.Mutex
	phase   SchedulerPhase
	offsets map[string]*dayOffsets
}

func NewScheduler(manager *SupervisorManager, logger *slog.Logger, procs ProcessController) *Scheduler {
	return &Scheduler{
		manager: manager,
		logger:  logger,
		procs:   procs,
		stop:    make(chan struct{}),
		phase:   PhaseIdle,
		offsets: make(map[string]*dayOffsets),
	}
}

func (s *Scheduler) Start() {
	s.logger.Info("scheduler started")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.checkSchedules(time.Now())
		case <-s.stop:
			s.logger.Info("scheduler stopped")
			return
		}
	}
}

func (s *Scheduler) Stop() {
	close(s.stop)
}

func (s *Scheduler) Phase() SchedulerPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Scheduler) setPhase(p SchedulerPhase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

func (s *Scheduler) checkSchedules(now time.Time) {
	switch s.Phase() {
	case PhaseSwitchingSlots, PhaseShuttingDown:
		// A teardown is in flight; let it finish before reassessing.
		return
	}

	due := make([]string, 0, 2)
	var closing []string

	for name, slot := range config.GetSlots() {
		if name == "template" {
			continue
		}
		inWindow := s.inWindow(name, slot, now)
		running := s.manager.Running(name)

		switch {
		case inWindow && !running:
			due = append(due, name)
		case !inWindow && running:
			closing = append(closing, name)
		}
	}

	if len(closing) > 0 {
		next := ""
		if len(due) > 0 {
			next = due[0]
		}
		s.setPhase(PhaseSwitchingSlots)
		go s.switchAway(closing[0], next)
		return
	}

	for _, name := range due {
		s.logger.Info("play window open, starting slot", slog.String("slot", name))
		go s.startSlot(name)
	}

	if len(due) == 0 && len(s.manager.RunningSlots()) == 0 {
		if name, ok := s.inferActiveSlot(); ok {
			s.logger.Info("adopting slot from running client", slog.String("slot", name))
			s.setPhase(PhaseSlotActive)
			go s.startSlot(name)
			return
		}
		s.setPhase(PhaseIdle)
		s.sweepLingeringProcesses()
	} else {
		s.setPhase(PhaseSlotActive)
	}
}

// inferActiveSlot is the fallback when no schedule window is open: if a game
// client is still in the process table, the slot whose window title matches it
// keeps playing instead of being swept.
func (s *Scheduler) inferActiveSlot() (string, bool) {
	if s.procs == nil || s.WindowProbe == nil || config.Wowsup == nil {
		return "", false
	}
	tasks, err := s.procs.Tasks()
	if err != nil {
		return "", false
	}

	clientUp := false
	for _, t := range tasks {
		if strings.EqualFold(t.Name, config.Wowsup.GameExe) {
			clientUp = true
			break
		}
	}
	if !clientUp {
		return "", false
	}

	for name, slot := range config.GetSlots() {
		if name == "template" {
			continue
		}
		if s.WindowProbe(slot.WindowTitle) {
			return name, true
		}
	}
	return "", false
}

func (s *Scheduler) startSlot(name string) {
	if s.manager.Running(name) {
		return
	}
	if err := s.manager.Start(name); err != nil {
		s.logger.Error("failed to start slot", slog.String("slot", name), slog.Any("error", err))
	}
}

// switchAway closes one slot's session: profile stop, gear snapshot, tool
// and client teardown, then either a machine shutdown or a shell restart and
// a settle delay before the next slot is allowed in.
func (s *Scheduler) switchAway(from, to string) {
	defer s.setPhase(PhaseIdle)

	if sup := s.manager.GetSupervisor(from); sup != nil {
		if err := sup.Engine().SlotShutdown(context.Background()); err != nil {
			s.logger.Warn("slot shutdown sequence failed", slog.String("slot", from), slog.Any("error", err))
		}
	}
	s.manager.Stop(from)

	slot, _ := config.GetSlot(from)
	allowShutdown := config.Wowsup != nil && config.Wowsup.AllowMachineShutdown

	if to == "" && slot != nil && slot.ShutdownMachine && allowShutdown {
		s.logger.Info("last window closed, shutting machine down", slog.String("slot", from))
		s.setPhase(PhaseShuttingDown)
		if s.procs != nil {
			if err := s.procs.Shutdown(); err != nil {
				s.logger.Error("machine shutdown failed", slog.Any("error", err))
			}
		}
		return
	}

	if to != "" {
		s.logger.Info("switching slots", slog.String("from", from), slog.String("to", to))
		event.Send(event.SlotSwitched(event.Text(from, "slot window closed"), from, to))
	}
}

// sweepLingeringProcesses kills game clients left behind by a crash while no
// window is open, so the next window starts from a clean machine.
func (s *Scheduler) sweepLingeringProcesses() {
	if s.procs == nil || config.Wowsup == nil {
		return
	}
	tasks, err := s.procs.Tasks()
	if err != nil {
		return
	}
	for _, t := range tasks {
		if strings.EqualFold(t.Name, config.Wowsup.GameExe) || strings.EqualFold(t.Name, config.Wowsup.MacroToolExe) {
			s.logger.Info("killing lingering process outside play window",
				slog.String("process", t.Name), slog.Any("pid", t.PID))
			if err := s.procs.Kill(t.PID); err != nil {
				s.logger.Warn("lingering process kill failed", slog.Any("error", err))
			}
		}
	}
}

// inWindow reports whether now falls inside the slot's jittered play window.
// The window opens an hour before LowerHour so login and preparation do not
// eat into play time. Overnight windows wrap across midnight.
func (s *Scheduler) inWindow(name string, slot *config.SlotCfg, now time.Time) bool {
	off := s.offsetsFor(name, now)

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	start := midnight.Add(time.Duration((float64(slot.Schedule.LowerHour-1) + off.StartOffset) * float64(time.Hour)))
	end := midnight.Add(time.Duration((float64(slot.Schedule.UpperHour) + off.EndOffset) * float64(time.Hour)))

	if end.After(start) {
		return !now.Before(start) && now.Before(end)
	}
	// Overnight: active from start until midnight, and again until end.
	return !now.Before(start) || now.Before(end)
}

// offsetsFor returns today's jitter for the slot, rolling and persisting a
// fresh pair on the first call of each day.
func (s *Scheduler) offsetsFor(name string, now time.Time) *dayOffsets {
	s.mu.Lock()
	defer s.mu.Unlock()

	today := now.Format("2006-01-02")
	if off, ok := s.offsets[name]; ok && off.Date == today {
		return off
	}

	if off := s.loadOffsets(name); off != nil && off.Date == today {
		s.offsets[name] = off
		return off
	}

	off := &dayOffsets{
		Date:        today,
		StartOffset: utils.RandUnit(),
		EndOffset:   utils.RandUnit(),
	}
	s.offsets[name] = off
	s.saveOffsets(name, off)
	s.logger.Info("rolled daily schedule jitter",
		slog.String("slot", name),
		slog.Float64("startOffset", off.StartOffset),
		slog.Float64("endOffset", off.EndOffset),
	)
	return off
}

func (s *Scheduler) statePath(name string) string {
	return filepath.Join("config", name, "scheduler_state.json")
}

func (s *Scheduler) loadOffsets(name string) *dayOffsets {
	data, err := os.ReadFile(s.statePath(name))
	if err != nil {
		return nil
	}
	var off dayOffsets
	if err := json.Unmarshal(data, &off); err != nil {
		s.logger.Error("failed to parse scheduler state", slog.String("slot", name), slog.Any("error", err))
		return nil
	}
	return &off
}

func (s *Scheduler) saveOffsets(name string, off *dayOffsets) {
	path := s.statePath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		s.logger.Error("failed to create state directory", slog.Any("error", err))
		return
	}
	data, err := json.MarshalIndent(off, "", "  ")
	if err != nil {
		s.logger.Error("failed to marshal scheduler state", slog.Any("error", err))
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		s.logger.Error("failed to save scheduler state", slog.Any("error", err))
	}
}

// SlotShutdown runs the end-of-window teardown for this engine's slot: stop
// the profile, snapshot the character's gear while the client is still up,
// close the macro tool, kill the client, and restart the shell so the next
// session starts clean.
func (e *Engine) SlotShutdown(ctx context.Context) error {
	if err := e.macro.StopProfile(ctx); err != nil {
		e.logger.Warn("profile stop during shutdown failed", slog.Any("error", err))
	}

	e.combo("shift", "b")
	e.sleep(1500)
	shot := filepath.Join("screenshots", fmt.Sprintf("%s_gear_%s.png", e.slotName, time.Now().Format("20060102_150405")))
	if err := e.screen.SaveScreenshot(shot); err != nil {
		e.logger.Warn("gear screenshot failed", slog.Any("error", err))
	}
	e.input.Press("esc")

	if err := e.macro.Close(); err != nil {
		e.logger.Warn("macro tool close failed", slog.Any("error", err))
	}
	e.killClientProcesses()

	if err := e.procs.RestartShell(); err != nil {
		e.logger.Warn("shell restart failed", slog.Any("error", err))
	}
	e.sleep(int(switchSettleDelay.Milliseconds()))
	return nil
}

func (e *Engine) killClientProcesses() {
	if config.Wowsup == nil {
		return
	}
	tasks, err := e.procs.Tasks()
	if err != nil {
		e.logger.Warn("process table poll failed", slog.Any("error", err))
		return
	}
	for _, t := range tasks {
		if strings.EqualFold(t.Name, config.Wowsup.GameExe) || strings.EqualFold(t.Name, config.Wowsup.MacroToolExe) {
			if err := e.procs.Kill(t.PID); err != nil {
				e.logger.Warn("client kill failed", slog.String("process", t.Name), slog.Any("error", err))
			}
		}
	}
}
