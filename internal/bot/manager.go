package bot

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/kadzielawa/wowsup/cmd/wowsup/log"
	"github.com/kadzielawa/wowsup/internal/config"
	"github.com/kadzielawa/wowsup/internal/event"
	"github.com/kadzielawa/wowsup/internal/utils"
)

// CollaboratorFactory builds the OS-facing collaborators for one slot. It is
// injected from the composition root so the engine layer stays testable with
// fakes.
type CollaboratorFactory func(logger *slog.Logger, slotName string, slot *config.SlotCfg) (Collaborators, error)

// SupervisorManager tracks the running supervisors by slot name and owns
// their start/stop transitions.
type SupervisorManager struct {
	logger        *slog.Logger
	eventListener *event.Listener
	factory       CollaboratorFactory

	mu          sync.RWMutex
	supervisors map[string]*Supervisor
}

func NewSupervisorManager(logger *slog.Logger, eventListener *event.Listener, factory CollaboratorFactory) *SupervisorManager {
	return &SupervisorManager{
		logger:        logger,
		eventListener: eventListener,
		factory:       factory,
		supervisors:   make(map[string]*Supervisor),
	}
}

func (mng *SupervisorManager) AvailableSlots() []string {
	names := make([]string, 0)
	for name := range config.GetSlots() {
		if name != "template" {
			names = append(names, name)
		}
	}
	return names
}

// Start builds a fresh supervisor for the slot and blocks until it exits.
// A crash exit (ErrUnrecoverableClient) triggers one delayed restart with a
// new run ID; a clean stop does not.
func (mng *SupervisorManager) Start(slotName string) error {
	mng.mu.RLock()
	_, exists := mng.supervisors[slotName]
	mng.mu.RUnlock()
	if exists {
		return fmt.Errorf("slot %s is already running", slotName)
	}

	// Pick up local config edits made since the last start.
	if err := config.Load(); err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	slot, found := config.GetSlot(slotName)
	if !found {
		return fmt.Errorf("slot %s not found", slotName)
	}

	// Push the slot's saved addon settings into the client's WTF directory
	// so the macro tool addon comes up configured on the next launch.
	if err := config.StageAddonSettings(slotName); err != nil {
		mng.logger.Warn("could not stage addon settings", slog.String("slot", slotName), slog.Any("error", err))
	}

	debugLog := false
	logDir := "logs"
	if config.Wowsup != nil {
		debugLog = config.Wowsup.Debug.Log
		logDir = config.Wowsup.LogSaveDirectory
	}
	slotLogger, err := log.NewLogger(debugLog, logDir, slotName)
	if err != nil {
		return err
	}

	supervisor, err := mng.buildSupervisor(slotName, slot, slotLogger)
	if err != nil {
		return err
	}

	mng.mu.Lock()
	// Double-check under the write lock so two concurrent Start calls
	// cannot both pass the initial existence check.
	if _, alreadyRunning := mng.supervisors[slotName]; alreadyRunning {
		mng.mu.Unlock()
		return fmt.Errorf("slot %s is already running", slotName)
	}
	mng.supervisors[slotName] = supervisor
	mng.mu.Unlock()

	// Blocks until the supervisor exits. The lock is not held here so that
	// Stop (called from the scheduler goroutine) cannot deadlock with us.
	err = supervisor.Start()

	mng.mu.Lock()
	delete(mng.supervisors, slotName)
	mng.mu.Unlock()

	if errors.Is(err, ErrUnrecoverableClient) {
		mng.logger.Info("restarting slot after unrecoverable exit", slog.String("slot", slotName))
		utils.Sleep(5000)
		return mng.Start(slotName)
	}
	return err
}

func (mng *SupervisorManager) buildSupervisor(slotName string, slot *config.SlotCfg, logger *slog.Logger) (*Supervisor, error) {
	if mng.factory == nil {
		return nil, errors.New("no collaborator factory configured")
	}

	c, err := mng.factory(logger, slotName, slot)
	if err != nil {
		return nil, fmt.Errorf("building collaborators for %s: %w", slotName, err)
	}

	runID := uuid.NewString()
	engine := NewEngine(logger, slotName, slot, runID, c)
	return NewSupervisor(slotName, logger, engine), nil
}

func (mng *SupervisorManager) Stop(slotName string) {
	mng.mu.RLock()
	s, found := mng.supervisors[slotName]
	mng.mu.RUnlock()
	if !found {
		return
	}

	mng.logger.Info("stopping supervisor", slog.String("slot", slotName))
	s.Stop()
}

func (mng *SupervisorManager) StopAll() {
	mng.mu.RLock()
	snapshot := make([]*Supervisor, 0, len(mng.supervisors))
	for _, s := range mng.supervisors {
		snapshot = append(snapshot, s)
	}
	mng.mu.RUnlock()

	for _, s := range snapshot {
		s.Stop()
	}
}

func (mng *SupervisorManager) Running(slotName string) bool {
	mng.mu.RLock()
	_, found := mng.supervisors[slotName]
	mng.mu.RUnlock()
	return found
}

func (mng *SupervisorManager) RunningSlots() []string {
	mng.mu.RLock()
	defer mng.mu.RUnlock()
	names := make([]string, 0, len(mng.supervisors))
	for name := range mng.supervisors {
		names = append(names, name)
	}
	return names
}

func (mng *SupervisorManager) Status(slotName string) Status {
	mng.mu.RLock()
	s, found := mng.supervisors[slotName]
	mng.mu.RUnlock()
	if !found {
		return StatusNotWorking
	}
	return s.Status()
}

func (mng *SupervisorManager) GetSupervisor(slotName string) *Supervisor {
	mng.mu.RLock()
	defer mng.mu.RUnlock()
	return mng.supervisors[slotName]
}
