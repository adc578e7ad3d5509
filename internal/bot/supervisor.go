package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/kadzielawa/wowsup/internal/event"
	"github.com/kadzielawa/wowsup/internal/utils"
)

const cycleInterval = 2 * time.Second

// Supervisor owns the lifecycle of one slot's engine: it drives the cycle
// loop at a fixed cadence and keeps the slot alive across panics until it is
// stopped or the engine declares the client unrecoverable.
type Supervisor struct {
	name   string
	logger *slog.Logger
	engine *Engine

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSupervisor(name string, logger *slog.Logger, engine *Engine) *Supervisor {
	return &Supervisor{
		name:   name,
		logger: logger,
		engine: engine,
		done:   make(chan struct{}),
	}
}

func (s *Supervisor) Name() string {
	return s.name
}

func (s *Supervisor) Engine() *Engine {
	return s.engine
}

func (s *Supervisor) Status() Status {
	return s.engine.Session().Status
}

// Start blocks until the supervisor exits. A panic inside the cycle loop
// tears the session down and restarts it; sentinel errors from the rule
// table terminate the loop instead.
func (s *Supervisor) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer close(s.done)

	session := s.engine.Session()
	session.Status = StatusStarting
	event.Send(event.SupervisorStarted(event.Text(s.name, "supervisor started"), session.RunID))

	defer func() {
		session.Status = StatusStopping
		s.engine.Teardown(context.Background())
	}()

	for {
		err := s.cycleLoop(ctx)
		switch {
		case err == nil:
			event.Send(event.SupervisorStopped(event.Text(s.name, "supervisor stopped"), "stop requested"))
			return nil

		case errors.Is(err, ErrStopRequested):
			s.logger.Info("stop requested from log stream", slog.String("slot", s.name))
			event.Send(event.SupervisorStopped(event.Text(s.name, "supervisor stopped"), "log stop command"))
			return nil

		case errors.Is(err, ErrUnrecoverableClient):
			s.logger.Error("client unrecoverable, giving up", slog.String("slot", s.name))
			event.Send(event.SupervisorStopped(event.Text(s.name, "supervisor stopped"), "unrecoverable client"))
			return err

		default:
			// Panic boundary: drain pending watchdogs, tear the session
			// down and go again with the same engine state.
			s.logger.Error("cycle loop crashed, restarting",
				slog.String("slot", s.name),
				slog.Any("error", err),
			)
			s.engine.Watchdogs().StopAll()
			s.engine.Teardown(ctx)
			utils.Sleep(5000)
		}
	}
}

func (s *Supervisor) cycleLoop(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cycle panic: %v\n%s", r, debug.Stack())
		}
	}()

	ticker := time.NewTicker(cycleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t := <-ticker.C:
			if err := s.engine.Cycle(ctx, t); err != nil {
				return err
			}
		}
	}
}

// Stop cancels the cycle loop and waits for Start to return.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}
