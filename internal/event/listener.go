package event

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type Handler func(ctx context.Context, e Event) error

var defaultListener *Listener

// Listener fans incoming events out to every registered handler. Events are
// queued by Send and drained by Listen, so emitters never block on slow
// handlers (telegram/discord round trips).
type Listener struct {
	handlers []Handler
	logger   *slog.Logger
	mu       sync.Mutex
	queue    []Event
}

func NewListener(logger *slog.Logger) *Listener {
	listener := &Listener{
		logger: logger,
	}
	defaultListener = listener

	return listener
}

func (l *Listener) Register(h Handler) {
	l.handlers = append(l.handlers, h)
}

// Send enqueues an event on the process-wide listener. Safe to call before
// Listen has started; events are buffered until drained.
func Send(e Event) {
	if defaultListener == nil {
		return
	}
	defaultListener.mu.Lock()
	defaultListener.queue = append(defaultListener.queue, e)
	defaultListener.mu.Unlock()
}

func (l *Listener) Listen(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond * 100)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.mu.Lock()
			pending := l.queue
			l.queue = nil
			l.mu.Unlock()

			for _, e := range pending {
				for _, h := range l.handlers {
					if err := h(ctx, e); err != nil {
						l.logger.Error("error running event handler", slog.Any("error", err))
					}
				}
			}
		}
	}
}
