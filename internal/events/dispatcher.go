package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// AsyncDispatcher runs handlers on their own goroutines so publishers never
// wait for notification side effects. Handler errors and panics are logged
// and otherwise ignored.
type AsyncDispatcher struct {
	mu        sync.RWMutex
	listeners map[EventType][]EventHandler
	logger    *zap.Logger
	timeout   time.Duration
	wg        sync.WaitGroup
}

// NewAsyncDispatcher creates a dispatcher. timeout bounds each handler run.
func NewAsyncDispatcher(logger *zap.Logger, timeout time.Duration) *AsyncDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &AsyncDispatcher{
		listeners: make(map[EventType][]EventHandler),
		logger:    logger,
		timeout:   timeout,
	}
}

// Publish schedules the handlers for the event and returns immediately.
// Handlers run detached from ctx cancellation.
func (d *AsyncDispatcher) Publish(ctx context.Context, event Event) error {
	d.mu.RLock()
	handlers := append([]EventHandler{}, d.listeners[event.Type]...)
	d.mu.RUnlock()

	base := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		d.wg.Add(1)
		go d.run(base, handler, event)
	}
	return nil
}

func (d *AsyncDispatcher) run(ctx context.Context, handler EventHandler, event Event) {
	defer d.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked",
				zap.String("event_type", string(event.Type)),
				zap.String("event_id", event.ID),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := handler(ctx, event); err != nil {
		d.logger.Warn("event handler failed",
			zap.String("event_type", string(event.Type)),
			zap.String("event_id", event.ID),
			zap.String("guild_id", event.GuildID),
			zap.Int64("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

// Subscribe registers a handler for the given event type.
func (d *AsyncDispatcher) Subscribe(eventType EventType, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners[eventType] = append(d.listeners[eventType], handler)
}

// Wait blocks until every handler started so far has returned.
func (d *AsyncDispatcher) Wait() {
	d.wg.Wait()
}
