package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/jd-approval/internal/domain/event"
)

// ErrClosed is returned when dispatching on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes committed workflow events to subscribers
type Dispatcher interface {
	// Subscribe registers a named handler for one event type
	Subscribe(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers a named handler for every event type
	SubscribeAll(name string, handler Handler)

	// Unsubscribe removes every handler registered under name
	Unsubscribe(name string)

	// Dispatch runs matching handlers in registration order and
	// returns the joined errors of the handlers that failed
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs matching handlers in background goroutines.
	// Handlers outlive the caller's cancellation.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Handlers lists handler names that would receive eventType
	Handlers(eventType event.Type) []string

	// Close stops accepting events and waits for in-flight handlers
	// until ctx is done
	Close(ctx context.Context) error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers []HandlerInfo
	logger   Logger

	// closeMu orders wg.Add in DispatchAsync before wg.Wait in Close
	closeMu sync.Mutex
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.add(HandlerInfo{Name: name, EventType: eventType, Handler: handler})
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.add(HandlerInfo{Name: name, Handler: handler})
}

func (d *eventDispatcher) add(info HandlerInfo) {
	d.mu.Lock()
	d.handlers = append(d.handlers, info)
	d.mu.Unlock()

	d.logInfo("Handler registered", "event_type", info.EventType, "handler_name", info.Name)
}

func (d *eventDispatcher) Unsubscribe(name string) {
	d.mu.Lock()
	filtered := d.handlers[:0:0]
	for _, h := range d.handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}
	d.handlers = filtered
	d.mu.Unlock()

	d.logInfo("Handler unregistered", "handler_name", name)
}

func (d *eventDispatcher) matching(t event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []HandlerInfo
	for _, h := range d.handlers {
		if h.matches(t) {
			out = append(out, h)
		}
	}
	return out
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	handlers := d.matching(evt.Type)
	d.logInfo("Dispatching event",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"workflow_id", evt.WorkflowID,
		"handler_count", len(handlers),
	)

	var errs []error
	for _, info := range handlers {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			d.logError("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("handler %s: %w", info.Name, err))
		}
	}
	return errors.Join(errs...)
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	handlers := d.matching(evt.Type)

	d.closeMu.Lock()
	if d.closed.Load() {
		d.closeMu.Unlock()
		d.logError("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
		return
	}
	d.wg.Add(len(handlers))
	d.closeMu.Unlock()

	ctx = context.WithoutCancel(ctx)
	d.logInfo("Dispatching event asynchronously",
		"event_type", evt.Type,
		"event_id", evt.ID,
		"workflow_id", evt.WorkflowID,
		"handler_count", len(handlers),
	)

	for _, info := range handlers {
		go func(h HandlerInfo) {
			defer d.wg.Done()

			if err := d.safeExecute(ctx, evt, h); err != nil {
				d.logError("Async handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", h.Name,
					"error", err,
				)
			}
		}(info)
	}
}

func (d *eventDispatcher) Handlers(eventType event.Type) []string {
	handlers := d.matching(eventType)
	names := make([]string, 0, len(handlers))
	for _, h := range handlers {
		names = append(names, h.Name)
	}
	return names
}

func (d *eventDispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()
	if !d.closed.CompareAndSwap(false, true) {
		d.closeMu.Unlock()
		return ErrClosed
	}
	d.closeMu.Unlock()

	d.logInfo("Closing dispatcher, waiting for async handlers")

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logInfo("Dispatcher closed")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for async handlers: %w", ctx.Err())
	}
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.logError("Handler panic recovered",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", info.Name,
				"panic", r,
			)
		}
	}()

	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) logInfo(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, kv...)
	}
}

func (d *eventDispatcher) logError(msg string, kv ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, kv...)
	}
}
