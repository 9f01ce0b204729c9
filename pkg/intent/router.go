package intent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// Handler executes one intent. args holds the decoded arguments.
type Handler func(ctx context.Context, in Intent, args map[string]any) error

// Stats holds router counters.
type Stats struct {
	Dispatched int64 `json:"dispatched"`
	Unhandled  int64 `json:"unhandled"`
	Failed     int64 `json:"failed"`
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) RouterOption {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithFallback sets the handler for names with no registered handler.
func WithFallback(h Handler) RouterOption {
	return func(r *Router) {
		r.fallback = h
	}
}

// Router dispatches intents by function name. It is safe for concurrent use.
type Router struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler
	fallback Handler

	dispatched atomic.Int64
	unhandled  atomic.Int64
	failed     atomic.Int64
}

// NewRouter creates an empty router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{
		logger:   slog.Default(),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "intent")
	return r
}

// Handle registers h for name, replacing any previous handler.
func (r *Router) Handle(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

// Names returns the registered function names in sorted order.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HandleIntent implements Dispatcher.
func (r *Router) HandleIntent(ctx context.Context, in Intent) error {
	r.mu.RLock()
	h, ok := r.handlers[in.Name]
	if !ok {
		h = r.fallback
	}
	r.mu.RUnlock()

	if h == nil {
		r.unhandled.Add(1)
		r.logger.Warn("no handler for intent", "name", in.Name)
		return fmt.Errorf("%w: %q", ErrUnknownIntent, in.Name)
	}

	args, err := in.Args()
	if err != nil {
		r.failed.Add(1)
		return fmt.Errorf("%w: %s: %v", ErrInvalidArguments, in.Name, err)
	}

	r.logger.Info("dispatching intent", "name", in.Name, "args", args)
	r.dispatched.Add(1)
	if err := h(ctx, in, args); err != nil {
		r.failed.Add(1)
		return &HandlerError{Name: in.Name, Cause: err}
	}
	return nil
}

// Stats returns router counters.
func (r *Router) Stats() Stats {
	return Stats{
		Dispatched: r.dispatched.Load(),
		Unhandled:  r.unhandled.Load(),
		Failed:     r.failed.Load(),
	}
}

// NewLoggingRouter returns a router with a handler for every known function
// that only logs the call. The device actions themselves live outside this
// module.
func NewLoggingRouter(logger *slog.Logger) *Router {
	r := NewRouter(WithLogger(logger))
	for _, name := range Known {
		r.Handle(name, func(_ context.Context, in Intent, args map[string]any) error {
			r.logger.Info("intent received", "name", in.Name, "args", args)
			return nil
		})
	}
	return r
}

var _ Dispatcher = (*Router)(nil)
