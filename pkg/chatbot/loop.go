package chatbot

import (
	"context"
	"time"

	"github.com/teslashibe/go-glasses/pkg/dialogue"
)

// loop polls both queues once per tick. Each tick applies at most one event
// and dispatches at most one intent, in arrival order.
func (e *Engine) loop(ctx context.Context, fatal <-chan error) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for !e.stopped.Load() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-fatal:
			return err
		case <-ticker.C:
		}
		e.step(ctx)
	}
	return nil
}

func (e *Engine) step(ctx context.Context) {
	if ev, ok := e.events.Dequeue(); ok {
		e.stats.eventsProcessed.Add(1)
		e.machine.HandleEvent(ev)
	}

	if in, ok := e.intents.Dequeue(); ok {
		e.dispatch(ctx, in)
	}
}

func (e *Engine) observe(from, to dialogue.State, ev dialogue.Event) {
	e.stats.transitions.Add(1)
	for _, fn := range e.observers {
		fn(from, to, ev)
	}
}

// recoveryLoop leaves the fault state. It reconnects when the backend is
// gone, then queues fault_solved. When reconnecting gives up the error is
// sent on fatal and Run returns it.
func (e *Engine) recoveryLoop(ctx context.Context, fatal chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.recoverCh:
		}

		if err := e.recover(ctx); err != nil {
			if ctx.Err() == nil {
				select {
				case fatal <- err:
				default:
				}
			}
			return
		}
		e.Enqueue(dialogue.EventFaultSolved)
	}
}

func (e *Engine) recover(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.cfg.ReconnectDelay):
		}

		if e.transport.IsConnected() {
			return nil
		}

		e.logger.Info("reconnecting", "attempt", attempt)
		err := e.connect(ctx)
		if err == nil {
			e.stats.reconnects.Add(1)
			return nil
		}
		e.reportError("reconnect", err)

		if e.cfg.MaxReconnectAttempts > 0 && attempt >= e.cfg.MaxReconnectAttempts {
			return &ReconnectError{Attempts: attempt, Cause: err}
		}
	}
}

// requestRecovery wakes the recovery worker without blocking.
func (e *Engine) requestRecovery() {
	select {
	case e.recoverCh <- struct{}{}:
	default:
	}
}
