package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/eventbus"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// Executor performs the side effect of a due action.
//
// It is called with no scheduler lock held and at most once per action. The
// action is removed afterwards whatever the outcome, so an implementation that
// wants retries has to enqueue a new action itself.
type Executor interface {
	Execute(ctx context.Context, scopeID, subjectID string, kind Kind) error
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, scopeID, subjectID string, kind Kind) error

func (f ExecutorFunc) Execute(ctx context.Context, scopeID, subjectID string, kind Kind) error {
	return f(ctx, scopeID, subjectID, kind)
}

// Handle is an armed timer for one action.
type Handle struct {
	e      *Engine
	action ScheduledAction
	timer  *time.Timer
}

// Action returns the action this handle was armed for.
func (h *Handle) Action() ScheduledAction {
	if h == nil {
		return ScheduledAction{}
	}
	return h.action
}

// Stop disarms this timer. It reports false if the timer already fired, was
// replaced by a newer Arm for the same key, or was never armed.
func (h *Handle) Stop() bool {
	if h == nil || h.e == nil || h.timer == nil {
		return false
	}
	e := h.e
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.armed[h.action.Key()] != h {
		return false
	}
	delete(e.armed, h.action.Key())
	h.timer.Stop()
	return true
}

// Engine keeps one timer per armed action and runs the fire handler at the deadline.
type Engine struct {
	reg     *Registry
	exec    Executor
	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics
	now     func() time.Time

	// ctx is handed to the executor. It is only cancelled when Stop gives up waiting.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	armed    map[Key]*Handle
	stopping bool
	inflight sync.WaitGroup
}

type engineConfig struct {
	reg     *Registry
	exec    Executor
	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics
	now     func() time.Time
}

func newEngine(c engineConfig) *Engine {
	if c.now == nil {
		c.now = time.Now
	}
	if c.log.IsZero() {
		c.log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		reg:     c.reg,
		exec:    c.exec,
		log:     c.log,
		bus:     c.bus,
		metrics: c.metrics,
		now:     c.now,
		ctx:     ctx,
		cancel:  cancel,
		armed:   map[Key]*Handle{},
	}
}

// Arm schedules the fire handler for a at its due time, disarming any timer
// armed earlier for the same key. A due time at or before now fires
// synchronously before Arm returns. After Stop, Arm does nothing and returns an
// inert handle.
func (e *Engine) Arm(a ScheduledAction) *Handle {
	a = a.normalized()
	h := &Handle{e: e, action: a}

	e.mu.Lock()
	if e.stopping {
		e.mu.Unlock()
		return h
	}
	if old := e.armed[a.Key()]; old != nil {
		old.timer.Stop()
		delete(e.armed, a.Key())
	}
	delay := a.DueAt.Sub(e.now())
	if delay > 0 {
		h.timer = time.AfterFunc(delay, func() { e.onTimer(h) })
		e.armed[a.Key()] = h
		e.mu.Unlock()
		return h
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	defer e.inflight.Done()
	e.fire(a, true)
	return h
}

// Cancel disarms the timer for the key, if any.
func (e *Engine) Cancel(k Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.armed[k]
	if !ok {
		return false
	}
	delete(e.armed, k)
	h.timer.Stop()
	return true
}

// Armed reports whether a timer is armed for the key.
func (e *Engine) Armed(k Key) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.armed[k]
	return ok
}

// ArmedCount returns the number of armed timers.
func (e *Engine) ArmedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.armed)
}

// Stop disarms every timer and waits for running handlers until ctx ends.
// Persisted actions are untouched and get re-armed on the next start.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	e.stopping = true
	for k, h := range e.armed {
		h.timer.Stop()
		delete(e.armed, k)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()
	defer e.cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		e.log.Warn("schedule handlers still running at stop", logx.Err(ctx.Err()))
		return ctx.Err()
	}
}

// begin registers a handler run. It fails once Stop has been called.
func (e *Engine) begin() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopping {
		return false
	}
	e.inflight.Add(1)
	return true
}

func (e *Engine) onTimer(h *Handle) {
	k := h.action.Key()
	e.mu.Lock()
	if e.stopping || e.armed[k] != h {
		e.mu.Unlock()
		return
	}
	delete(e.armed, k)
	e.inflight.Add(1)
	e.mu.Unlock()

	defer e.inflight.Done()
	e.fire(h.action, true)
}

type fireOutcome struct {
	skipped bool
	removed bool
	err     error // *ExecutionError
	saveErr error // from the removal save when persisting
}

// fire runs the handler for a: membership check, executor, removal. The two
// registry steps each take the registry lock; the executor runs without it.
func (e *Engine) fire(a ScheduledAction, persist bool) fireOutcome {
	if !e.reg.Has(a) {
		e.metrics.fire(resultSkipped)
		e.log.Debug("scheduled action no longer pending; skipped",
			logx.String("key", a.Key().String()))
		return fireOutcome{skipped: true}
	}

	start := time.Now()
	err := e.execute(a)

	// A save failure is logged by the registry and retried by the next mutation.
	removed, saveErr := e.reg.removeExact(a, persist)
	out := fireOutcome{removed: removed, saveErr: saveErr}

	lateness := e.now().Sub(a.DueAt)
	if err != nil {
		xerr := &ExecutionError{Action: a, Err: err}
		e.metrics.fire(resultError)
		e.log.Warn("scheduled action failed",
			logx.String("key", a.Key().String()),
			logx.String("kind", string(a.Kind)),
			logx.Duration("late", lateness),
			logx.Duration("took", time.Since(start)),
			logx.Err(err),
		)
		publish(e.bus, EventFailed, EventData{Action: a, Err: err.Error()})
		out.err = xerr
		return out
	}
	e.metrics.fire(resultOK)
	e.log.Info("scheduled action fired",
		logx.String("key", a.Key().String()),
		logx.String("kind", string(a.Kind)),
		logx.Duration("late", lateness),
		logx.Duration("took", time.Since(start)),
	)
	publish(e.bus, EventFired, EventData{Action: a})
	return out
}

func (e *Engine) execute(a ScheduledAction) (err error) {
	if e.exec == nil {
		return errors.New("no executor registered")
	}
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("executor panic",
				logx.String("key", a.Key().String()),
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.exec.Execute(e.ctx, a.ScopeID, a.SubjectID, a.Kind)
}
