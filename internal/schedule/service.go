package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/eventbus"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// Options configures a Service.
type Options struct {
	Store    Store    // required
	Executor Executor // required

	Logger  logx.Logger
	Bus     eventbus.Bus
	Metrics *Metrics

	// MinDelay, when positive, clamps due times to at least now+MinDelay.
	MinDelay time.Duration
	// ReconcileWorkers bounds concurrent overdue fires during Reconcile (default 4).
	ReconcileWorkers int

	Now func() time.Time
}

// Service is the scheduler facade used by the command layer.
//
// Enqueue and Cancel return ErrNotReady until Reconcile has completed.
type Service struct {
	store   Store
	reg     *Registry
	eng     *Engine
	log     logx.Logger
	bus     eventbus.Bus
	metrics *Metrics

	minDelay time.Duration
	workers  int
	now      func() time.Time

	// opMu orders the cancel/add/arm steps of Enqueue and Cancel, so a slow
	// Enqueue cannot arm a timer over a newer one for the same key.
	opMu sync.Mutex

	reconcileMu sync.Mutex
	ready       atomic.Bool
}

func New(opts Options) (*Service, error) {
	if opts.Store == nil {
		return nil, errors.New("schedule: store is required")
	}
	if opts.Executor == nil {
		return nil, errors.New("schedule: executor is required")
	}
	if opts.MinDelay < 0 {
		return nil, errors.New("schedule: min delay must not be negative")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "schedule"))

	reg := NewRegistry(opts.Store, log, opts.Metrics)
	eng := newEngine(engineConfig{
		reg:     reg,
		exec:    opts.Executor,
		log:     log,
		bus:     opts.Bus,
		metrics: opts.Metrics,
		now:     opts.Now,
	})
	return &Service{
		store:    opts.Store,
		reg:      reg,
		eng:      eng,
		log:      log,
		bus:      opts.Bus,
		metrics:  opts.Metrics,
		minDelay: opts.MinDelay,
		workers:  opts.ReconcileWorkers,
		now:      opts.Now,
	}, nil
}

// Reconcile loads the durable record, fires overdue actions, arms future ones
// and marks the service ready. It runs once; later calls return an error.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	s.reconcileMu.Lock()
	defer s.reconcileMu.Unlock()
	if s.ready.Load() {
		return ReconcileReport{}, errors.New("schedule: already reconciled")
	}
	rep, err := reconcile(ctx, s.store, s.reg, s.eng, s.workers, s.log)
	if err != nil {
		return rep, err
	}
	s.ready.Store(true)
	return rep, nil
}

func (s *Service) Ready() bool { return s.ready.Load() }

// Enqueue schedules a restriction lift for subject in scope at dueAt, replacing
// any pending one for the same pair.
//
// A due time at or before now fires before Enqueue returns. A *IOError means
// the action is scheduled in memory but the record could not be written.
func (s *Service) Enqueue(ctx context.Context, scopeID, subjectID string, dueAt time.Time) (ScheduledAction, error) {
	return s.EnqueueAction(ctx, ScheduledAction{
		ScopeID:   scopeID,
		SubjectID: subjectID,
		DueAt:     dueAt,
		Kind:      KindLiftRestriction,
	})
}

// EnqueueAction is Enqueue for an explicit action.
func (s *Service) EnqueueAction(ctx context.Context, a ScheduledAction) (ScheduledAction, error) {
	if !s.ready.Load() {
		return ScheduledAction{}, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return ScheduledAction{}, err
	}
	a = a.normalized()
	if err := a.Validate(); err != nil {
		return ScheduledAction{}, err
	}
	if s.minDelay > 0 {
		if floor := s.now().Add(s.minDelay); a.DueAt.Before(floor) {
			a.DueAt = floor
			a = a.normalized()
		}
	}

	s.opMu.Lock()
	s.eng.Cancel(a.Key())
	_, replaced, saveErr := s.reg.Add(a)
	publish(s.bus, EventScheduled, EventData{Action: a, Replaced: replaced})
	if a.DueAt.After(s.now()) {
		s.eng.Arm(a)
		s.opMu.Unlock()
	} else {
		s.opMu.Unlock()
		// Fired outside opMu so a slow executor does not hold up other keys.
		// A newer Enqueue for this key in between makes this fire a no-op.
		if s.eng.begin() {
			// The removal save is the latest write for this key.
			if out := s.eng.fire(a, true); out.removed {
				saveErr = out.saveErr
			}
			s.eng.inflight.Done()
		}
	}

	s.log.Debug("action scheduled",
		logx.String("key", a.Key().String()),
		logx.Time("due_at", a.DueAt),
		logx.Bool("replaced", replaced),
	)
	return a, saveErr
}

// Cancel drops the pending action for the pair. It reports whether one existed.
// A *IOError means the action was removed in memory but the record could not be written.
func (s *Service) Cancel(ctx context.Context, scopeID, subjectID string) (ScheduledAction, bool, error) {
	if !s.ready.Load() {
		return ScheduledAction{}, false, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return ScheduledAction{}, false, err
	}
	s.opMu.Lock()
	s.eng.Cancel(Key{ScopeID: scopeID, SubjectID: subjectID})
	a, ok, err := s.reg.Remove(scopeID, subjectID)
	s.opMu.Unlock()
	if ok {
		s.metrics.cancel()
		publish(s.bus, EventCancelled, EventData{Action: a})
		s.log.Debug("action cancelled", logx.String("key", a.Key().String()))
	}
	return a, ok, err
}

func (s *Service) Get(scopeID, subjectID string) (ScheduledAction, bool) {
	return s.reg.Get(scopeID, subjectID)
}

// List returns all pending actions ordered by due time.
func (s *Service) List() []ScheduledAction { return s.reg.List() }

// ListScope returns the pending actions of one scope ordered by due time.
func (s *Service) ListScope(scopeID string) []ScheduledAction {
	all := s.reg.List()
	out := all[:0]
	for _, a := range all {
		if a.ScopeID == scopeID {
			out = append(out, a)
		}
	}
	return out
}

func (s *Service) Len() int { return s.reg.Len() }

// Next returns the earliest pending action.
func (s *Service) Next() (ScheduledAction, bool) {
	all := s.reg.List()
	if len(all) == 0 {
		return ScheduledAction{}, false
	}
	return all[0], true
}

// Stop disarms all timers and waits for running handlers until ctx ends.
func (s *Service) Stop(ctx context.Context) error {
	return s.eng.Stop(ctx)
}
