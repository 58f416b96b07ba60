package schedule

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

const defaultReconcileWorkers = 4

// Quarantiner is implemented by stores that can move an unreadable record aside.
type Quarantiner interface {
	Quarantine() (string, error)
}

// ReconcileReport summarizes a startup reconciliation.
type ReconcileReport struct {
	Loaded int // entries read from the store
	Fired  int // overdue entries whose executor succeeded
	Failed int // overdue entries whose executor returned an error
	Armed  int // future entries with a live timer

	Corrupt       bool   // the record was unreadable and the schedule started empty
	QuarantinedTo string // where the corrupt record was moved, if it was
}

// reconcile rebuilds the registry from the store, fires what is overdue, arms
// the rest and saves once.
//
// A corrupt record is quarantined and the schedule starts empty. Any other load
// error is returned untouched so the caller does not overwrite a record it
// could not read.
func reconcile(ctx context.Context, store Store, reg *Registry, eng *Engine, workers int, log logx.Logger) (ReconcileReport, error) {
	var rep ReconcileReport

	actions, err := store.Load()
	var corrupt *CorruptStateError
	switch {
	case errors.As(err, &corrupt):
		rep.Corrupt = true
		log.Error("schedule record is corrupt; starting with an empty schedule", logx.Err(err))
		if q, ok := store.(Quarantiner); ok {
			dst, qerr := q.Quarantine()
			if qerr != nil {
				log.Warn("could not quarantine corrupt schedule record", logx.Err(qerr))
			} else {
				rep.QuarantinedTo = dst
				log.Warn("corrupt schedule record moved aside", logx.String("path", dst))
			}
		}
		actions = nil
	case err != nil:
		return rep, err
	}
	rep.Loaded = len(actions)

	now := eng.now()
	for _, a := range actions {
		reg.insertWithoutPersist(a)
	}
	// Fire what the registry holds, so the membership check sees the same value.
	var overdue []ScheduledAction
	for _, a := range reg.List() {
		if !a.DueAt.After(now) {
			overdue = append(overdue, a)
		}
	}

	if workers <= 0 {
		workers = defaultReconcileWorkers
	}
	var fired, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(workers)
	for _, a := range overdue {
		a := a
		g.Go(func() error {
			// Entries left behind stay persisted and fire on the next start.
			if ctx.Err() != nil || !eng.begin() {
				return nil
			}
			defer eng.inflight.Done()
			out := eng.fire(a, false)
			switch {
			case out.skipped:
			case out.err != nil:
				failed.Add(1)
			default:
				fired.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	rep.Fired = int(fired.Load())
	rep.Failed = int(failed.Load())

	if err := ctx.Err(); err != nil {
		_ = reg.Persist()
		return rep, err
	}

	for _, a := range reg.List() {
		if !a.DueAt.After(now) {
			continue
		}
		if eng.Arm(a).timer != nil {
			rep.Armed++
		}
	}

	// Save failures are logged by the registry and do not block startup.
	_ = reg.Persist()

	log.Info("schedule reconciled",
		logx.Int("loaded", rep.Loaded),
		logx.Int("fired", rep.Fired),
		logx.Int("failed", rep.Failed),
		logx.Int("armed", rep.Armed),
		logx.Bool("corrupt", rep.Corrupt),
	)
	return rep, nil
}
