package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type memStore struct {
	mu       sync.Mutex
	actions  []ScheduledAction
	saves    int
	failSave bool
	loadErr  error
}

func (m *memStore) Load() ([]ScheduledAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]ScheduledAction(nil), m.actions...), nil
}

func (m *memStore) Save(actions []ScheduledAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.failSave {
		return &IOError{Op: "save", Path: "mem", Err: errors.New("disk full")}
	}
	m.actions = append([]ScheduledAction(nil), actions...)
	return nil
}

func (m *memStore) snapshot() []ScheduledAction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ScheduledAction(nil), m.actions...)
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func (m *memStore) setFail(v bool) {
	m.mu.Lock()
	m.failSave = v
	m.mu.Unlock()
}

// recorder is an Executor that records every call.
type recorder struct {
	mu    sync.Mutex
	calls []Key
	err   error
	panic bool
	hook  func(n int, k Key)
}

func (r *recorder) Execute(_ context.Context, scopeID, subjectID string, _ Kind) error {
	k := Key{ScopeID: scopeID, SubjectID: subjectID}
	r.mu.Lock()
	r.calls = append(r.calls, k)
	n := len(r.calls)
	hook, err, doPanic := r.hook, r.err, r.panic
	r.mu.Unlock()
	if hook != nil {
		hook(n, k)
	}
	if doPanic {
		panic("executor exploded")
	}
	return err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *recorder) countFor(k Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == k {
			n++
		}
	}
	return n
}

func newReadyService(t *testing.T, store Store, exec Executor) *Service {
	t.Helper()
	svc, err := New(Options{Store: store, Executor: exec})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, err := svc.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	t.Cleanup(func() { stopService(t, svc) })
	return svc
}

func stopService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := svc.Stop(ctx); err != nil {
		t.Errorf("Stop error: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}
