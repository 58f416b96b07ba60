package moderation

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/schedule"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

type call struct {
	op, scope, subject string
}

// fakePlatform records calls; errors are keyed by "op:subject".
type fakePlatform struct {
	mu    sync.Mutex
	calls []call
	errs  map[string]error
	// afterBan runs once a ban call has been recorded.
	afterBan func()
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{errs: map[string]error{}}
}

func (f *fakePlatform) Name() string { return "fake" }

func (f *fakePlatform) Ban(_ context.Context, scopeID, subjectID, _ string) error {
	err := f.record("ban", scopeID, subjectID)
	f.mu.Lock()
	hook := f.afterBan
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakePlatform) Unban(_ context.Context, scopeID, subjectID string) error {
	return f.record("unban", scopeID, subjectID)
}

func (f *fakePlatform) record(op, scope, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{op, scope, subject})
	return f.errs[op+":"+subject]
}

func (f *fakePlatform) fail(op, subject string, err error) {
	f.mu.Lock()
	f.errs[op+":"+subject] = err
	f.mu.Unlock()
}

func (f *fakePlatform) count(op, subject string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.op == op && c.subject == subject {
			n++
		}
	}
	return n
}

type fixture struct {
	platform *fakePlatform
	sched    *schedule.Service
	svc      *Service
	path     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tempbans.json")
	store, err := schedule.NewFileStore(path)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	p := newFakePlatform()
	sched, err := schedule.New(schedule.Options{Store: store, Executor: NewExecutor(p, logx.Nop())})
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	if _, err := sched.Reconcile(context.Background()); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = sched.Stop(ctx)
	})
	svc, err := NewService(Options{Scheduler: sched, Platform: p})
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{platform: p, sched: sched, svc: svc, path: path}
}

func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// stubScheduler answers Cancel with a fixed result.
type stubScheduler struct {
	had       bool
	cancelErr error
}

func (s *stubScheduler) Enqueue(_ context.Context, scopeID, subjectID string, dueAt time.Time) (schedule.ScheduledAction, error) {
	return schedule.ScheduledAction{ScopeID: scopeID, SubjectID: subjectID, DueAt: dueAt, Kind: schedule.KindLiftRestriction}, nil
}

func (s *stubScheduler) Cancel(_ context.Context, scopeID, subjectID string) (schedule.ScheduledAction, bool, error) {
	return schedule.ScheduledAction{ScopeID: scopeID, SubjectID: subjectID}, s.had, s.cancelErr
}

func (s *stubScheduler) ListScope(string) []schedule.ScheduledAction { return nil }

