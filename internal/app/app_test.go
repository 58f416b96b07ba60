package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/viresathorn804-oss/discord-bot5/internal/config"
	"github.com/viresathorn804-oss/discord-bot5/internal/eventbus"
	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	"github.com/viresathorn804-oss/discord-bot5/internal/schedule"
	"github.com/viresathorn804-oss/discord-bot5/internal/storage"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	handler transport.CommandHandler
	bans    []string
	unbans  []string
	sent    []string
	owners  []int64
	stopped bool

	// When set, Unban signals unbanning and waits for release.
	unbanning chan struct{}
	release   chan struct{}
}

func (f *fakeAdapter) Name() string { return "fake" }

func (f *fakeAdapter) Ban(_ context.Context, scopeID, subjectID, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans = append(f.bans, scopeID+"/"+subjectID)
	return nil
}

func (f *fakeAdapter) Unban(_ context.Context, scopeID, subjectID string) error {
	if f.release != nil {
		close(f.unbanning)
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unbans = append(f.unbans, scopeID+"/"+subjectID)
	return nil
}

func (f *fakeAdapter) SendText(_ context.Context, target, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, target+":"+text)
	return nil
}

func (f *fakeAdapter) Start(_ context.Context, h transport.CommandHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeAdapter) SetOwners(ids []int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append([]int64(nil), ids...)
}

func (f *fakeAdapter) unbanCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unbans)
}

func (f *fakeAdapter) command(ctx context.Context, cmd moderation.Command) string {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	return h.Handle(ctx, cmd)
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	cfg := fmt.Sprintf(`{
  "platform": "discord",
  "discord": {"token": "test-token", "prefix": "?"},
  "logging": {"level": "error"},
  "schedule": {"state_path": %q, "status_report": "@every 1h"},
  "storage": {"driver": "file", "path": %q}
}`, filepath.Join(dir, "tempbans.json"), filepath.Join(dir, "audit"))
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func startApp(t *testing.T, cfgPath string, ad *fakeAdapter) *App {
	t.Helper()
	a, err := NewApp(cfgPath, WithAdapter(ad))
	if err != nil {
		t.Fatalf("NewApp: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return a
}

func stopApp(t *testing.T, a *App) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Stop(ctx, StopSIGTERM); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestAppTempBanSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	ctx := context.Background()

	ad := &fakeAdapter{}
	a := startApp(t, cfgPath, ad)
	reply := ad.command(ctx, moderation.Command{
		Name:    "หมดเวลา",
		Args:    []string{"<@42>", "2", "h"},
		ScopeID: "900",
		Actor:   moderation.Actor{ID: "7"},
	})
	if !strings.HasPrefix(reply, "✅ 42:") {
		t.Fatalf("reply=%q", reply)
	}
	if a.Schedule().Len() != 1 {
		t.Fatalf("pending=%d, want 1", a.Schedule().Len())
	}
	stopApp(t, a)
	if !ad.stopped {
		t.Fatalf("adapter not stopped")
	}

	// The lift is recovered from disk by a fresh process.
	ad2 := &fakeAdapter{}
	a2 := startApp(t, cfgPath, ad2)
	got, ok := a2.Schedule().Get("900", "42")
	if !ok || got.Kind != schedule.KindLiftRestriction {
		t.Fatalf("lift not recovered: %+v %v", got, ok)
	}
	if ad2.unbanCount() != 0 {
		t.Fatalf("future lift fired early")
	}
	stopApp(t, a2)

	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "audit")}, logx.Nop())
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	defer store.Close()
	entries, err := store.RecentAudit(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		seen[e.Event] = true
	}
	if !seen[moderation.EventTempBan] || !seen[schedule.EventScheduled] {
		t.Fatalf("audit events=%v", seen)
	}
}

func TestAppFiresOverdueLiftOnStart(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	fs, err := schedule.NewFileStore(filepath.Join(dir, "tempbans.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	overdue := schedule.ScheduledAction{
		ScopeID:   "900",
		SubjectID: "42",
		Kind:      schedule.KindLiftRestriction,
		DueAt:     time.Now().Add(-time.Hour).UTC(),
	}
	if err := fs.Save([]schedule.ScheduledAction{overdue}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ad := &fakeAdapter{}
	a := startApp(t, cfgPath, ad)
	defer stopApp(t, a)
	if ad.unbanCount() != 1 {
		t.Fatalf("overdue lift fired %d times, want 1", ad.unbanCount())
	}
	if a.Schedule().Len() != 0 {
		t.Fatalf("overdue lift still pending")
	}
}

func TestAppAuditsLiftFiredDuringStop(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	fs, err := schedule.NewFileStore(filepath.Join(dir, "tempbans.json"))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	soon := schedule.ScheduledAction{
		ScopeID:   "900",
		SubjectID: "42",
		Kind:      schedule.KindLiftRestriction,
		DueAt:     time.Now().Add(300 * time.Millisecond).UTC(),
	}
	if err := fs.Save([]schedule.ScheduledAction{soon}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	ad := &fakeAdapter{unbanning: make(chan struct{}), release: make(chan struct{})}
	a := startApp(t, cfgPath, ad)
	select {
	case <-ad.unbanning:
	case <-time.After(5 * time.Second):
		t.Fatalf("lift never fired")
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		stopApp(t, a)
	}()
	// Let Stop cancel the run context before the lift completes.
	time.Sleep(100 * time.Millisecond)
	close(ad.release)
	<-stopped

	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "audit")}, logx.Nop())
	if err != nil {
		t.Fatalf("open audit: %v", err)
	}
	defer store.Close()
	entries, err := store.RecentAudit(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentAudit: %v", err)
	}
	for _, e := range entries {
		if e.Event == schedule.EventFired && e.SubjectID == "42" {
			return
		}
	}
	t.Fatalf("fired lift missing from audit: %+v", entries)
}

func TestAppAppliesLiveConfig(t *testing.T) {
	dir := t.TempDir()
	ad := &fakeAdapter{}
	a := startApp(t, writeConfig(t, dir), ad)
	defer stopApp(t, a)

	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	newCfg.Telegram.OwnerUserIDs = []int64{5}
	newCfg.Schedule.StatusReport = ""
	a.applyConfig(oldCfg, &newCfg)

	ad.mu.Lock()
	owners := ad.owners
	ad.mu.Unlock()
	if len(owners) != 1 || owners[0] != 5 {
		t.Fatalf("owners=%v", owners)
	}
	a.cronMu.Lock()
	id := a.statusID
	a.cronMu.Unlock()
	if id != 0 {
		t.Fatalf("status report should be disabled")
	}
}

func TestAuditEntry(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	act := schedule.ScheduledAction{ScopeID: "1", SubjectID: "2", Kind: schedule.KindLiftRestriction, DueAt: due}

	e, ok := auditEntry(eventbus.Event{Type: schedule.EventFailed, Data: schedule.EventData{Action: act, Err: "boom"}}, "discord")
	if !ok || e.OK || e.Error != "boom" || e.ScopeID != "1" || e.SubjectID != "2" || !e.DueAt.Equal(due) || e.Platform != "discord" {
		t.Fatalf("failed entry=%+v", e)
	}
	e, ok = auditEntry(eventbus.Event{Type: schedule.EventFired, Data: schedule.EventData{Action: act}}, "discord")
	if !ok || !e.OK {
		t.Fatalf("fired entry=%+v", e)
	}
	e, ok = auditEntry(eventbus.Event{Type: moderation.EventBan, Data: moderation.EventData{Platform: "telegram", ScopeID: "1", SubjectID: "2", ActorID: "9", OK: true}}, "discord")
	if !ok || e.ActorID != "9" || e.Platform != "telegram" || !e.OK {
		t.Fatalf("ban entry=%+v", e)
	}
	if _, ok := auditEntry(eventbus.Event{Type: "other", Data: 3}, "discord"); ok {
		t.Fatalf("unknown event must be skipped")
	}
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()

	if _, enabled, err := mapStorageConfig(&config.Config{}); enabled || err != nil {
		t.Fatalf("nil storage: enabled=%v err=%v", enabled, err)
	}
	sc, enabled, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "SQLite", Path: " x.db "}})
	if err != nil || !enabled || sc.Driver != "sqlite" || sc.Path != "x.db" || sc.BusyTimeout != config.DefaultBusyTimeout {
		t.Fatalf("sqlite: %+v %v %v", sc, enabled, err)
	}
	if _, _, err := mapStorageConfig(&config.Config{Storage: &config.StorageConfig{Driver: "file", BusyTimeout: "soon"}}); err == nil {
		t.Fatalf("bad busy_timeout must fail")
	}
}

func TestLogTarget(t *testing.T) {
	t.Parallel()

	tg := &config.Config{Platform: config.PlatformTelegram, Telegram: config.TelegramConfig{GroupLog: " -100 "}}
	if got := logTarget(tg); got != "-100" {
		t.Fatalf("telegram target=%q", got)
	}
	dc := &config.Config{Platform: config.PlatformDiscord, Discord: config.DiscordConfig{LogChannelID: "55"}}
	if got := logTarget(dc); got != "55" {
		t.Fatalf("discord target=%q", got)
	}
}
