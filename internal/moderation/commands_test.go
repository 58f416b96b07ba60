package moderation

import (
	"context"
	"strings"
	"testing"
	"time"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

func TestCanonicalName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"TempBan": CmdTempBan,
		"หมดเวลา":  CmdTempBan,
		"แบน":      CmdBan,
		"ปลดแบน":   CmdUnban,
		"kick":     "kick",
	}
	for in, want := range tests {
		if got := CanonicalName(in); got != want {
			t.Fatalf("CanonicalName(%q)=%q, want %q", in, got, want)
		}
	}
	if Known("kick") || !Known("แบน") {
		t.Fatalf("Known mismatch")
	}
}

func TestDispatcher(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	d := NewDispatcher(f.svc, logx.Nop(), time.Second)
	ctx := context.Background()

	tests := []struct {
		name   string
		cmd    Command
		prefix string
	}{
		{"tempban with unit", Command{Name: "tempban", ScopeID: "1", Args: []string{"<@42>", "10", "m"}}, "✅ 42:"},
		{"tempban single token", Command{Name: "หมดเวลา", ScopeID: "1", Args: []string{"43", "2h"}}, "✅ 43:"},
		{"tempban via reply", Command{Name: "tempban", ScopeID: "1", Args: []string{"1", "d"}, ReplyToID: "44"}, "✅ 44:"},
		{"tempban missing duration", Command{Name: "tempban", ScopeID: "1", Args: []string{"45"}}, "❗ usage"},
		{"tempban bad unit", Command{Name: "tempban", ScopeID: "1", Args: []string{"45", "3", "w"}}, "❗ unknown unit"},
		{"no scope", Command{Name: "ban", Args: []string{"45"}}, "❗ this command"},
		{"ban without ids", Command{Name: "ban", ScopeID: "1"}, "❗ give at least"},
		{"unknown", Command{Name: "kick", ScopeID: "1"}, "❗ unknown command"},
		{"help", Command{Name: "help", ScopeID: "1"}, "Commands:"},
	}
	for _, tt := range tests {
		got := d.Handle(ctx, tt.cmd)
		if !strings.HasPrefix(got, tt.prefix) {
			t.Fatalf("%s: got %q, want prefix %q", tt.name, got, tt.prefix)
		}
	}
	if f.sched.Len() != 3 {
		t.Fatalf("scheduled %d lifts, want 3", f.sched.Len())
	}
	if f.platform.count("ban", "45") != 0 {
		t.Fatalf("bad commands must not ban")
	}

	got := d.Handle(ctx, Command{Name: "tempbans", ScopeID: "1"})
	if !strings.HasPrefix(got, "⏳ Pending lifts (3):") {
		t.Fatalf("tempbans=%q", got)
	}

	got = d.Handle(ctx, Command{Name: "ปลดแบน", ScopeID: "1", Args: []string{"42,43"}})
	if strings.Count(got, "✅") != 2 {
		t.Fatalf("unban batch=%q", got)
	}
	if f.sched.Len() != 1 {
		t.Fatalf("pending after unban=%d, want 1", f.sched.Len())
	}
}

func TestChainRecoversPanics(t *testing.T) {
	t.Parallel()

	h := Chain(func(context.Context, *Command) (string, error) { panic("boom") },
		MWRequestLog(logx.Nop()),
		MWPanicRecover(logx.Nop()),
	)
	if _, err := h(context.Background(), &Command{Name: "x"}); err == nil {
		t.Fatalf("expected error from recovered panic")
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	t.Parallel()

	h := MWTimeout(20 * time.Millisecond)(func(ctx context.Context, _ *Command) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	start := time.Now()
	if _, err := h(context.Background(), &Command{}); err == nil {
		t.Fatalf("expected deadline error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("timeout not applied")
	}
}
