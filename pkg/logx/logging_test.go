package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestFormatChatLine(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","time":"x","caller":"a.go:1","message":"save failed","path":"/tmp/s.json","comp":"schedule"}`)
	got := formatChatLine(line)
	want := "⚠️ [WARN] save failed\ncomp: schedule\npath: /tmp/s.json"
	if got != want {
		t.Fatalf("formatChatLine = %q, want %q", got, want)
	}
}

func TestFormatChatLineNonJSON(t *testing.T) {
	t.Parallel()
	if got := formatChatLine([]byte("  plain text \n")); got != "plain text" {
		t.Fatalf("formatChatLine = %q", got)
	}
}

func TestClipKeepsRunesWhole(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("แบน", 10)
	got := clip(s, 10)
	if len(got) > 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("clip = %q (%d bytes)", got, len(got))
	}
	if !strings.HasPrefix(s, strings.TrimSuffix(got, "…")) {
		t.Fatalf("clip broke a rune: %q", got)
	}
	if clip("short", 10) != "short" {
		t.Fatal("short strings are unchanged")
	}
}

type recordSender struct {
	mu    sync.Mutex
	lines []string
}

func (r *recordSender) SendText(_ context.Context, target, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, target+"|"+text)
	return nil
}

func (r *recordSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lines)
}

func TestChatSinkFiltersByLevelAndTarget(t *testing.T) {
	t.Parallel()
	c := newChatSink(nil)
	if c.configure(ChatConfig{MinLevel: "warn", RatePerSec: 10}) {
		t.Fatal("configure must report false without a sender")
	}

	// No target: dropped.
	_, _ = c.WriteLevel(zerolog.ErrorLevel, []byte(`{"level":"error","message":"x"}`))
	if len(c.queue) != 0 {
		t.Fatalf("expected no queued line without target")
	}

	c.setTarget(" -100123 ")
	_, _ = c.WriteLevel(zerolog.InfoLevel, []byte(`{"level":"info","message":"x"}`))
	if len(c.queue) != 0 {
		t.Fatalf("expected info line to be filtered")
	}
	_, _ = c.WriteLevel(zerolog.ErrorLevel, []byte(`{"level":"error","message":"boom"}`))
	if len(c.queue) != 1 {
		t.Fatalf("queue len = %d, want 1", len(c.queue))
	}
	ln := <-c.queue
	if ln.target != "-100123" || !strings.Contains(ln.text, "boom") {
		t.Fatalf("unexpected line: %+v", ln)
	}
}

func TestServiceForwardsWarningsToChat(t *testing.T) {
	t.Parallel()
	rec := &recordSender{}
	svc, log := NewService(Config{Level: "debug", Chat: ChatConfig{Enabled: true, RatePerSec: 5}}, nil)
	defer svc.Close()
	svc.SetChatTarget("42")
	svc.SetSender(rec)

	log.Info("quiet")
	log.Warn("lift failed", String("subject", "7"))

	deadline := time.Now().Add(2 * time.Second)
	for rec.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.lines) != 1 || !strings.HasPrefix(rec.lines[0], "42|⚠️ [WARN] lift failed") {
		t.Fatalf("lines = %q", rec.lines)
	}
}

func TestLoggerWithFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := New(zerolog.New(&buf)).With(String("comp", "test"))
	log.Info("hello", Int("n", 3), Duration("d", time.Second))
	out := buf.String()
	for _, want := range []string{`"comp":"test"`, `"n":3`, `"d":"1s"`, `"message":"hello"`, `"caller":"logging_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %s", out, want)
		}
	}
	if Nop().IsZero() {
		t.Fatal("Nop logger should not be zero")
	}
	var zero Logger
	if !zero.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	zero.Error("discarded")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
		"loud":    zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := parseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
