package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Sender delivers a plain text line to a chat target (Telegram chat id,
// Discord channel id).
type Sender interface {
	SendText(ctx context.Context, target string, text string) error
}

// chatLineLimit keeps a formatted line inside one Discord message.
const chatLineLimit = 1800

type chatLine struct {
	target string
	text   string
}

// chatSink is a zerolog.LevelWriter that forwards lines at or above a minimum
// level to a chat, rate limited and without ever blocking the caller.
type chatSink struct {
	mu       sync.Mutex
	sender   Sender
	target   string
	minLevel zerolog.Level
	limiter  *rate.Limiter

	queue  chan chatLine
	once   sync.Once
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newChatSink(sender Sender) *chatSink {
	return &chatSink{
		sender:   sender,
		minLevel: zerolog.WarnLevel,
		queue:    make(chan chatLine, 256),
	}
}

func (c *chatSink) setTarget(target string) {
	c.mu.Lock()
	c.target = strings.TrimSpace(target)
	c.mu.Unlock()
}

func (c *chatSink) setSender(s Sender) {
	c.mu.Lock()
	c.sender = s
	c.mu.Unlock()
}

// configure applies cfg and starts the delivery goroutine. It reports false
// while no sender is installed.
func (c *chatSink) configure(cfg ChatConfig) bool {
	rps := max(1, cfg.RatePerSec)
	c.mu.Lock()
	c.minLevel = parseLevel(cfg.MinLevel, zerolog.WarnLevel)
	c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	ok := c.sender != nil
	c.mu.Unlock()
	if !ok {
		return false
	}
	c.once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.deliver(ctx)
		}()
	})
	return true
}

func (c *chatSink) stop() {
	c.mu.Lock()
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()
	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
}

func (c *chatSink) deliver(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ln := <-c.queue:
			c.mu.Lock()
			s := c.sender
			c.mu.Unlock()
			if s == nil {
				continue
			}
			sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_ = s.SendText(sctx, ln.target, ln.text)
			cancel()
		}
	}
}

func (c *chatSink) Write(p []byte) (int, error) {
	return c.WriteLevel(zerolog.InfoLevel, p)
}

func (c *chatSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	c.mu.Lock()
	target, lim, minLevel := c.target, c.limiter, c.minLevel
	c.mu.Unlock()

	if target == "" || lim == nil || level < minLevel || !lim.Allow() {
		return len(p), nil
	}
	if text := formatChatLine(p); text != "" {
		select {
		case c.queue <- chatLine{target: target, text: text}:
		default:
		}
	}
	return len(p), nil
}

var levelIcons = map[string]string{
	"warn":  "⚠️",
	"error": "🛑",
	"fatal": "🛑",
	"panic": "🛑",
}

// formatChatLine renders a zerolog JSON line as "<icon> [LEVEL] message"
// followed by one "key: value" line per field, sorted by key.
func formatChatLine(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return clip(strings.TrimSpace(string(p)), chatLineLimit)
	}

	lvl, _ := m["level"].(string)
	msg, _ := m["message"].(string)

	var b strings.Builder
	if icon := levelIcons[lvl]; icon != "" {
		b.WriteString(icon + " ")
	}
	if lvl != "" {
		fmt.Fprintf(&b, "[%s] ", strings.ToUpper(lvl))
	}
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName, zerolog.CallerFieldName:
		default:
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n%s: %s", k, clip(fmt.Sprint(m[k]), 300))
	}
	return clip(b.String(), chatLineLimit)
}

// clip shortens s to at most n bytes without splitting a rune.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n - len("…")
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
