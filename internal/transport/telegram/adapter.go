package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	rtsup "github.com/viresathorn804-oss/discord-bot5/internal/runtime/supervisor"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

const textLimit = 4000

type Config struct {
	Token        string
	PollTimeout  time.Duration
	OwnerUserIDs []int64
}

// Adapter is the Telegram transport. Scope ids are chat ids and subject ids
// are user ids, both in decimal.
type Adapter struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor
	handler transport.CommandHandler

	ownersMu sync.RWMutex
	owners   map[int64]struct{}
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "telegram"))
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		OnError: func(err error, c tele.Context) {
			log.Warn("telebot handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	a.SetOwners(cfg.OwnerUserIDs)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) Name() string { return "telegram" }

// SetOwners replaces the user ids allowed to moderate in every chat.
func (a *Adapter) SetOwners(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	a.ownersMu.Lock()
	a.owners = m
	a.ownersMu.Unlock()
}

func (a *Adapter) isOwner(id int64) bool {
	a.ownersMu.RLock()
	defer a.ownersMu.RUnlock()
	_, ok := a.owners[id]
	return ok
}

func (a *Adapter) Start(ctx context.Context, h transport.CommandHandler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.handler = h
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		// adapter errors should not take down the whole app; treat as best-effort.
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	if err := a.setMenu(); err != nil {
		a.log.Warn("menu commands update failed", logx.Err(err))
	}

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Start() blocks until Stop(); a return while the context is alive is a
	// failure and gets restarted.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		if c.Err() != nil {
			return nil
		}
		return errors.New("poller exited")
	},
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
		rtsup.WithPublishFirstError(true),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping")
	// Cancelling triggers telebot.stop_on_cancel; telebot must be stopped once.
	sup.Cancel()

	// Keep shutdown snappy even if getUpdates long-poll is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

func (a *Adapter) runContext() context.Context {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.sup == nil {
		return context.Background()
	}
	return a.sup.Context()
}

func (a *Adapter) Ban(ctx context.Context, scopeID, subjectID, _ string) error {
	chat, user, err := recipients(scopeID, subjectID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(a.bot.Ban(chat, &tele.ChatMember{User: user}))
}

// Unban lifts a ban. Only banned users are affected so a member who rejoined
// is not kicked.
func (a *Adapter) Unban(ctx context.Context, scopeID, subjectID string) error {
	chat, user, err := recipients(scopeID, subjectID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return classify(a.bot.Unban(chat, user, true))
}

// SendText delivers text to a chat id, split to fit Telegram's limit.
func (a *Adapter) SendText(ctx context.Context, target, text string) error {
	id, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: bad chat id %q", target)
	}
	chat := &tele.Chat{ID: id}
	for _, chunk := range transport.SplitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
			return classify(err)
		}
	}
	return nil
}

func (a *Adapter) setMenu() error {
	cmds := transport.Commands()
	out := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, tele.Command{Text: c.Command, Description: c.Description})
	}
	if err := a.bot.SetCommands(out); err != nil {
		return err
	}
	a.log.Info("menu commands updated", logx.Int("count", len(out)))
	return nil
}

func recipients(scopeID, subjectID string) (*tele.Chat, *tele.User, error) {
	chatID, err := strconv.ParseInt(scopeID, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("telegram: bad chat id %q: %w", scopeID, moderation.ErrTargetGone)
	}
	userID, err := strconv.ParseInt(subjectID, 10, 64)
	if err != nil {
		return nil, nil, fmt.Errorf("telegram: bad user id %q: %w", subjectID, moderation.ErrTargetGone)
	}
	return &tele.Chat{ID: chatID}, &tele.User{ID: userID}, nil
}

// Bot API descriptions that can never succeed on retry.
var gonePhrases = []string{
	"chat not found",
	"user not found",
	"participant_id_invalid",
	"user_id_invalid",
	"bot was kicked",
	"group chat was deactivated",
	"chat was upgraded",
}

// classify tags permanent Bot API failures with moderation.ErrTargetGone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, p := range gonePhrases {
		if strings.Contains(msg, p) {
			return fmt.Errorf("telegram: %w: %w", moderation.ErrTargetGone, err)
		}
	}
	return fmt.Errorf("telegram: %w", err)
}
