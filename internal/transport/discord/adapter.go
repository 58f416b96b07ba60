package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

const textLimit = 2000

// JSON error codes from the Discord API.
const (
	codeUnknownGuild = 10004
	codeUnknownUser  = 10013
	codeUnknownBan   = 10026
)

type Config struct {
	Token         string
	ApplicationID string
	// GuildID registers commands for one guild instead of globally.
	GuildID string
	// Prefix enables text commands; empty disables them. The message content
	// intent is only requested when it is set at construction.
	Prefix string
}

// Adapter is the Discord transport. Scope ids are guild ids and subject ids
// are user ids (snowflakes).
type Adapter struct {
	cfg Config
	log logx.Logger
	s   *discordgo.Session

	runMu   sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
	handler transport.CommandHandler
	prefix  string
	removes []func()
}

var _ transport.Adapter = (*Adapter)(nil)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("discord token is empty")
	}
	s, err := discordgo.New("Bot " + strings.TrimSpace(cfg.Token))
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages
	if cfg.Prefix != "" {
		s.Identify.Intents |= discordgo.IntentMessageContent
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, log: log.With(logx.String("comp", "discord")), s: s, prefix: cfg.Prefix}, nil
}

// SetPrefix changes the text command prefix. Empty disables text commands.
func (a *Adapter) SetPrefix(p string) {
	a.runMu.Lock()
	a.prefix = strings.TrimSpace(p)
	a.runMu.Unlock()
}

func (a *Adapter) Name() string { return "discord" }

func (a *Adapter) Start(ctx context.Context, h transport.CommandHandler) error {
	if ctx == nil {
		ctx = context.Background()
	}
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.ctx, a.cancel = context.WithCancel(ctx)
	a.handler = h
	a.removes = []func(){
		a.s.AddHandler(a.onReady),
		a.s.AddHandler(a.onInteraction),
	}
	if a.cfg.Prefix != "" {
		a.removes = append(a.removes, a.s.AddHandler(a.onMessage))
	}
	if err := a.s.Open(); err != nil {
		a.cancel()
		for _, rm := range a.removes {
			rm()
		}
		a.removes = nil
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	a.running = true

	appID := a.cfg.ApplicationID
	if appID == "" && a.s.State != nil && a.s.State.User != nil {
		appID = a.s.State.User.ID
	}
	if _, err := a.s.ApplicationCommandBulkOverwrite(appID, a.cfg.GuildID, slashCommands(), discordgo.WithContext(ctx)); err != nil {
		a.log.Warn("slash command registration failed", logx.String("guild", a.cfg.GuildID), logx.Err(err))
	} else {
		a.log.Info("slash commands registered", logx.String("guild", a.cfg.GuildID), logx.Int("count", len(slashCommands())))
	}
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	a.cancel()
	for _, rm := range a.removes {
		rm()
	}
	a.removes = nil

	done := make(chan error, 1)
	go func() { done <- a.s.Close() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		a.log.Warn("discord stop timed out", logx.Err(ctx.Err()))
		return nil
	}
}

func (a *Adapter) runContext() (context.Context, transport.CommandHandler) {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.ctx == nil {
		return context.Background(), a.handler
	}
	return a.ctx, a.handler
}

func (a *Adapter) currentPrefix() string {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	return a.prefix
}

func (a *Adapter) onReady(_ *discordgo.Session, r *discordgo.Ready) {
	a.log.Info("gateway ready", logx.String("user", r.User.Username), logx.Int("guilds", len(r.Guilds)))
}

func (a *Adapter) Ban(ctx context.Context, scopeID, subjectID, reason string) error {
	return classify(a.s.GuildBanCreateWithReason(scopeID, subjectID, reason, 0, discordgo.WithContext(ctx)))
}

func (a *Adapter) Unban(ctx context.Context, scopeID, subjectID string) error {
	return classify(a.s.GuildBanDelete(scopeID, subjectID, discordgo.WithContext(ctx)))
}

// SendText posts text to a channel id, split to fit Discord's limit.
func (a *Adapter) SendText(ctx context.Context, target, text string) error {
	target = strings.TrimSpace(target)
	if target == "" {
		return errors.New("discord: empty channel id")
	}
	for _, chunk := range transport.SplitText(text, textLimit) {
		if _, err := a.s.ChannelMessageSend(target, chunk, discordgo.WithContext(ctx)); err != nil {
			return classify(err)
		}
	}
	return nil
}

// classify tags unknown guild, user and ban responses with
// moderation.ErrTargetGone.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var rerr *discordgo.RESTError
	if errors.As(err, &rerr) && rerr.Message != nil {
		switch rerr.Message.Code {
		case codeUnknownGuild, codeUnknownUser, codeUnknownBan:
			return fmt.Errorf("discord: %w: %w", moderation.ErrTargetGone, err)
		}
	}
	return fmt.Errorf("discord: %w", err)
}
