package moderation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// Command is a platform-neutral moderation command.
type Command struct {
	Name     string
	Args     []string
	ScopeID  string
	Actor    Actor
	Platform string
	// ReplyToID is the author of the message the command replied to, if any.
	// It stands in for the subject argument.
	ReplyToID string
}

// HandlerFunc handles a command and returns the reply text.
type HandlerFunc func(ctx context.Context, cmd *Command) (string, error)

// Names of the commands every platform exposes.
const (
	CmdTempBan  = "tempban"
	CmdBan      = "ban"
	CmdUnban    = "unban"
	CmdTempBans = "tempbans"
	CmdHelp     = "help"
)

// Thai command names kept for existing Discord servers.
var aliases = map[string]string{
	"หมดเวลา": CmdTempBan,
	"แบน":     CmdBan,
	"ปลดแบน":  CmdUnban,
}

// CanonicalName maps an alias to its command name.
func CanonicalName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if c, ok := aliases[name]; ok {
		return c
	}
	return name
}

// Known reports whether name is a moderation command or alias.
func Known(name string) bool {
	switch CanonicalName(name) {
	case CmdTempBan, CmdBan, CmdUnban, CmdTempBans, CmdHelp:
		return true
	}
	return false
}

const usageText = `Commands:
tempban <id|reply> <value> <m|h|d>  ban now, unban automatically later
ban <ids...>                        ban permanently (cancels pending lifts)
unban <ids...>                      unban now (cancels pending lifts)
tempbans                            list pending automatic unbans`

// Dispatcher routes commands to the moderation service.
type Dispatcher struct {
	svc     *Service
	log     logx.Logger
	handler HandlerFunc
}

// NewDispatcher builds a dispatcher with panic recovery, request logging and
// a per-command timeout.
func NewDispatcher(svc *Service, log logx.Logger, timeout time.Duration) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	d := &Dispatcher{svc: svc, log: log.With(logx.String("comp", "moderation.commands"))}
	d.handler = Chain(d.route,
		MWRequestLog(d.log),
		MWPanicRecover(d.log),
		MWTimeout(timeout),
	)
	return d
}

// Handle runs cmd and always returns text to show the caller.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) string {
	cmd.Name = CanonicalName(cmd.Name)
	out, err := d.handler(ctx, &cmd)
	if err == nil {
		return out
	}
	switch {
	case errors.Is(err, ErrBadInput):
		return "❗ " + strings.TrimPrefix(err.Error(), ErrBadInput.Error()+": ")
	case errors.Is(err, ErrForbidden):
		return "❌ You do not have permission to ban members."
	default:
		return "❌ Something went wrong."
	}
}

func (d *Dispatcher) route(ctx context.Context, cmd *Command) (string, error) {
	if strings.TrimSpace(cmd.ScopeID) == "" {
		return "", fmt.Errorf("%w: this command only works in a group or server", ErrBadInput)
	}
	switch cmd.Name {
	case CmdTempBan:
		return d.tempBan(ctx, cmd)
	case CmdBan:
		ids, err := subjects(cmd)
		if err != nil {
			return "", err
		}
		return Lines(d.svc.Ban(ctx, cmd.ScopeID, ids, cmd.Actor)), nil
	case CmdUnban:
		ids, err := subjects(cmd)
		if err != nil {
			return "", err
		}
		return Lines(d.svc.Unban(ctx, cmd.ScopeID, ids, cmd.Actor)), nil
	case CmdTempBans:
		return d.svc.FormatPending(cmd.ScopeID), nil
	case CmdHelp:
		return usageText, nil
	default:
		return "", fmt.Errorf("%w: unknown command %q", ErrBadInput, cmd.Name)
	}
}

func (d *Dispatcher) tempBan(ctx context.Context, cmd *Command) (string, error) {
	args := cmd.Args
	subject := cmd.ReplyToID
	if subject == "" {
		if len(args) == 0 {
			return "", fmt.Errorf("%w: usage: tempban <id> <value> <m|h|d>", ErrBadInput)
		}
		subject, args = args[0], args[1:]
	}

	var (
		dur time.Duration
		err error
	)
	switch len(args) {
	case 1:
		dur, err = ParseDuration(args[0], "")
	case 2:
		dur, err = ParseDuration(args[0], args[1])
	default:
		return "", fmt.Errorf("%w: usage: tempban <id> <value> <m|h|d>", ErrBadInput)
	}
	if err != nil {
		return "", err
	}
	return d.svc.TempBan(ctx, cmd.ScopeID, subject, dur, cmd.Actor).Line(), nil
}

func subjects(cmd *Command) ([]string, error) {
	var ids []string
	for _, a := range cmd.Args {
		ids = append(ids, SplitIDs(a)...)
	}
	if len(ids) == 0 && cmd.ReplyToID != "" {
		ids = []string{cmd.ReplyToID}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: give at least one user id", ErrBadInput)
	}
	return ids, nil
}
