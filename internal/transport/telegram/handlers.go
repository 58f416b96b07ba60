package telegram

import (
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

func (a *Adapter) registerHandlers() {
	for _, c := range transport.Commands() {
		a.bot.Handle("/"+c.Command, a.onCommand(c.Command))
	}
}

func (a *Adapter) onCommand(name string) tele.HandlerFunc {
	return func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil || m.Chat == nil {
			return nil
		}
		a.runMu.Lock()
		h := a.handler
		a.runMu.Unlock()
		if h == nil {
			return nil
		}

		cmd := buildCommand(name, c.Args(), m)
		if name != moderation.CmdHelp && cmd.ScopeID != "" && !a.allowed(m.Chat, m.Sender) {
			return c.Reply("❌ You need admin rights with ban permission to use this command.")
		}

		reply := h.Handle(a.runContext(), cmd)
		for _, chunk := range transport.SplitText(reply, textLimit) {
			if err := c.Reply(chunk); err != nil {
				return err
			}
		}
		return nil
	}
}

func (a *Adapter) allowed(chat *tele.Chat, user *tele.User) bool {
	if a.isOwner(user.ID) {
		return true
	}
	member, err := a.bot.ChatMemberOf(chat, user)
	if err != nil {
		a.log.Warn("permission lookup failed",
			logx.Int64("chat", chat.ID),
			logx.Int64("user", user.ID),
			logx.Err(err),
		)
		return false
	}
	return canModerate(member)
}

func canModerate(m *tele.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Role {
	case tele.Creator:
		return true
	case tele.Administrator:
		return m.CanRestrictMembers
	}
	return false
}

// buildCommand maps a Telegram message to a moderation command. Private chats
// have no scope, so moderation commands are refused there.
func buildCommand(name string, args []string, m *tele.Message) moderation.Command {
	cmd := moderation.Command{Name: name, Args: args, Platform: "telegram"}
	if m.Sender != nil {
		cmd.Actor = moderation.Actor{ID: strconv.FormatInt(m.Sender.ID, 10), Name: displayName(m.Sender)}
	}
	if m.Chat != nil && m.Chat.Type != tele.ChatPrivate {
		cmd.ScopeID = strconv.FormatInt(m.Chat.ID, 10)
	}
	if m.ReplyTo != nil && m.ReplyTo.Sender != nil && !m.ReplyTo.Sender.IsBot {
		cmd.ReplyToID = strconv.FormatInt(m.ReplyTo.Sender.ID, 10)
	}
	return cmd
}

func displayName(u *tele.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
