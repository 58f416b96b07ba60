package transport

import (
	"context"

	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

// CommandHandler turns a parsed command into reply text.
type CommandHandler interface {
	Handle(ctx context.Context, cmd moderation.Command) string
}

// Adapter is a chat platform connection. It performs bans for the moderation
// service, delivers log lines for the chat sink and feeds commands to h.
type Adapter interface {
	moderation.Platform
	logx.Sender

	Start(ctx context.Context, h CommandHandler) error
	Stop(ctx context.Context) error
}

// BotCommand is a single command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// Commands lists the moderation commands shown in platform menus.
func Commands() []BotCommand {
	return []BotCommand{
		{Command: moderation.CmdTempBan, Description: "Ban a user for a while, unban automatically"},
		{Command: moderation.CmdBan, Description: "Ban users permanently"},
		{Command: moderation.CmdUnban, Description: "Unban users now"},
		{Command: moderation.CmdTempBans, Description: "List pending automatic unbans"},
		{Command: moderation.CmdHelp, Description: "Show moderation commands"},
	}
}
