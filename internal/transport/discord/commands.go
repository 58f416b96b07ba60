package discord

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/viresathorn804-oss/discord-bot5/internal/moderation"
	"github.com/viresathorn804-oss/discord-bot5/internal/transport"
	logx "github.com/viresathorn804-oss/discord-bot5/pkg/logx"
)

const deniedText = "❌ You need the Ban Members permission to use this command."

var thaiNames = map[string]string{
	moderation.CmdTempBan: "หมดเวลา",
	moderation.CmdBan:     "แบน",
	moderation.CmdUnban:   "ปลดแบน",
}

func slashCommands() []*discordgo.ApplicationCommand {
	banPerm := int64(discordgo.PermissionBanMembers)
	noDM := false

	var out []*discordgo.ApplicationCommand
	for _, c := range transport.Commands() {
		ac := &discordgo.ApplicationCommand{
			Name:         c.Command,
			Description:  c.Description,
			DMPermission: &noDM,
		}
		if c.Command != moderation.CmdHelp {
			ac.DefaultMemberPermissions = &banPerm
		}
		if th, ok := thaiNames[c.Command]; ok {
			ac.NameLocalizations = &map[discordgo.Locale]string{discordgo.Locale("th"): th}
		}
		switch c.Command {
		case moderation.CmdTempBan:
			ac.Options = []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionUser, Name: "user", Description: "User to ban", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "value", Description: "How many units (e.g. 10)", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "unit", Description: "Time unit", Required: true,
					Choices: []*discordgo.ApplicationCommandOptionChoice{
						{Name: "minutes", Value: "m"},
						{Name: "hours", Value: "h"},
						{Name: "days", Value: "d"},
					}},
			}
		case moderation.CmdBan, moderation.CmdUnban:
			ac.Options = []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "ids", Description: "User ids or mentions separated by spaces", Required: true},
			}
		}
		out = append(out, ac)
	}
	return out
}

func (a *Adapter) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	ctx, h := a.runContext()
	if h == nil {
		return
	}
	cmd := interactionCommand(i.Interaction)
	if cmd.Name != moderation.CmdHelp && !hasBanPermission(memberPermissions(i.Interaction)) {
		a.respond(s, i.Interaction, deniedText)
		return
	}

	// Bans can outlast the initial response window, so acknowledge first.
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		a.log.Warn("interaction ack failed", logx.String("cmd", cmd.Name), logx.Err(err))
		return
	}

	chunks := transport.SplitText(h.Handle(ctx, cmd), textLimit)
	if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{Content: &chunks[0]}); err != nil {
		a.log.Warn("interaction reply failed", logx.String("cmd", cmd.Name), logx.Err(err))
		return
	}
	for _, c := range chunks[1:] {
		if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: c}); err != nil {
			a.log.Warn("interaction followup failed", logx.String("cmd", cmd.Name), logx.Err(err))
			return
		}
	}
}

func (a *Adapter) respond(s *discordgo.Session, i *discordgo.Interaction, text string) {
	err := s.InteractionRespond(i, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{Content: text, Flags: discordgo.MessageFlagsEphemeral},
	})
	if err != nil {
		a.log.Warn("interaction respond failed", logx.Err(err))
	}
}

func (a *Adapter) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	name, args, ok := parsePrefixed(m.Content, a.currentPrefix())
	if !ok || !moderation.Known(name) {
		return
	}
	ctx, h := a.runContext()
	if h == nil {
		return
	}

	cmd := moderation.Command{
		Name:     moderation.CanonicalName(name),
		Args:     args,
		ScopeID:  m.GuildID,
		Actor:    moderation.Actor{ID: m.Author.ID, Name: m.Author.Username},
		Platform: "discord",
	}
	if ref := m.ReferencedMessage; ref != nil && ref.Author != nil && !ref.Author.Bot {
		cmd.ReplyToID = ref.Author.ID
	}

	reply := deniedText
	if cmd.Name == moderation.CmdHelp {
		reply = h.Handle(ctx, cmd)
	} else if perms, err := s.UserChannelPermissions(m.Author.ID, m.ChannelID); err != nil {
		a.log.Warn("permission lookup failed", logx.String("user", m.Author.ID), logx.Err(err))
	} else if hasBanPermission(perms) {
		reply = h.Handle(ctx, cmd)
	}

	for _, c := range transport.SplitText(reply, textLimit) {
		if _, err := s.ChannelMessageSendReply(m.ChannelID, c, m.Reference()); err != nil {
			a.log.Warn("reply failed", logx.String("channel", m.ChannelID), logx.Err(err))
			return
		}
	}
}

func interactionCommand(i *discordgo.Interaction) moderation.Command {
	data := i.ApplicationCommandData()
	cmd := moderation.Command{
		Name:     moderation.CanonicalName(data.Name),
		ScopeID:  i.GuildID,
		Platform: "discord",
	}
	if u := interactionUser(i); u != nil {
		cmd.Actor = moderation.Actor{ID: u.ID, Name: u.Username}
	}

	opts := make(map[string]string, len(data.Options))
	for _, o := range data.Options {
		opts[o.Name] = optionString(o)
	}
	switch cmd.Name {
	case moderation.CmdTempBan:
		cmd.Args = []string{opts["user"], opts["value"], opts["unit"]}
	case moderation.CmdBan, moderation.CmdUnban:
		cmd.Args = moderation.SplitIDs(opts["ids"])
	}
	return cmd
}

func optionString(o *discordgo.ApplicationCommandInteractionDataOption) string {
	switch o.Type {
	case discordgo.ApplicationCommandOptionInteger:
		return strconv.FormatInt(o.IntValue(), 10)
	case discordgo.ApplicationCommandOptionString:
		return o.StringValue()
	default:
		// User options carry the snowflake as a string.
		return fmt.Sprint(o.Value)
	}
}

func interactionUser(i *discordgo.Interaction) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func memberPermissions(i *discordgo.Interaction) int64 {
	if i.Member == nil {
		return 0
	}
	return i.Member.Permissions
}

func hasBanPermission(perms int64) bool {
	return perms&discordgo.PermissionAdministrator != 0 || perms&discordgo.PermissionBanMembers != 0
}

// parsePrefixed splits "?tempban 123 10 m" into its name and arguments.
func parsePrefixed(content, prefix string) (string, []string, bool) {
	if prefix == "" {
		return "", nil, false
	}
	rest, ok := strings.CutPrefix(strings.TrimSpace(content), prefix)
	if !ok {
		return "", nil, false
	}
	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return "", nil, false
	}
	return fields[0], fields[1:], true
}
