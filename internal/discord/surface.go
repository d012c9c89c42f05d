// Package discord adapts the command surface onto the Discord gateway:
// slash-command registration, interaction dispatch, and the follow-up
// message listener feeding the pending-reason flow.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/bloxmod/modbridge/internal/commands"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Surface is the Discord front-end for the command handler.
type Surface struct {
	session *discordgo.Session
	handler *commands.Handler
	guildID string
	log     zerolog.Logger
}

// New builds a Surface around a fresh gateway session.
func New(token, guildID string, handler *commands.Handler, log zerolog.Logger) (*Surface, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	s := &Surface{
		session: session,
		handler: handler,
		guildID: guildID,
		log:     log,
	}
	session.AddHandler(s.onInteraction)
	session.AddHandler(s.onMessage)
	return s, nil
}

// Run opens the gateway, registers the slash commands, and blocks until ctx
// is cancelled.
func (s *Surface) Run(ctx context.Context) error {
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("open discord gateway: %w", err)
	}
	defer func() { _ = s.session.Close() }()

	appID := s.session.State.User.ID
	if _, err := s.session.ApplicationCommandBulkOverwrite(appID, s.guildID, commandDefinitions()); err != nil {
		return fmt.Errorf("register slash commands: %w", err)
	}
	s.log.Info().Str("user", s.session.State.User.Username).Str("guild", s.guildID).
		Msg("discord surface ready")

	<-ctx.Done()
	return nil
}

// commandDefinitions declares the slash commands registered on startup.
func commandDefinitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        "ban",
			Description: "Permanently ban a game user. Owner/Admin only.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "Game user id", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason (optional)"},
			},
		},
		{
			Name:        "tempban",
			Description: "Temporarily ban a game user. Owner/Admin only.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "Game user id", Required: true},
				{Type: discordgo.ApplicationCommandOptionInteger, Name: "minutes", Description: "Minutes", Required: true},
				{Type: discordgo.ApplicationCommandOptionString, Name: "reason", Description: "Reason (optional)"},
			},
		},
		{
			Name:        "unban",
			Description: "Unban a game user. Owner/Admin only.",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "user_id", Description: "Game user id", Required: true},
			},
		},
		{
			Name:        "list",
			Description: "List banned users.",
		},
		{
			Name:        "clear",
			Description: "Clear all bans.",
		},
		{
			Name:        "addadmin",
			Description: "Add an admin (Owner only).",
			Options: []*discordgo.ApplicationCommandOption{
				{Type: discordgo.ApplicationCommandOptionString, Name: "discord_user_id", Description: "Discord user id to add as admin", Required: true},
			},
		},
	}
}

func (s *Surface) onInteraction(session *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	data := i.ApplicationCommandData()
	caller := callerID(i)
	opts := optionMap(data.Options)
	ctx := context.Background()

	var resp commands.Response
	var err error
	switch data.Name {
	case "ban":
		resp, err = s.handler.Ban(ctx, caller, optString(opts, "user_id"), optString(opts, "reason"))
	case "tempban":
		resp, err = s.handler.TempBan(ctx, caller, optString(opts, "user_id"), optInt(opts, "minutes"), optString(opts, "reason"))
	case "unban":
		resp, err = s.handler.Unban(ctx, caller, optString(opts, "user_id"))
	case "list":
		resp, err = s.handler.List(ctx, caller)
	case "clear":
		resp, err = s.handler.Clear(ctx, caller)
	case "addadmin":
		resp, err = s.handler.AddAdmin(ctx, caller, optString(opts, "discord_user_id"))
	default:
		return
	}

	if err != nil {
		s.respond(session, i, denial(err))
		return
	}
	s.respond(session, i, resp)
}

// onMessage feeds every non-bot message into the pending-reason flow. A
// message that consumes a pending action never reaches command dispatch.
func (s *Surface) onMessage(session *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	resp, consumed, err := s.handler.HandleMessage(context.Background(), m.Author.ID, m.Content)
	if !consumed {
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("author", m.Author.ID).Msg("deferred ban failed")
		_, _ = session.ChannelMessageSend(m.ChannelID, "Ban failed: "+err.Error())
		return
	}
	if _, err := session.ChannelMessageSend(m.ChannelID, resp.Text); err != nil {
		s.log.Warn().Err(err).Msg("send reply failed")
	}
}

func (s *Surface) respond(session *discordgo.Session, i *discordgo.InteractionCreate, resp commands.Response) {
	data := &discordgo.InteractionResponseData{Content: resp.Text}
	if resp.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	if resp.File != nil {
		data.Files = []*discordgo.File{{
			Name:        resp.File.Name,
			ContentType: "text/plain",
			Reader:      bytes.NewReader(resp.File.Data),
		}}
	}
	err := session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("interaction respond failed")
	}
}

// denial renders an authorization or validation failure as an ephemeral notice.
func denial(err error) commands.Response {
	switch {
	case errors.Is(err, commands.ErrUnauthorized):
		return commands.Response{Text: "❌ You are not allowed.", Ephemeral: true}
	case errors.Is(err, commands.ErrInvalidArgument):
		return commands.Response{Text: "Invalid ID.", Ephemeral: true}
	default:
		return commands.Response{Text: "Command failed: " + err.Error(), Ephemeral: true}
	}
}

// callerID extracts the invoking user id from a guild or DM interaction.
func callerID(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}

func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

func optString(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if o, ok := m[name]; ok {
		return o.StringValue()
	}
	return ""
}

func optInt(m map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) int {
	if o, ok := m[name]; ok {
		return int(o.IntValue())
	}
	return 0
}
