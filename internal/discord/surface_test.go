package discord

import (
	"errors"
	"strings"
	"testing"

	"github.com/bloxmod/modbridge/internal/commands"
	"github.com/bwmarrin/discordgo"
)

func TestCommandDefinitions(t *testing.T) {
	defs := commandDefinitions()

	byName := make(map[string]*discordgo.ApplicationCommand, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	for _, name := range []string{"ban", "tempban", "unban", "list", "clear", "addadmin"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("missing command %q", name)
		}
	}

	required := func(cmd string, opt string) bool {
		for _, o := range byName[cmd].Options {
			if o.Name == opt {
				return o.Required
			}
		}
		t.Fatalf("%s has no option %q", cmd, opt)
		return false
	}
	if !required("ban", "user_id") || required("ban", "reason") {
		t.Error("ban: user_id must be required, reason optional")
	}
	if !required("tempban", "minutes") {
		t.Error("tempban: minutes must be required")
	}
	if !required("addadmin", "discord_user_id") {
		t.Error("addadmin: discord_user_id must be required")
	}
}

func TestCallerID(t *testing.T) {
	guild := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Member: &discordgo.Member{User: &discordgo.User{ID: "guild-caller"}},
	}}
	if got := callerID(guild); got != "guild-caller" {
		t.Errorf("guild interaction: %q", got)
	}

	dm := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		User: &discordgo.User{ID: "dm-caller"},
	}}
	if got := callerID(dm); got != "dm-caller" {
		t.Errorf("dm interaction: %q", got)
	}

	empty := &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{}}
	if got := callerID(empty); got != "" {
		t.Errorf("bare interaction: %q", got)
	}
}

func TestDenialMapping(t *testing.T) {
	resp := denial(commands.ErrUnauthorized)
	if !strings.Contains(resp.Text, "not allowed") || !resp.Ephemeral {
		t.Errorf("unauthorized: %+v", resp)
	}

	resp = denial(commands.ErrInvalidArgument)
	if resp.Text != "Invalid ID." || !resp.Ephemeral {
		t.Errorf("invalid argument: %+v", resp)
	}

	resp = denial(errors.New("store closed"))
	if !strings.Contains(resp.Text, "store closed") || !resp.Ephemeral {
		t.Errorf("internal error: %+v", resp)
	}
}

func TestOptionHelpers(t *testing.T) {
	opts := optionMap([]*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "user_id", Type: discordgo.ApplicationCommandOptionString, Value: "42"},
		{Name: "minutes", Type: discordgo.ApplicationCommandOptionInteger, Value: float64(30)},
	})

	if got := optString(opts, "user_id"); got != "42" {
		t.Errorf("optString: %q", got)
	}
	if got := optInt(opts, "minutes"); got != 30 {
		t.Errorf("optInt: %d", got)
	}

	// Absent options fall back to zero values, matching optional arguments.
	if got := optString(opts, "reason"); got != "" {
		t.Errorf("absent string: %q", got)
	}
	if got := optInt(opts, "missing"); got != 0 {
		t.Errorf("absent int: %d", got)
	}
}
