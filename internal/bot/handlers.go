package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildpulse/internal/giveaway"
	"guildpulse/internal/moderation"
	"guildpulse/internal/utils"
)

func (b *Bot) onInteractionCreate(session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	if interaction.Type != discordgo.InteractionApplicationCommand {
		return
	}
	if interaction.GuildID == "" {
		b.respond(session, interaction, "This command only works in a server.", true)
		return
	}

	ctx := context.Background()
	data := interaction.ApplicationCommandData()
	options := optionMap(data.Options)

	switch data.Name {
	case "giveaway":
		b.handleGiveawayCreate(ctx, session, interaction, options)
	case "giveaway-end":
		b.handleGiveawayEnd(ctx, session, interaction, options)
	case "giveaway-reroll":
		b.handleGiveawayReroll(ctx, session, interaction, options)
	case "giveaway-list":
		b.handleGiveawayList(ctx, session, interaction)
	case "rank":
		b.handleRank(ctx, session, interaction, options)
	case "leaderboard":
		b.handleLeaderboard(ctx, session, interaction)
	case "warn":
		b.handleWarn(ctx, session, interaction, options)
	case "warnings":
		b.handleWarnings(ctx, session, interaction, options)
	case "removewarning":
		b.handleRemoveWarning(ctx, session, interaction, options)
	case "clearwarnings":
		b.handleClearWarnings(ctx, session, interaction, options)
	case "mute":
		b.handleMute(ctx, session, interaction, options)
	case "unmute":
		b.handleUnmute(ctx, session, interaction, options)
	case "unban":
		b.handleUnban(ctx, session, interaction, options)
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func (b *Bot) handleGiveawayCreate(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	duration, err := utils.ParseDuration(options["duration"].StringValue())
	if err != nil {
		b.respond(session, interaction, "Could not parse the duration. Try something like `1 day` or `2 hours`.", true)
		return
	}

	spec := giveaway.CreateSpec{
		ChannelID:   interaction.ChannelID,
		GuildID:     interaction.GuildID,
		Prize:       options["prize"].StringValue(),
		Duration:    duration,
		WinnerCount: int(options["winners"].IntValue()),
		MinMessages: b.cfg.Giveaways.MinMessages,
	}
	if opt, ok := options["channel"]; ok {
		if channel := opt.ChannelValue(session); channel != nil {
			spec.ChannelID = channel.ID
		}
	}
	if opt, ok := options["host"]; ok {
		spec.Host = opt.UserValue(session).ID
	}
	if opt, ok := options["required_role"]; ok {
		spec.RequiredRole = opt.RoleValue(session, interaction.GuildID).ID
	}
	if opt, ok := options["blacklisted_role"]; ok {
		spec.BlacklistedRole = opt.RoleValue(session, interaction.GuildID).ID
	}
	if opt, ok := options["min_messages"]; ok {
		spec.MinMessages = int(opt.IntValue())
	}
	if opt, ok := options["image"]; ok {
		spec.ImageURL = opt.StringValue()
	}
	if opt, ok := options["thumbnail"]; ok {
		spec.ThumbnailURL = opt.StringValue()
	}
	if opt, ok := options["color"]; ok {
		color, err := parseHexColor(opt.StringValue())
		if err != nil {
			b.respond(session, interaction, "Could not parse the color. Use hex like `#00FF00`.", true)
			return
		}
		spec.Color = color
	}
	if opt, ok := options["rig"]; ok {
		spec.RiggedWinner = opt.UserValue(session).ID
	}

	id, err := b.giveaways.Create(ctx, spec)
	if err != nil {
		b.respond(session, interaction, "Could not start the giveaway: "+publicError(err), true)
		return
	}
	// The rig option is deliberately never echoed back.
	b.respond(session, interaction, fmt.Sprintf("Giveaway `%s` started in <#%s>.", id, spec.ChannelID), true)
}

func (b *Bot) handleGiveawayEnd(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	id := options["id"].StringValue()
	err := b.giveaways.ForceEnd(ctx, id)
	switch {
	case errors.Is(err, giveaway.ErrNotFound):
		b.respond(session, interaction, "No giveaway with that id.", true)
	case errors.Is(err, giveaway.ErrAlreadyEnded):
		b.respond(session, interaction, "That giveaway already ended.", true)
	case err != nil:
		b.logger.Warn("giveaway end failed", zap.String("giveaway_id", id), zap.Error(err))
		b.respond(session, interaction, "Ending the giveaway failed. Check the logs.", true)
	default:
		b.respond(session, interaction, "Giveaway ended.", true)
	}
}

func (b *Bot) handleGiveawayReroll(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	id := options["id"].StringValue()
	err := b.giveaways.Reroll(ctx, id)
	switch {
	case errors.Is(err, giveaway.ErrNotFound):
		b.respond(session, interaction, "No giveaway with that id.", true)
	case errors.Is(err, giveaway.ErrNotEnded):
		b.respond(session, interaction, "That giveaway is still running. End it first.", true)
	case err != nil:
		b.logger.Warn("giveaway reroll failed", zap.String("giveaway_id", id), zap.Error(err))
		b.respond(session, interaction, "Reroll failed. Check the logs.", true)
	default:
		b.respond(session, interaction, "Rerolled.", true)
	}
}

func (b *Bot) handleGiveawayList(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	summaries, err := b.giveaways.ListActive(ctx)
	if err != nil {
		b.respond(session, interaction, "Could not load giveaways.", true)
		return
	}
	if len(summaries) == 0 {
		b.respond(session, interaction, "No giveaways are running.", true)
		return
	}

	lines := make([]string, 0, len(summaries))
	for _, summary := range summaries {
		lines = append(lines, fmt.Sprintf("`%s` **%s** in <#%s> — %d winner(s), ends <t:%d:R>",
			summary.ID, summary.Prize, summary.ChannelID, summary.WinnerCount, summary.EndsAt.Unix()))
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Running giveaways",
		Description: strings.Join(lines, "\n"),
		Color:       b.cfg.Giveaways.EmbedColor,
	}
	b.respondEmbed(session, interaction, embed, true)
}

func (b *Bot) handleRank(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	userID := ""
	if opt, ok := options["user"]; ok {
		userID = opt.UserValue(session).ID
	}
	if userID == "" && interaction.Member != nil && interaction.Member.User != nil {
		userID = interaction.Member.User.ID
	}
	if userID == "" {
		b.respond(session, interaction, "Could not resolve the user.", true)
		return
	}

	progress, err := b.engagement.Progress(ctx, interaction.GuildID, userID)
	if err != nil {
		b.respond(session, interaction, "Could not load rank data.", true)
		return
	}
	embed := &discordgo.MessageEmbed{
		Title: "Rank",
		Color: b.cfg.Giveaways.EmbedColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: "<@" + userID + ">", Inline: true},
			{Name: "Level", Value: fmt.Sprintf("%d", progress.Level), Inline: true},
			{Name: "XP", Value: fmt.Sprintf("%d / %d", progress.XP, progress.Needed), Inline: true},
			{Name: "Messages", Value: fmt.Sprintf("%d", progress.Messages), Inline: true},
		},
	}
	b.respondEmbed(session, interaction, embed, false)
}

func (b *Bot) handleLeaderboard(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate) {
	top, err := b.engagement.Leaderboard(ctx, interaction.GuildID, 10)
	if err != nil {
		b.respond(session, interaction, "Could not load the leaderboard.", true)
		return
	}
	if len(top) == 0 {
		b.respond(session, interaction, "Nobody has earned XP yet.", true)
		return
	}

	lines := make([]string, 0, len(top))
	for i, rec := range top {
		lines = append(lines, fmt.Sprintf("**%d.** <@%s> — level %d, %d XP", i+1, rec.UserID, rec.Level, rec.XP))
	}
	embed := &discordgo.MessageEmbed{
		Title:       "Leaderboard",
		Description: strings.Join(lines, "\n"),
		Color:       b.cfg.Giveaways.EmbedColor,
	}
	b.respondEmbed(session, interaction, embed, false)
}

func (b *Bot) handleWarn(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := options["user"].UserValue(session)
	reason := options["reason"].StringValue()
	moderator := ""
	if interaction.Member != nil && interaction.Member.User != nil {
		moderator = interaction.Member.User.ID
	}

	result, err := b.moderation.Warn(ctx, interaction.GuildID, user.ID, moderator, reason)
	if err != nil {
		b.logger.Warn("warn failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Could not record the warning.", true)
		return
	}

	message := fmt.Sprintf("Warned <@%s> (`%s`). They now have **%d** warning(s).", user.ID, result.WarningID, result.Count)
	switch result.Action {
	case moderation.ActionMute:
		message += fmt.Sprintf(" Automatic mute for %s applied.", formatDays(result.Duration))
	case moderation.ActionTempban:
		message += fmt.Sprintf(" Automatic temporary ban for %s applied.", formatDays(result.Duration))
	case moderation.ActionBan:
		message += " Automatic permanent ban applied."
	}
	b.respond(session, interaction, message, false)
}

func (b *Bot) handleWarnings(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := options["user"].UserValue(session)
	warnings, err := b.moderation.Warnings(ctx, interaction.GuildID, user.ID)
	if err != nil {
		b.respond(session, interaction, "Could not load warnings.", true)
		return
	}
	if len(warnings) == 0 {
		b.respond(session, interaction, fmt.Sprintf("<@%s> has no warnings.", user.ID), true)
		return
	}

	lines := make([]string, 0, len(warnings))
	for _, warning := range warnings {
		lines = append(lines, fmt.Sprintf("`%s` <t:%d:d> by <@%s>: %s",
			warning.ID, warning.CreatedAt.Unix(), warning.Moderator, warning.Reason))
	}
	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Warnings (%d)", len(warnings)),
		Description: strings.Join(lines, "\n"),
		Color:       b.cfg.Giveaways.EndedColor,
	}
	b.respondEmbed(session, interaction, embed, true)
}

func (b *Bot) handleRemoveWarning(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	id := options["id"].StringValue()
	removed, err := b.moderation.RemoveWarning(ctx, interaction.GuildID, id)
	if err != nil {
		b.respond(session, interaction, "Could not remove the warning.", true)
		return
	}
	if !removed {
		b.respond(session, interaction, "No warning with that id.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Warning `%s` removed.", id), true)
}

func (b *Bot) handleClearWarnings(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := options["user"].UserValue(session)
	cleared, err := b.moderation.ClearWarnings(ctx, interaction.GuildID, user.ID)
	if err != nil {
		b.respond(session, interaction, "Could not clear warnings.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Cleared %d warning(s) for <@%s>.", cleared, user.ID), true)
}

func (b *Bot) handleMute(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := options["user"].UserValue(session)
	duration, err := utils.ParseDuration(options["duration"].StringValue())
	if err != nil {
		b.respond(session, interaction, "Could not parse the duration. Try something like `1 day` or `2 hours`.", true)
		return
	}
	reason := "muted by moderator"
	if opt, ok := options["reason"]; ok {
		reason = opt.StringValue()
	}

	if err := b.moderation.Mute(ctx, interaction.GuildID, user.ID, duration, reason); err != nil {
		b.respond(session, interaction, "Could not mute the user.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Muted <@%s> for %s.", user.ID, formatDays(duration)), false)
}

func (b *Bot) handleUnmute(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	user := options["user"].UserValue(session)
	if err := b.moderation.Unmute(ctx, interaction.GuildID, user.ID); err != nil {
		b.logger.Warn("unmute failed", zap.String("user_id", user.ID), zap.Error(err))
		b.respond(session, interaction, "Could not unmute the user.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Unmuted <@%s>.", user.ID), false)
}

func (b *Bot) handleUnban(ctx context.Context, session *discordgo.Session, interaction *discordgo.InteractionCreate, options map[string]*discordgo.ApplicationCommandInteractionDataOption) {
	userID := options["user_id"].StringValue()
	if err := b.moderation.Unban(ctx, interaction.GuildID, userID); err != nil {
		b.logger.Warn("unban failed", zap.String("user_id", userID), zap.Error(err))
		b.respond(session, interaction, "Could not unban that user.", true)
		return
	}
	b.respond(session, interaction, fmt.Sprintf("Unbanned <@%s>.", userID), false)
}

// publicError strips the package prefix from validation errors before
// showing them to a moderator.
func publicError(err error) string {
	return strings.TrimPrefix(err.Error(), "giveaway: ")
}

func parseHexColor(value string) (int, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	color, err := strconv.ParseInt(value, 16, 32)
	if err != nil || color < 0 || color > 0xFFFFFF {
		return 0, fmt.Errorf("invalid color %q", value)
	}
	return int(color), nil
}

func formatDays(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days >= 1 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return d.String()
}
