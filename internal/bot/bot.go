package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildpulse/internal/config"
	"guildpulse/internal/engagement"
	"guildpulse/internal/giveaway"
	"guildpulse/internal/moderation"
	"guildpulse/internal/platform"
	"guildpulse/internal/storage"
)

type Bot struct {
	cfg        config.Config
	logger     *zap.Logger
	store      *storage.Store
	session    *discordgo.Session
	client     platform.Client
	engagement *engagement.Engine
	giveaways  *giveaway.Manager
	moderation *moderation.Service
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessageReactions |
		discordgo.IntentsMessageContent

	client := platform.NewSession(session)
	engagementEngine := engagement.NewEngine(store, cfg.Roles, cfg.Engagement, logger)

	b := &Bot{
		cfg:        cfg,
		logger:     logger,
		store:      store,
		session:    session,
		client:     client,
		engagement: engagementEngine,
		giveaways:  giveaway.NewManager(store, client, engagementEngine, cfg.Giveaways, logger),
		moderation: moderation.NewService(store, client, cfg.Roles.Muted, logger),
	}
	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberUpdate)
	b.session.AddHandler(b.onInteractionCreate)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	ctx := context.Background()
	if err := b.giveaways.Resume(ctx); err != nil {
		return err
	}
	if err := b.moderation.Resume(ctx); err != nil {
		return err
	}
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	b.giveaways.Stop()
	b.moderation.Stop()
	if b.session != nil {
		_ = b.session.Close()
	}
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("discord ready", zap.String("user", session.State.User.Username))
}

func (b *Bot) onMessageCreate(session *discordgo.Session, msg *discordgo.MessageCreate) {
	if msg.Author == nil || msg.Author.Bot {
		return
	}
	if msg.GuildID == "" {
		return
	}

	ctx := context.Background()
	member := b.memberView(msg.GuildID, msg.Author.ID, msg.Member)
	tier := b.engagement.TierOf(member)

	result, err := b.engagement.HandleMessage(ctx, msg.GuildID, msg.Author.ID, msg.Content, tier)
	if err != nil {
		b.logger.Warn("xp handling failed",
			zap.String("user_id", msg.Author.ID), zap.Error(err))
		return
	}
	if !result.LeveledUp {
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "Level up!",
		Description: fmt.Sprintf("<@%s> reached **level %d**!", msg.Author.ID, result.NewLevel),
		Color:       b.cfg.Giveaways.EmbedColor,
	}
	if _, err := session.ChannelMessageSendEmbed(msg.ChannelID, embed); err != nil {
		b.logger.Debug("level up announcement failed", zap.Error(err))
	}
	if result.PerkRole != "" {
		if err := b.client.AddRole(msg.GuildID, msg.Author.ID, result.PerkRole); err != nil {
			b.logger.Warn("perk role grant failed",
				zap.String("user_id", msg.Author.ID),
				zap.String("role_id", result.PerkRole),
				zap.Error(err))
		}
	}
}

// onGuildMemberUpdate keeps the booster role in sync with the member's
// boost status.
func (b *Bot) onGuildMemberUpdate(session *discordgo.Session, event *discordgo.GuildMemberUpdate) {
	if event.Member == nil || event.Member.User == nil || b.cfg.Roles.ServerBooster == "" {
		return
	}
	userID := event.Member.User.ID
	boosting := event.Member.PremiumSince != nil
	hasRole := false
	for _, roleID := range event.Member.Roles {
		if roleID == b.cfg.Roles.ServerBooster {
			hasRole = true
			break
		}
	}

	switch {
	case boosting && !hasRole:
		if err := b.client.AddRole(event.GuildID, userID, b.cfg.Roles.ServerBooster); err != nil {
			b.logger.Warn("booster role grant failed", zap.String("user_id", userID), zap.Error(err))
		}
	case !boosting && hasRole:
		if err := b.client.RemoveRole(event.GuildID, userID, b.cfg.Roles.ServerBooster); err != nil {
			b.logger.Warn("booster role removal failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
}

// memberView builds the platform view of a member, falling back to a
// REST lookup when the gateway payload has no member attached.
func (b *Bot) memberView(guildID, userID string, gatewayMember *discordgo.Member) *platform.Member {
	if gatewayMember != nil {
		return &platform.Member{
			ID:       userID,
			Roles:    gatewayMember.Roles,
			Boosting: gatewayMember.PremiumSince != nil,
		}
	}
	member, err := b.client.GuildMember(guildID, userID)
	if err != nil {
		return &platform.Member{ID: userID}
	}
	return member
}

func (b *Bot) respond(session *discordgo.Session, interaction *discordgo.InteractionCreate, content string, ephemeral bool) {
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   flags,
		},
	})
}

func (b *Bot) respondEmbed(session *discordgo.Session, interaction *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	if embed == nil {
		b.respond(session, interaction, "No response available.", ephemeral)
		return
	}
	flags := discordgo.MessageFlags(0)
	if ephemeral {
		flags = discordgo.MessageFlagsEphemeral
	}
	_ = session.InteractionRespond(interaction.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  flags,
		},
	})
}
