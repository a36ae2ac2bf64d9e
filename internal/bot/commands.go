package bot

import "github.com/bwmarrin/discordgo"

var (
	manageGuildPerm = int64(discordgo.PermissionManageServer)
	moderatePerm    = int64(discordgo.PermissionModerateMembers)
	banPerm         = int64(discordgo.PermissionBanMembers)
)

func (b *Bot) registerCommands() error {
	commands := []*discordgo.ApplicationCommand{
		{
			Name:                     "giveaway",
			Description:              "Start a giveaway",
			DefaultMemberPermissions: &manageGuildPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "prize",
					Description: "What is being given away",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "duration",
					Description: "How long it runs, e.g. 1 day or 2 hours",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "winners",
					Description: "Number of winners",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionChannel,
					Name:        "channel",
					Description: "Channel to post in (default: here)",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "host",
					Description: "Giveaway host",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "required_role",
					Description: "Role required to enter",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionRole,
					Name:        "blacklisted_role",
					Description: "Role excluded from entering",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "min_messages",
					Description: "Minimum tracked messages to enter",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "image",
					Description: "Image URL for the embed",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "thumbnail",
					Description: "Thumbnail URL for the embed",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "color",
					Description: "Embed color as hex, e.g. #00FF00",
					Required:    false,
				},
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "rig",
					Description: "Guaranteed winner (kept secret)",
					Required:    false,
				},
			},
		},
		{
			Name:                     "giveaway-end",
			Description:              "End a giveaway early",
			DefaultMemberPermissions: &manageGuildPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "Giveaway message id",
					Required:    true,
				},
			},
		},
		{
			Name:                     "giveaway-reroll",
			Description:              "Reroll winners for an ended giveaway",
			DefaultMemberPermissions: &manageGuildPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "Giveaway message id",
					Required:    true,
				},
			},
		},
		{
			Name:                     "giveaway-list",
			Description:              "List running giveaways",
			DefaultMemberPermissions: &manageGuildPerm,
		},
		{
			Name:        "rank",
			Description: "Show level and XP progress",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to look up (default: you)",
					Required:    false,
				},
			},
		},
		{
			Name:        "leaderboard",
			Description: "Show the server XP leaderboard",
		},
		{
			Name:                     "warn",
			Description:              "Warn a user",
			DefaultMemberPermissions: &moderatePerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to warn",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Reason for the warning",
					Required:    true,
				},
			},
		},
		{
			Name:                     "warnings",
			Description:              "List a user's warnings",
			DefaultMemberPermissions: &moderatePerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to look up",
					Required:    true,
				},
			},
		},
		{
			Name:                     "removewarning",
			Description:              "Remove a single warning by id",
			DefaultMemberPermissions: &moderatePerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "id",
					Description: "Warning id",
					Required:    true,
				},
			},
		},
		{
			Name:                     "clearwarnings",
			Description:              "Clear all warnings for a user",
			DefaultMemberPermissions: &moderatePerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to clear",
					Required:    true,
				},
			},
		},
		{
			Name:                     "mute",
			Description:              "Mute a user for a duration",
			DefaultMemberPermissions: &moderatePerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to mute",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "duration",
					Description: "e.g. 1 day or 2 hours",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "reason",
					Description: "Reason for the mute",
					Required:    false,
				},
			},
		},
		{
			Name:                     "unmute",
			Description:              "Unmute a user",
			DefaultMemberPermissions: &moderatePerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionUser,
					Name:        "user",
					Description: "User to unmute",
					Required:    true,
				},
			},
		},
		{
			Name:                     "unban",
			Description:              "Unban a user by id",
			DefaultMemberPermissions: &banPerm,
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "user_id",
					Description: "User id to unban",
					Required:    true,
				},
			},
		},
	}

	appID := b.session.State.User.ID
	existing, err := b.session.ApplicationCommands(appID, "")
	if err != nil {
		for _, cmd := range commands {
			if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
				return err
			}
		}
		return nil
	}

	existingByName := make(map[string]*discordgo.ApplicationCommand)
	for _, cmd := range existing {
		existingByName[cmd.Name] = cmd
	}

	desired := make(map[string]struct{})
	for _, cmd := range commands {
		desired[cmd.Name] = struct{}{}
		if current, ok := existingByName[cmd.Name]; ok {
			if _, err := b.session.ApplicationCommandEdit(appID, "", current.ID, cmd); err != nil {
				return err
			}
			continue
		}
		if _, err := b.session.ApplicationCommandCreate(appID, "", cmd); err != nil {
			return err
		}
	}

	for _, cmd := range existing {
		if _, ok := desired[cmd.Name]; ok {
			continue
		}
		_ = b.session.ApplicationCommandDelete(appID, "", cmd.ID)
	}
	return nil
}
