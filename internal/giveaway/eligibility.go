package giveaway

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"guildpulse/internal/platform"
	"guildpulse/internal/storage"
)

// eligibleEntrants filters the raw reaction users down to distinct
// eligible entrants with their weights. The rigged winner bypasses the
// message-count gate but is held to the same role gates as everyone else.
func (m *Manager) eligibleEntrants(ctx context.Context, rec storage.GiveawayRecord, users []platform.User) []Entrant {
	var entrants []Entrant
	seen := make(map[string]bool, len(users))
	for _, user := range users {
		if user.Bot || seen[user.ID] {
			continue
		}
		seen[user.ID] = true

		member, err := m.client.GuildMember(rec.GuildID, user.ID)
		if err != nil {
			if !errors.Is(err, platform.ErrNotFound) {
				m.logger.Warn("member lookup failed",
					zap.String("giveaway_id", rec.ID),
					zap.String("user_id", user.ID),
					zap.Error(err))
			}
			continue
		}

		if rec.RequiredRole != "" && !member.HasRole(rec.RequiredRole) {
			continue
		}
		if rec.BlacklistedRole != "" && member.HasRole(rec.BlacklistedRole) {
			continue
		}

		rigged := rec.RiggedWinner != "" && user.ID == rec.RiggedWinner
		if rec.MinMessages > 0 && !rigged {
			if m.state.MessageCount(ctx, rec.GuildID, user.ID) < rec.MinMessages {
				continue
			}
		}

		weight := EntryWeight(m.state.TierOf(member), m.state.Level(ctx, rec.GuildID, user.ID), m.cfg.MaxEntryWeight)
		entrants = append(entrants, Entrant{UserID: user.ID, Username: member.Username, Weight: weight})
	}
	return entrants
}
