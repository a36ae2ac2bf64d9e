package giveaway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"guildpulse/internal/config"
	"guildpulse/internal/platform"
	"guildpulse/internal/storage"
)

// Manager owns the giveaway lifecycle: creation, timer scheduling, end
// processing, rerolls, and resume after restart. The ended flag in the
// store is the sole guard against double-processing; it is flipped and
// persisted under the manager mutex before any external action runs.
type Manager struct {
	store  *storage.Store
	client platform.Client
	state  EngagementState
	cfg    config.GiveawayConfig
	logger *zap.Logger
	clock  Clock

	mu     sync.Mutex
	timers map[string]Timer

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewManager(store *storage.Store, client platform.Client, state EngagementState, cfg config.GiveawayConfig, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		client: client,
		state:  state,
		cfg:    cfg,
		logger: logger,
		clock:  realClock{},
		timers: make(map[string]Timer),
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithClock replaces the scheduling clock. Used by tests.
func (m *Manager) WithClock(clock Clock) *Manager {
	m.clock = clock
	return m
}

// WithRand replaces the draw source. Used by tests.
func (m *Manager) WithRand(r *rand.Rand) *Manager {
	m.rand = r
	return m
}

// Create validates the spec, posts the giveaway message, persists the
// record, and schedules the end timer. It returns the giveaway id, which
// is the id of the posted message.
func (m *Manager) Create(ctx context.Context, spec CreateSpec) (string, error) {
	if strings.TrimSpace(spec.Prize) == "" {
		return "", errors.New("giveaway: prize is required")
	}
	if spec.Duration <= 0 {
		return "", errors.New("giveaway: duration must be positive")
	}
	if spec.WinnerCount < 1 || spec.WinnerCount > m.cfg.MaxWinners {
		return "", fmt.Errorf("giveaway: winner count must be between 1 and %d", m.cfg.MaxWinners)
	}

	endsAt := m.clock.Now().Add(spec.Duration)
	embed := m.activeEmbed(spec, endsAt)

	messageID, err := m.client.SendEmbed(spec.ChannelID, embed)
	if err != nil {
		return "", err
	}
	if err := m.client.AddReaction(spec.ChannelID, messageID, m.cfg.Emoji); err != nil {
		m.logger.Warn("failed to seed giveaway reaction",
			zap.String("giveaway_id", messageID), zap.Error(err))
	}

	rec := storage.GiveawayRecord{
		ID:              messageID,
		ChannelID:       spec.ChannelID,
		GuildID:         spec.GuildID,
		Prize:           spec.Prize,
		WinnerCount:     spec.WinnerCount,
		Host:            spec.Host,
		EndsAt:          endsAt,
		RequiredRole:    spec.RequiredRole,
		BlacklistedRole: spec.BlacklistedRole,
		RiggedWinner:    spec.RiggedWinner,
		MinMessages:     spec.MinMessages,
	}
	if err := m.store.UpsertGiveaway(ctx, rec); err != nil {
		return "", err
	}

	m.schedule(rec)
	m.logger.Info("giveaway created",
		zap.String("giveaway_id", messageID),
		zap.String("guild_id", spec.GuildID),
		zap.String("prize", spec.Prize),
		zap.Int("winners", spec.WinnerCount),
		zap.Time("ends_at", endsAt))
	return messageID, nil
}

// End transitions a giveaway to ended and runs winner selection. Safe to
// call concurrently; only the first caller processes, the rest get
// ErrAlreadyEnded.
func (m *Manager) End(ctx context.Context, id string) error {
	m.mu.Lock()
	rec, err := m.store.GetGiveaway(ctx, id)
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if rec.Ended {
		m.mu.Unlock()
		return ErrAlreadyEnded
	}
	rec.Ended = true
	if err := m.store.UpsertGiveaway(ctx, rec); err != nil {
		m.mu.Unlock()
		return err
	}
	if timer, ok := m.timers[id]; ok {
		timer.Stop()
		delete(m.timers, id)
	}
	m.mu.Unlock()

	return m.processEnd(ctx, rec, false)
}

// ForceEnd ends a giveaway before its timer fires.
func (m *Manager) ForceEnd(ctx context.Context, id string) error {
	return m.End(ctx, id)
}

// Reroll re-runs winner selection for an ended giveaway against a fresh
// reaction snapshot.
func (m *Manager) Reroll(ctx context.Context, id string) error {
	m.mu.Lock()
	rec, err := m.store.GetGiveaway(ctx, id)
	if err != nil {
		m.mu.Unlock()
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if !rec.Ended {
		m.mu.Unlock()
		return ErrNotEnded
	}
	m.mu.Unlock()

	return m.processEnd(ctx, rec, true)
}

// ListActive returns summaries of all giveaways still waiting to end.
// Rigged winners are deliberately absent from the summary.
func (m *Manager) ListActive(ctx context.Context) ([]Summary, error) {
	records, err := m.store.LoadActiveGiveaways(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]Summary, 0, len(records))
	for _, rec := range records {
		summaries = append(summaries, Summary{
			ID:          rec.ID,
			ChannelID:   rec.ChannelID,
			Prize:       rec.Prize,
			WinnerCount: rec.WinnerCount,
			Host:        rec.Host,
			EndsAt:      rec.EndsAt,
		})
	}
	return summaries, nil
}

// Resume reschedules every unended giveaway after a restart. Giveaways
// whose deadline already passed fire immediately.
func (m *Manager) Resume(ctx context.Context) error {
	records, err := m.store.LoadActiveGiveaways(ctx)
	if err != nil {
		return err
	}
	for _, rec := range records {
		m.schedule(rec)
	}
	if len(records) > 0 {
		m.logger.Info("resumed pending giveaways", zap.Int("count", len(records)))
	}
	return nil
}

// Stop cancels all pending timers. Giveaways stay unended in the store
// and are picked up again by Resume on the next start.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, timer := range m.timers {
		timer.Stop()
		delete(m.timers, id)
	}
}

func (m *Manager) schedule(rec storage.GiveawayRecord) {
	delay := rec.EndsAt.Sub(m.clock.Now())
	if delay < 0 {
		delay = 0
	}
	id := rec.ID
	m.mu.Lock()
	m.timers[id] = m.clock.AfterFunc(delay, func() {
		m.mu.Lock()
		delete(m.timers, id)
		m.mu.Unlock()
		if err := m.End(context.Background(), id); err != nil && !errors.Is(err, ErrAlreadyEnded) {
			m.logger.Error("scheduled end failed", zap.String("giveaway_id", id), zap.Error(err))
		}
	})
	m.mu.Unlock()
}

// processEnd runs selection and announcement. The record's ended flag is
// already persisted by the caller, so any failure here is terminal for
// this run; the operator rerolls if a retry is wanted.
func (m *Manager) processEnd(ctx context.Context, rec storage.GiveawayRecord, reroll bool) error {
	users, err := m.client.ReactionUsers(rec.ChannelID, rec.ID, m.cfg.Emoji)
	if err != nil {
		if errors.Is(err, platform.ErrNotFound) {
			m.logger.Warn("giveaway message gone, nothing to announce",
				zap.String("giveaway_id", rec.ID))
			return nil
		}
		m.logger.Error("failed to fetch giveaway reactions",
			zap.String("giveaway_id", rec.ID), zap.Error(err))
		return err
	}
	if len(users) == 0 {
		m.announceNoWinners(rec, "No valid entries!")
		return nil
	}

	entrants := m.eligibleEntrants(ctx, rec, users)
	if len(entrants) == 0 {
		m.announceNoWinners(rec, "No eligible entries!")
		return nil
	}

	winners := m.drawWinners(rec, entrants)
	m.announceWinners(rec, winners, reroll)
	return nil
}

// drawWinners selects up to rec.WinnerCount distinct entrants. A rigged
// winner present in the pool is taken first, with every weighted copy
// removed. The remainder is weighted sampling without replacement.
func (m *Manager) drawWinners(rec storage.GiveawayRecord, entrants []Entrant) []Entrant {
	pool := make([]Entrant, len(entrants))
	copy(pool, entrants)

	var winners []Entrant
	if rec.RiggedWinner != "" {
		for i, entrant := range pool {
			if entrant.UserID == rec.RiggedWinner {
				winners = append(winners, entrant)
				pool = append(pool[:i], pool[i+1:]...)
				break
			}
		}
	}

	for len(winners) < rec.WinnerCount && len(pool) > 0 {
		total := 0
		for _, entrant := range pool {
			total += entrant.Weight
		}
		m.randMu.Lock()
		roll := m.rand.Intn(total)
		m.randMu.Unlock()

		index := 0
		for i, entrant := range pool {
			roll -= entrant.Weight
			if roll < 0 {
				index = i
				break
			}
		}
		winners = append(winners, pool[index])
		pool = append(pool[:index], pool[index+1:]...)
	}
	return winners
}

func (m *Manager) announceNoWinners(rec storage.GiveawayRecord, reason string) {
	embed := m.endedEmbed(rec, reason)
	if err := m.client.EditEmbed(rec.ChannelID, rec.ID, embed); err != nil {
		m.logger.Warn("failed to edit giveaway embed",
			zap.String("giveaway_id", rec.ID), zap.Error(err))
	}
	if err := m.client.SendMessage(rec.ChannelID, fmt.Sprintf("%s The giveaway for **%s** has ended.", reason, rec.Prize)); err != nil {
		m.logger.Warn("failed to announce giveaway result",
			zap.String("giveaway_id", rec.ID), zap.Error(err))
	}
}

func (m *Manager) announceWinners(rec storage.GiveawayRecord, winners []Entrant, reroll bool) {
	mentions := make([]string, len(winners))
	for i, winner := range winners {
		mentions[i] = fmt.Sprintf("<@%s>", winner.UserID)
	}
	list := strings.Join(mentions, ", ")

	embed := m.endedEmbed(rec, "Winners: "+list)
	if err := m.client.EditEmbed(rec.ChannelID, rec.ID, embed); err != nil {
		m.logger.Warn("failed to edit giveaway embed",
			zap.String("giveaway_id", rec.ID), zap.Error(err))
	}

	announcement := fmt.Sprintf("Congratulations %s! You won **%s**!", list, rec.Prize)
	if reroll {
		announcement = fmt.Sprintf("The giveaway for **%s** was rerolled! New winner(s): %s", rec.Prize, list)
	}
	if err := m.client.SendMessage(rec.ChannelID, announcement); err != nil {
		m.logger.Warn("failed to announce giveaway winners",
			zap.String("giveaway_id", rec.ID), zap.Error(err))
	}

	for _, winner := range winners {
		dm := &discordgo.MessageEmbed{
			Title:       "You won a giveaway!",
			Description: fmt.Sprintf("You won **%s** in <#%s>. Congratulations!", rec.Prize, rec.ChannelID),
			Color:       m.cfg.EmbedColor,
		}
		if err := m.client.DMEmbed(winner.UserID, dm); err != nil {
			m.logger.Debug("failed to DM giveaway winner",
				zap.String("giveaway_id", rec.ID),
				zap.String("user_id", winner.UserID),
				zap.Error(err))
		}
	}

	m.logger.Info("giveaway ended",
		zap.String("giveaway_id", rec.ID),
		zap.String("prize", rec.Prize),
		zap.Int("winner_count", len(winners)),
		zap.Bool("reroll", reroll))
}

func (m *Manager) activeEmbed(spec CreateSpec, endsAt time.Time) *discordgo.MessageEmbed {
	color := spec.Color
	if color == 0 {
		color = m.cfg.EmbedColor
	}
	description := fmt.Sprintf("React with %s to enter!\n**Winners:** %d\n**Ends:** <t:%d:R>",
		m.cfg.Emoji, spec.WinnerCount, endsAt.Unix())
	if spec.Host != "" {
		description += fmt.Sprintf("\n**Hosted by:** <@%s>", spec.Host)
	}
	if spec.RequiredRole != "" {
		description += fmt.Sprintf("\n**Required role:** <@&%s>", spec.RequiredRole)
	}
	embed := &discordgo.MessageEmbed{
		Title:       spec.Prize,
		Description: description,
		Color:       color,
		Timestamp:   endsAt.UTC().Format(time.RFC3339),
		Footer:      &discordgo.MessageEmbedFooter{Text: "Ends at"},
	}
	if spec.ImageURL != "" {
		embed.Image = &discordgo.MessageEmbedImage{URL: spec.ImageURL}
	}
	if spec.ThumbnailURL != "" {
		embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: spec.ThumbnailURL}
	}
	return embed
}

func (m *Manager) endedEmbed(rec storage.GiveawayRecord, result string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       rec.Prize,
		Description: fmt.Sprintf("Giveaway ended.\n%s", result),
		Color:       m.cfg.EndedColor,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Ended"},
	}
}
