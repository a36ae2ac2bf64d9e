package moderation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"guildpulse/internal/platform"
	"guildpulse/internal/storage"
)

const (
	kindMute = "mute"
	kindBan  = "ban"
)

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

type WarnResult struct {
	WarningID string
	Count     int
	Action    Action
	Duration  time.Duration
}

// Service runs the warning ladder: warnings accumulate per user and
// every count at or above a threshold re-applies that threshold's mute,
// temporary ban, or permanent ban. Mute and tempban lifts are scheduled
// on timers that re-check the store on wake, so a manual unmute or
// unban makes the timer a no-op.
type Service struct {
	store     *storage.Store
	client    platform.Client
	mutedRole string
	logger    *zap.Logger
	clock     Clock

	mu     sync.Mutex
	timers map[string]Timer
}

func NewService(store *storage.Store, client platform.Client, mutedRole string, logger *zap.Logger) *Service {
	return &Service{
		store:     store,
		client:    client,
		mutedRole: mutedRole,
		logger:    logger,
		clock:     realClock{},
		timers:    make(map[string]Timer),
	}
}

// WithClock replaces the scheduling clock. Used by tests.
func (s *Service) WithClock(clock Clock) *Service {
	s.clock = clock
	return s
}

// Warn records a warning and applies any ladder escalation the new count
// lands on. Escalation failures are logged but do not undo the warning.
func (s *Service) Warn(ctx context.Context, guildID, userID, moderator, reason string) (WarnResult, error) {
	warning := storage.Warning{
		ID:        uuid.NewString()[:8],
		GuildID:   guildID,
		UserID:    userID,
		Reason:    reason,
		Moderator: moderator,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.AddWarning(ctx, warning); err != nil {
		return WarnResult{}, err
	}

	count, err := s.store.CountWarnings(ctx, guildID, userID)
	if err != nil {
		return WarnResult{}, err
	}

	result := WarnResult{WarningID: warning.ID, Count: count}
	result.Action, result.Duration = ladderAction(count)

	switch result.Action {
	case ActionMute:
		s.applyMute(ctx, guildID, userID, result.Duration, fmt.Sprintf("Reached %d warnings", count))
	case ActionTempban:
		s.applyTempban(ctx, guildID, userID, result.Duration, fmt.Sprintf("Reached %d warnings", count))
	case ActionBan:
		s.applyBan(ctx, guildID, userID, fmt.Sprintf("Reached %d warnings", count))
	}

	s.logger.Info("warning issued",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("warning_id", warning.ID),
		zap.Int("count", count),
		zap.String("action", result.Action.String()))
	return result, nil
}

func (s *Service) Warnings(ctx context.Context, guildID, userID string) ([]storage.Warning, error) {
	return s.store.ListWarnings(ctx, guildID, userID)
}

// RemoveWarning deletes a single warning by id. Returns false when the
// id does not exist in the guild.
func (s *Service) RemoveWarning(ctx context.Context, guildID, warningID string) (bool, error) {
	return s.store.DeleteWarning(ctx, guildID, warningID)
}

// ClearWarnings deletes every warning for the user and returns how many
// were removed.
func (s *Service) ClearWarnings(ctx context.Context, guildID, userID string) (int, error) {
	return s.store.ClearWarnings(ctx, guildID, userID)
}

// Mute applies a manual timed mute outside the ladder.
func (s *Service) Mute(ctx context.Context, guildID, userID string, duration time.Duration, reason string) error {
	if duration <= 0 {
		return fmt.Errorf("moderation: mute duration must be positive")
	}
	s.applyMute(ctx, guildID, userID, duration, reason)
	return nil
}

// Unmute removes the muted role and cancels any pending lift.
func (s *Service) Unmute(ctx context.Context, guildID, userID string) error {
	s.cancelTimer(guildID, userID, kindMute)
	if err := s.store.DeletePunishment(ctx, guildID, userID, kindMute); err != nil {
		return err
	}
	if s.mutedRole == "" {
		return nil
	}
	return s.client.RemoveRole(guildID, userID, s.mutedRole)
}

// Unban lifts a ban and cancels any pending scheduled unban.
func (s *Service) Unban(ctx context.Context, guildID, userID string) error {
	s.cancelTimer(guildID, userID, kindBan)
	if err := s.store.DeletePunishment(ctx, guildID, userID, kindBan); err != nil {
		return err
	}
	return s.client.Unban(guildID, userID)
}

// Resume reschedules lifts for all persisted timed punishments. Expired
// ones fire immediately.
func (s *Service) Resume(ctx context.Context) error {
	punishments, err := s.store.ListPunishments(ctx)
	if err != nil {
		return err
	}
	for _, p := range punishments {
		s.scheduleLift(p.GuildID, p.UserID, p.Kind, p.Until)
	}
	if len(punishments) > 0 {
		s.logger.Info("resumed pending punishment lifts", zap.Int("count", len(punishments)))
	}
	return nil
}

// Stop cancels all pending lift timers. Punishments stay in the store
// and are rescheduled by Resume on the next start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, timer := range s.timers {
		timer.Stop()
		delete(s.timers, key)
	}
}

func (s *Service) applyMute(ctx context.Context, guildID, userID string, duration time.Duration, reason string) {
	until := s.clock.Now().Add(duration)
	if s.mutedRole != "" {
		if err := s.client.AddRole(guildID, userID, s.mutedRole); err != nil {
			s.logger.Error("failed to add muted role",
				zap.String("user_id", userID), zap.Error(err))
		}
	}
	punishment := storage.Punishment{GuildID: guildID, UserID: userID, Kind: kindMute, Until: until, Reason: reason}
	if err := s.store.UpsertPunishment(ctx, punishment); err != nil {
		s.logger.Error("failed to persist mute", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.scheduleLift(guildID, userID, kindMute, until)
}

func (s *Service) applyTempban(ctx context.Context, guildID, userID string, duration time.Duration, reason string) {
	until := s.clock.Now().Add(duration)
	s.notifyBan(userID, reason, &until)
	if err := s.client.Ban(guildID, userID, reason, 0); err != nil {
		s.logger.Error("failed to ban user", zap.String("user_id", userID), zap.Error(err))
		return
	}
	punishment := storage.Punishment{GuildID: guildID, UserID: userID, Kind: kindBan, Until: until, Reason: reason}
	if err := s.store.UpsertPunishment(ctx, punishment); err != nil {
		s.logger.Error("failed to persist tempban", zap.String("user_id", userID), zap.Error(err))
		return
	}
	s.scheduleLift(guildID, userID, kindBan, until)
}

// applyBan makes the ban permanent: any tempban lift still scheduled for
// the user is cancelled and its record removed, so nothing unbans them
// later.
func (s *Service) applyBan(ctx context.Context, guildID, userID, reason string) {
	s.cancelTimer(guildID, userID, kindBan)
	if err := s.store.DeletePunishment(ctx, guildID, userID, kindBan); err != nil {
		s.logger.Error("failed to clear tempban record", zap.String("user_id", userID), zap.Error(err))
	}
	s.notifyBan(userID, reason, nil)
	if err := s.client.Ban(guildID, userID, reason, 0); err != nil {
		s.logger.Error("failed to ban user", zap.String("user_id", userID), zap.Error(err))
	}
}

// notifyBan DMs the user before the ban lands, while the DM channel can
// still be opened. Failures are swallowed.
func (s *Service) notifyBan(userID, reason string, until *time.Time) {
	description := fmt.Sprintf("You have been banned.\n**Reason:** %s", reason)
	if until != nil {
		description += fmt.Sprintf("\n**Expires:** <t:%d:R>", until.Unix())
	}
	embed := &discordgo.MessageEmbed{Title: "Ban notice", Description: description, Color: 0xFF0000}
	if err := s.client.DMEmbed(userID, embed); err != nil {
		s.logger.Debug("failed to DM ban notice", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) scheduleLift(guildID, userID, kind string, until time.Time) {
	delay := until.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	key := timerKey(guildID, userID, kind)

	s.mu.Lock()
	if existing, ok := s.timers[key]; ok {
		existing.Stop()
	}
	s.timers[key] = s.clock.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, key)
		s.mu.Unlock()
		s.lift(guildID, userID, kind)
	})
	s.mu.Unlock()
}

// lift re-checks the store before acting so a punishment already lifted
// by hand, or replaced with a later deadline, is left alone.
func (s *Service) lift(guildID, userID, kind string) {
	ctx := context.Background()
	punishment, ok, err := s.store.GetPunishment(ctx, guildID, userID, kind)
	if err != nil {
		s.logger.Error("failed to load punishment on lift",
			zap.String("user_id", userID), zap.Error(err))
		return
	}
	if !ok || punishment.Until.After(s.clock.Now()) {
		return
	}

	var liftErr error
	switch kind {
	case kindMute:
		liftErr = s.Unmute(ctx, guildID, userID)
	case kindBan:
		liftErr = s.Unban(ctx, guildID, userID)
	}
	if liftErr != nil && !errors.Is(liftErr, platform.ErrNotFound) {
		s.logger.Error("failed to lift punishment",
			zap.String("user_id", userID),
			zap.String("kind", kind),
			zap.Error(liftErr))
		return
	}
	s.logger.Info("punishment lifted",
		zap.String("guild_id", guildID),
		zap.String("user_id", userID),
		zap.String("kind", kind))
}

func (s *Service) cancelTimer(guildID, userID, kind string) {
	key := timerKey(guildID, userID, kind)
	s.mu.Lock()
	if timer, ok := s.timers[key]; ok {
		timer.Stop()
		delete(s.timers, key)
	}
	s.mu.Unlock()
}

func timerKey(guildID, userID, kind string) string {
	return guildID + "|" + userID + "|" + kind
}
