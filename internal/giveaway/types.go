package giveaway

import (
	"context"
	"errors"
	"time"

	"guildpulse/internal/engagement"
	"guildpulse/internal/platform"
)

var (
	ErrNotFound     = errors.New("giveaway: not found")
	ErrAlreadyEnded = errors.New("giveaway: already ended")
	ErrNotEnded     = errors.New("giveaway: not ended yet")
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

// EngagementState is the read-only view of member standing that entry
// weighting and eligibility consume.
type EngagementState interface {
	TierOf(member *platform.Member) engagement.BoosterTier
	Level(ctx context.Context, guildID, userID string) int
	MessageCount(ctx context.Context, guildID, userID string) int
}

// CreateSpec carries everything a command handler collects to start a
// giveaway. RiggedWinner must never be echoed back to the channel.
type CreateSpec struct {
	ChannelID       string
	GuildID         string
	Prize           string
	Duration        time.Duration
	WinnerCount     int
	Host            string
	ImageURL        string
	ThumbnailURL    string
	Color           int
	RequiredRole    string
	BlacklistedRole string
	RiggedWinner    string
	MinMessages     int
}

// Entrant is one distinct eligible member and their entry weight.
type Entrant struct {
	UserID   string
	Username string
	Weight   int
}

// Summary is the externally visible view of a running giveaway.
type Summary struct {
	ID          string
	ChannelID   string
	Prize       string
	WinnerCount int
	Host        string
	EndsAt      time.Time
}
