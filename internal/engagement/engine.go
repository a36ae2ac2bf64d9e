package engagement

import (
	"context"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"guildpulse/internal/config"
	"guildpulse/internal/platform"
	"guildpulse/internal/storage"
)

// BoosterTier orders the booster roles from none to mega. Higher tiers
// earn larger giveaway entry multipliers and XP bonuses.
type BoosterTier int

const (
	TierNone BoosterTier = iota
	TierServer
	TierSuper
	TierMega
)

// EntryMultiplier is the number of weighted giveaway entries a tier grants.
func (t BoosterTier) EntryMultiplier() int {
	switch t {
	case TierServer:
		return 3
	case TierSuper:
		return 5
	case TierMega:
		return 7
	default:
		return 1
	}
}

func (t BoosterTier) xpBonus() float64 {
	switch t {
	case TierServer:
		return 0.1
	case TierSuper:
		return 0.2
	case TierMega:
		return 0.3
	default:
		return 0
	}
}

func (t BoosterTier) String() string {
	switch t {
	case TierServer:
		return "server"
	case TierSuper:
		return "super"
	case TierMega:
		return "mega"
	default:
		return "none"
	}
}

// XPForLevel is the total lifetime XP required to reach level. Users
// start at level 1 with zero XP and keep their running total; the level
// is whatever this curve puts their total at or above.
func XPForLevel(level int) int {
	return level*level*100 + level*50
}

// lockShards bounds memory for per-user serialization regardless of how
// many distinct users message.
const lockShards = 256

type Result struct {
	XPAwarded int
	LeveledUp bool
	NewLevel  int
	PerkRole  string
}

type Engine struct {
	store  *storage.Store
	roles  config.RoleConfig
	cfg    config.EngagementConfig
	logger *zap.Logger

	locks [lockShards]sync.Mutex

	randMu sync.Mutex
	rand   *rand.Rand

	now func() time.Time
}

func NewEngine(store *storage.Store, roles config.RoleConfig, cfg config.EngagementConfig, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		roles:  roles,
		cfg:    cfg,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
		now:    time.Now,
	}
}

// WithRand replaces the XP roll source. Used by tests.
func (e *Engine) WithRand(r *rand.Rand) *Engine {
	e.rand = r
	return e
}

// WithNow replaces the wall clock. Used by tests.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// TierOf resolves a member's booster tier from their roles. A member
// boosting the server without any booster role counts as the base tier.
func (e *Engine) TierOf(member *platform.Member) BoosterTier {
	if member == nil {
		return TierNone
	}
	if e.roles.MegaBooster != "" && member.HasRole(e.roles.MegaBooster) {
		return TierMega
	}
	if e.roles.SuperBooster != "" && member.HasRole(e.roles.SuperBooster) {
		return TierSuper
	}
	if e.roles.ServerBooster != "" && member.HasRole(e.roles.ServerBooster) {
		return TierServer
	}
	if member.Boosting {
		return TierServer
	}
	return TierNone
}

// HandleMessage records a message for XP and message-count tracking.
// Message counts always increment; XP is only awarded once the cooldown
// since the user's previous counted message has elapsed.
func (e *Engine) HandleMessage(ctx context.Context, guildID, userID, content string, tier BoosterTier) (Result, error) {
	lock := &e.locks[e.shard(guildID, userID)]
	lock.Lock()
	defer lock.Unlock()

	rec, err := e.store.GetUserLevel(ctx, guildID, userID)
	if err != nil {
		return Result{}, err
	}

	now := e.now()
	rec.Messages++

	cooldown := time.Duration(e.cfg.CooldownSeconds) * time.Second
	onCooldown := !rec.LastMessage.IsZero() && now.Sub(rec.LastMessage) < cooldown
	var result Result
	if !onCooldown {
		gained := e.rollXP(len(content))
		gained = int(float64(gained) * e.totalMultiplier(rec.Level, tier))
		rec.XP += gained
		rec.LastMessage = now
		result.XPAwarded = gained

		for rec.XP >= XPForLevel(rec.Level+1) {
			rec.Level++
			result.LeveledUp = true
		}
		if result.LeveledUp {
			result.NewLevel = rec.Level
			result.PerkRole = e.roles.LevelPerks[rec.Level]
		}
	}

	if err := e.store.UpsertUserLevel(ctx, rec); err != nil {
		return Result{}, err
	}
	if result.LeveledUp {
		e.logger.Info("user leveled up",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Int("level", result.NewLevel))
	}
	return result, nil
}

// Level returns the user's current level, defaulting to 1 for unseen users.
func (e *Engine) Level(ctx context.Context, guildID, userID string) int {
	rec, err := e.store.GetUserLevel(ctx, guildID, userID)
	if err != nil {
		e.logger.Warn("level lookup failed", zap.String("user_id", userID), zap.Error(err))
		return 1
	}
	return rec.Level
}

// MessageCount returns the user's tracked message count for the guild.
func (e *Engine) MessageCount(ctx context.Context, guildID, userID string) int {
	rec, err := e.store.GetUserLevel(ctx, guildID, userID)
	if err != nil {
		e.logger.Warn("message count lookup failed", zap.String("user_id", userID), zap.Error(err))
		return 0
	}
	return rec.Messages
}

type Progress struct {
	Level    int
	XP       int
	Needed   int
	Messages int
}

// Progress reports a user's total XP against the next level's total.
func (e *Engine) Progress(ctx context.Context, guildID, userID string) (Progress, error) {
	rec, err := e.store.GetUserLevel(ctx, guildID, userID)
	if err != nil {
		return Progress{}, err
	}
	return Progress{
		Level:    rec.Level,
		XP:       rec.XP,
		Needed:   XPForLevel(rec.Level + 1),
		Messages: rec.Messages,
	}, nil
}

// Leaderboard returns the guild's top users ordered by XP.
func (e *Engine) Leaderboard(ctx context.Context, guildID string, limit int) ([]storage.UserLevel, error) {
	return e.store.TopUserLevels(ctx, guildID, limit)
}

func (e *Engine) rollXP(length int) int {
	e.randMu.Lock()
	defer e.randMu.Unlock()

	base := e.cfg.BaseXPMin
	if span := e.cfg.BaseXPMax - e.cfg.BaseXPMin; span > 0 {
		base += e.rand.Intn(span + 1)
	}
	switch {
	case length > 100:
		base += 5 + e.rand.Intn(11)
	case length > 50:
		base += 5 + e.rand.Intn(6)
	}
	return base
}

func (e *Engine) totalMultiplier(level int, tier BoosterTier) float64 {
	m := levelMultiplier(level)
	m += tier.xpBonus()
	m += perkBonus(level)
	return m
}

func levelMultiplier(level int) float64 {
	switch {
	case level >= 80:
		return 1.3
	case level >= 50:
		return 1.2
	case level >= 35:
		return 1.1
	default:
		return 1.0
	}
}

// perkBonus stacks a flat bonus for each unlocked chat perk.
func perkBonus(level int) float64 {
	bonus := 0.0
	for _, threshold := range []int{35, 50, 80} {
		if level >= threshold {
			bonus += 0.1
		}
	}
	return bonus
}

func (e *Engine) shard(guildID, userID string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(guildID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(userID))
	return h.Sum32() % lockShards
}
