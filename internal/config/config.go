package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	DiscordToken string           `yaml:"discord_token"`
	DatabasePath string           `yaml:"database_path"`
	LogLevel     string           `yaml:"log_level"`
	Health       HealthConfig     `yaml:"health"`
	Roles        RoleConfig       `yaml:"roles"`
	Engagement   EngagementConfig `yaml:"engagement"`
	Giveaways    GiveawayConfig   `yaml:"giveaways"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type RoleConfig struct {
	ServerBooster string         `yaml:"server_booster"`
	SuperBooster  string         `yaml:"super_booster"`
	MegaBooster   string         `yaml:"mega_booster"`
	Muted         string         `yaml:"muted"`
	LevelPerks    map[int]string `yaml:"level_perks"`
}

type EngagementConfig struct {
	CooldownSeconds int `yaml:"cooldown_seconds"`
	BaseXPMin       int `yaml:"base_xp_min"`
	BaseXPMax       int `yaml:"base_xp_max"`
}

type GiveawayConfig struct {
	Emoji          string `yaml:"emoji"`
	MaxWinners     int    `yaml:"max_winners"`
	MinMessages    int    `yaml:"min_messages"`
	MaxEntryWeight int    `yaml:"max_entry_weight"`
	EmbedColor     int    `yaml:"embed_color"`
	EndedColor     int    `yaml:"ended_color"`
}

func DefaultConfig() Config {
	return Config{
		DatabasePath: "/data/guildpulse.db",
		LogLevel:     "info",
		Health:       HealthConfig{Enabled: false, Addr: ":8080"},
		Roles:        RoleConfig{LevelPerks: map[int]string{}},
		Engagement: EngagementConfig{
			CooldownSeconds: 10,
			BaseXPMin:       15,
			BaseXPMax:       25,
		},
		Giveaways: GiveawayConfig{
			Emoji:          "\U0001F389",
			MaxWinners:     50,
			MinMessages:    100,
			MaxEntryWeight: 10,
			EmbedColor:     0x00FF00,
			EndedColor:     0xFF0000,
		},
	}
}

func Load() (Config, error) {
	cfg := DefaultConfig()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	if cfg.DiscordToken == "" {
		return Config{}, errors.New("DISCORD_TOKEN is required")
	}
	if cfg.Engagement.BaseXPMax < cfg.Engagement.BaseXPMin {
		cfg.Engagement.BaseXPMax = cfg.Engagement.BaseXPMin
	}
	if cfg.Giveaways.MaxWinners <= 0 {
		cfg.Giveaways.MaxWinners = 50
	}
	if cfg.Giveaways.MaxEntryWeight <= 0 {
		cfg.Giveaways.MaxEntryWeight = 10
	}

	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.DiscordToken = envString("DISCORD_TOKEN", cfg.DiscordToken)
	cfg.DatabasePath = envString("DATABASE_PATH", cfg.DatabasePath)
	cfg.LogLevel = envString("LOG_LEVEL", cfg.LogLevel)
	cfg.Health.Enabled = envBool("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Addr = envString("HEALTH_ADDR", cfg.Health.Addr)
	cfg.Roles.ServerBooster = envString("SERVER_BOOSTER_ROLE_ID", cfg.Roles.ServerBooster)
	cfg.Roles.SuperBooster = envString("SUPER_BOOSTER_ROLE_ID", cfg.Roles.SuperBooster)
	cfg.Roles.MegaBooster = envString("MEGA_BOOSTER_ROLE_ID", cfg.Roles.MegaBooster)
	cfg.Roles.Muted = envString("MUTED_ROLE_ID", cfg.Roles.Muted)
	cfg.Engagement.CooldownSeconds = envInt("XP_COOLDOWN_SECONDS", cfg.Engagement.CooldownSeconds)
	cfg.Engagement.BaseXPMin = envInt("XP_BASE_MIN", cfg.Engagement.BaseXPMin)
	cfg.Engagement.BaseXPMax = envInt("XP_BASE_MAX", cfg.Engagement.BaseXPMax)
	cfg.Giveaways.Emoji = envString("GIVEAWAY_EMOJI", cfg.Giveaways.Emoji)
	cfg.Giveaways.MaxWinners = envInt("GIVEAWAY_MAX_WINNERS", cfg.Giveaways.MaxWinners)
	cfg.Giveaways.MinMessages = envInt("GIVEAWAY_MIN_MESSAGES", cfg.Giveaways.MinMessages)
	cfg.Giveaways.MaxEntryWeight = envInt("GIVEAWAY_MAX_ENTRY_WEIGHT", cfg.Giveaways.MaxEntryWeight)
	cfg.Giveaways.EmbedColor = envInt("GIVEAWAY_EMBED_COLOR", cfg.Giveaways.EmbedColor)
	cfg.Giveaways.EndedColor = envInt("GIVEAWAY_ENDED_COLOR", cfg.Giveaways.EndedColor)
}

func BuildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "time"
	cfg.EncoderConfig.MessageKey = "message"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	lvl := strings.ToLower(level)
	switch lvl {
	case "debug", "info", "warn", "error":
		cfg.Level = zap.NewAtomicLevelAt(parseLevel(lvl))
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func envString(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "1" || lower == "true" || lower == "yes"
	}
	return fallback
}
