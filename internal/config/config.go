package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig carries everything a janitor run needs. All knobs are
// env-driven with per-field defaults; only the store connection is
// required.
type AppConfig struct {
	DatabaseURL string // Firebase-style REST endpoint
	DBSecret    string // REST auth token
	RedisURL    string // selects the Redis-backed store when set
	RunLogURL   string // optional Postgres run log (DATABASE_URL)

	StalePlayerMinutes       int
	StalePresenceMinutes     int
	EndedRoomMinutes         int
	AbandonedRoomMinutes     int
	RoomDeleteLimit          int
	TrainDeleteLimit         int
	TrainRepairLimit         int
	MarkerDeleteLimit        int
	MarkerUsersLimit         int
	MarkerPerUserLimit       int
	LegacyUsersLimit         int
	LegacyMatchLimit         int
	LeaderboardLimit         int
	ProcessedTrainPurgeLimit int

	ProtectStatuses []string

	MetricsFile string

	Policies PolicyTable
}

// Load reads configuration from the environment. A .env file is applied
// best-effort first so local runs behave like the deployed scheduler.
func Load() (*AppConfig, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	cfg := &AppConfig{
		StalePlayerMinutes:       10,
		StalePresenceMinutes:     2,
		EndedRoomMinutes:         10,
		AbandonedRoomMinutes:     60,
		RoomDeleteLimit:          200,
		TrainDeleteLimit:         250,
		TrainRepairLimit:         2000,
		MarkerDeleteLimit:        600,
		MarkerUsersLimit:         500,
		MarkerPerUserLimit:       250,
		LegacyUsersLimit:         60,
		LegacyMatchLimit:         300,
		LeaderboardLimit:         5000,
		ProcessedTrainPurgeLimit: 2000,
		ProtectStatuses:          []string{"active", "pending"},
		Policies:                 DefaultPolicies(),
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("FIREBASE_DATABASE_URL"))
	cfg.DBSecret = strings.TrimSpace(os.Getenv("FIREBASE_DB_SECRET"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.RunLogURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.MetricsFile = strings.TrimSpace(os.Getenv("JANITOR_METRICS_FILE"))

	loadInt(&cfg.StalePlayerMinutes, "STALE_PLAYER_MINUTES")
	loadInt(&cfg.StalePresenceMinutes, "STALE_GAME_PRESENCE_MINUTES")
	loadInt(&cfg.EndedRoomMinutes, "STALE_ENDED_ROOM_MINUTES")
	loadInt(&cfg.AbandonedRoomMinutes, "STALE_ABANDONED_ROOM_MINUTES")
	loadInt(&cfg.RoomDeleteLimit, "ROOM_DELETE_LIMIT")
	loadInt(&cfg.TrainDeleteLimit, "TRAIN_DELETE_LIMIT")
	loadInt(&cfg.TrainRepairLimit, "TRAIN_REPAIR_LIMIT")
	loadInt(&cfg.MarkerDeleteLimit, "MARKER_DELETE_LIMIT")
	loadInt(&cfg.MarkerUsersLimit, "MARKER_USERS_LIMIT")
	loadInt(&cfg.MarkerPerUserLimit, "MARKER_PER_USER_LIMIT")
	loadInt(&cfg.LegacyUsersLimit, "LEGACY_USERS_LIMIT")
	loadInt(&cfg.LegacyMatchLimit, "LEGACY_MATCH_LIMIT")
	loadInt(&cfg.LeaderboardLimit, "LEADERBOARD_LIMIT")
	loadInt(&cfg.ProcessedTrainPurgeLimit, "TRAIN_PROCESSED_PURGE_LIMIT")

	if v := strings.TrimSpace(os.Getenv("PROTECT_GAME_STATUSES")); v != "" {
		var statuses []string
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				statuses = append(statuses, s)
			}
		}
		if len(statuses) > 0 {
			cfg.ProtectStatuses = statuses
		}
	}

	if f := strings.TrimSpace(os.Getenv("JANITOR_POLICY_FILE")); f != "" {
		if err := cfg.Policies.ApplyFile(f); err != nil {
			return nil, err
		}
	}

	if cfg.RedisURL == "" {
		if cfg.DatabaseURL == "" {
			return nil, errors.New("FIREBASE_DATABASE_URL or REDIS_URL is required")
		}
		if cfg.DBSecret == "" {
			return nil, errors.New("FIREBASE_DB_SECRET is required with FIREBASE_DATABASE_URL")
		}
	}

	return cfg, nil
}

// ProtectSet returns the protecting statuses as a lookup set.
func (c *AppConfig) ProtectSet() map[string]bool {
	set := make(map[string]bool, len(c.ProtectStatuses))
	for _, s := range c.ProtectStatuses {
		set[s] = true
	}
	return set
}

func loadInt(dst *int, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			*dst = n
		}
	}
}
