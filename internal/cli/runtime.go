package cli

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kapu/rtdb-janitor/internal/config"
	"github.com/kapu/rtdb-janitor/internal/obslog"
	"github.com/kapu/rtdb-janitor/internal/rtdb"
)

// runtime bundles the collaborators every subcommand needs.
type runtime struct {
	cfg   *config.AppConfig
	store rtdb.Store
	log   *zap.Logger
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	var store rtdb.Store
	if cfg.RedisURL != "" {
		store, err = rtdb.NewRedisStore(cfg.RedisURL)
	} else {
		store, err = rtdb.NewRESTStore(cfg.DatabaseURL, cfg.DBSecret)
	}
	if err != nil {
		return nil, fmt.Errorf("store init: %w", err)
	}

	return &runtime{cfg: cfg, store: store, log: obslog.L()}, nil
}

func (r *runtime) close() {
	_ = r.store.Close()
	obslog.Sync()
}
