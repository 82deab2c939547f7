package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"

	corecache "github.com/zoomigo/rentalbot/core/cache"
	coreconfig "github.com/zoomigo/rentalbot/core/config"
	coredatabase "github.com/zoomigo/rentalbot/core/database"
	"github.com/zoomigo/rentalbot/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config *coreconfig.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB    *sqlx.DB
	Cache corecache.Cache
}

// Run initializes the logger, connects to the database, applies migrations,
// and selects the lookup cache backend.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(opts.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(opts.Config.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	store, err := buildCache(ctx, opts.Config)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Result{DB: db, Cache: store}, nil
}

func buildCache(ctx context.Context, cfg *coreconfig.Config) (corecache.Cache, error) {
	addr := strings.TrimSpace(cfg.Redis.Addr)
	if addr == "" {
		logger.Info(ctx, "cache", "backend.selected", slog.String("mode", "memory"))
		return corecache.NewMemory(), nil
	}
	store, err := corecache.NewRedis(ctx, addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: redis initialization failed: %w", err)
	}
	logger.Info(ctx, "cache", "backend.selected",
		slog.String("mode", "redis"),
		slog.String("host", addr),
	)
	return store, nil
}
