package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/zoomigo/rentalbot/bot/catalog"
	"github.com/zoomigo/rentalbot/bot/conversation"
	"github.com/zoomigo/rentalbot/bot/exchange"
	"github.com/zoomigo/rentalbot/bot/store"
	"github.com/zoomigo/rentalbot/bot/webhook"
	"github.com/zoomigo/rentalbot/bot/whatsapp"
	"github.com/zoomigo/rentalbot/core/bootstrap"
	"github.com/zoomigo/rentalbot/core/config"
	"github.com/zoomigo/rentalbot/core/httpx"
	"github.com/zoomigo/rentalbot/core/logger"
	"github.com/zoomigo/rentalbot/core/worker"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("rentalbot: %v", err)
	}
}

func run() error {
	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Shutdown() }()
	defer func() { _ = res.DB.Close() }()

	users := store.NewUsers(res.DB)
	sessions := store.NewSessions(res.DB)
	bikes := store.NewBikes(res.DB)
	promos := store.NewPromos(res.DB)
	bookings := store.NewBookings(res.DB)
	appConfigs := store.NewAppConfigs(res.DB)
	rates := store.NewRates(res.DB)

	client := httpx.NewClient()
	cat := catalog.New(bikes, promos, res.Cache, time.Duration(cfg.Redis.TTLSeconds)*time.Second)
	fx := exchange.New(rates, appConfigs, client, cfg.App.BaseCurrency, cfg.App.OpenExchangeAppID)

	engine := conversation.NewEngine(conversation.Options{
		Users:       users,
		Sessions:    sessions,
		Catalog:     cat,
		Promos:      promos,
		Bookings:    bookings,
		Currency:    fx,
		ShopAddress: cfg.App.ShopAddress,
	})

	pool := worker.NewPool(worker.Options{
		Min:       cfg.Workers.Min,
		Max:       cfg.Workers.Max,
		QueueSize: cfg.Workers.QueueSize,
	})
	defer pool.Close()

	// warm the stored rate for the active display currency
	pool.Dispatch(ctx, "exchange.refresh", func(ctx context.Context) {
		target := fx.ActiveCurrency(ctx)
		if err := fx.RefreshLive(ctx, target); err != nil {
			logger.Warn(ctx, "exchange", "live.refresh.failed",
				slog.String("err", err.Error()),
			)
		}
	})

	sender := whatsapp.NewSender(cfg.Whatsapp, client)
	handler := webhook.NewHandler(cfg.Whatsapp.VerifyToken, engine, sender, pool)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Listen, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "http", "server.listen",
			slog.String("listen", cfg.Server.Listen),
			slog.Int("port", cfg.Server.Port),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "app", "shutdown.begin")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(context.Background(), "http", "server.shutdown.failed",
			slog.String("err", err.Error()),
		)
	}
	pool.Close()
	logger.Info(context.Background(), "app", "shutdown.done")
	return nil
}
