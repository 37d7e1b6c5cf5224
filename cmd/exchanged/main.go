// Command exchanged runs the X12 exchange core daemon: the HTTP ingress
// for outbound events plus the background poll scheduler.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/edilane/go-x12/internal/config"
	"github.com/edilane/go-x12/internal/scheduler"
	"github.com/edilane/go-x12/internal/server"
	"github.com/edilane/go-x12/internal/storage"
	"github.com/edilane/go-x12/internal/storage/mongodb"
	"github.com/edilane/go-x12/pkg/delivery"
	"github.com/edilane/go-x12/pkg/outbound"
	"github.com/edilane/go-x12/pkg/poller"
	"github.com/edilane/go-x12/pkg/translate"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := run(*configPath, logger); err != nil {
		logger.Error("exchanged failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *slog.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.Services.TranslatorURL == "" {
		return errors.New("services.translatorUrl is required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := mongodb.NewStore(ctx, &mongodb.Config{
		URI:      cfg.Storage.URI,
		Database: cfg.Storage.Database,
	})
	if err != nil {
		return fmt.Errorf("connecting to storage: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := store.Close(shutdownCtx); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	}()

	// Static poll targets from the config file are merged into the store
	// so one scheduler drives both static and store-managed targets.
	for _, target := range cfg.PollTargets {
		if err := store.UpsertPollTarget(ctx, &storage.PollTarget{
			ID:       target.Name,
			Name:     target.Name,
			Enabled:  true,
			Interval: target.Interval,
			Poll: poller.Config{
				Connection:            target.Connection,
				RemotePath:            target.RemotePath,
				RemoteFiles:           target.RemoteFiles,
				DestinationPath:       target.DestinationPath,
				DeleteAfterProcessing: target.DeleteAfterProcessing,
			},
		}); err != nil {
			return fmt.Errorf("registering poll target %s: %w", target.Name, err)
		}
	}

	translator := translate.NewHTTPService(&translate.ServiceConfig{
		URL:     cfg.Services.TranslatorURL,
		Timeout: cfg.Services.Timeout,
	})
	mapper := translate.NewHTTPService(&translate.ServiceConfig{
		URL:     cfg.Services.MapperURL,
		Timeout: cfg.Services.Timeout,
	})

	webhookConfig := delivery.DefaultWebhookConfig()
	webhookConfig.Timeout = cfg.Webhook.Timeout
	webhookConfig.MaxRetries = cfg.Webhook.MaxRetries
	webhookConfig.InitialBackoff = cfg.Webhook.InitialBackoff

	dispatcher := &delivery.Dispatcher{Webhooks: delivery.NewWebhookClient(webhookConfig)}

	// Downloaded poll files land on the local filesystem unless an object
	// store is configured; then both outbound bucket deliveries and poll
	// downloads go through it.
	var pollDestination poller.DestinationWriter = poller.LocalWriter{}
	if cfg.ObjectStore.Endpoint != "" {
		objects, err := delivery.NewMinioWriter(&delivery.ObjectStoreConfig{
			Endpoint:  cfg.ObjectStore.Endpoint,
			AccessKey: cfg.ObjectStore.AccessKey,
			SecretKey: cfg.ObjectStore.SecretKey,
			UseTLS:    cfg.ObjectStore.UseTLS,
			Region:    cfg.ObjectStore.Region,
		})
		if err != nil {
			return fmt.Errorf("connecting to object store: %w", err)
		}
		dispatcher.Objects = objects
		pollDestination = poller.BucketWriter{Objects: objects}
	}

	pipeline := &outbound.Pipeline{
		Profiles:       store,
		Partnerships:   store,
		Guides:         store,
		ControlNumbers: store,
		Mapper:         mapper,
		Translator:     translator,
		Deliverer:      dispatcher,
		Ledger:         store,
		Logger:         logger,
	}

	sched := scheduler.New(store, poller.New(pollDestination, logger), nil, logger)
	sched.Start(ctx)
	defer sched.Stop()

	srv := server.New(pipeline, logger)
	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Server.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
