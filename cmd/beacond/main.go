// beacond is the beacon analytics collector daemon.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mstefan99/beacon/config"
	"github.com/mstefan99/beacon/internal/appstore"
	"github.com/mstefan99/beacon/internal/archive"
	"github.com/mstefan99/beacon/internal/auth"
	"github.com/mstefan99/beacon/internal/logging"
	"github.com/mstefan99/beacon/internal/server"
	"github.com/mstefan99/beacon/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	dev := flag.Bool("dev", false, "development mode (debug logging, detailed errors)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = config.Default()
		} else {
			logging.Init(slog.LevelInfo, false)
			logging.Component("main").Error("load config failed", "path", *cfgPath, "error", err)
			os.Exit(1)
		}
	}

	if *listen != "" {
		cfg.Server.Listen = *listen
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *dev {
		cfg.Development = true
	}

	level := slog.LevelInfo
	if cfg.Development {
		level = slog.LevelDebug
	}
	logging.Init(level, !cfg.Development)
	log := logging.Component("main")
	log.Info("beacond starting", "version", Version)

	if err := cfg.EnsureDirectories(); err != nil {
		log.Error("create data directories failed", "error", err)
		os.Exit(1)
	}

	// Control store: users, login sessions, apps, permission grants.
	controlStore, err := store.Open(store.Config{Path: cfg.ControlDBPath()})
	if err != nil {
		log.Error("open control store failed", "path", cfg.ControlDBPath(), "error", err)
		os.Exit(1)
	}
	defer controlStore.Close()

	// Per-app event stores.
	manager := appstore.NewManager(appstore.Config{
		Dir:           cfg.AppDir(),
		IdleTimeout:   cfg.Storage.HandleIdleTimeout.Duration(),
		EvictInterval: cfg.Storage.EvictInterval.Duration(),
		Limits: appstore.Limits{
			MaxRows:       cfg.Query.MaxRows,
			MaxMetricRows: cfg.Query.MaxMetricRows,
			RankLimit:     cfg.Query.RankLimit,
		},
	})
	go manager.Run()
	defer manager.Close()

	authSvc := auth.NewService(controlStore, cfg.Auth.SessionTTL.Duration())

	// Expired login sessions are purged on the same cadence as handle
	// eviction; both are cheap housekeeping.
	purgeStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := authSvc.PurgeExpired(); err != nil {
					log.Warn("session purge failed", "error", err)
				} else if n > 0 {
					log.Debug("expired sessions purged", "count", n)
				}
			case <-purgeStop:
				return
			}
		}
	}()
	defer close(purgeStop)

	if cfg.Archive.Enabled {
		archiver := archive.New(archive.Config{
			Dir:       cfg.ArchiveDir(),
			Retention: cfg.Archive.Retention.Duration(),
			Interval:  cfg.Archive.Interval.Duration(),
		}, controlStore, manager)
		go archiver.Run()
		defer archiver.Close()
		log.Info("archiver enabled", "dir", cfg.ArchiveDir(), "retention", cfg.Archive.Retention)
	}

	srv := server.New(cfg, controlStore, manager, authSvc)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}

	log.Info("beacond stopped")
}
