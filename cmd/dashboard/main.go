package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/invisible-tech/gridsec-dashboard/internal/config"
	"github.com/invisible-tech/gridsec-dashboard/internal/dashboard"
	"github.com/invisible-tech/gridsec-dashboard/internal/server"
	"github.com/invisible-tech/gridsec-dashboard/internal/version"
	"github.com/invisible-tech/gridsec-dashboard/pkg/analytics"
	"github.com/invisible-tech/gridsec-dashboard/pkg/watcher"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	log.WithFields(logrus.Fields{
		"version":  version.Version,
		"endpoint": cfg.AnalyticsEndpoint,
	}).Info("Starting dashboard")

	client := analytics.NewClient(analytics.Config{
		BaseURL: cfg.AnalyticsEndpoint,
		Timeout: cfg.AnalyticsTimeout,
	}, log)

	dash := dashboard.New(client, cfg, log)
	if err := dash.Start(); err != nil {
		log.WithError(err).Fatal("Failed to start polling")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Hot-reload the log level when the config file changes. Polling
	// intervals stay fixed for the process lifetime.
	if cfg.ConfigFile != "" {
		cw, err := watcher.New(cfg.ConfigFile, func(path string) {
			fc, err := config.LoadFile(path)
			if err != nil {
				log.WithError(err).Warn("Config reload failed")
				return
			}
			reloaded := cfg
			fc.Apply(&reloaded)
			if level, err := logrus.ParseLevel(reloaded.LogLevel); err == nil {
				log.SetLevel(level)
				log.WithField("level", reloaded.LogLevel).Info("Log level updated")
			}
		}, log)
		if err != nil {
			log.WithError(err).Warn("Config watcher unavailable")
		} else {
			go cw.Start(ctx)
		}
	}

	srv := server.New(cfg, dash, client, log)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Dashboard server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down dashboard")
	cancel()
	dash.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
