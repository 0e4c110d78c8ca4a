package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cert-checker/internal/api"
	"cert-checker/internal/conf"
	"cert-checker/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := conf.LoadConfig()
	if err != nil {
		logrus.Fatalf("Config error: %v", err)
	}
	conf.SetupLogging(cfg.Log, nil)
	gin.SetMode(cfg.Server.Mode)

	checker := service.NewCheckerService(service.NewProber(), cfg.Probe.MaxConcurrency)
	inspector := service.NewInspectorService()
	notifier := service.NewNotifierService(cfg.Notify)
	defer notifier.Close()

	var source service.DomainSource
	if cfg.Cloudflare.APIToken != "" {
		source = service.NewCloudflareService(cfg.Cloudflare.APIToken)
	}
	cronService := service.NewCronService(checker, source, notifier, cfg.Watch)
	if err := cronService.Start(); err != nil {
		logrus.Fatalf("Scheduler error: %v", err)
	}
	defer cronService.Stop()

	// schedule and notification settings follow config edits; auth and port need a restart
	if err := conf.WatchFile(func(next *conf.Config) {
		notifier.UpdateSettings(next.Notify)
		if err := cronService.ReloadJobs(next.Watch); err != nil {
			logrus.Errorf("Reload watch schedule: %v", err)
		}
	}); err != nil {
		logrus.Debugf("Config hot reload off: %v", err)
	}

	router := api.NewRouter(cfg.Auth, api.Handlers{
		Check: api.NewCheckHandler(checker),
		Tool:  api.NewToolHandler(inspector),
		Watch: api.NewWatchHandler(cronService, notifier),
	})

	srv := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logrus.Infof("Server starting on %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("Server startup failed: %v", err)
		}
	}()

	<-ctx.Done()
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server shutdown: %v", err)
	}
}
