package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"timesync-agent/config"
	"timesync-agent/internal/actionlog"
	"timesync-agent/internal/api"
	"timesync-agent/internal/connectivity"
	"timesync-agent/internal/db"
	"timesync-agent/internal/device"
	"timesync-agent/internal/notification"
	"timesync-agent/internal/remote"
	"timesync-agent/internal/session"
	"timesync-agent/internal/store"
	"timesync-agent/internal/syncer"
	"timesync-agent/internal/tracker"
)

func main() {
	logger := log.New(os.Stdout, "timesyncd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Remote.BaseURL == "" {
		logger.Fatalf("remote.base_url must be configured")
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)
	devices := device.NewProvider(appStore, cfg.Device.ID)
	if id, err := devices.DeviceID(ctx); err != nil {
		logger.Printf("device identity unavailable: %v", err)
	} else {
		logger.Printf("device id %s", id)
	}

	actions := actionlog.New(appStore, devices, cfg.Sync.MaxAttempts)
	if err := actions.Load(ctx); err != nil {
		logger.Printf("starting with an empty action log: %v", err)
	}
	logger.Printf("action log loaded with %d entries", actions.Len())

	client := remote.NewClient(&cfg.Remote)
	reconciler := session.New(&cfg.Session, cfg.Remote.EmployeeID, client)
	monitor := connectivity.New(&cfg.Sync, true, client)

	notifier := notification.Multi{notification.LogNotifier{}}
	var webpushOptions *webpush.Options
	if cfg.Push.Enabled {
		if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
			logger.Fatalf("VAPID keys must be configured when push is enabled.")
		}
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions)
		pool.Start(ctx)
		notifier = append(notifier, pool)
		logger.Printf("push notifications enabled with %d workers", cfg.WorkerPool.Size)
	}

	engine := syncer.NewEngine(cfg.Remote.EmployeeID, syncer.Deps{
		Log:      actions,
		API:      client,
		Online:   monitor,
		Notifier: notifier,
		Session:  reconciler,
	})
	monitor.Attach(engine)

	svc := tracker.NewService(actions, engine, monitor, reconciler, nil)

	go monitor.Run(ctx)
	go reconciler.Run(ctx)

	router := api.NewRouter(api.NewHandler(api.Deps{
		Store:        appStore,
		Tracker:      svc,
		Queue:        engine,
		Log:          actions,
		Connectivity: monitor,
		WebPush:      webpushOptions,
	}), &cfg.Server)
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	<-stop
	logger.Println("Shutdown signal received, stopping services...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Fatalf("HTTP server Shutdown: %v", err)
	}

	logger.Println("Server gracefully stopped")
}
