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

	"outlet-geofence-backend/config"
	"outlet-geofence-backend/internal/api"
	"outlet-geofence-backend/internal/db"
	"outlet-geofence-backend/internal/engine"
	"outlet-geofence-backend/internal/geofence"
	"outlet-geofence-backend/internal/notification"
	"outlet-geofence-backend/internal/outlet"
	"outlet-geofence-backend/internal/scheduler"
	"outlet-geofence-backend/internal/store"
	"outlet-geofence-backend/internal/transport"
)

func main() {
	logger := log.New(os.Stdout, "outletd ", log.LstdFlags)

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	}
	logger.Printf("configuration loaded successfully from %s", configPath)

	if cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "" {
		logger.Printf("Warning: VAPID keys are not configured; push deliveries will fail until they are set.")
	}
	webpushOptions := webpush.Options{
		VAPIDPublicKey:  cfg.Push.PublicKey,
		VAPIDPrivateKey: cfg.Push.PrivateKey,
		Subscriber:      cfg.Push.Subject,
		TTL:             cfg.Push.TTL,
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	logger.Println("database initialized successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	var tp outlet.Transport
	switch cfg.Transport.Kind {
	case "mqtt":
		mqttTransport, err := transport.NewMQTT(cfg.Transport.BrokerURL, cfg.Transport.ClientID,
			cfg.Transport.CommandTopic, cfg.Transport.AckTopic)
		if err != nil {
			logger.Fatalf("failed to connect command transport: %v", err)
		}
		defer mqttTransport.Close()
		tp = mqttTransport
	default:
		logger.Println("using loopback command transport")
		tp = transport.NewLoopback(100 * time.Millisecond)
	}

	monitor := geofence.NewMonitor(nil, cfg.Geofence.MaxAccuracyMeters, cfg.Geofence.MaxSampleAge)
	zone := geofence.NewStateMachine(cfg.Geofence.ExitDebounceSamples)
	outlets := outlet.NewStateStore(nil)
	dispatcher := outlet.NewDispatcher(tp, outlets, cfg.Automation.CommandTimeout,
		cfg.Automation.CommandMaxRetries, cfg.Automation.BackoffBase)
	sched := scheduler.New(appStore)
	dedup := notification.NewDeduplicator(appStore, 1000)
	notifier := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, &webpushOptions, dedup)

	eng := engine.New(cfg, appStore, monitor, zone, outlets, dispatcher, sched, dedup, notifier)
	go eng.Run(ctx)

	router := api.NewRouter(appStore, eng, &webpushOptions,
		cfg.Server.RateLimitPerSec, time.Duration(cfg.Server.CacheTTLSeconds)*time.Second)
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
	dispatcher.Wait()

	logger.Println("Server gracefully stopped")
}
