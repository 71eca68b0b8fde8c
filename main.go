package main

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"notehub/config"
	"notehub/internal/bus"
	"notehub/internal/directory"
	"notehub/internal/presence"
	"notehub/internal/store"
	"notehub/pkg/logger"
	"notehub/router"
	"notehub/socket"
)

func main() {
	logger.Init()
	defer logger.Log.Sync()

	if err := godotenv.Load(); err != nil {
		logger.Sugar.Info("No .env file found, using environment variables from OS")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Sugar.Fatalf("Invalid configuration: %v", err)
	}

	st := openStore(cfg)

	user, err := st.LoadUser()
	if err != nil {
		logger.Sugar.Fatalf("Failed to load local identity: %v", err)
	}
	logger.Sugar.Infof("Local identity: %s (%s)", user.Name, user.ID)

	// The directory and the hub each get their own bus connection: the hub
	// must hear the directory's broadcasts, so they cannot share a publisher
	// identity.
	busDir, busHub := openBuses(cfg)
	defer busDir.Close()
	defer busHub.Close()

	svc := directory.NewService(st, busDir, user)
	if err := svc.EnsureSeed(user.ID); err != nil {
		logger.Sugar.Warnf("Failed to seed documents: %v", err)
	}

	tracker := presence.NewTracker(busHub, presence.Config{
		HeartbeatInterval: cfg.HeartbeatInterval,
		ExpiryWindow:      cfg.ExpiryWindow,
		SweepInterval:     cfg.SweepInterval,
	})

	hub := socket.NewHub(svc, busHub, tracker)
	go hub.Run()
	defer hub.Close()

	logger.Sugar.Infof("notehub listening on :%s", cfg.ServerPort)
	if err := http.ListenAndServe(":"+cfg.ServerPort, router.Setup(svc, hub, user)); err != nil {
		logger.Sugar.Fatalf("Server stopped: %v", err)
	}
}

func openStore(cfg *config.Config) store.Store {
	if cfg.StoreDriver == config.StoreDriverPostgres {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			logger.Sugar.Fatalf("Failed to open database connection: %v", err)
		}

		// Retry a few times in case of temporary DNS/network blips.
		for i := 0; i < 5; i++ {
			if err = db.Ping(); err == nil {
				break
			}
			logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
			time.Sleep(2 * time.Second)
		}
		if err != nil {
			logger.Sugar.Fatal("Could not connect to database after retries")
		}

		ps := store.NewPostgresStore(db)
		if err := ps.EnsureSchema(); err != nil {
			logger.Sugar.Fatalf("Failed to prepare database schema: %v", err)
		}
		logger.Sugar.Info("Using postgres store")
		return ps
	}

	fs, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		logger.Sugar.Fatalf("Failed to open data dir %s: %v", cfg.DataDir, err)
	}
	logger.Sugar.Infof("Using file store in %s", cfg.DataDir)
	return fs
}

func openBuses(cfg *config.Config) (bus.Bus, bus.Bus) {
	if cfg.RedisURL != "" {
		a, err := bus.NewRedisBus(cfg.RedisURL)
		if err != nil {
			logger.Sugar.Fatalf("Failed to connect bus to redis: %v", err)
		}
		b, err := bus.NewRedisBus(cfg.RedisURL)
		if err != nil {
			logger.Sugar.Fatalf("Failed to connect bus to redis: %v", err)
		}
		logger.Sugar.Info("Change bus is backed by redis")
		return a, b
	}

	exch := bus.NewExchange()
	return exch.Connect(), exch.Connect()
}
