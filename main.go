package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trade-journal/config"
	"trade-journal/internal/api"
	"trade-journal/internal/cache"
	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/loader"
	"trade-journal/internal/logging"
	"trade-journal/internal/lounge"
	"trade-journal/internal/meeting"
	"trade-journal/internal/notification"
	"trade-journal/internal/poll"
	"trade-journal/internal/session"
	"trade-journal/internal/vault"

	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "", "path to a config.json or config.yaml file")
	sample := flag.String("generate-config", "", "write a sample config to this path and exit")
	flag.Parse()

	if *sample != "" {
		if err := config.GenerateSampleConfig(*sample); err != nil {
			log.Fatalf("Failed to write sample config: %v", err)
		}
		fmt.Printf("Sample config written to %s\n", *sample)
		return
	}

	// .env is optional
	_ = godotenv.Load()

	var (
		cfg *config.Config
		err error
	)
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	eventBus := events.NewEventBus()

	// Redis is optional; the cache runs degraded when it is unreachable
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig, cfg.SessionConfig.KeyPrefix)
		if err != nil {
			logger.WithError(err).Warn("Redis unavailable, continuing without cache")
		} else {
			defer cacheService.Close()
		}
	}

	persister, err := newPersister(cfg, cacheService)
	if err != nil {
		log.Fatalf("Failed to initialize session storage: %v", err)
	}

	client := journal.NewClient(cfg.APIConfig.BaseURL, cfg.APIConfig.Timeout, nil)
	store := session.NewStore(persister, client, eventBus)
	client.SetTokenSource(store)

	ctx := context.Background()
	if err := store.Restore(ctx); err != nil {
		logger.WithError(err).Warn("Failed to restore session")
	}

	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("Failed to initialize vault client: %v", err)
	}
	if vaultClient.IsEnabled() {
		if err := vaultClient.Health(ctx); err != nil {
			logger.WithError(err).Warn("Vault health check failed")
		}
	}

	// Sign in with stored credentials when no session survived
	if !store.IsAuthenticated() {
		if creds, err := vaultClient.Credentials(ctx); err == nil {
			if _, err := store.Login(ctx, creds.Email, creds.Password); err != nil {
				logger.WithError(err).Warn("Automatic sign-in failed")
			}
		} else if !errors.Is(err, vault.ErrNoCredentials) {
			logger.WithError(err).Warn("Failed to read stored credentials")
		}
	}

	pollHub := poll.NewHub(eventBus)
	notifications := notification.NewCenter(client, eventBus)
	board := lounge.NewBoard(client, eventBus, cfg.LoungeConfig.ReactionCooldown)
	lobby := meeting.NewLobby(client, pollHub, cfg.PollingConfig.MeetingCheck)

	var bundles *loader.Bundles
	if cfg.ServerConfig.StaticFilesPath != "" {
		var flags loader.FlagStore = loader.NewMemoryFlags()
		if cacheService != nil {
			flags = loader.NewRedisFlags(cacheService)
		}
		bundles, err = loader.NewBundles(cfg.ServerConfig.StaticFilesPath, flags)
		if err != nil {
			logger.WithError(err).Warn("Page bundles disabled")
			bundles = nil
		}
	}

	server := api.NewServer(api.ServerConfigFrom(cfg.ServerConfig), api.Services{
		Client:        client,
		Session:       store,
		EventBus:      eventBus,
		Polls:         pollHub,
		Notifications: notifications,
		Board:         board,
		Lobby:         lobby,
		Bundles:       bundles,
		Vault:         vaultClient,
		Polling:       cfg.PollingConfig,
	})

	go func() {
		if err := server.Start(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	logger.Info("Trade journal companion started",
		"backend", cfg.APIConfig.BaseURL,
		"session_backend", persister.Name(),
		"authenticated", store.IsAuthenticated(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down web server")
	}
	pollHub.Close()
	notifications.Wait()

	logger.Info("Shutdown complete")
}

// newPersister selects where the session survives restarts
func newPersister(cfg *config.Config, cs *cache.CacheService) (session.Persister, error) {
	switch cfg.SessionConfig.Backend {
	case "memory":
		return session.NewMemoryPersister(), nil
	case "redis":
		if cs == nil {
			return nil, errors.New("session backend redis requires REDIS_ENABLED=true")
		}
		return session.NewRedisPersister(cs), nil
	case "file", "":
		return session.NewFilePersister(cfg.SessionConfig.FilePath, cfg.SessionConfig.SealKey)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionConfig.Backend)
	}
}
