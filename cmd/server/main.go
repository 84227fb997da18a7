package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playperu/storyline/internal/config"
	"github.com/playperu/storyline/internal/database"
	"github.com/playperu/storyline/internal/handler/health"
	"github.com/playperu/storyline/internal/migrations"
	"github.com/playperu/storyline/internal/server"
	"github.com/playperu/storyline/internal/story"
	"github.com/playperu/storyline/internal/telemetry"
	"github.com/playperu/storyline/internal/unlock"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout io.Writer) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	shutdownTracing, err := telemetry.Setup(ctx, "storyline", cfg.OTELEndpoint)
	if err != nil {
		return fmt.Errorf("setting up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	// --- Local store ---
	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != database.MemoryPath && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}
	}
	db, err := database.Open(ctx, cfg.DBPath)
	if err != nil {
		return fmt.Errorf("connecting to sqlite: %w", err)
	}
	defer db.Close()

	if err := migrations.RunLocal(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("connected to sqlite", "path", cfg.DBPath)

	checks := map[string]health.Checker{"sqlite": health.SQL(db)}

	// --- Stories ---
	stories, err := story.LoadDir(logger, cfg.StoriesDir,
		story.WithPreferredDefault(cfg.DefaultStoryID),
		story.WithStrictReachability(cfg.StrictReachability),
	)
	if err != nil {
		return fmt.Errorf("loading stories: %w", err)
	}
	logger.Info("loaded stories", "dir", cfg.StoriesDir, "count", len(stories.List()), "default", stories.DefaultID())

	// --- Remote account store ---
	var remote unlock.RemoteStore
	if cfg.RemoteDatabaseURL != "" {
		rdb, err := openRemote(ctx, logger, cfg, stories)
		if err != nil {
			// Progress stays on this device until the account store is back.
			logger.Warn("remote account store unavailable, running local only", "error", err)
		} else {
			defer rdb.Close()
			remote = unlock.NewPostgresStore(rdb)
			checks["postgres"] = health.SQL(rdb)
		}
	}

	// --- Sessions ---
	var sessions server.SessionStore = server.NewMemorySessionStore(cfg.SessionTTL)
	if cfg.RedisURL != "" {
		rdb, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		sessions = server.NewRedisSessionStore(rdb, cfg.SessionTTL)
		checks["redis"] = health.Redis(rdb)
		logger.Info("connected to redis")
	}

	// --- Unlock events ---
	broker := server.NewBroker()
	publishers := unlock.Publishers{broker}
	if cfg.MQTTURL != "" {
		mq, err := unlock.DialMQTT(cfg.MQTTURL, "storyline-"+uuid.NewString()[:8], cfg.MQTTTopic)
		if err != nil {
			return fmt.Errorf("connecting to mqtt: %w", err)
		}
		defer mq.Close()
		publishers = append(publishers, mq)
		checks["mqtt"] = health.Connected(mq.Connected)
		logger.Info("connected to mqtt", "url", cfg.MQTTURL, "topic", cfg.MQTTTopic)
	}

	local := unlock.NewSQLiteStore(db)
	tracker := unlock.NewTracker(logger, local, remote, publishers, cfg.RemoteTimeout)
	defer tracker.Wait()

	// --- HTTP Server ---
	srv := server.New(cfg.HTTPAddr, logger, server.Deps{
		Stories:  stories,
		Tracker:  tracker,
		Local:    local,
		Sessions: sessions,
		Broker:   broker,
		Health:   checks,
		SPADir:   cfg.SPADir,
	})

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server", "addr", cfg.HTTPAddr)
		return srv.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down http server")
		return srv.Shutdown(context.Background())
	})

	return g.Wait()
}

// openRemote connects to Postgres, migrates it and registers every playable
// story so unlocks can reference it.
func openRemote(ctx context.Context, logger *slog.Logger, cfg *config.Config, stories *story.Registry) (*sql.DB, error) {
	rdb, err := database.OpenRemote(ctx, cfg.RemoteDatabaseURL)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunRemote(rdb); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("running remote migrations: %w", err)
	}

	if cfg.RemoteRegisterPacks {
		var packs []unlock.Pack
		for _, e := range stories.List() {
			if e.Playable {
				packs = append(packs, unlock.Pack{ID: e.ID, Title: e.Title})
			}
		}
		if err := unlock.NewPostgresStore(rdb).RegisterStoryPacks(ctx, packs); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("registering story packs: %w", err)
		}
		logger.Info("registered story packs", "count", len(packs))
	}

	logger.Info("connected to remote account store")
	return rdb, nil
}

func openRedis(ctx context.Context, rawURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return rdb, nil
}
