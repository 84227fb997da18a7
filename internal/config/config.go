package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath   string     `env:"DB_PATH" envDefault:"data/storyline.db"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR" envDefault:"../web/dist"`

	StoriesDir         string `env:"STORIES_DIR" envDefault:"stories"`
	DefaultStoryID     string `env:"DEFAULT_STORY_ID" envDefault:"pdkt-awal"`
	StrictReachability bool   `env:"STRICT_REACHABILITY" envDefault:"false"`

	// Remote account store. Empty disables cloud sync.
	RemoteDatabaseURL   string        `env:"REMOTE_DATABASE_URL"`
	RemoteTimeout       time.Duration `env:"REMOTE_TIMEOUT" envDefault:"5s"`
	RemoteRegisterPacks bool          `env:"REMOTE_REGISTER_PACKS" envDefault:"true"`

	// Play sessions live in Redis when set, in memory otherwise.
	RedisURL   string        `env:"REDIS_URL"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	MQTTURL   string `env:"MQTT_URL"`
	MQTTTopic string `env:"MQTT_TOPIC" envDefault:"storyline/unlocks"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	if cfg.RemoteTimeout <= 0 {
		return nil, fmt.Errorf("REMOTE_TIMEOUT must be positive, got %s", cfg.RemoteTimeout)
	}
	return &cfg, nil
}
