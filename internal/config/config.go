// Package config reads the bot settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/keshon/interactions/pkg/interactions"
)

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN"`
	ApplicationID string `env:"DISCORD_APP_ID"`
	// GuildID scopes command registration to one guild; empty means global.
	GuildID     string `env:"DISCORD_GUILD_ID"`
	OwnerID     string `env:"DISCORD_OWNER_ID"`
	StoragePath string `env:"STORAGE_PATH" envDefault:"datastore.json"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"true"`
	// LogFile adds a rotated JSON log file when set.
	LogFile       string `env:"LOG_FILE"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB" envDefault:"10"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS" envDefault:"3"`

	// OTLPEndpoint enables span export over OTLP/HTTP, e.g. http://localhost:4318.
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	RunMode                 string `env:"RUN_MODE" envDefault:"sync"`
	ThrowOnError            bool   `env:"THROW_ON_ERROR"`
	DeleteUnknownCommandAck bool   `env:"DELETE_UNKNOWN_COMMAND_ACK" envDefault:"true"`
	// CustomIDDelimiters lists extra characters splitting component custom ids.
	CustomIDDelimiters string `env:"CUSTOM_ID_DELIMITERS" envDefault:":"`

	DeleteMissing bool `env:"SYNC_DELETE_MISSING" envDefault:"true"`
	SyncOnReady   bool `env:"SYNC_ON_READY" envDefault:"true"`
}

// Load reads files (".env" when none given) into the process environment,
// then parses it. Missing files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return Parse(env.Options{})
}

// Parse builds a Config from the environment described by opts.
func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	if c.LogMaxSizeMB < 1 || c.LogMaxBackups < 0 {
		return errors.New("LOG_MAX_SIZE_MB must be positive and LOG_MAX_BACKUPS not negative")
	}
	switch strings.ToLower(c.RunMode) {
	case "sync", "async":
	default:
		return fmt.Errorf("RUN_MODE: unknown mode %q", c.RunMode)
	}
	return nil
}

// RequireToken reports a missing DISCORD_TOKEN.
func (c *Config) RequireToken() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is not set")
	}
	return nil
}

// Level returns the parsed LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// Interactions maps the settings onto the service configuration. Transport,
// cache and logger are left to the caller.
func (c *Config) Interactions() interactions.Config {
	mode := interactions.RunSync
	if strings.EqualFold(c.RunMode, "async") {
		mode = interactions.RunAsync
	}
	return interactions.Config{
		RunMode:                 mode,
		ThrowOnError:            c.ThrowOnError,
		DeleteUnknownCommandAck: c.DeleteUnknownCommandAck,
		ComponentSeparators:     []rune(c.CustomIDDelimiters),
	}
}
