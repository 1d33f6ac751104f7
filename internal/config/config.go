// Package config loads the environment inputs for a build, following the
// envconfig-struct pattern the rest of the service family uses.
package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the environment inputs for a build (spec §6 "Environment
// inputs for a build"). Environment variables are parsed from the
// LANTERN_INDEXD_ prefix.
type Config struct {
	PostgresDSN string `envconfig:"POSTGRES_DSN" required:"true"`

	NotifyChannel string `envconfig:"NOTIFY_CHANNEL" default:"lantern_index_jobs"`

	// ScratchDir is where the serialized index is written on the client
	// before upload. ServerPath is where lo_export writes it; it must be
	// visible to the Postgres server process.
	ScratchDir string `envconfig:"SCRATCH_DIR" default:"/tmp/lantern-indexd"`
	ServerPath string `envconfig:"SERVER_SCRATCH_DIR" default:"/tmp/lantern-indexd-export"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// New parses environment variables into a Config.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("LANTERN_INDEXD", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	return &cfg, nil
}

// DisplayName derives a short, log-safe label from the DSN host, the way
// the daemon's TargetDB.from_uri helper does, without ever logging
// credentials.
func DisplayName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Host == "" {
		return "unknown-db"
	}
	path := strings.TrimPrefix(u.Path, "/")
	if path == "" {
		return u.Host
	}
	return fmt.Sprintf("%s/%s", u.Host, path)
}
