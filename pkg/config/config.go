package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

// FileName is the optional per-library config file, read from the library
// root when present.
const FileName = "folio.yaml"

const envPrefix = "FOLIO_"

type Config struct {
	// LibraryPath is the root directory of the open library. metadata.db,
	// the preference backup file, and all record directories live under it.
	LibraryPath string `koanf:"library_path" validate:"required"`

	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"2s"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"4" validate:"min=0"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5" validate:"min=1"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`

	// PermanentDelete disables the reversible trash for record deletions
	// and path migrations.
	PermanentDelete bool `koanf:"permanent_delete"`

	ServerHost string `koanf:"server_host"`
	ServerPort int    `koanf:"server_port" default:"8299" validate:"min=1,max=65535"`
}

// New builds the configuration for a library rooted at libraryPath:
// defaults, then the folio.yaml file in the library root if one exists,
// then FOLIO_* environment variables.
func New(libraryPath string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg.LibraryPath = libraryPath

	k := koanf.New(".")

	configFile := filepath.Join(libraryPath, FileName)
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	}

	err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	// The file and environment never override the library being opened.
	cfg.LibraryPath = libraryPath

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}

	return cfg, nil
}
