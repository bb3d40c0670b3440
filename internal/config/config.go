// Package config loads tidy.toml and applies environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultPath        = "tidy.toml"
	DefaultJournalPath = "tidy.db"
	DefaultLogDir      = "logs"
	DefaultRulesPath   = "rules.yaml"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"

	envArchiveAccessKey = "TIDY_ARCHIVE_ACCESS_KEY"
	envArchiveSecretKey = "TIDY_ARCHIVE_SECRET_KEY"
)

// Archive holds the settings for shipping run logs to an S3-compatible bucket
type Archive struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Folder    string `toml:"folder"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Secure    bool   `toml:"secure"`
}

// Enabled reports whether any archive setting is present
func (a Archive) Enabled() bool {
	return a.Endpoint != "" || a.Bucket != "" || a.AccessKey != "" || a.SecretKey != ""
}

// Config models tidy.toml
type Config struct {
	JournalPath string  `toml:"journal_path"`
	LogDir      string  `toml:"log_dir"`
	RulesPath   string  `toml:"rules_path"`
	LogLevel    string  `toml:"log_level"`
	LogFormat   string  `toml:"log_format"`
	Archive     Archive `toml:"archive"`
}

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		JournalPath: DefaultJournalPath,
		LogDir:      DefaultLogDir,
		RulesPath:   DefaultRulesPath,
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		Archive:     Archive{Secure: true},
	}
}

// Load reads path on top of the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("load config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envArchiveAccessKey); v != "" {
		c.Archive.AccessKey = v
	}
	if v := os.Getenv(envArchiveSecretKey); v != "" {
		c.Archive.SecretKey = v
	}
}

func (c *Config) normalize() {
	if c.JournalPath == "" {
		c.JournalPath = DefaultJournalPath
	}
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.RulesPath == "" {
		c.RulesPath = DefaultRulesPath
	}
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	if c.LogFormat == "" {
		c.LogFormat = DefaultLogFormat
	}
	c.Archive.Folder = strings.Trim(c.Archive.Folder, "/")
}

// Validate checks logging settings and archive completeness
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log_format %q (want text or json)", c.LogFormat)
	}
	if c.Archive.Enabled() {
		var missing []string
		if c.Archive.Endpoint == "" {
			missing = append(missing, "endpoint")
		}
		if c.Archive.Bucket == "" {
			missing = append(missing, "bucket")
		}
		if c.Archive.AccessKey == "" {
			missing = append(missing, "access_key")
		}
		if c.Archive.SecretKey == "" {
			missing = append(missing, "secret_key")
		}
		if len(missing) > 0 {
			return fmt.Errorf("archive settings incomplete: missing %s", strings.Join(missing, ", "))
		}
	}
	return nil
}
