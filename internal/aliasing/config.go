// Package aliasing loads the optional .pitchlog.yaml file: team name aliases used
// to fold alternate spellings into one team statistics row, and the API keys
// accepted by the ingestion endpoint.
package aliasing

import (
	"errors"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pitchlog-io/pitchlog/internal/config"
)

// DefaultConfigPath is the default location of the pitchlog configuration file.
const DefaultConfigPath = ".pitchlog.yaml"

// ConfigPathEnvVar is the environment variable naming a custom config path.
const ConfigPathEnvVar = "PITCHLOG_CONFIG_PATH"

type (
	// Config is the content of .pitchlog.yaml.
	//
	//	team_aliases:
	//	  "Lions FC": Lions
	//	team_patterns:
	//	  - pattern: "{club} (U21)"
	//	    canonical: "{club}"
	//	api_keys:
	//	  - id: scorer-1
	//	    name: Stadium scorer
	//	    hash: $2a$10$...
	//	    expires_at: 2027-01-01T00:00:00Z
	Config struct {
		// TeamAliases maps an alternate team name to its canonical name.
		// Lookup is case-insensitive on the alias.
		//nolint:tagliatelle // snake_case is intentional for YAML config files
		TeamAliases map[string]string `yaml:"team_aliases"`

		// TeamPatterns are tried in order when no alias matches.
		//nolint:tagliatelle
		TeamPatterns []TeamPattern `yaml:"team_patterns"`

		//nolint:tagliatelle
		APIKeys []APIKeyEntry `yaml:"api_keys"`
	}

	// TeamPattern rewrites team names matching Pattern into Canonical.
	// {name} captures any run of characters; literal text matches exactly.
	TeamPattern struct {
		Pattern   string `yaml:"pattern"`
		Canonical string `yaml:"canonical"`
	}

	// APIKeyEntry is a configured API key. Hash is the bcrypt hash of the secret;
	// the plaintext never appears in configuration.
	APIKeyEntry struct {
		ID       string     `yaml:"id"`
		Name     string     `yaml:"name"`
		Hash     string     `yaml:"hash"`
		Disabled bool       `yaml:"disabled"`
		//nolint:tagliatelle
		ExpiresAt *time.Time `yaml:"expires_at,omitempty"`
	}
)

func emptyConfig() *Config {
	return &Config{TeamAliases: make(map[string]string)}
}

// LoadConfig loads configuration from a YAML file at path.
//
// A missing, unreadable or invalid file yields an empty config and a log line,
// never an error: every section is optional.
func LoadConfig(path string) (*Config, error) {
	cfg := emptyConfig()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Config file not found, continuing without aliases or API keys",
				slog.String("path", path))

			return cfg, nil
		}

		slog.Warn("Failed to read config file, continuing without aliases or API keys",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		slog.Warn("Failed to parse config file, continuing without aliases or API keys",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return emptyConfig(), nil
	}

	if cfg.TeamAliases == nil {
		cfg.TeamAliases = make(map[string]string)
	}

	return cfg, nil
}

// LoadConfigFromEnv loads config from PITCHLOG_CONFIG_PATH, falling back to
// .pitchlog.yaml in the working directory.
func LoadConfigFromEnv() (*Config, error) {
	return LoadConfig(config.GetEnvStr(ConfigPathEnvVar, DefaultConfigPath))
}
