package srv

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pelletier/go-toml/v2"
)

// EnvPrefix is the prefix of environment variables that override settings.
const EnvPrefix = "WHATSNEW_"

// Default changelog locations.
const (
	DefaultNightlyURL      = "https://raw.githubusercontent.com/ohrrpgce/ohrrpgce/wip/whatsnew.txt"
	DefaultReleaseURL      = "https://hamsterrepublic.com/ohrrpgce/whatsnew.txt"
	DefaultImportantURL    = "https://raw.githubusercontent.com/ohrrpgce/ohrrpgce/wip/IMPORTANT-nightly.txt"
	DefaultNightlyCheckURL = "https://hamsterrepublic.com/ohrrpgce/nightly-check.ini"
)

// Config holds all configurable server settings.
type Config struct {
	// Database
	DBPath string `koanf:"db_path"`

	// Server
	ListenAddr string `koanf:"listen_addr"`
	Hostname   string `koanf:"hostname"`

	// Repository. LocalRepo, when set, is read with go-git instead of the
	// GitHub API.
	GitHubRepo   string   `koanf:"github_repo"`
	GitHubBranch string   `koanf:"github_branch"`
	GitHubToken  string   `koanf:"github_token"`
	LocalRepo    string   `koanf:"local_repo"`
	LocalRemote  string   `koanf:"local_remote"`
	WatchPaths   []string `koanf:"watch_paths"`

	// Changelogs
	NightlyURL      string `koanf:"nightly_url"`
	ReleaseURL      string `koanf:"release_url"`
	ImportantURL    string `koanf:"important_url"`
	NightlyCheckURL string `koanf:"nightly_check_url"`

	// Watcher
	CheckInterval   time.Duration `koanf:"check_interval"`
	CommitsPerCheck int           `koanf:"commits_per_check"`
	NewestOnly      bool          `koanf:"newest_only"`

	// Chat delivery
	WebhookURL       string `koanf:"webhook_url"`
	MaxMessageLength int    `koanf:"max_message_length"`

	// Chat commands
	CommandCooldown time.Duration `koanf:"command_cooldown"`

	// Honeycomb markers
	HoneycombAPIKey  string `koanf:"honeycomb_api_key"`
	HoneycombDataset string `koanf:"honeycomb_dataset"`

	// API Rate Limiting
	APIRateLimit    int           `koanf:"api_rate_limit"`    // requests per interval
	APIRateInterval time.Duration `koanf:"api_rate_interval"` // interval for rate limit
	APIRateBurst    int           `koanf:"api_rate_burst"`    // max burst capacity
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		DBPath:     "db.sqlite3",
		ListenAddr: ":8000",
		Hostname:   "localhost",

		GitHubRepo:   "ohrrpgce/ohrrpgce",
		GitHubBranch: "wip",
		LocalRemote:  "origin",
		WatchPaths:   []string{"whatsnew.txt", "IMPORTANT-nightly.txt"},

		NightlyURL:      DefaultNightlyURL,
		ReleaseURL:      DefaultReleaseURL,
		ImportantURL:    DefaultImportantURL,
		NightlyCheckURL: DefaultNightlyCheckURL,

		CheckInterval:   10 * time.Minute,
		CommitsPerCheck: 10,
		NewestOnly:      true,

		// Discord rejects messages over 2000 characters; 6 go to the fences.
		MaxMessageLength: 2000 - 6,

		CommandCooldown: 30 * time.Second,

		HoneycombDataset: "whatsnewbot",

		// API: 30 requests per minute, burst of 10
		APIRateLimit:    30,
		APIRateInterval: time.Minute,
		APIRateBurst:    10,
	}
}

// tomlParser lets koanf read TOML config files.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]any, error) {
	var out map[string]any
	if err := toml.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(o map[string]any) ([]byte, error) {
	return toml.Marshal(o)
}

func parserFor(path string) (koanf.Parser, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yml", ".yaml":
		return yaml.Parser(), nil
	case ".toml":
		return tomlParser{}, nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config file type %q", filepath.Ext(path))
	}
}

// SourceURL returns the changelog URL of a whatsnew source.
func (c Config) SourceURL(source string) string {
	switch source {
	case SourceRelease:
		return c.ReleaseURL
	case SourceImportant:
		return c.ImportantURL
	default:
		return c.NightlyURL
	}
}

// LoadConfig layers configuration: defaults, then the YAML, TOML or JSON file at
// path (skipped when path is empty), then WHATSNEW_* environment variables.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		parser, err := parserFor(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(file.Provider(path), parser); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("load environment config: %w", err)
	}

	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envTransform converts environment variable names to config keys.
// Example: WHATSNEW_CHECK_INTERVAL -> check_interval
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

// Validate reports settings that would make the bot misbehave.
func (c Config) Validate() error {
	if c.GitHubRepo == "" && c.LocalRepo == "" {
		return ValidationError{Field: "github_repo", Message: "is required when local_repo is not set"}
	}
	if c.CheckInterval < time.Minute {
		return ValidationError{Field: "check_interval", Message: "must be at least 1m"}
	}
	if c.MaxMessageLength < 100 || c.MaxMessageLength > 2000-6 {
		return ValidationError{Field: "max_message_length", Message: "must be between 100 and 1994"}
	}
	if c.APIRateLimit <= 0 || c.APIRateBurst <= 0 || c.APIRateInterval <= 0 {
		return ValidationError{Field: "api_rate_limit", Message: "rate, burst and interval must be positive"}
	}
	return nil
}

// loadDefaults sets every key of DefaultConfig.
func loadDefaults(k *koanf.Koanf) error {
	defaults := make(map[string]any)
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &defaults,
		TagName: "koanf",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(DefaultConfig()); err != nil {
		return err
	}
	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}
