package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

// CurrentVersion is the only accepted configuration version.
const CurrentVersion = "1.0"

// Config is the prbot configuration.
type Config struct {
	Version    string           `yaml:"version"`
	GitHub     GitHubConfig     `yaml:"github"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	LLM        LLMConfig        `yaml:"llm"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Storage    StorageConfig    `yaml:"storage"`
	Memory     MemoryConfig     `yaml:"memory"`
	Events     EventsConfig     `yaml:"events"`
	Retry      RetryConfig      `yaml:"retry"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// GitHubConfig configures the pull request source.
type GitHubConfig struct {
	Token          string   `yaml:"token"`
	APIURL         string   `yaml:"api_url"`
	IncludePrivate bool     `yaml:"include_private"`
	TargetRepos    []string `yaml:"target_repos"`
	// MaxRepositories bounds owned-repository discovery (0 means unbounded).
	MaxRepositories int `yaml:"max_repositories"`
	MaxDiffBytes    int `yaml:"max_diff_bytes"`
	// IssueLookupRepos bounds the owned repositories scanned when a chat message asks about issues.
	IssueLookupRepos int `yaml:"issue_lookup_repos"`
	MaxIssues        int `yaml:"max_issues"`
}

// TelegramConfig configures the chat transport.
type TelegramConfig struct {
	Token            string        `yaml:"token"`
	ChatID           string        `yaml:"chat_id"`
	APIURL           string        `yaml:"api_url"`
	PollTimeout      time.Duration `yaml:"poll_timeout"`
	StartupNotice    *bool         `yaml:"startup_notice"`
	StartupNoticeTTL time.Duration `yaml:"startup_notice_ttl"`
}

// NoticeEnabled reports whether the startup notice is sent.
func (t TelegramConfig) NoticeEnabled() bool {
	return t.StartupNotice == nil || *t.StartupNotice
}

// LLMConfig selects and configures the text generator.
type LLMConfig struct {
	Provider    LLMProvider `yaml:"provider"`
	Model       string      `yaml:"model"`
	APIKey      string      `yaml:"api_key"`
	BaseURL     string      `yaml:"base_url"`
	Temperature float64     `yaml:"temperature"`
	MaxTokens   int         `yaml:"max_tokens"`
}

// ScheduleConfig configures the periodic review pass.
type ScheduleConfig struct {
	Cron     string `yaml:"cron"`
	Timezone string `yaml:"timezone"`
}

// StorageConfig locates the persisted documents.
type StorageConfig struct {
	DataDir     string `yaml:"data_dir"`
	DedupFile   string `yaml:"dedup_file"`
	SessionFile string `yaml:"session_file"`
	EventsDB    string `yaml:"events_db"`
}

// DedupPath returns the dedup document path.
func (s StorageConfig) DedupPath() string { return s.resolve(s.DedupFile) }

// SessionPath returns the session document path.
func (s StorageConfig) SessionPath() string { return s.resolve(s.SessionFile) }

// EventsPath returns the event store path, or "" when disabled.
func (s StorageConfig) EventsPath() string {
	if s.EventsDB == "" {
		return ""
	}
	return s.resolve(s.EventsDB)
}

func (s StorageConfig) resolve(name string) string {
	if filepath.IsAbs(name) || s.DataDir == "" {
		return name
	}
	return filepath.Join(s.DataDir, name)
}

// MemoryConfig bounds conversation memory.
type MemoryConfig struct {
	MaxTurns     int `yaml:"max_turns"`
	ContextTurns int `yaml:"context_turns"`
}

// EventsConfig configures review event publishing. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"`
	Subject string `yaml:"subject"`
	Stream  string `yaml:"stream"`
}

// RetryConfig configures notification send retries.
type RetryConfig struct {
	Mode       RetryBackoffMode `yaml:"mode"`
	Initial    time.Duration    `yaml:"initial"`
	Max        time.Duration    `yaml:"max"`
	MaxRetries int              `yaml:"max_retries"`
}

// MonitoringConfig configures the admin endpoint and logging.
type MonitoringConfig struct {
	AdminAddr string            `yaml:"admin_addr"`
	Logging   MonitoringLogging `yaml:"logging"`
}

// MonitoringLogging represents logging configuration.
type MonitoringLogging struct {
	Level  LogLevel  `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// Load reads configPath, applies .env files, environment overrides,
// normalization and defaults. A missing file yields an environment-only
// configuration. Load does not validate; call Validate before starting
// anything that talks to external services.
func Load(configPath string) (*Config, error) {
	loadEnvFiles()

	cfg := &Config{}
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			slog.Debug("Configuration file not found, using environment only", "path", configPath)
		case err != nil:
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to read config file").
				WithContext("path", configPath).
				Build()
		default:
			expanded := os.ExpandEnv(string(data))
			if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
				return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "failed to parse config file").
					WithContext("path", configPath).
					Build()
			}
		}
	}

	if cfg.Version != "" && cfg.Version != CurrentVersion {
		return nil, ferrors.ConfigError(fmt.Sprintf("unsupported configuration version: %s (expected %s)", cfg.Version, CurrentVersion)).Build()
	}

	res, err := Normalize(cfg)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		slog.Warn("Config normalization", "warning", w)
	}
	applyEnvOverrides(cfg, os.LookupEnv)
	applyDefaults(cfg)
	return cfg, nil
}

// Init writes an example configuration file.
func Init(configPath string, force bool) error {
	if _, err := os.Stat(configPath); err == nil && !force {
		return ferrors.ValidationError(fmt.Sprintf("configuration file already exists: %s (use --force to overwrite)", configPath)).Build()
	}

	example := &Config{
		GitHub: GitHubConfig{Token: "${GITHUB_TOKEN}", TargetRepos: []string{}},
		Telegram: TelegramConfig{
			Token:  "${TELEGRAM_TOKEN}",
			ChatID: "${TELEGRAM_CHAT_ID}",
		},
		LLM: LLMConfig{Provider: ProviderOpenAI, APIKey: "${OPENAI_API_KEY}"},
	}
	applyDefaults(example)

	data, err := yaml.Marshal(example)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategoryInternal, "failed to marshal example config").Build()
	}
	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to create config directory").Build()
		}
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "failed to write config file").Build()
	}
	return nil
}
