package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

var envFiles = []string{".env", ".env.local"}

// loadEnvFiles loads .env/.env.local when present. Variables already set in
// the process environment are never overwritten.
func loadEnvFiles() {
	for _, path := range envFiles {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			slog.Warn("Failed to load env file", "path", path, "error", err)
			continue
		}
		slog.Debug("Loaded environment variables", "path", path)
	}
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(string) (string, bool)

// applyEnvOverrides maps the environment variables understood by the bot onto cfg.
func applyEnvOverrides(c *Config, lookup lookupFunc) {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	if v, ok := get("GITHUB_TOKEN"); ok {
		c.GitHub.Token = v
	}
	if v, ok := get("INCLUDE_PRIVATE"); ok {
		c.GitHub.IncludePrivate = strings.EqualFold(v, "true")
	}
	if v, ok := get("TARGET_REPOS"); ok {
		c.GitHub.TargetRepos = splitList(v)
	}
	if v, ok := get("TELEGRAM_TOKEN"); ok {
		c.Telegram.Token = v
	}
	if v, ok := get("TELEGRAM_CHAT_ID"); ok {
		c.Telegram.ChatID = v
	}

	openaiKey, hasOpenAI := get("OPENAI_API_KEY")
	anthropicKey, hasAnthropic := get("ANTHROPIC_API_KEY")
	if c.LLM.Provider == "" && hasAnthropic && !hasOpenAI {
		c.LLM.Provider = ProviderAnthropic
	}
	if c.LLM.APIKey == "" {
		switch {
		case c.LLM.Provider == ProviderAnthropic && hasAnthropic:
			c.LLM.APIKey = anthropicKey
		case c.LLM.Provider != ProviderAnthropic && hasOpenAI:
			c.LLM.APIKey = openaiKey
		}
	}

	if v, ok := get("NATS_URL"); ok {
		c.Events.NATSURL = v
	}
	if v, ok := get("PRBOT_DATA_DIR"); ok {
		c.Storage.DataDir = v
	}
	if v, ok := get("PRBOT_LOG_LEVEL"); ok {
		c.Monitoring.Logging.Level = NormalizeLogLevel(v)
	}
}

// splitList splits a comma separated list, dropping blanks.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
