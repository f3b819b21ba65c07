package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	ferrors "github.com/abduznik/AI-PR-Analyzer/internal/foundation/errors"
)

// Validate checks everything needed to talk to the external services and
// run the schedule. Offline operator commands skip it.
func (c *Config) Validate() error {
	for _, check := range []func() error{
		c.validateCredentials,
		c.validateSchedule,
		c.validateLimits,
		c.validateRepos,
	} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateCredentials() error {
	var missing []string
	if c.GitHub.Token == "" {
		missing = append(missing, "github.token (GITHUB_TOKEN)")
	}
	if c.Telegram.Token == "" {
		missing = append(missing, "telegram.token (TELEGRAM_TOKEN)")
	}
	if c.Telegram.ChatID == "" {
		missing = append(missing, "telegram.chat_id (TELEGRAM_CHAT_ID)")
	}
	if c.LLM.APIKey == "" {
		missing = append(missing, fmt.Sprintf("llm.api_key (%s_API_KEY)", strings.ToUpper(string(c.LLM.Provider))))
	}
	if len(missing) > 0 {
		return ferrors.ConfigError("missing required settings: " + strings.Join(missing, ", ")).
			WithContext("missing", missing).
			Build()
	}
	if _, err := providerNormalizer.Parse(string(c.LLM.Provider)); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "unknown llm provider").Fatal().Build()
	}
	return nil
}

func (c *Config) validateSchedule() error {
	if _, err := cron.ParseStandard(c.Schedule.Cron); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid schedule.cron").
			Fatal().
			WithContext("cron", c.Schedule.Cron).
			Build()
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryConfig, "invalid schedule.timezone").
			Fatal().
			WithContext("timezone", c.Schedule.Timezone).
			Build()
	}
	return nil
}

func (c *Config) validateLimits() error {
	if c.Memory.ContextTurns > c.Memory.MaxTurns {
		return ferrors.ConfigError(fmt.Sprintf("memory.context_turns (%d) exceeds memory.max_turns (%d)",
			c.Memory.ContextTurns, c.Memory.MaxTurns)).Build()
	}
	if c.Retry.Initial > c.Retry.Max {
		return ferrors.ConfigError("retry.initial must not exceed retry.max").Build()
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return ferrors.ConfigError("llm.temperature must be within [0, 2]").Build()
	}
	return nil
}

func (c *Config) validateRepos() error {
	for _, r := range c.GitHub.TargetRepos {
		owner, name, ok := strings.Cut(r, "/")
		if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
			return ferrors.ConfigError(fmt.Sprintf("github.target_repos entry %q must be owner/repo", r)).Build()
		}
	}
	return nil
}
