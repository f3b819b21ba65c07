package config

import (
	"fmt"
	"strings"
)

// NormalizationResult captures adjustments & warnings from normalization pass.
type NormalizationResult struct{ Warnings []string }

// Normalize canonicalizes enumerated and list fields in place. Unknown enum
// values fall back to their default with a warning.
func Normalize(c *Config) (*NormalizationResult, error) {
	if c == nil {
		return nil, fmt.Errorf("config nil")
	}
	res := &NormalizationResult{}

	c.LLM.Provider = normalizeEnum(res, "llm.provider", c.LLM.Provider, providerNormalizer.Parse, ProviderOpenAI)
	c.Retry.Mode = normalizeEnum(res, "retry.mode", c.Retry.Mode, retryNormalizer.Parse, RetryBackoffLinear)
	c.Monitoring.Logging.Level = normalizeEnum(res, "monitoring.logging.level", c.Monitoring.Logging.Level, logLevelNormalizer.Parse, LogLevelInfo)
	c.Monitoring.Logging.Format = normalizeEnum(res, "monitoring.logging.format", c.Monitoring.Logging.Format, logFormatNormalizer.Parse, LogFormatText)

	repos := make([]string, 0, len(c.GitHub.TargetRepos))
	seen := make(map[string]struct{}, len(c.GitHub.TargetRepos))
	for _, r := range c.GitHub.TargetRepos {
		r = strings.Trim(strings.TrimSpace(r), "/")
		if r == "" {
			continue
		}
		key := strings.ToLower(r)
		if _, dup := seen[key]; dup {
			res.Warnings = append(res.Warnings, fmt.Sprintf("duplicate github.target_repos entry '%s' ignored", r))
			continue
		}
		seen[key] = struct{}{}
		repos = append(repos, r)
	}
	c.GitHub.TargetRepos = repos

	c.Telegram.ChatID = strings.TrimSpace(c.Telegram.ChatID)
	c.Schedule.Cron = strings.TrimSpace(c.Schedule.Cron)
	return res, nil
}

// normalizeEnum leaves blank values blank so defaults can apply later.
func normalizeEnum[T ~string](res *NormalizationResult, field string, value T, parse func(string) (T, error), def T) T {
	if strings.TrimSpace(string(value)) == "" {
		return ""
	}
	parsed, err := parse(string(value))
	if err != nil {
		res.Warnings = append(res.Warnings, fmt.Sprintf("unknown %s '%s', defaulting to %s", field, value, def))
		return def
	}
	if parsed != value {
		res.Warnings = append(res.Warnings, fmt.Sprintf("normalized %s from '%v' to '%v'", field, value, parsed))
	}
	return parsed
}
