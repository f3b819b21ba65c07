package config

import "time"

// Default values.
const (
	DefaultGitHubAPIURL      = "https://api.github.com"
	DefaultTelegramAPIURL    = "https://api.telegram.org"
	DefaultCron              = "0 7,13,19 * * *"
	DefaultDataDir           = "./data"
	DefaultDedupFile         = "reviewed_state.json"
	DefaultSessionFile       = "sessions.json"
	DefaultEventsDB          = "events.db"
	DefaultMaxDiffBytes      = 30000
	DefaultIssueLookupRepos  = 50
	DefaultMaxIssues         = 10
	DefaultMaxTurns          = 20
	DefaultContextTurns      = 10
	DefaultPollTimeout       = 30 * time.Second
	DefaultStartupNoticeTTL  = 5 * time.Second
	DefaultEventsSubject     = "prbot.reviews"
	DefaultEventsStream      = "PRBOT"
	DefaultAdminAddr         = ":9090"
	DefaultOpenAIModel       = "gpt-4o-mini"
	DefaultAnthropicModel    = "claude-3-5-haiku-latest"
	DefaultLLMMaxTokens      = 2048
	DefaultRetryInitialDelay = time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultRetryMaxRetries   = 2
)

// applyDefaults fills every unset field. It runs after normalization so
// canonical enum values drive the choice of defaults.
func applyDefaults(c *Config) {
	if c.Version == "" {
		c.Version = CurrentVersion
	}

	gh := &c.GitHub
	if gh.APIURL == "" {
		gh.APIURL = DefaultGitHubAPIURL
	}
	if gh.MaxDiffBytes <= 0 {
		gh.MaxDiffBytes = DefaultMaxDiffBytes
	}
	if gh.IssueLookupRepos <= 0 {
		gh.IssueLookupRepos = DefaultIssueLookupRepos
	}
	if gh.MaxIssues <= 0 {
		gh.MaxIssues = DefaultMaxIssues
	}

	tg := &c.Telegram
	if tg.APIURL == "" {
		tg.APIURL = DefaultTelegramAPIURL
	}
	if tg.PollTimeout <= 0 {
		tg.PollTimeout = DefaultPollTimeout
	}
	if tg.StartupNoticeTTL <= 0 {
		tg.StartupNoticeTTL = DefaultStartupNoticeTTL
	}

	llm := &c.LLM
	if llm.Provider == "" {
		llm.Provider = ProviderOpenAI
	}
	if llm.Model == "" {
		switch llm.Provider {
		case ProviderAnthropic:
			llm.Model = DefaultAnthropicModel
		default:
			llm.Model = DefaultOpenAIModel
		}
	}
	if llm.MaxTokens <= 0 {
		llm.MaxTokens = DefaultLLMMaxTokens
	}

	if c.Schedule.Cron == "" {
		c.Schedule.Cron = DefaultCron
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Local"
	}

	st := &c.Storage
	if st.DataDir == "" {
		st.DataDir = DefaultDataDir
	}
	if st.DedupFile == "" {
		st.DedupFile = DefaultDedupFile
	}
	if st.SessionFile == "" {
		st.SessionFile = DefaultSessionFile
	}
	if st.EventsDB == "" {
		st.EventsDB = DefaultEventsDB
	}

	if c.Memory.MaxTurns <= 0 {
		c.Memory.MaxTurns = DefaultMaxTurns
	}
	if c.Memory.ContextTurns <= 0 {
		c.Memory.ContextTurns = DefaultContextTurns
	}

	if c.Events.Subject == "" {
		c.Events.Subject = DefaultEventsSubject
	}
	if c.Events.Stream == "" {
		c.Events.Stream = DefaultEventsStream
	}

	r := &c.Retry
	if r.Mode == "" {
		r.Mode = RetryBackoffLinear
	}
	if r.Initial <= 0 {
		r.Initial = DefaultRetryInitialDelay
	}
	if r.Max <= 0 {
		r.Max = DefaultRetryMaxDelay
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	} else if r.MaxRetries == 0 {
		r.MaxRetries = DefaultRetryMaxRetries
	}

	if c.Monitoring.AdminAddr == "" {
		c.Monitoring.AdminAddr = DefaultAdminAddr
	}
	if c.Monitoring.Logging.Level == "" {
		c.Monitoring.Logging.Level = LogLevelInfo
	}
	if c.Monitoring.Logging.Format == "" {
		c.Monitoring.Logging.Format = LogFormatText
	}
}
