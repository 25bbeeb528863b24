package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"dario.cat/mergo"
	"github.com/joho/godotenv"
)

// Load reads a .env file if present (missing is not an error), reads the
// process environment, applies built-in defaults for anything unset via
// mergo, and validates the result.
//
// envFile may be empty, in which case only the process environment and
// defaults are used.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, NewLoadError(envFile, err)
		}
	}

	cfg := &Config{
		Environment:  getEnvDefault("ENVIRONMENT", "development"),
		DashboardURL: os.Getenv("DASHBOARD_URL"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		Platform: PlatformConfig{
			APIToken:              os.Getenv("API_TOKEN"),
			MonitoredProjects:     splitCSV(os.Getenv("MONITORED_PROJECTS")),
			MonitoredEnvironments: splitCSV(os.Getenv("MONITORED_ENVIRONMENTS")),
			MonitoredServices:     splitCSV(os.Getenv("MONITORED_SERVICES")),
			APIBaseURL:            getEnvDefault("PLATFORM_API_URL", "https://backboard.railway.app/graphql/v2"),
			WSBaseURL:             os.Getenv("PLATFORM_WS_URL"),
		},
		Chat: ChatConfig{
			BotToken:      os.Getenv("BOT_TOKEN"),
			SigningSecret: os.Getenv("SIGNING_SECRET"),
			ChannelID:     os.Getenv("CHANNEL_ID"),
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderType(getEnvDefault("DEFAULT_PROVIDER", string(LLMProviderAuto))),
			OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
			AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
			OpenAIModel:     os.Getenv("OPENAI_MODEL"),
			AnthropicModel:  os.Getenv("ANTHROPIC_MODEL"),
		},
	}

	perf, err := loadPerformanceConfig()
	if err != nil {
		return nil, err
	}
	cfg.Performance = perf

	retention, err := loadRetentionConfig()
	if err != nil {
		return nil, err
	}
	cfg.Retention = retention

	if err := validate(cfg); err != nil {
		return nil, err
	}

	slog.Info("configuration loaded",
		"environment", cfg.Environment,
		"monitoring_targets", len(cfg.Platform.Targets()),
		"chat_enabled", cfg.Chat.Enabled(),
		"llm_provider", cfg.LLM.Resolve())

	return cfg, nil
}

func loadPerformanceConfig() (PerformanceConfig, error) {
	defaults := DefaultPerformanceConfig()
	overrides := PerformanceConfig{}

	var errs []error
	setDuration := func(dst *time.Duration, env string) {
		if raw := os.Getenv(env); raw != "" {
			d, err := parseDurationSeconds(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
				return
			}
			*dst = d
		}
	}
	setInt := func(dst *int, env string) {
		if raw := os.Getenv(env); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", env, err))
				return
			}
			*dst = n
		}
	}

	setDuration(&overrides.ConnectionTimeout, "CONNECTION_TIMEOUT_S")
	setDuration(&overrides.HeartbeatInterval, "HEARTBEAT_INTERVAL_S")
	setDuration(&overrides.HeartbeatTimeout, "HEARTBEAT_TIMEOUT_S")
	setInt(&overrides.MaxRetryAttempts, "MAX_RETRY_ATTEMPTS")
	setDuration(&overrides.MaxBackoff, "MAX_BACKOFF_S")
	setInt(&overrides.RateLimitPerHour, "RATE_LIMIT_HR")
	setInt(&overrides.RateLimitPerSecond, "RATE_LIMIT_SEC")
	setDuration(&overrides.PollingInterval, "POLLING_INTERVAL_S")
	setInt(&overrides.BatchMin, "BATCH_MIN")
	setInt(&overrides.BatchMax, "BATCH_MAX")
	setDuration(&overrides.BatchWindowMin, "BATCH_WINDOW_MIN_S")
	setDuration(&overrides.BatchWindowMax, "BATCH_WINDOW_MAX_S")
	setDuration(&overrides.BufferRetention, "BUFFER_RETENTION_H")
	setInt(&overrides.MemoryLimitMB, "MEMORY_LIMIT_MB")
	setDuration(&overrides.ConversationIdleTimeout, "CONVERSATION_IDLE_TIMEOUT_S")

	if len(errs) > 0 {
		return PerformanceConfig{}, NewValidationError("performance", "", "", fmt.Errorf("%v", errs))
	}

	if err := mergo.Merge(&overrides, defaults); err != nil {
		return PerformanceConfig{}, fmt.Errorf("merging performance defaults: %w", err)
	}
	return overrides, nil
}

func loadRetentionConfig() (RetentionConfig, error) {
	defaults := DefaultRetentionConfig()
	overrides := RetentionConfig{}

	if raw := os.Getenv("INCIDENT_RETENTION_DAYS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return RetentionConfig{}, NewValidationError("retention", "", "incident_retention_days", err)
		}
		overrides.IncidentRetentionDays = n
	}

	if err := mergo.Merge(&overrides, defaults); err != nil {
		return RetentionConfig{}, fmt.Errorf("merging retention defaults: %w", err)
	}
	return overrides, nil
}

// parseDurationSeconds interprets a bare integer as a count of seconds,
// matching the "_S"/"_H" suffixed env var convention used throughout
// PerformanceConfig, while still accepting a Go duration string like "30s"
// or "1h" for operators who prefer to be explicit.
func parseDurationSeconds(raw string) (time.Duration, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(raw)
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// validate enforces the required-field and cross-field invariants that a
// zero-value Config would otherwise silently pass through to the rest of
// the application.
func validate(cfg *Config) error {
	if cfg.Platform.APIToken == "" {
		return NewValidationError("platform", "", "api_token", ErrMissingRequiredField)
	}
	if len(cfg.Platform.Targets()) == 0 {
		return NewValidationError("platform", "", "monitored_projects/environments/services", ErrMissingRequiredField)
	}

	if cfg.Chat.BotToken != "" {
		if cfg.Chat.SigningSecret == "" {
			return NewValidationError("chat", "", "signing_secret", ErrMissingRequiredField)
		}
		if cfg.Chat.ChannelID == "" {
			return NewValidationError("chat", "", "channel_id", ErrMissingRequiredField)
		}
	}

	if !cfg.LLM.DefaultProvider.IsValid() {
		return NewValidationError("llm", "", "default_provider", ErrInvalidValue)
	}
	if cfg.LLM.OpenAIAPIKey == "" && cfg.LLM.AnthropicAPIKey == "" {
		return NewValidationError("llm", "", "openai_api_key/anthropic_api_key", ErrMissingRequiredField)
	}

	if cfg.Performance.BatchMin > cfg.Performance.BatchMax {
		return NewValidationError("performance", "", "batch_min/batch_max", ErrInvalidValue)
	}
	if cfg.Performance.BatchWindowMin > cfg.Performance.BatchWindowMax {
		return NewValidationError("performance", "", "batch_window_min_s/batch_window_max_s", ErrInvalidValue)
	}

	if cfg.Retention.IncidentRetentionDays <= 0 {
		return NewValidationError("retention", "", "incident_retention_days", ErrInvalidValue)
	}

	return nil
}
