package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Telegram      TelegramConfig      `koanf:"telegram"`
	Calendar      CalendarConfig      `koanf:"calendar"`
	Vault         VaultConfig         `koanf:"vault"`
	Store         StoreConfig         `koanf:"store"`
	Slots         SlotsConfig         `koanf:"slots"`
	Sync          SyncConfig          `koanf:"sync"`
	Sessions      SessionsConfig      `koanf:"sessions"`
	Notifications NotificationsConfig `koanf:"notifications"`
	NLP           NLPConfig           `koanf:"nlp"`
	Scheduler     SchedulerConfig     `koanf:"scheduler"`
	Git           GitConfig           `koanf:"git"`
}

type ServerConfig struct {
	LogLevel string `koanf:"log_level"`
	Timezone string `koanf:"timezone"`
}

type TelegramConfig struct {
	Enabled       bool   `koanf:"enabled"`
	BotToken      string `koanf:"bot_token"`
	AdminChatID   int64  `koanf:"admin_chat_id"`
	UpdateTimeout int    `koanf:"update_timeout"`
}

type CalendarConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	RefreshToken string `koanf:"refresh_token"`
	CalendarID   string `koanf:"calendar_id"`
	HTTPTimeout  string `koanf:"http_timeout"`
}

type VaultConfig struct {
	Path         string `koanf:"path"`
	LockTimeout  string `koanf:"lock_timeout"`
	LockRetry    string `koanf:"lock_retry"`
	LockMaxRetry int    `koanf:"lock_max_retry"`
}

type StoreConfig struct {
	Path string `koanf:"path"`
}

type SlotsConfig struct {
	WorkHoursStart  int `koanf:"work_hours_start"`
	WorkHoursEnd    int `koanf:"work_hours_end"`
	DurationMinutes int `koanf:"duration_minutes"`
	StrideMinutes   int `koanf:"stride_minutes"`
	MaxSlots        int `koanf:"max_slots"`
}

type SyncConfig struct {
	WindowPastDays   int    `koanf:"window_past_days"`
	WindowFutureDays int    `koanf:"window_future_days"`
	MaxResults       int    `koanf:"max_results"`
	RetryMax         int    `koanf:"retry_max"`
	RetryBackoff     string `koanf:"retry_backoff"`
}

type SessionsConfig struct {
	Timeout     string `koanf:"timeout"`
	MaxMessages int    `koanf:"max_messages"`
}

type NotificationsConfig struct {
	NtfyURL            string `koanf:"ntfy_url"`
	NtfyTopic          string `koanf:"ntfy_topic"`
	HTTPTimeout        string `koanf:"http_timeout"`
	EscalationAfter    string `koanf:"escalation_after"`
	UrgentAfter        string `koanf:"urgent_after"`
	EscalationInterval string `koanf:"escalation_interval"`
}

type NLPConfig struct {
	APIKey         string `koanf:"api_key"`
	BaseURL        string `koanf:"base_url"`
	Model          string `koanf:"model"`
	RequestTimeout string `koanf:"request_timeout"`
}

type SchedulerConfig struct {
	MorningCheckin  string `koanf:"morning_checkin"`
	EveningReview   string `koanf:"evening_review"`
	PeriodicCheckin string `koanf:"periodic_checkin"`
	SyncInterval    string `koanf:"sync_interval"`
	CleanupInterval string `koanf:"cleanup_interval"`
}

type GitConfig struct {
	Enabled      bool   `koanf:"enabled"`
	RemoteURL    string `koanf:"remote_url"`
	RemoteName   string `koanf:"remote_name"`
	Branch       string `koanf:"branch"`
	SyncInterval string `koanf:"sync_interval"`
}

const (
	DefaultServerLogLevel = "info"
	DefaultServerTimezone = "America/New_York"

	DefaultTelegramUpdateTimeout = 60

	DefaultCalendarID          = "primary"
	DefaultCalendarHTTPTimeout = "30s"

	DefaultVaultLockTimeout  = "30s"
	DefaultVaultLockRetry    = "100ms"
	DefaultVaultLockMaxRetry = 300

	DefaultSlotsWorkHoursStart  = 9
	DefaultSlotsWorkHoursEnd    = 17
	DefaultSlotsDurationMinutes = 30
	DefaultSlotsStrideMinutes   = 15
	DefaultSlotsMaxSlots        = 10

	DefaultSyncWindowPastDays   = 7
	DefaultSyncWindowFutureDays = 30
	DefaultSyncMaxResults       = 500
	DefaultSyncRetryMax         = 3
	DefaultSyncRetryBackoff     = "1s"

	DefaultSessionTimeout     = "30m"
	DefaultSessionMaxMessages = 5

	DefaultNtfyURL            = "https://ntfy.sh"
	DefaultNtfyTopic          = "koyomi"
	DefaultNtfyHTTPTimeout    = "10s"
	DefaultEscalationAfter    = "5m"
	DefaultUrgentAfter        = "10m"
	DefaultEscalationInterval = "5m"

	DefaultNLPBaseURL        = "https://openrouter.ai/api/v1"
	DefaultNLPModel          = "openai/gpt-4o-mini"
	DefaultNLPRequestTimeout = "60s"

	// Cron specs in the configured timezone.
	DefaultMorningCheckin  = "30 4 * * *"
	DefaultEveningReview   = "0 20 * * *"
	DefaultPeriodicCheckin = "0 9-16/2 * * 1-5"
	DefaultSyncInterval    = "@every 15m"
	DefaultCleanupInterval = "@every 1h"

	DefaultGitRemoteName   = "origin"
	DefaultGitBranch       = "master"
	DefaultGitSyncInterval = "@every 5m"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	home, _ := os.UserHomeDir()

	defaults := map[string]interface{}{
		"server.log_level":                  DefaultServerLogLevel,
		"server.timezone":                   DefaultServerTimezone,
		"telegram.enabled":                  true,
		"telegram.update_timeout":           DefaultTelegramUpdateTimeout,
		"calendar.calendar_id":              DefaultCalendarID,
		"calendar.http_timeout":             DefaultCalendarHTTPTimeout,
		"vault.path":                        filepath.Join(home, "vault"),
		"vault.lock_timeout":                DefaultVaultLockTimeout,
		"vault.lock_retry":                  DefaultVaultLockRetry,
		"vault.lock_max_retry":              DefaultVaultLockMaxRetry,
		"store.path":                        filepath.Join(home, ".koyomi", "index.db"),
		"slots.work_hours_start":            DefaultSlotsWorkHoursStart,
		"slots.work_hours_end":              DefaultSlotsWorkHoursEnd,
		"slots.duration_minutes":            DefaultSlotsDurationMinutes,
		"slots.stride_minutes":              DefaultSlotsStrideMinutes,
		"slots.max_slots":                   DefaultSlotsMaxSlots,
		"sync.window_past_days":             DefaultSyncWindowPastDays,
		"sync.window_future_days":           DefaultSyncWindowFutureDays,
		"sync.max_results":                  DefaultSyncMaxResults,
		"sync.retry_max":                    DefaultSyncRetryMax,
		"sync.retry_backoff":                DefaultSyncRetryBackoff,
		"sessions.timeout":                  DefaultSessionTimeout,
		"sessions.max_messages":             DefaultSessionMaxMessages,
		"notifications.ntfy_url":            DefaultNtfyURL,
		"notifications.ntfy_topic":          DefaultNtfyTopic,
		"notifications.http_timeout":        DefaultNtfyHTTPTimeout,
		"notifications.escalation_after":    DefaultEscalationAfter,
		"notifications.urgent_after":        DefaultUrgentAfter,
		"notifications.escalation_interval": DefaultEscalationInterval,
		"nlp.base_url":                      DefaultNLPBaseURL,
		"nlp.model":                         DefaultNLPModel,
		"nlp.request_timeout":               DefaultNLPRequestTimeout,
		"scheduler.morning_checkin":         DefaultMorningCheckin,
		"scheduler.evening_review":          DefaultEveningReview,
		"scheduler.periodic_checkin":        DefaultPeriodicCheckin,
		"scheduler.sync_interval":           DefaultSyncInterval,
		"scheduler.cleanup_interval":        DefaultCleanupInterval,
		"git.enabled":                       false,
		"git.remote_name":                   DefaultGitRemoteName,
		"git.branch":                        DefaultGitBranch,
		"git.sync_interval":                 DefaultGitSyncInterval,
	}
	for key, value := range defaults {
		k.Set(key, value)
	}

	configPath := ""
	if cmd != nil {
		if flag := cmd.Flags().Lookup("config"); flag != nil {
			configPath = strings.TrimSpace(flag.Value.String())
		}
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, err
		}
	} else if home != "" {
		globalPath := filepath.Join(home, ".koyomi", "config.yaml")
		if err := k.Load(file.Provider(globalPath), yaml.Parser()); err != nil {
			slog.Debug("Global config not found or invalid", "path", globalPath, "error", err)
		}
	}

	// Double underscore separates nesting levels so keys like
	// server.log_level stay addressable: KOYOMI_SERVER__LOG_LEVEL.
	k.Load(env.Provider("KOYOMI_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "KOYOMI_")), "__", ".")
	}), nil)

	if cmd != nil {
		k.Load(posflag.Provider(cmd.Flags(), ".", k), nil)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	// Standard env vars win over nothing, not over explicit config.
	if key := os.Getenv("TELEGRAM_BOT_TOKEN"); key != "" && cfg.Telegram.BotToken == "" {
		cfg.Telegram.BotToken = key
	}
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" && cfg.NLP.APIKey == "" {
		cfg.NLP.APIKey = key
	}
	if key := os.Getenv("GOOGLE_CLIENT_ID"); key != "" && cfg.Calendar.ClientID == "" {
		cfg.Calendar.ClientID = key
	}
	if key := os.Getenv("GOOGLE_CLIENT_SECRET"); key != "" && cfg.Calendar.ClientSecret == "" {
		cfg.Calendar.ClientSecret = key
	}
	if key := os.Getenv("GOOGLE_REFRESH_TOKEN"); key != "" && cfg.Calendar.RefreshToken == "" {
		cfg.Calendar.RefreshToken = key
	}

	cfg.Vault.Path = expandPath(cfg.Vault.Path)
	cfg.Store.Path = expandPath(cfg.Store.Path)

	return &cfg, nil
}

// expandPath resolves env vars and a leading "~" so vault and store paths
// can be written portably in config files.
func expandPath(path string) string {
	expanded := os.ExpandEnv(strings.TrimSpace(path))
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		if home, err := os.UserHomeDir(); err == nil && home != "" {
			expanded = filepath.Join(home, strings.TrimPrefix(expanded, "~"))
		}
	}
	return filepath.Clean(expanded)
}
