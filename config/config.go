// Package config loads the agent's configuration tree from environment
// variables, with optional local .env loading via godotenv: exchange
// credentials, advisor credentials, scheduler timezone, policy
// thresholds, notifier targets, and the instrument's step/notional
// filters.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full configuration tree the agent needs to run.
type Config struct {
	Symbol   string // default BTCUSDT
	Timezone string // IANA name, default Asia/Seoul

	Exchange   ExchangeConfig
	Advisor    AdvisorConfig
	Policy     PolicyConfig
	Instrument InstrumentConfig
	Notifier   NotifierConfig
	Logging    LoggingConfig

	DataDir string // root for data/analysis and data/trades
}

// ExchangeConfig holds the derivatives exchange credentials and mode.
type ExchangeConfig struct {
	APIKey    string
	SecretKey string
	Testnet   bool // selects the exchange endpoint only
	MockMode  bool // use the in-memory MockClient instead of RESTClient
}

// AdvisorConfig holds the LLM provider credentials and model selection.
// The provider identity is configuration only; nothing downstream
// depends on which backend produced a completion.
type AdvisorConfig struct {
	Provider    string // claude, openai, deepseek
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
}

// PolicyConfig holds the signal policy's rule-gate thresholds.
type PolicyConfig struct {
	MinConfidence    float64
	MinTrendStrength float64
	MaxDailyTrades   int
	CooldownMinutes  int
	MaxLossPct       float64

	// leverage_caps_by_risk / position_caps_by_risk
	LeverageCapHigh   int
	LeverageCapMedium int
	LeverageCapLow    int
	SizeCapHigh       float64
	SizeCapMedium     float64
	SizeCapLow        float64

	// Informational TP2/TP3 levels. Loaded from the environment but not
	// read by any component; the reconciler only ever acts on TakeProfit1.
	ProfitTargets []float64
}

// InstrumentConfig holds the reconciler's sizing filters.
type InstrumentConfig struct {
	StepSize    float64 // default 0.001 base units
	MinNotional float64 // default 1 quote unit
}

// NotifierConfig holds the operator chat channel targets and rate limit.
type NotifierConfig struct {
	RateLimitPerMinute float64

	TelegramEnabled  bool
	TelegramBotToken string
	TelegramChatID   string

	DiscordEnabled    bool
	DiscordWebhookURL string
}

// LoggingConfig mirrors internal/logging.Config.
type LoggingConfig struct {
	Level       string
	Output      string
	JSONFormat  bool
	IncludeFile bool
}

// Load reads .env (if present, via godotenv — a missing file is not an
// error) and then builds a Config from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Symbol:   getEnvOrDefault("SYMBOL", "BTCUSDT"),
		Timezone: getEnvOrDefault("SCHEDULER_TIMEZONE", "Asia/Seoul"),
		DataDir:  getEnvOrDefault("DATA_DIR", "data"),
		Exchange: ExchangeConfig{
			APIKey:    os.Getenv("EXCHANGE_API_KEY"),
			SecretKey: os.Getenv("EXCHANGE_SECRET_KEY"),
			Testnet:   getEnvBool("EXCHANGE_TESTNET", false),
			MockMode:  getEnvBool("EXCHANGE_MOCK_MODE", false),
		},
		Advisor: AdvisorConfig{
			Provider:    getEnvOrDefault("ADVISOR_PROVIDER", "claude"),
			APIKey:      os.Getenv("ADVISOR_API_KEY"),
			Model:       getEnvOrDefault("ADVISOR_MODEL", "claude-sonnet-4-20250514"),
			MaxTokens:   getEnvIntOrDefault("ADVISOR_MAX_TOKENS", 1024),
			Temperature: getEnvFloatOrDefault("ADVISOR_TEMPERATURE", 0.2),
		},
		Policy: PolicyConfig{
			MinConfidence:     getEnvFloatOrDefault("POLICY_MIN_CONFIDENCE", 70),
			MinTrendStrength:  getEnvFloatOrDefault("POLICY_MIN_TREND_STRENGTH", 60),
			MaxDailyTrades:    getEnvIntOrDefault("POLICY_MAX_DAILY_TRADES", 3),
			CooldownMinutes:   getEnvIntOrDefault("POLICY_COOLDOWN_MINUTES", 60),
			MaxLossPct:        getEnvFloatOrDefault("POLICY_MAX_LOSS_PCT", 2),
			LeverageCapHigh:   getEnvIntOrDefault("POLICY_LEVERAGE_CAP_HIGH", 10),
			LeverageCapMedium: getEnvIntOrDefault("POLICY_LEVERAGE_CAP_MEDIUM", 5),
			LeverageCapLow:    getEnvIntOrDefault("POLICY_LEVERAGE_CAP_LOW", 3),
			SizeCapHigh:       getEnvFloatOrDefault("POLICY_SIZE_CAP_HIGH", 30),
			SizeCapMedium:     getEnvFloatOrDefault("POLICY_SIZE_CAP_MEDIUM", 20),
			SizeCapLow:        getEnvFloatOrDefault("POLICY_SIZE_CAP_LOW", 15),
			ProfitTargets:     getEnvFloatList("POLICY_PROFIT_TARGETS", []float64{1.0, 2.0, 3.0}),
		},
		Instrument: InstrumentConfig{
			StepSize:    getEnvFloatOrDefault("INSTRUMENT_STEP_SIZE", 0.001),
			MinNotional: getEnvFloatOrDefault("INSTRUMENT_MIN_NOTIONAL", 1),
		},
		Notifier: NotifierConfig{
			RateLimitPerMinute: getEnvFloatOrDefault("NOTIFIER_RATE_LIMIT_PER_MIN", 20),
			TelegramEnabled:    getEnvBool("TELEGRAM_ENABLED", false),
			TelegramBotToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
			TelegramChatID:     os.Getenv("TELEGRAM_CHAT_ID"),
			DiscordEnabled:     getEnvBool("DISCORD_ENABLED", false),
			DiscordWebhookURL:  os.Getenv("DISCORD_WEBHOOK_URL"),
		},
		Logging: LoggingConfig{
			Level:       getEnvOrDefault("LOG_LEVEL", "INFO"),
			Output:      getEnvOrDefault("LOG_OUTPUT", "stdout"),
			JSONFormat:  getEnvBool("LOG_JSON", true),
			IncludeFile: getEnvBool("LOG_INCLUDE_FILE", false),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate rejects a config that would start the agent into an
// unrunnable state; main treats this as a startup failure (exit 1).
func (c *Config) validate() error {
	if !c.Exchange.MockMode && (c.Exchange.APIKey == "" || c.Exchange.SecretKey == "") {
		return fmt.Errorf("config: EXCHANGE_API_KEY/EXCHANGE_SECRET_KEY required unless EXCHANGE_MOCK_MODE=true")
	}
	if c.Advisor.APIKey == "" {
		return fmt.Errorf("config: ADVISOR_API_KEY is required")
	}
	if _, err := parseTimezone(c.Timezone); err != nil {
		return fmt.Errorf("config: invalid SCHEDULER_TIMEZONE %q: %w", c.Timezone, err)
	}
	return nil
}

// parseTimezone resolves an IANA timezone name, used both to validate
// config at startup and by the scheduler to build its *time.Location.
func parseTimezone(name string) (*time.Location, error) {
	return time.LoadLocation(name)
}

// Location returns the configured scheduler timezone, falling back to
// UTC if it somehow fails to resolve post-validation.
func (c *Config) Location() *time.Location {
	loc, err := parseTimezone(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	return v == "true" || v == "1"
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvFloatList(key string, defaultValue []float64) []float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	parts := strings.Split(v, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, f)
	}
	return out
}
