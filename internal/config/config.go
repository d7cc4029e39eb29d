package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"FamilyBudget/internal/model"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken     string `yaml:"bot_token"`
		Mode         string `yaml:"mode"` // "polling" or "webhook"
		NotifyChatID int64  `yaml:"notify_chat_id"`
		APIBase      string `yaml:"api_base"`
	} `yaml:"telegram"`
	Webhook struct {
		Listen    string `yaml:"listen"`
		Path      string `yaml:"path"`
		PublicURL string `yaml:"public_url"`
		Secret    string `yaml:"secret"`
	} `yaml:"webhook"`
	Budget struct {
		BaseLimit            decimal.Decimal `yaml:"base_limit"`
		Currency             string          `yaml:"currency"`
		Timezone             string          `yaml:"timezone"`
		IncomeAffectsBalance bool            `yaml:"income_affects_balance"`
		StateFile            string          `yaml:"state_file"`
	} `yaml:"budget"`
	Contributors []model.Contributor `yaml:"contributors"`
	Schedule     struct {
		RolloverCron  string `yaml:"rollover_cron"`
		KeepAliveCron string `yaml:"keep_alive_cron"`
	} `yaml:"schedule"`
	KeepAlive struct {
		URL string `yaml:"url"`
	} `yaml:"keep_alive"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Mirror struct {
		Backend        string        `yaml:"backend"` // "", "gcs" or "amqp"
		Timeout        time.Duration `yaml:"timeout"`
		GCSBucket      string        `yaml:"gcs_bucket"`
		GCSObject      string        `yaml:"gcs_object"`
		AMQPURL        string        `yaml:"amqp_url"`
		AMQPExchange   string        `yaml:"amqp_exchange"`
		AMQPRoutingKey string        `yaml:"amqp_routing_key"`
	} `yaml:"mirror"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"TELEGRAM_BOT_TOKEN": &c.Telegram.BotToken,
		"TELEGRAM_MODE":      &c.Telegram.Mode,
		"TELEGRAM_API_BASE":  &c.Telegram.APIBase,
		"WEBHOOK_LISTEN":     &c.Webhook.Listen,
		"WEBHOOK_PATH":       &c.Webhook.Path,
		"WEBHOOK_PUBLIC_URL": &c.Webhook.PublicURL,
		"WEBHOOK_SECRET":     &c.Webhook.Secret,
		"CURRENCY":           &c.Budget.Currency,
		"TIMEZONE":           &c.Budget.Timezone,
		"STATE_FILE":         &c.Budget.StateFile,
		"CRON_ROLLOVER":      &c.Schedule.RolloverCron,
		"CRON_KEEP_ALIVE":    &c.Schedule.KeepAliveCron,
		"KEEP_ALIVE_URL":     &c.KeepAlive.URL,
		"SQLITE_PATH":        &c.Database.SQLitePath,
		"MIRROR_BACKEND":     &c.Mirror.Backend,
		"GCS_BUCKET":         &c.Mirror.GCSBucket,
		"GCS_OBJECT":         &c.Mirror.GCSObject,
		"AMQP_URL":           &c.Mirror.AMQPURL,
		"AMQP_EXCHANGE":      &c.Mirror.AMQPExchange,
		"AMQP_ROUTING_KEY":   &c.Mirror.AMQPRoutingKey,
		"LOG_LEVEL":          &c.Log.Level,
		"LOG_FORMAT":         &c.Log.Format,
		"HTTPS_PROXY":        &c.Proxy,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	if v := os.Getenv("NOTIFY_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("NOTIFY_CHAT_ID: %w", err)
		}
		c.Telegram.NotifyChatID = id
	}
	if v := os.Getenv("BASE_LIMIT"); v != "" {
		limit, err := decimal.NewFromString(v)
		if err != nil {
			return fmt.Errorf("BASE_LIMIT: %w", err)
		}
		c.Budget.BaseLimit = limit
	}
	if v := os.Getenv("INCOME_AFFECTS_BALANCE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INCOME_AFFECTS_BALANCE: %w", err)
		}
		c.Budget.IncomeAffectsBalance = b
	}
	if v := os.Getenv("MIRROR_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MIRROR_TIMEOUT: %w", err)
		}
		c.Mirror.Timeout = d
	}
	if v := os.Getenv("CONTRIBUTORS"); v != "" {
		list, err := ParseContributors(v)
		if err != nil {
			return fmt.Errorf("CONTRIBUTORS: %w", err)
		}
		c.Contributors = list
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.Mode == "" {
		c.Telegram.Mode = "polling"
	}
	if c.Telegram.APIBase == "" {
		c.Telegram.APIBase = "https://api.telegram.org"
	}
	if c.Webhook.Listen == "" {
		c.Webhook.Listen = ":8080"
	}
	if c.Webhook.Path == "" {
		c.Webhook.Path = "/webhook"
	}
	if c.Budget.BaseLimit.IsZero() {
		c.Budget.BaseLimit = decimal.NewFromInt(40000)
	}
	if c.Budget.Currency == "" {
		c.Budget.Currency = "UAH"
	}
	if c.Budget.Timezone == "" {
		c.Budget.Timezone = "Europe/Kyiv"
	}
	if c.Budget.StateFile == "" {
		c.Budget.StateFile = "data/budget_state.json"
	}
	if c.Schedule.RolloverCron == "" {
		c.Schedule.RolloverCron = "0 1 0 * * *"
	}
	if c.Schedule.KeepAliveCron == "" {
		c.Schedule.KeepAliveCron = "0 */10 * * * *"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/budget_history.db"
	}
	if c.Mirror.Timeout == 0 {
		c.Mirror.Timeout = 30 * time.Second
	}
	if c.Mirror.GCSObject == "" {
		c.Mirror.GCSObject = "budget_state.json"
	}
	if c.Mirror.AMQPExchange == "" {
		c.Mirror.AMQPExchange = "family_budget"
	}
	if c.Mirror.AMQPRoutingKey == "" {
		c.Mirror.AMQPRoutingKey = "state"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// ParseContributors parses "id:role,id:role".
func ParseContributors(s string) ([]model.Contributor, error) {
	var list []model.Contributor
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idStr, role, _ := strings.Cut(part, ":")
		id, err := strconv.ParseInt(strings.TrimSpace(idStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("contributor %q: %w", part, err)
		}
		list = append(list, model.Contributor{ID: id, Role: strings.TrimSpace(role)})
	}
	return list, nil
}

// Location resolves the budget time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Budget.Timezone)
}

// Validate checks the settings the bot needs to start.
func (c *Config) Validate() error {
	var errs []string

	if c.Telegram.BotToken == "" {
		errs = append(errs, "telegram.bot_token is required")
	}
	switch c.Telegram.Mode {
	case "polling":
	case "webhook":
		if c.Webhook.PublicURL == "" {
			errs = append(errs, "webhook.public_url is required in webhook mode")
		}
	default:
		errs = append(errs, fmt.Sprintf("telegram.mode %q must be polling or webhook", c.Telegram.Mode))
	}
	if err := c.ValidateLedger(); err != nil {
		errs = append(errs, err.Error())
	}
	switch c.Mirror.Backend {
	case "":
	case "gcs":
		if c.Mirror.GCSBucket == "" {
			errs = append(errs, "mirror.gcs_bucket is required for the gcs backend")
		}
	case "amqp":
		if !strings.HasPrefix(c.Mirror.AMQPURL, "amqp://") && !strings.HasPrefix(c.Mirror.AMQPURL, "amqps://") {
			errs = append(errs, fmt.Sprintf("mirror.amqp_url %q must use the amqp or amqps scheme", c.Mirror.AMQPURL))
		}
	default:
		errs = append(errs, fmt.Sprintf("mirror.backend %q must be empty, gcs or amqp", c.Mirror.Backend))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ValidateLedger checks only the settings the ledger itself needs; the
// offline CLI uses it since it never talks to Telegram.
func (c *Config) ValidateLedger() error {
	var errs []string
	if !c.Budget.BaseLimit.IsPositive() {
		errs = append(errs, "budget.base_limit must be positive")
	}
	if len(c.Contributors) == 0 {
		errs = append(errs, "at least one contributor is required")
	}
	seen := make(map[int64]bool, len(c.Contributors))
	for _, ct := range c.Contributors {
		if seen[ct.ID] {
			errs = append(errs, fmt.Sprintf("contributor %d listed twice", ct.ID))
		}
		seen[ct.ID] = true
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("budget.timezone: %v", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
