package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrMissingCredential is returned when a required token, key or database id
// is empty. It is raised before any network call is attempted.
var ErrMissingCredential = errors.New("missing credential")

const EnvPrefix = "LEDGER_IMPORT"

type Config struct {
	Notion NotionConfig `mapstructure:"notion"`
	AI     AIConfig     `mapstructure:"ai"`
	Store  StoreConfig  `mapstructure:"store"`
	Import ImportConfig `mapstructure:"import"`
	RunLog RunLogConfig `mapstructure:"runlog"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`

	ConfigPath string `mapstructure:"-"`
}

type NotionConfig struct {
	Token             string  `mapstructure:"token"`
	BalanceSheetDBID  string  `mapstructure:"balance_sheet_db_id"`
	EntitiesDBID      string  `mapstructure:"entities_db_id"`
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
}

type AIConfig struct {
	Provider        string `mapstructure:"provider"` // anthropic or gemini
	Model           string `mapstructure:"model"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	GeminiAPIKey    string `mapstructure:"gemini_api_key"`
	CachePath       string `mapstructure:"cache_path"` // empty keeps the cache in memory
}

type StoreConfig struct {
	Path string `mapstructure:"path"`
}

type ImportConfig struct {
	Workers    int           `mapstructure:"workers"`
	WriteDelay time.Duration `mapstructure:"write_delay"`
}

type RunLogConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Dataset   string `mapstructure:"dataset"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	JobWorkers int    `mapstructure:"job_workers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func NewDefault() *Config {
	return &Config{
		Notion: NotionConfig{
			BaseURL:           "https://www.notion.so",
			RequestsPerSecond: 3,
		},
		AI: AIConfig{
			Provider: "anthropic",
		},
		Store: StoreConfig{
			Path: "data/ledger-import.db",
		},
		Import: ImportConfig{
			Workers:    3,
			WriteDelay: 400 * time.Millisecond,
		},
		RunLog: RunLogConfig{
			Dataset: "finance",
		},
		Server: ServerConfig{
			Addr:       ":8080",
			JobWorkers: 2,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// credentialEnv maps config keys to the unprefixed environment variables that
// deployments already use for them.
var credentialEnv = map[string]string{
	"notion.token":               "NOTION_API_TOKEN",
	"notion.balance_sheet_db_id": "NOTION_BALANCE_SHEET_DB_ID",
	"notion.entities_db_id":      "NOTION_ENTITIES_DB_ID",
	"ai.anthropic_api_key":       "ANTHROPIC_API_KEY",
	"ai.gemini_api_key":          "GEMINI_API_KEY",
	"runlog.project_id":          "GCP_PROJECT_ID",
}

// Load reads configuration from path (optional) and the environment.
// Every other key can be overridden with LEDGER_IMPORT_<SECTION>_<KEY>.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewDefault())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("ledger-import")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range credentialEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	cfg := NewDefault()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	return cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.balance_sheet_db_id", "")
	v.SetDefault("notion.entities_db_id", "")
	v.SetDefault("notion.base_url", d.Notion.BaseURL)
	v.SetDefault("notion.requests_per_second", d.Notion.RequestsPerSecond)
	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.anthropic_api_key", "")
	v.SetDefault("ai.gemini_api_key", "")
	v.SetDefault("ai.cache_path", "")
	v.SetDefault("store.path", d.Store.Path)
	v.SetDefault("import.workers", d.Import.Workers)
	v.SetDefault("import.write_delay", d.Import.WriteDelay)
	v.SetDefault("runlog.project_id", "")
	v.SetDefault("runlog.dataset", d.RunLog.Dataset)
	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.job_workers", d.Server.JobWorkers)
	v.SetDefault("log.level", d.Log.Level)
}

// ValidateLedger checks the credentials needed to talk to Notion.
func (c *Config) ValidateLedger() error {
	if strings.TrimSpace(c.Notion.Token) == "" {
		return fmt.Errorf("%w: NOTION_API_TOKEN is not set", ErrMissingCredential)
	}
	if strings.TrimSpace(c.Notion.BalanceSheetDBID) == "" {
		return fmt.Errorf("%w: NOTION_BALANCE_SHEET_DB_ID is not set", ErrMissingCredential)
	}
	return nil
}

// ValidateAI checks that the configured provider has an API key.
func (c *Config) ValidateAI() error {
	switch strings.ToLower(c.AI.Provider) {
	case "anthropic", "":
		if strings.TrimSpace(c.AI.AnthropicAPIKey) == "" {
			return fmt.Errorf("%w: ANTHROPIC_API_KEY is not set", ErrMissingCredential)
		}
	case "gemini":
		if strings.TrimSpace(c.AI.GeminiAPIKey) == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingCredential)
		}
	default:
		return fmt.Errorf("unknown ai provider %q", c.AI.Provider)
	}
	return nil
}

// Validate checks everything an import run needs.
func (c *Config) Validate() error {
	if err := c.ValidateLedger(); err != nil {
		return err
	}
	if err := c.ValidateAI(); err != nil {
		return err
	}
	if c.Import.Workers < 1 {
		return fmt.Errorf("import.workers must be at least 1, got %d", c.Import.Workers)
	}
	return nil
}
