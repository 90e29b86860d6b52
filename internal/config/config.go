// Package config loads the process configuration from YAML, applies
// environment overrides for secrets, and validates the result. The
// per-request quotation parameters never come from here at run time;
// they are frozen into ProjectConfigVersion rows, which this package
// only seeds defaults for.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	LLM      LLMConfig      `yaml:"llm"`
	Shopping ShoppingConfig `yaml:"shopping"`
	Fipe     FipeConfig     `yaml:"fipe"`
	Browser  BrowserConfig  `yaml:"browser"`
	Worker   WorkerConfig   `yaml:"worker"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Costs    CostsConfig    `yaml:"costs"`
	Quotes   QuotesConfig   `yaml:"quotes"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn" validate:"required"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Enabled=false (or empty addr) degrades all caching to direct
	// calls; redis being down is never fatal.
	Enabled bool `yaml:"enabled"`
}

type StorageConfig struct {
	Root string `yaml:"root" validate:"required"`
}

type LLMConfig struct {
	// Provider selects the analysis backend: "anthropic" (default) or
	// "openai_compat".
	Provider    string `yaml:"provider" validate:"oneof=anthropic openai_compat"`
	APIKey      string `yaml:"api_key"`
	Model       string `yaml:"model"`
	BaseURL     string `yaml:"base_url"` // openai_compat only
	MaxTokens   int64  `yaml:"max_tokens"`
	EnableWebSearch bool `yaml:"enable_web_search"`
}

type ShoppingConfig struct {
	BaseURL  string        `yaml:"base_url"`
	APIKey   string        `yaml:"api_key"`
	Location string        `yaml:"location"`
	Language string        `yaml:"language"`
	Country  string        `yaml:"country"`
	Timeout  time.Duration `yaml:"timeout"`
	// ManufacturerWhitelist are non-Brazilian domains accepted by the
	// foreign-domain rule.
	ManufacturerWhitelist []string `yaml:"manufacturer_whitelist"`
}

type FipeConfig struct {
	BaseURL       string        `yaml:"base_url"`
	SiteURL       string        `yaml:"site_url"`
	Timeout       time.Duration `yaml:"timeout"`
	VigencyMonths int           `yaml:"vigency_months"`
	CatalogTTL    time.Duration `yaml:"catalog_ttl"`
}

// Vigency returns the cache reuse window for vehicle price rows.
func (f FipeConfig) Vigency() time.Duration {
	months := f.VigencyMonths
	if months <= 0 {
		months = 6
	}
	return time.Duration(months) * 30 * 24 * time.Hour
}

type BrowserConfig struct {
	PoolSize    int           `yaml:"pool_size"`
	NavTimeout  time.Duration `yaml:"nav_timeout"`
	UserAgent   string        `yaml:"user_agent"`
	Headless    bool          `yaml:"headless"`
	ExecPath    string        `yaml:"exec_path"`
}

type WorkerConfig struct {
	PoolSize     int           `yaml:"pool_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Liveness     time.Duration `yaml:"liveness"`
	WallBudget   time.Duration `yaml:"wall_budget"`
}

type MonitorConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type CostsConfig struct {
	// BRL cost rates for the financial ledger.
	LLMInputPerMTokBRL  float64 `yaml:"llm_input_per_mtok_brl"`
	LLMOutputPerMTokBRL float64 `yaml:"llm_output_per_mtok_brl"`
	ShoppingPerCallBRL  float64 `yaml:"shopping_per_call_brl"`
	FipePerCallBRL      float64 `yaml:"fipe_per_call_brl"`
}

// QuotesConfig seeds new ProjectConfigVersion rows; it never overrides
// a frozen snapshot.
type QuotesConfig struct {
	NumberOfQuotes      int     `yaml:"number_of_quotes"`
	MaxVariationPercent float64 `yaml:"max_variation_percent"`
	EnablePriceMismatch bool    `yaml:"enable_price_mismatch"`

	EnableSpecExtraction bool `yaml:"enable_spec_extraction"`
	EnableSpecValidation bool `yaml:"enable_spec_validation"`
	EnableLinearMeter    bool `yaml:"enable_linear_meter"`
}

// Load reads, overrides, defaults and validates the configuration.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("lendo config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("decodificando config: %w", err)
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// applyEnv overrides secrets from the environment; env wins over file.
func (c *Config) applyEnv() {
	if v := os.Getenv("COTADOR_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("COTADOR_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("COTADOR_LLM_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("COTADOR_SERPAPI_KEY"); v != "" {
		c.Shopping.APIKey = v
	}
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 2
	}
	if c.Database.QueryTimeout == 0 {
		c.Database.QueryTimeout = 10 * time.Second
	}
	if c.Storage.Root == "" {
		c.Storage.Root = "./storage"
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = "anthropic"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.Shopping.BaseURL == "" {
		c.Shopping.BaseURL = "https://serpapi.com"
	}
	if c.Shopping.Location == "" {
		c.Shopping.Location = "Brazil"
	}
	if c.Shopping.Language == "" {
		c.Shopping.Language = "pt-br"
	}
	if c.Shopping.Country == "" {
		c.Shopping.Country = "br"
	}
	if c.Shopping.Timeout == 0 {
		c.Shopping.Timeout = 30 * time.Second
	}
	if c.Fipe.BaseURL == "" {
		c.Fipe.BaseURL = "https://veiculos.fipe.org.br/api/veiculos"
	}
	if c.Fipe.SiteURL == "" {
		c.Fipe.SiteURL = "https://veiculos.fipe.org.br"
	}
	if c.Fipe.Timeout == 0 {
		c.Fipe.Timeout = 30 * time.Second
	}
	if c.Fipe.VigencyMonths == 0 {
		c.Fipe.VigencyMonths = 6
	}
	if c.Fipe.CatalogTTL == 0 {
		c.Fipe.CatalogTTL = 6 * time.Hour
	}
	if c.Browser.PoolSize == 0 {
		c.Browser.PoolSize = 3
	}
	if c.Browser.NavTimeout == 0 {
		c.Browser.NavTimeout = 30 * time.Second
	}
	if c.Browser.UserAgent == "" {
		c.Browser.UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
	}
	if c.Worker.PoolSize == 0 {
		c.Worker.PoolSize = 4
	}
	if c.Worker.PollInterval == 0 {
		c.Worker.PollInterval = 5 * time.Second
	}
	if c.Worker.Liveness == 0 {
		c.Worker.Liveness = 60 * time.Second
	}
	if c.Worker.WallBudget == 0 {
		c.Worker.WallBudget = 10 * time.Minute
	}
	if c.Monitor.Host == "" {
		c.Monitor.Host = "0.0.0.0"
	}
	if c.Monitor.Port == 0 {
		c.Monitor.Port = 8080
	}
	if c.Quotes.NumberOfQuotes == 0 {
		c.Quotes.NumberOfQuotes = 3
	}
	if c.Quotes.MaxVariationPercent == 0 {
		c.Quotes.MaxVariationPercent = 25
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks structural constraints and cross-field consistency.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config inválida: %w", err)
	}
	if c.Quotes.NumberOfQuotes < 1 {
		return fmt.Errorf("number_of_quotes deve ser >= 1, recebido %d", c.Quotes.NumberOfQuotes)
	}
	if c.Quotes.MaxVariationPercent <= 0 || c.Quotes.MaxVariationPercent > 100 {
		return fmt.Errorf("max_variation_percent fora do intervalo (0,100]: %v", c.Quotes.MaxVariationPercent)
	}
	if c.Worker.Liveness < 10*time.Second {
		return fmt.Errorf("worker.liveness abaixo do mínimo de 10s: %v", c.Worker.Liveness)
	}
	return nil
}
