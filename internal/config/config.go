package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration loaded from environment variables
// and an optional config.yaml.
type Config struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	DatabaseURL string `mapstructure:"database_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`

	MongoURI string `mapstructure:"mongo_uri"`
	MongoDB  string `mapstructure:"mongo_db"`

	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`

	AnalyzerProvider string        `mapstructure:"analyzer_provider"`
	GeminiAPIKey     string        `mapstructure:"gemini_api_key"`
	GeminiModel      string        `mapstructure:"gemini_model"`
	GeminiBaseURL    string        `mapstructure:"gemini_base_url"`
	AzureEndpoint    string        `mapstructure:"azure_document_intelligence_endpoint"`
	AzureKey         string        `mapstructure:"azure_document_intelligence_key"`
	AnalysisTimeout  time.Duration `mapstructure:"analysis_timeout"`

	RateLimitPerMinute int      `mapstructure:"rate_limit_per_minute"`
	AllowedOrigins     []string `mapstructure:"allowed_origins"`
	TrustedProxies     []string `mapstructure:"trusted_proxies"`
	WarrantiesEnabled  bool     `mapstructure:"warranties_enabled"`
}

// Providers accepted by ANALYZER_PROVIDER.
const (
	ProviderGemini    = "gemini"
	ProviderAzure     = "azure"
	ProviderSimulated = "simulated"
)

// Load reads config.yaml (optional) and environment variables. Environment
// variables use the upper-case form of each key, e.g. DATABASE_URL.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AnalyzerProvider = strings.ToLower(strings.TrimSpace(cfg.AnalyzerProvider))
	return &cfg, nil
}

// Every key needs a default, otherwise AutomaticEnv values are invisible to Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("database_url", "")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")

	v.SetDefault("mongo_uri", "")
	v.SetDefault("mongo_db", "receipt_tracker")

	v.SetDefault("minio_endpoint", "")
	v.SetDefault("minio_access_key", "")
	v.SetDefault("minio_secret_key", "")
	v.SetDefault("minio_bucket", "receipt-images")
	v.SetDefault("minio_use_ssl", false)

	v.SetDefault("analyzer_provider", ProviderGemini)
	v.SetDefault("gemini_api_key", "")
	v.SetDefault("gemini_model", "gemini-1.5-flash")
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("azure_document_intelligence_endpoint", "")
	v.SetDefault("azure_document_intelligence_key", "")
	v.SetDefault("analysis_timeout", "60s")

	v.SetDefault("rate_limit_per_minute", 20)
	v.SetDefault("allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("trusted_proxies", []string{})
	v.SetDefault("warranties_enabled", false)
}

// Validate reports configuration that would prevent the server from starting.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.AnalyzerProvider {
	case ProviderGemini, ProviderAzure, ProviderSimulated:
	default:
		return fmt.Errorf("unknown ANALYZER_PROVIDER %q", c.AnalyzerProvider)
	}
	if c.AnalysisTimeout <= 0 {
		return errors.New("ANALYSIS_TIMEOUT must be positive")
	}
	if _, err := c.ProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// ProxyPrefixes parses TrustedProxies. Each entry is an address or a CIDR
// range; a bare address is a single-host prefix.
func (c *Config) ProxyPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, entry := range c.TrustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// IsProduction reports whether cookies should be marked Secure.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
