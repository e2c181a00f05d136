// Package config loads service settings from the environment and an optional
// .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/drfirst/fhir-chat/internal/llm"
)

type Config struct {
	Port     string `mapstructure:"PORT"`
	Env      string `mapstructure:"ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	FHIRBaseURL     string        `mapstructure:"FHIR_BASE_URL"`
	FHIRTimeout     time.Duration `mapstructure:"FHIR_TIMEOUT"`
	FHIRAccessToken string        `mapstructure:"FHIR_ACCESS_TOKEN"`

	AzureEndpoint   string        `mapstructure:"AZURE_OPENAI_ENDPOINT"`
	AzureAPIKey     string        `mapstructure:"AZURE_OPENAI_API_KEY"`
	AzureAPIVersion string        `mapstructure:"AZURE_OPENAI_API_VERSION"`
	AzureDeployment string        `mapstructure:"AZURE_OPENAI_DEPLOYMENT"`
	LLMTimeout      time.Duration `mapstructure:"LLM_TIMEOUT"`
	LLMMaxTokens    int           `mapstructure:"LLM_MAX_TOKENS"`

	MCPBasicUser     string `mapstructure:"MCP_BASIC_USER"`
	MCPBasicPassword string `mapstructure:"MCP_BASIC_PASSWORD"`
	AdminAPIKey      string `mapstructure:"ADMIN_API_KEY"`
	DoctorAPIKey     string `mapstructure:"DOCTOR_API_KEY"`

	FrontendURLLocal      string `mapstructure:"FRONTEND_URL_LOCAL"`
	FrontendURLProduction string `mapstructure:"FRONTEND_URL_PRODUCTION"`

	InternalBaseURL string        `mapstructure:"INTERNAL_BASE_URL"`
	DispatchTimeout time.Duration `mapstructure:"DISPATCH_TIMEOUT"`

	KafkaBrokers []string `mapstructure:"KAFKA_BROKERS"`
	AuditTopic   string   `mapstructure:"AUDIT_TOPIC"`

	OTLPEndpoint    string  `mapstructure:"OTLP_ENDPOINT"`
	TraceSampleRate float64 `mapstructure:"TRACE_SAMPLE_RATE"`
	BreakerEnabled  bool    `mapstructure:"BREAKER_ENABLED"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL",
	"FHIR_BASE_URL", "FHIR_TIMEOUT", "FHIR_ACCESS_TOKEN",
	"AZURE_OPENAI_ENDPOINT", "AZURE_OPENAI_API_KEY", "AZURE_OPENAI_API_VERSION", "AZURE_OPENAI_DEPLOYMENT",
	"LLM_TIMEOUT", "LLM_MAX_TOKENS",
	"MCP_BASIC_USER", "MCP_BASIC_PASSWORD", "ADMIN_API_KEY", "DOCTOR_API_KEY",
	"FRONTEND_URL_LOCAL", "FRONTEND_URL_PRODUCTION",
	"INTERNAL_BASE_URL", "DISPATCH_TIMEOUT",
	"KAFKA_BROKERS", "AUDIT_TOPIC",
	"OTLP_ENDPOINT", "TRACE_SAMPLE_RATE", "BREAKER_ENABLED",
}

// Load reads envFile into the process environment when it exists, then builds
// the Config from the environment. Variables already set take precedence over
// the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8081")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("FHIR_TIMEOUT", 30*time.Second)
	v.SetDefault("LLM_TIMEOUT", time.Duration(0))
	v.SetDefault("LLM_MAX_TOKENS", 2048)
	v.SetDefault("FRONTEND_URL_LOCAL", "http://localhost:3000")
	v.SetDefault("DISPATCH_TIMEOUT", time.Duration(0))
	v.SetDefault("AUDIT_TOPIC", "fhirchat.audit")
	v.SetDefault("TRACE_SAMPLE_RATE", 1.0)
	v.SetDefault("BREAKER_ENABLED", true)

	for _, key := range keys {
		_ = v.BindEnv(key)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	if cfg.InternalBaseURL == "" {
		cfg.InternalBaseURL = "http://127.0.0.1:" + cfg.Port
	}
	return cfg, nil
}

// splitList trims entries and drops empty ones; a single comma-joined entry is split.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Azure returns the LLM client settings.
func (c *Config) Azure() llm.AzureConfig {
	return llm.AzureConfig{
		Endpoint:   c.AzureEndpoint,
		APIKey:     c.AzureAPIKey,
		APIVersion: c.AzureAPIVersion,
		Deployment: c.AzureDeployment,
		Timeout:    c.LLMTimeout,
	}
}

// AuditToKafka reports whether audit entries are also published to Kafka.
func (c *Config) AuditToKafka() bool {
	return len(c.KafkaBrokers) > 0
}

// ValidateServe checks the settings the HTTP server needs.
func (c *Config) ValidateServe() error {
	var errs []error
	if c.FHIRBaseURL == "" {
		errs = append(errs, errors.New("FHIR_BASE_URL is required"))
	}
	if err := c.Azure().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.MCPBasicUser == "" || c.MCPBasicPassword == "" {
		errs = append(errs, errors.New("MCP_BASIC_USER and MCP_BASIC_PASSWORD are required"))
	}
	if c.AdminAPIKey == "" && c.DoctorAPIKey == "" {
		errs = append(errs, errors.New("at least one of ADMIN_API_KEY or DOCTOR_API_KEY is required"))
	}
	if c.IsProduction() && c.FrontendURLProduction == "" {
		errs = append(errs, errors.New("FRONTEND_URL_PRODUCTION is required in production"))
	}
	if c.LLMMaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("LLM_MAX_TOKENS must be positive, got %d", c.LLMMaxTokens))
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		errs = append(errs, fmt.Errorf("TRACE_SAMPLE_RATE must be between 0 and 1, got %v", c.TraceSampleRate))
	}
	return errors.Join(errs...)
}

// ValidateMCP checks the settings the stdio MCP server needs.
func (c *Config) ValidateMCP() error {
	if c.FHIRBaseURL == "" {
		return errors.New("FHIR_BASE_URL is required")
	}
	return nil
}

// ValidateKafka checks the settings the Kafka commands need.
func (c *Config) ValidateKafka() error {
	if !c.AuditToKafka() {
		return errors.New("KAFKA_BROKERS is required")
	}
	if c.AuditTopic == "" {
		return errors.New("AUDIT_TOPIC is required")
	}
	return nil
}
