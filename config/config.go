// Package config handles loading and accessing application configuration
// using Viper, supporting environment variables and config files.
package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all configuration for the docintel platform. Tags are used by
// Viper to map config file keys and environment variables; validate tags are
// enforced by Validate after a successful load.
type Config struct {
	LLMs struct {
		Primary  string `mapstructure:"primary" validate:"required"`  // provider name used for the main completion route
		Fallback string `mapstructure:"fallback"`                     // provider name used on primary failure (spec §5 router)
		Anthropic struct {
			APIKey  string `mapstructure:"api_key"`
			BaseURL string `mapstructure:"base_url"`
			Version string `mapstructure:"version"`
			Model   string `mapstructure:"model"`
		} `mapstructure:"anthropic"`
		Bedrock struct {
			Region    string `mapstructure:"region"`
			AccessKey string `mapstructure:"access_key"`
			SecretKey string `mapstructure:"secret_key"`
			ModelID   string `mapstructure:"model_id"`
		} `mapstructure:"bedrock"`
	} `mapstructure:"llms"`

	Embeddings struct {
		Provider string `mapstructure:"provider" validate:"required"`
		Bedrock  struct {
			Region  string `mapstructure:"region"`
			ModelID string `mapstructure:"model_id"`
		} `mapstructure:"bedrock"`
	} `mapstructure:"embeddings"`

	Storage struct {
		Postgres struct {
			DSN          string `mapstructure:"dsn" validate:"required"`
			MaxOpenConns int    `mapstructure:"max_open_conns" validate:"min=1"`
			MaxIdleConns int    `mapstructure:"max_idle_conns" validate:"min=0"`
		} `mapstructure:"postgres"`
		ObjectStore struct {
			Bucket       string `mapstructure:"bucket" validate:"required"`
			Region       string `mapstructure:"region"`
			Endpoint     string `mapstructure:"endpoint"` // non-empty for S3-compatible backends (e.g. MinIO)
			UsePathStyle bool   `mapstructure:"use_path_style"`
		} `mapstructure:"object_store"`
		InlineThresholdBytes int `mapstructure:"inline_threshold_bytes" validate:"min=0"`
	} `mapstructure:"storage"`

	Cache struct {
		Provider string `mapstructure:"provider" validate:"required"`
		Redis    struct {
			Addr     string `mapstructure:"addr"`
			Password string `mapstructure:"password"`
			DB       int    `mapstructure:"db"`
		} `mapstructure:"redis"`
	} `mapstructure:"cache"`

	Pipeline struct {
		Temporal struct {
			HostPort  string `mapstructure:"host_port" validate:"required"`
			Namespace string `mapstructure:"namespace" validate:"required"`
			TaskQueue string `mapstructure:"task_queue" validate:"required"`
		} `mapstructure:"temporal"`
		MaxConcurrentExtractionsPerUser int `mapstructure:"max_concurrent_extractions_per_user" validate:"min=1"`
	} `mapstructure:"pipeline"`

	Server struct {
		Addr string `mapstructure:"addr" validate:"required"`
	} `mapstructure:"server"`

	Observability struct {
		ServiceName string `mapstructure:"service_name" validate:"required"`
		// OTLPEndpoint selects the span exporter: "stdout" logs spans to
		// stdout (local development), a host:port sends them to an OTLP/gRPC
		// collector, and empty disables tracing entirely.
		OTLPEndpoint string `mapstructure:"otlp_endpoint"`
		MetricsAddr  string `mapstructure:"metrics_addr"`
	} `mapstructure:"observability"`
}

// Validate runs struct-tag validation over a loaded Config, returning a
// single error joining every failing field (empty DSN, non-positive pool
// sizes, etc).
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		validationErrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}
		var msgs []string
		for _, fe := range validationErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

var Cfg Config

// configFileUsed records the path viper actually read Cfg from, so a caller
// wanting hot-reload (via FileWatcher) knows what to watch without
// duplicating viper's search-path logic.
var configFileUsed string

// ConfigFileUsed returns the path LoadConfig read Cfg from, or "" if no
// config file was found (defaults/env only).
func ConfigFileUsed() string {
	return configFileUsed
}

// LoadConfig reads configuration from file and environment variables.
func LoadConfig(configPaths ...string) error {
	v := viper.New()

	v.SetDefault("llms.primary", "anthropic")
	v.SetDefault("llms.fallback", "bedrock")
	v.SetDefault("llms.anthropic.model", "claude-sonnet-4-20250514")
	v.SetDefault("llms.anthropic.version", "2023-06-01")
	v.SetDefault("llms.bedrock.region", "us-east-1")
	v.SetDefault("embeddings.provider", "bedrock")
	v.SetDefault("embeddings.bedrock.region", "us-east-1")
	v.SetDefault("embeddings.bedrock.model_id", "amazon.titan-embed-text-v2:0")
	v.SetDefault("storage.postgres.max_open_conns", 10)
	v.SetDefault("storage.postgres.max_idle_conns", 5)
	v.SetDefault("storage.inline_threshold_bytes", 8192)
	v.SetDefault("cache.provider", "redis")
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("pipeline.temporal.host_port", "localhost:7233")
	v.SetDefault("pipeline.temporal.namespace", "default")
	v.SetDefault("pipeline.temporal.task_queue", "docintel-pipeline")
	v.SetDefault("pipeline.max_concurrent_extractions_per_user", 1)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("observability.service_name", "docintel")
	v.SetDefault("observability.otlp_endpoint", "stdout")
	v.SetDefault("observability.metrics_addr", ":9090")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/docintel/")
	v.AddConfigPath("$HOME/.docintel")
	for _, path := range configPaths {
		v.AddConfigPath(path)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables.")
		} else {
			return fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		configFileUsed = v.ConfigFileUsed()
	}

	v.SetEnvPrefix("DOCINTEL") // e.g. DOCINTEL_LLMS_ANTHROPIC_API_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(&Cfg); err != nil {
		return fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := Cfg.Validate(); err != nil {
		return err
	}

	return nil
}
