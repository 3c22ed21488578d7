package config

import (
	"log"
	"os"
	"time"

	"phishbox/pkg/config"
)

// HostedLLMConfig selects a hosted text-generation API. A non-empty APIKey
// makes it the preferred backend.
type HostedLLMConfig struct {
	Provider string `yaml:"provider"` // openai | anthropic
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

// LocalLLMConfig points at an Ollama server used when no hosted key is set.
type LocalLLMConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"`
}

type LLMConfig struct {
	Hosted                HostedLLMConfig `yaml:"hosted"`
	Local                 LocalLLMConfig  `yaml:"local"`
	StepTimeoutSeconds    int             `yaml:"step_timeout_seconds"`
	SuggestTimeoutSeconds int             `yaml:"suggest_timeout_seconds"`
}

func (c LLMConfig) StepTimeout() time.Duration {
	return seconds(c.StepTimeoutSeconds, 60)
}

func (c LLMConfig) SuggestTimeout() time.Duration {
	return seconds(c.SuggestTimeoutSeconds, 15)
}

type DetectorsConfig struct {
	ModelURL       string   `yaml:"model_url"`
	Models         []string `yaml:"models"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

func (c DetectorsConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 10)
}

type EnrichmentConfig struct {
	WikiURL         string `yaml:"wiki_url"`
	DirectoryURL    string `yaml:"directory_url"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

func (c EnrichmentConfig) Timeout() time.Duration {
	return seconds(c.TimeoutSeconds, 5)
}

func (c EnrichmentConfig) CacheTTL() time.Duration {
	return seconds(c.CacheTTLSeconds, 3600)
}

type AgenticConfig struct {
	Store        string `yaml:"store"` // memory | redis
	TaskTTLHours int    `yaml:"task_ttl_hours"`
}

func (c AgenticConfig) TaskTTL() time.Duration {
	if c.TaskTTLHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.TaskTTLHours) * time.Hour
}

type SuggestConfig struct {
	BatchSize     int `yaml:"batch_size"`
	RatePerMinute int `yaml:"rate_per_minute"`
}

type Config struct {
	DB         config.DBConfig     `yaml:"db"`
	MQ         config.MQConfig     `yaml:"mq"`
	Redis      config.RedisConfig  `yaml:"redis"`
	JWT        config.JWTConfig    `yaml:"jwt"`
	Server     config.ServerConfig `yaml:"server"`
	OTel       config.OTelConfig   `yaml:"otel"`
	LLM        LLMConfig           `yaml:"llm"`
	Detectors  DetectorsConfig     `yaml:"detectors"`
	Enrichment EnrichmentConfig    `yaml:"enrichment"`
	Agentic    AgenticConfig       `yaml:"agentic"`
	Suggest    SuggestConfig       `yaml:"suggest"`
}

// Load reads CONFIG_DIR (default "config") for CONFIG_ENV and applies
// environment overrides. Any failure is fatal.
func Load() *Config {
	cfg, err := LoadFrom(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func LoadFrom(env, dir string) (*Config, error) {
	var cfg Config
	if err := config.Decode(env, dir, &cfg); err != nil {
		return nil, err
	}

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideOTelFromEnv(&cfg.OTel)
	OverrideLLMFromEnv(&cfg.LLM)

	if cfg.Suggest.BatchSize <= 0 || cfg.Suggest.BatchSize > 50 {
		cfg.Suggest.BatchSize = 50
	}
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}

	return &cfg, nil
}

// OverrideLLMFromEnv picks up provider credentials from the usual variables.
// LLM_API_KEY wins over the provider-specific ones.
func OverrideLLMFromEnv(cfg *LLMConfig) {
	switch {
	case os.Getenv("LLM_API_KEY") != "":
		cfg.Hosted.APIKey = os.Getenv("LLM_API_KEY")
	case os.Getenv("OPENAI_API_KEY") != "" && (cfg.Hosted.Provider == "" || cfg.Hosted.Provider == "openai"):
		cfg.Hosted.Provider = "openai"
		cfg.Hosted.APIKey = os.Getenv("OPENAI_API_KEY")
	case os.Getenv("ANTHROPIC_API_KEY") != "" && (cfg.Hosted.Provider == "" || cfg.Hosted.Provider == "anthropic"):
		cfg.Hosted.Provider = "anthropic"
		cfg.Hosted.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		cfg.Hosted.Provider = provider
	}
	if model := os.Getenv("LLM_MODEL"); model != "" {
		cfg.Hosted.Model = model
	}
	if url := os.Getenv("OLLAMA_URL"); url != "" {
		cfg.Local.URL = url
	}
	if model := os.Getenv("OLLAMA_MODEL"); model != "" {
		cfg.Local.Model = model
	}
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}
