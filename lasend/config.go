package lasend

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/lasen/lasend/internal/httpmw"
	"github.com/hazyhaar/lasen/lasend/internal/llm"
)

// Config holds the backend configuration.
type Config struct {
	Addr   string     `yaml:"addr"`
	DBPath string     `yaml:"db_path"`
	LLM    llm.Config `yaml:"llm"`
	// CORSOrigins lists the allowed origins; a trailing "*" matches a
	// prefix.
	CORSOrigins    []string               `yaml:"cors_origins"`
	RateLimit      httpmw.RateLimitConfig `yaml:"rate_limit"`
	MaxBodyBytes   int64                  `yaml:"max_body_bytes"`
	RequestTimeout time.Duration          `yaml:"request_timeout"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":5000"
	}
	if c.DBPath == "" {
		c.DBPath = "data/lasen.db"
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{"chrome-extension://*", "moz-extension://*"}
	}
	if c.RateLimit.PerMinute == 0 {
		c.RateLimit.PerMinute = 60
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
}

// LoadConfig reads the YAML file at path (skipped when path is empty),
// applies LASEN_ADDR, LASEN_DB, GEMINI_API_KEY and OPENAI_API_KEY, then
// fills defaults. An OpenAI key alone selects the openai provider.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("lasend: read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("lasend: parse config: %w", err)
		}
	}
	cfg.applyEnv(os.Getenv)
	cfg.defaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("LASEN_ADDR"); v != "" {
		c.Addr = v
	}
	if v := getenv("LASEN_DB"); v != "" {
		c.DBPath = v
	}
	gemini, openai := getenv("GEMINI_API_KEY"), getenv("OPENAI_API_KEY")
	if c.LLM.Provider == "" && gemini == "" && openai != "" {
		c.LLM.Provider = "openai"
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai":
		if openai != "" {
			c.LLM.APIKey = openai
		}
	default:
		if gemini != "" {
			c.LLM.APIKey = gemini
		}
	}
}
