package openai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModel     = "gpt-4o"
	defaultDetail    = "high"
	defaultMaxTokens = 4000
	defaultTimeout   = 60 * time.Second
)

// Config selects the model and request defaults. Zero values take the
// defaults above; an empty APIKey falls back to OPENAI_API_KEY.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float32
	Timeout     time.Duration
	ImageDetail string // low | high | auto
	MaxTokens   int
}

func (c Config) withDefaults() Config {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	c.BaseURL = orDefault(c.BaseURL, defaultBaseURL)
	c.Model = orDefault(c.Model, defaultModel)
	c.ImageDetail = orDefault(c.ImageDetail, defaultDetail)
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	return c
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Client talks to an OpenAI-compatible chat/completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

func (c *Client) Name() string { return "openai/" + c.cfg.Model }
