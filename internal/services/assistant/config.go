package assistant

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/louisbranch/taskflow/internal/platform/config"
)

// Config holds assistant settings read from the environment. An empty API
// key is valid and keeps the assistant on canned replies.
type Config struct {
	APIKey          string  `env:"TASKFLOW_GEMINI_API_KEY"`
	Endpoint        string  `env:"TASKFLOW_GEMINI_ENDPOINT"          envDefault:"https://generativelanguage.googleapis.com/v1beta"`
	Model           string  `env:"TASKFLOW_GEMINI_MODEL"             envDefault:"gemini-1.5-flash"`
	Temperature     float64 `env:"TASKFLOW_ASSISTANT_TEMPERATURE"    envDefault:"0.7"`
	TopK            int     `env:"TASKFLOW_ASSISTANT_TOP_K"          envDefault:"40"`
	TopP            float64 `env:"TASKFLOW_ASSISTANT_TOP_P"          envDefault:"0.95"`
	MaxOutputTokens int     `env:"TASKFLOW_ASSISTANT_MAX_TOKENS"     envDefault:"1024"`
}

// LoadConfigFromEnv reads assistant configuration.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Params().validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Params returns the sampling parameters of c.
func (c Config) Params() Params {
	return Params{
		Temperature:     c.Temperature,
		TopK:            c.TopK,
		TopP:            c.TopP,
		MaxOutputTokens: c.MaxOutputTokens,
	}
}

// Assistant builds the assistant described by c. Without an API key it only
// gives canned replies.
func (c Config) Assistant(client *http.Client) *Assistant {
	if strings.TrimSpace(c.APIKey) == "" {
		return New(nil, c.Params())
	}
	return New(NewGeminiClient(GeminiConfig{
		Endpoint:   c.Endpoint,
		Model:      c.Model,
		APIKey:     c.APIKey,
		HTTPClient: client,
	}), c.Params())
}

func (p Params) validate() error {
	if p.Temperature < 0 || p.Temperature > 2 {
		return fmt.Errorf("TASKFLOW_ASSISTANT_TEMPERATURE must be between 0 and 2")
	}
	if p.TopK < 1 {
		return fmt.Errorf("TASKFLOW_ASSISTANT_TOP_K must be positive")
	}
	if p.TopP <= 0 || p.TopP > 1 {
		return fmt.Errorf("TASKFLOW_ASSISTANT_TOP_P must be in (0, 1]")
	}
	if p.MaxOutputTokens < 1 {
		return fmt.Errorf("TASKFLOW_ASSISTANT_MAX_TOKENS must be positive")
	}
	return nil
}
