package llm

import (
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/goal-agent/agent/contract"
	openrouterx "github.com/tanpawarit/goal-agent/pkg/openrouter"
)

type Role string

const (
	RoleClassifier Role = "classifier"
	RoleDrafter    Role = "drafter"
)

// Config is the shared LLM setup. Per-role overrides fall back to Model and
// Temperature when unset (a negative temperature means unset).
type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"openai/gpt-4o-mini"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"600"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`

	ClassifierModel       string  `envconfig:"CLASSIFIER_MODEL" split_words:"true"`
	DrafterModel          string  `envconfig:"DRAFTER_MODEL" split_words:"true"`
	ClassifierTemperature float32 `envconfig:"CLASSIFIER_TEMPERATURE" split_words:"true" default:"0"`
	DrafterTemperature    float32 `envconfig:"DRAFTER_TEMPERATURE" split_words:"true" default:"-1"`
	ClassifierMaxTokens   int     `envconfig:"CLASSIFIER_MAX_TOKENS" split_words:"true" default:"5"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

func (c Config) OpenRouterFor(role Role) openrouterx.Config {
	modelName := strings.TrimSpace(c.Model)
	temp := c.Temperature
	maxTokens := c.MaxCompletionToken

	switch role {
	case RoleClassifier:
		if v := strings.TrimSpace(c.ClassifierModel); v != "" {
			modelName = v
		}
		if c.ClassifierTemperature >= 0 {
			temp = c.ClassifierTemperature
		}
		if c.ClassifierMaxTokens > 0 {
			maxTokens = c.ClassifierMaxTokens
		}
	case RoleDrafter:
		if v := strings.TrimSpace(c.DrafterModel); v != "" {
			modelName = v
		}
		if c.DrafterTemperature >= 0 {
			temp = c.DrafterTemperature
		}
	}

	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              modelName,
		MaxCompletionToken: &maxTokens,
		Temperature:        temp,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}
}
