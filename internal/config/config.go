package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultEndpoint   = "https://api.deepseek.com/chat/completions"
	DefaultModel      = "deepseek-chat"
	DefaultStorageKey = "conversations"
)

// Config holds application configuration
type Config struct {
	// Completion service
	Endpoint       string        `env:"PICKLE_COMPLETION_URL" envDefault:"https://api.deepseek.com/chat/completions"`
	APIKey         string        `env:"PICKLE_API_KEY"`
	Model          string        `env:"PICKLE_MODEL" envDefault:"deepseek-chat"`
	RequestTimeout time.Duration `env:"PICKLE_REQUEST_TIMEOUT" envDefault:"60s"`
	CacheResponses bool          `env:"PICKLE_CACHE_RESPONSES" envDefault:"false"`

	// Title generation parameters for the side request after the third user turn
	TitleTemperature     float64 `env:"PICKLE_TITLE_TEMPERATURE" envDefault:"1.2"`
	TitlePresencePenalty float64 `env:"PICKLE_TITLE_PRESENCE_PENALTY" envDefault:"1.0"`
	TitleMaxTokens       int     `env:"PICKLE_TITLE_MAX_TOKENS" envDefault:"20"`

	// Storage
	DBPath     string `env:"PICKLE_DB" envDefault:"picklechat.db"`
	StorageKey string `env:"PICKLE_STORAGE_KEY" envDefault:"conversations"`

	// Presentation
	RevealDelay   time.Duration `env:"PICKLE_REVEAL_DELAY" envDefault:"50ms"`
	SpeechCommand string        `env:"PICKLE_SPEECH_COMMAND"` // External TTS binary, e.g. "espeak"; empty prints only
	EventsAddr    string        `env:"PICKLE_EVENTS_ADDR"`    // WebSocket event feed listen address, disabled when empty

	LogDir         string `env:"PICKLE_LOG_DIR" envDefault:"logs"`
	Debug          bool   `env:"PICKLE_DEBUG" envDefault:"false"`
	ConversationID string // Conversation to open at startup, set from flags
}

// Load reads .env files (if present) and parses the environment into Config.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}
	return cfg, nil
}

// ValidateCompletion checks the settings needed to contact the completion service.
func (c *Config) ValidateCompletion() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("PICKLE_API_KEY is required")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("PICKLE_COMPLETION_URL is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("PICKLE_MODEL is required")
	}
	return nil
}
