// Package config reads the process environment into a validated Config.
// Optional integrations (speech, persistence) degrade gracefully when their
// keys are absent; only the chat endpoint is mandatory.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

const (
	defaultLocale       = "en-US"
	defaultHistoryTable = "chat_messages"
)

type Config struct {
	// ChatEndpoint is the streamed chat-completions URL; ChatAPIKey is sent
	// as a bearer token.
	ChatEndpoint string
	ChatAPIKey   string

	// DeepgramAPIKey enables the speech capture and playback backends.
	DeepgramAPIKey string

	// SupabaseURL and SupabaseKey enable turn persistence; UserID is the
	// identity rows are written under.
	SupabaseURL  string
	SupabaseKey  string
	HistoryTable string
	UserID       string

	Locale string
}

// Load reads a .env file when present, then the process environment. A
// missing .env is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		ChatEndpoint:   os.Getenv("VOXLOOP_CHAT_ENDPOINT"),
		ChatAPIKey:     os.Getenv("VOXLOOP_CHAT_API_KEY"),
		DeepgramAPIKey: os.Getenv("DEEPGRAM_API_KEY"),
		SupabaseURL:    os.Getenv("SUPABASE_URL"),
		SupabaseKey:    os.Getenv("SUPABASE_KEY"),
		HistoryTable:   os.Getenv("VOXLOOP_HISTORY_TABLE"),
		UserID:         os.Getenv("VOXLOOP_USER_ID"),
		Locale:         os.Getenv("VOXLOOP_LOCALE"),
	}
	if cfg.HistoryTable == "" {
		cfg.HistoryTable = defaultHistoryTable
	}
	if cfg.Locale == "" {
		cfg.Locale = defaultLocale
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ChatEndpoint == "" {
		return fmt.Errorf("config: VOXLOOP_CHAT_ENDPOINT is required")
	}
	if c.SupabaseURL != "" && c.SupabaseKey == "" {
		return fmt.Errorf("config: SUPABASE_KEY is required when SUPABASE_URL is set")
	}
	return nil
}

// SpeechEnabled reports whether the Deepgram backends can be constructed.
func (c Config) SpeechEnabled() bool {
	return c.DeepgramAPIKey != ""
}

// PersistenceEnabled reports whether turn persistence can be constructed.
func (c Config) PersistenceEnabled() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}
