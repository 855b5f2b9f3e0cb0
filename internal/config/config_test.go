package config

import "testing"

func TestLoadRequiresChatEndpoint(t *testing.T) {
	t.Setenv("VOXLOOP_CHAT_ENDPOINT", "")

	if _, err := Load(); err == nil {
		t.Error("expected an error without a chat endpoint")
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("VOXLOOP_CHAT_ENDPOINT", "https://chat.example.com/v1/stream")
	t.Setenv("VOXLOOP_HISTORY_TABLE", "")
	t.Setenv("VOXLOOP_LOCALE", "")
	t.Setenv("DEEPGRAM_API_KEY", "")
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("SUPABASE_KEY", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected the config to load, got %v", err)
	}
	if cfg.HistoryTable != "chat_messages" {
		t.Errorf("expected the default history table, got %q", cfg.HistoryTable)
	}
	if cfg.Locale != "en-US" {
		t.Errorf("expected the default locale, got %q", cfg.Locale)
	}
	if cfg.SpeechEnabled() {
		t.Error("expected speech to be disabled without a Deepgram key")
	}
	if cfg.PersistenceEnabled() {
		t.Error("expected persistence to be disabled without Supabase settings")
	}
}

func TestLoadRejectsPartialSupabaseSettings(t *testing.T) {
	t.Setenv("VOXLOOP_CHAT_ENDPOINT", "https://chat.example.com/v1/stream")
	t.Setenv("SUPABASE_URL", "https://project.supabase.co")
	t.Setenv("SUPABASE_KEY", "")

	if _, err := Load(); err == nil {
		t.Error("expected an error for a Supabase URL without a key")
	}
}
