package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("explicit missing config file should error")
	}

	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load without file: %v", err)
	}
	if cfg.APIBaseURL != "https://api.telegram.org" {
		t.Fatalf("api base url = %q", cfg.APIBaseURL)
	}
	if cfg.FirstReminderDelay != time.Hour || cfg.SecondReminderDelay != time.Hour {
		t.Fatalf("reminder delays = %v/%v", cfg.FirstReminderDelay, cfg.SecondReminderDelay)
	}
	if cfg.FinalPhotoDelay != 6*time.Hour {
		t.Fatalf("final delay = %v", cfg.FinalPhotoDelay)
	}
	if cfg.ReminderPollInterval != time.Minute || cfg.FinalPollInterval != 5*time.Minute {
		t.Fatalf("poll intervals = %v/%v", cfg.ReminderPollInterval, cfg.FinalPollInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "funnelbot.yaml")
	content := `
bot_token: file-token
course_channel_id: -100123
admin_ids: [1, 2]
first_reminder_delay: 30m
media:
  mentor_a:
    photo: photo-a
  final_photo: final-1
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.BotToken != "file-token" || cfg.CourseChannelID != -100123 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.FirstReminderDelay != 30*time.Minute {
		t.Fatalf("first delay = %v", cfg.FirstReminderDelay)
	}
	if cfg.Media.MentorA.Photo != "photo-a" || cfg.Media.FinalPhoto != "final-1" {
		t.Fatalf("media not decoded: %+v", cfg.Media)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	if !cfg.IsAdmin(1) || cfg.IsAdmin(3) {
		t.Fatal("admin ids wrong")
	}
}

func TestValidateRequiredFields(t *testing.T) {
	cfg := &Config{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("empty config validated")
	}

	cfg.BotToken = "token"
	if err := cfg.Validate(); err == nil {
		t.Fatal("missing channel id validated")
	}

	cfg.CourseChannelID = -100
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestVariantMedia(t *testing.T) {
	cfg := &Config{Media: MediaConfig{
		MentorA: MediaBundle{Voice1: "a1"},
		MentorB: MediaBundle{Voice1: "b1"},
	}}
	if got := cfg.VariantMedia("mentor_b").Voice1; got != "b1" {
		t.Fatalf("mentor_b voice = %q", got)
	}
	if got := cfg.VariantMedia("mentor_a").Voice1; got != "a1" {
		t.Fatalf("mentor_a voice = %q", got)
	}
	// Unknown tags fall back to the A bundle.
	if got := cfg.VariantMedia("").Voice1; got != "a1" {
		t.Fatalf("default voice = %q", got)
	}
}
