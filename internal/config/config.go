// Package config loads funnelbot configuration from file, environment and
// flags via viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// MediaBundle holds the transport file ids for one content variant.
type MediaBundle struct {
	Photo  string `mapstructure:"photo"`
	Voice1 string `mapstructure:"voice_1"`
	Voice2 string `mapstructure:"voice_2"`
}

// MediaConfig holds every media reference the funnel delivers.
type MediaConfig struct {
	MentorA             MediaBundle `mapstructure:"mentor_a"`
	MentorB             MediaBundle `mapstructure:"mentor_b"`
	TestimonialVideo    string      `mapstructure:"testimonial_video"`
	SuccessStoriesVideo string      `mapstructure:"success_stories_video"`
	FinalPhoto          string      `mapstructure:"final_photo"`
}

// Config is the full funnelbot configuration, read once at startup.
type Config struct {
	// BotToken authenticates against the messaging API.
	BotToken string `mapstructure:"bot_token"`

	// APIBaseURL is overridable so tests can point at a local server.
	APIBaseURL string `mapstructure:"api_base_url"`

	// AdminIDs are operator accounts excluded from the funnel.
	AdminIDs []int64 `mapstructure:"admin_ids"`

	// CourseChannelID is the channel invite links are minted for.
	CourseChannelID int64 `mapstructure:"course_channel_id"`

	// VideoChannelID is the channel hosting the media referenced below.
	VideoChannelID int64 `mapstructure:"video_channel_id"`

	// InstagramURL is linked from the intro sequence.
	InstagramURL string `mapstructure:"instagram_url"`

	// FallbackInviteURL is handed out when invite minting fails.
	FallbackInviteURL string `mapstructure:"fallback_invite_url"`

	DBPath       string `mapstructure:"db_path"`
	SnapshotPath string `mapstructure:"snapshot_path"`
	LogLevel     string `mapstructure:"log_level"`

	// Delay offsets. Deadlines are computed once at registration as
	// now + offset, never recomputed per poll.
	FirstReminderDelay  time.Duration `mapstructure:"first_reminder_delay"`
	SecondReminderDelay time.Duration `mapstructure:"second_reminder_delay"`
	FinalPhotoDelay     time.Duration `mapstructure:"final_photo_delay"`

	// Scheduler poll periods.
	ReminderPollInterval time.Duration `mapstructure:"reminder_poll_interval"`
	FinalPollInterval    time.Duration `mapstructure:"final_poll_interval"`

	// Transport tuning.
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
	RestartBackoff time.Duration `mapstructure:"restart_backoff"`

	Media MediaConfig `mapstructure:"media"`
}

// Load reads configuration from the optional file at path (otherwise
// funnelbot.yaml in the working directory), overlaid with FUNNELBOT_*
// environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("funnelbot")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("FUNNELBOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api_base_url", "https://api.telegram.org")
	v.SetDefault("db_path", "funnelbot.db")
	v.SetDefault("snapshot_path", "funnelbot_snapshot.json")
	v.SetDefault("log_level", "info")
	v.SetDefault("fallback_invite_url", "")

	v.SetDefault("first_reminder_delay", time.Hour)
	v.SetDefault("second_reminder_delay", time.Hour)
	v.SetDefault("final_photo_delay", 6*time.Hour)

	v.SetDefault("reminder_poll_interval", time.Minute)
	v.SetDefault("final_poll_interval", 5*time.Minute)

	v.SetDefault("poll_timeout", 20*time.Second)
	v.SetDefault("restart_backoff", 15*time.Second)
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BotToken) == "" {
		return errors.New("bot_token is required")
	}
	if c.CourseChannelID == 0 {
		return errors.New("course_channel_id is required")
	}
	return nil
}

// IsAdmin reports whether id belongs to a configured operator account.
func (c *Config) IsAdmin(id int64) bool {
	for _, admin := range c.AdminIDs {
		if admin == id {
			return true
		}
	}
	return false
}

// VariantMedia returns the media bundle for a variant tag.
func (c *Config) VariantMedia(variant string) MediaBundle {
	if variant == "mentor_b" {
		return c.Media.MentorB
	}
	return c.Media.MentorA
}
