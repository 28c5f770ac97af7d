package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	StateBackendSQLite = "sqlite"
	StateBackendFile   = "file"

	defaultStatePath      = "data/fiskeat.db"
	defaultSodexoURL      = "https://api-prd.sodexomyway.net/v0.2/data/menu"
	defaultSodexoLocation = "73110001"
	defaultSodexoSite     = "22135"
	defaultPort           = "5001"
)

// Config holds the configuration for the application.
type Config struct {
	APIURL       string
	APISecret    string
	StatePath    string
	StateBackend string

	SodexoAPIURL     string
	SodexoAPIKey     string
	SodexoLocationID string
	SodexoSiteID     string

	GeminiAPIKey string
	GroqAPIKey   string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64

	Port string
}

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first when present.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	stateBackend := strings.ToLower(getEnv("FISKEAT_STATE_BACKEND", StateBackendSQLite))
	if stateBackend != StateBackendSQLite && stateBackend != StateBackendFile {
		return nil, fmt.Errorf("FISKEAT_STATE_BACKEND must be %q or %q, got %q", StateBackendSQLite, StateBackendFile, stateBackend)
	}

	allowed, err := parseUserIDs(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS: %w", err)
	}

	return &Config{
		APIURL:                 strings.TrimRight(os.Getenv("FISKEAT_API_URL"), "/"),
		APISecret:              os.Getenv("FISKEAT_API_SECRET"),
		StatePath:              getEnv("FISKEAT_STATE_PATH", defaultStatePath),
		StateBackend:           stateBackend,
		SodexoAPIURL:           strings.TrimRight(getEnv("SODEXO_API_URL", defaultSodexoURL), "/"),
		SodexoAPIKey:           os.Getenv("SODEXO_API_KEY"),
		SodexoLocationID:       getEnv("SODEXO_LOCATION_ID", defaultSodexoLocation),
		SodexoSiteID:           getEnv("SODEXO_SITE_ID", defaultSodexoSite),
		GeminiAPIKey:           os.Getenv("GEMINI_API_KEY"),
		GroqAPIKey:             os.Getenv("GROQ_API_KEY"),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
		Port:                   getEnv("PORT", defaultPort),
	}, nil
}

// ValidateClient checks the settings needed to talk to the menu backend.
func (c *Config) ValidateClient() error {
	if c.APIURL == "" {
		return fmt.Errorf("FISKEAT_API_URL environment variable not set")
	}
	return nil
}

// ValidateSodexo checks the settings needed to call the upstream menu API.
func (c *Config) ValidateSodexo() error {
	if c.SodexoAPIKey == "" {
		return fmt.Errorf("SODEXO_API_KEY environment variable not set")
	}
	return nil
}

// ValidateTelegram checks the settings needed to run the bot.
func (c *Config) ValidateTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

// IsUserAllowed reports whether a Telegram user may use the bot.
// An empty allow list admits everyone.
func (c *Config) IsUserAllowed(userID int64) bool {
	if len(c.TelegramAllowedUserIDs) == 0 {
		return true
	}
	for _, id := range c.TelegramAllowedUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseUserIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
