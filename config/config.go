package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Discord configuration
	DiscordToken  string
	CommandPrefix string
	BotOwnerIDs   []string

	// Database configuration
	DatabaseURL string

	// Economy configuration
	StartingBalance int64
	ClanRerollCost  int64

	// Timezone used for civil-day boundaries (daily rewards, discount roll)
	Timezone *time.Location

	// Background loop intervals
	TimerPollInterval  time.Duration
	PayoutPollInterval time.Duration
	ClanPollInterval   time.Duration

	// Directory holding media referenced by the catalogs
	MediaDir string

	// Environment
	Environment string // "development" or "production"
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		// Discord
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		CommandPrefix: "!",

		// Database
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Economy defaults
		StartingBalance: 100,
		ClanRerollCost:  1500,

		// Loop defaults
		TimerPollInterval:  time.Second,
		PayoutPollInterval: 15 * time.Second,
		ClanPollInterval:   time.Minute,

		MediaDir: os.Getenv("MEDIA_DIR"),

		// Environment
		Environment: os.Getenv("ENVIRONMENT"),
	}

	// Override defaults if environment variables are set
	if prefix := os.Getenv("COMMAND_PREFIX"); prefix != "" {
		config.CommandPrefix = prefix
	}
	if balance := os.Getenv("STARTING_BALANCE"); balance != "" {
		if parsedBalance, err := strconv.ParseInt(balance, 10, 64); err == nil {
			config.StartingBalance = parsedBalance
		}
	}
	if cost := os.Getenv("CLAN_REROLL_COST"); cost != "" {
		if parsedCost, err := strconv.ParseInt(cost, 10, 64); err == nil {
			config.ClanRerollCost = parsedCost
		}
	}
	if interval := os.Getenv("TIMER_POLL_INTERVAL"); interval != "" {
		if parsed, err := time.ParseDuration(interval); err == nil && parsed > 0 {
			config.TimerPollInterval = parsed
		}
	}
	if interval := os.Getenv("PAYOUT_POLL_INTERVAL"); interval != "" {
		if parsed, err := time.ParseDuration(interval); err == nil && parsed > 0 {
			config.PayoutPollInterval = parsed
		}
	}
	if interval := os.Getenv("CLAN_POLL_INTERVAL"); interval != "" {
		if parsed, err := time.ParseDuration(interval); err == nil && parsed > 0 {
			config.ClanPollInterval = parsed
		}
	}

	// Parse bot owner IDs
	if ownerIDs := os.Getenv("BOT_OWNER_IDS"); ownerIDs != "" {
		for _, idStr := range strings.Split(ownerIDs, ",") {
			idStr = strings.TrimSpace(idStr)
			if idStr != "" {
				config.BotOwnerIDs = append(config.BotOwnerIDs, idStr)
			}
		}
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "America/Sao_Paulo"
	}
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", tzName, err)
	}
	config.Timezone = loc

	// Set default environment if not specified
	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		// Validate required configuration
		if config.DiscordToken == "" {
			return nil, fmt.Errorf("DISCORD_TOKEN is required")
		}
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}
