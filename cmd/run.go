package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"clanrpg/assets"
	"clanrpg/bot"
	"clanrpg/config"
	"clanrpg/database"
	"clanrpg/events"
	"clanrpg/registry"
	"clanrpg/service"
	"clanrpg/store"
)

// Run initializes and starts the application
func Run(ctx context.Context) error {
	log.Println("Starting clanrpg bot...")

	// Load configuration
	cfg := config.Get()

	// Initialize database connection
	log.Println("Connecting to database...")
	db, err := database.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Println("Database connection established successfully")

	// Load game state
	docStore := store.NewDocumentStore(db)
	reg := registry.New(docStore)
	if err := reg.Load(ctx); err != nil {
		return fmt.Errorf("failed to load game state: %w", err)
	}

	// Seed the catalogs on first run. Non-empty catalogs in the store win.
	if err := seedCatalogs(ctx, reg); err != nil {
		return fmt.Errorf("failed to seed catalogs: %w", err)
	}

	// Initialize event bus
	eventBus := events.NewBus()

	// Initialize services
	log.Println("Initializing services...")
	userService := service.NewUserService(reg, eventBus, cfg.Timezone, cfg.StartingBalance, cfg.ClanRerollCost)
	economyService := service.NewEconomyService(reg, cfg.Timezone)
	shopService := service.NewShopService(reg, cfg.Timezone)
	payoutEngine := service.NewPayoutEngine(reg, eventBus)
	clanService := service.NewClanService(reg)
	log.Println("Services initialized successfully")

	// Initialize Discord bot. The timer engine is built inside bot.New
	// because the bot itself provides the roster and moderation surfaces.
	log.Println("Initializing Discord bot...")
	botConfig := bot.Config{
		Token:         cfg.DiscordToken,
		CommandPrefix: cfg.CommandPrefix,
		OwnerIDs:      cfg.BotOwnerIDs,
		RerollCost:    cfg.ClanRerollCost,
		MediaDir:      cfg.MediaDir,
	}
	deps := bot.Deps{
		Registry:       reg,
		UserService:    userService,
		EconomyService: economyService,
		ShopService:    shopService,
		EventBus:       eventBus,
	}
	discordBot, err := bot.New(botConfig, deps, func(roster service.Roster, mod service.ChatModerator) *service.TimerEngine {
		return service.NewTimerEngine(reg, eventBus, roster, mod, cfg.StartingBalance)
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Discord bot: %w", err)
	}
	log.Println("Discord bot initialized successfully")

	// Background loops: pending effects, passive income, shield recharge.
	go pollLoop(ctx, cfg.TimerPollInterval, discordBot.TimerEngine().Poll)
	go pollLoop(ctx, cfg.PayoutPollInterval, payoutEngine.Poll)
	go pollLoop(ctx, cfg.ClanPollInterval, clanService.Poll)

	// Wait for context cancellation
	log.Printf("Bot is running in %s mode...", cfg.Environment)
	<-ctx.Done()

	// Cleanup resources
	log.Println("Shutting down bot...")

	// Close Discord bot connection
	if err := discordBot.Close(); err != nil {
		log.Printf("Error closing Discord bot: %v", err)
	}

	// Give cleanup operations time to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Close database connection
	log.Println("Closing database connection...")
	db.Close()

	select {
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout exceeded")
	case <-time.After(1 * time.Second):
		log.Println("Shutdown completed")
	}

	return nil
}

func seedCatalogs(ctx context.Context, reg *registry.Registry) error {
	clans, err := assets.Clans()
	if err != nil {
		return err
	}
	abilities, err := assets.Abilities()
	if err != nil {
		return err
	}
	shop, err := assets.Shop()
	if err != nil {
		return err
	}
	return reg.SeedCatalogs(ctx, clans, abilities, shop)
}

// pollLoop invokes fn on a fixed ticker until the context ends.
func pollLoop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fn(ctx)
		case <-ctx.Done():
			return
		}
	}
}
