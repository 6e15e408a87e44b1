package bot

import (
	"context"
	"fmt"
	"strings"

	"clanrpg/events"
	"clanrpg/registry"
	"clanrpg/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// Config holds bot configuration
type Config struct {
	Token         string
	CommandPrefix string
	OwnerIDs      []string
	RerollCost    int64
	MediaDir      string
}

// Bot is the chat-transport adapter: it routes inbound messages to the
// game services and delivers outbound notifications.
type Bot struct {
	config  Config
	session *discordgo.Session

	reg            *registry.Registry
	userService    *service.UserService
	economyService *service.EconomyService
	shopService    *service.ShopService
	timerEngine    *service.TimerEngine
	eventBus       *events.Bus
	delivery       *delivery
}

// Deps bundles what the bot needs from the application core.
type Deps struct {
	Registry       *registry.Registry
	UserService    *service.UserService
	EconomyService *service.EconomyService
	ShopService    *service.ShopService
	EventBus       *events.Bus
}

// New creates the bot and opens the gateway connection. The timer engine is
// constructed here because it needs the bot's roster and moderation
// surfaces.
func New(config Config, deps Deps, newEngine func(service.Roster, service.ChatModerator) *service.TimerEngine) (*Bot, error) {
	dg, err := discordgo.New("Bot " + config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsAllWithoutPrivileged |
		discordgo.IntentsGuildMembers | discordgo.IntentsMessageContent

	bot := &Bot{
		config:         config,
		session:        dg,
		reg:            deps.Registry,
		userService:    deps.UserService,
		economyService: deps.EconomyService,
		shopService:    deps.ShopService,
		eventBus:       deps.EventBus,
	}
	bot.timerEngine = newEngine(bot, bot)
	bot.delivery = newDelivery(dg, config.MediaDir)

	dg.AddHandler(bot.handleMessage)

	if err := dg.Open(); err != nil {
		return nil, fmt.Errorf("error opening connection: %w", err)
	}

	// Outbound notifications flow through the delivery queue, never back
	// into game logic.
	deps.EventBus.Subscribe(events.EventTypeNotification, func(ctx context.Context, event events.Event) {
		if notif, ok := event.(events.NotificationEvent); ok {
			bot.delivery.enqueue(notif)
		}
	})

	log.Info("Bot connected")
	return bot, nil
}

// TimerEngine returns the engine constructed during New.
func (b *Bot) TimerEngine() *service.TimerEngine {
	return b.timerEngine
}

func (b *Bot) Close() error {
	b.delivery.stop()
	return b.session.Close()
}

// Members implements service.Roster over the session state, falling back
// to the API when the cache is cold.
func (b *Bot) Members(ctx context.Context, chatID string) ([]string, error) {
	channel, err := b.session.State.Channel(chatID)
	if err != nil {
		channel, err = b.session.Channel(chatID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve channel %s: %w", chatID, err)
		}
	}

	guild, err := b.session.State.Guild(channel.GuildID)
	if err != nil || len(guild.Members) == 0 {
		members, err := b.session.GuildMembers(channel.GuildID, "", 1000, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to fetch members of guild %s: %w", channel.GuildID, err)
		}
		ids := make([]string, 0, len(members))
		for _, m := range members {
			if !m.User.Bot {
				ids = append(ids, m.User.ID)
			}
		}
		return ids, nil
	}

	ids := make([]string, 0, len(guild.Members))
	for _, m := range guild.Members {
		if !m.User.Bot {
			ids = append(ids, m.User.ID)
		}
	}
	return ids, nil
}

// Promote implements service.ChatModerator: the initiator may keep speaking
// while the chat is restricted.
func (b *Bot) Promote(ctx context.Context, chatID, userID string) error {
	err := b.session.ChannelPermissionSet(chatID, userID, discordgo.PermissionOverwriteTypeMember,
		discordgo.PermissionSendMessages, 0, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to elevate %s in %s: %w", userID, chatID, err)
	}
	return nil
}

// Demote reverses Promote.
func (b *Bot) Demote(ctx context.Context, chatID, userID string) error {
	if err := b.session.ChannelPermissionDelete(chatID, userID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to demote %s in %s: %w", userID, chatID, err)
	}
	return nil
}

// RestrictChat implements service.ChatModerator by denying sends for the
// default role. The returned keys are what RestoreChat undoes.
func (b *Bot) RestrictChat(ctx context.Context, chatID string) ([]string, error) {
	channel, err := b.session.State.Channel(chatID)
	if err != nil {
		channel, err = b.session.Channel(chatID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve channel %s: %w", chatID, err)
		}
	}
	err = b.session.ChannelPermissionSet(chatID, channel.GuildID, discordgo.PermissionOverwriteTypeRole,
		0, discordgo.PermissionSendMessages, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to restrict channel %s: %w", chatID, err)
	}
	return []string{"deny_send:" + channel.GuildID}, nil
}

// RestoreChat reverses RestrictChat for exactly the recorded changes.
func (b *Bot) RestoreChat(ctx context.Context, chatID string, applied []string) error {
	for _, key := range applied {
		roleID, ok := strings.CutPrefix(key, "deny_send:")
		if !ok {
			continue
		}
		if err := b.session.ChannelPermissionDelete(chatID, roleID, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to restore channel %s: %w", chatID, err)
		}
	}
	return nil
}
