package bot

import (
	"context"
	"strings"

	"clanrpg/service"

	"github.com/bwmarrin/discordgo"
	log "github.com/sirupsen/logrus"
)

// handleMessage is the single inbound entry point. Every message is first
// offered to the timer engine as a possible cancellation utterance, then
// parsed as a command if it carries the prefix.
func (b *Bot) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}

	ctx := context.Background()

	if b.timerEngine.TryCancel(ctx, m.ChannelID, m.Author.ID, m.Content) {
		return
	}

	b.userService.TouchLastChat(ctx, m.Author.ID, m.ChannelID)

	if !strings.HasPrefix(m.Content, b.config.CommandPrefix) {
		return
	}

	fields := strings.Fields(strings.TrimPrefix(m.Content, b.config.CommandPrefix))
	if len(fields) == 0 {
		return
	}
	command := strings.ToLower(fields[0])
	args := fields[1:]

	b.dispatch(ctx, m, command, args)
}

func (b *Bot) dispatch(ctx context.Context, m *discordgo.MessageCreate, command string, args []string) {
	if !b.isRegistered(m.Author.ID) && !openCommand(command) {
		b.reply(m.ChannelID, "You are not registered yet. Use "+b.config.CommandPrefix+"register to join.")
		return
	}

	switch command {
	case "register", "registrar":
		b.handleRegister(ctx, m)
	case "profile", "perfil", "balance", "saldo":
		b.handleProfile(ctx, m, args)
	case "deposit", "depositar":
		b.handleDeposit(ctx, m, args)
	case "withdraw", "sacar":
		b.handleWithdraw(ctx, m, args)
	case "pix", "transfer":
		b.handleTransfer(ctx, m, args)
	case "daily", "diaria":
		b.handleDaily(ctx, m)
	case "shop", "loja":
		b.handleShop(ctx, m, args)
	case "buy", "comprar":
		b.handleBuyItem(ctx, m, args)
	case "buyskill", "comprarskill":
		b.handleBuyAbility(ctx, m, args)
	case "skills", "habilidades":
		b.handleSkills(ctx, m)
	case "use", "usar":
		b.handleUse(ctx, m, args)
	case "trade", "trocar":
		b.handleTrade(ctx, m, args)
	case "clans", "clas":
		b.handleClans(ctx, m)
	case "reroll", "rerolar":
		b.handleReroll(ctx, m)
	case "nick":
		b.handleNick(ctx, m, args)
	case "notifyhere", "notificaraqui":
		b.handleNotifyHere(ctx, m)
	case "mute", "mutar":
		b.handleMuteToggle(ctx, m)
	case "grant":
		b.handleGrant(ctx, m, args)
	case "reset":
		b.handleReset(ctx, m, args)
	case "help", "menu", "ajuda":
		b.handleHelp(ctx, m)
	default:
		if b.dispatchActivity(ctx, m, command) {
			return
		}
		// A bare ability id works as shorthand for "use <id>".
		if b.isAbilityCommand(command) {
			b.handleUse(ctx, m, append([]string{command}, args...))
			return
		}
	}
}

// dispatchActivity routes the timed-activity commands (work, mine, ...).
func (b *Bot) dispatchActivity(ctx context.Context, m *discordgo.MessageCreate, command string) bool {
	for _, def := range b.economyService.Activities() {
		if def.Key == command {
			b.handleActivity(ctx, m, command)
			return true
		}
	}
	return false
}

func (b *Bot) isRegistered(userID string) bool {
	b.reg.Lock()
	defer b.reg.Unlock()
	return b.reg.User(userID) != nil
}

func (b *Bot) isAbilityCommand(command string) bool {
	b.reg.Lock()
	defer b.reg.Unlock()
	return b.reg.Ability(command) != nil
}

// openCommand lists what an unregistered user may still run.
func openCommand(command string) bool {
	switch command {
	case "register", "registrar", "clans", "clas", "help", "menu", "ajuda":
		return true
	}
	return false
}

func (b *Bot) isOwner(userID string) bool {
	for _, id := range b.config.OwnerIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// reply sends a plain message, logging delivery failures instead of
// surfacing them.
func (b *Bot) reply(chatID, text string) {
	if _, err := b.session.ChannelMessageSend(chatID, text); err != nil {
		log.WithFields(log.Fields{
			"channel": chatID,
			"error":   err,
		}).Error("Failed to send reply")
	}
}

// replyError renders a service error: validation failures go back to the
// chat verbatim, anything else is logged and answered generically.
func (b *Bot) replyError(chatID string, err error) {
	if service.IsValidation(err) {
		b.reply(chatID, "❌ "+err.Error())
		return
	}
	log.WithError(err).Error("Command failed")
	b.reply(chatID, "❌ Something went wrong, try again later.")
}

// firstMention returns the id of the first mentioned user, or empty.
func firstMention(m *discordgo.MessageCreate) string {
	for _, u := range m.Mentions {
		if !u.Bot {
			return u.ID
		}
	}
	return ""
}
