package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"clanrpg/models"
	"clanrpg/service"

	"github.com/bwmarrin/discordgo"
)

func (b *Bot) handleRegister(ctx context.Context, m *discordgo.MessageCreate) {
	name := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		name = m.Member.Nick
	}

	user, clan, err := b.userService.Register(ctx, m.Author.ID, name, m.ChannelID)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}

	text := fmt.Sprintf("⚔️ Welcome, **%s**! You joined clan **%s** with **%s** gold.",
		user.Name, clan.Name, FormatBalance(user.Balance))
	if clan.Buff != nil {
		text += "\nClan perk: " + clan.Buff.Description
	}
	b.reply(m.ChannelID, text)
}

func (b *Bot) handleProfile(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	targetID := m.Author.ID
	if id := firstMention(m); id != "" {
		targetID = id
	}

	b.reg.Lock()
	defer b.reg.Unlock()

	user := b.reg.User(targetID)
	if user == nil {
		b.reply(m.ChannelID, "That user is not registered.")
		return
	}
	clan := b.reg.UserClan(user)

	var sb strings.Builder
	fmt.Fprintf(&sb, "📜 **%s**\n", user.Name)
	if clan != nil {
		fmt.Fprintf(&sb, "Clan: **%s**", clan.Name)
		if clan.Buff != nil {
			fmt.Fprintf(&sb, " (%s)", clan.Buff.Description)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Wallet: **%s** | Bank: **%s**\n", FormatBalance(user.Balance), FormatBalance(user.Bank))
	if user.ShieldCharges > 0 {
		fmt.Fprintf(&sb, "Shield charges: %d\n", user.ShieldCharges)
	}
	if len(user.Holdings) > 0 {
		names := make([]string, 0, len(user.Holdings))
		for _, h := range user.Holdings {
			names = append(names, h.Name)
		}
		fmt.Fprintf(&sb, "Assets: %s\n", strings.Join(names, ", "))
	}
	if len(user.Abilities) > 0 {
		fmt.Fprintf(&sb, "Skills: %s\n", strings.Join(b.abilityNames(user.Abilities), ", "))
	}
	b.reply(m.ChannelID, sb.String())
}

// abilityNames resolves ids to display names, keeping unknown ids as-is.
// Caller must hold the registry lock.
func (b *Bot) abilityNames(ids []string) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if ability := b.reg.Ability(id); ability != nil {
			names = append(names, ability.Name)
		} else {
			names = append(names, id)
		}
	}
	return names
}

func (b *Bot) handleDeposit(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"deposit <amount|all>")
		return
	}
	amount, err := ParseAmount(args[0])
	if err != nil {
		b.reply(m.ChannelID, "❌ "+err.Error())
		return
	}
	banked, err := b.economyService.Deposit(ctx, m.Author.ID, amount)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("🏦 Deposited. Bank balance: **%s**.", FormatBalance(banked)))
}

func (b *Bot) handleWithdraw(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"withdraw <amount|all>")
		return
	}
	amount, err := ParseAmount(args[0])
	if err != nil {
		b.reply(m.ChannelID, "❌ "+err.Error())
		return
	}
	balance, err := b.economyService.Withdraw(ctx, m.Author.ID, amount)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("💰 Withdrawn. Wallet: **%s**.", FormatBalance(balance)))
}

func (b *Bot) handleTransfer(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	targetID := firstMention(m)
	if targetID == "" || len(args) < 2 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"pix @user <amount>")
		return
	}
	// The amount can be on either side of the mention.
	var amount int64 = -1
	for _, arg := range args {
		if strings.HasPrefix(arg, "<@") {
			continue
		}
		parsed, err := ParseAmount(arg)
		if err == nil && parsed != service.AmountAll {
			amount = parsed
			break
		}
	}
	if amount < 0 {
		b.reply(m.ChannelID, "❌ Give a positive amount to send.")
		return
	}
	if err := b.economyService.Transfer(ctx, m.Author.ID, targetID, amount); err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("✅ Sent **%s** gold to %s.", FormatBalance(amount), Mention(targetID)))
}

func (b *Bot) handleDaily(ctx context.Context, m *discordgo.MessageCreate) {
	amount, err := b.economyService.Daily(ctx, m.Author.ID)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("🎁 Daily reward: **%s** gold!", FormatBalance(amount)))
}

func (b *Bot) handleActivity(ctx context.Context, m *discordgo.MessageCreate, key string) {
	result, err := b.economyService.DoActivity(ctx, m.Author.ID, key)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	if result.Success {
		b.reply(m.ChannelID, fmt.Sprintf("✅ You earned **%s** gold from %s. Wallet: **%s**.",
			FormatBalance(result.Amount), result.Activity, FormatBalance(result.NewBalance)))
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("💥 It went wrong and you were fined **%s** gold. Wallet: **%s**.",
		FormatBalance(result.Amount), FormatBalance(result.NewBalance)))
}

func (b *Bot) handleShop(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	b.reg.Lock()
	defer b.reg.Unlock()

	user := b.reg.User(m.Author.ID)
	clan := b.reg.UserClan(user)

	var sb strings.Builder
	sb.WriteString("🛒 **Shop**\n")
	for _, cat := range b.reg.Shop.OrderedCategories() {
		fmt.Fprintf(&sb, "\n__%s__\n", cat.Name)
		for _, item := range sortedItems(cat) {
			price := service.EffectiveItemPrice(&item, cat.ID, clan)
			fmt.Fprintf(&sb, "`%s` %s: %s gold, pays %s every %dm\n",
				item.ID, item.Name, FormatBalance(price), FormatBalance(item.Income), item.CooldownMin)
		}
	}

	sb.WriteString("\n__Skills__\n")
	settings := b.reg.Settings
	for _, ability := range sortedAbilities(b.reg.Abilities) {
		if !ability.Purchasable() {
			continue
		}
		price := service.EffectiveAbilityPrice(ability, clan, &settings.DailyDiscount, service.NowMillis())
		line := fmt.Sprintf("`%s` %s: %s gold", ability.ID, ability.Name, FormatBalance(price))
		if price < ability.Price {
			line += " 🔥"
		}
		sb.WriteString(line + "\n")
	}
	b.reply(m.ChannelID, sb.String())
}

func (b *Bot) handleBuyItem(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"buy <item>")
		return
	}
	item, paid, err := b.shopService.BuyItem(ctx, m.Author.ID, strings.ToLower(args[0]))
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("🧾 You bought **%s** for **%s** gold. It pays **%s** every %d minutes.",
		item.Name, FormatBalance(paid), FormatBalance(item.Income), item.CooldownMin))
}

func (b *Bot) handleBuyAbility(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"buyskill <skill>")
		return
	}
	ability, paid, err := b.shopService.BuyAbility(ctx, m.Author.ID, strings.ToLower(args[0]))
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("📗 You learned **%s** for **%s** gold.", ability.Name, FormatBalance(paid)))
}

func (b *Bot) handleSkills(ctx context.Context, m *discordgo.MessageCreate) {
	b.reg.Lock()
	defer b.reg.Unlock()

	user := b.reg.User(m.Author.ID)
	if len(user.Abilities) == 0 {
		b.reply(m.ChannelID, "You have no skills yet. Check "+b.config.CommandPrefix+"shop.")
		return
	}

	var sb strings.Builder
	sb.WriteString("📚 **Your skills**\n")
	for _, id := range user.Abilities {
		ability := b.reg.Ability(id)
		if ability == nil {
			continue
		}
		fmt.Fprintf(&sb, "`%s` **%s**", ability.ID, ability.Name)
		if ability.Usage != "" {
			fmt.Fprintf(&sb, " (%s)", ability.Usage)
		}
		if ability.Description != "" {
			fmt.Fprintf(&sb, ": %s", ability.Description)
		}
		sb.WriteString("\n")
	}
	b.reply(m.ChannelID, sb.String())
}

func (b *Bot) handleUse(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"use <skill> [@target]")
		return
	}
	abilityID := strings.ToLower(args[0])
	targetID := firstMention(m)

	result, err := b.timerEngine.ActivateAbility(ctx, m.Author.ID, m.ChannelID, abilityID, targetID)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}

	switch result.Kind {
	case service.ActivationInfo:
		b.replyInfoSkill(m, result.Ability, targetID)
	case service.ActivationSelfBuff:
		remaining := result.BuffUntil - service.NowMillis()
		b.reply(m.ChannelID, fmt.Sprintf("✨ **%s** is active for %s.", result.Ability.Name, FormatDuration(remaining)))
	case service.ActivationEnvironment:
		b.reply(m.ChannelID, fmt.Sprintf("🌀 **%s**! The chat is under its effect for %s.",
			result.Ability.Name, FormatDuration(result.Timer.ExpiresAt-service.NowMillis())))
	case service.ActivationScheduled:
		b.announceScheduled(m, result)
	}
}

// replyInfoSkill answers an information skill with the target's public
// profile snapshot.
func (b *Bot) replyInfoSkill(m *discordgo.MessageCreate, ability *models.Ability, targetID string) {
	if targetID == "" {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"use "+ability.ID+" @target")
		return
	}

	b.reg.Lock()
	defer b.reg.Unlock()

	target := b.reg.User(targetID)
	if target == nil {
		b.reply(m.ChannelID, "That user is not registered.")
		return
	}
	clanName := "none"
	if clan := b.reg.UserClan(target); clan != nil {
		clanName = clan.Name
	}
	b.reply(m.ChannelID, fmt.Sprintf("🔍 **%s**: wallet **%s**, bank **%s**, clan **%s**.",
		target.Name, FormatBalance(target.Balance), FormatBalance(target.Bank), clanName))
}

func (b *Bot) announceScheduled(m *discordgo.MessageCreate, result *service.ActivationResult) {
	ability := result.Ability
	timer := result.Timer
	window := FormatDuration(timer.ExpiresAt - service.NowMillis())

	var sb strings.Builder
	if timer.Area() {
		fmt.Fprintf(&sb, "⚠️ %s used **%s** on everyone! It strikes in %s.", Mention(timer.InitiatorID), ability.Name, window)
	} else {
		fmt.Fprintf(&sb, "⚠️ %s used **%s** on %s! It strikes in %s.",
			Mention(timer.InitiatorID), ability.Name, Mention(timer.TargetID), window)
	}
	if !timer.Unavoidable && timer.CancelPhrase != "" {
		fmt.Fprintf(&sb, "\nSay **%s** to stop it!", timer.CancelPhrase)
	}
	b.reply(m.ChannelID, sb.String())
}

func (b *Bot) handleTrade(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	targetID := firstMention(m)
	if targetID == "" || len(args) < 2 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"trade @user <skill>")
		return
	}
	var abilityID string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "<@") {
			abilityID = strings.ToLower(arg)
			break
		}
	}
	ability, err := b.shopService.TradeAbility(ctx, m.Author.ID, targetID, abilityID)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("🤝 **%s** was handed to %s.", ability.Name, Mention(targetID)))
}

func (b *Bot) handleClans(ctx context.Context, m *discordgo.MessageCreate) {
	b.reg.Lock()
	defer b.reg.Unlock()

	var sb strings.Builder
	sb.WriteString("🏯 **Clans**\n")
	for _, clan := range sortedClans(b.reg.Clans) {
		fmt.Fprintf(&sb, "**%s**", clan.Name)
		if clan.Buff != nil {
			fmt.Fprintf(&sb, ": %s", clan.Buff.Description)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "\nReroll yours for **%s** gold with %sreroll.",
		FormatBalance(b.config.RerollCost), b.config.CommandPrefix)
	b.reply(m.ChannelID, sb.String())
}

func (b *Bot) handleReroll(ctx context.Context, m *discordgo.MessageCreate) {
	clan, err := b.userService.RerollClan(ctx, m.Author.ID)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	text := fmt.Sprintf("🎲 You are now part of **%s**.", clan.Name)
	if clan.Buff != nil {
		text += " Perk: " + clan.Buff.Description
	}
	b.reply(m.ChannelID, text)
}

func (b *Bot) handleNick(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if len(args) == 0 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"nick <new name>")
		return
	}
	name := strings.Join(args, " ")
	if err := b.userService.SetNick(ctx, m.Author.ID, name); err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("✏️ You are now known as **%s**.", name))
}

func (b *Bot) handleNotifyHere(ctx context.Context, m *discordgo.MessageCreate) {
	if err := b.userService.SetNotifyChat(ctx, m.Author.ID, m.ChannelID); err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, "🔔 Your income notifications will arrive in this channel.")
}

func (b *Bot) handleMuteToggle(ctx context.Context, m *discordgo.MessageCreate) {
	muted, err := b.userService.TogglePayoutNotifications(ctx, m.Author.ID)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	if muted {
		b.reply(m.ChannelID, "🔇 Income notifications muted. Income still accrues.")
	} else {
		b.reply(m.ChannelID, "🔔 Income notifications unmuted.")
	}
}

func (b *Bot) handleGrant(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if !b.isOwner(m.Author.ID) {
		b.reply(m.ChannelID, "❌ Only the bot owner can do that.")
		return
	}
	targetID := firstMention(m)
	if targetID == "" || len(args) < 2 {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"grant @user <amount>")
		return
	}
	var delta int64
	var parsed bool
	for _, arg := range args {
		if strings.HasPrefix(arg, "<@") {
			continue
		}
		if v, err := ParseAmount(strings.TrimPrefix(arg, "-")); err == nil && v != service.AmountAll {
			delta = v
			if strings.HasPrefix(arg, "-") {
				delta = -delta
			}
			parsed = true
			break
		}
	}
	if !parsed {
		b.reply(m.ChannelID, "❌ Give an amount to grant.")
		return
	}
	balance, err := b.userService.AdjustBalance(ctx, targetID, delta)
	if err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("⚖️ Adjusted %s by **%s**. New wallet: **%s**.",
		Mention(targetID), FormatBalance(delta), FormatBalance(balance)))
}

func (b *Bot) handleReset(ctx context.Context, m *discordgo.MessageCreate, args []string) {
	if !b.isOwner(m.Author.ID) {
		b.reply(m.ChannelID, "❌ Only the bot owner can do that.")
		return
	}
	targetID := firstMention(m)
	if targetID == "" {
		b.reply(m.ChannelID, "Usage: "+b.config.CommandPrefix+"reset @user")
		return
	}
	if err := b.userService.ResetProfile(ctx, targetID); err != nil {
		b.replyError(m.ChannelID, err)
		return
	}
	b.reply(m.ChannelID, fmt.Sprintf("♻️ %s got a fresh start.", Mention(targetID)))
}

func (b *Bot) handleHelp(ctx context.Context, m *discordgo.MessageCreate) {
	p := b.config.CommandPrefix
	var sb strings.Builder
	sb.WriteString("📖 **Commands**\n")
	fmt.Fprintf(&sb, "`%sregister` join the game | `%sprofile [@user]` your sheet\n", p, p)
	fmt.Fprintf(&sb, "`%sdeposit <n|all>` `%swithdraw <n|all>` `%spix @user <n>` `%sdaily`\n", p, p, p, p)

	keys := make([]string, 0)
	for _, def := range b.economyService.Activities() {
		keys = append(keys, "`"+p+def.Key+"`")
	}
	sb.WriteString("Activities: " + strings.Join(keys, " ") + "\n")

	fmt.Fprintf(&sb, "`%sshop` `%sbuy <item>` `%sbuyskill <skill>` `%strade @user <skill>`\n", p, p, p, p)
	fmt.Fprintf(&sb, "`%sskills` `%suse <skill> [@target]`\n", p, p)
	fmt.Fprintf(&sb, "`%sclans` `%sreroll` `%snick <name>` `%snotifyhere` `%smute`\n", p, p, p, p, p)
	b.reply(m.ChannelID, sb.String())
}

// Map iteration order is random; the listings sort by id so the shop and
// clan output is stable between invocations.

func sortedItems(cat *models.ShopCategory) []models.ShopItem {
	items := make([]models.ShopItem, 0, len(cat.Items))
	for _, item := range cat.Items {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items
}

func sortedAbilities(abilities map[string]*models.Ability) []*models.Ability {
	out := make([]*models.Ability, 0, len(abilities))
	for _, a := range abilities {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortedClans(clans map[string]*models.Clan) []*models.Clan {
	out := make([]*models.Clan, 0, len(clans))
	for _, c := range clans {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
