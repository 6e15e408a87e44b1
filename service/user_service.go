package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"clanrpg/events"
	"clanrpg/models"
	"clanrpg/registry"
)

const nickCooldown = 24 * time.Hour

// UserService owns registration, clan membership and profile maintenance.
type UserService struct {
	reg *registry.Registry
	bus *events.Bus
	rng *rand.Rand
	loc *time.Location

	startingBalance int64
	rerollCost      int64

	now func() int64
}

// NewUserService creates a new user service
func NewUserService(reg *registry.Registry, bus *events.Bus, loc *time.Location, startingBalance, rerollCost int64) *UserService {
	return &UserService{
		reg:             reg,
		bus:             bus,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		loc:             loc,
		startingBalance: startingBalance,
		rerollCost:      rerollCost,
		now:             NowMillis,
	}
}

// Register creates a user profile: one-shot, a second request for the same
// id is rejected. Rolls a clan by weight and applies its starting grants.
func (s *UserService) Register(ctx context.Context, userID, name, chatID string) (*models.User, *models.Clan, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	if s.reg.User(userID) != nil {
		return nil, nil, Validationf("you are already registered")
	}

	clan := WeightedClanPick(s.rng, s.reg.Clans, "", 1.0)
	if clan == nil {
		return nil, nil, fmt.Errorf("clan catalog is empty, cannot register")
	}

	now := s.now()
	user := &models.User{
		ID:             userID,
		Name:           name,
		Balance:        s.startingBalance,
		LastChatID:     chatID,
		Cooldowns:      make(map[string]int64),
		DailyCooldowns: make(map[string]string),
		Buffs:          make(map[string]int64),
	}
	applyClanGrants(user, clan, now)
	s.reg.Users[userID] = user

	if err := s.reg.SaveUsers(ctx); err != nil {
		delete(s.reg.Users, userID)
		return nil, nil, fmt.Errorf("failed to persist registration: %w", err)
	}

	s.bus.Emit(ctx, events.UserRegisteredEvent{UserID: userID, Name: name, ClanID: clan.ID})
	return user, clan, nil
}

// RerollClan charges the reroll cost and rolls a new clan, excluding the
// current one. The old clan's grants are stripped and the new clan's
// applied. The cost is refunded if no other clan can be rolled.
func (s *UserService) RerollClan(ctx context.Context, userID string) (*models.Clan, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return nil, Validationf("you are not registered")
	}
	if user.Balance < s.rerollCost {
		return nil, Validationf("rerolling your clan costs %d gold, you have %d", s.rerollCost, user.Balance)
	}

	user.Debit(s.rerollCost)
	clan := WeightedClanPick(s.rng, s.reg.Clans, user.ClanID, 1.0)
	if clan == nil {
		user.Credit(s.rerollCost)
		return nil, Validationf("no other clan is available right now")
	}

	prevClanID := user.ClanID
	prevBalance := user.Balance
	prevAbilities := append([]string(nil), user.Abilities...)
	prevShieldCharges := user.ShieldCharges
	prevShieldRechargeAt := user.ShieldRechargeAt

	now := s.now()
	stripClanGrants(user, s.reg.UserClan(user))
	applyClanGrants(user, clan, now)

	if err := s.reg.SaveUsers(ctx); err != nil {
		user.ClanID = prevClanID
		user.Balance = prevBalance + s.rerollCost
		user.Abilities = prevAbilities
		user.ShieldCharges = prevShieldCharges
		user.ShieldRechargeAt = prevShieldRechargeAt
		return nil, fmt.Errorf("failed to persist clan reroll: %w", err)
	}
	return clan, nil
}

// SetNick changes the display name, gated by a 24h cooldown.
func (s *UserService) SetNick(ctx context.Context, userID, name string) error {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return Validationf("you are not registered")
	}
	now := s.now()
	if user.OnCooldown("nick", now) {
		return Validationf("you can change your name again in %s", untilText(user.CooldownUntil("nick"), now))
	}

	user.Name = name
	user.ArmCooldown("nick", now+nickCooldown.Milliseconds())
	if err := s.reg.SaveUsers(ctx); err != nil {
		return fmt.Errorf("failed to persist name change: %w", err)
	}
	return nil
}

// SetNotifyChat designates the chat that receives the user's payout
// notifications.
func (s *UserService) SetNotifyChat(ctx context.Context, userID, chatID string) error {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return Validationf("you are not registered")
	}
	user.NotifyChatID = chatID
	if err := s.reg.SaveUsers(ctx); err != nil {
		return fmt.Errorf("failed to persist notification chat: %w", err)
	}
	return nil
}

// TogglePayoutNotifications flips the payout mute flag, returning the new
// state.
func (s *UserService) TogglePayoutNotifications(ctx context.Context, userID string) (bool, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	if s.reg.User(userID) == nil {
		return false, Validationf("you are not registered")
	}
	muted := !s.reg.Settings.PayoutsMuted(userID)
	s.reg.Settings.SetPayoutsMuted(userID, muted)
	if err := s.reg.SaveSettings(ctx); err != nil {
		return false, fmt.Errorf("failed to persist notification toggle: %w", err)
	}
	return muted, nil
}

// TouchLastChat records the chat a user last spoke in. Saved only when it
// actually changed, so ordinary chatter does not write the users document.
func (s *UserService) TouchLastChat(ctx context.Context, userID, chatID string) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil || user.LastChatID == chatID {
		return
	}
	user.LastChatID = chatID
	// Best effort: losing a last-chat update is harmless.
	_ = s.reg.SaveUsers(ctx)
}

// AdjustBalance adds (or with a negative delta removes) gold. Owner-only at
// the command layer.
func (s *UserService) AdjustBalance(ctx context.Context, userID string, delta int64) (int64, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return 0, Validationf("target is not registered")
	}
	user.Credit(delta)
	if err := s.reg.SaveUsers(ctx); err != nil {
		return 0, fmt.Errorf("failed to persist balance adjustment: %w", err)
	}
	return user.Balance, nil
}

// ResetProfile regenerates a user's gameplay state in place, preserving
// identity and notification routing. Used by the destructive area effect
// and by admins.
func (s *UserService) ResetProfile(ctx context.Context, userID string) error {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return Validationf("target is not registered")
	}
	resetProfileLocked(s.reg, s.rng, user, s.startingBalance, s.now())

	if err := s.reg.SaveMany(ctx, registry.DocUsers, registry.DocPayouts); err != nil {
		return fmt.Errorf("failed to persist profile reset: %w", err)
	}
	return nil
}

// resetProfileLocked overwrites gameplay fields with a fresh profile: new
// starting balance, freshly rolled clan, cleared holdings, abilities,
// cooldowns and payout schedules. Name and notification routing survive.
// Caller must hold the registry lock.
func resetProfileLocked(reg *registry.Registry, rng *rand.Rand, user *models.User, startingBalance, now int64) {
	for _, h := range user.Holdings {
		reg.Payouts.Remove(user.ID, h.ItemID)
	}

	user.Balance = startingBalance
	user.Bank = 0
	user.Holdings = nil
	user.Abilities = nil
	user.Cooldowns = make(map[string]int64)
	user.DailyCooldowns = make(map[string]string)
	user.Buffs = make(map[string]int64)
	user.ShieldCharges = 0
	user.ShieldRechargeAt = 0

	if clan := WeightedClanPick(rng, reg.Clans, "", 1.0); clan != nil {
		applyClanGrants(user, clan, now)
	} else {
		user.ClanID = ""
	}
}

// applyClanGrants sets the clan and applies its one-time membership grants.
func applyClanGrants(user *models.User, clan *models.Clan, now int64) {
	user.ClanID = clan.ID
	if clan.Buff == nil {
		return
	}
	switch clan.Buff.Type {
	case models.BuffGoldStart:
		user.Credit(clan.Buff.Amount)
	case models.BuffSkillStart:
		user.GrantAbility(clan.Buff.SkillID)
	case models.BuffChargeShield:
		user.ShieldCharges = clan.Buff.Charges
		user.ShieldRechargeAt = 0
	}
}

// stripClanGrants removes what the old clan's membership granted.
func stripClanGrants(user *models.User, clan *models.Clan) {
	if clan == nil || clan.Buff == nil {
		return
	}
	switch clan.Buff.Type {
	case models.BuffSkillStart:
		user.RemoveAbility(clan.Buff.SkillID)
	case models.BuffChargeShield:
		user.ShieldCharges = 0
		user.ShieldRechargeAt = 0
	}
}

// untilText renders the remaining wait as a compact duration.
func untilText(untilMillis, nowMillis int64) string {
	d := time.Duration(untilMillis-nowMillis) * time.Millisecond
	if d < 0 {
		d = 0
	}
	return d.Round(time.Second).String()
}
