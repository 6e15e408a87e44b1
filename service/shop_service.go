package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"clanrpg/models"
	"clanrpg/registry"
)

const (
	// Abilities above this final price carry a shared purchase cooldown.
	expensiveAbilityThreshold = 49000
	expensiveAbilityCooldown  = 24 * time.Hour
	expensiveCooldownKey      = "buy_expensive"
)

// ShopService owns purchases and ability trading.
type ShopService struct {
	reg *registry.Registry
	rng *rand.Rand
	loc *time.Location

	now func() int64
}

// NewShopService creates a new shop service
func NewShopService(reg *registry.Registry, loc *time.Location) *ShopService {
	return &ShopService{
		reg: reg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		loc: loc,
		now: NowMillis,
	}
}

// BuyItem purchases a passive-income asset. The first payout is armed at
// cooldown-from-now.
func (s *ShopService) BuyItem(ctx context.Context, userID, itemID string) (*models.ShopItem, int64, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return nil, 0, Validationf("you are not registered")
	}
	item, categoryID := s.reg.Shop.FindItem(itemID)
	if item == nil {
		return nil, 0, Validationf("that item is not for sale")
	}
	if user.HasHolding(itemID) {
		return nil, 0, Validationf("you already own %s", item.Name)
	}

	price := EffectiveItemPrice(item, categoryID, s.reg.UserClan(user))
	if user.Balance < price {
		return nil, 0, Validationf("%s costs %d gold, you have %d", item.Name, price, user.Balance)
	}

	now := s.now()
	user.Debit(price)
	user.Holdings = append(user.Holdings, models.Holding{ItemID: item.ID, Name: item.Name})
	s.reg.Payouts.Arm(userID, item.ID, now+int64(item.CooldownMin)*time.Minute.Milliseconds())

	if err := s.reg.SaveMany(ctx, registry.DocUsers, registry.DocPayouts); err != nil {
		return nil, 0, fmt.Errorf("failed to persist item purchase: %w", err)
	}
	return item, price, nil
}

// BuyAbility purchases an ability at its effective price. Expensive
// abilities reserve a 24h purchase cooldown before the funds check and roll
// it back when the purchase fails.
func (s *ShopService) BuyAbility(ctx context.Context, userID, abilityID string) (*models.Ability, int64, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return nil, 0, Validationf("you are not registered")
	}
	ability := s.reg.Ability(abilityID)
	if ability == nil {
		return nil, 0, Validationf("unknown ability")
	}
	if !ability.Purchasable() {
		return nil, 0, Validationf("%s cannot be bought", ability.Name)
	}
	if user.HasAbility(abilityID) {
		return nil, 0, Validationf("you already know %s", ability.Name)
	}

	now := s.now()
	if EnsureDailyDiscount(s.rng, s.reg.Settings, s.reg.Abilities, now, s.loc) {
		if err := s.reg.SaveSettings(ctx); err != nil {
			return nil, 0, fmt.Errorf("failed to persist daily discount: %w", err)
		}
	}

	price := EffectiveAbilityPrice(ability, s.reg.UserClan(user), &s.reg.Settings.DailyDiscount, now)

	expensive := price > expensiveAbilityThreshold
	if expensive {
		if user.OnCooldown(expensiveCooldownKey, now) {
			return nil, 0, Validationf("the black market serves you again in %s", untilText(user.CooldownUntil(expensiveCooldownKey), now))
		}
		// Reserve before the funds check, roll back on failure.
		user.ArmCooldown(expensiveCooldownKey, now+expensiveAbilityCooldown.Milliseconds())
	}

	if user.Balance < price {
		if expensive {
			user.ClearCooldown(expensiveCooldownKey)
		}
		return nil, 0, Validationf("%s costs %d gold, you have %d", ability.Name, price, user.Balance)
	}

	user.Debit(price)
	user.GrantAbility(abilityID)

	if err := s.reg.SaveUsers(ctx); err != nil {
		return nil, 0, fmt.Errorf("failed to persist ability purchase: %w", err)
	}
	return ability, price, nil
}

// TradeAbility moves an ability from one user to another. Clan grants and
// unpriced abilities are untradeable.
func (s *ShopService) TradeAbility(ctx context.Context, fromID, toID, abilityID string) (*models.Ability, error) {
	if fromID == toID {
		return nil, Validationf("you cannot trade with yourself")
	}

	s.reg.Lock()
	defer s.reg.Unlock()

	from := s.reg.User(fromID)
	if from == nil {
		return nil, Validationf("you are not registered")
	}
	to := s.reg.User(toID)
	if to == nil {
		return nil, Validationf("target is not registered")
	}
	ability := s.reg.Ability(abilityID)
	if ability == nil {
		return nil, Validationf("unknown ability")
	}
	if !ability.Purchasable() || ability.IsClanSkill {
		return nil, Validationf("%s cannot be traded", ability.Name)
	}
	if !from.HasAbility(abilityID) {
		return nil, Validationf("you do not know %s", ability.Name)
	}
	if to.HasAbility(abilityID) {
		return nil, Validationf("%s already knows %s", to.Name, ability.Name)
	}

	from.RemoveAbility(abilityID)
	to.GrantAbility(abilityID)

	if err := s.reg.SaveUsers(ctx); err != nil {
		return nil, fmt.Errorf("failed to persist ability trade: %w", err)
	}
	return ability, nil
}
