package service

import (
	"context"
	"testing"
	"time"

	"clanrpg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShop(t *testing.T) (*ShopService, func(int64)) {
	reg, _ := newTestRegistry(t)
	s := NewShopService(reg, time.UTC)
	s.rng = testRand()

	now := int64(1_000_000_000)
	s.now = func() int64 { return now }

	reg.Shop.Categories["business"] = &models.ShopCategory{
		ID:   "business",
		Name: "Business",
		Items: map[string]models.ShopItem{
			"bakery": {ID: "bakery", Name: "Bakery", Price: 2000, Income: 150, CooldownMin: 15},
		},
	}
	reg.Abilities["rasengan"] = &models.Ability{ID: "rasengan", Name: "Rasengan", Category: "naruto", Price: 10000}
	reg.Abilities["vazio_roxo"] = &models.Ability{ID: "vazio_roxo", Name: "Hollow Purple", Category: "jjk", Price: 80000}
	reg.Abilities["clan_gift"] = &models.Ability{ID: "clan_gift", Name: "Clan Gift", Price: 0, IsClanSkill: true}

	return s, func(v int64) { now = v }
}

func TestBuyItem(t *testing.T) {
	ctx := context.Background()

	t.Run("purchase arms first payout", func(t *testing.T) {
		s, _ := newTestShop(t)
		u := addUser(s.reg, &models.User{ID: "u1", Balance: 5000})

		item, price, err := s.BuyItem(ctx, "u1", "bakery")
		require.NoError(t, err)
		assert.Equal(t, "Bakery", item.Name)
		assert.Equal(t, int64(2000), price)
		assert.Equal(t, int64(3000), u.Balance)
		assert.True(t, u.HasHolding("bakery"))
		assert.Equal(t, int64(1_000_000_000)+15*time.Minute.Milliseconds(), s.reg.Payouts["u1"]["bakery"])
	})

	t.Run("duplicate holding rejected", func(t *testing.T) {
		s, _ := newTestShop(t)
		addUser(s.reg, &models.User{ID: "u1", Balance: 10_000})

		_, _, err := s.BuyItem(ctx, "u1", "bakery")
		require.NoError(t, err)
		_, _, err = s.BuyItem(ctx, "u1", "bakery")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("clan category discount", func(t *testing.T) {
		s, _ := newTestShop(t)
		s.reg.Clans["merchant"] = &models.Clan{ID: "merchant", Buff: &models.ClanBuff{
			Type:     models.BuffCategoryDiscount,
			Category: "business",
		}}
		u := addUser(s.reg, &models.User{ID: "u1", ClanID: "merchant", Balance: 1000})

		_, price, err := s.BuyItem(ctx, "u1", "bakery")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), price)
		assert.Zero(t, u.Balance)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		s, _ := newTestShop(t)
		addUser(s.reg, &models.User{ID: "u1", Balance: 100})

		_, _, err := s.BuyItem(ctx, "u1", "bakery")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestBuyAbility(t *testing.T) {
	ctx := context.Background()

	t.Run("purchase", func(t *testing.T) {
		s, _ := newTestShop(t)
		u := addUser(s.reg, &models.User{ID: "u1", Balance: 20_000})

		ability, price, err := s.BuyAbility(ctx, "u1", "rasengan")
		require.NoError(t, err)
		assert.Equal(t, "Rasengan", ability.Name)
		assert.LessOrEqual(t, price, int64(10_000))
		assert.True(t, u.HasAbility("rasengan"))
	})

	t.Run("unbuyable and duplicate rejected", func(t *testing.T) {
		s, _ := newTestShop(t)
		u := addUser(s.reg, &models.User{ID: "u1", Balance: 100_000})

		_, _, err := s.BuyAbility(ctx, "u1", "clan_gift")
		require.Error(t, err)
		assert.True(t, IsValidation(err))

		u.GrantAbility("rasengan")
		_, _, err = s.BuyAbility(ctx, "u1", "rasengan")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("expensive purchase arms shared cooldown", func(t *testing.T) {
		s, setNow := newTestShop(t)
		u := addUser(s.reg, &models.User{ID: "u1", Balance: 200_000})
		// Pin the daily roll so no discount lands on the expensive ability.
		s.reg.Settings.DailyDiscount = models.DailyDiscountState{
			LastRollDate: CivilDate(s.now(), time.UTC),
			AbilityID:    "rasengan",
			ExpiresAt:    s.now() + 48*time.Hour.Milliseconds(),
		}

		_, _, err := s.BuyAbility(ctx, "u1", "vazio_roxo")
		require.NoError(t, err)
		assert.True(t, u.OnCooldown(expensiveCooldownKey, s.now()))

		// A second expensive purchase inside the window is rejected.
		s.reg.Abilities["mugen2"] = &models.Ability{ID: "mugen2", Name: "Mugen II", Price: 60_000}
		_, _, err = s.BuyAbility(ctx, "u1", "mugen2")
		require.Error(t, err)
		assert.True(t, IsValidation(err))

		setNow(1_000_000_000 + 24*time.Hour.Milliseconds())
		_, _, err = s.BuyAbility(ctx, "u1", "mugen2")
		assert.NoError(t, err)
	})

	t.Run("failed expensive purchase rolls the cooldown back", func(t *testing.T) {
		s, _ := newTestShop(t)
		u := addUser(s.reg, &models.User{ID: "u1", Balance: 100})

		_, _, err := s.BuyAbility(ctx, "u1", "vazio_roxo")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.False(t, u.OnCooldown(expensiveCooldownKey, s.now()), "reserved cooldown must be rolled back")
	})

	t.Run("daily discount halves the price", func(t *testing.T) {
		s, _ := newTestShop(t)
		u := addUser(s.reg, &models.User{ID: "u1", Balance: 20_000})

		s.reg.Settings.DailyDiscount = models.DailyDiscountState{
			LastRollDate: CivilDate(s.now(), time.UTC),
			AbilityID:    "rasengan",
			ExpiresAt:    s.now() + time.Hour.Milliseconds(),
		}

		_, price, err := s.BuyAbility(ctx, "u1", "rasengan")
		require.NoError(t, err)
		assert.Equal(t, int64(5000), price)
		assert.Equal(t, int64(15_000), u.Balance)
	})
}

func TestTradeAbility(t *testing.T) {
	ctx := context.Background()

	t.Run("moves the ability", func(t *testing.T) {
		s, _ := newTestShop(t)
		from := addUser(s.reg, &models.User{ID: "u1", Abilities: []string{"rasengan"}})
		to := addUser(s.reg, &models.User{ID: "u2", Name: "bob"})

		_, err := s.TradeAbility(ctx, "u1", "u2", "rasengan")
		require.NoError(t, err)
		assert.False(t, from.HasAbility("rasengan"))
		assert.True(t, to.HasAbility("rasengan"))
	})

	t.Run("clan skills untradeable", func(t *testing.T) {
		s, _ := newTestShop(t)
		addUser(s.reg, &models.User{ID: "u1", Abilities: []string{"clan_gift"}})
		addUser(s.reg, &models.User{ID: "u2"})

		_, err := s.TradeAbility(ctx, "u1", "u2", "clan_gift")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("recipient duplicate rejected", func(t *testing.T) {
		s, _ := newTestShop(t)
		addUser(s.reg, &models.User{ID: "u1", Abilities: []string{"rasengan"}})
		addUser(s.reg, &models.User{ID: "u2", Name: "bob", Abilities: []string{"rasengan"}})

		_, err := s.TradeAbility(ctx, "u1", "u2", "rasengan")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}
