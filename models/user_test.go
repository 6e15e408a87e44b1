package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserCreditDebit(t *testing.T) {
	u := &User{ID: "u1", Balance: 100}

	u.Credit(50)
	assert.Equal(t, int64(150), u.Balance)

	u.Debit(200)
	assert.Equal(t, int64(0), u.Balance, "debit clamps at zero")
}

func TestUserAbilities(t *testing.T) {
	u := &User{ID: "u1"}

	assert.False(t, u.HasAbility("mugen"))

	u.GrantAbility("mugen")
	u.GrantAbility("mugen")
	assert.Equal(t, []string{"mugen"}, u.Abilities, "grant is idempotent")
	assert.True(t, u.HasAbility("mugen"))

	u.RemoveAbility("mugen")
	assert.False(t, u.HasAbility("mugen"))
}

func TestUserCooldowns(t *testing.T) {
	u := &User{ID: "u1"}
	now := int64(1_000_000)

	assert.False(t, u.OnCooldown("work", now))

	u.ArmCooldown("work", now+60_000)
	assert.True(t, u.OnCooldown("work", now))
	assert.Equal(t, now+60_000, u.CooldownUntil("work"))
	assert.False(t, u.OnCooldown("work", now+60_000))

	u.ClearCooldown("work")
	assert.False(t, u.OnCooldown("work", now))
}

func TestUserDailyCooldowns(t *testing.T) {
	u := &User{ID: "u1"}

	assert.False(t, u.UsedToday("daily", "2026-08-30"))
	u.MarkUsedToday("daily", "2026-08-30")
	assert.True(t, u.UsedToday("daily", "2026-08-30"))
	assert.False(t, u.UsedToday("daily", "2026-08-31"))
}

func TestUserBuffs(t *testing.T) {
	u := &User{ID: "u1"}
	now := int64(1_000_000)

	assert.False(t, u.BuffActive("mahoraga_adapt", now))
	u.GrantBuff("mahoraga_adapt", now+10_000)
	assert.True(t, u.BuffActive("mahoraga_adapt", now))
	assert.False(t, u.BuffActive("mahoraga_adapt", now+10_000))
}

func TestClanEffectiveWeight(t *testing.T) {
	zero := 0
	five := 5

	assert.Equal(t, 1, (&Clan{ID: "uchiha"}).EffectiveWeight(), "unset weight defaults to 1")
	assert.Equal(t, 0, (&Clan{ID: "gojo", Weight: &zero}).EffectiveWeight())
	assert.Equal(t, 5, (&Clan{ID: "hyuga", Weight: &five}).EffectiveWeight())
}

func TestPayoutSchedule(t *testing.T) {
	p := make(PayoutSchedule)
	now := int64(1_000_000)

	p.Arm("u1", "bakery", now-1)
	p.Arm("u1", "mine", now+60_000)

	due := p.Due("u1", now)
	assert.Equal(t, []string{"bakery"}, due)

	p.Remove("u1", "bakery")
	p.Remove("u1", "mine")
	assert.Empty(t, p["u1"])
	_, ok := p["u1"]
	assert.False(t, ok, "empty user entry is pruned")
}

func TestSettingsToggles(t *testing.T) {
	s := &Settings{}

	assert.False(t, s.PayoutsMuted("u1"))
	s.SetPayoutsMuted("u1", true)
	assert.True(t, s.PayoutsMuted("u1"))
	s.SetPayoutsMuted("u1", false)
	assert.False(t, s.PayoutsMuted("u1"))
}
