package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"clanrpg/events"
	"clanrpg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRoster struct {
	members []string
	err     error
}

func (f *fakeRoster) Members(_ context.Context, _ string) ([]string, error) {
	return f.members, f.err
}

type fakeModerator struct {
	promoted []string
	demoted  []string
	restored [][]string
	fail     bool
}

func (f *fakeModerator) Promote(_ context.Context, _, userID string) error {
	if f.fail {
		return errors.New("no permission")
	}
	f.promoted = append(f.promoted, userID)
	return nil
}

func (f *fakeModerator) Demote(_ context.Context, _, userID string) error {
	f.demoted = append(f.demoted, userID)
	return nil
}

func (f *fakeModerator) RestrictChat(_ context.Context, _ string) ([]string, error) {
	if f.fail {
		return nil, errors.New("no permission")
	}
	return []string{"announce_only"}, nil
}

func (f *fakeModerator) RestoreChat(_ context.Context, _ string, applied []string) error {
	f.restored = append(f.restored, applied)
	return nil
}

type timerFixture struct {
	engine *TimerEngine
	roster *fakeRoster
	mod    *fakeModerator
	store  *memStore
	setNow func(int64)
}

func newTimerFixture(t *testing.T) *timerFixture {
	reg, store := newTestRegistry(t)
	roster := &fakeRoster{}
	mod := &fakeModerator{}
	e := NewTimerEngine(reg, events.NewBus(), roster, mod, 100)
	e.rng = testRand()

	now := int64(1_000_000_000)
	e.now = func() int64 { return now }

	reg.Abilities["confiscate"] = &models.Ability{
		ID: "confiscate", Name: "Confiscation", Category: "naruto", Price: 5000,
		DurationSec: 60, CancelPhrase: "i refuse", StealFraction: 0.30,
	}
	reg.Abilities["purge"] = &models.Ability{
		ID: "purge", Name: "Great Purge", Category: "jjk", Price: 40000,
		DurationSec: 120, CancelPhrase: "stand firm", AffectsAllOthers: true,
		StealFraction: 1.0, Multiplier: 0.5,
		CancelTemplate: "{canceller} held the line against {attacker}",
	}
	reg.Abilities["doom"] = &models.Ability{
		ID: "doom", Name: "Certain Doom", Category: "jjk", Price: 90000,
		DurationSec: 30, Unavoidable: true, StealFraction: 0.75,
	}
	reg.Abilities["blood_veil"] = &models.Ability{
		ID: "blood_veil", Name: "Blood Veil", Price: 15000, OneShotDefense: true,
	}
	reg.Abilities["sixth_sense"] = &models.Ability{
		ID: "sixth_sense", Name: "Sixth Sense", Price: 25000,
		ReflexDefense: true, ReflexCooldownSec: 4 * 3600,
	}
	reg.Abilities["adapt"] = &models.Ability{
		ID: "adapt", Name: "Adaptation", Price: 30000, SelfBuff: true,
		BuffKey: "adapted", BuffDurationSec: 3600, ImmuneCategory: "jjk",
	}

	return &timerFixture{
		engine: e,
		roster: roster,
		mod:    mod,
		store:  store,
		setNow: func(v int64) { now = v },
	}
}

func (f *timerFixture) user(id string, balance int64) *models.User {
	return addUser(f.engine.reg, &models.User{ID: id, Name: id, Balance: balance})
}

func TestSchedulingExclusivity(t *testing.T) {
	ctx := context.Background()

	t.Run("one pending timer per chat", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 1000)
		f.user("b", 1000).GrantAbility("confiscate")
		f.user("c", 1000)
		a := f.engine.reg.User("a")
		a.GrantAbility("confiscate")

		res, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "c")
		require.NoError(t, err)
		assert.Equal(t, ActivationScheduled, res.Kind)
		firstExpiry := res.Timer.ExpiresAt

		_, err = f.engine.ActivateAbility(ctx, "b", "chat", "confiscate", "c")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
		assert.Equal(t, firstExpiry, f.engine.reg.Timers["chat"].ExpiresAt, "original expiry unchanged")
	})

	t.Run("unavoidable overwrites", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 1000).GrantAbility("confiscate")
		f.user("b", 1000).GrantAbility("doom")
		f.user("c", 1000)

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "c")
		require.NoError(t, err)
		_, err = f.engine.ActivateAbility(ctx, "b", "chat", "doom", "c")
		require.NoError(t, err)
		assert.Equal(t, "doom", f.engine.reg.Timers["chat"].EffectID)
	})

	t.Run("consumed on activation", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 1000)
		a.GrantAbility("confiscate")
		f.user("c", 1000)

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "c")
		require.NoError(t, err)
		assert.False(t, a.HasAbility("confiscate"))
	})

	t.Run("self target and unknown target rejected", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 1000)
		a.GrantAbility("confiscate")

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "a")
		assert.True(t, IsValidation(err))
		_, err = f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "ghost")
		assert.True(t, IsValidation(err))
		assert.True(t, a.HasAbility("confiscate"), "failed activation must not consume")
	})
}

func TestTryCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("single target: only the target counts", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 1000).GrantAbility("confiscate")
		f.user("b", 1000)
		f.user("c", 1000)

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "c")
		require.NoError(t, err)

		assert.False(t, f.engine.TryCancel(ctx, "chat", "b", "i refuse"), "bystander cannot cancel")
		assert.False(t, f.engine.TryCancel(ctx, "chat", "c", "something else"))
		assert.True(t, f.engine.TryCancel(ctx, "chat", "c", "  I REFUSE  "), "match is case-insensitive and trimmed")
		assert.Empty(t, f.engine.reg.Timers)
	})

	t.Run("area: anyone can cancel", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 1000).GrantAbility("purge")
		f.user("b", 1000)

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "purge", "")
		require.NoError(t, err)

		assert.True(t, f.engine.TryCancel(ctx, "chat", "b", "stand firm"))
		assert.Empty(t, f.engine.reg.Timers)
	})
}

func TestResolveSingleTarget(t *testing.T) {
	ctx := context.Background()

	t.Run("transfer scenario", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 1000)
		a.GrantAbility("confiscate")
		b := f.user("b", 500)

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "b")
		require.NoError(t, err)

		f.setNow(1_000_000_000 + 61_000)
		f.engine.Poll(ctx)

		assert.Equal(t, int64(350), b.Balance)
		assert.Equal(t, int64(1150), a.Balance)
		assert.Empty(t, f.engine.reg.Timers)
	})

	t.Run("resolution is idempotent", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 1000)
		a.GrantAbility("confiscate")
		b := f.user("b", 500)

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "b")
		require.NoError(t, err)

		f.setNow(1_000_000_000 + 61_000)
		f.engine.Poll(ctx)
		f.engine.Poll(ctx)

		assert.Equal(t, int64(350), b.Balance, "second poll must not reapply")
		assert.Equal(t, int64(1150), a.Balance)
	})

	t.Run("not yet expired", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 1000).GrantAbility("confiscate")
		b := f.user("b", 500)

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "b")
		require.NoError(t, err)

		f.setNow(1_000_000_000 + 30_000)
		f.engine.Poll(ctx)
		assert.Equal(t, int64(500), b.Balance)
		assert.Len(t, f.engine.reg.Timers, 1)
	})
}

func TestDefenseChain(t *testing.T) {
	ctx := context.Background()

	attack := func(t *testing.T, f *timerFixture, abilityID string) {
		t.Helper()
		f.engine.reg.User("a").GrantAbility(abilityID)
		_, err := f.engine.ActivateAbility(ctx, "a", "chat", abilityID, "b")
		require.NoError(t, err)
		f.setNow(f.engine.now() + 200_000)
		f.engine.Poll(ctx)
	}

	t.Run("one-shot defense wins over charge shield", func(t *testing.T) {
		f := newTimerFixture(t)
		f.engine.reg.Clans["guarded"] = &models.Clan{ID: "guarded", Buff: &models.ClanBuff{
			Type: models.BuffChargeShield, Charges: 1, RechargeSec: 7200,
		}}
		f.user("a", 1000)
		b := f.user("b", 500)
		b.ClanID = "guarded"
		b.ShieldCharges = 1
		b.GrantAbility("blood_veil")

		attack(t, f, "confiscate")

		assert.Equal(t, int64(500), b.Balance, "effect nullified")
		assert.False(t, b.HasAbility("blood_veil"), "one-shot defense consumed")
		assert.Equal(t, 1, b.ShieldCharges, "lower-priority defense untouched")
	})

	t.Run("charge shield decrements and arms recharge", func(t *testing.T) {
		f := newTimerFixture(t)
		f.engine.reg.Clans["guarded"] = &models.Clan{ID: "guarded", Buff: &models.ClanBuff{
			Type: models.BuffChargeShield, Charges: 1, RechargeSec: 7200,
		}}
		f.user("a", 1000)
		b := f.user("b", 500)
		b.ClanID = "guarded"
		b.ShieldCharges = 1

		attack(t, f, "confiscate")

		assert.Equal(t, int64(500), b.Balance)
		assert.Zero(t, b.ShieldCharges)
		assert.Positive(t, b.ShieldRechargeAt)
	})

	t.Run("clan evasion", func(t *testing.T) {
		f := newTimerFixture(t)
		f.engine.reg.Clans["ghost"] = &models.Clan{ID: "ghost", Buff: &models.ClanBuff{
			Type: models.BuffEvasion, Chance: 1.0,
		}}
		f.user("a", 1000)
		b := f.user("b", 500)
		b.ClanID = "ghost"

		attack(t, f, "confiscate")
		assert.Equal(t, int64(500), b.Balance)
	})

	t.Run("reflex counter arms its cooldown", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 1000)
		b := f.user("b", 1000)
		b.GrantAbility("sixth_sense")

		attack(t, f, "confiscate")
		assert.Equal(t, int64(1000), b.Balance, "first attack reflected")
		assert.True(t, b.OnCooldown("reflex_sixth_sense", f.engine.now()))

		// Second attack inside the reflex cooldown lands.
		attack(t, f, "confiscate")
		assert.Equal(t, int64(700), b.Balance)
		assert.Equal(t, int64(1300), a.Balance)
	})

	t.Run("unavoidable bypasses the chain", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 1000)
		b := f.user("b", 1000)
		b.GrantAbility("blood_veil")

		attack(t, f, "doom")
		assert.Equal(t, int64(250), b.Balance)
		assert.True(t, b.HasAbility("blood_veil"), "chain never ran")
	})

	t.Run("category immunity buff stops even unavoidable", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 1000)
		b := f.user("b", 1000)
		b.GrantBuff("adapted", f.engine.now()+time.Hour.Milliseconds())

		attack(t, f, "doom")
		assert.Equal(t, int64(1000), b.Balance)
	})

	t.Run("clan intrinsic effect immunity", func(t *testing.T) {
		f := newTimerFixture(t)
		f.engine.reg.Clans["limitless"] = &models.Clan{ID: "limitless", Name: "Limitless", Buff: &models.ClanBuff{
			Type: models.BuffEvasion, Chance: 0, ImmuneEffectID: "doom",
		}}
		f.user("a", 1000)
		b := f.user("b", 1000)
		b.ClanID = "limitless"

		attack(t, f, "doom")
		assert.Equal(t, int64(1000), b.Balance)
	})
}

func TestResolveArea(t *testing.T) {
	ctx := context.Background()

	t.Run("accumulates over undefended members", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 0)
		a.GrantAbility("purge")
		b := f.user("b", 400)
		c := f.user("c", 600)
		f.roster.members = []string{"a", "b", "c", "stranger"}

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "purge", "")
		require.NoError(t, err)

		f.setNow(1_000_000_000 + 121_000)
		f.engine.Poll(ctx)

		assert.Zero(t, b.Balance)
		assert.Zero(t, c.Balance)
		// Full confiscation of 1000 at multiplier 0.5.
		assert.Equal(t, int64(500), a.Balance)
	})

	t.Run("roster failure aborts the whole resolution", func(t *testing.T) {
		f := newTimerFixture(t)
		f.user("a", 0).GrantAbility("purge")
		b := f.user("b", 400)
		f.roster.err = errors.New("roster unavailable")

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "purge", "")
		require.NoError(t, err)

		f.setNow(1_000_000_000 + 121_000)
		f.engine.Poll(ctx)

		assert.Equal(t, int64(400), b.Balance, "no transfer without a roster")
		assert.Empty(t, f.engine.reg.Timers, "failed resolution still drops the timer")
	})

	t.Run("resets targets regenerates undefended profiles", func(t *testing.T) {
		f := newTimerFixture(t)
		f.engine.reg.Abilities["purge"].ResetsTargets = true
		f.engine.reg.Clans["plain"] = &models.Clan{ID: "plain"}
		f.user("a", 0).GrantAbility("purge")
		b := f.user("b", 400)
		b.Holdings = []models.Holding{{ItemID: "bakery", Name: "Bakery"}}
		b.GrantAbility("confiscate")
		f.engine.reg.Payouts.Arm("b", "bakery", 999)
		f.roster.members = []string{"a", "b"}

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "purge", "")
		require.NoError(t, err)

		f.setNow(1_000_000_000 + 121_000)
		f.engine.Poll(ctx)

		assert.Equal(t, int64(100), b.Balance, "fresh starting balance")
		assert.Empty(t, b.Holdings)
		assert.Empty(t, b.Abilities)
		assert.Empty(t, f.engine.reg.Payouts["b"], "payout schedules cleared")
		assert.Equal(t, "plain", b.ClanID)
		assert.Equal(t, "b", b.Name, "identity preserved")
	})
}

func TestEnvironmentEffect(t *testing.T) {
	ctx := context.Background()

	newEnvFixture := func(t *testing.T) *timerFixture {
		f := newTimerFixture(t)
		f.engine.reg.Abilities["timestop"] = &models.Ability{
			ID: "timestop", Name: "Time Stop", Price: 120000,
			DurationSec: 45, EnvironmentEffect: true, Reentrant: true,
		}
		return f
	}

	t.Run("applies and reverses exactly", func(t *testing.T) {
		f := newEnvFixture(t)
		f.user("a", 1000).GrantAbility("timestop")

		res, err := f.engine.ActivateAbility(ctx, "a", "chat", "timestop", "")
		require.NoError(t, err)
		assert.Equal(t, ActivationEnvironment, res.Kind)
		assert.Equal(t, []string{"a"}, f.mod.promoted)
		assert.False(t, res.Timer.SoftMode)

		f.setNow(1_000_000_000 + 46_000)
		f.engine.Poll(ctx)

		assert.Equal(t, []string{"a"}, f.mod.demoted)
		require.Len(t, f.mod.restored, 1)
		assert.Equal(t, []string{"announce_only"}, f.mod.restored[0])
		assert.Empty(t, f.engine.reg.Timers)
	})

	t.Run("soft mode skips reversal", func(t *testing.T) {
		f := newEnvFixture(t)
		f.mod.fail = true
		f.user("a", 1000).GrantAbility("timestop")

		res, err := f.engine.ActivateAbility(ctx, "a", "chat", "timestop", "")
		require.NoError(t, err)
		assert.True(t, res.Timer.SoftMode)

		f.mod.fail = false
		f.setNow(1_000_000_000 + 46_000)
		f.engine.Poll(ctx)

		assert.Empty(t, f.mod.demoted)
		assert.Empty(t, f.mod.restored)
		assert.Empty(t, f.engine.reg.Timers)
	})

	t.Run("re-entrant effect may overwrite itself", func(t *testing.T) {
		f := newEnvFixture(t)
		f.user("a", 1000).GrantAbility("timestop")
		f.user("b", 1000).GrantAbility("timestop")

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "timestop", "")
		require.NoError(t, err)
		_, err = f.engine.ActivateAbility(ctx, "b", "chat", "timestop", "")
		require.NoError(t, err)
		assert.Equal(t, "b", f.engine.reg.Timers["chat"].InitiatorID)
	})
}

func TestSelfBuffActivation(t *testing.T) {
	ctx := context.Background()
	f := newTimerFixture(t)
	a := f.user("a", 1000)
	a.GrantAbility("adapt")

	res, err := f.engine.ActivateAbility(ctx, "a", "chat", "adapt", "")
	require.NoError(t, err)
	assert.Equal(t, ActivationSelfBuff, res.Kind)
	assert.True(t, a.BuffActive("adapted", f.engine.now()))
	assert.False(t, a.HasAbility("adapt"), "consumed on activation")
}

func TestActivationRollbackOnSaveFailure(t *testing.T) {
	ctx := context.Background()

	t.Run("scheduled effect restores the consumed ability", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 1000)
		a.GrantAbility("confiscate")
		f.user("b", 1000)
		f.store.fail = true

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "confiscate", "b")
		require.Error(t, err)
		assert.True(t, a.HasAbility("confiscate"), "consumed ability restored")
		assert.Empty(t, f.engine.reg.Timers)
	})

	t.Run("self buff rolls back the buff and the ability", func(t *testing.T) {
		f := newTimerFixture(t)
		a := f.user("a", 1000)
		a.GrantAbility("adapt")
		f.store.fail = true

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "adapt", "")
		require.Error(t, err)
		assert.True(t, a.HasAbility("adapt"), "consumed ability restored")
		assert.False(t, a.BuffActive("adapted", f.engine.now()), "buff rolled back")
	})

	t.Run("environment effect clears the timer and restores the ability", func(t *testing.T) {
		f := newTimerFixture(t)
		f.engine.reg.Abilities["timestop"] = &models.Ability{
			ID: "timestop", Name: "Time Stop", Price: 120000,
			DurationSec: 45, EnvironmentEffect: true,
		}
		a := f.user("a", 1000)
		a.GrantAbility("timestop")
		f.store.fail = true

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "timestop", "")
		require.Error(t, err)
		assert.True(t, a.HasAbility("timestop"), "consumed ability restored")
		assert.Empty(t, f.engine.reg.Timers)
	})

	t.Run("clan skill clears the armed reuse cooldown", func(t *testing.T) {
		f := newTimerFixture(t)
		f.engine.reg.Abilities["smite"] = &models.Ability{
			ID: "smite", Name: "Smite", DurationSec: 30, CancelPhrase: "spare me",
			StealFraction: 0.25, IsClanSkill: true, ClanCooldownSec: 3600,
		}
		a := f.user("a", 1000)
		a.GrantAbility("smite")
		f.user("b", 1000)
		f.store.fail = true

		_, err := f.engine.ActivateAbility(ctx, "a", "chat", "smite", "b")
		require.Error(t, err)
		assert.Zero(t, a.CooldownUntil("use_smite"), "reuse cooldown cleared")
	})
}
