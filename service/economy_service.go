package service

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"clanrpg/models"
	"clanrpg/registry"
)

// AmountAll is the sentinel for "all" in amount arguments.
const AmountAll int64 = -1

const (
	depositCooldown  = time.Hour
	transferCooldown = 30 * time.Minute

	dailyRewardMin = 1000
	dailyRewardMax = 5000
)

// ActivityDef describes one timed activity: its cooldown, reward band and
// the clan mastery that changes its odds.
type ActivityDef struct {
	Key      string
	Cooldown time.Duration
	Min, Max int64

	// SuccessChance of zero means the activity always succeeds.
	SuccessChance float64
	// Fine band charged on a failed crime attempt.
	FineMin, FineMax int64
	// Mastery makes the activity always succeed and scales its gain.
	Mastery models.BuffType
}

var activities = []ActivityDef{
	{Key: "work", Cooldown: 7 * time.Minute, Min: 180, Max: 360},
	{Key: "mine", Cooldown: 5 * time.Minute, Min: 110, Max: 220},
	{Key: "fish", Cooldown: 6 * time.Minute, Min: 140, Max: 280},
	{Key: "explore", Cooldown: 8 * time.Minute, Min: 220, Max: 440},
	{Key: "hunt", Cooldown: 9 * time.Minute, Min: 260, Max: 520},
	{Key: "crime", Cooldown: 10 * time.Minute, Min: 70, Max: 210,
		SuccessChance: 0.40, FineMin: 35, FineMax: 105, Mastery: models.BuffCrimeMastery},
	{Key: "forge", Cooldown: 6 * time.Minute, Min: 140, Max: 280,
		SuccessChance: 0.50, Mastery: models.BuffForgeMastery},
	{Key: "bake", Cooldown: 6 * time.Minute, Min: 130, Max: 260,
		SuccessChance: 0.50},
}

// ActivityResult is the outcome of one timed-activity attempt.
type ActivityResult struct {
	Activity   string
	Success    bool
	Amount     int64 // gained on success, fined on failure
	NewBalance int64
}

// EconomyService owns balances, the bank, transfers, the daily reward and
// the timed activities.
type EconomyService struct {
	reg *registry.Registry
	rng *rand.Rand
	loc *time.Location

	now func() int64
}

// NewEconomyService creates a new economy service
func NewEconomyService(reg *registry.Registry, loc *time.Location) *EconomyService {
	return &EconomyService{
		reg: reg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		loc: loc,
		now: NowMillis,
	}
}

// Activities returns the timed-activity definitions in menu order.
func (s *EconomyService) Activities() []ActivityDef {
	return activities
}

// Deposit moves wallet gold into the bank, gated by a 1h cooldown.
// AmountAll deposits the whole wallet.
func (s *EconomyService) Deposit(ctx context.Context, userID string, amount int64) (int64, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return 0, Validationf("you are not registered")
	}
	now := s.now()
	if user.OnCooldown("deposit", now) {
		return 0, Validationf("the bank opens for you again in %s", untilText(user.CooldownUntil("deposit"), now))
	}
	if amount == AmountAll {
		amount = user.Balance
	}
	if amount <= 0 {
		return 0, Validationf("nothing to deposit")
	}
	if amount > user.Balance {
		return 0, Validationf("you only carry %d gold", user.Balance)
	}

	user.Debit(amount)
	user.Bank += amount
	user.ArmCooldown("deposit", now+depositCooldown.Milliseconds())

	if err := s.reg.SaveUsers(ctx); err != nil {
		return 0, fmt.Errorf("failed to persist deposit: %w", err)
	}
	return user.Bank, nil
}

// Withdraw moves banked gold back to the wallet. AmountAll empties the bank.
func (s *EconomyService) Withdraw(ctx context.Context, userID string, amount int64) (int64, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return 0, Validationf("you are not registered")
	}
	if amount == AmountAll {
		amount = user.Bank
	}
	if amount <= 0 {
		return 0, Validationf("nothing to withdraw")
	}
	if amount > user.Bank {
		return 0, Validationf("your bank holds only %d gold", user.Bank)
	}

	user.Bank -= amount
	user.Credit(amount)

	if err := s.reg.SaveUsers(ctx); err != nil {
		return 0, fmt.Errorf("failed to persist withdrawal: %w", err)
	}
	return user.Balance, nil
}

// Transfer sends wallet gold to another registered user, gated by a 30m
// cooldown on the sender.
func (s *EconomyService) Transfer(ctx context.Context, fromID, toID string, amount int64) error {
	if fromID == toID {
		return Validationf("you cannot send gold to yourself")
	}

	s.reg.Lock()
	defer s.reg.Unlock()

	from := s.reg.User(fromID)
	if from == nil {
		return Validationf("you are not registered")
	}
	to := s.reg.User(toID)
	if to == nil {
		return Validationf("target is not registered")
	}
	now := s.now()
	if from.OnCooldown("transfer", now) {
		return Validationf("you can transfer again in %s", untilText(from.CooldownUntil("transfer"), now))
	}
	if amount == AmountAll {
		amount = from.Balance
	}
	if amount <= 0 {
		return Validationf("nothing to transfer")
	}
	if amount > from.Balance {
		return Validationf("you only carry %d gold", from.Balance)
	}

	from.Debit(amount)
	to.Credit(amount)
	from.ArmCooldown("transfer", now+transferCooldown.Milliseconds())

	if err := s.reg.SaveUsers(ctx); err != nil {
		return fmt.Errorf("failed to persist transfer: %w", err)
	}
	return nil
}

// Daily credits the once-per-civil-day reward.
func (s *EconomyService) Daily(ctx context.Context, userID string) (int64, error) {
	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return 0, Validationf("you are not registered")
	}
	now := s.now()
	today := CivilDate(now, s.loc)
	if user.UsedToday("daily", today) {
		return 0, Validationf("you already claimed today's reward")
	}

	reward := dailyRewardMin + s.rng.Int63n(dailyRewardMax-dailyRewardMin+1)
	user.Credit(reward)
	user.MarkUsedToday("daily", today)

	if err := s.reg.SaveUsers(ctx); err != nil {
		return 0, fmt.Errorf("failed to persist daily reward: %w", err)
	}
	return reward, nil
}

// DoActivity runs one timed activity: cooldown gate, outcome roll, clan
// bonus, credit, persist.
func (s *EconomyService) DoActivity(ctx context.Context, userID, key string) (*ActivityResult, error) {
	var def *ActivityDef
	for i := range activities {
		if activities[i].Key == key {
			def = &activities[i]
			break
		}
	}
	if def == nil {
		return nil, Validationf("unknown activity %q", key)
	}

	s.reg.Lock()
	defer s.reg.Unlock()

	user := s.reg.User(userID)
	if user == nil {
		return nil, Validationf("you are not registered")
	}
	now := s.now()
	if user.OnCooldown(def.Key, now) {
		return nil, Validationf("you can %s again in %s", def.Key, untilText(user.CooldownUntil(def.Key), now))
	}
	user.ArmCooldown(def.Key, now+def.Cooldown.Milliseconds())

	clan := s.reg.UserClan(user)
	mastered := def.Mastery != "" && clan != nil && clan.HasBuff(def.Mastery)

	result := &ActivityResult{Activity: def.Key, Success: true}
	if def.SuccessChance > 0 && !mastered && s.rng.Float64() >= def.SuccessChance {
		result.Success = false
		if def.FineMax > 0 {
			result.Amount = def.FineMin + s.rng.Int63n(def.FineMax-def.FineMin+1)
			user.Debit(result.Amount)
		}
	} else {
		gain := def.Min + s.rng.Int63n(def.Max-def.Min+1)
		scaled := float64(gain) * BuffMultiplier(clan, models.BuffActivityBonus)
		if mastered {
			scaled = float64(gain) * BuffMultiplier(clan, def.Mastery)
		}
		result.Amount = int64(scaled)
		user.Credit(result.Amount)
	}
	result.NewBalance = user.Balance

	if err := s.reg.SaveUsers(ctx); err != nil {
		return nil, fmt.Errorf("failed to persist activity: %w", err)
	}
	return result, nil
}
