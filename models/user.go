package models

// Holding represents one passive-income asset owned by a user.
type Holding struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
}

// User represents a registered chat participant with an economy profile
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	ClanID string `json:"clan_id"`

	// Balance is the liquid wallet; Bank is the deposited portion.
	// Both are non-negative after every mutation.
	Balance int64 `json:"balance"`
	Bank    int64 `json:"bank"`

	Holdings  []Holding `json:"holdings,omitempty"`
	Abilities []string  `json:"abilities,omitempty"`

	// Cooldowns maps an action key to the epoch-ms timestamp after which
	// the action is permitted again. DailyCooldowns maps an action key to
	// the civil date (YYYY-MM-DD in the reference timezone) on which it
	// was last performed.
	Cooldowns      map[string]int64  `json:"cooldowns,omitempty"`
	DailyCooldowns map[string]string `json:"daily_cooldowns,omitempty"`

	// Buffs maps a buff key to its epoch-ms expiry.
	Buffs map[string]int64 `json:"buffs,omitempty"`

	// Charge-shield state for clans with a charge_shield buff.
	ShieldCharges    int   `json:"shield_charges,omitempty"`
	ShieldRechargeAt int64 `json:"shield_recharge_at,omitempty"`

	// Notification routing: NotifyChatID is the user's chosen chat for
	// payout notifications, LastChatID the most recent chat they spoke in.
	LastChatID   string `json:"last_chat_id,omitempty"`
	NotifyChatID string `json:"notify_chat_id,omitempty"`
}

// Credit adds amount to the wallet balance, clamping at zero.
func (u *User) Credit(amount int64) {
	u.Balance += amount
	if u.Balance < 0 {
		u.Balance = 0
	}
}

// Debit subtracts amount from the wallet balance, clamping at zero.
func (u *User) Debit(amount int64) {
	u.Balance -= amount
	if u.Balance < 0 {
		u.Balance = 0
	}
}

// HasAbility reports whether the user owns the given ability.
func (u *User) HasAbility(abilityID string) bool {
	for _, id := range u.Abilities {
		if id == abilityID {
			return true
		}
	}
	return false
}

// GrantAbility adds an ability, keeping the owned list deduplicated.
func (u *User) GrantAbility(abilityID string) {
	if u.HasAbility(abilityID) {
		return
	}
	u.Abilities = append(u.Abilities, abilityID)
}

// RemoveAbility removes one ability by id and reports whether it was owned.
func (u *User) RemoveAbility(abilityID string) bool {
	for i, id := range u.Abilities {
		if id == abilityID {
			u.Abilities = append(u.Abilities[:i], u.Abilities[i+1:]...)
			return true
		}
	}
	return false
}

// HasHolding reports whether the user owns the given shop item.
func (u *User) HasHolding(itemID string) bool {
	for _, h := range u.Holdings {
		if h.ItemID == itemID {
			return true
		}
	}
	return false
}

// RemoveHolding removes a holding by item id.
func (u *User) RemoveHolding(itemID string) {
	for i, h := range u.Holdings {
		if h.ItemID == itemID {
			u.Holdings = append(u.Holdings[:i], u.Holdings[i+1:]...)
			return
		}
	}
}

// CooldownUntil returns the epoch-ms timestamp until which the action is
// blocked, or zero if no cooldown is recorded.
func (u *User) CooldownUntil(key string) int64 {
	if u.Cooldowns == nil {
		return 0
	}
	return u.Cooldowns[key]
}

// OnCooldown reports whether the action is still blocked at the given time.
func (u *User) OnCooldown(key string, nowMillis int64) bool {
	return nowMillis < u.CooldownUntil(key)
}

// ArmCooldown records that the action is blocked until the given time.
func (u *User) ArmCooldown(key string, untilMillis int64) {
	if u.Cooldowns == nil {
		u.Cooldowns = make(map[string]int64)
	}
	u.Cooldowns[key] = untilMillis
}

// ClearCooldown removes a cooldown entry, used by the reserve-then-rollback
// purchase pattern.
func (u *User) ClearCooldown(key string) {
	delete(u.Cooldowns, key)
}

// UsedToday reports whether a once-per-day action was already performed on
// the given civil date.
func (u *User) UsedToday(key, civilDate string) bool {
	if u.DailyCooldowns == nil {
		return false
	}
	return u.DailyCooldowns[key] == civilDate
}

// MarkUsedToday records a once-per-day action for the given civil date.
func (u *User) MarkUsedToday(key, civilDate string) {
	if u.DailyCooldowns == nil {
		u.DailyCooldowns = make(map[string]string)
	}
	u.DailyCooldowns[key] = civilDate
}

// BuffActive reports whether the named buff has not yet expired.
func (u *User) BuffActive(key string, nowMillis int64) bool {
	if u.Buffs == nil {
		return false
	}
	return u.Buffs[key] > nowMillis
}

// GrantBuff records a buff expiring at the given time.
func (u *User) GrantBuff(key string, expiresAtMillis int64) {
	if u.Buffs == nil {
		u.Buffs = make(map[string]int64)
	}
	u.Buffs[key] = expiresAtMillis
}
