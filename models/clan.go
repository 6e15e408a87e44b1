package models

// BuffType tags the variant of a clan's buff descriptor.
type BuffType string

const (
	// BuffGoldStart grants extra starting gold at registration.
	BuffGoldStart BuffType = "gold_start"
	// BuffSkillStart grants a starting ability at registration.
	BuffSkillStart BuffType = "skill_start"
	// BuffActivityBonus multiplies timed-activity gains.
	BuffActivityBonus BuffType = "activity_bonus"
	// BuffPassiveIncome multiplies passive-income payouts.
	BuffPassiveIncome BuffType = "passive_income_boost"
	// BuffCooldownReduction scales passive-income payout intervals.
	BuffCooldownReduction BuffType = "cooldown_reduction"
	// BuffCategoryDiscount halves shop prices for one thematic category.
	BuffCategoryDiscount BuffType = "category_discount"
	// BuffCategoryIncome multiplies payouts from assets of one category.
	BuffCategoryIncome BuffType = "category_income"
	// BuffEvasion gives a flat chance to evade incoming effects.
	BuffEvasion BuffType = "evasion"
	// BuffChargeShield gives consumable effect-nullifying charges that
	// recharge on a fixed window.
	BuffChargeShield BuffType = "charge_shield"
	// BuffCrimeMastery makes the crime activity always succeed and scales
	// its gain.
	BuffCrimeMastery BuffType = "crime_mastery"
	// BuffForgeMastery makes the forge activity always succeed and scales
	// its gain.
	BuffForgeMastery BuffType = "forge_mastery"
)

// ClanBuff is the tagged buff descriptor of a clan catalog entry. Only the
// fields relevant to its Type are set.
type ClanBuff struct {
	Type        BuffType `json:"type"`
	Description string   `json:"description"`
	Amount      int64    `json:"amount,omitempty"`
	SkillID     string   `json:"skill_id,omitempty"`
	Multiplier  float64  `json:"multiplier,omitempty"`
	Chance      float64  `json:"chance,omitempty"`
	Category    string   `json:"category,omitempty"`
	Charges     int      `json:"charges,omitempty"`
	RechargeSec int      `json:"recharge_sec,omitempty"`
	// ImmuneEffectID names one effect the clan is intrinsically immune to.
	ImmuneEffectID string `json:"immune_effect_id,omitempty"`
}

// Clan is one externally authored clan catalog entry. Weight drives random
// selection; an explicit zero excludes the clan from rolls but keeps it
// listable, while an absent weight counts as 1.
type Clan struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Weight *int      `json:"weight,omitempty"`
	Buff   *ClanBuff `json:"buff,omitempty"`
}

// EffectiveWeight treats an unset weight as 1 and an explicit 0 as excluded.
func (c *Clan) EffectiveWeight() int {
	if c.Weight == nil {
		return 1
	}
	if *c.Weight <= 0 {
		return 0
	}
	return *c.Weight
}

// HasBuff reports whether the clan carries a buff of the given type.
func (c *Clan) HasBuff(t BuffType) bool {
	return c.Buff != nil && c.Buff.Type == t
}
