package models

// Ability describes one catalog entry: a purchasable or clan-granted skill
// together with the data-driven effect it schedules when used. Transfer
// fractions, flags and narrative templates live here rather than in code so
// that the catalog is game content, not logic.
type Ability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Price       int64  `json:"price"`
	Usage       string `json:"usage,omitempty"`
	Description string `json:"description,omitempty"`
	MediaID     string `json:"media_id,omitempty"`

	// Timed-effect shape. DurationSec is the cancellation window; the
	// effect resolves when it elapses. CancelPhrase is matched
	// case-insensitively against inbound messages. CancelTemplate is the
	// area-cancellation flavor text ({canceller}/{attacker} tokens); empty
	// means the generic line.
	DurationSec    int    `json:"duration_sec,omitempty"`
	CancelPhrase   string `json:"cancel_phrase,omitempty"`
	CancelTemplate string `json:"cancel_template,omitempty"`

	AffectsAllOthers  bool `json:"affects_all_others,omitempty"`
	Unavoidable       bool `json:"unavoidable,omitempty"`
	ResetsTargets     bool `json:"resets_targets,omitempty"`
	Reentrant         bool `json:"reentrant,omitempty"`
	EnvironmentEffect bool `json:"environment_effect,omitempty"`
	IsClanSkill       bool `json:"is_clan_skill,omitempty"`
	SelfBuff          bool `json:"self_buff,omitempty"`
	InfoSkill         bool `json:"info_skill,omitempty"`

	// StealFraction of the target's wallet is transferred on resolution.
	// If StealFractionMax is greater, the fraction is rolled uniformly in
	// [StealFraction, StealFractionMax]. Multiplier scales what the
	// initiator receives (default 1.0).
	StealFraction    float64 `json:"steal_fraction,omitempty"`
	StealFractionMax float64 `json:"steal_fraction_max,omitempty"`
	Multiplier       float64 `json:"multiplier,omitempty"`

	// Passive-defense roles. A OneShotDefense ability consumes itself to
	// nullify an incoming effect. A ReflexDefense nullifies without being
	// consumed but arms ReflexCooldownSec on itself.
	OneShotDefense    bool `json:"one_shot_defense,omitempty"`
	ReflexDefense     bool `json:"reflex_defense,omitempty"`
	ReflexCooldownSec int  `json:"reflex_cooldown_sec,omitempty"`

	// Self-buff grants: BuffKey is recorded on the user with
	// BuffDurationSec. While a buff granted with ImmuneCategory is active,
	// incoming effects of that category are nullified.
	BuffKey         string `json:"buff_key,omitempty"`
	BuffDurationSec int    `json:"buff_duration_sec,omitempty"`
	ImmuneCategory  string `json:"immune_category,omitempty"`

	// Clan skills are not consumed on use; they are gated by this reuse
	// cooldown instead.
	ClanCooldownSec int `json:"clan_cooldown_sec,omitempty"`

	// SuccessTemplate is the resolution line, with {attacker}, {target}
	// and {amount} tokens.
	SuccessTemplate string `json:"success_template,omitempty"`
}

// Purchasable reports whether the ability can be bought in the shop.
// Clan grants and bonus skills carry a zero price and are unbuyable.
func (a *Ability) Purchasable() bool {
	return a.Price > 0
}

// Timed reports whether using the ability schedules a pending effect with a
// cancellation window.
func (a *Ability) Timed() bool {
	return a.DurationSec > 0 && (a.CancelPhrase != "" || a.Unavoidable || a.EnvironmentEffect)
}

// PayoutMultiplier returns the initiator payout scale, defaulting to 1.0.
func (a *Ability) PayoutMultiplier() float64 {
	if a.Multiplier <= 0 {
		return 1.0
	}
	return a.Multiplier
}

// ReuseCooldownSec returns the reuse gate for clan skills, with the catalog
// default applied.
func (a *Ability) ReuseCooldownSec() int {
	if a.ClanCooldownSec > 0 {
		return a.ClanCooldownSec
	}
	return 300
}
