package service

import (
	"math/rand"
	"sort"
	"time"

	"clanrpg/models"
)

const (
	discountFactor = 0.5

	// Clans with weight at or below this count as rare for the luck
	// multiplier.
	rareWeightThreshold = 2

	dailyDiscountDuration = 24 * time.Hour
)

// EffectiveAbilityPrice computes the price the user actually pays.
// The daily discount overrides everything; otherwise at most one clan
// category discount applies. Discounts never stack.
func EffectiveAbilityPrice(ability *models.Ability, clan *models.Clan, discount *models.DailyDiscountState, nowMillis int64) int64 {
	price := ability.Price
	if discount != nil && discount.Active(ability.ID, nowMillis) {
		return int64(float64(price) * discountFactor)
	}
	if clan != nil && clan.HasBuff(models.BuffCategoryDiscount) && clan.Buff.Category == ability.Category {
		return int64(float64(price) * discountFactor)
	}
	return price
}

// EffectiveItemPrice computes a shop item's price with the clan category
// discount applied when the item's category matches.
func EffectiveItemPrice(item *models.ShopItem, categoryID string, clan *models.Clan) int64 {
	if clan != nil && clan.HasBuff(models.BuffCategoryDiscount) && clan.Buff.Category == categoryID {
		return int64(float64(item.Price) * discountFactor)
	}
	return item.Price
}

// BuffMultiplier returns the clan's configured multiplier when its buff
// matches the requested kind, else the identity 1.0.
func BuffMultiplier(clan *models.Clan, kind models.BuffType) float64 {
	if clan == nil || !clan.HasBuff(kind) || clan.Buff.Multiplier <= 0 {
		return 1.0
	}
	return clan.Buff.Multiplier
}

// WeightedClanPick selects a clan at random, weighting by each clan's
// selection weight. excludeID removes one clan from the candidates. A luck
// multiplier above 1 scales rare-clan weights up before the pool is built,
// biasing toward rare picks. Returns nil when no candidate is selectable.
func WeightedClanPick(rng *rand.Rand, clans map[string]*models.Clan, excludeID string, luckMultiplier float64) *models.Clan {
	// Deterministic candidate order so equal seeds give equal picks.
	ids := make([]string, 0, len(clans))
	for id := range clans {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var pool []*models.Clan
	for _, id := range ids {
		clan := clans[id]
		if clan == nil || id == excludeID {
			continue
		}
		weight := clan.EffectiveWeight()
		if weight == 0 {
			continue
		}
		if luckMultiplier > 1 && weight <= rareWeightThreshold {
			weight = int(float64(weight) * luckMultiplier)
			if weight < 1 {
				weight = 1
			}
		}
		for i := 0; i < weight; i++ {
			pool = append(pool, clan)
		}
	}
	if len(pool) == 0 {
		return nil
	}
	return pool[rng.Intn(len(pool))]
}

// EnsureDailyDiscount lazily rolls the day's discounted ability: at most one
// roll per civil day, 24h expiry, drawn uniformly from purchasable
// abilities. Reports whether the settings document changed.
func EnsureDailyDiscount(rng *rand.Rand, settings *models.Settings, abilities map[string]*models.Ability, nowMillis int64, loc *time.Location) bool {
	today := CivilDate(nowMillis, loc)
	d := &settings.DailyDiscount

	if d.LastRollDate == today {
		// Already rolled today; clear only if expired.
		if d.AbilityID != "" && nowMillis >= d.ExpiresAt {
			d.AbilityID = ""
			return true
		}
		return false
	}

	ids := make([]string, 0, len(abilities))
	for id, a := range abilities {
		if a != nil && a.Purchasable() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	d.LastRollDate = today
	if len(ids) == 0 {
		d.AbilityID = ""
		return true
	}
	d.AbilityID = ids[rng.Intn(len(ids))]
	d.ExpiresAt = nowMillis + dailyDiscountDuration.Milliseconds()
	return true
}
