// Package assets carries the embedded seed catalogs: clans, abilities and
// the shop. They are loaded into the registry only when the corresponding
// store document is still empty, so live catalog edits in the database are
// never overwritten.
package assets

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"clanrpg/models"
)

//go:embed data/clans.json
var clansJSON []byte

//go:embed data/abilities.json
var abilitiesJSON []byte

//go:embed data/shop.json
var shopJSON []byte

// Clans parses the embedded clan catalog, keyed by clan id.
func Clans() (map[string]*models.Clan, error) {
	var list []*models.Clan
	if err := json.Unmarshal(clansJSON, &list); err != nil {
		return nil, fmt.Errorf("failed to parse clan catalog: %w", err)
	}
	out := make(map[string]*models.Clan, len(list))
	for _, clan := range list {
		if clan.ID == "" {
			return nil, fmt.Errorf("clan catalog entry without id")
		}
		if _, dup := out[clan.ID]; dup {
			return nil, fmt.Errorf("duplicate clan id %q", clan.ID)
		}
		out[clan.ID] = clan
	}
	return out, nil
}

// Abilities parses the embedded ability catalog, keyed by ability id.
func Abilities() (map[string]*models.Ability, error) {
	var list []*models.Ability
	if err := json.Unmarshal(abilitiesJSON, &list); err != nil {
		return nil, fmt.Errorf("failed to parse ability catalog: %w", err)
	}
	out := make(map[string]*models.Ability, len(list))
	for _, ability := range list {
		if ability.ID == "" {
			return nil, fmt.Errorf("ability catalog entry without id")
		}
		if _, dup := out[ability.ID]; dup {
			return nil, fmt.Errorf("duplicate ability id %q", ability.ID)
		}
		out[ability.ID] = ability
	}
	return out, nil
}

// Shop parses the embedded shop catalog.
func Shop() (*models.ShopCatalog, error) {
	var catalog models.ShopCatalog
	if err := json.Unmarshal(shopJSON, &catalog); err != nil {
		return nil, fmt.Errorf("failed to parse shop catalog: %w", err)
	}
	return &catalog, nil
}

// Validate cross-checks the three catalogs: clan skill grants must name
// real abilities, shop display order must name real categories, and every
// avoidable timed ability needs a cancel phrase.
func Validate() error {
	clans, err := Clans()
	if err != nil {
		return err
	}
	abilities, err := Abilities()
	if err != nil {
		return err
	}
	shop, err := Shop()
	if err != nil {
		return err
	}

	for id, clan := range clans {
		if clan.Buff == nil {
			continue
		}
		if clan.Buff.Type == models.BuffSkillStart {
			if _, ok := abilities[clan.Buff.SkillID]; !ok {
				return fmt.Errorf("clan %q grants unknown skill %q", id, clan.Buff.SkillID)
			}
		}
		if clan.Buff.ImmuneEffectID != "" {
			if _, ok := abilities[clan.Buff.ImmuneEffectID]; !ok {
				return fmt.Errorf("clan %q is immune to unknown effect %q", id, clan.Buff.ImmuneEffectID)
			}
		}
	}

	for _, ability := range abilities {
		if ability.DurationSec > 0 && !ability.Timed() {
			return fmt.Errorf("ability %q has a duration but neither a cancel phrase nor the unavoidable flag", ability.ID)
		}
	}

	for _, id := range shop.Order {
		if _, ok := shop.Categories[id]; !ok {
			return fmt.Errorf("shop order names unknown category %q", id)
		}
	}
	return nil
}
