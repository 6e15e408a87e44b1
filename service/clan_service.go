package service

import (
	"context"

	"clanrpg/models"
	"clanrpg/registry"

	log "github.com/sirupsen/logrus"
)

// ClanService runs the passive charge regeneration for clans with a charge
// shield.
type ClanService struct {
	reg *registry.Registry

	now func() int64
}

// NewClanService creates a new clan service
func NewClanService(reg *registry.Registry) *ClanService {
	return &ClanService{
		reg: reg,
		now: NowMillis,
	}
}

// Poll restores depleted shield charges whose recharge window has passed.
// The transition is silent: no notification is emitted.
func (c *ClanService) Poll(ctx context.Context) {
	c.reg.Lock()
	defer c.reg.Unlock()

	now := c.now()
	changed := false

	for _, user := range c.reg.Users {
		clan := c.reg.UserClan(user)
		if clan == nil || !clan.HasBuff(models.BuffChargeShield) {
			continue
		}
		if user.ShieldCharges >= clan.Buff.Charges {
			continue
		}
		if user.ShieldRechargeAt == 0 || now < user.ShieldRechargeAt {
			continue
		}
		user.ShieldCharges = clan.Buff.Charges
		user.ShieldRechargeAt = now + int64(clan.Buff.RechargeSec)*1000
		changed = true
	}

	if !changed {
		return
	}
	if err := c.reg.SaveMany(ctx, registry.DocUsers); err != nil {
		log.WithError(err).Error("Failed to persist shield recharges")
	}
}
