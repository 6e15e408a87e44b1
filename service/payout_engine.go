package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"clanrpg/events"
	"clanrpg/models"
	"clanrpg/registry"

	log "github.com/sirupsen/logrus"
)

const (
	// Floor on the payout interval so a misconfigured multiplier cannot
	// produce a tight loop.
	minPayoutInterval = 10 * time.Second

	// A failed payout defers its tuple instead of retrying immediately.
	payoutErrorPenalty = 15 * time.Minute

	// DoubleIncomeBuffKey doubles passive income while active.
	DoubleIncomeBuffKey = "double_income"
)

// PayoutEngine pays recurring passive income per (user, asset) pair on
// independent schedules.
type PayoutEngine struct {
	reg *registry.Registry
	bus *events.Bus

	now func() int64
}

// NewPayoutEngine creates a new payout engine
func NewPayoutEngine(reg *registry.Registry, bus *events.Bus) *PayoutEngine {
	return &PayoutEngine{
		reg: reg,
		bus: bus,
		now: NowMillis,
	}
}

// Poll pays every due tuple, pruning orphaned schedules as it goes. State
// is flushed at most once per tick.
func (p *PayoutEngine) Poll(ctx context.Context) {
	p.reg.Lock()
	defer p.reg.Unlock()

	now := p.now()
	pending := events.NewPendingBus(p.bus)
	changed := false

	for userID := range p.reg.Payouts {
		user := p.reg.User(userID)
		if user == nil {
			delete(p.reg.Payouts, userID)
			changed = true
			continue
		}
		for _, itemID := range p.reg.Payouts.Due(userID, now) {
			changed = true
			if err := p.payOne(user, itemID, now, pending); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"user": userID,
					"item": itemID,
				}).Warn("Payout failed, deferring tuple")
				p.reg.Payouts.Arm(userID, itemID, now+payoutErrorPenalty.Milliseconds())
			}
		}
	}

	if !changed {
		return
	}
	if err := p.reg.SaveMany(ctx, registry.DocUsers, registry.DocPayouts); err != nil {
		log.WithError(err).Error("Failed to persist payouts")
		pending.Discard()
		return
	}
	pending.Flush()
}

// payOne handles one due (user, asset) tuple: prune orphans, re-arm before
// paying, then credit and queue the notification.
func (p *PayoutEngine) payOne(user *models.User, itemID string, now int64, pending *events.PendingBus) error {
	item, categoryID := p.reg.Shop.FindItem(itemID)
	if item == nil || !user.HasHolding(itemID) {
		p.reg.Payouts.Remove(user.ID, itemID)
		user.RemoveHolding(itemID)
		return nil
	}

	clan := p.reg.UserClan(user)

	interval := time.Duration(float64(item.CooldownMin) * BuffMultiplier(clan, models.BuffCooldownReduction) * float64(time.Minute))
	if interval < minPayoutInterval {
		interval = minPayoutInterval
	}
	// Re-arm before paying: a failure below cannot double-pay next tick.
	p.reg.Payouts.Arm(user.ID, itemID, now+interval.Milliseconds())

	boost := BuffMultiplier(clan, models.BuffPassiveIncome)
	if clan != nil && clan.HasBuff(models.BuffCategoryIncome) {
		if clan.Buff.Category == categoryID {
			boost = clan.Buff.Multiplier
		} else {
			boost = 1.0
		}
	}
	amount := float64(item.Income) * boost
	if user.BuffActive(DoubleIncomeBuffKey, now) {
		amount *= 2
	}
	payout := int64(math.Round(amount))
	if payout < 0 {
		return fmt.Errorf("negative payout %d for item %s", payout, itemID)
	}
	user.Credit(payout)

	if p.reg.Settings.PayoutsMuted(user.ID) {
		return nil
	}
	chatID := user.NotifyChatID
	if chatID == "" {
		chatID = user.LastChatID
	}
	if chatID == "" {
		return nil
	}
	pending.Publish(events.NotificationEvent{
		ChatID:     chatID,
		Text:       p.incomeText(user, item, payout),
		MentionIDs: []string{user.ID},
	})
	return nil
}

func (p *PayoutEngine) incomeText(user *models.User, item *models.ShopItem, payout int64) string {
	if item.IncomeTemplate != "" {
		return renderTemplate(item.IncomeTemplate, map[string]string{
			"name":   user.Name,
			"income": fmt.Sprintf("%d", payout),
		})
	}
	return fmt.Sprintf("%s earned %d gold from %s", user.Name, payout, item.Name)
}
