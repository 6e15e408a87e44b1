package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"clanrpg/events"
	"clanrpg/models"
	"clanrpg/registry"

	log "github.com/sirupsen/logrus"
)

const defaultReflexCooldown = 4 * time.Hour

// ActivationKind classifies what using an ability did.
type ActivationKind string

const (
	ActivationScheduled   ActivationKind = "scheduled"
	ActivationSelfBuff    ActivationKind = "self_buff"
	ActivationInfo        ActivationKind = "info"
	ActivationEnvironment ActivationKind = "environment"
)

// ActivationResult tells the command layer what happened so it can render
// the announcement.
type ActivationResult struct {
	Kind      ActivationKind
	Ability   *models.Ability
	Timer     *models.PendingTimer
	BuffUntil int64
}

// TimerEngine owns the one pending-effect slot per chat: scheduling,
// cancel-phrase matching and expiry-driven resolution.
type TimerEngine struct {
	reg    *registry.Registry
	bus    *events.Bus
	roster Roster
	mod    ChatModerator
	rng    *rand.Rand

	startingBalance int64

	now func() int64
}

// NewTimerEngine creates a new timer engine
func NewTimerEngine(reg *registry.Registry, bus *events.Bus, roster Roster, mod ChatModerator, startingBalance int64) *TimerEngine {
	return &TimerEngine{
		reg:             reg,
		bus:             bus,
		roster:          roster,
		mod:             mod,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		startingBalance: startingBalance,
		now:             NowMillis,
	}
}

// ActivateAbility routes an ability use: info and self-buff abilities apply
// immediately, everything timed lands in the chat's pending slot. Purchased
// abilities are consumed on activation; clan skills are reuse-gated instead.
func (e *TimerEngine) ActivateAbility(ctx context.Context, userID, chatID, abilityID, targetID string) (*ActivationResult, error) {
	e.reg.Lock()
	defer e.reg.Unlock()

	user := e.reg.User(userID)
	if user == nil {
		return nil, Validationf("you are not registered")
	}
	ability := e.reg.Ability(abilityID)
	if ability == nil {
		return nil, Validationf("unknown ability")
	}
	if !user.HasAbility(abilityID) {
		return nil, Validationf("you do not know %s", ability.Name)
	}

	now := e.now()
	if ability.IsClanSkill {
		key := "use_" + ability.ID
		if user.OnCooldown(key, now) {
			return nil, Validationf("%s is ready again in %s", ability.Name, untilText(user.CooldownUntil(key), now))
		}
	}

	switch {
	case ability.InfoSkill:
		return &ActivationResult{Kind: ActivationInfo, Ability: ability}, nil

	case ability.SelfBuff:
		return e.activateSelfBuff(ctx, user, ability, now)

	case ability.EnvironmentEffect:
		return e.activateEnvironment(ctx, user, ability, chatID, now)

	case ability.Timed():
		return e.scheduleEffect(ctx, user, ability, chatID, targetID, now)

	default:
		return nil, Validationf("%s cannot be used directly", ability.Name)
	}
}

func (e *TimerEngine) activateSelfBuff(ctx context.Context, user *models.User, ability *models.Ability, now int64) (*ActivationResult, error) {
	if ability.BuffKey == "" || ability.BuffDurationSec <= 0 {
		return nil, fmt.Errorf("ability %s has no buff definition", ability.ID)
	}
	until := now + int64(ability.BuffDurationSec)*1000
	prevBuff := user.Buffs[ability.BuffKey]
	user.GrantBuff(ability.BuffKey, until)
	e.consumeOrGate(user, ability, now)

	if err := e.reg.SaveUsers(ctx); err != nil {
		e.undoConsume(user, ability)
		if prevBuff == 0 {
			delete(user.Buffs, ability.BuffKey)
		} else {
			user.Buffs[ability.BuffKey] = prevBuff
		}
		return nil, fmt.Errorf("failed to persist buff activation: %w", err)
	}
	return &ActivationResult{Kind: ActivationSelfBuff, Ability: ability, BuffUntil: until}, nil
}

// activateEnvironment applies the reversible chat mutation up front and
// schedules its reversal. When the forward mutation fails entirely the
// timer is still scheduled in soft mode so expiry has nothing to undo.
func (e *TimerEngine) activateEnvironment(ctx context.Context, user *models.User, ability *models.Ability, chatID string, now int64) (*ActivationResult, error) {
	if existing, ok := e.reg.Timers[chatID]; ok && !ability.Reentrant && !ability.Unavoidable {
		return nil, Validationf("something is already happening here (ends in %s)", untilText(existing.ExpiresAt, now))
	}

	timer := &models.PendingTimer{
		EffectID:    ability.ID,
		InitiatorID: user.ID,
		ChatID:      chatID,
		ExpiresAt:   now + int64(ability.DurationSec)*1000,
		Unavoidable: ability.Unavoidable,
	}

	if err := e.mod.Promote(ctx, chatID, user.ID); err != nil {
		log.WithError(err).WithField("chat", chatID).Warn("Environment effect: promote failed")
	} else {
		timer.ElevatedMembers = append(timer.ElevatedMembers, user.ID)
	}
	applied, err := e.mod.RestrictChat(ctx, chatID)
	if err != nil {
		log.WithError(err).WithField("chat", chatID).Warn("Environment effect: restrict failed")
	}
	timer.AppliedSettings = applied
	if len(timer.ElevatedMembers) == 0 && len(timer.AppliedSettings) == 0 {
		timer.SoftMode = true
	}

	e.consumeOrGate(user, ability, now)
	e.reg.Timers[chatID] = timer

	if err := e.reg.SaveMany(ctx, registry.DocUsers, registry.DocTimers); err != nil {
		delete(e.reg.Timers, chatID)
		e.undoConsume(user, ability)
		return nil, fmt.Errorf("failed to persist environment effect: %w", err)
	}
	return &ActivationResult{Kind: ActivationEnvironment, Ability: ability, Timer: timer}, nil
}

func (e *TimerEngine) scheduleEffect(ctx context.Context, user *models.User, ability *models.Ability, chatID, targetID string, now int64) (*ActivationResult, error) {
	if existing, ok := e.reg.Timers[chatID]; ok && !ability.Unavoidable && !ability.Reentrant {
		return nil, Validationf("something is already happening here (ends in %s)", untilText(existing.ExpiresAt, now))
	}

	if ability.AffectsAllOthers {
		targetID = ""
	} else {
		if targetID == "" {
			return nil, Validationf("%s needs a target", ability.Name)
		}
		if targetID == user.ID {
			return nil, Validationf("you cannot target yourself")
		}
		if e.reg.User(targetID) == nil {
			return nil, Validationf("target is not registered")
		}
	}

	timer := &models.PendingTimer{
		EffectID:         ability.ID,
		InitiatorID:      user.ID,
		TargetID:         targetID,
		ChatID:           chatID,
		ExpiresAt:        now + int64(ability.DurationSec)*1000,
		CancelPhrase:     ability.CancelPhrase,
		AffectsAllOthers: ability.AffectsAllOthers,
		Unavoidable:      ability.Unavoidable,
	}

	e.consumeOrGate(user, ability, now)
	e.reg.Timers[chatID] = timer

	if err := e.reg.SaveMany(ctx, registry.DocUsers, registry.DocTimers); err != nil {
		delete(e.reg.Timers, chatID)
		e.undoConsume(user, ability)
		return nil, fmt.Errorf("failed to persist scheduled effect: %w", err)
	}
	return &ActivationResult{Kind: ActivationScheduled, Ability: ability, Timer: timer}, nil
}

// consumeOrGate applies the activation cost: clan skills arm their reuse
// cooldown, purchased abilities are removed from the owned list.
func (e *TimerEngine) consumeOrGate(user *models.User, ability *models.Ability, now int64) {
	if ability.IsClanSkill {
		user.ArmCooldown("use_"+ability.ID, now+int64(ability.ReuseCooldownSec())*1000)
		return
	}
	if ability.OneShotDefense || ability.ReflexDefense {
		// Passive defenses are never consumed by activation.
		return
	}
	user.RemoveAbility(ability.ID)
}

// undoConsume reverses consumeOrGate when the persist step fails, so the
// in-memory state matches what is on disk.
func (e *TimerEngine) undoConsume(user *models.User, ability *models.Ability) {
	if ability.IsClanSkill {
		user.ClearCooldown("use_" + ability.ID)
		return
	}
	if ability.OneShotDefense || ability.ReflexDefense {
		return
	}
	user.GrantAbility(ability.ID)
}

// TryCancel matches an inbound utterance against the chat's pending
// cancel-phrase. For single-target effects only the target's words count;
// for area effects anyone's do.
func (e *TimerEngine) TryCancel(ctx context.Context, chatID, speakerID, utterance string) bool {
	e.reg.Lock()
	defer e.reg.Unlock()

	timer, ok := e.reg.Timers[chatID]
	if !ok || timer.CancelPhrase == "" {
		return false
	}
	if !strings.EqualFold(strings.TrimSpace(utterance), timer.CancelPhrase) {
		return false
	}
	if !timer.AffectsAllOthers && speakerID != timer.TargetID {
		return false
	}

	ability := e.reg.Ability(timer.EffectID)
	delete(e.reg.Timers, chatID)
	if err := e.reg.SaveTimers(ctx); err != nil {
		log.WithError(err).WithField("chat", chatID).Error("Failed to persist timer cancellation")
	}

	text := e.cancelText(ability, timer, speakerID)
	e.bus.Emit(ctx, events.NotificationEvent{ChatID: chatID, Text: text, MentionIDs: []string{speakerID, timer.InitiatorID}})
	e.bus.Emit(ctx, events.EffectResolvedEvent{
		EffectID:    timer.EffectID,
		InitiatorID: timer.InitiatorID,
		TargetID:    timer.TargetID,
		ChatID:      chatID,
		Outcome:     events.OutcomeCancelled,
	})
	return true
}

func (e *TimerEngine) cancelText(ability *models.Ability, timer *models.PendingTimer, cancellerID string) string {
	canceller := e.displayName(cancellerID)
	attacker := e.displayName(timer.InitiatorID)
	if ability != nil && ability.CancelTemplate != "" {
		return renderTemplate(ability.CancelTemplate, map[string]string{
			"canceller": canceller,
			"attacker":  attacker,
		})
	}
	if timer.AffectsAllOthers {
		return fmt.Sprintf("%s broke %s's technique, the chat is safe", canceller, attacker)
	}
	return fmt.Sprintf("%s escaped %s's attack", canceller, attacker)
}

// Poll resolves every expired timer. A failed resolution is logged and its
// timer dropped anyway: effects apply at most once and never retry.
func (e *TimerEngine) Poll(ctx context.Context) {
	e.reg.Lock()
	defer e.reg.Unlock()

	now := e.now()
	pending := events.NewPendingBus(e.bus)
	changed := false

	for chatID, timer := range e.reg.Timers {
		if !timer.Expired(now) {
			continue
		}
		delete(e.reg.Timers, chatID)
		changed = true

		if err := e.resolve(ctx, timer, now, pending); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"chat":   chatID,
				"effect": timer.EffectID,
			}).Error("Effect resolution failed, timer dropped")
		}
	}

	if !changed {
		return
	}
	if err := e.reg.SaveMany(ctx, registry.DocUsers, registry.DocTimers, registry.DocPayouts); err != nil {
		log.WithError(err).Error("Failed to persist timer resolutions")
		pending.Discard()
		return
	}
	pending.Flush()
}

func (e *TimerEngine) resolve(ctx context.Context, timer *models.PendingTimer, now int64, pending *events.PendingBus) error {
	ability := e.reg.Ability(timer.EffectID)
	if ability == nil {
		return fmt.Errorf("effect %q no longer in catalog", timer.EffectID)
	}
	if ability.EnvironmentEffect {
		e.reverseEnvironment(ctx, timer, pending)
		return nil
	}
	initiator := e.reg.User(timer.InitiatorID)
	if initiator == nil {
		return fmt.Errorf("initiator %q missing", timer.InitiatorID)
	}
	if timer.Area() {
		return e.resolveArea(ctx, timer, ability, initiator, now, pending)
	}
	return e.resolveSingle(timer, ability, initiator, now, pending)
}

func (e *TimerEngine) resolveSingle(timer *models.PendingTimer, ability *models.Ability, initiator *models.User, now int64, pending *events.PendingBus) error {
	target := e.reg.User(timer.TargetID)
	if target == nil {
		return fmt.Errorf("target %q missing", timer.TargetID)
	}

	if outcome, text := e.checkImmunities(ability, target, now); outcome != "" {
		pending.Publish(events.NotificationEvent{ChatID: timer.ChatID, Text: text, MentionIDs: []string{target.ID, initiator.ID}})
		pending.Publish(events.EffectResolvedEvent{EffectID: ability.ID, InitiatorID: initiator.ID, TargetID: target.ID, ChatID: timer.ChatID, Outcome: outcome})
		return nil
	}
	if !timer.Unavoidable {
		if outcome, text := e.runDefenseChain(ability, target, now); outcome != "" {
			pending.Publish(events.NotificationEvent{ChatID: timer.ChatID, Text: text, MentionIDs: []string{target.ID, initiator.ID}})
			pending.Publish(events.EffectResolvedEvent{EffectID: ability.ID, InitiatorID: initiator.ID, TargetID: target.ID, ChatID: timer.ChatID, Outcome: outcome})
			return nil
		}
	}

	taken := e.transferAmount(ability, target.Balance)
	target.Debit(taken)
	gained := int64(float64(taken) * ability.PayoutMultiplier())
	initiator.Credit(gained)

	pending.Publish(events.NotificationEvent{
		ChatID:     timer.ChatID,
		Text:       e.successText(ability, initiator, target.Name, gained),
		MentionIDs: []string{target.ID, initiator.ID},
		MediaID:    ability.MediaID,
	})
	pending.Publish(events.EffectResolvedEvent{EffectID: ability.ID, InitiatorID: initiator.ID, TargetID: target.ID, ChatID: timer.ChatID, Outcome: events.OutcomeApplied})
	return nil
}

func (e *TimerEngine) resolveArea(ctx context.Context, timer *models.PendingTimer, ability *models.Ability, initiator *models.User, now int64, pending *events.PendingBus) error {
	members, err := e.roster.Members(ctx, timer.ChatID)
	if err != nil {
		// Without the live roster we would be guessing membership;
		// drop the whole resolution instead.
		return fmt.Errorf("failed to fetch chat roster: %w", err)
	}

	var total int64
	var hitIDs []string
	for _, memberID := range members {
		if memberID == initiator.ID {
			continue
		}
		target := e.reg.User(memberID)
		if target == nil || target.Balance <= 0 {
			continue
		}

		if outcome, text := e.checkImmunities(ability, target, now); outcome != "" {
			pending.Publish(events.NotificationEvent{ChatID: timer.ChatID, Text: text, MentionIDs: []string{target.ID}})
			continue
		}
		if !timer.Unavoidable {
			if outcome, text := e.runDefenseChain(ability, target, now); outcome != "" {
				pending.Publish(events.NotificationEvent{ChatID: timer.ChatID, Text: text, MentionIDs: []string{target.ID}})
				continue
			}
		}

		taken := e.transferAmount(ability, target.Balance)
		target.Debit(taken)
		total += taken
		hitIDs = append(hitIDs, target.ID)

		if ability.ResetsTargets {
			resetProfileLocked(e.reg, e.rng, target, e.startingBalance, now)
		}
	}

	gained := int64(float64(total) * ability.PayoutMultiplier())
	initiator.Credit(gained)

	pending.Publish(events.NotificationEvent{
		ChatID:     timer.ChatID,
		Text:       e.successText(ability, initiator, fmt.Sprintf("%d victims", len(hitIDs)), gained),
		MentionIDs: append(hitIDs, initiator.ID),
		MediaID:    ability.MediaID,
	})
	pending.Publish(events.EffectResolvedEvent{EffectID: ability.ID, InitiatorID: initiator.ID, ChatID: timer.ChatID, Outcome: events.OutcomeApplied})
	return nil
}

// reverseEnvironment undoes the environment effect's forward mutation using
// the metadata recorded at activation.
func (e *TimerEngine) reverseEnvironment(ctx context.Context, timer *models.PendingTimer, pending *events.PendingBus) {
	if !timer.SoftMode {
		for _, memberID := range timer.ElevatedMembers {
			if err := e.mod.Demote(ctx, timer.ChatID, memberID); err != nil {
				log.WithError(err).WithField("chat", timer.ChatID).Warn("Environment reversal: demote failed")
			}
		}
		if len(timer.AppliedSettings) > 0 {
			if err := e.mod.RestoreChat(ctx, timer.ChatID, timer.AppliedSettings); err != nil {
				log.WithError(err).WithField("chat", timer.ChatID).Warn("Environment reversal: restore failed")
			}
		}
	}
	pending.Publish(events.NotificationEvent{
		ChatID: timer.ChatID,
		Text:   fmt.Sprintf("time moves again, %s's grip on the chat is broken", e.displayName(timer.InitiatorID)),
	})
	pending.Publish(events.EffectResolvedEvent{EffectID: timer.EffectID, InitiatorID: timer.InitiatorID, ChatID: timer.ChatID, Outcome: events.OutcomeApplied})
}

// checkImmunities runs the pre-chain checks that hold even against
// unavoidable effects: clan-intrinsic immunity to one named effect, and an
// active buff immune to the effect's whole category.
func (e *TimerEngine) checkImmunities(ability *models.Ability, target *models.User, now int64) (events.EffectOutcome, string) {
	if clan := e.reg.UserClan(target); clan != nil && clan.Buff != nil && clan.Buff.ImmuneEffectID == ability.ID {
		return events.OutcomeImmune, fmt.Sprintf("%s is untouched, the %s bloodline does not fear %s", target.Name, clan.Name, ability.Name)
	}
	if ability.Category != "" {
		for _, granting := range e.reg.Abilities {
			if granting.ImmuneCategory == ability.Category && granting.BuffKey != "" && target.BuffActive(granting.BuffKey, now) {
				return events.OutcomeImmune, fmt.Sprintf("%s adapted, %s has no effect", target.Name, ability.Name)
			}
		}
	}
	return "", ""
}

// runDefenseChain evaluates the target's passive counters in fixed priority
// order: one-shot ability, charge shield, clan evasion, reflex counter. The
// first match nullifies the effect.
func (e *TimerEngine) runDefenseChain(ability *models.Ability, target *models.User, now int64) (events.EffectOutcome, string) {
	for _, ownedID := range target.Abilities {
		owned := e.reg.Ability(ownedID)
		if owned != nil && owned.OneShotDefense {
			target.RemoveAbility(ownedID)
			return events.OutcomeBlocked, fmt.Sprintf("%s's %s shattered, absorbing %s completely", target.Name, owned.Name, ability.Name)
		}
	}

	clan := e.reg.UserClan(target)
	if clan != nil && clan.HasBuff(models.BuffChargeShield) && target.ShieldCharges > 0 {
		target.ShieldCharges--
		if target.ShieldCharges < clan.Buff.Charges {
			target.ShieldRechargeAt = now + int64(clan.Buff.RechargeSec)*1000
		}
		return events.OutcomeBlocked, fmt.Sprintf("%s's shield absorbed %s (%d charges left)", target.Name, ability.Name, target.ShieldCharges)
	}

	if clan != nil && clan.HasBuff(models.BuffEvasion) && e.rng.Float64() < clan.Buff.Chance {
		return events.OutcomeEvaded, fmt.Sprintf("%s saw it coming and slipped away from %s", target.Name, ability.Name)
	}

	for _, ownedID := range target.Abilities {
		owned := e.reg.Ability(ownedID)
		if owned == nil || !owned.ReflexDefense {
			continue
		}
		key := "reflex_" + owned.ID
		if target.OnCooldown(key, now) {
			continue
		}
		cd := defaultReflexCooldown
		if owned.ReflexCooldownSec > 0 {
			cd = time.Duration(owned.ReflexCooldownSec) * time.Second
		}
		target.ArmCooldown(key, now+cd.Milliseconds())
		return events.OutcomeReflected, fmt.Sprintf("%s's body moved on its own, %s missed (%s rests for %s)", target.Name, ability.Name, owned.Name, cd)
	}

	return "", ""
}

// transferAmount computes how much of the target's wallet the effect takes.
func (e *TimerEngine) transferAmount(ability *models.Ability, balance int64) int64 {
	fraction := ability.StealFraction
	if ability.StealFractionMax > fraction {
		fraction = fraction + e.rng.Float64()*(ability.StealFractionMax-fraction)
	}
	if fraction <= 0 {
		return 0
	}
	if fraction > 1 {
		fraction = 1
	}
	return int64(float64(balance) * fraction)
}

func (e *TimerEngine) successText(ability *models.Ability, initiator *models.User, targetName string, amount int64) string {
	if ability.SuccessTemplate != "" {
		return renderTemplate(ability.SuccessTemplate, map[string]string{
			"attacker": initiator.Name,
			"target":   targetName,
			"amount":   fmt.Sprintf("%d", amount),
		})
	}
	return fmt.Sprintf("%s's %s landed on %s, taking %d gold", initiator.Name, ability.Name, targetName, amount)
}

func (e *TimerEngine) displayName(userID string) string {
	if u := e.reg.User(userID); u != nil && u.Name != "" {
		return u.Name
	}
	return userID
}

// renderTemplate substitutes {token} placeholders.
func renderTemplate(tpl string, tokens map[string]string) string {
	out := tpl
	for k, v := range tokens {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}
