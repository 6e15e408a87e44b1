package registry

import (
	"context"
	"fmt"
	"sync"

	"clanrpg/models"

	log "github.com/sirupsen/logrus"
)

// Document names in the durable store.
const (
	DocUsers     = "users"
	DocClans     = "clans"
	DocAbilities = "abilities"
	DocShop      = "shop"
	DocPayouts   = "payouts"
	DocTimers    = "timers"
	DocSettings  = "settings"
)

// CurrentSchemaVersion is stamped into the settings document on save.
const CurrentSchemaVersion = 2

// Store is the persistence surface the registry needs.
type Store interface {
	Load(ctx context.Context, name string, dest any) (bool, error)
	Save(ctx context.Context, name string, value any) error
	SaveAll(ctx context.Context, docs map[string]any) error
}

// Registry holds the whole game state in memory and writes documents back
// to the store whole. All access goes through the mutex: handlers and the
// background loops take it for the duration of each operation, so state
// transitions never interleave.
type Registry struct {
	sync.Mutex

	store Store

	Users     map[string]*models.User
	Clans     map[string]*models.Clan
	Abilities map[string]*models.Ability
	Shop      *models.ShopCatalog
	Payouts   models.PayoutSchedule
	Timers    map[string]*models.PendingTimer // keyed by chat ID
	Settings  *models.Settings
}

// New creates an empty registry backed by the given store.
func New(s Store) *Registry {
	return &Registry{
		store:     s,
		Users:     make(map[string]*models.User),
		Clans:     make(map[string]*models.Clan),
		Abilities: make(map[string]*models.Ability),
		Shop:      &models.ShopCatalog{Categories: map[string]*models.ShopCategory{}},
		Payouts:   make(models.PayoutSchedule),
		Timers:    make(map[string]*models.PendingTimer),
		Settings:  &models.Settings{},
	}
}

// Load reads every document from the store. A missing or unreadable
// document degrades to its empty default so one bad document never takes
// the whole system down.
func (r *Registry) Load(ctx context.Context) error {
	r.Lock()
	defer r.Unlock()

	loadDoc(ctx, r.store, DocUsers, &r.Users)
	loadDoc(ctx, r.store, DocClans, &r.Clans)
	loadDoc(ctx, r.store, DocAbilities, &r.Abilities)
	loadDoc(ctx, r.store, DocShop, r.Shop)
	loadDoc(ctx, r.store, DocPayouts, &r.Payouts)
	loadDoc(ctx, r.store, DocTimers, &r.Timers)
	loadDoc(ctx, r.store, DocSettings, r.Settings)

	r.applyDefaults()

	log.WithFields(log.Fields{
		"users":     len(r.Users),
		"clans":     len(r.Clans),
		"abilities": len(r.Abilities),
		"timers":    len(r.Timers),
	}).Info("Registry loaded")
	return nil
}

func loadDoc(ctx context.Context, s Store, name string, dest any) {
	found, err := s.Load(ctx, name, dest)
	if err != nil {
		log.WithError(err).WithField("document", name).Warn("Failed to load document, using empty default")
		return
	}
	if !found {
		log.WithField("document", name).Debug("Document not found, using empty default")
	}
}

// applyDefaults normalizes loaded state: nil maps become empty maps and
// older documents are brought up to the current schema.
func (r *Registry) applyDefaults() {
	if r.Users == nil {
		r.Users = make(map[string]*models.User)
	}
	for id, u := range r.Users {
		if u == nil {
			delete(r.Users, id)
			continue
		}
		if u.ID == "" {
			u.ID = id
		}
		if u.Cooldowns == nil {
			u.Cooldowns = make(map[string]int64)
		}
		if u.DailyCooldowns == nil {
			u.DailyCooldowns = make(map[string]string)
		}
		if u.Buffs == nil {
			u.Buffs = make(map[string]int64)
		}
	}
	if r.Clans == nil {
		r.Clans = make(map[string]*models.Clan)
	}
	if r.Abilities == nil {
		r.Abilities = make(map[string]*models.Ability)
	}
	if r.Shop.Categories == nil {
		r.Shop.Categories = make(map[string]*models.ShopCategory)
	}
	if r.Payouts == nil {
		r.Payouts = make(models.PayoutSchedule)
	}
	if r.Timers == nil {
		r.Timers = make(map[string]*models.PendingTimer)
	}
	r.Settings.SchemaVersion = CurrentSchemaVersion
}

// SeedCatalogs installs the given catalogs for any that are empty and
// persists them. Called once at startup with the embedded defaults.
func (r *Registry) SeedCatalogs(ctx context.Context, clans map[string]*models.Clan, abilities map[string]*models.Ability, shop *models.ShopCatalog) error {
	r.Lock()
	defer r.Unlock()

	docs := make(map[string]any)
	if len(r.Clans) == 0 && len(clans) > 0 {
		r.Clans = clans
		docs[DocClans] = r.Clans
	}
	if len(r.Abilities) == 0 && len(abilities) > 0 {
		r.Abilities = abilities
		docs[DocAbilities] = r.Abilities
	}
	if len(r.Shop.Categories) == 0 && shop != nil && len(shop.Categories) > 0 {
		r.Shop = shop
		docs[DocShop] = r.Shop
	}
	if len(docs) == 0 {
		return nil
	}
	if err := r.store.SaveAll(ctx, docs); err != nil {
		return fmt.Errorf("failed to seed catalogs: %w", err)
	}
	log.WithField("documents", len(docs)).Info("Seeded catalog documents")
	return nil
}

// SaveUsers persists the users document. Caller must hold the lock.
func (r *Registry) SaveUsers(ctx context.Context) error {
	return r.store.Save(ctx, DocUsers, r.Users)
}

// SaveClans persists the clans document. Caller must hold the lock.
func (r *Registry) SaveClans(ctx context.Context) error {
	return r.store.Save(ctx, DocClans, r.Clans)
}

// SavePayouts persists the payouts document. Caller must hold the lock.
func (r *Registry) SavePayouts(ctx context.Context) error {
	return r.store.Save(ctx, DocPayouts, r.Payouts)
}

// SaveTimers persists the timers document. Caller must hold the lock.
func (r *Registry) SaveTimers(ctx context.Context) error {
	return r.store.Save(ctx, DocTimers, r.Timers)
}

// SaveSettings persists the settings document. Caller must hold the lock.
func (r *Registry) SaveSettings(ctx context.Context) error {
	return r.store.Save(ctx, DocSettings, r.Settings)
}

// SaveMany persists several documents atomically. Caller must hold the
// lock. Names must be the Doc* constants.
func (r *Registry) SaveMany(ctx context.Context, names ...string) error {
	docs := make(map[string]any, len(names))
	for _, name := range names {
		switch name {
		case DocUsers:
			docs[name] = r.Users
		case DocClans:
			docs[name] = r.Clans
		case DocAbilities:
			docs[name] = r.Abilities
		case DocShop:
			docs[name] = r.Shop
		case DocPayouts:
			docs[name] = r.Payouts
		case DocTimers:
			docs[name] = r.Timers
		case DocSettings:
			docs[name] = r.Settings
		default:
			return fmt.Errorf("unknown document %q", name)
		}
	}
	return r.store.SaveAll(ctx, docs)
}

// User returns the user with the given ID, or nil.
func (r *Registry) User(id string) *models.User {
	return r.Users[id]
}

// Ability returns the ability with the given ID, or nil.
func (r *Registry) Ability(id string) *models.Ability {
	return r.Abilities[id]
}

// Clan returns the clan with the given ID, or nil.
func (r *Registry) Clan(id string) *models.Clan {
	return r.Clans[id]
}

// UserClan returns the clan the user belongs to, or nil.
func (r *Registry) UserClan(u *models.User) *models.Clan {
	if u == nil || u.ClanID == "" {
		return nil
	}
	return r.Clans[u.ClanID]
}
