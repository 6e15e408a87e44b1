package registry

import (
	"context"
	"encoding/json"
	"testing"

	"clanrpg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store for tests.
type memStore struct {
	docs map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, name string, dest any) (bool, error) {
	data, ok := m.docs[name]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false, err
	}
	return true, nil
}

func (m *memStore) Save(_ context.Context, name string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.docs[name] = data
	return nil
}

func (m *memStore) SaveAll(ctx context.Context, docs map[string]any) error {
	for name, value := range docs {
		if err := m.Save(ctx, name, value); err != nil {
			return err
		}
	}
	return nil
}

func TestRegistryLoadDefaults(t *testing.T) {
	s := newMemStore()
	r := New(s)

	require.NoError(t, r.Load(context.Background()))

	assert.NotNil(t, r.Users)
	assert.NotNil(t, r.Clans)
	assert.NotNil(t, r.Timers)
	assert.Equal(t, CurrentSchemaVersion, r.Settings.SchemaVersion)
}

func TestRegistryLoadNormalizesUsers(t *testing.T) {
	s := newMemStore()
	// An older users document: no cooldown maps, no embedded ID.
	require.NoError(t, s.Save(context.Background(), DocUsers, map[string]*models.User{
		"u1": {Name: "alice"},
	}))

	r := New(s)
	require.NoError(t, r.Load(context.Background()))

	u := r.User("u1")
	require.NotNil(t, u)
	assert.Equal(t, "u1", u.ID)
	assert.NotNil(t, u.Cooldowns)
	assert.NotNil(t, u.DailyCooldowns)
	assert.NotNil(t, u.Buffs)
}

func TestRegistryLoadDegradesCorruptDocument(t *testing.T) {
	s := newMemStore()
	s.docs[DocPayouts] = []byte(`{"not valid`)
	require.NoError(t, s.Save(context.Background(), DocUsers, map[string]*models.User{
		"u1": {ID: "u1", Name: "alice"},
	}))

	r := New(s)
	require.NoError(t, r.Load(context.Background()))

	// Corrupt payouts document falls back to empty; the rest still loads.
	assert.Empty(t, r.Payouts)
	assert.NotNil(t, r.User("u1"))
}

func TestRegistrySeedCatalogs(t *testing.T) {
	s := newMemStore()
	r := New(s)
	require.NoError(t, r.Load(context.Background()))

	clans := map[string]*models.Clan{"uchiha": {ID: "uchiha", Name: "Uchiha"}}
	abilities := map[string]*models.Ability{"mugen": {ID: "mugen", Name: "Mugen"}}
	shop := &models.ShopCatalog{Categories: map[string]*models.ShopCategory{
		"business": {ID: "business", Name: "Business"},
	}}

	require.NoError(t, r.SeedCatalogs(context.Background(), clans, abilities, shop))
	assert.NotNil(t, r.Clan("uchiha"))
	assert.NotNil(t, r.Ability("mugen"))
	assert.Contains(t, s.docs, DocClans)

	// Seeding again with different content must not overwrite.
	other := map[string]*models.Clan{"hyuga": {ID: "hyuga", Name: "Hyuga"}}
	require.NoError(t, r.SeedCatalogs(context.Background(), other, nil, nil))
	assert.NotNil(t, r.Clan("uchiha"))
	assert.Nil(t, r.Clan("hyuga"))
}

func TestRegistrySaveManyRoundTrip(t *testing.T) {
	s := newMemStore()
	r := New(s)
	require.NoError(t, r.Load(context.Background()))

	r.Lock()
	r.Users["u1"] = &models.User{ID: "u1", Name: "alice", Balance: 42,
		Cooldowns: map[string]int64{}, DailyCooldowns: map[string]string{}, Buffs: map[string]int64{}}
	r.Payouts.Arm("u1", "bakery", 1000)
	require.NoError(t, r.SaveMany(context.Background(), DocUsers, DocPayouts))
	r.Unlock()

	r2 := New(s)
	require.NoError(t, r2.Load(context.Background()))
	require.NotNil(t, r2.User("u1"))
	assert.Equal(t, int64(42), r2.User("u1").Balance)
	assert.Equal(t, int64(1000), r2.Payouts["u1"]["bakery"])
}
