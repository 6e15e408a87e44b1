package service

import (
	"context"
	"encoding/json"
	"testing"

	"clanrpg/models"
	"clanrpg/registry"

	"github.com/stretchr/testify/require"
)

// memStore is an in-memory registry.Store for tests.
type memStore struct {
	docs  map[string][]byte
	fail  bool
	saves int
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string][]byte)}
}

func (m *memStore) Load(_ context.Context, name string, dest any) (bool, error) {
	data, ok := m.docs[name]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(data, dest)
}

func (m *memStore) Save(_ context.Context, name string, value any) error {
	if m.fail {
		return context.DeadlineExceeded
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.docs[name] = data
	m.saves++
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

func newTestRegistry(t *testing.T) (*registry.Registry, *memStore) {
	t.Helper()
	s := newMemStore()
	reg := registry.New(s)
	require.NoError(t, reg.Load(context.Background()))
	return reg, s
}

func addUser(reg *registry.Registry, u *models.User) *models.User {
	if u.Cooldowns == nil {
		u.Cooldowns = make(map[string]int64)
	}
	if u.DailyCooldowns == nil {
		u.DailyCooldowns = make(map[string]string)
	}
	if u.Buffs == nil {
		u.Buffs = make(map[string]int64)
	}
	reg.Users[u.ID] = u
	return u
}
