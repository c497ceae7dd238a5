package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/alfredjeanlab/planetpulse/internal/model"
	"github.com/alfredjeanlab/planetpulse/internal/store"
)

// mockStore is a minimal in-memory planet store for catalog tests.
type mockStore struct {
	store.Store
	planets map[int64]*model.Planet
	nextID  int64
	reads   int
	err     error
}

func newMockStore(planets ...*model.Planet) *mockStore {
	m := &mockStore{planets: make(map[int64]*model.Planet)}
	for _, p := range planets {
		m.nextID++
		p.ID = m.nextID
		m.planets[p.ID] = p
	}
	return m
}

func (m *mockStore) CreatePlanet(_ context.Context, p *model.Planet) error {
	if m.err != nil {
		return m.err
	}
	for _, existing := range m.planets {
		if existing.Name == p.Name {
			return store.ErrDuplicate
		}
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.planets[p.ID] = &cp
	return nil
}

func (m *mockStore) GetPlanet(_ context.Context, id int64) (*model.Planet, error) {
	m.reads++
	p, ok := m.planets[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockStore) ListPlanets(_ context.Context) ([]*model.Planet, error) {
	m.reads++
	if m.err != nil {
		return nil, m.err
	}
	result := []*model.Planet{}
	for _, p := range m.planets {
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *mockStore) UpdatePlanet(_ context.Context, p *model.Planet) error {
	if _, ok := m.planets[p.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	m.planets[p.ID] = &cp
	return nil
}

func (m *mockStore) DeletePlanet(_ context.Context, id int64) error {
	if _, ok := m.planets[id]; !ok {
		return store.ErrNotFound
	}
	delete(m.planets, id)
	return nil
}

func (m *mockStore) UpsertPlanet(_ context.Context, p *model.Planet) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for id, existing := range m.planets {
		if existing.Name == p.Name {
			p.ID = id
			cp := *p
			m.planets[id] = &cp
			return false, nil
		}
	}
	m.nextID++
	p.ID = m.nextID
	cp := *p
	m.planets[p.ID] = &cp
	return true, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

var errBoom = errors.New("boom")
