package tourney

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// The MembershipResolver maps players to provinces. Implementations return ErrMembershipNotReady
// while their backing data is unavailable; callers retry later instead of failing for good.
type MembershipResolver interface {
	ListGroups(ctx context.Context) ([]string, error)

	MembersOf(ctx context.Context, groupID string) ([]string, error)

	// GroupOf reports the province of a player, ok is false for players without one.
	GroupOf(ctx context.Context, playerID string) (groupID string, ok bool, err error)
}

// StaticMembership serves a fixed province table, typically read from a YAML file.
type StaticMembership struct {
	mu     sync.RWMutex
	ready  bool
	groups map[string][]string
	index  map[string]string
}

type staticMembershipFile struct {
	Provinces map[string][]string `yaml:"provinces"`
}

func NewStaticMembership(groups map[string][]string) *StaticMembership {
	m := &StaticMembership{}
	m.Replace(groups)
	return m
}

// NewPendingMembership returns a resolver that reports ErrMembershipNotReady until Replace is called.
func NewPendingMembership() *StaticMembership {
	return &StaticMembership{}
}

// ParseStaticMembership decodes a `provinces: {group: [players]}` YAML document.
func ParseStaticMembership(data []byte) (*StaticMembership, error) {
	file := &staticMembershipFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("%w: provinces file: %v", ErrBadInput, err)
	}
	return NewStaticMembership(file.Provinces), nil
}

// Replace swaps the whole table and marks the resolver ready. A player listed under
// several groups belongs to the first one in sorted order.
func (m *StaticMembership) Replace(groups map[string][]string) {
	copied := make(map[string][]string, len(groups))
	index := make(map[string]string)
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		members := append([]string(nil), groups[id]...)
		copied[id] = members
		for _, playerID := range members {
			if _, ok := index[playerID]; !ok {
				index[playerID] = id
			}
		}
	}

	m.mu.Lock()
	m.groups = copied
	m.index = index
	m.ready = true
	m.mu.Unlock()
}

func (m *StaticMembership) ListGroups(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, ErrMembershipNotReady
	}
	ids := make([]string, 0, len(m.groups))
	for id := range m.groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *StaticMembership) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return nil, ErrMembershipNotReady
	}
	return append([]string(nil), m.groups[groupID]...), nil
}

func (m *StaticMembership) GroupOf(ctx context.Context, playerID string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.ready {
		return "", false, ErrMembershipNotReady
	}
	groupID, ok := m.index[playerID]
	return groupID, ok, nil
}
