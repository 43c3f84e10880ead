package persona

import "strings"

// Store exposes scenario retrieval for HTTP handlers.
type Store interface {
	List() []Scenario
	FindByID(id string) (Scenario, bool)
	ListByRole(role string) []Scenario
	Options() []ScenarioOption
}

// MemoryStore implements Store with an in-memory slice, suitable for local development.
type MemoryStore struct {
	items []Scenario
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied scenarios.
func NewMemoryStore(items []Scenario) *MemoryStore {
	return &MemoryStore{items: append([]Scenario(nil), items...)}
}

// List returns every scenario.
func (s *MemoryStore) List() []Scenario {
	return append([]Scenario(nil), s.items...)
}

// FindByID looks up a scenario by identifier.
func (s *MemoryStore) FindByID(id string) (Scenario, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Scenario{}, false
}

// ListByRole returns scenarios whose user role matches, case-insensitively.
func (s *MemoryStore) ListByRole(role string) []Scenario {
	role = strings.TrimSpace(role)
	var out []Scenario
	for _, item := range s.items {
		if strings.EqualFold(item.UserRole, role) {
			out = append(out, item)
		}
	}
	return out
}

// Options groups the catalog by user role, in first-seen order.
func (s *MemoryStore) Options() []ScenarioOption {
	index := make(map[string]int)
	var out []ScenarioOption
	for _, item := range s.items {
		key := strings.ToLower(item.UserRole)
		if i, ok := index[key]; ok {
			out[i].Count++
			continue
		}
		index[key] = len(out)
		out = append(out, ScenarioOption{
			Role:  item.UserRole,
			Label: strings.ToUpper(key[:1]) + key[1:],
			Count: 1,
		})
	}
	return out
}
