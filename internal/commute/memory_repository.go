package commute

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryRepository serves plans loaded from configuration.
type InMemoryRepository struct {
	mu    sync.RWMutex
	users map[string]userEntry
}

type userEntry struct {
	name  string
	plans UserPlans
}

// NewInMemoryRepository creates a repository from validated plans.
func NewInMemoryRepository(plans map[string]UserPlans) (*InMemoryRepository, error) {
	if err := ValidateUserPlans(plans); err != nil {
		return nil, err
	}

	r := &InMemoryRepository{users: make(map[string]userEntry, len(plans))}
	for user, p := range plans {
		r.users[normalizeUser(user)] = userEntry{name: user, plans: clonePlans(p)}
	}
	return r, nil
}

// Plan returns the descriptors for user at the given location.
func (r *InMemoryRepository) Plan(_ context.Context, user string, atHome bool) (*Plan, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.users[normalizeUser(user)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, user)
	}

	return &Plan{
		User:        entry.name,
		AtHome:      atHome,
		Descriptors: append([]Descriptor(nil), entry.plans.For(atHome)...),
	}, nil
}

// Save replaces a user's plans.
func (r *InMemoryRepository) Save(_ context.Context, user string, plans UserPlans) error {
	if err := ValidateUserPlans(map[string]UserPlans{user: plans}); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.users[normalizeUser(user)] = userEntry{name: user, plans: clonePlans(plans)}
	return nil
}

func clonePlans(p UserPlans) UserPlans {
	return UserPlans{
		Home: append([]Descriptor(nil), p.Home...),
		Away: append([]Descriptor(nil), p.Away...),
	}
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
