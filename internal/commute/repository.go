package commute

import "context"

// Repository looks up commute plans.
type Repository interface {
	// Plan returns the descriptors for user at the given location.
	// User names match case-insensitively. Returns ErrUnknownUser for
	// users without plans.
	Plan(ctx context.Context, user string, atHome bool) (*Plan, error)

	// Save replaces a user's plans.
	Save(ctx context.Context, user string, plans UserPlans) error
}
