// Package commute composes transport legs into per-user commute summaries.
package commute

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/alfredhome/alfred/internal/transit"
)

// Commute errors.
var (
	// ErrUnknownUser is returned for users without a configured commute.
	ErrUnknownUser = errors.New("user is not supported")

	// ErrInvalidPlan is returned when a plan graph fails validation.
	ErrInvalidPlan = errors.New("invalid commute plan")
)

// Params are the mode-specific query parameters of a descriptor.
type Params struct {
	Route               string `yaml:"route,omitempty" json:"route,omitempty"`
	Line                string `yaml:"line,omitempty" json:"line,omitempty"`
	StartID             string `yaml:"startID,omitempty" json:"startID,omitempty"`
	Destination         string `yaml:"destination,omitempty" json:"destination,omitempty"`
	DepartureTimeOffset int    `yaml:"departureTimeOffset,omitempty" json:"departureTimeOffset,omitempty" validate:"gte=0"`
	DisruptionOverride  bool   `yaml:"disruptionOverride,omitempty" json:"disruptionOverride,omitempty"`

	// AtHome pins the bus stop direction. Nil uses the location classification.
	AtHome *bool `yaml:"atHome,omitempty" json:"atHome,omitempty"`
}

// Descriptor is one leg-fetch in a commute plan.
type Descriptor struct {
	Order  int          `yaml:"order" json:"order" validate:"gte=0"`
	Mode   transit.Mode `yaml:"mode" json:"mode" validate:"required,oneof=tube bus train"`
	Params Params       `yaml:"params" json:"params"`

	// DependsOn is the order of a prerequisite train descriptor. The
	// dependent train departs no earlier than the prerequisite's arrival
	// plus BufferMinutes.
	DependsOn     *int `yaml:"dependsOn,omitempty" json:"dependsOn,omitempty"`
	BufferMinutes int  `yaml:"bufferMinutes,omitempty" json:"bufferMinutes,omitempty" validate:"gte=0"`
}

// UserPlans holds a user's plans for both locations.
type UserPlans struct {
	Home []Descriptor `yaml:"home" json:"home" validate:"dive"`
	Away []Descriptor `yaml:"away" json:"away" validate:"dive"`
}

// For returns the descriptors for the given location.
func (u UserPlans) For(atHome bool) []Descriptor {
	if atHome {
		return u.Home
	}
	return u.Away
}

// Plan is the descriptor list selected for one request.
type Plan struct {
	User        string
	AtHome      bool
	Descriptors []Descriptor
}

// Result is the aggregated commute.
type Result struct {
	User           string         `json:"user"`
	AtHome         bool           `json:"atHome"`
	AnyDisruptions bool           `json:"anyDisruptions"`
	CommuteResults []*transit.Leg `json:"commuteResults"`
}

// ValidatePlan checks a descriptor graph: orders are unique, modes are
// known, and every dependency names an existing train descriptor with a
// lower order, which rules out cycles.
func ValidatePlan(descriptors []Descriptor) error {
	byOrder := make(map[int]Descriptor, len(descriptors))
	for _, d := range descriptors {
		if !d.Mode.Valid() {
			return fmt.Errorf("%w: order %d has unknown mode %q", ErrInvalidPlan, d.Order, d.Mode)
		}
		if _, dup := byOrder[d.Order]; dup {
			return fmt.Errorf("%w: duplicate order %d", ErrInvalidPlan, d.Order)
		}
		byOrder[d.Order] = d
	}

	for _, d := range descriptors {
		if d.DependsOn == nil {
			continue
		}
		dep := *d.DependsOn
		prereq, ok := byOrder[dep]
		switch {
		case !ok:
			return fmt.Errorf("%w: order %d depends on missing order %d", ErrInvalidPlan, d.Order, dep)
		case dep >= d.Order:
			return fmt.Errorf("%w: order %d depends on later order %d", ErrInvalidPlan, d.Order, dep)
		case d.Mode != transit.ModeTrain || prereq.Mode != transit.ModeTrain:
			return fmt.Errorf("%w: order %d: dependencies link train legs only", ErrInvalidPlan, d.Order)
		}
	}
	return nil
}

// ValidateUserPlans validates both plans of every user.
func ValidateUserPlans(plans map[string]UserPlans) error {
	users := make([]string, 0, len(plans))
	for user := range plans {
		users = append(users, user)
	}
	sort.Strings(users)

	seen := make(map[string]bool, len(users))
	for _, user := range users {
		key := normalizeUser(user)
		if key == "" {
			return fmt.Errorf("%w: empty user name", ErrInvalidPlan)
		}
		if seen[key] {
			return fmt.Errorf("%w: user %s defined twice", ErrInvalidPlan, user)
		}
		seen[key] = true

		if err := ValidatePlan(plans[user].Home); err != nil {
			return fmt.Errorf("user %s home plan: %w", user, err)
		}
		if err := ValidatePlan(plans[user].Away); err != nil {
			return fmt.Errorf("user %s away plan: %w", user, err)
		}
	}
	return nil
}

func normalizeUser(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}
