package commute_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/transit"
)

func TestValidatePlan(t *testing.T) {
	tests := []struct {
		name    string
		plan    []commute.Descriptor
		wantErr bool
	}{
		{name: "empty plan"},
		{
			name: "independent legs",
			plan: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeBus},
				{Order: 1, Mode: transit.ModeTube},
			},
		},
		{
			name: "valid dependency",
			plan: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeTrain},
				{Order: 1, Mode: transit.ModeTrain, DependsOn: intPtr(0), BufferMinutes: 10},
			},
		},
		{
			name: "duplicate order",
			plan: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeBus},
				{Order: 0, Mode: transit.ModeTube},
			},
			wantErr: true,
		},
		{
			name:    "unknown mode",
			plan:    []commute.Descriptor{{Order: 0, Mode: "ferry"}},
			wantErr: true,
		},
		{
			name:    "missing prerequisite",
			plan:    []commute.Descriptor{{Order: 1, Mode: transit.ModeTrain, DependsOn: intPtr(0)}},
			wantErr: true,
		},
		{
			name:    "self dependency",
			plan:    []commute.Descriptor{{Order: 0, Mode: transit.ModeTrain, DependsOn: intPtr(0)}},
			wantErr: true,
		},
		{
			name: "cycle",
			plan: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeTrain, DependsOn: intPtr(1)},
				{Order: 1, Mode: transit.ModeTrain, DependsOn: intPtr(0)},
			},
			wantErr: true,
		},
		{
			name: "dependency on a bus",
			plan: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeBus},
				{Order: 1, Mode: transit.ModeTrain, DependsOn: intPtr(0)},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := commute.ValidatePlan(tt.plan)
			if tt.wantErr {
				assert.ErrorIs(t, err, commute.ErrInvalidPlan)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateUserPlans_DuplicateUserIgnoringCase(t *testing.T) {
	err := commute.ValidateUserPlans(map[string]commute.UserPlans{"JP": {}, "jp": {}})
	assert.ErrorIs(t, err, commute.ErrInvalidPlan)
}

func TestInMemoryRepository(t *testing.T) {
	repo, err := commute.NewInMemoryRepository(testPlans())
	require.NoError(t, err)

	plan, err := repo.Plan(context.Background(), "FRAN", true)
	require.NoError(t, err)
	assert.Equal(t, "Fran", plan.User)
	assert.Len(t, plan.Descriptors, 4)

	plan, err = repo.Plan(context.Background(), "fran", false)
	require.NoError(t, err)
	assert.Empty(t, plan.Descriptors)

	_, err = repo.Plan(context.Background(), "nobody", true)
	assert.ErrorIs(t, err, commute.ErrUnknownUser)
}

func TestInMemoryRepository_Save(t *testing.T) {
	repo, err := commute.NewInMemoryRepository(nil)
	require.NoError(t, err)

	err = repo.Save(context.Background(), "Alex", commute.UserPlans{
		Away: []commute.Descriptor{{Order: 0, Mode: transit.ModeTube, Params: commute.Params{Line: "victoria"}}},
	})
	require.NoError(t, err)

	plan, err := repo.Plan(context.Background(), "alex", false)
	require.NoError(t, err)
	require.Len(t, plan.Descriptors, 1)
	assert.Equal(t, "victoria", plan.Descriptors[0].Params.Line)

	err = repo.Save(context.Background(), "Alex", commute.UserPlans{
		Home: []commute.Descriptor{{Order: 0, Mode: "ferry"}},
	})
	assert.ErrorIs(t, err, commute.ErrInvalidPlan)
}

func TestInMemoryRepository_RejectsInvalidPlans(t *testing.T) {
	_, err := commute.NewInMemoryRepository(map[string]commute.UserPlans{
		"JP": {Home: []commute.Descriptor{
			{Order: 0, Mode: transit.ModeTrain, DependsOn: intPtr(3)},
		}},
	})
	assert.ErrorIs(t, err, commute.ErrInvalidPlan)
}
