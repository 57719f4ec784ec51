package commute_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/geofence"
	"github.com/alfredhome/alfred/internal/transit"
	"github.com/alfredhome/alfred/pkg/geo"
)

var fixedNow = time.Date(2026, 10, 18, 7, 30, 0, 0, time.UTC)

// fakeLegs records every call and answers from canned legs. Delay lets a
// test reverse completion order relative to plan order.
type fakeLegs struct {
	tubes  map[string]*transit.Leg
	buses  map[string]*transit.Leg
	trains map[string]*transit.Leg
	errs   map[string]error
	delay  map[string]time.Duration

	calls atomic.Int32
	mu    sync.Mutex
	log   []string
	bus   []bool
	train []transit.TrainQuery
}

func (f *fakeLegs) record(key string) {
	f.calls.Add(1)
	if d := f.delay[key]; d > 0 {
		time.Sleep(d)
	}
	f.mu.Lock()
	f.log = append(f.log, key)
	f.mu.Unlock()
}

func (f *fakeLegs) answer(key string, legs map[string]*transit.Leg, fallback transit.Leg) (*transit.Leg, error) {
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	if leg, ok := legs[key]; ok {
		cpy := *leg
		return &cpy, nil
	}
	return &fallback, nil
}

func (f *fakeLegs) TubeStatus(_ context.Context, line string) (*transit.Leg, error) {
	key := "tube:" + line
	f.record(key)
	return f.answer(key, f.tubes, transit.Leg{Mode: transit.ModeTube, Line: line})
}

func (f *fakeLegs) NextTube(_ context.Context, line, startID string) (*transit.Leg, error) {
	key := "tube:" + line + "@" + startID
	f.record(key)
	return f.answer(key, f.tubes, transit.Leg{Mode: transit.ModeTube, Line: line})
}

func (f *fakeLegs) NextBus(_ context.Context, route string, atHome bool) (*transit.Leg, error) {
	key := "bus:" + route
	f.mu.Lock()
	f.bus = append(f.bus, atHome)
	f.mu.Unlock()
	f.record(key)
	return f.answer(key, f.buses, transit.Leg{Mode: transit.ModeBus, Line: route})
}

func (f *fakeLegs) NextTrain(_ context.Context, q transit.TrainQuery) (*transit.Leg, error) {
	key := "train:" + q.Route + q.StartID + "-" + q.Destination
	f.mu.Lock()
	f.train = append(f.train, q)
	f.mu.Unlock()
	f.record(key)
	return f.answer(key, f.trains, transit.Leg{Mode: transit.ModeTrain})
}

func intPtr(i int) *int { return &i }

func testPlans() map[string]commute.UserPlans {
	return map[string]commute.UserPlans{
		"JP": {
			Home: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeTrain, Params: commute.Params{Route: "CHX"}},
				{Order: 1, Mode: transit.ModeTube, Params: commute.Params{Line: "northern"}},
				{Order: 2, Mode: transit.ModeBus, Params: commute.Params{Route: "486"}},
				{Order: 3, Mode: transit.ModeTube, Params: commute.Params{Line: "jubilee"}},
				{Order: 4, Mode: transit.ModeTube, Params: commute.Params{Line: "northern"}},
			},
			Away: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeBus, Params: commute.Params{Route: "486"}},
				{Order: 1, Mode: transit.ModeBus, Params: commute.Params{Route: "161"}},
			},
		},
		"Fran": {
			Home: []commute.Descriptor{
				{Order: 0, Mode: transit.ModeTrain, Params: commute.Params{StartID: "CTN", Destination: "LBG"}},
				{Order: 1, Mode: transit.ModeBus, Params: commute.Params{Route: "9"}},
				{Order: 2, Mode: transit.ModeTrain, Params: commute.Params{StartID: "LBG", Destination: "CST"}, DependsOn: intPtr(0), BufferMinutes: 5},
				{Order: 3, Mode: transit.ModeTube, Params: commute.Params{Line: "district"}},
			},
		},
	}
}

func newPlanner(t *testing.T, legs *fakeLegs) *commute.Planner {
	t.Helper()
	repo, err := commute.NewInMemoryRepository(testPlans())
	require.NoError(t, err)

	return commute.NewPlanner(commute.PlannerConfig{
		Repository: repo,
		Legs:       legs,
		Locator: geofence.NewEvaluator([]geofence.Region{
			{Name: "home", Center: geo.Point{Lat: 51.4826, Lon: 0.0077}, RadiusMeters: 250},
		}),
		Now:    func() time.Time { return fixedNow },
		Logger: zerolog.Nop(),
	})
}

func TestPlanner_JPAtHome(t *testing.T) {
	legs := &fakeLegs{
		tubes: map[string]*transit.Leg{
			"tube:jubilee": {Mode: transit.ModeTube, Line: "Jubilee", Disruption: true, DisruptionDetail: "Minor delays"},
		},
	}

	result, err := newPlanner(t, legs).GetCommute(context.Background(), "jp", "", "")
	require.NoError(t, err)

	assert.Equal(t, "JP", result.User)
	assert.True(t, result.AtHome)
	assert.True(t, result.AnyDisruptions)
	require.Len(t, result.CommuteResults, 5)

	modes := make([]transit.Mode, 0, 5)
	for i, leg := range result.CommuteResults {
		assert.Equal(t, i, leg.Order)
		modes = append(modes, leg.Mode)
	}
	assert.Equal(t, []transit.Mode{transit.ModeTrain, transit.ModeTube, transit.ModeBus, transit.ModeTube, transit.ModeTube}, modes)
	assert.Equal(t, "Jubilee", result.CommuteResults[3].Line)
	assert.Equal(t, []bool{true}, legs.bus)
	assert.Equal(t, int32(5), legs.calls.Load())
}

func TestPlanner_JPAwaySelectsBusBranch(t *testing.T) {
	legs := &fakeLegs{}

	result, err := newPlanner(t, legs).GetCommute(context.Background(), "JP", "51.5054", "-0.1235")
	require.NoError(t, err)

	assert.False(t, result.AtHome)
	assert.False(t, result.AnyDisruptions)
	require.Len(t, result.CommuteResults, 2)
	assert.Equal(t, "486", result.CommuteResults[0].Line)
	assert.Equal(t, "161", result.CommuteResults[1].Line)
	assert.Equal(t, []bool{false, false}, legs.bus)
}

func TestPlanner_OrderIndependentOfCompletion(t *testing.T) {
	legs := &fakeLegs{delay: map[string]time.Duration{
		"train:CHX-":    60 * time.Millisecond,
		"tube:northern": 40 * time.Millisecond,
		"bus:486":       20 * time.Millisecond,
		"tube:jubilee":  0,
	}}

	result, err := newPlanner(t, legs).GetCommute(context.Background(), "JP", "", "")
	require.NoError(t, err)

	for i, leg := range result.CommuteResults {
		assert.Equal(t, i, leg.Order)
	}
	assert.Equal(t, "train:CHX-", legs.log[len(legs.log)-1], "slowest leg finishes last")
}

func TestPlanner_DependentTrainUsesPrerequisiteArrival(t *testing.T) {
	legs := &fakeLegs{
		trains: map[string]*transit.Leg{
			"train:CTN-LBG": {
				Mode: transit.ModeTrain, Disruption: true,
				ArrivesAt: fixedNow.Add(40 * time.Minute),
			},
		},
		delay: map[string]time.Duration{"train:CTN-LBG": 30 * time.Millisecond},
	}

	result, err := newPlanner(t, legs).GetCommute(context.Background(), "fran", "", "")
	require.NoError(t, err)

	require.Len(t, result.CommuteResults, 4)
	assert.True(t, result.AnyDisruptions, "prerequisite disruption is counted")

	require.Len(t, legs.train, 2)
	var dependent transit.TrainQuery
	for _, q := range legs.train {
		if q.StartID == "LBG" {
			dependent = q
		}
	}
	assert.Equal(t, 45*time.Minute, dependent.DepartureOffset)

	prereqAt, depAt := -1, -1
	for i, key := range legs.log {
		switch key {
		case "train:CTN-LBG":
			prereqAt = i
		case "train:LBG-CST":
			depAt = i
		}
	}
	assert.Less(t, prereqAt, depAt, "dependent leg runs after its prerequisite")
}

func TestPlanner_DependentTrainWithoutArrivalUsesBuffer(t *testing.T) {
	legs := &fakeLegs{trains: map[string]*transit.Leg{
		"train:CTN-LBG": {Mode: transit.ModeTrain, Degraded: true, Disruption: true},
	}}

	_, err := newPlanner(t, legs).GetCommute(context.Background(), "Fran", "", "")
	require.NoError(t, err)

	for _, q := range legs.train {
		if q.StartID == "LBG" {
			assert.Equal(t, 5*time.Minute, q.DepartureOffset)
		}
	}
}

func TestPlanner_PrerequisiteFailureFailsCommute(t *testing.T) {
	legs := &fakeLegs{errs: map[string]error{
		"train:CTN-LBG": fmt.Errorf("%w: boom", transit.ErrProviderUnavailable),
	}}

	result, err := newPlanner(t, legs).GetCommute(context.Background(), "Fran", "", "")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, transit.ErrProviderUnavailable)

	for _, q := range legs.train {
		assert.NotEqual(t, "LBG", q.StartID, "dependent leg is never dispatched")
	}
}

func TestPlanner_LegFailureFailsFast(t *testing.T) {
	legs := &fakeLegs{errs: map[string]error{
		"bus:161": fmt.Errorf("%w: tfl down", transit.ErrProviderUnavailable),
	}}

	_, err := newPlanner(t, legs).GetCommute(context.Background(), "JP", "51.5054", "-0.1235")
	assert.ErrorIs(t, err, transit.ErrProviderUnavailable)
}

func TestPlanner_EmptyPlanIsSuccess(t *testing.T) {
	legs := &fakeLegs{}

	result, err := newPlanner(t, legs).GetCommute(context.Background(), "Fran", "51.5054", "-0.1235")
	require.NoError(t, err)

	assert.False(t, result.AnyDisruptions)
	assert.Empty(t, result.CommuteResults)
	assert.NotNil(t, result.CommuteResults)
	assert.Zero(t, legs.calls.Load())
}

func TestPlanner_RejectsWithoutUpstreamCalls(t *testing.T) {
	tests := []struct {
		name  string
		user  string
		lat   string
		lon   string
		check func(t *testing.T, err error)
	}{
		{
			name: "missing user",
			check: func(t *testing.T, err error) {
				var vErr *transit.ValidationError
				require.ErrorAs(t, err, &vErr)
				assert.Equal(t, "user", vErr.Field)
			},
		},
		{
			name: "unknown user",
			user: "Bob",
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, commute.ErrUnknownUser)
			},
		},
		{
			name: "half a coordinate",
			user: "JP",
			lat:  "51.5",
			check: func(t *testing.T, err error) {
				var vErr *transit.ValidationError
				assert.ErrorAs(t, err, &vErr)
			},
		},
		{
			name: "garbage coordinate",
			user: "JP",
			lat:  "north",
			lon:  "west",
			check: func(t *testing.T, err error) {
				var vErr *transit.ValidationError
				assert.ErrorAs(t, err, &vErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legs := &fakeLegs{}
			result, err := newPlanner(t, legs).GetCommute(context.Background(), tt.user, tt.lat, tt.lon)
			assert.Nil(t, result)
			tt.check(t, err)
			assert.Zero(t, legs.calls.Load())
		})
	}
}

func TestPlanner_BusDirectionOverride(t *testing.T) {
	away := false
	repo, err := commute.NewInMemoryRepository(map[string]commute.UserPlans{
		"sam": {Home: []commute.Descriptor{
			{Order: 0, Mode: transit.ModeBus, Params: commute.Params{Route: "486", AtHome: &away}},
			{Order: 1, Mode: transit.ModeTube, Params: commute.Params{Line: "northern", StartID: "940GZZLUKSX"}},
		}},
	})
	require.NoError(t, err)

	legs := &fakeLegs{}
	planner := commute.NewPlanner(commute.PlannerConfig{
		Repository: repo,
		Legs:       legs,
		Locator:    geofence.NewEvaluator(nil),
		Logger:     zerolog.Nop(),
	})

	_, err = planner.GetCommute(context.Background(), "Sam", "", "")
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, legs.bus)
	assert.Contains(t, legs.log, "tube:northern@940GZZLUKSX")
}

func TestPlanner_RepositoryError(t *testing.T) {
	planner := commute.NewPlanner(commute.PlannerConfig{
		Repository: failingRepo{},
		Legs:       &fakeLegs{},
		Locator:    geofence.NewEvaluator(nil),
		Logger:     zerolog.Nop(),
	})

	_, err := planner.GetCommute(context.Background(), "JP", "", "")
	assert.EqualError(t, err, "database unavailable")
}

type failingRepo struct{}

func (failingRepo) Plan(context.Context, string, bool) (*commute.Plan, error) {
	return nil, errors.New("database unavailable")
}

func (failingRepo) Save(context.Context, string, commute.UserPlans) error {
	return errors.New("database unavailable")
}
