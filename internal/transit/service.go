package transit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// LineProvider serves line status, stop arrivals and journey plans (TfL).
type LineProvider interface {
	// LineDisruptions returns the disruption records of a line; empty when clear.
	LineDisruptions(ctx context.Context, line string) ([]LineDisruption, error)

	// LineStatus returns the detailed status of a line or bus route.
	LineStatus(ctx context.Context, route string) ([]LineStatus, error)

	// Arrivals returns predicted arrivals at a stop point.
	Arrivals(ctx context.Context, stopID, mode, line string) ([]Arrival, error)

	// Journey returns the first planned journey, or nil when none was found.
	Journey(ctx context.Context, from, to string) (*PlannedJourney, error)

	// Name returns the provider name for logging.
	Name() string
}

// RailProvider serves live departure boards and service timetables (TransportAPI).
type RailProvider interface {
	// LiveDepartures returns the departure board of a station.
	LiveDepartures(ctx context.Context, q BoardQuery) ([]TrainDeparture, error)

	// ServiceTimetable follows a timetable reference from a departure board.
	ServiceTimetable(ctx context.Context, timetableURL string) ([]TimetableStop, error)

	// Name returns the provider name for logging.
	Name() string
}

// ServiceConfig holds configuration for the transit service.
type ServiceConfig struct {
	// Lines is the TfL-style provider.
	Lines LineProvider

	// Rail is the national rail provider.
	Rail RailProvider

	// BusRoutes lists the supported bus routes and their stop points.
	BusRoutes map[string]BusStops

	// TrainRoutes lists the fixed departure board routes, keyed by upper-case name.
	TrainRoutes map[string]TrainRoute

	// Location renders clock times (default: Europe/London).
	Location *time.Location

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger for service operations.
	Logger zerolog.Logger
}

// Service normalizes upstream transport data into legs.
type Service struct {
	lines       LineProvider
	rail        RailProvider
	busRoutes   map[string]BusStops
	trainRoutes map[string]TrainRoute
	location    *time.Location
	now         func() time.Time
	logger      zerolog.Logger
}

// NewService creates a new transit service.
func NewService(cfg ServiceConfig) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = LondonLocation()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	trainRoutes := make(map[string]TrainRoute, len(cfg.TrainRoutes))
	for name, r := range cfg.TrainRoutes {
		trainRoutes[strings.ToUpper(name)] = r
	}

	return &Service{
		lines:       cfg.Lines,
		rail:        cfg.Rail,
		busRoutes:   cfg.BusRoutes,
		trainRoutes: trainRoutes,
		location:    loc,
		now:         now,
		logger:      cfg.Logger.With().Str("component", "transit").Logger(),
	}
}

// LondonLocation returns Europe/London, or UTC when tzdata is unavailable.
func LondonLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/London")
	if err != nil {
		return time.UTC
	}
	return loc
}

// TubeStatus reports whether a tube line is disrupted.
func (s *Service) TubeStatus(ctx context.Context, line string) (*Leg, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, &ValidationError{Field: "line"}
	}

	records, err := s.lines.LineDisruptions(ctx, line)
	if err != nil {
		return nil, s.unavailable(err, "tube status")
	}

	leg := &Leg{Mode: ModeTube, Line: line}
	if len(records) > 0 {
		leg.Disruption = true
		leg.DisruptionDetail = records[0].Description
		if records[0].Name != "" {
			leg.Line = records[0].Name
		}
	}

	s.logger.Debug().Str("line", leg.Line).Bool("disruption", leg.Disruption).Msg("tube status")
	return leg, nil
}

// BusStatus reports whether a bus route is disrupted.
func (s *Service) BusStatus(ctx context.Context, route string) (*Leg, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil, &ValidationError{Field: "route"}
	}

	statuses, err := s.lines.LineStatus(ctx, route)
	if err != nil {
		return nil, s.unavailable(err, "bus status")
	}

	leg := &Leg{Mode: ModeBus, Line: route}
	if len(statuses) > 0 {
		if statuses[0].Name != "" {
			leg.Line = statuses[0].Name
		}
		if len(statuses[0].Disruptions) > 0 {
			leg.Disruption = true
			leg.DisruptionDetail = strings.Join(statuses[0].Disruptions, "; ")
		}
	}

	s.logger.Debug().Str("route", leg.Line).Bool("disruption", leg.Disruption).Msg("bus status")
	return leg, nil
}

// NextBus returns the next two arrivals of a supported bus route at its
// configured stop, together with the route's disruption status.
func (s *Service) NextBus(ctx context.Context, route string, atHome bool) (*Leg, error) {
	route = strings.TrimSpace(route)
	if route == "" {
		return nil, &ValidationError{Field: "route"}
	}

	stops, ok := s.busRoutes[route]
	if !ok {
		s.logger.Debug().Str("route", route).Msg("bus route not supported")
		return nil, fmt.Errorf("%w: bus route %s", ErrUnsupportedRoute, route)
	}
	stop := stops.Stop(atHome)

	var (
		status   *Leg
		arrivals []Arrival
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		status, err = s.BusStatus(ctx, route)
		return err
	})
	g.Go(func() error {
		var err error
		arrivals, err = s.lines.Arrivals(ctx, stop, string(ModeBus), route)
		if err != nil {
			return s.unavailable(err, "bus arrivals")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.arrivalLeg(ModeBus, route, status, arrivals), nil
}

// NextTube returns the next two arrivals of a tube line at a station,
// together with the line's disruption status.
func (s *Service) NextTube(ctx context.Context, line, startID string) (*Leg, error) {
	line = LineID(line)
	startID = strings.TrimSpace(startID)
	if line == "" {
		return nil, &ValidationError{Field: "line"}
	}
	if startID == "" {
		return nil, &ValidationError{Field: "startID"}
	}

	var (
		status   *Leg
		arrivals []Arrival
		g        errgroup.Group
	)
	g.Go(func() error {
		var err error
		status, err = s.TubeStatus(ctx, line)
		return err
	})
	g.Go(func() error {
		var err error
		arrivals, err = s.lines.Arrivals(ctx, startID, string(ModeTube), "")
		if err != nil {
			return s.unavailable(err, "tube arrivals")
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.arrivalLeg(ModeTube, line, status, arrivals), nil
}

// arrivalLeg keeps the arrivals of lineID, ranks them by time to station and
// folds in the status leg. No matching arrivals yields a degraded leg.
func (s *Service) arrivalLeg(mode Mode, lineID string, status *Leg, arrivals []Arrival) *Leg {
	matching := make([]Arrival, 0, len(arrivals))
	for _, a := range arrivals {
		if LineID(a.LineID) == LineID(lineID) {
			matching = append(matching, a)
		}
	}
	sort.SliceStable(matching, func(i, j int) bool {
		return matching[i].TimeToStation < matching[j].TimeToStation
	})

	if len(matching) == 0 {
		s.logger.Warn().Str("mode", string(mode)).Str("line", lineID).Msg("no arrivals returned from TfL")
		return &Leg{
			Mode:             mode,
			Line:             lineID,
			Disruption:       status.Disruption,
			DisruptionDetail: NotAvailable,
			FirstTime:        NotAvailable,
			SecondTime:       NotAvailable,
			Degraded:         true,
			Error:            "No data was returned from the call to the TfL API",
		}
	}

	now := s.clock()
	first := matching[0]
	leg := &Leg{
		Mode:             mode,
		Line:             first.LineName,
		Disruption:       status.Disruption,
		DisruptionDetail: status.DisruptionDetail,
		Destination:      first.DestinationName,
		Platform:         first.PlatformName,
		FirstTime:        secondsFrom(now, first.TimeToStation),
		SecondTime:       NotAvailable,
	}
	if leg.Line == "" {
		leg.Line = status.Line
	}
	if len(matching) > 1 {
		leg.SecondTime = secondsFrom(now, matching[1].TimeToStation)
	}
	return leg
}

// LineID converts a line name to TfL's line id form: "Hammersmith & City"
// becomes "hammersmith-city" and "Elizabeth line" becomes "elizabeth".
func LineID(name string) string {
	id := strings.ToLower(strings.TrimSpace(name))
	id = strings.TrimSuffix(id, " line")
	id = strings.ReplaceAll(id, "&", " ")
	return strings.Join(strings.Fields(id), "-")
}

func (s *Service) unavailable(err error, op string) error {
	s.logger.Error().Err(err).Str("operation", op).Msg("upstream fetch failed")
	return fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, op, err)
}
