package transit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// maxDepartures is how many ranked trains a leg carries.
const maxDepartures = 2

// trainCandidate is a board entry with its resolved departure time.
type trainCandidate struct {
	TrainDeparture
	departs   time.Time
	known     bool
	status    string
	cancelled bool
}

// ClassifyTrainStatus normalizes an upstream train status. Cancelled and
// off-route trains are reported as "Cancelled" and disrupted.
func ClassifyTrainStatus(raw string) (string, bool) {
	status := strings.ToLower(strings.TrimSpace(raw))
	switch status {
	case "cancelled", "it is currently off route":
		return "Cancelled", true
	}
	return status, false
}

// NextTrain returns the next two trains for q.
//
// With q.Route set it reads a configured station board. Otherwise it reads
// the board at q.StartID for trains calling at q.Destination and follows each
// ranked train's timetable to resolve its arrival and journey time.
func (s *Service) NextTrain(ctx context.Context, q TrainQuery) (*Leg, error) {
	if strings.TrimSpace(q.Route) != "" {
		return s.nextTrainOnRoute(ctx, q)
	}

	start := strings.ToUpper(strings.TrimSpace(q.StartID))
	dest := strings.ToUpper(strings.TrimSpace(q.Destination))
	if start == "" {
		return nil, &ValidationError{Field: "startID"}
	}
	if dest == "" {
		return nil, &ValidationError{Field: "destination"}
	}
	if q.DepartureOffset < 0 {
		q.DepartureOffset = 0
	}

	board, err := s.rail.LiveDepartures(ctx, BoardQuery{Station: start, Destination: dest, Offset: q.DepartureOffset})
	if err != nil {
		return nil, s.unavailable(err, "train departures")
	}

	now := s.clock()
	candidates := s.candidates(now, board, "", q.DisruptionOverride)
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.known != b.known {
			return a.known
		}
		return a.departs.Before(b.departs)
	})
	if len(candidates) > maxDepartures {
		candidates = candidates[:maxDepartures]
	}

	departures := make([]Departure, len(candidates))
	var g errgroup.Group
	for i := range candidates {
		c := candidates[i]
		g.Go(func() error {
			stops, err := s.rail.ServiceTimetable(ctx, c.TimetableURL)
			if err != nil {
				return s.unavailable(err, "train timetable")
			}
			departures[i] = s.departureWithArrival(c, dest, stops)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return s.trainLeg(start, dest, departures), nil
}

func (s *Service) nextTrainOnRoute(ctx context.Context, q TrainQuery) (*Leg, error) {
	name := strings.ToUpper(strings.TrimSpace(q.Route))
	route, ok := s.trainRoutes[name]
	if !ok {
		s.logger.Debug().Str("route", name).Msg("train route not supported")
		return nil, fmt.Errorf("%w: train route %s", ErrUnsupportedRoute, name)
	}

	board, err := s.rail.LiveDepartures(ctx, BoardQuery{Station: route.From, Destination: route.Destination})
	if err != nil {
		return nil, s.unavailable(err, "train departures")
	}

	now := s.clock()
	candidates := s.candidates(now, board, route.Platform, q.DisruptionOverride)
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].BestArrivalEstimateMins < candidates[j].BestArrivalEstimateMins
	})
	if len(candidates) > maxDepartures {
		candidates = candidates[:maxDepartures]
	}

	departures := make([]Departure, 0, len(candidates))
	for _, c := range candidates {
		departures = append(departures, Departure{
			Destination:   c.DestinationName,
			Operator:      c.OperatorName,
			Platform:      c.Platform,
			DepartureTime: now.Add(time.Duration(c.BestArrivalEstimateMins) * time.Minute).Format(ClockLayout),
			Status:        c.status,
			Disruption:    c.cancelled,
		})
	}

	return s.trainLeg(route.From, route.Destination, departures), nil
}

// candidates filters a board by platform and, with override set, drops
// cancelled trains.
func (s *Service) candidates(now time.Time, board []TrainDeparture, platform string, override bool) []trainCandidate {
	out := make([]trainCandidate, 0, len(board))
	for _, d := range board {
		if platform != "" && d.Platform != platform {
			continue
		}

		status, cancelled := ClassifyTrainStatus(d.Status)
		if cancelled && override {
			continue
		}

		c := trainCandidate{TrainDeparture: d, status: status, cancelled: cancelled}
		departs := d.ExpectedDepartureTime
		if departs == "" {
			departs = d.AimedDepartureTime
		}
		c.departs, c.known = parseClock(now, departs)
		out = append(out, c)
	}
	return out
}

// departureWithArrival resolves arrival and journey time at dest from a timetable.
func (s *Service) departureWithArrival(c trainCandidate, dest string, stops []TimetableStop) Departure {
	d := Departure{
		Destination:   c.DestinationName,
		Operator:      c.OperatorName,
		Platform:      c.Platform,
		DepartureTime: NotAvailable,
		ArrivalTime:   NotAvailable,
		Duration:      NotAvailable,
		Status:        c.status,
		Disruption:    c.cancelled,
	}
	if c.known {
		d.DepartureTime = c.departs.Format(ClockLayout)
	}

	for _, stop := range stops {
		if !strings.EqualFold(stop.StationCode, dest) {
			continue
		}
		if !c.known {
			break
		}
		at, ok := arrivalAt(c, stop)
		if !ok {
			break
		}
		d.arrivesAt = at
		d.ArrivalTime = at.Format(ClockLayout)
		d.Duration = minutesText(at.Sub(c.departs))
		break
	}

	if d.arrivesAt.IsZero() {
		s.logger.Debug().Str("destination", dest).Msg("no arrival found in service timetable")
	}
	return d
}

// arrivalAt resolves when the train reaches stop. An aimed-only arrival is
// shifted by the train's departure delay. An arrival that is not after the
// departure is unknown.
func arrivalAt(c trainCandidate, stop TimetableStop) (time.Time, bool) {
	if stop.ExpectedArrivalTime != "" {
		at, ok := parseClock(c.departs, stop.ExpectedArrivalTime)
		return at, ok && at.After(c.departs)
	}

	at, ok := parseClock(c.departs, stop.AimedArrivalTime)
	if !ok {
		return time.Time{}, false
	}
	if c.ExpectedDepartureTime != "" {
		if aimed, ok := parseClock(c.departs, c.AimedDepartureTime); ok && c.departs.After(aimed) {
			at = at.Add(c.departs.Sub(aimed))
		}
	}
	return at, at.After(c.departs)
}

// trainLeg folds ranked departures into one leg. An empty list yields a
// degraded leg marked as disrupted.
func (s *Service) trainLeg(from, dest string, departures []Departure) *Leg {
	if len(departures) == 0 {
		s.logger.Warn().Str("from", from).Str("destination", dest).Msg("no trains returned from TransportAPI")
		return &Leg{
			Mode:             ModeTrain,
			Disruption:       true,
			DisruptionDetail: NotAvailable,
			Destination:      NotAvailable,
			DepartureTime:    NotAvailable,
			ArrivalTime:      NotAvailable,
			Duration:         NotAvailable,
			Status:           NotAvailable,
			FirstTime:        NotAvailable,
			SecondTime:       NotAvailable,
			Degraded:         true,
			Error:            "No train departure data was returned from TransportAPI",
		}
	}

	first := departures[0]
	leg := &Leg{
		Mode:          ModeTrain,
		Line:          first.Operator,
		Destination:   first.Destination,
		DepartureTime: first.DepartureTime,
		ArrivalTime:   first.ArrivalTime,
		Duration:      first.Duration,
		Status:        first.Status,
		FirstTime:     first.DepartureTime,
		SecondTime:    NotAvailable,
		Departures:    departures,
	}
	if len(departures) > 1 {
		leg.SecondTime = departures[1].DepartureTime
	}
	running := false
	for _, d := range departures {
		if d.Disruption {
			leg.Disruption = true
			leg.DisruptionDetail = "Cancelled"
			continue
		}
		if !running {
			running = true
			leg.ArrivesAt = d.arrivesAt
		}
	}
	return leg
}
