package transit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/alfredhome/alfred/pkg/geo"
)

// PlanJourney returns the first journey the planner offers between two stops.
// A planner with no journeys is ErrNoData.
func (s *Service) PlanJourney(ctx context.Context, startID, endID string) (*Journey, error) {
	startID = strings.TrimSpace(startID)
	endID = strings.TrimSpace(endID)
	if startID == "" {
		return nil, &ValidationError{Field: "startID"}
	}
	if endID == "" {
		return nil, &ValidationError{Field: "endID"}
	}

	planned, err := s.lines.Journey(ctx, startID, endID)
	if err != nil {
		return nil, s.unavailable(err, "journey planner")
	}
	if planned == nil {
		s.logger.Info().Str("from", startID).Str("to", endID).Msg("journey planner returned no journeys")
		return nil, fmt.Errorf("%w: no journey from %s to %s", ErrNoData, startID, endID)
	}

	journey := &Journey{
		From:          startID,
		To:            endID,
		DepartureTime: s.clockText(planned.StartTime),
		ArrivalTime:   s.clockText(planned.ArrivalTime),
		Duration:      planned.Duration,
		Legs:          make([]JourneyLeg, 0, len(planned.Legs)),
	}

	for _, l := range planned.Legs {
		journey.Legs = append(journey.Legs, JourneyLeg{
			Mode:          l.Mode,
			Line:          l.Line,
			Instruction:   l.Instruction,
			DepartureTime: s.clockText(l.DepartureTime),
			ArrivalTime:   s.clockText(l.ArrivalTime),
			Duration:      l.Duration,
			Disruption:    l.Disrupted,
			Polyline:      geo.EncodePolyline(l.Path),
		})
		journey.Disruption = journey.Disruption || l.Disrupted
	}

	return journey, nil
}

func (s *Service) clockText(t time.Time) string {
	if t.IsZero() {
		return NotAvailable
	}
	return t.In(s.location).Format(ClockLayout)
}
