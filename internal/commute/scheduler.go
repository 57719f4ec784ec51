package commute

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/alfredhome/alfred/internal/transit"
)

// dispatch runs every descriptor in its own goroutine. A dependent
// descriptor waits for its prerequisite to finish. The first error fails
// the whole commute; legs already in flight run to completion.
func (p *Planner) dispatch(ctx context.Context, plan *Plan) ([]*transit.Leg, error) {
	descriptors := plan.Descriptors
	legs := make([]*transit.Leg, len(descriptors))

	index := make(map[int]int, len(descriptors))
	done := make(map[int]chan struct{}, len(descriptors))
	for i, d := range descriptors {
		index[d.Order] = i
		done[d.Order] = make(chan struct{})
	}

	var g errgroup.Group
	for i, d := range descriptors {
		g.Go(func() error {
			defer close(done[d.Order])

			var prereq *transit.Leg
			if d.DependsOn != nil {
				<-done[*d.DependsOn]
				prereq = legs[index[*d.DependsOn]]
				if prereq == nil {
					// The prerequisite failed and reports its own error.
					return nil
				}
			}

			leg, err := p.fetchTraced(ctx, plan, d, prereq)
			if err != nil {
				return fmt.Errorf("leg %d (%s): %w", d.Order, d.Mode, err)
			}
			leg.Order = d.Order
			legs[i] = leg
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return legs, nil
}

func (p *Planner) fetchTraced(ctx context.Context, plan *Plan, d Descriptor, prereq *transit.Leg) (*transit.Leg, error) {
	ctx, span := p.tracer.Start(ctx, "commute.leg")
	defer span.End()

	span.SetAttributes(
		attribute.String("commute.user", plan.User),
		attribute.Int("commute.leg.order", d.Order),
		attribute.String("commute.leg.mode", string(d.Mode)),
		attribute.Bool("commute.leg.dependent", d.DependsOn != nil),
	)

	leg, err := p.fetch(ctx, d, plan.AtHome, prereq)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.Bool("commute.leg.disruption", leg.Disruption),
		attribute.Bool("commute.leg.degraded", leg.Degraded),
	)
	return leg, nil
}
