// Package handler provides HTTP handlers for the Alfred travel API.
package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/api/middleware"
	"github.com/alfredhome/alfred/internal/api/response"
	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/transit"
)

// TravelService is the leg normalizer surface the handlers call.
type TravelService interface {
	TubeStatus(ctx context.Context, line string) (*transit.Leg, error)
	BusStatus(ctx context.Context, route string) (*transit.Leg, error)
	NextBus(ctx context.Context, route string, atHome bool) (*transit.Leg, error)
	NextTube(ctx context.Context, line, startID string) (*transit.Leg, error)
	NextTrain(ctx context.Context, q transit.TrainQuery) (*transit.Leg, error)
	PlanJourney(ctx context.Context, startID, endID string) (*transit.Journey, error)
}

// CommutePlanner composes a user's commute.
type CommutePlanner interface {
	GetCommute(ctx context.Context, user, lat, lon string) (*commute.Result, error)
}

// TravelHandler serves the /travel endpoints.
type TravelHandler struct {
	travel  TravelService
	planner CommutePlanner
	log     zerolog.Logger
}

// NewTravelHandler creates a TravelHandler.
func NewTravelHandler(travel TravelService, planner CommutePlanner, log zerolog.Logger) *TravelHandler {
	return &TravelHandler{
		travel:  travel,
		planner: planner,
		log:     log.With().Str("component", "travel").Logger(),
	}
}

// TubeStatus handles GET /travel/tubestatus?line= (route is accepted as an alias).
func (h *TravelHandler) TubeStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	line := q.Get("line")
	if line == "" {
		line = q.Get("route")
	}

	leg, err := h.travel.TubeStatus(r.Context(), line)
	if err != nil {
		if isMissing(err, "line") {
			err = &transit.ValidationError{Field: "route"}
		}
		writeError(w, r, h.log, failure{
			op:          "tubestatus",
			unavailable: "There was a problem getting the status of the tube line",
		}, err)
		return
	}
	response.OK(w, r, leg)
}

// BusStatus handles GET /travel/busstatus?route=.
func (h *TravelHandler) BusStatus(w http.ResponseWriter, r *http.Request) {
	leg, err := h.travel.BusStatus(r.Context(), r.URL.Query().Get("route"))
	if err != nil {
		writeError(w, r, h.log, failure{
			op:          "busstatus",
			unavailable: "There was a problem getting the status of the bus route",
		}, err)
		return
	}
	response.OK(w, r, leg)
}

// NextBus handles GET /travel/nextbus?route=&atHome=.
// atHome is true unless it is exactly "false".
func (h *TravelHandler) NextBus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	route := q.Get("route")
	atHome := q.Get("atHome") != "false"

	leg, err := h.travel.NextBus(r.Context(), route, atHome)
	if err != nil {
		writeError(w, r, h.log, failure{
			op:          "nextbus",
			unsupported: fmt.Sprintf("Bus route %s is not currently supported", route),
			unavailable: "There was a problem getting the next bus",
		}, err)
		return
	}
	response.OK(w, r, leg)
}

// NextTube handles GET /travel/nexttube?line=&startID=.
func (h *TravelHandler) NextTube(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	leg, err := h.travel.NextTube(r.Context(), q.Get("line"), q.Get("startID"))
	if err != nil {
		writeError(w, r, h.log, failure{
			op:          "nexttube",
			unavailable: "There was a problem getting the next tube",
		}, err)
		return
	}
	response.OK(w, r, leg)
}

// NextTrain handles GET /travel/nexttrain.
//
// Either route selects a configured fixed route, or startID and destination
// query a departure board, optionally shifted by departureTimeOffSet minutes
// and with cancelled trains dropped by disruptionOverride=true.
func (h *TravelHandler) NextTrain(w http.ResponseWriter, r *http.Request) {
	f := failure{
		op:          "nexttrain",
		unavailable: "There was a problem getting the next train",
	}

	query, err := trainQuery(r)
	if err != nil {
		writeError(w, r, h.log, f, err)
		return
	}
	f.unsupported = fmt.Sprintf("Train route %s is not currently supported", query.Route)

	leg, err := h.travel.NextTrain(r.Context(), query)
	if err != nil {
		if query.Route == "" && isMissing(err, "startID") {
			err = &transit.ValidationError{Field: "route"}
		}
		writeError(w, r, h.log, f, err)
		return
	}
	response.OK(w, r, leg)
}

func trainQuery(r *http.Request) (transit.TrainQuery, error) {
	q := r.URL.Query()
	query := transit.TrainQuery{
		Route:              q.Get("route"),
		StartID:            q.Get("startID"),
		Destination:        q.Get("destination"),
		DisruptionOverride: q.Get("disruptionOverride") == "true",
	}

	raw := q.Get("departureTimeOffSet")
	if raw == "" {
		raw = q.Get("departureTimeOffset")
	}
	if raw != "" {
		mins, err := strconv.Atoi(raw)
		if err != nil || mins < 0 {
			return query, &transit.ValidationError{Field: "departureTimeOffSet", Reason: "must be a non-negative number of minutes"}
		}
		query.DepartureOffset = time.Duration(mins) * time.Minute
	}
	return query, nil
}

// PlanJourney handles GET /travel/planjourney?startID=&endID=.
func (h *TravelHandler) PlanJourney(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	journey, err := h.travel.PlanJourney(r.Context(), q.Get("startID"), q.Get("endID"))
	if err != nil {
		writeError(w, r, h.log, failure{
			op:          "planjourney",
			unavailable: "There was a problem planning the journey",
		}, err)
		return
	}
	response.OK(w, r, journey)
}

// GetCommute handles GET /travel/getcommute?user=&lat=&long=.
// A bearer token's subject stands in for a missing user parameter.
func (h *TravelHandler) GetCommute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	user := q.Get("user")
	if user == "" {
		user = middleware.GetUser(r.Context())
	}

	result, err := h.planner.GetCommute(r.Context(), user, q.Get("lat"), q.Get("long"))
	if err != nil {
		writeError(w, r, h.log, failure{
			op:          "getcommute",
			unsupported: fmt.Sprintf("User %s is not supported", user),
			unavailable: "There was a problem getting the commute",
		}, err)
		return
	}
	response.OK(w, r, result)
}

func isMissing(err error, field string) bool {
	var v *transit.ValidationError
	return errors.As(err, &v) && v.Reason == "" && strings.EqualFold(v.Field, field)
}
