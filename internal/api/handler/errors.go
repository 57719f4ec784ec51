package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/alfredhome/alfred/internal/api/middleware"
	"github.com/alfredhome/alfred/internal/api/models"
	"github.com/alfredhome/alfred/internal/commute"
	"github.com/alfredhome/alfred/internal/geofence"
	"github.com/alfredhome/alfred/internal/provider/resilience"
	"github.com/alfredhome/alfred/internal/transit"
	"github.com/alfredhome/alfred/pkg/geo"
)

// failure describes how an operation's errors read to the caller.
type failure struct {
	// op names the operation in logs.
	op string

	// unsupported is the detail for an unsupported route or user.
	unsupported string

	// unavailable is the detail when an upstream fetch fails.
	unavailable string
}

// writeError maps err to a problem response. Upstream failures are logged
// and reported generically; their cause never reaches the caller.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, f failure, err error) {
	requestID := middleware.GetRequestID(r.Context())

	var validation *transit.ValidationError
	var fetch *resilience.FetchError

	var problem *models.Problem
	switch {
	case errors.As(err, &validation):
		problem = models.NewBadRequest(requestID, validation.Error()).
			WithErrors(models.FieldError{Field: validation.Field, Message: fieldMessage(validation)})

	case errors.Is(err, transit.ErrUnsupportedRoute), errors.Is(err, commute.ErrUnknownUser):
		problem = models.NewBadRequest(requestID, f.unsupported)

	case errors.Is(err, geo.ErrInvalidCoordinate), errors.Is(err, geofence.ErrMissingCoordinate):
		problem = models.NewBadRequest(requestID, err.Error())

	case errors.Is(err, transit.ErrNoData):
		problem = models.NewNotFound(requestID, "No data was returned from the call to the TfL API")

	case errors.Is(err, transit.ErrProviderUnavailable), errors.As(err, &fetch):
		log.Error().
			Err(err).
			Str("component", "travel").
			Str("op", f.op).
			Str("request_id", requestID).
			Msg("upstream fetch failed")
		problem = models.NewServiceUnavailable(requestID, f.unavailable)

	default:
		log.Error().
			Err(err).
			Str("component", "travel").
			Str("op", f.op).
			Str("request_id", requestID).
			Msg("request failed")
		problem = models.NewInternalError(requestID, f.unavailable)
	}

	problem.WithInstance(r.URL.Path).Write(w)
}

func fieldMessage(e *transit.ValidationError) string {
	if e.Reason == "" {
		return "required"
	}
	return e.Reason
}
