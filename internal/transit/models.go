package transit

import (
	"errors"
	"fmt"
	"time"

	"github.com/alfredhome/alfred/pkg/geo"
)

// Transit errors.
var (
	// ErrProviderUnavailable wraps any upstream fetch failure.
	ErrProviderUnavailable = errors.New("transit provider unavailable")

	// ErrNoData is returned when an upstream answered with nothing usable
	// and the operation has no degraded form.
	ErrNoData = errors.New("no data returned from provider")

	// ErrUnsupportedRoute is returned for routes missing from configuration.
	ErrUnsupportedRoute = errors.New("route is not currently supported")
)

// NotAvailable is the placeholder used in degraded legs.
const NotAvailable = "N/A"

// ClockLayout is how clock times are rendered in legs.
const ClockLayout = "3:04 PM"

// ValidationError reports a missing or malformed request parameter.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return "missing param: " + e.Field
	}
	return fmt.Sprintf("invalid param %s: %s", e.Field, e.Reason)
}

// Mode is the transport mode of a leg.
type Mode string

const (
	ModeTube  Mode = "tube"
	ModeBus   Mode = "bus"
	ModeTrain Mode = "train"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeTube, ModeBus, ModeTrain:
		return true
	}
	return false
}

// Leg is one normalized segment of a commute.
type Leg struct {
	Mode             Mode        `json:"mode"`
	Line             string      `json:"line,omitempty"`
	Disruption       bool        `json:"disruption"`
	DisruptionDetail string      `json:"disruptionDetail,omitempty"`
	Destination      string      `json:"destination,omitempty"`
	Platform         string      `json:"platform,omitempty"`
	DepartureTime    string      `json:"departureTime,omitempty"`
	ArrivalTime      string      `json:"arrivalTime,omitempty"`
	Duration         string      `json:"duration,omitempty"`
	Status           string      `json:"status,omitempty"`
	FirstTime        string      `json:"firstTime,omitempty"`
	SecondTime       string      `json:"secondTime,omitempty"`
	Departures       []Departure `json:"departures,omitempty"`
	Degraded         bool        `json:"degraded,omitempty"`
	Error            string      `json:"error,omitempty"`
	Order            int         `json:"order"`

	// ArrivesAt is when the leg's first running service reaches its
	// destination. Zero when every ranked service is cancelled or the
	// upstream did not expose enough to compute it.
	ArrivesAt time.Time `json:"-"`
}

// Departure is one ranked train departure inside a train leg.
type Departure struct {
	Destination   string `json:"destination"`
	Operator      string `json:"operator,omitempty"`
	Platform      string `json:"platform,omitempty"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime,omitempty"`
	Duration      string `json:"duration,omitempty"`
	Status        string `json:"status"`
	Disruption    bool   `json:"disruption"`

	arrivesAt time.Time
}

// Journey is the first itinerary returned by the journey planner.
type Journey struct {
	From          string       `json:"from"`
	To            string       `json:"to"`
	DepartureTime string       `json:"departureTime"`
	ArrivalTime   string       `json:"arrivalTime"`
	Duration      int          `json:"duration"`
	Disruption    bool         `json:"disruption"`
	Legs          []JourneyLeg `json:"legs"`
}

// JourneyLeg is one step of a planned journey.
type JourneyLeg struct {
	Mode          string `json:"mode"`
	Line          string `json:"line,omitempty"`
	Instruction   string `json:"instruction"`
	DepartureTime string `json:"departureTime"`
	ArrivalTime   string `json:"arrivalTime"`
	Duration      int    `json:"duration"`
	Disruption    bool   `json:"disruption"`
	Polyline      string `json:"polyline,omitempty"`
}

// TrainQuery selects departures for NextTrain.
//
// Route selects a configured fixed station route. Otherwise StartID and
// Destination are station codes and DepartureOffset shifts the board.
type TrainQuery struct {
	Route              string
	StartID            string
	Destination        string
	DepartureOffset    time.Duration
	DisruptionOverride bool
}

// BusStops maps a supported bus route to its stop points.
type BusStops struct {
	// Home is the stop used when leaving home.
	Home string `yaml:"home" json:"home" validate:"required"`

	// Away is the stop used when travelling back. Empty falls back to Home.
	Away string `yaml:"away" json:"away,omitempty"`
}

// Stop returns the stop point for the given direction.
func (b BusStops) Stop(atHome bool) string {
	if !atHome && b.Away != "" {
		return b.Away
	}
	return b.Home
}

// TrainRoute is a fixed departure board query.
type TrainRoute struct {
	From        string `yaml:"from" json:"from" validate:"required"`
	Destination string `yaml:"destination" json:"destination" validate:"required"`
	Platform    string `yaml:"platform" json:"platform,omitempty"`
}

// Upstream records, decoupled from the provider wire formats.

// LineDisruption is one disruption record on a line.
type LineDisruption struct {
	Name        string
	Description string
}

// LineStatus is the status of one line.
type LineStatus struct {
	Name        string
	Disruptions []string
}

// Arrival is one predicted arrival at a stop point.
type Arrival struct {
	LineID          string
	LineName        string
	DestinationName string
	PlatformName    string
	TimeToStation   int
}

// TrainDeparture is one entry of a station departure board.
type TrainDeparture struct {
	Platform                string
	OperatorName            string
	DestinationName         string
	Status                  string
	AimedDepartureTime      string
	ExpectedDepartureTime   string
	BestArrivalEstimateMins int
	TimetableURL            string
}

// TimetableStop is one calling point of a service timetable.
type TimetableStop struct {
	StationCode           string
	StationName           string
	AimedArrivalTime      string
	ExpectedArrivalTime   string
	AimedDepartureTime    string
	ExpectedDepartureTime string
}

// BoardQuery asks for a live departure board.
type BoardQuery struct {
	Station     string
	Destination string
	Offset      time.Duration
}

// PlannedJourney is a journey as returned by the journey planner.
type PlannedJourney struct {
	StartTime   time.Time
	ArrivalTime time.Time
	Duration    int
	Legs        []PlannedLeg
}

// PlannedLeg is one leg of a PlannedJourney.
type PlannedLeg struct {
	Mode          string
	Line          string
	Instruction   string
	DepartureTime time.Time
	ArrivalTime   time.Time
	Duration      int
	Disrupted     bool
	Path          []geo.Point
}
