// Package directions resolves two free-text places into candidate routes
// using a remote directions service.
package directions

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/paulmach/orb"
)

var (
	// ErrTransport marks failures to reach the service or non-success replies.
	ErrTransport = errors.New("directions service unavailable")
	// ErrParse marks replies that cannot be read as routes.
	ErrParse = errors.New("malformed directions response")
)

// Leg is one provider-defined segment of a route. Its bytes are forwarded
// to the route page exactly as the provider sent them.
type Leg = json.RawMessage

// Route is one candidate path between start and destination.
type Route struct {
	DurationSeconds float64 `json:"durationSeconds"`
	DistanceMeters  float64 `json:"distanceMeters"`
	Summary         string  `json:"summary,omitempty"`
	Legs            []Leg   `json:"legs"`

	// Geometry is the route line in lon/lat order, empty when the
	// provider did not return one.
	Geometry orb.LineString `json:"-"`
}

// Client fetches ranked routes. Zero routes is a successful, empty result.
type Client interface {
	FetchRoutes(ctx context.Context, start, destination string) ([]Route, error)
}

// Place is a geocoded location.
type Place struct {
	Point orb.Point
	Name  string
}

// Geocoder resolves free text to a single best-match place. ok is false
// when the service knows no such place.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (place Place, ok bool, err error)
}

// Kind classifies err for display: "transport", "parse", or "unknown".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrParse):
		return "parse"
	default:
		return "unknown"
	}
}
