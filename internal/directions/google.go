package directions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/paulmach/orb"
	"googlemaps.github.io/maps"
)

// GoogleClient implements Client with the Google Maps Directions API, which
// accepts free-text origins and destinations directly.
type GoogleClient struct {
	maps   *maps.Client
	mode   maps.Mode
	logger *slog.Logger
}

// NewGoogleClient builds a client for apiKey. Extra options (for example
// maps.WithBaseURL in tests) are applied after the defaults.
func NewGoogleClient(apiKey string, logger *slog.Logger, opts ...maps.ClientOption) (*GoogleClient, error) {
	base := []maps.ClientOption{
		maps.WithAPIKey(apiKey),
		maps.WithHTTPClient(&http.Client{
			Timeout: mapboxTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        httpMaxIdleConns,
				MaxIdleConnsPerHost: httpMaxIdleConns,
				IdleConnTimeout:     httpIdleConnTimeout,
			},
		}),
	}
	mc, err := maps.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("routing: google: new client: %w", err)
	}
	return &GoogleClient{maps: mc, mode: maps.TravelModeDriving, logger: logger}, nil
}

func (g *GoogleClient) FetchRoutes(ctx context.Context, start, destination string) ([]Route, error) {
	req := &maps.DirectionsRequest{
		Origin:       start,
		Destination:  destination,
		Mode:         g.mode,
		Alternatives: true,
	}

	resp, _, err := g.maps.Directions(ctx, req)
	if err != nil {
		if isGoogleNoResult(err) {
			g.logger.Info("no routes from google", "start", start, "destination", destination)
			return []Route{}, nil
		}
		return nil, fmt.Errorf("routing: google: directions: %w", classifyGoogleError(err))
	}

	routes := make([]Route, 0, len(resp))
	for i, r := range resp {
		route, err := fromGoogleRoute(r)
		if err != nil {
			return nil, fmt.Errorf("routing: google: directions: route %d: %w", i, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

func fromGoogleRoute(r maps.Route) (Route, error) {
	if len(r.Legs) == 0 {
		return Route{}, fmt.Errorf("missing legs: %w", ErrParse)
	}

	route := Route{Summary: r.Summary, Legs: make([]Leg, 0, len(r.Legs))}
	for _, leg := range r.Legs {
		if leg == nil {
			return Route{}, fmt.Errorf("null leg: %w", ErrParse)
		}
		route.DurationSeconds += leg.Duration.Seconds()
		route.DistanceMeters += float64(leg.Distance.Meters)

		raw, err := json.Marshal(leg)
		if err != nil {
			return Route{}, fmt.Errorf("encode leg: %v: %w", err, ErrParse)
		}
		route.Legs = append(route.Legs, raw)
	}

	if r.OverviewPolyline.Points != "" {
		latlngs, err := r.OverviewPolyline.Decode()
		if err != nil {
			return Route{}, fmt.Errorf("decode polyline: %v: %w", err, ErrParse)
		}
		ls := make(orb.LineString, len(latlngs))
		for i, ll := range latlngs {
			ls[i] = orb.Point{ll.Lng, ll.Lat}
		}
		route.Geometry = ls
	}
	return route, nil
}

func isGoogleNoResult(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "ZERO_RESULTS") || strings.Contains(msg, "NOT_FOUND")
}

// classifyGoogleError maps errors from the maps library onto ErrTransport and
// ErrParse. The library reports API status failures as plain "maps: STATUS"
// errors, which count as a non-success reply.
func classifyGoogleError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%v: %w", err, ErrParse)
	}
	return fmt.Errorf("%v: %w", err, ErrTransport)
}
