package directions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"
)

const (
	// mapboxTimeout caps a single HTTP call. The caller's context usually
	// carries a tighter lookup deadline.
	mapboxTimeout = 10 * time.Second

	httpMaxIdleConns    = 10
	httpIdleConnTimeout = 30 * time.Second

	// maxResponseBytes guards against unbounded bodies from a misbehaving proxy.
	maxResponseBytes = 8 << 20
)

// MapboxConfig configures a MapboxClient.
type MapboxConfig struct {
	Token   string
	BaseURL string // e.g. https://api.mapbox.com
	Profile string // driving, walking, cycling, driving-traffic
}

// MapboxClient implements Client with the Mapbox geocoding and directions APIs.
// Both places are forward-geocoded first, then routed with alternatives.
type MapboxClient struct {
	token      string
	baseURL    string
	profile    string
	httpClient *http.Client
	geocoder   Geocoder
	logger     *slog.Logger
}

func NewMapboxClient(cfg MapboxConfig, logger *slog.Logger) *MapboxClient {
	transport := &http.Transport{
		MaxIdleConns:        httpMaxIdleConns,
		MaxIdleConnsPerHost: httpMaxIdleConns,
		IdleConnTimeout:     httpIdleConnTimeout,
	}
	profile := cfg.Profile
	if profile == "" {
		profile = "driving"
	}
	c := &MapboxClient{
		token:   cfg.Token,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		profile: profile,
		httpClient: &http.Client{
			Timeout:   mapboxTimeout,
			Transport: transport,
		},
		logger: logger,
	}
	c.geocoder = c
	return c
}

// UseGeocoder replaces the geocoder consulted by FetchRoutes, typically
// with a CachedGeocoder wrapping c itself.
func (c *MapboxClient) UseGeocoder(g Geocoder) {
	c.geocoder = g
}

// FetchRoutes geocodes start and destination concurrently and returns the
// service's routes in the order it ranked them.
func (c *MapboxClient) FetchRoutes(ctx context.Context, start, destination string) ([]Route, error) {
	var from, to Place
	var fromOK, toOK bool

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		from, fromOK, err = c.geocoder.Geocode(gctx, start)
		return err
	})
	g.Go(func() error {
		var err error
		to, toOK, err = c.geocoder.Geocode(gctx, destination)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if !fromOK || !toOK {
		c.logger.Info("place not found, no routes",
			"start", start, "start_found", fromOK,
			"destination", destination, "destination_found", toOK,
		)
		return []Route{}, nil
	}

	return c.route(ctx, from.Point, to.Point)
}

// Geocode calls the Mapbox forward geocoding endpoint and returns the top match.
func (c *MapboxClient) Geocode(ctx context.Context, query string) (Place, bool, error) {
	path := "/geocoding/v5/mapbox.places/" + url.PathEscape(strings.TrimSpace(query)) + ".json"
	params := url.Values{}
	params.Set("limit", "1")

	var resp mapboxGeocodeResponse
	status, err := c.getJSON(ctx, path, params, &resp)
	if err != nil {
		return Place{}, false, fmt.Errorf("routing: mapbox: geocode %q: %w", query, err)
	}
	if status != http.StatusOK {
		return Place{}, false, fmt.Errorf("routing: mapbox: geocode %q: status %d: %w", query, status, ErrTransport)
	}

	if len(resp.Features) == 0 {
		return Place{}, false, nil
	}
	f := resp.Features[0]
	if len(f.Center) != 2 {
		return Place{}, false, fmt.Errorf("routing: mapbox: geocode %q: center has %d values: %w", query, len(f.Center), ErrParse)
	}
	return Place{Point: orb.Point{f.Center[0], f.Center[1]}, Name: f.PlaceName}, true, nil
}

func (c *MapboxClient) route(ctx context.Context, from, to orb.Point) ([]Route, error) {
	coords := formatCoord(from) + ";" + formatCoord(to)
	path := "/directions/v5/mapbox/" + c.profile + "/" + coords
	params := url.Values{}
	params.Set("alternatives", "true")
	params.Set("steps", "true")
	params.Set("geometries", "geojson")
	params.Set("overview", "full")

	var resp mapboxDirectionsResponse
	status, err := c.getJSON(ctx, path, params, &resp)
	if err != nil {
		return nil, fmt.Errorf("routing: mapbox: directions: %w", err)
	}

	switch resp.Code {
	case "NoRoute", "NoSegment":
		return []Route{}, nil
	case "Ok":
	default:
		// A 200 without a usable code is a reply we cannot read, not an outage.
		kind := ErrTransport
		if status == http.StatusOK {
			kind = ErrParse
		}
		return nil, fmt.Errorf("routing: mapbox: directions: status %d code %q: %s: %w",
			status, resp.Code, resp.Message, kind)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("routing: mapbox: directions: status %d: %w", status, ErrTransport)
	}

	routes := make([]Route, 0, len(resp.Routes))
	for i, r := range resp.Routes {
		route, err := r.toRoute()
		if err != nil {
			return nil, fmt.Errorf("routing: mapbox: directions: route %d: %w", i, err)
		}
		routes = append(routes, route)
	}
	return routes, nil
}

// getJSON performs a GET and decodes the body into v. Any body is decoded,
// including error replies, so callers can read Mapbox's code/message.
// Non-JSON error replies surface as transport errors.
func (c *MapboxClient) getJSON(ctx context.Context, path string, params url.Values, v any) (int, error) {
	params.Set("access_token", c.token)
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("http: %w: %w", redactToken(err, c.token), ErrTransport)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("read response: %v: %w", err, ErrTransport)
	}

	if err := json.Unmarshal(body, v); err != nil {
		if resp.StatusCode != http.StatusOK {
			return resp.StatusCode, fmt.Errorf("status %d: %w", resp.StatusCode, ErrTransport)
		}
		return resp.StatusCode, fmt.Errorf("unmarshal response: %v: %w", err, ErrParse)
	}
	return resp.StatusCode, nil
}

// redactToken strips the access token from URL errors before they are logged.
func redactToken(err error, token string) error {
	if token == "" {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "REDACTED"))
}

func formatCoord(p orb.Point) string {
	return strconv.FormatFloat(p.Lon(), 'f', 6, 64) + "," + strconv.FormatFloat(p.Lat(), 'f', 6, 64)
}

// --- JSON types for the Mapbox APIs ---

type mapboxGeocodeResponse struct {
	Features []mapboxFeature `json:"features"`
}

type mapboxFeature struct {
	PlaceName string    `json:"place_name"`
	Center    []float64 `json:"center"`
}

type mapboxDirectionsResponse struct {
	Code    string        `json:"code"`
	Message string        `json:"message"`
	Routes  []mapboxRoute `json:"routes"`
}

// mapboxRoute uses pointers so that absent fields are distinguishable from zero.
type mapboxRoute struct {
	Duration   *float64          `json:"duration"`
	Distance   *float64          `json:"distance"`
	WeightName string            `json:"weight_name"`
	Legs       []json.RawMessage `json:"legs"`
	Geometry   json.RawMessage   `json:"geometry"`
}

func (r mapboxRoute) toRoute() (Route, error) {
	switch {
	case r.Duration == nil:
		return Route{}, fmt.Errorf("missing duration: %w", ErrParse)
	case r.Distance == nil:
		return Route{}, fmt.Errorf("missing distance: %w", ErrParse)
	case r.Legs == nil:
		return Route{}, fmt.Errorf("missing legs: %w", ErrParse)
	case *r.Duration < 0 || *r.Distance < 0:
		return Route{}, fmt.Errorf("negative duration or distance: %w", ErrParse)
	}

	legs := make([]Leg, len(r.Legs))
	summaries := make([]string, 0, len(r.Legs))
	for i, raw := range r.Legs {
		legs[i] = Leg(raw)
		var s struct {
			Summary string `json:"summary"`
		}
		if json.Unmarshal(raw, &s) == nil && s.Summary != "" {
			summaries = append(summaries, s.Summary)
		}
	}

	route := Route{
		DurationSeconds: *r.Duration,
		DistanceMeters:  *r.Distance,
		Summary:         strings.Join(summaries, "; "),
		Legs:            legs,
	}

	if len(r.Geometry) > 0 && string(r.Geometry) != "null" {
		g, err := geojson.UnmarshalGeometry(r.Geometry)
		if err != nil {
			return Route{}, fmt.Errorf("geometry: %v: %w", err, ErrParse)
		}
		ls, ok := g.Geometry().(orb.LineString)
		if !ok {
			return Route{}, fmt.Errorf("geometry is %s, want LineString: %w", g.Geometry().GeoJSONType(), ErrParse)
		}
		route.Geometry = ls
	}
	return route, nil
}
