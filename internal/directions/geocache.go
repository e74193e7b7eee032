package directions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"
)

// GeocodeStore persists geocoding answers in the geocode_cache table.
// Negative answers (no such place) are stored too.
type GeocodeStore struct {
	db *sql.DB
}

func NewGeocodeStore(db *sql.DB) *GeocodeStore {
	return &GeocodeStore{db: db}
}

type cachedPlace struct {
	place    Place
	found    bool
	cachedAt time.Time
}

func (s *GeocodeStore) get(ctx context.Context, key string) (cachedPlace, bool, error) {
	var (
		c        cachedPlace
		lon, lat float64
		found    int
		unix     int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT lon, lat, place_name, found, cached_at
		FROM geocode_cache
		WHERE query = ?
	`, key).Scan(&lon, &lat, &c.place.Name, &found, &unix)
	if errors.Is(err, sql.ErrNoRows) {
		return cachedPlace{}, false, nil
	}
	if err != nil {
		return cachedPlace{}, false, err
	}
	c.place.Point = orb.Point{lon, lat}
	c.found = found == 1
	c.cachedAt = time.Unix(unix, 0)
	return c, true, nil
}

func (s *GeocodeStore) put(ctx context.Context, key, provider string, c cachedPlace) error {
	found := 0
	if c.found {
		found = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocode_cache (query, provider, lon, lat, place_name, found, cached_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (query) DO UPDATE SET
			provider = excluded.provider,
			lon = excluded.lon,
			lat = excluded.lat,
			place_name = excluded.place_name,
			found = excluded.found,
			cached_at = excluded.cached_at
	`, key, provider, c.place.Point.Lon(), c.place.Point.Lat(), c.place.Name, found, c.cachedAt.Unix())
	return err
}

// Prune deletes entries cached before cutoff and reports how many were removed.
func (s *GeocodeStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE cached_at < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("pruning geocode cache: %w", err)
	}
	return res.RowsAffected()
}

// Ping reports whether the underlying database is reachable.
func (s *GeocodeStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// sharedGeocodeTimeout bounds an upstream call shared by several callers.
// It runs detached from any one caller's context.
const sharedGeocodeTimeout = 10 * time.Second

// CachedGeocoder decorates a Geocoder with a persistent TTL cache.
// Concurrent lookups of the same query share one upstream call; a caller
// that gives up does not cancel it for the others.
// Store failures are logged and never fail a lookup.
type CachedGeocoder struct {
	inner    Geocoder
	store    *GeocodeStore
	provider string
	ttl      time.Duration
	logger   *slog.Logger
	group    singleflight.Group

	now func() time.Time
}

func NewCachedGeocoder(inner Geocoder, store *GeocodeStore, provider string, ttl time.Duration, logger *slog.Logger) *CachedGeocoder {
	return &CachedGeocoder{
		inner:    inner,
		store:    store,
		provider: provider,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

func (g *CachedGeocoder) Geocode(ctx context.Context, query string) (Place, bool, error) {
	key := g.provider + ":" + normalizeQuery(query)

	cached, hit, err := g.store.get(ctx, key)
	if err != nil {
		g.logger.Warn("geocode cache read failed", "query", query, "error", err)
	}
	if hit && g.now().Sub(cached.cachedAt) < g.ttl {
		return cached.place, cached.found, nil
	}

	ch := g.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedGeocodeTimeout)
		defer cancel()

		place, ok, err := g.inner.Geocode(shared, query)
		if err != nil {
			return nil, err
		}
		c := cachedPlace{place: place, found: ok, cachedAt: g.now()}
		if err := g.store.put(shared, key, g.provider, c); err != nil {
			g.logger.Warn("geocode cache write failed", "query", query, "error", err)
		}
		return c, nil
	})

	select {
	case <-ctx.Done():
		return Place{}, false, fmt.Errorf("geocode %q: %w: %w", query, ctx.Err(), ErrTransport)
	case res := <-ch:
		if res.Err != nil {
			return Place{}, false, res.Err
		}
		c := res.Val.(cachedPlace)
		return c.place, c.found, nil
	}
}

// normalizeQuery folds case and whitespace so "  Union  Station" and
// "union station" share an entry.
func normalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}
