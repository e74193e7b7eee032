// Package planner owns the lifecycle of a route request: the two location
// inputs, the lookup state machine, and the hand-off of a selected route to
// the navigation mechanism.
package planner

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/playperu/wayfinder/internal/directions"
)

var (
	// ErrNoRoutes is returned by SelectRoute when no route list is loaded.
	ErrNoRoutes = errors.New("no routes loaded")
	// ErrRouteNotFound is returned by SelectRoute for an index outside the loaded list.
	ErrRouteNotFound = errors.New("route not found")
)

const defaultLookupTimeout = 10 * time.Second

// Controller is the route-request controller of one planning session.
//
// Lookups run on their own goroutine. Each lookup carries a sequence number;
// a completion whose number is no longer current is discarded, so only the
// most recently triggered lookup can change state.
//
// Subscribers are called with the controller locked, in transition order.
// They must not call back into the controller.
type Controller struct {
	client  directions.Client
	nav     Navigator
	logger  *slog.Logger
	metrics *Metrics
	timeout time.Duration
	session *Query

	mu          sync.Mutex
	query       Query
	state       State
	seq         uint64
	cancel      context.CancelFunc
	initialized bool
	closed      bool
	subs        map[int]func(Snapshot)
	nextSub     int

	wg sync.WaitGroup
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

func WithMetrics(m *Metrics) Option { return func(c *Controller) { c.metrics = m } }

// WithLookupTimeout bounds each directions call. Non-positive values keep the default.
func WithLookupTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithSubscriber registers fn before the session is initialized, so it
// observes the initial lookup.
func WithSubscriber(fn func(Snapshot)) Option {
	return func(c *Controller) { c.subscribeLocked(fn) }
}

// WithSession pre-seeds the inputs; see InitializeFromSession.
func WithSession(start, destination string) Option {
	return func(c *Controller) { c.session = &Query{Start: start, Destination: destination} }
}

// New returns an idle controller. With WithSession it immediately runs
// InitializeFromSession.
func New(client directions.Client, nav Navigator, opts ...Option) *Controller {
	c := &Controller{
		client:  client,
		nav:     nav,
		logger:  slog.Default(),
		timeout: defaultLookupTimeout,
		state:   idle(),
		subs:    make(map[int]func(Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.session != nil {
		c.InitializeFromSession(c.session.Start, c.session.Destination)
	}
	return c
}

// SetStart stores the start input as given.
func (c *Controller) SetStart(v string) {
	c.mu.Lock()
	c.query.Start = v
	c.mu.Unlock()
}

// SetDestination stores the destination input as given.
func (c *Controller) SetDestination(v string) {
	c.mu.Lock()
	c.query.Destination = v
	c.mu.Unlock()
}

// CanLookup reports whether both inputs are non-empty after trimming.
func (q Query) CanLookup() bool {
	return strings.TrimSpace(q.Start) != "" && strings.TrimSpace(q.Destination) != ""
}

// TriggerLookup starts a directions lookup for the current inputs and
// returns true. With an empty input it does nothing and returns false;
// callers are expected to gate the action before that happens.
//
// A lookup already in flight is cancelled and its eventual result ignored.
func (c *Controller) TriggerLookup() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.triggerLocked()
}

// InitializeFromSession seeds both inputs and, when both are non-empty,
// triggers a lookup. Only the first call per controller has any effect.
func (c *Controller) InitializeFromSession(start, destination string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized {
		return false
	}
	c.initialized = true
	c.query = Query{Start: start, Destination: destination}
	return c.triggerLocked()
}

func (c *Controller) triggerLocked() bool {
	if c.closed || !c.query.CanLookup() {
		return false
	}

	c.abandonLocked()
	seq := c.seq
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	c.cancel = cancel

	start, destination := c.query.Start, c.query.Destination
	c.setStateLocked(State{Status: StatusLoading})

	c.wg.Add(1)
	go c.lookup(ctx, cancel, seq, start, destination)
	return true
}

// abandonLocked makes any in-flight lookup stale.
func (c *Controller) abandonLocked() {
	c.seq++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Controller) lookup(ctx context.Context, cancel context.CancelFunc, seq uint64, start, destination string) {
	defer c.wg.Done()
	defer cancel()

	began := time.Now()
	routes, err := c.client.FetchRoutes(ctx, start, destination)
	elapsed := time.Since(began)

	c.mu.Lock()
	defer c.mu.Unlock()

	if seq != c.seq {
		c.metrics.observeLookup(OutcomeStale, elapsed)
		c.logger.Debug("discarding stale directions result",
			"seq", seq, "current_seq", c.seq, "error", err,
		)
		return
	}
	c.cancel = nil

	if err != nil {
		c.metrics.observeLookup(OutcomeFailed, elapsed)
		c.logger.Warn("directions lookup failed",
			"start", start,
			"destination", destination,
			"kind", directions.Kind(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		c.setStateLocked(State{Status: StatusFailed, Err: err})
		return
	}

	if routes == nil {
		routes = []directions.Route{}
	}
	c.metrics.observeLookup(OutcomeLoaded, elapsed)
	c.logger.Info("directions lookup loaded",
		"start", start,
		"destination", destination,
		"routes", len(routes),
		"duration_ms", elapsed.Milliseconds(),
	)
	c.setStateLocked(State{Status: StatusLoaded, Routes: routes})
}

// SelectRoute emits GoToRoute for the route at index of the loaded list
// and returns it. Start and End are the inputs as held right now.
func (c *Controller) SelectRoute(index int) (GoToRoute, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusLoaded {
		return GoToRoute{}, ErrNoRoutes
	}
	if index < 0 || index >= len(c.state.Routes) {
		return GoToRoute{}, ErrRouteNotFound
	}

	msg := GoToRoute{
		Start:      c.query.Start,
		End:        c.query.Destination,
		Directions: c.state.Routes[index].Legs,
	}
	c.emitLocked(msg)
	return msg, nil
}

// Route returns the loaded route at index.
func (c *Controller) Route(index int) (directions.Route, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusLoaded {
		return directions.Route{}, ErrNoRoutes
	}
	if index < 0 || index >= len(c.state.Routes) {
		return directions.Route{}, ErrRouteNotFound
	}
	return c.state.Routes[index], nil
}

// Back ends the planning session: any lookup in flight is abandoned, both
// inputs are cleared, the state returns to idle and GoHome is emitted.
func (c *Controller) Back() GoHome {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.abandonLocked()
	c.query = Query{}
	c.setStateLocked(idle())

	msg := GoHome{}
	c.emitLocked(msg)
	return msg
}

func (c *Controller) emitLocked(m Message) {
	c.metrics.observeNavigation(m.Page())
	if c.nav != nil {
		c.nav.Navigate(m)
	}
}

// Snapshot returns the current inputs and state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{Query: c.query, State: c.state}
}

// Subscribe registers fn for state changes and returns a function that
// removes it.
func (c *Controller) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.subscribeLocked(fn)
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

func (c *Controller) subscribeLocked(fn func(Snapshot)) int {
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	return id
}

func (c *Controller) setStateLocked(s State) {
	if !c.state.Status.CanTransitionTo(s.Status) {
		// Only reachable through a bug in this file.
		c.logger.Error("invalid request state transition", "from", c.state.Status, "to", s.Status)
	}
	c.state = s

	snap := c.snapshotLocked()
	for _, fn := range c.subs {
		fn(snap)
	}
}

// Closed reports whether Close has been called.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close abandons any lookup in flight and waits for lookup goroutines to
// exit. The controller accepts no further lookups.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.abandonLocked()
	c.mu.Unlock()

	c.wg.Wait()
}
