package server

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/playperu/wayfinder/internal/directions"
	"github.com/playperu/wayfinder/internal/planner"
)

// Session is one planning session: a controller plus the bookkeeping the
// registry needs to expire it.
type Session struct {
	ID      string
	Created time.Time

	ctrl     *planner.Controller
	lastSeen atomic.Int64
}

func (s *Session) touch(now time.Time) { s.lastSeen.Store(now.UnixNano()) }

func (s *Session) idleSince() time.Time { return time.Unix(0, s.lastSeen.Load()) }

// Registry owns the live planning sessions.
type Registry struct {
	client    directions.Client
	broker    *Broker
	formatter *planner.Formatter
	logger    *slog.Logger
	opts      []planner.Option
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty registry. opts are applied to every
// session controller it creates.
func NewRegistry(client directions.Client, broker *Broker, formatter *planner.Formatter, logger *slog.Logger, opts ...planner.Option) *Registry {
	return &Registry{
		client:    client,
		broker:    broker,
		formatter: formatter,
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
}

func (r *Registry) Broker() *Broker { return r.broker }

func (r *Registry) Formatter() *planner.Formatter { return r.formatter }

// Create starts a session seeded with start and destination. A lookup runs
// immediately when both are non-empty.
func (r *Registry) Create(start, destination string) *Session {
	now := r.now()
	s := &Session{ID: uuid.NewString(), Created: now}
	s.touch(now)

	nav := planner.NavigatorFunc(func(m planner.Message) {
		r.broker.Publish(s.ID, EventNavigate, m)
	})
	opts := append([]planner.Option{
		planner.WithLogger(r.logger.With("session", s.ID)),
		planner.WithSubscriber(func(snap planner.Snapshot) {
			r.broker.Publish(s.ID, EventState, newSessionView(s.ID, snap, r.formatter))
		}),
	}, r.opts...)

	// Register before seeding so the initial lookup is visible to Get.
	s.ctrl = planner.New(r.client, nav, opts...)
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()

	s.ctrl.InitializeFromSession(start, destination)
	r.logger.Info("session created", "session", s.ID)
	return s
}

// Get returns the session with id and marks it as used.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.touch(r.now())
	}
	return s, ok
}

// Delete closes and forgets the session. It reports whether it existed.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		s.ctrl.Close()
		r.logger.Info("session closed", "session", id)
	}
	return ok
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep closes sessions unused for longer than ttl and returns how many it
// removed. Sessions with an open event stream are kept.
func (r *Registry) Sweep(ttl time.Duration) int {
	cutoff := r.now().Add(-ttl)

	var expired []*Session
	r.mu.Lock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) && r.broker.Subscribers(id) == 0 {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.ctrl.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("expired idle sessions", "count", len(expired))
	}
	return len(expired)
}

// RunSweeper calls Sweep periodically until ctx is done.
func (r *Registry) RunSweeper(ctx context.Context, ttl time.Duration) error {
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			r.Sweep(ttl)
		}
	}
}

// Close closes every session.
func (r *Registry) Close() error {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.ctrl.Close()
	}
	return nil
}
