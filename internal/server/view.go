package server

import (
	"github.com/playperu/wayfinder/internal/directions"
	"github.com/playperu/wayfinder/internal/planner"
)

// SessionView is the JSON form of a planning session.
type SessionView struct {
	ID          string    `json:"id"`
	Start       string    `json:"start"`
	Destination string    `json:"destination"`
	State       StateView `json:"state"`
}

type StateView struct {
	Status string     `json:"status" enum:"idle,loading,loaded,failed"`
	Error  *ErrorView `json:"error,omitempty"`
	Routes []RouteRow `json:"routes"`
}

type ErrorView struct {
	Kind    string `json:"kind" enum:"transport,parse,unknown"`
	Message string `json:"message"`
}

// RouteRow is one entry of the route list with its display strings.
type RouteRow struct {
	Index           int     `json:"index"`
	DurationSeconds float64 `json:"durationSeconds"`
	DistanceMeters  float64 `json:"distanceMeters"`
	Duration        string  `json:"duration"`
	Distance        string  `json:"distance"`
	Summary         string  `json:"summary,omitempty"`
}

func newSessionView(id string, snap planner.Snapshot, f *planner.Formatter) SessionView {
	v := SessionView{
		ID:          id,
		Start:       snap.Query.Start,
		Destination: snap.Query.Destination,
		State: StateView{
			Status: snap.State.Status.String(),
			Routes: make([]RouteRow, 0, len(snap.State.Routes)),
		},
	}
	if err := snap.State.Err; err != nil {
		v.State.Error = &ErrorView{Kind: directions.Kind(err), Message: err.Error()}
	}
	for i, r := range snap.State.Routes {
		rv := f.View(r)
		v.State.Routes = append(v.State.Routes, RouteRow{
			Index:           i,
			DurationSeconds: r.DurationSeconds,
			DistanceMeters:  r.DistanceMeters,
			Duration:        rv.Duration,
			Distance:        rv.Distance,
			Summary:         r.Summary,
		})
	}
	return v
}
