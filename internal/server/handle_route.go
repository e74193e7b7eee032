package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb/geojson"

	"github.com/playperu/wayfinder/internal/planner"
)

func routeIndex(r *http.Request) (int, bool) {
	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	return i, err == nil
}

func writeRouteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, planner.ErrNoRoutes):
		writeError(w, http.StatusConflict, "no routes loaded")
	case errors.Is(err, planner.ErrRouteNotFound):
		writeError(w, http.StatusNotFound, "route not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func handleSelectRoute() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := routeIndex(r)
		if !ok {
			writeError(w, http.StatusNotFound, "route not found")
			return
		}

		msg, err := sessionFrom(r).ctrl.SelectRoute(i)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

// handleRouteGeometry returns the line of a loaded route as a GeoJSON
// Feature for map display.
func handleRouteGeometry(sessions *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		i, ok := routeIndex(r)
		if !ok {
			writeError(w, http.StatusNotFound, "route not found")
			return
		}

		route, err := sessionFrom(r).ctrl.Route(i)
		if err != nil {
			writeRouteError(w, err)
			return
		}
		if len(route.Geometry) == 0 {
			writeError(w, http.StatusNotFound, "route has no geometry")
			return
		}

		view := sessions.Formatter().View(route)
		f := geojson.NewFeature(route.Geometry)
		f.Properties["index"] = i
		f.Properties["durationSeconds"] = route.DurationSeconds
		f.Properties["distanceMeters"] = route.DistanceMeters
		f.Properties["duration"] = view.Duration
		f.Properties["distance"] = view.Distance
		if route.Summary != "" {
			f.Properties["summary"] = route.Summary
		}

		w.Header().Set("Content-Type", "application/geo+json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(f)
	}
}

func handleBack() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, sessionFrom(r).ctrl.Back())
	}
}
