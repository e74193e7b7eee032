package server

import (
	"net/http"
)

type ValueRequest struct {
	Value string `json:"value"`
}

func handleSetStart() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValueRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sessionFrom(r).ctrl.SetStart(req.Value)
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleSetDestination() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ValueRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		sessionFrom(r).ctrl.SetDestination(req.Value)
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleLookup gates the lookup action: it is rejected with 422 while
// either input is blank, and the controller is left untouched. A session
// closed after it was resolved answers 410.
func handleLookup(sessions *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)

		if !s.ctrl.Snapshot().Query.CanLookup() {
			writeError(w, http.StatusUnprocessableEntity, "start and destination are required")
			return
		}
		if !s.ctrl.TriggerLookup() {
			if s.ctrl.Closed() {
				writeError(w, http.StatusGone, "session closed")
				return
			}
			// Inputs were cleared between the check and the trigger.
			writeError(w, http.StatusUnprocessableEntity, "start and destination are required")
			return
		}

		writeJSON(w, http.StatusAccepted, newSessionView(s.ID, s.ctrl.Snapshot(), sessions.Formatter()))
	}
}
