package server

import (
	"net/http"
)

type CreateSessionRequest struct {
	Start       string `json:"start"`
	Destination string `json:"destination"`
}

func handleCreateSession(sessions *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if err := readOptionalJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		s := sessions.Create(req.Start, req.Destination)
		w.Header().Set("Location", "/api/sessions/"+s.ID)
		writeJSON(w, http.StatusCreated, newSessionView(s.ID, s.ctrl.Snapshot(), sessions.Formatter()))
	}
}

func handleGetSession(sessions *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := sessionFrom(r)
		writeJSON(w, http.StatusOK, newSessionView(s.ID, s.ctrl.Snapshot(), sessions.Formatter()))
	}
}

func handleDeleteSession(sessions *Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.Delete(sessionFrom(r).ID)
		w.WriteHeader(http.StatusNoContent)
	}
}
