package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"
	"github.com/swaggest/swgui/v5emb"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse maps each checked dependency to its status.
type HealthResponse map[string]struct {
	Status string `json:"status" enum:"ok,error"`
}

// NavigateResponse documents the JSON form of planner.GoToRoute.
type NavigateResponse struct {
	Page       string            `json:"page" enum:"route"`
	Start      string            `json:"start"`
	End        string            `json:"end"`
	Directions []json.RawMessage `json:"directions"`
}

// HomeResponse documents the JSON form of planner.GoHome.
type HomeResponse struct {
	Page       string `json:"page" enum:"home"`
	Directions struct {
		Start      string            `json:"start"`
		End        string            `json:"end"`
		Directions []json.RawMessage `json:"directions"`
	} `json:"directions"`
}

type sessionPath struct {
	ID string `path:"id" format:"uuid"`
}

type routePath struct {
	ID    string `path:"id" format:"uuid"`
	Index int    `path:"index" minimum:"0"`
}

type setValueRequest struct {
	sessionPath
	ValueRequest
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Wayfinder API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Route planning sessions: enter two places, look up routes, pick one.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(HealthResponse{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/sessions
	createSession, _ := r.NewOperationContext(http.MethodPost, "/api/sessions")
	createSession.SetSummary("Create session")
	createSession.SetDescription("Starts a planning session. When both places are given, a route lookup starts immediately.")
	createSession.AddReqStructure(CreateSessionRequest{})
	createSession.AddRespStructure(SessionView{}, openapi.WithHTTPStatus(http.StatusCreated))
	createSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(createSession)

	// GET /api/sessions/{id}
	getSession, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}")
	getSession.SetSummary("Get session")
	getSession.SetDescription("Returns the inputs, request status and formatted route list.")
	getSession.AddReqStructure(sessionPath{})
	getSession.AddRespStructure(SessionView{}, openapi.WithHTTPStatus(http.StatusOK))
	getSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getSession)

	// DELETE /api/sessions/{id}
	deleteSession, _ := r.NewOperationContext(http.MethodDelete, "/api/sessions/{id}")
	deleteSession.SetSummary("Close session")
	deleteSession.AddReqStructure(sessionPath{})
	deleteSession.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	deleteSession.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(deleteSession)

	for _, field := range []string{"start", "destination"} {
		op, _ := r.NewOperationContext(http.MethodPut, "/api/sessions/{id}/"+field)
		op.SetSummary("Set " + field)
		op.SetDescription("Stores the text as typed. Does not start a lookup.")
		op.AddReqStructure(setValueRequest{})
		op.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
		op.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
		_ = r.AddOperation(op)
	}

	// POST /api/sessions/{id}/lookup
	lookup, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/lookup")
	lookup.SetSummary("Look up routes")
	lookup.SetDescription("Starts a route lookup, superseding any lookup in flight. Results arrive on the event stream.")
	lookup.AddReqStructure(sessionPath{})
	lookup.AddRespStructure(SessionView{}, openapi.WithHTTPStatus(http.StatusAccepted))
	lookup.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	lookup.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnprocessableEntity))
	lookup.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusGone))
	_ = r.AddOperation(lookup)

	// POST /api/sessions/{id}/routes/{index}/select
	selectRoute, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/routes/{index}/select")
	selectRoute.SetSummary("Select route")
	selectRoute.SetDescription("Navigates to the turn-by-turn page of a loaded route.")
	selectRoute.AddReqStructure(routePath{})
	selectRoute.AddRespStructure(NavigateResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	selectRoute.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	selectRoute.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(selectRoute)

	// GET /api/sessions/{id}/routes/{index}/geometry
	geometry, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/routes/{index}/geometry")
	geometry.SetSummary("Route geometry")
	geometry.SetDescription("Returns the route line as a GeoJSON Feature.")
	geometry.AddReqStructure(routePath{})
	geometry.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("application/geo+json"))
	geometry.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	geometry.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	_ = r.AddOperation(geometry)

	// POST /api/sessions/{id}/back
	back, _ := r.NewOperationContext(http.MethodPost, "/api/sessions/{id}/back")
	back.SetSummary("Back to home")
	back.SetDescription("Abandons any lookup, clears both places and navigates home.")
	back.AddReqStructure(sessionPath{})
	back.AddRespStructure(HomeResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	back.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(back)

	// GET /api/sessions/{id}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/sessions/{id}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events: \"state\" carries the session view, \"navigate\" a navigation message.")
	getEvents.AddReqStructure(sessionPath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	return r.Spec
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

func handleSwaggerUI() http.HandlerFunc {
	return v5emb.New("Wayfinder API", "/openapi.json", "/docs").ServeHTTP
}
