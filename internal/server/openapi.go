package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/langcham/mapquiz/internal/identity"
)

type locationPath struct {
	ID string `path:"id"`
}

type answerInput struct {
	ID string `path:"id"`
	AnswerRequest
}

type healthStatus struct {
	Status string `json:"status"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Map Quiz API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Locations, riddles and per-user progress for the map quiz.")

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of backend dependencies.")
	getHealthz.AddRespStructure(map[string]healthStatus{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]healthStatus{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /api/auth/signup
	signUp, _ := r.NewOperationContext(http.MethodPost, "/api/auth/signup")
	signUp.SetSummary("Sign up")
	signUp.SetDescription("Registers a user and returns a session token.")
	signUp.AddReqStructure(SignUpRequest{})
	signUp.AddRespStructure(AuthResponse{}, openapi.WithHTTPStatus(http.StatusCreated))
	signUp.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	signUp.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusConflict))
	signUp.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	_ = r.AddOperation(signUp)

	// POST /api/auth/signin
	signIn, _ := r.NewOperationContext(http.MethodPost, "/api/auth/signin")
	signIn.SetSummary("Sign in")
	signIn.SetDescription("Authenticates with email and password and returns a session token.")
	signIn.AddReqStructure(SignInRequest{})
	signIn.AddRespStructure(AuthResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	signIn.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	signIn.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	signIn.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusTooManyRequests))
	_ = r.AddOperation(signIn)

	// POST /api/auth/signout
	signOut, _ := r.NewOperationContext(http.MethodPost, "/api/auth/signout")
	signOut.SetSummary("Sign out")
	signOut.SetDescription("Ends the session of the bearer token.")
	signOut.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusNoContent))
	signOut.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(signOut)

	// GET /api/auth/me
	getMe, _ := r.NewOperationContext(http.MethodGet, "/api/auth/me")
	getMe.SetSummary("Current user")
	getMe.AddRespStructure(identity.User{}, openapi.WithHTTPStatus(http.StatusOK))
	getMe.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getMe)

	// GET /api/locations
	listLocations, _ := r.NewOperationContext(http.MethodGet, "/api/locations")
	listLocations.SetSummary("List locations")
	listLocations.SetDescription("Returns every map location. With a bearer token, each carries the caller's unlock state.")
	listLocations.AddRespStructure([]LocationSummary{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(listLocations)

	// GET /api/locations/{id}
	getLocation, _ := r.NewOperationContext(http.MethodGet, "/api/locations/{id}")
	getLocation.SetSummary("Get location")
	getLocation.AddReqStructure(locationPath{})
	getLocation.AddRespStructure(LocationSummary{}, openapi.WithHTTPStatus(http.StatusOK))
	getLocation.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getLocation)

	// GET /api/locations/{id}/unlocked
	getUnlocked, _ := r.NewOperationContext(http.MethodGet, "/api/locations/{id}/unlocked")
	getUnlocked.SetSummary("Unlocked content")
	getUnlocked.SetDescription("Returns the media of a location whose riddle the caller solved. Requires Bearer token.")
	getUnlocked.AddReqStructure(locationPath{})
	getUnlocked.AddRespStructure(UnlockedResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getUnlocked.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	getUnlocked.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	getUnlocked.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getUnlocked)

	// POST /api/locations/{id}/answer
	postAnswer, _ := r.NewOperationContext(http.MethodPost, "/api/locations/{id}/answer")
	postAnswer.SetSummary("Submit answer")
	postAnswer.SetDescription("Checks an answer for the location's riddle. A correct answer is applied to the caller's progress immediately and saved in the background. Requires Bearer token.")
	postAnswer.AddReqStructure(answerInput{})
	postAnswer.AddRespStructure(AnswerResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	postAnswer.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postAnswer)

	// GET /api/progress
	getProgress, _ := r.NewOperationContext(http.MethodGet, "/api/progress")
	getProgress.SetSummary("Get progress")
	getProgress.SetDescription("Returns the caller's progress, creating an empty document on first use. Requires Bearer token.")
	getProgress.AddRespStructure(ProgressResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	getProgress.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	_ = r.AddOperation(getProgress)

	// GET /api/progress/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/api/progress/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of unlocked and saved events. Pass token as query parameter.")
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	_ = r.AddOperation(getEvents)

	// GET /api/progress/ws
	getWS, _ := r.NewOperationContext(http.MethodGet, "/api/progress/ws")
	getWS.SetSummary("WebSocket event stream")
	getWS.SetDescription("Upgrades to a WebSocket carrying the same events as the SSE stream. Pass token as query parameter.")
	getWS.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	_ = r.AddOperation(getWS)

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
