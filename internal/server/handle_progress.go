package server

import (
	"net/http"

	"github.com/langcham/mapquiz/internal/mapquiz"
	"github.com/langcham/mapquiz/internal/progress"
)

type ProgressResponse struct {
	Locations            map[string]mapquiz.LocationProgress `json:"locations"`
	UpdatedAt            int64                               `json:"updatedAt"`
	CompletedLocationIDs []string                            `json:"completedLocationIds"`
	TotalScore           int                                 `json:"totalScore"`
}

func newProgressResponse(p mapquiz.UserQuizProgress) ProgressResponse {
	locs := p.Locations
	if locs == nil {
		locs = map[string]mapquiz.LocationProgress{}
	}
	return ProgressResponse{
		Locations:            locs,
		UpdatedAt:            p.UpdatedAt,
		CompletedLocationIDs: p.CompletedLocationIDs(),
		TotalScore:           p.TotalScore(),
	}
}

func handleProgress(tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := currentUser(r)
		writeJSON(w, http.StatusOK, newProgressResponse(tracker.Progress(r.Context(), user.ID)))
	}
}
