package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/langcham/mapquiz/internal/mapquiz"
	"github.com/langcham/mapquiz/internal/progress"
)

// LocationSummary is a map marker. The riddle answer is never included.
type LocationSummary struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Province       string           `json:"province"`
	Position       mapquiz.Position `json:"position"`
	RiddleID       string           `json:"riddleId"`
	Prompt         string           `json:"prompt"`
	AnswerLength   int              `json:"answerLength"`
	Unlocked       bool             `json:"unlocked"`
	PreviousAnswer string           `json:"previousAnswer,omitempty"`
}

// UnlockedResponse is the content revealed once a location's riddle is solved.
type UnlockedResponse struct {
	LocationID  string `json:"locationId"`
	Name        string `json:"name"`
	Province    string `json:"province"`
	Answer      string `json:"answer"`
	Label       string `json:"label"`
	Video       string `json:"video"`
	Image       string `json:"image"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

func summarize(loc mapquiz.Location, p *mapquiz.UserQuizProgress) LocationSummary {
	s := LocationSummary{
		ID:           loc.ID,
		Name:         loc.Name,
		Province:     loc.Province,
		Position:     loc.Position,
		RiddleID:     loc.Riddle.ID,
		Prompt:       loc.Riddle.Prompt,
		AnswerLength: loc.Riddle.AnswerLength(),
	}
	if p != nil {
		s.Unlocked = p.IsAnswered(loc.ID, loc.Riddle.ID)
		s.PreviousAnswer, _ = p.PreviousAnswer(loc.ID, loc.Riddle.ID)
	}
	return s
}

// viewerProgress is nil for anonymous requests.
func viewerProgress(r *http.Request, tracker *progress.Tracker) *mapquiz.UserQuizProgress {
	user, ok := currentUser(r)
	if !ok {
		return nil
	}
	p := tracker.Progress(r.Context(), user.ID)
	return &p
}

func handleListLocations(catalog *mapquiz.Catalog, tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p := viewerProgress(r, tracker)
		locs := catalog.All()
		out := make([]LocationSummary, 0, len(locs))
		for _, loc := range locs {
			out = append(out, summarize(loc, p))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetLocation(catalog *mapquiz.Catalog, tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, ok := catalog.Find(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "location not found")
			return
		}
		writeJSON(w, http.StatusOK, summarize(loc, viewerProgress(r, tracker)))
	}
}

func handleUnlocked(catalog *mapquiz.Catalog, tracker *progress.Tracker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, ok := catalog.Find(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "location not found")
			return
		}
		user, _ := currentUser(r)
		p := tracker.Progress(r.Context(), user.ID)
		if !p.IsAnswered(loc.ID, loc.Riddle.ID) {
			writeError(w, http.StatusForbidden, "location is locked")
			return
		}
		answer, _ := p.PreviousAnswer(loc.ID, loc.Riddle.ID)
		writeJSON(w, http.StatusOK, UnlockedResponse{
			LocationID:  loc.ID,
			Name:        loc.Name,
			Province:    loc.Province,
			Answer:      answer,
			Label:       loc.Riddle.Label,
			Video:       loc.Riddle.Video,
			Image:       loc.Riddle.Image,
			Icon:        loc.Riddle.Icon,
			Description: loc.Riddle.Description,
		})
	}
}
