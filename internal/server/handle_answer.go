package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/langcham/mapquiz/internal/mapquiz"
	"github.com/langcham/mapquiz/internal/progress"
)

// AnswerRequest carries either the typed answer or the per-character
// input boxes of the riddle panel.
type AnswerRequest struct {
	Answer string   `json:"answer,omitempty"`
	Chars  []string `json:"chars,omitempty"`
}

type AnswerResponse struct {
	Correct         bool             `json:"correct"`
	AlreadyUnlocked bool             `json:"alreadyUnlocked"`
	Submitted       string           `json:"submitted"`
	Progress        ProgressResponse `json:"progress"`
	UnlockedPath    string           `json:"unlockedPath,omitempty"`
}

func (req AnswerRequest) input(r mapquiz.Riddle) string {
	if len(req.Chars) == 0 {
		return req.Answer
	}
	panel := mapquiz.NewPanel(r, "")
	for i, c := range req.Chars {
		panel.Type(i, c)
	}
	return panel.Input()
}

func handleAnswer(logger *slog.Logger, catalog *mapquiz.Catalog, tracker *progress.Tracker, broker Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, ok := catalog.Find(chi.URLParam(r, "id"))
		if !ok {
			writeError(w, http.StatusNotFound, "location not found")
			return
		}

		var req AnswerRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		input := req.input(loc.Riddle)
		if strings.TrimSpace(input) == "" {
			writeError(w, http.StatusBadRequest, "answer is required")
			return
		}

		user, _ := currentUser(r)
		sub := tracker.Submit(r.Context(), user.ID, loc, input)

		resp := AnswerResponse{
			Correct:         sub.Correct,
			AlreadyUnlocked: sub.AlreadyUnlocked,
			Submitted:       sub.Submitted,
			Progress:        newProgressResponse(sub.Progress),
		}
		if sub.Correct {
			resp.UnlockedPath = "/location/" + loc.ID + "/unlocked"
		}

		if sub.Persist != nil {
			ctx := context.WithoutCancel(r.Context())
			broker.Publish(ctx, user.ID, Event{Type: EventUnlocked, LocationID: loc.ID, Progress: &resp.Progress})
			go func() {
				outcome := sub.Persist.Wait()
				logger.Debug("progress persisted", "user_id", user.ID, "location_id", loc.ID, "outcome", outcome.String())
				broker.Publish(ctx, user.ID, Event{Type: EventSaved, LocationID: loc.ID, Outcome: outcome.String()})
			}()
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
