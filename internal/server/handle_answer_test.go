package server

import (
	"context"
	"net/http"
	"testing"

	"github.com/langcham/mapquiz/internal/mapquiz"
)

func TestAnswerRequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/locations/hn/answer", "", AnswerRequest{Answer: "BATTRANG"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	rec = env.do(t, http.MethodPost, "/api/locations/hn/answer", "forged", AnswerRequest{Answer: "BATTRANG"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("forged token status = %d, want 401", rec.Code)
	}
}

func TestAnswerFlow(t *testing.T) {
	env := newTestEnv(t)
	token, user := env.signUp(t, "lan@example.com")

	// Locked before the riddle is solved.
	if rec := env.do(t, http.MethodGet, "/api/locations/hn/unlocked", token, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("unlocked before answer status = %d, want 403", rec.Code)
	}

	rec := env.do(t, http.MethodPost, "/api/locations/hn/answer", token, AnswerRequest{Answer: "Hà Nội"})
	if rec.Code != http.StatusOK {
		t.Fatalf("incorrect answer status = %d, want 200", rec.Code)
	}
	var wrong AnswerResponse
	decode(t, rec, &wrong)
	if wrong.Correct || wrong.Submitted != "HANOI" || wrong.UnlockedPath != "" {
		t.Errorf("incorrect answer response = %+v", wrong)
	}

	rec = env.do(t, http.MethodPost, "/api/locations/hn/answer", token, AnswerRequest{Answer: " Bát Tràng "})
	var right AnswerResponse
	decode(t, rec, &right)
	if !right.Correct || right.AlreadyUnlocked {
		t.Fatalf("correct answer response = %+v", right)
	}
	if right.UnlockedPath != "/location/hn/unlocked" {
		t.Errorf("unlocked path = %q", right.UnlockedPath)
	}
	want := mapquiz.LocationProgress{
		AnsweredQuestionIDs: []string{"hn-riddle"},
		Score:               1,
		Answers:             map[string]string{"hn-riddle": "BATTRANG"},
	}
	got := right.Progress.Locations["hn"]
	if got.Score != want.Score || len(got.AnsweredQuestionIDs) != 1 || got.Answers["hn-riddle"] != "BATTRANG" {
		t.Errorf("hn progress = %+v, want %+v", got, want)
	}

	rec = env.do(t, http.MethodPost, "/api/locations/hn/answer", token, AnswerRequest{Answer: "anything"})
	var again AnswerResponse
	decode(t, rec, &again)
	if !again.Correct || !again.AlreadyUnlocked || again.Progress.TotalScore != 1 {
		t.Errorf("repeat answer response = %+v", again)
	}

	rec = env.do(t, http.MethodGet, "/api/locations/hn/unlocked", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unlocked status = %d, want 200", rec.Code)
	}
	var unlocked UnlockedResponse
	decode(t, rec, &unlocked)
	if unlocked.Answer != "BATTRANG" || unlocked.Label == "" {
		t.Errorf("unlocked = %+v", unlocked)
	}

	// The background write lands in the document store.
	if err := env.client.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	var stored mapquiz.UserQuizProgress
	if err := env.docs.Get(context.Background(), user.ID, &stored); err != nil {
		t.Fatalf("get stored progress: %v", err)
	}
	if !stored.IsAnswered("hn", "hn-riddle") || stored.Locations["hn"].Score != 1 {
		t.Errorf("stored = %+v", stored)
	}
}

func TestAnswerWithChars(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "lan@example.com")

	rec := env.do(t, http.MethodPost, "/api/locations/hue/answer", token, AnswerRequest{Chars: []string{"h", "u", "e"}})
	var resp AnswerResponse
	decode(t, rec, &resp)
	if !resp.Correct || resp.Submitted != "HUE" {
		t.Errorf("response = %+v, want correct HUE", resp)
	}
}

func TestAnswerBadRequests(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "lan@example.com")

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
	}{
		{"unknown location", "/api/locations/xx/answer", AnswerRequest{Answer: "X"}, http.StatusNotFound},
		{"empty answer", "/api/locations/hn/answer", AnswerRequest{Answer: "   "}, http.StatusBadRequest},
		{"empty chars", "/api/locations/hn/answer", AnswerRequest{Chars: []string{"", ""}}, http.StatusBadRequest},
		{"not json", "/api/locations/hn/answer", "BATTRANG", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := env.do(t, http.MethodPost, tt.path, token, tt.body); rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
