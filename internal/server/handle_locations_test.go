package server

import (
	"net/http"
	"testing"
)

func TestListLocations(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/locations", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var anon []LocationSummary
	decode(t, rec, &anon)
	if len(anon) != 5 {
		t.Fatalf("got %d locations, want 5", len(anon))
	}
	if anon[0].ID != "hn" || anon[0].AnswerLength != len("BATTRANG") {
		t.Errorf("first location = %+v", anon[0])
	}
	for _, loc := range anon {
		if loc.Unlocked || loc.PreviousAnswer != "" {
			t.Errorf("anonymous view of %s is unlocked", loc.ID)
		}
	}

	token, _ := env.signUp(t, "lan@example.com")
	env.do(t, http.MethodPost, "/api/locations/dn/answer", token, AnswerRequest{Answer: "Đà Nẵng"})

	var mine []LocationSummary
	decode(t, env.do(t, http.MethodGet, "/api/locations", token, nil), &mine)
	for _, loc := range mine {
		wantUnlocked := loc.ID == "dn"
		if loc.Unlocked != wantUnlocked {
			t.Errorf("%s unlocked = %v, want %v", loc.ID, loc.Unlocked, wantUnlocked)
		}
		if wantUnlocked && loc.PreviousAnswer != "DANANG" {
			t.Errorf("%s previous answer = %q, want DANANG", loc.ID, loc.PreviousAnswer)
		}
	}
}

func TestGetLocation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/locations/hue", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var loc LocationSummary
	decode(t, rec, &loc)
	if loc.ID != "hue" || loc.RiddleID != "hue-riddle" || loc.Prompt == "" {
		t.Errorf("location = %+v", loc)
	}

	rec = env.do(t, http.MethodGet, "/api/locations/xx", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown location status = %d, want 404", rec.Code)
	}
	var e ErrorResponse
	decode(t, rec, &e)
	if e.Error != "location not found" {
		t.Errorf("error = %q", e.Error)
	}
}

func TestUnlockedRequiresAuth(t *testing.T) {
	env := newTestEnv(t)
	if rec := env.do(t, http.MethodGet, "/api/locations/hn/unlocked", "", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestProgressEndpoint(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signUp(t, "lan@example.com")

	if rec := env.do(t, http.MethodGet, "/api/progress", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rec.Code)
	}

	var empty ProgressResponse
	decode(t, env.do(t, http.MethodGet, "/api/progress", token, nil), &empty)
	if empty.TotalScore != 0 || len(empty.CompletedLocationIDs) != 0 || empty.Locations == nil {
		t.Errorf("fresh progress = %+v", empty)
	}

	env.do(t, http.MethodPost, "/api/locations/hcm/answer", token, AnswerRequest{Answer: "Sài Gòn"})
	env.do(t, http.MethodPost, "/api/locations/ct/answer", token, AnswerRequest{Answer: "cần thơ"})

	var p ProgressResponse
	decode(t, env.do(t, http.MethodGet, "/api/progress", token, nil), &p)
	if p.TotalScore != 2 {
		t.Errorf("total score = %d, want 2", p.TotalScore)
	}
	if len(p.CompletedLocationIDs) != 2 || p.CompletedLocationIDs[0] != "ct" || p.CompletedLocationIDs[1] != "hcm" {
		t.Errorf("completed = %v, want [ct hcm]", p.CompletedLocationIDs)
	}
}
