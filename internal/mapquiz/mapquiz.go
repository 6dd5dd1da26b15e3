// Package mapquiz defines the core domain types of the map quiz: locations,
// their riddles and the per-user progress document. Everything here is pure
// and free of I/O.
package mapquiz

// Position is the percentage placement of a location over the map image.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Location struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Province string   `json:"province"`
	Position Position `json:"position"`
	Riddle   Riddle   `json:"riddle"`
}

// Riddle gates a location. Answer is stored in canonical form; the
// remaining fields are the content shown once the location is unlocked.
type Riddle struct {
	ID          string `json:"id"`
	Prompt      string `json:"prompt"`
	Answer      string `json:"answer"`
	Label       string `json:"label"`
	Video       string `json:"video"`
	Image       string `json:"image"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
}

// AnswerLength is the number of characters of the normalized answer.
func (r Riddle) AnswerLength() int {
	return len([]rune(Normalize(r.Answer)))
}

// RiddleID returns the conventional riddle id for a location.
func RiddleID(locationID string) string {
	return locationID + "-riddle"
}

// UserQuizProgress is the progress document stored per user. Key presence in
// Locations means at least one riddle of that location was solved.
type UserQuizProgress struct {
	Locations map[string]LocationProgress `json:"locations"`
	UpdatedAt int64                       `json:"updatedAt"` // unix milliseconds, advisory
}

type LocationProgress struct {
	AnsweredQuestionIDs []string          `json:"answeredQuestionIds"`
	Score               int               `json:"score"`
	Answers             map[string]string `json:"answers,omitempty"`
}
