package mapquiz

import (
	"maps"
	"slices"
	"sort"
	"time"
)

// now is swapped in tests.
var now = time.Now

func EmptyProgress() UserQuizProgress {
	return UserQuizProgress{
		Locations: map[string]LocationProgress{},
		UpdatedAt: now().UnixMilli(),
	}
}

// ApplyCorrectAnswer returns the progress that results from accepting a
// correct answer for riddleID at locationID. The caller has already checked
// the answer; incorrect attempts are never applied. current is not
// modified, and a riddle that was already answered leaves the progress
// unchanged.
func ApplyCorrectAnswer(current *UserQuizProgress, locationID, riddleID, accepted string) UserQuizProgress {
	var next UserQuizProgress
	if current == nil {
		next = EmptyProgress()
	} else {
		next = current.Clone()
	}

	prev := next.Locations[locationID]
	if slices.Contains(prev.AnsweredQuestionIDs, riddleID) {
		return next
	}

	answers := make(map[string]string, len(prev.Answers)+1)
	maps.Copy(answers, prev.Answers)
	answers[riddleID] = accepted

	ids := make([]string, 0, len(prev.AnsweredQuestionIDs)+1)
	ids = append(ids, prev.AnsweredQuestionIDs...)
	ids = append(ids, riddleID)

	next.Locations[locationID] = LocationProgress{
		AnsweredQuestionIDs: ids,
		Score:               prev.Score + 1,
		Answers:             answers,
	}
	next.UpdatedAt = now().UnixMilli()
	return next
}

// Clone returns a deep copy.
func (p UserQuizProgress) Clone() UserQuizProgress {
	out := UserQuizProgress{
		Locations: make(map[string]LocationProgress, len(p.Locations)),
		UpdatedAt: p.UpdatedAt,
	}
	for id, lp := range p.Locations {
		out.Locations[id] = lp.clone()
	}
	return out
}

func (lp LocationProgress) clone() LocationProgress {
	return LocationProgress{
		AnsweredQuestionIDs: slices.Clone(lp.AnsweredQuestionIDs),
		Score:               lp.Score,
		Answers:             maps.Clone(lp.Answers),
	}
}

func (p UserQuizProgress) IsAnswered(locationID, riddleID string) bool {
	return slices.Contains(p.Locations[locationID].AnsweredQuestionIDs, riddleID)
}

// PreviousAnswer returns the accepted answer recorded for a riddle.
func (p UserQuizProgress) PreviousAnswer(locationID, riddleID string) (string, bool) {
	ans, ok := p.Locations[locationID].Answers[riddleID]
	return ans, ok
}

// CompletedLocationIDs lists the locations with at least one solved riddle.
func (p UserQuizProgress) CompletedLocationIDs() []string {
	ids := make([]string, 0, len(p.Locations))
	for id := range p.Locations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (p UserQuizProgress) TotalScore() int {
	total := 0
	for _, lp := range p.Locations {
		total += lp.Score
	}
	return total
}

// Valid reports whether every entry keeps score equal to the number of
// distinct answered riddles.
func (p UserQuizProgress) Valid() bool {
	for _, lp := range p.Locations {
		seen := make(map[string]struct{}, len(lp.AnsweredQuestionIDs))
		for _, id := range lp.AnsweredQuestionIDs {
			if _, dup := seen[id]; dup {
				return false
			}
			seen[id] = struct{}{}
		}
		if lp.Score != len(lp.AnsweredQuestionIDs) {
			return false
		}
	}
	return true
}
