package progress

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/langcham/mapquiz/internal/mapquiz"
)

// staleAfter bounds how old the stored document behind a submission's
// idempotence check may be.
const staleAfter = 30 * time.Second

// Tracker holds the optimistic progress of each signed-in user. The view a
// user sees is the last document read from the store with every unlock
// accepted locally, but not yet seen in the store, applied on top.
type Tracker struct {
	client  *Client
	logger  *slog.Logger
	metrics *Metrics
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*session
}

type session struct {
	mu       sync.Mutex
	base     *mapquiz.UserQuizProgress // nil until a load succeeds
	loadedAt time.Time
	pending  []unlock

	lastUsed time.Time // guarded by Tracker.mu
}

// unlock is a correct answer accepted locally whose write the store has
// not yet confirmed.
type unlock struct {
	locationID string
	riddleID   string
	answer     string
	at         int64
	task       *Task
}

// Submission is the result of one riddle attempt.
type Submission struct {
	Correct         bool
	AlreadyUnlocked bool
	Submitted       string // normalized input
	Progress        mapquiz.UserQuizProgress
	// Persist is nil unless a correct answer produced new progress.
	Persist *Task
}

func NewTracker(client *Client, logger *slog.Logger, metrics *Metrics) *Tracker {
	return &Tracker{
		client:   client,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		sessions: make(map[string]*session),
	}
}

func (t *Tracker) session(userID string) *session {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.sessions[userID]
	if !ok {
		s = &session{}
		t.sessions[userID] = s
	}
	s.lastUsed = t.now()
	return s
}

// view must be called with s.mu held.
func (s *session) view() mapquiz.UserQuizProgress {
	p := mapquiz.EmptyProgress()
	if s.base != nil {
		p = s.base.Clone()
	}
	for _, u := range s.pending {
		if p.IsAnswered(u.locationID, u.riddleID) {
			continue
		}
		prev := p.UpdatedAt
		p = mapquiz.ApplyCorrectAnswer(&p, u.locationID, u.riddleID, u.answer)
		p.UpdatedAt = max(prev, u.at)
	}
	return p
}

// refresh re-reads the stored document. On failure the previous base is
// kept. Must be called with s.mu held.
func (t *Tracker) refresh(ctx context.Context, userID string, s *session) {
	p, err := t.client.Load(ctx, userID)
	if err != nil {
		t.logger.Warn("loading progress failed, serving last known progress",
			"user_id", userID, "error", err)
		return
	}
	s.base = &p
	s.loadedAt = t.now()
	s.pending = slices.DeleteFunc(s.pending, func(u unlock) bool {
		return p.IsAnswered(u.locationID, u.riddleID)
	})
	t.retryFailed(ctx, userID, s)
}

// retryFailed writes again the unlocks whose last write failed. The store
// answered the read just now, so it is worth another attempt.
func (t *Tracker) retryFailed(ctx context.Context, userID string, s *session) {
	for i := range s.pending {
		u := &s.pending[i]
		select {
		case <-u.task.Done():
		default:
			continue
		}
		if u.task.outcome != OutcomeFailed {
			continue
		}
		t.logger.Info("retrying progress write",
			"user_id", userID, "location_id", u.locationID)
		u.task = t.client.CommitAsync(ctx, userID, s.view(), u.locationID, u.riddleID)
	}
}

// Progress re-reads the user's stored progress and returns it with any
// unconfirmed local unlocks applied. When the store is unreachable the
// last known view is returned.
func (t *Tracker) Progress(ctx context.Context, userID string) mapquiz.UserQuizProgress {
	s := t.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	t.refresh(ctx, userID, s)
	return s.view()
}

// Submit checks input against the location's riddle. A correct answer is
// applied to the user's view before the remote write starts. Submissions
// for one user are handled one at a time.
func (t *Tracker) Submit(ctx context.Context, userID string, loc mapquiz.Location, input string) Submission {
	s := t.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil || t.now().Sub(s.loadedAt) > staleAfter {
		t.refresh(ctx, userID, s)
	}
	current := s.view()
	riddleID := loc.Riddle.ID
	res := Submission{Submitted: mapquiz.Normalize(input)}

	if current.IsAnswered(loc.ID, riddleID) {
		t.metrics.submissions.WithLabelValues("already_unlocked").Inc()
		res.Correct = true
		res.AlreadyUnlocked = true
		res.Progress = current
		return res
	}

	if res.Submitted == "" || res.Submitted != mapquiz.Normalize(loc.Riddle.Answer) {
		t.metrics.submissions.WithLabelValues("incorrect").Inc()
		res.Progress = current
		return res
	}

	next := mapquiz.ApplyCorrectAnswer(&current, loc.ID, riddleID, res.Submitted)
	t.metrics.submissions.WithLabelValues("correct").Inc()

	res.Correct = true
	res.Progress = next.Clone()
	res.Persist = t.client.CommitAsync(ctx, userID, next, loc.ID, riddleID)
	s.pending = append(s.pending, unlock{
		locationID: loc.ID,
		riddleID:   riddleID,
		answer:     res.Submitted,
		at:         next.UpdatedAt,
		task:       res.Persist,
	})
	return res
}

// Forget drops the cached state of a user, typically on sign-out.
func (t *Tracker) Forget(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.sessions, userID)
}

// Evict drops sessions idle for longer than idle. Sessions holding
// unconfirmed unlocks are kept. It returns the number of sessions dropped.
func (t *Tracker) Evict(idle time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-idle)
	n := 0
	for id, s := range t.sessions {
		if s.lastUsed.After(cutoff) || !s.mu.TryLock() {
			continue
		}
		if len(s.pending) == 0 {
			delete(t.sessions, id)
			n++
		}
		s.mu.Unlock()
	}
	return n
}
