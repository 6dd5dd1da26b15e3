// Package progress loads and persists per-user quiz progress documents and
// keeps the optimistic per-user view the HTTP layer serves from.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/langcham/mapquiz/internal/docstore"
	"github.com/langcham/mapquiz/internal/mapquiz"
)

// Collection is the table holding one progress document per user id.
const Collection = "user_quiz_progress"

// DocumentStore is the remote document collection progress lives in.
type DocumentStore interface {
	Get(ctx context.Context, id string, dest any) error
	Create(ctx context.Context, id string, doc any) error
	Update(ctx context.Context, id string, fields []docstore.Field) error
	MergeSet(ctx context.Context, id string, doc any) error
}

// Outcome reports how a commit reached the store.
type Outcome int

const (
	OutcomeTargeted Outcome = iota
	OutcomeFallback
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeTargeted:
		return "targeted"
	case OutcomeFallback:
		return "fallback"
	default:
		return "failed"
	}
}

type Client struct {
	docs    DocumentStore
	logger  *slog.Logger
	metrics *Metrics
	breaker *gobreaker.CircuitBreaker[struct{}]
	loads   singleflight.Group
	tasks   sync.WaitGroup
}

func NewClient(docs DocumentStore, logger *slog.Logger, metrics *Metrics) *Client {
	return &Client{
		docs:    docs,
		logger:  logger,
		metrics: metrics,
		breaker: newBreaker(logger, metrics),
	}
}

// Load returns the user's progress document, creating an empty one when
// the user has none yet.
func (c *Client) Load(ctx context.Context, userID string) (mapquiz.UserQuizProgress, error) {
	v, err, _ := c.loads.Do(userID, func() (any, error) {
		return c.load(ctx, userID)
	})
	if err != nil {
		c.metrics.loads.WithLabelValues("error").Inc()
		return mapquiz.UserQuizProgress{}, err
	}
	// Callers of a shared flight must not alias each other's maps.
	return v.(mapquiz.UserQuizProgress).Clone(), nil
}

func (c *Client) load(ctx context.Context, userID string) (mapquiz.UserQuizProgress, error) {
	var p mapquiz.UserQuizProgress
	err := c.docs.Get(ctx, userID, &p)
	if err == nil {
		c.metrics.loads.WithLabelValues("found").Inc()
		return withLocations(p), nil
	}
	if !errors.Is(err, docstore.ErrNotFound) {
		return p, fmt.Errorf("reading progress for %s: %w", userID, err)
	}

	base := mapquiz.EmptyProgress()
	err = c.docs.Create(ctx, userID, base)
	switch {
	case err == nil:
		c.metrics.loads.WithLabelValues("created").Inc()
		return base, nil
	case errors.Is(err, docstore.ErrExists):
		// Another instance created it between our read and write.
		if err := c.docs.Get(ctx, userID, &p); err != nil {
			return p, fmt.Errorf("re-reading progress for %s: %w", userID, err)
		}
		c.metrics.loads.WithLabelValues("found").Inc()
		return withLocations(p), nil
	default:
		return p, fmt.Errorf("creating progress for %s: %w", userID, err)
	}
}

func withLocations(p mapquiz.UserQuizProgress) mapquiz.UserQuizProgress {
	if p.Locations == nil {
		p.Locations = map[string]mapquiz.LocationProgress{}
	}
	return p
}

// Commit persists next after a riddle was solved. It first attempts a
// targeted update of the four fields that changed under the location; if
// that fails for any reason it merge-writes the whole of next. Failures are
// logged and reported through the Outcome only.
func (c *Client) Commit(ctx context.Context, userID string, next mapquiz.UserQuizProgress, locationID, riddleID string) Outcome {
	fields := changedFields(next, locationID, riddleID)

	_, err := c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.docs.Update(ctx, userID, fields)
	})
	if err == nil {
		c.metrics.commits.WithLabelValues(OutcomeTargeted.String()).Inc()
		return OutcomeTargeted
	}
	c.logger.Warn("targeted progress update failed, falling back to merge write",
		"user_id", userID, "location_id", locationID, "error", err)

	_, err = c.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, c.docs.MergeSet(ctx, userID, next)
	})
	if err == nil {
		c.metrics.commits.WithLabelValues(OutcomeFallback.String()).Inc()
		return OutcomeFallback
	}
	c.logger.Error("progress merge write failed",
		"user_id", userID, "location_id", locationID, "error", err)
	c.metrics.commits.WithLabelValues(OutcomeFailed.String()).Inc()
	return OutcomeFailed
}

func changedFields(next mapquiz.UserQuizProgress, locationID, riddleID string) []docstore.Field {
	lp := next.Locations[locationID]
	return []docstore.Field{
		{Path: []string{"locations", locationID, "answeredQuestionIds"}, Value: lp.AnsweredQuestionIDs},
		{Path: []string{"locations", locationID, "score"}, Value: lp.Score},
		{Path: []string{"locations", locationID, "answers", riddleID}, Value: lp.Answers[riddleID]},
		{Path: []string{"updatedAt"}, Value: next.UpdatedAt},
	}
}
