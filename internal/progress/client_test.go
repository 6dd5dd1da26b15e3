package progress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"

	"github.com/langcham/mapquiz/internal/database"
	"github.com/langcham/mapquiz/internal/docstore"
	"github.com/langcham/mapquiz/internal/mapquiz"
	"github.com/langcham/mapquiz/internal/migrations"
)

var errUnavailable = errors.New("store unavailable")

// fakeStore keeps documents in memory and records the writes it receives.
type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]mapquiz.UserQuizProgress
	getErr    error
	createErr error
	updateErr error
	mergeErr  error
	// updateGate, when set, holds every Update until it is closed.
	updateGate chan struct{}
	gets      int
	creates   int
	updates   [][]docstore.Field
	merges    []mapquiz.UserQuizProgress
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]mapquiz.UserQuizProgress)}
}

func (f *fakeStore) Get(_ context.Context, id string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return f.getErr
	}
	p, ok := f.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	*dest.(*mapquiz.UserQuizProgress) = p.Clone()
	return nil
}

func (f *fakeStore) Create(_ context.Context, id string, doc any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.docs[id]; ok {
		return docstore.ErrExists
	}
	f.docs[id] = doc.(mapquiz.UserQuizProgress).Clone()
	return nil
}

func (f *fakeStore) Update(_ context.Context, id string, fields []docstore.Field) error {
	if f.updateGate != nil {
		<-f.updateGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fields)
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.docs[id]
	if !ok {
		return docstore.ErrNotFound
	}
	next, err := applyFields(p, fields)
	if err != nil {
		return err
	}
	f.docs[id] = next
	return nil
}

// applyFields sets each field path on the JSON form of p, the way the
// libsql collection patches a stored document.
func applyFields(p mapquiz.UserQuizProgress, fields []docstore.Field) (mapquiz.UserQuizProgress, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return p, err
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return p, err
	}
	for _, f := range fields {
		node := doc
		for _, key := range f.Path[:len(f.Path)-1] {
			child, ok := node[key].(map[string]any)
			if !ok {
				child = map[string]any{}
				node[key] = child
			}
			node = child
		}
		node[f.Path[len(f.Path)-1]] = f.Value
	}
	if raw, err = json.Marshal(doc); err != nil {
		return p, err
	}
	var next mapquiz.UserQuizProgress
	if err := json.Unmarshal(raw, &next); err != nil {
		return p, err
	}
	return next, nil
}

func (f *fakeStore) MergeSet(_ context.Context, id string, doc any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := doc.(mapquiz.UserQuizProgress)
	f.merges = append(f.merges, p.Clone())
	if f.mergeErr != nil {
		return f.mergeErr
	}
	f.docs[id] = p.Clone()
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(docs DocumentStore) *Client {
	return NewClient(docs, discardLogger(), NewMetrics())
}

func hanoiProgress() mapquiz.UserQuizProgress {
	return mapquiz.ApplyCorrectAnswer(nil, "hn", "hn-riddle", "BATTRANG")
}

func TestLoadCreatesMissingDocument(t *testing.T) {
	store := newFakeStore()
	c := newTestClient(store)

	p, err := c.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.Locations == nil || len(p.Locations) != 0 {
		t.Errorf("locations = %v, want empty map", p.Locations)
	}
	if store.creates != 1 {
		t.Errorf("creates = %d, want 1", store.creates)
	}
	if _, ok := store.docs["u1"]; !ok {
		t.Error("document was not created")
	}

	// A second load reads the created document instead of creating again.
	if _, err := c.Load(context.Background(), "u1"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if store.creates != 1 {
		t.Errorf("creates after second load = %d, want 1", store.creates)
	}
}

func TestLoadExistingDocument(t *testing.T) {
	store := newFakeStore()
	store.docs["u1"] = hanoiProgress()
	c := newTestClient(store)

	p, err := c.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !p.IsAnswered("hn", "hn-riddle") {
		t.Errorf("progress = %+v, want hn answered", p)
	}
	if store.creates != 0 {
		t.Errorf("creates = %d, want 0", store.creates)
	}
}

// lateCreateStore reports a missing document, then loses the create race.
type lateCreateStore struct {
	*fakeStore
	missOnce sync.Once
}

func (s *lateCreateStore) Get(ctx context.Context, id string, dest any) error {
	miss := false
	s.missOnce.Do(func() { miss = true })
	if miss {
		return docstore.ErrNotFound
	}
	return s.fakeStore.Get(ctx, id, dest)
}

func TestLoadRereadsAfterLostCreateRace(t *testing.T) {
	inner := newFakeStore()
	inner.docs["u1"] = hanoiProgress()
	c := newTestClient(&lateCreateStore{fakeStore: inner})

	p, err := c.Load(context.Background(), "u1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !p.IsAnswered("hn", "hn-riddle") {
		t.Errorf("progress = %+v, want the document written by the winner", p)
	}
}

func TestLoadPropagatesReadErrors(t *testing.T) {
	store := newFakeStore()
	store.getErr = errUnavailable
	c := newTestClient(store)

	if _, err := c.Load(context.Background(), "u1"); !errors.Is(err, errUnavailable) {
		t.Fatalf("err = %v, want %v", err, errUnavailable)
	}
	if store.creates != 0 {
		t.Errorf("creates = %d, want 0", store.creates)
	}
}

func TestCommitTargetedFields(t *testing.T) {
	store := newFakeStore()
	store.docs["u1"] = mapquiz.EmptyProgress()
	c := newTestClient(store)

	next := hanoiProgress()
	if got := c.Commit(context.Background(), "u1", next, "hn", "hn-riddle"); got != OutcomeTargeted {
		t.Fatalf("outcome = %v, want targeted", got)
	}
	if len(store.merges) != 0 {
		t.Errorf("merges = %d, want 0", len(store.merges))
	}
	if len(store.updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(store.updates))
	}

	want := []docstore.Field{
		{Path: []string{"locations", "hn", "answeredQuestionIds"}, Value: []string{"hn-riddle"}},
		{Path: []string{"locations", "hn", "score"}, Value: 1},
		{Path: []string{"locations", "hn", "answers", "hn-riddle"}, Value: "BATTRANG"},
		{Path: []string{"updatedAt"}, Value: next.UpdatedAt},
	}
	if !reflect.DeepEqual(store.updates[0], want) {
		t.Errorf("fields = %+v, want %+v", store.updates[0], want)
	}
}

func TestCommitFallsBackToMergeWrite(t *testing.T) {
	tests := []struct {
		name      string
		seed      bool
		updateErr error
	}{
		{name: "document missing", seed: false},
		{name: "transient update fault", seed: true, updateErr: errUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeStore()
			if tt.seed {
				store.docs["u1"] = mapquiz.EmptyProgress()
			}
			store.updateErr = tt.updateErr
			c := newTestClient(store)

			next := hanoiProgress()
			if got := c.Commit(context.Background(), "u1", next, "hn", "hn-riddle"); got != OutcomeFallback {
				t.Fatalf("outcome = %v, want fallback", got)
			}
			if len(store.merges) != 1 {
				t.Fatalf("merges = %d, want 1", len(store.merges))
			}
			if !reflect.DeepEqual(store.merges[0], next) {
				t.Errorf("merged %+v, want the full next value %+v", store.merges[0], next)
			}
		})
	}
}

func TestCommitFailureIsAbsorbed(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errUnavailable
	store.mergeErr = errUnavailable
	c := newTestClient(store)

	if got := c.Commit(context.Background(), "u1", hanoiProgress(), "hn", "hn-riddle"); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
}

func TestBreakerOpensAfterRepeatedFaults(t *testing.T) {
	store := newFakeStore()
	store.updateErr = errUnavailable
	store.mergeErr = errUnavailable
	c := newTestClient(store)
	ctx := context.Background()

	// Each failed commit counts two breaker failures.
	for range 3 {
		c.Commit(ctx, "u1", hanoiProgress(), "hn", "hn-riddle")
	}
	writes := len(store.updates) + len(store.merges)

	if got := c.Commit(ctx, "u1", hanoiProgress(), "hn", "hn-riddle"); got != OutcomeFailed {
		t.Fatalf("outcome = %v, want failed", got)
	}
	if n := len(store.updates) + len(store.merges); n != writes {
		t.Errorf("store saw %d writes while the breaker was open", n-writes)
	}
}

func TestMissingDocumentDoesNotTripBreaker(t *testing.T) {
	store := newFakeStore()
	c := newTestClient(store)
	ctx := context.Background()

	// Every commit misses the document and succeeds through the fallback,
	// which then creates it; drop it again to keep missing.
	for i := range 10 {
		if got := c.Commit(ctx, "u1", hanoiProgress(), "hn", "hn-riddle"); got != OutcomeFallback {
			t.Fatalf("commit %d: outcome = %v, want fallback", i, got)
		}
		store.mu.Lock()
		delete(store.docs, "u1")
		store.mu.Unlock()
	}
}

func TestCommitAsyncOutlivesRequestContext(t *testing.T) {
	store := newFakeStore()
	store.docs["u1"] = mapquiz.EmptyProgress()
	c := newTestClient(store)

	ctx, cancel := context.WithCancel(context.Background())
	task := c.CommitAsync(ctx, "u1", hanoiProgress(), "hn", "hn-riddle")
	cancel()

	if got := task.Wait(); got != OutcomeTargeted {
		t.Fatalf("outcome = %v, want targeted", got)
	}
	select {
	case <-task.Done():
	default:
		t.Fatal("Done not closed after Wait returned")
	}
}

func TestDrainWaitsForTasks(t *testing.T) {
	store := newFakeStore()
	c := newTestClient(store)

	tasks := make([]*Task, 0, 5)
	for range 5 {
		tasks = append(tasks, c.CommitAsync(context.Background(), "u1", hanoiProgress(), "hn", "hn-riddle"))
	}
	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	for i, task := range tasks {
		select {
		case <-task.Done():
		default:
			t.Errorf("task %d still running after drain", i)
		}
	}
}

func TestDrainHonorsContext(t *testing.T) {
	c := newTestClient(newFakeStore())
	c.tasks.Add(1)
	defer c.tasks.Done()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Drain(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func setupDocs(t *testing.T) *docstore.Collection {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := migrations.Run(ctx, db, discardLogger()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return docstore.New(db).Collection(Collection)
}

func TestCommitKeepsOtherLocations(t *testing.T) {
	docs := setupDocs(t)
	c := newTestClient(docs)
	ctx := context.Background()

	if _, err := c.Load(ctx, "u1"); err != nil {
		t.Fatalf("load: %v", err)
	}

	// Two sessions of the same user each unlock a different location.
	tabA := mapquiz.ApplyCorrectAnswer(nil, "hn", "hn-riddle", "BATTRANG")
	tabB := mapquiz.ApplyCorrectAnswer(nil, "hue", "hue-riddle", "HUE")
	if got := c.Commit(ctx, "u1", tabA, "hn", "hn-riddle"); got != OutcomeTargeted {
		t.Fatalf("commit A = %v, want targeted", got)
	}
	if got := c.Commit(ctx, "u1", tabB, "hue", "hue-riddle"); got != OutcomeTargeted {
		t.Fatalf("commit B = %v, want targeted", got)
	}

	p, err := c.Load(ctx, "u1")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	for _, loc := range []string{"hn", "hue"} {
		if !p.IsAnswered(loc, mapquiz.RiddleID(loc)) {
			t.Errorf("%s not answered in %+v", loc, p)
		}
	}
	if !p.Valid() {
		t.Errorf("stored progress violates score invariant: %+v", p)
	}
}

func TestCommitFallbackCreatesDocument(t *testing.T) {
	docs := setupDocs(t)
	c := newTestClient(docs)
	ctx := context.Background()

	next := hanoiProgress()
	if got := c.Commit(ctx, "u1", next, "hn", "hn-riddle"); got != OutcomeFallback {
		t.Fatalf("outcome = %v, want fallback", got)
	}

	var stored mapquiz.UserQuizProgress
	if err := docs.Get(ctx, "u1", &stored); err != nil {
		t.Fatalf("get: %v", err)
	}
	if !reflect.DeepEqual(stored, next) {
		t.Errorf("stored %+v, want %+v", stored, next)
	}
}
