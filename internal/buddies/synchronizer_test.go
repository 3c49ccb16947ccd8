package buddies

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
	"github.com/proimagery/ferdi-app-sub000/internal/notify"
	"github.com/proimagery/ferdi-app-sub000/internal/repositories"
)

func newTestSync(t *testing.T, me string, repo *repositories.Memory) (*Synchronizer, *notify.Recorder) {
	t.Helper()
	rec := notify.NewRecorder(nil)
	s := New(Config{
		UserID:   me,
		Edges:    repo,
		Profiles: repo,
		Notifier: rec,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(s.Close)
	return s, rec
}

func request(t *testing.T, repo *repositories.Memory, from, to string) models.BuddyEdge {
	t.Helper()
	edge, err := repo.InsertEdge(context.Background(), models.BuddyEdge{UserID: from, BuddyID: to, Status: models.BuddyStatusPending})
	if err != nil {
		t.Fatalf("insert edge: %v", err)
	}
	return edge
}

func TestRefreshNotifiesOncePerNewRequest(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	_ = repo.UpsertProfile(ctx, models.Profile{ID: "ana", DisplayName: "Ana"})
	_ = repo.UpsertProfile(ctx, models.Profile{ID: "ben", DisplayName: "Ben"})
	s, rec := newTestSync(t, "me", repo)

	request(t, repo, "ana", "me")
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got := rec.Notifications(); len(got) != 1 {
		t.Fatalf("expected one notification after two refreshes got %v", got)
	}

	request(t, repo, "ben", "me")
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	want := []string{"New buddy request from Ana", "New buddy request from Ben"}
	if got := rec.Notifications(); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	if rec.Badge() != 2 {
		t.Fatalf("expected badge 2 got %d", rec.Badge())
	}
}

func TestRefreshIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	s, _ := newTestSync(t, "me", repo)

	request(t, repo, "ana", "me")
	request(t, repo, "me", "ben")

	_ = s.Refresh(ctx)
	first := s.State()
	_ = s.Refresh(ctx)
	if second := s.State(); !reflect.DeepEqual(first, second) {
		t.Fatalf("expected converged projections got %+v then %+v", first, second)
	}
}

func TestSendToPendingCounterpartAccepts(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	s, _ := newTestSync(t, "me", repo)

	request(t, repo, "ana", "me")
	if err := s.Refresh(ctx); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	if err := s.Send(ctx, "ana"); err != nil {
		t.Fatalf("send: %v", err)
	}

	edges, _ := repo.ListEdges(ctx, "me")
	if len(edges) != 1 || edges[0].Status != models.BuddyStatusAccepted {
		t.Fatalf("expected exactly one accepted edge got %+v", edges)
	}
	if rel := s.Relation("ana"); rel != RelationAccepted {
		t.Fatalf("expected accepted relation got %s", rel)
	}
}

func TestSendAcceptsRequestNotYetRefreshed(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	s, _ := newTestSync(t, "me", repo)

	request(t, repo, "ana", "me")

	if err := s.Send(ctx, "ana"); err != nil {
		t.Fatalf("send: %v", err)
	}

	edges, _ := repo.ListEdges(ctx, "me")
	if len(edges) != 1 || edges[0].Status != models.BuddyStatusAccepted {
		t.Fatalf("expected exactly one accepted edge got %+v", edges)
	}
}

func TestSendTwiceReportsExisting(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	s, _ := newTestSync(t, "me", repo)

	if err := s.Send(ctx, "ana"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Send(ctx, "ana"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists got %v", err)
	}
	if v := s.State(); len(v.Outgoing) != 1 || v.Outgoing[0] != "ana" {
		t.Fatalf("unexpected outgoing %v", v.Outgoing)
	}
}

func TestLifecycleTransitions(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	s, _ := newTestSync(t, "me", repo)

	request(t, repo, "ana", "me")
	request(t, repo, "ben", "me")
	_ = s.Refresh(ctx)

	if err := s.Reject(ctx, "ben"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := s.Remove(ctx, "ana"); !errors.Is(err, ErrWrongState) {
		t.Fatalf("expected ErrWrongState removing a pending request got %v", err)
	}
	if err := s.Accept(ctx, "ana"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := s.SetHighlighted(ctx, "ana", true); err != nil {
		t.Fatalf("highlight: %v", err)
	}

	v := s.State()
	if !reflect.DeepEqual(v.Accepted, []string{"ana"}) || !reflect.DeepEqual(v.Highlighted, []string{"ana"}) || len(v.Incoming) != 0 {
		t.Fatalf("unexpected view %+v", v)
	}

	if err := s.Remove(ctx, "ana"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Send(ctx, "cleo"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := s.Cancel(ctx, "cleo"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	edges, _ := repo.ListEdges(ctx, "me")
	if len(edges) != 0 {
		t.Fatalf("expected no edges left got %+v", edges)
	}
}

func TestInvalidCounterpartAndGuest(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	s, _ := newTestSync(t, "me", repo)

	if err := s.Send(ctx, "me"); !errors.Is(err, ErrInvalidCounterpart) {
		t.Fatalf("expected ErrInvalidCounterpart got %v", err)
	}

	guest, _ := newTestSync(t, "", repo)
	if err := guest.Send(ctx, "ana"); !errors.Is(err, ErrGuest) {
		t.Fatalf("expected ErrGuest got %v", err)
	}
	if err := guest.Refresh(ctx); !errors.Is(err, ErrGuest) {
		t.Fatalf("expected ErrGuest got %v", err)
	}
}

type blockingEdges struct {
	*repositories.Memory
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingEdges) InsertEdge(ctx context.Context, edge models.BuddyEdge) (models.BuddyEdge, error) {
	if edge.BuddyID == "ana" {
		b.once.Do(func() { close(b.started) })
		<-b.release
	}
	return b.Memory.InsertEdge(ctx, edge)
}

func TestConcurrentMutationForSameCounterpartIsRejected(t *testing.T) {
	ctx := context.Background()
	mem := repositories.NewMemory()
	edges := &blockingEdges{Memory: mem, started: make(chan struct{}), release: make(chan struct{})}
	s := New(Config{UserID: "me", Edges: edges, Profiles: mem, Notifier: notify.NewRecorder(nil), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	done := make(chan error, 1)
	go func() { done <- s.Send(ctx, "ana") }()
	<-edges.started

	if err := s.Send(ctx, "ana"); !errors.Is(err, ErrInFlight) {
		t.Fatalf("expected ErrInFlight got %v", err)
	}
	if err := s.Send(ctx, "ben"); err != nil {
		t.Fatalf("expected other counterpart unaffected got %v", err)
	}

	close(edges.release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}

	all, _ := mem.ListEdges(ctx, "me")
	if len(all) != 2 {
		t.Fatalf("expected one edge per counterpart got %+v", all)
	}
	if err := s.Cancel(ctx, "ana"); err != nil {
		t.Fatalf("expected guard released after completion got %v", err)
	}
}

func TestWatchRefreshesOnIncomingChange(t *testing.T) {
	repo := repositories.NewMemory()
	s, rec := newTestSync(t, "me", repo)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, repo) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(s.State().Incoming) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for refresh from change feed")
		}
		// subscription may not be registered yet; keep nudging
		edges, _ := repo.ListEdges(context.Background(), "me")
		if len(edges) == 0 {
			request(t, repo, "ana", "me")
		} else {
			_ = repo.SetEdgeHighlighted(context.Background(), edges[0].ID, false)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := rec.Notifications(); len(got) != 1 {
		t.Fatalf("expected one notification got %v", got)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestCloseDiscardsLateResults(t *testing.T) {
	ctx := context.Background()
	repo := repositories.NewMemory()
	s, rec := newTestSync(t, "me", repo)

	request(t, repo, "ana", "me")
	s.Close()

	if err := s.Refresh(ctx); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed got %v", err)
	}
	if err := s.Send(ctx, "ben"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed got %v", err)
	}
	if len(s.State().Incoming) != 0 || len(rec.Notifications()) != 0 {
		t.Fatal("expected no state change after close")
	}
}

// droppingFeed closes its first subscription at once, fails the second and
// keeps later ones open on live.
type droppingFeed struct {
	mu    sync.Mutex
	calls int
	live  chan repositories.BuddyChange
}

func (f *droppingFeed) SubscribeBuddyChanges(context.Context, string) (<-chan repositories.BuddyChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	switch f.calls {
	case 1:
		ch := make(chan repositories.BuddyChange)
		close(ch)
		return ch, nil
	case 2:
		return nil, errors.New("connection refused")
	default:
		return f.live, nil
	}
}

func (f *droppingFeed) subscriptions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWatchResubscribesAfterFeedDrops(t *testing.T) {
	repo := repositories.NewMemory()
	s, rec := newTestSync(t, "me", repo)
	s.backoff = time.Millisecond
	feed := &droppingFeed{live: make(chan repositories.BuddyChange)}

	request(t, repo, "ana", "me")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Watch(ctx, feed) }()

	waitFor(t, "catch-up refresh after resubscribing", func() bool {
		return feed.subscriptions() == 3 && len(s.State().Incoming) == 1
	})

	edge := request(t, repo, "ben", "me")
	feed.live <- repositories.BuddyChange{Op: repositories.ChangeInsert, Edge: edge}

	waitFor(t, "refresh from the new subscription", func() bool {
		return len(s.State().Incoming) == 2
	})
	if got := rec.Notifications(); len(got) != 2 {
		t.Fatalf("expected two notifications got %v", got)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after cancel")
	}
}

func TestCloseStopsIdleWatch(t *testing.T) {
	repo := repositories.NewMemory()
	s, _ := newTestSync(t, "me", repo)
	feed := &droppingFeed{calls: 2, live: make(chan repositories.BuddyChange)}

	done := make(chan error, 1)
	go func() { done <- s.Watch(context.Background(), feed) }()

	waitFor(t, "subscription", func() bool { return feed.subscriptions() == 3 })
	s.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after close got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not stop after close")
	}
}
