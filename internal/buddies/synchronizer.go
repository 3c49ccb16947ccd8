// Package buddies keeps the current user's buddy relationships in sync with
// the remote edge table.
package buddies

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/logging"
	"github.com/proimagery/ferdi-app-sub000/internal/models"
	"github.com/proimagery/ferdi-app-sub000/internal/notify"
	"github.com/proimagery/ferdi-app-sub000/internal/repositories"
)

var (
	// ErrInFlight is returned when a mutation for the same counterpart is outstanding.
	ErrInFlight = errors.New("buddies: operation already in flight for counterpart")
	// ErrGuest is returned when no user is signed in.
	ErrGuest = errors.New("buddies: no signed-in user")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("buddies: synchronizer closed")
	// ErrInvalidCounterpart is returned for an empty id or the user's own id.
	ErrInvalidCounterpart = errors.New("buddies: invalid counterpart")
	// ErrExists is returned when a request or buddyship already exists.
	ErrExists = errors.New("buddies: relationship already exists")
	// ErrWrongState is returned when the edge is not in the state the operation needs.
	ErrWrongState = errors.New("buddies: relationship not in required state")
)

const (
	watchBaseBackoff = 500 * time.Millisecond
	watchMaxBackoff  = 30 * time.Second
)

// Config wires a Synchronizer.
type Config struct {
	UserID   string
	Edges    repositories.BuddyRepository
	Profiles repositories.ProfileRepository
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// Synchronizer owns the buddy projections of one user. Local mutations and
// refresh results are both applied through reduce.
type Synchronizer struct {
	me       string
	edges    repositories.BuddyRepository
	profiles repositories.ProfileRepository
	notifier notify.Notifier
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	closed     bool
	done       chan struct{}
	refreshSeq uint64
	appliedSeq uint64

	guardMu  sync.Mutex
	inFlight map[string]struct{}

	backoff time.Duration
}

// New returns a Synchronizer for cfg.UserID.
func New(cfg Config) *Synchronizer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.LogNotifier{Logger: logger}
	}
	return &Synchronizer{
		me:       cfg.UserID,
		edges:    cfg.Edges,
		profiles: cfg.Profiles,
		notifier: notifier,
		logger:   logger.With("component", "buddies"),
		state:    newState(cfg.UserID),
		inFlight: map[string]struct{}{},
		done:     make(chan struct{}),
		backoff:  watchBaseBackoff,
	}
}

// State returns the current projections.
func (s *Synchronizer) State() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.View()
}

// Relation reports how the user currently relates to counterpart.
func (s *Synchronizer) Relation(counterpart string) Relation {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, rel := s.state.Edge(counterpart)
	return rel
}

// Close stops the synchronizer; results arriving afterwards are discarded.
func (s *Synchronizer) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.done)
	}
	s.mu.Unlock()
}

// Send requests a buddyship with counterpart. If counterpart already has a
// pending request to the user, that request is accepted instead.
func (s *Synchronizer) Send(ctx context.Context, counterpart string) error {
	return s.mutate(ctx, "send", counterpart, func(ctx context.Context) error {
		edge, rel := s.edge(counterpart)
		switch rel {
		case RelationIncoming:
			return s.accept(ctx, edge)
		case RelationOutgoing, RelationAccepted:
			return ErrExists
		}

		saved, err := s.edges.InsertEdge(ctx, models.BuddyEdge{
			UserID:  s.me,
			BuddyID: counterpart,
			Status:  models.BuddyStatusPending,
		})
		if errors.Is(err, repositories.ErrConflict) {
			// the pair gained an edge since the last refresh
			if rerr := s.Refresh(ctx); rerr != nil {
				return fmt.Errorf("insert edge: %w", err)
			}
			if edge, rel := s.edge(counterpart); rel == RelationIncoming {
				return s.accept(ctx, edge)
			}
			return ErrExists
		}
		if err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
		s.apply(ctx, EdgeSaved{Edge: saved})
		return nil
	})
}

// Accept accepts the pending request from counterpart.
func (s *Synchronizer) Accept(ctx context.Context, counterpart string) error {
	return s.mutate(ctx, "accept", counterpart, func(ctx context.Context) error {
		edge, rel := s.edge(counterpart)
		if rel != RelationIncoming {
			return ErrWrongState
		}
		return s.accept(ctx, edge)
	})
}

// Reject deletes the pending request from counterpart.
func (s *Synchronizer) Reject(ctx context.Context, counterpart string) error {
	return s.mutate(ctx, "reject", counterpart, func(ctx context.Context) error {
		return s.deleteEdge(ctx, counterpart, RelationIncoming)
	})
}

// Cancel withdraws the user's pending request to counterpart.
func (s *Synchronizer) Cancel(ctx context.Context, counterpart string) error {
	return s.mutate(ctx, "cancel", counterpart, func(ctx context.Context) error {
		return s.deleteEdge(ctx, counterpart, RelationOutgoing)
	})
}

// Remove ends an accepted buddyship.
func (s *Synchronizer) Remove(ctx context.Context, counterpart string) error {
	return s.mutate(ctx, "remove", counterpart, func(ctx context.Context) error {
		return s.deleteEdge(ctx, counterpart, RelationAccepted)
	})
}

// SetHighlighted marks or unmarks an accepted buddy.
func (s *Synchronizer) SetHighlighted(ctx context.Context, counterpart string, highlighted bool) error {
	return s.mutate(ctx, "highlight", counterpart, func(ctx context.Context) error {
		edge, rel := s.edge(counterpart)
		if rel != RelationAccepted {
			return ErrWrongState
		}
		if err := s.edges.SetEdgeHighlighted(ctx, edge.ID, highlighted); err != nil {
			return fmt.Errorf("highlight edge: %w", err)
		}
		edge.Highlighted = highlighted
		s.apply(ctx, EdgeSaved{Edge: edge})
		return nil
	})
}

// Refresh re-derives every projection from the remote edge set and notifies
// about incoming requests not seen by the previous refresh. A failed edge
// read leaves the state unchanged.
func (s *Synchronizer) Refresh(ctx context.Context) error {
	if s.me == "" {
		return ErrGuest
	}
	ctx, span := s.span(ctx, "buddies.refresh")
	defer span.End()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.refreshSeq++
	seq := s.refreshSeq
	s.mu.Unlock()

	edges, err := s.edges.ListEdges(ctx, s.me)
	if err != nil {
		span.Fail(err)
		logging.FromContext(ctx).Warn("buddy refresh failed", "error", err)
		return fmt.Errorf("list edges: %w", err)
	}

	ev := Refreshed{Edges: edges}
	if ids := profileIDs(s.me, edges); len(ids) > 0 && s.profiles != nil {
		profiles, err := s.profiles.ProfilesByIDs(ctx, ids)
		if err != nil {
			logging.FromContext(ctx).Warn("buddy profile fetch failed", "error", err)
			ev.ProfilesFailed = true
		}
		ev.Profiles = profiles
	}

	s.mu.Lock()
	if s.closed || seq < s.appliedSeq {
		s.mu.Unlock()
		return nil
	}
	s.appliedSeq = seq
	var effects []Effect
	s.state, effects = reduce(s.state, ev)
	s.mu.Unlock()

	s.run(ctx, effects)
	return nil
}

// Watch refreshes whenever feed reports a change to an edge addressed to the
// user. A failed or closed subscription is retried with exponential backoff,
// and each resubscription refreshes once to pick up changes missed in
// between. Watch returns ctx's error when ctx ends and nil after Close.
func (s *Synchronizer) Watch(ctx context.Context, feed repositories.BuddyChangeFeed) error {
	if s.me == "" {
		return ErrGuest
	}

	backoff := s.backoff
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-s.done:
				timer.Stop()
				return nil
			case <-timer.C:
			}
			backoff = min(backoff*2, watchMaxBackoff)
		}

		changes, err := feed.SubscribeBuddyChanges(ctx, s.me)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Warn("buddy change subscription failed", "error", err, "retry_in", backoff)
			continue
		}

		if attempt > 0 {
			if err := s.Refresh(ctx); errors.Is(err, ErrClosed) {
				return nil
			} else if err != nil {
				s.logger.Warn("catch-up buddy refresh failed", "error", err)
			}
		}

		received, err := s.follow(ctx, changes)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		if received {
			backoff = s.backoff
		}
		s.logger.Warn("buddy change feed closed, resubscribing", "retry_in", backoff)
	}
}

// follow refreshes for every change until the channel closes, ctx ends or
// the synchronizer is closed. It reports whether any change arrived.
func (s *Synchronizer) follow(ctx context.Context, changes <-chan repositories.BuddyChange) (bool, error) {
	received := false
	for {
		select {
		case <-ctx.Done():
			return received, ctx.Err()
		case <-s.done:
			return received, ErrClosed
		case change, ok := <-changes:
			if !ok {
				if ctx.Err() != nil {
					return received, ctx.Err()
				}
				return received, nil
			}
			received = true
			s.logger.Debug("buddy change received", "op", change.Op, "edge_id", change.Edge.ID)
			if err := s.Refresh(ctx); errors.Is(err, ErrClosed) {
				return received, err
			}
		}
	}
}

func (s *Synchronizer) mutate(ctx context.Context, op, counterpart string, fn func(ctx context.Context) error) error {
	if s.me == "" {
		return ErrGuest
	}
	if counterpart == "" || counterpart == s.me {
		return ErrInvalidCounterpart
	}
	release, err := s.acquire(counterpart)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	ctx, span := s.span(ctx, "buddies."+op)
	defer span.End()

	if err := fn(ctx); err != nil {
		span.Fail(err)
		logging.FromContext(ctx).Warn("buddy operation failed", "op", op, "counterpart", counterpart, "error", err)
		return err
	}

	if err := s.Refresh(ctx); err != nil && !errors.Is(err, ErrClosed) {
		logging.FromContext(ctx).Warn("refresh after buddy operation failed", "op", op, "error", err)
	}
	return nil
}

// acquire marks counterpart as busy. The returned release must be called.
func (s *Synchronizer) acquire(counterpart string) (func(), error) {
	s.guardMu.Lock()
	defer s.guardMu.Unlock()
	if _, busy := s.inFlight[counterpart]; busy {
		return nil, ErrInFlight
	}
	s.inFlight[counterpart] = struct{}{}
	return func() {
		s.guardMu.Lock()
		delete(s.inFlight, counterpart)
		s.guardMu.Unlock()
	}, nil
}

func (s *Synchronizer) accept(ctx context.Context, edge models.BuddyEdge) error {
	if err := s.edges.UpdateEdgeStatus(ctx, edge.ID, models.BuddyStatusAccepted); err != nil {
		return fmt.Errorf("accept edge: %w", err)
	}
	edge.Status = models.BuddyStatusAccepted
	s.apply(ctx, EdgeSaved{Edge: edge})
	return nil
}

func (s *Synchronizer) deleteEdge(ctx context.Context, counterpart string, want Relation) error {
	edge, rel := s.edge(counterpart)
	if rel != want {
		return ErrWrongState
	}
	if err := s.edges.DeleteEdge(ctx, edge.ID); err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	s.apply(ctx, EdgeRemoved{Counterpart: counterpart})
	return nil
}

func (s *Synchronizer) edge(counterpart string) (models.BuddyEdge, Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Edge(counterpart)
}

func (s *Synchronizer) apply(ctx context.Context, ev Event) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var effects []Effect
	s.state, effects = reduce(s.state, ev)
	s.mu.Unlock()

	s.run(ctx, effects)
}

func (s *Synchronizer) run(ctx context.Context, effects []Effect) {
	for _, effect := range effects {
		switch e := effect.(type) {
		case NotifyEffect:
			s.notifier.Notify(ctx, e.Description)
		case BadgeEffect:
			s.notifier.SetBadgeCount(ctx, e.Count)
		}
	}
}

func (s *Synchronizer) span(ctx context.Context, name string) (context.Context, *logging.Span) {
	if logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, s.logger)
	}
	return logging.StartSpan(logging.WithUser(ctx, s.me), name)
}

// profileIDs lists accepted buddies and incoming requesters.
func profileIDs(me string, edges []models.BuddyEdge) []string {
	seen := map[string]struct{}{}
	var ids []string
	for _, edge := range edges {
		rel, counterpart := Resolve(me, edge)
		if rel != RelationAccepted && rel != RelationIncoming {
			continue
		}
		if _, ok := seen[counterpart]; ok {
			continue
		}
		seen[counterpart] = struct{}{}
		ids = append(ids, counterpart)
	}
	sort.Strings(ids)
	return ids
}
