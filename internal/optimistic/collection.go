// Package optimistic keeps an in-memory collection consistent with a remote
// store. Mutations are applied locally first, persisted in the background and
// rolled back when the remote write fails.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/proimagery/ferdi-app-sub000/internal/clock"
	"github.com/proimagery/ferdi-app-sub000/internal/dispatch"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
)

const tempPrefix = "tmp-"

var (
	// ErrClosed is returned by mutations on a closed collection.
	ErrClosed = errors.New("optimistic: collection closed")
	// ErrIndexOutOfRange is returned when a mutation targets a missing position.
	ErrIndexOutOfRange = errors.New("optimistic: index out of range")
	// ErrPendingCreate is returned when updating or deleting a record whose
	// create has not been confirmed yet.
	ErrPendingCreate = errors.New("optimistic: record not yet persisted")
)

// IsTemporary reports whether id was minted locally and not yet confirmed.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

// Remote persists one kind of record for a user.
type Remote[T any] interface {
	List(ctx context.Context, userID string) ([]T, error)
	Insert(ctx context.Context, userID string, item T) (string, error)
	Update(ctx context.Context, userID string, item T) error
	Delete(ctx context.Context, userID string, item T) error
}

// Identity tells the collection how to read, assign and copy record ids.
type Identity[T any] struct {
	ID    func(T) string
	SetID func(T, string) T
	Clone func(T) T
}

// Executor runs remote writes asynchronously.
type Executor interface {
	Submit(ctx context.Context, job dispatch.Job) error
}

// Config wires a collection.
type Config[T any] struct {
	Name     string
	UserID   string
	Remote   Remote[T]
	Identity Identity[T]
	Executor Executor
	Clock    clock.Clock
	Logger   *slog.Logger
}

// Collection is an ordered, optimistically mutated list of records.
type Collection[T any] struct {
	name     string
	userID   string
	remote   Remote[T]
	ident    Identity[T]
	executor Executor
	clock    clock.Clock
	logger   *slog.Logger

	mu      sync.Mutex
	items   []T
	closed  bool
	seq     uint64
	revs    map[string]uint64
	subs    map[int]func([]T)
	nextSub int
}

// New builds an empty collection. An empty UserID means a guest: mutations
// stay local and are never persisted.
func New[T any](cfg Config[T]) *Collection[T] {
	if cfg.Identity.Clone == nil {
		cfg.Identity.Clone = func(v T) T { return v }
	}
	if cfg.Executor == nil {
		cfg.Executor = dispatch.Inline{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Collection[T]{
		name:     cfg.Name,
		userID:   cfg.UserID,
		remote:   cfg.Remote,
		ident:    cfg.Identity,
		executor: cfg.Executor,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With(slog.String("collection", cfg.Name)),
		revs:     make(map[string]uint64),
		subs:     make(map[int]func([]T)),
	}
}

// Guest reports whether the collection is local-only.
func (c *Collection[T]) Guest() bool { return c.userID == "" || c.remote == nil }

// Items returns a copy of the current records.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copyLocked()
}

// Len returns the number of records.
func (c *Collection[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Subscribe registers fn to receive a copy of the records after every change.
func (c *Collection[T]) Subscribe(fn func([]T)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Close marks the collection inactive. Remote completions that arrive later
// are discarded.
func (c *Collection[T]) Close() {
	c.mu.Lock()
	c.closed = true
	c.subs = make(map[int]func([]T))
	c.mu.Unlock()
}

// Load replaces the records with the remote copy. On failure the collection
// is left unchanged.
func (c *Collection[T]) Load(ctx context.Context) error {
	if c.Guest() {
		return nil
	}

	ctx, span := c.span(ctx, "load")
	defer span.End()

	items, err := c.remote.List(ctx, c.userID)
	if err != nil {
		span.Fail(err)
		return fmt.Errorf("load %s: %w", c.name, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.items = make([]T, 0, len(items))
	for _, item := range items {
		c.items = append(c.items, c.ident.Clone(item))
	}
	c.publishLocked()
	return nil
}

// Create appends item under a temporary id and persists it in the background.
// On success the temporary id is replaced in place with the remote id; on
// failure the record is removed.
func (c *Collection[T]) Create(ctx context.Context, item T) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	tempID := c.mintLocked()
	item = c.ident.SetID(c.ident.Clone(item), tempID)
	c.items = append(c.items, item)
	c.publishLocked()

	if c.Guest() {
		return tempID, nil
	}

	payload := c.ident.Clone(item)
	err := c.executor.Submit(ctx, func(ctx context.Context) {
		ctx, span := c.span(ctx, "create")
		defer span.End()

		id, err := c.remote.Insert(ctx, c.userID, payload)
		if err != nil {
			span.Fail(err)
			c.rollbackCreate(ctx, tempID, err)
			return
		}
		c.commitCreate(tempID, id)
	})
	if err != nil {
		c.rollbackCreate(ctx, tempID, err)
		return "", fmt.Errorf("schedule %s create: %w", c.name, err)
	}
	return tempID, nil
}

// Update replaces the record at index and persists it in the background,
// restoring that record alone if the remote write fails.
func (c *Collection[T]) Update(ctx context.Context, index int, item T) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return ErrIndexOutOfRange
	}
	id := c.ident.ID(c.items[index])
	if IsTemporary(id) && !c.Guest() {
		c.mu.Unlock()
		return ErrPendingCreate
	}

	prior := c.ident.Clone(c.items[index])
	c.revs[id]++
	rev := c.revs[id]
	item = c.ident.SetID(c.ident.Clone(item), id)
	c.items[index] = item
	c.publishLocked()

	if c.Guest() {
		return nil
	}

	payload := c.ident.Clone(item)
	return c.persist(ctx, "update", func(ctx context.Context, cause error) {
		c.restoreUpdate(ctx, id, rev, prior, cause)
	}, func(ctx context.Context) error {
		return c.remote.Update(ctx, c.userID, payload)
	})
}

// Delete removes the record at index and deletes it remotely in the
// background, re-inserting it if the remote delete fails.
func (c *Collection[T]) Delete(ctx context.Context, index int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if index < 0 || index >= len(c.items) {
		c.mu.Unlock()
		return ErrIndexOutOfRange
	}
	removed := c.items[index]
	if IsTemporary(c.ident.ID(removed)) && !c.Guest() {
		c.mu.Unlock()
		return ErrPendingCreate
	}

	c.items = append(c.items[:index:index], c.items[index+1:]...)
	c.publishLocked()

	if c.Guest() {
		return nil
	}

	return c.persist(ctx, "delete", func(ctx context.Context, cause error) {
		c.restoreDelete(ctx, index, removed, cause)
	}, func(ctx context.Context) error {
		return c.remote.Delete(ctx, c.userID, removed)
	})
}

// IndexOf returns the position of the record with id, or -1.
func (c *Collection[T]) IndexOf(id string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.indexLocked(id)
}

func (c *Collection[T]) persist(ctx context.Context, op string, rollback func(ctx context.Context, cause error), write func(ctx context.Context) error) error {
	err := c.executor.Submit(ctx, func(ctx context.Context) {
		ctx, span := c.span(ctx, op)
		defer span.End()

		if err := write(ctx); err != nil {
			span.Fail(err)
			rollback(ctx, err)
		}
	})
	if err != nil {
		rollback(ctx, err)
		return fmt.Errorf("schedule %s %s: %w", c.name, op, err)
	}
	return nil
}

func (c *Collection[T]) commitCreate(tempID, id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	i := c.indexLocked(tempID)
	if i < 0 {
		c.mu.Unlock()
		c.logger.Debug("confirmed record no longer present", "temp_id", tempID, "id", id)
		return
	}
	c.items[i] = c.ident.SetID(c.items[i], id)
	c.publishLocked()
}

func (c *Collection[T]) rollbackCreate(ctx context.Context, tempID string, cause error) {
	c.logFor(ctx).Warn("remote create failed, rolled back", "temp_id", tempID, "error", cause)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	i := c.indexLocked(tempID)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.items = append(c.items[:i:i], c.items[i+1:]...)
	c.publishLocked()
}

// restoreUpdate puts prior back into the slot holding id unless the record
// is gone or a newer local update has replaced it since.
func (c *Collection[T]) restoreUpdate(ctx context.Context, id string, rev uint64, prior T, cause error) {
	c.logFor(ctx).Warn("remote update failed, restored record", "id", id, "error", cause)

	c.mu.Lock()
	if c.closed || c.revs[id] != rev {
		c.mu.Unlock()
		return
	}
	i := c.indexLocked(id)
	if i < 0 {
		c.mu.Unlock()
		return
	}
	c.items[i] = prior
	c.publishLocked()
}

// restoreDelete re-inserts removed at its old position, clamped to the
// current length.
func (c *Collection[T]) restoreDelete(ctx context.Context, index int, removed T, cause error) {
	id := c.ident.ID(removed)
	c.logFor(ctx).Warn("remote delete failed, restored record", "id", id, "error", cause)

	c.mu.Lock()
	if c.closed || c.indexLocked(id) >= 0 {
		c.mu.Unlock()
		return
	}
	index = min(index, len(c.items))
	c.items = append(c.items[:index:index], append([]T{removed}, c.items[index:]...)...)
	c.publishLocked()
}

// publishLocked hands a copy of the records to subscribers and releases the
// lock before calling them.
func (c *Collection[T]) publishLocked() {
	if len(c.subs) == 0 {
		c.mu.Unlock()
		return
	}
	fns := make([]func([]T), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	items := c.copyLocked()
	c.mu.Unlock()

	for _, fn := range fns {
		fn(items)
	}
}

func (c *Collection[T]) copyLocked() []T {
	out := make([]T, len(c.items))
	for i, item := range c.items {
		out[i] = c.ident.Clone(item)
	}
	return out
}

func (c *Collection[T]) indexLocked(id string) int {
	for i, item := range c.items {
		if c.ident.ID(item) == id {
			return i
		}
	}
	return -1
}

func (c *Collection[T]) mintLocked() string {
	c.seq++
	return tempPrefix + strconv.FormatInt(c.clock.Now().UnixNano(), 10) + "-" + strconv.FormatUint(c.seq, 10)
}

func (c *Collection[T]) span(ctx context.Context, op string) (context.Context, *logging.Span) {
	if logging.FromContext(ctx) == slog.Default() {
		ctx = logging.WithLogger(ctx, c.logger)
	}
	return logging.StartSpan(logging.WithUser(ctx, c.userID), c.name+"."+op)
}

func (c *Collection[T]) logFor(ctx context.Context) *slog.Logger {
	if logger := logging.FromContext(ctx); logger != slog.Default() {
		return logger
	}
	return c.logger
}
