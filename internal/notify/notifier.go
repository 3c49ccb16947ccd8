// Package notify delivers fire-and-forget user notifications.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/proimagery/ferdi-app-sub000/internal/logging"
)

// Notifier presents notifications to the user. Implementations must not block
// for long and have no result the caller acts on.
type Notifier interface {
	Notify(ctx context.Context, description string)
	SetBadgeCount(ctx context.Context, n int)
}

// LogNotifier writes notifications to the structured log.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) logger(ctx context.Context) *slog.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return logging.FromContext(ctx)
}

// Notify logs description at info level.
func (n LogNotifier) Notify(ctx context.Context, description string) {
	n.logger(ctx).InfoContext(ctx, "notification", "description", description)
}

// SetBadgeCount logs the badge count.
func (n LogNotifier) SetBadgeCount(ctx context.Context, count int) {
	n.logger(ctx).InfoContext(ctx, "badge count updated", "count", count)
}

// Recorder keeps every notification in memory. The HTTP API serves its
// contents to the presentation layer.
type Recorder struct {
	mu    sync.Mutex
	next  Notifier
	notes []string
	badge int
}

// NewRecorder returns a Recorder that forwards to next when it is non-nil.
func NewRecorder(next Notifier) *Recorder {
	return &Recorder{next: next}
}

func (r *Recorder) Notify(ctx context.Context, description string) {
	r.mu.Lock()
	r.notes = append(r.notes, description)
	r.mu.Unlock()
	if r.next != nil {
		r.next.Notify(ctx, description)
	}
}

func (r *Recorder) SetBadgeCount(ctx context.Context, n int) {
	r.mu.Lock()
	r.badge = n
	r.mu.Unlock()
	if r.next != nil {
		r.next.SetBadgeCount(ctx, n)
	}
}

// Notifications returns the recorded descriptions in delivery order.
func (r *Recorder) Notifications() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.notes...)
}

// Badge returns the last badge count.
func (r *Recorder) Badge() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badge
}
