package repositories

import (
	"context"

	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// BuddyRepository defines remote persistence for directed buddy edges.
type BuddyRepository interface {
	// ListEdges returns every edge where the user is either endpoint.
	ListEdges(ctx context.Context, userID string) ([]models.BuddyEdge, error)
	// InsertEdge fails with ErrConflict when the unordered pair already has an edge.
	InsertEdge(ctx context.Context, edge models.BuddyEdge) (models.BuddyEdge, error)
	UpdateEdgeStatus(ctx context.Context, edgeID string, status models.BuddyStatus) error
	SetEdgeHighlighted(ctx context.Context, edgeID string, highlighted bool) error
	DeleteEdge(ctx context.Context, edgeID string) error
}

// ProfileRepository serves public user summaries.
type ProfileRepository interface {
	ProfilesByIDs(ctx context.Context, ids []string) ([]models.Profile, error)
	UpsertProfile(ctx context.Context, profile models.Profile) error
}

// ChangeOp is the kind of row change reported by a change feed.
type ChangeOp string

const (
	ChangeInsert ChangeOp = "INSERT"
	ChangeUpdate ChangeOp = "UPDATE"
	ChangeDelete ChangeOp = "DELETE"
)

// BuddyChange describes one change to a buddy edge.
type BuddyChange struct {
	Op   ChangeOp
	Edge models.BuddyEdge
}

// BuddyChangeFeed delivers changes to edges whose buddy_id equals the
// subscribed user. The channel is closed when ctx ends or the feed fails.
type BuddyChangeFeed interface {
	SubscribeBuddyChanges(ctx context.Context, buddyID string) (<-chan BuddyChange, error)
}
