package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/proimagery/ferdi-app-sub000/internal/db"
	"github.com/proimagery/ferdi-app-sub000/internal/logging"
	"github.com/proimagery/ferdi-app-sub000/internal/models"
)

// BuddyNotifyChannel is the LISTEN/NOTIFY channel fed by the buddy_edges trigger.
const BuddyNotifyChannel = "buddy_edges"

// PostgresBuddyRepository provides PostgreSQL-backed persistence for buddy edges.
type PostgresBuddyRepository struct {
	pool db.Pool
}

// NewPostgresBuddyRepository constructs a buddy repository backed by PostgreSQL.
func NewPostgresBuddyRepository(pool db.Pool) *PostgresBuddyRepository {
	return &PostgresBuddyRepository{pool: pool}
}

// ListEdges returns edges where the user is requester or recipient.
func (r *PostgresBuddyRepository) ListEdges(ctx context.Context, userID string) ([]models.BuddyEdge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id::text, user_id::text, buddy_id::text, status, highlighted, created_at
        FROM buddy_edges
        WHERE user_id = $1 OR buddy_id = $1
        ORDER BY created_at, id
    `, userID)
	if err != nil {
		return nil, mapPgError(err, "query buddy edges")
	}
	defer rows.Close()

	var edges []models.BuddyEdge
	for rows.Next() {
		var e models.BuddyEdge
		if err := rows.Scan(&e.ID, &e.UserID, &e.BuddyID, &e.Status, &e.Highlighted, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan buddy edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buddy edges: %w", err)
	}
	return edges, nil
}

// InsertEdge persists a new edge. The pair index rejects a second edge
// between the same two users in either direction.
func (r *PostgresBuddyRepository) InsertEdge(ctx context.Context, edge models.BuddyEdge) (models.BuddyEdge, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.BuddyEdge{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if err := conn.QueryRow(ctx, `
        INSERT INTO buddy_edges (user_id, buddy_id, status, highlighted)
        VALUES ($1, $2, $3, $4)
        RETURNING id::text, created_at
    `, edge.UserID, edge.BuddyID, edge.Status, edge.Highlighted).Scan(&edge.ID, &edge.CreatedAt); err != nil {
		return models.BuddyEdge{}, mapPgError(err, "insert buddy edge")
	}
	return edge, nil
}

func (r *PostgresBuddyRepository) UpdateEdgeStatus(ctx context.Context, edgeID string, status models.BuddyStatus) error {
	return r.execOne(ctx, "update buddy edge status", `UPDATE buddy_edges SET status = $2 WHERE id = $1`, edgeID, status)
}

func (r *PostgresBuddyRepository) SetEdgeHighlighted(ctx context.Context, edgeID string, highlighted bool) error {
	return r.execOne(ctx, "update buddy edge highlight", `UPDATE buddy_edges SET highlighted = $2 WHERE id = $1`, edgeID, highlighted)
}

func (r *PostgresBuddyRepository) DeleteEdge(ctx context.Context, edgeID string) error {
	return r.execOne(ctx, "delete buddy edge", `DELETE FROM buddy_edges WHERE id = $1`, edgeID)
}

func (r *PostgresBuddyRepository) execOne(ctx context.Context, action, sql string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, sql, args...)
	if err != nil {
		return mapPgError(err, action)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresProfileRepository provides PostgreSQL-backed access to profiles.
type PostgresProfileRepository struct {
	pool db.Pool
}

// NewPostgresProfileRepository constructs a profile repository backed by PostgreSQL.
func NewPostgresProfileRepository(pool db.Pool) *PostgresProfileRepository {
	return &PostgresProfileRepository{pool: pool}
}

// ProfilesByIDs returns the profiles that exist among ids.
func (r *PostgresProfileRepository) ProfilesByIDs(ctx context.Context, ids []string) ([]models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id::text, display_name, avatar_url, home_country
        FROM profiles
        WHERE id = ANY($1::uuid[])
        ORDER BY display_name, id
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query profiles: %w", err)
	}
	defer rows.Close()

	var profiles []models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.AvatarURL, &p.HomeCountry); err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// UpsertProfile stores or refreshes a profile.
func (r *PostgresProfileRepository) UpsertProfile(ctx context.Context, p models.Profile) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO profiles (id, display_name, avatar_url, home_country)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (id)
        DO UPDATE SET display_name = EXCLUDED.display_name, avatar_url = EXCLUDED.avatar_url, home_country = EXCLUDED.home_country
    `, p.ID, p.DisplayName, p.AvatarURL, p.HomeCountry)
	if err != nil {
		return mapPgError(err, "upsert profile")
	}
	return nil
}

// PostgresBuddyChangeFeed streams buddy edge changes published by the
// buddy_edges trigger.
type PostgresBuddyChangeFeed struct {
	pool   db.Pool
	logger *slog.Logger
}

// NewPostgresBuddyChangeFeed constructs a change feed. Each subscription holds
// one pooled connection for its lifetime.
func NewPostgresBuddyChangeFeed(pool db.Pool, logger *slog.Logger) *PostgresBuddyChangeFeed {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresBuddyChangeFeed{pool: pool, logger: logger}
}

// SubscribeBuddyChanges listens for edge changes addressed to buddyID.
func (f *PostgresBuddyChangeFeed) SubscribeBuddyChanges(ctx context.Context, buddyID string) (<-chan BuddyChange, error) {
	conn, err := f.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	if _, err := conn.Exec(ctx, "LISTEN "+BuddyNotifyChannel); err != nil {
		conn.Release()
		return nil, fmt.Errorf("listen %s: %w", BuddyNotifyChannel, err)
	}

	logger := logging.FromContext(ctx)
	if logger == slog.Default() {
		logger = f.logger
	}

	changes := make(chan BuddyChange, 16)
	go func() {
		defer close(changes)
		defer func() {
			if !conn.Conn().IsClosed() {
				unlistenCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				_, _ = conn.Exec(unlistenCtx, "UNLISTEN "+BuddyNotifyChannel)
				cancel()
			}
			conn.Release()
		}()

		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("buddy change feed stopped", "error", err)
				}
				return
			}

			change, err := decodeBuddyNotification(n.Payload)
			if err != nil {
				logger.Warn("ignoring malformed buddy notification", "error", err)
				continue
			}
			if change.Edge.BuddyID != buddyID {
				continue
			}

			select {
			case changes <- change:
			case <-ctx.Done():
				return
			}
		}
	}()

	return changes, nil
}

type buddyNotification struct {
	Op          ChangeOp           `json:"op"`
	ID          string             `json:"id"`
	UserID      string             `json:"user_id"`
	BuddyID     string             `json:"buddy_id"`
	Status      models.BuddyStatus `json:"status"`
	Highlighted bool               `json:"highlighted"`
	CreatedAt   time.Time          `json:"created_at"`
}

func decodeBuddyNotification(payload string) (BuddyChange, error) {
	var n buddyNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return BuddyChange{}, fmt.Errorf("decode notification: %w", err)
	}
	if n.ID == "" || n.BuddyID == "" {
		return BuddyChange{}, errors.New("notification missing edge identity")
	}
	return BuddyChange{
		Op: n.Op,
		Edge: models.BuddyEdge{
			ID:          n.ID,
			UserID:      n.UserID,
			BuddyID:     n.BuddyID,
			Status:      n.Status,
			Highlighted: n.Highlighted,
			CreatedAt:   n.CreatedAt,
		},
	}, nil
}

var _ BuddyRepository = (*PostgresBuddyRepository)(nil)
var _ ProfileRepository = (*PostgresProfileRepository)(nil)
var _ BuddyChangeFeed = (*PostgresBuddyChangeFeed)(nil)
