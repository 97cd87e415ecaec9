package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/models"
)

// PostgresFollowRepository provides PostgreSQL-backed persistence for follow edges.
type PostgresFollowRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresFollowRepository constructs a follow repository backed by PostgreSQL.
func NewPostgresFollowRepository(pool db.Pool) *PostgresFollowRepository {
	return &PostgresFollowRepository{pool: pool, now: time.Now}
}

// Follow creates the edge follower -> followed. Following the same user twice
// returns the existing edge.
func (r *PostgresFollowRepository) Follow(ctx context.Context, followerID, followedID string) (models.FollowEdge, error) {
	if followerID == followedID {
		return models.FollowEdge{}, ErrSelfFollow
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FollowEdge{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO user_follows (id, follower_id, followed_id, created_at)
        VALUES ($1, $2, $3, $4)
        ON CONFLICT (follower_id, followed_id) DO NOTHING
    `, uuid.NewString(), followerID, followedID, r.now().UTC())
	if err != nil {
		switch pgErrorCode(err) {
		case pgForeignKeyViolation, pgInvalidTextRepr:
			return models.FollowEdge{}, ErrNotFound
		case pgCheckViolation:
			return models.FollowEdge{}, ErrSelfFollow
		}
		return models.FollowEdge{}, fmt.Errorf("insert follow: %w", err)
	}

	var edge models.FollowEdge
	err = conn.QueryRow(ctx, `
        SELECT id, follower_id, followed_id, created_at
        FROM user_follows
        WHERE follower_id = $1 AND followed_id = $2
    `, followerID, followedID).Scan(&edge.ID, &edge.FollowerID, &edge.FollowedID, &edge.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.FollowEdge{}, ErrNotFound
		}
		return models.FollowEdge{}, fmt.Errorf("select follow: %w", err)
	}
	edge.CreatedAt = edge.CreatedAt.UTC()

	return edge, nil
}

// Unfollow removes the edge follower -> followed.
func (r *PostgresFollowRepository) Unfollow(ctx context.Context, followerID, followedID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM user_follows
        WHERE follower_id = $1 AND followed_id = $2
    `, followerID, followedID)
	if err != nil {
		if pgErrorCode(err) == pgInvalidTextRepr {
			return ErrNotFound
		}
		return fmt.Errorf("delete follow: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// IsFollowing reports whether follower currently follows followed.
func (r *PostgresFollowRepository) IsFollowing(ctx context.Context, followerID, followedID string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var exists bool
	err = conn.QueryRow(ctx, `
        SELECT EXISTS (SELECT 1 FROM user_follows WHERE follower_id = $1 AND followed_id = $2)
    `, followerID, followedID).Scan(&exists)
	if err != nil {
		if pgErrorCode(err) == pgInvalidTextRepr {
			return false, nil
		}
		return false, fmt.Errorf("select follow exists: %w", err)
	}
	return exists, nil
}

func (r *PostgresFollowRepository) listUsers(ctx context.Context, action, query string, args ...any) ([]models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", action, err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", action, err)
		}
		users = append(users, user)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", action, err)
	}

	return users, nil
}

// ListFollowers returns the users following userID, most recent first.
func (r *PostgresFollowRepository) ListFollowers(ctx context.Context, userID string, skip, limit int) ([]models.User, error) {
	return r.listUsers(ctx, "followers", `
        SELECT `+prefixed("u", userColumns)+`
        FROM user_follows f
        JOIN users u ON u.user_id = f.follower_id
        WHERE f.followed_id = $1
        ORDER BY f.created_at DESC, f.id
        OFFSET $2 LIMIT $3
    `, userID, skip, limit)
}

// ListFollowing returns the users userID follows, most recent first.
func (r *PostgresFollowRepository) ListFollowing(ctx context.Context, userID string, skip, limit int) ([]models.User, error) {
	return r.listUsers(ctx, "following", `
        SELECT `+prefixed("u", userColumns)+`
        FROM user_follows f
        JOIN users u ON u.user_id = f.followed_id
        WHERE f.follower_id = $1
        ORDER BY f.created_at DESC, f.id
        OFFSET $2 LIMIT $3
    `, userID, skip, limit)
}

// Stats counts followers and followings for userID in one query.
func (r *PostgresFollowRepository) Stats(ctx context.Context, userID string) (models.FollowStats, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.FollowStats{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var stats models.FollowStats
	err = conn.QueryRow(ctx, `
        SELECT
            (SELECT COUNT(*) FROM user_follows WHERE followed_id = $1),
            (SELECT COUNT(*) FROM user_follows WHERE follower_id = $1)
    `, userID).Scan(&stats.FollowersCount, &stats.FollowingCount)
	if err != nil {
		if pgErrorCode(err) == pgInvalidTextRepr {
			return models.FollowStats{}, ErrNotFound
		}
		return models.FollowStats{}, fmt.Errorf("select follow stats: %w", err)
	}
	return stats, nil
}

var _ FollowRepository = (*PostgresFollowRepository)(nil)
