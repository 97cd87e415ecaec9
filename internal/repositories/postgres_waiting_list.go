package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/models"
)

// PostgresWaitingListRepository stores waiting list signups in PostgreSQL.
type PostgresWaitingListRepository struct {
	pool db.Pool
	now  func() time.Time
}

// NewPostgresWaitingListRepository constructs a waiting list repository backed by PostgreSQL.
func NewPostgresWaitingListRepository(pool db.Pool) *PostgresWaitingListRepository {
	return &PostgresWaitingListRepository{pool: pool, now: time.Now}
}

// Add registers email. The boolean is false when the email was already on the list,
// in which case the existing entry is returned.
func (r *PostgresWaitingListRepository) Add(ctx context.Context, email string) (models.WaitingListEntry, bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.WaitingListEntry{}, false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        INSERT INTO waiting_list (id, email, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (email) DO NOTHING
    `, uuid.NewString(), email, r.now().UTC())
	if err != nil {
		return models.WaitingListEntry{}, false, fmt.Errorf("insert waiting list entry: %w", err)
	}

	var entry models.WaitingListEntry
	err = conn.QueryRow(ctx, `
        SELECT id, email, created_at FROM waiting_list WHERE email = $1
    `, email).Scan(&entry.ID, &entry.Email, &entry.CreatedAt)
	if err != nil {
		return models.WaitingListEntry{}, false, fmt.Errorf("select waiting list entry: %w", err)
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	return entry, tag.RowsAffected() == 1, nil
}

// List pages through signups, oldest first.
func (r *PostgresWaitingListRepository) List(ctx context.Context, skip, limit int) ([]models.WaitingListEntry, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, email, created_at
        FROM waiting_list
        ORDER BY created_at, id
        OFFSET $1 LIMIT $2
    `, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("query waiting list: %w", err)
	}
	defer rows.Close()

	var entries []models.WaitingListEntry
	for rows.Next() {
		var entry models.WaitingListEntry
		if err := rows.Scan(&entry.ID, &entry.Email, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan waiting list entry: %w", err)
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waiting list: %w", err)
	}

	return entries, nil
}

var _ WaitingListRepository = (*PostgresWaitingListRepository)(nil)
