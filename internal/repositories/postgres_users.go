package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mypov/backend/internal/db"
	"github.com/mypov/backend/internal/models"
)

const userColumns = `user_id, username, email, password_hash, bio, profile_picture, cover_image, social, can_upload, feedback, feedback_updated_at, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

func scanUser(row pgx.Row, extra ...any) (models.User, error) {
	var (
		user       models.User
		social     map[string]string
		feedbackAt *time.Time
	)
	dest := []any{
		&user.ID, &user.Username, &user.Email, &user.Password, &user.Bio,
		&user.ProfilePicture, &user.CoverImage, &social, &user.CanUpload,
		&user.Feedback, &feedbackAt, &user.CreatedAt, &user.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return models.User{}, err
	}
	if social == nil {
		social = map[string]string{}
	}
	user.Social = social
	if feedbackAt != nil {
		t := feedbackAt.UTC()
		user.FeedbackUpdatedAt = &t
	}
	user.CreatedAt = user.CreatedAt.UTC()
	user.UpdatedAt = user.UpdatedAt.UTC()
	return user, nil
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	social := user.Social
	if social == nil {
		social = map[string]string{}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO users (user_id, username, email, password_hash, bio, profile_picture, cover_image, social, can_upload, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, user.ID, user.Username, user.Email, user.Password, user.Bio, user.ProfilePicture, user.CoverImage, social, user.CanUpload, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

func (r *PostgresUserRepository) findOne(ctx context.Context, where string, arg any) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where+` = $1`, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || pgErrorCode(err) == pgInvalidTextRepr {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", where, err)
	}
	return user, nil
}

// FindByID fetches a user by primary key.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "user_id", id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByUsername fetches a user by their unique handle.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username", username)
}

// List returns users with their follower and following counts in a single query.
func (r *PostgresUserRepository) List(ctx context.Context, skip, limit int) ([]models.UserSummary, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+userColumns+`,
            (SELECT COUNT(*) FROM user_follows f WHERE f.followed_id = users.user_id) AS followers_count,
            (SELECT COUNT(*) FROM user_follows f WHERE f.follower_id = users.user_id) AS following_count
        FROM users
        ORDER BY created_at DESC, user_id
        OFFSET $1 LIMIT $2
    `, skip, limit)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var summaries []models.UserSummary
	for rows.Next() {
		var summary models.UserSummary
		user, err := scanUser(rows, &summary.FollowersCount, &summary.FollowingCount)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		summary.User = user
		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	return summaries, nil
}

// Update modifies the editable profile fields of an existing user.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	social := user.Social
	if social == nil {
		social = map[string]string{}
	}

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET username = $2, email = $3, bio = $4, profile_picture = $5, cover_image = $6, social = $7, updated_at = $8
        WHERE user_id = $1
    `, user.ID, user.Username, user.Email, user.Bio, user.ProfilePicture, user.CoverImage, social, user.UpdatedAt)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresUserRepository) exec(ctx context.Context, action, query string, args ...any) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, args...)
	if err != nil {
		if pgErrorCode(err) == pgInvalidTextRepr {
			return ErrNotFound
		}
		return fmt.Errorf("%s: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePassword replaces the stored password hash.
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string, at time.Time) error {
	return r.exec(ctx, "update password", `
        UPDATE users SET password_hash = $2, updated_at = $3 WHERE user_id = $1
    `, userID, passwordHash, at)
}

// UpdateFeedback stores the latest free-form feedback left by a user.
func (r *PostgresUserRepository) UpdateFeedback(ctx context.Context, userID, feedback string, at time.Time) error {
	return r.exec(ctx, "update feedback", `
        UPDATE users SET feedback = $2, feedback_updated_at = $3, updated_at = $3 WHERE user_id = $1
    `, userID, feedback, at)
}

// SetUploadPermission toggles whether the user may upload videos.
func (r *PostgresUserRepository) SetUploadPermission(ctx context.Context, userID string, canUpload bool) error {
	return r.exec(ctx, "update upload permission", `
        UPDATE users SET can_upload = $2 WHERE user_id = $1
    `, userID, canUpload)
}

// Delete removes a user. Their follow, like, save and watch edges cascade;
// their videos remain with no owner.
func (r *PostgresUserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete user", `DELETE FROM users WHERE user_id = $1`, id)
}

func (r *PostgresUserRepository) queryIDs(ctx context.Context, action, query string, args ...any) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", action, err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collect %s: %w", action, err)
	}
	return ids, nil
}

// FindWatchedVideoIDs returns every video the user has a watch record for.
func (r *PostgresUserRepository) FindWatchedVideoIDs(ctx context.Context, userID string) ([]string, error) {
	return r.queryIDs(ctx, "watched video ids", `
        SELECT video_id FROM watched_videos WHERE user_id = $1
    `, userID)
}

// FindLikedVideoIDs returns every video the user has liked.
func (r *PostgresUserRepository) FindLikedVideoIDs(ctx context.Context, userID string) ([]string, error) {
	return r.queryIDs(ctx, "liked video ids", `
        SELECT video_id FROM likes WHERE user_id = $1
    `, userID)
}

// FindFollowedOwnerIDs returns the ids of the users userID follows.
func (r *PostgresUserRepository) FindFollowedOwnerIDs(ctx context.Context, userID string) ([]string, error) {
	return r.queryIDs(ctx, "followed user ids", `
        SELECT followed_id FROM user_follows WHERE follower_id = $1
    `, userID)
}

// FindDisplayInfoByIDs resolves usernames and avatars for a batch of users in one round trip.
// Unknown ids are absent from the result.
func (r *PostgresUserRepository) FindDisplayInfoByIDs(ctx context.Context, ids []string) (map[string]models.DisplayInfo, error) {
	info := make(map[string]models.DisplayInfo, len(ids))
	if len(ids) == 0 {
		return info, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT user_id, username, profile_picture
        FROM users
        WHERE user_id = ANY($1)
    `, ids)
	if err != nil {
		return nil, fmt.Errorf("query display info: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id      string
			display models.DisplayInfo
		)
		if err := rows.Scan(&id, &display.Username, &display.ProfilePicture); err != nil {
			return nil, fmt.Errorf("scan display info: %w", err)
		}
		info[id] = display
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate display info: %w", err)
	}

	return info, nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
