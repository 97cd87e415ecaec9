package models

import "time"

// VideoStatus tracks where a video is in its processing lifecycle.
type VideoStatus string

const (
	VideoStatusDraft      VideoStatus = "draft"
	VideoStatusPublished  VideoStatus = "published"
	VideoStatusReady      VideoStatus = "ready"
	VideoStatusPrivate    VideoStatus = "private"
	VideoStatusProcessing VideoStatus = "processing"
	VideoStatusFailed     VideoStatus = "failed"
)

// Valid reports whether s is one of the known statuses.
func (s VideoStatus) Valid() bool {
	switch s {
	case VideoStatusDraft, VideoStatusPublished, VideoStatusReady, VideoStatusPrivate, VideoStatusProcessing, VideoStatusFailed:
		return true
	}
	return false
}

// Listable reports whether videos in status s may appear in feeds, search and
// profile listings.
func (s VideoStatus) Listable() bool {
	switch s {
	case VideoStatusPrivate, VideoStatusProcessing, VideoStatusFailed:
		return false
	}
	return true
}

// UnknownUploader is shown when a video's owner is missing or has been deleted.
const UnknownUploader = "Unknown"

// Video is an uploaded or imported clip. OwnerID is empty for orphaned videos.
// Username and ProfilePicture are display fields filled in by hydration.
type Video struct {
	ID             string
	OwnerID        string
	Title          string
	Description    string
	VideoURL       string
	ThumbnailURL   string
	Duration       int
	Views          int64
	Likes          int64
	Dislikes       int64
	Status         VideoStatus
	CreatedAt      time.Time
	Username       string
	ProfilePicture string
}

// User represents an account within the platform.
type User struct {
	ID                string
	Username          string
	Email             string
	Password          string
	Bio               string
	ProfilePicture    string
	CoverImage        string
	Social            map[string]string
	CanUpload         bool
	Feedback          string
	FeedbackUpdatedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserSummary is a user together with follow counts.
type UserSummary struct {
	User
	FollowersCount int64
	FollowingCount int64
}

// DisplayInfo is the subset of a user shown next to their videos.
type DisplayInfo struct {
	Username       string
	ProfilePicture string
}

// FollowEdge records that Follower follows Followed.
type FollowEdge struct {
	ID         string
	FollowerID string
	FollowedID string
	CreatedAt  time.Time
}

// FollowStats aggregates a user's follow counts.
type FollowStats struct {
	FollowersCount int64
	FollowingCount int64
}

// Like records a user's like of a video.
type Like struct {
	ID        string
	UserID    string
	VideoID   string
	CreatedAt time.Time
}

// SavedVideo is a bookmark edge between a user and a video.
type SavedVideo struct {
	ID      string
	UserID  string
	VideoID string
	SavedAt time.Time
}

// WatchRecord aggregates a user's viewing of a single video.
type WatchRecord struct {
	ID             string
	UserID         string
	VideoID        string
	WatchTime      int
	Completed      bool
	LastPosition   int
	Liked          bool
	Disliked       bool
	Saved          bool
	Shared         bool
	WatchCount     int
	FirstWatchedAt time.Time
	LastWatchedAt  time.Time
}

// WatchProgress is a single playback report from a client.
type WatchProgress struct {
	WatchTime    int
	LastPosition int
	Completed    bool
}

// WaitingListEntry is an email registered for early access.
type WaitingListEntry struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
