package handlers

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mypov/backend/internal/auth"
	"github.com/mypov/backend/internal/models"
	"github.com/mypov/backend/internal/repositories"
	"github.com/mypov/backend/internal/videos"
)

type inMemoryUserStore struct {
	mu        sync.Mutex
	users     map[string]models.User
	passwords map[string]string
	feedback  map[string]string
}

func newInMemoryUserStore(users ...models.User) *inMemoryUserStore {
	s := &inMemoryUserStore{
		users:     make(map[string]models.User),
		passwords: make(map[string]string),
		feedback:  make(map[string]string),
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Email == user.Email || existing.Username == user.Username {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) List(_ context.Context, skip, limit int) ([]models.UserSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	var out []models.UserSummary
	for i := skip; i < len(ids) && len(out) < limit; i++ {
		out = append(out, models.UserSummary{User: s.users[ids[i]], FollowersCount: int64(i)})
	}
	return out, nil
}

func (s *inMemoryUserStore) Update(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	for id, existing := range s.users {
		if id != user.ID && (existing.Email == user.Email || existing.Username == user.Username) {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) UpdatePassword(_ context.Context, userID, hash string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	user.Password = hash
	s.users[userID] = user
	s.passwords[userID] = hash
	return nil
}

func (s *inMemoryUserStore) UpdateFeedback(_ context.Context, userID, feedback string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	user.Feedback = feedback
	user.FeedbackUpdatedAt = &at
	s.users[userID] = user
	s.feedback[userID] = feedback
	return nil
}

func (s *inMemoryUserStore) SetUploadPermission(_ context.Context, userID string, canUpload bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	user.CanUpload = canUpload
	s.users[userID] = user
	return nil
}

func (s *inMemoryUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type inMemoryVideoStore struct {
	mu         sync.Mutex
	videos     map[string]models.Video
	created    []models.Video
	failed     []string
	searchHits []models.Video
	lastSearch string
}

func newInMemoryVideoStore(list ...models.Video) *inMemoryVideoStore {
	s := &inMemoryVideoStore{videos: make(map[string]models.Video)}
	for _, v := range list {
		s.videos[v.ID] = v
	}
	return s
}

func (s *inMemoryVideoStore) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.videos[video.ID] = video
	s.created = append(s.created, video)
	return nil
}

func (s *inMemoryVideoStore) FindByID(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return v, nil
}

func (s *inMemoryVideoStore) FindByIDs(_ context.Context, ids []string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, id := range ids {
		if v, ok := s.videos[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *inMemoryVideoStore) ListByOwner(_ context.Context, ownerID string, skip, limit int) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.videos {
		if v.OwnerID == ownerID && v.Status.Listable() {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b models.Video) int { return b.CreatedAt.Compare(a.CreatedAt) })
	if skip >= len(out) {
		return nil, nil
	}
	out = out[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *inMemoryVideoStore) Search(_ context.Context, query string, _ int) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSearch = query
	return s.searchHits, nil
}

func (s *inMemoryVideoStore) bump(id string, field func(*models.Video) *int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	*field(&v)++
	s.videos[id] = v
	return *field(&v), nil
}

func (s *inMemoryVideoStore) IncrementViews(_ context.Context, id string) (int64, error) {
	return s.bump(id, func(v *models.Video) *int64 { return &v.Views })
}

func (s *inMemoryVideoStore) IncrementLikes(_ context.Context, id string) (int64, error) {
	return s.bump(id, func(v *models.Video) *int64 { return &v.Likes })
}

func (s *inMemoryVideoStore) IncrementDislikes(_ context.Context, id string) (int64, error) {
	return s.bump(id, func(v *models.Video) *int64 { return &v.Dislikes })
}

func (s *inMemoryVideoStore) SetStatus(_ context.Context, id string, status models.VideoStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return repositories.ErrNotFound
	}
	v.Status = status
	s.videos[id] = v
	return nil
}

func (s *inMemoryVideoStore) MarkFailed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return nil
}

func (s *inMemoryVideoStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

type hydratorStub struct {
	calls int
}

func (h *hydratorStub) Hydrate(_ context.Context, list []models.Video) ([]models.Video, error) {
	h.calls++
	out := slices.Clone(list)
	for i := range out {
		out[i].Username = "user-" + out[i].OwnerID
	}
	return out, nil
}

type processorStub struct {
	dir  string
	jobs []videos.Job
	err  error
}

func (p *processorStub) NewWorkDir(videoID string) (string, error) {
	return p.dir, nil
}

func (p *processorStub) Enqueue(_ context.Context, job videos.Job) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, job)
	return nil
}

type mediaValidatorStub struct {
	probe videos.ProbeResult
	err   error
	paths []string
}

func (m *mediaValidatorStub) Validate(_ context.Context, path string) (videos.ProbeResult, error) {
	m.paths = append(m.paths, path)
	return m.probe, m.err
}

type assetStoreStub struct {
	saved         map[string]string
	deleted       []string
	deletedPrefix []string
}

func (a *assetStoreStub) Save(_ context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	if a.saved == nil {
		a.saved = make(map[string]string)
	}
	a.saved[name] = string(data)
	return "https://cdn.example.com/" + name, nil
}

func (a *assetStoreStub) Delete(_ context.Context, key string) error {
	a.deleted = append(a.deleted, key)
	return nil
}

func (a *assetStoreStub) DeletePrefix(_ context.Context, prefix string) error {
	a.deletedPrefix = append(a.deletedPrefix, prefix)
	return nil
}

func (a *assetStoreStub) KeyFromURL(location string) (string, bool) {
	key, ok := strings.CutPrefix(location, "https://cdn.example.com/")
	return key, ok && key != ""
}

// authed attaches userID to the request context the way the authentication
// middleware does.
func authed(req *http.Request, userID string) *http.Request {
	return req.WithContext(auth.WithUserID(req.Context(), userID))
}

func newRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

type inMemoryFollowStore struct {
	mu    sync.Mutex
	users *inMemoryUserStore
	edges []models.FollowEdge
	now   time.Time
}

func newInMemoryFollowStore(users *inMemoryUserStore) *inMemoryFollowStore {
	return &inMemoryFollowStore{users: users, now: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
}

func (s *inMemoryFollowStore) Follow(ctx context.Context, followerID, followedID string) (models.FollowEdge, error) {
	if followerID == followedID {
		return models.FollowEdge{}, repositories.ErrSelfFollow
	}
	if _, err := s.users.FindByID(ctx, followedID); err != nil {
		return models.FollowEdge{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.edges {
		if e.FollowerID == followerID && e.FollowedID == followedID {
			return e, nil
		}
	}
	edge := models.FollowEdge{
		ID:         followerID + "->" + followedID,
		FollowerID: followerID,
		FollowedID: followedID,
		CreatedAt:  s.now,
	}
	s.edges = append(s.edges, edge)
	return edge, nil
}

func (s *inMemoryFollowStore) Unfollow(_ context.Context, followerID, followedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.edges {
		if e.FollowerID == followerID && e.FollowedID == followedID {
			s.edges = slices.Delete(s.edges, i, i+1)
			return nil
		}
	}
	return repositories.ErrNotFound
}

func (s *inMemoryFollowStore) IsFollowing(_ context.Context, followerID, followedID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.ContainsFunc(s.edges, func(e models.FollowEdge) bool {
		return e.FollowerID == followerID && e.FollowedID == followedID
	}), nil
}

func (s *inMemoryFollowStore) collect(ctx context.Context, skip, limit int, pick func(models.FollowEdge) (string, bool)) ([]models.User, error) {
	s.mu.Lock()
	var ids []string
	for _, e := range s.edges {
		if id, ok := pick(e); ok {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var out []models.User
	for i := skip; i < len(ids) && len(out) < limit; i++ {
		u, err := s.users.FindByID(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *inMemoryFollowStore) ListFollowers(ctx context.Context, userID string, skip, limit int) ([]models.User, error) {
	return s.collect(ctx, skip, limit, func(e models.FollowEdge) (string, bool) {
		return e.FollowerID, e.FollowedID == userID
	})
}

func (s *inMemoryFollowStore) ListFollowing(ctx context.Context, userID string, skip, limit int) ([]models.User, error) {
	return s.collect(ctx, skip, limit, func(e models.FollowEdge) (string, bool) {
		return e.FollowedID, e.FollowerID == userID
	})
}

func (s *inMemoryFollowStore) Stats(ctx context.Context, userID string) (models.FollowStats, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return models.FollowStats{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var stats models.FollowStats
	for _, e := range s.edges {
		if e.FollowedID == userID {
			stats.FollowersCount++
		}
		if e.FollowerID == userID {
			stats.FollowingCount++
		}
	}
	return stats, nil
}

type inMemoryEngagementStore struct {
	mu       sync.Mutex
	videos   *inMemoryVideoStore
	likes    map[string]bool
	dislikes map[string]bool
	saved    map[string]models.SavedVideo
	watches  map[string]models.WatchRecord
	order    []string
	now      time.Time
}

func newInMemoryEngagementStore(videos *inMemoryVideoStore) *inMemoryEngagementStore {
	return &inMemoryEngagementStore{
		videos:   videos,
		likes:    make(map[string]bool),
		dislikes: make(map[string]bool),
		saved:    make(map[string]models.SavedVideo),
		watches:  make(map[string]models.WatchRecord),
		now:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (s *inMemoryEngagementStore) Like(ctx context.Context, userID, videoID string) (models.Like, int64, error) {
	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return models.Like{}, 0, err
	}
	s.mu.Lock()
	key := userID + "/" + videoID
	already := s.likes[key]
	s.likes[key] = true
	s.mu.Unlock()

	like := models.Like{ID: key, UserID: userID, VideoID: videoID, CreatedAt: s.now}
	if already {
		return like, video.Likes, nil
	}
	likes, err := s.videos.IncrementLikes(ctx, videoID)
	return like, likes, err
}

func (s *inMemoryEngagementStore) Dislike(ctx context.Context, userID, videoID string) (int64, error) {
	video, err := s.videos.FindByID(ctx, videoID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	key := userID + "/" + videoID
	already := s.dislikes[key]
	s.dislikes[key] = true
	s.mu.Unlock()

	if already {
		return video.Dislikes, nil
	}
	return s.videos.IncrementDislikes(ctx, videoID)
}

func (s *inMemoryEngagementStore) Save(ctx context.Context, userID, videoID string) (models.SavedVideo, error) {
	if _, err := s.videos.FindByID(ctx, videoID); err != nil {
		return models.SavedVideo{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + videoID
	if saved, ok := s.saved[key]; ok {
		return saved, nil
	}
	saved := models.SavedVideo{ID: key, UserID: userID, VideoID: videoID, SavedAt: s.now}
	s.saved[key] = saved
	return saved, nil
}

func (s *inMemoryEngagementStore) Unsave(_ context.Context, userID, videoID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + videoID
	if _, ok := s.saved[key]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.saved, key)
	return nil
}

func (s *inMemoryEngagementStore) IsSaved(_ context.Context, userID, videoID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.saved[userID+"/"+videoID]
	return ok, nil
}

func (s *inMemoryEngagementStore) ListSaved(ctx context.Context, userID string) ([]models.Video, error) {
	s.mu.Lock()
	var ids []string
	for _, saved := range s.saved {
		if saved.UserID == userID {
			ids = append(ids, saved.VideoID)
		}
	}
	s.mu.Unlock()
	slices.Sort(ids)
	return s.videos.FindByIDs(ctx, ids)
}

func (s *inMemoryEngagementStore) RecordWatch(ctx context.Context, userID, videoID string, progress models.WatchProgress) (models.WatchRecord, error) {
	if _, err := s.videos.FindByID(ctx, videoID); err != nil {
		return models.WatchRecord{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := userID + "/" + videoID
	record, ok := s.watches[key]
	if !ok {
		record = models.WatchRecord{ID: key, UserID: userID, VideoID: videoID, FirstWatchedAt: s.now}
	}
	record.WatchTime += progress.WatchTime
	record.LastPosition = progress.LastPosition
	record.Completed = record.Completed || progress.Completed
	record.Liked = s.likes[key]
	record.Disliked = s.dislikes[key]
	_, record.Saved = s.saved[key]
	record.WatchCount++
	record.LastWatchedAt = s.now
	s.watches[key] = record
	s.order = append([]string{videoID}, slices.DeleteFunc(s.order, func(id string) bool { return id == videoID })...)
	return record, nil
}

func (s *inMemoryEngagementStore) ListHistory(ctx context.Context, _ string, skip, limit int) ([]models.Video, error) {
	s.mu.Lock()
	ids := slices.Clone(s.order)
	s.mu.Unlock()
	if skip >= len(ids) {
		return nil, nil
	}
	ids = ids[skip:]
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return s.videos.FindByIDs(ctx, ids)
}

type inMemoryWaitingList struct {
	mu      sync.Mutex
	entries []models.WaitingListEntry
}

func (s *inMemoryWaitingList) Add(_ context.Context, email string) (models.WaitingListEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if strings.EqualFold(e.Email, email) {
			return e, false, nil
		}
	}
	entry := models.WaitingListEntry{ID: email, Email: email, CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}
	s.entries = append(s.entries, entry)
	return entry, true, nil
}

func (s *inMemoryWaitingList) List(_ context.Context, skip, limit int) ([]models.WaitingListEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if skip >= len(s.entries) {
		return nil, nil
	}
	out := s.entries[skip:]
	if len(out) > limit {
		out = out[:limit]
	}
	return slices.Clone(out), nil
}

type metadataStub struct {
	meta videos.Metadata
	err  error
}

func (m metadataStub) Lookup(context.Context, string) (videos.Metadata, error) {
	return m.meta, m.err
}

type searchIndexStub struct {
	ids     []string
	err     error
	indexed []string
	removed []string
}

func (s *searchIndexStub) IndexVideo(_ context.Context, video models.Video) error {
	s.indexed = append(s.indexed, video.ID)
	return nil
}

func (s *searchIndexStub) DeleteVideo(_ context.Context, id string) error {
	s.removed = append(s.removed, id)
	return nil
}

func (s *searchIndexStub) SearchVideoIDs(context.Context, string, int) ([]string, error) {
	return s.ids, s.err
}

type feedStub struct {
	viewer string
	videos []models.Video
	err    error
}

func (f *feedStub) Assemble(_ context.Context, viewerID string, _, _ int) ([]models.Video, error) {
	f.viewer = viewerID
	return f.videos, f.err
}
