package handlers

import (
	"net/http"

	"github.com/mypov/backend/internal/middleware"
)

// Dependencies aggregates collaborators required by HTTP handlers. Optional
// collaborators (Processor, Media, Metadata, Assets, Search) may be nil; the
// endpoints that need them then answer 503.
type Dependencies struct {
	Users          UserStore
	Sessions       SessionManager
	Follows        FollowStore
	Videos         VideoStore
	Engagement     EngagementStore
	WaitingList    WaitingListStore
	Feed           FeedAssembler
	Hydrator       VideoHydrator
	Processor      VideoProcessor
	Media          MediaValidator
	VideoMetadata  VideoMetadataProvider
	Assets         AssetStore
	Search         SearchIndex
	Database       Pinger
	AuthLimiter    middleware.RateLimiter
	AdminToken     string
	MaxUploadBytes int64
}

// RegisterRoutes wires HTTP handlers into the provided ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps Dependencies) {
	health := HealthHandler{Database: deps.Database}
	authH := AuthHandler{Users: deps.Users, Sessions: deps.Sessions}
	users := UserHandler{
		Users:      deps.Users,
		Follows:    deps.Follows,
		Videos:     deps.Videos,
		Hydrator:   deps.Hydrator,
		Sessions:   deps.Sessions,
		Assets:     deps.Assets,
		AdminToken: deps.AdminToken,
	}
	follows := FollowHandler{Follows: deps.Follows}
	videos := VideoHandler{
		Videos:         deps.Videos,
		Users:          deps.Users,
		Feed:           deps.Feed,
		Hydrator:       deps.Hydrator,
		Processor:      deps.Processor,
		Media:          deps.Media,
		Metadata:       deps.VideoMetadata,
		Assets:         deps.Assets,
		Search:         deps.Search,
		AdminToken:     deps.AdminToken,
		MaxUploadBytes: deps.MaxUploadBytes,
	}
	engagement := EngagementHandler{Videos: deps.Videos, Engagement: deps.Engagement, Hydrator: deps.Hydrator}
	waitlist := WaitingListHandler{Entries: deps.WaitingList, AdminToken: deps.AdminToken}

	limited := func(scope string, h http.HandlerFunc) http.Handler {
		return middleware.Limit(deps.AuthLimiter, scope)(h)
	}

	mux.HandleFunc("GET /healthz", health.Handle)

	mux.Handle("POST /api/auth/register", limited("register", authH.Register))
	mux.Handle("POST /api/auth/login", limited("login", authH.Login))
	mux.HandleFunc("POST /api/auth/refresh", authH.Refresh)
	mux.Handle("POST /api/auth/direct-reset-password", limited("reset-password", authH.DirectResetPassword))

	mux.HandleFunc("GET /api/users", users.List)
	mux.HandleFunc("GET /api/users/me", users.Me)
	mux.HandleFunc("PUT /api/users/me/feedback", users.Feedback)
	mux.HandleFunc("GET /api/users/{id}", users.Get)
	mux.HandleFunc("PUT /api/users/{id}", users.Update)
	mux.HandleFunc("DELETE /api/users/{id}", users.Delete)
	mux.HandleFunc("POST /api/users/{id}/profile-picture", users.UploadProfilePicture)
	mux.HandleFunc("PUT /api/users/{id}/upload-permission", users.SetUploadPermission)
	mux.HandleFunc("GET /api/users/{id}/videos", users.ListVideos)
	mux.HandleFunc("POST /api/users/{id}/follow", follows.Follow)
	mux.HandleFunc("DELETE /api/users/{id}/follow", follows.Unfollow)
	mux.HandleFunc("GET /api/users/{id}/followers", follows.Followers)
	mux.HandleFunc("GET /api/users/{id}/following", follows.Following)
	mux.HandleFunc("GET /api/users/{id}/is-following", follows.IsFollowing)
	mux.HandleFunc("GET /api/users/{id}/follow-stats", follows.Stats)

	mux.HandleFunc("GET /api/videos", videos.ListFeed)
	mux.HandleFunc("POST /api/videos", videos.Upload)
	mux.HandleFunc("POST /api/videos/youtube", videos.ImportYouTube)
	mux.HandleFunc("GET /api/videos/search", videos.SearchVideos)
	mux.HandleFunc("GET /api/videos/saved", engagement.ListSaved)
	mux.HandleFunc("GET /api/videos/history", engagement.History)
	mux.HandleFunc("GET /api/videos/{id}", videos.Get)
	mux.HandleFunc("DELETE /api/videos/{id}", videos.Delete)
	mux.HandleFunc("GET /api/videos/{id}/status", videos.Status)
	mux.HandleFunc("PUT /api/videos/{id}/status", videos.SetStatus)
	mux.HandleFunc("POST /api/videos/{id}/view", engagement.View)
	mux.HandleFunc("POST /api/videos/{id}/like", engagement.Like)
	mux.HandleFunc("POST /api/videos/{id}/dislike", engagement.Dislike)
	mux.HandleFunc("POST /api/videos/{id}/save", engagement.Save)
	mux.HandleFunc("DELETE /api/videos/{id}/save", engagement.Unsave)
	mux.HandleFunc("GET /api/videos/{id}/saved", engagement.IsSaved)
	mux.HandleFunc("POST /api/videos/{id}/watch", engagement.Watch)

	mux.HandleFunc("POST /api/waiting-list", waitlist.Join)
	mux.HandleFunc("GET /api/waiting-list", waitlist.List)
}
