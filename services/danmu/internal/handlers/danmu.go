package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/danmu-platform/internal/platform/api"
	"github.com/example/danmu-platform/internal/platform/auth"
	"github.com/example/danmu-platform/internal/platform/httpserver"
	"github.com/example/danmu-platform/services/danmu/internal/domain"
	"github.com/example/danmu-platform/services/danmu/internal/service"
	"github.com/example/danmu-platform/services/danmu/internal/store"
)

// Danmu is the engine surface the routes drive.
type Danmu interface {
	ByURL(ctx context.Context, url string) service.Response
	ByCatalogID(ctx context.Context, catalogID string, vt domain.VideoType, episode string) service.Response
	ByTitle(ctx context.Context, q service.TitleQuery) service.Response
	Stats(ctx context.Context) (int, error)
	Purge(ctx context.Context, catalogID string) error
}

// Mount registers the danmu routes on r. admin guards the purge route, which
// is not mounted when admin is nil.
func Mount(r chi.Router, d Danmu, admin func(http.Handler) http.Handler, log *zap.Logger) {
	if log == nil {
		log = zap.NewNop()
	}
	r.Get("/api/comment", ByURL(d))
	r.Get("/api/douban", ByCatalogID(d))
	r.Get("/api/title", ByTitle(d))
	r.Get("/api/stats", Stats(d, log))
	if admin != nil {
		r.With(admin).Delete("/api/admin/videos/{douban_id}", PurgeVideo(d, log))
	}
}

// ByURL handles GET /api/comment?url=
func ByURL(d Danmu) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		u := strings.TrimSpace(r.URL.Query().Get("url"))
		if u == "" {
			api.BadRequest(w, "url is required", rid, nil)
			return
		}
		api.WriteJSON(w, http.StatusOK, d.ByURL(r.Context(), u))
	}
}

// ByCatalogID handles GET /api/douban?douban_id=&episode_number=&video_type=
func ByCatalogID(d Danmu) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()

		id, ok := positiveInt(q.Get("douban_id"))
		if !ok {
			api.BadRequest(w, "douban_id must be a positive integer", rid, map[string]any{"douban_id": q.Get("douban_id")})
			return
		}
		episode, ok := episodeNumber(q.Get("episode_number"))
		if !ok {
			api.BadRequest(w, "episode_number must be a non-negative integer", rid, map[string]any{"episode_number": q.Get("episode_number")})
			return
		}
		vt, ok := domain.ParseVideoType(q.Get("video_type"))
		if !ok {
			api.BadRequest(w, "video_type must be tv or movie", rid, map[string]any{"video_type": q.Get("video_type")})
			return
		}
		api.WriteJSON(w, http.StatusOK, d.ByCatalogID(r.Context(), id, vt, episode))
	}
}

// ByTitle handles GET /api/title?title=&episode_number=&video_type=[&season_number=&season=]
func ByTitle(d Danmu) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		q := r.URL.Query()

		title := strings.TrimSpace(q.Get("title"))
		if title == "" {
			api.BadRequest(w, "title is required", rid, nil)
			return
		}
		episode, ok := episodeNumber(q.Get("episode_number"))
		if !ok {
			api.BadRequest(w, "episode_number must be a non-negative integer", rid, map[string]any{"episode_number": q.Get("episode_number")})
			return
		}
		vt, ok := domain.ParseVideoType(q.Get("video_type"))
		if !ok {
			api.BadRequest(w, "video_type must be tv or movie", rid, map[string]any{"video_type": q.Get("video_type")})
			return
		}
		season := ""
		if raw := strings.TrimSpace(q.Get("season_number")); raw != "" {
			n, ok := positiveInt(raw)
			if !ok {
				api.BadRequest(w, "season_number must be a positive integer", rid, map[string]any{"season_number": raw})
				return
			}
			season = n
		}
		isSeries := vt == domain.VideoTV
		if raw := strings.TrimSpace(q.Get("season")); raw != "" {
			b, err := strconv.ParseBool(raw)
			if err != nil {
				api.BadRequest(w, "season must be a boolean", rid, map[string]any{"season": raw})
				return
			}
			isSeries = b
		}

		api.WriteJSON(w, http.StatusOK, d.ByTitle(r.Context(), service.TitleQuery{
			Title:        title,
			SeasonNumber: season,
			IsSeries:     isSeries,
			VideoType:    vt,
			Episode:      episode,
		}))
	}
}

type statsResponse struct {
	Videos int `json:"videos"`
}

// Stats handles GET /api/stats
func Stats(d Danmu, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		n, err := d.Stats(r.Context())
		if err != nil {
			if errors.Is(err, service.ErrMissingStore) {
				api.Unavailable(w, "no persisted store configured", rid)
				return
			}
			log.Error("stats: count videos", zap.Error(err))
			api.Internal(w, rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, statsResponse{Videos: n})
	}
}

// PurgeVideo handles DELETE /api/admin/videos/{douban_id}
func PurgeVideo(d Danmu, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())
		id, ok := positiveInt(chi.URLParam(r, "douban_id"))
		if !ok {
			api.BadRequest(w, "douban_id must be a positive integer", rid, nil)
			return
		}
		if err := d.Purge(r.Context(), id); err != nil {
			switch {
			case errors.Is(err, store.ErrNotFound):
				api.NotFound(w, "video not found", rid)
			case errors.Is(err, service.ErrMissingStore):
				api.Unavailable(w, "no persisted store configured", rid)
			default:
				log.Error("purge video", zap.String("douban_id", id), zap.Error(err))
				api.Internal(w, rid)
			}
			return
		}
		subject, _ := auth.SubjectFromContext(r.Context())
		role, _ := auth.RoleFromContext(r.Context())
		log.Info("video purged", zap.String("douban_id", id), zap.String("by", subject), zap.String("role", role))
		w.WriteHeader(http.StatusNoContent)
	}
}

// positiveInt validates raw as a positive integer and returns its canonical form.
func positiveInt(raw string) (string, bool) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return "", false
	}
	return strconv.FormatInt(n, 10), true
}

func episodeNumber(raw string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return "", false
	}
	return strconv.Itoa(n), true
}
