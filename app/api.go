package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ticketguy/Keepshot/config"
	"github.com/ticketguy/Keepshot/lib"
	"github.com/ticketguy/Keepshot/lib/models"
	"github.com/ticketguy/Keepshot/lib/notify"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewAPI(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger, svc *lib.Service, dispatcher *notify.Dispatcher) *http.Server {
	addr := fmt.Sprintf(":%d", cfg.ServerPort)
	srv := &http.Server{Addr: addr, Handler: router(cfg, log, svc, dispatcher)}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go srv.ListenAndServe()
			return nil
		},
		OnStop: srv.Shutdown,
	})

	return srv
}

func router(cfg *config.Config, log *zap.Logger, svc *lib.Service, dispatcher *notify.Dispatcher) http.Handler {
	ctrl := &controller{log, svc, dispatcher}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", ctrl.health)

	r.Route("/api", func(r chi.Router) {
		if creds := cfg.GetCreds(); len(creds) > 0 {
			r.Use(middleware.BasicAuth("keepshot", creds))
		} else {
			log.Sugar().Info("Auth is disabled since no credentials are defined")
		}

		r.Post("/users", ctrl.onboardUser)
		r.Route("/users/{user_id}", func(r chi.Router) {
			r.Route("/bookmarks", func(r chi.Router) {
				r.Post("/", ctrl.createBookmark)
				r.Get("/", ctrl.listBookmarks)
				r.Get("/{bookmark_id}", ctrl.getBookmark)
				r.Patch("/{bookmark_id}", ctrl.updateBookmark)
				r.Delete("/{bookmark_id}", ctrl.deleteBookmark)
				r.Post("/{bookmark_id}/check", ctrl.checkBookmark)
				r.Get("/{bookmark_id}/snapshots/latest", ctrl.viewLatestSnapshot)
			})
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", ctrl.listNotifications)
				r.Get("/unread-count", ctrl.unreadCount)
				r.Get("/{notification_id}", ctrl.getNotification)
				r.Post("/{notification_id}/read", ctrl.markNotificationRead)
			})
		})
	})
	r.Get("/verify/{nonce}", ctrl.verifyNotifier)
	r.Get("/ws/{user_id}", ctrl.subscribe)

	return r
}

type controller struct {
	log        *zap.Logger
	svc        *lib.Service
	dispatcher *notify.Dispatcher
}

func (ctrl *controller) reject(w http.ResponseWriter, status int, err error) {
	if err != nil {
		http.Error(w, err.Error(), status)
	} else {
		w.WriteHeader(status)
	}
}

func (ctrl *controller) resolve(w http.ResponseWriter, status int, body any) {
	if b, err := json.Marshal(body); err != nil {
		ctrl.reject(w, http.StatusInternalServerError, err)
		ctrl.log.Sugar().Error("Request failed", "error", err)
		return
	} else {
		w.WriteHeader(status)
		if b != nil {
			w.Write(b)
		}
	}
}

func (ctrl *controller) rejectNotFound(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, lib.ErrBookmarkNotFound), errors.Is(err, lib.ErrNotificationNotFound):
		ctrl.reject(w, http.StatusNotFound, err)
		return true
	default:
		return false
	}
}

func (ctrl *controller) health(w http.ResponseWriter, r *http.Request) {
	users, conns := ctrl.dispatcher.ConnectionCounts()
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"connected_users": users,
		"connections":     conns,
	})
}

func (ctrl *controller) onboardUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	email := r.FormValue("email")
	password := r.FormValue("password")

	if email == "" {
		ctrl.reject(w, 400, errors.New("Email is required"))
		return
	}
	if password == "" {
		ctrl.reject(w, 400, errors.New("Password is required"))
		return
	}

	user, err := ctrl.svc.OnboardUser(ctx, email, password)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusAccepted, user)
}

func (ctrl *controller) verifyNotifier(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nonce := chi.URLParam(r, "nonce")

	ok, err := ctrl.svc.VerifyNotifier(ctx, nonce)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"verified": ok})
}

func (ctrl *controller) createBookmark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))

	var body struct {
		ContentType       string `json:"content_type"`
		URL               string `json:"url"`
		Title             string `json:"title"`
		Description       string `json:"description"`
		RawContent        string `json:"raw_content"`
		MonitoringEnabled *bool  `json:"monitoring_enabled"`
		CheckInterval     int    `json:"check_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctrl.reject(w, 400, err)
		return
	}
	if body.ContentType == "" {
		ctrl.reject(w, 400, errors.New("content_type is required"))
		return
	}

	enabled := true
	if body.MonitoringEnabled != nil {
		enabled = *body.MonitoringEnabled
	}

	bm, err := ctrl.svc.CreateBookmark(ctx, userID, lib.CreateBookmarkParams{
		ContentKind:       models.ContentKind(body.ContentType),
		URL:               body.URL,
		Title:             body.Title,
		Description:       body.Description,
		RawContent:        body.RawContent,
		MonitoringEnabled: enabled,
		CheckInterval:     body.CheckInterval,
	})
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusCreated, bm)
}

func (ctrl *controller) listBookmarks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	page, pageSize := pagination(r)

	items, total, err := ctrl.svc.ListBookmarks(ctx, userID, page, pageSize)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, paginated(items, total, page, pageSize))
}

func (ctrl *controller) getBookmark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	bookmarkID := parseInt(chi.URLParam(r, "bookmark_id"))

	bm, err := ctrl.svc.GetBookmark(ctx, userID, bookmarkID)
	if err != nil {
		if !ctrl.rejectNotFound(w, err) {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, bm)
}

func (ctrl *controller) updateBookmark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	bookmarkID := parseInt(chi.URLParam(r, "bookmark_id"))

	var body struct {
		Title             *string `json:"title"`
		Description       *string `json:"description"`
		MonitoringEnabled *bool   `json:"monitoring_enabled"`
		CheckInterval     *int    `json:"check_interval"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		ctrl.reject(w, 400, err)
		return
	}

	bm, err := ctrl.svc.UpdateBookmark(ctx, userID, bookmarkID, lib.UpdateBookmarkParams{
		Title:             body.Title,
		Description:       body.Description,
		MonitoringEnabled: body.MonitoringEnabled,
		CheckInterval:     body.CheckInterval,
	})
	if err != nil {
		if !ctrl.rejectNotFound(w, err) {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, bm)
}

func (ctrl *controller) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	bookmarkID := parseInt(chi.URLParam(r, "bookmark_id"))

	if err := ctrl.svc.DeleteBookmark(ctx, userID, bookmarkID); err != nil {
		if !ctrl.rejectNotFound(w, err) {
			ctrl.reject(w, 500, err)
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ctrl *controller) checkBookmark(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	bookmarkID := parseInt(chi.URLParam(r, "bookmark_id"))

	if err := ctrl.svc.CheckNow(ctx, userID, bookmarkID); err != nil {
		if !ctrl.rejectNotFound(w, err) {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"checked": true})
}

func (ctrl *controller) viewLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	bookmarkID := parseInt(chi.URLParam(r, "bookmark_id"))

	snap, err := ctrl.svc.LatestSnapshot(ctx, userID, bookmarkID)
	if err != nil {
		if !ctrl.rejectNotFound(w, err) {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{
		"snapshot_id":  snap.ID,
		"content_hash": snap.ContentHash,
		"content":      snap.ExtractedContent,
		"created_at":   snap.CreatedAt,
	})
}

func (ctrl *controller) listNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	page, pageSize := pagination(r)

	filter := lib.NotificationFilter{
		Kind: models.NotificationKind(r.URL.Query().Get("type")),
	}
	if v := r.URL.Query().Get("read"); v != "" {
		read := v == "true"
		filter.Read = &read
	}

	items, total, err := ctrl.svc.ListNotifications(ctx, userID, page, pageSize, filter)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, paginated(items, total, page, pageSize))
}

func (ctrl *controller) unreadCount(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))

	count, err := ctrl.svc.UnreadCount(ctx, userID)
	if err != nil {
		ctrl.reject(w, 500, err)
		return
	}
	ctrl.resolve(w, http.StatusOK, map[string]any{"unread": count})
}

func (ctrl *controller) getNotification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	notificationID := parseInt(chi.URLParam(r, "notification_id"))

	n, err := ctrl.svc.GetNotification(ctx, userID, notificationID)
	if err != nil {
		if !ctrl.rejectNotFound(w, err) {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, n)
}

func (ctrl *controller) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := parseInt(chi.URLParam(r, "user_id"))
	notificationID := parseInt(chi.URLParam(r, "notification_id"))

	n, err := ctrl.svc.MarkNotificationRead(ctx, userID, notificationID, true)
	if err != nil {
		if !ctrl.rejectNotFound(w, err) {
			ctrl.reject(w, 500, err)
		}
		return
	}
	ctrl.resolve(w, http.StatusOK, n)
}

func parseInt(s string) uint {
	u, _ := strconv.ParseUint(s, 10, 64)
	return uint(u)
}

func pagination(r *http.Request) (page, pageSize int) {
	page = int(parseInt(r.URL.Query().Get("page")))
	if page < 1 {
		page = 1
	}
	pageSize = int(parseInt(r.URL.Query().Get("page_size")))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func paginated[T any](items T, total int64, page, pageSize int) map[string]any {
	return map[string]any{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
		"has_more":  int64(page*pageSize) < total,
	}
}
