package handlers

import (
	"net/http"
	"time"

	"github.com/dvloznov/fintrack-api/internal/api/middleware"
	"github.com/rs/zerolog"
)

// UsageHandler reports model usage for the caller.
type UsageHandler struct {
	store UsageStore
	now   func() time.Time
	log   zerolog.Logger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(store UsageStore, log zerolog.Logger) *UsageHandler {
	return &UsageHandler{
		store: store,
		now:   time.Now,
		log:   log,
	}
}

// Today handles GET /api/v1/usage/today
func (h *UsageHandler) Today(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	now := h.now().UTC()
	summary, err := h.store.TodayUsage(r.Context(), user.ID, now)
	if err != nil {
		writeServiceError(w, r, err, "")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, usageResponse{
		Date:         now.Format("2006-01-02"),
		Requests:     summary.Requests,
		Failed:       summary.Failed,
		InputTokens:  summary.InputTokens,
		OutputTokens: summary.OutputTokens,
		TotalTokens:  summary.TotalTokens,
	})
}

// NotificationsHandler upgrades authenticated requests to push sockets.
type NotificationsHandler struct {
	sockets SocketServer
}

// NewNotificationsHandler creates a new notifications handler.
func NewNotificationsHandler(sockets SocketServer) *NotificationsHandler {
	return &NotificationsHandler{sockets: sockets}
}

// Connect handles GET /api/v1/ws
func (h *NotificationsHandler) Connect(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.sockets.ServeWS(w, r, user.ID)
}
