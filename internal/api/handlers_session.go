package api

import (
	"errors"
	"net/http"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/poll"
	"trade-journal/internal/session"
	"trade-journal/internal/vault"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

func (s *Server) handleGetSession(c *gin.Context) {
	successResponse(c, s.svc.Session.Snapshot())
}

// handleLogin signs in with the posted credentials. An empty body falls
// back to the credentials stored in Vault.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			errorResponse(c, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	ctx := c.Request.Context()

	if req.Email == "" && s.svc.Vault != nil {
		creds, err := s.svc.Vault.Credentials(ctx)
		if err != nil && !errors.Is(err, vault.ErrNoCredentials) {
			logging.FromContext(ctx).WithError(err).Warn("Failed to read stored credentials")
		}
		if creds != nil {
			req.Email, req.Password = creds.Email, creds.Password
		}
	}
	if req.Email == "" || req.Password == "" {
		errorResponse(c, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := s.svc.Session.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, journal.ErrUnauthorized) {
			errorResponse(c, http.StatusUnauthorized, "invalid email or password")
			return
		}
		backendError(c, err)
		return
	}

	if req.Remember && s.svc.Vault != nil {
		if err := s.svc.Vault.StoreCredentials(ctx, vault.Credentials{Email: req.Email, Password: req.Password}); err != nil {
			logging.FromContext(ctx).WithError(err).Warn("Failed to store credentials")
		}
	}

	successResponse(c, gin.H{"user": user})
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.svc.Session.Logout(c.Request.Context()); err != nil {
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	if s.svc.Vault != nil {
		s.svc.Vault.ClearCache()
	}
	successResponse(c, gin.H{"message": "signed out"})
}

func (s *Server) handleUpdateUser(c *gin.Context) {
	var user journal.User
	if err := c.ShouldBindJSON(&user); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.Session.UpdateUser(c.Request.Context(), user); err != nil {
		switch {
		case errors.Is(err, session.ErrNotAuthenticated):
			errorResponse(c, http.StatusUnauthorized, err.Error())
		case errors.Is(err, session.ErrUserMismatch):
			errorResponse(c, http.StatusForbidden, err.Error())
		default:
			errorResponse(c, http.StatusBadRequest, err.Error())
		}
		return
	}
	successResponse(c, s.svc.Session.Snapshot())
}

// watchSession keeps the notification feed polled while someone is
// signed in. The handler reads the current session rather than the event
// payload, so out-of-order async deliveries settle on the latest state.
func (s *Server) watchSession() {
	if s.svc.EventBus == nil || s.svc.Notifications == nil {
		return
	}
	s.svc.EventBus.Subscribe(events.EventSessionChanged, func(events.Event) {
		s.syncNotificationPolling()
	})
	s.syncNotificationPolling()
}

func (s *Server) syncNotificationPolling() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	authed := s.svc.Session.IsAuthenticated()
	switch {
	case authed && s.notifySub == "":
		topic, err := s.resolveTopic(TopicNotifications)
		if err != nil {
			return
		}
		id, err := s.svc.Polls.Subscribe(topic, func(u poll.Update) {
			if list, ok := u.Value.(*journal.NotificationList); ok {
				s.svc.Notifications.Apply(list)
			}
		})
		if err != nil {
			s.logger.WithError(err).Warn("Failed to start notification polling")
			return
		}
		s.notifySub = id
	case !authed:
		s.stopNotificationPollingLocked()
		// the next user must not see the previous feed or reactions
		s.svc.Notifications.Reset()
		if s.svc.Board != nil {
			s.svc.Board.Reset()
		}
	}
}

func (s *Server) stopNotificationPolling() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	s.stopNotificationPollingLocked()
}

func (s *Server) stopNotificationPollingLocked() {
	if s.notifySub == "" {
		return
	}
	s.svc.Polls.Unsubscribe(TopicNotifications, s.notifySub)
	s.notifySub = ""
}
