package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"trade-journal/internal/journal"
	"trade-journal/internal/loader"
	"trade-journal/internal/lounge"
	"trade-journal/internal/meeting"
	"trade-journal/internal/poll"

	"github.com/gin-gonic/gin"
)

const maxMeetingWait = 5 * time.Minute

func (s *Server) notificationsPayload() gin.H {
	return gin.H{
		"notifications": s.svc.Notifications.List(),
		"unreadCount":   s.svc.Notifications.UnreadCount(),
	}
}

func (s *Server) handleListNotifications(c *gin.Context) {
	if !s.svc.Notifications.Loaded() {
		if err := s.svc.Notifications.Refresh(c.Request.Context()); err != nil {
			backendError(c, err)
			return
		}
	}
	successResponse(c, s.notificationsPayload())
}

// handleOpenNotifications refetches the feed when the panel opens
func (s *Server) handleOpenNotifications(c *gin.Context) {
	if err := s.svc.Notifications.Open(c.Request.Context()); err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, s.notificationsPayload())
}

func (s *Server) handleMarkRead(c *gin.Context) {
	if !s.svc.Notifications.MarkRead(c.Request.Context(), c.Param("id")) {
		errorResponse(c, http.StatusNotFound, "notification not found")
		return
	}
	successResponse(c, s.notificationsPayload())
}

func (s *Server) handleDismiss(c *gin.Context) {
	if !s.svc.Notifications.Dismiss(c.Request.Context(), c.Param("id")) {
		errorResponse(c, http.StatusNotFound, "notification not found")
		return
	}
	successResponse(c, s.notificationsPayload())
}

func (s *Server) handleDismissAll(c *gin.Context) {
	s.svc.Notifications.DismissAll(c.Request.Context())
	successResponse(c, s.notificationsPayload())
}

func (s *Server) handleListPosts(c *gin.Context) {
	posts, err := s.svc.Client.ListPosts(c.Request.Context())
	if err != nil {
		backendError(c, err)
		return
	}
	s.svc.Board.Load(posts)
	successResponse(c, posts)
}

type reactRequest struct {
	Reaction string `json:"reaction" binding:"required"`
}

func (s *Server) handleReactPost(c *gin.Context) {
	s.react(c, lounge.Target{Kind: lounge.KindPost, ID: c.Param("id")})
}

func (s *Server) handleReactComment(c *gin.Context) {
	s.react(c, lounge.Target{Kind: lounge.KindComment, ID: c.Param("id")})
}

func (s *Server) react(c *gin.Context, target lounge.Target) {
	var req reactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "reaction is required")
		return
	}

	state, err := s.svc.Board.React(c.Request.Context(), s.getUserID(c), target, req.Reaction)
	if err != nil {
		if errors.Is(err, lounge.ErrCooldown) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": true, "message": err.Error(), "data": state})
			return
		}
		backendError(c, err)
		return
	}
	successResponse(c, state)
}

func (s *Server) handleLikePost(c *gin.Context) {
	state, err := s.svc.Board.Like(c.Request.Context(), s.getUserID(c), c.Param("id"))
	if err != nil {
		if errors.Is(err, lounge.ErrCooldown) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": true, "message": err.Error(), "data": state})
			return
		}
		backendError(c, err)
		return
	}
	successResponse(c, state)
}

func (s *Server) handleCommunityStats(c *gin.Context) {
	s.serveTopic(c, TopicCommunityStats)
}

func (s *Server) handleOnlineFriends(c *gin.Context) {
	s.serveTopic(c, TopicOnlineFriends)
}

func (s *Server) handleLeaderboard(c *gin.Context) {
	f := journal.LeaderboardFilter{Period: c.Query("period"), Metric: c.Query("metric")}
	switch f.Period {
	case "", "week", "month", "year", "all":
	default:
		errorResponse(c, http.StatusBadRequest, "period must be week, month, year or all")
		return
	}
	switch f.Metric {
	case "", "profit", "winRate", "trades":
	default:
		errorResponse(c, http.StatusBadRequest, "metric must be profit, winRate or trades")
		return
	}
	s.serveTopic(c, s.leaderboardTopic(f).Name)
}

// serveTopic answers from the shared poll when a fresh value exists and
// otherwise joins or issues a fetch
func (s *Server) serveTopic(c *gin.Context, name string) {
	topic, err := s.resolveTopic(name)
	if err != nil {
		errorResponse(c, http.StatusNotFound, err.Error())
		return
	}

	if u, ok := s.svc.Polls.Last(topic.Name); ok && time.Since(u.At) < topic.Interval {
		successResponse(c, u)
		return
	}

	u, err := s.svc.Polls.Fetch(c.Request.Context(), topic)
	if err != nil {
		if errors.Is(err, poll.ErrHubClosed) {
			errorResponse(c, http.StatusServiceUnavailable, err.Error())
			return
		}
		backendError(c, err)
		return
	}
	successResponse(c, u)
}

func (s *Server) handleInviteRoom(c *gin.Context) {
	var invite journal.RoomInvite
	if err := c.ShouldBindJSON(&invite); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.svc.Lobby.Invite(c.Request.Context(), invite.FriendID, invite.RoomID); err != nil {
		var apiErr *journal.APIError
		if !errors.As(err, &apiErr) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		backendError(c, err)
		return
	}
	successResponse(c, gin.H{"message": "invitation sent"})
}

func (s *Server) handleCreateMeeting(c *gin.Context) {
	var req journal.MeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.GuestID == "" {
		errorResponse(c, http.StatusBadRequest, "guestId is required")
		return
	}
	m, err := s.svc.Lobby.Create(c.Request.Context(), req.GuestID, req.RoomID)
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, m)
}

func (s *Server) handleGetMeeting(c *gin.Context) {
	m, err := s.svc.Client.GetMeeting(c.Request.Context(), c.Param("id"))
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, m)
}

// meetingWaitLimit keeps a wait short enough for its reply to be written
// before the server's write deadline
func (s *Server) meetingWaitLimit() time.Duration {
	limit := maxMeetingWait
	if wt := s.config.WriteTimeout; wt > 0 {
		margin := wt / 5
		if margin > 5*time.Second {
			margin = 5 * time.Second
		}
		if wt-margin < limit {
			limit = wt - margin
		}
	}
	return limit
}

// handleWaitMeeting blocks until the guest answers, the meeting expires or
// ?timeout= elapses
func (s *Server) handleWaitMeeting(c *gin.Context) {
	timeout := time.Minute
	if raw := c.Query("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			errorResponse(c, http.StatusBadRequest, "invalid timeout")
			return
		}
		timeout = d
	}
	if limit := s.meetingWaitLimit(); timeout > limit {
		timeout = limit
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	m, err := s.svc.Lobby.WaitForAcceptance(ctx, c.Param("id"))
	switch {
	case err == nil, errors.Is(err, meeting.ErrDeclined):
		successResponse(c, m)
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusAccepted, gin.H{"success": true, "pending": true, "message": "meeting still pending"})
	default:
		backendError(c, err)
	}
}

// handlePageBundle serves a lazily loaded page bundle
func (s *Server) handlePageBundle(c *gin.Context) {
	if s.svc.Bundles == nil {
		errorResponse(c, http.StatusNotFound, "page bundles are not configured")
		return
	}
	data, err := s.svc.Bundles.Load(c.Request.Context(), c.Param("name"))
	if err != nil {
		if errors.Is(err, loader.ErrUnknownPage) {
			errorResponse(c, http.StatusNotFound, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.Data(http.StatusOK, "application/javascript; charset=utf-8", data)
}
