package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"trade-journal/config"
	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/loader"
	"trade-journal/internal/logging"
	"trade-journal/internal/lounge"
	"trade-journal/internal/meeting"
	"trade-journal/internal/notification"
	"trade-journal/internal/poll"
	"trade-journal/internal/session"
	"trade-journal/internal/vault"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ServerConfig holds server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ProductionMode  bool
	StaticFilesPath string
	AllowedOrigins  []string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// DefaultWriteTimeout leaves room for the longest meeting wait
const DefaultWriteTimeout = maxMeetingWait + 30*time.Second

// ServerConfigFrom converts the file/env configuration
func ServerConfigFrom(cfg config.ServerConfig) ServerConfig {
	return ServerConfig{
		Port:            cfg.Port,
		Host:            cfg.Host,
		ProductionMode:  cfg.ProductionMode,
		StaticFilesPath: cfg.StaticFilesPath,
		AllowedOrigins:  cfg.AllowedOriginList(),
		ReadTimeout:     time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout:    time.Duration(cfg.WriteTimeout) * time.Second,
	}
}

// Services are the client-side components the server exposes
type Services struct {
	Client        *journal.Client
	Session       *session.Store
	EventBus      *events.EventBus
	Polls         *poll.Hub
	Notifications *notification.Center
	Board         *lounge.Board
	Lobby         *meeting.Lobby
	Bundles       *loader.Bundles // nil disables /pages
	Vault         *vault.Client   // nil disables credential-less login
	Polling       config.PollingConfig
}

// Server is the local companion HTTP server browser tabs talk to
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	config     ServerConfig
	svc        Services
	wsHub      *UserWSHub
	startedAt  time.Time
	logger     *logging.Logger

	notifyMu  sync.Mutex
	notifySub string
}

// NewServer creates the server and wires the event bus to the websocket hub
func NewServer(cfg ServerConfig, svc Services) *Server {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	if len(corsConfig.AllowOrigins) == 0 {
		corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Trace-ID"}
	corsConfig.ExposeHeaders = []string{"Content-Length", "X-Trace-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:    router,
		config:    cfg,
		svc:       svc,
		wsHub:     NewUserWSHub(),
		startedAt: time.Now(),
		logger:    logging.WithComponent("api"),
	}

	s.setupRoutes()
	go s.wsHub.Run()
	s.forwardEvents()
	s.watchSession()

	return s
}

// Router exposes the gin engine for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	sess := s.router.Group("/api/session")
	{
		sess.GET("", s.handleGetSession)
		sess.POST("", s.handleLogin)
		sess.PUT("", s.handleUpdateUser)
		sess.DELETE("", s.handleLogout)
	}

	api := s.router.Group("/api")
	api.Use(s.requireSession())
	{
		api.GET("/trades", s.handleListTrades)
		api.GET("/trades/stats", s.handleTradeStats)
		api.GET("/trades/:id/score", s.handleTradeScore)
		api.PUT("/trades/:id/journal", s.handleUpdateJournal)
		api.GET("/trades/:id/klines", s.handleTradeKlines)

		api.GET("/analytics", s.handleAnalytics)
		api.GET("/analytics/insights", s.handleInsights)

		api.GET("/goals", s.handleListGoals)
		api.POST("/goals", s.handleCreateGoal)
		api.PUT("/goals/:id", s.handleUpdateGoal)
		api.DELETE("/goals/:id", s.handleDeleteGoal)

		api.GET("/notifications", s.handleListNotifications)
		api.POST("/notifications/open", s.handleOpenNotifications)
		api.PUT("/notifications/dismiss-all", s.handleDismissAll)
		api.PUT("/notifications/:id/read", s.handleMarkRead)
		api.PUT("/notifications/:id/dismiss", s.handleDismiss)

		api.GET("/lounge/posts", s.handleListPosts)
		api.POST("/lounge/posts/:id/react", s.handleReactPost)
		api.POST("/lounge/posts/:id/like", s.handleLikePost)
		api.POST("/lounge/comments/:id/react", s.handleReactComment)
		api.GET("/lounge/stats", s.handleCommunityStats)

		api.GET("/leaderboard", s.handleLeaderboard)
		api.GET("/friends/online", s.handleOnlineFriends)
		api.POST("/friends/invite-room", s.handleInviteRoom)

		api.POST("/meetings", s.handleCreateMeeting)
		api.GET("/meetings/:id", s.handleGetMeeting)
		api.GET("/meetings/:id/wait", s.handleWaitMeeting)

		api.GET("/reports/preview", s.handleReportPreview)
		api.POST("/reports/generate", s.handleGenerateReport)

		admin := api.Group("/admin")
		admin.Use(s.requireRole(journal.RoleAdmin))
		{
			admin.GET("/polls", s.handlePollStats)
		}
	}

	s.router.GET("/ws", s.requireSession(), s.handleUserWebSocket)
	s.router.GET("/pages/:name", s.handlePageBundle)

	if s.config.StaticFilesPath != "" {
		if _, err := os.Stat(s.config.StaticFilesPath); err == nil {
			s.router.Static("/assets", filepath.Join(s.config.StaticFilesPath, "assets"))
			s.router.NoRoute(func(c *gin.Context) {
				if strings.HasPrefix(c.Request.URL.Path, "/api/") {
					errorResponse(c, http.StatusNotFound, "not found")
					return
				}
				c.File(filepath.Join(s.config.StaticFilesPath, "index.html"))
			})
		}
	}
}

// newHTTPServer builds the http.Server that Start listens with
func (s *Server) newHTTPServer() *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      logging.HTTPMiddleware(s.router),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.httpServer = s.newHTTPServer()

	s.logger.Info("Starting HTTP server", "addr", s.httpServer.Addr, "write_timeout", s.config.WriteTimeout.String())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	s.stopNotificationPolling()
	s.wsHub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":        "healthy",
		"authenticated": s.svc.Session.IsAuthenticated(),
		"backend":       s.svc.Client.BaseURL(),
		"ws_clients":    s.wsHub.GetTotalClientCount(),
		"poll_topics":   len(s.svc.Polls.Stats()),
		"uptime":        time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handlePollStats(c *gin.Context) {
	successResponse(c, s.svc.Polls.Stats())
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}

// backendError maps a journal client error onto a response
func backendError(c *gin.Context, err error) {
	var apiErr *journal.APIError
	switch {
	case errors.Is(err, journal.ErrUnauthorized):
		errorResponse(c, http.StatusUnauthorized, "session expired, please sign in again")
	case errors.Is(err, journal.ErrNotFound):
		errorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, journal.ErrInvalidReply):
		errorResponse(c, http.StatusBadGateway, err.Error())
	case errors.As(err, &apiErr) && apiErr.Status < 500:
		errorResponse(c, apiErr.Status, apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded):
		errorResponse(c, http.StatusGatewayTimeout, "backend timed out")
	default:
		errorResponse(c, http.StatusBadGateway, err.Error())
	}
	logging.FromContext(c.Request.Context()).WithError(err).Warn("Backend call failed", "path", c.FullPath())
}

// getUserID returns the signed-in user's id
func (s *Server) getUserID(c *gin.Context) string {
	return s.svc.Session.UserID()
}
