package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"trade-journal/internal/analytics"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"

	"github.com/gin-gonic/gin"
)

// scoredTrade is a trade with its quality score attached
type scoredTrade struct {
	journal.Trade
	Score int    `json:"score"`
	Grade string `json:"grade"`
}

func withScore(t journal.Trade) scoredTrade {
	score := analytics.QualityScore(t)
	return scoredTrade{Trade: t, Score: score, Grade: analytics.ScoreGrade(score)}
}

func (s *Server) handleListTrades(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(journal.DefaultPageSize)))

	result, err := s.svc.Client.ListTrades(c.Request.Context(), s.getUserID(c), page, limit)
	if err != nil {
		backendError(c, err)
		return
	}

	trades := make([]scoredTrade, len(result.Trades))
	for i, t := range result.Trades {
		trades[i] = withScore(t)
	}
	successResponse(c, gin.H{
		"trades":     trades,
		"page":       result.Page,
		"limit":      result.Limit,
		"total":      result.Total,
		"totalPages": result.TotalPages,
	})
}

// handleTradeStats computes statistics over every trade of the user.
// ?tz= selects the zone used for weekday and hour buckets.
func (s *Server) handleTradeStats(c *gin.Context) {
	loc := time.Local
	if tz := c.Query("tz"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			errorResponse(c, http.StatusBadRequest, fmt.Sprintf("unknown time zone %q", tz))
			return
		}
		loc = l
	}

	start := time.Now()
	trades, err := s.svc.Client.AllTrades(c.Request.Context(), s.getUserID(c))
	if err != nil {
		backendError(c, err)
		return
	}
	stats := analytics.Compute(trades, loc)

	logging.FromContext(c.Request.Context()).WithDuration(time.Since(start)).Debug("Computed trade stats", "trades", len(trades))
	successResponse(c, stats)
}

func (s *Server) handleTradeScore(c *gin.Context) {
	trade, err := s.findTrade(c.Request.Context(), c.Param("id"))
	if err != nil {
		backendError(c, err)
		return
	}
	scored := withScore(*trade)
	successResponse(c, gin.H{
		"tradeId":   trade.ID,
		"score":     scored.Score,
		"grade":     scored.Grade,
		"execution": trade.Execution.Count(),
		"journal":   trade.Journal.Count(),
	})
}

func (s *Server) handleUpdateJournal(c *gin.Context) {
	var update journal.JournalUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := update.Validate(); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	trade, err := s.svc.Client.UpdateJournal(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		backendError(c, err)
		return
	}
	logging.TradeContext(trade.ID, trade.Symbol).Info("Journal updated", "rating", trade.Rating)
	successResponse(c, withScore(*trade))
}

// handleTradeKlines returns candles around a trade for the chart overlay
func (s *Server) handleTradeKlines(c *gin.Context) {
	pad := time.Hour
	if raw := c.Query("pad"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			errorResponse(c, http.StatusBadRequest, "invalid pad duration")
			return
		}
		pad = d
	}

	ctx := c.Request.Context()
	trade, err := s.findTrade(ctx, c.Param("id"))
	if err != nil {
		backendError(c, err)
		return
	}

	klines, err := s.svc.Client.Klines(ctx, journal.TradeWindow(*trade, c.DefaultQuery("interval", "1h"), pad))
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, gin.H{"trade": trade, "klines": klines})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	summary, err := s.svc.Client.UserAnalytics(c.Request.Context(), s.getUserID(c))
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, summary)
}

func (s *Server) handleInsights(c *gin.Context) {
	insights, err := s.svc.Client.Insights(c.Request.Context())
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, insights)
}

// findTrade looks a trade up among the user's pages
func (s *Server) findTrade(ctx context.Context, id string) (*journal.Trade, error) {
	trades, err := s.svc.Client.AllTrades(ctx, s.svc.Session.UserID())
	if err != nil {
		return nil, err
	}
	for i := range trades {
		if trades[i].ID == id {
			return &trades[i], nil
		}
	}
	return nil, fmt.Errorf("trade %s: %w", id, journal.ErrNotFound)
}

func (s *Server) handleListGoals(c *gin.Context) {
	goals, err := s.svc.Client.ListGoals(c.Request.Context())
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, analytics.EnrichGoals(goals))
}

func (s *Server) handleCreateGoal(c *gin.Context) {
	in, ok := bindGoal(c)
	if !ok {
		return
	}
	goal, err := s.svc.Client.CreateGoal(c.Request.Context(), in)
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, analytics.EnrichGoals([]journal.Goal{*goal})[0])
}

func (s *Server) handleUpdateGoal(c *gin.Context) {
	in, ok := bindGoal(c)
	if !ok {
		return
	}
	goal, err := s.svc.Client.UpdateGoal(c.Request.Context(), c.Param("id"), in)
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, analytics.EnrichGoals([]journal.Goal{*goal})[0])
}

func (s *Server) handleDeleteGoal(c *gin.Context) {
	if err := s.svc.Client.DeleteGoal(c.Request.Context(), c.Param("id")); err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, gin.H{"message": "goal deleted"})
}

func bindGoal(c *gin.Context) (journal.GoalInput, bool) {
	var in journal.GoalInput
	if err := c.ShouldBindJSON(&in); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return in, false
	}
	if err := in.Validate(); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return in, false
	}
	return in, true
}

// handleReportPreview shows what a report over [from, to] would contain.
// The range defaults to the last seven days.
func (s *Server) handleReportPreview(c *gin.Context) {
	to := time.Now()
	from := to.AddDate(0, 0, -7)
	var err error
	if raw := c.Query("from"); raw != "" {
		if from, err = time.Parse(time.RFC3339, raw); err != nil {
			errorResponse(c, http.StatusBadRequest, "from must be RFC3339")
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if to, err = time.Parse(time.RFC3339, raw); err != nil {
			errorResponse(c, http.StatusBadRequest, "to must be RFC3339")
			return
		}
	}
	if to.Before(from) {
		errorResponse(c, http.StatusBadRequest, "to is before from")
		return
	}

	preview, err := s.svc.Client.ReportPreview(c.Request.Context(), from, to)
	if err != nil {
		backendError(c, err)
		return
	}
	successResponse(c, preview)
}

func (s *Server) handleGenerateReport(c *gin.Context) {
	var req journal.ReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.svc.Client.GenerateReport(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, journal.ErrInvalidReply) {
			errorResponse(c, http.StatusBadGateway, "report service returned an invalid reply")
			return
		}
		backendError(c, err)
		return
	}
	logging.FromContext(c.Request.Context()).Info("Report generated",
		"report_id", record.ID,
		"type", record.Type,
		"from", req.From.Format(time.RFC3339),
		"to", req.To.Format(time.RFC3339),
	)
	successResponse(c, record)
}
