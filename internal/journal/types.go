package journal

import (
	"errors"
	"fmt"
	"time"
)

// Role is the access role carried by a user
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Tier is the subscription tier
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

type User struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Role             Role   `json:"role"`
	SubscriptionTier Tier   `json:"subscriptionTier"`
	Avatar           string `json:"avatar,omitempty"`
}

func (u *User) Validate() error {
	if u.ID == "" {
		return errors.New("user: missing id")
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// Side of a trade
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ExecutionChecklist holds the four execution flags of a trade
type ExecutionChecklist struct {
	FollowedPlan       bool `json:"followedPlan"`
	ProperEntry        bool `json:"properEntry"`
	RespectedStopLoss  bool `json:"respectedStopLoss"`
	ProperPositionSize bool `json:"properPositionSize"`
}

// Count returns how many flags are set
func (e ExecutionChecklist) Count() int {
	return countTrue(e.FollowedPlan, e.ProperEntry, e.RespectedStopLoss, e.ProperPositionSize)
}

// JournalChecklist holds the four journaling flags of a trade
type JournalChecklist struct {
	HasScreenshot  bool `json:"hasScreenshot"`
	HasNotes       bool `json:"hasNotes"`
	EmotionTracked bool `json:"emotionTracked"`
	LessonRecorded bool `json:"lessonRecorded"`
}

// Count returns how many flags are set
func (j JournalChecklist) Count() int {
	return countTrue(j.HasScreenshot, j.HasNotes, j.EmotionTracked, j.LessonRecorded)
}

func countTrue(flags ...bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}

type Trade struct {
	ID         string             `json:"id"`
	UserID     string             `json:"userId"`
	Symbol     string             `json:"symbol"`
	Side       Side               `json:"side"`
	OpenTime   time.Time          `json:"openTime"`
	CloseTime  *time.Time         `json:"closeTime,omitempty"`
	OpenPrice  float64            `json:"openPrice"`
	ClosePrice float64            `json:"closePrice"`
	Volume     float64            `json:"volume"`
	NetProfit  float64            `json:"netProfit"`
	Execution  ExecutionChecklist `json:"execution"`
	Journal    JournalChecklist   `json:"journal"`
	Rating     int                `json:"rating"`
	Notes      string             `json:"notes,omitempty"`
	Emotion    string             `json:"emotion,omitempty"`
}

// IsClosed reports whether the trade has a close time
func (t Trade) IsClosed() bool {
	return t.CloseTime != nil && !t.CloseTime.IsZero()
}

func (t *Trade) Validate() error {
	if t.ID == "" {
		return errors.New("trade: missing id")
	}
	if t.Symbol == "" {
		return fmt.Errorf("trade %s: missing symbol", t.ID)
	}
	switch t.Side {
	case SideBuy, SideSell:
	default:
		return fmt.Errorf("trade %s: unknown side %q", t.ID, t.Side)
	}
	if t.Rating < 0 || t.Rating > 10 {
		return fmt.Errorf("trade %s: rating %d out of range", t.ID, t.Rating)
	}
	return nil
}

// TradePage is one page of GET /trades/user/{id}
type TradePage struct {
	Trades     []Trade `json:"trades"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	Total      int     `json:"total"`
	TotalPages int     `json:"totalPages"`
}

func (p *TradePage) Validate() error {
	for i := range p.Trades {
		if err := p.Trades[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// JournalUpdate is the body of PUT /trades/{id}/journal
type JournalUpdate struct {
	Execution ExecutionChecklist `json:"execution"`
	Journal   JournalChecklist   `json:"journal"`
	Rating    int                `json:"rating"`
	Notes     string             `json:"notes,omitempty"`
	Emotion   string             `json:"emotion,omitempty"`
}

var ErrInvalidRating = errors.New("rating must be between 0 and 10")

func (u JournalUpdate) Validate() error {
	if u.Rating < 0 || u.Rating > 10 {
		return ErrInvalidRating
	}
	return nil
}

// GoalType is the period a goal covers
type GoalType string

const (
	GoalWeekly  GoalType = "weekly"
	GoalMonthly GoalType = "monthly"
	GoalYearly  GoalType = "yearly"
)

type Goal struct {
	ID            string    `json:"id"`
	Type          GoalType  `json:"type"`
	TargetAmount  float64   `json:"targetAmount"`
	CurrentAmount float64   `json:"currentAmount"`
	StartDate     time.Time `json:"startDate,omitempty"`
	EndDate       time.Time `json:"endDate,omitempty"`
}

func (g *Goal) Validate() error {
	if g.ID == "" {
		return errors.New("goal: missing id")
	}
	return validGoalType(g.Type)
}

func validGoalType(t GoalType) error {
	switch t {
	case GoalWeekly, GoalMonthly, GoalYearly:
		return nil
	}
	return fmt.Errorf("goal: unknown type %q", t)
}

// GoalList is the reply of GET /api/goals
type GoalList []Goal

func (l *GoalList) Validate() error {
	for i := range *l {
		if err := (*l)[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// GoalInput is the body of goal create/update
type GoalInput struct {
	Type         GoalType `json:"type"`
	TargetAmount float64  `json:"targetAmount"`
}

func (in GoalInput) Validate() error {
	if err := validGoalType(in.Type); err != nil {
		return err
	}
	if in.TargetAmount < 0 {
		return errors.New("goal: target amount must not be negative")
	}
	return nil
}

type Author struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

type Post struct {
	ID         string         `json:"id"`
	Author     Author         `json:"author"`
	Content    string         `json:"content"`
	Reactions  map[string]int `json:"reactions"`
	MyReaction string         `json:"myReaction,omitempty"`
	Likes      int            `json:"likes"`
	LikedByMe  bool           `json:"likedByMe"`
	Comments   []Comment      `json:"comments,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

func (p *Post) Validate() error {
	if p.ID == "" {
		return errors.New("post: missing id")
	}
	if err := validReactions(p.Reactions); err != nil {
		return fmt.Errorf("post %s: %w", p.ID, err)
	}
	for i := range p.Comments {
		if err := p.Comments[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

type Comment struct {
	ID         string         `json:"id"`
	PostID     string         `json:"postId"`
	Author     Author         `json:"author"`
	Content    string         `json:"content"`
	Reactions  map[string]int `json:"reactions"`
	MyReaction string         `json:"myReaction,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func (c *Comment) Validate() error {
	if c.ID == "" {
		return errors.New("comment: missing id")
	}
	if err := validReactions(c.Reactions); err != nil {
		return fmt.Errorf("comment %s: %w", c.ID, err)
	}
	return nil
}

func validReactions(m map[string]int) error {
	for symbol, n := range m {
		if n < 0 {
			return fmt.Errorf("negative count %d for %q", n, symbol)
		}
	}
	return nil
}

// PostList is the reply of GET /api/lounge/posts
type PostList []Post

func (l *PostList) Validate() error {
	for i := range *l {
		if err := (*l)[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ReactionResult is the reply of the reaction toggle endpoints
type ReactionResult struct {
	Reactions  map[string]int `json:"reactions"`
	MyReaction string         `json:"myReaction"`
}

func (r *ReactionResult) Validate() error {
	return validReactions(r.Reactions)
}

// LikeResult is the reply of the like toggle endpoint
type LikeResult struct {
	Likes     int  `json:"likes"`
	LikedByMe bool `json:"likedByMe"`
}

func (r *LikeResult) Validate() error {
	if r.Likes < 0 {
		return errors.New("like: negative count")
	}
	return nil
}

// NotificationKind is the closed set of notification types
type NotificationKind string

const (
	NotifyFriendRequest  NotificationKind = "friend_request"
	NotifyFriendAccepted NotificationKind = "friend_accepted"
	NotifyRoomInvite     NotificationKind = "room_invite"
	NotifyMeeting        NotificationKind = "meeting"
	NotifyPostReaction   NotificationKind = "post_reaction"
	NotifyPostComment    NotificationKind = "post_comment"
	NotifyGoalAchieved   NotificationKind = "goal_achieved"
	NotifyLeaderboard    NotificationKind = "leaderboard"
	NotifySystem         NotificationKind = "system"
)

var notificationKinds = map[NotificationKind]bool{
	NotifyFriendRequest:  true,
	NotifyFriendAccepted: true,
	NotifyRoomInvite:     true,
	NotifyMeeting:        true,
	NotifyPostReaction:   true,
	NotifyPostComment:    true,
	NotifyGoalAchieved:   true,
	NotifyLeaderboard:    true,
	NotifySystem:         true,
}

type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"type"`
	Content   string           `json:"content"`
	Read      bool             `json:"read"`
	Dismissed bool             `json:"dismissed"`
	Link      string           `json:"link,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
}

func (n *Notification) Validate() error {
	if n.ID == "" {
		return errors.New("notification: missing id")
	}
	if !notificationKinds[n.Kind] {
		return fmt.Errorf("notification %s: unknown type %q", n.ID, n.Kind)
	}
	return nil
}

// NotificationList is the reply of GET /api/notifications
type NotificationList struct {
	Notifications []Notification `json:"notifications"`
	UnreadCount   int            `json:"unreadCount"`
}

func (l *NotificationList) Validate() error {
	for i := range l.Notifications {
		if err := l.Notifications[i].Validate(); err != nil {
			return err
		}
	}
	if l.UnreadCount < 0 {
		return errors.New("notifications: negative unread count")
	}
	return nil
}

type LeaderboardEntry struct {
	Rank          int     `json:"rank"`
	UserID        string  `json:"userId"`
	Username      string  `json:"username"`
	NetProfit     float64 `json:"netProfit"`
	WinRate       float64 `json:"winRate"`
	TotalTrades   int     `json:"totalTrades"`
	WinningTrades int     `json:"winningTrades"`
	LosingTrades  int     `json:"losingTrades"`
}

// LeaderboardFilter selects the ranking period and metric
type LeaderboardFilter struct {
	Period string `json:"period"` // week, month, year, all
	Metric string `json:"metric"` // profit, winRate, trades
}

// Key identifies the filter for shared polling
func (f LeaderboardFilter) Key() string {
	period, metric := f.Period, f.Metric
	if period == "" {
		period = "month"
	}
	if metric == "" {
		metric = "profit"
	}
	return period + ":" + metric
}

type Leaderboard []LeaderboardEntry

func (l *Leaderboard) Validate() error {
	for _, e := range *l {
		if e.Rank <= 0 {
			return fmt.Errorf("leaderboard: invalid rank %d for %s", e.Rank, e.Username)
		}
	}
	return nil
}

type Kline struct {
	OpenTime  int64   `json:"openTime"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	CloseTime int64   `json:"closeTime"`
}

type Klines []Kline

func (k *Klines) Validate() error {
	for _, c := range *k {
		if c.High < c.Low {
			return fmt.Errorf("kline %d: high below low", c.OpenTime)
		}
	}
	return nil
}

type Friend struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Avatar   string     `json:"avatar,omitempty"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type FriendList []Friend

func (l *FriendList) Validate() error {
	for _, f := range *l {
		if f.ID == "" {
			return errors.New("friend: missing id")
		}
	}
	return nil
}

// MeetingStatus is the lifecycle of a trader-room meeting
type MeetingStatus string

const (
	MeetingPending  MeetingStatus = "pending"
	MeetingAccepted MeetingStatus = "accepted"
	MeetingDeclined MeetingStatus = "declined"
	MeetingExpired  MeetingStatus = "expired"
)

// Terminal reports whether the status will not change anymore
func (s MeetingStatus) Terminal() bool {
	return s == MeetingAccepted || s == MeetingDeclined || s == MeetingExpired
}

type Meeting struct {
	ID        string        `json:"id"`
	HostID    string        `json:"hostId"`
	GuestID   string        `json:"guestId"`
	RoomID    string        `json:"roomId"`
	Status    MeetingStatus `json:"status"`
	JoinURL   string        `json:"joinUrl,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
}

func (m *Meeting) Validate() error {
	if m.ID == "" {
		return errors.New("meeting: missing id")
	}
	switch m.Status {
	case MeetingPending, MeetingAccepted, MeetingDeclined, MeetingExpired:
		return nil
	}
	return fmt.Errorf("meeting %s: unknown status %q", m.ID, m.Status)
}

type RoomInvite struct {
	FriendID string `json:"friendId"`
	RoomID   string `json:"roomId"`
}

type MeetingRequest struct {
	GuestID string `json:"guestId"`
	RoomID  string `json:"roomId"`
}

type CommunityStats struct {
	Members      int `json:"members"`
	OnlineNow    int `json:"onlineNow"`
	PostsToday   int `json:"postsToday"`
	TradesLogged int `json:"tradesLogged"`
}

func (s *CommunityStats) Validate() error {
	if s.Members < 0 || s.OnlineNow < 0 || s.PostsToday < 0 || s.TradesLogged < 0 {
		return errors.New("community stats: negative counter")
	}
	return nil
}

// AnalyticsBucket is one precomputed bucket (by symbol, weekday, hour...)
type AnalyticsBucket struct {
	Key       string  `json:"key"`
	Trades    int     `json:"trades"`
	NetProfit float64 `json:"netProfit"`
	WinRate   float64 `json:"winRate"`
}

type AnalyticsSummary struct {
	TotalTrades  int               `json:"totalTrades"`
	WinRate      float64           `json:"winRate"`
	NetProfit    float64           `json:"netProfit"`
	ProfitFactor float64           `json:"profitFactor"`
	AverageWin   float64           `json:"averageWin"`
	AverageLoss  float64           `json:"averageLoss"`
	Buckets      []AnalyticsBucket `json:"buckets,omitempty"`
}

func (a *AnalyticsSummary) Validate() error {
	if a.TotalTrades < 0 {
		return errors.New("analytics: negative trade count")
	}
	if a.WinRate < 0 || a.WinRate > 100 {
		return fmt.Errorf("analytics: win rate %.2f out of range", a.WinRate)
	}
	return nil
}

type Insight struct {
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Message  string `json:"message"`
	Severity string `json:"severity"` // info, warning, success
}

type InsightList []Insight

func (l *InsightList) Validate() error {
	for _, in := range *l {
		if in.Title == "" && in.Message == "" {
			return errors.New("insight: empty")
		}
	}
	return nil
}

type ReportPreview struct {
	From    time.Time        `json:"from"`
	To      time.Time        `json:"to"`
	Trades  []Trade          `json:"trades"`
	Summary AnalyticsSummary `json:"summary"`
	Goals   []Goal           `json:"goals,omitempty"`
}

func (p *ReportPreview) Validate() error {
	for i := range p.Trades {
		if err := p.Trades[i].Validate(); err != nil {
			return err
		}
	}
	return p.Summary.Validate()
}

type ReportRequest struct {
	Type string    `json:"type"` // weekly, monthly, custom
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r ReportRequest) Validate() error {
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return errors.New("report: end before start")
	}
	return nil
}

type ReportRecord struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r *ReportRecord) Validate() error {
	if r.ID == "" {
		return errors.New("report: missing id")
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

func (r *LoginResponse) Validate() error {
	if r.Token == "" {
		return errors.New("login: missing token")
	}
	return r.User.Validate()
}
