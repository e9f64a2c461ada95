package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/poll"
)

const (
	TopicNotifications  = "notifications"
	TopicOnlineFriends  = "online-friends"
	TopicCommunityStats = "community-stats"
	topicLeaderboard    = "leaderboard"
	topicMeeting        = "meeting"
)

// resolveTopic maps a topic name onto a pollable resource. Leaderboards are
// keyed by filter ("leaderboard:week:winRate") and meetings by id
// ("meeting:42"), so equal filters share one timer.
func (s *Server) resolveTopic(name string) (poll.Topic, error) {
	kind, rest, _ := strings.Cut(name, ":")

	switch kind {
	case TopicNotifications:
		return poll.Topic{
			Name:     TopicNotifications,
			Interval: interval(s.svc.Polling.Notifications, 30*time.Second),
			Fetch:    s.svc.Notifications.Fetch,
			Event:    events.EventNotificationsUpdated,
		}, nil

	case TopicOnlineFriends:
		return poll.Topic{
			Name:     TopicOnlineFriends,
			Interval: interval(s.svc.Polling.OnlineFriends, 15*time.Second),
			Fetch: func(ctx context.Context) (interface{}, error) {
				return s.svc.Client.OnlineFriends(ctx)
			},
			Event: events.EventOnlineFriendsUpdated,
		}, nil

	case TopicCommunityStats:
		return poll.Topic{
			Name:     TopicCommunityStats,
			Interval: interval(s.svc.Polling.CommunityStats, 5*time.Minute),
			Fetch: func(ctx context.Context) (interface{}, error) {
				return s.svc.Client.CommunityStats(ctx)
			},
			Event: events.EventCommunityStatsUpdated,
		}, nil

	case topicLeaderboard:
		var f journal.LeaderboardFilter
		if rest != "" {
			f.Period, f.Metric, _ = strings.Cut(rest, ":")
		}
		return s.leaderboardTopic(f), nil

	case topicMeeting:
		if rest == "" {
			return poll.Topic{}, fmt.Errorf("%w: meeting topic needs an id", poll.ErrUnknownTopic)
		}
		return s.svc.Lobby.Topic(rest), nil
	}

	return poll.Topic{}, fmt.Errorf("%w: %s", poll.ErrUnknownTopic, name)
}

func (s *Server) leaderboardTopic(f journal.LeaderboardFilter) poll.Topic {
	return poll.Topic{
		Name:     topicLeaderboard + ":" + f.Key(),
		Interval: interval(s.svc.Polling.Leaderboard, 30*time.Second),
		Fetch: func(ctx context.Context) (interface{}, error) {
			return s.svc.Client.Leaderboard(ctx, f)
		},
		Event: events.EventLeaderboardUpdated,
	}
}

func interval(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}
