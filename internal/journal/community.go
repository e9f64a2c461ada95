package journal

import (
	"context"
	"net/url"
)

// ListPosts returns the lounge feed
func (c *Client) ListPosts(ctx context.Context) ([]Post, error) {
	var out PostList
	if err := c.get(ctx, "/api/lounge/posts", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type reactionBody struct {
	Reaction string `json:"reaction"`
}

// ReactToPost toggles a reaction on a post. The same endpoint adds, changes
// and removes; the server infers which from its own state.
func (c *Client) ReactToPost(ctx context.Context, postID, symbol string) (*ReactionResult, error) {
	var out ReactionResult
	if err := c.post(ctx, "/api/lounge/posts/"+escape(postID)+"/react", reactionBody{symbol}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReactToComment toggles a reaction on a comment
func (c *Client) ReactToComment(ctx context.Context, commentID, symbol string) (*ReactionResult, error) {
	var out ReactionResult
	if err := c.post(ctx, "/api/lounge/comments/"+escape(commentID)+"/react", reactionBody{symbol}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LikePost toggles the current user's like on a post
func (c *Client) LikePost(ctx context.Context, postID string) (*LikeResult, error) {
	var out LikeResult
	if err := c.post(ctx, "/api/lounge/posts/"+escape(postID)+"/like", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CommunityStats returns the lounge counters
func (c *Client) CommunityStats(ctx context.Context) (*CommunityStats, error) {
	var out CommunityStats
	if err := c.get(ctx, "/api/lounge/stats", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Leaderboard returns the ranking for a filter
func (c *Client) Leaderboard(ctx context.Context, f LeaderboardFilter) ([]LeaderboardEntry, error) {
	q := url.Values{}
	if f.Period != "" {
		q.Set("period", f.Period)
	}
	if f.Metric != "" {
		q.Set("metric", f.Metric)
	}
	var out Leaderboard
	if err := c.get(ctx, "/api/leaderboard", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnlineFriends returns the friends currently online
func (c *Client) OnlineFriends(ctx context.Context) ([]Friend, error) {
	var out FriendList
	if err := c.get(ctx, "/api/friends/online", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) InviteToRoom(ctx context.Context, invite RoomInvite) error {
	return c.post(ctx, "/api/friends/invite-room", invite, nil)
}

func (c *Client) CreateMeeting(ctx context.Context, req MeetingRequest) (*Meeting, error) {
	var out Meeting
	if err := c.post(ctx, "/api/friends/meeting/create", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetMeeting(ctx context.Context, id string) (*Meeting, error) {
	var out Meeting
	if err := c.get(ctx, "/api/friends/meeting/"+escape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
