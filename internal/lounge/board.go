package lounge

import (
	"context"
	"errors"
	"sync"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/optimistic"
)

// ErrCooldown is returned while a target is locked against resubmission
var ErrCooldown = errors.New("lounge: reaction already in progress")

// DefaultCooldown is the lock kept after a successful round trip
const DefaultCooldown = 300 * time.Millisecond

// TargetKind distinguishes posts from comments
type TargetKind string

const (
	KindPost    TargetKind = "post"
	KindComment TargetKind = "comment"
	kindLike    TargetKind = "like"
)

// Target identifies a reactable item
type Target struct {
	Kind TargetKind `json:"kind"`
	ID   string     `json:"id"`
}

// API is the subset of the journal client the board calls
type API interface {
	ReactToPost(ctx context.Context, postID, symbol string) (*journal.ReactionResult, error)
	ReactToComment(ctx context.Context, commentID, symbol string) (*journal.ReactionResult, error)
	LikePost(ctx context.Context, postID string) (*journal.LikeResult, error)
}

// Board holds reaction state for every loaded post and comment
type Board struct {
	mu        sync.RWMutex
	reactions map[Target]ReactionState
	likes     map[string]LikeState
	inFlight  map[Target]bool
	coolUntil map[Target]time.Time

	api      API
	bus      *events.EventBus
	cooldown time.Duration
	now      func() time.Time
	logger   *logging.Logger
}

func NewBoard(api API, bus *events.EventBus, cooldown time.Duration) *Board {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Board{
		reactions: make(map[Target]ReactionState),
		likes:     make(map[string]LikeState),
		inFlight:  make(map[Target]bool),
		coolUntil: make(map[Target]time.Time),
		api:       api,
		bus:       bus,
		cooldown:  cooldown,
		now:       time.Now,
		logger:    logging.WithComponent("lounge"),
	}
}

// Load seeds the board from a fetched feed, replacing known state for the
// posts and comments it contains. Targets with a request in flight keep
// their speculative state.
func (b *Board) Load(posts []journal.Post) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range posts {
		t := Target{KindPost, p.ID}
		if !b.inFlight[t] {
			b.reactions[t] = ReactionState{Mine: p.MyReaction, Counts: p.Reactions}.Clone()
		}
		if !b.inFlight[Target{kindLike, p.ID}] {
			b.likes[p.ID] = LikeState{Likes: p.Likes, LikedByMe: p.LikedByMe}
		}
		for _, c := range p.Comments {
			ct := Target{KindComment, c.ID}
			if !b.inFlight[ct] {
				b.reactions[ct] = ReactionState{Mine: c.MyReaction, Counts: c.Reactions}.Clone()
			}
		}
	}
}

// Reset forgets every loaded reaction, like and cooldown. Requests still in
// flight keep their lock until they return.
func (b *Board) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reactions = make(map[Target]ReactionState)
	b.likes = make(map[string]LikeState)
	b.coolUntil = make(map[Target]time.Time)
}

// State returns a copy of the target's reaction state
func (b *Board) State(t Target) ReactionState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.reactions[t].Clone()
}

// Likes returns the like state of a post
func (b *Board) Likes(postID string) LikeState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.likes[postID]
}

// React toggles symbol on t for userID. The new state is visible before the
// server answers; on failure the exact previous state is restored and a
// toast is published.
func (b *Board) React(ctx context.Context, userID string, t Target, symbol string) (ReactionState, error) {
	if symbol == "" {
		return ReactionState{}, errors.New("lounge: empty reaction")
	}
	if t.Kind != KindPost && t.Kind != KindComment {
		return ReactionState{}, errors.New("lounge: unknown target kind")
	}
	if err := b.acquire(t); err != nil {
		return b.State(t), err
	}

	var result *journal.ReactionResult
	err := optimistic.Do(ctx, optimistic.Op[ReactionState]{
		Snapshot: func() ReactionState { return b.State(t) },
		Apply: func() {
			b.mu.Lock()
			b.reactions[t] = Toggle(b.reactions[t], symbol)
			b.mu.Unlock()
			b.publishReaction(userID, t)
		},
		Confirm: func(ctx context.Context) error {
			var err error
			if t.Kind == KindPost {
				result, err = b.api.ReactToPost(ctx, t.ID, symbol)
			} else {
				result, err = b.api.ReactToComment(ctx, t.ID, symbol)
			}
			return err
		},
		Revert: func(s ReactionState) {
			b.mu.Lock()
			b.reactions[t] = s
			b.mu.Unlock()
			b.publishReaction(userID, t)
		},
	})

	if err == nil && result != nil && result.Reactions != nil {
		b.mu.Lock()
		b.reactions[t] = ReactionState{Mine: result.MyReaction, Counts: result.Reactions}.Clone()
		b.mu.Unlock()
		b.publishReaction(userID, t)
	}
	b.release(t, err == nil)

	if err != nil {
		b.logger.Warn("Reaction failed, reverted", "kind", string(t.Kind), "target_id", t.ID, "error", err)
		b.bus.PublishToast(userID, "error", "Could not update reaction, please try again")
		return b.State(t), err
	}
	return b.State(t), nil
}

// Like toggles the user's like on a post with the same optimistic flow
func (b *Board) Like(ctx context.Context, userID, postID string) (LikeState, error) {
	t := Target{kindLike, postID}
	if err := b.acquire(t); err != nil {
		return b.Likes(postID), err
	}

	var result *journal.LikeResult
	err := optimistic.Do(ctx, optimistic.Op[LikeState]{
		Snapshot: func() LikeState { return b.Likes(postID) },
		Apply: func() {
			b.mu.Lock()
			b.likes[postID] = ToggleLike(b.likes[postID])
			b.mu.Unlock()
			b.publishLike(userID, postID)
		},
		Confirm: func(ctx context.Context) error {
			var err error
			result, err = b.api.LikePost(ctx, postID)
			return err
		},
		Revert: func(s LikeState) {
			b.mu.Lock()
			b.likes[postID] = s
			b.mu.Unlock()
			b.publishLike(userID, postID)
		},
	})

	if err == nil && result != nil {
		b.mu.Lock()
		b.likes[postID] = LikeState{Likes: result.Likes, LikedByMe: result.LikedByMe}
		b.mu.Unlock()
	}
	b.release(t, err == nil)

	if err != nil {
		b.logger.Warn("Like failed, reverted", "post_id", postID, "error", err)
		b.bus.PublishToast(userID, "error", "Could not update like, please try again")
	}
	return b.Likes(postID), err
}

func (b *Board) acquire(t Target) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inFlight[t] || b.now().Before(b.coolUntil[t]) {
		return ErrCooldown
	}
	b.inFlight[t] = true
	return nil
}

func (b *Board) release(t Target, succeeded bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inFlight, t)
	if succeeded {
		b.coolUntil[t] = b.now().Add(b.cooldown)
	} else {
		delete(b.coolUntil, t)
	}
}

func (b *Board) publishReaction(userID string, t Target) {
	s := b.State(t)
	b.bus.Publish(events.Event{
		Type:   events.EventReactionChanged,
		UserID: userID,
		Data: map[string]interface{}{
			"kind":       string(t.Kind),
			"id":         t.ID,
			"reactions":  s.Counts,
			"myReaction": s.Mine,
		},
	})
}

func (b *Board) publishLike(userID, postID string) {
	s := b.Likes(postID)
	b.bus.Publish(events.Event{
		Type:   events.EventReactionChanged,
		UserID: userID,
		Data: map[string]interface{}{
			"kind":      "like",
			"id":        postID,
			"likes":     s.Likes,
			"likedByMe": s.LikedByMe,
		},
	})
}
