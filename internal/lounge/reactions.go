// Package lounge keeps the reaction and like state of community posts and
// comments and applies toggles optimistically.
package lounge

// ReactionState is the current user's reaction plus the per-symbol counts
type ReactionState struct {
	Mine   string         `json:"myReaction,omitempty"`
	Counts map[string]int `json:"reactions"`
}

// Clone returns a deep copy
func (s ReactionState) Clone() ReactionState {
	out := ReactionState{Mine: s.Mine, Counts: make(map[string]int, len(s.Counts))}
	for k, v := range s.Counts {
		out.Counts[k] = v
	}
	return out
}

// Toggle returns the state after the user selects symbol. Selecting the
// current symbol removes it; any other symbol replaces the current one in a
// single step. Counts that reach zero are deleted.
func Toggle(s ReactionState, symbol string) ReactionState {
	next := s.Clone()

	if next.Mine != "" {
		next.Counts[next.Mine]--
		if next.Counts[next.Mine] <= 0 {
			delete(next.Counts, next.Mine)
		}
	}

	if symbol == s.Mine {
		next.Mine = ""
		return next
	}

	next.Counts[symbol]++
	next.Mine = symbol
	return next
}

// LikeState is the like counter of a post
type LikeState struct {
	Likes     int  `json:"likes"`
	LikedByMe bool `json:"likedByMe"`
}

// ToggleLike flips the user's like, never going below zero
func ToggleLike(s LikeState) LikeState {
	if s.LikedByMe {
		if s.Likes > 0 {
			s.Likes--
		}
		s.LikedByMe = false
		return s
	}
	s.Likes++
	s.LikedByMe = true
	return s
}
