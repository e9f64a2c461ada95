package lounge

import (
	"reflect"
	"testing"
)

func TestToggle(t *testing.T) {
	tests := []struct {
		name   string
		state  ReactionState
		symbol string
		want   ReactionState
	}{
		{
			name:   "add to empty",
			state:  ReactionState{},
			symbol: "😀",
			want:   ReactionState{Mine: "😀", Counts: map[string]int{"😀": 1}},
		},
		{
			name:   "add alongside others",
			state:  ReactionState{Counts: map[string]int{"🔥": 3}},
			symbol: "🔥",
			want:   ReactionState{Mine: "🔥", Counts: map[string]int{"🔥": 4}},
		},
		{
			name:   "remove same symbol deletes zero key",
			state:  ReactionState{Mine: "😀", Counts: map[string]int{"😀": 1}},
			symbol: "😀",
			want:   ReactionState{Counts: map[string]int{}},
		},
		{
			name:   "remove keeps other users' count",
			state:  ReactionState{Mine: "😀", Counts: map[string]int{"😀": 3}},
			symbol: "😀",
			want:   ReactionState{Counts: map[string]int{"😀": 2}},
		},
		{
			name:   "switch in one step",
			state:  ReactionState{Mine: "😀", Counts: map[string]int{"😀": 1}},
			symbol: "❤️",
			want:   ReactionState{Mine: "❤️", Counts: map[string]int{"❤️": 1}},
		},
		{
			name:   "switch with shared counts",
			state:  ReactionState{Mine: "😀", Counts: map[string]int{"😀": 2, "❤️": 5}},
			symbol: "❤️",
			want:   ReactionState{Mine: "❤️", Counts: map[string]int{"😀": 1, "❤️": 6}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Toggle(tt.state, tt.symbol)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestToggleTwiceRestoresState(t *testing.T) {
	start := ReactionState{Counts: map[string]int{"🚀": 2, "😀": 1}}

	got := Toggle(Toggle(start, "😀"), "😀")
	if !reflect.DeepEqual(got, start) {
		t.Errorf("Expected %+v, got %+v", start, got)
	}
}

func TestToggleDoesNotMutateInput(t *testing.T) {
	start := ReactionState{Mine: "😀", Counts: map[string]int{"😀": 1}}
	Toggle(start, "❤️")

	if start.Counts["😀"] != 1 || start.Mine != "😀" {
		t.Errorf("Expected input untouched, got %+v", start)
	}
}

func TestToggleLike(t *testing.T) {
	s := ToggleLike(LikeState{Likes: 4})
	if s.Likes != 5 || !s.LikedByMe {
		t.Errorf("Expected 5 liked, got %+v", s)
	}
	s = ToggleLike(s)
	if s.Likes != 4 || s.LikedByMe {
		t.Errorf("Expected 4 not liked, got %+v", s)
	}
	if s := ToggleLike(LikeState{Likes: 0, LikedByMe: true}); s.Likes != 0 {
		t.Errorf("Expected floor at 0, got %d", s.Likes)
	}
}
