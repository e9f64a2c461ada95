package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// jsonDuration reads "30s" style strings from JSON config files. Plain
// numbers are still accepted as nanoseconds, which is what older files
// written by GenerateSampleConfig contain.
type jsonDuration time.Duration

func (d *jsonDuration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = jsonDuration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid duration %s", data)
	}
	*d = jsonDuration(n)
	return nil
}

func (d jsonDuration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (c *APIConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		BaseURL string       `json:"base_url"`
		Timeout jsonDuration `json:"timeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = APIConfig{BaseURL: raw.BaseURL, Timeout: time.Duration(raw.Timeout)}
	return nil
}

func (c APIConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		BaseURL string       `json:"base_url"`
		Timeout jsonDuration `json:"timeout"`
	}{c.BaseURL, jsonDuration(c.Timeout)})
}

type pollingJSON struct {
	Notifications  jsonDuration `json:"notifications"`
	Leaderboard    jsonDuration `json:"leaderboard"`
	OnlineFriends  jsonDuration `json:"online_friends"`
	CommunityStats jsonDuration `json:"community_stats"`
	MeetingCheck   jsonDuration `json:"meeting_check"`
}

func (c *PollingConfig) UnmarshalJSON(data []byte) error {
	var raw pollingJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = PollingConfig{
		Notifications:  time.Duration(raw.Notifications),
		Leaderboard:    time.Duration(raw.Leaderboard),
		OnlineFriends:  time.Duration(raw.OnlineFriends),
		CommunityStats: time.Duration(raw.CommunityStats),
		MeetingCheck:   time.Duration(raw.MeetingCheck),
	}
	return nil
}

func (c PollingConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(pollingJSON{
		Notifications:  jsonDuration(c.Notifications),
		Leaderboard:    jsonDuration(c.Leaderboard),
		OnlineFriends:  jsonDuration(c.OnlineFriends),
		CommunityStats: jsonDuration(c.CommunityStats),
		MeetingCheck:   jsonDuration(c.MeetingCheck),
	})
}

func (c *LoungeConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		ReactionCooldown jsonDuration `json:"reaction_cooldown"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	c.ReactionCooldown = time.Duration(raw.ReactionCooldown)
	return nil
}

func (c LoungeConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ReactionCooldown jsonDuration `json:"reaction_cooldown"`
	}{jsonDuration(c.ReactionCooldown)})
}
