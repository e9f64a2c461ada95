package journal

import "context"

func (c *Client) ListGoals(ctx context.Context) ([]Goal, error) {
	var out GoalList
	if err := c.get(ctx, "/api/goals", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateGoal(ctx context.Context, in GoalInput) (*Goal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out Goal
	if err := c.post(ctx, "/api/goals", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateGoal(ctx context.Context, id string, in GoalInput) (*Goal, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out Goal
	if err := c.put(ctx, "/api/goals/"+escape(id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteGoal(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/goals/"+escape(id))
}
