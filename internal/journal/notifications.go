package journal

import "context"

// ListNotifications returns the notification feed and unread count
func (c *Client) ListNotifications(ctx context.Context) (*NotificationList, error) {
	var out NotificationList
	if err := c.get(ctx, "/api/notifications", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) MarkNotificationRead(ctx context.Context, id string) error {
	return c.put(ctx, "/api/notifications/"+escape(id)+"/read", nil, nil)
}

func (c *Client) DismissNotification(ctx context.Context, id string) error {
	return c.put(ctx, "/api/notifications/"+escape(id)+"/dismiss", nil, nil)
}

func (c *Client) DismissAllNotifications(ctx context.Context) error {
	return c.put(ctx, "/api/notifications/dismiss-all", nil, nil)
}
