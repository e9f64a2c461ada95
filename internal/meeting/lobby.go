// Package meeting runs the trader-room invite flow: invite a friend, create
// a meeting and poll it until the guest answers or it expires.
package meeting

import (
	"context"
	"errors"
	"time"

	"trade-journal/internal/events"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
	"trade-journal/internal/poll"
)

// DefaultCheckInterval is how often a pending meeting is polled
const DefaultCheckInterval = 3 * time.Second

var ErrDeclined = errors.New("meeting: declined")

type API interface {
	InviteToRoom(ctx context.Context, invite journal.RoomInvite) error
	CreateMeeting(ctx context.Context, req journal.MeetingRequest) (*journal.Meeting, error)
	GetMeeting(ctx context.Context, id string) (*journal.Meeting, error)
}

type Lobby struct {
	api      API
	hub      *poll.Hub
	interval time.Duration
	now      func() time.Time
}

func NewLobby(api API, hub *poll.Hub, interval time.Duration) *Lobby {
	if interval <= 0 {
		interval = DefaultCheckInterval
	}
	return &Lobby{api: api, hub: hub, interval: interval, now: time.Now}
}

// Invite asks a friend to join a trader room
func (l *Lobby) Invite(ctx context.Context, friendID, roomID string) error {
	if friendID == "" || roomID == "" {
		return errors.New("meeting: friend and room are required")
	}
	return l.api.InviteToRoom(ctx, journal.RoomInvite{FriendID: friendID, RoomID: roomID})
}

// Create opens a pending meeting with a guest
func (l *Lobby) Create(ctx context.Context, guestID, roomID string) (*journal.Meeting, error) {
	if guestID == "" {
		return nil, errors.New("meeting: guest is required")
	}
	m, err := l.api.CreateMeeting(ctx, journal.MeetingRequest{GuestID: guestID, RoomID: roomID})
	if err != nil {
		return nil, err
	}
	logging.Default().WithComponent("meeting").Info("Meeting created", "meeting_id", m.ID, "guest_id", guestID)
	return m, nil
}

// Topic returns the shared poll topic of a meeting
func (l *Lobby) Topic(id string) poll.Topic {
	return poll.Topic{
		Name:     "meeting:" + id,
		Interval: l.interval,
		Event:    events.EventMeetingUpdated,
		Fetch: func(ctx context.Context) (interface{}, error) {
			return l.api.GetMeeting(ctx, id)
		},
	}
}

// WaitForAcceptance polls meeting id until it reaches a terminal status or
// ctx is done. A pending meeting past its expiry is reported as expired.
// Declined meetings return ErrDeclined alongside the meeting.
func (l *Lobby) WaitForAcceptance(ctx context.Context, id string) (*journal.Meeting, error) {
	updates := make(chan *journal.Meeting, 1)
	topic := l.Topic(id)

	subID, err := l.hub.Subscribe(topic, func(u poll.Update) {
		m, ok := u.Value.(*journal.Meeting)
		if !ok || m == nil {
			return
		}
		select {
		case updates <- m:
		default:
			// drop the older pending value in favour of the newer one
			select {
			case <-updates:
			default:
			}
			updates <- m
		}
	})
	if err != nil {
		return nil, err
	}
	defer l.hub.Unsubscribe(topic.Name, subID)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case m := <-updates:
			if m.Status == journal.MeetingPending && m.ExpiresAt != nil && !l.now().Before(*m.ExpiresAt) {
				expired := *m
				expired.Status = journal.MeetingExpired
				return &expired, nil
			}
			if !m.Status.Terminal() {
				continue
			}
			if m.Status == journal.MeetingDeclined {
				return m, ErrDeclined
			}
			return m, nil
		}
	}
}
