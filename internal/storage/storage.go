// Package storage is the persistence gateway: document reads and writes
// against a Repository plus live subscriptions driven by a Feed.
package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"handsup/backend/internal/models"
)

// MaxCodeAttempts bounds how many random codes CreateRoom tries before giving up.
const MaxCodeAttempts = 5

// Unsubscribe stops a live subscription. It is safe to call more than once
// and from inside the subscription's own callback.
type Unsubscribe func()

// Gateway implements every persistence operation the session model needs.
type Gateway struct {
	Repo Repository
	Feed Feed

	newCode func() (string, error)
	now     func() time.Time
}

// NewGateway creates a gateway over repo, publishing changes through feed.
func NewGateway(repo Repository, feed Feed) *Gateway {
	return &Gateway{
		Repo:    repo,
		Feed:    feed,
		newCode: GenerateRoomCode,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (g *Gateway) publish(ctx context.Context, topics ...string) {
	for _, t := range topics {
		if err := g.Feed.Publish(ctx, t); err != nil {
			slog.Warn("change notification not published", "topic", t, "err", err)
		}
	}
}

// CreateRoom creates an active room with a fresh random code.
func (g *Gateway) CreateRoom(ctx context.Context, teacherName string) (string, error) {
	for attempt := 1; attempt <= MaxCodeAttempts; attempt++ {
		code, err := g.newCode()
		if err != nil {
			return "", wrap("create room", err)
		}

		room := &models.Room{
			Code:                  code,
			TeacherName:           teacherName,
			ConnectedParticipants: []models.ConnectedParticipant{},
			CreatedAt:             g.now(),
			Active:                true,
		}
		err = g.Repo.InsertRoom(ctx, room)
		if errors.Is(err, ErrCodeTaken) {
			slog.Debug("room code collision", "code", code, "attempt", attempt)
			continue
		}
		if err != nil {
			return "", wrap("create room", err)
		}

		g.publish(ctx, RoomTopic(code))
		return code, nil
	}
	return "", wrap("create room", ErrCodeTaken)
}

// GetRoom returns the room or nil when it does not exist.
func (g *Gateway) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	room, err := g.Repo.FindRoom(ctx, code)
	if errors.Is(err, ErrRoomNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get room", err)
	}
	return room, nil
}

// UpdateRoom applies a partial update to the room.
func (g *Gateway) UpdateRoom(ctx context.Context, code string, upd models.RoomUpdate) error {
	if err := g.Repo.UpdateRoom(ctx, code, upd); err != nil {
		return wrap("update room", err)
	}
	g.publish(ctx, RoomTopic(code))
	return nil
}

// DeleteRoom deletes the room document. Participants are not touched.
func (g *Gateway) DeleteRoom(ctx context.Context, code string) error {
	if err := g.Repo.DeleteRoom(ctx, code); err != nil {
		return wrap("delete room", err)
	}
	g.publish(ctx, RoomTopic(code))
	return nil
}

// ListActiveRooms returns every room that was not terminated.
func (g *Gateway) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := g.Repo.ListActiveRooms(ctx)
	if err != nil {
		return nil, wrap("list rooms", err)
	}
	return rooms, nil
}

// CreateParticipant adds a participant to the room and appends it to the
// room's connected participants cache. A room that vanished in between only
// skips the cache update.
func (g *Gateway) CreateParticipant(ctx context.Context, roomCode, name string) (string, error) {
	p := &models.Participant{RoomCode: roomCode, Name: name, CreatedAt: g.now()}
	if err := g.Repo.InsertParticipant(ctx, p); err != nil {
		return "", wrap("create participant", err)
	}

	entry := models.ConnectedParticipant{ID: p.ID, Name: p.Name, ConnectedAt: p.CreatedAt}
	switch err := g.Repo.AppendConnected(ctx, roomCode, entry); {
	case errors.Is(err, ErrRoomNotFound):
		slog.Info("room gone before participant was cached", "room", roomCode, "participant", p.ID)
	case err != nil:
		slog.Warn("connected participants cache not updated", "room", roomCode, "participant", p.ID, "err", err)
	default:
		g.publish(ctx, RoomTopic(roomCode))
	}

	g.publish(ctx, ParticipantsTopic(roomCode), ParticipantTopic(p.ID))
	return p.ID, nil
}

// GetParticipant returns the participant or nil when it does not exist.
func (g *Gateway) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	p, err := g.Repo.FindParticipant(ctx, id)
	if errors.Is(err, ErrParticipantNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap("get participant", err)
	}
	return p, nil
}

// UpdateParticipant applies a partial update. Setting HandRaised keeps
// HandRaisedAt consistent.
func (g *Gateway) UpdateParticipant(ctx context.Context, id string, upd models.ParticipantUpdate) error {
	p, err := g.Repo.UpdateParticipant(ctx, id, upd)
	if err != nil {
		return wrap("update participant", err)
	}
	g.publish(ctx, ParticipantTopic(id), ParticipantsTopic(p.RoomCode))
	return nil
}

// SetHandRaised sets the hand state. Raising an already raised hand keeps its
// original timestamp, so retries do not move the participant in the queue.
func (g *Gateway) SetHandRaised(ctx context.Context, id string, raised bool) error {
	return g.UpdateParticipant(ctx, id, models.ParticipantUpdate{HandRaised: models.Bool(raised)})
}

// DeleteParticipant hard-deletes the participant.
func (g *Gateway) DeleteParticipant(ctx context.Context, id string) error {
	p, err := g.Repo.DeleteParticipant(ctx, id)
	if err != nil {
		return wrap("delete participant", err)
	}
	g.publish(ctx, ParticipantTopic(id), ParticipantsTopic(p.RoomCode))
	return nil
}

// DetachParticipant removes the participant from the room's connected
// participants cache. Missing rooms and entries are ignored.
func (g *Gateway) DetachParticipant(ctx context.Context, roomCode, id string) error {
	err := g.Repo.RemoveConnected(ctx, roomCode, id)
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return wrap("detach participant", err)
	}
	g.publish(ctx, RoomTopic(roomCode))
	return nil
}

// ListParticipants returns the participants of a room in join order.
func (g *Gateway) ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error) {
	ps, err := g.Repo.ListParticipants(ctx, roomCode)
	if err != nil {
		return nil, wrap("list participants", err)
	}
	return ps, nil
}

// SubscribeRoom delivers the room on every change, and nil once it is deleted.
func (g *Gateway) SubscribeRoom(ctx context.Context, code string, onChange func(*models.Room)) (Unsubscribe, error) {
	return watch(ctx, g.Feed, []string{RoomTopic(code)}, func(ctx context.Context) (*models.Room, error) {
		return g.GetRoom(ctx, code)
	}, onChange)
}

// SubscribeParticipant delivers the participant on every change, and nil once
// it is deleted.
func (g *Gateway) SubscribeParticipant(ctx context.Context, id string, onChange func(*models.Participant)) (Unsubscribe, error) {
	return watch(ctx, g.Feed, []string{ParticipantTopic(id)}, func(ctx context.Context) (*models.Participant, error) {
		return g.GetParticipant(ctx, id)
	}, onChange)
}

// SubscribeParticipantsInRoom delivers the full participant list of a room on every change.
func (g *Gateway) SubscribeParticipantsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (Unsubscribe, error) {
	return watch(ctx, g.Feed, []string{ParticipantsTopic(roomCode)}, func(ctx context.Context) ([]models.Participant, error) {
		return g.ListParticipants(ctx, roomCode)
	}, onChange)
}

// SubscribeRaisedHandsInRoom delivers the participants of a room whose hand is
// raised, on every change of the room's participant set.
func (g *Gateway) SubscribeRaisedHandsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (Unsubscribe, error) {
	return watch(ctx, g.Feed, []string{ParticipantsTopic(roomCode)}, func(ctx context.Context) ([]models.Participant, error) {
		ps, err := g.Repo.ListRaisedHands(ctx, roomCode)
		if err != nil {
			return nil, wrap("list raised hands", err)
		}
		return ps, nil
	}, onChange)
}
