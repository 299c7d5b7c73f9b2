package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"handsup/backend/internal/config"
	"handsup/backend/internal/models"
	"handsup/backend/internal/storage"

	"github.com/gorilla/websocket"
)

// subscription holds the newest undelivered frame of one key. Frames carry
// full snapshots, so only the newest one matters.
type subscription struct {
	key   string
	ready chan error

	mu      sync.Mutex
	first   bool
	latest  *models.SnapshotFrame
	notify  chan struct{}
	stopped chan struct{}
	// dropped is closed when the connection ends without Close.
	dropped chan struct{}
}

func (s *subscription) isStopped() bool {
	select {
	case <-s.stopped:
		return true
	default:
		return false
	}
}

func (s *subscription) offer(f models.SnapshotFrame) {
	s.mu.Lock()
	if f.Type == models.FrameError {
		first := !s.first
		s.first = true
		s.mu.Unlock()
		if first {
			s.ready <- errors.New(f.Error)
		} else {
			slog.Warn("live subscription error", "key", s.key, "err", f.Error)
		}
		return
	}
	first := !s.first
	s.first = true
	s.latest = &f
	s.mu.Unlock()

	if first {
		s.ready <- nil
		return
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *subscription) take() (models.SnapshotFrame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return models.SnapshotFrame{}, false
	}
	f := *s.latest
	s.latest = nil
	return f, true
}

func (c *Client) send(req models.SubscriptionRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
	return c.conn.WriteJSON(req)
}

// subscribe opens target/id under a fresh key. The first snapshot is
// delivered before it returns, later ones from one goroutine, in order.
// If the connection drops, lost (when set) is called once after the last
// pending snapshot.
func (c *Client) subscribe(ctx context.Context, target, id string, deliver func(models.SnapshotFrame), lost func()) (storage.Unsubscribe, error) {
	s := &subscription{
		key:     "s" + strconv.FormatUint(c.seq.Add(1), 10),
		ready:   make(chan error, 1),
		notify:  make(chan struct{}, 1),
		stopped: make(chan struct{}),
		dropped: make(chan struct{}),
	}

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, &storage.StorageError{Op: "subscribe", Err: c.err}
	}
	c.subs[s.key] = s
	c.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(s.stopped)
			c.mu.Lock()
			delete(c.subs, s.key)
			closed := c.err != nil
			c.mu.Unlock()
			if closed {
				return
			}
			if err := c.send(models.SubscriptionRequest{Type: models.FrameUnsubscribe, Key: s.key}); err != nil {
				slog.Debug("unsubscribe not sent", "key", s.key, "err", err)
			}
		})
	}

	if err := c.send(models.SubscriptionRequest{Type: models.FrameSubscribe, Key: s.key, Target: target, ID: id}); err != nil {
		unsubscribe()
		return nil, &storage.StorageError{Op: "subscribe", Err: err}
	}

	select {
	case err := <-s.ready:
		if err != nil {
			unsubscribe()
			return nil, &storage.StorageError{Op: "subscribe " + target, Err: err}
		}
	case <-ctx.Done():
		unsubscribe()
		return nil, &storage.StorageError{Op: "subscribe " + target, Err: ctx.Err()}
	case <-c.done:
		unsubscribe()
		return nil, &storage.StorageError{Op: "subscribe " + target, Err: ErrClosed}
	}

	if f, ok := s.take(); ok {
		deliver(f)
	}

	go func() {
		for {
			select {
			case <-s.stopped:
				return
			case <-s.dropped:
				if f, ok := s.take(); ok && !s.isStopped() {
					deliver(f)
				}
				if lost != nil && !s.isStopped() {
					lost()
				}
				return
			case <-s.notify:
			}
			f, ok := s.take()
			if !ok || s.isStopped() {
				continue
			}
			deliver(f)
		}
	}()

	return unsubscribe, nil
}

func (c *Client) readLoop() {
	var err error
	defer func() {
		dropped := !c.closing.Load()
		c.mu.Lock()
		if err == nil {
			err = ErrClosed
		}
		c.err = err
		pending := make([]*subscription, 0, len(c.subs))
		for _, s := range c.subs {
			pending = append(pending, s)
		}
		c.mu.Unlock()

		for _, s := range pending {
			s.mu.Lock()
			waiting := !s.first
			s.first = true
			s.mu.Unlock()
			if waiting {
				s.ready <- ErrClosed
			} else if dropped {
				close(s.dropped)
			}
		}
		close(c.done)
	}()

	for {
		var msg []byte
		_, msg, err = c.conn.ReadMessage()
		if err != nil {
			if c.closing.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				err = nil
			} else {
				slog.Warn("realtime connection lost", "err", err)
				err = fmt.Errorf("%w: %v", ErrClosed, err)
			}
			return
		}

		var f models.SnapshotFrame
		if jerr := json.Unmarshal(msg, &f); jerr != nil {
			slog.Debug("malformed frame from server", "err", jerr)
			continue
		}
		if f.Key == "" {
			slog.Warn("server rejected a frame", "err", f.Error)
			continue
		}

		c.mu.Lock()
		s := c.subs[f.Key]
		c.mu.Unlock()
		if s != nil {
			s.offer(f)
		}
	}
}

// SubscribeRoom follows the room document. A dropped connection is delivered
// as a nil room, the same as a deleted one, since the room can no longer be
// followed.
func (c *Client) SubscribeRoom(ctx context.Context, code string, onChange func(*models.Room)) (storage.Unsubscribe, error) {
	return c.subscribe(ctx, models.TargetRoom, code,
		func(f models.SnapshotFrame) { onChange(f.Room) },
		func() { onChange(nil) })
}

func (c *Client) SubscribeParticipant(ctx context.Context, id string, onChange func(*models.Participant)) (storage.Unsubscribe, error) {
	return c.subscribe(ctx, models.TargetParticipant, id, func(f models.SnapshotFrame) { onChange(f.Participant) }, nil)
}

func (c *Client) SubscribeParticipantsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error) {
	return c.subscribe(ctx, models.TargetParticipants, roomCode, func(f models.SnapshotFrame) { onChange(f.Participants) }, nil)
}

func (c *Client) SubscribeRaisedHandsInRoom(ctx context.Context, roomCode string, onChange func([]models.Participant)) (storage.Unsubscribe, error) {
	return c.subscribe(ctx, models.TargetRaisedHands, roomCode, func(f models.SnapshotFrame) { onChange(f.Participants) }, nil)
}
