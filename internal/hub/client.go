package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"handsup/backend/internal/config"
	"handsup/backend/internal/listeners"
	"handsup/backend/internal/models"

	"github.com/gorilla/websocket"
)

var errUnknownTarget = errors.New("unknown subscription target")

// Client is one websocket connection and the subscriptions it opened.
type Client struct {
	ID   string
	Conn *websocket.Conn
	Hub  *Manager
	Send chan models.SnapshotFrame

	subs *listeners.Registry

	mu     sync.RWMutex
	closed bool
}

func NewClient(id string, conn *websocket.Conn, hub *Manager) *Client {
	return &Client{
		ID:   id,
		Conn: conn,
		Hub:  hub,
		Send: make(chan models.SnapshotFrame, config.SendBufferSize),
		subs: listeners.NewRegistry(),
	}
}

// Run starts the read and write pumps.
func (c *Client) Run() {
	go c.writePump()
	go c.readPump()
}

// Close disposes every subscription and closes Send, which makes the write
// pump close the connection. It is idempotent.
func (c *Client) Close() {
	c.subs.DisposeAll()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

// Subscriptions returns the number of live subscriptions.
func (c *Client) Subscriptions() int { return c.subs.Len() }

// deliver queues a frame without blocking. A client that cannot keep up is
// dropped.
func (c *Client) deliver(f models.SnapshotFrame) {
	c.mu.RLock()
	if c.closed {
		c.mu.RUnlock()
		return
	}
	select {
	case c.Send <- f:
		c.mu.RUnlock()
	default:
		c.mu.RUnlock()
		slog.Warn("client too slow, dropping", "client", c.ID)
		go c.Hub.Unregister(c)
	}
}

func (c *Client) handle(req models.SubscriptionRequest) {
	if req.Key == "" {
		c.deliver(models.SnapshotFrame{Type: models.FrameError, Error: "missing subscription key"})
		return
	}

	switch req.Type {
	case models.FrameSubscribe:
		if err := c.subscribe(req); err != nil {
			slog.Warn("subscription rejected", "client", c.ID, "key", req.Key, "target", req.Target, "err", err)
			c.deliver(models.SnapshotFrame{Type: models.FrameError, Key: req.Key, Target: req.Target, Error: err.Error()})
		}
	case models.FrameUnsubscribe:
		c.subs.Dispose(req.Key)
	default:
		c.deliver(models.SnapshotFrame{Type: models.FrameError, Key: req.Key, Error: fmt.Sprintf("unknown frame type %q", req.Type)})
	}
}

// subscribe arms the subscription described by req under req.Key,
// replacing whatever the client had under that key.
func (c *Client) subscribe(req models.SubscriptionRequest) error {
	if req.ID == "" {
		return errors.New("missing subscription id")
	}
	gw := c.Hub.Gateway
	ctx := context.Background()
	frame := func() models.SnapshotFrame {
		return models.SnapshotFrame{Type: models.FrameSnapshot, Key: req.Key, Target: req.Target}
	}

	var open listeners.Factory
	switch req.Target {
	case models.TargetRoom:
		open = func() (func(), error) {
			return gw.SubscribeRoom(ctx, req.ID, func(r *models.Room) {
				f := frame()
				f.Room = r
				c.deliver(f)
			})
		}
	case models.TargetParticipant:
		open = func() (func(), error) {
			return gw.SubscribeParticipant(ctx, req.ID, func(p *models.Participant) {
				f := frame()
				f.Participant = p
				c.deliver(f)
			})
		}
	case models.TargetParticipants:
		open = func() (func(), error) {
			return gw.SubscribeParticipantsInRoom(ctx, req.ID, func(ps []models.Participant) {
				f := frame()
				f.Participants = ps
				c.deliver(f)
			})
		}
	case models.TargetRaisedHands:
		open = func() (func(), error) {
			return gw.SubscribeRaisedHandsInRoom(ctx, req.ID, func(ps []models.Participant) {
				f := frame()
				f.Participants = ps
				c.deliver(f)
			})
		}
	default:
		return fmt.Errorf("%w %q", errUnknownTarget, req.Target)
	}
	return c.subs.Arm(req.Key, open)
}

func (c *Client) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "client", c.ID, "err", err)
			}
			break
		}

		var req models.SubscriptionRequest
		if err := json.Unmarshal(message, &req); err != nil {
			slog.Debug("malformed frame", "client", c.ID, "err", err)
			c.deliver(models.SnapshotFrame{Type: models.FrameError, Error: "malformed frame"})
			continue
		}
		c.handle(req)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(frame); err != nil {
				slog.Debug("websocket write failed", "client", c.ID, "err", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
