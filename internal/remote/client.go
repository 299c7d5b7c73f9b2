// Package remote implements the session gateway against a handsup server:
// document operations go over the HTTP API, live subscriptions are
// multiplexed on one websocket connection.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"handsup/backend/internal/config"
	"handsup/backend/internal/models"
	"handsup/backend/internal/session"
	"handsup/backend/internal/storage"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned once the realtime connection is gone.
var ErrClosed = errors.New("remote: connection closed")

var _ session.Gateway = (*Client)(nil)

// Client talks to one handsup server. It is safe for concurrent use.
type Client struct {
	base  string
	http  *http.Client
	token string
	ID    string

	conn    *websocket.Conn
	writeMu sync.Mutex

	mu   sync.Mutex
	subs map[string]*subscription
	seq  atomic.Uint64

	closing atomic.Bool
	done    chan struct{}
	err     error
}

// Dial obtains a session token from the server at serverURL and opens the
// realtime connection.
func Dial(ctx context.Context, serverURL string) (*Client, error) {
	c := &Client{
		base: strings.TrimRight(serverURL, "/"),
		http: &http.Client{Timeout: 15 * time.Second},
		subs: make(map[string]*subscription),
		done: make(chan struct{}),
	}

	var sess struct {
		Token    string `json:"token"`
		ClientID string `json:"client_id"`
	}
	if err := c.do(ctx, "create session", http.MethodPost, "/session", nil, &sess, nil); err != nil {
		return nil, err
	}
	c.token, c.ID = sess.Token, sess.ClientID

	wsURL, err := c.websocketURL()
	if err != nil {
		return nil, &storage.StorageError{Op: "dial", Err: err}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, &storage.StorageError{Op: "dial", Err: err}
	}
	conn.SetReadLimit(config.MaxMessageSize * 64)
	c.conn = conn

	go c.readLoop()
	return c, nil
}

func (c *Client) websocketURL() (string, error) {
	u, err := url.Parse(c.base + "/ws")
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = url.Values{"token": {c.token}}.Encode()
	return u.String(), nil
}

// Done is closed when the realtime connection is lost or closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close ends the realtime connection. Live subscriptions stop delivering.
func (c *Client) Close() error {
	c.closing.Store(true)
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(config.WriteWait))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// apiError is the body of a failed API call.
type apiError struct {
	Error string `json:"error"`
}

// do performs one API call. A 404 is reported as notFound, when given.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any, notFound error) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return &storage.StorageError{Op: op, Err: err}
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return &storage.StorageError{Op: op, Err: err}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &storage.StorageError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e apiError
		_ = json.NewDecoder(resp.Body).Decode(&e)
		switch {
		case resp.StatusCode == http.StatusNotFound && notFound != nil:
			err = notFound
		case resp.StatusCode == http.StatusConflict:
			err = storage.ErrCodeTaken
		default:
			err = fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, e.Error)
		}
		return &storage.StorageError{Op: op, Err: err}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &storage.StorageError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func roomPath(code string) string { return "/rooms/" + url.PathEscape(code) }

func participantPath(id string) string { return "/participants/" + url.PathEscape(id) }

func (c *Client) CreateRoom(ctx context.Context, teacherName string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	err := c.do(ctx, "create room", http.MethodPost, "/rooms", map[string]string{"teacher_name": teacherName}, &out, nil)
	return out.Code, err
}

// GetRoom returns nil when the room does not exist.
func (c *Client) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	var room models.Room
	err := c.do(ctx, "get room", http.MethodGet, roomPath(code), nil, &room, storage.ErrRoomNotFound)
	if errors.Is(err, storage.ErrRoomNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (c *Client) UpdateRoom(ctx context.Context, code string, upd models.RoomUpdate) error {
	return c.do(ctx, "update room", http.MethodPatch, roomPath(code), upd, nil, storage.ErrRoomNotFound)
}

func (c *Client) DeleteRoom(ctx context.Context, code string) error {
	return c.do(ctx, "delete room", http.MethodDelete, roomPath(code), nil, nil, storage.ErrRoomNotFound)
}

func (c *Client) ListActiveRooms(ctx context.Context) ([]models.Room, error) {
	var rooms []models.Room
	err := c.do(ctx, "list rooms", http.MethodGet, "/rooms", nil, &rooms, nil)
	return rooms, err
}

func (c *Client) CreateParticipant(ctx context.Context, roomCode, name string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, "create participant", http.MethodPost, roomPath(roomCode)+"/participants",
		map[string]string{"name": name}, &out, storage.ErrRoomNotFound)
	return out.ID, err
}

// GetParticipant returns nil when the participant does not exist.
func (c *Client) GetParticipant(ctx context.Context, id string) (*models.Participant, error) {
	var p models.Participant
	err := c.do(ctx, "get participant", http.MethodGet, participantPath(id), nil, &p, storage.ErrParticipantNotFound)
	if errors.Is(err, storage.ErrParticipantNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) UpdateParticipant(ctx context.Context, id string, upd models.ParticipantUpdate) error {
	return c.do(ctx, "update participant", http.MethodPatch, participantPath(id), upd, nil, storage.ErrParticipantNotFound)
}

func (c *Client) SetHandRaised(ctx context.Context, id string, raised bool) error {
	return c.do(ctx, "set hand", http.MethodPut, participantPath(id)+"/hand",
		map[string]bool{"raised": raised}, nil, storage.ErrParticipantNotFound)
}

func (c *Client) DeleteParticipant(ctx context.Context, id string) error {
	return c.do(ctx, "delete participant", http.MethodDelete, participantPath(id), nil, nil, storage.ErrParticipantNotFound)
}

func (c *Client) DetachParticipant(ctx context.Context, roomCode, id string) error {
	return c.do(ctx, "detach participant", http.MethodDelete,
		roomPath(roomCode)+"/participants/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) ListParticipants(ctx context.Context, roomCode string) ([]models.Participant, error) {
	var ps []models.Participant
	err := c.do(ctx, "list participants", http.MethodGet, roomPath(roomCode)+"/participants", nil, &ps, nil)
	return ps, err
}
