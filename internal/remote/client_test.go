package remote_test

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"handsup/backend/internal/api/handler"
	"handsup/backend/internal/hub"
	"handsup/backend/internal/models"
	"handsup/backend/internal/remote"
	"handsup/backend/internal/session"
	"handsup/backend/internal/storage"
	"handsup/backend/internal/storage/memstore"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) string {
	t.Helper()
	url, _ := startServer(t)
	return url
}

// startServer runs the API on a test server. stop shuts the hub down, which
// closes every realtime connection while HTTP keeps serving.
func startServer(t *testing.T) (url string, stop func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gw := storage.NewGateway(memstore.New(), storage.NewLocalFeed())
	m := hub.NewManager(gw)
	ctx, cancel := context.WithCancel(context.Background())
	go m.Run(ctx)

	h := handler.NewHandler(gw, m, handler.NewAuth("test-secret", time.Hour), "http://app.test/")
	srv := httptest.NewServer(h.Router())
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-m.Done()
	})
	return srv.URL, func() {
		cancel()
		<-m.Done()
	}
}

func dial(t *testing.T, url string) *remote.Client {
	t.Helper()
	c, err := remote.Dial(context.Background(), url)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestClient_Documents(t *testing.T) {
	c := dial(t, newServer(t))
	ctx := context.Background()

	code, err := c.CreateRoom(ctx, "Ms. Lee")
	require.NoError(t, err)
	assert.True(t, models.ValidRoomCode(code))

	room, err := c.GetRoom(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, "Ms. Lee", room.TeacherName)

	missing, err := c.GetRoom(ctx, "ZZZZZZ")
	require.NoError(t, err)
	assert.Nil(t, missing)

	id, err := c.CreateParticipant(ctx, code, "Ana")
	require.NoError(t, err)
	require.NoError(t, c.SetHandRaised(ctx, id, true))

	p, err := c.GetParticipant(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.HandRaised)

	ps, err := c.ListParticipants(ctx, code)
	require.NoError(t, err)
	assert.Len(t, ps, 1)

	require.NoError(t, c.DeleteParticipant(ctx, id))
	err = c.DeleteParticipant(ctx, id)
	assert.True(t, storage.IsNotFound(err))
	var se *storage.StorageError
	assert.ErrorAs(t, err, &se)

	err = c.DeleteRoom(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, storage.ErrRoomNotFound)
}

func TestClient_SubscribeDeliversInitialSnapshotBeforeReturning(t *testing.T) {
	c := dial(t, newServer(t))
	ctx := context.Background()
	code, err := c.CreateRoom(ctx, "Ms. Lee")
	require.NoError(t, err)

	var mu sync.Mutex
	var counts []int
	unsubscribe, err := c.SubscribeParticipantsInRoom(ctx, code, func(ps []models.Participant) {
		mu.Lock()
		defer mu.Unlock()
		counts = append(counts, len(ps))
	})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []int{0}, counts)
	mu.Unlock()

	_, err = c.CreateParticipant(ctx, code, "Ana")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts[len(counts)-1] == 1
	}, 2*time.Second, 10*time.Millisecond)

	unsubscribe()
	unsubscribe()
	mu.Lock()
	seen := len(counts)
	mu.Unlock()

	_, err = c.CreateParticipant(ctx, code, "Ben")
	require.NoError(t, err)
	assert.Never(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(counts) != seen
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func TestClient_SubscribeMissingRoomDeliversNil(t *testing.T) {
	c := dial(t, newServer(t))

	got := make(chan *models.Room, 1)
	unsubscribe, err := c.SubscribeRoom(context.Background(), "ZZZZZZ", func(r *models.Room) { got <- r })
	require.NoError(t, err)
	defer unsubscribe()
	assert.Nil(t, <-got)
}

func TestClient_SubscribeAfterClose(t *testing.T) {
	c := dial(t, newServer(t))
	require.NoError(t, c.Close())
	<-c.Done()

	_, err := c.SubscribeRoom(context.Background(), "ABC123", func(*models.Room) {})
	assert.ErrorIs(t, err, remote.ErrClosed)
}

// The session model runs unchanged on top of the remote gateway.
func TestClient_SessionOverNetwork(t *testing.T) {
	url := newServer(t)
	ctx := context.Background()

	var exits sync.Map
	teacher := session.New(dial(t, url), session.Options{TeacherName: "Ms. Lee", ForceLeaveDelay: 20 * time.Millisecond})
	student := session.New(dial(t, url), session.Options{
		ForceLeaveDelay: 20 * time.Millisecond,
		Hooks:           session.Hooks{OnExit: func(r session.ExitReason) { exits.Store(r, true) }},
	})
	t.Cleanup(teacher.Close)
	t.Cleanup(student.Close)

	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	res, err := student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	require.True(t, res.NeedsName)
	id, err := student.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)

	raised, err := student.Hands.RaiseHand(ctx)
	require.NoError(t, err)
	require.True(t, raised)
	require.Eventually(t, func() bool {
		q := teacher.Hands.Queue()
		return len(q) == 1 && q[0].ID == id
	}, 2*time.Second, 10*time.Millisecond)

	_, err = teacher.Rooms.EndRoom(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, ok := exits.Load(session.ExitRoomClosed)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
	assert.IsType(t, session.NoSession{}, student.Role())
}

func TestClient_DroppedConnectionEndsRoomSubscription(t *testing.T) {
	url, stop := startServer(t)
	c := dial(t, url)
	ctx := context.Background()

	code, err := c.CreateRoom(ctx, "Ms. Lee")
	require.NoError(t, err)

	rooms := make(chan *models.Room, 4)
	unsub, err := c.SubscribeRoom(ctx, code, func(r *models.Room) { rooms <- r })
	require.NoError(t, err)
	defer unsub()
	require.NotNil(t, <-rooms)

	stop()

	select {
	case r := <-rooms:
		assert.Nil(t, r)
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery after the connection dropped")
	}
	<-c.Done()
}

func TestClient_CloseDoesNotEndRoomSubscription(t *testing.T) {
	c := dial(t, newServer(t))
	ctx := context.Background()

	code, err := c.CreateRoom(ctx, "Ms. Lee")
	require.NoError(t, err)

	rooms := make(chan *models.Room, 4)
	_, err = c.SubscribeRoom(ctx, code, func(r *models.Room) { rooms <- r })
	require.NoError(t, err)
	<-rooms

	require.NoError(t, c.Close())
	<-c.Done()

	select {
	case r := <-rooms:
		t.Fatalf("unexpected delivery after Close: %v", r)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestClient_StudentLeavesWhenConnectionDrops(t *testing.T) {
	url, stop := startServer(t)
	ctx := context.Background()

	teacher := session.New(dial(t, url), session.Options{TeacherName: "Ms. Lee"})
	t.Cleanup(teacher.Close)
	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	exited := make(chan session.ExitReason, 1)
	student := session.New(dial(t, url), session.Options{
		ForceLeaveDelay: 20 * time.Millisecond,
		Hooks:           session.Hooks{OnExit: func(r session.ExitReason) { exited <- r }},
	})
	t.Cleanup(student.Close)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)

	stop()

	select {
	case r := <-exited:
		assert.Equal(t, session.ExitRoomClosed, r)
	case <-time.After(2 * time.Second):
		t.Fatal("student stayed in the room after the connection dropped")
	}
	assert.IsType(t, session.NoSession{}, student.Role())
}
