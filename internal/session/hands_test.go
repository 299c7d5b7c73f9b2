package session_test

import (
	"context"
	"testing"
	"time"

	"handsup/backend/internal/models"
	"handsup/backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hands(n int) []models.Participant {
	ps := make([]models.Participant, n)
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range ps {
		at := base.Add(time.Duration(i) * time.Second)
		ps[i] = models.Participant{ID: string(rune('a' + i)), HandRaised: true, HandRaisedAt: &at}
	}
	return ps
}

func TestHands_RaiseTwiceLowers(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	ev := &events{}
	s := newSession(gw, ev)
	_, err = s.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	id, err := s.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)

	raised, err := s.Hands.RaiseHand(ctx)
	require.NoError(t, err)
	assert.True(t, raised)
	p, err := gw.GetParticipant(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.HandRaised)
	assert.NotNil(t, p.HandRaisedAt)

	raised, err = s.Hands.RaiseHand(ctx)
	require.NoError(t, err)
	assert.False(t, raised)
	p, err = gw.GetParticipant(ctx, id)
	require.NoError(t, err)
	assert.False(t, p.HandRaised)
	assert.Nil(t, p.HandRaisedAt)
	assert.False(t, s.HandRaised())
}

func TestHands_RaiseRequiresName(t *testing.T) {
	s, _ := joined(t)
	_, err := s.Hands.RaiseHand(context.Background())
	assert.ErrorIs(t, err, session.ErrNotJoined)
}

func TestHands_EdgeTriggeredNotification(t *testing.T) {
	ev := &events{}
	s := newSession(newStore(), ev)

	for _, n := range []int{0, 1, 1, 3, 2, 2} {
		s.Hands.PushHands(hands(n))
	}

	assert.Equal(t, []int{1, 3}, ev.Raised())
	assert.Len(t, s.Hands.Queue(), 2)
}

func TestSortQueue_NilFirstAndStable(t *testing.T) {
	t1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Minute)
	in := []models.Participant{
		{ID: "late", HandRaisedAt: &t1},
		{ID: "nil1"},
		{ID: "tie1", HandRaisedAt: &t0},
		{ID: "nil2"},
		{ID: "tie2", HandRaisedAt: &t0},
	}

	out := session.SortQueue(in)

	var ids []string
	for _, p := range out {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"nil1", "nil2", "tie1", "tie2", "late"}, ids)
	assert.Equal(t, "late", in[0].ID, "input is not reordered")
}

func TestSortQueue_AllNilKeepsOrder(t *testing.T) {
	in := []models.Participant{{ID: "c"}, {ID: "a"}, {ID: "b"}}
	out := session.SortQueue(in)
	assert.Equal(t, in, out)
}

func TestHands_TeacherOnlyActions(t *testing.T) {
	s, _ := joined(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.Hands.AcknowledgeHand(ctx, "x"), session.ErrNotTeacher)
	assert.ErrorIs(t, s.Hands.ListenToRaisedHands(ctx), session.ErrNotTeacher)
	_, err := s.Hands.ClearAllHands(ctx)
	assert.ErrorIs(t, err, session.ErrNotTeacher)
}

func TestHands_ReListenKeepsSingleSubscription(t *testing.T) {
	gw := &countingGateway{Gateway: newStore()}
	ctx := context.Background()
	ev := &events{}
	teacher := newSession(gw, ev)
	_, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	require.NoError(t, teacher.Hands.ListenToRaisedHands(ctx))
	require.NoError(t, teacher.Hands.ListenToRaisedHands(ctx))

	assert.Equal(t, 3, teacher.Listeners())
	assert.Equal(t, []int{0, 0, 1, 1, 0}, gw.Disposals())
	assert.Empty(t, ev.Raised(), "re-arming with an unchanged queue does not notify")
}

func TestHands_ClearAllHands(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	teacher := newSession(gw, nil)
	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	var ids []string
	for _, name := range []string{"Ana", "Bo"} {
		id, err := gw.CreateParticipant(ctx, code, name)
		require.NoError(t, err)
		require.NoError(t, gw.SetHandRaised(ctx, id, true))
		ids = append(ids, id)
	}
	eventually(t, func() bool { return len(teacher.Hands.Queue()) == 2 }, "queue should fill")

	report, err := teacher.Hands.ClearAllHands(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, report.Succeeded)
	eventually(t, func() bool { return len(teacher.Hands.Queue()) == 0 }, "queue should drain")
}

// slowHandGateway returns from SetHandRaised only after the write has had
// time to reach subscribers.
type slowHandGateway struct {
	session.Gateway
}

func (g slowHandGateway) SetHandRaised(ctx context.Context, id string, raised bool) error {
	err := g.Gateway.SetHandRaised(ctx, id, raised)
	time.Sleep(50 * time.Millisecond)
	return err
}

func TestHands_OwnLoweringIsNotAnAcknowledgment(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	code, err := store.CreateRoom(ctx, "T")
	require.NoError(t, err)

	ev := &events{}
	s := newSession(slowHandGateway{store}, ev)
	_, err = s.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	_, err = s.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)

	raised, err := s.Hands.RaiseHand(ctx)
	require.NoError(t, err)
	require.True(t, raised)
	raised, err = s.Hands.RaiseHand(ctx)
	require.NoError(t, err)
	require.False(t, raised)

	assert.Contains(t, ev.Keys(), session.MsgHandLowered)
	assert.NotContains(t, ev.Keys(), session.MsgHandAcknowledged)
	assert.False(t, s.HandRaised())
}

func TestHands_TeacherAcknowledgmentNotifiesStudent(t *testing.T) {
	store := newStore()
	ctx := context.Background()
	teacher := newSession(store, nil)
	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	ev := &events{}
	student := newSession(store, ev)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	id, err := student.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)
	_, err = student.Hands.RaiseHand(ctx)
	require.NoError(t, err)

	require.NoError(t, teacher.Hands.AcknowledgeHand(ctx, id))

	eventually(t, func() bool { return !student.HandRaised() }, "hand should be lowered")
	eventually(t, func() bool {
		for _, k := range ev.Keys() {
			if k == session.MsgHandAcknowledged {
				return true
			}
		}
		return false
	}, "student should hear about the acknowledgment")
}
