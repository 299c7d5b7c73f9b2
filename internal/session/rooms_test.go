package session_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"handsup/backend/internal/models"
	"handsup/backend/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRooms_CreateRoom(t *testing.T) {
	gw := newStore()
	ev := &events{}
	teacher := newSession(gw, ev)
	ctx := context.Background()

	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)
	assert.True(t, models.ValidRoomCode(code))
	assert.Equal(t, session.Teaching{RoomCode: code}, teacher.Role())
	assert.Equal(t, 3, teacher.Listeners())
	assert.Contains(t, ev.Keys(), session.MsgRoomCreated)

	room, err := gw.GetRoom(ctx, code)
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, "Ms. Ada", room.TeacherName)

	_, err = gw.CreateParticipant(ctx, code, "Ana")
	require.NoError(t, err)
	eventually(t, func() bool { return teacher.ParticipantCount() == 1 }, "participant list should follow the room")
	assert.Equal(t, "Ana", teacher.ParticipantList()[0].Name)
}

func TestRooms_CreateRoomAgainReplacesListeners(t *testing.T) {
	gw := &countingGateway{Gateway: newStore()}
	teacher := newSession(gw, nil)
	ctx := context.Background()

	first, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)
	second, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.Equal(t, session.Teaching{RoomCode: second}, teacher.Role())
	assert.Equal(t, 3, teacher.Listeners())
	assert.Equal(t, []int{1, 1, 1, 0, 0, 0}, gw.Disposals())

	old, err := gw.GetRoom(ctx, first)
	require.NoError(t, err)
	assert.NotNil(t, old, "switching rooms must not delete the old one")
}

func TestRooms_CreateRoomNeedsTeacherName(t *testing.T) {
	gw := newStore()
	s := session.New(gw, session.Options{TeacherName: "  "})

	_, err := s.Rooms.CreateRoom(context.Background())
	assert.ErrorIs(t, err, session.ErrNoTeacherName)
	assert.ErrorIs(t, err, session.ErrInvalidInput)
	assert.Equal(t, session.NoSession{}, s.Role())
}

func TestRooms_CreateRoomWhileAttending(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	teacher := newSession(gw, nil)
	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	student := newSession(gw, nil)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)

	_, err = student.Rooms.CreateRoom(ctx)
	assert.ErrorIs(t, err, session.ErrSessionActive)
}

func TestRooms_JoinRejectsMissingAndInactive(t *testing.T) {
	gw := newStore()
	ctx := context.Background()

	inactive, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)
	require.NoError(t, gw.UpdateRoom(ctx, inactive, models.RoomUpdate{Active: models.Bool(false)}))

	student := newSession(gw, nil)

	_, err = student.Rooms.JoinRoom(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, session.ErrRoomNotFound)
	assert.Equal(t, session.NoSession{}, student.Role())

	_, err = student.Rooms.JoinRoom(ctx, inactive)
	assert.ErrorIs(t, err, session.ErrRoomInactive)
	assert.Equal(t, session.NoSession{}, student.Role())
	assert.Equal(t, 0, student.Listeners())
	assert.Nil(t, student.Room())
}

func TestRooms_JoinValidatesCode(t *testing.T) {
	student := newSession(newStore(), nil)
	for _, code := range []string{"", "ABC", "ABC1234", "AB C12", "ABC-12"} {
		_, err := student.Rooms.JoinRoom(context.Background(), code)
		assert.ErrorIs(t, err, session.ErrInvalidCode, code)
		assert.ErrorIs(t, err, session.ErrInvalidInput, code)
	}
}

func TestRooms_JoinNormalizesCode(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	student := newSession(gw, nil)
	res, err := student.Rooms.JoinRoom(ctx, "  "+strings.ToLower(code)+" ")
	require.NoError(t, err)
	assert.Equal(t, code, res.RoomCode)
	assert.True(t, res.NeedsName)
	assert.Equal(t, session.Attending{RoomCode: code}, student.Role())
}

func TestRooms_JoinWithCachedNameRegisters(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	first, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)
	second, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	student := newSession(gw, nil)
	_, err = student.Rooms.JoinRoom(ctx, first)
	require.NoError(t, err)
	_, err = student.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)
	require.NoError(t, student.Rooms.LeaveRoom(ctx))

	res, err := student.Rooms.JoinRoom(ctx, second)
	require.NoError(t, err)
	assert.False(t, res.NeedsName)
	assert.NotEmpty(t, res.ParticipantID)

	p, err := gw.GetParticipant(ctx, res.ParticipantID)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "Ana", p.Name)
	assert.Equal(t, second, p.RoomCode)
}

func TestRooms_JoinTwiceIsRejected(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	student := newSession(gw, nil)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	_, err = student.Rooms.JoinRoom(ctx, code)
	assert.ErrorIs(t, err, session.ErrSessionActive)
}

func TestRooms_EndRoomCascades(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	ev := &events{}
	teacher := newSession(gw, ev)
	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	for _, name := range []string{"Ana", "Bo", "Cy"} {
		_, err := gw.CreateParticipant(ctx, code, name)
		require.NoError(t, err)
	}

	report, err := teacher.Rooms.EndRoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, code, report.RoomCode)
	assert.True(t, report.RoomDeleted)
	assert.Len(t, report.Participants.Succeeded, 3)
	assert.Empty(t, report.Participants.Failed)

	room, err := gw.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Nil(t, room)
	ps, err := gw.ListParticipants(ctx, code)
	require.NoError(t, err)
	assert.Empty(t, ps)

	assert.Equal(t, session.NoSession{}, teacher.Role())
	assert.Equal(t, 0, teacher.Listeners())
	assert.Equal(t, []session.ExitReason{session.ExitEnded}, ev.Exits())
}

func TestRooms_EndRoomTwiceDisposesOnce(t *testing.T) {
	gw := &countingGateway{Gateway: newStore()}
	ctx := context.Background()
	teacher := newSession(gw, nil)
	_, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	_, err = teacher.Rooms.EndRoom(ctx)
	require.NoError(t, err)
	report, err := teacher.Rooms.EndRoom(ctx)
	require.NoError(t, err)
	assert.Equal(t, session.TerminationReport{}, report)
	require.NoError(t, teacher.Rooms.LeaveRoom(ctx))

	assert.Equal(t, []int{1, 1, 1}, gw.Disposals())
}

func TestRooms_StudentLeaveTwiceDisposesOnce(t *testing.T) {
	store := newStore()
	gw := &countingGateway{Gateway: store}
	ctx := context.Background()
	code, err := store.CreateRoom(ctx, "T")
	require.NoError(t, err)

	ev := &events{}
	student := newSession(gw, ev)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	id, err := student.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)

	require.NoError(t, student.Rooms.LeaveRoom(ctx))
	require.NoError(t, student.Rooms.LeaveRoom(ctx))

	assert.Equal(t, []int{1, 1}, gw.Disposals())
	assert.Equal(t, []session.ExitReason{session.ExitLeft}, ev.Exits())
	assert.Equal(t, "Ana", student.Name(), "the name stays cached for the next room")

	p, err := store.GetParticipant(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, p)
	room, err := store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.False(t, room.HasParticipant(id))
}

func TestRooms_StudentForcedOutWhenRoomEnds(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	teacher := newSession(gw, nil)
	code, err := teacher.Rooms.CreateRoom(ctx)
	require.NoError(t, err)

	ev := &events{}
	student := newSession(gw, ev)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	_, err = student.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)

	_, err = teacher.Rooms.EndRoom(ctx)
	require.NoError(t, err)

	eventually(t, func() bool {
		_, none := student.Role().(session.NoSession)
		return none
	}, "student should leave the closed room")
	assert.Equal(t, []session.ExitReason{session.ExitRoomClosed}, ev.Exits())
	assert.Contains(t, ev.Keys(), session.MsgRoomClosed)
	assert.Equal(t, 0, student.Listeners())
}

func TestRooms_DeactivationAlsoForcesLeave(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	student := newSession(gw, nil)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)
	id, err := student.Participants.ConfirmName(ctx, "Ana")
	require.NoError(t, err)

	require.NoError(t, gw.UpdateRoom(ctx, code, models.RoomUpdate{Active: models.Bool(false)}))

	eventually(t, func() bool {
		_, none := student.Role().(session.NoSession)
		return none
	}, "student should leave the deactivated room")

	p, err := gw.GetParticipant(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, p, "forced leave removes the own participant")
}

func TestRooms_ForcedLeaveSkippedAfterVoluntaryLeave(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	ev := &events{}
	student := newSession(gw, ev)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)

	require.NoError(t, gw.UpdateRoom(ctx, code, models.RoomUpdate{Active: models.Bool(false)}))
	eventually(t, func() bool {
		for _, k := range ev.Keys() {
			if k == session.MsgRoomClosed {
				return true
			}
		}
		return false
	}, "closed notice expected")
	require.NoError(t, student.Rooms.LeaveRoom(ctx))

	assert.Never(t, func() bool { return len(ev.Exits()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []session.ExitReason{session.ExitLeft}, ev.Exits())
}

func TestRooms_StudentCannotEndRoom(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	student := newSession(gw, nil)
	_, err = student.Rooms.JoinRoom(ctx, code)
	require.NoError(t, err)

	_, err = student.Rooms.EndRoom(ctx)
	assert.ErrorIs(t, err, session.ErrNotTeacher)
	assert.Equal(t, session.Attending{RoomCode: code}, student.Role())
}

func TestRooms_Resume(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)
	id, err := gw.CreateParticipant(ctx, code, "Ana")
	require.NoError(t, err)
	require.NoError(t, gw.SetHandRaised(ctx, id, true))

	student := newSession(gw, nil)
	res, err := student.Rooms.Resume(ctx, code, id)
	require.NoError(t, err)
	assert.Equal(t, id, res.ParticipantID)
	assert.False(t, res.NeedsName)
	assert.Equal(t, "Ana", student.Name())
	assert.True(t, student.HandRaised())
}

func TestRooms_ResumeWithDeletedParticipant(t *testing.T) {
	gw := newStore()
	ctx := context.Background()
	code, err := gw.CreateRoom(ctx, "T")
	require.NoError(t, err)

	student := newSession(gw, nil)
	res, err := student.Rooms.Resume(ctx, code, "deleted-id")
	require.NoError(t, err)
	assert.True(t, res.NeedsName)
	assert.Equal(t, session.Attending{RoomCode: code}, student.Role())
}

func TestTerminate_MissingRoomIsNotAnError(t *testing.T) {
	report, err := session.Terminate(context.Background(), newStore(), "GONE00")
	require.NoError(t, err)
	assert.False(t, report.RoomDeleted)
	assert.Empty(t, report.Participants.Succeeded)
}
