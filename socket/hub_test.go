package socket

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeAccess struct {
	allowed map[string]bool
	err     error
}

func (f *fakeAccess) UserHasChatAccess(ctx context.Context, userID, chatID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[userID+"/"+chatID], nil
}

func newTestClient(userID, companyID string) *Client {
	return &Client{
		userID:    userID,
		companyID: companyID,
		send:      make(chan Envelope, sendBufferSize),
	}
}

func TestHub_RegisterJoinsIdentityRooms(t *testing.T) {
	hub := NewHub(&fakeAccess{})
	c := newTestClient("u1", "co1")
	hub.Register(c)

	require.Equal(t, 1, hub.Emit("user:u1", "notification", "hi"))
	require.Equal(t, 1, hub.Emit("company:co1", "chat:updated", "x"))
	require.Equal(t, 0, hub.Emit("company:co2", "chat:updated", "x"))
}

func TestHub_EmitTargetsOnlyRoomMembers(t *testing.T) {
	hub := NewHub(&fakeAccess{allowed: map[string]bool{
		"u1/chat9": true,
		"u2/chat9": true,
	}})
	a := newTestClient("u1", "co1")
	b := newTestClient("u2", "co1")
	outsider := newTestClient("u3", "co2")
	hub.Register(a)
	hub.Register(b)
	hub.Register(outsider)

	hub.HandleCommand(context.Background(), a, clientCommand{Action: "join", Room: "chat:chat9"})
	hub.HandleCommand(context.Background(), b, clientCommand{Action: "join", Room: "chat:chat9"})

	require.Equal(t, 2, hub.Emit("chat:chat9", "message:new", "payload"))

	env := <-a.send
	require.Equal(t, "message:new", env.Event)
	require.Equal(t, "payload", env.Data)
	require.Empty(t, outsider.send)
}

func TestHub_JoinDeniedWithoutAccess(t *testing.T) {
	hub := NewHub(&fakeAccess{})
	c := newTestClient("u1", "co1")
	hub.Register(c)

	hub.HandleCommand(context.Background(), c, clientCommand{Action: "join", Room: "chat:secret"})
	require.Equal(t, 0, hub.Emit("chat:secret", "message:new", "x"))
}

func TestHub_JoinDeniedOnAccessError(t *testing.T) {
	hub := NewHub(&fakeAccess{err: errors.New("db down")})
	c := newTestClient("u1", "co1")
	hub.Register(c)

	hub.HandleCommand(context.Background(), c, clientCommand{Action: "join", Room: "chat:chat1"})
	require.Equal(t, 0, hub.Emit("chat:chat1", "message:new", "x"))
}

func TestHub_CannotJoinIdentityRoomsByHand(t *testing.T) {
	hub := NewHub(&fakeAccess{})
	c := newTestClient("u1", "co1")
	hub.Register(c)

	// A client may not wander into another company's room.
	hub.HandleCommand(context.Background(), c, clientCommand{Action: "join", Room: "company:co2"})
	require.Equal(t, 0, hub.Emit("company:co2", "chat:updated", "x"))
}

func TestHub_LeaveStopsDelivery(t *testing.T) {
	hub := NewHub(&fakeAccess{allowed: map[string]bool{"u1/chat1": true}})
	c := newTestClient("u1", "co1")
	hub.Register(c)

	hub.HandleCommand(context.Background(), c, clientCommand{Action: "join", Room: "chat:chat1"})
	require.Equal(t, 1, hub.Emit("chat:chat1", "message:new", "x"))

	hub.HandleCommand(context.Background(), c, clientCommand{Action: "leave", Room: "chat:chat1"})
	require.Equal(t, 0, hub.Emit("chat:chat1", "message:new", "x"))
}

func TestHub_UnregisterRemovesFromAllRooms(t *testing.T) {
	hub := NewHub(&fakeAccess{allowed: map[string]bool{"u1/chat1": true}})
	c := newTestClient("u1", "co1")
	hub.Register(c)
	hub.HandleCommand(context.Background(), c, clientCommand{Action: "join", Room: "chat:chat1"})

	hub.Unregister(c)

	require.Equal(t, 0, hub.Emit("user:u1", "notification", "x"))
	require.Equal(t, 0, hub.Emit("chat:chat1", "message:new", "x"))
}

func TestHub_SlowClientIsSkippedNotBlocked(t *testing.T) {
	hub := NewHub(&fakeAccess{})
	c := &Client{userID: "u1", send: make(chan Envelope, 1)}
	hub.Register(c)

	require.Equal(t, 1, hub.Emit("user:u1", "notification", "first"))
	// Buffer full: the second emit must not block, and delivers to nobody.
	require.Equal(t, 0, hub.Emit("user:u1", "notification", "second"))
}
