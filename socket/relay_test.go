package socket

import (
	"encoding/json"
	"testing"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"

	"github.com/stretchr/testify/require"
)

type emitted struct {
	Room    string
	Event   string
	Payload interface{}
}

type fakeEmitter struct {
	events []emitted
}

func (f *fakeEmitter) Emit(room, event string, payload interface{}) int {
	f.events = append(f.events, emitted{room, event, payload})
	return 1
}

func (f *fakeEmitter) eventsFor(room string) []emitted {
	var out []emitted
	for _, e := range f.events {
		if e.Room == room {
			out = append(out, e)
		}
	}
	return out
}

func mustBody(t *testing.T, ev models.SocketEvent) []byte {
	t.Helper()
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	return body
}

func TestRelay_InboundMessageGoesToChatRoom(t *testing.T) {
	hub := &fakeEmitter{}
	relay := NewRelay(hub)

	msg := &models.ChatMessageView{ID: "m1", ChatID: "chat1", Body: "oi"}
	err := relay.HandleEvent(mustBody(t, models.SocketEvent{
		Kind:      models.SocketKindInbound,
		ChatID:    "chat1",
		CompanyID: "co1",
		Message:   msg,
	}))
	require.NoError(t, err)

	chatEvents := hub.eventsFor("chat:chat1")
	require.Len(t, chatEvents, 2)
	require.Equal(t, "message:new", chatEvents[0].Event)
	require.Equal(t, "message:inbound", chatEvents[1].Event)
}

func TestRelay_OutboundMessageEmitsSentEvent(t *testing.T) {
	hub := &fakeEmitter{}
	relay := NewRelay(hub)

	err := relay.HandleEvent(mustBody(t, models.SocketEvent{
		Kind:    models.SocketKindOutbound,
		ChatID:  "chat1",
		Message: &models.ChatMessageView{ID: "m2", ChatID: "chat1"},
	}))
	require.NoError(t, err)

	chatEvents := hub.eventsFor("chat:chat1")
	require.Len(t, chatEvents, 2)
	require.Equal(t, "message:outbound", chatEvents[1].Event)
}

func TestRelay_ChatUpdateGoesOnlyToOwningCompany(t *testing.T) {
	hub := &fakeEmitter{}
	relay := NewRelay(hub)

	err := relay.HandleEvent(mustBody(t, models.SocketEvent{
		Kind:       models.SocketKindInbound,
		ChatID:     "chat1",
		CompanyID:  "co1",
		Message:    &models.ChatMessageView{ID: "m1", ChatID: "chat1"},
		ChatUpdate: &models.ChatSummary{ChatID: "chat1", CompanyID: "co1"},
	}))
	require.NoError(t, err)

	companyEvents := hub.eventsFor("company:co1")
	require.Len(t, companyEvents, 1)
	require.Equal(t, "chat:updated", companyEvents[0].Event)

	for _, e := range hub.events {
		require.NotEqual(t, "company:co2", e.Room)
	}
}

func TestRelay_ChatUpdateWithoutCompanyIsSkipped(t *testing.T) {
	hub := &fakeEmitter{}
	relay := NewRelay(hub)

	err := relay.HandleEvent(mustBody(t, models.SocketEvent{
		Kind:       models.SocketKindInbound,
		ChatID:     "chat1",
		Message:    &models.ChatMessageView{ID: "m1", ChatID: "chat1"},
		ChatUpdate: &models.ChatSummary{ChatID: "chat1"},
	}))
	require.NoError(t, err)

	// Without a company the summary goes nowhere rather than to a guessed
	// room.
	for _, e := range hub.events {
		require.NotEqual(t, "chat:updated", e.Event)
	}
}

func TestRelay_StatusEvent(t *testing.T) {
	hub := &fakeEmitter{}
	relay := NewRelay(hub)

	err := relay.HandleEvent(mustBody(t, models.SocketEvent{
		Kind:       models.SocketKindStatus,
		ChatID:     "chat1",
		MessageID:  "m1",
		ExternalID: "wamid.1",
		ViewStatus: models.StatusDelivered,
		RawStatus:  "delivered",
	}))
	require.NoError(t, err)

	chatEvents := hub.eventsFor("chat:chat1")
	require.Len(t, chatEvents, 1)
	require.Equal(t, "message:status", chatEvents[0].Event)

	payload, ok := chatEvents[0].Payload.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "m1", payload["messageId"])
	require.Equal(t, models.StatusDelivered, payload["view_status"])
}

func TestRelay_NotificationGoesToUserRoom(t *testing.T) {
	hub := &fakeEmitter{}
	relay := NewRelay(hub)

	err := relay.HandleEvent(mustBody(t, models.SocketEvent{
		Kind:         models.SocketKindNotification,
		UserID:       "u7",
		Notification: json.RawMessage(`{"title":"assigned"}`),
	}))
	require.NoError(t, err)

	userEvents := hub.eventsFor("user:u7")
	require.Len(t, userEvents, 1)
	require.Equal(t, "notification", userEvents[0].Event)
}

func TestRelay_RejectsMalformedAndUnknownEvents(t *testing.T) {
	hub := &fakeEmitter{}
	relay := NewRelay(hub)

	require.Error(t, relay.HandleEvent([]byte("{not json")))
	require.Error(t, relay.HandleEvent(mustBody(t, models.SocketEvent{Kind: "something.else", ChatID: "c"})))
	require.Error(t, relay.HandleEvent([]byte(`{"kind":"livechat.inbound.message"}`)))
	require.Empty(t, hub.events)
}
