package consumers

import (
	"testing"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"

	"github.com/stretchr/testify/require"
)

func TestMetaMessageBody(t *testing.T) {
	body, msgType := metaMessageBody(&models.MetaMessage{
		Type: "text",
		Text: &models.MetaText{Body: "hello"},
	})
	require.Equal(t, "hello", body)
	require.Equal(t, "text", msgType)

	body, msgType = metaMessageBody(&models.MetaMessage{
		Type:  "image",
		Image: &models.MetaMedia{ID: "media1", Caption: "look at this"},
	})
	require.Equal(t, "look at this", body)
	require.Equal(t, "image", msgType)

	// Unknown types get a placeholder so the chat list still shows something.
	body, msgType = metaMessageBody(&models.MetaMessage{Type: "reaction"})
	require.Equal(t, "[reaction]", body)
	require.Equal(t, "reaction", msgType)
}

func TestMetaTimestamp(t *testing.T) {
	require.Equal(t, time.Unix(1700000000, 0).UTC(), metaTimestamp("1700000000"))

	// Garbage and zero fall back to roughly now.
	for _, ts := range []string{"", "not-a-number", "0", "-5"} {
		got := metaTimestamp(ts)
		require.WithinDuration(t, time.Now().UTC(), got, 5*time.Second, "ts=%q", ts)
	}
}
