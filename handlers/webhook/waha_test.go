package webhook

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

const wahaEventJSON = `{
	"event": "message",
	"session": "default",
	"payload": {"id": "true_5511999990000@c.us_ABCD", "body": "oi"}
}`

func wahaTestRouter(h *Handler) *gin.Engine {
	InitWebhookHandlers()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/webhooks/waha/:session", h.WahaReceive)
	return router
}

func TestWahaReceive_PublishesForKnownSession(t *testing.T) {
	inboxes := &fakeInboxes{
		bySession: map[string]*models.Inbox{
			"default": {ID: "ib-waha", CompanyID: "co1"},
		},
	}
	pub := &fakePublisher{}
	h := NewHandler(pub, inboxes, nil, "", "", "")
	router := wahaTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/waha/default", bytes.NewBufferString(wahaEventJSON))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	msgs := pub.published()
	require.Len(t, msgs, 1)
	require.Equal(t, queue.ExchangeMeta, msgs[0].Exchange)
	require.Equal(t, queue.KeyInboundMessage, msgs[0].RoutingKey)

	job, ok := msgs[0].Payload.(models.InboundMessageJob)
	require.True(t, ok)
	require.Equal(t, models.ProviderWaha, job.Provider)
	require.Equal(t, "ib-waha", job.InboxID)
	require.Equal(t, "co1", job.CompanyID)
	require.Equal(t, "message", job.Event)
	require.Equal(t, "default", job.Session)
}

func TestWahaReceive_AcksUnknownSessionWithoutPublishing(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler(pub, &fakeInboxes{}, nil, "", "", "")
	router := wahaTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/waha/ghost", bytes.NewBufferString(wahaEventJSON))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Empty(t, pub.published())
}

func TestWahaReceive_APIKey(t *testing.T) {
	inboxes := &fakeInboxes{
		bySession: map[string]*models.Inbox{
			"default": {ID: "ib-waha", CompanyID: "co1"},
		},
	}
	pub := &fakePublisher{}
	h := NewHandler(pub, inboxes, nil, "", "", "waha-key")
	router := wahaTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/waha/default", bytes.NewBufferString(wahaEventJSON))
	req.Header.Set("X-Api-Key", "wrong")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Empty(t, pub.published())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/webhooks/waha/default", bytes.NewBufferString(wahaEventJSON))
	req.Header.Set("X-Api-Key", "waha-key")
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pub.published(), 1)
}

func TestWahaReceive_RejectsMalformedBody(t *testing.T) {
	h := NewHandler(&fakePublisher{}, &fakeInboxes{}, nil, "", "", "")
	router := wahaTestRouter(h)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/waha/default", bytes.NewBufferString("{not json"))
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
}
