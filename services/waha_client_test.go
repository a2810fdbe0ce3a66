package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"

	"github.com/stretchr/testify/require"
)

func TestWahaClient_SendText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"id":{"_serialized":"true_5511999990000@c.us_ABC"}}`))
	}))
	defer srv.Close()

	client := NewWahaClient(srv.URL, "default-key")
	creds := &models.InboxCreds{WahaSession: "sales"}

	id, err := client.SendText(context.Background(), creds, "5511999990000@c.us", "oi")
	require.NoError(t, err)
	require.Equal(t, "true_5511999990000@c.us_ABC", id)

	require.Equal(t, "/api/sendText", gotPath)
	require.Equal(t, "default-key", gotKey)
	require.Equal(t, "sales", gotBody["session"])
	require.Equal(t, "5511999990000@c.us", gotBody["chatId"])
	require.Equal(t, "oi", gotBody["text"])
}

func TestWahaClient_InboxCredsOverrideDefaults(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewWahaClient("http://unused.invalid", "default-key")
	creds := &models.InboxCreds{WahaSession: "support", WahaBaseURL: srv.URL, WahaAPIKey: "inbox-key"}

	_, err := client.SendText(context.Background(), creds, "1@c.us", "x")
	require.NoError(t, err)
	require.Equal(t, "inbox-key", gotKey)
}

func TestWahaClient_UnknownResponseShapeStillSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"queued"}`))
	}))
	defer srv.Close()

	client := NewWahaClient(srv.URL, "")
	id, err := client.SendText(context.Background(), &models.InboxCreds{WahaSession: "s"}, "1@c.us", "x")
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestWahaClient_ErrorStatusBecomesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session not started", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewWahaClient(srv.URL, "")
	_, err := client.SendText(context.Background(), &models.InboxCreds{WahaSession: "s"}, "1@c.us", "x")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, models.ProviderWaha, pe.Provider)
	require.False(t, pe.Retryable())
}

func TestWahaClient_NoBaseURLFails(t *testing.T) {
	client := NewWahaClient("", "")
	_, err := client.SendText(context.Background(), &models.InboxCreds{WahaSession: "s"}, "1@c.us", "x")
	require.Error(t, err)
}
