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

func testMetaClient(serverURL string) *MetaClient {
	c := NewMetaClient("v20.0")
	c.baseURL = serverURL
	return c
}

func testCreds() *models.InboxCreds {
	return &models.InboxCreds{AccessToken: "token123", PhoneNumberID: "pn1"}
}

func TestMetaClient_SendText(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]interface{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"wamid.abc"}]}`))
	}))
	defer srv.Close()

	client := testMetaClient(srv.URL)
	id, err := client.SendText(context.Background(), testCreds(), "5511999990000", "hello")
	require.NoError(t, err)
	require.Equal(t, "wamid.abc", id)

	require.Equal(t, "/v20.0/pn1/messages", gotPath)
	require.Equal(t, "Bearer token123", gotAuth)
	require.Equal(t, "whatsapp", gotBody["messaging_product"])
	require.Equal(t, "5511999990000", gotBody["to"])
	require.Equal(t, "text", gotBody["type"])
}

func TestMetaClient_SendMediaDocumentCarriesFilename(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Write([]byte(`{"messages":[{"id":"wamid.doc"}]}`))
	}))
	defer srv.Close()

	client := testMetaClient(srv.URL)
	id, err := client.SendMedia(context.Background(), testCreds(),
		"5511999990000", "document", "https://cdn.example.com/f.pdf", "the contract", "contract.pdf")
	require.NoError(t, err)
	require.Equal(t, "wamid.doc", id)

	doc, ok := gotBody["document"].(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "https://cdn.example.com/f.pdf", doc["link"])
	require.Equal(t, "the contract", doc["caption"])
	require.Equal(t, "contract.pdf", doc["filename"])
}

func TestMetaClient_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"something broke"}}`, http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := testMetaClient(srv.URL)
	_, err := client.SendText(context.Background(), testCreds(), "551199", "x")
	require.Error(t, err)

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusInternalServerError, pe.StatusCode)
	require.True(t, pe.Retryable())
}

func TestMetaClient_ClientErrorIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid recipient"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := testMetaClient(srv.URL)
	_, err := client.SendText(context.Background(), testCreds(), "bogus", "x")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusBadRequest, pe.StatusCode)
	require.False(t, pe.Retryable())
}

func TestMetaClient_RateLimitIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":130429}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := testMetaClient(srv.URL)
	_, err := client.SendText(context.Background(), testCreds(), "551199", "x")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.True(t, pe.Retryable())
}

func TestMetaClient_NetworkErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused from here on

	client := testMetaClient(srv.URL)
	_, err := client.SendText(context.Background(), testCreds(), "551199", "x")

	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusBadGateway, pe.StatusCode)
	require.True(t, pe.Retryable())
}

func TestMetaClient_MediaInfoAndDownload(t *testing.T) {
	var mediaSrv *httptest.Server
	mediaSrv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v20.0/media1":
			require.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
			json.NewEncoder(w).Encode(map[string]string{
				"url":       mediaSrv.URL + "/download/media1",
				"mime_type": "image/jpeg",
			})
		case "/download/media1":
			require.Equal(t, "Bearer token123", r.Header.Get("Authorization"))
			w.Write([]byte("jpegbytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer mediaSrv.Close()

	client := testMetaClient(mediaSrv.URL)
	url, mimeType, err := client.MediaInfo(context.Background(), testCreds(), "media1")
	require.NoError(t, err)
	require.Equal(t, "image/jpeg", mimeType)

	data, err := client.DownloadMedia(context.Background(), testCreds(), url)
	require.NoError(t, err)
	require.Equal(t, []byte("jpegbytes"), data)
}
