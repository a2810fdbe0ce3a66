package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
)

// ProviderError carries the upstream HTTP status so the outbound consumer
// can decide between retry and dead-letter.
type ProviderError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s API error: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// Retryable reports whether the failure is transient. Rate limits and
// upstream 5xx are retried; 4xx client errors are not.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// MetaClient talks to the Meta Graph API for WhatsApp Cloud inboxes.
type MetaClient struct {
	httpClient   *http.Client
	graphVersion string
	baseURL      string
}

func NewMetaClient(graphVersion string) *MetaClient {
	return &MetaClient{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		graphVersion: graphVersion,
		baseURL:      "https://graph.facebook.com",
	}
}

type metaSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// SendText delivers a text message and returns the provider message ID.
func (c *MetaClient) SendText(ctx context.Context, creds *models.InboxCreds, to, body string) (string, error) {
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	}
	return c.send(ctx, creds, payload)
}

// SendMedia delivers a media message by hosted link. mediaType is one of
// image, audio, video or document.
func (c *MetaClient) SendMedia(ctx context.Context, creds *models.InboxCreds, to, mediaType, link, caption, filename string) (string, error) {
	media := map[string]string{"link": link}
	if caption != "" {
		media["caption"] = caption
	}
	if mediaType == "document" && filename != "" {
		media["filename"] = filename
	}
	payload := map[string]interface{}{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              mediaType,
		mediaType:           media,
	}
	return c.send(ctx, creds, payload)
}

func (c *MetaClient) send(ctx context.Context, creds *models.InboxCreds, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/messages", c.baseURL, c.graphVersion, creds.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors are always worth a retry.
		return "", &ProviderError{Provider: models.ProviderMeta, StatusCode: http.StatusBadGateway, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{Provider: models.ProviderMeta, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed metaSendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || len(parsed.Messages) == 0 {
		return "", fmt.Errorf("unexpected send response: %s", string(respBody))
	}
	return parsed.Messages[0].ID, nil
}

type metaMediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// MediaInfo resolves a media ID into a short-lived download URL.
func (c *MetaClient) MediaInfo(ctx context.Context, creds *models.InboxCreds, mediaID string) (url, mimeType string, err error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.graphVersion, mediaID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", "", &ProviderError{Provider: models.ProviderMeta, StatusCode: http.StatusBadGateway, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return "", "", &ProviderError{Provider: models.ProviderMeta, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var info metaMediaInfo
	if err := json.Unmarshal(respBody, &info); err != nil {
		return "", "", fmt.Errorf("unexpected media info response: %s", string(respBody))
	}
	return info.URL, info.MimeType, nil
}

// DownloadMedia fetches media bytes from a URL returned by MediaInfo.
// The lookaside URL still requires the bearer token.
func (c *MetaClient) DownloadMedia(ctx context.Context, creds *models.InboxCreds, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: models.ProviderMeta, StatusCode: http.StatusBadGateway, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &ProviderError{Provider: models.ProviderMeta, StatusCode: resp.StatusCode, Body: string(body)}
	}

	// 100MB cap matches the request body limit on the ingest side.
	return io.ReadAll(io.LimitReader(resp.Body, 100<<20))
}
