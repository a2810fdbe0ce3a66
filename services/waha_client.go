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

// WahaClient talks to a self-hosted WAHA server. Base URL and API key come
// from inbox credentials, with config-level defaults as fallback.
type WahaClient struct {
	httpClient     *http.Client
	defaultBaseURL string
	defaultAPIKey  string
}

func NewWahaClient(defaultBaseURL, defaultAPIKey string) *WahaClient {
	return &WahaClient{
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		defaultBaseURL: defaultBaseURL,
		defaultAPIKey:  defaultAPIKey,
	}
}

type wahaSendResponse struct {
	ID struct {
		Serialized string `json:"_serialized"`
	} `json:"id"`
}

// SendText delivers a text message through WAHA and returns the provider
// message ID. chatID is the WhatsApp JID (digits@c.us).
func (c *WahaClient) SendText(ctx context.Context, creds *models.InboxCreds, chatID, body string) (string, error) {
	baseURL := creds.WahaBaseURL
	if baseURL == "" {
		baseURL = c.defaultBaseURL
	}
	apiKey := creds.WahaAPIKey
	if apiKey == "" {
		apiKey = c.defaultAPIKey
	}
	if baseURL == "" {
		return "", fmt.Errorf("no WAHA base URL configured for session %s", creds.WahaSession)
	}

	payload := map[string]string{
		"session": creds.WahaSession,
		"chatId":  chatID,
		"text":    body,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal send payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/api/sendText", bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-Api-Key", apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ProviderError{Provider: models.ProviderWaha, StatusCode: http.StatusBadGateway, Body: err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ProviderError{Provider: models.ProviderWaha, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var parsed wahaSendResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil || parsed.ID.Serialized == "" {
		// WAHA versions differ in response shape; an empty ID still counts
		// as delivered.
		return "", nil
	}
	return parsed.ID.Serialized, nil
}
