package models

import (
	"encoding/json"
	"fmt"
)

// Socket event kinds carried on q.socket.livechat.
const (
	SocketKindInbound      = "livechat.inbound.message"
	SocketKindOutbound     = "livechat.outbound.message"
	SocketKindStatus       = "livechat.message.status"
	SocketKindNotification = "notification"
)

// SocketEvent is the single envelope the relay consumes. Which fields are
// populated depends on Kind.
type SocketEvent struct {
	Kind      string `json:"kind"`
	ChatID    string `json:"chatId,omitempty"`
	CompanyID string `json:"companyId,omitempty"`
	InboxID   string `json:"inboxId,omitempty"`

	// message events
	Message    *ChatMessageView `json:"message,omitempty"`
	ChatUpdate *ChatSummary     `json:"chatUpdate,omitempty"`

	// status events
	MessageID  string `json:"messageId,omitempty"`
	ExternalID string `json:"externalId,omitempty"`
	ViewStatus string `json:"view_status,omitempty"`
	RawStatus  string `json:"raw_status,omitempty"`

	// notification events
	UserID       string          `json:"userId,omitempty"`
	Notification json.RawMessage `json:"notification,omitempty"`
}

func (e *SocketEvent) Validate() error {
	switch e.Kind {
	case SocketKindInbound, SocketKindOutbound:
		if e.ChatID == "" {
			return fmt.Errorf("chatId is required for %s", e.Kind)
		}
		if e.Message == nil {
			return fmt.Errorf("message is required for %s", e.Kind)
		}
	case SocketKindStatus:
		if e.ChatID == "" || e.MessageID == "" {
			return fmt.Errorf("chatId and messageId are required for %s", e.Kind)
		}
	case SocketKindNotification:
		if e.UserID == "" {
			return fmt.Errorf("userId is required for %s", e.Kind)
		}
	default:
		return fmt.Errorf("unknown socket event kind: %q", e.Kind)
	}
	return nil
}
