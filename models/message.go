package models

import "time"

// Sender types stored on message rows.
const (
	SenderCustomer = "CUSTOMER"
	SenderUser     = "USER"
	SenderSystem   = "SYSTEM"
)

// View statuses shown in the chat UI.
const (
	StatusPending   = "PENDING"
	StatusSent      = "SENT"
	StatusDelivered = "DELIVERED"
	StatusRead      = "READ"
	StatusFailed    = "FAILED"
)

// ChatMessageView is the message shape pushed to socket clients. JSON field
// names match what the frontend already consumes.
type ChatMessageView struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chat_id"`
	Body       string    `json:"body"`
	SenderType string    `json:"sender_type"`
	SenderID   string    `json:"sender_id,omitempty"`
	Type       string    `json:"type"`
	ViewStatus string    `json:"view_status,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	MediaURL   string    `json:"media_url,omitempty"`
	IsPrivate  bool      `json:"is_private"`
	CreatedAt  time.Time `json:"created_at"`
}

// ChatSummary is the conversation-list entry pushed on chat:updated.
type ChatSummary struct {
	ChatID        string    `json:"chatId"`
	CompanyID     string    `json:"companyId"`
	InboxID       string    `json:"inboxId"`
	CustomerID    string    `json:"customerId"`
	CustomerName  string    `json:"customerName,omitempty"`
	CustomerPhone string    `json:"customerPhone,omitempty"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	LastMessageAt time.Time `json:"lastMessageAt"`
	UnreadCount   int       `json:"unreadCount"`
	Status        string    `json:"status"`
}

// ViewStatusFromMeta maps Meta delivery receipt statuses to view statuses.
// Unknown statuses map to SENT so a bad receipt never regresses the UI.
func ViewStatusFromMeta(status string) string {
	switch status {
	case "sent":
		return StatusSent
	case "delivered":
		return StatusDelivered
	case "read":
		return StatusRead
	case "failed":
		return StatusFailed
	}
	return StatusSent
}
