package services

import (
	"context"
	"fmt"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres system of record for inboxes, chats and messages.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// SaveWebhookEvent records a provider event for idempotency. Returns true
// when the event is new; a conflicting (inbox_id, event_uid) pair returns
// false so consumers can skip redelivered work.
func (s *Store) SaveWebhookEvent(ctx context.Context, inboxID, eventUID, provider string, payload []byte) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		insert into webhook_events (id, inbox_id, event_uid, provider, payload, received_at)
		values ($1, $2, $3, $4, $5, now())
		on conflict (inbox_id, event_uid) do nothing`,
		uuid.NewString(), inboxID, eventUID, provider, payload)
	if err != nil {
		return false, fmt.Errorf("failed to save webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const inboxColumns = `id, company_id, name, provider, coalesce(phone_number_id, ''), coalesce(phone_number, ''), is_active`

func scanInbox(row pgx.Row) (*models.Inbox, error) {
	var inbox models.Inbox
	err := row.Scan(&inbox.ID, &inbox.CompanyID, &inbox.Name, &inbox.Provider,
		&inbox.PhoneNumberID, &inbox.PhoneNumber, &inbox.IsActive)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan inbox: %w", err)
	}
	return &inbox, nil
}

// GetInboxByPhoneNumberID resolves an inbox by Meta phone_number_id, falling
// back to the display phone number for older rows.
func (s *Store) GetInboxByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Inbox, error) {
	row := s.pool.QueryRow(ctx, `
		select `+inboxColumns+` from inboxes
		where phone_number_id = $1 or phone_number = $1
		limit 1`, phoneNumberID)
	return scanInbox(row)
}

// GetInboxByVerifyToken resolves an inbox by its per-inbox verify token.
func (s *Store) GetInboxByVerifyToken(ctx context.Context, token string) (*models.Inbox, error) {
	if token == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx, `
		select `+inboxColumns+` from inboxes
		where verify_token = $1
		limit 1`, token)
	return scanInbox(row)
}

// GetInboxBySession resolves a WAHA inbox by session name.
func (s *Store) GetInboxBySession(ctx context.Context, session string) (*models.Inbox, error) {
	row := s.pool.QueryRow(ctx, `
		select `+inboxColumns+` from inboxes
		where waha_session = $1
		limit 1`, session)
	return scanInbox(row)
}

// GetInboxCreds loads the provider credentials for one inbox.
func (s *Store) GetInboxCreds(ctx context.Context, inboxID string) (*models.InboxCreds, error) {
	var creds models.InboxCreds
	err := s.pool.QueryRow(ctx, `
		select coalesce(access_token, ''), coalesce(phone_number_id, ''), coalesce(app_secret, ''),
		       coalesce(verify_token, ''), coalesce(waha_base_url, ''), coalesce(waha_session, ''),
		       coalesce(waha_api_key, '')
		from inboxes where id = $1`, inboxID).
		Scan(&creds.AccessToken, &creds.PhoneNumberID, &creds.AppSecret,
			&creds.VerifyToken, &creds.WahaBaseURL, &creds.WahaSession, &creds.WahaAPIKey)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load inbox credentials: %w", err)
	}
	return &creds, nil
}

// EnsureLeadCustomerChat upserts the customer for a phone number and the open
// chat binding that customer to the inbox. Returns chatID and customerID.
func (s *Store) EnsureLeadCustomerChat(ctx context.Context, inboxID, companyID, phone, name string) (string, string, error) {
	var customerID string
	err := s.pool.QueryRow(ctx, `
		insert into customers (id, company_id, phone, name, created_at, updated_at)
		values ($1, $2, $3, $4, now(), now())
		on conflict (company_id, phone) do update
			set name = coalesce(nullif(excluded.name, ''), customers.name),
			    updated_at = now()
		returning id`,
		uuid.NewString(), companyID, phone, name).Scan(&customerID)
	if err != nil {
		return "", "", fmt.Errorf("failed to upsert customer: %w", err)
	}

	var chatID string
	err = s.pool.QueryRow(ctx, `
		insert into chats (id, company_id, inbox_id, customer_id, status, unread_count, created_at, updated_at)
		values ($1, $2, $3, $4, 'OPEN', 0, now(), now())
		on conflict (inbox_id, customer_id) do update set updated_at = now()
		returning id`,
		uuid.NewString(), companyID, inboxID, customerID).Scan(&chatID)
	if err != nil {
		return "", "", fmt.Errorf("failed to upsert chat: %w", err)
	}

	return chatID, customerID, nil
}

// InsertInboundMessage persists a customer message and returns its view.
func (s *Store) InsertInboundMessage(ctx context.Context, chatID, body, msgType, externalID, senderID string, sentAt time.Time) (*models.ChatMessageView, error) {
	msg := &models.ChatMessageView{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Body:       body,
		SenderType: models.SenderCustomer,
		SenderID:   senderID,
		Type:       msgType,
		ExternalID: externalID,
		CreatedAt:  sentAt,
	}
	_, err := s.pool.Exec(ctx, `
		insert into messages (id, chat_id, body, sender_type, sender_id, type, external_id, is_private, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, false, $8)`,
		msg.ID, msg.ChatID, msg.Body, msg.SenderType, nullable(msg.SenderID), msg.Type, nullable(msg.ExternalID), msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert inbound message: %w", err)
	}
	return msg, nil
}

// InsertOutboundMessage persists an agent message as PENDING before it is
// handed to the outbound queue.
func (s *Store) InsertOutboundMessage(ctx context.Context, chatID, body, msgType, senderID string, isPrivate bool) (*models.ChatMessageView, error) {
	msg := &models.ChatMessageView{
		ID:         uuid.NewString(),
		ChatID:     chatID,
		Body:       body,
		SenderType: models.SenderUser,
		SenderID:   senderID,
		Type:       msgType,
		ViewStatus: models.StatusPending,
		IsPrivate:  isPrivate,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx, `
		insert into messages (id, chat_id, body, sender_type, sender_id, type, view_status, is_private, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		msg.ID, msg.ChatID, msg.Body, msg.SenderType, nullable(msg.SenderID), msg.Type, msg.ViewStatus, msg.IsPrivate, msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert outbound message: %w", err)
	}
	return msg, nil
}

// UpdateMessageStatusByExternalID applies a delivery receipt. Returns the
// message and chat IDs, or empty strings when no message matches (receipts
// can arrive for messages sent outside the platform).
func (s *Store) UpdateMessageStatusByExternalID(ctx context.Context, externalID, viewStatus string) (string, string, error) {
	var messageID, chatID string
	err := s.pool.QueryRow(ctx, `
		update messages set view_status = $2
		where external_id = $1
		returning id, chat_id`, externalID, viewStatus).Scan(&messageID, &chatID)
	if err == pgx.ErrNoRows {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to update message status: %w", err)
	}
	return messageID, chatID, nil
}

// MarkMessageSent records the provider message ID after a successful send.
func (s *Store) MarkMessageSent(ctx context.Context, messageID, externalID string) error {
	_, err := s.pool.Exec(ctx, `
		update messages set view_status = $2, external_id = $3 where id = $1`,
		messageID, models.StatusSent, externalID)
	if err != nil {
		return fmt.Errorf("failed to mark message sent: %w", err)
	}
	return nil
}

// MarkMessageFailed flags a message whose delivery exhausted all retries.
func (s *Store) MarkMessageFailed(ctx context.Context, messageID string) error {
	_, err := s.pool.Exec(ctx, `
		update messages set view_status = $2 where id = $1`,
		messageID, models.StatusFailed)
	if err != nil {
		return fmt.Errorf("failed to mark message failed: %w", err)
	}
	return nil
}

// SetMessageMediaURL backfills the stored media location after download.
func (s *Store) SetMessageMediaURL(ctx context.Context, messageID, mediaURL string) error {
	_, err := s.pool.Exec(ctx, `
		update messages set media_url = $2 where id = $1`, messageID, mediaURL)
	if err != nil {
		return fmt.Errorf("failed to set media url: %w", err)
	}
	return nil
}

// InsertAttachment records one downloaded attachment.
func (s *Store) InsertAttachment(ctx context.Context, messageID, storageKey, mimeType, filename string) error {
	_, err := s.pool.Exec(ctx, `
		insert into attachments (id, message_id, storage_key, mime_type, filename, created_at)
		values ($1, $2, $3, $4, $5, now())`,
		uuid.NewString(), messageID, storageKey, mimeType, nullable(filename))
	if err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// MessageView reloads one message in its socket shape, used after media
// backfill to re-broadcast the updated row.
func (s *Store) MessageView(ctx context.Context, messageID string) (*models.ChatMessageView, error) {
	var msg models.ChatMessageView
	err := s.pool.QueryRow(ctx, `
		select id, chat_id, body, sender_type, coalesce(sender_id, ''), type,
		       coalesce(view_status, ''), coalesce(external_id, ''), coalesce(media_url, ''),
		       is_private, created_at
		from messages where id = $1`, messageID).
		Scan(&msg.ID, &msg.ChatID, &msg.Body, &msg.SenderType, &msg.SenderID, &msg.Type,
			&msg.ViewStatus, &msg.ExternalID, &msg.MediaURL, &msg.IsPrivate, &msg.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load message: %w", err)
	}
	return &msg, nil
}

// TouchChat bumps the chat's conversation-list fields for a new inbound
// message.
func (s *Store) TouchChat(ctx context.Context, chatID, preview string) error {
	_, err := s.pool.Exec(ctx, `
		update chats set last_message = $2, last_message_at = now(),
		       unread_count = unread_count + 1, updated_at = now()
		where id = $1`, chatID, preview)
	if err != nil {
		return fmt.Errorf("failed to touch chat: %w", err)
	}
	return nil
}

// ChatSummary loads the conversation-list entry for one chat.
func (s *Store) ChatSummary(ctx context.Context, chatID string) (*models.ChatSummary, error) {
	var sum models.ChatSummary
	var lastMessageAt *time.Time
	err := s.pool.QueryRow(ctx, `
		select c.id, c.company_id, c.inbox_id, c.customer_id,
		       coalesce(cu.name, ''), coalesce(cu.phone, ''),
		       coalesce(c.last_message, ''), c.last_message_at, c.unread_count, c.status
		from chats c
		join customers cu on cu.id = c.customer_id
		where c.id = $1`, chatID).
		Scan(&sum.ChatID, &sum.CompanyID, &sum.InboxID, &sum.CustomerID,
			&sum.CustomerName, &sum.CustomerPhone,
			&sum.LastMessage, &lastMessageAt, &sum.UnreadCount, &sum.Status)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat summary: %w", err)
	}
	if lastMessageAt != nil {
		sum.LastMessageAt = *lastMessageAt
	}
	return &sum, nil
}

// ChatContact returns the customer phone, inbox and provider for an
// outbound send.
func (s *Store) ChatContact(ctx context.Context, chatID string) (inboxID, companyID, provider, phone string, err error) {
	err = s.pool.QueryRow(ctx, `
		select c.inbox_id, c.company_id, i.provider, coalesce(cu.phone, '')
		from chats c
		join inboxes i on i.id = c.inbox_id
		join customers cu on cu.id = c.customer_id
		where c.id = $1`, chatID).Scan(&inboxID, &companyID, &provider, &phone)
	if err == pgx.ErrNoRows {
		return "", "", "", "", nil
	}
	if err != nil {
		return "", "", "", "", fmt.Errorf("failed to load chat contact: %w", err)
	}
	return inboxID, companyID, provider, phone, nil
}

// UserHasChatAccess reports whether the user belongs to the chat's company.
// Used by the socket hub before letting a client join a chat room.
func (s *Store) UserHasChatAccess(ctx context.Context, userID, chatID string) (bool, error) {
	var ok bool
	err := s.pool.QueryRow(ctx, `
		select exists (
			select 1 from chats c
			join users u on u.company_id = c.company_id
			where c.id = $1 and u.id = $2
		)`, chatID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("failed to check chat access: %w", err)
	}
	return ok, nil
}

// WebhookSubscriptions returns active subscriptions for a company that are
// registered for the given event.
func (s *Store) WebhookSubscriptions(ctx context.Context, companyID, event string) ([]models.WebhookSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		select id, company_id, url, coalesce(secret, ''), events
		from webhook_subscriptions
		where company_id = $1 and is_active and $2 = any(events)`,
		companyID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.WebhookSubscription
	for rows.Next() {
		sub := models.WebhookSubscription{IsActive: true}
		if err := rows.Scan(&sub.ID, &sub.CompanyID, &sub.URL, &sub.Secret, &sub.Events); err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// CreateWebhookSubscription registers a new endpoint for a company.
func (s *Store) CreateWebhookSubscription(ctx context.Context, sub *models.WebhookSubscription) error {
	err := s.pool.QueryRow(ctx, `
		insert into webhook_subscriptions (company_id, url, secret, events, is_active)
		values ($1, $2, $3, $4, true)
		returning id`,
		sub.CompanyID, sub.URL, nullable(sub.Secret), sub.Events).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	sub.IsActive = true
	return nil
}

// ListWebhookSubscriptions returns every subscription for a company,
// active or not.
func (s *Store) ListWebhookSubscriptions(ctx context.Context, companyID string) ([]models.WebhookSubscription, error) {
	rows, err := s.pool.Query(ctx, `
		select id, company_id, url, coalesce(secret, ''), events, is_active
		from webhook_subscriptions
		where company_id = $1
		order by id`, companyID)
	if err != nil {
		return nil, fmt.Errorf("failed to list webhook subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.WebhookSubscription
	for rows.Next() {
		var sub models.WebhookSubscription
		if err := rows.Scan(&sub.ID, &sub.CompanyID, &sub.URL, &sub.Secret, &sub.Events, &sub.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// DeleteWebhookSubscription removes a subscription. Returns false when no
// row matched.
func (s *Store) DeleteWebhookSubscription(ctx context.Context, companyID, subscriptionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		delete from webhook_subscriptions
		where id = $1 and company_id = $2`, subscriptionID, companyID)
	if err != nil {
		return false, fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListChats returns the most recently active chats for a company.
func (s *Store) ListChats(ctx context.Context, companyID string, limit int) ([]models.ChatSummary, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		select c.id, c.company_id, c.inbox_id, c.customer_id,
		       coalesce(cu.name, ''), coalesce(cu.phone, ''),
		       coalesce(c.last_message, ''), c.last_message_at,
		       c.unread_count, c.status
		from chats c
		join customers cu on cu.id = c.customer_id
		where c.company_id = $1
		order by c.last_message_at desc nulls last
		limit $2`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.ChatSummary
	for rows.Next() {
		var sum models.ChatSummary
		var lastMessageAt *time.Time
		if err := rows.Scan(&sum.ChatID, &sum.CompanyID, &sum.InboxID, &sum.CustomerID,
			&sum.CustomerName, &sum.CustomerPhone, &sum.LastMessage, &lastMessageAt,
			&sum.UnreadCount, &sum.Status); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		if lastMessageAt != nil {
			sum.LastMessageAt = *lastMessageAt
		}
		chats = append(chats, sum)
	}
	return chats, rows.Err()
}

// ListMessages returns a page of messages for a chat, newest first.
func (s *Store) ListMessages(ctx context.Context, chatID string, limit int) ([]models.ChatMessageView, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		select id, chat_id, coalesce(body, ''), sender_type, coalesce(sender_id::text, ''),
		       type, view_status, coalesce(external_id, ''), coalesce(media_url, ''),
		       is_private, created_at
		from messages
		where chat_id = $1
		order by created_at desc
		limit $2`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.ChatMessageView
	for rows.Next() {
		var m models.ChatMessageView
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Body, &m.SenderType, &m.SenderID,
			&m.Type, &m.ViewStatus, &m.ExternalID, &m.MediaURL,
			&m.IsPrivate, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkChatRead zeroes the unread counter.
func (s *Store) MarkChatRead(ctx context.Context, chatID string) error {
	_, err := s.pool.Exec(ctx, `update chats set unread_count = 0 where id = $1`, chatID)
	if err != nil {
		return fmt.Errorf("failed to mark chat read: %w", err)
	}
	return nil
}

// nullable maps empty strings to NULL so unique indexes on optional columns
// behave.
func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
