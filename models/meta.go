package models

// Meta Cloud API webhook payload structures.
// Field names follow the Graph API wire format exactly.

type MetaWebhookBody struct {
	Object string      `json:"object"`
	Entry  []MetaEntry `json:"entry"`
}

type MetaEntry struct {
	ID      string       `json:"id"`
	Changes []MetaChange `json:"changes"`
}

type MetaChange struct {
	Field string          `json:"field"`
	Value MetaChangeValue `json:"value"`
}

type MetaChangeValue struct {
	MessagingProduct string        `json:"messaging_product,omitempty"`
	Metadata         MetaMetadata  `json:"metadata"`
	Contacts         []MetaContact `json:"contacts,omitempty"`
	Messages         []MetaMessage `json:"messages,omitempty"`
	Statuses         []MetaStatus  `json:"statuses,omitempty"`
}

type MetaMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type MetaContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type MetaMessage struct {
	From      string     `json:"from"`
	ID        string     `json:"id"`
	Timestamp string     `json:"timestamp"`
	Type      string     `json:"type"`
	Text      *MetaText  `json:"text,omitempty"`
	Image     *MetaMedia `json:"image,omitempty"`
	Audio     *MetaMedia `json:"audio,omitempty"`
	Video     *MetaMedia `json:"video,omitempty"`
	Document  *MetaMedia `json:"document,omitempty"`
	Sticker   *MetaMedia `json:"sticker,omitempty"`
}

type MetaText struct {
	Body string `json:"body"`
}

type MetaMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

type MetaStatus struct {
	ID          string      `json:"id"`
	Status      string      `json:"status"`
	Timestamp   string      `json:"timestamp"`
	RecipientID string      `json:"recipient_id"`
	Errors      []MetaError `json:"errors,omitempty"`
}

type MetaError struct {
	Code    int    `json:"code"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// Media returns the media attachment for media-typed messages, nil otherwise.
func (m *MetaMessage) Media() *MetaMedia {
	switch m.Type {
	case "image":
		return m.Image
	case "audio":
		return m.Audio
	case "video":
		return m.Video
	case "document":
		return m.Document
	case "sticker":
		return m.Sticker
	}
	return nil
}

// FirstPhoneNumberID walks entries and changes until it finds a
// phone_number_id, used to pick the signing secret for a webhook batch.
func (b *MetaWebhookBody) FirstPhoneNumberID() string {
	for _, entry := range b.Entry {
		for _, change := range entry.Changes {
			if change.Value.Metadata.PhoneNumberID != "" {
				return change.Value.Metadata.PhoneNumberID
			}
		}
	}
	return ""
}

// ContactName returns the profile name announced for the given wa_id, if any.
func (v *MetaChangeValue) ContactName(waID string) string {
	for _, c := range v.Contacts {
		if c.WaID == waID {
			return c.Profile.Name
		}
	}
	return ""
}
