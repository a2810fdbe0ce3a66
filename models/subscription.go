package models

// WebhookSubscription is one customer-registered endpoint that receives
// application events (message.created etc.) signed with its secret.
type WebhookSubscription struct {
	ID        string   `json:"id"`
	CompanyID string   `json:"companyId"`
	URL       string   `json:"url"`
	Secret    string   `json:"-"`
	Events    []string `json:"events"`
	IsActive  bool     `json:"isActive"`
}
