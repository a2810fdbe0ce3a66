package models

// Inbox is one WhatsApp channel owned by a company.
type Inbox struct {
	ID            string `json:"id"`
	CompanyID     string `json:"companyId"`
	Name          string `json:"name"`
	Provider      string `json:"provider"`
	PhoneNumberID string `json:"phoneNumberId,omitempty"`
	PhoneNumber   string `json:"phoneNumber,omitempty"`
	IsActive      bool   `json:"isActive"`
}

// InboxCreds holds the decrypted provider credentials for one inbox.
// Never serialize these into logs or socket payloads.
type InboxCreds struct {
	AccessToken   string
	PhoneNumberID string
	AppSecret     string
	VerifyToken   string
	WahaBaseURL   string
	WahaSession   string
	WahaAPIKey    string
}
