package subscription

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log"
	"net/http"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"

	"github.com/gin-gonic/gin"
)

// CreateSubscriptionRequest is the body for registering an outgoing webhook.
type CreateSubscriptionRequest struct {
	CompanyID  string   `json:"company_id" binding:"required"`
	URL        string   `json:"url" binding:"required,url"`
	Events     []string `json:"events"`
	EnableAuth *bool    `json:"enable_auth"` // defaults to true
}

// SubscriptionResponse mirrors a subscription row. The secret is only
// returned on creation.
type SubscriptionResponse struct {
	ID        string   `json:"id"`
	CompanyID string   `json:"company_id"`
	URL       string   `json:"url"`
	Events    []string `json:"events"`
	Secret    string   `json:"secret,omitempty"`
	IsActive  bool     `json:"is_active"`
}

// Controller manages the webhook subscriptions that the dispatch worker
// delivers to.
type Controller struct {
	Store *services.Store
}

func NewController(store *services.Store) *Controller {
	return &Controller{Store: store}
}

// Create registers a subscription and returns its signing secret once.
// POST /api/webhook-subscriptions
func (ct *Controller) Create(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Events) == 0 {
		req.Events = []string{"message.created"}
	}

	sub := models.WebhookSubscription{
		CompanyID: req.CompanyID,
		URL:       req.URL,
		Events:    req.Events,
	}
	if req.EnableAuth == nil || *req.EnableAuth {
		secret, err := generateSecret()
		if err != nil {
			log.Printf("[SUBSCRIPTION] Failed to generate secret: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to generate secret"})
			return
		}
		sub.Secret = secret
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := ct.Store.CreateWebhookSubscription(ctx, &sub); err != nil {
		log.Printf("[SUBSCRIPTION] Failed to create subscription: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create subscription"})
		return
	}

	log.Printf("[SUBSCRIPTION] Created subscription %s for company=%s", sub.ID, sub.CompanyID)
	c.JSON(http.StatusCreated, SubscriptionResponse{
		ID:        sub.ID,
		CompanyID: sub.CompanyID,
		URL:       sub.URL,
		Events:    sub.Events,
		Secret:    sub.Secret,
		IsActive:  sub.IsActive,
	})
}

// List returns a company's subscriptions without secrets.
// GET /api/webhook-subscriptions?companyId=...
func (ct *Controller) List(c *gin.Context) {
	companyID := c.Query("companyId")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "companyId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	subs, err := ct.Store.ListWebhookSubscriptions(ctx, companyID)
	if err != nil {
		log.Printf("[SUBSCRIPTION] Failed to list subscriptions for company %s: %v", companyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list subscriptions"})
		return
	}

	out := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		out = append(out, SubscriptionResponse{
			ID:        sub.ID,
			CompanyID: sub.CompanyID,
			URL:       sub.URL,
			Events:    sub.Events,
			IsActive:  sub.IsActive,
		})
	}
	c.JSON(http.StatusOK, gin.H{"subscriptions": out})
}

// Delete removes a subscription.
// DELETE /api/webhook-subscriptions/:id?companyId=...
func (ct *Controller) Delete(c *gin.Context) {
	subscriptionID := c.Param("id")
	companyID := c.Query("companyId")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "companyId is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	deleted, err := ct.Store.DeleteWebhookSubscription(ctx, companyID, subscriptionID)
	if err != nil {
		log.Printf("[SUBSCRIPTION] Failed to delete subscription %s: %v", subscriptionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete subscription"})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}

	log.Printf("[SUBSCRIPTION] Deleted subscription %s for company=%s", subscriptionID, companyID)
	c.JSON(http.StatusOK, gin.H{"message": "subscription deleted"})
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
