package infra

import (
	"context"
	"net/http"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"github.com/gin-gonic/gin"
)

// WorkerTypes is every worker role a lock can be held for.
var WorkerTypes = []string{"inbound", "outbound", "media", "campaigns", "webhooks"}

// QueueStatus is one row of the queue depth report.
type QueueStatus struct {
	Name      string `json:"name"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
	Error     string `json:"error,omitempty"`
}

// Controller exposes operational state for dashboards. Every endpoint is
// fail-open: a dead broker or Redis degrades the report, never the request.
type Controller struct {
	Resolver *services.InboxResolver
}

func NewController(resolver *services.InboxResolver) *Controller {
	return &Controller{Resolver: resolver}
}

// Workers reports which worker instances currently hold their locks.
// GET /admin/infra/workers
func (ct *Controller) Workers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	statuses := utils.LockStatuses(ctx, utils.GetRedisClient(), WorkerTypes)
	c.JSON(http.StatusOK, gin.H{"workers": statuses})
}

// Queues reports depth and consumer counts for every work queue.
// GET /admin/infra/queues
func (ct *Controller) Queues(c *gin.Context) {
	out := make([]QueueStatus, 0, len(queue.ConsumerQueues))
	for _, name := range queue.ConsumerQueues {
		q, err := queue.Inspect(name)
		if err != nil {
			out = append(out, QueueStatus{Name: name, Error: err.Error()})
			continue
		}
		out = append(out, QueueStatus{Name: name, Messages: q.Messages, Consumers: q.Consumers})
	}
	c.JSON(http.StatusOK, gin.H{"queues": out})
}

// Cache reports inbox resolver hit rates.
// GET /admin/infra/cache
func (ct *Controller) Cache(c *gin.Context) {
	if ct.Resolver == nil {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	hits, misses, hitRate := ct.Resolver.Stats()
	c.JSON(http.StatusOK, gin.H{
		"hits":     hits,
		"misses":   misses,
		"hit_rate": hitRate,
	})
}
