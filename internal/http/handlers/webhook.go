package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/keyresult-tracker/internal/http/response"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
	"github.com/yungbote/keyresult-tracker/internal/services"
)

type WebhookHandlerDeps struct {
	Log     *logger.Logger
	Webhook services.WebhookService
}

type WebhookHandler struct {
	log     *logger.Logger
	webhook services.WebhookService
}

func NewWebhookHandlerWithDeps(deps WebhookHandlerDeps) *WebhookHandler {
	return &WebhookHandler{
		log:     deps.Log.With("handler", "WebhookHandler"),
		webhook: deps.Webhook,
	}
}

// POST /api/v1/key-results/webhook/metric-update
func (h *WebhookHandler) MetricUpdate(c *gin.Context) {
	var req services.MetricUpdateRequest
	if !bindJSON(c, "webhook.metric_update", &req) {
		return
	}
	view, err := h.webhook.HandleMetric(c.Request.Context(), req)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, view)
}

// POST /api/v1/key-results/webhook/bulk-metric-update
//
// Item failures are reported in the body; the response is 200 unless the
// envelope itself is invalid.
func (h *WebhookHandler) BulkMetricUpdate(c *gin.Context) {
	var req services.BulkMetricUpdateRequest
	if !bindJSON(c, "webhook.bulk", &req) {
		return
	}
	out, err := h.webhook.HandleBulk(c.Request.Context(), req)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/v1/key-results/webhook/health
func (h *WebhookHandler) Health(c *gin.Context) {
	response.RespondOK(c, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}
