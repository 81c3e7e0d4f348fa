package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	domainagg "github.com/yungbote/keyresult-tracker/internal/domain/aggregates"
	"github.com/yungbote/keyresult-tracker/internal/http/response"
	"github.com/yungbote/keyresult-tracker/internal/platform/logger"
	"github.com/yungbote/keyresult-tracker/internal/services"
)

type ProgressHandlerDeps struct {
	Log      *logger.Logger
	Progress services.ProgressService
}

type ProgressHandler struct {
	log      *logger.Logger
	progress services.ProgressService
}

func NewProgressHandlerWithDeps(deps ProgressHandlerDeps) *ProgressHandler {
	return &ProgressHandler{
		log:      deps.Log.With("handler", "ProgressHandler"),
		progress: deps.Progress,
	}
}

// POST /api/v1/key-results/progress
func (h *ProgressHandler) Create(c *gin.Context) {
	var req services.CreateProgressRequest
	if !bindJSON(c, "progress.create", &req) {
		return
	}
	view, err := h.progress.Create(c.Request.Context(), req)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	setETag(c, view.Version)
	response.RespondCreated(c, view)
}

// GET /api/v1/key-results/progress
func (h *ProgressHandler) List(c *gin.Context) {
	out, err := h.progress.List(c.Request.Context(), services.ProgressQuery{
		KeyResultID: c.Query("keyResultId"),
		ObjectiveID: c.Query("objectiveId"),
		Status:      c.Query("status"),
		StartDate:   c.Query("startDate"),
		EndDate:     c.Query("endDate"),
		LatestOnly:  c.Query("latestOnly"),
		Limit:       c.Query("limit"),
		Offset:      c.Query("offset"),
	})
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, out)
}

// GET /api/v1/key-results/progress/:id
func (h *ProgressHandler) Get(c *gin.Context) {
	view, err := h.progress.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	setETag(c, view.Version)
	response.RespondOK(c, view)
}

// PUT /api/v1/key-results/progress/:id
//
// An If-Match header carrying the record version makes the update
// conditional.
func (h *ProgressHandler) Update(c *gin.Context) {
	expected, err := parseIfMatch(c.GetHeader("If-Match"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	var req services.UpdateProgressRequest
	if !bindJSON(c, "progress.update", &req) {
		return
	}
	view, err := h.progress.Update(c.Request.Context(), c.Param("id"), req, expected)
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	setETag(c, view.Version)
	response.RespondOK(c, view)
}

// DELETE /api/v1/key-results/progress/:id
func (h *ProgressHandler) Delete(c *gin.Context) {
	if err := h.progress.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DELETE /api/v1/admin/key-results/progress/:id
func (h *ProgressHandler) HardDelete(c *gin.Context) {
	if err := h.progress.HardDelete(c.Request.Context(), c.Param("id")); err != nil {
		response.RespondDomainError(c, err)
		return
	}
	h.log.Warn("progress record hard deleted", "record_id", c.Param("id"))
	c.Status(http.StatusNoContent)
}

// GET /api/v1/key-results/:keyResultId/latest
func (h *ProgressHandler) Latest(c *gin.Context) {
	view, err := h.progress.GetLatest(c.Request.Context(), c.Param("keyResultId"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	setETag(c, view.Version)
	response.RespondOK(c, view)
}

// GET /api/v1/key-results/:keyResultId/history
func (h *ProgressHandler) History(c *gin.Context) {
	views, err := h.progress.History(c.Request.Context(), c.Param("keyResultId"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, views)
}

// GET /api/v1/key-results/:keyResultId/summary
func (h *ProgressHandler) Summary(c *gin.Context) {
	sum, err := h.progress.Summary(c.Request.Context(), c.Param("keyResultId"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, sum)
}

// GET /api/v1/key-results/:keyResultId/trend
func (h *ProgressHandler) Trend(c *gin.Context) {
	snap, err := h.progress.Trend(c.Request.Context(), c.Param("keyResultId"))
	if err != nil {
		response.RespondDomainError(c, err)
		return
	}
	response.RespondOK(c, snap)
}

func bindJSON(c *gin.Context, op string, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.RespondDomainError(c, domainagg.NewValidation(op, domainagg.FieldError{
			Field:   "body",
			Message: "must be valid JSON: " + err.Error(),
		}))
		return false
	}
	return true
}

func setETag(c *gin.Context, version int) {
	c.Header("ETag", `"`+strconv.Itoa(version)+`"`)
}

// parseIfMatch accepts `"3"`, `W/"3"` or a bare 3.
func parseIfMatch(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil, nil
	}
	raw = strings.TrimPrefix(raw, "W/")
	raw = strings.Trim(raw, `"`)
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		if err == nil {
			err = errors.New("version must be >= 1")
		}
		return nil, domainagg.NewValidation("progress.update", domainagg.FieldError{
			Field:   "If-Match",
			Message: "must carry a record version: " + err.Error(),
		})
	}
	return &v, nil
}
