package handler

import (
	"net/http"

	"newsletter-relay/internal/services"
	"newsletter-relay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type OutboxHandler struct {
	service *services.OutboxService
}

func NewOutboxHandler(service *services.OutboxService) *OutboxHandler {
	return &OutboxHandler{service: service}
}

func (h *OutboxHandler) Stats(c *gin.Context) {
	var issueID *uuid.UUID
	if raw := c.Query("issue_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid issue_id", httpdto.CodeInvalidRequest))
			return
		}
		issueID = &id
	}

	pending, err := h.service.Pending(c.Request.Context(), issueID)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("failed to read outbox", httpdto.CodeInternal))
		return
	}

	resp := httpdto.OutboxStatsResponse{Pending: pending}
	if issueID != nil {
		resp.IssueID = issueID.String()
	} else {
		issues, err := h.service.PublishedIssues(c.Request.Context())
		if err != nil {
			_ = c.Error(err)
			c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("failed to read outbox", httpdto.CodeInternal))
			return
		}
		resp.Issues = &issues
	}
	c.JSON(http.StatusOK, httpdto.NewSuccessResponse(resp))
}
