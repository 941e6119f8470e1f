package handler

import (
	"net/http"

	"newsletter-relay/internal/commands"
	"newsletter-relay/internal/domain/idempotency"
	"newsletter-relay/internal/middleware"
	"newsletter-relay/internal/services"
	"newsletter-relay/internal/transport/httpdto"

	"github.com/gin-gonic/gin"
)

type NewsletterHandler struct {
	executor *services.CommandExecutor
}

func NewNewsletterHandler(executor *services.CommandExecutor) *NewsletterHandler {
	return &NewsletterHandler{executor: executor}
}

// Publish accepts a newsletter issue. A retried request with the same
// idempotency key gets the first response back byte for byte.
func (h *NewsletterHandler) Publish(c *gin.Context) {
	actorID, ok := services.ActorIDFromContext(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", httpdto.CodeUnauthorized))
		return
	}

	var req httpdto.PublishNewsletterRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse("invalid request", httpdto.CodeInvalidRequest))
		return
	}

	result, err := h.executor.Execute(c.Request.Context(), actorID, req.ToCommand())
	if err != nil {
		writeCommandError(c, err)
		return
	}
	if !result.Replayed {
		middleware.MarkPublishAccepted(c)
	}
	writeSavedResponse(c, result.Response)
}

func writeSavedResponse(c *gin.Context, resp idempotency.Response) {
	header := c.Writer.Header()
	for _, h := range resp.Headers {
		header.Add(h.Name, string(h.Value))
	}
	c.Status(resp.StatusCode)
	_, _ = c.Writer.Write(resp.Body)
}

func writeCommandError(c *gin.Context, err error) {
	switch commands.KindOf(err) {
	case commands.KindValidation:
		c.JSON(http.StatusBadRequest, httpdto.NewErrorResponse(err.Error(), httpdto.CodeInvalidRequest))
	case commands.KindClaimRace:
		c.Header("Retry-After", "1")
		c.JSON(http.StatusConflict, httpdto.NewErrorResponse(err.Error(), httpdto.CodeInFlight))
	default:
		// Internal details stay in the logs.
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, httpdto.NewErrorResponse("failed to publish newsletter issue", httpdto.CodeInternal))
	}
}
