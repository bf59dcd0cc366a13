package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/lexportal/claimshield/pkg/middleware"
)

// UpdateContentHandler mutates portal content. Unlike claim intake, content
// mutation refuses payloads that triggered any detection: rendered admin
// content must never carry even sanitized remnants of an attack payload.
type UpdateContentHandler struct {
	*BaseHandler
}

func NewUpdateContentHandler(logger *logrus.Logger) *UpdateContentHandler {
	return &UpdateContentHandler{BaseHandler: NewBaseHandler(logger)}
}

func (h *UpdateContentHandler) Handle(c *fiber.Ctx) error {
	payload := middleware.SanitizedPayload(c)
	if payload == nil {
		return h.HandleErrorResponse(c, fiber.StatusBadRequest, "content payload must be a JSON object")
	}

	if threats := middleware.DetectedThreats(c); len(threats) > 0 {
		h.logger.WithField("fields", len(threats)).Warn("content update rejected on detected threats")
		return h.HandleErrorResponse(c, fiber.StatusBadRequest, "content rejected: suspicious input detected")
	}

	return h.HandleSuccessResponse(c, fiber.StatusOK, fiber.Map{
		"content": payload,
	})
}
