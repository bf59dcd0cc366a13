package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lexportal/claimshield/pkg/middleware"
)

// SubmitClaimHandler accepts a claim intake form. The payload it sees has
// already been cleaned by the defense middleware; claims with detected
// threats are still accepted in sanitized form, per deployment policy.
type SubmitClaimHandler struct {
	*BaseHandler
}

func NewSubmitClaimHandler(logger *logrus.Logger) *SubmitClaimHandler {
	return &SubmitClaimHandler{BaseHandler: NewBaseHandler(logger)}
}

func (h *SubmitClaimHandler) Handle(c *fiber.Ctx) error {
	payload := middleware.SanitizedPayload(c)
	if payload == nil {
		return h.HandleErrorResponse(c, fiber.StatusBadRequest, "claim payload must be a JSON object")
	}

	claimID := uuid.New()
	h.logger.WithFields(logrus.Fields{
		"claim_id": claimID,
		"fields":   len(payload),
	}).Info("claim submission accepted")

	return h.HandleSuccessResponse(c, fiber.StatusAccepted, fiber.Map{
		"claim_id": claimID,
		"claim":    payload,
	})
}
