package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"github.com/lexportal/claimshield/pkg/middleware"
)

// LoginHandler is a stand-in for the session service this portal delegates
// to. It exists so the login rate-limit and sanitization path is wired end to
// end; credential verification happens upstream.
type LoginHandler struct {
	*BaseHandler
}

func NewLoginHandler(logger *logrus.Logger) *LoginHandler {
	return &LoginHandler{BaseHandler: NewBaseHandler(logger)}
}

func (h *LoginHandler) Handle(c *fiber.Ctx) error {
	payload := middleware.SanitizedPayload(c)
	if payload == nil {
		return h.HandleErrorResponse(c, fiber.StatusBadRequest, "login payload must be a JSON object")
	}

	email, _ := payload["email"].(string)
	if email == "" {
		return h.HandleErrorResponse(c, fiber.StatusBadRequest, "email is required")
	}

	return h.HandleSuccessResponse(c, fiber.StatusOK, fiber.Map{
		"email": email,
	})
}
