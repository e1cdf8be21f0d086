package utils

import "github.com/gofiber/fiber/v2"

// ErrorResponse is the wire shape for failed requests. Details carries
// caller-safe context only; internal error text stays in logs.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SendError sends an error JSON response with the given status code.
func SendError(c *fiber.Ctx, status int, message string, details ...string) error {
	if message == "" {
		message = "error"
	}

	response := ErrorResponse{Error: message}
	if len(details) > 0 {
		response.Details = details[0]
	}

	return c.Status(status).JSON(response)
}
