package response

import (
	"github.com/gofiber/fiber/v2"
	"github.com/mediagrab/api/internal/model"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func Error(c *fiber.Ctx, status int, code model.ErrorCode, message string, details interface{}) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Code:    string(code),
			Message: message,
			Details: details,
		},
	})
}

// StatusOf maps an error code to its HTTP status.
func StatusOf(code model.ErrorCode) int {
	switch code {
	case model.CodeInvalidRequest:
		return fiber.StatusBadRequest
	case model.CodeDiscoveryFailed, model.CodeExecutionFailed:
		return fiber.StatusBadGateway
	case model.CodeStreamingFailed, model.CodeNotFound:
		return fiber.StatusNotFound
	case model.CodeRateLimited:
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

// FromError renders err with the status of its classification. Unclassified
// errors become a generic service error without leaking internals.
func FromError(c *fiber.Ctx, err error) error {
	e, ok := model.AsError(err)
	if !ok {
		return ServiceError(c, "Internal server error")
	}
	var details interface{}
	if e.Detail != "" {
		details = e.Detail
	}
	return Error(c, StatusOf(e.Code), e.Code, e.Message, details)
}

// ErrorHandler renders errors that escape a handler, such as unknown routes
// or oversized bodies, in the standard envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		status = e.Code
		message = e.Message
	}

	code := model.CodeInternal
	switch {
	case status == fiber.StatusNotFound || status == fiber.StatusMethodNotAllowed:
		code = model.CodeNotFound
	case status == fiber.StatusTooManyRequests:
		code = model.CodeRateLimited
	case status >= 400 && status < 500:
		code = model.CodeInvalidRequest
	}
	return Error(c, status, code, message, nil)
}

func ValidationError(c *fiber.Ctx, message string, details interface{}) error {
	return Error(c, fiber.StatusBadRequest, model.CodeInvalidRequest, message, details)
}

func NotFound(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusNotFound, model.CodeNotFound, message, nil)
}

func RateLimited(c *fiber.Ctx) error {
	return Error(c, fiber.StatusTooManyRequests, model.CodeRateLimited, "Rate limit exceeded", nil)
}

func ServiceError(c *fiber.Ctx, message string) error {
	return Error(c, fiber.StatusInternalServerError, model.CodeInternal, message, nil)
}

func OK(c *fiber.Ctx, data interface{}) error {
	return c.JSON(data)
}

func Accepted(c *fiber.Ctx, data interface{}) error {
	return c.Status(fiber.StatusAccepted).JSON(data)
}
