package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"docqa/internal/http/middleware"
)

// Error codes returned in the error envelope.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeFilesRequired      = "FILES_REQUIRED"
	CodeQuestionRequired   = "QUESTION_REQUIRED"
	CodeInvalidID          = "INVALID_ID"
	CodeInvalidLimit       = "INVALID_LIMIT"
	CodeInvalidOffset      = "INVALID_OFFSET"
	CodeInvalidStatus      = "INVALID_STATUS"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeNoDocuments        = "NO_DOCUMENTS"
	CodeUploadFailed       = "UPLOAD_FAILED"
	CodeAskFailed          = "ASK_FAILED"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeInternal           = "INTERNAL_ERROR"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError writes a standardized JSON error response.
//
// Only UPLOAD_FAILED and ASK_FAILED carry the underlying error text; every
// other code uses a fixed message.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(errorPayload{
		RequestID: middleware.GetRequestID(c),
		Error:     errorEnvelope{Code: code, Message: message},
	})
}

func internalError(c *fiber.Ctx) error {
	return writeError(c, fiber.StatusInternalServerError, CodeInternal, "internal server error")
}

// ErrorHandler returns a Fiber global error handler that standardizes error
// responses, including those for recovered panics and oversized bodies.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, CodeBadRequest, "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, CodeNotFound, "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, CodeMethodNotAllowed, "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, CodePayloadTooLarge, "request body too large")
		default:
			return writeError(c, status, CodeInternal, "internal server error")
		}
	}
}
