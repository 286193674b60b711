package http

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/storedetect/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, internal_error, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: reqID,
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errorCode maps domain sentinels onto stable error codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionBlocked):
		return "permission_blocked"
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrLocationTimeout):
		return "location_timeout"
	case errors.Is(err, domain.ErrLocationUnavailable):
		return "location_unavailable"
	case errors.Is(err, domain.ErrNoStoreFound):
		return "no_store_found"
	case domain.IsDirectoryFailure(err):
		return "directory_unavailable"
	case errors.Is(err, domain.ErrNoDetection):
		return "no_detection"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidCoordinates),
		errors.Is(err, domain.ErrInvalidDeviceID),
		errors.Is(err, domain.ErrInvalidGeofence):
		return "bad_request"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal_error"
	}
}

// respondError writes err with the status matching its error code.
func respondError(c *fiber.Ctx, err error) error {
	code := errorCode(err)
	status := 500
	switch code {
	case "bad_request":
		status = 400
	case "permission_denied", "permission_blocked":
		status = 403
	case "not_found", "no_store_found":
		status = 404
	case "no_detection":
		status = 409
	case "directory_unavailable", "location_unavailable":
		status = 503
	case "location_timeout", "timeout":
		status = 504
	}
	if status == 500 {
		LoggerFromCtx(c.UserContext()).Error("request failed", "path", c.Path(), "error", err)
		return errInternal(c, "internal server error")
	}
	return newError(c, status, code, err.Error())
}
