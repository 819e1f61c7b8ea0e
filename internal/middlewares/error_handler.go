package middlewares

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/prayercircle/prayercircle/internal/authflow"
	"github.com/prayercircle/prayercircle/internal/prayers"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/internal/system"
	"github.com/prayercircle/prayercircle/internal/users"
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type apiErrorResponse struct {
	APIVersion string   `json:"apiVersion"`
	Error      apiError `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, sessions.ErrNoSession),
		errors.Is(err, sessions.ErrInvalidSession),
		errors.Is(err, sessions.ErrExpiredSession),
		errors.Is(err, sessions.ErrUserDeleted):
		return fiber.StatusUnauthorized
	case errors.Is(err, sessions.ErrAccountDeactivated),
		errors.Is(err, sessions.ErrFullAuthRequired),
		errors.Is(err, authflow.ErrNotAdmin),
		errors.Is(err, authflow.ErrMultiDeviceDisabled),
		errors.Is(err, prayers.ErrNotPermitted):
		return fiber.StatusForbidden
	case errors.Is(err, authflow.ErrRequestNotFound),
		errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, users.ErrRoleNotFound),
		errors.Is(err, prayers.ErrPrayerNotFound),
		errors.Is(err, system.ErrInviteNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, authflow.ErrAlreadyResolved),
		errors.Is(err, users.ErrNameTaken),
		errors.Is(err, users.ErrRoleAlreadyGranted),
		errors.Is(err, prayers.ErrPrayerClosed),
		errors.Is(err, system.ErrInviteUsed):
		return fiber.StatusConflict
	case errors.Is(err, system.ErrInviteExpired):
		return fiber.StatusGone
	case errors.Is(err, authflow.ErrRateLimited):
		return fiber.StatusTooManyRequests
	}
	if e, ok := err.(*fiber.Error); ok {
		return e.Code
	}
	return fiber.StatusInternalServerError
}

// ErrorHandler maps service errors onto JSON API error responses. Unknown
// errors are logged and masked as 500s.
func ErrorHandler(ctx *fiber.Ctx, err error) error {
	code := statusFor(err)
	message := err.Error()
	if code == fiber.StatusInternalServerError {
		slog.Error("unhandled error", "path", ctx.Path(), "error", err)
		message = "Internal server error"
	}
	return ctx.Status(code).JSON(apiErrorResponse{
		APIVersion: "1.0",
		Error: apiError{
			Code:    code,
			Message: message,
		},
	})
}
