package middlewares

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/model"
)

const (
	currentUserKey    = "currentUser"
	currentSessionKey = "currentSession"
)

type SessionResolver interface {
	Resolve(ctx context.Context, sessionID string, clientIP string, userAgent string) (*model.User, *model.Session, error)
}

// WithSession resolves the session cookie on every request and stashes
// the user and session in request locals. An absent or invalid cookie is
// not an error here; handlers that need authentication check the locals.
func WithSession(resolver SessionResolver, cookieName string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		sessionID := ctx.Cookies(cookieName)
		user, session, err := resolver.Resolve(ctx.Context(), sessionID, ctx.IP(), string(ctx.Request().Header.UserAgent()))
		if err != nil {
			if !errors.Is(err, sessions.ErrNoSession) && !errors.Is(err, sessions.ErrInvalidSession) &&
				!errors.Is(err, sessions.ErrExpiredSession) && !errors.Is(err, sessions.ErrUserDeleted) &&
				!errors.Is(err, sessions.ErrAccountDeactivated) {
				return err
			}
			return ctx.Next()
		}
		ctx.Locals(currentUserKey, user)
		ctx.Locals(currentSessionKey, session)
		return ctx.Next()
	}
}

func CurrentUser(ctx *fiber.Ctx) (*model.User, bool) {
	user, ok := ctx.Locals(currentUserKey).(*model.User)
	return user, ok
}

func CurrentSession(ctx *fiber.Ctx) (*model.Session, bool) {
	session, ok := ctx.Locals(currentSessionKey).(*model.Session)
	return session, ok
}
