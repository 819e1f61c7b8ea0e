package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

type CookieConfig struct {
	Name     string
	MaxAge   time.Duration
	Secure   bool
	HttpOnly bool
}

func setSessionCookie(ctx *fiber.Ctx, config CookieConfig, sessionID string) {
	fcookie := fasthttp.AcquireCookie()
	fcookie.SetKey(config.Name)
	fcookie.SetValue(sessionID)
	fcookie.SetPath("/")
	fcookie.SetSecure(config.Secure)
	fcookie.SetHTTPOnly(config.HttpOnly)
	fcookie.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	fcookie.SetMaxAge(int(config.MaxAge.Seconds()))
	fcookie.SetExpire(time.Now().Add(config.MaxAge))
	ctx.Response().Header.SetCookie(fcookie)
	fasthttp.ReleaseCookie(fcookie)
}

func clearSessionCookie(ctx *fiber.Ctx, config CookieConfig) {
	fcookie := fasthttp.AcquireCookie()
	fcookie.SetKey(config.Name)
	fcookie.SetValue("")
	fcookie.SetPath("/")
	fcookie.SetMaxAge(-1)
	fcookie.SetExpire(fasthttp.CookieExpireDelete)
	ctx.Response().Header.SetCookie(fcookie)
	fasthttp.ReleaseCookie(fcookie)
}
