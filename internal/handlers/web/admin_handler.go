package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prayercircle/prayercircle/internal/authflow"
	"github.com/prayercircle/prayercircle/internal/middlewares"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/model"
)

// AdminHandler covers the member-management surface: invites, role
// grants, feature flags. Invite issuing is open to every full member;
// everything else is admin-only.
type AdminHandler struct {
	sessionService SessionService
	userService    UserService
	systemService  SystemService
}

func (h *AdminHandler) requireFullUser(ctx *fiber.Ctx) (*model.User, error) {
	user, ok := middlewares.CurrentUser(ctx)
	session, _ := middlewares.CurrentSession(ctx)
	if !ok {
		return nil, sessions.ErrNoSession
	}
	if err := h.sessionService.RequireFull(session); err != nil {
		return nil, err
	}
	return user, nil
}

func (h *AdminHandler) requireAdmin(ctx *fiber.Ctx) (*model.User, error) {
	user, err := h.requireFullUser(ctx)
	if err != nil {
		return nil, err
	}
	isAdmin, err := h.userService.IsAdmin(ctx.Context(), user.ID)
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		return nil, authflow.ErrNotAdmin
	}
	return user, nil
}

type issueInviteRequest struct {
	Note string `json:"note"`
}

type inviteResponse struct {
	Token     string    `json:"token"`
	Note      string    `json:"note,omitempty"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *AdminHandler) PostInvite(ctx *fiber.Ctx) error {
	user, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	var body issueInviteRequest
	if err := ctx.BodyParser(&body); err != nil && len(ctx.Body()) > 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "invalid request body"),
		)
	}
	invite, err := h.systemService.IssueInvite(ctx.Context(), user.ID, body.Note)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(inviteResponse{
		Token:     invite.Token,
		Note:      invite.Note,
		ExpiresAt: invite.ExpiresAt,
	}))
}

type roleChangeRequest struct {
	Username  string     `json:"username"`
	Role      string     `json:"role"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (h *AdminHandler) parseRoleChange(ctx *fiber.Ctx) (*model.User, *roleChangeRequest, error) {
	var body roleChangeRequest
	if err := ctx.BodyParser(&body); err != nil || body.Username == "" || body.Role == "" {
		return nil, nil, fiber.NewError(fiber.StatusBadRequest, "username and role are required")
	}
	target, err := h.userService.GetUserByName(ctx.Context(), body.Username)
	if err != nil {
		return nil, nil, err
	}
	return target, &body, nil
}

func (h *AdminHandler) PostGrantRole(ctx *fiber.Ctx) error {
	admin, err := h.requireAdmin(ctx)
	if err != nil {
		return err
	}
	target, body, err := h.parseRoleChange(ctx)
	if err != nil {
		return err
	}
	if err := h.userService.GrantRole(ctx.Context(), target.ID, body.Role, admin.ID, body.ExpiresAt); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"granted": true}))
}

func (h *AdminHandler) PostRevokeRole(ctx *fiber.Ctx) error {
	admin, err := h.requireAdmin(ctx)
	if err != nil {
		return err
	}
	target, body, err := h.parseRoleChange(ctx)
	if err != nil {
		return err
	}
	if err := h.userService.RevokeRole(ctx.Context(), target.ID, body.Role, admin.ID); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"revoked": true}))
}

type featureFlagRequest struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (h *AdminHandler) PostFeatureFlag(ctx *fiber.Ctx) error {
	admin, err := h.requireAdmin(ctx)
	if err != nil {
		return err
	}
	var body featureFlagRequest
	if err := ctx.BodyParser(&body); err != nil || body.Name == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "name is required"),
		)
	}
	if err := h.systemService.SetFeatureFlag(ctx.Context(), body.Name, body.Enabled, admin.ID); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"name": body.Name, "enabled": body.Enabled}))
}

type flagEntry struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

func (h *AdminHandler) GetFeatureFlags(ctx *fiber.Ctx) error {
	if _, err := h.requireAdmin(ctx); err != nil {
		return err
	}
	flags, err := h.systemService.ListFlags(ctx.Context())
	if err != nil {
		return err
	}
	entries := make([]flagEntry, 0, len(flags))
	for _, flag := range flags {
		entries = append(entries, flagEntry{Name: flag.Name, Enabled: flag.Enabled})
	}
	return ctx.JSON(NewDataResponse(entries))
}

func NewAdminHandler(sessionService SessionService, userService UserService, systemService SystemService) *AdminHandler {
	return &AdminHandler{
		sessionService: sessionService,
		userService:    userService,
		systemService:  systemService,
	}
}
