package web

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prayercircle/prayercircle/internal/middlewares"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/internal/users"
	"github.com/prayercircle/prayercircle/model"
)

type AuthHandler struct {
	sessionService       SessionService
	authFlowService      AuthFlowService
	userService          UserService
	systemService        SystemService
	cookieConfig         CookieConfig
	verificationRequired bool
}

type claimRequest struct {
	Username    string `json:"username"`
	InviteToken string `json:"inviteToken,omitempty"`
}

type claimResponse struct {
	RequestID          string `json:"requestId,omitempty"`
	Status             string `json:"status,omitempty"`
	FullyAuthenticated bool   `json:"fullyAuthenticated"`
	VerificationCode   string `json:"verificationCode,omitempty"`
}

func deviceInfo(ctx *fiber.Ctx) string {
	ua := string(ctx.Request().Header.UserAgent())
	if len(ua) > 256 {
		ua = ua[:256]
	}
	return ua
}

// PostClaim starts a login as an existing username, or registers a new
// one when a valid invite token accompanies an unclaimed name. An invite
// login skips peer approval unless verification is configured on.
func (h *AuthHandler) PostClaim(ctx *fiber.Ctx) error {
	var body claimRequest
	if err := ctx.BodyParser(&body); err != nil || body.Username == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "username is required"),
		)
	}
	if _, ok := middlewares.CurrentSession(ctx); ok {
		return ctx.Status(fiber.StatusConflict).JSON(
			NewErrorResponse(fiber.StatusConflict, "already logged in"),
		)
	}

	user, err := h.userService.GetUserByName(ctx.Context(), body.Username)
	if errors.Is(err, users.ErrUserNotFound) && body.InviteToken != "" {
		return h.claimWithInvite(ctx, body)
	}
	if err != nil {
		return err
	}

	request, err := h.authFlowService.FindReusableRequest(ctx.Context(), user.ID, ctx.IP())
	if err != nil {
		return err
	}
	if request == nil {
		request, err = h.authFlowService.CreateRequest(ctx.Context(), user.ID, deviceInfo(ctx), ctx.IP(), string(ctx.Request().Header.UserAgent()))
		if err != nil {
			return err
		}
	}

	session, err := h.sessionService.Create(ctx.Context(), sessions.CreateSessionOptions{
		UserID:        user.ID,
		AuthRequestID: request.ID,
		DeviceInfo:    deviceInfo(ctx),
		IP:            ctx.IP(),
	})
	if err != nil {
		return err
	}
	setSessionCookie(ctx, h.cookieConfig, session.ID)

	return ctx.JSON(NewDataResponse(claimResponse{
		RequestID:          request.ID,
		Status:             request.Status,
		FullyAuthenticated: false,
	}))
}

func (h *AuthHandler) claimWithInvite(ctx *fiber.Ctx, body claimRequest) error {
	// a dead invite must not claim the display name, so check it before
	// the user row exists
	if _, err := h.systemService.CheckInvite(ctx.Context(), body.InviteToken); err != nil {
		return err
	}
	user, err := h.userService.CreateUser(ctx.Context(), body.Username, 0)
	if err != nil {
		return err
	}
	if _, err := h.systemService.UseInvite(ctx.Context(), body.InviteToken, user.ID, ctx.IP()); err != nil {
		return err
	}

	if !h.verificationRequired {
		session, err := h.sessionService.Create(ctx.Context(), sessions.CreateSessionOptions{
			UserID:             user.ID,
			DeviceInfo:         deviceInfo(ctx),
			IP:                 ctx.IP(),
			FullyAuthenticated: true,
		})
		if err != nil {
			return err
		}
		setSessionCookie(ctx, h.cookieConfig, session.ID)
		return ctx.JSON(NewDataResponse(claimResponse{FullyAuthenticated: true}))
	}

	request, err := h.authFlowService.CreateRequest(ctx.Context(), user.ID, deviceInfo(ctx), ctx.IP(), string(ctx.Request().Header.UserAgent()))
	if err != nil {
		return err
	}
	code, err := h.authFlowService.IssueVerificationCode(ctx.Context(), request.ID)
	if err != nil {
		return err
	}
	session, err := h.sessionService.Create(ctx.Context(), sessions.CreateSessionOptions{
		UserID:        user.ID,
		AuthRequestID: request.ID,
		DeviceInfo:    deviceInfo(ctx),
		IP:            ctx.IP(),
	})
	if err != nil {
		return err
	}
	setSessionCookie(ctx, h.cookieConfig, session.ID)

	return ctx.JSON(NewDataResponse(claimResponse{
		RequestID:          request.ID,
		Status:             request.Status,
		FullyAuthenticated: false,
		VerificationCode:   code,
	}))
}

type statusResponse struct {
	Username           string `json:"username"`
	FullyAuthenticated bool   `json:"fullyAuthenticated"`
	RequestID          string `json:"requestId,omitempty"`
	RequestStatus      string `json:"requestStatus,omitempty"`
}

// GetStatus reports the caller's authentication state. Resolving the
// session already upgraded it if the linked request was approved.
func (h *AuthHandler) GetStatus(ctx *fiber.Ctx) error {
	user, ok := middlewares.CurrentUser(ctx)
	session, _ := middlewares.CurrentSession(ctx)
	if !ok {
		return sessions.ErrNoSession
	}
	resp := statusResponse{
		Username:           user.DisplayName,
		FullyAuthenticated: session.FullyAuthenticated,
		RequestID:          session.AuthRequestID,
	}
	if session.AuthRequestID != "" {
		if status, err := h.authFlowService.GetRequestStatus(ctx.Context(), session.AuthRequestID); err == nil {
			resp.RequestStatus = status
		}
	}
	return ctx.JSON(NewDataResponse(resp))
}

type approveResponse struct {
	Recorded bool   `json:"recorded"`
	Status   string `json:"status"`
}

func (h *AuthHandler) requireFullUser(ctx *fiber.Ctx) (*model.User, *model.Session, error) {
	user, ok := middlewares.CurrentUser(ctx)
	session, _ := middlewares.CurrentSession(ctx)
	if !ok {
		return nil, nil, sessions.ErrNoSession
	}
	if err := h.sessionService.RequireFull(session); err != nil {
		return nil, nil, err
	}
	return user, session, nil
}

func (h *AuthHandler) PostApprove(ctx *fiber.Ctx) error {
	user, _, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	requestID := ctx.Params("id")
	recorded, err := h.authFlowService.Approve(ctx.Context(), requestID, user.ID, ctx.IP(), string(ctx.Request().Header.UserAgent()))
	if err != nil {
		return err
	}
	status, err := h.authFlowService.GetRequestStatus(ctx.Context(), requestID)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(approveResponse{
		Recorded: recorded,
		Status:   status,
	}))
}

func (h *AuthHandler) PostReject(ctx *fiber.Ctx) error {
	user, _, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	if err := h.authFlowService.Reject(ctx.Context(), ctx.Params("id"), user.ID, ctx.IP(), string(ctx.Request().Header.UserAgent())); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(approveResponse{Status: model.AuthRequestRejected}))
}

type verifyCodeRequest struct {
	Code string `json:"code"`
}

// PostVerifyCode lets an approver check the code a newcomer read to them
// out of band before casting a vote.
func (h *AuthHandler) PostVerifyCode(ctx *fiber.Ctx) error {
	if _, _, err := h.requireFullUser(ctx); err != nil {
		return err
	}
	var body verifyCodeRequest
	if err := ctx.BodyParser(&body); err != nil || body.Code == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "code is required"),
		)
	}
	match, err := h.authFlowService.VerifyCode(ctx.Context(), ctx.Params("id"), body.Code)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"match": match}))
}

type approvableEntry struct {
	RequestID string    `json:"requestId"`
	Username  string    `json:"username"`
	Device    string    `json:"device"`
	IP        string    `json:"ip"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	Votes     int       `json:"votes"`
	Quorum    int       `json:"quorum"`
}

func (h *AuthHandler) GetApprovable(ctx *fiber.Ctx) error {
	user, _, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	list, err := h.authFlowService.ListApprovable(ctx.Context(), user.ID)
	if err != nil {
		return err
	}
	entries := make([]approvableEntry, 0, len(list))
	for _, item := range list {
		entries = append(entries, approvableEntry{
			RequestID: item.Request.ID,
			Username:  item.Username,
			Device:    item.Request.DeviceInfo,
			IP:        item.Request.IP,
			CreatedAt: item.Request.CreatedAt,
			ExpiresAt: item.Request.ExpiresAt,
			Votes:     item.Votes,
			Quorum:    item.Quorum,
		})
	}
	return ctx.JSON(NewDataResponse(entries))
}

type notificationEntry struct {
	Kind      string    `json:"kind"`
	RequestID string    `json:"requestId"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *AuthHandler) GetNotifications(ctx *fiber.Ctx) error {
	user, ok := middlewares.CurrentUser(ctx)
	if !ok {
		return sessions.ErrNoSession
	}
	notifications, err := h.authFlowService.ListNotifications(ctx.Context(), user.ID)
	if err != nil {
		return err
	}
	entries := make([]notificationEntry, 0, len(notifications))
	for _, n := range notifications {
		entries = append(entries, notificationEntry{
			Kind:      n.Kind,
			RequestID: n.RequestID,
			Message:   n.Message,
			CreatedAt: n.CreatedAt,
		})
	}
	return ctx.JSON(NewDataResponse(entries))
}

func (h *AuthHandler) PostLogout(ctx *fiber.Ctx) error {
	if session, ok := middlewares.CurrentSession(ctx); ok {
		if err := h.sessionService.Delete(ctx.Context(), session.ID); err != nil {
			return err
		}
	}
	clearSessionCookie(ctx, h.cookieConfig)
	return ctx.JSON(NewDataResponse(fiber.Map{"loggedOut": true}))
}

func NewAuthHandler(sessionService SessionService, authFlowService AuthFlowService, userService UserService,
	systemService SystemService, cookieConfig CookieConfig, verificationRequired bool) *AuthHandler {
	return &AuthHandler{
		sessionService:       sessionService,
		authFlowService:      authFlowService,
		userService:          userService,
		systemService:        systemService,
		cookieConfig:         cookieConfig,
		verificationRequired: verificationRequired,
	}
}
