package web

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prayercircle/prayercircle/internal/middlewares"
	"github.com/prayercircle/prayercircle/internal/prayers"
	"github.com/prayercircle/prayercircle/internal/sessions"
	"github.com/prayercircle/prayercircle/model"
)

type PrayerHandler struct {
	sessionService SessionService
	prayerService  PrayerService
	userService    UserService
}

type prayerEntry struct {
	ID           uint      `json:"id"`
	Author       string    `json:"author"`
	Title        string    `json:"title"`
	Body         string    `json:"body,omitempty"`
	Status       string    `json:"status"`
	PrayedCount  uint      `json:"prayedCount"`
	AnsweredNote string    `json:"answeredNote,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (h *PrayerHandler) entry(ctx *fiber.Ctx, prayer *model.Prayer) prayerEntry {
	author := ""
	if user, err := h.userService.GetUserByID(ctx.Context(), prayer.AuthorID); err == nil {
		author = user.DisplayName
	}
	return prayerEntry{
		ID:           prayer.ID,
		Author:       author,
		Title:        prayer.Title,
		Body:         prayer.Body,
		Status:       prayer.Status,
		PrayedCount:  prayer.PrayedCount,
		AnsweredNote: prayer.AnsweredNote,
		CreatedAt:    prayer.CreatedAt,
	}
}

func (h *PrayerHandler) requireFullUser(ctx *fiber.Ctx) (*model.User, error) {
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

// GetPrayers lists prayers, optionally filtered by status. Reading is
// open to any authenticated member, half sessions included.
func (h *PrayerHandler) GetPrayers(ctx *fiber.Ctx) error {
	if _, ok := middlewares.CurrentUser(ctx); !ok {
		return sessions.ErrNoSession
	}
	status := ctx.Query("status")
	if status != "" && status != model.PrayerOpen && status != model.PrayerArchived && status != model.PrayerAnswered {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "unknown status filter"),
		)
	}
	list, err := h.prayerService.List(ctx.Context(), status)
	if err != nil {
		return err
	}
	entries := make([]prayerEntry, 0, len(list))
	for _, prayer := range list {
		entries = append(entries, h.entry(ctx, prayer))
	}
	return ctx.JSON(NewDataResponse(entries))
}

type createPrayerRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

func (h *PrayerHandler) PostPrayer(ctx *fiber.Ctx) error {
	user, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	var body createPrayerRequest
	if err := ctx.BodyParser(&body); err != nil || body.Title == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "title is required"),
		)
	}
	prayer, err := h.prayerService.Create(ctx.Context(), user.ID, body.Title, body.Body)
	if err != nil {
		return err
	}
	return ctx.Status(fiber.StatusCreated).JSON(NewDataResponse(h.entry(ctx, prayer)))
}

func (h *PrayerHandler) prayerID(ctx *fiber.Ctx) (uint, error) {
	id, err := ctx.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, prayers.ErrPrayerNotFound
	}
	return uint(id), nil
}

func (h *PrayerHandler) PostPrayed(ctx *fiber.Ctx) error {
	user, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	prayerID, err := h.prayerID(ctx)
	if err != nil {
		return err
	}
	if err := h.prayerService.MarkPrayed(ctx.Context(), prayerID, user.ID); err != nil {
		return err
	}
	prayer, err := h.prayerService.Get(ctx.Context(), prayerID)
	if err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(h.entry(ctx, prayer)))
}

func (h *PrayerHandler) PostArchive(ctx *fiber.Ctx) error {
	user, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	prayerID, err := h.prayerID(ctx)
	if err != nil {
		return err
	}
	if err := h.prayerService.Archive(ctx.Context(), prayerID, user.ID); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": model.PrayerArchived}))
}

type answerRequest struct {
	Note string `json:"note"`
}

func (h *PrayerHandler) PostAnswer(ctx *fiber.Ctx) error {
	user, err := h.requireFullUser(ctx)
	if err != nil {
		return err
	}
	prayerID, err := h.prayerID(ctx)
	if err != nil {
		return err
	}
	var body answerRequest
	if err := ctx.BodyParser(&body); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(
			NewErrorResponse(fiber.StatusBadRequest, "invalid request body"),
		)
	}
	if err := h.prayerService.Answer(ctx.Context(), prayerID, user.ID, body.Note); err != nil {
		return err
	}
	return ctx.JSON(NewDataResponse(fiber.Map{"status": model.PrayerAnswered}))
}

type activityEntry struct {
	Username  string    `json:"username"`
	Kind      string    `json:"kind"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *PrayerHandler) GetActivity(ctx *fiber.Ctx) error {
	if _, ok := middlewares.CurrentUser(ctx); !ok {
		return sessions.ErrNoSession
	}
	prayerID, err := h.prayerID(ctx)
	if err != nil {
		return err
	}
	if _, err := h.prayerService.Get(ctx.Context(), prayerID); err != nil {
		return err
	}
	activity, err := h.prayerService.ListActivity(ctx.Context(), prayerID)
	if err != nil {
		return err
	}
	entries := make([]activityEntry, 0, len(activity))
	for _, item := range activity {
		username := ""
		if user, err := h.userService.GetUserByID(ctx.Context(), item.UserID); err == nil {
			username = user.DisplayName
		}
		entries = append(entries, activityEntry{
			Username:  username,
			Kind:      item.Kind,
			Note:      item.Note,
			CreatedAt: item.CreatedAt,
		})
	}
	return ctx.JSON(NewDataResponse(entries))
}

func NewPrayerHandler(sessionService SessionService, prayerService PrayerService, userService UserService) *PrayerHandler {
	return &PrayerHandler{
		sessionService: sessionService,
		prayerService:  prayerService,
		userService:    userService,
	}
}
