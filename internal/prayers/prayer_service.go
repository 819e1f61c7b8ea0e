package prayers

import (
	"context"
	"errors"

	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type UserDirectory interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	IsAdmin(ctx context.Context, userID uint) (bool, error)
}

// Service applies the archive-first discipline to every prayer mutation:
// the text line is written and synced before the database transaction, so
// a crash between the two leaves an archive record with no row, never a
// row with no record.
type Service struct {
	repo    Repository
	users   UserDirectory
	archive *archive.Writer
}

func (s *Service) Create(ctx context.Context, authorID uint, title, body string) (*model.Prayer, error) {
	author, err := s.users.GetUserByID(ctx, authorID)
	if err != nil {
		return nil, err
	}
	prayer := model.Prayer{
		ID:       model.GenerateID(),
		AuthorID: authorID,
		Title:    title,
		Body:     body,
		Status:   model.PrayerOpen,
	}
	if err := s.archive.PrayerEvent(prayer.ID, author.DisplayName, model.PrayerActivityCreated, title); err != nil {
		return nil, err
	}
	activity := model.PrayerActivity{
		UserID: authorID,
		Kind:   model.PrayerActivityCreated,
	}
	if err := s.repo.Create(ctx, &prayer, &activity); err != nil {
		return nil, err
	}
	return &prayer, nil
}

func (s *Service) Get(ctx context.Context, prayerID uint) (*model.Prayer, error) {
	prayer, err := s.repo.Get(ctx, prayerID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPrayerNotFound
	}
	return prayer, err
}

func (s *Service) List(ctx context.Context, status string) ([]*model.Prayer, error) {
	return s.repo.List(ctx, status)
}

func (s *Service) ListActivity(ctx context.Context, prayerID uint) ([]*model.PrayerActivity, error) {
	return s.repo.ListActivity(ctx, prayerID)
}

// MarkPrayed bumps the prayed counter. Any member may mark any open
// prayer, their own included.
func (s *Service) MarkPrayed(ctx context.Context, prayerID, userID uint) error {
	prayer, err := s.Get(ctx, prayerID)
	if err != nil {
		return err
	}
	if prayer.Status != model.PrayerOpen {
		return ErrPrayerClosed
	}
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.archive.PrayerActivityEvent(prayerID, user.DisplayName, model.PrayerActivityPrayed, ""); err != nil {
		return err
	}
	return s.repo.RecordActivity(ctx, prayerID, &model.PrayerActivity{
		PrayerID: prayerID,
		UserID:   userID,
		Kind:     model.PrayerActivityPrayed,
	}, map[string]interface{}{
		"prayed_count": gorm.Expr("prayed_count + 1"),
	})
}

// Archive closes a prayer without marking it answered. Author or admin only.
func (s *Service) Archive(ctx context.Context, prayerID, actorID uint) error {
	return s.close(ctx, prayerID, actorID, model.PrayerArchived, "")
}

// Answer closes a prayer as answered, with an optional note describing how.
func (s *Service) Answer(ctx context.Context, prayerID, actorID uint, note string) error {
	return s.close(ctx, prayerID, actorID, model.PrayerAnswered, note)
}

func (s *Service) close(ctx context.Context, prayerID, actorID uint, status, note string) error {
	prayer, err := s.Get(ctx, prayerID)
	if err != nil {
		return err
	}
	if prayer.Status != model.PrayerOpen {
		return ErrPrayerClosed
	}
	if err := s.authorize(ctx, prayer, actorID); err != nil {
		return err
	}
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return err
	}

	kind := model.PrayerActivityArchived
	if status == model.PrayerAnswered {
		kind = model.PrayerActivityAnswered
	}
	if err := s.archive.PrayerEvent(prayerID, actor.DisplayName, kind, prayer.Title); err != nil {
		return err
	}
	if err := s.archive.PrayerActivityEvent(prayerID, actor.DisplayName, kind, note); err != nil {
		return err
	}

	updates := map[string]interface{}{"status": status}
	if note != "" {
		updates["answered_note"] = note
	}
	return s.repo.RecordActivity(ctx, prayerID, &model.PrayerActivity{
		PrayerID: prayerID,
		UserID:   actorID,
		Kind:     kind,
		Note:     note,
	}, updates)
}

func (s *Service) authorize(ctx context.Context, prayer *model.Prayer, actorID uint) error {
	if prayer.AuthorID == actorID {
		return nil
	}
	isAdmin, err := s.users.IsAdmin(ctx, actorID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return ErrNotPermitted
	}
	return nil
}

func NewService(repo Repository, users UserDirectory, archiveWriter *archive.Writer) *Service {
	return &Service{
		repo:    repo,
		users:   users,
		archive: archiveWriter,
	}
}
