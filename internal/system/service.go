package system

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/internal/common"
	"github.com/prayercircle/prayercircle/model"
	"github.com/prayercircle/prayercircle/params"
	"gorm.io/gorm"
)

type UserDirectory interface {
	GetUserByID(ctx context.Context, userID uint) (*model.User, error)
	DisplayNames(ctx context.Context) (map[uint]string, error)
}

// Service manages invite tokens and feature flags. Mutations follow the
// archive-first ordering; the invite-token snapshot is refreshed after
// every successful issue or claim so the file tracks current state.
type Service struct {
	repo      Repository
	users     UserDirectory
	archive   *archive.Writer
	inviteTTL time.Duration
}

func (s *Service) IssueInvite(ctx context.Context, issuerID uint, note string) (*model.InviteToken, error) {
	if _, err := s.users.GetUserByID(ctx, issuerID); err != nil {
		return nil, err
	}
	secret, err := common.GenerateSecret(params.InviteTokenLength)
	if err != nil {
		return nil, err
	}
	invite := model.InviteToken{
		Token:      secret,
		IssuedByID: issuerID,
		Note:       note,
		ExpiresAt:  time.Now().Add(s.inviteTTL),
	}
	if err := s.repo.CreateInvite(ctx, &invite); err != nil {
		return nil, err
	}
	s.refreshInviteSnapshot(ctx)
	return &invite, nil
}

// CheckInvite reports whether token is currently claimable, without
// consuming it. Callers that create state on the strength of an invite
// check it first; the guarded update in UseInvite still decides races.
func (s *Service) CheckInvite(ctx context.Context, token string) (*model.InviteToken, error) {
	invite, err := s.repo.GetInviteByToken(ctx, token)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInviteNotFound
	}
	if err != nil {
		return nil, err
	}
	if invite.UsedAt != nil {
		return nil, ErrInviteUsed
	}
	if !time.Now().Before(invite.ExpiresAt) {
		return nil, ErrInviteExpired
	}
	return invite, nil
}

// UseInvite claims a token for userID. The usage line is archived before
// the guarded update; a concurrent claim loses on zero rows affected.
func (s *Service) UseInvite(ctx context.Context, token string, userID uint, ip string) (*model.InviteToken, error) {
	invite, err := s.CheckInvite(ctx, token)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.archive.InviteUsed(invite.Token, user.DisplayName, ip); err != nil {
		return nil, err
	}
	affected, err := s.repo.MarkInviteUsed(ctx, invite.ID, userID, now)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, ErrInviteUsed
	}
	invite.UsedByID = userID
	invite.UsedAt = &now
	s.refreshInviteSnapshot(ctx)
	return invite, nil
}

func (s *Service) refreshInviteSnapshot(ctx context.Context) {
	tokens, err := s.repo.ListUsableInvites(ctx, time.Now())
	if err != nil {
		slog.Warn("Could not list invite tokens for snapshot", "error", err)
		return
	}
	usernames, err := s.users.DisplayNames(ctx)
	if err != nil {
		slog.Warn("Could not resolve display names for invite snapshot", "error", err)
		return
	}
	if err := s.archive.UpdateInviteTokens(tokens, usernames); err != nil {
		slog.Warn("Could not write invite token snapshot", "error", err)
	}
}

// UpdateInviteTokens rewrites the invite snapshot; the maintenance loop
// calls it so expired tokens age out of the file.
func (s *Service) UpdateInviteTokens(ctx context.Context) error {
	tokens, err := s.repo.ListUsableInvites(ctx, time.Now())
	if err != nil {
		return err
	}
	usernames, err := s.users.DisplayNames(ctx)
	if err != nil {
		return err
	}
	return s.archive.UpdateInviteTokens(tokens, usernames)
}

func (s *Service) SetFeatureFlag(ctx context.Context, name string, enabled bool, actorID uint) error {
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return err
	}
	if err := s.archive.FeatureFlagChanged(name, enabled, actor.DisplayName); err != nil {
		return err
	}
	return s.repo.UpsertFlag(ctx, &model.FeatureFlag{
		Name:        name,
		Enabled:     enabled,
		UpdatedByID: actorID,
	})
}

func (s *Service) IsFlagEnabled(ctx context.Context, name string) (bool, error) {
	flag, err := s.repo.GetFlag(ctx, name)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return flag.Enabled, nil
}

func (s *Service) ListFlags(ctx context.Context) ([]*model.FeatureFlag, error) {
	return s.repo.ListFlags(ctx)
}

// SnapshotSystemConfig rewrites the ordered key/value config snapshot.
func (s *Service) SnapshotSystemConfig(ctx context.Context, entries [][2]string) error {
	flags, err := s.repo.ListFlags(ctx)
	if err != nil {
		return err
	}
	for _, flag := range flags {
		value := "off"
		if flag.Enabled {
			value = "on"
		}
		entries = append(entries, [2]string{"flag." + flag.Name, value})
	}
	return s.archive.SnapshotSystemConfig(entries)
}

func NewService(repo Repository, users UserDirectory, archiveWriter *archive.Writer, inviteTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		users:     users,
		archive:   archiveWriter,
		inviteTTL: inviteTTL,
	}
}
