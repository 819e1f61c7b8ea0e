package users

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type UserService struct {
	userRepo UserRepository
	roleRepo RoleRepository
	archive  *archive.Writer
}

func (s *UserService) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.userRepo.ByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

func (s *UserService) GetUserByName(ctx context.Context, displayName string) (*model.User, error) {
	user, err := s.userRepo.ByName(ctx, displayName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return user, err
}

// CreateUser claims a display name. The unique index on display_name is the
// authority; a duplicate insert maps to ErrNameTaken.
func (s *UserService) CreateUser(ctx context.Context, displayName string, invitedByID uint) (*model.User, error) {
	user := model.User{
		DisplayName: displayName,
		InvitedByID: invitedByID,
	}
	var mysqlErr *mysql.MySQLError
	if err := s.userRepo.Create(ctx, &user); errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return nil, ErrNameTaken
	} else if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]*model.User, error) {
	return s.userRepo.List(ctx)
}

// DisplayNames returns the id-to-name map used by archive snapshots.
func (s *UserService) DisplayNames(ctx context.Context) (map[uint]string, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[uint]string, len(users))
	for _, user := range users {
		names[user.ID] = user.DisplayName
	}
	return names, nil
}

func (s *UserService) hasActiveRole(ctx context.Context, userID uint, roleName string) (bool, error) {
	role, err := s.roleRepo.ByName(ctx, roleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	count, err := s.roleRepo.CountActiveGrants(ctx, userID, role.ID, time.Now())
	return count > 0, err
}

// IsAdmin is the single capability query behind every admin decision point.
func (s *UserService) IsAdmin(ctx context.Context, userID uint) (bool, error) {
	return s.hasActiveRole(ctx, userID, model.RoleAdmin)
}

func (s *UserService) IsDeactivated(ctx context.Context, userID uint) (bool, error) {
	return s.hasActiveRole(ctx, userID, model.RoleDeactivated)
}

// GrantRole assigns roleName to the user. The archive line is written and
// synced before the grant row is inserted; an archive failure aborts the
// grant entirely.
func (s *UserService) GrantRole(ctx context.Context, userID uint, roleName string, grantedByID uint, expiresAt *time.Time) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.roleRepo.ByName(ctx, roleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRoleNotFound
	}
	if err != nil {
		return err
	}
	granterName, err := s.actorName(ctx, grantedByID)
	if err != nil {
		return err
	}

	if err := s.archive.RoleAssigned(user.DisplayName, role.Name, granterName, expiresAt); err != nil {
		return err
	}
	if err := s.archive.RoleHistory(user.DisplayName, role.Name, "granted", granterName); err != nil {
		return err
	}

	grant := model.RoleGrant{
		UserID:      userID,
		RoleID:      role.ID,
		GrantedByID: grantedByID,
		ExpiresAt:   expiresAt,
	}
	var mysqlErr *mysql.MySQLError
	if err := s.roleRepo.CreateGrant(ctx, &grant); errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return ErrRoleAlreadyGranted
	} else if err != nil {
		return err
	}
	return nil
}

func (s *UserService) RevokeRole(ctx context.Context, userID uint, roleName string, revokedByID uint) error {
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	role, err := s.roleRepo.ByName(ctx, roleName)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRoleNotFound
	}
	if err != nil {
		return err
	}
	actorName, err := s.actorName(ctx, revokedByID)
	if err != nil {
		return err
	}

	if err := s.archive.RoleHistory(user.DisplayName, role.Name, "revoked", actorName); err != nil {
		return err
	}
	_, err = s.roleRepo.DeleteGrant(ctx, userID, role.ID)
	return err
}

func (s *UserService) SnapshotRoleDefinitions(ctx context.Context) error {
	roles, err := s.roleRepo.List(ctx)
	if err != nil {
		return err
	}
	return s.archive.SnapshotRoleDefinitions(roles)
}

func (s *UserService) actorName(ctx context.Context, userID uint) (string, error) {
	if userID == 0 {
		return "system", nil
	}
	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.DisplayName, nil
}

func NewUserService(userRepo UserRepository, roleRepo RoleRepository, archiveWriter *archive.Writer) *UserService {
	return &UserService{
		userRepo: userRepo,
		roleRepo: roleRepo,
		archive:  archiveWriter,
	}
}
