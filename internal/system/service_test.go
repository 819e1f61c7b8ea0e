package system

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prayercircle/prayercircle/internal/archive"
	"github.com/prayercircle/prayercircle/model"
	"gorm.io/gorm"
)

type fakeSystemRepo struct {
	invites map[string]*model.InviteToken
	flags   map[string]*model.FeatureFlag
}

func newFakeSystemRepo() *fakeSystemRepo {
	return &fakeSystemRepo{
		invites: make(map[string]*model.InviteToken),
		flags:   make(map[string]*model.FeatureFlag),
	}
}

func (f *fakeSystemRepo) CreateInvite(ctx context.Context, token *model.InviteToken) error {
	cp := *token
	f.invites[token.Token] = &cp
	return nil
}

func (f *fakeSystemRepo) GetInviteByToken(ctx context.Context, token string) (*model.InviteToken, error) {
	invite, ok := f.invites[token]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *invite
	return &cp, nil
}

func (f *fakeSystemRepo) MarkInviteUsed(ctx context.Context, tokenID, usedByID uint, at time.Time) (int64, error) {
	for _, invite := range f.invites {
		if invite.ID == tokenID && invite.UsedAt == nil {
			invite.UsedByID = usedByID
			invite.UsedAt = &at
			return 1, nil
		}
	}
	return 0, nil
}

func (f *fakeSystemRepo) ListUsableInvites(ctx context.Context, now time.Time) ([]*model.InviteToken, error) {
	var tokens []*model.InviteToken
	for _, invite := range f.invites {
		if invite.IsUsable(now) {
			cp := *invite
			tokens = append(tokens, &cp)
		}
	}
	return tokens, nil
}

func (f *fakeSystemRepo) UpsertFlag(ctx context.Context, flag *model.FeatureFlag) error {
	cp := *flag
	f.flags[flag.Name] = &cp
	return nil
}

func (f *fakeSystemRepo) GetFlag(ctx context.Context, name string) (*model.FeatureFlag, error) {
	flag, ok := f.flags[name]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *flag
	return &cp, nil
}

func (f *fakeSystemRepo) ListFlags(ctx context.Context) ([]*model.FeatureFlag, error) {
	var flags []*model.FeatureFlag
	for _, flag := range f.flags {
		cp := *flag
		flags = append(flags, &cp)
	}
	return flags, nil
}

type fakeNameDirectory struct {
	users map[uint]*model.User
}

func (f *fakeNameDirectory) GetUserByID(ctx context.Context, userID uint) (*model.User, error) {
	user, ok := f.users[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return user, nil
}

func (f *fakeNameDirectory) DisplayNames(ctx context.Context) (map[uint]string, error) {
	names := make(map[uint]string, len(f.users))
	for id, user := range f.users {
		names[id] = user.DisplayName
	}
	return names, nil
}

func newSystemService(t *testing.T) (*Service, *fakeSystemRepo, string) {
	t.Helper()
	repo := newFakeSystemRepo()
	users := &fakeNameDirectory{
		users: map[uint]*model.User{
			1: {ID: 1, DisplayName: "alice"},
			2: {ID: 2, DisplayName: "bob"},
		},
	}
	dir := t.TempDir()
	return NewService(repo, users, archive.New(dir), 7*24*time.Hour), repo, dir
}

func TestIssueAndUseInvite(t *testing.T) {
	service, _, dir := newSystemService(t)
	invite, err := service.IssueInvite(context.Background(), 1, "for bob")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if len(invite.Token) != 32 {
		t.Errorf("expected 32-char token, got %d", len(invite.Token))
	}
	if !invite.IsUsable(time.Now()) {
		t.Error("fresh invite must be usable")
	}

	used, err := service.UseInvite(context.Background(), invite.Token, 2, "1.2.3.4")
	if err != nil {
		t.Fatalf("use failed: %v", err)
	}
	if used.UsedByID != 2 || used.UsedAt == nil {
		t.Errorf("unexpected claimed invite: %+v", used)
	}

	if _, err := service.UseInvite(context.Background(), invite.Token, 1, "5.6.7.8"); err != ErrInviteUsed {
		t.Errorf("second claim must fail with ErrInviteUsed, got %v", err)
	}
	if _, err := service.UseInvite(context.Background(), "no-such-token", 1, "5.6.7.8"); err != ErrInviteNotFound {
		t.Errorf("expected ErrInviteNotFound, got %v", err)
	}

	// usage line archived, claimed token gone from the snapshot
	data, err := os.ReadFile(filepath.Join(dir, "system", time.Now().Format("2006_01")+"_invite_usage.txt"))
	if err != nil {
		t.Fatalf("usage file missing: %v", err)
	}
	if !strings.Contains(string(data), "bob") {
		t.Error("usage line must carry the claiming user")
	}
	snapshot, err := os.ReadFile(filepath.Join(dir, "system/invite_tokens.txt"))
	if err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	if strings.Contains(string(snapshot), invite.Token) {
		t.Error("claimed token must not appear in the usable-token snapshot")
	}
}

func TestCheckInviteDoesNotConsume(t *testing.T) {
	service, repo, _ := newSystemService(t)
	if _, err := service.CheckInvite(context.Background(), "no-such-token"); err != ErrInviteNotFound {
		t.Errorf("expected ErrInviteNotFound, got %v", err)
	}

	invite, err := service.IssueInvite(context.Background(), 1, "")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	if _, err := service.CheckInvite(context.Background(), invite.Token); err != nil {
		t.Fatalf("fresh invite must check clean: %v", err)
	}
	if repo.invites[invite.Token].UsedAt != nil {
		t.Error("checking must not consume the invite")
	}

	if _, err := service.UseInvite(context.Background(), invite.Token, 2, "1.2.3.4"); err != nil {
		t.Fatalf("use failed: %v", err)
	}
	if _, err := service.CheckInvite(context.Background(), invite.Token); err != ErrInviteUsed {
		t.Errorf("expected ErrInviteUsed, got %v", err)
	}

	stale, _ := service.IssueInvite(context.Background(), 1, "")
	repo.invites[stale.Token].ExpiresAt = time.Now().Add(-time.Minute)
	if _, err := service.CheckInvite(context.Background(), stale.Token); err != ErrInviteExpired {
		t.Errorf("expected ErrInviteExpired, got %v", err)
	}
}

func TestUseExpiredInvite(t *testing.T) {
	service, repo, _ := newSystemService(t)
	invite, _ := service.IssueInvite(context.Background(), 1, "")
	repo.invites[invite.Token].ExpiresAt = time.Now().Add(-time.Minute)

	if _, err := service.UseInvite(context.Background(), invite.Token, 2, "1.2.3.4"); err != ErrInviteExpired {
		t.Errorf("expected ErrInviteExpired, got %v", err)
	}
}

func TestFeatureFlags(t *testing.T) {
	service, _, dir := newSystemService(t)
	if enabled, err := service.IsFlagEnabled(context.Background(), "multi_device_auth"); err != nil || enabled {
		t.Errorf("unknown flag must read as disabled: enabled=%v err=%v", enabled, err)
	}

	if err := service.SetFeatureFlag(context.Background(), "multi_device_auth", true, 1); err != nil {
		t.Fatalf("set flag failed: %v", err)
	}
	if enabled, _ := service.IsFlagEnabled(context.Background(), "multi_device_auth"); !enabled {
		t.Error("flag must read back enabled")
	}

	if err := service.SetFeatureFlag(context.Background(), "multi_device_auth", false, 1); err != nil {
		t.Fatalf("set flag failed: %v", err)
	}
	if enabled, _ := service.IsFlagEnabled(context.Background(), "multi_device_auth"); enabled {
		t.Error("flag must read back disabled")
	}

	data, err := os.ReadFile(filepath.Join(dir, "system", time.Now().Format("2006_01")+"_feature_flags.txt"))
	if err != nil {
		t.Fatalf("flag change file missing: %v", err)
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) != 4 {
		t.Errorf("expected header + 2 change lines, got %d", len(lines))
	}
}

func TestSetFeatureFlagAbortsWhenArchiveFails(t *testing.T) {
	service, repo, _ := newSystemService(t)
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o500); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	t.Cleanup(func() { os.Chmod(dir, 0o755) })
	service.archive = archive.New(dir)

	if err := service.SetFeatureFlag(context.Background(), "dark_mode", true, 1); err == nil {
		t.Fatal("expected error when archive dir is unwritable")
	}
	if len(repo.flags) != 0 {
		t.Error("flag must not be written after archive failure")
	}
}

func TestSnapshotSystemConfigIncludesFlags(t *testing.T) {
	service, _, dir := newSystemService(t)
	if err := service.SetFeatureFlag(context.Background(), "multi_device_auth", true, 1); err != nil {
		t.Fatalf("set flag failed: %v", err)
	}
	entries := [][2]string{
		{"session.ttlDays", "14"},
		{"auth.approvalQuorum", "2"},
	}
	if err := service.SnapshotSystemConfig(context.Background(), entries); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "system/system_config.txt"))
	if err != nil {
		t.Fatalf("config snapshot missing: %v", err)
	}
	for _, want := range []string{"session.ttlDays|14", "flag.multi_device_auth|on"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("snapshot missing %q", want)
		}
	}
}
