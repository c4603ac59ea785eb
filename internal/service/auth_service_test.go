package service

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-academy/portal-api/internal/models"
	"github.com/vantage-academy/portal-api/internal/token"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type stubUserRepo struct {
	users map[string]*models.User
}

func (s *stubUserRepo) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserRepo) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (s *stubUserRepo) UpdatePassword(_ context.Context, id, hash string, _ time.Time) error {
	u, ok := s.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.PasswordHash = hash
	return nil
}

type stubSwitchStore struct {
	staged map[string]models.Role
}

func newStubSwitchStore() *stubSwitchStore {
	return &stubSwitchStore{staged: make(map[string]models.Role)}
}

func (s *stubSwitchStore) Stage(_ context.Context, userID string, role models.Role) error {
	s.staged[userID] = role
	return nil
}

func (s *stubSwitchStore) Take(_ context.Context, userID string) (models.Role, bool, error) {
	role, ok := s.staged[userID]
	if ok {
		delete(s.staged, userID)
	}
	return role, ok, nil
}

type stubAudit struct {
	entries []*models.AuditLog
}

func (s *stubAudit) Record(entry *models.AuditLog) {
	s.entries = append(s.entries, entry)
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func newTestAuthService(t *testing.T, users ...*models.User) (*AuthService, *stubSwitchStore, *stubAudit) {
	t.Helper()
	repo := &stubUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	switches := newStubSwitchStore()
	audit := &stubAudit{}
	codec := token.NewJWTCodec("test-secret", time.Hour, "portal-test")
	svc := NewAuthService(repo, switches, codec, nil, nil, audit, nil)
	return svc, switches, audit
}

func testUser(t *testing.T, mutate func(*models.User)) *models.User {
	t.Helper()
	u := &models.User{
		ID:           "u-1",
		Email:        "coach@example.com",
		PasswordHash: mustHash(t, "correct-horse"),
		FullName:     "Alex Coach",
		IsTeacher:    true,
		IsActive:     true,
	}
	if mutate != nil {
		mutate(u)
	}
	return u
}

func assertCode(t *testing.T, err error, want *appErrors.Error) {
	t.Helper()
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, want.Code, typed.Code)
	assert.Equal(t, want.Status, typed.Status)
}

func TestLoginSuccess(t *testing.T) {
	svc, _, audit := newTestAuthService(t, testUser(t, nil))

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, models.RoleTeacher, resp.User.CurrentRole)
	assert.True(t, resp.ExpiresAt.After(time.Now()))

	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionLogin, audit.entries[0].Action)
}

func TestLoginUnknownEmail(t *testing.T) {
	svc, _, _ := newTestAuthService(t, testUser(t, nil))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "nobody@example.com",
		Password: "whatever",
	})
	assertCode(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t, testUser(t, nil))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "wrong",
	})
	assertCode(t, err, appErrors.ErrInvalidCredentials)
}

func TestLoginInactiveAccount(t *testing.T) {
	svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
		u.IsActive = false
	}))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	assertCode(t, err, appErrors.ErrAccountInactive)
}

func TestLoginInactiveCheckedBeforePassword(t *testing.T) {
	// An inactive account reports inactivity even with a wrong password.
	svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
		u.IsActive = false
	}))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "wrong",
	})
	assertCode(t, err, appErrors.ErrAccountInactive)
}

func TestLoginNoRolesAssigned(t *testing.T) {
	svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
		u.IsStudent, u.IsTeacher, u.IsAdmin = false, false, false
	}))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	assertCode(t, err, appErrors.ErrNoPermissions)
}

func TestLoginExpiredStudentAccess(t *testing.T) {
	expired := time.Now().UTC().Add(-time.Hour)
	svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
		u.IsTeacher = false
		u.IsStudent = true
		u.AccessExpiry = &expired
	}))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	assertCode(t, err, appErrors.ErrAccessExpired)
}

func TestLoginFutureStudentAccess(t *testing.T) {
	future := time.Now().UTC().Add(time.Hour)
	svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
		u.IsTeacher = false
		u.IsStudent = true
		u.AccessExpiry = &future
	}))

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, resp.User.CurrentRole)
}

func TestLoginStudentWithoutExpiry(t *testing.T) {
	svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
		u.IsTeacher = false
		u.IsStudent = true
		u.AccessExpiry = nil
	}))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
}

func TestLoginExpiryIgnoredForNonStudent(t *testing.T) {
	// A stale expiry date on a teacher-only account must not block login.
	expired := time.Now().UTC().Add(-time.Hour)
	svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
		u.AccessExpiry = &expired
	}))

	resp, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, resp.User.CurrentRole)
}

func TestLoginDefaultRolePriority(t *testing.T) {
	tests := []struct {
		name                       string
		student, teacher, admin    bool
		want                       models.Role
	}{
		{"admin wins over all", true, true, true, models.RoleAdmin},
		{"teacher wins over student", true, true, false, models.RoleTeacher},
		{"student only", true, false, false, models.RoleStudent},
		{"admin only", false, false, true, models.RoleAdmin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, _ := newTestAuthService(t, testUser(t, func(u *models.User) {
				u.IsStudent, u.IsTeacher, u.IsAdmin = tt.student, tt.teacher, tt.admin
			}))

			resp, err := svc.Login(context.Background(), models.LoginRequest{
				Email:    "coach@example.com",
				Password: "correct-horse",
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.User.CurrentRole)
		})
	}
}

func TestSwitchRoleGranted(t *testing.T) {
	svc, switches, _ := newTestAuthService(t)
	claims := models.NewSessionClaims(testUser(t, func(u *models.User) {
		u.IsStudent = true
	}), models.RoleTeacher)

	resp, err := svc.SwitchRole(context.Background(), claims, models.SwitchRoleRequest{Role: "student"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, models.RoleStudent, resp.Role)
	assert.Equal(t, models.RoleStudent, switches.staged["u-1"])
}

func TestSwitchRoleNotGranted(t *testing.T) {
	svc, switches, _ := newTestAuthService(t)
	claims := models.NewSessionClaims(testUser(t, nil), models.RoleTeacher)

	_, err := svc.SwitchRole(context.Background(), claims, models.SwitchRoleRequest{Role: "admin"})
	assertCode(t, err, appErrors.ErrRoleNotGranted)
	assert.Empty(t, switches.staged)
}

func TestSwitchRoleInvalidLiteral(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	claims := models.NewSessionClaims(testUser(t, nil), models.RoleTeacher)

	_, err := svc.SwitchRole(context.Background(), claims, models.SwitchRoleRequest{Role: "superuser"})
	assertCode(t, err, appErrors.ErrInvalidRole)
}

func TestSwitchRoleIdempotent(t *testing.T) {
	// Switching to the already-active role still succeeds.
	svc, _, _ := newTestAuthService(t)
	claims := models.NewSessionClaims(testUser(t, nil), models.RoleTeacher)

	resp, err := svc.SwitchRole(context.Background(), claims, models.SwitchRoleRequest{Role: "teacher"})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, models.RoleTeacher, resp.Role)
}

func TestRefreshSessionAppliesStagedSwitch(t *testing.T) {
	svc, switches, _ := newTestAuthService(t)
	user := testUser(t, func(u *models.User) { u.IsStudent = true })
	claims := models.NewSessionClaims(user, models.RoleTeacher)
	switches.staged["u-1"] = models.RoleStudent

	resp, err := svc.RefreshSession(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, models.RoleStudent, resp.User.CurrentRole)
	assert.Empty(t, switches.staged, "staged switch is consumed")
}

func TestRefreshSessionWithoutStagedSwitch(t *testing.T) {
	svc, _, _ := newTestAuthService(t)
	claims := models.NewSessionClaims(testUser(t, nil), models.RoleTeacher)

	resp, err := svc.RefreshSession(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, resp.User.CurrentRole)
	assert.NotEmpty(t, resp.Token)
}

func TestRefreshSessionIgnoresUngrantedStagedRole(t *testing.T) {
	svc, switches, _ := newTestAuthService(t)
	claims := models.NewSessionClaims(testUser(t, nil), models.RoleTeacher)
	switches.staged["u-1"] = models.RoleAdmin

	resp, err := svc.RefreshSession(context.Background(), claims)
	require.NoError(t, err)
	assert.Equal(t, models.RoleTeacher, resp.User.CurrentRole)
}

func newMeteredAuthService(t *testing.T, metrics *MetricsService, users ...*models.User) *AuthService {
	t.Helper()
	repo := &stubUserRepo{users: make(map[string]*models.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	codec := token.NewJWTCodec("test-secret", time.Hour, "portal-test")
	return NewAuthService(repo, newStubSwitchStore(), codec, nil, nil, &stubAudit{}, metrics)
}

func scrapeMetrics(t *testing.T, metrics *MetricsService) string {
	t.Helper()
	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}

func TestLoginCountsOutcomes(t *testing.T) {
	metrics := NewMetricsService()
	svc := newMeteredAuthService(t, metrics, testUser(t, nil))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "wrong",
	})
	require.Error(t, err)

	body := scrapeMetrics(t, metrics)
	assert.Contains(t, body, `logins_total{outcome="success"} 1`)
	assert.Contains(t, body, `logins_total{outcome="invalid_credentials"} 1`)
}

func TestLoginCountsInactiveOutcome(t *testing.T) {
	metrics := NewMetricsService()
	svc := newMeteredAuthService(t, metrics, testUser(t, func(u *models.User) {
		u.IsActive = false
	}))

	_, err := svc.Login(context.Background(), models.LoginRequest{
		Email:    "coach@example.com",
		Password: "correct-horse",
	})
	require.Error(t, err)

	assert.Contains(t, scrapeMetrics(t, metrics), `logins_total{outcome="inactive"} 1`)
}

func TestSwitchRoleCountsOutcomes(t *testing.T) {
	metrics := NewMetricsService()
	svc := newMeteredAuthService(t, metrics)
	claims := models.NewSessionClaims(testUser(t, func(u *models.User) {
		u.IsStudent = true
	}), models.RoleTeacher)

	_, err := svc.SwitchRole(context.Background(), claims, models.SwitchRoleRequest{Role: "student"})
	require.NoError(t, err)

	_, err = svc.SwitchRole(context.Background(), claims, models.SwitchRoleRequest{Role: "admin"})
	require.Error(t, err)

	body := scrapeMetrics(t, metrics)
	assert.Contains(t, body, `role_switches_total{outcome="staged",role="student"} 1`)
	assert.Contains(t, body, `role_switches_total{outcome="denied",role="admin"} 1`)
}

func TestChangePassword(t *testing.T) {
	user := testUser(t, nil)
	svc, _, audit := newTestAuthService(t, user)

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{
		OldPassword: "correct-horse",
		NewPassword: "battery-staple",
	})
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("battery-staple")))
	require.NotEmpty(t, audit.entries)
	assert.Equal(t, models.AuditActionPasswordChange, audit.entries[len(audit.entries)-1].Action)
}

func TestChangePasswordWrongOld(t *testing.T) {
	svc, _, _ := newTestAuthService(t, testUser(t, nil))

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{
		OldPassword: "wrong",
		NewPassword: "battery-staple",
	})
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestChangePasswordTooShort(t *testing.T) {
	svc, _, _ := newTestAuthService(t, testUser(t, nil))

	err := svc.ChangePassword(context.Background(), "u-1", models.ChangePasswordRequest{
		OldPassword: "correct-horse",
		NewPassword: "short",
	})
	assertCode(t, err, appErrors.ErrValidation)
}
