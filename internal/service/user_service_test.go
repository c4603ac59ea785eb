package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type stubUserStore struct {
	users   map[string]*models.User
	deleted []string
}

func newStubUserStore(users ...*models.User) *stubUserStore {
	s := &stubUserStore{users: make(map[string]*models.User)}
	for _, u := range users {
		s.users[u.ID] = u
	}
	return s
}

func (s *stubUserStore) FindByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubUserStore) FindByID(_ context.Context, id string) (*models.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *u
	return &copied, nil
}

func (s *stubUserStore) List(_ context.Context, _ models.UserFilter) ([]models.User, int, error) {
	var out []models.User
	for _, u := range s.users {
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (s *stubUserStore) Create(_ context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated-id"
	}
	s.users[user.ID] = user
	return nil
}

func (s *stubUserStore) Update(_ context.Context, user *models.User) error {
	s.users[user.ID] = user
	return nil
}

func (s *stubUserStore) DeleteCascade(_ context.Context, id string) error {
	if _, ok := s.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.users, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func adminClaims() *models.SessionClaims {
	return &models.SessionClaims{
		UserID:      "admin-1",
		Email:       "admin@example.com",
		IsAdmin:     true,
		CurrentRole: models.RoleAdmin,
	}
}

func teacherClaims() *models.SessionClaims {
	return &models.SessionClaims{
		UserID:      "teacher-1",
		Email:       "teacher@example.com",
		IsTeacher:   true,
		CurrentRole: models.RoleTeacher,
	}
}

func TestUserCreateByAdmin(t *testing.T) {
	store := newStubUserStore()
	svc := NewUserService(store, nil, nil, &stubAudit{})

	user, err := svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:     "New.Student@Example.com",
		Password:  "password123",
		FullName:  "New Student",
		IsStudent: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "new.student@example.com", user.Email, "email is stored lowercased")
	assert.True(t, user.IsActive)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotEqual(t, "password123", user.PasswordHash)
}

func TestUserCreateTeacherCannotGrantElevatedRoles(t *testing.T) {
	svc := NewUserService(newStubUserStore(), nil, nil, &stubAudit{})

	_, err := svc.Create(context.Background(), teacherClaims(), models.CreateUserRequest{
		Email:     "peer@example.com",
		Password:  "password123",
		FullName:  "Peer Teacher",
		IsTeacher: true,
	})
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestUserCreateTeacherMayProvisionStudents(t *testing.T) {
	svc := NewUserService(newStubUserStore(), nil, nil, &stubAudit{})

	user, err := svc.Create(context.Background(), teacherClaims(), models.CreateUserRequest{
		Email:     "student@example.com",
		Password:  "password123",
		FullName:  "A Student",
		IsStudent: true,
	})
	require.NoError(t, err)
	assert.True(t, user.IsStudent)
	assert.False(t, user.IsTeacher)
}

func TestUserCreateDuplicateEmail(t *testing.T) {
	store := newStubUserStore(&models.User{ID: "u-1", Email: "taken@example.com"})
	svc := NewUserService(store, nil, nil, &stubAudit{})

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:     "taken@example.com",
		Password:  "password123",
		FullName:  "Dup",
		IsStudent: true,
	})
	assertCode(t, err, appErrors.ErrConflict)
}

func TestUserCreateRequiresRoleFlag(t *testing.T) {
	svc := NewUserService(newStubUserStore(), nil, nil, &stubAudit{})

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateUserRequest{
		Email:    "flagless@example.com",
		Password: "password123",
		FullName: "Flagless",
	})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestUserUpdatePartial(t *testing.T) {
	store := newStubUserStore(&models.User{
		ID: "u-1", Email: "s@example.com", FullName: "Before", IsStudent: true, IsActive: true,
	})
	svc := NewUserService(store, nil, nil, &stubAudit{})

	name := "After"
	active := false
	user, err := svc.Update(context.Background(), adminClaims(), "u-1", models.UpdateUserRequest{
		FullName: &name,
		IsActive: &active,
	})
	require.NoError(t, err)
	assert.Equal(t, "After", user.FullName)
	assert.False(t, user.IsActive)
	assert.True(t, user.IsStudent, "unspecified fields are untouched")
}

func TestUserUpdateCannotClearAllRoles(t *testing.T) {
	store := newStubUserStore(&models.User{ID: "u-1", Email: "s@example.com", IsStudent: true})
	svc := NewUserService(store, nil, nil, &stubAudit{})

	no := false
	_, err := svc.Update(context.Background(), adminClaims(), "u-1", models.UpdateUserRequest{
		IsStudent: &no,
	})
	assertCode(t, err, appErrors.ErrValidation)
}

func TestUserUpdateNotFound(t *testing.T) {
	svc := NewUserService(newStubUserStore(), nil, nil, &stubAudit{})

	_, err := svc.Update(context.Background(), adminClaims(), "missing", models.UpdateUserRequest{})
	assertCode(t, err, appErrors.ErrNotFound)
}

func TestUserDelete(t *testing.T) {
	store := newStubUserStore(&models.User{ID: "u-1", Email: "s@example.com", IsStudent: true})
	audit := &stubAudit{}
	svc := NewUserService(store, nil, nil, audit)

	err := svc.Delete(context.Background(), adminClaims(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, store.deleted)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionUserDelete, audit.entries[0].Action)
}

func TestUserDeleteSelf(t *testing.T) {
	store := newStubUserStore(&models.User{ID: "admin-1", Email: "admin@example.com", IsAdmin: true})
	svc := NewUserService(store, nil, nil, &stubAudit{})

	err := svc.Delete(context.Background(), adminClaims(), "admin-1")
	assertCode(t, err, appErrors.ErrInvalidOperation)
	assert.Empty(t, store.deleted)
}

func TestUserDeleteNotFound(t *testing.T) {
	svc := NewUserService(newStubUserStore(), nil, nil, &stubAudit{})

	err := svc.Delete(context.Background(), adminClaims(), "missing")
	assertCode(t, err, appErrors.ErrNotFound)
}

func TestResetAccessExpiry(t *testing.T) {
	store := newStubUserStore(&models.User{ID: "u-1", Email: "s@example.com", IsStudent: true})
	svc := NewUserService(store, nil, nil, &stubAudit{})

	future := time.Now().UTC().Add(90 * 24 * time.Hour)
	user, err := svc.ResetAccessExpiry(context.Background(), adminClaims(), "u-1", &future)
	require.NoError(t, err)
	require.NotNil(t, user.AccessExpiry)
	assert.True(t, user.AccessExpiry.Equal(future))
}

func TestResetAccessExpiryNonStudent(t *testing.T) {
	store := newStubUserStore(&models.User{ID: "u-1", Email: "t@example.com", IsTeacher: true})
	svc := NewUserService(store, nil, nil, &stubAudit{})

	_, err := svc.ResetAccessExpiry(context.Background(), adminClaims(), "u-1", nil)
	assertCode(t, err, appErrors.ErrInvalidOperation)
}
