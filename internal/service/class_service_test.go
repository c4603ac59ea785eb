package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type stubClassStore struct {
	classes  map[string]*models.Class
	teachers map[string][]models.ClassTeacherDetail
	members  map[string][]models.ClassMemberDetail
}

func newStubClassStore(classes ...*models.Class) *stubClassStore {
	s := &stubClassStore{
		classes:  make(map[string]*models.Class),
		teachers: make(map[string][]models.ClassTeacherDetail),
		members:  make(map[string][]models.ClassMemberDetail),
	}
	for _, c := range classes {
		s.classes[c.ID] = c
	}
	return s
}

func (s *stubClassStore) List(_ context.Context, _ models.ClassFilter) ([]models.Class, int, error) {
	var out []models.Class
	for _, c := range s.classes {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *stubClassStore) FindByID(_ context.Context, id string) (*models.Class, error) {
	c, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *c
	return &copied, nil
}

func (s *stubClassStore) FindDetailByID(_ context.Context, id string) (*models.ClassDetail, error) {
	c, ok := s.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &models.ClassDetail{Class: *c}, nil
}

func (s *stubClassStore) ExistsByName(_ context.Context, name, excludeID string) (bool, error) {
	for _, c := range s.classes {
		if strings.EqualFold(c.Name, name) && c.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubClassStore) Create(_ context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = "generated-class"
	}
	s.classes[class.ID] = class
	return nil
}

func (s *stubClassStore) Update(_ context.Context, class *models.Class) error {
	s.classes[class.ID] = class
	return nil
}

func (s *stubClassStore) Delete(_ context.Context, id string) error {
	delete(s.classes, id)
	return nil
}

func (s *stubClassStore) IsTeacherAssigned(_ context.Context, classID, teacherID string) (bool, error) {
	for _, t := range s.teachers[classID] {
		if t.TeacherID == teacherID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubClassStore) ListTeachers(_ context.Context, classID string) ([]models.ClassTeacherDetail, error) {
	return s.teachers[classID], nil
}

func (s *stubClassStore) AddTeacher(_ context.Context, assignment *models.ClassTeacher) error {
	if assignment.ID == "" {
		assignment.ID = "generated-assignment"
	}
	s.teachers[assignment.ClassID] = append(s.teachers[assignment.ClassID], models.ClassTeacherDetail{ClassTeacher: *assignment})
	return nil
}

func (s *stubClassStore) RemoveTeacher(_ context.Context, classID, teacherID string) error {
	assignments := s.teachers[classID]
	for i, t := range assignments {
		if t.TeacherID == teacherID {
			s.teachers[classID] = append(assignments[:i], assignments[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubClassStore) IsMember(_ context.Context, classID, studentID string) (bool, error) {
	for _, m := range s.members[classID] {
		if m.StudentID == studentID {
			return true, nil
		}
	}
	return false, nil
}

func (s *stubClassStore) ListMembers(_ context.Context, classID string) ([]models.ClassMemberDetail, error) {
	return s.members[classID], nil
}

func (s *stubClassStore) AddMember(_ context.Context, member *models.ClassMember) error {
	if member.ID == "" {
		member.ID = "generated-member"
	}
	s.members[member.ClassID] = append(s.members[member.ClassID], models.ClassMemberDetail{ClassMember: *member})
	return nil
}

func (s *stubClassStore) RemoveMember(_ context.Context, classID, studentID string) error {
	memberships := s.members[classID]
	for i, m := range memberships {
		if m.StudentID == studentID {
			s.members[classID] = append(memberships[:i], memberships[i+1:]...)
			return nil
		}
	}
	return sql.ErrNoRows
}

func studentClaims() *models.SessionClaims {
	return &models.SessionClaims{
		UserID:      "student-1",
		Email:       "student@example.com",
		IsStudent:   true,
		CurrentRole: models.RoleStudent,
	}
}

func newTestClassService(store *stubClassStore, users *stubUserStore) *ClassService {
	if users == nil {
		users = newStubUserStore()
	}
	return NewClassService(store, users, nil, nil, &stubAudit{})
}

func seededClass() *models.Class {
	return &models.Class{ID: "c-1", Name: "Leadership Cohort"}
}

func TestClassGetMissingReturnsNotFoundBeforeOwnership(t *testing.T) {
	// A teacher with no assignment asking for a nonexistent class must get
	// 404, not 403: existence is checked before ownership.
	svc := newTestClassService(newStubClassStore(), nil)

	_, err := svc.Get(context.Background(), teacherClaims(), "missing")
	assertCode(t, err, appErrors.ErrNotFound)
}

func TestClassGetUnassignedTeacherForbidden(t *testing.T) {
	svc := newTestClassService(newStubClassStore(seededClass()), nil)

	_, err := svc.Get(context.Background(), teacherClaims(), "c-1")
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestClassGetAdminBypassesOwnership(t *testing.T) {
	svc := newTestClassService(newStubClassStore(seededClass()), nil)

	detail, err := svc.Get(context.Background(), adminClaims(), "c-1")
	require.NoError(t, err)
	assert.Equal(t, "Leadership Cohort", detail.Name)
}

func TestClassGetAssignedTeacher(t *testing.T) {
	store := newStubClassStore(seededClass())
	store.teachers["c-1"] = []models.ClassTeacherDetail{
		{ClassTeacher: models.ClassTeacher{ClassID: "c-1", TeacherID: "teacher-1"}},
	}
	svc := newTestClassService(store, nil)

	_, err := svc.Get(context.Background(), teacherClaims(), "c-1")
	require.NoError(t, err)
}

func TestClassGetEnrolledStudent(t *testing.T) {
	store := newStubClassStore(seededClass())
	store.members["c-1"] = []models.ClassMemberDetail{
		{ClassMember: models.ClassMember{ClassID: "c-1", StudentID: "student-1"}},
	}
	svc := newTestClassService(store, nil)

	_, err := svc.Get(context.Background(), studentClaims(), "c-1")
	require.NoError(t, err)
}

func TestClassGetUnenrolledStudentForbidden(t *testing.T) {
	svc := newTestClassService(newStubClassStore(seededClass()), nil)

	_, err := svc.Get(context.Background(), studentClaims(), "c-1")
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestClassCreateDuplicateName(t *testing.T) {
	svc := newTestClassService(newStubClassStore(seededClass()), nil)

	_, err := svc.Create(context.Background(), adminClaims(), models.CreateClassRequest{
		Name: "leadership cohort",
	})
	assertCode(t, err, appErrors.ErrConflict)
}

func TestClassUpdateByAssignedTeacher(t *testing.T) {
	store := newStubClassStore(seededClass())
	store.teachers["c-1"] = []models.ClassTeacherDetail{
		{ClassTeacher: models.ClassTeacher{ClassID: "c-1", TeacherID: "teacher-1"}},
	}
	svc := newTestClassService(store, nil)

	desc := "Updated description"
	class, err := svc.Update(context.Background(), teacherClaims(), "c-1", models.UpdateClassRequest{
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, "Updated description", class.Description)
}

func TestClassUpdateByUnassignedTeacherForbidden(t *testing.T) {
	svc := newTestClassService(newStubClassStore(seededClass()), nil)

	desc := "nope"
	_, err := svc.Update(context.Background(), teacherClaims(), "c-1", models.UpdateClassRequest{
		Description: &desc,
	})
	assertCode(t, err, appErrors.ErrForbidden)
}

func TestAssignTeacherRequiresTeacherFlag(t *testing.T) {
	store := newStubClassStore(seededClass())
	users := newStubUserStore(&models.User{ID: "u-1", Email: "s@example.com", IsStudent: true})
	svc := newTestClassService(store, users)

	_, err := svc.AssignTeacher(context.Background(), adminClaims(), "c-1", models.AssignTeacherRequest{
		TeacherID: "u-1",
	})
	assertCode(t, err, appErrors.ErrInvalidOperation)
}

func TestAssignTeacherAlreadyAssigned(t *testing.T) {
	store := newStubClassStore(seededClass())
	store.teachers["c-1"] = []models.ClassTeacherDetail{
		{ClassTeacher: models.ClassTeacher{ClassID: "c-1", TeacherID: "t-9"}},
	}
	users := newStubUserStore(&models.User{ID: "t-9", Email: "t@example.com", IsTeacher: true})
	svc := newTestClassService(store, users)

	_, err := svc.AssignTeacher(context.Background(), adminClaims(), "c-1", models.AssignTeacherRequest{
		TeacherID: "t-9",
	})
	assertCode(t, err, appErrors.ErrConflict)
}

func TestAssignAndRemoveTeacher(t *testing.T) {
	store := newStubClassStore(seededClass())
	users := newStubUserStore(&models.User{ID: "t-9", Email: "t@example.com", IsTeacher: true})
	svc := newTestClassService(store, users)

	assignment, err := svc.AssignTeacher(context.Background(), adminClaims(), "c-1", models.AssignTeacherRequest{
		TeacherID: "t-9",
		IsPrimary: true,
	})
	require.NoError(t, err)
	assert.True(t, assignment.IsPrimary)

	require.NoError(t, svc.RemoveTeacher(context.Background(), adminClaims(), "c-1", "t-9"))
	err = svc.RemoveTeacher(context.Background(), adminClaims(), "c-1", "t-9")
	assertCode(t, err, appErrors.ErrNotFound)
}

func TestAddMemberRequiresStudentFlag(t *testing.T) {
	store := newStubClassStore(seededClass())
	users := newStubUserStore(&models.User{ID: "u-1", Email: "t@example.com", IsTeacher: true})
	svc := newTestClassService(store, users)

	_, err := svc.AddMember(context.Background(), adminClaims(), "c-1", models.AddMemberRequest{
		StudentID: "u-1",
	})
	assertCode(t, err, appErrors.ErrInvalidOperation)
}

func TestAddMemberDuplicate(t *testing.T) {
	store := newStubClassStore(seededClass())
	store.members["c-1"] = []models.ClassMemberDetail{
		{ClassMember: models.ClassMember{ClassID: "c-1", StudentID: "s-5"}},
	}
	users := newStubUserStore(&models.User{ID: "s-5", Email: "s@example.com", IsStudent: true})
	svc := newTestClassService(store, users)

	_, err := svc.AddMember(context.Background(), adminClaims(), "c-1", models.AddMemberRequest{
		StudentID: "s-5",
	})
	assertCode(t, err, appErrors.ErrConflict)
}

func TestExportRosterCSV(t *testing.T) {
	store := newStubClassStore(seededClass())
	store.members["c-1"] = []models.ClassMemberDetail{
		{
			ClassMember:  models.ClassMember{ClassID: "c-1", StudentID: "s-5"},
			StudentName:  "Sam Student",
			StudentEmail: "sam@example.com",
		},
	}
	svc := newTestClassService(store, nil)

	result, err := svc.ExportRoster(context.Background(), adminClaims(), "c-1", "csv")
	require.NoError(t, err)
	assert.Equal(t, "text/csv", result.ContentType)
	assert.Contains(t, string(result.Content), "Sam Student")
	assert.Contains(t, string(result.Content), "sam@example.com")
}

func TestExportRosterPDF(t *testing.T) {
	store := newStubClassStore(seededClass())
	svc := newTestClassService(store, nil)

	result, err := svc.ExportRoster(context.Background(), adminClaims(), "c-1", "pdf")
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", result.ContentType)
	assert.NotEmpty(t, result.Content)
}

func TestExportRosterUnknownFormat(t *testing.T) {
	svc := newTestClassService(newStubClassStore(seededClass()), nil)

	_, err := svc.ExportRoster(context.Background(), adminClaims(), "c-1", "xlsx")
	assertCode(t, err, appErrors.ErrValidation)
}

func TestExportRosterUnassignedTeacherForbidden(t *testing.T) {
	svc := newTestClassService(newStubClassStore(seededClass()), nil)

	_, err := svc.ExportRoster(context.Background(), teacherClaims(), "c-1", "csv")
	assertCode(t, err, appErrors.ErrForbidden)
}
