package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantage-academy/portal-api/internal/middleware"
	"github.com/vantage-academy/portal-api/internal/models"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type fakeAuthSrv struct {
	loginResp  *models.LoginResponse
	loginErr   error
	lastLogin  models.LoginRequest
	switchResp *models.SwitchRoleResponse
	switchErr  error
	lastSwitch models.SwitchRoleRequest
	refresh    *models.SessionResponse
	refreshErr error
	loggedOut  bool
	passErr    error
}

func (f *fakeAuthSrv) Login(_ context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	f.lastLogin = req
	return f.loginResp, f.loginErr
}

func (f *fakeAuthSrv) SwitchRole(_ context.Context, _ *models.SessionClaims, req models.SwitchRoleRequest) (*models.SwitchRoleResponse, error) {
	f.lastSwitch = req
	return f.switchResp, f.switchErr
}

func (f *fakeAuthSrv) RefreshSession(_ context.Context, _ *models.SessionClaims) (*models.SessionResponse, error) {
	return f.refresh, f.refreshErr
}

func (f *fakeAuthSrv) Logout(_ context.Context, _ *models.SessionClaims, _, _ string) {
	f.loggedOut = true
}

func (f *fakeAuthSrv) ChangePassword(_ context.Context, _ string, _ models.ChangePasswordRequest) error {
	return f.passErr
}

func withClaims(c *gin.Context, claims *models.SessionClaims) {
	c.Set(middleware.ContextUserKey, claims)
}

func teacherSession() *models.SessionClaims {
	return &models.SessionClaims{
		UserID:      "u-1",
		Email:       "coach@example.com",
		IsTeacher:   true,
		IsStudent:   true,
		CurrentRole: models.RoleTeacher,
	}
}

func TestAuthHandlerLoginSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeAuthSrv{loginResp: &models.LoginResponse{Token: "signed"}}
	handler := NewAuthHandler(fake)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	body := `{"email":"coach@example.com","password":"secret"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request.Header.Set("User-Agent", "test-agent")

	handler.Login(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coach@example.com", fake.lastLogin.Email)
	assert.Equal(t, "test-agent", fake.lastLogin.UserAgent)

	var envelope struct {
		Data models.LoginResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "signed", envelope.Data.Token)
}

func TestAuthHandlerLoginInvalidJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader("{"))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthHandlerLoginError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthSrv{loginErr: appErrors.ErrInvalidCredentials})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	body := `{"email":"coach@example.com","password":"wrong"}`
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.Login(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "INVALID_CREDENTIALS", envelope.Error.Code)
}

func TestAuthHandlerSwitchRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeAuthSrv{switchResp: &models.SwitchRoleResponse{Success: true, Role: models.RoleStudent}}
	handler := NewAuthHandler(fake)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/switch-role", strings.NewReader(`{"role":"student"}`))
	c.Request.Header.Set("Content-Type", "application/json")
	withClaims(c, teacherSession())

	handler.SwitchRole(c)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "student", fake.lastSwitch.Role)
}

func TestAuthHandlerSwitchRoleWithoutSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/switch-role", strings.NewReader(`{"role":"student"}`))
	c.Request.Header.Set("Content-Type", "application/json")

	handler.SwitchRole(c)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlerRefreshSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeAuthSrv{refresh: &models.SessionResponse{Token: "reissued"}}
	handler := NewAuthHandler(fake)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/session/refresh", nil)
	withClaims(c, teacherSession())

	handler.RefreshSession(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.SessionResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "reissued", envelope.Data.Token)
}

func TestAuthHandlerSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewAuthHandler(&fakeAuthSrv{})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	withClaims(c, teacherSession())

	handler.Session(c)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Data models.UserInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, models.RoleTeacher, envelope.Data.CurrentRole)
	assert.True(t, envelope.Data.IsStudent)
}

func TestAuthHandlerLogout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	fake := &fakeAuthSrv{}
	handler := NewAuthHandler(fake)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	withClaims(c, teacherSession())

	handler.Logout(c)
	c.Writer.WriteHeaderNow()

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, fake.loggedOut)
}
