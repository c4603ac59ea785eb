package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/vantage-academy/portal-api/internal/models"
	"github.com/vantage-academy/portal-api/internal/token"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type authUserRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
}

type roleSwitchStore interface {
	Stage(ctx context.Context, userID string, role models.Role) error
	Take(ctx context.Context, userID string) (models.Role, bool, error)
}

type auditRecorder interface {
	Record(entry *models.AuditLog)
}

type authMetrics interface {
	ObserveLogin(outcome string)
	ObserveRoleSwitch(role, outcome string)
}

// AuthService implements authentication and the role-switch protocol.
type AuthService struct {
	repo      authUserRepository
	switches  roleSwitchStore
	codec     token.Codec
	validator *validator.Validate
	logger    *zap.Logger
	audit     auditRecorder
	metrics   authMetrics
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(repo authUserRepository, switches roleSwitchStore, codec token.Codec, validate *validator.Validate, logger *zap.Logger, audit auditRecorder, metrics authMetrics) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if metrics == nil {
		metrics = (*MetricsService)(nil)
	}
	return &AuthService{repo: repo, switches: switches, codec: codec, validator: validate, logger: logger, audit: audit, metrics: metrics}
}

// Login authenticates a user and issues a session token.
//
// The precondition checks run in a fixed order and each failure surfaces its
// specific reason: unknown email, inactive account, no roles assigned, wrong
// password, expired student access. The initial active role is the
// highest-privilege flag the account holds (admin > teacher > student).
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	outcome := "success"
	defer func() { s.metrics.ObserveLogin(outcome) }()

	user, err := s.repo.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			outcome = "invalid_credentials"
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		outcome = "error"
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !user.IsActive {
		outcome = "inactive"
		return nil, appErrors.Clone(appErrors.ErrAccountInactive, "account is inactive")
	}

	if !user.HasAnyRole() {
		outcome = "no_permissions"
		return nil, appErrors.Clone(appErrors.ErrNoPermissions, "no roles assigned to this account")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		outcome = "invalid_credentials"
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	// Access expiry only gates the student role; teacher and admin flags
	// are never subject to it.
	if user.IsStudent && user.AccessExpiry != nil && user.AccessExpiry.Before(time.Now().UTC()) {
		outcome = "access_expired"
		return nil, appErrors.Clone(appErrors.ErrAccessExpired, "student access has expired")
	}

	claims := models.NewSessionClaims(user, user.DefaultRole())
	signed, expiresAt, err := s.codec.Encode(claims)
	if err != nil {
		outcome = "error"
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue session token")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &user.ID,
		Action:     models.AuditActionLogin,
		EntityType: "auth",
		EntityID:   &user.ID,
		Metadata:   []byte(`{"status":"success"}`),
		IPAddress:  req.IP,
		UserAgent:  req.UserAgent,
	})

	return &models.LoginResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		IssuedAt:  time.Now().UTC(),
		User:      claims.UserInfo(),
	}, nil
}

// SwitchRole validates a request to change the session's active persona and
// stages it. The new role only takes effect in the token re-issued by the
// follow-up RefreshSession call; validate and commit are two separate steps.
//
// Only role possession is checked here. Activation and access expiry are
// login-time concerns and are not re-validated on switch.
func (s *AuthService) SwitchRole(ctx context.Context, claims *models.SessionClaims, req models.SwitchRoleRequest) (*models.SwitchRoleResponse, error) {
	role, ok := models.ParseRole(req.Role)
	if !ok {
		s.metrics.ObserveRoleSwitch("unknown", "rejected")
		return nil, appErrors.Clone(appErrors.ErrInvalidRole, "unknown role: "+req.Role)
	}

	if !claims.HasRole(role) {
		s.metrics.ObserveRoleSwitch(string(role), "denied")
		return nil, appErrors.Clone(appErrors.ErrRoleNotGranted, "role not granted to this account")
	}

	// Switching to the already-active role is a no-op but still succeeds.
	if err := s.switches.Stage(ctx, claims.UserID, role); err != nil {
		s.metrics.ObserveRoleSwitch(string(role), "error")
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage role switch")
	}
	s.metrics.ObserveRoleSwitch(string(role), "staged")

	s.audit.Record(&models.AuditLog{
		ActorID:    &claims.UserID,
		Action:     models.AuditActionRoleSwitch,
		EntityType: "auth",
		EntityID:   &claims.UserID,
		Metadata:   []byte(`{"role":"` + string(role) + `"}`),
	})

	return &models.SwitchRoleResponse{
		Success: true,
		Role:    role,
		Message: "role switch staged; refresh the session to apply",
	}, nil
}

// RefreshSession re-issues the session token, applying any staged role
// switch. Without a staged switch the active role is unchanged.
func (s *AuthService) RefreshSession(ctx context.Context, claims *models.SessionClaims) (*models.SessionResponse, error) {
	currentRole := claims.CurrentRole

	staged, ok, err := s.switches.Take(ctx, claims.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read staged role switch")
	}
	if ok && claims.HasRole(staged) {
		currentRole = staged
	}

	next := *claims
	next.CurrentRole = currentRole
	signed, expiresAt, err := s.codec.Encode(&next)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to issue session token")
	}

	return &models.SessionResponse{
		Token:     signed,
		ExpiresAt: expiresAt,
		User:      next.UserInfo(),
	}, nil
}

// Logout records the logout. Sessions are stateless: the token stays valid
// until its absolute expiry, the client discards it.
func (s *AuthService) Logout(ctx context.Context, claims *models.SessionClaims, ip, userAgent string) {
	s.audit.Record(&models.AuditLog{
		ActorID:    &claims.UserID,
		Action:     models.AuditActionLogout,
		EntityType: "auth",
		EntityID:   &claims.UserID,
		Metadata:   []byte(`{"status":"logout"}`),
		IPAddress:  ip,
		UserAgent:  userAgent,
	})
}

// ChangePassword changes the password for the given user ID.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, req models.ChangePasswordRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid change password payload")
	}

	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.OldPassword)); err != nil {
		return appErrors.Clone(appErrors.ErrForbidden, "old password does not match")
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	if err := s.repo.UpdatePassword(ctx, userID, string(newHash), time.Now().UTC()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &userID,
		Action:     models.AuditActionPasswordChange,
		EntityType: "auth",
		EntityID:   &userID,
		Metadata:   []byte(`{"status":"changed"}`),
	})

	return nil
}
