package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vantage-academy/portal-api/internal/models"
	"github.com/vantage-academy/portal-api/pkg/config"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
)

type materialStore interface {
	Create(ctx context.Context, material *models.Material) error
	FindByID(ctx context.Context, id string) (*models.Material, error)
	ListByClass(ctx context.Context, classID string) ([]models.Material, error)
	Delete(ctx context.Context, id string) error
}

type fileStore interface {
	SaveStream(filename string, r io.Reader) (string, error)
	Delete(filename string) error
}

type urlSigner interface {
	Generate(materialID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (materialID, relPath string, expiresAt time.Time, err error)
}

// MaterialService implements class material uploads and signed downloads.
// Listing hands out short-lived signed URLs; the download endpoint itself
// trusts only the token, not the session.
type MaterialService struct {
	repo    materialStore
	classes classAccess
	files   fileStore
	signer  urlSigner
	cfg     config.UploadsConfig
	logger  *zap.Logger
	audit   auditRecorder
}

// NewMaterialService constructs a MaterialService instance.
func NewMaterialService(repo materialStore, classes classAccess, files fileStore, signer urlSigner, cfg config.UploadsConfig, logger *zap.Logger, audit auditRecorder) *MaterialService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaterialService{
		repo:    repo,
		classes: classes,
		files:   files,
		signer:  signer,
		cfg:     cfg,
		logger:  logger,
		audit:   audit,
	}
}

func (s *MaterialService) mimeAllowed(contentType string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

// Upload stores a file for a class the actor manages.
func (s *MaterialService) Upload(ctx context.Context, actor *models.SessionClaims, classID, fileName, contentType string, size int64, r io.Reader) (*models.Material, error) {
	if _, err := s.classes.ensureCanManage(ctx, actor, classID); err != nil {
		return nil, err
	}

	if fileName == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file name is required")
	}
	if !s.mimeAllowed(contentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file type is not allowed: "+contentType)
	}
	if s.cfg.MaxFileSizeBytes > 0 && size > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSizeBytes))
	}

	id := uuid.NewString()
	relPath := filepath.Join(classID, id+"_"+filepath.Base(fileName))
	if _, err := s.files.SaveStream(relPath, r); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store file")
	}

	material := &models.Material{
		ID:          id,
		ClassID:     classID,
		UploadedBy:  actor.UserID,
		FileName:    filepath.Base(fileName),
		StoragePath: relPath,
		ContentType: contentType,
		SizeBytes:   size,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		if cleanupErr := s.files.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to remove orphaned upload", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record material")
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionMaterialUpload,
		EntityType: "material",
		EntityID:   &material.ID,
		Metadata:   []byte(fmt.Sprintf(`{"class_id":%q,"file_name":%q}`, classID, material.FileName)),
	})

	return material, nil
}

// ListByClass returns materials for a class with signed download URLs.
func (s *MaterialService) ListByClass(ctx context.Context, actor *models.SessionClaims, classID string) ([]models.MaterialInfo, error) {
	if _, err := s.classes.ensureCanView(ctx, actor, classID); err != nil {
		return nil, err
	}

	materials, err := s.repo.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list materials")
	}

	infos := make([]models.MaterialInfo, 0, len(materials))
	for _, m := range materials {
		token, expires, err := s.signer.Generate(m.ID, m.StoragePath)
		if err != nil {
			s.logger.Warn("failed to sign download url", zap.String("material_id", m.ID), zap.Error(err))
			continue
		}
		infos = append(infos, models.MaterialInfo{
			Material:    m,
			DownloadURL: fmt.Sprintf("/materials/%s/download?token=%s", m.ID, url.QueryEscape(token)),
			URLExpires:  expires,
		})
	}
	return infos, nil
}

// ResolveDownload validates a signed token and returns the material record.
// The token is the sole credential for this path; an expired or tampered
// token reads as unauthorized.
func (s *MaterialService) ResolveDownload(ctx context.Context, materialID, token string) (*models.Material, error) {
	tokenID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid download token")
	}
	if tokenID != materialID {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match material")
	}

	material, err := s.repo.FindByID(ctx, materialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}
	if material.StoragePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "download token does not match material")
	}
	return material, nil
}

// Delete removes a material and its stored file.
func (s *MaterialService) Delete(ctx context.Context, actor *models.SessionClaims, id string) error {
	material, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load material")
	}

	if _, err := s.classes.ensureCanManage(ctx, actor, material.ClassID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete material")
	}
	if err := s.files.Delete(material.StoragePath); err != nil {
		s.logger.Warn("failed to remove stored file", zap.String("path", material.StoragePath), zap.Error(err))
	}

	s.audit.Record(&models.AuditLog{
		ActorID:    &actor.UserID,
		Action:     models.AuditActionMaterialDelete,
		EntityType: "material",
		EntityID:   &id,
	})

	return nil
}
