package handler

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/vantage-academy/portal-api/internal/service"
	appErrors "github.com/vantage-academy/portal-api/pkg/errors"
	"github.com/vantage-academy/portal-api/pkg/response"
)

type materialFileOpener interface {
	Open(filename string) (*os.File, error)
}

// MaterialHandler wires HTTP endpoints to class material uploads and
// signed downloads.
type MaterialHandler struct {
	service *service.MaterialService
	files   materialFileOpener
}

// NewMaterialHandler creates a new handler.
func NewMaterialHandler(svc *service.MaterialService, files materialFileOpener) *MaterialHandler {
	return &MaterialHandler{service: svc, files: files}
}

// Upload godoc
// @Summary Upload class material
// @Tags Materials
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Class ID"
// @Param file formData file true "Material file"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/materials [post]
func (h *MaterialHandler) Upload(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "file is required"))
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer file.Close() //nolint:errcheck

	contentType := header.Header.Get("Content-Type")
	material, err := h.service.Upload(c.Request.Context(), claims, c.Param("id"), header.Filename, contentType, header.Size, file)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, material)
}

// ListByClass godoc
// @Summary List class materials
// @Description Each entry carries a short-lived signed download URL
// @Tags Materials
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /classes/{id}/materials [get]
func (h *MaterialHandler) ListByClass(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	materials, err := h.service.ListByClass(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, materials, nil)
}

// Download godoc
// @Summary Download material
// @Description Serves the file referenced by a valid signed token
// @Tags Materials
// @Produce octet-stream
// @Param id path string true "Material ID"
// @Param token query string true "Signed download token"
// @Success 200 {file} binary
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /materials/{id}/download [get]
func (h *MaterialHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "download token is required"))
		return
	}

	material, err := h.service.ResolveDownload(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}

	file, err := h.files.Open(material.StoragePath)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "stored file is missing"))
		return
	}
	defer file.Close() //nolint:errcheck

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", material.FileName))
	c.Header("Content-Type", material.ContentType)
	c.Status(http.StatusOK)
	_, _ = io.Copy(c.Writer, file)
}

// Delete godoc
// @Summary Delete material
// @Tags Materials
// @Param id path string true "Material ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /materials/{id} [delete]
func (h *MaterialHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
