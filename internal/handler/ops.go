package handler

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"schoolrecords/internal/logger"
	"schoolrecords/internal/media"
)

const maxUploadBytes = 8 << 20

func (h *Handler) backupsEnabled(c *gin.Context) bool {
	if h.backups == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backups are not configured"})
		return false
	}
	return true
}

func (h *Handler) listBackups(c *gin.Context) {
	if !h.backupsEnabled(c) {
		return
	}
	list, err := h.backups.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) createBackup(c *gin.Context) {
	if !h.backupsEnabled(c) {
		return
	}
	info, err := h.backups.Create(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handler) restoreBackup(c *gin.Context) {
	if !h.backupsEnabled(c) {
		return
	}
	info, err := h.backups.Restore(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// upload accepts a multipart "file" field or a JSON {"data": "<data URL>"}.
func (h *Handler) upload(c *gin.Context) {
	if !h.uploads.Enabled() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	var (
		result media.Result
		err    error
	)
	if strings.Contains(c.ContentType(), "multipart/form-data") {
		file, header, ferr := c.Request.FormFile("file")
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "file field required"})
			return
		}
		defer file.Close()
		data, ferr := io.ReadAll(file)
		if ferr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file failed"})
			return
		}
		result, err = h.uploads.UploadBytes(c.Request.Context(), data, header.Filename)
	} else {
		var body struct {
			Data string `json:"data" binding:"required"`
		}
		if berr := c.ShouldBindJSON(&body); berr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": `provide {"data": "<base64 data URL>"}`})
			return
		}
		result, err = h.uploads.UploadDataURL(c.Request.Context(), body.Data)
	}
	if err != nil {
		if errors.Is(err, media.ErrNotConfigured) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		logger.Warn().Err(err).Msg("image upload failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"url":      result.SecureURL,
		"publicId": result.PublicID,
		"width":    result.Width,
		"height":   result.Height,
		"bytes":    result.Bytes,
	})
}
