package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"asset-ledger-backend/internal/model"
	"asset-ledger-backend/internal/workflow"
)

type attachmentResponse struct {
	FileName string `json:"fileName"`
	FilePath string `json:"filePath"`
	URL      string `json:"url"`
}

// ListAttachments handles GET /api/assets/:id/attachments.
func (h *Handler) ListAttachments(c *gin.Context) {
	if h.blob == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachment store is not configured"})
		return
	}
	attachments, err := h.repo.ListAttachments(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	resp := make([]attachmentResponse, len(attachments))
	for i, att := range attachments {
		resp[i] = attachmentResponse{
			FileName: att.FileName,
			FilePath: att.FilePath,
			URL:      h.blob.URL(att.FilePath),
		}
	}
	c.JSON(http.StatusOK, resp)
}

// UploadAttachment handles POST /api/assets/:id/attachments. Only the
// customer may attach files, and only while the record is theirs. A failed
// transfer or bookkeeping write leaves neither a stored object without a row
// nor a row without an object.
func (h *Handler) UploadAttachment(c *gin.Context) {
	role, ok := actorRole(c)
	if !ok {
		return
	}
	if role != workflow.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the customer may manage attachments"})
		return
	}
	if h.blob == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachment store is not configured"})
		return
	}

	asset, found := h.findAsset(c.Request.Context(), c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	if !asset.CustomerEditable() {
		c.JSON(http.StatusConflict, gin.H{"error": "attachments are locked while the record is under review"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
		return
	}
	name := c.PostForm("name")
	if name == "" {
		name = file.Filename
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
		return
	}
	defer f.Close()

	result, err := h.blob.Upload(c.Request.Context(), asset.ID, f, file.Size, file.Header.Get("Content-Type"), name)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	record := model.AssetAttachment{
		AssetID:  asset.ID,
		FileName: name,
		FilePath: result.Path,
		FileSize: file.Size,
		FileType: file.Header.Get("Content-Type"),
	}
	if err := h.repo.AddAttachment(c.Request.Context(), record); err != nil {
		// Roll the object back rather than leave it unreferenced.
		_ = h.blob.Delete(c.Request.Context(), result.Path)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, attachmentResponse{
		FileName: name,
		FilePath: result.Path,
		URL:      result.PublicURL,
	})
}

// DeleteAttachment handles DELETE /api/assets/:id/attachments?file=<name>.
func (h *Handler) DeleteAttachment(c *gin.Context) {
	role, ok := actorRole(c)
	if !ok {
		return
	}
	if role != workflow.RoleCustomer {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the customer may manage attachments"})
		return
	}
	if h.blob == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attachment store is not configured"})
		return
	}
	fileName := c.Query("file")
	if fileName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'file' is required"})
		return
	}

	asset, found := h.findAsset(c.Request.Context(), c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	if !asset.CustomerEditable() {
		c.JSON(http.StatusConflict, gin.H{"error": "attachments are locked while the record is under review"})
		return
	}

	att, err := h.repo.FindAttachment(c.Request.Context(), asset.ID, fileName)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "attachment not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	// Object first, then the row.
	if err := h.blob.Delete(c.Request.Context(), att.FilePath); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if err := h.repo.RemoveAttachment(c.Request.Context(), asset.ID, att.FilePath); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
