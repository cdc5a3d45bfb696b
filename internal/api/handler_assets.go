package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"asset-ledger-backend/internal/csvio"
	"asset-ledger-backend/internal/model"
	"asset-ledger-backend/internal/store"
	"asset-ledger-backend/internal/workflow"
)

// GetAssets handles GET /api/assets.
func (h *Handler) GetAssets(c *gin.Context) {
	c.JSON(http.StatusOK, h.repo.FetchAll(c.Request.Context()))
}

// summaryResponse carries the progress and GUT dashboard numbers.
type summaryResponse struct {
	Total        int                       `json:"total"`
	ByStatus     map[model.AssetStatus]int `json:"byStatus"`
	Scored       int                       `json:"scored"`
	AverageScore float64                   `json:"averageScore"`
	RiskBands    map[model.RiskBand]int    `json:"riskBands"`
}

// GetSummary handles GET /api/assets/summary.
func (h *Handler) GetSummary(c *gin.Context) {
	assets := h.repo.FetchAll(c.Request.Context())

	resp := summaryResponse{
		Total:    len(assets),
		ByStatus: map[model.AssetStatus]int{},
		RiskBands: map[model.RiskBand]int{
			model.RiskLow: 0, model.RiskMedium: 0, model.RiskHigh: 0,
		},
	}
	var scoreSum int
	for _, a := range assets {
		resp.ByStatus[a.Status]++
		if score, ok := a.GUTScore(); ok {
			resp.Scored++
			scoreSum += score
			resp.RiskBands[model.RiskBandFor(score)]++
		}
	}
	if resp.Scored > 0 {
		resp.AverageScore = float64(scoreSum) / float64(resp.Scored)
	}
	c.JSON(http.StatusOK, resp)
}

// ImportAssets handles POST /api/assets/import. The CSV arrives either as a
// multipart "file" field or as the raw request body.
func (h *Handler) ImportAssets(c *gin.Context) {
	var reader io.Reader = c.Request.Body
	if file, err := c.FormFile("file"); err == nil {
		f, err := file.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open uploaded file"})
			return
		}
		defer f.Close()
		reader = f
	}

	assets, err := csvio.Import(reader, time.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stored := h.repo.UpsertMany(c.Request.Context(), assets)
	c.JSON(http.StatusOK, gin.H{"imported": len(stored)})
}

// ExportAssets handles GET /api/assets/export.
func (h *Handler) ExportAssets(c *gin.Context) {
	assets := h.repo.FetchAll(c.Request.Context())

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="assets.csv"`)
	if err := csvio.Export(c.Writer, assets); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "failed to write CSV"})
	}
}

// mutateRequest is the body shared by the edit and transition endpoints.
// BaselineUpdatedAt is the updatedAt the client's view was loaded with; the
// conflict policy compares against it.
type mutateRequest struct {
	BaselineUpdatedAt time.Time     `json:"baselineUpdatedAt" binding:"required"`
	Edit              workflow.Edit `json:"edit"`
}

type rejectRequest struct {
	BaselineUpdatedAt time.Time `json:"baselineUpdatedAt" binding:"required"`
	Comment           string    `json:"comment"`
}

// UpdateAsset handles PUT /api/assets/:id, a field edit with no transition.
func (h *Handler) UpdateAsset(c *gin.Context) {
	h.mutate(c, func(role workflow.Role, view model.Asset, req mutateRequest) (store.Outcome, error) {
		return h.flow.Edit(c.Request.Context(), role, view, req.Edit)
	})
}

// SubmitAsset handles POST /api/assets/:id/submit.
func (h *Handler) SubmitAsset(c *gin.Context) {
	h.mutate(c, func(role workflow.Role, view model.Asset, req mutateRequest) (store.Outcome, error) {
		return h.flow.Submit(c.Request.Context(), role, view, req.Edit)
	})
}

// ApproveAsset handles POST /api/assets/:id/approve.
func (h *Handler) ApproveAsset(c *gin.Context) {
	h.mutate(c, func(role workflow.Role, view model.Asset, req mutateRequest) (store.Outcome, error) {
		return h.flow.Approve(c.Request.Context(), role, view, req.Edit)
	})
}

// RejectAsset handles POST /api/assets/:id/reject.
func (h *Handler) RejectAsset(c *gin.Context) {
	role, ok := actorRole(c)
	if !ok {
		return
	}
	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, found := h.findAsset(c.Request.Context(), c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	view.UpdatedAt = req.BaselineUpdatedAt

	outcome, err := h.flow.Reject(c.Request.Context(), role, view, req.Comment)
	h.respond(c, outcome, err)
}

// mutate factors the shared load-bind-apply-respond sequence of the edit and
// transition endpoints.
func (h *Handler) mutate(c *gin.Context, apply func(workflow.Role, model.Asset, mutateRequest) (store.Outcome, error)) {
	role, ok := actorRole(c)
	if !ok {
		return
	}
	var req mutateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	view, found := h.findAsset(c.Request.Context(), c.Param("id"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "asset not found"})
		return
	}
	view.UpdatedAt = req.BaselineUpdatedAt

	outcome, err := apply(role, view, req)
	h.respond(c, outcome, err)
}

// respond maps workflow and store outcomes onto the HTTP surface: validation
// failures never reached the store, conflicts carry the refreshed record.
func (h *Handler) respond(c *gin.Context, outcome store.Outcome, err error) {
	if err != nil {
		var validation *workflow.ValidationError
		var permission *workflow.PermissionError
		var transition *workflow.TransitionError
		switch {
		case errors.As(err, &validation):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": validation.Error(), "fields": validation.Fields})
		case errors.As(err, &permission):
			c.JSON(http.StatusForbidden, gin.H{"error": permission.Error(), "fields": permission.Fields})
		case errors.As(err, &transition):
			c.JSON(http.StatusConflict, gin.H{"error": transition.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	if outcome.Conflict {
		c.JSON(http.StatusConflict, gin.H{
			"error": "the record was updated on another device; refresh before retrying",
			"asset": outcome.Asset,
		})
		return
	}

	h.notify(outcome.Asset)
	c.JSON(http.StatusOK, gin.H{"asset": outcome.Asset, "remote": outcome.Remote})
}
