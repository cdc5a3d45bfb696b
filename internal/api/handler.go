package api

import (
	"context"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"asset-ledger-backend/internal/blob"
	"asset-ledger-backend/internal/model"
	"asset-ledger-backend/internal/notification"
	"asset-ledger-backend/internal/store"
	"asset-ledger-backend/internal/workflow"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	repo    *store.Repository
	flow    *workflow.Machine
	blob    *blob.Storage // nil when no object store is configured
	pool    *notification.WorkerPool
	webpush *webpush.Options
}

// NewHandler creates a new API handler.
func NewHandler(repo *store.Repository, flow *workflow.Machine, blobStore *blob.Storage, pool *notification.WorkerPool, webpushOptions *webpush.Options) *Handler {
	return &Handler{
		repo:    repo,
		flow:    flow,
		blob:    blobStore,
		pool:    pool,
		webpush: webpushOptions,
	}
}

// actorRole reads the acting role from the request. Mutations without a
// recognized role are refused before they reach the workflow.
func actorRole(c *gin.Context) (workflow.Role, bool) {
	role := workflow.Role(c.GetHeader("X-Actor-Role"))
	if !workflow.ValidRole(role) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "X-Actor-Role must be customer or reviewer"})
		return "", false
	}
	return role, true
}

// findAsset resolves one record out of the current set.
func (h *Handler) findAsset(ctx context.Context, id string) (model.Asset, bool) {
	for _, a := range h.repo.FetchAll(ctx) {
		if a.ID == id {
			return a, true
		}
	}
	return model.Asset{}, false
}

// notify hands a transitioned asset to the push workers.
func (h *Handler) notify(asset model.Asset) {
	if h.pool == nil {
		return
	}
	h.pool.Dispatch(notification.Job{AssetID: asset.ID, Status: asset.Status})
}
