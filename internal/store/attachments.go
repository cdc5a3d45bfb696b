package store

import (
	"context"
	"errors"

	"asset-ledger-backend/internal/model"
)

// ErrRemoteUnavailable is returned for operations that cannot degrade to the
// mirror. Attachment bookkeeping is one of them: a metadata row without the
// stored object, or the other way around, is exactly the dangling state the
// upload flow must never leave behind.
var ErrRemoteUnavailable = errors.New("remote store is not available")

// AddAttachment persists the metadata row for an uploaded file.
func (r *Repository) AddAttachment(ctx context.Context, att model.AssetAttachment) error {
	if r.remote == nil {
		return ErrRemoteUnavailable
	}
	return r.remote.WithContext(ctx).Create(&att).Error
}

// ListAttachments returns the attachment rows of one asset in upload order.
func (r *Repository) ListAttachments(ctx context.Context, assetID string) ([]model.AssetAttachment, error) {
	if r.remote == nil {
		return nil, ErrRemoteUnavailable
	}
	var attachments []model.AssetAttachment
	err := r.remote.WithContext(ctx).
		Where("asset_id = ?", assetID).
		Order("created_at ASC, id ASC").
		Find(&attachments).Error
	return attachments, err
}

// FindAttachment looks up one attachment of an asset by its filename.
func (r *Repository) FindAttachment(ctx context.Context, assetID, fileName string) (model.AssetAttachment, error) {
	if r.remote == nil {
		return model.AssetAttachment{}, ErrRemoteUnavailable
	}
	var att model.AssetAttachment
	err := r.remote.WithContext(ctx).
		Where("asset_id = ? AND file_name = ?", assetID, fileName).
		Order("created_at DESC").
		First(&att).Error
	return att, err
}

// RemoveAttachment deletes the metadata row for a stored object path.
func (r *Repository) RemoveAttachment(ctx context.Context, assetID, filePath string) error {
	if r.remote == nil {
		return ErrRemoteUnavailable
	}
	return r.remote.WithContext(ctx).
		Where("asset_id = ? AND file_path = ?", assetID, filePath).
		Delete(&model.AssetAttachment{}).Error
}
