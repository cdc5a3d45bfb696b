package store

import (
	"context"
	"errors"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"asset-ledger-backend/internal/mirror"
	"asset-ledger-backend/internal/model"
)

// Outcome is the result of a single-record write. When Conflict is set the
// write was rejected and Asset carries the store's current record; the caller
// must refresh its view before retrying.
type Outcome struct {
	Asset    model.Asset
	Conflict bool
	// Remote is false when the write only reached the local mirror.
	Remote bool
}

// Repository exposes the asset record set. It reads and writes through the
// remote store when one is configured and always keeps the local mirror in
// step, so a later offline read reflects the latest known state.
type Repository struct {
	remote *gorm.DB // nil puts the repository in cache-only mode
	mirror *mirror.Mirror
}

// NewRepository creates a repository. Passing a nil remote handle is the
// explicit way to run cache-only; there is no ambient fallback decision.
func NewRepository(remote *gorm.DB, m *mirror.Mirror) *Repository {
	return &Repository{remote: remote, mirror: m}
}

// DB exposes the remote handle for collaborators that manage their own tables
// (push subscriptions). Nil in cache-only mode.
func (r *Repository) DB() *gorm.DB {
	return r.remote
}

// upsertColumns is every column the bulk upsert may rewrite. The id stays the
// conflict key and is never reassigned.
var upsertColumns = []string{
	"asset_number", "equipment_name", "catalog_name", "description",
	"acquisition_date", "acquisition_amount", "lifespan_years", "factory",
	"building", "floor", "g", "u", "t", "status", "comment",
	"input_by", "assigned_to", "updated_at",
}

// FetchAll returns the full record set ordered by most-recently-updated
// first. It never fails: a remote error degrades to the mirrored copy, and an
// empty slice means genuinely nothing is available anywhere.
func (r *Repository) FetchAll(ctx context.Context) []model.Asset {
	if r.remote != nil {
		assets, err := r.fetchRemote(ctx)
		if err == nil {
			if err := r.mirror.ReplaceAll(ctx, assets); err != nil {
				log.Printf("Warning: failed to refresh mirror after remote read: %v", err)
			}
			return assets
		}
		log.Printf("Warning: remote fetch failed, serving mirrored data: %v", err)
	}

	assets, err := r.mirror.All(ctx)
	if err != nil {
		log.Printf("Warning: mirror read failed: %v", err)
		return []model.Asset{}
	}
	return assets
}

// UpsertOne writes a single record through the conflict resolution policy.
// baseline is the updatedAt the caller's view was loaded with. The write is
// rejected when the store already holds a strictly newer record, unless the
// candidate is content-identical to it (re-saving an unchanged record is a
// no-op, not a conflict).
func (r *Repository) UpsertOne(ctx context.Context, candidate model.Asset, baseline time.Time) Outcome {
	if r.remote == nil {
		return r.upsertLocal(ctx, candidate)
	}

	var out Outcome
	err := r.remote.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current model.Asset
		err := tx.Where("id = ?", candidate.ID).First(&current).Error
		switch {
		case err == nil:
			current.Attachments = attachmentNames(tx, current.ID)
			if contentEqual(current, candidate) {
				out = Outcome{Asset: current, Remote: true}
				return nil
			}
			if current.UpdatedAt.After(baseline) {
				out = Outcome{Asset: current, Conflict: true, Remote: true}
				return nil
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// First write for this id.
		default:
			return err
		}

		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&candidate).Error; err != nil {
			return err
		}
		out = Outcome{Asset: candidate, Remote: true}
		return nil
	})
	if err != nil {
		log.Printf("Warning: remote write for asset %s failed, keeping it in the mirror only: %v", candidate.ID, err)
		return r.upsertLocal(ctx, candidate)
	}

	// Write through, also on conflict: the stored record is the freshest view.
	if err := r.mirror.Put(ctx, out.Asset); err != nil {
		log.Printf("Warning: mirror write-through for asset %s failed: %v", out.Asset.ID, err)
	}
	return out
}

// UpsertMany is the bulk path used by CSV import. It writes last-write-wins at
// the store level; staleness interception is reserved for the single-record
// workflow writes.
func (r *Repository) UpsertMany(ctx context.Context, candidates []model.Asset) []model.Asset {
	if len(candidates) == 0 {
		return []model.Asset{}
	}

	if r.remote != nil {
		err := r.remote.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&candidates).Error
		if err != nil {
			log.Printf("Warning: bulk remote write of %d assets failed, keeping them in the mirror only: %v", len(candidates), err)
		}
	}

	if err := r.mirror.PutAll(ctx, candidates); err != nil {
		log.Printf("Warning: bulk mirror write of %d assets failed: %v", len(candidates), err)
	}
	return candidates
}

// upsertLocal is the offline path. Conflicts cannot be detected without the
// remote store, so the write is taken at face value.
func (r *Repository) upsertLocal(ctx context.Context, candidate model.Asset) Outcome {
	if err := r.mirror.Put(ctx, candidate); err != nil {
		log.Printf("Warning: mirror write for asset %s failed: %v", candidate.ID, err)
	}
	return Outcome{Asset: candidate}
}

func (r *Repository) fetchRemote(ctx context.Context) ([]model.Asset, error) {
	var assets []model.Asset
	if err := r.remote.WithContext(ctx).
		Order("updated_at DESC").
		Find(&assets).Error; err != nil {
		return nil, err
	}
	if len(assets) == 0 {
		return assets, nil
	}

	ids := make([]string, len(assets))
	for i, a := range assets {
		ids[i] = a.ID
	}
	var attachments []model.AssetAttachment
	if err := r.remote.WithContext(ctx).
		Where("asset_id IN ?", ids).
		Order("created_at ASC, id ASC").
		Find(&attachments).Error; err != nil {
		return nil, err
	}

	byAsset := make(map[string][]string, len(assets))
	for _, att := range attachments {
		byAsset[att.AssetID] = append(byAsset[att.AssetID], att.FileName)
	}
	for i := range assets {
		assets[i].Attachments = byAsset[assets[i].ID]
	}
	return assets, nil
}

// attachmentNames loads the filenames for one asset in upload order. Best
// effort: a read failure just yields an empty list.
func attachmentNames(tx *gorm.DB, assetID string) []string {
	var attachments []model.AssetAttachment
	if err := tx.Where("asset_id = ?", assetID).
		Order("created_at ASC, id ASC").
		Find(&attachments).Error; err != nil {
		log.Printf("Warning: failed to load attachments for asset %s: %v", assetID, err)
		return nil
	}
	names := make([]string, len(attachments))
	for i, att := range attachments {
		names[i] = att.FileName
	}
	return names
}

// contentEqual compares every field a workflow write can carry, ignoring the
// timestamps the store manages.
func contentEqual(a, b model.Asset) bool {
	return a.ID == b.ID &&
		a.AssetNumber == b.AssetNumber &&
		a.EquipmentName == b.EquipmentName &&
		a.CatalogName == b.CatalogName &&
		a.Description == b.Description &&
		a.AcquisitionDate == b.AcquisitionDate &&
		int64PtrEqual(a.AcquisitionAmount, b.AcquisitionAmount) &&
		intPtrEqual(a.LifespanYears, b.LifespanYears) &&
		a.Factory == b.Factory &&
		a.Building == b.Building &&
		a.Floor == b.Floor &&
		intPtrEqual(a.G, b.G) &&
		intPtrEqual(a.U, b.U) &&
		intPtrEqual(a.T, b.T) &&
		a.Status == b.Status &&
		a.Comment == b.Comment &&
		a.InputBy == b.InputBy &&
		a.AssignedTo == b.AssignedTo
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
