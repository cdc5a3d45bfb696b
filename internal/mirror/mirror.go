package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"asset-ledger-backend/internal/model"
)

// record is one mirrored asset, stored as a JSON payload so the mirror schema
// never has to chase the remote schema.
type record struct {
	Namespace string    `gorm:"primaryKey;size:128"`
	ID        string    `gorm:"primaryKey;size:64"`
	Payload   string    `gorm:"not null"`
	UpdatedAt time.Time `gorm:"index;autoUpdateTime:false"`
}

func (record) TableName() string { return "mirror_assets" }

// Mirror is the durable local copy of the last-known record set. It is the
// read source when the remote store is unreachable and the write-through
// target on every successful remote write.
type Mirror struct {
	db        *gorm.DB
	namespace string
}

// Open opens (or creates) the SQLite mirror at path. The namespace scopes all
// rows written through this handle, so several record sets can share one file.
func Open(path, namespace string) (*Mirror, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open mirror database: %w", err)
	}
	return New(db, namespace)
}

// New wraps an existing GORM handle. Used directly by tests.
func New(db *gorm.DB, namespace string) (*Mirror, error) {
	if namespace == "" {
		return nil, fmt.Errorf("mirror namespace must not be empty")
	}
	if err := db.AutoMigrate(&record{}); err != nil {
		return nil, fmt.Errorf("mirror automigrate failed: %w", err)
	}
	return &Mirror{db: db, namespace: namespace}, nil
}

// Put stores or replaces a single asset.
func (m *Mirror) Put(ctx context.Context, asset model.Asset) error {
	rec, err := m.encode(asset)
	if err != nil {
		return err
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&rec).Error
}

// PutAll stores or replaces the given assets without touching rows that are
// not in the batch.
func (m *Mirror) PutAll(ctx context.Context, assets []model.Asset) error {
	if len(assets) == 0 {
		return nil
	}
	recs := make([]record, 0, len(assets))
	for _, a := range assets {
		rec, err := m.encode(a)
		if err != nil {
			return err
		}
		recs = append(recs, rec)
	}
	return m.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
	}).Create(&recs).Error
}

// ReplaceAll makes the mirror an exact copy of the given set.
func (m *Mirror) ReplaceAll(ctx context.Context, assets []model.Asset) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("namespace = ?", m.namespace).Delete(&record{}).Error; err != nil {
			return fmt.Errorf("failed to clear mirror namespace %q: %w", m.namespace, err)
		}
		for _, a := range assets {
			rec, err := m.encode(a)
			if err != nil {
				return err
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to write mirror record %s: %w", a.ID, err)
			}
		}
		return nil
	})
}

// All returns the mirrored set ordered by most-recently-updated first.
// Rows whose payload no longer decodes are skipped, not fatal.
func (m *Mirror) All(ctx context.Context) ([]model.Asset, error) {
	var recs []record
	if err := m.db.WithContext(ctx).
		Where("namespace = ?", m.namespace).
		Order("updated_at DESC").
		Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to read mirror: %w", err)
	}

	assets := make([]model.Asset, 0, len(recs))
	for _, rec := range recs {
		var a model.Asset
		if err := json.Unmarshal([]byte(rec.Payload), &a); err != nil {
			log.Printf("Warning: dropping corrupt mirror record %s/%s: %v", rec.Namespace, rec.ID, err)
			continue
		}
		assets = append(assets, a)
	}
	return assets, nil
}

func (m *Mirror) encode(asset model.Asset) (record, error) {
	payload, err := json.Marshal(asset)
	if err != nil {
		return record{}, fmt.Errorf("failed to encode asset %s for mirror: %w", asset.ID, err)
	}
	return record{
		Namespace: m.namespace,
		ID:        asset.ID,
		Payload:   string(payload),
		UpdatedAt: asset.UpdatedAt,
	}, nil
}
