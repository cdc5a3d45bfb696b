package mirror

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asset-ledger-backend/internal/model"
)

func newTestMirror(t *testing.T, namespace string) (*Mirror, *gorm.DB) {
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	m, err := New(db, namespace)
	require.NoError(t, err)
	return m, db
}

func mirrorAsset(id string, updatedAt time.Time) model.Asset {
	return model.Asset{
		ID: id, AssetNumber: id, EquipmentName: "旋盤",
		Status: model.StatusUnfilled, UpdatedAt: updatedAt,
	}
}

func TestNewRequiresNamespace(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:mirror_ns?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	_, err = New(db, "")
	assert.Error(t, err)
}

func TestPutAndAll(t *testing.T) {
	m, _ := newTestMirror(t, "test:v1")
	ctx := context.Background()

	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, m.Put(ctx, mirrorAsset("M-1", t0)))
	require.NoError(t, m.Put(ctx, mirrorAsset("M-2", t0.Add(time.Minute))))

	// Replacing an existing row keeps the set at two.
	updated := mirrorAsset("M-1", t0.Add(2*time.Minute))
	updated.Building = "1号館"
	require.NoError(t, m.Put(ctx, updated))

	assets, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 2)
	assert.Equal(t, "M-1", assets[0].ID, "most recently updated first")
	assert.Equal(t, "1号館", assets[0].Building)
	assert.Equal(t, "M-2", assets[1].ID)
}

func TestReplaceAll(t *testing.T) {
	m, _ := newTestMirror(t, "test:v1")
	ctx := context.Background()

	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, m.PutAll(ctx, []model.Asset{
		mirrorAsset("M-1", t0), mirrorAsset("M-2", t0), mirrorAsset("M-3", t0),
	}))

	require.NoError(t, m.ReplaceAll(ctx, []model.Asset{mirrorAsset("M-9", t0)}))

	assets, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1, "rows absent from the new set are dropped")
	assert.Equal(t, "M-9", assets[0].ID)
}

func TestNamespacesAreIsolated(t *testing.T) {
	a, db := newTestMirror(t, "tenant-a:v1")
	b, err := New(db, "tenant-b:v1")
	require.NoError(t, err)
	ctx := context.Background()

	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, a.Put(ctx, mirrorAsset("M-1", t0)))
	require.NoError(t, b.Put(ctx, mirrorAsset("M-2", t0)))

	// A full replace in one namespace must not touch the other.
	require.NoError(t, a.ReplaceAll(ctx, nil))

	fromA, err := a.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, fromA)

	fromB, err := b.All(ctx)
	require.NoError(t, err)
	require.Len(t, fromB, 1)
	assert.Equal(t, "M-2", fromB[0].ID)
}

func TestAllSkipsCorruptRows(t *testing.T) {
	m, db := newTestMirror(t, "test:v1")
	ctx := context.Background()

	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, m.Put(ctx, mirrorAsset("M-1", t0)))
	require.NoError(t, db.Exec(
		"INSERT INTO mirror_assets (namespace, id, payload, updated_at) VALUES (?, ?, ?, ?)",
		"test:v1", "M-broken", "{not json", t0,
	).Error)

	assets, err := m.All(ctx)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "M-1", assets[0].ID)
}
