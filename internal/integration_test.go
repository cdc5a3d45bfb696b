package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asset-ledger-backend/config"
	"asset-ledger-backend/internal/api"
	"asset-ledger-backend/internal/mirror"
	"asset-ledger-backend/internal/model"
	"asset-ledger-backend/internal/store"
	"asset-ledger-backend/internal/workflow"
)

type assetPayload struct {
	ID        string `json:"id"`
	Building  string `json:"building"`
	Floor     string `json:"floor"`
	Status    string `json:"status"`
	Comment   string `json:"comment"`
	G         *int   `json:"g"`
	U         *int   `json:"u"`
	T         *int   `json:"t"`
	UpdatedAt string `json:"updatedAt"`
}

type mutationResponse struct {
	Asset  assetPayload `json:"asset"`
	Remote bool         `json:"remote"`
	Error  string       `json:"error"`
}

type testServer struct {
	t      *testing.T
	server *httptest.Server
	cache  *cache.Cache
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	open := func(suffix string) *gorm.DB {
		db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, suffix)), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err)
		return db
	}

	remote := open("remote")
	require.NoError(t, remote.AutoMigrate(&model.Asset{}, &model.AssetAttachment{}, &model.PushSubscription{}))
	m, err := mirror.New(open("mirror"), "asset-ledger-test:v1")
	require.NoError(t, err)

	repo := store.NewRepository(remote, m)
	flow := workflow.NewMachine(repo)

	cacheStore := cache.New(time.Minute, time.Minute)
	handler := api.NewHandler(repo, flow, nil, nil, nil)
	router := api.NewRouter(handler, cacheStore, &config.ServerConfig{
		RateLimitPerSec: 10000,
		CacheTTLSeconds: 60,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, server: srv, cache: cacheStore}
}

// flush stands in for the synchronization loop, which clears the response
// cache whenever the record set changes.
func (ts *testServer) flush() { ts.cache.Flush() }

func (ts *testServer) do(method, path, role string, body any) (*http.Response, []byte) {
	ts.t.Helper()

	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = strings.NewReader(b)
		default:
			encoded, err := json.Marshal(b)
			require.NoError(ts.t, err)
			reader = bytes.NewReader(encoded)
		}
	}

	req, err := http.NewRequest(method, ts.server.URL+path, reader)
	require.NoError(ts.t, err)
	if role != "" {
		req.Header.Set("X-Actor-Role", role)
	}
	if _, ok := body.(string); !ok && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.server.Client().Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(ts.t, err)
	return resp, raw
}

func (ts *testServer) mutate(method, path, role string, body any, wantStatus int) mutationResponse {
	ts.t.Helper()
	resp, raw := ts.do(method, path, role, body)
	require.Equal(ts.t, wantStatus, resp.StatusCode, "unexpected status for %s %s: %s", method, path, raw)
	var out mutationResponse
	require.NoError(ts.t, json.Unmarshal(raw, &out))
	return out
}

const importCSV = `資産番号,設備名,工場,ステータス,入力者,更新日時
D-001,NC旋盤,本社工場,未入力,山田,2026-01-05T09:00:00Z
D-002,プレス機,第二工場,未入力,鈴木,2026-01-05T09:00:00Z
`

// TestLedgerLifecycle walks one entry from import through review over the
// HTTP surface: the customer fills and submits it, a stale device hits the
// conflict response, and the reviewer scores and approves.
func TestLedgerLifecycle(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.do(http.MethodPost, "/api/assets/import", "", importCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%s", raw)
	var imported struct {
		Imported int `json:"imported"`
	}
	require.NoError(t, json.Unmarshal(raw, &imported))
	assert.Equal(t, 2, imported.Imported)

	ts.flush()
	resp, raw = ts.do(http.MethodGet, "/api/assets", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []assetPayload
	require.NoError(t, json.Unmarshal(raw, &listed))
	require.Len(t, listed, 2)

	var baseline string
	for _, a := range listed {
		if a.ID == "D-001" {
			baseline = a.UpdatedAt
		}
	}
	require.NotEmpty(t, baseline)

	// The customer fills in the location.
	edited := ts.mutate(http.MethodPut, "/api/assets/D-001", "customer", map[string]any{
		"baselineUpdatedAt": baseline,
		"edit":              map[string]any{"building": "1号館", "floor": "2F"},
	}, http.StatusOK)
	assert.Equal(t, "1号館", edited.Asset.Building)
	assert.True(t, edited.Remote)

	// A second device still holding the import-time baseline loses.
	stale := ts.mutate(http.MethodPut, "/api/assets/D-001", "customer", map[string]any{
		"baselineUpdatedAt": baseline,
		"edit":              map[string]any{"building": "別館"},
	}, http.StatusConflict)
	assert.Equal(t, "1号館", stale.Asset.Building, "the conflict response carries the current record")
	assert.NotEmpty(t, stale.Error)

	submitted := ts.mutate(http.MethodPost, "/api/assets/D-001/submit", "customer", map[string]any{
		"baselineUpdatedAt": edited.Asset.UpdatedAt,
		"edit":              map[string]any{},
	}, http.StatusOK)
	assert.Equal(t, "pending_review", submitted.Asset.Status)

	// The record is no longer the customer's to edit.
	locked := ts.mutate(http.MethodPut, "/api/assets/D-001", "customer", map[string]any{
		"baselineUpdatedAt": submitted.Asset.UpdatedAt,
		"edit":              map[string]any{"description": "late edit"},
	}, http.StatusForbidden)
	assert.NotEmpty(t, locked.Error)

	// The reviewer cannot approve without full scores.
	ts.mutate(http.MethodPost, "/api/assets/D-001/approve", "reviewer", map[string]any{
		"baselineUpdatedAt": submitted.Asset.UpdatedAt,
		"edit":              map[string]any{"g": 2, "u": 2},
	}, http.StatusUnprocessableEntity)

	approved := ts.mutate(http.MethodPost, "/api/assets/D-001/approve", "reviewer", map[string]any{
		"baselineUpdatedAt": submitted.Asset.UpdatedAt,
		"edit":              map[string]any{"g": 2, "u": 2, "t": 2},
	}, http.StatusOK)
	assert.Equal(t, "approved", approved.Asset.Status)
	require.NotNil(t, approved.Asset.G)
	assert.Equal(t, 2, *approved.Asset.G)
}

// TestRejectionRoundTrip covers the reviewer sending an entry back and the
// customer resubmitting it.
func TestRejectionRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.do(http.MethodPost, "/api/assets/import", "", importCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%s", raw)

	ts.flush()
	_, raw = ts.do(http.MethodGet, "/api/assets", "", nil)
	var listed []assetPayload
	require.NoError(t, json.Unmarshal(raw, &listed))
	var baseline string
	for _, a := range listed {
		if a.ID == "D-002" {
			baseline = a.UpdatedAt
		}
	}
	require.NotEmpty(t, baseline)

	submitted := ts.mutate(http.MethodPost, "/api/assets/D-002/submit", "customer", map[string]any{
		"baselineUpdatedAt": baseline,
		"edit":              map[string]any{"building": "2号館", "floor": "1F"},
	}, http.StatusOK)

	// A rejection without a reason is refused.
	ts.mutate(http.MethodPost, "/api/assets/D-002/reject", "reviewer", map[string]any{
		"baselineUpdatedAt": submitted.Asset.UpdatedAt,
		"comment":           "  ",
	}, http.StatusUnprocessableEntity)

	rejected := ts.mutate(http.MethodPost, "/api/assets/D-002/reject", "reviewer", map[string]any{
		"baselineUpdatedAt": submitted.Asset.UpdatedAt,
		"comment":           "取得金額の根拠資料が不足",
	}, http.StatusOK)
	assert.Equal(t, "rejected", rejected.Asset.Status)
	assert.Equal(t, "取得金額の根拠資料が不足", rejected.Asset.Comment)

	resubmitted := ts.mutate(http.MethodPost, "/api/assets/D-002/submit", "customer", map[string]any{
		"baselineUpdatedAt": rejected.Asset.UpdatedAt,
		"edit":              map[string]any{"description": "指摘事項を修正"},
	}, http.StatusOK)
	assert.Equal(t, "pending_review", resubmitted.Asset.Status)
}

func TestSummaryAndExport(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.do(http.MethodPost, "/api/assets/import", "", importCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%s", raw)

	ts.flush()
	_, raw = ts.do(http.MethodGet, "/api/assets", "", nil)
	var listed []assetPayload
	require.NoError(t, json.Unmarshal(raw, &listed))
	var baseline string
	for _, a := range listed {
		if a.ID == "D-001" {
			baseline = a.UpdatedAt
		}
	}

	submitted := ts.mutate(http.MethodPost, "/api/assets/D-001/submit", "customer", map[string]any{
		"baselineUpdatedAt": baseline,
		"edit":              map[string]any{"building": "1号館", "floor": "2F"},
	}, http.StatusOK)
	ts.mutate(http.MethodPost, "/api/assets/D-001/approve", "reviewer", map[string]any{
		"baselineUpdatedAt": submitted.Asset.UpdatedAt,
		"edit":              map[string]any{"g": 3, "u": 3, "t": 1},
	}, http.StatusOK)

	ts.flush()
	resp, raw = ts.do(http.MethodGet, "/api/assets/summary", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary struct {
		Total        int            `json:"total"`
		ByStatus     map[string]int `json:"byStatus"`
		Scored       int            `json:"scored"`
		AverageScore float64        `json:"averageScore"`
		RiskBands    map[string]int `json:"riskBands"`
	}
	require.NoError(t, json.Unmarshal(raw, &summary))
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.ByStatus["approved"])
	assert.Equal(t, 1, summary.ByStatus["unfilled"])
	assert.Equal(t, 1, summary.Scored)
	assert.InDelta(t, 9.0, summary.AverageScore, 0.001)
	assert.Equal(t, 1, summary.RiskBands["high"])

	resp, raw = ts.do(http.MethodGet, "/api/assets/export", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	body := string(raw)
	assert.True(t, strings.HasPrefix(body, "資産番号,"))
	assert.Contains(t, body, "D-001")
	assert.Contains(t, body, "承認済み")
}

func TestRequestValidation(t *testing.T) {
	ts := newTestServer(t)

	resp, raw := ts.do(http.MethodPost, "/api/assets/import", "", importCSV)
	require.Equal(t, http.StatusOK, resp.StatusCode, "%s", raw)

	t.Run("mutations need a recognized role", func(t *testing.T) {
		resp, _ := ts.do(http.MethodPut, "/api/assets/D-001", "", map[string]any{
			"baselineUpdatedAt": time.Now().UTC().Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		resp, _ = ts.do(http.MethodPut, "/api/assets/D-001", "auditor", map[string]any{
			"baselineUpdatedAt": time.Now().UTC().Format(time.RFC3339),
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("mutations need a baseline", func(t *testing.T) {
		resp, _ := ts.do(http.MethodPut, "/api/assets/D-001", "customer", map[string]any{
			"edit": map[string]any{"building": "1号館"},
		})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("unknown assets are 404", func(t *testing.T) {
		resp, _ := ts.do(http.MethodPut, "/api/assets/NOPE", "customer", map[string]any{
			"baselineUpdatedAt": time.Now().UTC().Format(time.RFC3339),
			"edit":              map[string]any{"building": "1号館"},
		})
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("a broken CSV aborts the import", func(t *testing.T) {
		resp, _ := ts.do(http.MethodPost, "/api/assets/import", "", "設備名\n旋盤\n")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}
