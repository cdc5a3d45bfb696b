package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"asset-ledger-backend/internal/mirror"
	"asset-ledger-backend/internal/model"
	"asset-ledger-backend/internal/store"
	"asset-ledger-backend/internal/workflow"
)

func newSubscriptionRouter(t *testing.T, withRemote bool) (*gin.Engine, *gorm.DB) {
	gin.SetMode(gin.TestMode)

	name := strings.ReplaceAll(t.Name(), "/", "_")
	open := func(suffix string) *gorm.DB {
		db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s_%s?mode=memory&cache=shared", name, suffix)), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		require.NoError(t, err)
		return db
	}

	var remote *gorm.DB
	if withRemote {
		remote = open("remote")
		require.NoError(t, remote.AutoMigrate(&model.Asset{}, &model.AssetAttachment{}, &model.PushSubscription{}))
	}
	m, err := mirror.New(open("mirror"), "asset-ledger-test:v1")
	require.NoError(t, err)

	repo := store.NewRepository(remote, m)
	h := NewHandler(repo, workflow.NewMachine(repo), nil, nil, nil)

	r := gin.New()
	r.GET("/api/subscriptions", h.GetSubscription)
	r.PUT("/api/subscriptions", h.PutSubscription)
	r.DELETE("/api/subscriptions", h.DeleteSubscription)
	return r, remote
}

func TestSubscriptionLifecycle(t *testing.T) {
	router, remote := newSubscriptionRouter(t, true)

	require.NoError(t, remote.Create(&model.Asset{
		ID: "A-1", AssetNumber: "A-1", Status: model.StatusUnfilled, UpdatedAt: time.Now(),
	}).Error)

	endpoint := "https://example.com/push/abc"

	w := httptest.NewRecorder()
	body := fmt.Sprintf(`{"endpoint":%q,"p256dh":"key","auth":"secret","subscribed_assets":["A-1"]}`, endpoint)
	req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", strings.NewReader(body))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_assets":["A-1"]}`, w.Body.String())

	// Replacing the subscription replaces the asset set.
	w = httptest.NewRecorder()
	body = fmt.Sprintf(`{"endpoint":%q,"p256dh":"key","auth":"secret"}`, endpoint)
	req, _ = http.NewRequest(http.MethodPut, "/api/subscriptions", strings.NewReader(body))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"subscribed_assets":[]}`, w.Body.String())

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodDelete, "/api/subscriptions", strings.NewReader(fmt.Sprintf(`{"endpoint":%q}`, endpoint)))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint="+endpoint, nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPutSubscriptionRejectsEmptyBody(t *testing.T) {
	router, _ := newSubscriptionRouter(t, true)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", strings.NewReader(""))
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionsNeedTheRemoteStore(t *testing.T) {
	router, _ := newSubscriptionRouter(t, false)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint=x", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
