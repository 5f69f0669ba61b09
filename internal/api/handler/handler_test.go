package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/campus_forum_server/config"
	"github.com/qs3c/campus_forum_server/internal/api/middleware"
	"github.com/qs3c/campus_forum_server/internal/pkg/jwt"
	"github.com/qs3c/campus_forum_server/internal/pkg/queue"
	"github.com/qs3c/campus_forum_server/internal/pkg/response"
	"github.com/qs3c/campus_forum_server/internal/repository"
	"github.com/qs3c/campus_forum_server/internal/service"
	"github.com/qs3c/campus_forum_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-handler"

type memoryQueue struct {
	mu   sync.Mutex
	jobs []*queue.PaymentJob
	err  error
}

func (q *memoryQueue) Push(ctx context.Context, job *queue.PaymentJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memoryQueue) pushed() []*queue.PaymentJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*queue.PaymentJob(nil), q.jobs...)
}

type testEnv struct {
	db      *gorm.DB
	router  *gin.Engine
	queue   *memoryQueue
	catalog *service.CatalogService
}

func setupTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{}
	for _, m := range mutate {
		m(cfg)
	}
	require.NoError(t, cfg.Validate())

	resourceRepo := repository.NewResourceRepository(db)
	store := repository.NewPaywallStore(db)
	catalog := service.NewCatalogService(resourceRepo, store.Entitlements(), cfg.Paywall.DefaultCurrency)
	directory := service.NewDirectoryService(repository.NewUserRepository(db), resourceRepo)
	manager := service.NewSessionManager(store, catalog, directory, cfg, zap.NewNop())

	q := &memoryQueue{}
	payments := NewPaymentHandler(manager, directory, q, cfg.Paywall.ProcessingDelay(), zap.NewNop())
	resources := NewResourceHandler(manager, catalog, directory, zap.NewNop())

	router := gin.New()
	api := router.Group("/api/v1")
	api.Use(middleware.Auth(testJWTSecret))
	api.GET("/resources/:id/access", resources.Access)
	api.POST("/resources/:id/unlock/initiate", payments.Initiate)
	api.POST("/resources/:id/unlock/free", resources.FreeUnlock)
	api.GET("/payments/sessions", payments.List)
	api.GET("/payments/sessions/:session_id", payments.Get)
	api.POST("/payments/sessions/:session_id/process", payments.Process)
	api.POST("/payments/sessions/:session_id/verify", payments.Verify)
	api.GET("/user/entitlements", resources.Entitlements)

	return &testEnv{db: db, router: router, queue: q, catalog: catalog}
}

// apiResponse Data 保留原始 JSON，便于按需解码
type apiResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, userID int64, body interface{}) apiResponse {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	token, err := jwt.GenerateToken(userID, testJWTSecret, 1)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func decode(t *testing.T, resp apiResponse, v interface{}) {
	t.Helper()
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

