package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/qs3c/campus_forum_server/config"
	"github.com/qs3c/campus_forum_server/internal/api/handler"
	"github.com/qs3c/campus_forum_server/internal/pkg/jwt"
	"github.com/qs3c/campus_forum_server/internal/pkg/ws"
	"github.com/qs3c/campus_forum_server/internal/repository"
	"github.com/qs3c/campus_forum_server/internal/service"
	"github.com/qs3c/campus_forum_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupRouter(t *testing.T) (*gin.Engine, *ws.Hub, *config.Config) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		JWT:     config.JWTConfig{Secret: "router-secret", ExpireHours: 1},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	require.NoError(t, cfg.Validate())

	resourceRepo := repository.NewResourceRepository(db)
	store := repository.NewPaywallStore(db)
	catalog := service.NewCatalogService(resourceRepo, store.Entitlements(), cfg.Paywall.DefaultCurrency)
	directory := service.NewDirectoryService(repository.NewUserRepository(db), resourceRepo)
	manager := service.NewSessionManager(store, catalog, directory, cfg, zap.NewNop())

	hub := ws.NewHub(zap.NewNop())
	router := NewRouter(
		handler.NewPaymentHandler(manager, directory, nil, cfg.Paywall.ProcessingDelay(), zap.NewNop()),
		handler.NewResourceHandler(manager, catalog, directory, zap.NewNop()),
		handler.NewWebSocketHandler(hub, cfg.JWT.Secret, nil, zap.NewNop()),
		cfg,
		zap.NewNop(),
	)
	return router.Setup(), hub, cfg
}

func TestRouter_Routes(t *testing.T) {
	engine, _, _ := setupRouter(t)

	routes := map[string]bool{}
	for _, r := range engine.Routes() {
		routes[r.Method+" "+r.Path] = true
	}

	for _, want := range []string{
		"GET /metrics",
		"GET /api/v1/ws",
		"GET /api/v1/resources/:id/access",
		"POST /api/v1/resources/:id/unlock/initiate",
		"POST /api/v1/resources/:id/unlock/free",
		"GET /api/v1/payments/sessions",
		"GET /api/v1/payments/sessions/:session_id",
		"POST /api/v1/payments/sessions/:session_id/process",
		"POST /api/v1/payments/sessions/:session_id/verify",
		"GET /api/v1/user/entitlements",
	} {
		assert.True(t, routes[want], "route %s should be registered", want)
	}
}

func TestRouter_Metrics(t *testing.T) {
	engine, _, _ := setupRouter(t)

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "paywall_sessions_created_total")
}

func TestRouter_RequiresAuth(t *testing.T) {
	engine, _, _ := setupRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/user/entitlements", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `"code":1001`)
}

func TestRouter_AnonymousAccess(t *testing.T) {
	engine, _, _ := setupRouter(t)

	req := httptest.NewRequest("GET", "/api/v1/resources/99999/access", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), `"code":1003`)
}

func TestRouter_WebSocket(t *testing.T) {
	engine, hub, cfg := setupRouter(t)
	server := httptest.NewServer(engine)
	defer server.Close()

	base := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := jwt.GenerateToken(11, cfg.JWT.Secret, 1)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool {
		return hub.IsOnline(11)
	}, 2*time.Second, 10*time.Millisecond)
}
