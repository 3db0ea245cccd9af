package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/tradebot/internal/api/http/handlers"
	"github.com/spec-kit/tradebot/internal/auth"
	"github.com/spec-kit/tradebot/internal/config"
	"github.com/spec-kit/tradebot/internal/domain"
	"github.com/spec-kit/tradebot/internal/events"
	"github.com/spec-kit/tradebot/internal/gateway"
	"github.com/spec-kit/tradebot/internal/observability"
	"github.com/spec-kit/tradebot/internal/persistence"
	"github.com/spec-kit/tradebot/internal/repository"
	"github.com/spec-kit/tradebot/internal/service"
)

const (
	testGatewayToken = "gw-secret"
	testAdminPass    = "let-me-in"
)

type testServer struct {
	app     *fiber.App
	gw      *gateway.Recorder
	metrics *observability.Metrics
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	store, err := persistence.NewSQLite(ctx, config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "http.db")}, logger)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(store.Close)

	hash, err := bcrypt.GenerateFromPassword([]byte(testAdminPass), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()
	service.NewNotificationService(dispatcher, logger, metrics).RegisterHandlers()

	gw := gateway.NewRecorder()
	guard := persistence.NewMemoryGuard()
	reputation := service.NewReputationService(service.ReputationDependencies{
		Repo:       repository.NewSQLiteReputationRepository(store.DB()),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	listings := service.NewListingService(service.ListingDependencies{
		Repo:       repository.NewSQLiteListingRepository(store.DB()),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	registry := service.NewSessionRegistry(service.SessionDependencies{
		Gateway:    gw,
		Reputation: reputation,
		Listings:   listings,
		Guard:      guard,
		Dispatcher: dispatcher,
		Logger:     logger,
		Settings: service.SessionSettings{
			ArchiveChannelID: "archive",
			FeedChannelID:    "feed",
			Disposition:      domain.DispositionRemove,
		},
	})
	scanner := service.NewExpiryScanner(service.ExpiryDependencies{
		Listings:   listings,
		Gateway:    gw,
		Guard:      guard,
		Dispatcher: dispatcher,
		Logger:     logger,
	})

	tokens := auth.NewTokenManager("test-secret", 5)
	authService := service.NewAuthService(config.AuthConfig{
		AdminUsername:     "admin",
		AdminPasswordHash: string(hash),
	}, tokens)

	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, time.Second)
	RegisterRoutes(app, RouteConfig{
		Health:     handlers.NewHealthHandler("tradebot", "test", "sqlite", store, nil),
		Gateway:    handlers.NewGatewayHandler(registry, listings),
		Reputation: handlers.NewReputationHandler(reputation),
		Listings:   handlers.NewListingsHandler(listings),
		Admin: handlers.NewAdminHandler(handlers.AdminDependencies{
			Reputation: reputation,
			Sessions:   registry,
			Scanner:    scanner,
			Metrics:    metrics,
		}),
		Auth:           handlers.NewAuthHandler(authService),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
		GatewayToken:   testGatewayToken,
	})
	return &testServer{app: app, gw: gw, metrics: metrics}
}

type apiResponse struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (int, apiResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var out apiResponse
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			t.Fatalf("decode %s %s (%d): %v: %s", method, path, resp.StatusCode, err, raw)
		}
	}
	return resp.StatusCode, out
}

func (s *testServer) gateway(t *testing.T, path string, body any) (int, apiResponse) {
	t.Helper()
	return s.do(t, fiber.MethodPost, path, body, map[string]string{auth.GatewayTokenHeader: testGatewayToken})
}

func (s *testServer) adminToken(t *testing.T) map[string]string {
	t.Helper()
	status, resp := s.do(t, fiber.MethodPost, "/auth/admin/login",
		map[string]string{"username": "admin", "password": testAdminPass}, nil)
	if status != fiber.StatusOK {
		t.Fatalf("login status %d: %+v", status, resp.Error)
	}
	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(resp.Data, &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + tok.AccessToken}
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)
	if status, _ := srv.do(t, fiber.MethodGet, "/health/live", nil, nil); status != fiber.StatusOK {
		t.Fatalf("live status %d", status)
	}
	if status, _ := srv.do(t, fiber.MethodGet, "/health/ready", nil, nil); status != fiber.StatusOK {
		t.Fatalf("ready status %d", status)
	}
}

func TestGatewayRequiresToken(t *testing.T) {
	srv := newTestServer(t)
	status, resp := srv.do(t, fiber.MethodPost, "/gateway/tickets", map[string]any{"channel_id": "c1"}, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	if resp.Error == nil || resp.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("unexpected error body %+v", resp.Error)
	}
}

func TestAdminRequiresBearer(t *testing.T) {
	srv := newTestServer(t)
	status, _ := srv.do(t, fiber.MethodGet, "/admin/tickets", nil, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", status)
	}
	status, _ = srv.do(t, fiber.MethodPost, "/auth/admin/login",
		map[string]string{"username": "admin", "password": "wrong"}, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected 401 on bad password, got %d", status)
	}
}

func TestUnknownRouteRendersErrorBody(t *testing.T) {
	srv := newTestServer(t)
	status, resp := srv.do(t, fiber.MethodGet, "/nope", nil, nil)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if resp.Error == nil || resp.Error.Code != "NOT_FOUND" {
		t.Fatalf("unexpected error body %+v", resp.Error)
	}
}

func TestTradeFlowOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.adminToken(t)

	status, resp := srv.do(t, fiber.MethodPost, "/admin/listings", map[string]any{
		"owner_id":    "seller",
		"kind":        "ACCOUNT",
		"channel_id":  "market",
		"message_ids": []string{"img", "detail"},
		"payload":     map[string]any{"level": 80},
	}, admin)
	if status != fiber.StatusCreated {
		t.Fatalf("create listing status %d: %+v", status, resp.Error)
	}
	var listing struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &listing); err != nil {
		t.Fatalf("decode listing: %v", err)
	}

	status, resp = srv.gateway(t, "/gateway/tickets", map[string]any{
		"channel_id":   "ticket-1",
		"participants": []string{"seller", "buyer"},
		"listing_id":   listing.ID,
	})
	if status != fiber.StatusCreated {
		t.Fatalf("open ticket status %d: %+v", status, resp.Error)
	}

	status, resp = srv.gateway(t, "/gateway/tickets/ticket-1/actions", map[string]string{"user_id": "stranger", "action": "complete"})
	if status != fiber.StatusForbidden || resp.Error.Code != "NOT_A_PARTICIPANT" {
		t.Fatalf("expected NOT_A_PARTICIPANT, got %d %+v", status, resp.Error)
	}

	for _, user := range []string{"seller", "buyer"} {
		status, resp = srv.gateway(t, "/gateway/tickets/ticket-1/actions", map[string]string{"user_id": user, "action": "complete"})
		if status != fiber.StatusOK {
			t.Fatalf("complete %s status %d: %+v", user, status, resp.Error)
		}
	}
	status, resp = srv.gateway(t, "/gateway/tickets/ticket-1/actions", map[string]string{"user_id": "buyer", "action": "complete"})
	if status != fiber.StatusConflict {
		t.Fatalf("expected conflict on repeated completion, got %d", status)
	}

	status, resp = srv.gateway(t, "/gateway/tickets/ticket-1/ratings", map[string]any{"user_id": "seller", "stars": 9})
	if status != fiber.StatusBadRequest || resp.Error.Code != "INVALID_RATING" {
		t.Fatalf("expected INVALID_RATING, got %d %+v", status, resp.Error)
	}

	status, resp = srv.gateway(t, "/gateway/tickets/ticket-1/ratings", map[string]any{"user_id": "seller", "stars": 5, "comment": "smooth"})
	if status != fiber.StatusCreated {
		t.Fatalf("seller rating status %d: %+v", status, resp.Error)
	}
	status, resp = srv.gateway(t, "/gateway/tickets/ticket-1/ratings", map[string]any{"user_id": "seller", "stars": 4})
	if status != fiber.StatusConflict || resp.Error.Code != "DUPLICATE_SUBMISSION" {
		t.Fatalf("expected DUPLICATE_SUBMISSION, got %d %+v", status, resp.Error)
	}
	status, resp = srv.gateway(t, "/gateway/tickets/ticket-1/ratings", map[string]any{"user_id": "buyer", "stars": 4})
	if status != fiber.StatusCreated {
		t.Fatalf("buyer rating status %d: %+v", status, resp.Error)
	}

	status, resp = srv.do(t, fiber.MethodGet, "/reputation/buyer", nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("reputation status %d: %+v", status, resp.Error)
	}
	var rep struct {
		TotalStars int     `json:"total_stars"`
		Count      int     `json:"count"`
		Average    float64 `json:"average"`
	}
	if err := json.Unmarshal(resp.Data, &rep); err != nil {
		t.Fatalf("decode reputation: %v", err)
	}
	if rep.TotalStars != 5 || rep.Count != 1 || rep.Average != 5 {
		t.Fatalf("unexpected buyer reputation %+v", rep)
	}

	if got := srv.gw.DeletedChannels(); len(got) != 1 || got[0] != "ticket-1" {
		t.Fatalf("expected ticket channel deleted, got %v", got)
	}
	if len(srv.gw.Sent("archive")) != 1 {
		t.Fatalf("expected one transcript upload, got %d", len(srv.gw.Sent("archive")))
	}

	status, resp = srv.do(t, fiber.MethodGet, "/admin/listings/"+listing.ID, nil, admin)
	if status != fiber.StatusOK {
		t.Fatalf("get listing status %d", status)
	}
	var after struct {
		Active bool `json:"active"`
	}
	if err := json.Unmarshal(resp.Data, &after); err != nil {
		t.Fatalf("decode listing: %v", err)
	}
	if after.Active {
		t.Fatal("expected listing retired after the trade")
	}

	status, _ = srv.gateway(t, "/gateway/tickets/ticket-1/actions", map[string]string{"user_id": "buyer", "action": "archive"})
	if status != fiber.StatusNotFound {
		t.Fatalf("expected archived ticket to be gone, got %d", status)
	}
}

func TestRatingTimeoutReturnsNoContent(t *testing.T) {
	srv := newTestServer(t)
	srv.gateway(t, "/gateway/tickets", map[string]any{"channel_id": "t2", "participants": []string{"a", "b"}})
	srv.gateway(t, "/gateway/tickets/t2/actions", map[string]string{"user_id": "a", "action": "complete"})
	srv.gateway(t, "/gateway/tickets/t2/actions", map[string]string{"user_id": "b", "action": "complete"})

	status, _ := srv.gateway(t, "/gateway/tickets/t2/ratings", map[string]any{"user_id": "a", "outcome": "timed_out"})
	if status != fiber.StatusNoContent {
		t.Fatalf("expected 204 on timed out prompt, got %d", status)
	}
	status, resp := srv.gateway(t, "/gateway/tickets/t2/ratings", map[string]any{"user_id": "a", "outcome": "later"})
	if status != fiber.StatusBadRequest || resp.Error.Code != "VALIDATION_FAILED" {
		t.Fatalf("expected validation failure, got %d %+v", status, resp.Error)
	}
}

func TestReputationEndpoints(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.adminToken(t)

	status, resp := srv.do(t, fiber.MethodGet, "/reputation/ghost", nil, nil)
	if status != fiber.StatusNotFound || resp.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected 404 for never-rated user, got %d %+v", status, resp.Error)
	}

	status, resp = srv.do(t, fiber.MethodPost, "/admin/vouches", map[string]any{"user_id": "u1", "stars": 4, "comment": "legit"}, admin)
	if status != fiber.StatusCreated {
		t.Fatalf("manual vouch status %d: %+v", status, resp.Error)
	}
	var rec struct {
		Comments []string `json:"comments"`
	}
	if err := json.Unmarshal(resp.Data, &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rec.Comments) != 1 || rec.Comments[0] != "Admin vouch by admin: legit" {
		t.Fatalf("unexpected comments %v", rec.Comments)
	}

	srv.do(t, fiber.MethodPost, "/admin/vouches", map[string]any{"user_id": "u2", "stars": 5}, admin)

	status, resp = srv.do(t, fiber.MethodGet, "/reputation/top?limit=1", nil, nil)
	if status != fiber.StatusOK {
		t.Fatalf("top status %d", status)
	}
	var top []struct {
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(resp.Data, &top); err != nil {
		t.Fatalf("decode top: %v", err)
	}
	if len(top) != 1 || top[0].UserID != "u2" {
		t.Fatalf("unexpected leaderboard %+v", top)
	}
}

func TestListingAdministration(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.adminToken(t)

	status, resp := srv.do(t, fiber.MethodPost, "/admin/listings", map[string]any{
		"owner_id": "o1", "kind": "GOLD", "channel_id": "gold-market", "message_ids": []string{"m1"},
	}, admin)
	if status != fiber.StatusCreated {
		t.Fatalf("create status %d: %+v", status, resp.Error)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Data, &created)

	status, resp = srv.do(t, fiber.MethodPost, "/admin/listings/"+created.ID+"/bump", nil, admin)
	if status != fiber.StatusTooManyRequests || resp.Error.Code != "COOLDOWN_ACTIVE" {
		t.Fatalf("expected cooldown, got %d %+v", status, resp.Error)
	}
	if _, ok := resp.Error.Details["available_at"]; !ok {
		t.Fatalf("expected available_at detail, got %+v", resp.Error.Details)
	}

	status, _ = srv.do(t, fiber.MethodPut, "/admin/listings/"+created.ID+"/payload", map[string]any{"payload": map[string]int{"price": 3}}, admin)
	if status != fiber.StatusNoContent {
		t.Fatalf("update payload status %d", status)
	}
	status, _ = srv.do(t, fiber.MethodPost, "/admin/listings/"+created.ID+"/touch", nil, admin)
	if status != fiber.StatusNoContent {
		t.Fatalf("touch status %d", status)
	}

	status, resp = srv.do(t, fiber.MethodGet, "/admin/listings?owner=o1", nil, admin)
	if status != fiber.StatusOK {
		t.Fatalf("list status %d", status)
	}
	var owned []json.RawMessage
	_ = json.Unmarshal(resp.Data, &owned)
	if len(owned) != 1 {
		t.Fatalf("expected one listing, got %d", len(owned))
	}

	for i := 0; i < 2; i++ {
		status, _ = srv.do(t, fiber.MethodDelete, "/admin/listings/"+created.ID, nil, admin)
		if status != fiber.StatusNoContent {
			t.Fatalf("deactivate #%d status %d", i, status)
		}
	}

	status, resp = srv.do(t, fiber.MethodPost, "/admin/listings/"+created.ID+"/bump", nil, admin)
	if status != fiber.StatusConflict || resp.Error.Code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE bumping inactive listing, got %d %+v", status, resp.Error)
	}

	status, resp = srv.do(t, fiber.MethodGet, "/admin/listings/missing", nil, admin)
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
}

func TestAdminExpiryAndMetrics(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.adminToken(t)

	status, resp := srv.do(t, fiber.MethodPost, "/admin/expiry/run", nil, admin)
	if status != fiber.StatusOK {
		t.Fatalf("expiry status %d: %+v", status, resp.Error)
	}
	var report service.ExpiryReport
	if err := json.Unmarshal(resp.Data, &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Skipped || report.Deactivated != 0 {
		t.Fatalf("unexpected report %+v", report)
	}

	status, resp = srv.do(t, fiber.MethodGet, "/admin/metrics", nil, admin)
	if status != fiber.StatusOK {
		t.Fatalf("metrics status %d", status)
	}
	var snap observability.Snapshot
	if err := json.Unmarshal(resp.Data, &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if snap.Events[string(events.EventExpirySweepFinished)] != 1 {
		t.Fatalf("expected sweep event counted, got %v", snap.Events)
	}
}

func TestGatewayListingsRequireOwner(t *testing.T) {
	srv := newTestServer(t)

	status, resp := srv.gateway(t, "/gateway/listings", map[string]any{
		"owner_id": "seller", "kind": "ACCOUNT", "channel_id": "market", "message_ids": []string{"m1"},
	})
	if status != fiber.StatusCreated {
		t.Fatalf("create status %d: %+v", status, resp.Error)
	}
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(resp.Data, &created)
	base := "/gateway/listings/" + created.ID

	status, resp = srv.gateway(t, base+"/bump", map[string]string{"user_id": "mallory"})
	if status != fiber.StatusForbidden || resp.Error.Code != "NOT_LISTING_OWNER" {
		t.Fatalf("expected NOT_LISTING_OWNER on bump, got %d %+v", status, resp.Error)
	}
	status, resp = srv.do(t, fiber.MethodPut, base+"/payload",
		map[string]any{"user_id": "mallory", "payload": map[string]int{"price": 1}},
		map[string]string{auth.GatewayTokenHeader: testGatewayToken})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 on edit by stranger, got %d", status)
	}
	status, _ = srv.gateway(t, base+"/deactivate", map[string]string{"user_id": "mallory"})
	if status != fiber.StatusForbidden {
		t.Fatalf("expected 403 on deactivate by stranger, got %d", status)
	}
	status, _ = srv.gateway(t, base+"/deactivate", map[string]string{})
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without user_id, got %d", status)
	}

	status, _ = srv.gateway(t, base+"/touch", map[string]string{"user_id": "buyer"})
	if status != fiber.StatusNoContent {
		t.Fatalf("touch status %d", status)
	}
	status, _ = srv.do(t, fiber.MethodPut, base+"/payload",
		map[string]any{"user_id": "seller", "payload": map[string]int{"price": 2}},
		map[string]string{auth.GatewayTokenHeader: testGatewayToken})
	if status != fiber.StatusNoContent {
		t.Fatalf("owner edit status %d", status)
	}
	status, _ = srv.gateway(t, base+"/deactivate", map[string]string{"user_id": "seller"})
	if status != fiber.StatusNoContent {
		t.Fatalf("owner deactivate status %d", status)
	}

	status, _ = srv.do(t, fiber.MethodPost, base+"/bump", map[string]string{"user_id": "seller"}, nil)
	if status != fiber.StatusUnauthorized {
		t.Fatalf("expected gateway token to be required, got %d", status)
	}
}

func TestArchiveDuringRatingNeedsModerator(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.adminToken(t)
	srv.gateway(t, "/gateway/tickets", map[string]any{"channel_id": "t3", "participants": []string{"a", "b"}})
	srv.gateway(t, "/gateway/tickets/t3/actions", map[string]string{"user_id": "a", "action": "complete"})
	srv.gateway(t, "/gateway/tickets/t3/actions", map[string]string{"user_id": "b", "action": "complete"})
	srv.gateway(t, "/gateway/tickets/t3/ratings", map[string]any{"user_id": "a", "stars": 2})

	status, resp := srv.gateway(t, "/gateway/tickets/t3/actions", map[string]string{"user_id": "a", "action": "archive"})
	if status != fiber.StatusConflict || resp.Error.Code != "INVALID_STATE" {
		t.Fatalf("expected INVALID_STATE archiving mid-rating, got %d %+v", status, resp.Error)
	}

	status, resp = srv.do(t, fiber.MethodPost, "/admin/tickets/t3/archive", nil, admin)
	if status != fiber.StatusOK {
		t.Fatalf("moderator archive status %d: %+v", status, resp.Error)
	}
	if got := srv.gw.DeletedChannels(); len(got) != 1 || got[0] != "t3" {
		t.Fatalf("expected ticket channel deleted, got %v", got)
	}
}
