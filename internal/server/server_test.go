package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"newsletter-relay/config"
	"newsletter-relay/internal/domain/subscriber"
	"newsletter-relay/internal/handler"
	"newsletter-relay/internal/redis"
	"newsletter-relay/internal/repository"
	"newsletter-relay/internal/server"
	"newsletter-relay/internal/services"
	"newsletter-relay/internal/testutil"
)

type testAPI struct {
	engine http.Handler
	db     *gorm.DB
	auth   *services.AuthService
}

func newTestAPI(t *testing.T, limiter *redis.RateLimiter) *testAPI {
	t.Helper()
	db := testutil.NewDB(t)
	testutil.AddSubscribers(t, db, subscriber.StatusConfirmed, "a@example.com", "b@example.com", "c@example.com")

	queue := repository.NewOutboxRepository(db)
	executor := services.NewCommandExecutor(
		db,
		repository.NewIdempotencyRepository(db),
		queue,
		repository.NewIssueRepository(db),
		repository.NewSubscriberRepository(db),
		services.ExecutorConfig{Timeout: 5 * time.Second, RedirectPath: "/admin/newsletters"},
	)
	auth := services.NewAuthService("test-secret", time.Hour)

	srv := server.New(&config.Config{AppPort: "0", AppMode: server.TestMode}, nil)
	srv.SetupRoutes(&server.Handlers{
		Newsletter: handler.NewNewsletterHandler(executor),
		Outbox:     handler.NewOutboxHandler(services.NewOutboxService(queue, repository.NewIssueRepository(db))),
	}, server.Dependencies{DB: db, Auth: auth, RateLimiter: limiter})

	return &testAPI{engine: srv.Engine(), db: db, auth: auth}
}

func (a *testAPI) token(t *testing.T, actor uuid.UUID) string {
	t.Helper()
	token, err := a.auth.IssueAccessToken(actor)
	require.NoError(t, err)
	return token
}

func (a *testAPI) publishJSON(t *testing.T, token string, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.engine.ServeHTTP(rec, req)
	return rec
}

func issueBody(key string) map[string]string {
	return map[string]string{
		"title":           "T",
		"html":            "H",
		"plain":           "P",
		"idempotency_key": key,
	}
}

func TestPublishRequiresBearerToken(t *testing.T) {
	api := newTestAPI(t, nil)

	rec := api.publishJSON(t, "", issueBody("K1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = api.publishJSON(t, "garbage", issueBody("K1"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublishAndReplay(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.token(t, uuid.New())

	first := api.publishJSON(t, token, issueBody("K1"))
	require.Equal(t, http.StatusSeeOther, first.Code)
	assert.Equal(t, "/admin/newsletters", first.Header().Get("Location"))
	assert.Equal(t, "text/plain; charset=utf-8", first.Header().Get("Content-Type"))
	assert.NotEmpty(t, first.Header().Get(services.HeaderIssueID))
	assert.NotEmpty(t, first.Header().Get("X-Request-Id"))
	assert.Equal(t, "The newsletter issue has been accepted - emails will go out shortly!", first.Body.String())

	second := api.publishJSON(t, token, issueBody("K1"))
	require.Equal(t, http.StatusSeeOther, second.Code)
	assert.Equal(t, first.Body.Bytes(), second.Body.Bytes())
	assert.Equal(t, first.Header().Get(services.HeaderIssueID), second.Header().Get(services.HeaderIssueID))

	var issues, tasks int64
	require.NoError(t, api.db.Table("newsletter_issues").Count(&issues).Error)
	require.NoError(t, api.db.Table("issue_delivery_queue").Count(&tasks).Error)
	assert.EqualValues(t, 1, issues)
	assert.EqualValues(t, 3, tasks)
}

func TestPublishAcceptsFormBody(t *testing.T) {
	api := newTestAPI(t, nil)

	form := url.Values{}
	form.Set("title", "T")
	form.Set("html", "H")
	form.Set("plain", "P")
	form.Set("idempotency_key", "form-key")
	req := httptest.NewRequest(http.MethodPost, "/admin/newsletters", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+api.token(t, uuid.New()))
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
}

func TestPublishValidationError(t *testing.T) {
	api := newTestAPI(t, nil)
	body := issueBody("K1")
	body["title"] = ""

	rec := api.publishJSON(t, api.token(t, uuid.New()), body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestOutboxStats(t *testing.T) {
	api := newTestAPI(t, nil)
	token := api.token(t, uuid.New())
	published := api.publishJSON(t, token, issueBody("K1"))
	require.Equal(t, http.StatusSeeOther, published.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/outbox?issue_id="+published.Header().Get(services.HeaderIssueID), nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool `json:"success"`
		Data    struct {
			Pending int64  `json:"pending"`
			Issues  *int64 `json:"issues"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.EqualValues(t, 3, body.Data.Pending)
	assert.Nil(t, body.Data.Issues)

	req = httptest.NewRequest(http.MethodGet, "/admin/outbox", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.EqualValues(t, 3, body.Data.Pending)
	require.NotNil(t, body.Data.Issues)
	assert.EqualValues(t, 1, *body.Data.Issues)

	req = httptest.NewRequest(http.MethodGet, "/admin/outbox?issue_id=nope", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	api.engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	api.engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPublishRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := redis.NewRateLimiter(client, redis.RateLimitConfig{PublishLimit: 1, PublishWindow: time.Minute})

	api := newTestAPI(t, limiter)
	token := api.token(t, uuid.New())

	first := api.publishJSON(t, token, issueBody("K1"))
	assert.Equal(t, http.StatusSeeOther, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	second := api.publishJSON(t, token, issueBody("K2"))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestPublishRateLimitSparesReplaysAndRejections(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	limiter := redis.NewRateLimiter(client, redis.RateLimitConfig{PublishLimit: 2, PublishWindow: time.Minute})

	api := newTestAPI(t, limiter)
	token := api.token(t, uuid.New())

	require.Equal(t, http.StatusSeeOther, api.publishJSON(t, token, issueBody("K1")).Code)
	for i := 0; i < 3; i++ {
		replay := api.publishJSON(t, token, issueBody("K1"))
		assert.Equal(t, http.StatusSeeOther, replay.Code, "replay %d", i)
	}
	invalid := issueBody("K-invalid")
	invalid["title"] = ""
	assert.Equal(t, http.StatusBadRequest, api.publishJSON(t, token, invalid).Code)

	assert.Equal(t, http.StatusSeeOther, api.publishJSON(t, token, issueBody("K2")).Code)
	assert.Equal(t, http.StatusTooManyRequests, api.publishJSON(t, token, issueBody("K3")).Code)
	// The quota is spent, so even a replay is turned away until the window ends.
	assert.Equal(t, http.StatusTooManyRequests, api.publishJSON(t, token, issueBody("K1")).Code)

	var issues int64
	require.NoError(t, api.db.Table("newsletter_issues").Count(&issues).Error)
	assert.EqualValues(t, 2, issues)
}
