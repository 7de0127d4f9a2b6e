package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classifier_server/core/service/classification"
	"classifier_server/infra/middleware"
	"classifier_server/pkg/logger"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type breakerPinger struct{ fakePinger }

func (breakerPinger) BreakerState() string { return "closed" }

func newTestApp(t *testing.T, redis HealthChecker) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: middleware.ErrorHandler(),
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
	})
	app.Use(middleware.RequestID())
	app.Use(middleware.Recover())

	svc := classification.NewClassifier(nil, logger.Nop())
	NewClassifierHandler(svc, redis != nil).Register(app, nil)
	NewHealthHandler(redis).Register(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), "body: %s", raw)
	return resp.StatusCode, out
}

func TestClassifyEndpoint(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := doJSON(t, app, http.MethodPost, "/classify",
		`{"app_name":"Slack","title":"Team Meeting","body":"Standup after lunch"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Work", body["category"])
	assert.InDelta(t, 5.0/6.0, body["confidence"], 1e-9)
	assert.Equal(t, []any{"app:slack", "keyword:meeting", "keyword:team", "keyword:standup"}, body["matched_keywords"])

	status, body = doJSON(t, app, http.MethodPost, "/classify", `{"app_name":"","title":null,"body":null}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Personal", body["category"])
	assert.Equal(t, 0.5, body["confidence"])
	assert.Equal(t, []any{}, body["matched_keywords"])
}

func TestClassifyEndpoint_Validation(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"missing app_name", `{"title":"hello"}`, "MISSING_FIELD"},
		{"malformed json", `{"app_name":`, "BAD_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, http.MethodPost, "/classify", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])

			errBody, ok := body["error"].(map[string]any)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, errBody["code"])
			assert.NotEmpty(t, body["request_id"])
		})
	}
}

func TestFeedbackEndpoint(t *testing.T) {
	app := newTestApp(t, nil)

	fb := `{"app_name":"Slack","title":"Team meeting","body":"","predicted_category":"Work","actual_category":"Personal"}`
	for i := 0; i < 3; i++ {
		status, body := doJSON(t, app, http.MethodPost, "/feedback", fb)
		require.Equal(t, http.StatusOK, status)
		assert.Equal(t, "success", body["status"])
		assert.Equal(t, "Feedback received: Slack → Personal", body["message"])
	}

	_, body := doJSON(t, app, http.MethodPost, "/classify", `{"app_name":"Slack","title":"Team meeting"}`)
	assert.Equal(t, "Personal", body["category"])
	assert.Equal(t, "Learned from user feedback: slack → Personal", body["reasoning"])
}

func TestFeedbackEndpoint_Validation(t *testing.T) {
	app := newTestApp(t, nil)

	tests := []struct {
		name      string
		body      string
		wantCode  string
		wantField string
	}{
		{
			name:      "unknown actual category",
			body:      `{"app_name":"Slack","predicted_category":"Work","actual_category":"Spam"}`,
			wantCode:  "INVALID_INPUT",
			wantField: "actual_category",
		},
		{
			name:      "case mismatch",
			body:      `{"app_name":"Slack","predicted_category":"work","actual_category":"Junk"}`,
			wantCode:  "INVALID_INPUT",
			wantField: "predicted_category",
		},
		{
			name:      "missing category",
			body:      `{"app_name":"Slack","predicted_category":"Work"}`,
			wantCode:  "MISSING_FIELD",
			wantField: "actual_category",
		},
		{
			name:      "missing app",
			body:      `{"predicted_category":"Work","actual_category":"Junk"}`,
			wantCode:  "MISSING_FIELD",
			wantField: "app_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := doJSON(t, app, http.MethodPost, "/feedback", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)

			errBody := body["error"].(map[string]any)
			assert.Equal(t, tt.wantCode, errBody["code"])
			details := errBody["details"].(map[string]any)
			assert.Equal(t, tt.wantField, details["field"])
		})
	}

	_, stats := doJSON(t, app, http.MethodGet, "/stats", "")
	assert.Equal(t, float64(0), stats["total_learned_patterns"])
}

func TestStatsAndReset(t *testing.T) {
	app := newTestApp(t, nil)

	fb := `{"app_name":"Zoom","title":"quarterly planning","predicted_category":"Work","actual_category":"Junk"}`
	for i := 0; i < 2; i++ {
		doJSON(t, app, http.MethodPost, "/feedback", fb)
	}

	status, body := doJSON(t, app, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(3), body["total_learned_patterns"]) // zoom, quarterly, planning
	assert.Equal(t, false, body["redis_connected"])

	junk := body["category_stats"].(map[string]any)["Junk"].(map[string]any)
	assert.Equal(t, float64(1), junk["learned_apps"])
	assert.Equal(t, float64(2), junk["learned_content_patterns"])

	topApps := junk["top_apps"].([]any)
	require.Len(t, topApps, 1)
	pair := topApps[0].([]any)
	assert.Equal(t, "zoom", pair[0])
	assert.InDelta(t, 0.7, pair[1], 1e-9)

	status, body = doJSON(t, app, http.MethodPost, "/reset", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "All learned patterns have been reset", body["message"])

	_, body = doJSON(t, app, http.MethodGet, "/stats", "")
	assert.Equal(t, float64(0), body["total_learned_patterns"])
}

func TestCategoriesEndpoint(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := doJSON(t, app, http.MethodGet, "/categories", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []any{"Work", "Personal", "Junk"}, body["categories"])

	desc := body["descriptions"].(map[string]any)
	assert.Equal(t, "Promotional, spam, and unwanted notifications", desc["Junk"])
}

func TestHealthEndpoints(t *testing.T) {
	tests := []struct {
		name        string
		redis       HealthChecker
		wantRedis   string
		wantReady   int
		wantRedisDB bool
	}{
		{"no redis", nil, "disconnected", http.StatusOK, false},
		{"redis up", fakePinger{}, "connected", http.StatusOK, true},
		{"redis down", fakePinger{err: errors.New("refused")}, "error", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t, tt.redis)

			status, body := doJSON(t, app, http.MethodGet, "/health", "")
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, "healthy", body["status"])
			assert.Equal(t, "classification", body["service"])
			assert.Equal(t, tt.wantRedis, body["redis"])
			assert.Equal(t, Version, body["version"])

			status, _ = doJSON(t, app, http.MethodGet, "/ready", "")
			assert.Equal(t, tt.wantReady, status)

			_, stats := doJSON(t, app, http.MethodGet, "/stats", "")
			assert.Equal(t, tt.wantRedisDB, stats["redis_connected"])
		})
	}
}

func TestReadyReportsBreakerState(t *testing.T) {
	app := newTestApp(t, breakerPinger{})

	status, body := doJSON(t, app, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body["status"])

	checks := body["checks"].(map[string]any)
	assert.Equal(t, "healthy", checks["redis"])
	assert.Equal(t, "closed", checks["pattern_cache_breaker"])
}

func TestRequestIDPropagation(t *testing.T) {
	app := newTestApp(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/categories", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "req-123", resp.Header.Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	app := newTestApp(t, nil)

	status, body := doJSON(t, app, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", body["error"].(map[string]any)["code"])
}
