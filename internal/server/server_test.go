package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/offer-goat/offer-goat/internal/experiment"
	"github.com/offer-goat/offer-goat/internal/logger"
	"github.com/offer-goat/offer-goat/internal/server"
	"github.com/offer-goat/offer-goat/internal/store"
	"github.com/offer-goat/offer-goat/internal/testutil"
)

const testToken = "test-token"

func setupServer(t *testing.T) (*server.Server, *store.SQLiteStore) {
	t.Helper()
	eng, s := testutil.SetupTestEngine(t, testutil.NewClock())
	return server.New(eng, s, server.Config{Token: testToken}, nil), s
}

func do(t *testing.T, srv *server.Server, method, path string, body any, admin bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if admin {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func createExperiment(t *testing.T, srv *server.Server, body map[string]any) experiment.Experiment {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/v1/experiments", body, true)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[experiment.Experiment](t, w)
}

func twoArm() map[string]any {
	return map[string]any{
		"shop_id":                   "shop-1",
		"name":                      "Bundle discount",
		"primary_metric":            "conversion_rate",
		"control_traffic_percent":   50,
		"variant_a_traffic_percent": 50,
		"minimum_detectable_effect": 0.2,
	}
}

func TestHealth(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[server.HealthResponse](t, w)
	assert.Equal(t, "ok", resp.Status)
	assert.Zero(t, resp.ExperimentsCount)
	assert.Positive(t, resp.DBSizeBytes)
}

func TestHealth_CountsExperiments(t *testing.T) {
	srv, _ := setupServer(t)
	createExperiment(t, srv, twoArm())
	createExperiment(t, srv, twoArm())

	w := do(t, srv, http.MethodGet, "/health", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decode[server.HealthResponse](t, w).ExperimentsCount)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodGet, "/metrics", nil, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestAdminEndpoints_RequireToken(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodGet, "/v1/experiments", nil, false)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/experiments", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Query token sets a cookie that works on its own afterwards
	req = httptest.NewRequest(http.MethodGet, "/v1/experiments?token="+testToken, nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	req = httptest.NewRequest(http.MethodGet, "/v1/experiments", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateExperiment(t *testing.T) {
	srv, _ := setupServer(t)

	exp := createExperiment(t, srv, twoArm())
	assert.Equal(t, experiment.StatusDraft, exp.Status)
	assert.Positive(t, exp.SampleSizePerVariant)

	bad := twoArm()
	bad["variant_a_traffic_percent"] = 30
	w := do(t, srv, http.MethodPost, "/v1/experiments", bad, true)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "traffic", decode[server.ErrorResponse](t, w).Field)

	w = do(t, srv, http.MethodPost, "/v1/experiments", "not an object", true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExperimentLifecycle(t *testing.T) {
	srv, _ := setupServer(t)
	exp := createExperiment(t, srv, twoArm())
	base := "/v1/experiments/" + exp.ID

	w := do(t, srv, http.MethodPost, base+"/pause", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodPost, base+"/start", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, experiment.StatusRunning, decode[experiment.Experiment](t, w).Status)

	w = do(t, srv, http.MethodPost, base+"/end", map[string]any{"winner": "variant_b"}, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, base+"/end", map[string]any{"winner": "variant_a"}, true)
	require.Equal(t, http.StatusOK, w.Code)
	ended := decode[experiment.Experiment](t, w)
	assert.Equal(t, experiment.StatusWinnerSelected, ended.Status)
	require.NotNil(t, ended.SelectedVariant)
	assert.Equal(t, experiment.VariantA, *ended.SelectedVariant)

	w = do(t, srv, http.MethodPost, base+"/start", nil, true)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(t, srv, http.MethodPost, base+"/explode", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodGet, "/v1/experiments/missing", nil, true)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEndWithoutBodyCompletes(t *testing.T) {
	srv, _ := setupServer(t)
	exp := createExperiment(t, srv, twoArm())
	base := "/v1/experiments/" + exp.ID

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, base+"/start", nil, true).Code)
	w := do(t, srv, http.MethodPost, base+"/end", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, experiment.StatusCompleted, decode[experiment.Experiment](t, w).Status)
}

func TestAssignAndEventFunnel(t *testing.T) {
	srv, _ := setupServer(t)
	exp := createExperiment(t, srv, twoArm())
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/experiments/"+exp.ID+"/start", nil, true).Code)

	w := do(t, srv, http.MethodPost, "/v1/assign", map[string]any{"experiment_id": exp.ID, "session_id": "sess-1"}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assigned := decode[server.AssignResponse](t, w)

	w = do(t, srv, http.MethodPost, "/v1/events/impression", map[string]any{
		"shop_id": "shop-1", "offer_id": "offer-1", "experiment_id": exp.ID, "session_id": "sess-1",
	}, false)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ev := decode[experiment.ConversionEvent](t, w)
	require.NotNil(t, ev.AssignedVariant)
	assert.Equal(t, assigned.Variant, *ev.AssignedVariant)

	w = do(t, srv, http.MethodPost, "/v1/events/"+ev.ID+"/click", nil, false)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodPost, "/v1/events/"+ev.ID+"/conversion", map[string]any{
		"order_id": "order-1", "revenue": 30.0, "quantity": 2,
	}, false)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order-1", decode[experiment.ConversionEvent](t, w).ConversionOrderID)

	w = do(t, srv, http.MethodPost, "/v1/experiments/"+exp.ID+"/recalculate", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[experiment.Experiment](t, w)
	arm := got.Arm(assigned.Variant)
	require.NotNil(t, arm)
	assert.Equal(t, experiment.Counters{Impressions: 1, Clicks: 1, Conversions: 1, Revenue: 30}, arm.Counters)
	assert.InDelta(t, 1.0, arm.Stats.ConversionRate, 1e-12)

	w = do(t, srv, http.MethodGet, "/v1/experiments/"+exp.ID+"/events", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]experiment.ConversionEvent](t, w), 1)
}

func TestImpression_UnknownVariantLabel(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/events/impression", map[string]any{
		"shop_id": "shop-1", "offer_id": "offer-1", "session_id": "sess-1", "variant": "variant_z",
	}, false)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "variant", decode[server.ErrorResponse](t, w).Field)
}

func TestClick_UnknownEvent(t *testing.T) {
	srv, _ := setupServer(t)

	w := do(t, srv, http.MethodPost, "/v1/events/nope/click", nil, false)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListExperiments_StatusFilter(t *testing.T) {
	srv, _ := setupServer(t)
	createExperiment(t, srv, twoArm())

	w := do(t, srv, http.MethodGet, "/v1/experiments?status=draft&shop_id=shop-1", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]experiment.Experiment](t, w), 1)

	w = do(t, srv, http.MethodGet, "/v1/experiments?status=running", nil, true)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]experiment.Experiment](t, w))

	w = do(t, srv, http.MethodGet, "/v1/experiments?status=bogus", nil, true)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAutoWinnerEndpoint(t *testing.T) {
	srv, s := setupServer(t)

	body := twoArm()
	body["baseline_rate"] = 0.1
	body["minimum_detectable_effect"] = 1.0
	body["auto_select_winner"] = true
	exp := createExperiment(t, srv, body)
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodPost, "/v1/experiments/"+exp.ID+"/start", nil, true).Code)

	ctx := context.Background()
	require.NoError(t, s.AddCounts(ctx, exp.ID, experiment.Control, experiment.Counters{Impressions: 300, Conversions: 30}))
	require.NoError(t, s.AddCounts(ctx, exp.ID, experiment.VariantA, experiment.Counters{Impressions: 300, Conversions: 60}))

	w := do(t, srv, http.MethodPost, "/v1/auto-winner?shop_id=shop-1", nil, true)
	require.Equal(t, http.StatusOK, w.Code)

	var summary struct {
		Scanned  int `json:"scanned"`
		Promoted []struct {
			ExperimentID string `json:"experiment_id"`
			Winner       string `json:"winner"`
		} `json:"promoted"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Equal(t, 1, summary.Scanned)
	require.Len(t, summary.Promoted, 1)
	assert.Equal(t, "variant_a", summary.Promoted[0].Winner)
}

func TestAutoWinner_CancelledRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	eng, s := testutil.SetupTestEngine(t, testutil.NewClock())
	srv := server.New(eng, s, server.Config{Token: testToken}, logger.FromZap(zap.New(core)))
	createExperiment(t, srv, twoArm())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/auto-winner?shop_id=shop-1", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusServiceUnavailable, w.Code, w.Body.String())
	var summary struct {
		Scanned int `json:"scanned"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&summary))
	assert.Zero(t, logs.FilterLevelExact(zapcore.ErrorLevel).Len(), "cancellation is not an internal error")
	assert.Equal(t, 1, logs.FilterMessage("auto-winner pass interrupted").Len())
}
