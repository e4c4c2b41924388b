package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/msaedi/instructly-sub003/middleware/ratelimit/application"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/domain"
	"github.com/msaedi/instructly-sub003/middleware/ratelimit/infra"
)

var testNow = time.Unix(1_700_000_000, 0)

type downStore struct{ calls int }

func (s *downStore) Apply(context.Context, string, int64, int64, int64, int64) (domain.StateResult, error) {
	s.calls++
	return domain.StateResult{}, errors.New("connection refused")
}

func newTestEvaluator(store domain.StateStore, shadow bool) *application.Evaluator {
	reg := application.NewRegistry(application.RegistryOptions{
		Policies: []domain.Policy{
			{Bucket: "default", RatePerMinute: 60, Burst: 10, WindowSeconds: 60},
			{Bucket: "write", RatePerMinute: 20, Burst: 3, WindowSeconds: 60},
		},
		DefaultBucket: "default",
		Shadow:        shadow,
	})
	return application.NewEvaluator(application.EvaluatorOptions{
		Registry:  reg,
		Store:     store,
		Namespace: "rl",
		Now:       func() time.Time { return testNow },
	})
}

func okHandler(hits *int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*hits++
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/orders", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_EnforcedBlock(t *testing.T) {
	stats := infra.NewMemoryRecorder()
	hits := 0
	h := Middleware(Options{
		Evaluator: newTestEvaluator(infra.NewMemoryStateStore(), false),
		Recorder:  stats,
		Bucket:    "write",
	})(okHandler(&hits))

	first := doRequest(h, "10.0.0.1:5555")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "3", first.Header().Get(HeaderRemaining))
	assert.Equal(t, "4", first.Header().Get(HeaderLimit))
	assert.Equal(t, "1700000009", first.Header().Get(HeaderReset))
	assert.Empty(t, first.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "write", first.Header().Get(HeaderPolicy))
	assert.Equal(t, "false", first.Header().Get(HeaderShadow))

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:5555").Code)
	}

	blocked := doRequest(h, "10.0.0.1:5555")
	require.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "3", blocked.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "0", blocked.Header().Get(HeaderRemaining))
	assert.Equal(t, "application/json", blocked.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(blocked.Body).Decode(&body))
	assert.Equal(t, "Rate limit exceeded. Try again in 3 seconds.", body["detail"])

	assert.Equal(t, 4, hits, "blocked request never reaches the handler")

	// outra identidade tem seu próprio cursor
	assert.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2:5555").Code)

	total := stats.Total()
	assert.Equal(t, int64(5), total.Allowed)
	assert.Equal(t, int64(1), total.Blocked)
	assert.Equal(t, int64(1), total.Denials)
	assert.InDelta(t, 3.0, total.RetryAfterSum, 1e-9)
}

func TestMiddleware_ShadowModeLetsThrough(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	stats := infra.NewMemoryRecorder()
	hits := 0
	h := Middleware(Options{
		Evaluator: newTestEvaluator(infra.NewMemoryStateStore(), true),
		Recorder:  stats,
		Logger:    zap.New(core),
		Bucket:    "write",
	})(okHandler(&hits))

	var last *httptest.ResponseRecorder
	for i := 0; i < 6; i++ {
		last = doRequest(h, "10.0.0.1:5555")
		require.Equal(t, http.StatusOK, last.Code)
	}
	assert.Equal(t, 6, hits)
	assert.Equal(t, "true", last.Header().Get(HeaderShadow))
	assert.Equal(t, "0", last.Header().Get(HeaderRemaining))
	assert.Equal(t, "3", last.Header().Get(HeaderRetryAfter), "denial does not move the cursor")

	total := stats.Total()
	assert.Equal(t, int64(4), total.Allowed)
	assert.Equal(t, int64(2), total.ShadowBlocked)
	assert.Zero(t, total.Blocked)
	assert.Equal(t, 2, logs.FilterMessage("rate limit exceeded in shadow mode").Len())
}

func TestMiddleware_BucketFn(t *testing.T) {
	hits := 0
	h := Middleware(Options{
		Evaluator: newTestEvaluator(infra.NewMemoryStateStore(), false),
		BucketFn: func(r *http.Request) string {
			if r.Method == http.MethodGet {
				return "default"
			}
			return "write"
		},
	})(okHandler(&hits))

	rec := doRequest(h, "10.0.0.1:1")
	assert.Equal(t, "write", rec.Header().Get(HeaderPolicy))
	assert.Equal(t, "4", rec.Header().Get(HeaderLimit))
}

func TestMiddleware_StoreDownFailsOpen(t *testing.T) {
	store := &downStore{}
	hits := 0
	h := Middleware(Options{
		Evaluator: newTestEvaluator(store, false),
		Bucket:    "write",
	})(okHandler(&hits))

	for i := 0; i < 10; i++ {
		rec := doRequest(h, "10.0.0.1:1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get(HeaderRemaining))
		assert.Equal(t, "4", rec.Header().Get(HeaderLimit))
	}
	assert.Equal(t, 10, hits)
	assert.Equal(t, 10, store.calls)
}

func TestMiddleware_Disabled(t *testing.T) {
	store := &downStore{}
	hits := 0
	h := Middleware(Options{
		Evaluator: newTestEvaluator(store, false),
		Bucket:    "write",
		Disabled:  true,
	})(okHandler(&hits))

	rec := doRequest(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get(HeaderRemaining))
	assert.Empty(t, rec.Header().Get(HeaderPolicy))
	assert.Zero(t, store.calls)
	assert.Equal(t, 1, hits)
}

func TestMiddleware_TestingMode(t *testing.T) {
	store := &downStore{}
	stats := infra.NewMemoryRecorder()
	hits := 0
	h := Middleware(Options{
		Evaluator: newTestEvaluator(store, false),
		Recorder:  stats,
		Bucket:    "write",
		Testing:   true,
	})(okHandler(&hits))

	for i := 0; i < 20; i++ {
		rec := doRequest(h, "10.0.0.1:1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get(HeaderRemaining))
		assert.Equal(t, "4", rec.Header().Get(HeaderLimit))
		assert.Equal(t, "0", rec.Header().Get(HeaderReset))
	}
	assert.Zero(t, store.calls)
	assert.Zero(t, stats.Total().Allowed, "testing mode records nothing")
}

func TestMiddleware_CustomRejectStatus(t *testing.T) {
	hits := 0
	reg := application.NewRegistry(application.RegistryOptions{
		Policies:      []domain.Policy{{Bucket: "closed", RatePerMinute: 0, Burst: 5}},
		DefaultBucket: "closed",
	})
	eval := application.NewEvaluator(application.EvaluatorOptions{Registry: reg, Store: &downStore{}})
	h := Middleware(Options{Evaluator: eval, Bucket: "closed", RejectStatus: http.StatusServiceUnavailable})(okHandler(&hits))

	rec := doRequest(h, "10.0.0.1:1")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "86400", rec.Header().Get(HeaderRetryAfter))
	assert.Equal(t, "0", rec.Header().Get(HeaderLimit))
	assert.Zero(t, hits)
}

func TestMiddleware_NilEvaluatorPassesThrough(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	hits := 0
	h := Middleware(Options{Bucket: "write", Logger: zap.New(core)})(okHandler(&hits))

	for i := 0; i < 3; i++ {
		rec := doRequest(h, "10.0.0.1:1")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get(HeaderLimit))
	}
	assert.Equal(t, 3, hits)
	assert.Equal(t, 1, logs.Len(), "missing evaluator is reported once, at construction")
}

func TestMiddleware_RecordsResolvedBucket(t *testing.T) {
	stats := infra.NewMemoryRecorder()
	hits := 0
	h := Middleware(Options{
		Evaluator: newTestEvaluator(infra.NewMemoryStateStore(), false),
		Recorder:  stats,
		BucketFn:  func(r *http.Request) string { return "route:" + r.URL.Path },
	})(okHandler(&hits))

	rec := doRequest(h, "10.0.0.1:1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "route:/orders", rec.Header().Get(HeaderPolicy))

	byBucket := stats.ByBucket()
	assert.EqualValues(t, 1, byBucket["default"].Allowed)
	assert.NotContains(t, byBucket, "route:/orders")
}
