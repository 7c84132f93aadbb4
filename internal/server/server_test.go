package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/atomicnexus/internal/domain"
	"github.com/alanyoungcy/atomicnexus/internal/metrics"
	"github.com/alanyoungcy/atomicnexus/internal/server/ws"
	"github.com/alanyoungcy/atomicnexus/internal/store/memory"
)

type countingLimiter struct {
	mu    sync.Mutex
	seen  map[string]int
	limit int
}

func (l *countingLimiter) Allow(_ context.Context, key string, _ int, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[key]++
	return l.seen[key] <= l.limit, nil
}

type fixture struct {
	srv   *httptest.Server
	cands *memory.CandidateStore
	plans *memory.PlanStore
	bus   *memory.SignalBus
	hub   *ws.Hub
}

func newFixture(t *testing.T, cfg Config, limiter domain.RateLimiter) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		cands: memory.NewCandidateStore(),
		plans: memory.NewPlanStore(),
		bus:   memory.NewSignalBus(),
	}
	f.hub = ws.NewHub(f.bus, "server", logger)

	s := NewServer(cfg, Deps{
		Candidates: f.cands,
		Plans:      f.plans,
		Metrics:    metrics.New(prometheus.NewRegistry()),
		Limiter:    limiter,
		Hub:        f.hub,
	}, logger)
	f.srv = httptest.NewServer(s.Handler())
	t.Cleanup(f.srv.Close)
	return f
}

func getJSON(t *testing.T, url string, into any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if into != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(into))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	var body map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/healthz", &body))
	assert.Equal(t, map[string]any{"ok": true, "service": "atomicnexus"}, body)
}

func TestCandidates(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx := context.Background()
	for _, id := range []string{"c1", "c2", "c3"} {
		require.NoError(t, f.cands.Insert(ctx, domain.Candidate{ID: id, Direction: domain.DirectionSushiToUni, RoughEdgeBps: 40}))
	}

	var list struct {
		Candidates []domain.Candidate `json:"candidates"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/candidates/recent?limit=2", &list))
	require.Len(t, list.Candidates, 2)
	assert.Equal(t, "c3", list.Candidates[0].ID)
	assert.Equal(t, "c2", list.Candidates[1].ID)

	var one domain.Candidate
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/candidates/c1", &one))
	assert.Equal(t, domain.DirectionSushiToUni, one.Direction)
	assert.Equal(t, int64(40), one.RoughEdgeBps)

	var errBody map[string]string
	assert.Equal(t, http.StatusNotFound, getJSON(t, f.srv.URL+"/api/candidates/nope", &errBody))
	assert.Equal(t, "not found", errBody["error"])
}

func TestCandidates_EmptyListIsArray(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	resp, err := http.Get(f.srv.URL + "/api/candidates/recent?limit=bogus")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"candidates":[]}`, string(raw))
}

func TestPlans(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	require.NoError(t, f.plans.Insert(context.Background(), domain.Plan{
		ID:                "p1",
		AmountIn:          big.NewInt(93_409_407_184),
		ExpectedAmountOut: big.NewInt(96_407_664_354),
		Constraints:       domain.PlanConstraints{MinAmountOut: big.NewInt(95_925_626_032), MaxSlippageBps: 50},
	}))

	var raw map[string]any
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/plans/p1", &raw))
	assert.Equal(t, "93409407184", raw["amount_in_wei"])

	var list struct {
		Plans []domain.Plan `json:"plans"`
	}
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/api/plans/recent", &list))
	require.Len(t, list.Plans, 1)
	assert.Equal(t, 0, list.Plans[0].AmountIn.Cmp(big.NewInt(93_409_407_184)))

	assert.Equal(t, http.StatusNotFound, getJSON(t, f.srv.URL+"/api/plans/missing", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	getJSON(t, f.srv.URL+"/healthz", nil)

	resp, err := http.Get(f.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `atomicnexus_http_requests_total{method="GET",status="200"}`)
}

func TestCORS(t *testing.T) {
	f := newFixture(t, Config{CORSOrigins: []string{"https://dash.example"}}, nil)

	req, err := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/plans/recent", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://dash.example")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://dash.example", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	limiter := &countingLimiter{seen: map[string]int{}, limit: 2}
	f := newFixture(t, Config{RateLimit: 2, RateWindow: time.Second}, limiter)

	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/healthz", nil))
	assert.Equal(t, http.StatusOK, getJSON(t, f.srv.URL+"/healthz", nil))

	resp, err := http.Get(f.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
	assert.Equal(t, 3, limiter.seen["ratelimit:api:127.0.0.1"])
}

func TestWebsocketRelaysBus(t *testing.T) {
	f := newFixture(t, Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = f.hub.Run(ctx) }()

	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, f.bus.Publish(ctx, domain.ChannelCandidates, []byte(`{"trace_id":"c9"}`)))

	type frame struct {
		Channel string          `json:"channel"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var status frame
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, "status", status.Channel)
	assert.Contains(t, string(status.Payload), `"mode":"server"`)

	var got frame
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, domain.ChannelCandidates, got.Channel)
	assert.JSONEq(t, `{"trace_id":"c9"}`, string(got.Payload))
}
