package consumer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"elderguard/internal/models"
	"elderguard/internal/store"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// alertServer 记录收到的告警
type alertServer struct {
	mu       sync.Mutex
	received []models.AlertPayload
	status   atomic.Int32
	calls    atomic.Int32
}

func newAlertServer(t *testing.T) (*alertServer, *httptest.Server) {
	s := &alertServer{}
	s.status.Store(http.StatusCreated)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.calls.Add(1)
		if r.Method != http.MethodPost || r.URL.Path != "/alerts" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var payload models.AlertPayload
		if err := json.Unmarshal(body, &payload); err == nil {
			s.mu.Lock()
			s.received = append(s.received, payload)
			s.mu.Unlock()
		}
		w.WriteHeader(int(s.status.Load()))
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *alertServer) payloads() []models.AlertPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.AlertPayload(nil), s.received...)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func fallAlert() models.FallAlertRecord {
	return models.FallAlertRecord{
		AlertID:     "7a1c2f4e-0000-4000-8000-000000000001",
		Message:     "FALL DETECTED! Severity: 4/10. Location unavailable",
		Pending:     true,
		Severity:    4,
		TimestampMs: now.UnixMilli(),
	}
}

func TestAlertDispatcher_DeliversToBothSinks(t *testing.T) {
	server, srv := newAlertServer(t)
	_, client := setupTestRedis(t)
	cfg := testConfig()
	cfg.Alert.BaseURL = srv.URL

	st := store.New(store.DefaultLockTimeout)
	d := NewAlertDispatcher(cfg, st, client, zap.NewNop())
	require.NoError(t, st.Alert().Publish(fallAlert()))

	ok, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	got := server.payloads()
	require.Len(t, got, 1)
	assert.Equal(t, models.AlertPayload{
		AlertID:     "7a1c2f4e-0000-4000-8000-000000000001",
		PatientID:   "42",
		DeviceID:    "elderguard-001",
		AlertType:   "fall_detected",
		Message:     "FALL DETECTED! Severity: 4/10. Location unavailable",
		Severity:    4,
		HasLocation: false,
		CreatedAt:   "2026-03-01T08:30:00Z",
	}, got[0])

	msgs, err := client.XRange(context.Background(), "elderguard:alerts", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var streamed models.AlertPayload
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &streamed))
	assert.Equal(t, got[0], streamed)
}

func TestAlertDispatcher_ClaimsExactlyOnce(t *testing.T) {
	server, srv := newAlertServer(t)
	cfg := testConfig()
	cfg.Alert.BaseURL = srv.URL

	st := store.New(store.DefaultLockTimeout)
	d := NewAlertDispatcher(cfg, st, nil, zap.NewNop())
	require.NoError(t, st.Alert().Publish(fallAlert()))

	var wg sync.WaitGroup
	var claimed atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := d.DispatchPending(context.Background()); ok {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed.Load())
	assert.Len(t, server.payloads(), 1)

	ok, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAlertDispatcher_HTTPFailureStillStreams(t *testing.T) {
	server, srv := newAlertServer(t)
	server.status.Store(http.StatusBadRequest)
	_, client := setupTestRedis(t)
	cfg := testConfig()
	cfg.Alert.BaseURL = srv.URL

	st := store.New(store.DefaultLockTimeout)
	d := NewAlertDispatcher(cfg, st, client, zap.NewNop())
	require.NoError(t, st.Alert().Publish(fallAlert()))

	ok, err := d.DispatchPending(context.Background())
	assert.True(t, ok)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")

	msgs, err := client.XRange(context.Background(), "elderguard:alerts", "-", "+").Result()
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestAlertDispatcher_ServerErrorReturnsError(t *testing.T) {
	server, srv := newAlertServer(t)
	server.status.Store(http.StatusServiceUnavailable)
	cfg := testConfig()
	cfg.Alert.BaseURL = srv.URL

	st := store.New(store.DefaultLockTimeout)
	d := NewAlertDispatcher(cfg, st, nil, zap.NewNop())
	require.NoError(t, st.Alert().Publish(fallAlert()))

	_, err := d.DispatchPending(context.Background())
	require.Error(t, err)
	assert.GreaterOrEqual(t, server.calls.Load(), int32(1))
}

func TestAlertDispatcher_NoSinks(t *testing.T) {
	st := store.New(store.DefaultLockTimeout)
	d := NewAlertDispatcher(testConfig(), st, nil, zap.NewNop())
	require.NoError(t, st.Alert().Publish(fallAlert()))

	ok, err := d.DispatchPending(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAlertDispatcher_StartDispatchesOnUpdate(t *testing.T) {
	server, srv := newAlertServer(t)
	cfg := testConfig()
	cfg.Alert.BaseURL = srv.URL

	st := store.New(store.DefaultLockTimeout)
	d := NewAlertDispatcher(cfg, st, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	require.NoError(t, st.Alert().Publish(fallAlert()))
	require.Eventually(t, func() bool { return len(server.payloads()) == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	assert.Len(t, server.payloads(), 1)
}
