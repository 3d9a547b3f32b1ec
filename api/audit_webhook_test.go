package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWebhook(t *testing.T, h http.HandlerFunc, authHeader string) *auditWebhook {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	wh := newAuditWebhook(srv.URL, authHeader)
	wh.retryDelay = 10 * time.Millisecond
	return wh
}

func TestWebhook_DeliversPayload(t *testing.T) {
	var (
		mu      sync.Mutex
		body    []byte
		headers http.Header
	)
	wh := newTestWebhook(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ = io.ReadAll(r.Body)
		headers = r.Header.Clone()
	}, "Authorization: Bearer hook-token")

	wh.enqueue(webhookEvent{
		Event:      "payment_verified",
		UserID:     "user-42",
		RemoteAddr: "10.0.0.1:5555",
		Timestamp:  "2026-03-08T12:00:00Z",
		Attrs:      map[string]string{"order_id": "order_1"},
	})
	wh.close()

	mu.Lock()
	defer mu.Unlock()
	var parsed map[string]any
	require.NoError(t, json.Unmarshal(body, &parsed))
	assert.Equal(t, "payment_verified", parsed["event"])
	assert.Equal(t, "user-42", parsed["user_id"])
	assert.Equal(t, "10.0.0.1:5555", parsed["remote_addr"])
	assert.Equal(t, map[string]any{"order_id": "order_1"}, parsed["attrs"])
	assert.Equal(t, "Bearer hook-token", headers.Get("Authorization"))
	assert.Equal(t, "application/json", headers.Get("Content-Type"))
}

func TestWebhook_RetryPolicy(t *testing.T) {
	tests := []struct {
		name   string
		status []int
		want   int32
	}{
		{name: "success first try", status: []int{200}, want: 1},
		{name: "retry once after 500", status: []int{500, 200}, want: 2},
		{name: "give up after second 503", status: []int{503, 503, 200}, want: 2},
		{name: "no retry on 400", status: []int{400, 200}, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts atomic.Int32
			wh := newTestWebhook(t, func(w http.ResponseWriter, r *http.Request) {
				n := attempts.Add(1)
				w.WriteHeader(tt.status[n-1])
			}, "")
			wh.enqueue(webhookEvent{Event: "logout", Timestamp: "2026-03-08T12:00:00Z"})
			wh.close()
			assert.Equal(t, tt.want, attempts.Load())
		})
	}
}

func TestWebhook_QueueFullNonBlocking(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	wh := &auditWebhook{
		url:    srv.URL,
		client: &http.Client{Timeout: time.Second},
		events: make(chan webhookEvent, 2),
	}
	wh.wg.Add(1)
	go wh.loop()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			wh.enqueue(webhookEvent{Event: "flood"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("enqueue blocked on a full queue")
	}
	close(wh.events)
}

func TestWebhook_DrainsOnClose(t *testing.T) {
	var count atomic.Int32
	wh := newTestWebhook(t, func(w http.ResponseWriter, r *http.Request) {
		count.Add(1)
	}, "")
	for i := 0; i < 5; i++ {
		wh.enqueue(webhookEvent{Event: "drain"})
	}
	wh.close()
	assert.Equal(t, int32(5), count.Load())
}

func TestAuditLogger_ForwardsToWebhook(t *testing.T) {
	var (
		mu  sync.Mutex
		got webhookEvent
	)
	wh := newTestWebhook(t, func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		json.NewDecoder(r.Body).Decode(&got)
	}, "")

	al := newAuditLogger(slog.New(slog.DiscardHandler))
	al.webhook = wh
	r := httptest.NewRequest(http.MethodPost, "/api/v1/payment/validate", nil)
	al.logEvent(AuditSignatureMismatch, r, "user-7", slog.String("order_id", "order_9"))
	al.close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "payment_signature_mismatch", got.Event)
	assert.Equal(t, "user-7", got.UserID)
	assert.Equal(t, map[string]string{"order_id": "order_9"}, got.Attrs)
	assert.Equal(t, r.RemoteAddr, got.RemoteAddr)
}
