package alert

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/perps/metrics"
)

type recorder struct {
	mu    sync.Mutex
	texts []string
	gate  chan struct{}
}

func (r *recorder) Notify(_ context.Context, text string) error {
	if r.gate != nil {
		<-r.gate
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	return nil
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func TestQueueDeliversInOrder(t *testing.T) {
	rec := &recorder{}
	q := NewQueue(rec, 8, zerolog.Nop())

	q.Send("one")
	q.Send("two")
	q.Send("three")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, []string{"one", "two", "three"}, rec.got())
}

func TestQueueDropsWhenFull(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	q := NewQueue(rec, 1, zerolog.Nop())
	before := testutil.ToFloat64(metrics.AlertsDropped)

	// the worker holds the first message at the gate, the second fills
	// the buffer and the rest are dropped
	q.Send("a")
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	q.Send("b")

	start := time.Now()
	q.Send("c")
	q.Send("d")
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, before+2, testutil.ToFloat64(metrics.AlertsDropped))

	close(rec.gate)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))
	assert.Equal(t, []string{"a", "b"}, rec.got())
}

func TestQueueCloseTimesOut(t *testing.T) {
	rec := &recorder{gate: make(chan struct{})}
	defer close(rec.gate)
	q := NewQueue(rec, 4, zerolog.Nop())
	q.Send("stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
}

func TestTelegramNotify(t *testing.T) {
	t.Parallel()

	var got sendMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	tg := NewTelegram("TOKEN", "42").WithBaseURL(srv.URL)
	require.NoError(t, tg.Notify(context.Background(), "hello"))
	assert.Equal(t, sendMessage{ChatID: "42", Text: "hello"}, got)
}

func TestTelegramErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"http error", http.StatusUnauthorized, `{"ok":false,"description":"Unauthorized"}`},
		{"not ok", http.StatusOK, `{"ok":false,"description":"chat not found"}`},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			err := NewTelegram("T", "1").WithBaseURL(srv.URL).Notify(context.Background(), "x")
			assert.Error(t, err)
		})
	}
}

func TestSendAfterCloseDrops(t *testing.T) {
	q := NewQueue(&recorder{}, 2, zerolog.Nop())
	require.NoError(t, q.Close(context.Background()))
	before := testutil.ToFloat64(metrics.AlertsDropped)

	assert.NotPanics(t, func() { q.Send("late") })
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.AlertsDropped))
	require.NoError(t, q.Close(context.Background()))
}
