package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/clanpoints/notify"
)

func TestWebhook_PostsMessage(t *testing.T) {
	var got notify.Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	w := notify.NewWebhook(srv.URL, 100, 10)
	err := w.Notify(context.Background(), "guild-1", "42", "hello")

	require.NoError(t, err)
	assert.Equal(t, notify.Message{Community: "guild-1", Member: "42", Text: "hello"}, got)
}

func TestWebhook_RejectedIsUndeliverable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "dms closed", http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)

	err := notify.NewWebhook(srv.URL, 100, 10).Notify(context.Background(), "guild-1", "42", "hello")

	assert.ErrorIs(t, err, notify.ErrUndeliverable)
}

func TestWebhook_CancelledContext(t *testing.T) {
	// GIVEN: an exhausted limiter and a cancelled context
	w := notify.NewWebhook("http://127.0.0.1:0", 0.001, 1)
	w.Limiter.Allow()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := w.Notify(ctx, "guild-1", "42", "hello")

	assert.ErrorIs(t, err, notify.ErrUndeliverable)
}

func TestLog_NeverFails(t *testing.T) {
	assert.NoError(t, notify.NewLog(nil).Notify(context.Background(), "guild-1", "42", "hi"))
}
