package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (s *stubSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *stubSender) Name() string { return s.name }

func (s *stubSender) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.titles...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierFiltersAndFansOut(t *testing.T) {
	broken := &stubSender{name: "broken", err: errors.New("boom")}
	ok := &stubSender{name: "ok"}
	n := NewNotifier([]Sender{broken, ok}, []string{"account_failed"}, 8, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = n.Run(ctx) }()

	require.NoError(t, n.Notify(ctx, "liquidation", "Position liquidated", "filtered"))
	require.NoError(t, n.Notify(ctx, "account_failed", "Challenge failed", "a1"))

	require.Eventually(t, func() bool { return len(ok.sent()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"Challenge failed"}, ok.sent())
	assert.Equal(t, []string{"Challenge failed"}, broken.sent())
}

func TestNotifierEmptyFilterAllowsAll(t *testing.T) {
	s := &stubSender{name: "s"}
	n := NewNotifier([]Sender{s}, nil, 8, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "liquidation", "a", ""))
	require.NoError(t, n.Notify(context.Background(), "anything", "b", ""))
	assert.Len(t, n.queue, 2)
}

func TestNotifierQueueFull(t *testing.T) {
	n := NewNotifier([]Sender{&stubSender{name: "s"}}, nil, 1, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "liquidation", "a", ""))
	assert.ErrorIs(t, n.Notify(context.Background(), "liquidation", "b", ""), ErrQueueFull)
}

func TestNotifierWithoutSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, 1, discardLogger())
	assert.False(t, n.Enabled())
	for i := 0; i < 3; i++ {
		assert.NoError(t, n.Notify(context.Background(), "liquidation", "a", ""))
	}
}

func TestDiscordSenderPostsEmbed(t *testing.T) {
	var got discordPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := NewDiscordSender(srv.URL)
	require.NoError(t, d.Send(context.Background(), "Challenge failed", "account a1"))
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Challenge failed", got.Embeds[0].Title)
	assert.Equal(t, "account a1", got.Embeds[0].Description)
	assert.Equal(t, "discord", d.Name())
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestTelegramSender(t *testing.T) {
	var body map[string]any
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	require.NoError(t, s.Send(context.Background(), "Position liquidated", "p1"))
	assert.Equal(t, "/botTOKEN/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "Position liquidated\np1", body["text"])
}

func TestTelegramSenderAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
