package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	err  error
	got  []string
}

func (f *fakeSender) Send(_ context.Context, title, message string) error {
	f.got = append(f.got, title+"|"+message)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersAndJoinsErrors(t *testing.T) {
	ok := &fakeSender{name: "ok"}
	bad := &fakeSender{name: "bad", err: errors.New("boom")}
	n := NewNotifier([]Sender{bad, ok}, []string{EventRunFailed, " "}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "other", "t", "m"))
	assert.Empty(t, ok.got)

	err := n.Notify(context.Background(), EventRunFailed, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Equal(t, []string{"t|m"}, ok.got)
	assert.True(t, n.Enabled())
	assert.False(t, NewNotifier(nil, nil, discardLogger()).Enabled())
}

func TestDiscordSender(t *testing.T) {
	var body map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "run failed", "macro"))
	assert.Equal(t, "**run failed**\nmacro", body["content"])

	long := strings.Repeat("x", 3000)
	require.NoError(t, NewDiscordSender(srv.URL).Send(context.Background(), "t", long))
	assert.Len(t, []rune(body["content"]), discordContentLimit)
}

func TestTelegramSender(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		http.Error(w, "chat not found", http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewTelegramSender("tok", "42")
	s.apiBase = srv.URL
	err := s.Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
	assert.Equal(t, "/bottok/sendMessage", path)
}
