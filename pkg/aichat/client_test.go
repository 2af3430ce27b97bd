package aichat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoginExtractsSessionCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "svc", body["username"])
		assert.Equal(t, "secret", body["password"])
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "tok-123", Path: "/"})
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewClient(Config{LoginURL: srv.URL, Username: "svc", Password: "secret"}, srv.Client())
	token, err := client.Login(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-123", token)
}

func TestLoginFailures(t *testing.T) {
	noCookie := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer noCookie.Close()
	_, err := NewClient(Config{LoginURL: noCookie.URL}, nil).Login(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)

	denied := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer denied.Close()
	_, err = NewClient(Config{LoginURL: denied.URL}, nil).Login(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
}

func TestStreamChatConcatenatesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "session=tok", r.Header.Get("Cookie"))
		assert.Equal(t, "2", r.Header.Get("New-Api-User"))

		var req ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)
		assert.Equal(t, "gpt-test", req.Model)
		require.Len(t, req.Messages, 2)

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"{\"ok\""}}]}`)
		fmt.Fprintln(w)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":": true}"}}]}`)
		fmt.Fprintln(w, `data: [DONE]`)
		fmt.Fprintln(w, `data: {"choices":[{"delta":{"content":"ignored"}}]}`)
	}))
	defer srv.Close()

	client := NewClient(Config{ChatURL: srv.URL, APIUser: "2"}, srv.Client())
	out, err := client.StreamChat(context.Background(), "tok", NewVisionRequest("gpt-test", "sys", "look", []string{"http://x/uploads/a.jpg"}))
	require.NoError(t, err)
	assert.Equal(t, `{"ok": true}`, out)
}

func TestStreamChatUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient(Config{ChatURL: srv.URL}, nil).StreamChat(context.Background(), "stale", ChatRequest{})
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "session expired")
}

func TestStreamChatServerErrorIsNotUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(Config{ChatURL: srv.URL}, nil).StreamChat(context.Background(), "tok", ChatRequest{})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrUnauthorized))
}

func TestReadStreamSkipsGarbageAndHandlesEOF(t *testing.T) {
	stream := strings.Join([]string{
		`data: not-json`,
		`: keepalive`,
		`data: {"choices":[]}`,
		`data: {"choices":[{"delta":{"content":"abc"}}]}`,
	}, "\n")
	out, err := ReadStream(strings.NewReader(stream))
	require.NoError(t, err)
	assert.Equal(t, "abc", out)
}

func TestNewVisionRequestShape(t *testing.T) {
	req := NewVisionRequest("m", "system", "prompt", []string{"u1", "u2"})
	parts, ok := req.Messages[1].Content.([]ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "u2", parts[2].ImageURL.URL)
	assert.Equal(t, "default", req.Group)
	assert.InDelta(t, 0.3, req.Temperature, 1e-9)
}
