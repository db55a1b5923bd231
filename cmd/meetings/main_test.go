package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/meeting-service/internal/config"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.DSN = filepath.Join(t.TempDir(), "meetings.db")
	cfg.Auth.JWTSecret = strings.Repeat("k", 32)
	cfg.Metrics.Runtime = false
	return cfg
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)

	st, err := openStore(ctx, cfg.Database, discardLogger())
	require.NoError(t, err)
	require.NoError(t, st.Ping(ctx))
	require.NoError(t, st.Close())

	// Reopening runs the migrations again without effect.
	st, err = openStore(ctx, cfg.Database, discardLogger())
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestOpenStore_UnknownDriver(t *testing.T) {
	_, err := openStore(context.Background(), config.DatabaseConfig{Driver: "mysql", DSN: "x"}, discardLogger())
	assert.ErrorContains(t, err, `unsupported database driver "mysql"`)
}

func TestPostgresConfig(t *testing.T) {
	cfg := postgresConfig(config.DatabaseConfig{
		Driver:          "postgres",
		DSN:             "postgres://db/meetings",
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	})
	assert.Equal(t, "postgres://db/meetings", cfg.DSN)
	assert.Equal(t, 20, cfg.MaxOpenConns)
	assert.Equal(t, 5, cfg.MaxIdleConns)
	assert.Equal(t, 30*time.Minute, cfg.ConnMaxLifetime)
}

func TestNewHandler_RejectsShortSecret(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.JWTSecret = "short"

	st, err := openStore(context.Background(), cfg.Database, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = newHandler(cfg, st, discardLogger())
	assert.Error(t, err)
}

func TestNewHandler_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	st, err := openStore(context.Background(), cfg.Database, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	handler, err := newHandler(cfg, st, discardLogger())
	require.NoError(t, err)

	call := func(method, path, token string, body any) *httptest.ResponseRecorder {
		t.Helper()
		var reader io.Reader
		if body != nil {
			payload, err := json.Marshal(body)
			require.NoError(t, err)
			reader = bytes.NewReader(payload)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	rec := call(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	preflight := httptest.NewRequest(http.MethodOptions, "/meetings", nil)
	preflight.Header.Set("Origin", "http://localhost:3000")
	preflight.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, preflight)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = call(http.MethodPost, "/users", "", map[string]string{"email": "host@example.com", "name": "Host", "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(http.MethodPost, "/auth/login", "", map[string]string{"email": "host@example.com", "password": "password123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var login struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = call(http.MethodPost, "/meetings/by-call/daily/join", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var meeting struct {
		CallID           string `json:"callId"`
		ParticipantCount int    `json:"participantCount"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &meeting))
	assert.Equal(t, "daily", meeting.CallID)
	assert.Equal(t, 1, meeting.ParticipantCount)

	rec = call(http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `meetings_service_operations_total{operation="Register",outcome="success",service="UserService"} 1`)
	assert.Contains(t, rec.Body.String(), `route="/meetings/by-call/:callId/join"`)
}

func TestServe_StopsWhenContextIsCancelled(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	server := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})}

	done := make(chan error, 1)
	go func() { done <- serve(ctx, server, listener, time.Second, discardLogger()) }()

	resp, err := http.Get("http://" + listener.Addr().String())
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}

func TestRun_Help(t *testing.T) {
	var usage bytes.Buffer
	err := run(context.Background(), []string{"--help"}, &usage)
	assert.ErrorIs(t, err, config.ErrHelp)
	assert.Contains(t, usage.String(), "--db-driver")
}
