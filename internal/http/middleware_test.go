package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/meeting-service/internal/application"
	"github.com/example/meeting-service/internal/auth"
)

type stubAuthenticator struct {
	tokens   map[string]string
	sessions map[string]string
	failWith error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (application.Principal, error) {
	return s.lookup(s.tokens, token)
}

func (s stubAuthenticator) AuthenticateSession(_ context.Context, token string) (application.Principal, error) {
	return s.lookup(s.sessions, token)
}

func (s stubAuthenticator) SessionsEnabled() bool { return s.sessions != nil }

func (s stubAuthenticator) lookup(known map[string]string, token string) (application.Principal, error) {
	if s.failWith != nil {
		return application.Principal{}, s.failWith
	}
	id, ok := known[token]
	if !ok {
		return application.Principal{}, application.ErrUnauthenticated
	}
	return application.Principal{UserID: id}, nil
}

func whoAmIEngine(authenticator Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestLogger(nil))
	engine.GET("/whoami", RequireAuth(authenticator, nil), func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, principal.UserID)
	})
	return engine
}

func TestRequireAuth(t *testing.T) {
	authenticator := stubAuthenticator{
		tokens:   map[string]string{"good": "user-1"},
		sessions: map[string]string{"cookie": "user-2"},
	}

	tests := []struct {
		name       string
		header     string
		cookie     *http.Cookie
		wantStatus int
		wantBody   string
	}{
		{name: "bearer token", header: "Bearer good", wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "scheme is case insensitive", header: "bearer good", wantStatus: http.StatusOK, wantBody: "user-1"},
		{name: "unknown token", header: "Bearer bad", wantStatus: http.StatusUnauthorized},
		{name: "basic auth is not accepted", header: "Basic Z29vZA==", wantStatus: http.StatusUnauthorized},
		{name: "no credentials", wantStatus: http.StatusUnauthorized},
		{
			name:       "nextauth cookie",
			cookie:     &http.Cookie{Name: auth.SessionCookieNames[0], Value: "cookie"},
			wantStatus: http.StatusOK,
			wantBody:   "user-2",
		},
		{
			name:       "secure nextauth cookie",
			cookie:     &http.Cookie{Name: auth.SessionCookieNames[1], Value: "cookie"},
			wantStatus: http.StatusOK,
			wantBody:   "user-2",
		},
		{
			name:       "bearer wins over cookie",
			header:     "Bearer good",
			cookie:     &http.Cookie{Name: auth.SessionCookieNames[0], Value: "cookie"},
			wantStatus: http.StatusOK,
			wantBody:   "user-1",
		},
	}

	engine := whoAmIEngine(authenticator)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			rec := httptest.NewRecorder()
			engine.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestRequireAuth_IgnoresCookieWhenSessionsDisabled(t *testing.T) {
	engine := whoAmIEngine(stubAuthenticator{tokens: map[string]string{}})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieNames[0], Value: "cookie"})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuth_StoreFailureIsInternal(t *testing.T) {
	engine := whoAmIEngine(stubAuthenticator{failWith: assert.AnError})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestLogger_RequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestLogger(nil))
	engine.GET("/ping", func(c *gin.Context) {
		if LoggerFromContext(c.Request.Context()) == nil {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "upstream-id")
	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	assert.Equal(t, "upstream-id", rec.Header().Get(RequestIDHeader))
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestLogger(nil), Recovery(nil))
	engine.GET("/boom", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, rec.Body.String())
}

type recordedRequest struct {
	method, route string
	status        int
}

type requestRecorderFunc func(method, route string, status int)

func (f requestRecorderFunc) RecordRequest(method, route string, status int, _ time.Duration) {
	f(method, route, status)
}

func TestRequestMetrics_UsesRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var got []recordedRequest
	engine := gin.New()
	engine.Use(RequestMetrics(requestRecorderFunc(func(method, route string, status int) {
		got = append(got, recordedRequest{method, route, status})
	})))
	engine.GET("/meetings/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/meetings/a", "/meetings/b", "/missing"} {
		engine.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, []recordedRequest{
		{http.MethodGet, "/meetings/:id", http.StatusOK},
		{http.MethodGet, "/meetings/:id", http.StatusOK},
		{http.MethodGet, "", http.StatusNotFound},
	}, got)
}

func TestParseLimit(t *testing.T) {
	tests := []struct {
		raw     string
		want    int
		wantErr bool
	}{
		{raw: "", want: DefaultHistoryLimit},
		{raw: " 5 ", want: 5},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "many", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseLimit(tt.raw, DefaultHistoryLimit)
		if tt.wantErr {
			assert.ErrorIs(t, err, errInvalidLimit, tt.raw)
			continue
		}
		require.NoError(t, err, tt.raw)
		assert.Equal(t, tt.want, got, tt.raw)
	}
}

func TestCORS(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newEngine := func(origins ...string) *gin.Engine {
		engine := gin.New()
		engine.Use(CORS(origins))
		engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
		return engine
	}
	serve := func(engine *gin.Engine, method, origin string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/ping", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec
	}

	t.Run("wildcard echoes the origin with credentials", func(t *testing.T) {
		rec := serve(newEngine("*"), http.MethodOptions, "http://localhost:3000")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		assert.Equal(t, corsMaxAge, rec.Header().Get("Access-Control-Max-Age"))
	})

	t.Run("listed origins match case-insensitively and ignore a trailing slash", func(t *testing.T) {
		engine := newEngine("https://App.Example.com/")
		rec := serve(engine, http.MethodGet, "https://app.example.com")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("unlisted origin gets no grant", func(t *testing.T) {
		rec := serve(newEngine("https://app.example.com"), http.MethodGet, "https://other.example.com")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("same-origin requests are untouched", func(t *testing.T) {
		rec := serve(newEngine("*"), http.MethodGet, "")
		assert.Equal(t, "pong", rec.Body.String())
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Vary"))
	})

	t.Run("empty list disables cross-origin access", func(t *testing.T) {
		rec := serve(newEngine(), http.MethodOptions, "https://app.example.com")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}
