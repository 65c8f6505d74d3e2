package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-portal/internal/auth"
	"account-portal/internal/repository/sqldb"
	"account-portal/internal/routers"
	"account-portal/internal/rpc"
	"account-portal/internal/service"
)

func newTestEngine(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()

	db, err := sqldb.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := sqldb.NewStore(db)
	require.NoError(t, store.Init(context.Background()))

	authSvc := auth.NewService(store.Users, store.Sessions, auth.Config{
		Secret:     []byte("test-secret"),
		BcryptCost: 4,
		SessionTTL: time.Hour,
		Logger:     logger,
	})
	router, err := routers.NewAppRouter(rpc.NewProcedures(logger), routers.Services{
		Users: service.NewUserService(store.Users, nil, service.UserServiceOptions{}),
		Todos: service.NewTodoService(store.Todos),
		Auth:  authSvc,
	})
	require.NoError(t, err)
	transport := rpc.NewTransport(router, rpc.NewContextBuilder(store, authSvc, nil, logger), rpc.TransportConfig{Logger: logger})

	engine := gin.New()
	NewHandler(authSvc, transport, Options{
		TrustedOrigins: []string{"http://localhost:3000"},
		SessionTTL:     time.Hour,
		Logger:         logger,
	}).RegisterRoutes(engine)
	return engine
}

func serve(engine *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.CookieName {
			return c
		}
	}
	t.Fatalf("response has no %s cookie", auth.CookieName)
	return nil
}

func TestHealth(t *testing.T) {
	rec := serve(newTestEngine(t), httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":"ok"}`, rec.Body.String())
}

func TestCookieSessionFlow(t *testing.T) {
	engine := newTestEngine(t)

	rec := serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-up/email",
		`{"name":"Ada","email":"ada@example.com","password":"correct-horse","phone":"555-0100"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, 3600, cookie.MaxAge)

	var signedUp SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &signedUp))
	assert.Equal(t, "ada@example.com", signedUp.User.Email)
	require.NotNil(t, signedUp.User.Phone)
	assert.Equal(t, "555-0100", *signedUp.User.Phone)
	assert.NotEmpty(t, signedUp.Token)
	assert.NotContains(t, rec.Body.String(), "password")

	req := httptest.NewRequest(http.MethodGet, "/api/trpc/user.me", nil)
	req.AddCookie(cookie)
	rec = serve(engine, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/get-session", nil)
	req.AddCookie(cookie)
	rec = serve(engine, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var state SessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, signedUp.Session.ID, state.Session.ID)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/sign-out", nil)
	req.AddCookie(cookie)
	rec = serve(engine, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sessionCookie(t, rec).MaxAge < 0)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/get-session", nil)
	req.AddCookie(cookie)
	rec = serve(engine, req)
	assert.Equal(t, "null", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/trpc/user.me", nil)
	req.AddCookie(cookie)
	assert.Equal(t, http.StatusUnauthorized, serve(engine, req).Code)
}

func TestSignInErrors(t *testing.T) {
	engine := newTestEngine(t)
	body := `{"name":"Ada","email":"ada@example.com","password":"correct-horse"}`
	require.Equal(t, http.StatusOK, serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-up/email", body)).Code)

	rec := serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-up/email", body))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-up/email",
		`{"name":"Bob","email":"bob@example.com","password":"short"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-up/email",
		`{"name":"  ","email":"bob@example.com","password":"correct-horse"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"name must not be blank"}`, rec.Body.String())

	rec = serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-in/email",
		`{"email":"ada@example.com","password":"wrong-horse"}`))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid email or password"}`, rec.Body.String())

	rec = serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-in/email", `{"email":"ada@example.com"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(engine, jsonRequest(http.MethodPost, "/api/auth/sign-in/email",
		`{"email":"ADA@example.com","password":"correct-horse"}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	sessionCookie(t, rec)
}

func TestCORS(t *testing.T) {
	engine := newTestEngine(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/trpc/todo.list", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := serve(engine, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = serve(engine, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestTodoCreateThroughEngine(t *testing.T) {
	engine := newTestEngine(t)

	rec := serve(engine, jsonRequest(http.MethodPost, "/api/trpc/todo.create",
		`{"json":{"title":"A","description":"B"}}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"result":{"data":{"json":{"id":"1","title":"A","description":"B"}}}}`, rec.Body.String())
}
