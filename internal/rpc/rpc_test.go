package rpc

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"account-portal/internal/auth"
	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

type stubResolver struct {
	state *auth.SessionState
	err   error
	calls atomic.Int32
}

func (s *stubResolver) GetSession(context.Context, http.Header) (*auth.SessionState, error) {
	s.calls.Add(1)
	return s.state, s.err
}

func signedIn(role domain.Role) *auth.SessionState {
	now := time.Now().UTC()
	return &auth.SessionState{
		Session: &domain.Session{ID: "s1", UserID: "u1", ExpiresAt: now.Add(time.Hour), CreatedAt: now},
		User:    &domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com", Role: role},
	}
}

func anonymous() *Context {
	return &Context{Headers: http.Header{}}
}

func authenticated(role domain.Role) *Context {
	state := signedIn(role)
	return &Context{Headers: http.Header{}, Session: state.Session, User: state.User}
}

func TestContextBuilderIsPermissive(t *testing.T) {
	logger, _ := test.NewNullLogger()
	req, _ := http.NewRequest(http.MethodGet, "/", nil)

	rc, err := NewContextBuilder(repository.Store{}, nil, &stubResolver{}, logger).Build(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, rc.Authenticated())
	assert.Nil(t, rc.Session)
	assert.Nil(t, rc.User)

	rc, err = NewContextBuilder(repository.Store{}, nil, &stubResolver{state: signedIn(domain.RoleUser)}, logger).Build(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, rc.Authenticated())
	assert.Equal(t, "u1", rc.User.ID)

	_, err = NewContextBuilder(repository.Store{}, nil, &stubResolver{err: errors.New("db down")}, logger).Build(context.Background(), req)
	assert.Equal(t, KindUpstream, ErrorKind(err))
}

func TestRouterRegister(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewProcedures(logger)
	proc := Query(p.Public, func(context.Context, *Context, NoInput) (any, error) { return "ok", nil })

	r := NewRouter()
	require.NoError(t, r.Register("health.ping", proc))
	assert.Error(t, r.Register("health.ping", proc))
	assert.Error(t, r.Register("", proc))
	assert.Error(t, r.Register("a,b", proc))

	require.NoError(t, r.Mount("todo", Routes{"list": proc, "get": proc}))
	assert.Error(t, r.Mount("todo", Routes{"list": proc}))
	assert.Equal(t, []string{"health.ping", "todo.get", "todo.list"}, r.Names())
}

func TestProcedureChains(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewProcedures(logger)
	noop := func(context.Context, *Context, NoInput) (any, error) { return nil, nil }

	public := Query(p.Public, noop)
	protected := Query(p.Protected, noop)
	admin := Mutation(p.Admin, noop)

	assert.Equal(t, []string{"timing"}, public.Middlewares())
	assert.Equal(t, []string{"requireUser", "timing"}, protected.Middlewares())
	assert.Equal(t, []string{"requireUser", "timing", "requireRole"}, admin.Middlewares())
	assert.False(t, public.Protected())
	assert.True(t, protected.Protected())
	assert.Equal(t, TypeMutation, admin.Type())

	// Use must not leak stages into the builder it was called on.
	_ = p.Public.Use(RequireUser())
	assert.Equal(t, []string{"timing"}, Query(p.Public, noop).Middlewares())
}

type createInput struct {
	Title       *string `json:"title" validate:"required"`
	Description *string `json:"description" validate:"required"`
}

type signUpInput struct {
	Name     string `json:"name" validate:"required,min=1"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Profile  struct {
		Phone string `json:"phone" validate:"omitempty,min=5"`
	} `json:"profile"`
}

func TestDispatchValidationReportsEveryFieldAndSkipsHandler(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var called atomic.Bool
	var middlewareRan atomic.Bool
	probe := Middleware{Name: "probe", Fn: func(ctx context.Context, call Call, next Next) (any, error) {
		middlewareRan.Store(true)
		return next(ctx, call.Context)
	}}

	r := NewRouter()
	require.NoError(t, r.Register("user.create", Mutation(NewProcedures(logger).Public.Use(probe),
		func(context.Context, *Context, signUpInput) (any, error) {
			called.Store(true)
			return nil, nil
		})))

	_, err := r.Dispatch(context.Background(), "user.create",
		[]byte(`{"name":"","email":"not-an-email","password":"short","profile":{"phone":"1"}}`), anonymous())
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, KindValidation, rpcErr.Kind)
	assert.ElementsMatch(t, []FieldError{
		{Field: "name", Message: "is required"},
		{Field: "email", Message: "must be a valid email address"},
		{Field: "password", Message: "must be at least 8 characters"},
		{Field: "profile.phone", Message: "must be at least 5 characters"},
	}, rpcErr.Fields)
	assert.False(t, called.Load())
	assert.False(t, middlewareRan.Load())
}

func TestDispatchValidationTypeMismatch(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRouter()
	require.NoError(t, r.Register("todo.create", Mutation(NewProcedures(logger).Public,
		func(context.Context, *Context, createInput) (any, error) { return nil, nil })))

	_, err := r.Dispatch(context.Background(), "todo.create", []byte(`{"title":5}`), anonymous())
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.ElementsMatch(t, []FieldError{
		{Field: "title", Message: "expected string, received number"},
		{Field: "description", Message: "is required"},
	}, rpcErr.Fields)

	_, err = r.Dispatch(context.Background(), "todo.create", nil, anonymous())
	require.ErrorAs(t, err, &rpcErr)
	assert.Len(t, rpcErr.Fields, 2)

	_, err = r.Dispatch(context.Background(), "todo.create", []byte(`"just a string"`), anonymous())
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, []FieldError{{Field: "", Message: "expected object, received string"}}, rpcErr.Fields)
}

func TestDispatchValidationReportsEveryTypeMismatch(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRouter()
	require.NoError(t, r.Register("todo.create", Mutation(NewProcedures(logger).Public,
		func(context.Context, *Context, createInput) (any, error) { return nil, nil })))
	require.NoError(t, r.Register("user.create", Mutation(NewProcedures(logger).Public,
		func(context.Context, *Context, signUpInput) (any, error) { return nil, nil })))

	_, err := r.Dispatch(context.Background(), "todo.create", []byte(`{"title":1,"description":2}`), anonymous())
	var rpcErr *Error
	require.ErrorAs(t, err, &rpcErr)
	assert.ElementsMatch(t, []FieldError{
		{Field: "title", Message: "expected string, received number"},
		{Field: "description", Message: "expected string, received number"},
	}, rpcErr.Fields)

	_, err = r.Dispatch(context.Background(), "user.create",
		[]byte(`{"name":1,"email":true,"password":"long enough","profile":{"phone":7}}`), anonymous())
	require.ErrorAs(t, err, &rpcErr)
	assert.ElementsMatch(t, []FieldError{
		{Field: "name", Message: "expected string, received number"},
		{Field: "email", Message: "expected string, received bool"},
		{Field: "profile.phone", Message: "expected string, received number"},
	}, rpcErr.Fields)
}

func TestDispatchUnknownProcedure(t *testing.T) {
	_, err := NewRouter().Dispatch(context.Background(), "nope", nil, anonymous())
	assert.Equal(t, KindNotFound, ErrorKind(err))
}

func TestProtectedProcedureRejectsAnonymousCallers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var invoked atomic.Bool
	r := NewRouter()
	require.NoError(t, r.Register("user.me", Query(NewProcedures(logger).Protected,
		func(_ context.Context, rc *Context, _ NoInput) (any, error) {
			invoked.Store(true)
			return rc.User.ID, nil
		})))

	_, err := r.Dispatch(context.Background(), "user.me", nil, anonymous())
	assert.Equal(t, KindUnauthorized, ErrorKind(err))
	assert.False(t, invoked.Load())

	out, err := r.Dispatch(context.Background(), "user.me", nil, authenticated(domain.RoleUser))
	require.NoError(t, err)
	assert.Equal(t, "u1", out)
	assert.True(t, invoked.Load())
}

func TestPublicProcedureServesAnonymousCallers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRouter()
	require.NoError(t, r.Register("todo.list", Query(NewProcedures(logger).Public,
		func(_ context.Context, rc *Context, _ NoInput) (any, error) {
			return rc.Authenticated(), nil
		})))

	out, err := r.Dispatch(context.Background(), "todo.list", nil, anonymous())
	require.NoError(t, err)
	assert.Equal(t, false, out)
}

func TestRequireRole(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRouter()
	require.NoError(t, r.Register("admin.ping", Mutation(NewProcedures(logger).Admin,
		func(context.Context, *Context, NoInput) (any, error) { return "pong", nil })))

	_, err := r.Dispatch(context.Background(), "admin.ping", nil, anonymous())
	assert.Equal(t, KindUnauthorized, ErrorKind(err))

	_, err = r.Dispatch(context.Background(), "admin.ping", nil, authenticated(domain.RoleUser))
	assert.Equal(t, KindForbidden, ErrorKind(err))

	out, err := r.Dispatch(context.Background(), "admin.ping", nil, authenticated(domain.RoleAdmin))
	require.NoError(t, err)
	assert.Equal(t, "pong", out)
}

func TestMiddlewareOrderAndHandlerErrors(t *testing.T) {
	var order []string
	stage := func(name string) Middleware {
		return Middleware{Name: name, Fn: func(ctx context.Context, call Call, next Next) (any, error) {
			order = append(order, name+":before")
			out, err := next(ctx, call.Context)
			order = append(order, name+":after")
			return out, err
		}}
	}
	conflict := NewError(KindConflict, "user already exists")

	r := NewRouter()
	require.NoError(t, r.Register("x", Mutation(NewProcedureBuilder(stage("a"), stage("b")),
		func(context.Context, *Context, NoInput) (any, error) {
			order = append(order, "handler")
			return nil, conflict
		})))

	_, err := r.Dispatch(context.Background(), "x", nil, anonymous())
	assert.Same(t, conflict, err)
	assert.Equal(t, []string{"a:before", "b:before", "handler", "b:after", "a:after"}, order)
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	cached := Middleware{Name: "cache", Fn: func(context.Context, Call, Next) (any, error) {
		return "cached", nil
	}}
	r := NewRouter()
	require.NoError(t, r.Register("x", Query(NewProcedureBuilder(cached),
		func(context.Context, *Context, NoInput) (any, error) {
			t.Fatal("handler must not run")
			return nil, nil
		})))

	out, err := r.Dispatch(context.Background(), "x", nil, anonymous())
	require.NoError(t, err)
	assert.Equal(t, "cached", out)
}
