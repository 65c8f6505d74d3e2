package rpc

import (
	"context"
	"net/http"

	"github.com/sirupsen/logrus"

	"account-portal/internal/auth"
	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

// SessionResolver resolves the session carried by request headers. It returns nil, nil when
// the request has no valid session and an error only when the lookup itself failed.
type SessionResolver interface {
	GetSession(ctx context.Context, headers http.Header) (*auth.SessionState, error)
}

// Context is the per-request value handed to middleware and handlers. It is built once per
// HTTP request and shared read-only by every call in a batch.
type Context struct {
	Headers http.Header
	DB      repository.Store
	Auth    *auth.Service
	Session *domain.Session
	User    *domain.User
}

// Authenticated reports whether both a session and its user are present.
func (c *Context) Authenticated() bool {
	return c != nil && c.Session != nil && c.User != nil
}

// WithIdentity returns a copy of c carrying the given session and user.
func (c *Context) WithIdentity(session *domain.Session, user *domain.User) *Context {
	next := *c
	next.Session = session
	next.User = user
	return &next
}

// ContextBuilder builds a Context from an incoming request. It never rejects a request for
// lacking a session; that decision belongs to middleware.
type ContextBuilder struct {
	db       repository.Store
	auth     *auth.Service
	sessions SessionResolver
	logger   logrus.FieldLogger
}

// NewContextBuilder returns a builder. When sessions is nil the auth service resolves sessions.
func NewContextBuilder(db repository.Store, authSvc *auth.Service, sessions SessionResolver, logger logrus.FieldLogger) *ContextBuilder {
	if sessions == nil && authSvc != nil {
		sessions = authSvc
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ContextBuilder{db: db, auth: authSvc, sessions: sessions, logger: logger}
}

// Build resolves the session for r. Missing, malformed or expired credentials yield an
// anonymous context; only a failing session store is an error.
func (b *ContextBuilder) Build(ctx context.Context, r *http.Request) (*Context, error) {
	rc := &Context{
		Headers: r.Header.Clone(),
		DB:      b.db,
		Auth:    b.auth,
	}
	if b.sessions == nil {
		return rc, nil
	}

	state, err := b.sessions.GetSession(ctx, rc.Headers)
	if err != nil {
		b.logger.WithError(err).Error("failed to resolve session")
		return nil, WrapError(KindUpstream, "failed to resolve session", err)
	}
	if state != nil {
		rc.Session = state.Session
		rc.User = state.User
	}
	return rc, nil
}
