package rpc

import (
	"context"
	"slices"
	"time"

	"github.com/sirupsen/logrus"

	"account-portal/internal/domain"
)

const (
	MiddlewareTiming      = "timing"
	MiddlewareRequireUser = "requireUser"
	MiddlewareRequireRole = "requireRole"
)

// Call describes the invocation a middleware stage is wrapping.
type Call struct {
	Path    string
	Type    ProcedureType
	Context *Context
}

// Next continues the chain with a possibly replaced context.
type Next func(ctx context.Context, rc *Context) (any, error)

// MiddlewareFunc either short-circuits with a result or error, or calls next.
type MiddlewareFunc func(ctx context.Context, call Call, next Next) (any, error)

// Middleware is a named stage. Names make the chain of a procedure inspectable.
type Middleware struct {
	Name string
	Fn   MiddlewareFunc
}

// Timing logs how long the rest of the chain took.
func Timing(logger logrus.FieldLogger) Middleware {
	return Middleware{
		Name: MiddlewareTiming,
		Fn: func(ctx context.Context, call Call, next Next) (any, error) {
			start := time.Now()
			out, err := next(ctx, call.Context)
			entry := logger.WithFields(logrus.Fields{
				"path":     call.Path,
				"type":     call.Type,
				"duration": time.Since(start).String(),
			})
			if err != nil {
				entry.WithField("code", ErrorKind(err)).Info("rpc call failed")
			} else {
				entry.Debug("rpc call completed")
			}
			return out, err
		},
	}
}

// RequireUser rejects calls without an authenticated session and hands the next stage a
// context whose Session and User are guaranteed non-nil.
func RequireUser() Middleware {
	return Middleware{
		Name: MiddlewareRequireUser,
		Fn: func(ctx context.Context, call Call, next Next) (any, error) {
			rc := call.Context
			if !rc.Authenticated() {
				return nil, NewError(KindUnauthorized, "")
			}
			return next(ctx, rc.WithIdentity(rc.Session, rc.User))
		},
	}
}

// RequireRole rejects callers whose role is not one of roles. It expects RequireUser earlier
// in the chain and reports UNAUTHORIZED when that is missing.
func RequireRole(roles ...domain.Role) Middleware {
	allowed := slices.Clone(roles)
	return Middleware{
		Name: MiddlewareRequireRole,
		Fn: func(ctx context.Context, call Call, next Next) (any, error) {
			rc := call.Context
			if !rc.Authenticated() {
				return nil, NewError(KindUnauthorized, "")
			}
			if !slices.Contains(allowed, rc.User.Role) {
				return nil, NewError(KindForbidden, "insufficient role")
			}
			return next(ctx, rc)
		},
	}
}

// chain composes stages around final; the first stage runs outermost.
func chain(stages []Middleware, call Call, final Next) Next {
	next := final
	for i := len(stages) - 1; i >= 0; i-- {
		stage, inner := stages[i], next
		next = func(ctx context.Context, rc *Context) (any, error) {
			c := call
			c.Context = rc
			return stage.Fn(ctx, c, inner)
		}
	}
	return next
}
