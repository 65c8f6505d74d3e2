package rpc

import (
	"context"
	"encoding/json"
	"slices"

	"github.com/sirupsen/logrus"

	"account-portal/internal/domain"
)

// ProcedureType is the kind of a procedure. Queries are served over GET and mutations over POST.
type ProcedureType string

const (
	TypeQuery    ProcedureType = "query"
	TypeMutation ProcedureType = "mutation"
)

// NoInput marks procedures that take no input. Whatever the client sends is ignored.
type NoInput struct{}

// Handler implements a procedure. input has already been decoded and validated.
type Handler[In any] func(ctx context.Context, rc *Context, input In) (any, error)

// Procedure is a registered unit of work: its type, its middleware chain and a typed handler
// erased behind parse and invoke.
type Procedure struct {
	typ         ProcedureType
	middlewares []Middleware
	parse       func(raw json.RawMessage) (any, error)
	invoke      func(ctx context.Context, rc *Context, input any) (any, error)
}

func (p *Procedure) Type() ProcedureType { return p.typ }

// Middlewares returns the names of the procedure's stages in execution order.
func (p *Procedure) Middlewares() []string {
	names := make([]string, len(p.middlewares))
	for i, m := range p.middlewares {
		names[i] = m.Name
	}
	return names
}

// Protected reports whether the chain contains the requireUser stage.
func (p *Procedure) Protected() bool {
	return slices.Contains(p.Middlewares(), MiddlewareRequireUser)
}

// Call decodes and validates raw, then runs the middleware chain around the handler.
// Invalid input is rejected before any middleware runs.
func (p *Procedure) Call(ctx context.Context, path string, raw json.RawMessage, rc *Context) (any, error) {
	input, err := p.parse(raw)
	if err != nil {
		return nil, err
	}
	final := func(ctx context.Context, rc *Context) (any, error) {
		return p.invoke(ctx, rc, input)
	}
	return chain(p.middlewares, Call{Path: path, Type: p.typ, Context: rc}, final)(ctx, rc)
}

// ProcedureBuilder accumulates middleware for procedures built from it. Builders are values;
// Use returns a new builder and never changes the receiver.
type ProcedureBuilder struct {
	middlewares []Middleware
}

func NewProcedureBuilder(middlewares ...Middleware) ProcedureBuilder {
	return ProcedureBuilder{middlewares: slices.Clone(middlewares)}
}

// Use returns a builder whose chain is the receiver's followed by middlewares.
func (b ProcedureBuilder) Use(middlewares ...Middleware) ProcedureBuilder {
	return ProcedureBuilder{middlewares: append(slices.Clone(b.middlewares), middlewares...)}
}

func Query[In any](b ProcedureBuilder, h Handler[In]) *Procedure {
	return newProcedure(TypeQuery, b, h)
}

func Mutation[In any](b ProcedureBuilder, h Handler[In]) *Procedure {
	return newProcedure(TypeMutation, b, h)
}

func newProcedure[In any](typ ProcedureType, b ProcedureBuilder, h Handler[In]) *Procedure {
	return &Procedure{
		typ:         typ,
		middlewares: slices.Clone(b.middlewares),
		parse: func(raw json.RawMessage) (any, error) {
			return decodeInput[In](raw)
		},
		invoke: func(ctx context.Context, rc *Context, input any) (any, error) {
			return h(ctx, rc, input.(In))
		},
	}
}

// Procedures holds the standard builders every router starts from.
type Procedures struct {
	// Public runs [timing].
	Public ProcedureBuilder
	// Protected runs [requireUser, timing].
	Protected ProcedureBuilder
	// Admin runs [requireUser, timing, requireRole(admin)].
	Admin ProcedureBuilder
}

func NewProcedures(logger logrus.FieldLogger) Procedures {
	timing := Timing(logger)
	protected := NewProcedureBuilder(RequireUser(), timing)
	return Procedures{
		Public:    NewProcedureBuilder(timing),
		Protected: protected,
		Admin:     protected.Use(RequireRole(domain.RoleAdmin)),
	}
}
