package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Routes maps procedure names, relative to a namespace, to procedures.
type Routes map[string]*Procedure

// Router is the flat procedure registry. It is filled at startup and read-only afterwards.
type Router struct {
	procedures map[string]*Procedure
}

func NewRouter() *Router {
	return &Router{procedures: make(map[string]*Procedure)}
}

// Register adds a procedure under its fully qualified name.
func (r *Router) Register(name string, p *Procedure) error {
	switch {
	case name == "":
		return fmt.Errorf("procedure name is required")
	case strings.ContainsAny(name, ", /"):
		return fmt.Errorf("procedure name %q contains a reserved character", name)
	case p == nil:
		return fmt.Errorf("procedure %q is nil", name)
	}
	if _, exists := r.procedures[name]; exists {
		return fmt.Errorf("procedure %q already registered", name)
	}
	r.procedures[name] = p
	return nil
}

// Mount registers every route under namespace, so "me" in namespace "user" becomes "user.me".
func (r *Router) Mount(namespace string, routes Routes) error {
	names := make([]string, 0, len(routes))
	for name := range routes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		full := name
		if namespace != "" {
			full = namespace + "." + name
		}
		if err := r.Register(full, routes[name]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) Lookup(name string) (*Procedure, bool) {
	p, ok := r.procedures[name]
	return p, ok
}

// Names returns every registered name in sorted order.
func (r *Router) Names() []string {
	names := make([]string, 0, len(r.procedures))
	for name := range r.procedures {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch runs the named procedure with plain JSON input.
func (r *Router) Dispatch(ctx context.Context, name string, raw json.RawMessage, rc *Context) (any, error) {
	p, ok := r.Lookup(name)
	if !ok {
		return nil, Errorf(KindNotFound, "no procedure found on path %q", name)
	}
	return p.Call(ctx, name, raw, rc)
}
