// Package routers defines the procedures served by the RPC transport.
package routers

import (
	"fmt"

	"account-portal/internal/auth"
	"account-portal/internal/rpc"
	"account-portal/internal/service"
)

// Services are the dependencies shared by every router.
type Services struct {
	Users service.UserService
	Todos service.TodoService
	Auth  *auth.Service
}

// NewAppRouter assembles the application router. Name collisions are reported as errors.
func NewAppRouter(p rpc.Procedures, svc Services) (*rpc.Router, error) {
	router := rpc.NewRouter()
	mounts := []struct {
		namespace string
		routes    rpc.Routes
	}{
		{"todo", todoRoutes(p, svc.Todos)},
		{"user", userRoutes(p, svc.Users, svc.Auth)},
		{"auth", authRoutes(p, svc.Auth)},
		{"admin", adminRoutes(p, svc.Auth)},
	}
	for _, m := range mounts {
		if err := router.Mount(m.namespace, m.routes); err != nil {
			return nil, fmt.Errorf("mount %s router: %w", m.namespace, err)
		}
	}
	return router, nil
}
