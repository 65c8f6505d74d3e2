package routers

import (
	"context"

	"account-portal/internal/auth"
	"account-portal/internal/domain"
	"account-portal/internal/rpc"
)

type setRoleInput struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required,oneof=user admin"`
}

func adminRoutes(p rpc.Procedures, authSvc *auth.Service) rpc.Routes {
	return rpc.Routes{
		"setRole": rpc.Mutation(p.Admin, func(ctx context.Context, _ *rpc.Context, in setRoleInput) (any, error) {
			user, err := authSvc.SetRole(ctx, in.UserID, domain.Role(in.Role))
			if err != nil {
				return nil, toRPCError(err)
			}
			return userToResponse(*user), nil
		}),
	}
}
