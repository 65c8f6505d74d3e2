package routers

import (
	"context"

	"account-portal/internal/auth"
	"account-portal/internal/rpc"
)

type revokeSessionInput struct {
	SessionID string `json:"sessionId" validate:"required"`
}

func authRoutes(p rpc.Procedures, authSvc *auth.Service) rpc.Routes {
	return rpc.Routes{
		// getSession is public: anonymous callers get null instead of an error.
		"getSession": rpc.Query(p.Public, func(_ context.Context, rc *rpc.Context, _ rpc.NoInput) (any, error) {
			if !rc.Authenticated() {
				return nil, nil
			}
			return sessionStateResponse{
				Session: sessionToResponse(*rc.Session),
				User:    userToResponse(*rc.User),
			}, nil
		}),

		"listSessions": rpc.Query(p.Protected, func(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (any, error) {
			sessions, err := authSvc.ListSessions(ctx, rc.User.ID)
			if err != nil {
				return nil, toRPCError(err)
			}
			resp := make([]sessionResponse, len(sessions))
			for i := range sessions {
				resp[i] = sessionToResponse(sessions[i])
				resp[i].Current = sessions[i].ID == rc.Session.ID
			}
			return resp, nil
		}),

		"revokeSession": rpc.Mutation(p.Protected, func(ctx context.Context, rc *rpc.Context, in revokeSessionInput) (any, error) {
			if err := authSvc.RevokeSession(ctx, rc.User.ID, in.SessionID); err != nil {
				return nil, toRPCError(err)
			}
			return statusResponse{Status: true}, nil
		}),
	}
}
