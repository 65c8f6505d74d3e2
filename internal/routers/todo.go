package routers

import (
	"context"

	"account-portal/internal/rpc"
	"account-portal/internal/service"
)

type createTodoInput struct {
	Title       *string `json:"title" validate:"required"`
	Description *string `json:"description" validate:"required"`
}

func todoRoutes(p rpc.Procedures, todos service.TodoService) rpc.Routes {
	return rpc.Routes{
		"create": rpc.Mutation(p.Public, func(ctx context.Context, _ *rpc.Context, in createTodoInput) (any, error) {
			todo, err := todos.CreateTodo(ctx, *in.Title, *in.Description)
			if err != nil {
				return nil, toRPCError(err)
			}
			return todoToResponse(*todo), nil
		}),
		"list": rpc.Query(p.Public, func(ctx context.Context, _ *rpc.Context, _ rpc.NoInput) (any, error) {
			list, err := todos.ListTodos(ctx)
			if err != nil {
				return nil, toRPCError(err)
			}
			resp := make([]todoResponse, len(list))
			for i := range list {
				resp[i] = todoToResponse(list[i])
			}
			return resp, nil
		}),
	}
}
