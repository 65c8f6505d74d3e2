package routers

import (
	"context"
	"errors"

	"account-portal/internal/auth"
	"account-portal/internal/domain"
	"account-portal/internal/repository"
	"account-portal/internal/rpc"
	"account-portal/internal/service"
)

type findUserInput struct {
	ID string `json:"id" validate:"required"`
}

type createUserInput struct {
	Name     string  `json:"name" validate:"required,min=1"`
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,min=1"`
	Phone    *string `json:"phone"`
	Image    *string `json:"image"`
}

type updateUserData struct {
	Name  *string `json:"name" validate:"omitempty,min=1"`
	Email *string `json:"email" validate:"omitempty,email"`
	Phone *string `json:"phone"`
	Image *string `json:"image"`
}

type updateUserInput struct {
	ID   string         `json:"id" validate:"required"`
	Data updateUserData `json:"data"`
}

type uploadAvatarInput struct {
	File        string `json:"file" validate:"required,min=1"`
	FileName    string `json:"fileName" validate:"required,min=1"`
	ContentType string `json:"contentType"`
}

type avatarUploadURLInput struct {
	FileName    string `json:"fileName" validate:"required,min=1"`
	ContentType string `json:"contentType" validate:"required"`
}

type updatePasswordInput struct {
	CurrentPassword     string `json:"currentPassword" validate:"required"`
	NewPassword         string `json:"newPassword" validate:"required"`
	RevokeOtherSessions bool   `json:"revokeOtherSessions"`
}

func userRoutes(p rpc.Procedures, users service.UserService, authSvc *auth.Service) rpc.Routes {
	return rpc.Routes{
		"me": rpc.Query(p.Protected, func(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (any, error) {
			user, err := users.GetByID(ctx, rc.User.ID)
			if err != nil {
				return nil, toRPCError(err)
			}
			return userToResponse(*user), nil
		}),

		"get": rpc.Query(p.Protected, func(ctx context.Context, _ *rpc.Context, _ rpc.NoInput) (any, error) {
			list, err := users.List(ctx)
			if err != nil {
				return nil, toRPCError(err)
			}
			return usersToResponse(list), nil
		}),

		"find": rpc.Query(p.Protected, func(ctx context.Context, _ *rpc.Context, in findUserInput) (any, error) {
			list, err := users.Find(ctx, in.ID)
			if err != nil {
				return nil, toRPCError(err)
			}
			return usersToResponse(list), nil
		}),

		"create": rpc.Mutation(p.Public, func(ctx context.Context, _ *rpc.Context, in createUserInput) (any, error) {
			user, err := authSvc.SignUp(ctx, auth.SignUpInput{
				Name:     in.Name,
				Email:    in.Email,
				Password: in.Password,
				Phone:    in.Phone,
				Image:    in.Image,
			})
			if err != nil {
				return nil, toRPCError(err)
			}
			return userToResponse(*user), nil
		}),

		"update": rpc.Mutation(p.Protected, func(ctx context.Context, rc *rpc.Context, in updateUserInput) (any, error) {
			if in.ID != rc.User.ID && rc.User.Role != domain.RoleAdmin {
				return nil, rpc.NewError(rpc.KindForbidden, "cannot update another user")
			}
			user, err := users.Update(ctx, in.ID, repository.UserPatch{
				Name:  in.Data.Name,
				Email: in.Data.Email,
				Phone: in.Data.Phone,
				Image: in.Data.Image,
			})
			if errors.Is(err, service.ErrInvalidName) {
				return nil, fieldError("data.name", "must not be blank")
			}
			if err != nil {
				return nil, toRPCError(err)
			}
			return userToResponse(*user), nil
		}),

		"uploadAvatar": rpc.Mutation(p.Protected, func(ctx context.Context, rc *rpc.Context, in uploadAvatarInput) (any, error) {
			url, err := users.UploadAvatar(ctx, rc.User.ID, service.AvatarUpload{
				File:        in.File,
				FileName:    in.FileName,
				ContentType: in.ContentType,
			})
			if err != nil {
				return nil, storageError(err)
			}
			return map[string]string{"url": url}, nil
		}),

		"removeAvatar": rpc.Mutation(p.Protected, func(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (any, error) {
			removed, err := users.RemoveAvatar(ctx, rc.User.ID)
			if err != nil {
				return nil, storageError(err)
			}
			return map[string]bool{"removed": removed}, nil
		}),

		"avatars": rpc.Query(p.Protected, func(ctx context.Context, rc *rpc.Context, _ rpc.NoInput) (any, error) {
			list, err := users.ListAvatars(ctx, rc.User.ID)
			if err != nil {
				return nil, storageError(err)
			}
			resp := make([]avatarResponse, len(list))
			for i := range list {
				resp[i] = avatarToResponse(list[i])
			}
			return resp, nil
		}),

		"avatarUploadUrl": rpc.Mutation(p.Protected, func(ctx context.Context, rc *rpc.Context, in avatarUploadURLInput) (any, error) {
			upload, err := users.PresignAvatarUpload(ctx, rc.User.ID, in.FileName, in.ContentType)
			if err != nil {
				return nil, storageError(err)
			}
			return presignedUploadResponse{URL: upload.URL, Key: upload.Key, ExpiresAt: upload.ExpiresAt}, nil
		}),

		"updatePassword": rpc.Mutation(p.Protected, func(ctx context.Context, rc *rpc.Context, in updatePasswordInput) (any, error) {
			err := rc.Auth.ChangePassword(ctx, rc.Session, auth.ChangePasswordInput{
				CurrentPassword:     in.CurrentPassword,
				NewPassword:         in.NewPassword,
				RevokeOtherSessions: in.RevokeOtherSessions,
			})
			switch {
			case err == nil:
				return statusResponse{Status: true}, nil
			case errors.Is(err, auth.ErrInvalidCredentials):
				return nil, rpc.WrapError(rpc.KindUnauthorized, "current password is incorrect", err)
			case errors.Is(err, auth.ErrPasswordTooShort):
				return nil, fieldError("newPassword", minPasswordMessage)
			}
			return nil, rpc.WrapError(rpc.KindInternal, "failed to update password", err)
		}),
	}
}
