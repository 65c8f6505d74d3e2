package routers

import (
	"errors"
	"fmt"

	"account-portal/internal/auth"
	"account-portal/internal/repository"
	"account-portal/internal/rpc"
	"account-portal/internal/service"
	"account-portal/internal/storage"
)

var minPasswordMessage = fmt.Sprintf("must be at least %d characters", auth.DefaultMinPasswordLength)

// toRPCError maps domain sentinels to RPC kinds. Anything unrecognised is returned unchanged
// and ends up as INTERNAL at the transport.
func toRPCError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return rpc.WrapError(rpc.KindConflict, "user already exists", err)
	case errors.Is(err, repository.ErrConflict):
		return rpc.WrapError(rpc.KindConflict, "email already in use", err)
	case errors.Is(err, auth.ErrSessionNotFound):
		return rpc.WrapError(rpc.KindNotFound, "session not found", err)
	case errors.Is(err, repository.ErrNotFound):
		return rpc.WrapError(rpc.KindNotFound, "user not found", err)
	case errors.Is(err, auth.ErrPasswordTooShort):
		return fieldError("password", minPasswordMessage)
	case errors.Is(err, auth.ErrInvalidCredentials):
		return rpc.WrapError(rpc.KindUnauthorized, auth.ErrInvalidCredentials.Error(), err)
	case errors.Is(err, auth.ErrInvalidName), errors.Is(err, service.ErrInvalidName):
		return fieldError("name", "must not be blank")
	case errors.Is(err, auth.ErrInvalidEmail):
		return fieldError("email", "must not be blank")
	case errors.Is(err, auth.ErrInvalidRole):
		return fieldError("role", "must be one of [user admin]")
	case errors.Is(err, service.ErrInvalidAvatar):
		return fieldError("file", "must be a data URL or base64 encoded")
	case errors.Is(err, service.ErrInvalidFileName):
		return fieldError("fileName", "is not a valid file name")
	case errors.Is(err, storage.ErrNotConfigured):
		return rpc.WrapError(rpc.KindUpstream, "object storage is not configured", err)
	}
	return err
}

// storageError is toRPCError for object storage calls: unknown failures are upstream ones.
func storageError(err error) error {
	mapped := toRPCError(err)
	var rpcErr *rpc.Error
	if mapped == nil || errors.As(mapped, &rpcErr) {
		return mapped
	}
	return rpc.WrapError(rpc.KindUpstream, "object storage request failed", err)
}

func fieldError(field, message string) *rpc.Error {
	return rpc.ValidationFailed([]rpc.FieldError{{Field: field, Message: message}})
}
