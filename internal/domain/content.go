package domain

// ContentType namespaces objects kept in remote storage.
type ContentType string

const (
	ContentTypeAvatar ContentType = "avatar"
)
