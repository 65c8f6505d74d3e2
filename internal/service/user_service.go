package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
	"account-portal/internal/storage"
)

var (
	// ErrInvalidAvatar indicates the uploaded file is not decodable base64.
	ErrInvalidAvatar = errors.New("avatar file is not valid base64 data")
	// ErrInvalidFileName indicates a file name that cannot be used in an object key.
	ErrInvalidFileName = errors.New("invalid file name")
	// ErrInvalidName is returned when a profile name is blank after trimming.
	ErrInvalidName = errors.New("name must not be blank")
)

const (
	defaultPresignExpiry = 15 * time.Minute
	defaultContentType   = "application/octet-stream"
)

var dataURLPattern = regexp.MustCompile(`^data:(.*?);base64,(.*)$`)

// AvatarUpload is an inline avatar: either a data URL or raw base64.
type AvatarUpload struct {
	File        string
	FileName    string
	ContentType string
}

// AvatarObject is a stored avatar with a time-limited download URL.
type AvatarObject struct {
	Key          string
	URL          string
	Size         int64
	LastModified *time.Time
}

// PresignedUpload lets a client PUT an avatar directly to object storage.
type PresignedUpload struct {
	URL       string
	Key       string
	ExpiresAt time.Time
}

// UserService describes profile and avatar operations. Authentication lives in package auth.
type UserService interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	List(ctx context.Context) ([]domain.User, error)
	Find(ctx context.Context, id string) ([]domain.User, error)
	Update(ctx context.Context, id string, patch repository.UserPatch) (*domain.User, error)
	UploadAvatar(ctx context.Context, userID string, in AvatarUpload) (string, error)
	RemoveAvatar(ctx context.Context, userID string) (bool, error)
	ListAvatars(ctx context.Context, userID string) ([]AvatarObject, error)
	PresignAvatarUpload(ctx context.Context, userID, fileName, contentType string) (*PresignedUpload, error)
}

// UserServiceOptions tunes NewUserService. Zero values select defaults.
type UserServiceOptions struct {
	PresignExpiry time.Duration
	Now           func() time.Time
}

type userService struct {
	users   repository.UserRepository
	storage storage.Service
	expiry  time.Duration
	now     func() time.Time
}

// NewUserService returns a UserService. store may be nil, in which case avatar operations
// fail with storage.ErrNotConfigured.
func NewUserService(users repository.UserRepository, store storage.Service, opts UserServiceOptions) UserService {
	if opts.PresignExpiry <= 0 {
		opts.PresignExpiry = defaultPresignExpiry
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &userService{
		users:   users,
		storage: store,
		expiry:  opts.PresignExpiry,
		now:     opts.Now,
	}
}

func (s *userService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

func (s *userService) List(ctx context.Context) ([]domain.User, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// Find returns the users matching id; the result is empty rather than an error when none does.
func (s *userService) Find(ctx context.Context, id string) ([]domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return []domain.User{}, nil
	}
	if err != nil {
		return nil, err
	}
	return []domain.User{*sanitizeUser(user)}, nil
}

func (s *userService) Update(ctx context.Context, id string, patch repository.UserPatch) (*domain.User, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return nil, ErrInvalidName
		}
		patch.Name = &name
	}
	if patch.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*patch.Email))
		patch.Email = &email
	}

	if !patch.Empty() {
		if err := s.users.Update(ctx, id, patch); err != nil {
			return nil, err
		}
	}
	return s.GetByID(ctx, id)
}

// UploadAvatar stores the avatar under avatar/<userID>/<unixMillis>-<fileName> and points the
// user's image at its public URL.
func (s *userService) UploadAvatar(ctx context.Context, userID string, in AvatarUpload) (string, error) {
	if s.storage == nil {
		return "", storage.ErrNotConfigured
	}
	fileName, err := sanitizeFileName(in.FileName)
	if err != nil {
		return "", err
	}

	contentType, body, err := decodeInlineFile(in.File, in.ContentType)
	if err != nil {
		return "", err
	}

	rel := fmt.Sprintf("%s/%d-%s", userID, s.now().UnixMilli(), fileName)
	if _, err := s.storage.Upload(ctx, storage.ObjectKey(domain.ContentTypeAvatar, rel), body, contentType); err != nil {
		return "", err
	}

	url := s.storage.URLFor(domain.ContentTypeAvatar, rel)
	if err := s.users.Update(ctx, userID, repository.UserPatch{Image: &url}); err != nil {
		return "", fmt.Errorf("set avatar url: %w", err)
	}
	return url, nil
}

// RemoveAvatar deletes every stored avatar of the user and clears the image. It reports
// whether there was anything to remove.
func (s *userService) RemoveAvatar(ctx context.Context, userID string) (bool, error) {
	if s.storage == nil {
		return false, storage.ErrNotConfigured
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return false, err
	}

	prefix := avatarPrefix(userID)
	objects, err := s.storage.ListObjects(ctx, prefix)
	if err != nil {
		return false, err
	}
	if len(objects) > 0 {
		if err := s.storage.DeletePrefix(ctx, prefix); err != nil {
			return false, err
		}
	}

	hadImage := user.Image != nil && *user.Image != ""
	if hadImage {
		empty := ""
		if err := s.users.Update(ctx, userID, repository.UserPatch{Image: &empty}); err != nil {
			return false, fmt.Errorf("clear avatar url: %w", err)
		}
	}
	return hadImage || len(objects) > 0, nil
}

func (s *userService) ListAvatars(ctx context.Context, userID string) ([]AvatarObject, error) {
	if s.storage == nil {
		return nil, storage.ErrNotConfigured
	}
	objects, err := s.storage.ListObjects(ctx, avatarPrefix(userID))
	if err != nil {
		return nil, err
	}

	out := make([]AvatarObject, 0, len(objects))
	for _, obj := range objects {
		url, err := s.storage.PresignDownload(ctx, obj.Key, s.expiry)
		if err != nil {
			return nil, err
		}
		out = append(out, AvatarObject{
			Key:          obj.Key,
			URL:          url,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}
	return out, nil
}

func (s *userService) PresignAvatarUpload(ctx context.Context, userID, fileName, contentType string) (*PresignedUpload, error) {
	if s.storage == nil {
		return nil, storage.ErrNotConfigured
	}
	fileName, err := sanitizeFileName(fileName)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	now := s.now()
	key := storage.ObjectKey(domain.ContentTypeAvatar, fmt.Sprintf("%s/%d-%s", userID, now.UnixMilli(), fileName))
	url, err := s.storage.PresignUpload(ctx, key, contentType, s.expiry)
	if err != nil {
		return nil, err
	}
	return &PresignedUpload{URL: url, Key: key, ExpiresAt: now.Add(s.expiry).UTC()}, nil
}

func avatarPrefix(userID string) string {
	return storage.ObjectKey(domain.ContentTypeAvatar, userID+"/")
}

// decodeInlineFile accepts a data URL or bare base64. The data URL's media type wins over
// fallbackType.
func decodeInlineFile(file, fallbackType string) (string, []byte, error) {
	contentType := fallbackType
	data := file
	if m := dataURLPattern.FindStringSubmatch(file); m != nil {
		if m[1] != "" {
			contentType = m[1]
		}
		data = m[2]
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	data = strings.TrimSpace(data)
	body, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		body, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(data, "="))
	}
	if err != nil || len(body) == 0 {
		return "", nil, ErrInvalidAvatar
	}
	return contentType, body, nil
}

func sanitizeFileName(name string) (string, error) {
	base := path.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if base == "" || base == "." || base == "/" || base == ".." {
		return "", ErrInvalidFileName
	}
	return base, nil
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
