package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"account-portal/internal/domain"
	"account-portal/internal/repository"
)

var (
	// ErrInvalidCredentials indicates that provided login credentials are incorrect.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserAlreadyExists is returned when attempting to sign up with an existing email.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrPasswordTooShort is returned when a new password is below the minimum length.
	ErrPasswordTooShort = errors.New("password is too short")
	// ErrSessionNotFound is returned when a session does not exist or belongs to someone else.
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRole is returned when assigning an unknown role.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidName is returned when a name is blank after trimming.
	ErrInvalidName = errors.New("name must not be blank")
	// ErrInvalidEmail is returned when an email is blank after trimming.
	ErrInvalidEmail = errors.New("email must not be blank")
)

const (
	DefaultSessionTTL        = 7 * 24 * time.Hour
	DefaultMinPasswordLength = 8
)

// Config tunes the auth service.
type Config struct {
	Secret            []byte
	Issuer            string
	SessionTTL        time.Duration
	BcryptCost        int
	MinPasswordLength int
	Cache             SessionCache
	Logger            logrus.FieldLogger
	Now               func() time.Time
}

// SessionState is a resolved, valid session together with its user.
type SessionState struct {
	Session *domain.Session
	User    *domain.User
}

// SignInResult is returned by operations that open a new session.
type SignInResult struct {
	Token   string
	Session *domain.Session
	User    *domain.User
}

// SignUpInput carries the fields accepted on registration.
type SignUpInput struct {
	Name     string
	Email    string
	Password string
	Phone    *string
	Image    *string
}

// ChangePasswordInput carries a password change request.
type ChangePasswordInput struct {
	CurrentPassword     string
	NewPassword         string
	RevokeOtherSessions bool
}

// Service owns credentials and sessions. Callers only ever see sanitized users.
type Service struct {
	users    repository.UserRepository
	sessions repository.SessionRepository
	cfg      Config
}

func NewService(users repository.UserRepository, sessions repository.SessionRepository, cfg Config) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = DefaultMinPasswordLength
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "account-portal"
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		users:    users,
		sessions: sessions,
		cfg:      cfg,
	}
}

// SignUp registers a new account. The returned user carries no password hash.
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return nil, ErrInvalidName
	}
	if email == "" {
		return nil, ErrInvalidEmail
	}
	if len(in.Password) < s.cfg.MinPasswordLength {
		return nil, ErrPasswordTooShort
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, ErrUserAlreadyExists
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Phone:        in.Phone,
		Image:        in.Image,
		Role:         domain.RoleUser,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, ErrUserAlreadyExists
		}
		return nil, err
	}

	s.cfg.Logger.WithField("user_id", user.ID).Info("user signed up")
	return sanitizeUser(user), nil
}

// SignIn verifies credentials and opens a new session.
func (s *Service) SignIn(ctx context.Context, email, password string, client ClientInfo) (*SignInResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.CreateSession(ctx, user, client)
}

// CreateSession opens a session for an already verified user.
func (s *Service) CreateSession(ctx context.Context, user *domain.User, client ClientInfo) (*SignInResult, error) {
	session := &domain.Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		ExpiresAt: s.cfg.Now().UTC().Add(s.cfg.SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}

	token, err := newToken(s.cfg.Secret, s.cfg.Issuer, session)
	if err != nil {
		return nil, err
	}

	s.cacheSet(ctx, session)
	return &SignInResult{Token: token, Session: session, User: sanitizeUser(user)}, nil
}

// GetSession resolves the session carried by headers. Absence of a usable session is not an
// error: nil, nil is returned for missing, malformed, expired or revoked tokens.
func (s *Service) GetSession(ctx context.Context, headers http.Header) (*SessionState, error) {
	raw := TokenFromHeaders(headers)
	if raw == "" {
		return nil, nil
	}

	claims, err := parseToken(s.cfg.Secret, s.cfg.Issuer, raw, s.cfg.Now)
	if err != nil {
		s.cfg.Logger.WithError(err).Debug("ignoring invalid session token")
		return nil, nil
	}

	session, err := s.lookupSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if session.UserID != claims.Subject || session.Expired(s.cfg.Now()) {
		return nil, nil
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session user: %w", err)
	}

	return &SessionState{Session: session, User: sanitizeUser(user)}, nil
}

// SignOut revokes the session carried by headers, if any.
func (s *Service) SignOut(ctx context.Context, headers http.Header) error {
	state, err := s.GetSession(ctx, headers)
	if err != nil || state == nil {
		return err
	}
	if err := s.sessions.Delete(ctx, state.Session.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}
	s.cacheDelete(ctx, state.Session.ID)
	return nil
}

// ListSessions returns every session currently held by userID.
func (s *Service) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	all, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.cfg.Now()
	live := make([]domain.Session, 0, len(all))
	for _, session := range all {
		if !session.Expired(now) {
			live = append(live, session)
		}
	}
	return live, nil
}

// RevokeSession deletes one of userID's sessions.
func (s *Service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	if session.UserID != userID {
		return ErrSessionNotFound
	}
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return err
	}
	s.cacheDelete(ctx, sessionID)
	return nil
}

// ChangePassword replaces the password of the session's user after verifying the current one.
func (s *Service) ChangePassword(ctx context.Context, session *domain.Session, in ChangePasswordInput) error {
	if session == nil {
		return ErrSessionNotFound
	}
	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if len(in.NewPassword) < s.cfg.MinPasswordLength {
		return ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), s.cfg.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePasswordHash(ctx, user.ID, string(hash)); err != nil {
		return err
	}

	if in.RevokeOtherSessions {
		removed, err := s.sessions.DeleteByUser(ctx, user.ID, session.ID)
		s.cacheDelete(ctx, removed...)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetRole assigns role to userID and returns the updated user.
func (s *Service) SetRole(ctx context.Context, userID string, role domain.Role) (*domain.User, error) {
	if !role.IsValid() {
		return nil, ErrInvalidRole
	}
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sanitizeUser(user), nil
}

// CleanupExpired purges sessions that are past their expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	return s.sessions.DeleteExpired(ctx, s.cfg.Now())
}

// StartCleanup runs CleanupExpired every interval until ctx is cancelled.
func (s *Service) StartCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	s.cfg.Logger.WithField("interval", interval).Debug("starting session cleanup worker")
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cleanupCtx, cancel := context.WithTimeout(ctx, interval/2)
				n, err := s.CleanupExpired(cleanupCtx)
				cancel()
				if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
					s.cfg.Logger.WithError(err).Error("cleanup expired sessions")
				} else if n > 0 {
					s.cfg.Logger.WithField("removed", n).Info("expired sessions removed")
				}
			case <-ctx.Done():
				s.cfg.Logger.Debug("stopping session cleanup worker")
				return
			}
		}
	}()
}

func (s *Service) lookupSession(ctx context.Context, id string) (*domain.Session, error) {
	if s.cfg.Cache != nil {
		cached, err := s.cfg.Cache.Get(ctx, id)
		if err != nil {
			s.cfg.Logger.WithError(err).Warn("session cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, session)
	return session, nil
}

func (s *Service) cacheSet(ctx context.Context, session *domain.Session) {
	if s.cfg.Cache == nil {
		return
	}
	if err := s.cfg.Cache.Set(ctx, session); err != nil {
		s.cfg.Logger.WithError(err).Warn("session cache write failed")
	}
}

func (s *Service) cacheDelete(ctx context.Context, ids ...string) {
	if s.cfg.Cache == nil || len(ids) == 0 {
		return
	}
	if err := s.cfg.Cache.Delete(ctx, ids...); err != nil {
		s.cfg.Logger.WithError(err).Warn("session cache delete failed")
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sanitizeUser(user *domain.User) *domain.User {
	if user == nil {
		return nil
	}
	clean := *user
	clean.PasswordHash = ""
	return &clean
}
