package http

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"account-portal/internal/auth"
	"account-portal/internal/domain"
	"account-portal/internal/rpc"
)

// Options configures cookies and CORS.
type Options struct {
	CookieSecure   bool
	TrustedOrigins []string
	SessionTTL     time.Duration
	Logger         logrus.FieldLogger
}

// Handler wires HTTP routes to the auth service and the RPC transport.
type Handler struct {
	auth      *auth.Service
	transport *rpc.Transport
	opts      Options
	logger    logrus.FieldLogger
}

func NewHandler(authSvc *auth.Service, transport *rpc.Transport, opts Options) *Handler {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = auth.DefaultSessionTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{
		auth:      authSvc,
		transport: transport,
		opts:      opts,
		logger:    logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware(h.opts.TrustedOrigins))

	api := router.Group("/api")
	{
		h.transport.Register(api, "/trpc")

		authGroup := api.Group("/auth")
		authGroup.POST("/sign-up/email", h.signUp)
		authGroup.POST("/sign-in/email", h.signIn)
		authGroup.POST("/sign-out", h.signOut)
		authGroup.GET("/get-session", h.getSession)

		api.GET("/health", func(ctx *gin.Context) {
			ctx.JSON(http.StatusOK, gin.H{"ok": "ok"})
		})
	}
}

// corsMiddleware allows credentialed requests from trusted origins only. "*" trusts any origin.
func corsMiddleware(trusted []string) gin.HandlerFunc {
	allowAll := slices.Contains(trusted, "*")
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || slices.Contains(trusted, strings.TrimRight(origin, "/"))) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			c.Writer.Header().Add("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

type signUpRequest struct {
	Name     string  `json:"name" binding:"required"`
	Email    string  `json:"email" binding:"required,email"`
	Password string  `json:"password" binding:"required"`
	Phone    *string `json:"phone"`
	Image    *string `json:"image"`
}

type signInRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) signUp(c *gin.Context) {
	var req signUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.auth.SignUp(c.Request.Context(), auth.SignUpInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Phone:    req.Phone,
		Image:    req.Image,
	})
	if err != nil {
		h.writeAuthError(c, err)
		return
	}

	res, err := h.auth.CreateSession(c.Request.Context(), user, auth.ClientInfoFromHeaders(c.Request.Header))
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	h.setSessionCookie(c, res.Token)
	c.JSON(http.StatusOK, signInResponse(res))
}

func (h *Handler) signIn(c *gin.Context) {
	var req signInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.auth.SignIn(c.Request.Context(), req.Email, req.Password, auth.ClientInfoFromHeaders(c.Request.Header))
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	h.setSessionCookie(c, res.Token)
	c.JSON(http.StatusOK, signInResponse(res))
}

func (h *Handler) signOut(c *gin.Context) {
	if err := h.auth.SignOut(c.Request.Context(), c.Request.Header); err != nil {
		h.writeAuthError(c, err)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, "", -1, "/", "", h.opts.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) getSession(c *gin.Context) {
	state, err := h.auth.GetSession(c.Request.Context(), c.Request.Header)
	if err != nil {
		h.writeAuthError(c, err)
		return
	}
	if state == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, SessionResponse{
		Session: sessionToResponse(*state.Session),
		User:    userToResponse(*state.User),
	})
}

func (h *Handler) setSessionCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(auth.CookieName, token, int(h.opts.SessionTTL.Seconds()), "/", "", h.opts.CookieSecure, true)
}

func (h *Handler) writeAuthError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, auth.ErrUserAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrPasswordTooShort), errors.Is(err, auth.ErrInvalidName), errors.Is(err, auth.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, auth.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).WithField("path", c.FullPath()).Error("auth request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

type UserResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	EmailVerified bool    `json:"emailVerified"`
	Phone         *string `json:"phone"`
	Image         *string `json:"image"`
	Role          string  `json:"role"`
	CreatedAt     string  `json:"createdAt"`
	UpdatedAt     string  `json:"updatedAt"`
}

type SessionInfoResponse struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	ExpiresAt string `json:"expiresAt"`
	IPAddress string `json:"ipAddress"`
	UserAgent string `json:"userAgent"`
}

type SessionResponse struct {
	Token   string              `json:"token,omitempty"`
	Session SessionInfoResponse `json:"session"`
	User    UserResponse        `json:"user"`
}

func signInResponse(res *auth.SignInResult) SessionResponse {
	return SessionResponse{
		Token:   res.Token,
		Session: sessionToResponse(*res.Session),
		User:    userToResponse(*res.User),
	}
}

func userToResponse(user domain.User) UserResponse {
	return UserResponse{
		ID:            user.ID,
		Name:          user.Name,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		Phone:         user.Phone,
		Image:         user.Image,
		Role:          string(user.Role),
		CreatedAt:     user.CreatedAt.Format(time.RFC3339),
		UpdatedAt:     user.UpdatedAt.Format(time.RFC3339),
	}
}

func sessionToResponse(session domain.Session) SessionInfoResponse {
	return SessionInfoResponse{
		ID:        session.ID,
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt.Format(time.RFC3339),
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
	}
}
