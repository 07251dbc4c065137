package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/geocoder89/fleethub/internal/auth"
	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/geocoder89/fleethub/internal/loginguard"
	"github.com/geocoder89/fleethub/internal/security"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const msgInvalidCredentials = "Invalid credentials"

var tracer = otel.Tracer("github.com/geocoder89/fleethub/internal/http/handlers")

type UserReader interface {
	GetByEmail(ctx context.Context, email string) (user.User, error)
	GetByID(ctx context.Context, id string) (user.User, error)
}

type UserWriter interface {
	Create(ctx context.Context, in user.NewUser) (user.User, error)
	UpdateProfile(ctx context.Context, id string, patch user.ProfilePatch) (user.User, error)
}

type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}

// AuthMetrics is satisfied by *observability.Prom.
type AuthMetrics interface {
	ObserveAuth(op, result string)
	ObserveHash(start time.Time)
	ObserveLockout()
}

type noopMetrics struct{}

func (noopMetrics) ObserveAuth(string, string) {}
func (noopMetrics) ObserveHash(time.Time)      {}
func (noopMetrics) ObserveLockout()            {}

type AuthHandler struct {
	users      UserReader
	userWriter UserWriter
	tokens     TokenIssuer
	guard      loginguard.Guard
	log        *slog.Logger
	metrics    AuthMetrics
}

// NewAuthHandler wires the signup/login/profile endpoints. guard and metrics
// may be nil.
func NewAuthHandler(users UserReader, userWriter UserWriter, tokens TokenIssuer, guard loginguard.Guard, log *slog.Logger, metrics AuthMetrics) *AuthHandler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if log == nil {
		log = slog.Default()
	}

	return &AuthHandler{
		users:      users,
		userWriter: userWriter,
		tokens:     tokens,
		guard:      guard,
		log:        log,
		metrics:    metrics,
	}
}

// dummyHash is compared against when the email is unknown so both login
// failure paths spend the same bcrypt time.
var dummyHash = sync.OnceValue(func() string {
	h, _ := security.HashPassword("fleethub-timing-equalizer")
	return h
})

func (h *AuthHandler) SignUp(ctx *gin.Context) {
	var req user.SignUpRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	email := user.NormalizeEmail(req.Email)

	_, err := h.users.GetByEmail(cctx, email)

	switch {
	case err == nil:
		h.metrics.ObserveAuth("signup", "email_taken")
		RespondConflict(ctx, "email_taken", "Email already in use")
		return
	case !errors.Is(err, user.ErrNotFound):
		h.log.ErrorContext(cctx, "signup lookup failed", "err", err)
		h.metrics.ObserveAuth("signup", "error")
		RespondInternal(ctx)
		return
	}

	hash, err := h.hashPassword(cctx, req.Password)

	if errors.Is(err, security.ErrPasswordTooLong) {
		RespondBadRequest(ctx, "Password is too long", nil)
		return
	}
	if err != nil {
		h.log.ErrorContext(cctx, "signup hash failed", "err", err)
		h.metrics.ObserveAuth("signup", "error")
		RespondInternal(ctx)
		return
	}

	// default role for new users
	u, err := h.userWriter.Create(cctx, user.NewUser{
		Name:         req.Name,
		Email:        email,
		PasswordHash: hash,
		Role:         user.RoleUser,
	})

	if err != nil {
		// lost a race with a concurrent signup for the same email
		if errors.Is(err, user.ErrEmailTaken) {
			h.metrics.ObserveAuth("signup", "email_taken")
			RespondConflict(ctx, "email_taken", "Email already in use")
			return
		}

		h.log.ErrorContext(cctx, "signup create failed", "err", err)
		h.metrics.ObserveAuth("signup", "error")
		RespondInternal(ctx)
		return
	}

	h.log.InfoContext(cctx, "user signed up", "user_id", u.ID)
	h.metrics.ObserveAuth("signup", "ok")

	ctx.JSON(http.StatusCreated, gin.H{
		"message": "User created",
		"user":    u.Public(),
	})
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	var req user.LoginRequest

	if !BindJSON(ctx, &req) {
		return
	}

	// short timeout for DB lookup
	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	guardKey := loginguard.Key(req.Email, ctx.ClientIP())

	if allowed, retryAfter := h.allowLogin(cctx, guardKey); !allowed {
		h.metrics.ObserveLockout()
		h.metrics.ObserveAuth("login", "locked")
		RespondTooManyRequests(ctx, retryAfter, "Too many failed login attempts. Try again later.")
		return
	}

	foundUser, err := h.users.GetByEmail(cctx, req.Email)

	if err != nil && !errors.Is(err, user.ErrNotFound) {
		h.log.ErrorContext(cctx, "login lookup failed", "err", err)
		h.metrics.ObserveAuth("login", "error")
		RespondInternal(ctx)
		return
	}

	hash := foundUser.PasswordHash
	if err != nil {
		hash = dummyHash()
	}

	if !h.passwordMatches(cctx, hash, req.Password) || err != nil {
		h.recordFailure(cctx, guardKey)
		h.metrics.ObserveAuth("login", "invalid_credentials")
		RespondUnauthorized(ctx, msgInvalidCredentials)
		return
	}

	token, err := h.tokens.Issue(auth.Identity{
		ID:    foundUser.ID,
		Email: foundUser.Email,
		Name:  foundUser.Name,
		Role:  string(foundUser.Role),
	})

	if err != nil {
		h.log.ErrorContext(cctx, "login token issue failed", "err", err, "user_id", foundUser.ID)
		h.metrics.ObserveAuth("login", "error")
		RespondInternal(ctx)
		return
	}

	h.resetFailures(cctx, guardKey)
	h.metrics.ObserveAuth("login", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Login successful",
		"token":   token,
		"user":    foundUser.Public(),
	})
}

// Guard helpers. A broken guard backend is logged and ignored so a cache
// outage never locks everyone out.

func (h *AuthHandler) allowLogin(ctx context.Context, key string) (bool, time.Duration) {
	if h.guard == nil {
		return true, 0
	}

	ok, retryAfter, err := h.guard.Allow(ctx, key)
	if err != nil {
		h.log.WarnContext(ctx, "login guard unavailable", "err", err)
		return true, 0
	}

	return ok, retryAfter
}

func (h *AuthHandler) recordFailure(ctx context.Context, key string) {
	if h.guard == nil {
		return
	}

	if err := h.guard.Failure(ctx, key); err != nil {
		h.log.WarnContext(ctx, "login guard failure not recorded", "err", err)
	}
}

func (h *AuthHandler) resetFailures(ctx context.Context, key string) {
	if h.guard == nil {
		return
	}

	if err := h.guard.Reset(ctx, key); err != nil {
		h.log.WarnContext(ctx, "login guard reset failed", "err", err)
	}
}

// bcrypt helpers, traced and timed

func (h *AuthHandler) hashPassword(ctx context.Context, plain string) (string, error) {
	_, span := tracer.Start(ctx, "password.hash")
	defer span.End()

	start := time.Now()
	hash, err := security.HashPassword(plain)
	h.metrics.ObserveHash(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hash failed")
	}

	return hash, err
}

func (h *AuthHandler) passwordMatches(ctx context.Context, hash, plain string) bool {
	_, span := tracer.Start(ctx, "password.compare")
	defer span.End()

	start := time.Now()
	ok := security.PasswordMatches(hash, plain)
	h.metrics.ObserveHash(start)

	span.SetAttributes(attribute.Bool("password.match", ok))

	return ok
}
