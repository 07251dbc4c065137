package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/geocoder89/fleethub/internal/actorctx"
	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/geocoder89/fleethub/internal/security"
	"github.com/gin-gonic/gin"
)

// GetProfile answers from the token alone. Claims reflect the user as of
// login, so a rename shows up here only after the next login.
func (h *AuthHandler) GetProfile(ctx *gin.Context) {
	id, ok := actorctx.IdentityFrom(ctx.Request.Context())
	if !ok {
		RespondUnauthorized(ctx, "Unauthorized: No token provided")
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, user.Public{
		ID:    id.ID,
		Name:  id.Name,
		Email: id.Email,
		Role:  user.Role(id.Role),
	})
}

// UpdateProfile applies a partial update for the caller. Responds 409 when the
// new email belongs to another account and 404 when the caller no longer exists.
// The caller's token still carries the old claims until the next login.
func (h *AuthHandler) UpdateProfile(ctx *gin.Context) {
	userID, ok := actorctx.UserIDFrom(ctx.Request.Context())
	if !ok {
		RespondUnauthorized(ctx, "Unauthorized: No token provided")
		return
	}

	var req user.UpdateProfileRequest

	if !BindJSON(ctx, &req) {
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 3*time.Second)
	defer cancel()

	patch := user.ProfilePatch{
		Name:  req.Name,
		Email: req.Email,
	}

	if req.Password != nil {
		hash, err := h.hashPassword(cctx, *req.Password)

		if errors.Is(err, security.ErrPasswordTooLong) {
			RespondBadRequest(ctx, "Password is too long", nil)
			return
		}
		if err != nil {
			h.log.ErrorContext(cctx, "profile hash failed", "err", err, "user_id", userID)
			h.metrics.ObserveAuth("profile_update", "error")
			RespondInternal(ctx)
			return
		}

		patch.PasswordHash = &hash
	}

	updated, err := h.userWriter.UpdateProfile(cctx, userID, patch)

	if err != nil {
		switch {
		case errors.Is(err, user.ErrNotFound):
			h.metrics.ObserveAuth("profile_update", "not_found")
			RespondNotFound(ctx, "User not found")
		case errors.Is(err, user.ErrEmailTaken):
			h.metrics.ObserveAuth("profile_update", "email_taken")
			RespondConflict(ctx, "email_taken", "Email already in use")
		default:
			h.log.ErrorContext(cctx, "profile update failed", "err", err, "user_id", userID)
			h.metrics.ObserveAuth("profile_update", "error")
			RespondInternal(ctx)
		}
		return
	}

	h.metrics.ObserveAuth("profile_update", "ok")

	ctx.JSON(http.StatusOK, gin.H{
		"message": "Profile updated",
		"user":    updated.Public(),
	})
}
