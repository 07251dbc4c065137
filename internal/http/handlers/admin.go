package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/fleethub/internal/domain/user"
	"github.com/geocoder89/fleethub/internal/utils"
	"github.com/gin-gonic/gin"
)

type AdminUsersRepo interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	ListCursor(
		ctx context.Context,
		role *user.Role,
		limit int,
		after utils.UserCursor,
	) (items []user.User, nextCursor *string, hasMore bool, err error)
}

// AdminHandler serves account lookups for operators. Routes are gated by
// RequireRole(admin).
type AdminHandler struct {
	users AdminUsersRepo
	log   *slog.Logger
}

func NewAdminHandler(users AdminUsersRepo, log *slog.Logger) *AdminHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{users: users, log: log}
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return -1
	}

	return n
}

// Get /admin/users?role=user&limit=20&cursor=...
func (h *AdminHandler) ListUsers(ctx *gin.Context) {
	limit := parseIntDefault(ctx.Query("limit"), 20)
	if limit < 1 || limit > 100 {
		RespondBadRequest(ctx, "limit must be between 1 and 100", nil)
		return
	}

	var rolePtr *user.Role
	if s := ctx.Query("role"); s != "" {
		role := user.Role(s)
		if role != user.RoleAdmin && role != user.RoleUser {
			RespondBadRequest(ctx, "role must be admin or user", nil)
			return
		}
		rolePtr = &role
	}

	after := utils.FirstPage()

	if cursor := ctx.Query("cursor"); cursor != "" {
		cur, err := utils.DecodeUserCursor(cursor)
		if err != nil {
			RespondBadRequest(ctx, "cursor is invalid", nil)
			return
		}
		after = cur
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	items, next, hasMore, err := h.users.ListCursor(cctx, rolePtr, limit, after)
	if err != nil {
		h.log.ErrorContext(cctx, "admin list users failed", "err", err)
		RespondInternal(ctx)
		return
	}

	out := make([]user.Public, 0, len(items))
	for _, u := range items {
		out = append(out, u.Public())
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{
		"limit":      limit,
		"count":      len(out),
		"items":      out,
		"hasMore":    hasMore,
		"nextCursor": next,
	})
}

// Get /admin/users/:id
func (h *AdminHandler) GetUser(ctx *gin.Context) {
	id := ctx.Param("id")

	if !utils.IsUUID(id) {
		RespondBadRequest(ctx, "invalid_id", nil)
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	u, err := h.users.GetByID(cctx, id)

	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			RespondNotFound(ctx, "User not found")
			return
		}

		h.log.ErrorContext(cctx, "admin get user failed", "err", err, "target_user_id", id)
		RespondInternal(ctx)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, u.Public())
}
