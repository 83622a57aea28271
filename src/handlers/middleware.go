package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/username/welfarefund/src/logger"
	"github.com/username/welfarefund/src/model"
	"github.com/username/welfarefund/src/utils"
)

type contextKey string

const (
	userIDContextKey contextKey = "userID"
	roleContextKey   contextKey = "role"
	tokenContextKey  contextKey = "token"
)

// GetUserIDFromContext retrieves the authenticated user's id.
func GetUserIDFromContext(ctx context.Context) (int64, bool) {
	userID, ok := ctx.Value(userIDContextKey).(int64)
	return userID, ok
}

func getRoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleContextKey).(string)
	return role
}

// RequestIDMiddleware tags every request with an id and a request-scoped logger.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		l := logger.L.With("requestID", requestID, "method", r.Method, "path", r.URL.Path)
		l.Debug("Request received", "remoteAddr", r.RemoteAddr)
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context(), l)))
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return strings.TrimSpace(authHeader)
}

// AuthMiddleware accepts a valid access token that still has a live session. The
// role is read from the database so role and status changes apply immediately.
func (h *UserHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log := logger.FromContext(r.Context())
		tokenString := bearerToken(r)
		if tokenString == "" {
			log.Debug("AuthMiddleware: Authorization header missing")
			utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		claims, err := h.authService.ValidateToken(tokenString)
		if err != nil {
			log.Warn("AuthMiddleware: Token validation failed", "error", err)
			utils.SendJSONError(w, "Invalid or expired token", http.StatusUnauthorized)
			return
		}
		userID, err := claims.UserID()
		if err != nil {
			utils.SendJSONError(w, "Invalid user ID in token", http.StatusUnauthorized)
			return
		}

		if _, err := model.GetSessionByToken(h.db, tokenString); err != nil {
			log.Warn("AuthMiddleware: Session validation failed", "userID", userID, "error", err)
			utils.SendJSONError(w, "Invalid or expired session", http.StatusUnauthorized)
			return
		}
		user, err := model.GetUserByID(h.db, userID)
		if err != nil {
			if !errors.Is(err, model.ErrUserNotFound) {
				log.Error("AuthMiddleware: User lookup failed", "userID", userID, "error", err)
			}
			utils.SendJSONError(w, "Invalid session or user", http.StatusUnauthorized)
			return
		}
		if user.Status == model.StatusExited {
			utils.SendJSONError(w, "Membership has ended", http.StatusForbidden)
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, user.ID)
		ctx = context.WithValue(ctx, roleContextKey, user.Role)
		ctx = context.WithValue(ctx, tokenContextKey, tokenString)
		ctx = logger.WithContext(ctx, log.With("userID", user.ID))
		next(w, r.WithContext(ctx))
	}
}

// AdminMiddleware must run inside AuthMiddleware.
func AdminMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if getRoleFromContext(r.Context()) != model.RoleAdmin {
			logger.FromContext(r.Context()).Warn("Admin route refused")
			utils.SendJSONError(w, "Administrator access required", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
