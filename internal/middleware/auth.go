package middleware

import (
	"net/http"

	"tienda-be/internal/apperr"
	"tienda-be/internal/auth"
	"tienda-be/internal/logger"
	"tienda-be/internal/utils"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Claims is the access token payload issued by the account service.
type Claims struct {
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Auth identifies the caller from a bearer token or access_token cookie.
// Requests without a token pass through anonymous; a bad token is rejected.
func Auth(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := auth.ExtractAccessToken(r)
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
			if err != nil || !token.Valid || claims.UserID <= 0 {
				reason := "invalid token"
				if errors.Is(err, jwt.ErrTokenExpired) {
					reason = "token expired"
				}
				logger.FromCtx(r.Context()).Info("rejected access token",
					zap.String("layer", "middleware"),
					zap.String("reason", reason),
				)
				writeError(w, apperr.Unauthorized, reason)
				return
			}

			ctx := utils.SetUserContext(r.Context(), claims.UserID, claims.Email, claims.Role)
			ctx = logger.WithUserID(ctx, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects anonymous callers.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := utils.GetUserIDFromContext(r.Context()); !ok {
			writeError(w, apperr.Unauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole lets through only callers whose token carries role.
func RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := utils.GetUserIDFromContext(r.Context())
			if !ok {
				writeError(w, apperr.Unauthorized, "authentication required")
				return
			}
			if utils.GetUserRoleFromContext(r.Context()) != role {
				logger.FromCtx(r.Context()).Warn("role check failed",
					zap.String("layer", "middleware"),
					zap.Int64("user_id", userID),
					zap.String("required_role", role),
				)
				writeError(w, apperr.Forbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, kind apperr.Kind, msg string) {
	utils.WriteJSON(w, apperr.HTTPStatus(kind), map[string]string{
		"error": msg,
		"code":  string(kind),
	})
}
