package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardledger/utils"
)

const (
	// ContextUserIDKey is the key used to store the authenticated learner id in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
)

// AuthRequired ensures the request carries a valid platform JWT.
func AuthRequired() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Abort(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Abort(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Abort(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Abort(ctx, http.StatusUnauthorized, 40105, "invalid token")
			return
		}

		ctx.Set(ContextUserIDKey, claims.LearnerID())
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// UserID returns the learner id set by AuthRequired.
func UserID(ctx *gin.Context) (string, bool) {
	v, ok := ctx.Get(ContextUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok && id != ""
}
