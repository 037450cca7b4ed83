package middleware

import (
	"crypto/sha256"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardledger/config"
	"github.com/cppla/rewardledger/utils"
)

// ServiceKeyHeader carries the shared key of platform services.
const ServiceKeyHeader = "X-Service-Key"

// ServiceKeyRequired admits calls from platform services (course player,
// quiz engine, referral sign-up) whose key matches service.key_hash.
// Keys that passed the bcrypt check are remembered by digest for the
// lifetime of the middleware.
func ServiceKeyRequired() gin.HandlerFunc {
	hash := config.Get().ServiceKeyHash
	var verified sync.Map // [32]byte -> struct{}

	return func(ctx *gin.Context) {
		if hash == "" {
			utils.L().Warnf("service key not configured, rejecting %s", ctx.Request.URL.Path)
			utils.Abort(ctx, http.StatusServiceUnavailable, 50301, "service authentication not configured")
			return
		}

		key := strings.TrimSpace(ctx.GetHeader(ServiceKeyHeader))
		if key == "" {
			utils.Abort(ctx, http.StatusUnauthorized, 40120, "service key missing")
			return
		}

		digest := sha256.Sum256([]byte(key))
		if _, ok := verified.Load(digest); !ok {
			if !utils.CheckServiceKey(hash, key) {
				utils.L().Warnf("invalid service key for %s from %s", ctx.Request.URL.Path, ctx.ClientIP())
				utils.Abort(ctx, http.StatusUnauthorized, 40121, "invalid service key")
				return
			}
			verified.Store(digest, struct{}{})
		}
		ctx.Next()
	}
}
