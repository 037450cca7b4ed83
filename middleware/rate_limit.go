package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/cppla/rewardledger/config"
	"github.com/cppla/rewardledger/utils"
)

const limiterIdleTTL = 5 * time.Minute

type rateLimiter struct {
	limiter *rate.Limiter
	expires time.Time
}

// limiterSet holds one token bucket per client key.
type limiterSet struct {
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
	limiters map[string]*rateLimiter
}

// RateLimitMiddleware applies a token bucket per learner, or per IP for
// anonymous requests, sized from app.rate_limit_per_minute.
func RateLimitMiddleware() gin.HandlerFunc {
	perMinute := max(config.Get().RateLimitPerMinute, 1)
	set := &limiterSet{
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    max(perMinute/2, 1),
		limiters: map[string]*rateLimiter{},
	}

	return func(ctx *gin.Context) {
		key := "ip:" + ctx.ClientIP()
		if id, ok := UserID(ctx); ok {
			key = "user:" + id
		}

		if !set.allow(key, time.Now()) {
			utils.Abort(ctx, http.StatusTooManyRequests, 42901, "rate limit exceeded")
			return
		}
		ctx.Next()
	}
}

func (s *limiterSet) allow(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, l := range s.limiters {
		if now.After(l.expires) {
			delete(s.limiters, k)
		}
	}

	l, ok := s.limiters[key]
	if !ok {
		l = &rateLimiter{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.limiters[key] = l
	}
	l.expires = now.Add(limiterIdleTTL)
	return l.limiter.AllowN(now, 1)
}
