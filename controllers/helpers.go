package controllers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardledger/rewards"
	"github.com/cppla/rewardledger/utils"
)

const (
	statusCacheTTL      = 5 * time.Minute
	leaderboardCacheTTL = time.Minute
)

// Cache is the optional read-through cache used by reward endpoints.
type Cache interface {
	GetJSON(ctx context.Context, key string, out interface{}) bool
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// Clock tells controllers which civil day it is for the reward rules.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// Today returns the current reward day.
func (c Clock) Today() time.Time {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	return rewards.Today(now(), c.Location)
}

func statusCacheKey(userID string, today time.Time) string {
	return fmt.Sprintf("cache:rewards:status:%s:%s", userID, today.Format("2006-01-02"))
}

func leaderboardCacheKey(limit int) string {
	return "cache:rewards:leaderboard:" + strconv.Itoa(limit)
}

// invalidateStatus drops the cached status of users whose balance changed.
func invalidateStatus(ctx context.Context, cache Cache, today time.Time, userIDs ...string) {
	if cache == nil {
		return
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		if id != "" {
			keys = append(keys, statusCacheKey(id, today))
		}
	}
	cache.Delete(ctx, keys...)
}

// respondLedgerError maps ledger errors to the response envelope.
func respondLedgerError(ctx *gin.Context, op string, err error) {
	if errors.Is(err, rewards.ErrInvalidArgument) {
		utils.Error(ctx, http.StatusBadRequest, 40060, err.Error())
		return
	}
	utils.L().Errorw("reward operation failed", "op", op, "path", ctx.Request.URL.Path, "error", err)
	utils.Error(ctx, http.StatusInternalServerError, 50060, "reward service unavailable")
}

func queryInt(ctx *gin.Context, key string, def int) int {
	raw := ctx.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
