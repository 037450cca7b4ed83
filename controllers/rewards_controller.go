package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cppla/rewardledger/middleware"
	"github.com/cppla/rewardledger/rewards"
	"github.com/cppla/rewardledger/utils"
)

// RewardsController serves the learner's own reward endpoints.
type RewardsController struct {
	ledger *rewards.Ledger
	cache  Cache
	clock  Clock
}

// NewRewardsController creates a new controller instance. cache may be nil.
func NewRewardsController(ledger *rewards.Ledger, cache Cache, clock Clock) *RewardsController {
	return &RewardsController{ledger: ledger, cache: cache, clock: clock}
}

// Status returns balance, daily allowance, streak and recent transactions.
func (r *RewardsController) Status(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	today := r.clock.Today()
	key := statusCacheKey(userID, today)

	if r.cache != nil {
		var cached rewards.Status
		if r.cache.GetJSON(ctx, key, &cached) {
			utils.Success(ctx, cached)
			return
		}
	}

	status, err := r.ledger.GetRewardStatus(ctx, userID, today)
	if err != nil {
		respondLedgerError(ctx, "status", err)
		return
	}
	if r.cache != nil {
		r.cache.SetJSON(ctx, key, status, statusCacheTTL)
	}
	utils.Success(ctx, status)
}

// CheckStreak records today's activity for the streak.
func (r *RewardsController) CheckStreak(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	today := r.clock.Today()

	res, err := r.ledger.CheckStreak(ctx, userID, today)
	if err != nil {
		respondLedgerError(ctx, "check streak", err)
		return
	}
	invalidateStatus(ctx, r.cache, today, userID)
	utils.Success(ctx, res)
}

// Login checks the streak and pays the daily login reward once per day.
func (r *RewardsController) Login(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	today := r.clock.Today()

	res, err := r.ledger.RecordLogin(ctx, userID, today)
	if err != nil {
		respondLedgerError(ctx, "login", err)
		return
	}
	invalidateStatus(ctx, r.cache, today, userID)
	utils.Success(ctx, res)
}

// Transactions lists the learner's ledger, newest first.
func (r *RewardsController) Transactions(ctx *gin.Context) {
	userID, ok := middleware.UserID(ctx)
	if !ok {
		utils.Error(ctx, http.StatusUnauthorized, 40110, "unauthorized")
		return
	}
	page, err := r.ledger.History(ctx, userID, queryInt(ctx, "page", 1), queryInt(ctx, "page_size", 20))
	if err != nil {
		respondLedgerError(ctx, "history", err)
		return
	}
	utils.Success(ctx, page)
}

// Leaderboard is public and cached briefly.
func (r *RewardsController) Leaderboard(ctx *gin.Context) {
	limit := rewards.LeaderboardLimit(queryInt(ctx, "limit", 10))
	key := leaderboardCacheKey(limit)

	if r.cache != nil {
		var cached []rewards.LeaderboardEntry
		if r.cache.GetJSON(ctx, key, &cached) {
			utils.Success(ctx, gin.H{"entries": cached})
			return
		}
	}

	entries, err := r.ledger.Leaderboard(ctx, limit)
	if err != nil {
		respondLedgerError(ctx, "leaderboard", err)
		return
	}
	if r.cache != nil {
		r.cache.SetJSON(ctx, key, entries, leaderboardCacheTTL)
	}
	utils.Success(ctx, gin.H{"entries": entries})
}
