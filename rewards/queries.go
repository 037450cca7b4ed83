package rewards

import (
	"context"
	"time"

	"github.com/cppla/rewardledger/models"
)

const (
	recentTransactionsLimit = 10
	defaultPageSize         = 20
	maxPageSize             = 100
	defaultLeaderboardSize  = 10
)

// Status is the learner-facing view of an account for a given day.
type Status struct {
	UserID              string                     `json:"user_id"`
	TotalCoins          int                        `json:"total_coins"`
	XP                  int                        `json:"xp"`
	CurrentStreak       int                        `json:"current_streak"`
	LongestStreak       int                        `json:"longest_streak"`
	StreakActive        bool                       `json:"streak_active"`
	LastActivityDate    *time.Time                 `json:"last_activity_date"`
	DailyCoinsEarned    int                        `json:"daily_coins_earned"`
	DailyCoinCap        int                        `json:"daily_coin_cap"`
	DailyCoinsRemaining int                        `json:"daily_coins_remaining"`
	RecentTransactions  []models.RewardTransaction `json:"recent_transactions"`
}

// HistoryPage is one page of a user's ledger, newest first.
type HistoryPage struct {
	Items    []models.RewardTransaction `json:"items"`
	Total    int64                      `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"page_size"`
}

// LeaderboardEntry ranks an account by total coins.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	UserID        string `json:"user_id"`
	TotalCoins    int    `json:"total_coins"`
	XP            int    `json:"xp"`
	CurrentStreak int    `json:"current_streak"`
	LongestStreak int    `json:"longest_streak"`
}

// GetRewardStatus returns the account as seen on today, creating it if needed.
// The daily counter is reported as zero when the last coin was earned on another day.
func (l *Ledger) GetRewardStatus(ctx context.Context, userID string, today time.Time) (*Status, error) {
	acct, err := l.EnsureAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	today = DateOf(today)

	recent, _, err := l.store.ListTransactions(ctx, userID, recentTransactionsLimit, 0)
	if err != nil {
		return nil, l.fail("list recent transactions", userID, err)
	}

	daily := acct.DailyCoinsEarned
	if !isSameDay(acct.LastCoinDate, today) {
		daily = 0
	}
	remaining := l.rules.DailyCoinCap - daily
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		UserID:              acct.UserID,
		TotalCoins:          acct.TotalCoins,
		XP:                  acct.XP,
		CurrentStreak:       acct.CurrentStreak,
		LongestStreak:       acct.LongestStreak,
		StreakActive:        isSameDay(acct.LastActivityDate, today) || isYesterday(acct.LastActivityDate, today),
		LastActivityDate:    acct.LastActivityDate,
		DailyCoinsEarned:    daily,
		DailyCoinCap:        l.rules.DailyCoinCap,
		DailyCoinsRemaining: remaining,
		RecentTransactions:  recent,
	}, nil
}

// History pages through the user's transactions. Page numbers start at 1.
func (l *Ledger) History(ctx context.Context, userID string, page, pageSize int) (*HistoryPage, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	items, total, err := l.store.ListTransactions(ctx, userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, l.fail("list transactions", userID, err)
	}
	return &HistoryPage{Items: items, Total: total, Page: page, PageSize: pageSize}, nil
}

// LeaderboardLimit clamps a requested leaderboard size to the served range.
func LeaderboardLimit(limit int) int {
	if limit <= 0 {
		return defaultLeaderboardSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// Leaderboard returns the top accounts by total coins.
func (l *Ledger) Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	accts, err := l.store.TopAccounts(ctx, LeaderboardLimit(limit))
	if err != nil {
		return nil, l.fail("load leaderboard", "", err)
	}
	entries := make([]LeaderboardEntry, 0, len(accts))
	for i, a := range accts {
		entries = append(entries, LeaderboardEntry{
			Rank:          i + 1,
			UserID:        a.UserID,
			TotalCoins:    a.TotalCoins,
			XP:            a.XP,
			CurrentStreak: a.CurrentStreak,
			LongestStreak: a.LongestStreak,
		})
	}
	return entries, nil
}
