package rewards

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/rewardledger/models"
)

func TestGetRewardStatus_NewUser(t *testing.T) {
	ledger, store := newTestLedger(t)

	status, err := ledger.GetRewardStatus(ctx, "u1", day1)
	require.NoError(t, err)
	assert.Equal(t, "u1", status.UserID)
	assert.Zero(t, status.TotalCoins)
	assert.Equal(t, 100, status.DailyCoinCap)
	assert.Equal(t, 100, status.DailyCoinsRemaining)
	assert.False(t, status.StreakActive)
	assert.Empty(t, status.RecentTransactions)

	_, err = store.GetAccount(ctx, "u1")
	assert.NoError(t, err)
}

func TestGetRewardStatus_NormalisesToToday(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.RecordLogin(ctx, "u1", day1)
	require.NoError(t, err)

	same, err := ledger.GetRewardStatus(ctx, "u1", day1)
	require.NoError(t, err)
	assert.Equal(t, 5, same.DailyCoinsEarned)
	assert.Equal(t, 95, same.DailyCoinsRemaining)
	assert.True(t, same.StreakActive)
	assert.Len(t, same.RecentTransactions, 1)

	next, err := ledger.GetRewardStatus(ctx, "u1", day2)
	require.NoError(t, err)
	assert.Zero(t, next.DailyCoinsEarned)
	assert.Equal(t, 100, next.DailyCoinsRemaining)
	assert.True(t, next.StreakActive)

	later, err := ledger.GetRewardStatus(ctx, "u1", day10)
	require.NoError(t, err)
	assert.False(t, later.StreakActive)
	assert.Equal(t, 5, later.TotalCoins)
}

func TestHistory_Pagination(t *testing.T) {
	ledger, _ := newTestLedger(t)
	for i := 0; i < 5; i++ {
		_, err := ledger.AwardCoins(ctx, "u1", models.ActionVideoWatch, day1, fmt.Sprintf("v%d", i), "")
		require.NoError(t, err)
	}

	tests := []struct {
		page, size   int
		wantItems    int
		wantPage     int
		wantPageSize int
	}{
		{1, 2, 2, 1, 2},
		{3, 2, 1, 3, 2},
		{4, 2, 0, 4, 2},
		{0, 0, 5, 1, defaultPageSize},
		{1, 1000, 5, 1, maxPageSize},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("page=%d size=%d", tc.page, tc.size), func(t *testing.T) {
			page, err := ledger.History(ctx, "u1", tc.page, tc.size)
			require.NoError(t, err)
			assert.Equal(t, int64(5), page.Total)
			assert.Len(t, page.Items, tc.wantItems)
			assert.Equal(t, tc.wantPage, page.Page)
			assert.Equal(t, tc.wantPageSize, page.PageSize)
		})
	}

	first, err := ledger.History(ctx, "u1", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "v4", *first.Items[0].EntityID)
}

func TestLeaderboard(t *testing.T) {
	ledger, _ := newTestLedger(t)
	_, err := ledger.AwardCoins(ctx, "alice", models.ActionModuleCompletion, day1, "m1", "")
	require.NoError(t, err)
	_, err = ledger.AwardCoins(ctx, "bob", models.ActionReferral, day1, "carol", "")
	require.NoError(t, err)
	_, err = ledger.AwardCoins(ctx, "dave", models.ActionModuleCompletion, day1, "m1", "")
	require.NoError(t, err)

	entries, err := ledger.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "bob", entries[0].UserID)
	assert.Equal(t, 1, entries[0].Rank)
	assert.Equal(t, "alice", entries[1].UserID)
	assert.Equal(t, "dave", entries[2].UserID)

	top, err := ledger.Leaderboard(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, top, 1)
}

func TestLeaderboardLimit(t *testing.T) {
	tests := map[int]int{-3: defaultLeaderboardSize, 0: defaultLeaderboardSize, 1: 1, 50: 50, maxPageSize + 1: maxPageSize, 1000000: maxPageSize}
	for in, want := range tests {
		assert.Equal(t, want, LeaderboardLimit(in), "limit %d", in)
	}
}
