package rewards

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cppla/rewardledger/models"
)

func strPtr(s string) *string { return &s }

func TestMemoryStore_CreateConflict(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreateAccount(ctx, &models.RewardAccount{UserID: "u1"})
	require.NoError(t, err)

	_, err = store.CreateAccount(ctx, &models.RewardAccount{UserID: "u1"})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = store.UpdateAccount(ctx, "missing", AccountPatch{XP: intPtr(1)})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_FindTransactionWindow(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.AppendTransaction(ctx, &models.RewardTransaction{
		UserID: "u1", Amount: 10, ActionType: models.ActionVideoWatch, EntityID: strPtr("v1"), RewardDate: day1,
	})
	require.NoError(t, err)

	tests := []struct {
		name      string
		action    models.ActionType
		entity    string
		onOrAfter time.Time
		found     bool
	}{
		{"same day", models.ActionVideoWatch, "v1", day1, true},
		{"any time", models.ActionVideoWatch, "v1", time.Time{}, true},
		{"next day", models.ActionVideoWatch, "v1", day2, false},
		{"other entity", models.ActionVideoWatch, "v2", day1, false},
		{"other action", models.ActionBonus, "v1", day1, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := store.FindTransaction(ctx, "u1", tc.action, tc.entity, tc.onOrAfter)
			if tc.found {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNotFound)
			}
		})
	}
}

func TestMemoryStore_WithinTxCommitsOnSuccess(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreateAccount(ctx, &models.RewardAccount{UserID: "u1"})
	require.NoError(t, err)

	err = store.WithinTx(ctx, "u1", func(tx Store) error {
		if _, err := tx.AppendTransaction(ctx, &models.RewardTransaction{
			UserID: "u1", Amount: 5, ActionType: models.ActionLogin, EntityID: strPtr("x"), RewardDate: day1,
		}); err != nil {
			return err
		}
		if _, err := tx.UpdateAccount(ctx, "u1", AccountPatch{TotalCoins: intPtr(5)}); err != nil {
			return err
		}

		// Staged writes are visible inside the unit of work only.
		acct, err := tx.GetAccount(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 5, acct.TotalCoins)
		_, err = tx.FindTransaction(ctx, "u1", models.ActionLogin, "x", day1)
		assert.NoError(t, err)

		outside, err := store.GetAccount(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, outside.TotalCoins)
		return nil
	})
	require.NoError(t, err)

	acct, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, acct.TotalCoins)
	sum, err := store.SumTransactions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)
}

func TestMemoryStore_WithinTxRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.CreateAccount(ctx, &models.RewardAccount{UserID: "u1"})
	require.NoError(t, err)

	boom := errors.New("abort")
	err = store.WithinTx(ctx, "u1", func(tx Store) error {
		_, _ = tx.AppendTransaction(ctx, &models.RewardTransaction{UserID: "u1", Amount: 5, ActionType: models.ActionLogin, RewardDate: day1})
		_, _ = tx.UpdateAccount(ctx, "u1", AccountPatch{TotalCoins: intPtr(5)})
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acct, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, acct.TotalCoins)
	_, total, err := store.ListTransactions(ctx, "u1", 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestMemoryStore_WithinTxHonoursCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	called := false
	err := store.WithinTx(cancelled, "u1", func(Store) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	created, err := store.CreateAccount(ctx, &models.RewardAccount{UserID: "u1"})
	require.NoError(t, err)
	created.TotalCoins = 999

	acct, err := store.GetAccount(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, acct.TotalCoins)
}
