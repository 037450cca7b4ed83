package rewards

import (
	"context"
	"time"

	"github.com/cppla/rewardledger/models"
)

// Store persists reward accounts and the transaction ledger.
//
// GetAccount, UpdateAccount and FindTransaction return ErrNotFound when the
// row is missing; CreateAccount returns ErrConflict when the user already has
// an account. Any other error is treated by the Ledger as a system failure.
// A limit of zero or less returns every row.
type Store interface {
	GetAccount(ctx context.Context, userID string) (*models.RewardAccount, error)
	CreateAccount(ctx context.Context, acct *models.RewardAccount) (*models.RewardAccount, error)
	UpdateAccount(ctx context.Context, userID string, patch AccountPatch) (*models.RewardAccount, error)
	AppendTransaction(ctx context.Context, tx *models.RewardTransaction) (*models.RewardTransaction, error)
	// FindTransaction looks up a ledger entry for the entity awarded on or
	// after onOrAfter. A zero onOrAfter matches any date.
	FindTransaction(ctx context.Context, userID string, action models.ActionType, entityID string, onOrAfter time.Time) (*models.RewardTransaction, error)

	ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.RewardTransaction, int64, error)
	SumTransactions(ctx context.Context, userID string) (int64, error)
	TopAccounts(ctx context.Context, limit int) ([]models.RewardAccount, error)
	// ListAccounts pages accounts by user id, starting after afterUserID.
	ListAccounts(ctx context.Context, afterUserID string, limit int) ([]models.RewardAccount, error)

	// WithinTx runs fn against a store scoped to one unit of work. The account
	// of userID is locked until fn returns; if fn fails nothing it wrote is kept.
	WithinTx(ctx context.Context, userID string, fn func(Store) error) error
}

// AccountPatch lists the account fields to change. Nil fields are left as is.
type AccountPatch struct {
	TotalCoins       *int
	DailyCoinsEarned *int
	LastCoinDate     *time.Time
	CurrentStreak    *int
	LongestStreak    *int
	LastActivityDate *time.Time
	XP               *int
}

// Apply copies the set fields onto acct.
func (p AccountPatch) Apply(acct *models.RewardAccount) {
	if p.TotalCoins != nil {
		acct.TotalCoins = *p.TotalCoins
	}
	if p.DailyCoinsEarned != nil {
		acct.DailyCoinsEarned = *p.DailyCoinsEarned
	}
	if p.LastCoinDate != nil {
		d := DateOf(*p.LastCoinDate)
		acct.LastCoinDate = &d
	}
	if p.CurrentStreak != nil {
		acct.CurrentStreak = *p.CurrentStreak
	}
	if p.LongestStreak != nil {
		acct.LongestStreak = *p.LongestStreak
	}
	if p.LastActivityDate != nil {
		d := DateOf(*p.LastActivityDate)
		acct.LastActivityDate = &d
	}
	if p.XP != nil {
		acct.XP = *p.XP
	}
}

// Columns returns the patch as a column map for partial updates.
func (p AccountPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.TotalCoins != nil {
		cols["total_coins"] = *p.TotalCoins
	}
	if p.DailyCoinsEarned != nil {
		cols["daily_coins_earned"] = *p.DailyCoinsEarned
	}
	if p.LastCoinDate != nil {
		cols["last_coin_date"] = DateOf(*p.LastCoinDate)
	}
	if p.CurrentStreak != nil {
		cols["current_streak"] = *p.CurrentStreak
	}
	if p.LongestStreak != nil {
		cols["longest_streak"] = *p.LongestStreak
	}
	if p.LastActivityDate != nil {
		cols["last_activity_date"] = DateOf(*p.LastActivityDate)
	}
	if p.XP != nil {
		cols["xp"] = *p.XP
	}
	return cols
}

func intPtr(v int) *int { return &v }
