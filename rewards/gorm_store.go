package rewards

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/cppla/rewardledger/models"
)

// GormStore persists the ledger through gorm. Inside WithinTx, account reads
// take a row lock (SELECT ... FOR UPDATE) that is held until commit.
type GormStore struct {
	db     *gorm.DB
	inTx   bool
	locked map[string]bool
}

// NewGormStore wraps an opened gorm connection.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) GetAccount(ctx context.Context, userID string) (*models.RewardAccount, error) {
	q := s.db.WithContext(ctx)
	if s.inTx && !s.locked[userID] {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var acct models.RewardAccount
	if err := q.Where("user_id = ?", userID).First(&acct).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "get reward account %s", userID)
	}
	if s.inTx {
		s.locked[userID] = true
	}
	normaliseAccount(&acct)
	return &acct, nil
}

func (s *GormStore) CreateAccount(ctx context.Context, acct *models.RewardAccount) (*models.RewardAccount, error) {
	row := *acct
	row.ID = 0
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrConflict
		}
		return nil, errors.Wrapf(err, "create reward account %s", acct.UserID)
	}
	return &row, nil
}

func (s *GormStore) UpdateAccount(ctx context.Context, userID string, patch AccountPatch) (*models.RewardAccount, error) {
	cols := patch.Columns()
	if len(cols) > 0 {
		err := s.db.WithContext(ctx).Model(&models.RewardAccount{}).
			Where("user_id = ?", userID).
			Updates(cols).Error
		if err != nil {
			return nil, errors.Wrapf(err, "update reward account %s", userID)
		}
	}
	return s.GetAccount(ctx, userID)
}

func (s *GormStore) AppendTransaction(ctx context.Context, tx *models.RewardTransaction) (*models.RewardTransaction, error) {
	row := *tx
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	row.RewardDate = DateOf(row.RewardDate)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, errors.Wrapf(err, "append %s transaction for %s", row.ActionType, row.UserID)
	}
	return &row, nil
}

func (s *GormStore) FindTransaction(ctx context.Context, userID string, action models.ActionType, entityID string, onOrAfter time.Time) (*models.RewardTransaction, error) {
	q := s.db.WithContext(ctx).
		Where("user_id = ? AND action_type = ? AND entity_id = ?", userID, action, entityID)
	if !onOrAfter.IsZero() {
		q = q.Where("reward_date >= ?", DateOf(onOrAfter))
	}
	var tx models.RewardTransaction
	if err := q.Order("created_at DESC").First(&tx).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "find reward transaction")
	}
	return &tx, nil
}

func (s *GormStore) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.RewardTransaction, int64, error) {
	scoped := func() *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.RewardTransaction{}).Where("user_id = ?", userID)
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, errors.Wrap(err, "count reward transactions")
	}
	rows := []models.RewardTransaction{}
	if err := paged(scoped().Order("created_at DESC"), limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, errors.Wrap(err, "list reward transactions")
	}
	return rows, total, nil
}

func (s *GormStore) SumTransactions(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.WithContext(ctx).Model(&models.RewardTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	if err != nil {
		return 0, errors.Wrap(err, "sum reward transactions")
	}
	return sum, nil
}

func (s *GormStore) TopAccounts(ctx context.Context, limit int) ([]models.RewardAccount, error) {
	rows := []models.RewardAccount{}
	q := s.db.WithContext(ctx).Order("total_coins DESC").Order("user_id ASC")
	err := paged(q, limit).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "load leaderboard")
	}
	return rows, nil
}

func (s *GormStore) ListAccounts(ctx context.Context, afterUserID string, limit int) ([]models.RewardAccount, error) {
	rows := []models.RewardAccount{}
	q := s.db.WithContext(ctx).Where("user_id > ?", afterUserID).Order("user_id ASC")
	err := paged(q, limit).Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "list reward accounts")
	}
	return rows, nil
}

// WithinTx runs fn inside a database transaction. Nested calls join the outer one.
func (s *GormStore) WithinTx(ctx context.Context, userID string, fn func(Store) error) error {
	if s.inTx {
		return fn(s)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, inTx: true, locked: map[string]bool{}})
	})
}

// paged applies limit; zero or less means no limit, as in MemoryStore.
func paged(q *gorm.DB, limit int) *gorm.DB {
	if limit > 0 {
		return q.Limit(limit)
	}
	return q
}

func normaliseAccount(acct *models.RewardAccount) {
	if acct.LastCoinDate != nil {
		acct.LastCoinDate = datePtr(*acct.LastCoinDate)
	}
	if acct.LastActivityDate != nil {
		acct.LastActivityDate = datePtr(*acct.LastActivityDate)
	}
}

// isDuplicateKey detects unique violations whether or not gorm's TranslateError is enabled.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate entry") || // mysql 1062
		strings.Contains(msg, "duplicate key value") || // postgres 23505
		strings.Contains(msg, "unique constraint")
}
