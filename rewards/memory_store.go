package rewards

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/cppla/rewardledger/models"
)

// MemoryStore keeps accounts and transactions in process memory.
// It backs tests and single-instance deployments without a database.
type MemoryStore struct {
	mutex    sync.RWMutex
	accounts map[string]*models.RewardAccount
	txs      []models.RewardTransaction
	pkCount  uint

	userLocks sync.Map // user id -> *sync.Mutex
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: map[string]*models.RewardAccount{}}
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*models.RewardAccount, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if acct, ok := s.accounts[userID]; ok {
		cp := *acct
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) CreateAccount(_ context.Context, acct *models.RewardAccount) (*models.RewardAccount, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.accounts[acct.UserID]; ok {
		return nil, ErrConflict
	}
	now := time.Now()
	row := *acct
	s.pkCount++
	row.ID = s.pkCount
	row.CreatedAt, row.UpdatedAt = now, now
	s.accounts[row.UserID] = &row
	cp := row
	return &cp, nil
}

func (s *MemoryStore) UpdateAccount(_ context.Context, userID string, patch AccountPatch) (*models.RewardAccount, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	acct, ok := s.accounts[userID]
	if !ok {
		return nil, ErrNotFound
	}
	patch.Apply(acct)
	acct.UpdatedAt = time.Now()
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) AppendTransaction(_ context.Context, tx *models.RewardTransaction) (*models.RewardTransaction, error) {
	row := prepareTransaction(*tx)

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.txs = append(s.txs, row)
	return &row, nil
}

func (s *MemoryStore) FindTransaction(_ context.Context, userID string, action models.ActionType, entityID string, onOrAfter time.Time) (*models.RewardTransaction, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return findTransaction(s.txs, userID, action, entityID, onOrAfter)
}

func (s *MemoryStore) ListTransactions(_ context.Context, userID string, limit, offset int) ([]models.RewardTransaction, int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var rows []models.RewardTransaction
	for i := len(s.txs) - 1; i >= 0; i-- {
		if s.txs[i].UserID == userID {
			rows = append(rows, s.txs[i])
		}
	}
	total := int64(len(rows))
	if offset >= len(rows) {
		return []models.RewardTransaction{}, total, nil
	}
	rows = rows[offset:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, total, nil
}

func (s *MemoryStore) SumTransactions(_ context.Context, userID string) (int64, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var sum int64
	for _, tx := range s.txs {
		if tx.UserID == userID {
			sum += int64(tx.Amount)
		}
	}
	return sum, nil
}

func (s *MemoryStore) TopAccounts(_ context.Context, limit int) ([]models.RewardAccount, error) {
	rows := s.sortedAccounts()
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].TotalCoins > rows[j].TotalCoins })
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *MemoryStore) ListAccounts(_ context.Context, afterUserID string, limit int) ([]models.RewardAccount, error) {
	rows := s.sortedAccounts()
	start := sort.Search(len(rows), func(i int) bool { return rows[i].UserID > afterUserID })
	rows = rows[start:]
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *MemoryStore) sortedAccounts() []models.RewardAccount {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	rows := make([]models.RewardAccount, 0, len(s.accounts))
	for _, acct := range s.accounts {
		rows = append(rows, *acct)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows
}

// WithinTx serialises work per user and stages writes until fn succeeds.
func (s *MemoryStore) WithinTx(ctx context.Context, userID string, fn func(Store) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memoryTx{base: s}
	if err := fn(tx); err != nil {
		return err
	}
	s.commit(tx)
	return nil
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *MemoryStore) commit(tx *memoryTx) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for userID, acct := range tx.accounts {
		row := *acct
		row.UpdatedAt = now
		s.accounts[userID] = &row
	}
	s.txs = append(s.txs, tx.appended...)
}

// memoryTx is the staged view handed to WithinTx callbacks.
type memoryTx struct {
	base     *MemoryStore
	accounts map[string]*models.RewardAccount
	appended []models.RewardTransaction
}

func (t *memoryTx) GetAccount(ctx context.Context, userID string) (*models.RewardAccount, error) {
	if acct, ok := t.accounts[userID]; ok {
		cp := *acct
		return &cp, nil
	}
	return t.base.GetAccount(ctx, userID)
}

func (t *memoryTx) CreateAccount(ctx context.Context, acct *models.RewardAccount) (*models.RewardAccount, error) {
	return t.base.CreateAccount(ctx, acct)
}

func (t *memoryTx) UpdateAccount(ctx context.Context, userID string, patch AccountPatch) (*models.RewardAccount, error) {
	acct, err := t.GetAccount(ctx, userID)
	if err != nil {
		return nil, err
	}
	patch.Apply(acct)
	if t.accounts == nil {
		t.accounts = map[string]*models.RewardAccount{}
	}
	t.accounts[userID] = acct
	cp := *acct
	return &cp, nil
}

func (t *memoryTx) AppendTransaction(_ context.Context, tx *models.RewardTransaction) (*models.RewardTransaction, error) {
	row := prepareTransaction(*tx)
	t.appended = append(t.appended, row)
	return &row, nil
}

func (t *memoryTx) FindTransaction(ctx context.Context, userID string, action models.ActionType, entityID string, onOrAfter time.Time) (*models.RewardTransaction, error) {
	if tx, err := findTransaction(t.appended, userID, action, entityID, onOrAfter); err == nil {
		return tx, nil
	}
	return t.base.FindTransaction(ctx, userID, action, entityID, onOrAfter)
}

func (t *memoryTx) ListTransactions(ctx context.Context, userID string, limit, offset int) ([]models.RewardTransaction, int64, error) {
	return t.base.ListTransactions(ctx, userID, limit, offset)
}

func (t *memoryTx) SumTransactions(ctx context.Context, userID string) (int64, error) {
	return t.base.SumTransactions(ctx, userID)
}

func (t *memoryTx) TopAccounts(ctx context.Context, limit int) ([]models.RewardAccount, error) {
	return t.base.TopAccounts(ctx, limit)
}

func (t *memoryTx) ListAccounts(ctx context.Context, afterUserID string, limit int) ([]models.RewardAccount, error) {
	return t.base.ListAccounts(ctx, afterUserID, limit)
}

// WithinTx on a staged view joins the enclosing unit of work.
func (t *memoryTx) WithinTx(_ context.Context, _ string, fn func(Store) error) error {
	return fn(t)
}

func prepareTransaction(row models.RewardTransaction) models.RewardTransaction {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	row.RewardDate = DateOf(row.RewardDate)
	if row.EntityID != nil {
		id := *row.EntityID
		row.EntityID = &id
	}
	return row
}

func findTransaction(rows []models.RewardTransaction, userID string, action models.ActionType, entityID string, onOrAfter time.Time) (*models.RewardTransaction, error) {
	for i := len(rows) - 1; i >= 0; i-- {
		tx := rows[i]
		if tx.UserID != userID || tx.ActionType != action || tx.EntityID == nil || *tx.EntityID != entityID {
			continue
		}
		if !onOrAfter.IsZero() && tx.RewardDate.Before(DateOf(onOrAfter)) {
			continue
		}
		return &tx, nil
	}
	return nil, ErrNotFound
}
