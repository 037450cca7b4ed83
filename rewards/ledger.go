package rewards

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/cppla/rewardledger/models"
)

// Outcome classifies the result of an award attempt.
type Outcome string

const (
	OutcomeAwarded         Outcome = "awarded"
	OutcomeDailyCapReached Outcome = "daily_cap_reached"
	OutcomeAlreadyRewarded Outcome = "already_rewarded"
)

const (
	MessageDailyCapReached     = "Daily limit reached! Come back tomorrow."
	MessageAlreadyRewarded     = "Already rewarded for this today!"
	MessageAlreadyRewardedEver = "Already rewarded for this!"

	maxDescriptionLen = 255
	maxUserIDLen      = 64
	maxEntityIDLen    = 128

	// loginEntityID keys the login reward so it is paid once per reward day.
	loginEntityID = "daily_login"
)

// AwardResult is returned for every award attempt. Cap and duplicate
// outcomes are regular results with Success false, not errors.
type AwardResult struct {
	Success     bool                      `json:"success"`
	Coins       int                       `json:"coins"`
	Message     string                    `json:"message"`
	Outcome     Outcome                   `json:"outcome"`
	Transaction *models.RewardTransaction `json:"transaction,omitempty"`
}

// StreakResult reports the streak after a check. Message is nil when the
// streak was already processed for that day.
type StreakResult struct {
	Streak    int          `json:"streak"`
	Message   *string      `json:"message"`
	Milestone *AwardResult `json:"milestone,omitempty"`
}

// LoginResult combines the streak check and the daily login reward.
type LoginResult struct {
	Streak *StreakResult `json:"streak"`
	Award  *AwardResult  `json:"award,omitempty"`
}

// Ledger decides how coins, XP and streaks change in response to learner events.
type Ledger struct {
	store Store
	rules Rules
	log   *zap.Logger
	now   func() time.Time
}

// Option customises a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for award and failure events.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.log = logger
		}
	}
}

// WithClock overrides the wall clock used for transaction timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger validates rules and binds them to store.
func NewLedger(store Store, rules Rules, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, invalidArgument("store is required")
	}
	if err := rules.Validate(); err != nil {
		return nil, err
	}
	l := &Ledger{
		store: store,
		rules: rules.clone(),
		log:   zap.NewNop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Rules returns a copy of the ledger's reward configuration.
func (l *Ledger) Rules() Rules { return l.rules.clone() }

// EnsureAccount returns the user's account, creating an empty one if needed.
// A concurrent creator winning the race is resolved by re-reading its row.
func (l *Ledger) EnsureAccount(ctx context.Context, userID string) (*models.RewardAccount, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	acct, err := l.store.GetAccount(ctx, userID)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, l.fail("get account", userID, err)
	}

	acct, err = l.store.CreateAccount(ctx, &models.RewardAccount{UserID: userID})
	if err == nil {
		l.log.Debug("reward account created", zap.String("user_id", userID))
		return acct, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, l.fail("create account", userID, err)
	}

	acct, err = l.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, l.fail("reload account", userID, err)
	}
	return acct, nil
}

// CheckStreak advances, keeps or resets the user's streak for today and pays
// the milestone bonus when the new streak hits a configured milestone.
func (l *Ledger) CheckStreak(ctx context.Context, userID string, today time.Time) (*StreakResult, error) {
	if _, err := l.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	today = DateOf(today)

	var res *StreakResult
	err := l.store.WithinTx(ctx, userID, func(tx Store) error {
		acct, err := tx.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		res, _, err = l.applyStreak(ctx, tx, acct, today)
		return err
	})
	if err != nil {
		return nil, l.fail("check streak", userID, err)
	}
	return res, nil
}

// AwardCoins grants the nominal amount for action, clamped to what is left of
// today's cap. A non-empty entityID is rewarded at most once per day, or once
// ever for actions configured with lifetime de-duplication.
func (l *Ledger) AwardCoins(ctx context.Context, userID string, action models.ActionType, today time.Time, entityID, description string) (*AwardResult, error) {
	if !action.Valid() {
		return nil, invalidArgument("unknown action type %q", action)
	}
	if err := validateEntityID(entityID); err != nil {
		return nil, err
	}
	return l.awardOne(ctx, userID, today, l.actionGrant(action, entityID, description))
}

// RecordLogin checks the streak and pays the login reward, at most once per
// reward day whichever route touched the streak first. Both happen in one unit of work.
func (l *Ledger) RecordLogin(ctx context.Context, userID string, today time.Time) (*LoginResult, error) {
	if _, err := l.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	today = DateOf(today)

	res := &LoginResult{}
	err := l.store.WithinTx(ctx, userID, func(tx Store) error {
		acct, err := tx.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		res.Streak, acct, err = l.applyStreak(ctx, tx, acct, today)
		if err != nil {
			return err
		}
		res.Award, _, err = l.grant(ctx, tx, acct, today, l.actionGrant(models.ActionLogin, loginEntityID, ""))
		return err
	})
	if err != nil {
		return nil, l.fail("record login", userID, err)
	}
	return res, nil
}

func (l *Ledger) awardOne(ctx context.Context, userID string, today time.Time, g grant) (*AwardResult, error) {
	if _, err := l.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	today = DateOf(today)

	var res *AwardResult
	err := l.store.WithinTx(ctx, userID, func(tx Store) error {
		acct, err := tx.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		res, _, err = l.grant(ctx, tx, acct, today, g)
		return err
	})
	if err != nil {
		return nil, l.fail("award coins", userID, err)
	}
	return res, nil
}

// applyStreak must run inside WithinTx with acct freshly read from tx.
func (l *Ledger) applyStreak(ctx context.Context, tx Store, acct *models.RewardAccount, today time.Time) (*StreakResult, *models.RewardAccount, error) {
	var (
		streak    int
		msg       string
		continued bool
	)
	switch {
	case acct.LastActivityDate == nil:
		streak = 1
		msg = "Welcome! Your learning streak starts today."
	case daysBetween(*acct.LastActivityDate, today) <= 0:
		return &StreakResult{Streak: acct.CurrentStreak}, acct, nil
	case isYesterday(acct.LastActivityDate, today):
		streak = acct.CurrentStreak + 1
		continued = true
		msg = fmt.Sprintf("%d day streak! Keep it up!", streak)
	default:
		streak = 1
		msg = "Streak reset. Start a new one today!"
	}

	longest := acct.LongestStreak
	if streak > longest {
		longest = streak
	}
	updated, err := tx.UpdateAccount(ctx, acct.UserID, AccountPatch{
		CurrentStreak:    intPtr(streak),
		LongestStreak:    intPtr(longest),
		LastActivityDate: &today,
	})
	if err != nil {
		return nil, nil, err
	}
	res := &StreakResult{Streak: streak, Message: &msg}

	if continued && l.rules.IsMilestone(streak) {
		res.Milestone, updated, err = l.grant(ctx, tx, updated, today, grant{
			action:      models.ActionBonus,
			amount:      l.rules.MilestoneBonus,
			entityID:    fmt.Sprintf("streak_milestone_%d", streak),
			description: fmt.Sprintf("Streak Milestone: %d Days", streak),
			lifetime:    l.rules.MilestonesOncePerLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
	}
	return res, updated, nil
}

type grant struct {
	action      models.ActionType
	amount      int
	entityID    string
	description string
	lifetime    bool
}

func (l *Ledger) actionGrant(action models.ActionType, entityID, description string) grant {
	description = strings.TrimSpace(description)
	if description == "" {
		description = defaultDescription(action)
	}
	return grant{
		action:      action,
		amount:      l.rules.AmountFor(action),
		entityID:    strings.TrimSpace(entityID),
		description: description,
		lifetime:    l.rules.LifetimeDedup[action],
	}
}

// grant must run inside WithinTx with acct freshly read from tx.
func (l *Ledger) grant(ctx context.Context, tx Store, acct *models.RewardAccount, today time.Time, g grant) (*AwardResult, *models.RewardAccount, error) {
	daily := acct.DailyCoinsEarned
	if !isSameDay(acct.LastCoinDate, today) {
		daily = 0
	}
	amount := g.amount
	if remaining := l.rules.DailyCoinCap - daily; amount > remaining {
		amount = remaining
	}
	if amount <= 0 {
		l.log.Debug("daily coin cap reached",
			zap.String("user_id", acct.UserID), zap.String("action", string(g.action)))
		return &AwardResult{Message: MessageDailyCapReached, Outcome: OutcomeDailyCapReached}, acct, nil
	}

	var entityID *string
	if g.entityID != "" {
		since := today
		if g.lifetime {
			since = time.Time{}
		}
		_, err := tx.FindTransaction(ctx, acct.UserID, g.action, g.entityID, since)
		if err == nil {
			msg := MessageAlreadyRewarded
			if g.lifetime {
				msg = MessageAlreadyRewardedEver
			}
			return &AwardResult{Message: msg, Outcome: OutcomeAlreadyRewarded}, acct, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
		id := g.entityID
		entityID = &id
	}

	saved, err := tx.AppendTransaction(ctx, &models.RewardTransaction{
		UserID:      acct.UserID,
		Amount:      amount,
		ActionType:  g.action,
		EntityID:    entityID,
		Description: truncate(g.description, maxDescriptionLen),
		RewardDate:  today,
		CreatedAt:   l.now(),
	})
	if err != nil {
		return nil, nil, err
	}
	updated, err := tx.UpdateAccount(ctx, acct.UserID, AccountPatch{
		TotalCoins:       intPtr(acct.TotalCoins + amount),
		DailyCoinsEarned: intPtr(daily + amount),
		LastCoinDate:     &today,
		XP:               intPtr(acct.XP + amount*l.rules.XPPerCoin),
	})
	if err != nil {
		return nil, nil, err
	}

	l.log.Info("coins awarded",
		zap.String("user_id", acct.UserID),
		zap.String("action", string(g.action)),
		zap.String("entity_id", g.entityID),
		zap.Int("coins", amount),
		zap.Int("daily_coins_earned", updated.DailyCoinsEarned))
	return &AwardResult{
		Success:     true,
		Coins:       amount,
		Message:     fmt.Sprintf("You earned %d coins!", amount),
		Outcome:     OutcomeAwarded,
		Transaction: saved,
	}, updated, nil
}

func (l *Ledger) fail(op, userID string, err error) error {
	err = systemError(op, err)
	if IsSystemError(err) {
		l.log.Error("reward ledger failure", zap.String("op", op), zap.String("user_id", userID), zap.Error(err))
	}
	return err
}

func validateUserID(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return invalidArgument("user id is required")
	}
	if utf8.RuneCountInString(userID) > maxUserIDLen {
		return invalidArgument("user id longer than %d characters", maxUserIDLen)
	}
	return nil
}

func validateEntityID(entityID string) error {
	if utf8.RuneCountInString(strings.TrimSpace(entityID)) > maxEntityIDLen {
		return invalidArgument("entity id longer than %d characters", maxEntityIDLen)
	}
	return nil
}

func defaultDescription(action models.ActionType) string {
	switch action {
	case models.ActionLogin:
		return "Daily login"
	case models.ActionVideoWatch:
		return "Watched a video"
	case models.ActionQuizCompletion:
		return "Completed a quiz"
	case models.ActionQuizBonus:
		return "Perfect quiz score"
	case models.ActionModuleCompletion:
		return "Completed a module"
	case models.ActionReferral:
		return "Referral reward"
	default:
		return "Bonus"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
