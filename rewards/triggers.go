package rewards

import (
	"context"
	"strings"
	"time"

	"github.com/cppla/rewardledger/models"
)

// QuizRewardResult holds the completion award and, for a perfect score, the bonus.
type QuizRewardResult struct {
	Completion *AwardResult `json:"completion"`
	Bonus      *AwardResult `json:"bonus,omitempty"`
}

// CheckModuleCompletion awards the module reward once every lesson of the
// module is in completedLessonIDs. It returns nil when the module is not done.
func (l *Ledger) CheckModuleCompletion(ctx context.Context, userID, moduleID string, lessonIDs, completedLessonIDs []string, today time.Time) (*AwardResult, error) {
	if strings.TrimSpace(moduleID) == "" {
		return nil, invalidArgument("module id is required")
	}
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	done := make(map[string]struct{}, len(completedLessonIDs))
	for _, id := range completedLessonIDs {
		done[id] = struct{}{}
	}
	for _, id := range lessonIDs {
		if _, ok := done[id]; !ok {
			return nil, nil
		}
	}
	return l.AwardCoins(ctx, userID, models.ActionModuleCompletion, today, moduleID, "Completed a module")
}

// CheckFirstLessonReward pays the referrer when a referred learner finishes
// their very first lesson. The referee's id is the de-duplication entity.
func (l *Ledger) CheckFirstLessonReward(ctx context.Context, refereeID string, completedLessonCount int, referredBy string, alreadyRewardedForReferee bool, today time.Time) (*AwardResult, error) {
	if err := validateUserID(refereeID); err != nil {
		return nil, err
	}
	referredBy = strings.TrimSpace(referredBy)
	if completedLessonCount != 1 || referredBy == "" || alreadyRewardedForReferee {
		return nil, nil
	}
	if referredBy == refereeID {
		return nil, nil
	}
	return l.AwardCoins(ctx, referredBy, models.ActionReferral, today, refereeID, "Referral reward: your friend completed their first lesson")
}

// CheckQuizCompletion awards the completion reward for quizID and the perfect
// score bonus when score reaches maxScore. Both are written in one unit of work.
func (l *Ledger) CheckQuizCompletion(ctx context.Context, userID, quizID string, score, maxScore int, today time.Time) (*QuizRewardResult, error) {
	if strings.TrimSpace(quizID) == "" {
		return nil, invalidArgument("quiz id is required")
	}
	if err := validateEntityID(quizID); err != nil {
		return nil, err
	}
	if _, err := l.EnsureAccount(ctx, userID); err != nil {
		return nil, err
	}
	today = DateOf(today)
	perfect := maxScore > 0 && score >= maxScore

	res := &QuizRewardResult{}
	err := l.store.WithinTx(ctx, userID, func(tx Store) error {
		acct, err := tx.GetAccount(ctx, userID)
		if err != nil {
			return err
		}
		res.Completion, acct, err = l.grant(ctx, tx, acct, today, l.actionGrant(models.ActionQuizCompletion, quizID, ""))
		if err != nil || !perfect {
			return err
		}
		res.Bonus, _, err = l.grant(ctx, tx, acct, today, l.actionGrant(models.ActionQuizBonus, quizID, ""))
		return err
	})
	if err != nil {
		return nil, l.fail("check quiz completion", userID, err)
	}
	return res, nil
}
