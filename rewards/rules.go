package rewards

import (
	"sort"

	"github.com/cppla/rewardledger/models"
)

// Rules is the reward configuration a Ledger is built with.
// A Ledger keeps its own copy, so later changes by the caller have no effect.
type Rules struct {
	DailyCoinCap  int                       `json:"daily_coin_cap"`
	Amounts       map[models.ActionType]int `json:"amounts"`
	DefaultAmount int                       `json:"default_amount"`
	XPPerCoin     int                       `json:"xp_per_coin"`

	StreakMilestones []int `json:"streak_milestones"`
	MilestoneBonus   int   `json:"milestone_bonus"`
	// MilestonesOncePerLifetime stops a milestone from paying out again after a streak reset.
	MilestonesOncePerLifetime bool `json:"milestones_once_per_lifetime"`

	// LifetimeDedup marks actions whose entity can be rewarded only once ever,
	// instead of once per day.
	LifetimeDedup map[models.ActionType]bool `json:"lifetime_dedup"`
}

// DefaultRules returns the production reward table.
func DefaultRules() Rules {
	return Rules{
		DailyCoinCap: 100,
		Amounts: map[models.ActionType]int{
			models.ActionLogin:            5,
			models.ActionVideoWatch:       10,
			models.ActionQuizCompletion:   15,
			models.ActionQuizBonus:        10,
			models.ActionModuleCompletion: 50,
			models.ActionReferral:         100,
			models.ActionBonus:            10,
		},
		DefaultAmount:    10,
		XPPerCoin:        10,
		StreakMilestones: []int{3, 7, 30},
		MilestoneBonus:   10,
		LifetimeDedup: map[models.ActionType]bool{
			models.ActionReferral: true,
		},
	}
}

// AmountFor returns the nominal coin amount for an action.
func (r Rules) AmountFor(action models.ActionType) int {
	if v, ok := r.Amounts[action]; ok {
		return v
	}
	return r.DefaultAmount
}

// IsMilestone reports whether streak is one of the configured milestones.
func (r Rules) IsMilestone(streak int) bool {
	for _, m := range r.StreakMilestones {
		if m == streak {
			return true
		}
	}
	return false
}

// Validate rejects configurations the ledger cannot honour.
func (r Rules) Validate() error {
	if r.DailyCoinCap <= 0 {
		return invalidArgument("daily coin cap must be positive, got %d", r.DailyCoinCap)
	}
	if r.XPPerCoin < 0 {
		return invalidArgument("xp per coin must not be negative, got %d", r.XPPerCoin)
	}
	if r.DefaultAmount < 0 || r.MilestoneBonus < 0 {
		return invalidArgument("reward amounts must not be negative")
	}
	for action, amount := range r.Amounts {
		if !action.Valid() {
			return invalidArgument("unknown action type %q", action)
		}
		if amount < 0 {
			return invalidArgument("amount for %s must not be negative", action)
		}
	}
	for _, m := range r.StreakMilestones {
		if m <= 0 {
			return invalidArgument("streak milestone must be positive, got %d", m)
		}
	}
	return nil
}

func (r Rules) clone() Rules {
	out := r
	out.Amounts = make(map[models.ActionType]int, len(r.Amounts))
	for k, v := range r.Amounts {
		out.Amounts[k] = v
	}
	out.LifetimeDedup = make(map[models.ActionType]bool, len(r.LifetimeDedup))
	for k, v := range r.LifetimeDedup {
		out.LifetimeDedup[k] = v
	}
	out.StreakMilestones = append([]int(nil), r.StreakMilestones...)
	sort.Ints(out.StreakMilestones)
	return out
}
