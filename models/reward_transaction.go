package models

import "time"

// ActionType identifies the event a reward was granted for.
type ActionType string

const (
	ActionLogin            ActionType = "login"
	ActionVideoWatch       ActionType = "video_watch"
	ActionQuizCompletion   ActionType = "quiz_completion"
	ActionQuizBonus        ActionType = "quiz_bonus"
	ActionModuleCompletion ActionType = "module_completion"
	ActionReferral         ActionType = "referral"
	ActionBonus            ActionType = "bonus"
)

// ActionTypes lists every known action in display order.
var ActionTypes = []ActionType{
	ActionLogin,
	ActionVideoWatch,
	ActionQuizCompletion,
	ActionQuizBonus,
	ActionModuleCompletion,
	ActionReferral,
	ActionBonus,
}

// Valid reports whether a is one of the known action types.
func (a ActionType) Valid() bool {
	for _, known := range ActionTypes {
		if a == known {
			return true
		}
	}
	return false
}

// RewardTransaction is an immutable ledger entry. Rows are appended only.
type RewardTransaction struct {
	ID          string     `gorm:"primaryKey;size:36" json:"id"`
	UserID      string     `gorm:"size:64;not null;index:idx_reward_tx_dedup,priority:1;index:idx_reward_tx_user_created,priority:1" json:"user_id"`
	Amount      int        `gorm:"not null" json:"amount"`
	ActionType  ActionType `gorm:"size:32;not null;index:idx_reward_tx_dedup,priority:2" json:"action_type"`
	EntityID    *string    `gorm:"size:128;index:idx_reward_tx_dedup,priority:3" json:"entity_id,omitempty"`
	Description string     `gorm:"size:255" json:"description"`
	RewardDate  time.Time  `gorm:"type:date;not null;index:idx_reward_tx_dedup,priority:4" json:"reward_date"`
	CreatedAt   time.Time  `gorm:"index:idx_reward_tx_user_created,priority:2" json:"created_at"`
}
