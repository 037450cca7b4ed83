package models

import (
	"time"

	"gorm.io/gorm"
)

// RewardAccount holds a learner's coin balance, daily counters and streak state.
// One row per user, created lazily on the first reward event.
type RewardAccount struct {
	ID               uint       `gorm:"primaryKey" json:"-"`
	UserID           string     `gorm:"size:64;uniqueIndex;not null" json:"user_id"`
	TotalCoins       int        `gorm:"not null;default:0" json:"total_coins"`
	DailyCoinsEarned int        `gorm:"not null;default:0" json:"daily_coins_earned"`
	LastCoinDate     *time.Time `gorm:"type:date" json:"last_coin_date"`
	CurrentStreak    int        `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak    int        `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate *time.Time `gorm:"type:date" json:"last_activity_date"`
	XP               int        `gorm:"not null;default:0" json:"xp"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// BeforeCreate hook ensures timestamps are set even when not provided.
func (a *RewardAccount) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	return nil
}
