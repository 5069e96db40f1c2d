package models

import (
	"time"
)

// AchievementUnlock is one ledger entry: user U earned flag F worth P points.
// Points are fixed at unlock time — a later change to the flag catalog never
// rewrites history. The (username, flag_key) pair is unique: a user can
// unlock a given flag at most once.
type AchievementUnlock struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username   string    `gorm:"size:64;not null;uniqueIndex:uk_unlock_user_flag;index" json:"username"`
	FlagKey    string    `gorm:"size:128;not null;uniqueIndex:uk_unlock_user_flag" json:"flag_key"`
	Points     int64     `gorm:"not null" json:"points"`
	UnlockedAt time.Time `gorm:"autoCreateTime;index" json:"unlocked_at"`
}
