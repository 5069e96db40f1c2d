package models

import (
	"time"
)

// User is the authoritative per-player record for the competition.
// TotalScore is denormalized: it always equals the sum of points of the
// user's unlocks and is rewritten by the ledger service inside the same
// transaction as every ledger mutation. Nothing else may write it.
type User struct {
	Username        string    `gorm:"primaryKey;size:64" json:"username"`
	PasswordHash    string    `gorm:"not null" json:"-"` // bcrypt; set at registration, or a placeholder for synced identities
	TotalScore      int64     `gorm:"not null;default:0" json:"total_score"`
	HasClaimedPrize bool      `gorm:"not null;default:false" json:"has_claimed_prize"`
	CreatedAt       time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time `json:"updated_at"` // refreshed on score or claim changes

	// Relationship: deleting a user takes their ledger entries with them
	Unlocks []AchievementUnlock `json:"unlocks,omitempty" gorm:"foreignKey:Username;references:Username;constraint:OnDelete:CASCADE"`
}
