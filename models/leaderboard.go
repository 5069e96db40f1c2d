package models

import (
	"time"
)

// LeaderboardRow is the derived scoreboard view — computed fresh per query,
// never stored. Rank is competition ranking: ties share a rank and the next
// distinct score resumes after the gap (scores 100,100,50 → ranks 1,1,3).
type LeaderboardRow struct {
	Username        string    `json:"username"`
	TotalScore      int64     `json:"total_score"`
	HasClaimedPrize bool      `json:"has_claimed_prize"`
	FlagsCount      int64     `json:"flags_count"`
	Rank            int64     `json:"rank"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LeaderboardSnapshot is a persisted scoreboard row, written in batches by
// the snapshot scheduler. Each batch shares a BatchID so the export worker
// can ship a whole consistent board at once.
type LeaderboardSnapshot struct {
	ID              string    `gorm:"primaryKey;type:uuid" json:"id"`
	BatchID         string    `gorm:"not null;uniqueIndex:uk_snapshot_batch_user" json:"batch_id"`
	Username        string    `gorm:"size:64;not null;uniqueIndex:uk_snapshot_batch_user" json:"username"`
	TotalScore      int64     `gorm:"not null" json:"total_score"`
	FlagsCount      int64     `gorm:"not null" json:"flags_count"`
	Rank            int64     `gorm:"not null" json:"rank"`
	HasClaimedPrize bool      `gorm:"not null;default:false" json:"has_claimed_prize"`
	TakenAt         time.Time `gorm:"index" json:"taken_at"`
}
