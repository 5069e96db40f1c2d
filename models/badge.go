package models

import (
	"time"
)

// BadgeType: static config for threshold-triggered awards
type BadgeType struct {
	Code        string           `gorm:"primaryKey;size:64"` // e.g., "FIRST_BLOOD", "PRIZE_CLAIMED"
	Name        string           `gorm:"not null"`           // "First Blood", "Prize Claimed"
	Description string
	Rarity      string           `gorm:"type:varchar(16);default:'common'"` // common, rare, epic, legendary
	Threshold   map[string]int64 `gorm:"type:jsonb;serializer:json"`        // e.g., {"flags_count": 5}, {"total_score": 500}
	CreatedAt   time.Time        `gorm:"autoCreateTime"`
}

// UserBadge: awarded instance (many-to-many)
type UserBadge struct {
	ID        string    `gorm:"primaryKey;type:uuid"`
	Username  string    `gorm:"size:64;index;uniqueIndex:uk_badge_user_code;not null"`
	BadgeCode string    `gorm:"size:64;uniqueIndex:uk_badge_user_code;not null"`
	AwardedAt time.Time `gorm:"autoCreateTime"`
}

// Predefined badge triggers, checked after every score change
var BadgeTriggers = []BadgeType{
	{
		Code:        "FIRST_BLOOD",
		Name:        "First Blood",
		Description: "Unlocked your first flag",
		Rarity:      "common",
		Threshold:   map[string]int64{"flags_count": 1},
	},
	{
		Code:        "FLAG_COLLECTOR",
		Name:        "Flag Collector",
		Description: "Unlocked 5 flags",
		Rarity:      "rare",
		Threshold:   map[string]int64{"flags_count": 5},
	},
	{
		Code:        "HIGH_ROLLER",
		Name:        "High Roller",
		Description: "Reached 500 points",
		Rarity:      "epic",
		Threshold:   map[string]int64{"total_score": 500},
	},
	{
		Code:        "PRIZE_CLAIMED",
		Name:        "Winner Winner",
		Description: "Claimed the prize",
		Rarity:      "legendary",
		Threshold:   map[string]int64{"prize_claimed": 1},
	},
}
