package services

import (
	"fmt"

	"ctf-scoreboard-system/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BadgeService struct {
	DB *gorm.DB
}

func NewBadgeService(db *gorm.DB) *BadgeService {
	return &BadgeService{DB: db}
}

// AutoAwardBadges checks all badge triggers for a user after a score change
func (s *BadgeService) AutoAwardBadges(username string) error {
	var user models.User
	if err := s.DB.Where("username = ?", username).First(&user).Error; err != nil {
		return err
	}

	var flagsCount int64
	if err := s.DB.Model(&models.AchievementUnlock{}).
		Where("username = ?", username).
		Count(&flagsCount).Error; err != nil {
		return err
	}

	for _, trigger := range models.BadgeTriggers {
		if s.meetsThreshold(&user, flagsCount, trigger.Threshold) {
			// Check if already awarded
			var count int64
			s.DB.Model(&models.UserBadge{}).
				Where("username = ? AND badge_code = ?", username, trigger.Code).
				Count(&count)
			if count == 0 {
				userBadge := models.UserBadge{
					ID:        uuid.NewString(),
					Username:  username,
					BadgeCode: trigger.Code,
				}
				if err := s.DB.Create(&userBadge).Error; err != nil {
					return err
				}
				fmt.Printf("🎖️ Badge awarded: %s → %s\n", trigger.Name, username)
			}
		}
	}
	return nil
}

func (s *BadgeService) meetsThreshold(user *models.User, flagsCount int64, req map[string]int64) bool {
	for key, required := range req {
		switch key {
		case "flags_count":
			if flagsCount < required {
				return false
			}
		case "total_score":
			if user.TotalScore < required {
				return false
			}
		case "prize_claimed":
			if !user.HasClaimedPrize {
				return false
			}
		}
	}
	return true
}
