// services/scoreboard_service.go
package services

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	"ctf-scoreboard-system/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ScoreboardService answers rank and leaderboard queries against the
// materialized totals and gates the one-shot prize claim.
type ScoreboardService struct {
	DB *gorm.DB
}

func NewScoreboardService(db *gorm.DB) *ScoreboardService {
	return &ScoreboardService{DB: db}
}

// GetRank returns competition rank: 1 + the number of users with a strictly
// greater total score. Ties share a rank and leave a gap (100,100,50 → 1,1,3).
func (s *ScoreboardService) GetRank(username string) (int64, error) {
	username = NormalizeUsername(username)

	var user models.User
	if err := s.DB.Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, storeErr(err)
	}

	var greater int64
	if err := s.DB.Model(&models.User{}).
		Where("total_score > ?", user.TotalScore).
		Count(&greater).Error; err != nil {
		return 0, storeErr(err)
	}
	return greater + 1, nil
}

// Leaderboard computes the full board fresh: every user descending by
// total score, ties ordered by username so the output is deterministic.
func (s *ScoreboardService) Leaderboard() ([]models.LeaderboardRow, error) {
	var rows []models.LeaderboardRow
	err := s.DB.Raw(`
		SELECT u.username,
		       u.total_score,
		       u.has_claimed_prize,
		       COUNT(a.id) AS flags_count,
		       RANK() OVER (ORDER BY u.total_score DESC) AS rank,
		       u.updated_at
		FROM users u
		LEFT JOIN achievement_unlocks a ON a.username = u.username
		GROUP BY u.username, u.total_score, u.has_claimed_prize, u.updated_at
		ORDER BY u.total_score DESC, u.username ASC
	`).Scan(&rows).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return rows, nil
}

// ClaimPrize flips has_claimed_prize false→true exactly once. The check and
// the set are one UPDATE, so under concurrent calls for the same username
// exactly one caller succeeds; the rest get ErrAlreadyClaimed.
func (s *ScoreboardService) ClaimPrize(username string) error {
	username = NormalizeUsername(username)

	res := s.DB.Model(&models.User{}).
		Where("username = ? AND has_claimed_prize = ?", username, false).
		Updates(map[string]interface{}{
			"has_claimed_prize": true,
			"updated_at":        time.Now(),
		})
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the user doesn't exist or someone already claimed.
		var count int64
		if err := s.DB.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return storeErr(err)
		}
		if count == 0 {
			return ErrUserNotFound
		}
		return ErrAlreadyClaimed
	}

	// Auto-award badges
	badgeSvc := NewBadgeService(s.DB)
	_ = badgeSvc.AutoAwardBadges(username) // fire-and-forget

	log.Printf("🏆 Prize claimed: %s", username)
	return nil
}

// TakeSnapshot persists the current board as one batch and returns the
// batch id.
func (s *ScoreboardService) TakeSnapshot() (string, error) {
	rows, err := s.Leaderboard()
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", nil
	}

	batchID := uuid.NewString()
	takenAt := time.Now()
	snapshots := make([]models.LeaderboardSnapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = models.LeaderboardSnapshot{
			ID:              uuid.NewString(),
			BatchID:         batchID,
			Username:        row.Username,
			TotalScore:      row.TotalScore,
			FlagsCount:      row.FlagsCount,
			Rank:            row.Rank,
			HasClaimedPrize: row.HasClaimedPrize,
			TakenAt:         takenAt,
		}
	}
	if err := s.DB.Create(&snapshots).Error; err != nil {
		return "", storeErr(err)
	}
	return batchID, nil
}

// LatestSnapshot returns the most recent snapshot batch, best rank first.
func (s *ScoreboardService) LatestSnapshot() ([]models.LeaderboardSnapshot, error) {
	var latest models.LeaderboardSnapshot
	if err := s.DB.Order("taken_at DESC").First(&latest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.LeaderboardSnapshot{}, nil
		}
		return nil, storeErr(err)
	}

	var snapshots []models.LeaderboardSnapshot
	if err := s.DB.Where("batch_id = ?", latest.BatchID).
		Order("rank ASC, username ASC").
		Find(&snapshots).Error; err != nil {
		return nil, storeErr(err)
	}
	return snapshots, nil
}

// --- HTTP handlers ---

// GetLeaderboardEndpoint serves the live board.
func (s *ScoreboardService) GetLeaderboardEndpoint(c *fiber.Ctx) error {
	rows, err := s.Leaderboard()
	if err != nil {
		log.Printf("DB Error computing leaderboard: %v", err)
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "failed to compute leaderboard"})
	}
	return c.JSON(rows)
}

// GetLatestSnapshotEndpoint serves the last persisted board.
func (s *ScoreboardService) GetLatestSnapshotEndpoint(c *fiber.Ctx) error {
	snapshots, err := s.LatestSnapshot()
	if err != nil {
		log.Printf("DB Error fetching snapshot: %v", err)
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": "failed to fetch snapshot"})
	}
	return c.JSON(snapshots)
}

// ClaimPrizeEndpoint claims the prize for the authenticated user.
func (s *ScoreboardService) ClaimPrizeEndpoint(c *fiber.Ctx) error {
	username, _ := c.Locals("username").(string)
	if username == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "username not found in context"})
	}

	if err := s.ClaimPrize(username); err != nil {
		return c.Status(HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{
		"message":  "prize claimed",
		"username": username,
	})
}

// SearchUsers searches the board by username prefix/substring.
func (s *ScoreboardService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	db := s.DB.Model(&models.User{}).Order("total_score DESC").Limit(limit)
	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where("LOWER(username) LIKE ?", searchTerm)
	}

	var users []models.User
	if err := db.Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	type UserSummary struct {
		Username   string `json:"username"`
		TotalScore int64  `json:"total_score"`
	}
	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{Username: u.Username, TotalScore: u.TotalScore}
	}
	return c.JSON(res)
}
