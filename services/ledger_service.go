package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"ctf-scoreboard-system/models"

	"github.com/gosimple/slug"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService owns the unlock ledger and keeps users.total_score
// consistent with it. Every mutation recomputes the total from scratch
// inside the same transaction — a reader never observes a stale total.
type LedgerService struct {
	DB *gorm.DB

	// AutoCreateUsers lets an unlock implicitly create the user record
	// (AUTO_CREATE_USERS_ON_UNLOCK). Default is off: unknown users are
	// rejected and identities come from registration or the sync worker.
	AutoCreateUsers bool
}

func NewLedgerService(db *gorm.DB, autoCreateUsers bool) *LedgerService {
	return &LedgerService{DB: db, AutoCreateUsers: autoCreateUsers}
}

// NormalizeUsername makes identity keys compare bytewise (NFC) so two
// visually identical usernames can't occupy separate rows.
func NormalizeUsername(username string) string {
	return norm.NFC.String(strings.TrimSpace(username))
}

// NormalizeFlagKey slugifies the submitted key so "Web 100!" and "web-100"
// hit the same (username, flag_key) unique constraint.
func NormalizeFlagKey(flagKey string) string {
	return slug.Make(flagKey)
}

// lockUserRow serializes ledger mutations per username via a row lock.
// SQLite (used in tests) has no FOR UPDATE and serializes on the single
// connection instead.
func lockUserRow(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// recomputeTotalScore rewrites total_score = SUM(points) for the username
// and refreshes updated_at. Full recompute rather than +=/-=: it cannot
// drift, whatever order concurrent mutations land in.
func recomputeTotalScore(tx *gorm.DB, username string) error {
	res := tx.Exec(
		`UPDATE users
		 SET total_score = (SELECT COALESCE(SUM(points), 0) FROM achievement_unlocks WHERE username = ?),
		     updated_at = ?
		 WHERE username = ?`,
		username, time.Now(), username,
	)
	if res.Error != nil {
		return storeErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// Unlock records that username earned flagKey worth points. Rejects a
// repeat submission of the same flag with ErrDuplicateUnlock (no state
// change). The insert and the total recompute commit atomically.
func (s *LedgerService) Unlock(username, flagKey string, points int64) (*models.AchievementUnlock, error) {
	username = NormalizeUsername(username)
	flagKey = NormalizeFlagKey(flagKey)
	if username == "" {
		return nil, constraintErr("username", "must not be empty")
	}
	if flagKey == "" {
		return nil, constraintErr("flag_key", "must not be empty")
	}
	if points < 0 {
		return nil, constraintErr("points", "must not be negative")
	}

	var entry *models.AchievementUnlock
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockUserRow(tx).Where("username = ?", username).First(&user).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return storeErr(err)
			}
			if !s.AutoCreateUsers {
				return ErrUserNotFound
			}
			user = models.User{Username: username}
			if err := tx.Create(&user).Error; err != nil {
				return storeErr(err)
			}
		}

		var count int64
		if err := tx.Model(&models.AchievementUnlock{}).
			Where("username = ? AND flag_key = ?", username, flagKey).
			Count(&count).Error; err != nil {
			return storeErr(err)
		}
		if count > 0 {
			return ErrDuplicateUnlock
		}

		e := models.AchievementUnlock{
			Username: username,
			FlagKey:  flagKey,
			Points:   points,
		}
		if err := tx.Create(&e).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				// lost the race on the unique constraint
				return ErrDuplicateUnlock
			}
			return storeErr(err)
		}

		if err := recomputeTotalScore(tx, username); err != nil {
			return err
		}

		entry = &e
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Auto-award badges
	badgeSvc := NewBadgeService(s.DB)
	_ = badgeSvc.AutoAwardBadges(username) // fire-and-forget

	log.Printf("🚩 Flag unlocked: %s → %s (+%d)", username, flagKey, points)
	return entry, nil
}

// Remove deletes one unlock if present; removing an absent flag is a no-op.
// A real delete recomputes the total in the same transaction.
func (s *LedgerService) Remove(username, flagKey string) error {
	username = NormalizeUsername(username)
	flagKey = NormalizeFlagKey(flagKey)
	if username == "" {
		return constraintErr("username", "must not be empty")
	}
	if flagKey == "" {
		return constraintErr("flag_key", "must not be empty")
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := lockUserRow(tx).Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return storeErr(err)
		}

		res := tx.Where("username = ? AND flag_key = ?", username, flagKey).
			Delete(&models.AchievementUnlock{})
		if res.Error != nil {
			return storeErr(res.Error)
		}
		if res.RowsAffected == 0 {
			return nil // nothing deleted, nothing to recompute
		}
		return recomputeTotalScore(tx, username)
	})
}

// ListByUser returns the user's unlocks, oldest first.
func (s *LedgerService) ListByUser(username string) ([]models.AchievementUnlock, error) {
	username = NormalizeUsername(username)

	var count int64
	if err := s.DB.Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, storeErr(err)
	}
	if count == 0 {
		return nil, ErrUserNotFound
	}

	var unlocks []models.AchievementUnlock
	if err := s.DB.Where("username = ?", username).
		Order("unlocked_at ASC, id ASC").
		Find(&unlocks).Error; err != nil {
		return nil, storeErr(err)
	}
	return unlocks, nil
}

// RegisterUser creates a user row with a bcrypt credential hash.
func (s *LedgerService) RegisterUser(username, password string) (*models.User, error) {
	username = NormalizeUsername(username)
	if username == "" {
		return nil, constraintErr("username", "must not be empty")
	}
	if len(password) < 8 {
		return nil, constraintErr("password", "must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, storeErr(err)
	}

	user := models.User{
		Username:     username,
		PasswordHash: string(hash),
	}
	if err := s.DB.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, storeErr(err)
	}

	log.Printf("👤 User registered: %s", username)
	return &user, nil
}

// DeleteUser removes a user and cascades to their ledger entries and
// badges. Children are deleted explicitly so the behavior doesn't depend
// on the store enforcing ON DELETE CASCADE.
func (s *LedgerService) DeleteUser(username string) error {
	username = NormalizeUsername(username)

	return s.DB.Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return storeErr(err)
		}
		if err := tx.Where("username = ?", username).Delete(&models.AchievementUnlock{}).Error; err != nil {
			return storeErr(err)
		}
		if err := tx.Where("username = ?", username).Delete(&models.UserBadge{}).Error; err != nil {
			return storeErr(err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return storeErr(err)
		}
		return nil
	})
}

// ScoreDrift reports a user whose stored total disagrees with their ledger.
type ScoreDrift struct {
	Username string `json:"username"`
	Stored   int64  `json:"stored"`
	Computed int64  `json:"computed"`
}

// VerifyTotals audits the invariant total_score == SUM(points) across all
// users. An empty result means the ledger and the totals agree.
func (s *LedgerService) VerifyTotals() ([]ScoreDrift, error) {
	var drifts []ScoreDrift
	err := s.DB.Raw(`
		SELECT u.username, u.total_score AS stored, COALESCE(SUM(a.points), 0) AS computed
		FROM users u
		LEFT JOIN achievement_unlocks a ON a.username = u.username
		GROUP BY u.username, u.total_score
		HAVING u.total_score <> COALESCE(SUM(a.points), 0)
	`).Scan(&drifts).Error
	if err != nil {
		return nil, storeErr(err)
	}
	return drifts, nil
}
