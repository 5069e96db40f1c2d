// handlers/user_routes.go
package handlers

import (
	"errors"

	"ctf-scoreboard-system/models"
	"ctf-scoreboard-system/services"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupUserRoutes(app *fiber.App, ledgerService *services.LedgerService) {
	// Registration — a username must exist before its first unlock unless
	// AUTO_CREATE_USERS_ON_UNLOCK is enabled.
	app.Post("/users", func(c *fiber.Ctx) error {
		var req struct {
			Username string `json:"username" validate:"required"`
			Password string `json:"password" validate:"required,min=8"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		user, err := ledgerService.RegisterUser(req.Username, req.Password)
		if err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(user)
	})

	// Public profile: score, claim status, flags count
	app.Get("/users/:username", func(c *fiber.Ctx) error {
		username := services.NormalizeUsername(c.Params("username"))

		var user models.User
		if err := ledgerService.DB.Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "user not found"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "DB error"})
		}

		var flagsCount int64
		ledgerService.DB.Model(&models.AchievementUnlock{}).
			Where("username = ?", username).
			Count(&flagsCount)

		return c.JSON(fiber.Map{
			"username":          user.Username,
			"total_score":       user.TotalScore,
			"has_claimed_prize": user.HasClaimedPrize,
			"flags_count":       flagsCount,
			"created_at":        user.CreatedAt,
			"updated_at":        user.UpdatedAt,
		})
	})
}
