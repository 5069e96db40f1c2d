// handlers/scoreboard_routes.go
package handlers

import (
	"ctf-scoreboard-system/middleware"
	"ctf-scoreboard-system/models"
	"ctf-scoreboard-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupScoreboardRoutes(app *fiber.App, ledgerService *services.LedgerService, scoreboardService *services.ScoreboardService, authClient *services.AuthServiceClient) {
	// 🔓 Public routes — read access to the board is open (gateway auth still applies globally)
	app.Get("/leaderboard", scoreboardService.GetLeaderboardEndpoint)
	app.Get("/leaderboard/snapshots/latest", scoreboardService.GetLatestSnapshotEndpoint)
	app.Get("/users/search", scoreboardService.SearchUsers)

	app.Get("/users/:username/rank", func(c *fiber.Ctx) error {
		rank, err := scoreboardService.GetRank(c.Params("username"))
		if err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"username": services.NormalizeUsername(c.Params("username")),
			"rank":     rank,
		})
	})

	app.Get("/users/:username/unlocks", func(c *fiber.Ctx) error {
		unlocks, err := ledgerService.ListByUser(c.Params("username"))
		if err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(unlocks)
	})

	// 📡 Live scoreboard stream — token auth via query (EventSource can't set headers)
	if authClient != nil {
		app.Get("/scoreboard/stream", middleware.SSEAuthMiddleware(authClient), scoreboardService.StreamScoreboardSSE)
	}

	// 🔐 Secured routes — require user context (username, roles)
	secured := app.Group("/", middleware.UserContextMiddleware())

	secured.Post("/unlocks", func(c *fiber.Ctx) error {
		username, _ := c.Locals("username").(string)
		if username == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "username not found in context"})
		}

		var req struct {
			FlagKey string `json:"flag_key" validate:"required"`
			Points  int64  `json:"points" validate:"min=0"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		entry, err := ledgerService.Unlock(username, req.FlagKey, req.Points)
		if err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	})

	secured.Delete("/unlocks/:flag_key", func(c *fiber.Ctx) error {
		username, _ := c.Locals("username").(string)
		if username == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "username not found in context"})
		}

		if err := ledgerService.Remove(username, c.Params("flag_key")); err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "OK"})
	})

	secured.Post("/claim", scoreboardService.ClaimPrizeEndpoint)

	secured.Get("/me/badges", func(c *fiber.Ctx) error {
		username, _ := c.Locals("username").(string)
		if username == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "username not found in context"})
		}

		var badges []models.UserBadge
		if err := ledgerService.DB.
			Where("username = ?", username).
			Order("awarded_at ASC").
			Find(&badges).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to get badges",
				"cause": err.Error(),
			})
		}
		return c.JSON(badges)
	})

	// 🔒 Admin-only routes
	admin := secured.Group("/admin", middleware.RequireAdminRole())

	admin.Post("/unlocks/grant", func(c *fiber.Ctx) error {
		var req struct {
			Username string `json:"username" validate:"required"`
			FlagKey  string `json:"flag_key" validate:"required"`
			Points   int64  `json:"points" validate:"min=0"`
		}
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid JSON",
				"cause": err.Error(),
			})
		}

		entry, err := ledgerService.Unlock(req.Username, req.FlagKey, req.Points)
		if err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.Status(fiber.StatusCreated).JSON(entry)
	})

	admin.Delete("/users/:username", func(c *fiber.Ctx) error {
		if err := ledgerService.DeleteUser(c.Params("username")); err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{"message": "user deleted"})
	})

	admin.Get("/scores/audit", func(c *fiber.Ctx) error {
		drifts, err := ledgerService.VerifyTotals()
		if err != nil {
			return c.Status(services.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
		}
		return c.JSON(fiber.Map{
			"consistent": len(drifts) == 0,
			"drifts":     drifts,
		})
	})
}
