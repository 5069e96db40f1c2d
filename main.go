package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"ctf-scoreboard-system/handlers"
	"ctf-scoreboard-system/middleware"
	"ctf-scoreboard-system/models"
	"ctf-scoreboard-system/services"
	"ctf-scoreboard-system/utils"
	"ctf-scoreboard-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	// Load allowed origins from environment variable
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles, X-Service-Token",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.AchievementUnlock{},
		&models.LeaderboardSnapshot{},
		&models.BadgeType{},
		&models.UserBadge{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	autoCreateUsers := strings.EqualFold(os.Getenv("AUTO_CREATE_USERS_ON_UNLOCK"), "true")

	ledgerService := services.NewLedgerService(db, autoCreateUsers)
	scoreboardService := services.NewScoreboardService(db)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Optional: auth service client for the SSE stream ---
	var authClient *services.AuthServiceClient
	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	serviceToken := os.Getenv("SCORE_SERVICE_TOKEN")
	if authServiceURL != "" {
		authClient = services.NewAuthServiceClient(authServiceURL, serviceToken)
	} else {
		log.Println("⚠️  AUTH_SERVICE_URL not set — /scoreboard/stream disabled")
	}

	// --- Optional: pre-create users from the external profile service ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL != "" {
		syncWorker := workers.NewUserSyncWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)
		log.Println("Starting User Sync Worker...")
		syncWorker.Start(ctx)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set — user sync worker disabled")
	}

	// Periodic leaderboard snapshots + export of finished batches to R2
	scoreboardService.StartSnapshotScheduler(5 * time.Minute)
	exporter := workers.NewSnapshotExporter(db)
	go workers.PollSnapshots(ctx, exporter, 30*time.Second)

	// ✅ Setup routes — enforced Gateway auth on everything
	handlers.SetupScoreboardRoutes(app, ledgerService, scoreboardService, authClient)
	handlers.SetupUserRoutes(app, ledgerService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5300"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Snapshot scheduler running (every 5m)")
	log.Println("✅ Snapshot export polling running (every 30s)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come through Gateway")
	log.Printf("✅ Auto-create users on unlock: %t", autoCreateUsers)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
