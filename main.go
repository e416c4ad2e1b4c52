package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"arena-tournament-system/handlers"
	"arena-tournament-system/models"
	"arena-tournament-system/services"
	"arena-tournament-system/utils"
	"arena-tournament-system/workers"

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

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // 10MB — avatars and team logos only
	})

	// CORS configuration — origins from environment
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOriginsString,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control",
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

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.UserParticipation{},
		&models.Team{},
		&models.TeamMember{},
		&models.Tournament{},
		&models.TournamentParticipant{},
		&models.Transaction{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	// --- Mailer config ---
	mailerURL := os.Getenv("MAILER_SERVICE_URL")
	if mailerURL == "" {
		log.Fatal("MAILER_SERVICE_URL environment variable not set")
	}
	mailerToken := os.Getenv("MAILER_SERVICE_TOKEN")
	if mailerToken == "" {
		log.Fatal("MAILER_SERVICE_TOKEN environment variable not set")
	}
	mailer := services.NewMailerClient(mailerURL, mailerToken)
	// --- END CONFIG ---

	rdb := services.NewRedisClient()
	otpStore := services.NewOTPStore(rdb)
	gateway := services.NewGatewayClient()

	authService := services.NewAuthService(db, otpStore, mailer)
	userService := services.NewUserService(db)
	teamService := services.NewTeamService(db)
	walletService := services.NewWalletService(db, gateway)
	tournamentService := services.NewTournamentService(db, walletService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Payout reconciliation: poll every minute, leave webhooks a 5-minute head start
	reconciler := workers.NewPayoutReconciler(db, walletService)
	go reconciler.Run(ctx, 1*time.Minute, 5*time.Minute)

	tournamentService.StartTournamentScheduler()

	handlers.SetupAuthRoutes(app, db, authService)
	handlers.SetupUserRoutes(app, db, userService)
	handlers.SetupTeamRoutes(app, db, teamService)
	handlers.SetupTournamentRoutes(app, db, tournamentService)
	handlers.SetupWalletRoutes(app, db, walletService)

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
	log.Println("✅ Tournament scheduler running (every 1m)")
	log.Println("✅ Payout reconciliation running (every 1m)")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
