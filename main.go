package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"button-game-system/handlers"
	"button-game-system/models"
	"button-game-system/services"
	"button-game-system/utils"
	"button-game-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		AppName: "button-game-system",
	})

	// CORS — the game page and agent callers hit the API cross-origin, and
	// paid presses carry the X-PAYMENT header.
	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		allowedOriginsEnv = "*"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins: allowedOriginsString,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-PAYMENT",
		MaxAge:       86400,
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.Round{},
		&models.Press{},
		&models.Player{},
		&models.PaymentNonce{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	treasuryAddress := os.Getenv("TREASURY_ADDRESS")
	if treasuryAddress == "" {
		log.Fatal("TREASURY_ADDRESS environment variable not set")
	}
	verifierURL := os.Getenv("PAYMENT_VERIFIER_URL")
	if verifierURL == "" {
		verifierURL = "https://api.hiro.so"
	}

	gameService := services.NewGameService(db, clockwork.NewRealClock())
	verifier := services.NewVerifierClient(verifierURL)
	paymentService := services.NewPaymentService(db, gameService, verifier, treasuryAddress)

	if err := gameService.EnsureCurrentRound(); err != nil {
		log.Fatal("failed to ensure current round:", err)
	}

	services.StartGameScheduler(gameService, paymentService)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Round archiving is optional — only runs with R2 credentials present.
	if utils.R2Configured() {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archiver := workers.NewRoundArchiver(db)
		go workers.PollSettledRounds(ctx, archiver, 30*time.Second)
		log.Println("✅ Round archive worker running (every 30s)")
	} else {
		log.Println("⚠️  R2 not configured — settled rounds will not be archived")
	}

	handlers.SetupGameRoutes(app, gameService, paymentService)

	port := os.Getenv("PORT")
	if port == "" {
		port = "5100"
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", port)
	log.Println("✅ Settlement sweep + nonce purge scheduler running")
	log.Printf("✅ Payment verifier: %s", verifierURL)
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
	_ = app.Shutdown()
}
