package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"email-reconciliation-backend/internal/config"
	"email-reconciliation-backend/internal/models"
	"email-reconciliation-backend/internal/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on system env")
	}

	db := config.InitDB()

	db.AutoMigrate(
		&models.PendingPayment{},
		&models.ProcessedEmail{},
		&models.BankTemplate{},
		&models.MatchAttempt{},
		&models.Setting{},
	)

	seedDefaults(db)

	r := gin.Default()
	// CORS config
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	reconService := routes.RegisterRoutes(r, db)

	// Periodic global sweep: retries unmatched emails and pending
	// payments, runs backfill extraction and expires due payments.
	go func() {
		interval := sweepInterval()
		log.Printf("sweep scheduled every %s", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			reconService.RunSweep(context.Background())
		}
	}()

	r.Run(config.ListenAddr())
}

func sweepInterval() time.Duration {
	if raw := os.Getenv("SWEEP_INTERVAL_MINUTES"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return 5 * time.Minute
}

// seedDefaults inserts the live-tunable settings and the stock bank
// templates; existing rows are left untouched.
func seedDefaults(db *gorm.DB) {
	settings := []models.Setting{
		{Key: models.SettingTimeWindowMinutes, Value: strconv.Itoa(config.DefaultTimeWindowMinutes)},
		{Key: models.SettingNameSimilarityPercent, Value: strconv.Itoa(config.DefaultNameSimilarityPercent)},
	}
	for _, s := range settings {
		db.Clauses(clause.OnConflict{DoNothing: true}).Create(&s)
	}

	templates := []models.BankTemplate{
		{
			ID:                   uuid.New(),
			BankName:             "GTBank",
			SenderDomain:         "@gtbank.com",
			AmountFieldLabel:     "Amount",
			SenderNameFieldLabel: "Description",
			ExtractionNotes:      "HTML table alerts; payer name inline in Description before TRF/TRANSFER",
			Priority:             10,
			IsActive:             true,
		},
		{
			ID:                      uuid.New(),
			BankName:                "Access Bank",
			SenderDomain:            "@accessbankplc.com",
			AmountFieldLabel:        "Amount",
			AccountNumberFieldLabel: "Account Number",
			Priority:                20,
			IsActive:                true,
		},
		{
			ID:                   uuid.New(),
			BankName:             "Zenith Bank",
			SenderDomain:         "@zenithbank.com",
			AmountFieldLabel:     "Amount",
			SenderNameFieldLabel: "Narration",
			Priority:             30,
			IsActive:             true,
		},
	}
	for _, t := range templates {
		db.Where(models.BankTemplate{BankName: t.BankName}).FirstOrCreate(&t)
	}
}
