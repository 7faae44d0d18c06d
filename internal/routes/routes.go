package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"email-reconciliation-backend/internal/events"
	handler "email-reconciliation-backend/internal/handlers"
	"email-reconciliation-backend/internal/repository"
	"email-reconciliation-backend/internal/services/extraction"
	"email-reconciliation-backend/internal/services/matching"
	service "email-reconciliation-backend/internal/services/reconciliation"
)

func RegisterRoutes(r *gin.Engine, db *gorm.DB) *service.Service {
	paymentRepo := repository.NewPaymentRepository(db)
	emailRepo := repository.NewEmailRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	settingRepo := repository.NewSettingRepository(db)

	dispatcher := events.NewDispatcher()
	dispatcher.Register(events.LogListener{})

	engine := matching.NewEngine(
		paymentRepo,
		emailRepo,
		attemptRepo,
		settingRepo,
		repository.NewUnitOfWork(db),
		dispatcher,
	)

	reconService := service.NewService(
		paymentRepo,
		emailRepo,
		templateRepo,
		extraction.NewExtractor(),
		engine,
	)

	reconHandler := handler.NewReconciliationHandler(reconService, paymentRepo, emailRepo, attemptRepo, engine)
	settingsHandler := handler.NewSettingsHandler(settingRepo)

	api := r.Group("/api")

	// Health check
	api.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Email ingestion and matching
	emails := api.Group("/emails")
	emails.POST("", reconHandler.IngestEmail)
	emails.GET("/:id", reconHandler.GetEmail)
	emails.POST("/:id/match", reconHandler.MatchEmail)

	// Payment requests and matching
	payments := api.Group("/payments")
	payments.POST("", reconHandler.CreatePayment)
	payments.GET("/:id", reconHandler.GetPayment)
	payments.POST("/:id/match", reconHandler.MatchPayment)
	payments.POST("/:id/force-approve", reconHandler.ForceApprove)
	payments.GET("/:id/attempts", reconHandler.ListPaymentAttempts)

	// Operational surface
	api.GET("/needs-review", reconHandler.NeedsReview)
	api.POST("/sweep", reconHandler.RunSweep)
	api.GET("/settings/:key", settingsHandler.Get)
	api.PUT("/settings/:key", settingsHandler.Update)

	return reconService
}
