package handler

import (
	"errors"
	"net/http"
	"time"

	"email-reconciliation-backend/internal/repository"
	"email-reconciliation-backend/internal/services/extraction"
	"email-reconciliation-backend/internal/services/matching"
	service "email-reconciliation-backend/internal/services/reconciliation"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ReconciliationHandler struct {
	service  *service.Service
	payments *repository.PaymentRepository
	emails   *repository.EmailRepository
	attempts *repository.AttemptRepository
	engine   *matching.Engine
}

func NewReconciliationHandler(
	svc *service.Service,
	payments *repository.PaymentRepository,
	emails *repository.EmailRepository,
	attempts *repository.AttemptRepository,
	engine *matching.Engine,
) *ReconciliationHandler {
	return &ReconciliationHandler{
		service:  svc,
		payments: payments,
		emails:   emails,
		attempts: attempts,
		engine:   engine,
	}
}

// IngestEmail accepts one raw bank notification. Idempotent: replaying
// a message id returns the already-stored row.
func (h *ReconciliationHandler) IngestEmail(c *gin.Context) {
	var payload struct {
		MessageID string `json:"message_id"`
		From      string `json:"from"`
		Subject   string `json:"subject"`
		TextBody  string `json:"text_body"`
		HTMLBody  string `json:"html_body"`
		Date      string `json:"date"` // RFC3339
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	raw := extraction.RawEmail{
		From:     payload.From,
		Subject:  payload.Subject,
		TextBody: payload.TextBody,
		HTMLBody: payload.HTMLBody,
	}
	if payload.Date != "" {
		t, err := time.Parse(time.RFC3339, payload.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid date, expected RFC3339"})
			return
		}
		raw.Date = &t
	}

	email, result, err := h.service.IngestEmail(c.Request.Context(), raw, payload.MessageID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"email": email}
	if result != nil {
		response["match"] = matchResponse(result)
	}
	c.JSON(http.StatusOK, response)
}

func (h *ReconciliationHandler) GetEmail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email ID"})
		return
	}
	email, err := h.emails.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "email not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email})
}

func (h *ReconciliationHandler) MatchEmail(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email ID"})
		return
	}
	result, err := h.service.RecheckEmail(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, matchResponse(&result))
}

func (h *ReconciliationHandler) CreatePayment(c *gin.Context) {
	var payload struct {
		Amount           string `json:"amount"`
		BusinessID       string `json:"business_id"`
		PayerName        string `json:"payer_name"`
		AccountNumber    string `json:"account_number"`
		ExpiresInMinutes *int   `json:"expires_in_minutes"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	amount, err := decimal.NewFromString(payload.Amount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}

	var businessID *uuid.UUID
	if payload.BusinessID != "" {
		id, err := uuid.Parse(payload.BusinessID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid business ID"})
			return
		}
		businessID = &id
	}

	var expiresIn *time.Duration
	if payload.ExpiresInMinutes != nil {
		d := time.Duration(*payload.ExpiresInMinutes) * time.Minute
		expiresIn = &d
	}

	payment, result, err := h.service.CreatePayment(
		c.Request.Context(), amount, businessID, payload.PayerName, payload.AccountNumber, expiresIn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	response := gin.H{"payment": payment}
	if result != nil {
		response["match"] = matchResponse(result)
	}
	c.JSON(http.StatusCreated, response)
}

func (h *ReconciliationHandler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}
	payment, err := h.payments.GetByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "payment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payment": payment})
}

func (h *ReconciliationHandler) MatchPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}
	result, err := h.service.RecheckPayment(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, matchResponse(&result))
}

// ForceApprove is the admin manual override. It refuses an already
// approved payment with 409: that is the double-credit boundary.
func (h *ReconciliationHandler) ForceApprove(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}

	var payload struct {
		ReceivedAmount string `json:"received_amount"`
		Notes          string `json:"notes"`
		ApprovedBy     string `json:"approved_by"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	amount, err := decimal.NewFromString(payload.ReceivedAmount)
	if err != nil || amount.LessThanOrEqual(decimal.Zero) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid received amount"})
		return
	}

	result, err := h.engine.ForceApprove(c.Request.Context(), id, amount, payload.Notes, payload.ApprovedBy)
	if errors.Is(err, matching.ErrDoubleCredit) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if errors.Is(err, matching.ErrNotPending) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, matchResponse(&result))
}

func (h *ReconciliationHandler) ListPaymentAttempts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment ID"})
		return
	}
	attempts, err := h.attempts.ListByPayment(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"attempts": attempts})
}

func (h *ReconciliationHandler) NeedsReview(c *gin.Context) {
	payments, err := h.service.NeedsReview(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments, "threshold": service.NeedsReviewThreshold})
}

func (h *ReconciliationHandler) RunSweep(c *gin.Context) {
	report := h.service.RunSweep(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func matchResponse(result *matching.MatchResult) gin.H {
	response := gin.H{
		"matched":         result.Matched,
		"reason":          result.Reason,
		"attempts_logged": len(result.Attempts),
	}
	if result.Payment != nil {
		response["payment"] = result.Payment
	}
	if result.Email != nil {
		response["email"] = result.Email
	}
	return response
}
