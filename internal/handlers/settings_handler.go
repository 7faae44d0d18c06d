package handler

import (
	"net/http"
	"strconv"

	"email-reconciliation-backend/internal/models"
	"email-reconciliation-backend/internal/repository"

	"github.com/gin-gonic/gin"
)

type SettingsHandler struct {
	settings *repository.SettingRepository
}

func NewSettingsHandler(settings *repository.SettingRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

var tunableSettings = map[string]bool{
	models.SettingTimeWindowMinutes:     true,
	models.SettingNameSimilarityPercent: true,
}

func (h *SettingsHandler) Get(c *gin.Context) {
	key := c.Param("key")
	if !tunableSettings[key] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return
	}
	value, ok, err := h.settings.Get(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"key": key, "value": nil, "default": true})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": value})
}

// Update applies a new value immediately; the engine reads settings on
// every invocation, so no restart is needed.
func (h *SettingsHandler) Update(c *gin.Context) {
	key := c.Param("key")
	if !tunableSettings[key] {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown setting"})
		return
	}

	var payload struct {
		Value string `json:"value"`
	}
	if err := c.BindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if n, err := strconv.Atoi(payload.Value); err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "value must be a positive integer"})
		return
	}

	if err := h.settings.Set(c.Request.Context(), key, payload.Value); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key, "value": payload.Value})
}
