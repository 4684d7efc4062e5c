package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Handler contains dependencies shared by the plain endpoints.
type Handler struct {
	metricsHandler http.Handler
}

// NewHandler creates a new handler instance. metricsHandler serves the
// prometheus exposition endpoint.
func NewHandler(metricsHandler http.Handler) *Handler {
	return &Handler{metricsHandler: metricsHandler}
}

func (h *Handler) LivenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
		"time":   time.Now(),
	})
}

func (h *Handler) ReadinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now(),
	})
}

func (h *Handler) MetricsHandler(c *gin.Context) {
	h.metricsHandler.ServeHTTP(c.Writer, c.Request)
}
