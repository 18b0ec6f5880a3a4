package handlers

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/peercall/internal/middleware"
	"github.com/mossy-p/peercall/internal/models"
)

const operatorTokenTTL = 24 * time.Hour

// Login exchanges the operator password for a token accepted by the admin
// API. Participants never log in; rooms are open to anyone who knows the id.
func (h *Handler) Login(c *gin.Context) {
	if h.cfg.AdminPassword == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Operator login disabled"})
		return
	}

	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	if subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.cfg.AdminPassword)) != 1 {
		h.logger.Warn("operator login rejected", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, expires, err := middleware.IssueOperatorToken(h.cfg.JWTSecret, operatorTokenTTL)
	if err != nil {
		h.logger.Error("failed to issue operator token", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{Token: token, ExpiresAt: expires})
}
