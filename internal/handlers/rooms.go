package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mossy-p/peercall/internal/models"
)

// Health reports liveness and current occupancy.
func (h *Handler) Health(c *gin.Context) {
	stats := h.registry.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"rooms":     stats.Rooms,
		"occupants": stats.Occupants,
	})
}

// GetRoom reports how full a room is. Occupant ids are not disclosed.
func (h *Handler) GetRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	info, ok := h.registry.Room(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}
	info.OccupantIDs = nil
	c.JSON(http.StatusOK, info)
}

// ListRooms returns every live room (operator only).
func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.registry.Snapshot()})
}

// DeleteRoom evicts every occupant of a room (operator only).
func (h *Handler) DeleteRoom(c *gin.Context) {
	roomID := c.Param("roomId")

	n := h.registry.Evict(roomID)
	if n == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Room not found"})
		return
	}

	h.logger.Info("room deleted by operator", "room", roomID, "evicted", n)
	c.JSON(http.StatusOK, gin.H{"message": "Room deleted", "evicted": n})
}

// GetPresence returns the redis mirror of a room (operator only).
func (h *Handler) GetPresence(c *gin.Context) {
	if h.presence == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Presence mirror disabled"})
		return
	}

	roomID := c.Param("roomId")
	records, err := h.presence.Occupants(c.Request.Context(), roomID)
	if err != nil {
		h.logger.Error("failed to read presence", "room", roomID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read presence"})
		return
	}
	if records == nil {
		records = []models.PresenceRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"room": roomID, "occupants": records})
}
