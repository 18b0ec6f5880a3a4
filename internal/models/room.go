package models

import "time"

// RoomInfo describes a live room for the HTTP API.
type RoomInfo struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	Capacity    int       `json:"capacity"`
	Occupants   int       `json:"occupants"`
	OccupantIDs []string  `json:"occupantIds,omitempty"`
}

// PresenceRecord is the mirrored view of one occupant kept in redis.
type PresenceRecord struct {
	OccupantID string    `msgpack:"id" json:"occupantId"`
	RoomID     string    `msgpack:"room" json:"roomId"`
	JoinedAt   time.Time `msgpack:"joined" json:"joinedAt"`
	Instance   string    `msgpack:"inst" json:"instance"`
}

// Stats summarises registry occupancy.
type Stats struct {
	Rooms     int `json:"rooms"`
	Occupants int `json:"occupants"`
}

// LoginRequest is the operator login body.
type LoginRequest struct {
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued operator token.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
