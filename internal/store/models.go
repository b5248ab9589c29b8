package store

import "time"

// Reward is a user's accumulated points.
type Reward struct {
	Username  string    `json:"username"`
	Points    int64     `json:"points"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RoomStatus is the reported head count of a room.
type RoomStatus struct {
	RoomID    int        `json:"room_id"`
	Occupancy int        `json:"occupancy"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}
