package store

import "context"

// RewardRepository tracks points per username.
type RewardRepository interface {
	Get(ctx context.Context, username string) (*Reward, error)
	// Add creates the user on first use; delta may be negative.
	Add(ctx context.Context, username string, delta int64) (*Reward, error)
	Top(ctx context.Context, limit int) ([]Reward, error)
}

// OccupancyRepository tracks how many people are in each room.
type OccupancyRepository interface {
	// Get reports zero occupancy for rooms without a record.
	Get(ctx context.Context, roomID int) (*RoomStatus, error)
	Set(ctx context.Context, roomID, occupancy int) (*RoomStatus, error)
	// Adjust adds delta, never going below zero.
	Adjust(ctx context.Context, roomID, delta int) (*RoomStatus, error)
	List(ctx context.Context) ([]RoomStatus, error)
}
