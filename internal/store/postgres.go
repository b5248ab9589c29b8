package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

const maxTopLimit = 100

// rewardRepo implements RewardRepository.
type rewardRepo struct {
	pool DB
}

func (r *rewardRepo) Get(ctx context.Context, username string) (*Reward, error) {
	defer observeDB(ctx, "rewards.get")()
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidInput
	}

	const q = `SELECT username, points, updated_at FROM user_rewards WHERE username=$1`
	var rw Reward
	if err := r.pool.QueryRow(ctx, q, username).Scan(&rw.Username, &rw.Points, &rw.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reward %s: %w", username, err)
	}
	return &rw, nil
}

func (r *rewardRepo) Add(ctx context.Context, username string, delta int64) (*Reward, error) {
	defer observeDB(ctx, "rewards.add")()
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, ErrInvalidInput
	}

	const q = `INSERT INTO user_rewards (username, points) VALUES ($1, $2)
ON CONFLICT (username) DO UPDATE SET points = user_rewards.points + EXCLUDED.points, updated_at = NOW()
RETURNING username, points, updated_at`
	var rw Reward
	if err := r.pool.QueryRow(ctx, q, username, delta).Scan(&rw.Username, &rw.Points, &rw.UpdatedAt); err != nil {
		return nil, fmt.Errorf("add reward %s: %w", username, err)
	}
	return &rw, nil
}

func (r *rewardRepo) Top(ctx context.Context, limit int) ([]Reward, error) {
	defer observeDB(ctx, "rewards.top")()
	if limit <= 0 || limit > maxTopLimit {
		limit = maxTopLimit
	}

	const q = `SELECT username, points, updated_at FROM user_rewards ORDER BY points DESC, username ASC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	defer rows.Close()

	out := []Reward{}
	for rows.Next() {
		var rw Reward
		if err := rows.Scan(&rw.Username, &rw.Points, &rw.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reward: %w", err)
		}
		out = append(out, rw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	return out, nil
}

// occupancyRepo implements OccupancyRepository.
type occupancyRepo struct {
	pool DB
}

func (r *occupancyRepo) Get(ctx context.Context, roomID int) (*RoomStatus, error) {
	defer observeDB(ctx, "occupancy.get")()

	const q = `SELECT room_id, occupancy, updated_at FROM room_status WHERE room_id=$1`
	status, err := scanStatus(r.pool.QueryRow(ctx, q, roomID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &RoomStatus{RoomID: roomID}, nil
		}
		return nil, fmt.Errorf("get occupancy for room %d: %w", roomID, err)
	}
	return status, nil
}

func (r *occupancyRepo) Set(ctx context.Context, roomID, occupancy int) (*RoomStatus, error) {
	defer observeDB(ctx, "occupancy.set")()
	if occupancy < 0 {
		return nil, ErrInvalidInput
	}

	const q = `INSERT INTO room_status (room_id, occupancy) VALUES ($1, $2)
ON CONFLICT (room_id) DO UPDATE SET occupancy = EXCLUDED.occupancy, updated_at = NOW()
RETURNING room_id, occupancy, updated_at`
	status, err := scanStatus(r.pool.QueryRow(ctx, q, roomID, occupancy))
	if err != nil {
		return nil, fmt.Errorf("set occupancy for room %d: %w", roomID, err)
	}
	return status, nil
}

func (r *occupancyRepo) Adjust(ctx context.Context, roomID, delta int) (*RoomStatus, error) {
	defer observeDB(ctx, "occupancy.adjust")()

	const q = `INSERT INTO room_status (room_id, occupancy) VALUES ($1, GREATEST($2::integer, 0))
ON CONFLICT (room_id) DO UPDATE SET occupancy = GREATEST(room_status.occupancy + $2::integer, 0), updated_at = NOW()
RETURNING room_id, occupancy, updated_at`
	status, err := scanStatus(r.pool.QueryRow(ctx, q, roomID, delta))
	if err != nil {
		return nil, fmt.Errorf("adjust occupancy for room %d: %w", roomID, err)
	}
	return status, nil
}

func (r *occupancyRepo) List(ctx context.Context) ([]RoomStatus, error) {
	defer observeDB(ctx, "occupancy.list")()

	const q = `SELECT room_id, occupancy, updated_at FROM room_status ORDER BY room_id`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list occupancy: %w", err)
	}
	defer rows.Close()

	out := []RoomStatus{}
	for rows.Next() {
		status, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("scan occupancy: %w", err)
		}
		out = append(out, *status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list occupancy: %w", err)
	}
	return out, nil
}

func scanStatus(row pgx.Row) (*RoomStatus, error) {
	var status RoomStatus
	var updated time.Time
	if err := row.Scan(&status.RoomID, &status.Occupancy, &updated); err != nil {
		return nil, err
	}
	status.UpdatedAt = &updated
	return &status, nil
}
