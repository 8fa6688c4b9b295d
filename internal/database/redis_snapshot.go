package database

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"asset-manager/config"
	"asset-manager/internal/logging"
	"asset-manager/internal/policy"
)

const (
	snapshotKey = "asset-manager:positions"
	snapshotTTL = 24 * time.Hour
)

// SnapshotRepository mirrors the latest position snapshot to Redis so a
// restarted core can serve dashboards before the first tick refresh.
// When Redis is unavailable it falls back to an in-memory copy and
// keeps probing for recovery on each call.
type SnapshotRepository struct {
	client    *redis.Client
	available atomic.Bool
	logger    *logging.Logger

	memMu  sync.RWMutex
	mem    []policy.Position
	memSet bool
}

// NewSnapshotRepository connects to Redis and probes availability. The
// repository is usable either way; it degrades to memory-only.
func NewSnapshotRepository(cfg config.RedisConfig) *SnapshotRepository {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	repo := &SnapshotRepository{
		client: client,
		logger: logging.WithComponent("snapshot-cache"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		repo.logger.Warn("redis unavailable at startup, using in-memory cache", "error", err)
	} else {
		repo.available.Store(true)
		repo.logger.Info("redis snapshot cache connected", "address", cfg.Address)
	}

	return repo
}

// Save stores the snapshot. Redis failures flip the repository to its
// in-memory fallback without surfacing an error to the tick path.
func (r *SnapshotRepository) Save(ctx context.Context, positions []policy.Position) {
	r.memMu.Lock()
	r.mem = append([]policy.Position(nil), positions...)
	r.memSet = true
	r.memMu.Unlock()

	data, err := json.Marshal(positions)
	if err != nil {
		r.logger.Error("failed to encode snapshot", "error", err)
		return
	}

	if err := r.client.Set(ctx, snapshotKey, data, snapshotTTL).Err(); err != nil {
		if r.available.Swap(false) {
			r.logger.Warn("redis unavailable, snapshot kept in memory", "error", err)
		}
		return
	}
	if !r.available.Swap(true) {
		r.logger.Info("redis snapshot cache recovered")
	}
}

// Load returns the latest snapshot and whether one exists. Redis is
// tried first; the in-memory copy covers outages.
func (r *SnapshotRepository) Load(ctx context.Context) ([]policy.Position, bool) {
	data, err := r.client.Get(ctx, snapshotKey).Bytes()
	switch {
	case err == nil:
		if !r.available.Swap(true) {
			r.logger.Info("redis snapshot cache recovered")
		}
		var positions []policy.Position
		if jsonErr := json.Unmarshal(data, &positions); jsonErr != nil {
			r.logger.Error("failed to decode cached snapshot", "error", jsonErr)
			return r.loadFallback()
		}
		return positions, true
	case errors.Is(err, redis.Nil):
		return r.loadFallback()
	default:
		if r.available.Swap(false) {
			r.logger.Warn("redis unavailable, reading in-memory snapshot", "error", err)
		}
		return r.loadFallback()
	}
}

// Close releases the Redis connection.
func (r *SnapshotRepository) Close() error {
	return r.client.Close()
}

func (r *SnapshotRepository) loadFallback() ([]policy.Position, bool) {
	r.memMu.RLock()
	defer r.memMu.RUnlock()
	if !r.memSet {
		return nil, false
	}
	return append([]policy.Position(nil), r.mem...), true
}
