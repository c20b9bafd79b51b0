package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wfunc/minigame/models"
)

const snapshotKeyPrefix = "minigame:arena:"

// RedisSnapshots caches arena snapshots in redis as JSON. Entries expire after
// ttl so arenas of a crashed process do not linger.
type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshots connects to redis and checks the connection.
func NewRedisSnapshots(addr, password string, db int, ttl time.Duration) (*RedisSnapshots, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisSnapshotsWithClient(client, ttl), nil
}

// NewRedisSnapshotsWithClient uses an existing client.
func NewRedisSnapshotsWithClient(client *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

func snapshotKey(arenaID string) string {
	return snapshotKeyPrefix + arenaID
}

// SaveSnapshot stores s unless a snapshot with a higher sequence number is
// already cached.
func (r *RedisSnapshots) SaveSnapshot(ctx context.Context, s models.ArenaSnapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	key := snapshotKey(s.ArenaID)

	return r.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if err == nil {
			var cached models.ArenaSnapshot
			if json.Unmarshal(current, &cached) == nil && cached.Seq >= s.Seq {
				return nil
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)
}

func (r *RedisSnapshots) LoadSnapshot(ctx context.Context, arenaID string) (models.ArenaSnapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(arenaID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.ArenaSnapshot{}, ErrRecordNotFound
	}
	if err != nil {
		return models.ArenaSnapshot{}, err
	}
	var s models.ArenaSnapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return models.ArenaSnapshot{}, err
	}
	return s, nil
}

func (r *RedisSnapshots) DeleteSnapshot(ctx context.Context, arenaID string) error {
	return r.client.Del(ctx, snapshotKey(arenaID)).Err()
}

func (r *RedisSnapshots) Close() error {
	return r.client.Close()
}
