// Package redis mirrors room membership into Redis so operators can inspect
// it. The in-memory registry stays authoritative; the mirror is best effort.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/mossy-p/peercall/config"
	"github.com/mossy-p/peercall/internal/models"
	"github.com/mossy-p/peercall/internal/registry"
)

const (
	roomsKey  = "rooms"
	recordTTL = 24 * time.Hour
	opTimeout = 2 * time.Second
	keyPrefix = "room:"
	keySuffix = ":occupants"
)

func occupantsKey(roomID string) string { return keyPrefix + roomID + keySuffix }

// removeScript drops occupants from a room hash and unlists the room once the
// hash is empty. It runs atomically, so a concurrent join cannot slip in
// between the length check and the unlisting.
//
// KEYS[1] occupants hash, KEYS[2] rooms set, ARGV[1] room id, ARGV[2:] occupant ids.
var removeScript = redis.NewScript(`
redis.call('HDEL', KEYS[1], unpack(ARGV, 2))
if redis.call('HLEN', KEYS[1]) == 0 then
	redis.call('SREM', KEYS[2], ARGV[1])
end
return redis.call('HLEN', KEYS[1])
`)

// Presence writes membership changes to Redis. It implements
// registry.Observer.
type Presence struct {
	client   *redis.Client
	instance string
	logger   *slog.Logger
}

var _ registry.Observer = (*Presence)(nil)

// Connect initializes the Redis client and checks the connection.
func Connect(ctx context.Context, cfg config.RedisConfig, instance string, logger *slog.Logger) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Presence{
		client:   client,
		instance: instance,
		logger:   logger.With("component", "presence"),
	}, nil
}

// Close closes the Redis connection.
func (p *Presence) Close() error {
	return p.client.Close()
}

func (p *Presence) OccupantAdmitted(m registry.Membership) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	rec := models.PresenceRecord{
		OccupantID: m.OccupantID,
		RoomID:     m.RoomID,
		JoinedAt:   m.JoinedAt.UTC(),
		Instance:   p.instance,
	}
	data, err := msgpack.Marshal(&rec)
	if err != nil {
		p.logger.Error("failed to encode presence record", "room", m.RoomID, "err", err)
		return
	}

	key := occupantsKey(m.RoomID)
	_, err = p.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, m.OccupantID, data)
		pipe.Expire(ctx, key, recordTTL)
		pipe.SAdd(ctx, roomsKey, m.RoomID)
		return nil
	})
	if err != nil {
		p.logger.Warn("failed to mirror join", "room", m.RoomID, "occupant", m.OccupantID, "err", err)
	}
}

func (p *Presence) OccupantLeft(m registry.Membership) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	if err := p.remove(ctx, m.RoomID, m.OccupantID); err != nil {
		p.logger.Warn("failed to mirror leave", "room", m.RoomID, "occupant", m.OccupantID, "err", err)
	}
}

func (p *Presence) remove(ctx context.Context, roomID string, occupantIDs ...string) error {
	if len(occupantIDs) == 0 {
		return nil
	}
	args := make([]interface{}, 0, len(occupantIDs)+1)
	args = append(args, roomID)
	for _, id := range occupantIDs {
		args = append(args, id)
	}
	return removeScript.Run(ctx, p.client, []string{occupantsKey(roomID), roomsKey}, args...).Err()
}

// Occupants returns the mirrored records for a room ordered by join time.
func (p *Presence) Occupants(ctx context.Context, roomID string) ([]models.PresenceRecord, error) {
	raw, err := p.client.HGetAll(ctx, occupantsKey(roomID)).Result()
	if err != nil {
		return nil, fmt.Errorf("read presence for %s: %w", roomID, err)
	}

	records := make([]models.PresenceRecord, 0, len(raw))
	for id, data := range raw {
		var rec models.PresenceRecord
		if err := msgpack.Unmarshal([]byte(data), &rec); err != nil {
			p.logger.Warn("skipping undecodable presence record", "room", roomID, "occupant", id, "err", err)
			continue
		}
		records = append(records, rec)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].JoinedAt.Before(records[j].JoinedAt) })
	return records, nil
}

// Reset removes records written by this instance in an earlier run, so a
// restarted server does not advertise occupants it no longer holds.
func (p *Presence) Reset(ctx context.Context) (int, error) {
	rooms, err := p.client.SMembers(ctx, roomsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("list mirrored rooms: %w", err)
	}

	removed := 0
	for _, roomID := range rooms {
		records, err := p.Occupants(ctx, roomID)
		if err != nil {
			return removed, err
		}
		var stale []string
		for _, rec := range records {
			if rec.Instance == p.instance {
				stale = append(stale, rec.OccupantID)
			}
		}
		if len(records) == 0 {
			if err := p.client.SRem(ctx, roomsKey, roomID).Err(); err != nil {
				return removed, err
			}
			continue
		}
		if len(stale) == 0 {
			continue
		}
		if err := p.remove(ctx, roomID, stale...); err != nil {
			return removed, fmt.Errorf("reset %s: %w", roomID, err)
		}
		removed += len(stale)
	}
	return removed, nil
}
