package mirror

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxEntryAge bounds how stale a mirrored entry may be before reads drop it.
const maxEntryAge = 6 * time.Hour

// RedisSink keeps the latest reading per participant in a hash per retreat
// and publishes every update on a channel so live consumers can subscribe.
type RedisSink struct {
	redis *redis.Client
}

func NewRedisSink(client *redis.Client) *RedisSink {
	return &RedisSink{redis: client}
}

type mirrorEntry struct {
	ParticipantID int64 `json:"participant_id"`
	RetreatID     int64 `json:"retreat_id"`
	Reading
	MirroredAt time.Time `json:"mirrored_at"`
}

func (s *RedisSink) Publish(ctx context.Context, retreatID, participantID int64, r Reading) error {
	payload, err := json.Marshal(mirrorEntry{
		ParticipantID: participantID,
		RetreatID:     retreatID,
		Reading:       r,
		MirroredAt:    time.Now(),
	})
	if err != nil {
		return err
	}

	key := LatestKey(retreatID)
	if err := s.redis.HSet(ctx, key, strconv.FormatInt(participantID, 10), payload).Err(); err != nil {
		return err
	}
	if err := s.redis.Expire(ctx, key, maxEntryAge).Err(); err != nil {
		return err
	}
	return s.redis.Publish(ctx, Channel(retreatID), payload).Err()
}

// Latest returns the mirrored entries for a retreat. Entries older than
// maxEntryAge are removed on the way out.
func (s *RedisSink) Latest(ctx context.Context, retreatID int64) ([]Reading, error) {
	raw, err := s.redis.HGetAll(ctx, LatestKey(retreatID)).Result()
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-maxEntryAge)
	var out []Reading
	for field, value := range raw {
		var entry mirrorEntry
		if err := json.Unmarshal([]byte(value), &entry); err != nil || entry.MirroredAt.Before(cutoff) {
			_ = s.redis.HDel(ctx, LatestKey(retreatID), field).Err()
			continue
		}
		out = append(out, entry.Reading)
	}
	return out, nil
}

func LatestKey(retreatID int64) string {
	return "mirror:retreat:" + strconv.FormatInt(retreatID, 10) + ":latest"
}

// Channel names the pub/sub channel live consumers subscribe to.
func Channel(retreatID int64) string {
	return "mirror:retreat:" + strconv.FormatInt(retreatID, 10) + ":updates"
}
