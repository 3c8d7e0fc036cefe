// Package mirror forwards accepted location readings to an external live
// mirror. Forwarding is best effort: the primary write path never waits on
// or fails because of the mirror.
package mirror

import (
	"context"
	"log"
	"time"

	"backend-caravan/internal/config"

	"github.com/redis/go-redis/v9"
)

// Reading is one accepted location sample.
type Reading struct {
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	AccuracyM  *float64  `json:"accuracy_m,omitempty"`
	SpeedMps   *float64  `json:"speed_mps,omitempty"`
	Heading    *float64  `json:"heading,omitempty"`
	AltitudeM  *float64  `json:"altitude_m,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Sink delivers a reading to one mirror transport.
type Sink interface {
	Publish(ctx context.Context, retreatID, participantID int64, r Reading) error
}

type Mirror struct {
	sink    Sink
	timeout time.Duration
}

// New builds the configured mirror, nil when mirroring is disabled. A nil
// Mirror is valid and forwards nothing.
func New(cfg config.Config, redisClient *redis.Client) *Mirror {
	if !cfg.MirrorEnabled {
		return nil
	}

	var sink Sink
	switch cfg.MirrorTransport {
	case "cli":
		if cfg.MirrorDatabase == "" {
			log.Printf("mirror: cli transport configured without a target database, mirroring disabled")
			return nil
		}
		sink = NewExecSink(cfg)
	default:
		if redisClient == nil {
			log.Printf("mirror: redis transport configured but redis is not connected, mirroring disabled")
			return nil
		}
		sink = NewRedisSink(redisClient)
	}

	timeout := time.Duration(cfg.MirrorTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Mirror{sink: sink, timeout: timeout}
}

func NewWithSink(sink Sink, timeout time.Duration) *Mirror {
	return &Mirror{sink: sink, timeout: timeout}
}

// Forward hands the reading to the sink on its own goroutine. Failures are
// logged and swallowed.
func (m *Mirror) Forward(retreatID, participantID int64, r Reading) {
	if m == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		if err := m.sink.Publish(ctx, retreatID, participantID, r); err != nil {
			log.Printf("mirror publish error (participant %d): %v", participantID, err)
		}
	}()
}
