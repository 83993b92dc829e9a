package baseline

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a capped Redis list per (patient, vital)
// key, matching original_source's analytics service use of Redis for
// shared aggregate state. Append+trim is issued as a single pipelined
// round-trip so the cap is honoured atomically even under concurrent
// writers across processes (§4.3, §9 "In-process vs. remote baseline store").
type RedisStore struct {
	client     *redis.Client
	cap        int
	minSamples int
	keyPrefix  string
}

// NewRedisStore constructs a RedisStore. windowCap/minSamples default the
// same way InMemory does.
func NewRedisStore(client *redis.Client, windowCap, minSamples int) *RedisStore {
	if windowCap <= 0 {
		windowCap = DefaultWindowCap
	}
	if minSamples <= 0 {
		minSamples = DefaultMinSamples
	}
	return &RedisStore{client: client, cap: windowCap, minSamples: minSamples, keyPrefix: "baseline"}
}

func (r *RedisStore) redisKey(patientID, vital string) string {
	return fmt.Sprintf("%s:%s:%s", r.keyPrefix, patientID, vital)
}

func (r *RedisStore) Append(ctx context.Context, patientID, vital string, value float64) error {
	key := r.redisKey(patientID, vital)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, strconv.FormatFloat(value, 'g', -1, 64))
		// Keep only the most recent cap elements: negative indices count
		// from the tail, so this trims the oldest entries off the front.
		pipe.LTrim(ctx, key, int64(-r.cap), -1)
		pipe.Expire(ctx, key, TTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("baseline: redis append %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) Stats(ctx context.Context, patientID, vital string) (Stats, bool, error) {
	key := r.redisKey(patientID, vital)
	raw, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return Stats{}, false, fmt.Errorf("baseline: redis stats %s: %w", key, err)
	}
	if len(raw) < r.minSamples {
		return Stats{}, false, nil
	}
	values := make([]float64, 0, len(raw))
	for _, s := range raw {
		v, perr := strconv.ParseFloat(s, 64)
		if perr != nil {
			continue
		}
		values = append(values, v)
	}
	mean, stddev := sampleMeanStdDev(values)
	return Stats{Mean: mean, StdDev: stddev}, true, nil
}

func (r *RedisStore) Count(ctx context.Context, patientID, vital string) (int, error) {
	key := r.redisKey(patientID, vital)
	n, err := r.client.LLen(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("baseline: redis count %s: %w", key, err)
	}
	return int(n), nil
}

var _ Store = (*RedisStore)(nil)
