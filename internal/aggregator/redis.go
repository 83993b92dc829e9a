package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vitalstream/telemetry-pipeline/internal/vitals"
)

// RedisStore mirrors original_source's analytics redis_client.py key
// patterns exactly: a ZSET per (patient, vital, window) scored by event
// time, a JSON snapshot key for last-known vitals, and a per-minute counter
// key per severity. This lets an operator inspect the same key shapes the
// original service produced.
type RedisStore struct {
	client *redis.Client

	window15m time.Duration
	window1h  time.Duration
	alertTTL  time.Duration
}

// NewRedisStore constructs a RedisStore. A zero window15m/window1h/alertTTL
// falls back to the §6 defaults, mirroring baseline.NewRedisStore's
// defaulting convention.
func NewRedisStore(client *redis.Client, window15m, window1h, alertTTL time.Duration) *RedisStore {
	if window15m <= 0 {
		window15m = DefaultWindow15Min
	}
	if window1h <= 0 {
		window1h = DefaultWindow1Hour
	}
	if alertTTL <= 0 {
		alertTTL = DefaultAlertCounterTTL
	}
	return &RedisStore{client: client, window15m: window15m, window1h: window1h, alertTTL: alertTTL}
}

func lastVitalsKey(patientID string) string {
	return fmt.Sprintf("patient:%s:last_vitals", patientID)
}

func rollingKeyRedis(patientID, vital string, window time.Duration) string {
	return fmt.Sprintf("patient:%s:%s:%ds", patientID, vital, int(window.Seconds()))
}

func alertCounterKey(severity string, minute time.Time) string {
	return fmt.Sprintf("alerts:global:%s:%s", severity, minute.UTC().Format(time.RFC3339))
}

func (r *RedisStore) RecordScored(ctx context.Context, patientID string, readings map[string]vitals.Reading, eventTime time.Time) error {
	for _, vital := range TrackedVitals {
		reading, ok := readings[vital]
		if !ok {
			continue
		}
		for _, win := range []time.Duration{r.window15m, r.window1h} {
			key := rollingKeyRedis(patientID, vital, win)
			score := float64(eventTime.Unix())
			member := strconv.FormatFloat(reading.Value, 'g', -1, 64) + ":" + strconv.FormatInt(eventTime.UnixNano(), 10)
			cutoff := float64(eventTime.Add(-win).Unix())
			_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.ZAdd(ctx, key, redis.Z{Score: score, Member: member})
				pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatFloat(cutoff, 'f', -1, 64))
				pipe.Expire(ctx, key, win+60*time.Second)
				return nil
			})
			if err != nil {
				return fmt.Errorf("aggregator: redis record scored %s: %w", key, err)
			}
		}
	}

	snapshot := struct {
		Vitals    map[string]vitals.Reading `json:"vitals"`
		UpdatedAt string                    `json:"updated_at"`
	}{Vitals: readings, UpdatedAt: eventTime.UTC().Format(time.RFC3339)}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("aggregator: marshal last_vitals for %s: %w", patientID, err)
	}
	if err := r.client.Set(ctx, lastVitalsKey(patientID), payload, 0).Err(); err != nil {
		return fmt.Errorf("aggregator: redis set last_vitals %s: %w", patientID, err)
	}
	return nil
}

func (r *RedisStore) RecordAlert(ctx context.Context, severity string, eventTime time.Time) error {
	key := alertCounterKey(severity, minuteBucket(eventTime))
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, r.alertTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("aggregator: redis record alert %s: %w", key, err)
	}
	return nil
}

func (r *RedisStore) PatientSummary(ctx context.Context, patientID string) (PatientSummary, error) {
	var snapshot struct {
		Vitals    map[string]vitals.Reading `json:"vitals"`
		UpdatedAt string                    `json:"updated_at"`
	}
	raw, err := r.client.Get(ctx, lastVitalsKey(patientID)).Bytes()
	if err != nil && err != redis.Nil {
		return PatientSummary{}, fmt.Errorf("aggregator: redis get last_vitals %s: %w", patientID, err)
	}
	if err == nil {
		if uerr := json.Unmarshal(raw, &snapshot); uerr != nil {
			return PatientSummary{}, fmt.Errorf("aggregator: unmarshal last_vitals %s: %w", patientID, uerr)
		}
	}

	rollingAverages := make(map[string]map[string]Stats, len(TrackedVitals))
	for _, vital := range TrackedVitals {
		stats15, err := r.windowStats(ctx, patientID, vital, r.window15m)
		if err != nil {
			return PatientSummary{}, err
		}
		stats1h, err := r.windowStats(ctx, patientID, vital, r.window1h)
		if err != nil {
			return PatientSummary{}, err
		}
		rollingAverages[vital] = map[string]Stats{"15m": stats15, "1h": stats1h}
	}

	return PatientSummary{
		LastVitals:      snapshot.Vitals,
		UpdatedAt:       snapshot.UpdatedAt,
		RollingAverages: rollingAverages,
	}, nil
}

func (r *RedisStore) windowStats(ctx context.Context, patientID, vital string, window time.Duration) (Stats, error) {
	key := rollingKeyRedis(patientID, vital, window)
	members, err := r.client.ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("aggregator: redis zrange %s: %w", key, err)
	}
	values := make([]float64, 0, len(members))
	for _, member := range members {
		v, perr := parseMemberValue(member)
		if perr == nil {
			values = append(values, v)
		}
	}
	return computeStats(values), nil
}

// parseMemberValue strips the ":<nanos>" uniqueness suffix appended to each
// ZSET member so repeated identical readings within the same window don't
// collide and get silently deduplicated by Redis.
func parseMemberValue(member string) (float64, error) {
	for i := len(member) - 1; i >= 0; i-- {
		if member[i] == ':' {
			return strconv.ParseFloat(member[:i], 64)
		}
	}
	return strconv.ParseFloat(member, 64)
}

func (r *RedisStore) GlobalAlerts(ctx context.Context, now time.Time) (GlobalAlerts, error) {
	current := minuteBucket(now)
	previous := current.Add(-time.Minute)

	counts := make(map[string]int, len(Severities))
	for _, sev := range Severities {
		c, err := r.readCounter(ctx, alertCounterKey(sev, current))
		if err != nil {
			return GlobalAlerts{}, err
		}
		if c == 0 {
			c, err = r.readCounter(ctx, alertCounterKey(sev, previous))
			if err != nil {
				return GlobalAlerts{}, err
			}
		}
		counts[sev] = c
	}
	return GlobalAlerts{AlertsPerMinute: counts, Timestamp: now.UTC().Format(time.RFC3339)}, nil
}

func (r *RedisStore) RecentAlerts(ctx context.Context, now time.Time, windowMinutes int) (map[string]int, error) {
	base := minuteBucket(now)
	totals := make(map[string]int, len(Severities))
	for _, sev := range Severities {
		total := 0
		for i := 0; i < windowMinutes; i++ {
			c, err := r.readCounter(ctx, alertCounterKey(sev, base.Add(-time.Duration(i)*time.Minute)))
			if err != nil {
				return nil, err
			}
			total += c
		}
		totals[sev] = total
	}
	return totals, nil
}

func (r *RedisStore) readCounter(ctx context.Context, key string) (int, error) {
	v, err := r.client.Get(ctx, key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("aggregator: redis get %s: %w", key, err)
	}
	return v, nil
}

var _ Store = (*RedisStore)(nil)
