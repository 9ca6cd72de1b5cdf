package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giygas/ddi-engine/entities"
	"github.com/giygas/ddi-engine/interfaces"
	"github.com/redis/go-redis/v9"
)

// Compile-time check to ensure RedisBackend implements RemoteCache
var _ interfaces.RemoteCache = (*RedisBackend)(nil)

// DefaultKeyPrefix namespaces interaction records in a shared Redis
const DefaultKeyPrefix = "ddi:interaction:"

// persistedRecord is the durable shape of a predicted record
type persistedRecord struct {
	PairKey     string                `json:"pair_key"`
	DrugIDs     [2]string             `json:"drug_ids"`
	DrugNames   [2]string             `json:"drug_names"`
	Source      entities.Source       `json:"source"`
	Severity    entities.Severity     `json:"severity"`
	Description string                `json:"description"`
	Labels      []entities.LabelScore `json:"labels_json"`
	Threshold   float64               `json:"threshold"`
	ExpiresAt   time.Time             `json:"expires_at"`
	ComputedAt  time.Time             `json:"computed_at"`
}

func encodeRecord(rec entities.InteractionRecord) (string, error) {
	if rec.Predicted == nil {
		return "", fmt.Errorf("only predicted records are persisted")
	}
	p := persistedRecord{
		PairKey:     rec.Key.String(),
		DrugIDs:     [2]string{rec.Drugs[0].ID, rec.Drugs[1].ID},
		DrugNames:   [2]string{rec.Drugs[0].Name, rec.Drugs[1].Name},
		Source:      rec.Source,
		Severity:    rec.Severity,
		Description: rec.Description,
		Labels:      rec.Predicted.Labels,
		Threshold:   rec.Predicted.Threshold,
		ExpiresAt:   rec.Predicted.ExpiresAt,
		ComputedAt:  rec.ComputedAt,
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeRecord(data []byte) (*entities.InteractionRecord, error) {
	var p persistedRecord
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if p.Source != entities.SourcePredicted {
		return nil, fmt.Errorf("unexpected source %q", p.Source)
	}
	return &entities.InteractionRecord{
		Key: entities.InteractionKey(p.PairKey),
		Drugs: [2]entities.DrugRef{
			{ID: p.DrugIDs[0], Name: p.DrugNames[0]},
			{ID: p.DrugIDs[1], Name: p.DrugNames[1]},
		},
		Source:      p.Source,
		Severity:    p.Severity,
		Description: p.Description,
		ComputedAt:  p.ComputedAt,
		Predicted: &entities.PredictedEvidence{
			Labels:    p.Labels,
			Threshold: p.Threshold,
			ExpiresAt: p.ExpiresAt,
		},
	}, nil
}

// RedisBackend shares predicted records between engine replicas so a pair
// is inferred once per TTL across the fleet.
type RedisBackend struct {
	client *redis.Client
	prefix string
}

// NewRedisClient builds a client from a redis:// url
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return redis.NewClient(opts), nil
}

func NewRedisBackend(client *redis.Client, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

func (r *RedisBackend) key(key entities.InteractionKey) string {
	return r.prefix + key.String()
}

// Get returns nil, nil on a miss
func (r *RedisBackend) Get(ctx context.Context, key entities.InteractionKey) (*entities.InteractionRecord, error) {
	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &entities.CacheBackendError{Op: "get", Err: err}
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, &entities.CacheBackendError{Op: "decode", Err: err}
	}
	if rec.Key != key {
		return nil, &entities.CacheBackendError{Op: "decode", Err: fmt.Errorf("record key %s stored under %s", rec.Key, key)}
	}
	return rec, nil
}

// Put stores a predicted record until it expires. Curated records and
// records with no time left are skipped.
func (r *RedisBackend) Put(ctx context.Context, rec entities.InteractionRecord, ttl time.Duration) error {
	if rec.Source != entities.SourcePredicted || ttl <= 0 {
		return nil
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return &entities.CacheBackendError{Op: "encode", Err: err}
	}
	if err := r.client.Set(ctx, r.key(rec.Key), data, ttl).Err(); err != nil {
		return &entities.CacheBackendError{Op: "put", Err: err}
	}
	return nil
}

func (r *RedisBackend) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return &entities.CacheBackendError{Op: "ping", Err: err}
	}
	return nil
}

func (r *RedisBackend) Name() string {
	return "redis"
}

// Close releases the client connections
func (r *RedisBackend) Close() error {
	return r.client.Close()
}
