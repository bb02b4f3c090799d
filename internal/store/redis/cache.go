package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"signalperf/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

const (
	defaultReportTTL = 24 * time.Hour
	metaRunID        = "_run_id"
	metaError        = "_error"
	metaUpdated      = "_updated"
	reportChannel    = "pub:report:"
)

// CacheConfig configures the Redis report cache.
type CacheConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	TTL      time.Duration // report key lifetime, default 24h
}

// Cache keeps the latest report per run key in a Redis hash and announces
// every update on a Pub/Sub channel.
//
//	report:{symbol}:{tf}s:{rule}  HASH  metric → value, plus _run_id/_error/_updated
//	reports:{symbol}              SET   report keys for the symbol
//	pub:report:{symbol}           PUBSUB JSON run record
type Cache struct {
	client *goredis.Client
	ttl    time.Duration

	// OnWrite is called with the duration of every successful Put.
	OnWrite func(d time.Duration)
}

// Client returns the underlying Redis client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New creates a new Redis report cache and pings the server.
func New(cfg CacheConfig) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client without pinging it.
func NewWithClient(client *goredis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultReportTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// Put stores the report hash, indexes its key and publishes the record in
// one pipeline.
func (c *Cache) Put(ctx context.Context, rec *model.RunRecord) error {
	key := rec.CacheKey()
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record %s: %w", key, err)
	}

	start := time.Now()
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, reportFields(rec))
	pipe.Expire(ctx, key, c.ttl)
	pipe.SAdd(ctx, indexKey(rec.Symbol), key)
	pipe.Publish(ctx, reportChannel+rec.Symbol, string(payload))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis put %s: %w", key, err)
	}
	if c.OnWrite != nil {
		c.OnWrite(time.Since(start))
	}
	return nil
}

// Get loads the cached report for key. Returns nil, nil when absent.
func (c *Cache) Get(ctx context.Context, key string) (model.Report, error) {
	fields, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return parseReport(fields)
}

// Keys lists the cached report keys for symbol. Expired hashes are dropped
// from the index as they are found.
func (c *Cache) Keys(ctx context.Context, symbol string) ([]string, error) {
	members, err := c.client.SMembers(ctx, indexKey(symbol)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis SMEMBERS %s: %w", indexKey(symbol), err)
	}

	live := members[:0]
	for _, k := range members {
		n, err := c.client.Exists(ctx, k).Result()
		if err != nil {
			return nil, fmt.Errorf("redis EXISTS %s: %w", k, err)
		}
		if n == 0 {
			c.client.SRem(ctx, indexKey(symbol), k)
			continue
		}
		live = append(live, k)
	}
	return live, nil
}

// Subscribe forwards run records published for any symbol into out.
// Slow consumers lose messages rather than blocking the subscription.
// Blocks until ctx is cancelled.
func (c *Cache) Subscribe(ctx context.Context, out chan<- *model.RunRecord) error {
	pubsub := c.client.PSubscribe(ctx, reportChannel+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rec model.RunRecord
			if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
				log.Printf("[redis] bad report payload on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case out <- &rec:
			default:
			}
		}
	}
}

// Close closes the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func indexKey(symbol string) string { return "reports:" + symbol }

// reportFields flattens a run record into hash fields.
func reportFields(rec *model.RunRecord) map[string]interface{} {
	fields := make(map[string]interface{}, len(rec.Report)+3)
	for k, v := range rec.Report {
		fields[k] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	fields[metaRunID] = rec.RunID
	fields[metaUpdated] = strconv.FormatInt(time.Now().Unix(), 10)
	if rec.Err != "" {
		fields[metaError] = rec.Err
	}
	return fields
}

// parseReport rebuilds the metric map, skipping metadata fields.
func parseReport(fields map[string]string) (model.Report, error) {
	r := make(model.Report, len(fields))
	for k, v := range fields {
		if strings.HasPrefix(k, "_") {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("report field %s=%q: %w", k, v, err)
		}
		r[k] = f
	}
	return r, nil
}
