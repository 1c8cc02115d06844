package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/akylbek/payment-system/intake-gateway/internal/models"
	"github.com/akylbek/payment-system/intake-gateway/internal/pool"
)

const (
	paymentsLogKey = "payments_log"
	processedTTL   = time.Hour
)

var ErrUnknownProcessor = errors.New("unknown processor")

// NewRedisConnPool opens size dedicated connections on client. Every
// connection is pinged so a broken store fails startup.
func NewRedisConnPool(ctx context.Context, client *redis.Client, size int) (*pool.Pool[*redis.Conn], error) {
	return pool.New(size, func() (*redis.Conn, error) {
		conn := client.Conn()
		if err := conn.Ping(ctx).Err(); err != nil {
			_ = conn.Close()
			return nil, err
		}
		return conn, nil
	}, func(conn *redis.Conn) error {
		return conn.Close()
	})
}

// RedisPaymentStore keeps markers, the payments log and per-processor
// counters in Redis.
type RedisPaymentStore struct {
	pool *pool.Pool[*redis.Conn]
}

func NewRedisPaymentStore(p *pool.Pool[*redis.Conn]) *RedisPaymentStore {
	return &RedisPaymentStore{pool: p}
}

func processedKey(correlationID string) string {
	return fmt.Sprintf("processed:%s", correlationID)
}

func totalRequestsKey(p models.Processor) string {
	return fmt.Sprintf("totalRequests:%s", p)
}

func totalAmountKey(p models.Processor) string {
	return fmt.Sprintf("totalAmount:%s", p)
}

// Save claims the processed marker with SETNX and, when it wins, applies the
// marker TTL, the log entry and the counters in one MULTI/EXEC. A failure
// after the marker is claimed leaves the marker in place.
func (s *RedisPaymentStore) Save(ctx context.Context, correlationID string, processor models.Processor, amount decimal.Decimal, at time.Time) (bool, error) {
	if processor != models.ProcessorDefault && processor != models.ProcessorFallback {
		return false, fmt.Errorf("%w: %q", ErrUnknownProcessor, processor)
	}

	member, err := json.Marshal(models.PaymentRecord{
		Processor:     processor,
		CorrelationID: correlationID,
		Amount:        amount,
		Timestamp:     at.UTC(),
	})
	if err != nil {
		return false, err
	}

	return pool.Do(s.pool, func(conn *redis.Conn) (bool, error) {
		key := processedKey(correlationID)

		claimed, err := conn.SetNX(ctx, key, 1, 0).Result()
		if err != nil {
			return false, fmt.Errorf("claim processed marker: %w", err)
		}
		if !claimed {
			return false, nil
		}

		_, err = conn.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Expire(ctx, key, processedTTL)
			pipe.ZAdd(ctx, paymentsLogKey, redis.Z{Score: models.Score(at), Member: string(member)})
			pipe.Incr(ctx, totalRequestsKey(processor))
			pipe.IncrByFloat(ctx, totalAmountKey(processor), amount.InexactFloat64())
			return nil
		})
		if err != nil {
			return false, fmt.Errorf("record payment %s: %w", correlationID, err)
		}
		return true, nil
	})
}

func (s *RedisPaymentStore) Summary(ctx context.Context, r models.TimeRange) (models.Summary, error) {
	if r.Filtered {
		return s.filteredSummary(ctx, r)
	}

	return pool.Do(s.pool, func(conn *redis.Conn) (models.Summary, error) {
		var summary models.Summary

		keys := make([]string, 0, 2*len(models.Processors))
		for _, p := range models.Processors {
			keys = append(keys, totalRequestsKey(p), totalAmountKey(p))
		}

		values, err := conn.MGet(ctx, keys...).Result()
		if err != nil {
			return summary, fmt.Errorf("read counters: %w", err)
		}

		for i, p := range models.Processors {
			totals := summary.Totals(p)
			if totals.TotalRequests, err = parseCount(values[2*i]); err != nil {
				return summary, err
			}
			if totals.TotalAmount, err = parseAmount(values[2*i+1]); err != nil {
				return summary, err
			}
		}
		return summary, nil
	})
}

// filteredSummary rescans the payments log since the counters cover the
// store's whole lifetime.
func (s *RedisPaymentStore) filteredSummary(ctx context.Context, r models.TimeRange) (models.Summary, error) {
	members, err := pool.Do(s.pool, func(conn *redis.Conn) ([]string, error) {
		return conn.ZRangeByScore(ctx, paymentsLogKey, &redis.ZRangeBy{
			Min: scoreBound(r.From, "-inf"),
			Max: scoreBound(r.To, "+inf"),
		}).Result()
	})
	if err != nil {
		return models.Summary{}, fmt.Errorf("scan payments log: %w", err)
	}

	records := make([]models.PaymentRecord, 0, len(members))
	for _, m := range members {
		var rec models.PaymentRecord
		if err := json.Unmarshal([]byte(m), &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return models.SummarizeRecords(records), nil
}

func (s *RedisPaymentStore) PurgeAll(ctx context.Context) error {
	return s.pool.With(func(conn *redis.Conn) error {
		return conn.FlushDB(ctx).Err()
	})
}

func (s *RedisPaymentStore) IsProcessed(ctx context.Context, correlationID string) (bool, error) {
	return pool.Do(s.pool, func(conn *redis.Conn) (bool, error) {
		n, err := conn.Exists(ctx, processedKey(correlationID)).Result()
		return n > 0, err
	})
}

func scoreBound(t time.Time, unbounded string) string {
	if t.IsZero() {
		return unbounded
	}
	return strconv.FormatFloat(models.Score(t), 'f', -1, 64)
}

func parseCount(v any) (int64, error) {
	s, ok := v.(string)
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse request counter %q: %w", s, err)
	}
	return n, nil
}

func parseAmount(v any) (decimal.Decimal, error) {
	s, ok := v.(string)
	if !ok {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount counter %q: %w", s, err)
	}
	return d, nil
}
