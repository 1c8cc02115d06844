package broker

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/akylbek/payment-system/intake-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/intake-gateway/internal/pool"
)

type Driver string

const (
	DriverRedis Driver = "redis"
	DriverNATS  Driver = "nats"
	DriverKafka Driver = "kafka"
)

type Options struct {
	RedisClient  *redis.Client
	RedisPool    *pool.Pool[*redis.Conn]
	NatsURL      string
	KafkaBrokers string
}

func New(driver Driver, opts Options) (interfaces.Broker, error) {
	switch driver {
	case DriverRedis:
		if opts.RedisClient == nil || opts.RedisPool == nil {
			return nil, fmt.Errorf("redis broker needs a client and a connection pool")
		}
		return NewRedisBroker(opts.RedisClient, opts.RedisPool), nil
	case DriverNATS:
		return NewNATSBroker(opts.NatsURL)
	case DriverKafka:
		return NewKafkaBroker(opts.KafkaBrokers), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
