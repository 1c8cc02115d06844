// Package broker carries encoded payment jobs over the payments channel.
package broker

import "errors"

// Channel is the redis channel, NATS subject and Kafka topic jobs travel on.
const Channel = "payments"

var (
	ErrUnknownDriver      = errors.New("unknown broker driver")
	ErrSubscriptionClosed = errors.New("subscription closed")
)
