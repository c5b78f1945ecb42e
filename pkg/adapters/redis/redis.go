// Package redis provides Redis-backed implementations of the job queue, the
// deploy record store and the distributed deploy lock.
package redis

import (
	"time"

	backend "github.com/redis/go-redis/v9"
)

const defaultPrefix = "flowforge:"

type options struct {
	prefix    string
	retention time.Duration
}

// Option configures the Redis adapters.
type Option func(*options)

// WithPrefix sets the key prefix shared by all keys of an adapter.
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithRetention makes finished jobs expire after d. Zero keeps them forever.
func WithRetention(d time.Duration) Option {
	return func(o *options) {
		o.retention = d
	}
}

func buildOptions(opts []Option) options {
	o := options{prefix: defaultPrefix}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewClient opens a client for the given address.
func NewClient(address, password string, db int) *backend.Client {
	return backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
}
