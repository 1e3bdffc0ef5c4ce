package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/ariefcatur/go-storefront/internal/apperr"
	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Ping(ctx context.Context, rdb *redis.Client) error {
	return rdb.Ping(ctx).Err()
}

// missing reports a GET on an absent key.
func missing(err error) bool { return errors.Is(err, redis.Nil) }

func wrap(op string, err error) error { return apperr.Unavailable(op, err) }
