package redis

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

var (
	ErrNil            = redis.Nil
	ErrNotInitialized = errors.New("redis: client not initialized")
	ErrLockNotHeld    = errors.New("redis: lock not held (token mismatch or expired)")
	ErrLockTimeout    = errors.New("redis: could not acquire lock")
)

// IsNil reports a missing key
func IsNil(err error) bool {
	return errors.Is(err, redis.Nil)
}

// IsLockTimeout reports that a lock stayed held by someone else
func IsLockTimeout(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
