package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/RAG-HealthBot/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/RAG-HealthBot/pkg/errors"
)

// ReportLockPrefix namespaces the per-upload processing locks.
const ReportLockPrefix = "lock:report:"

var (
	ErrLockHeld    = errors.New(errors.ErrCodeLockHeld, "processing lock already held")
	ErrLockNotHeld = errors.New(errors.ErrCodeLockHeld, "lock not held by this owner")
)

var unlockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Locker hands out exclusive, expiring locks. Each acquisition gets a random
// token so only its holder can release or extend it; a crashed holder's lock
// simply expires.
type Locker struct {
	client *Client
	prefix string
	logger logging.Logger
}

func NewLocker(client *Client, log logging.Logger) *Locker {
	return &Locker{client: client, prefix: ReportLockPrefix, logger: log}
}

func (l *Locker) key(name string) string {
	return l.prefix + name
}

// TryLock makes a single SET NX attempt. It returns ErrLockHeld when another
// owner has the lock; it never waits.
func (l *Locker) TryLock(ctx context.Context, name string, ttl time.Duration) (string, error) {
	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key(name), token, ttl).Result()
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeCacheError, "failed to set lock")
	}
	if !ok {
		return "", ErrLockHeld
	}
	l.logger.Debug("lock acquired", logging.String("key", l.key(name)), logging.Duration("ttl", ttl))
	return token, nil
}

// Unlock deletes the lock only if token still owns it.
func (l *Locker) Unlock(ctx context.Context, name, token string) error {
	res, err := unlockScript.Run(ctx, l.client.GetUnderlyingClient(), []string{l.key(name)}, token).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release lock")
	}
	if res == 0 {
		return ErrLockNotHeld
	}
	return nil
}
