package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis SetNX lock used to serialize work on one entity. The lock narrows
// race windows; exactly-once correctness is still enforced below it by
// conditional status updates and the ledger's unique indexes, so a lost
// or expired lock degrades throughput, not correctness.
//
// Acquire: SET key value NX EX ttl. Release: Lua compare-and-delete so a
// holder whose lock expired cannot delete someone else's lock.

var ErrLockFailed = errors.New("failed to acquire distributed lock")

type DistributedLock struct {
	client     *redis.Client
	key        string
	value      string // holder tag, checked on unlock
	expiration time.Duration
}

func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock retries TryLock until it succeeds, the retries run out, or ctx is
// done.
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
	return ErrLockFailed
}

func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// NewLeadLock serializes status transitions per lead. Different leads
// proceed concurrently; two staff actions on the same lead queue up.
func NewLeadLock(client *redis.Client, leadNo, holder string) *DistributedLock {
	key := fmt.Sprintf("lead:lock:%s", leadNo)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewBalanceLock serializes ledger debits per referrer. Two approvals of
// different withdrawals for the same referrer contend on this one key, so
// the loser's authorization read runs only after the winner's debit has
// committed.
func NewBalanceLock(client *redis.Client, referrerID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("referrer:lock:balance:%d", referrerID)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
