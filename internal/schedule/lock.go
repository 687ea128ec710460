package schedule

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"
)

// Release gives back a held lock.
type Release func(ctx context.Context) error

// Locker guarantees at most one active run.
type Locker interface {
	// TryLock acquires the lock without waiting. ok is false when another
	// run holds it.
	TryLock(ctx context.Context) (release Release, ok bool, err error)
}

// LocalLocker serializes runs within one process.
type LocalLocker struct {
	mu sync.Mutex
}

// TryLock implements Locker.
func (l *LocalLocker) TryLock(context.Context) (Release, bool, error) {
	if !l.mu.TryLock() {
		return nil, false, nil
	}
	return func(context.Context) error {
		l.mu.Unlock()
		return nil
	}, true, nil
}

// DefaultLockKey is the Valkey key guarding pipeline runs.
const DefaultLockKey = "medallion:pipeline:lock"

// releaseScript deletes the key only while it still holds our token.
var releaseScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// refreshScript resets the key's TTL only while it still holds our token.
var refreshScript = valkey.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// ErrLockLost reports that a held lock expired or changed owner.
var ErrLockLost = errors.New("lock lost while held")

// ValkeyLocker serializes runs across processes sharing a Valkey server.
// The lock expires after TTL so a crashed holder cannot block forever.
// While held it is refreshed every TTL/3, so runs may outlast the TTL.
type ValkeyLocker struct {
	client valkey.Client
	key    string
	ttl    time.Duration
}

// NewValkeyLocker creates a lock on key. An empty key uses DefaultLockKey.
func NewValkeyLocker(client valkey.Client, key string, ttl time.Duration) *ValkeyLocker {
	if key == "" {
		key = DefaultLockKey
	}
	return &ValkeyLocker{client: client, key: key, ttl: ttl}
}

// TryLock implements Locker with SET NX PX.
func (l *ValkeyLocker) TryLock(ctx context.Context) (Release, bool, error) {
	token := uuid.NewString()
	err := l.client.Do(ctx, l.client.B().Set().Key(l.key).Value(token).Nx().Px(l.ttl).Build()).Error()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}

	stop := keepAlive(refreshInterval(l.ttl), func(ctx context.Context) (bool, error) {
		ttl := strconv.FormatInt(l.ttl.Milliseconds(), 10)
		n, err := refreshScript.Exec(ctx, l.client, []string{l.key}, []string{token, ttl}).AsInt64()
		return n == 1, err
	})

	return func(ctx context.Context) error {
		refreshErr := stop()
		n, err := releaseScript.Exec(ctx, l.client, []string{l.key}, []string{token}).AsInt64()
		if err != nil {
			return fmt.Errorf("release lock %s: %w", l.key, err)
		}
		if n == 0 {
			return errors.Join(errors.New("lock expired before release"), refreshErr)
		}
		return nil
	}, true, nil
}

func refreshInterval(ttl time.Duration) time.Duration {
	return max(ttl/3, time.Millisecond)
}

// keepAlive calls extend every interval until the returned stop is called.
// It gives up once extend fails or reports the lock gone, and stop returns
// that error. stop must be called exactly once.
func keepAlive(interval time.Duration, extend func(context.Context) (bool, error)) (stop func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				done <- nil
				return
			case <-ticker.C:
			}
			held, err := extend(ctx)
			switch {
			case ctx.Err() != nil:
				done <- nil
				return
			case err != nil:
				done <- fmt.Errorf("refresh lock: %w", err)
				return
			case !held:
				done <- ErrLockLost
				return
			}
		}
	}()

	return func() error {
		cancel()
		return <-done
	}
}

// NewValkeyClient connects to addr and verifies it with PING.
func NewValkeyClient(ctx context.Context, addr, password string) (valkey.Client, error) {
	opts := valkey.ClientOption{
		InitAddress: []string{addr},
	}
	if password != "" {
		opts.Password = password
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create valkey client: %w", err)
	}

	resp := client.Do(ctx, client.B().Ping().Build())
	if err := resp.Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping valkey: %w", err)
	}
	return client, nil
}
