// Package lock はアカウント単位のログイン排他制御を提供する。
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix はログインロックのRedisキー接頭辞。
const keyPrefix = "lamms:login-lock:"

// defaultRetryInterval はロック取得を再試行する間隔。
const defaultRetryInterval = 50 * time.Millisecond

// ErrLockTimeout はロックを待機時間内に取得できなかった場合に返される。
var ErrLockTimeout = errors.New("timed out waiting for login lock")

// Locker はアカウント単位の排他ロックを提供するインターフェース。
// 返されたunlockは必ず1回呼び出すこと。
type Locker interface {
	Lock(ctx context.Context, accountID string) (unlock func(), err error)
}

// releaseScript は自分が取得したロックのみを解放する。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker はRedisのSET NXを使ったLocker実装。
// 複数インスタンスにまたがる同一アカウントのログインを直列化する。
type RedisLocker struct {
	client        redis.UniversalClient
	ttl           time.Duration
	wait          time.Duration
	retryInterval time.Duration
}

// NewRedisLocker はRedisLockerを生成する。
// ttlはロックの保持上限で、待機時間の上限も同じ値とする。
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:        client,
		ttl:           ttl,
		wait:          ttl,
		retryInterval: defaultRetryInterval,
	}
}

// Lock はアカウントのロックを取得する。
func (l *RedisLocker) Lock(ctx context.Context, accountID string) (func(), error) {
	key := keyPrefix + accountID
	value, err := randomValue()
	if err != nil {
		return nil, err
	}

	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, value, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to acquire login lock: %w", err)
		}
		if ok {
			return l.unlockFunc(key, value), nil
		}

		if time.Now().After(deadline) {
			return nil, ErrLockTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}
}

func (l *RedisLocker) unlockFunc(key, value string) func() {
	return func() {
		// リクエストのキャンセルに関わらず解放する
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()

		if err := releaseScript.Run(ctx, l.client, []string{key}, value).Err(); err != nil {
			slog.Warn("ログインロックの解放に失敗しました",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func randomValue() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate lock value: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// NoopLocker は何もしないLocker。Redis未設定時に使用する。
// 単一インスタンス内の排他はDBトランザクションの行ロックで担保される。
type NoopLocker struct{}

// Lock は即座に成功する。
func (NoopLocker) Lock(ctx context.Context, accountID string) (func(), error) {
	return func() {}, nil
}

var (
	_ Locker = (*RedisLocker)(nil)
	_ Locker = NoopLocker{}
)
