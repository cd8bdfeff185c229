// Package cache хранит в Redis краткоживущее состояние вебхуков: обработанные доставки
// и блокировки обработки по заказам.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	settledPrefix = "webhook:settled:"
	lockPrefix    = "webhook:lock:"

	defaultLockTTL = 30 * time.Second
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisClient подключается к Redis и проверяет соединение.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// WebhookCache запоминает обработанные доставки вебхуков и упорядочивает их обработку по заказу.
type WebhookCache struct {
	rdb        redis.Cmdable
	settledTTL time.Duration
	lockTTL    time.Duration
}

// NewWebhookCache создаёт кэш, в котором отметки об обработке живут settledTTL.
func NewWebhookCache(rdb redis.Cmdable, settledTTL time.Duration) *WebhookCache {
	return &WebhookCache{
		rdb:        rdb,
		settledTTL: settledTTL,
		lockTTL:    defaultLockTTL,
	}
}

// Seen сообщает, была ли доставка с этим ключом уже полностью обработана.
func (c *WebhookCache) Seen(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, settledPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check settled marker: %w", err)
	}
	return n > 0, nil
}

// MarkSettled отмечает, что доставка с этим ключом больше не требует обработки.
func (c *WebhookCache) MarkSettled(ctx context.Context, key string) error {
	if err := c.rdb.Set(ctx, settledPrefix+key, "1", c.settledTTL).Err(); err != nil {
		return fmt.Errorf("set settled marker: %w", err)
	}
	return nil
}

// Acquire захватывает блокировку обработки заказа. Если ok ложно, её держит другая доставка.
// Возвращённую функцию освобождения можно вызывать и после истечения блокировки.
func (c *WebhookCache) Acquire(ctx context.Context, orderID string) (release func(), ok bool, err error) {
	key := lockPrefix + orderID
	token := uuid.NewString()

	ok, err = c.rdb.SetNX(ctx, key, token, c.lockTTL).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release = func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		// Истёкшей блокировки уже нет.
		_ = releaseScript.Run(ctx, c.rdb, []string{key}, token).Err()
	}
	return release, true, nil
}
