package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisQueue = "travelplanner:jobs"

// RedisQueueConfig 描述 Redis 队列的连接参数。
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Queue     string
	BlockWait time.Duration
}

// RedisQueue 把 Redis list 当作业队列用：RPUSH 入队，BLPOP 出队。
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

// NewRedisQueue 建立连接并验证可达后返回队列实例。
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}

	q := &RedisQueue{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		key:  cfg.Queue,
		wait: cfg.BlockWait,
	}
	if q.key == "" {
		q.key = defaultRedisQueue
	}
	if q.wait <= 0 {
		q.wait = 5 * time.Second
	}

	if err := q.client.Ping(context.Background()).Err(); err != nil {
		_ = q.client.Close()
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return q, nil
}

// Publish 把作业 ID 追加到队尾。
func (q *RedisQueue) Publish(ctx context.Context, jobID string) error {
	if err := q.client.RPush(ctx, q.key, jobID).Err(); err != nil {
		return fmt.Errorf("Redis 发布作业失败: %w", err)
	}
	return nil
}

// Consume 启动 workerCount 个协程轮询 BLPOP，直到出错或上下文取消。
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}

	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			errCh <- q.poll(ctx, handler)
		}()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (q *RedisQueue) poll(ctx context.Context, handler Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		values, err := q.client.BLPop(ctx, q.wait, q.key).Result()
		switch {
		case err == nil:
		case errors.Is(err, redis.Nil):
			// 等待超时，继续轮询。
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, redis.ErrClosed):
			return err
		default:
			return fmt.Errorf("Redis 取作业失败: %w", err)
		}

		if len(values) != 2 {
			continue
		}
		jobID := values[1]
		if handlerErr := handler(ctx, jobID); handlerErr != nil {
			// 处理失败时重新入队，留给下一轮重试。
			_ = q.client.RPush(ctx, q.key, jobID).Err()
		}
	}
}

// Close 断开 Redis 连接。
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
