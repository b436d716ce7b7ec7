package job

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed 表示队列已经关闭，不再接受投递。
var ErrQueueClosed = errors.New("队列已关闭")

// MemoryQueue 是进程内的作业队列，底层是一个有缓冲 channel。
// 单机部署和测试用它，分布式部署换 Redis 或 RabbitMQ 实现。
type MemoryQueue struct {
	ch        chan string
	closeOnce sync.Once
	done      chan struct{}
}

// NewMemoryQueue 创建容量为 size 的内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{
		ch:   make(chan string, size),
		done: make(chan struct{}),
	}
}

// Publish 投递一个作业 ID，队列满时阻塞直到有空位或上下文取消。
func (q *MemoryQueue) Publish(ctx context.Context, jobID string) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	case q.ch <- jobID:
		return nil
	}
}

// Consume 启动 workerCount 个协程消费队列，直到上下文取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			q.drain(ctx, handler)
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

func (q *MemoryQueue) drain(ctx context.Context, handler Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.done:
			return
		case jobID := <-q.ch:
			// 失败重投由处理器负责，这里只消费。
			_ = handler(ctx, jobID)
		}
	}
}

// Close 关闭队列，重复调用是安全的。尚未消费的作业会被丢弃。
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.done)
	})
	return nil
}
