package job

import "context"

// Handler 消费一个作业 ID。返回错误时由具体队列决定是否重新入队。
type Handler func(ctx context.Context, jobID string) error

// Producer 把作业 ID 投递进队列。
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer 以 workerCount 个并发 worker 持续消费队列，
// 直到 ctx 取消或队列关闭。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 是同一实现同时充当生产者与消费者时的组合接口。
type Queue interface {
	Producer
	Consumer
}
