package job

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultRabbitQueue = "travelplanner.jobs"

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string
	Queue      string
	Prefetch   int
	Durable    bool
	AutoDelete bool
}

// RabbitMQQueue 基于单连接单 channel 的作业队列。
type RabbitMQQueue struct {
	conn    *amqp.Connection
	ch      *amqp.Channel
	name    string
	durable bool
}

// NewRabbitMQQueue 建立连接、声明队列并设置预取数。
func NewRabbitMQQueue(cfg RabbitMQConfig) (*RabbitMQQueue, error) {
	if cfg.URL == "" {
		return nil, errors.New("RabbitMQ URL 不能为空")
	}
	name := cfg.Queue
	if name == "" {
		name = defaultRabbitQueue
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("连接 RabbitMQ 失败: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("创建 RabbitMQ channel 失败: %w", err)
	}

	cleanup := func() {
		_ = ch.Close()
		_ = conn.Close()
	}

	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			cleanup()
			return nil, fmt.Errorf("设置 RabbitMQ QOS 失败: %w", err)
		}
	}
	if _, err := ch.QueueDeclare(name, cfg.Durable, cfg.AutoDelete, false, false, nil); err != nil {
		cleanup()
		return nil, fmt.Errorf("声明 RabbitMQ 队列失败: %w", err)
	}

	return &RabbitMQQueue{conn: conn, ch: ch, name: name, durable: cfg.Durable}, nil
}

// Publish 发布一条只含作业 ID 的消息。持久化队列写持久化消息。
func (q *RabbitMQQueue) Publish(ctx context.Context, jobID string) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	msg := amqp.Publishing{
		ContentType: "text/plain",
		Body:        []byte(jobID),
	}
	if q.durable {
		msg.DeliveryMode = amqp.Persistent
	}
	return q.ch.PublishWithContext(ctx, "", q.name, false, false, msg)
}

// Consume 消费队列直到上下文取消。消息处理完即确认：失败重试走
// 存储层的 attempts 计数和处理器的重新投递，不依赖 broker 重发。
func (q *RabbitMQQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if q == nil || q.ch == nil {
		return errors.New("RabbitMQ 队列未初始化")
	}
	if workerCount <= 0 {
		workerCount = 1
	}

	deliveries, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("订阅 RabbitMQ 队列失败: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case delivery, ok := <-deliveries:
					if !ok {
						return
					}
					_ = handler(ctx, string(delivery.Body))
					_ = delivery.Ack(false)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close 依次关闭 channel 与连接。
func (q *RabbitMQQueue) Close() error {
	if q == nil {
		return nil
	}
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
