// Package alerting 把失败的搜索作业推送到日志、邮件或 Slack 等渠道。
package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/pkg/logger"
)

// Channel 标识一种通知渠道。
type Channel string

const (
	ChannelLog   Channel = "log"
	ChannelEmail Channel = "email"
	ChannelSlack Channel = "slack"
)

// Event 是一条待投递的告警。
type Event struct {
	Code       xerrors.Code
	Message    string
	Severity   xerrors.Severity
	Channel    Channel
	JobID      string
	Attempts   int
	MaxRetries int
	Metadata   map[string]string
	OccurredAt time.Time
}

// summary 生成各渠道共用的单行描述。
func (e Event) summary() string {
	return fmt.Sprintf("[%s] %s - %s (重试 %d/%d)",
		e.Severity, e.Code, e.Message, e.Attempts, e.MaxRetries)
}

// Notifier 把事件投递到单一渠道。
type Notifier interface {
	Channel() Channel
	Notify(ctx context.Context, event Event) error
}

// Dispatcher 把事件广播到若干渠道。
type Dispatcher interface {
	Notify(ctx context.Context, event Event) error
}

// FanoutDispatcher 按注册顺序投递事件，同一渠道只保留最后注册的通知器。
type FanoutDispatcher struct {
	order     []Channel
	notifiers map[Channel]Notifier
}

// NewFanout 注册一组通知器，nil 会被忽略。
func NewFanout(notifiers ...Notifier) *FanoutDispatcher {
	d := &FanoutDispatcher{notifiers: make(map[Channel]Notifier, len(notifiers))}
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		ch := n.Channel()
		if _, exists := d.notifiers[ch]; !exists {
			d.order = append(d.order, ch)
		}
		d.notifiers[ch] = n
	}
	return d
}

// Notify 尝试所有渠道，单个渠道失败不会阻断其余渠道。
func (d *FanoutDispatcher) Notify(ctx context.Context, event Event) error {
	if d == nil {
		return nil
	}
	var errs []error
	for _, ch := range d.order {
		if err := d.notifiers[ch].Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// LogNotifier 把告警写入审计日志，是默认兜底渠道。
type LogNotifier struct{}

func (n *LogNotifier) Channel() Channel { return ChannelLog }

func (n *LogNotifier) Notify(_ context.Context, event Event) error {
	logger.Audit().Warn("搜索作业告警",
		slog.String("job_id", event.JobID),
		slog.String("code", string(event.Code)),
		slog.String("severity", string(event.Severity)),
		slog.String("message", event.Message),
		slog.Int("attempts", event.Attempts),
		slog.Int("max_retries", event.MaxRetries),
	)
	return nil
}

// EmailSender 抽象邮件投递，便于接入不同的邮件服务。
type EmailSender interface {
	Send(ctx context.Context, subject, content string, to []string) error
}

// EmailNotifier 把告警格式化为邮件正文后交给 Sender。
type EmailNotifier struct {
	Sender        EmailSender
	To            []string
	SubjectPrefix string
}

func (n *EmailNotifier) Channel() Channel { return ChannelEmail }

func (n *EmailNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || len(n.To) == 0 {
		skipMisconfigured("EmailNotifier", event)
		return nil
	}

	subject := fmt.Sprintf("%s[%s] %s", n.SubjectPrefix, event.Severity, event.Code)

	var body strings.Builder
	fmt.Fprintf(&body, "告警时间: %s\n", event.OccurredAt.Format(time.RFC3339))
	fmt.Fprintf(&body, "作业: %s\n", event.JobID)
	fmt.Fprintf(&body, "重试: %d/%d\n", event.Attempts, event.MaxRetries)
	fmt.Fprintf(&body, "错误码: %s\n描述: %s", event.Code, event.Message)
	if len(event.Metadata) > 0 {
		body.WriteString("\n详情:\n")
		for k, v := range event.Metadata {
			fmt.Fprintf(&body, "- %s: %s\n", k, v)
		}
	}
	return n.Sender.Send(ctx, subject, body.String(), n.To)
}

// SlackSender 抽象 Slack 消息投递，具体实现见 webhook.go。
type SlackSender interface {
	Send(ctx context.Context, channel, content string) error
}

// SlackNotifier 把告警摘要推送到指定的 Slack 频道。
type SlackNotifier struct {
	Sender    SlackSender
	ChannelID string
}

func (n *SlackNotifier) Channel() Channel { return ChannelSlack }

func (n *SlackNotifier) Notify(ctx context.Context, event Event) error {
	if n == nil || n.Sender == nil || n.ChannelID == "" {
		skipMisconfigured("SlackNotifier", event)
		return nil
	}
	return n.Sender.Send(ctx, n.ChannelID, "*"+event.summary()+"*")
}

func skipMisconfigured(name string, event Event) {
	logger.L().Warn(name+" 未正确配置，跳过发送", slog.String("job_id", event.JobID))
}
