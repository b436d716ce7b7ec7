package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// SlackWebhookSender 通过 Incoming Webhook 向 Slack 发送消息。
type SlackWebhookSender struct {
	WebhookURL string
	httpClient *http.Client
}

// NewSlackWebhookSender 创建一个 Webhook 发送器。
func NewSlackWebhookSender(webhookURL string) *SlackWebhookSender {
	return &SlackWebhookSender{
		WebhookURL: webhookURL,
		httpClient: &http.Client{Timeout: defaultWebhookTimeout},
	}
}

// Send 将消息投递到 Webhook。channel 为空时使用 Webhook 绑定的默认频道。
func (s *SlackWebhookSender) Send(ctx context.Context, channel, content string) error {
	if s == nil || s.WebhookURL == "" {
		return fmt.Errorf("Slack webhook 未配置")
	}

	payload := map[string]string{"text": content}
	if channel != "" {
		payload["channel"] = channel
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("编码 Slack 消息失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("构造 Slack 请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("发送 Slack 消息失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("Slack webhook 返回异常状态: %d", resp.StatusCode)
	}
	return nil
}
