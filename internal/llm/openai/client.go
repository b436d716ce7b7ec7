// Package openai 通过 Chat Completions API 提供文本补全实现。
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultTimeout   = 60 * time.Second

	// 错误响应体最多读取这么多字节，避免把超长 HTML 写进日志。
	maxErrorBody = 2048
)

// systemPrompt 约束模型只输出任务要求的内容本身。
const systemPrompt = "" +
	"You are a travel planning assistant executing one step of a search pipeline. " +
	"Reply with exactly the output the task asks for. " +
	"Never add commentary, explanations or Markdown code fences."

// Config 描述调用 OpenAI 所需的连接参数，零值字段使用默认值。
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

func (cfg Config) normalized() (Config, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return cfg, errors.New("OpenAI API Key 不能为空")
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModelName
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return cfg, nil
}

// chatMessage 与 chatRequest 对应 Chat Completions 的请求报文。
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client 是基于 HTTP 的 OpenAI 文本补全客户端。
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient 校验并补全配置后返回客户端。
func NewClient(cfg Config) (*Client, error) {
	normalized, err := cfg.normalized()
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:        normalized,
		httpClient: &http.Client{Timeout: normalized.Timeout},
	}, nil
}

// Complete 把 prompt 发送给模型，返回去除首尾空白后的原始文本。
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req, err := c.newRequest(ctx, prompt)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("调用 OpenAI 失败: %w", err)
	}
	defer resp.Body.Close()

	return extractContent(resp)
}

func (c *Client) newRequest(ctx context.Context, prompt string) (*http.Request, error) {
	body := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: 0.2,
	}
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("编码 OpenAI 请求失败: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI 请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func extractContent(resp *http.Response) (string, error) {
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("OpenAI 响应状态码 %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解码 OpenAI 响应失败: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("OpenAI 响应缺少 choices")
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", errors.New("OpenAI 返回了空白内容")
	}
	return content, nil
}
