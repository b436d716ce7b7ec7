package llm

import "context"

// Client 定义了调用文本补全能力的统一接口。
// 流水线各阶段通过它把原始提示词换成原始文本，
// 不约束底层是哪家模型服务。
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
