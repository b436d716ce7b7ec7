package pipeline

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/fixtures"
	"TravelPlanner/internal/llm"
	"TravelPlanner/internal/providers"
	"TravelPlanner/internal/travel"
	"TravelPlanner/pkg/logger"
)

// DestinationResolver 从查询文本解析目的地，必须是纯函数式的实现。
type DestinationResolver interface {
	Resolve(query string) travel.ParsedDestination
}

// Orchestrator 串行驱动四个阶段，是系统的业务核心。
type Orchestrator struct {
	completer  llm.Client
	resolver   DestinationResolver
	flights    providers.FlightSearch
	hotels     providers.HotelSearch
	fixture    *fixtures.Provider
	llmTimeout time.Duration
	logger     *slog.Logger
}

// Option 定义可选的 Orchestrator 配置。
type Option func(*Orchestrator)

// WithLLMTimeout 设置单次大模型调用的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(o *Orchestrator) {
		if timeout <= 0 {
			o.llmTimeout = 0
			return
		}
		o.llmTimeout = timeout
	}
}

// WithFixtureProvider 配置演示模式使用的固定数据集。
func WithFixtureProvider(provider *fixtures.Provider) Option {
	return func(o *Orchestrator) {
		o.fixture = provider
	}
}

// WithLogger 覆盖默认日志器。
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) {
		if log != nil {
			o.logger = log
		}
	}
}

// New 创建一个 Orchestrator。
func New(completer llm.Client, resolver DestinationResolver, flights providers.FlightSearch, hotels providers.HotelSearch, opts ...Option) *Orchestrator {
	orch := &Orchestrator{
		completer: completer,
		resolver:  resolver,
		flights:   flights,
		hotels:    hotels,
		logger:    logger.Named("pipeline"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(orch)
		}
	}
	if orch.fixture == nil {
		orch.fixture = fixtures.Default()
	}
	return orch
}

// Run 执行整条流水线。演示模式直接返回固定数据集；
// 真实模式按声明顺序跑完四个阶段并解析最终输出。
func (o *Orchestrator) Run(ctx context.Context, query string, mode Mode) (*travel.SearchResults, error) {
	if strings.TrimSpace(query) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "查询文本不能为空")
	}

	if mode == ModeMock {
		results := o.fixture.Results()
		return &results, nil
	}

	if o.completer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if o.resolver == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置目的地解析器")
	}

	// 规则解析先行，结果既是解析阶段的工具观察，
	// 也是后续阶段无法解析模型输出时的兜底。
	parsed := o.resolver.Resolve(query)
	o.logger.Info("规则解析完成", "query", query, "destination", parsed.City(), "code", parsed.Code())

	outputs := make(map[string]string, len(stages))
	for _, stage := range stages {
		observation := o.observe(ctx, stage.ID, parsed, outputs)
		prompt := buildPrompt(stage, query, outputs, observation)

		text, err := o.complete(ctx, prompt)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeCompletionFailure, err,
				"阶段推理失败", xerrors.WithMetadata("stage", stage.ID))
		}
		outputs[stage.ID] = strings.TrimSpace(text)
		o.logger.Debug("阶段完成", "stage", stage.ID, "output_bytes", len(outputs[stage.ID]))
	}

	results, err := travel.Finalize(outputs[StageCombine])
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeOutputInvalid, err, "最终输出解析失败")
	}
	return results, nil
}

// observe 为阶段准备工具观察结果。搜索阶段优先采用模型
// 解析出的目的地，解析不出来时回退到规则解析结果。
func (o *Orchestrator) observe(ctx context.Context, stageID string, parsed travel.ParsedDestination, outputs map[string]string) string {
	switch stageID {
	case StageResolve:
		encoded, err := json.Marshal(parsed)
		if err != nil {
			return ""
		}
		return string(encoded)
	case StageSearchFlights:
		code := o.stageDestination(outputs, parsed).Code()
		if code == "" {
			return "[]"
		}
		return encodeList(o.flights.SearchFlights(ctx, code))
	case StageSearchHotels:
		city := o.stageDestination(outputs, parsed).City()
		if city == "" {
			return "[]"
		}
		return encodeList(o.hotels.SearchHotels(ctx, city))
	default:
		return ""
	}
}

func (o *Orchestrator) stageDestination(outputs map[string]string, fallback travel.ParsedDestination) travel.ParsedDestination {
	raw, ok := outputs[StageResolve]
	if !ok {
		return fallback
	}
	parsed, err := travel.ParseDestination(raw)
	if err != nil {
		o.logger.Warn("解析阶段输出不是合法 JSON，回退到规则解析结果", "error", err)
		return fallback
	}
	return parsed
}

func encodeList(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}

func (o *Orchestrator) complete(ctx context.Context, prompt string) (string, error) {
	llmCtx := ctx
	if o.llmTimeout > 0 {
		var cancel context.CancelFunc
		llmCtx, cancel = context.WithTimeout(ctx, o.llmTimeout)
		defer cancel()
	}

	text, err := o.completer.Complete(llmCtx, prompt)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return "", xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		return "", err
	}
	return text, nil
}

// buildPrompt 拼装阶段提示词: 任务描述、原始查询、上游输出、
// 工具观察和输出契约。
func buildPrompt(stage Stage, query string, outputs map[string]string, observation string) string {
	var builder strings.Builder
	builder.WriteString("## Task\n")
	builder.WriteString(stage.Description)
	builder.WriteString("\n\n## Traveler query\n")
	builder.WriteString(strings.TrimSpace(query))

	if len(stage.Upstream) > 0 {
		builder.WriteString("\n\n## Context from earlier steps\n")
		for _, upstream := range stage.Upstream {
			builder.WriteString(fmt.Sprintf("[%s]\n%s\n", upstream, outputs[upstream]))
		}
	}

	if strings.TrimSpace(observation) != "" {
		builder.WriteString("\n## Tool result\n")
		builder.WriteString(observation)
		builder.WriteString("\n")
	}

	builder.WriteString("\n## Expected output\n")
	builder.WriteString(stage.ExpectedOutput)
	builder.WriteString("\nRespond with only the expected output, nothing else.")
	return builder.String()
}
