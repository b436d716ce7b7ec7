package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"TravelPlanner/internal/config"
	"TravelPlanner/internal/fixtures"
	"TravelPlanner/internal/llm"
	"TravelPlanner/internal/llm/openai"
	"TravelPlanner/internal/nlp"
	"TravelPlanner/internal/pipeline"
	"TravelPlanner/internal/providers/amadeus"
	"TravelPlanner/internal/providers/hotelbeds"
	"TravelPlanner/internal/travel"
	"TravelPlanner/pkg/logger"
)

// main 是一次性检索命令行工具的入口，直接执行流水线并输出 JSON 结果。
func main() {
	configPath := flag.String("config", "", "配置文件路径，缺省时使用内置默认值")
	modeFlag := flag.String("mode", "", "运行模式 live/mock，缺省读取 TRAVEL_USE_MOCKS")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath, *modeFlag, flag.Args()); err != nil {
		var parseErr *travel.OutputParseError
		if errors.As(err, &parseErr) {
			fmt.Fprintln(os.Stderr, "模型输出无法解析，原始内容如下:")
			fmt.Fprintln(os.Stderr, parseErr.Raw)
		} else {
			fmt.Fprintf(os.Stderr, "travelsearch 运行失败: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath, modeFlag string, args []string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return err
	}
	defer logger.Sync()

	query, err := readQuery(args)
	if err != nil {
		return err
	}

	mode, err := pipeline.ParseMode(modeFlag)
	if err != nil {
		return err
	}

	// mock 模式下不需要真实的推理后端。
	var llmClient llm.Client
	if mode == pipeline.ModeLive {
		apiKey := cfg.OpenAIAPIKey()
		if apiKey == "" {
			return errors.New("live 模式需要配置 OpenAI api_key 或 api_key_env")
		}
		client, err := openai.NewClient(openai.Config{
			APIKey:  apiKey,
			BaseURL: cfg.LLM.OpenAI.BaseURL,
			Model:   cfg.LLM.OpenAI.Model,
			Timeout: cfg.OpenAITimeout(),
		})
		if err != nil {
			return err
		}
		llmClient = client
	}

	fixtureProvider := fixtures.Default()
	if cfg.Pipeline.FixturePath != "" {
		fixtureProvider, err = fixtures.LoadStaticProvider(cfg.Pipeline.FixturePath)
		if err != nil {
			return err
		}
	}

	orchestrator := pipeline.New(
		llmClient,
		nlp.NewResolver(),
		amadeus.NewClient(amadeus.Config{Origin: cfg.Pipeline.Origin}),
		hotelbeds.NewClient(hotelbeds.Config{}),
		pipeline.WithLLMTimeout(cfg.LLMTimeout()),
		pipeline.WithFixtureProvider(fixtureProvider),
	)

	results, err := orchestrator.Run(ctx, query, mode)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(results)
}

// loadConfig 在未显式指定配置文件时允许完全依赖内置默认值运行。
func loadConfig(explicit string) (*config.Config, error) {
	path := config.ResolvePath(explicit)
	if explicit == "" && os.Getenv(config.EnvConfigPath) == "" {
		if _, err := os.Stat(path); err != nil {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// readQuery 优先使用命令行参数，否则从标准输入读取一行。
func readQuery(args []string) (string, error) {
	if len(args) > 0 {
		query := strings.TrimSpace(strings.Join(args, " "))
		if query != "" {
			return query, nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("未提供查询语句")
	}
	query := strings.TrimSpace(line)
	if query == "" {
		return "", errors.New("未提供查询语句")
	}
	return query, nil
}
