package pipeline

import (
	"os"
	"strings"

	xerrors "TravelPlanner/internal/errors"
)

// Mode 决定流水线是真实执行还是返回固定演示数据。
type Mode string

const (
	// ModeLive 真实调用大模型与外部数据源。
	ModeLive Mode = "live"
	// ModeMock 跳过所有外部调用，返回固定数据集。
	ModeMock Mode = "mock"
)

// EnvUseMocks 控制默认运行模式的环境变量。
const EnvUseMocks = "TRAVEL_USE_MOCKS"

// truthyValues 是被认定为"开启"的取值集合，大小写不敏感。
var truthyValues = map[string]struct{}{
	"1":    {},
	"true": {},
	"yes":  {},
	"on":   {},
}

// ModeFromEnv 根据 TRAVEL_USE_MOCKS 推导默认运行模式。
func ModeFromEnv() Mode {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(EnvUseMocks)))
	if _, ok := truthyValues[value]; ok {
		return ModeMock
	}
	return ModeLive
}

// ParseMode 解析外部传入的模式字符串，空串回退到环境变量。
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "":
		return ModeFromEnv(), nil
	case string(ModeLive):
		return ModeLive, nil
	case string(ModeMock):
		return ModeMock, nil
	default:
		return "", xerrors.New(xerrors.CodeInvalidArgument, "未知的运行模式: "+value)
	}
}
