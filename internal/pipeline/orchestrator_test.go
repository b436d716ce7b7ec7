package pipeline

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"

	xerrors "TravelPlanner/internal/errors"
	"TravelPlanner/internal/nlp"
	"TravelPlanner/internal/travel"
)

// scriptedCompleter 按阶段顺序返回脚本化的补全结果。
type scriptedCompleter struct {
	responses []string
	prompts   []string
	err       error
}

func (c *scriptedCompleter) Complete(_ context.Context, prompt string) (string, error) {
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	if len(c.prompts) > len(c.responses) {
		return "", fmt.Errorf("无脚本响应可用")
	}
	return c.responses[len(c.prompts)-1], nil
}

type fakeFlights struct {
	gotCode string
	flights []travel.Flight
}

func (f *fakeFlights) SearchFlights(_ context.Context, code string) []travel.Flight {
	f.gotCode = code
	return f.flights
}

type fakeHotels struct {
	gotCity string
	hotels  []travel.Hotel
}

func (f *fakeHotels) SearchHotels(_ context.Context, city string) []travel.Hotel {
	f.gotCity = city
	return f.hotels
}

func TestRunLivePipeline(t *testing.T) {
	flights := &fakeFlights{flights: []travel.Flight{
		{Airline: "DA", FlightNumber: "DA 100", FromAirport: "NYC", ToAirport: "PAR", Price: 420.50},
	}}
	hotels := &fakeHotels{hotels: []travel.Hotel{
		{ID: "H1", Name: "Hotel Lumière", Location: "Paris", PricePerNight: 210},
	}}

	completer := &scriptedCompleter{responses: []string{
		`{"destination":"Paris","destinationCode":"PAR"}`,
		`[{"airline":"DA","flightNumber":"DA 100","from":"NYC","to":"PAR","price":420.5}]`,
		`[{"id":"H1","name":"Hotel Lumière","location":"Paris","pricePerNight":210}]`,
		"```json\n{\"flights\":[{\"airline\":\"DA\",\"flightNumber\":\"DA 100\",\"from\":\"NYC\",\"to\":\"PAR\",\"price\":420.5}],\"hotels\":[{\"id\":\"H1\",\"name\":\"Hotel Lumière\",\"location\":\"Paris\",\"pricePerNight\":210}]}\n```",
	}}

	orch := New(completer, nlp.NewResolver(), flights, hotels)
	results, err := orch.Run(context.Background(), "a weekend trip to Paris", ModeLive)
	if err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}

	if len(completer.prompts) != 4 {
		t.Fatalf("应执行 4 个阶段，实际 %d", len(completer.prompts))
	}
	if flights.gotCode != "PAR" {
		t.Fatalf("航班搜索应使用 PAR，实际 %q", flights.gotCode)
	}
	if hotels.gotCity != "Paris" {
		t.Fatalf("酒店搜索应使用 Paris，实际 %q", hotels.gotCity)
	}
	if len(results.Flights) != 1 || len(results.Hotels) != 1 {
		t.Fatalf("最终结果不符: %+v", results)
	}

	// 搜索阶段的提示词必须带上工具观察结果。
	if !strings.Contains(completer.prompts[1], `"flightNumber":"DA 100"`) {
		t.Fatalf("航班阶段提示词缺少工具结果:\n%s", completer.prompts[1])
	}
	if !strings.Contains(completer.prompts[3], StageSearchFlights) {
		t.Fatalf("汇总阶段提示词缺少上游输出:\n%s", completer.prompts[3])
	}
}

func TestRunFallsBackToRuleResolver(t *testing.T) {
	flights := &fakeFlights{}
	hotels := &fakeHotels{}
	// 解析阶段输出不是 JSON，搜索阶段应回退到规则解析结果。
	completer := &scriptedCompleter{responses: []string{
		"I think the traveler wants to visit Tokyo.",
		"[]",
		"[]",
		`{"flights":[],"hotels":[]}`,
	}}

	orch := New(completer, nlp.NewResolver(), flights, hotels)
	if _, err := orch.Run(context.Background(), "flights to Tokyo", ModeLive); err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}
	if flights.gotCode != "TYO" || hotels.gotCity != "Tokyo" {
		t.Fatalf("应回退到规则解析结果: code=%q city=%q", flights.gotCode, hotels.gotCity)
	}
}

func TestRunMockModeDeterministic(t *testing.T) {
	orch := New(nil, nil, nil, nil)

	first, err := orch.Run(context.Background(), "anything at all", ModeMock)
	if err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}
	second, err := orch.Run(context.Background(), "a different query", ModeMock)
	if err != nil {
		t.Fatalf("Run 返回错误: %v", err)
	}

	firstJSON, _ := json.Marshal(first)
	secondJSON, _ := json.Marshal(second)
	if string(firstJSON) != string(secondJSON) {
		t.Fatalf("演示模式输出应逐字节一致:\n%s\n%s", firstJSON, secondJSON)
	}
	if len(first.Flights) != 2 || len(first.Hotels) != 2 {
		t.Fatalf("演示数据集条数不符: %+v", first)
	}
}

func TestRunCompletionFailure(t *testing.T) {
	completer := &scriptedCompleter{err: fmt.Errorf("connection refused")}
	orch := New(completer, nlp.NewResolver(), &fakeFlights{}, &fakeHotels{})

	_, err := orch.Run(context.Background(), "trip to Rome", ModeLive)
	if err == nil {
		t.Fatal("大模型失败时 Run 应返回错误")
	}
	if xerrors.CodeOf(err) != xerrors.CodeCompletionFailure {
		t.Fatalf("错误码不符: %v", xerrors.CodeOf(err))
	}
}

func TestRunOutputParseFailure(t *testing.T) {
	completer := &scriptedCompleter{responses: []string{
		`{"destination":"Rome","destinationCode":"ROM"}`,
		"[]",
		"[]",
		"Sorry, something went wrong.",
	}}
	orch := New(completer, nlp.NewResolver(), &fakeFlights{}, &fakeHotels{})

	_, err := orch.Run(context.Background(), "trip to Rome", ModeLive)
	var parseErr *travel.OutputParseError
	if !stdErrors.As(err, &parseErr) {
		t.Fatalf("应能取到 OutputParseError，实际: %v", err)
	}
	if parseErr.Raw != "Sorry, something went wrong." {
		t.Fatalf("原始文本未保留: %q", parseErr.Raw)
	}
	if xerrors.CodeOf(err) != xerrors.CodeOutputInvalid {
		t.Fatalf("错误码不符: %v", xerrors.CodeOf(err))
	}
}

func TestRunEmptyQuery(t *testing.T) {
	orch := New(nil, nil, nil, nil)
	if _, err := orch.Run(context.Background(), "   ", ModeMock); err == nil {
		t.Fatal("空查询应返回错误")
	}
}

func TestParseMode(t *testing.T) {
	t.Setenv(EnvUseMocks, "TRUE")
	if mode, err := ParseMode(""); err != nil || mode != ModeMock {
		t.Fatalf("空串应回退到环境变量: mode=%q err=%v", mode, err)
	}
	t.Setenv(EnvUseMocks, "0")
	if mode, err := ParseMode(""); err != nil || mode != ModeLive {
		t.Fatalf("非真值应得到 live: mode=%q err=%v", mode, err)
	}
	if mode, err := ParseMode("MOCK"); err != nil || mode != ModeMock {
		t.Fatalf("显式 mock 解析失败: mode=%q err=%v", mode, err)
	}
	if _, err := ParseMode("replay"); err == nil {
		t.Fatal("未知模式应返回错误")
	}
}
