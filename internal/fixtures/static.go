package fixtures

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"TravelPlanner/internal/travel"
)

// Provider 提供演示模式下返回的固定搜索结果。
type Provider struct {
	results travel.SearchResults
}

// NewStaticProvider 用给定数据集创建固定结果提供者。
func NewStaticProvider(results travel.SearchResults) *Provider {
	results.Normalize()
	return &Provider{results: results}
}

// LoadStaticProvider 从 JSON 文件加载固定数据集。
func LoadStaticProvider(path string) (*Provider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("固定数据文件路径不能为空")
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("解析固定数据路径失败: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("读取固定数据文件失败: %w", err)
	}
	defer file.Close()

	var results travel.SearchResults
	if err := json.NewDecoder(file).Decode(&results); err != nil {
		return nil, fmt.Errorf("解析固定数据文件失败: %w", err)
	}

	return NewStaticProvider(results), nil
}

// Default 返回内置的演示数据集。
func Default() *Provider {
	return NewStaticProvider(travel.SearchResults{
		Flights: []travel.Flight{
			{Airline: "DemoAir", FlightNumber: "DA 100", FromAirport: "NYC", ToAirport: "LON", Price: 512.34},
			{Airline: "SampleJet", FlightNumber: "SJ 202", FromAirport: "NYC", ToAirport: "LON", Price: 548.90},
		},
		Hotels: []travel.Hotel{
			{ID: "mock-hotel-1", Name: "Mock Grand London", Location: "London", PricePerNight: 189.00},
			{ID: "mock-hotel-2", Name: "Demo Riverside Inn", Location: "London", PricePerNight: 164.50},
		},
	})
}

// Results 返回数据集的深拷贝，调用方可以安全修改。
func (p *Provider) Results() travel.SearchResults {
	if p == nil {
		return travel.SearchResults{Flights: []travel.Flight{}, Hotels: []travel.Hotel{}}
	}
	return p.results.Clone()
}
