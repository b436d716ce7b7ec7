// Package providers 定义外部旅行数据源的统一接口。
// 适配层吞掉所有上游故障，失败时返回空列表而非错误，
// 保证单个数据源故障不会中断整条流水线。
package providers

import (
	"context"

	"TravelPlanner/internal/travel"
)

// FlightSearch 按目的地三字码搜索航班。
type FlightSearch interface {
	SearchFlights(ctx context.Context, destinationCode string) []travel.Flight
}

// HotelSearch 按目的地城市名搜索酒店。
type HotelSearch interface {
	SearchHotels(ctx context.Context, destinationCity string) []travel.Hotel
}
