package travel

import "encoding/json"

// MaxResults 限制每类搜索结果的最大条数。
const MaxResults = 5

// ParsedDestination 表示从自然语言查询中解析出的目的地。
// 两个字段都可能为空，空值是合法的解析结果而非错误。
type ParsedDestination struct {
	Destination     *string `json:"destination"`
	DestinationCode *string `json:"destinationCode"`
}

// City 返回目的地城市名，未解析到时返回空串。
func (p ParsedDestination) City() string {
	if p.Destination == nil {
		return ""
	}
	return *p.Destination
}

// Code 返回目的地三字码，未解析到时返回空串。
func (p ParsedDestination) Code() string {
	if p.DestinationCode == nil {
		return ""
	}
	return *p.DestinationCode
}

// Flight 是统一后的航班记录。线上字段名 from/to 是内部
// FromAirport/ToAirport 的别名，避免与保留字冲突。
type Flight struct {
	Airline      string  `json:"airline"`
	FlightNumber string  `json:"flightNumber"`
	FromAirport  string  `json:"from"`
	ToAirport    string  `json:"to"`
	Price        float64 `json:"price"`
}

// Hotel 是统一后的酒店记录。
type Hotel struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Location      string  `json:"location"`
	PricePerNight float64 `json:"pricePerNight"`
}

// UnmarshalJSON 将数字形式的 id 强制转换为字符串。
func (h *Hotel) UnmarshalJSON(data []byte) error {
	type plain Hotel
	aux := struct {
		ID json.RawMessage `json:"id"`
		*plain
	}{plain: (*plain)(h)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	h.ID = coerceString(aux.ID)
	return nil
}

func coerceString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return number.String()
	}
	return ""
}

// SearchResults 是返回给调用方的最终结构。
type SearchResults struct {
	Flights []Flight `json:"flights"`
	Hotels  []Hotel  `json:"hotels"`
}

// Normalize 保证两个列表非 nil 且不超过 MaxResults 条。
func (r *SearchResults) Normalize() {
	if r.Flights == nil {
		r.Flights = []Flight{}
	}
	if r.Hotels == nil {
		r.Hotels = []Hotel{}
	}
	if len(r.Flights) > MaxResults {
		r.Flights = r.Flights[:MaxResults]
	}
	if len(r.Hotels) > MaxResults {
		r.Hotels = r.Hotels[:MaxResults]
	}
}

// Clone 返回深拷贝，避免调用方修改共享的固定数据。
func (r SearchResults) Clone() SearchResults {
	clone := SearchResults{
		Flights: make([]Flight, len(r.Flights)),
		Hotels:  make([]Hotel, len(r.Hotels)),
	}
	copy(clone.Flights, r.Flights)
	copy(clone.Hotels, r.Hotels)
	return clone
}
