package hotelbeds

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"TravelPlanner/internal/travel"
	"TravelPlanner/pkg/logger"
)

const (
	defaultEndpoint = "https://api.test.hotelbeds.com/hotel-api/1.0/hotels"
	defaultTimeout  = 15 * time.Second

	envAPIKey    = "HOTELBEDS_API_KEY"
	envAPISecret = "HOTELBEDS_API_SECRET"
)

// cityCodes 把小写、去空格后的城市名映射到 Hotelbeds 目的地编码。
var cityCodes = map[string]string{
	"london":     "LON",
	"paris":      "PAR",
	"madrid":     "MAD",
	"newyork":    "NYC",
	"tokyo":      "TYO",
	"rome":       "ROM",
	"berlin":     "BER",
	"dubai":      "DXB",
	"sydney":     "SYD",
	"losangeles": "LAX",
}

// Config 描述 Hotelbeds 适配器的可调参数，零值使用测试环境默认值。
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Client 封装 Hotelbeds Hotel Availability API。
// 凭证在每次调用时从环境变量读取，签名按当前时间戳计算。
type Client struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewClient 根据配置创建 Hotelbeds 客户端。
func NewClient(cfg Config) *Client {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		endpoint = defaultEndpoint
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("hotelbeds"),
		now:    time.Now,
	}
}

// SearchHotels 搜索目的地城市今晚入住一晚的酒店。
// 城市不在映射表内或任何上游故障都降级为空列表。
func (c *Client) SearchHotels(ctx context.Context, destinationCity string) []travel.Hotel {
	code, ok := cityCodes[normalizeCity(destinationCity)]
	if !ok {
		c.logger.Warn("城市不在 Hotelbeds 映射表中，跳过酒店搜索", "city", destinationCity)
		return []travel.Hotel{}
	}

	apiKey := strings.TrimSpace(os.Getenv(envAPIKey))
	apiSecret := strings.TrimSpace(os.Getenv(envAPISecret))
	if apiKey == "" || apiSecret == "" {
		c.logger.Warn("缺少 Hotelbeds 凭证，跳过酒店搜索")
		return []travel.Hotel{}
	}

	records, err := c.fetchAvailability(ctx, apiKey, apiSecret, code)
	if err != nil {
		c.logger.Warn("Hotelbeds 酒店搜索失败", "destination", code, "error", err)
		return []travel.Hotel{}
	}
	return normalizeRecords(records, destinationCity)
}

// normalizeCity 去掉空格并转小写，使 "New York" 与 "newyork" 等价。
func normalizeCity(city string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(city)), " ", "")
}

// signature 计算 X-Signature: SHA-256(apiKey + secret + unix 秒)。
func signature(apiKey, apiSecret string, now time.Time) string {
	sum := sha256.Sum256([]byte(apiKey + apiSecret + strconv.FormatInt(now.Unix(), 10)))
	return hex.EncodeToString(sum[:])
}

type hotelRecord struct {
	Code            json.RawMessage `json:"code"`
	Name            json.RawMessage `json:"name"`
	DestinationName string          `json:"destinationName"`
	MinRate         json.RawMessage `json:"minRate"`
}

func (c *Client) fetchAvailability(ctx context.Context, apiKey, apiSecret, destinationCode string) ([]hotelRecord, error) {
	checkIn := c.now().Format("2006-01-02")
	checkOut := c.now().AddDate(0, 0, 1).Format("2006-01-02")

	body := map[string]any{
		"stay": map[string]string{
			"checkIn":  checkIn,
			"checkOut": checkOut,
		},
		"occupancies": []map[string]int{
			{"rooms": 1, "adults": 1, "children": 0},
		},
		"destination": map[string]string{
			"code": destinationCode,
		},
		"language": "ENG",
		"currency": "USD",
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化酒店搜索请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("构建酒店搜索请求失败: %w", err)
	}
	req.Header.Set("Api-Key", apiKey)
	req.Header.Set("X-Signature", signature(apiKey, apiSecret, c.now()))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求酒店搜索接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("酒店搜索接口返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded struct {
		Hotels struct {
			Hotels []hotelRecord `json:"hotels"`
		} `json:"hotels"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析酒店搜索响应失败: %w", err)
	}
	return decoded.Hotels.Hotels, nil
}

// normalizeRecords 压平酒店记录。destinationName 缺失时回退到
// 调用方传入的城市名。
func normalizeRecords(records []hotelRecord, fallbackCity string) []travel.Hotel {
	hotels := make([]travel.Hotel, 0, travel.MaxResults)
	for _, record := range records {
		if len(hotels) >= travel.MaxResults {
			break
		}
		location := strings.TrimSpace(record.DestinationName)
		if location == "" {
			location = strings.TrimSpace(fallbackCity)
		}
		hotels = append(hotels, travel.Hotel{
			ID:            coerceRawString(record.Code),
			Name:          hotelName(record.Name),
			Location:      location,
			PricePerNight: coerceRate(record.MinRate),
		})
	}
	return hotels
}

// hotelName 兼容两种形态: {"content":"..."} 对象或纯字符串。
func hotelName(raw json.RawMessage) string {
	var nested struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && strings.TrimSpace(nested.Content) != "" {
		return nested.Content
	}
	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain
	}
	return ""
}

func coerceRawString(raw json.RawMessage) string {
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

// coerceRate 接受数字或数字字符串，解析失败或出现负价按 0 处理。
func coerceRate(raw json.RawMessage) float64 {
	if len(raw) == 0 {
		return 0
	}
	var value float64
	if err := json.Unmarshal(raw, &value); err == nil {
		return clampRate(value)
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(text), 64); err == nil {
			return clampRate(parsed)
		}
	}
	return 0
}

func clampRate(value float64) float64 {
	if value < 0 {
		return 0
	}
	return value
}
