package amadeus

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"TravelPlanner/internal/travel"
	"TravelPlanner/pkg/logger"
)

const (
	defaultTokenURL  = "https://test.api.amadeus.com/v1/security/oauth2/token"
	defaultSearchURL = "https://test.api.amadeus.com/v2/shopping/flight-offers"
	defaultOrigin    = "NYC"
	defaultTimeout   = 15 * time.Second

	envAPIKey    = "AMADEUS_API_KEY"
	envAPISecret = "AMADEUS_API_SECRET"
)

var codePattern = regexp.MustCompile(`^[A-Za-z]{3}$`)

// Config 描述 Amadeus 适配器的可调参数，零值使用测试环境默认值。
type Config struct {
	TokenURL  string
	SearchURL string
	Origin    string
	Timeout   time.Duration
}

// Client 封装 Amadeus Flight Offers Search API。
// 凭证在每次调用时从环境变量读取，不做缓存。
type Client struct {
	tokenURL   string
	searchURL  string
	origin     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient 根据配置创建 Amadeus 客户端。
func NewClient(cfg Config) *Client {
	tokenURL := strings.TrimSpace(cfg.TokenURL)
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	searchURL := strings.TrimSpace(cfg.SearchURL)
	if searchURL == "" {
		searchURL = defaultSearchURL
	}
	origin := strings.ToUpper(strings.TrimSpace(cfg.Origin))
	if origin == "" {
		origin = defaultOrigin
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		tokenURL:  tokenURL,
		searchURL: searchURL,
		origin:    origin,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("amadeus"),
	}
}

// SearchFlights 搜索当天从固定出发地到目的地的航班。
// 任何故障（凭证缺失、网络错误、响应异常）都降级为空列表。
func (c *Client) SearchFlights(ctx context.Context, destinationCode string) []travel.Flight {
	code := strings.ToUpper(strings.TrimSpace(destinationCode))
	if !codePattern.MatchString(code) {
		c.logger.Warn("目的地三字码非法，跳过航班搜索", "code", destinationCode)
		return []travel.Flight{}
	}

	token, err := c.fetchToken(ctx)
	if err != nil {
		c.logger.Warn("获取 Amadeus 访问令牌失败", "error", err)
		return []travel.Flight{}
	}

	offers, err := c.fetchOffers(ctx, token, code)
	if err != nil {
		c.logger.Warn("Amadeus 航班搜索失败", "destination", code, "error", err)
		return []travel.Flight{}
	}
	return normalizeOffers(offers, c.logger)
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	apiKey := strings.TrimSpace(os.Getenv(envAPIKey))
	apiSecret := strings.TrimSpace(os.Getenv(envAPISecret))
	if apiKey == "" || apiSecret == "" {
		return "", fmt.Errorf("缺少 %s 或 %s 环境变量", envAPIKey, envAPISecret)
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", apiKey)
	form.Set("client_secret", apiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("构建令牌请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求令牌接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("令牌接口返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("解析令牌响应失败: %w", err)
	}
	if strings.TrimSpace(decoded.AccessToken) == "" {
		return "", fmt.Errorf("令牌响应缺少 access_token")
	}
	return decoded.AccessToken, nil
}

type offer struct {
	Itineraries []struct {
		Segments []struct {
			CarrierCode string `json:"carrierCode"`
			Number      string `json:"number"`
			Departure   struct {
				IATACode string `json:"iataCode"`
			} `json:"departure"`
			Arrival struct {
				IATACode string `json:"iataCode"`
			} `json:"arrival"`
		} `json:"segments"`
	} `json:"itineraries"`
	Price struct {
		Total string `json:"total"`
	} `json:"price"`
}

func (c *Client) fetchOffers(ctx context.Context, token, destinationCode string) ([]offer, error) {
	query := url.Values{}
	query.Set("originLocationCode", c.origin)
	query.Set("destinationLocationCode", destinationCode)
	query.Set("departureDate", time.Now().Format("2006-01-02"))
	query.Set("adults", "1")
	query.Set("max", strconv.Itoa(travel.MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.searchURL+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("构建航班搜索请求失败: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求航班搜索接口失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("航班搜索接口返回状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded struct {
		Data []offer `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("解析航班搜索响应失败: %w", err)
	}
	return decoded.Data, nil
}

// normalizeOffers 把原始报价压平成统一航班记录，
// 只读取每条报价第一段行程的第一个航段。
func normalizeOffers(offers []offer, log *slog.Logger) []travel.Flight {
	flights := make([]travel.Flight, 0, travel.MaxResults)
	for _, item := range offers {
		if len(flights) >= travel.MaxResults {
			break
		}
		if len(item.Itineraries) == 0 || len(item.Itineraries[0].Segments) == 0 {
			continue
		}
		segment := item.Itineraries[0].Segments[0]
		price, err := strconv.ParseFloat(strings.TrimSpace(item.Price.Total), 64)
		if err != nil {
			log.Warn("报价金额无法解析，按 0 处理", "total", item.Price.Total)
			price = 0
		}
		flights = append(flights, travel.Flight{
			Airline:      segment.CarrierCode,
			FlightNumber: strings.TrimSpace(segment.CarrierCode + " " + segment.Number),
			FromAirport:  segment.Departure.IATACode,
			ToAirport:    segment.Arrival.IATACode,
			Price:        price,
		})
	}
	return flights
}
