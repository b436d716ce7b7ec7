package hotelbeds

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"
)

func newTestClient(srv *httptest.Server, now time.Time) *Client {
	client := NewClient(Config{Endpoint: srv.URL, Timeout: time.Second})
	client.now = func() time.Time { return now }
	return client
}

func TestSearchHotelsNormalizes(t *testing.T) {
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "secret")
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Api-Key"); got != "key" {
			t.Fatalf("unexpected Api-Key header: %q", got)
		}
		sum := sha256.Sum256([]byte("keysecret" + strconv.FormatInt(now.Unix(), 10)))
		if got := r.Header.Get("X-Signature"); got != hex.EncodeToString(sum[:]) {
			t.Fatalf("unexpected X-Signature header: %q", got)
		}

		var body struct {
			Stay struct {
				CheckIn  string `json:"checkIn"`
				CheckOut string `json:"checkOut"`
			} `json:"stay"`
			Destination struct {
				Code string `json:"code"`
			} `json:"destination"`
			Language string `json:"language"`
			Currency string `json:"currency"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		if body.Destination.Code != "LON" || body.Language != "ENG" || body.Currency != "USD" {
			t.Fatalf("unexpected request body: %+v", body)
		}
		if body.Stay.CheckIn != "2026-08-28" || body.Stay.CheckOut != "2026-08-29" {
			t.Fatalf("unexpected stay dates: %+v", body.Stay)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hotels":{"hotels":[
			{"code":10086,"name":{"content":"Mock Grand London"},"destinationName":"London","minRate":"189.00"},
			{"code":"H2","name":"Demo Riverside Inn","minRate":164.5}
		]}}`))
	}))
	defer srv.Close()

	hotels := newTestClient(srv, now).SearchHotels(context.Background(), "London")
	if len(hotels) != 2 {
		t.Fatalf("expected 2 hotels, got %d", len(hotels))
	}
	first := hotels[0]
	if first.ID != "10086" || first.Name != "Mock Grand London" {
		t.Fatalf("unexpected hotel identity: %+v", first)
	}
	if first.Location != "London" || first.PricePerNight != 189.00 {
		t.Fatalf("unexpected hotel details: %+v", first)
	}
	second := hotels[1]
	if second.Name != "Demo Riverside Inn" || second.PricePerNight != 164.5 {
		t.Fatalf("unexpected second hotel: %+v", second)
	}
	if second.Location != "London" {
		t.Fatalf("destinationName 缺失时应回退到查询城市: %+v", second)
	}
}

func TestSearchHotelsCapsAtFive(t *testing.T) {
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		records := make([]map[string]any, 0, 9)
		for i := 0; i < 9; i++ {
			records = append(records, map[string]any{
				"code":            i + 1,
				"name":            map[string]string{"content": "Hotel"},
				"destinationName": "Paris",
				"minRate":         120.0,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"hotels": map[string]any{"hotels": records},
		})
	}))
	defer srv.Close()

	hotels := newTestClient(srv, time.Now()).SearchHotels(context.Background(), "Paris")
	if len(hotels) != 5 {
		t.Fatalf("expected 5 hotels, got %d", len(hotels))
	}
}

func TestSearchHotelsClampsNegativeRate(t *testing.T) {
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hotels":{"hotels":[
			{"code":1,"name":"Refund Resort","destinationName":"Rome","minRate":-35.5},
			{"code":2,"name":"Credit Court","destinationName":"Rome","minRate":"-12"}
		]}}`))
	}))
	defer srv.Close()

	hotels := newTestClient(srv, time.Now()).SearchHotels(context.Background(), "Rome")
	if len(hotels) != 2 {
		t.Fatalf("expected 2 hotels, got %d", len(hotels))
	}
	for _, hotel := range hotels {
		if hotel.PricePerNight != 0 {
			t.Fatalf("负价应被钳到 0: %+v", hotel)
		}
	}
}

func TestSearchHotelsUnknownCity(t *testing.T) {
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("unknown city must not reach the API")
	}))
	defer srv.Close()

	hotels := newTestClient(srv, time.Now()).SearchHotels(context.Background(), "Atlantis")
	if hotels == nil || len(hotels) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", hotels)
	}
}

func TestSearchHotelsSpacedCityName(t *testing.T) {
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "secret")

	var gotCode string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Destination struct {
				Code string `json:"code"`
			} `json:"destination"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotCode = body.Destination.Code
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"hotels":{"hotels":[]}}`))
	}))
	defer srv.Close()

	newTestClient(srv, time.Now()).SearchHotels(context.Background(), "New York")
	if gotCode != "NYC" {
		t.Fatalf("expected destination code NYC, got %q", gotCode)
	}
}

func TestSearchHotelsDegradesToEmpty(t *testing.T) {
	t.Setenv(envAPIKey, "key")
	t.Setenv(envAPISecret, "secret")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream failure", http.StatusBadGateway)
	}))
	defer srv.Close()

	hotels := newTestClient(srv, time.Now()).SearchHotels(context.Background(), "Rome")
	if hotels == nil || len(hotels) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", hotels)
	}
}

func TestSearchHotelsMissingCredentials(t *testing.T) {
	t.Setenv(envAPIKey, "")
	t.Setenv(envAPISecret, "")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("missing credentials must not reach the API")
	}))
	defer srv.Close()

	hotels := newTestClient(srv, time.Now()).SearchHotels(context.Background(), "Tokyo")
	if len(hotels) != 0 {
		t.Fatalf("expected empty result without credentials, got %d", len(hotels))
	}
}
