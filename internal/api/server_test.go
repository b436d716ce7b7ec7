package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"TravelPlanner/internal/job"
	"TravelPlanner/internal/pipeline"
	"TravelPlanner/internal/travel"
)

type stubRunner struct {
	results *travel.SearchResults
	err     error
	gotMode pipeline.Mode
}

func (s *stubRunner) Run(_ context.Context, _ string, mode pipeline.Mode) (*travel.SearchResults, error) {
	s.gotMode = mode
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

func TestHandleSearchSuccess(t *testing.T) {
	runner := &stubRunner{results: &travel.SearchResults{
		Flights: []travel.Flight{{Airline: "DemoAir", FlightNumber: "DA 100", FromAirport: "NYC", ToAirport: "LON", Price: 512.34}},
		Hotels:  []travel.Hotel{},
	}}
	server := NewServer(":0", nil, runner)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search",
		strings.NewReader(`{"query":"flights to London","mode":"live"}`))
	rec := httptest.NewRecorder()

	server.handleSearch(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status code: got %d want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if runner.gotMode != pipeline.ModeLive {
		t.Fatalf("unexpected mode: %q", runner.gotMode)
	}

	var got travel.SearchResults
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got.Flights) != 1 || got.Flights[0].ToAirport != "LON" {
		t.Fatalf("unexpected results: %+v", got)
	}
}

func TestHandleSearchErrors(t *testing.T) {
	t.Run("invalid method", func(t *testing.T) {
		server := NewServer(":0", nil, &stubRunner{})
		req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
		rec := httptest.NewRecorder()

		server.handleSearch(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("empty query", func(t *testing.T) {
		server := NewServer(":0", nil, &stubRunner{})
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"  "}`))
		rec := httptest.NewRecorder()

		server.handleSearch(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("output parse failure carries raw text", func(t *testing.T) {
		runner := &stubRunner{err: &travel.OutputParseError{Raw: "not json at all"}}
		server := NewServer(":0", nil, runner)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"query":"trip to Rome"}`))
		rec := httptest.NewRecorder()

		server.handleSearch(rec, req)

		if rec.Code != http.StatusBadGateway {
			t.Fatalf("expected status %d, got %d", http.StatusBadGateway, rec.Code)
		}
		var body map[string]string
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode error body: %v", err)
		}
		if body["raw_output"] != "not json at all" {
			t.Fatalf("raw output missing from response: %+v", body)
		}
	})
}

func TestHandleSubmitAndDetail(t *testing.T) {
	svc := job.NewService(job.NewMemoryStore(), job.NewMemoryQueue(16), 3)
	server := NewServer(":0", svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/searches",
		strings.NewReader(`{"query":"weekend in Paris","mode":"mock"}`))
	rec := httptest.NewRecorder()

	server.handleSearches(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("unexpected status code: got %d, body: %s", rec.Code, rec.Body.String())
	}
	var submitted job.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &submitted); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if submitted.ID == "" || submitted.Status != job.StatusPending {
		t.Fatalf("unexpected submitted job: %+v", submitted)
	}

	detailReq := httptest.NewRequest(http.MethodGet, "/api/v1/searches/"+submitted.ID, nil)
	detailRec := httptest.NewRecorder()

	server.handleSearchDetail(detailRec, detailReq)

	if detailRec.Code != http.StatusOK {
		t.Fatalf("unexpected detail status: %d", detailRec.Code)
	}
	var got job.Job
	if err := json.Unmarshal(detailRec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if got.ID != submitted.ID || got.Query != "weekend in Paris" {
		t.Fatalf("unexpected detail job: %+v", got)
	}
}

func TestHandleSearchDetailErrors(t *testing.T) {
	svc := job.NewService(job.NewMemoryStore(), job.NewMemoryQueue(4), 3)
	server := NewServer(":0", svc, nil)

	t.Run("invalid method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/searches/abc", nil)
		rec := httptest.NewRecorder()

		server.handleSearchDetail(rec, req)

		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})

	t.Run("missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/searches/", nil)
		rec := httptest.NewRecorder()

		server.handleSearchDetail(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/searches/missing", nil)
		rec := httptest.NewRecorder()

		server.handleSearchDetail(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})
}

func TestHandleSearchStats(t *testing.T) {
	svc := job.NewService(job.NewMemoryStore(), job.NewMemoryQueue(4), 3)
	server := NewServer(":0", svc, nil)

	if _, err := svc.Submit(context.Background(), job.SubmitRequest{Query: "trip to Tokyo", Mode: "mock"}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/searches/stats", nil)
	rec := httptest.NewRecorder()

	server.handleSearchStats(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
	var stats job.JobStats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestListOptionsFromQuery(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/searches?limit=5&status=failed,succeeded&has_result=true&order=asc&q=rome", nil)
	opts, err := listOptionsFromQuery(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(opts) != 5 {
		t.Fatalf("expected 5 options, got %d", len(opts))
	}

	badReq := httptest.NewRequest(http.MethodGet, "/api/v1/searches?status=bogus", nil)
	if _, err := listOptionsFromQuery(badReq); err == nil {
		t.Fatal("invalid status should be rejected")
	}
}
