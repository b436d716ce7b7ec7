package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// newTestClient points a client at the given test server.
func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Timeout: time.Second})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	client.httpClient = srv.Client()
	return client
}

func completionServer(t *testing.T, content string, capture *chatRequest, header *http.Header) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if header != nil {
			*header = r.Header.Clone()
		}
		defer r.Body.Close()
		if capture != nil {
			if err := json.NewDecoder(r.Body).Decode(capture); err != nil {
				t.Errorf("decode request: %v", err)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		})
	}))
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "   "}); err == nil {
		t.Fatal("expected an error for a blank api key")
	}
}

func TestCompleteTrimsContent(t *testing.T) {
	var (
		req    chatRequest
		header http.Header
	)
	srv := completionServer(t, "  {\"destination\":\"Paris\",\"destinationCode\":\"PAR\"}\n", &req, &header)
	defer srv.Close()

	client := newTestClient(t, srv)
	text, err := client.Complete(context.Background(), "resolve the destination")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if want := `{"destination":"Paris","destinationCode":"PAR"}`; text != want {
		t.Fatalf("completion = %q, want %q", text, want)
	}

	if got := header.Get("Authorization"); got != "Bearer test-key" {
		t.Fatalf("authorization header = %q", got)
	}
	if req.Model != defaultModelName {
		t.Fatalf("model = %q, want %q", req.Model, defaultModelName)
	}
	if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
		t.Fatalf("unexpected messages: %+v", req.Messages)
	}
}

func TestCompleteSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := newTestClient(t, srv)
	if _, err := client.Complete(context.Background(), "resolve"); err == nil {
		t.Fatal("expected an error for a non-2xx status")
	}
}

func TestCompleteRejectsEmptyReplies(t *testing.T) {
	cases := map[string]string{
		"no choices":    `{"choices":[]}`,
		"blank content": `{"choices":[{"message":{"content":"   "}}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			client := newTestClient(t, srv)
			if _, err := client.Complete(context.Background(), "resolve"); err == nil {
				t.Fatal("expected an error for an unusable reply")
			}
		})
	}
}
