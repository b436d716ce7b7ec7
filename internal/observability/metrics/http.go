// Package metrics collects HTTP request metrics and exposes them in the
// Prometheus text format on a standalone listener. The collector is
// hand-rolled: three metric families are all this service needs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	familyRequests = "travelplanner_http_requests_total"
	familyErrors   = "travelplanner_http_request_errors_total"
	familyDuration = "travelplanner_http_request_duration_seconds"
)

// Latency buckets in seconds, chosen around LLM-backed request times.
var durationBuckets = [...]float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

type series struct {
	handler string
	method  string
	code    string
}

func (s series) less(other series) bool {
	if s.handler != other.handler {
		return s.handler < other.handler
	}
	if s.method != other.method {
		return s.method < other.method
	}
	return s.code < other.code
}

type histogram struct {
	counts [len(durationBuckets)]uint64
	sum    float64
	total  uint64
}

func (h *histogram) observe(seconds float64) {
	h.total++
	h.sum += seconds
	for i, bound := range durationBuckets {
		if seconds <= bound {
			h.counts[i]++
		}
	}
}

type collector struct {
	mu        sync.Mutex
	requests  map[series]uint64
	errors    map[series]uint64
	durations map[series]*histogram
}

var httpCollector = &collector{
	requests:  make(map[series]uint64),
	errors:    make(map[series]uint64),
	durations: make(map[series]*histogram),
}

// ObserveHTTPRequest records one finished HTTP request.
func ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	httpCollector.observe(handler, method, status, duration)
}

func (c *collector) observe(handler, method string, status int, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.requests[series{handler: handler, method: method, code: strconv.Itoa(status)}]++
	if status >= 500 {
		c.errors[series{handler: handler, method: method}]++
	}

	key := series{handler: handler, method: method}
	hist := c.durations[key]
	if hist == nil {
		hist = &histogram{}
		c.durations[key] = hist
	}
	hist.observe(duration.Seconds())
}

// Handler serves the collected metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, httpCollector.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.Grow(2048)

	writeHeader(&b, familyRequests, "counter", "Total number of HTTP requests processed.")
	for _, key := range sortedKeys(c.requests) {
		fmt.Fprintf(&b, "%s{handler=%q,method=%q,code=%q} %d\n",
			familyRequests, key.handler, key.method, key.code, c.requests[key])
	}

	writeHeader(&b, familyErrors, "counter", "Total number of HTTP requests that ended in a server error.")
	for _, key := range sortedKeys(c.errors) {
		fmt.Fprintf(&b, "%s{handler=%q,method=%q} %d\n",
			familyErrors, key.handler, key.method, c.errors[key])
	}

	writeHeader(&b, familyDuration, "histogram", "HTTP request duration in seconds.")
	for _, key := range sortedKeys(c.durations) {
		hist := c.durations[key]
		for i, bound := range durationBuckets {
			fmt.Fprintf(&b, "%s_bucket{handler=%q,method=%q,le=%q} %d\n",
				familyDuration, key.handler, key.method, formatFloat(bound), hist.counts[i])
		}
		fmt.Fprintf(&b, "%s_bucket{handler=%q,method=%q,le=\"+Inf\"} %d\n",
			familyDuration, key.handler, key.method, hist.total)
		fmt.Fprintf(&b, "%s_sum{handler=%q,method=%q} %s\n",
			familyDuration, key.handler, key.method, formatFloat(hist.sum))
		fmt.Fprintf(&b, "%s_count{handler=%q,method=%q} %d\n",
			familyDuration, key.handler, key.method, hist.total)
	}

	return b.String()
}

func writeHeader(b *strings.Builder, family, kind, help string) {
	fmt.Fprintf(b, "# HELP %s %s\n# TYPE %s %s\n", family, help, family, kind)
}

func sortedKeys[V any](m map[series]V) []series {
	keys := make([]series, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer runs a standalone listener exposing /metrics until the context
// is cancelled.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
