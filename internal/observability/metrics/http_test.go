package metrics

import (
	"strings"
	"testing"
	"time"
)

func TestCollectorRendersAllFamilies(t *testing.T) {
	c := &collector{
		requests:  make(map[series]uint64),
		errors:    make(map[series]uint64),
		durations: make(map[series]*histogram),
	}

	c.observe("search", "POST", 200, 40*time.Millisecond)
	c.observe("search", "POST", 200, 2*time.Second)
	c.observe("search", "POST", 502, 100*time.Millisecond)

	output := c.render()
	for _, want := range []string{
		`travelplanner_http_requests_total{handler="search",method="POST",code="200"} 2`,
		`travelplanner_http_requests_total{handler="search",method="POST",code="502"} 1`,
		`travelplanner_http_request_errors_total{handler="search",method="POST"} 1`,
		`travelplanner_http_request_duration_seconds_bucket{handler="search",method="POST",le="+Inf"} 3`,
		`travelplanner_http_request_duration_seconds_count{handler="search",method="POST"} 3`,
	} {
		if !strings.Contains(output, want) {
			t.Fatalf("render output missing %q:\n%s", want, output)
		}
	}
}

func TestHistogramBucketsAreCumulative(t *testing.T) {
	var h histogram
	h.observe(0.25) // 落在 0.25 及以上的所有桶
	h.observe(2.0)  // 落在 2.5 及以上的所有桶

	if got := h.counts[len(durationBuckets)-1]; got != 2 {
		t.Fatalf("最大桶应包含所有观测: %d", got)
	}
	if got := h.counts[0]; got != 0 {
		t.Fatalf("0.025 桶不应有观测: %d", got)
	}
	if h.total != 2 || h.sum != 2.25 {
		t.Fatalf("unexpected totals: total=%d sum=%v", h.total, h.sum)
	}
}
