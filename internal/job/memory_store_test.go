package job

import (
	"context"
	"testing"
	"time"

	"TravelPlanner/internal/travel"
)

func sampleResult() travel.SearchResults {
	return travel.SearchResults{
		Flights: []travel.Flight{
			{Airline: "DemoAir", FlightNumber: "DA 100", FromAirport: "NYC", ToAirport: "LON", Price: 512.34},
		},
		Hotels: []travel.Hotel{},
	}
}

func TestMemoryStoreListWithFilters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-2 * time.Minute)

	jobs := []*Job{
		{ID: "j1", Query: "trip to Paris", Mode: "live", Status: StatusPending, MaxRetries: 3},
		{ID: "j2", Query: "trip to Rome", Mode: "live", Status: StatusFailed, MaxRetries: 3},
		{ID: "j3", Query: "trip to London", Mode: "mock", Status: StatusSucceeded, MaxRetries: 3},
	}

	for _, job := range jobs {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create job %s: %v", job.ID, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "j2", CodeJobProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "j3", sampleResult()); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.jobs["j1"].UpdatedAt = base.Unix()
	store.jobs["j2"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.jobs["j3"].UpdatedAt = base.Add(60 * time.Second).Unix()
	store.mu.Unlock()

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(all))
	}
	if all[0].ID != "j3" {
		t.Fatalf("expected newest job first, got %s", all[0].ID)
	}

	failed, err := store.List(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != "j2" {
		t.Fatalf("unexpected failed list: %+v", failed)
	}

	succeeded, err := store.List(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("list with result: %v", err)
	}
	if len(succeeded) != 1 || succeeded[0].ID != "j3" {
		t.Fatalf("unexpected result list: %+v", succeeded)
	}

	since := base.Add(15 * time.Second)
	recent, err := store.List(ctx, buildListOptions([]ListOption{WithUpdatedSince(since)}))
	if err != nil {
		t.Fatalf("list recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 jobs to match since filter, got %d", len(recent))
	}

	byQuery, err := store.List(ctx, buildListOptions([]ListOption{WithQuery("rome")}))
	if err != nil {
		t.Fatalf("list by query: %v", err)
	}
	if len(byQuery) != 1 || byQuery[0].ID != "j2" {
		t.Fatalf("unexpected query list: %+v", byQuery)
	}

	offset, err := store.List(ctx, buildListOptions([]ListOption{WithOffset(2)}))
	if err != nil {
		t.Fatalf("list with offset: %v", err)
	}
	if len(offset) != 1 || offset[0].ID != "j1" {
		t.Fatalf("unexpected offset list: %+v", offset)
	}
}

func TestMemoryStoreClaimLifecycle(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, &Job{ID: "j1", Query: "trip to Tokyo", Mode: "live", Status: StatusPending, MaxRetries: 2}); err != nil {
		t.Fatalf("create: %v", err)
	}

	claimed, err := store.Claim(ctx, "j1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != StatusRunning || claimed.Attempts != 1 {
		t.Fatalf("unexpected claimed job: %+v", claimed)
	}

	if _, err := store.Claim(ctx, "j1"); !IsJobError(err, CodeJobConflict) {
		t.Fatalf("expected conflict while running, got %v", err)
	}

	if err := store.MarkSucceeded(ctx, "j1", sampleResult()); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}
	if _, err := store.Claim(ctx, "j1"); !IsJobError(err, CodeJobCompleted) {
		t.Fatalf("expected completed error, got %v", err)
	}

	got, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Result == nil || len(got.Result.Flights) != 1 {
		t.Fatalf("result not persisted: %+v", got)
	}

	// 返回值是深拷贝，修改不应影响存储内的结果。
	got.Result.Flights[0].Airline = "mutated"
	again, _ := store.Get(ctx, "j1")
	if again.Result.Flights[0].Airline != "DemoAir" {
		t.Fatalf("store result mutated through clone: %+v", again.Result.Flights[0])
	}
}

func TestMemoryStoreStats(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	base := time.Now().Add(-3 * time.Minute)
	jobs := []*Job{
		{ID: "a", Query: "q1", Mode: "live", Status: StatusPending, MaxRetries: 3},
		{ID: "b", Query: "q2", Mode: "live", Status: StatusPending, MaxRetries: 3},
		{ID: "c", Query: "q3", Mode: "mock", Status: StatusPending, MaxRetries: 3},
	}

	for _, job := range jobs {
		if err := store.Create(ctx, job); err != nil {
			t.Fatalf("create job %s: %v", job.ID, err)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if err := store.MarkFailed(ctx, "b", CodeJobProcessing, "boom", true); err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if err := store.MarkSucceeded(ctx, "c", sampleResult()); err != nil {
		t.Fatalf("mark succeeded: %v", err)
	}

	store.mu.Lock()
	store.jobs["a"].UpdatedAt = base.Unix()
	store.jobs["b"].UpdatedAt = base.Add(30 * time.Second).Unix()
	store.jobs["c"].UpdatedAt = base.Add(2 * time.Minute).Unix()
	store.mu.Unlock()

	stats, err := store.Stats(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Pending != 1 || stats.Failed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.NewestUpdatedAt != base.Add(2*time.Minute).Unix() {
		t.Fatalf("unexpected newest timestamp: %d", stats.NewestUpdatedAt)
	}
	if stats.OldestUpdatedAt != base.Unix() {
		t.Fatalf("unexpected oldest timestamp: %d", stats.OldestUpdatedAt)
	}

	withResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(true)}))
	if err != nil {
		t.Fatalf("stats with result: %v", err)
	}
	if withResults.Total != 1 || withResults.Succeeded != 1 {
		t.Fatalf("unexpected stats with result: %+v", withResults)
	}

	withoutResults, err := store.Stats(ctx, buildListOptions([]ListOption{WithResultPresence(false)}))
	if err != nil {
		t.Fatalf("stats without result: %v", err)
	}
	if withoutResults.Total != 2 || withoutResults.Pending != 1 || withoutResults.Failed != 1 {
		t.Fatalf("unexpected stats without result: %+v", withoutResults)
	}

	failedOnly, err := store.Stats(ctx, buildListOptions([]ListOption{WithStatuses(StatusFailed)}))
	if err != nil {
		t.Fatalf("stats failed only: %v", err)
	}
	if failedOnly.Total != 1 || failedOnly.Failed != 1 {
		t.Fatalf("unexpected failed stats: %+v", failedOnly)
	}
}
