package alerting

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "TravelPlanner/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
}

func (n *recordingNotifier) Channel() Channel { return n.channel }

func (n *recordingNotifier) Notify(_ context.Context, event Event) error {
	n.events = append(n.events, event)
	return nil
}

func TestFanoutDeliversToAllChannels(t *testing.T) {
	logChan := &recordingNotifier{channel: ChannelLog}
	slackChan := &recordingNotifier{channel: ChannelSlack}
	dispatcher := NewFanout(logChan, slackChan, nil)

	event := Event{
		Code:     xerrors.Code("JOB_PROCESSING_FAILED"),
		Message:  "combine step failed",
		JobID:    "job-1",
		Attempts: 2,
	}
	if err := dispatcher.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	if len(logChan.events) != 1 || len(slackChan.events) != 1 {
		t.Fatalf("expected one event per channel, got %d/%d", len(logChan.events), len(slackChan.events))
	}
	if logChan.events[0].JobID != "job-1" {
		t.Fatalf("unexpected event: %+v", logChan.events[0])
	}
}

func TestSlackWebhookSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewSlackWebhookSender(srv.URL)
	sender.httpClient = srv.Client()

	if err := sender.Send(context.Background(), "#travel-alerts", "job failed"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["text"] != "job failed" || got["channel"] != "#travel-alerts" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSlackWebhookSenderRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	sender := NewSlackWebhookSender(srv.URL)
	sender.httpClient = srv.Client()

	if err := sender.Send(context.Background(), "", "job failed"); err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
