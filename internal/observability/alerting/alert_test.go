package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	xerrors "WaxAgentKit/internal/errors"
)

type recordingNotifier struct {
	channel Channel
	events  []Event
	err     error
}

func (r *recordingNotifier) Channel() Channel { return r.channel }

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.events = append(r.events, event)
	return r.err
}

func TestFanoutDeliversToEveryChannel(t *testing.T) {
	first := &recordingNotifier{channel: "a"}
	second := &recordingNotifier{channel: "b", err: errors.New("down")}
	d := NewFanout(first, nil, second)

	err := d.Notify(context.Background(), Event{Code: xerrors.CodeChainFailure, JobID: "j1"})
	if err == nil || !strings.Contains(err.Error(), "channel b") {
		t.Fatalf("expected joined error naming channel b, got %v", err)
	}
	if len(first.events) != 1 || len(second.events) != 1 {
		t.Fatalf("expected both notifiers to receive the event")
	}
	if first.events[0].OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be filled")
	}
	if got := d.Channels(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("unexpected channels: %v", got)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.Client = srv.Client()
	event := Event{Code: xerrors.CodeSwapFailure, Message: "swap failed", JobID: "j2", Tool: "alcor_swap_action"}
	if err := n.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if received.JobID != "j2" || received.Tool != "alcor_swap_action" || received.Code != xerrors.CodeSwapFailure {
		t.Fatalf("unexpected payload: %+v", received)
	}
}

func TestWebhookNotifierRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &WebhookNotifier{URL: srv.URL, Client: srv.Client()}
	err := n.Notify(context.Background(), Event{JobID: "j3"})
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("expected 502 error, got %v", err)
	}
}

func TestWebhookNotifierSkipsWhenUnconfigured(t *testing.T) {
	var n *WebhookNotifier
	if err := n.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error for unconfigured notifier, got %v", err)
	}
}
