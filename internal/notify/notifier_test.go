package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestBroadcastReachesAllContexts(t *testing.T) {
	notifier := NewNotifier(discardLogger())
	first := notifier.Subscribe()
	second := notifier.Subscribe()

	notifier.Broadcast(NetworkStatus{Online: true})

	for _, sub := range []*AppContext{first, second} {
		select {
		case msg := <-sub.C:
			status, ok := msg.(NetworkStatus)
			if !ok || !status.Online {
				t.Fatalf("expected NetworkStatus{Online:true}, got %#v", msg)
			}
		case <-time.After(time.Second):
			t.Fatalf("context %s did not receive broadcast", sub.ID)
		}
	}
}

func TestBroadcastDropsWhenBufferFull(t *testing.T) {
	notifier := NewNotifier(discardLogger())
	sub := notifier.Subscribe()

	for i := 0; i < contextBuffer+5; i++ {
		notifier.Broadcast(SyncTodos{Tag: "sync-todos"})
	}

	received := 0
	for {
		select {
		case <-sub.C:
			received++
		default:
			if received != contextBuffer {
				t.Fatalf("expected exactly %d buffered messages, got %d", contextBuffer, received)
			}
			return
		}
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	notifier := NewNotifier(discardLogger())
	sub := notifier.Subscribe()
	notifier.Unsubscribe(sub.ID)

	if _, ok := <-sub.C; ok {
		t.Fatalf("channel should be closed after unsubscribe")
	}
	if notifier.Count() != 0 {
		t.Fatalf("expected zero contexts, got %d", notifier.Count())
	}
	notifier.Unsubscribe(sub.ID) // idempotent
}

func TestProbeReportsOnline(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	prober := NewProber(upstream.URL, time.Second, discardLogger())
	if !prober.Check(context.Background()) {
		t.Fatalf("reachable endpoint should report online")
	}
}

func TestProbeReportsOfflineOnErrorAndBadStatus(t *testing.T) {
	prober := NewProber("http://127.0.0.1:1", time.Second, discardLogger())
	if prober.Check(context.Background()) {
		t.Fatalf("unreachable endpoint should report offline")
	}

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer upstream.Close()

	prober = NewProber(upstream.URL, time.Second, discardLogger())
	if prober.Check(context.Background()) {
		t.Fatalf("5xx endpoint should report offline")
	}
}

func TestDispatchCheckNetworkReplies(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	notifier := NewNotifier(discardLogger())
	prober := NewProber(upstream.URL, time.Second, discardLogger())
	dispatcher := NewDispatcher(notifier, prober, nil, discardLogger())

	reply := make(chan bool, 1)
	if err := dispatcher.Dispatch(context.Background(), CheckNetwork{Reply: reply}); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	select {
	case online := <-reply:
		if !online {
			t.Fatalf("expected online=true reply")
		}
	case <-time.After(time.Second):
		t.Fatalf("no probe reply received")
	}
}

func TestDispatchSkipWaitingInvokesCutover(t *testing.T) {
	notifier := NewNotifier(discardLogger())
	invoked := false
	cutover := func(context.Context) error {
		invoked = true
		return nil
	}
	dispatcher := NewDispatcher(notifier, NewProber("http://127.0.0.1:1", time.Second, nil), cutover, discardLogger())

	if err := dispatcher.Dispatch(context.Background(), SkipWaiting{}); err != nil {
		t.Fatalf("dispatch error: %v", err)
	}
	if !invoked {
		t.Fatalf("cutover should run on SKIP_WAITING")
	}
}

func TestEnvelopeShapes(t *testing.T) {
	env := Envelope(NetworkStatus{Online: false})
	if env["type"] != "NETWORK_STATUS" {
		t.Fatalf("unexpected type: %v", env["type"])
	}
	if env["online"] != false {
		t.Fatalf("unexpected online flag: %v", env["online"])
	}

	env = Envelope(SyncTodos{Tag: "sync-todos"})
	if env["type"] != "SYNC_TODOS" || env["tag"] != "sync-todos" {
		t.Fatalf("unexpected sync envelope: %v", env)
	}
}
