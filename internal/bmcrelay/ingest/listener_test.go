package ingest

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestListenerRejectsNonPost(t *testing.T) {
	lanes := []chan Payload{make(chan Payload, 1)}
	l := New("127.0.0.1:0", 1, func(i int) chan<- Payload { return lanes[i] }, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/redfish", nil)
	l.handle(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rr.Code)
	}
}

func TestListenerRespondsOKBeforeLaneConsumes(t *testing.T) {
	lanes := []chan Payload{make(chan Payload)} // unbuffered: dispatch can't complete until read
	l := New("127.0.0.1:0", 1, func(i int) chan<- Payload { return lanes[i] }, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/redfish", bytes.NewReader([]byte(`{"Events":[]}`)))
	req.ContentLength = int64(len(`{"Events":[]}`))
	req.RemoteAddr = "10.0.0.1:1234"

	done := make(chan struct{})
	go func() {
		l.handle(rr, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handle() blocked on lane dispatch instead of responding first")
	}

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != okBody {
		t.Errorf("body = %q", rr.Body.String())
	}

	// Drain so the dispatch send (best-effort via select/default) doesn't
	// leak; handle() itself never blocks on the channel.
	select {
	case <-lanes[0]:
	case <-time.After(time.Second):
	}
}

func TestListenerStickyDispatchSameClientSameLane(t *testing.T) {
	lanes := make([]chan Payload, 3)
	for i := range lanes {
		lanes[i] = make(chan Payload, 4)
	}
	l := New("127.0.0.1:0", 3, func(i int) chan<- Payload { return lanes[i] }, nil)

	first := l.laneIndexFor("10.0.0.1")
	for i := 0; i < 5; i++ {
		if got := l.laneIndexFor("10.0.0.1"); got != first {
			t.Fatalf("lane index changed across calls: %d != %d", got, first)
		}
	}
}

func TestListenerRoundRobinsNewClients(t *testing.T) {
	lanes := make([]chan Payload, 2)
	for i := range lanes {
		lanes[i] = make(chan Payload, 1)
	}
	l := New("127.0.0.1:0", 2, func(i int) chan<- Payload { return lanes[i] }, nil)

	a := l.laneIndexFor("10.0.0.1")
	b := l.laneIndexFor("10.0.0.2")
	if a == b {
		t.Errorf("expected distinct lanes for distinct clients, got %d and %d", a, b)
	}
}

func TestListenerReportDeadLaneRestarts(t *testing.T) {
	restarted := make(chan int, 1)
	l := New("127.0.0.1:0", 1, func(i int) chan<- Payload {
		ch := make(chan Payload, 1)
		select {
		case restarted <- i:
		default:
		}
		return ch
	}, nil)

	l.ReportDeadLane(0)

	select {
	case idx := <-restarted:
		if idx != 0 {
			t.Errorf("restarted lane %d, want 0", idx)
		}
	case <-time.After(time.Second):
		t.Fatal("ReportDeadLane did not restart the lane")
	}
}

func TestListenerContentLengthRequired(t *testing.T) {
	lanes := []chan Payload{make(chan Payload, 1)}
	l := New("127.0.0.1:0", 1, func(i int) chan<- Payload { return lanes[i] }, nil)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/redfish", bytes.NewReader(nil))
	req.ContentLength = -1
	l.handle(rr, req)

	if rr.Code != http.StatusLengthRequired {
		t.Errorf("status = %d, want 411", rr.Code)
	}
}
