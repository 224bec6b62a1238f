package ingest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/cray-hpc/bmcrelay/internal/bmcrelay/observability"
)

const okBody = "<html><body><p>OK</p></body></html>"

// LaneStarter starts (or restarts) the lane at index i and returns the
// channel the Listener should now send payloads to for that index.
type LaneStarter func(index int) chan<- Payload

// Listener is an HTTP server that accepts pushed event payloads and
// dispatches them stickily, by client IP, across a fixed-size pool of
// lanes. Only POST is accepted; the configured paths are /redfish and
// /slingshot.
type Listener struct {
	addr    string
	lanes   int
	start   LaneStarter
	logger  *slog.Logger
	server  *http.Server

	// Metrics is nil unless the caller wires it after construction; every
	// increment checks for nil first.
	Metrics *observability.Metrics

	mu       sync.Mutex
	laneOf   map[string]int // client_ip -> lane index
	laneIn   []chan<- Payload
	nextLane int
}

// New creates a Listener bound to addr ("host:port"). start is invoked once
// per lane at startup and again whenever the supervisor detects a dead
// lane; it must return a fresh channel to send to.
func New(addr string, lanes int, start LaneStarter, logger *slog.Logger) *Listener {
	if lanes <= 0 {
		lanes = 1
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	l := &Listener{
		addr:   addr,
		lanes:  lanes,
		start:  start,
		logger: logger,
		laneOf: make(map[string]int),
		laneIn: make([]chan<- Payload, lanes),
	}
	for i := 0; i < lanes; i++ {
		l.laneIn[i] = start(i)
	}
	return l
}

// Start begins serving HTTP and blocks until ctx is cancelled or the server
// fails. A dead lane is restarted only when its index is passed to
// ReportDeadLane.
func (l *Listener) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/redfish", l.handle)
	mux.HandleFunc("/slingshot", l.handle)

	l.server = &http.Server{Addr: l.addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- l.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = l.server.Close()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop shuts the HTTP server down; in-flight requests are allowed to
// complete.
func (l *Listener) Stop(ctx context.Context) error {
	if l.server == nil {
		return nil
	}
	return l.server.Shutdown(ctx)
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		l.incRejected()
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if r.ContentLength < 0 {
		l.incRejected()
		w.WriteHeader(http.StatusLengthRequired)
		return
	}

	body := make([]byte, r.ContentLength)
	if _, err := io.ReadFull(r.Body, body); err != nil {
		l.incRejected()
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	l.incAccepted()
	clientIP := clientIPOf(r)

	// Respond before dispatch: pushers are not throttled by downstream
	// lane backpressure.
	w.Header().Set("Content-Type", "text/html")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, okBody)

	idx := l.laneIndexFor(clientIP)
	payload := Payload{Path: r.URL.Path, Headers: r.Header.Clone(), ClientIP: clientIP, Body: body}

	l.mu.Lock()
	ch := l.laneIn[idx]
	l.mu.Unlock()

	select {
	case ch <- payload:
	default:
		l.logger.Warn("ingest: lane input full, dropping payload", "lane", idx, "client_ip", clientIP)
	}
}

// laneIndexFor assigns each new client IP the next lane round-robin and
// remembers it for the lifetime of the process (stickiness).
func (l *Listener) laneIndexFor(clientIP string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if idx, ok := l.laneOf[clientIP]; ok {
		return idx
	}
	idx := l.nextLane % l.lanes
	l.nextLane++
	l.laneOf[clientIP] = idx
	return idx
}

// ReportDeadLane is called by a lane supervisor when lane idx's worker has
// died. The old channel is discarded, a replacement lane is started with a
// fresh channel, and every client sticky to idx continues to be routed
// there.
func (l *Listener) ReportDeadLane(idx int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Warn("ingest: lane died, restarting", "lane", idx)
	l.laneIn[idx] = l.start(idx)
}

func (l *Listener) incAccepted() {
	if l.Metrics != nil {
		l.Metrics.IngestAccepted.Inc()
	}
}

func (l *Listener) incRejected() {
	if l.Metrics != nil {
		l.Metrics.IngestRejected.Inc()
	}
}

func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
