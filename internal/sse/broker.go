// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// SyncEvent is the payload of a sync.completed event.
type SyncEvent struct {
	RunID   string `json:"run_id"`
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
}

// Changed reports whether the sync altered the index.
func (e SyncEvent) Changed() bool {
	return e.Added+e.Updated+e.Deleted > 0
}

// GraphUpdate is the payload of a graph.updated event: the sync runs folded
// into it and their summed counts. RunID is the latest of those runs.
type GraphUpdate struct {
	RunID   string `json:"run_id"`
	Runs    int    `json:"runs"`
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
}

func (g *GraphUpdate) fold(ev SyncEvent) {
	g.RunID = ev.RunID
	g.Runs++
	g.Added += ev.Added
	g.Updated += ev.Updated
	g.Deleted += ev.Deleted
}

// Broker manages SSE client connections and broadcasts events.
//
// A single loop goroutine owns the clients and the graph throttle; public
// methods talk to it over channels.
//
// graph.updated is sent at most once per throttle interval. A changing sync
// inside the interval is folded into a pending update that goes out when the
// interval ends.
type Broker struct {
	graphMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	syncEventCh   chan SyncEvent
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker with the given graph throttle interval.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin:      graphThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		syncEventCh:   make(chan SyncEvent, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

// loopState is owned by the run goroutine.
type loopState struct {
	clients   map[chan []byte]struct{}
	lastGraph time.Time
	pending   *GraphUpdate
	timer     *time.Timer
}

func (st *loopState) broadcast(event Event) {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return
	}
	raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
	for ch := range st.clients {
		select {
		case ch <- raw:
		default:
			// Slow client; drop rather than stall the loop.
		}
	}
}

// flushGraph sends the pending graph update, if any, and restarts the interval.
func (st *loopState) flushGraph(now time.Time) {
	if st.pending == nil {
		return
	}
	st.broadcast(Event{Type: "graph.updated", Data: *st.pending})
	st.pending = nil
	st.lastGraph = now
}

func (b *Broker) run() {
	defer close(b.stopped)

	st := &loopState{clients: make(map[chan []byte]struct{})}
	var flush <-chan time.Time
	defer func() {
		if st.timer != nil {
			st.timer.Stop()
		}
	}()

	for {
		select {
		case <-b.stopCh:
			for ch := range st.clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			st.clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := st.clients[ch]; ok {
				delete(st.clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			st.broadcast(event)

		case ev := <-b.syncEventCh:
			st.broadcast(Event{Type: "sync.completed", Data: ev})
			if !ev.Changed() {
				continue
			}
			if st.pending == nil {
				st.pending = &GraphUpdate{}
			}
			st.pending.fold(ev)

			now := time.Now()
			wait := b.graphMin - now.Sub(st.lastGraph)
			if wait <= 0 {
				st.flushGraph(now)
				continue
			}
			if flush == nil {
				st.timer = time.NewTimer(wait)
				flush = st.timer.C
			}

		case now := <-flush:
			flush, st.timer = nil, nil
			st.flushGraph(now)

		case resp := <-b.countReqCh:
			resp <- len(st.clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishSync publishes sync.completed and, when the index changed, folds the
// counts into the next graph.updated event.
func (b *Broker) PublishSync(ev SyncEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.syncEventCh <- ev:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
