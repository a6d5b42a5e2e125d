// Package sse streams issue changes to browsers as Server-Sent Events so a
// presentation layer knows when to re-derive its listing from the ledger.
//
// Frames carry a monotonically increasing id. A client that reconnects with
// Last-Event-ID gets the frames it missed, as long as they are still in the
// backlog.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/parkwatch/internal/models"
)

// Issue event kinds accepted by PublishIssueEvent.
const (
	KindCreated = "created"
	KindVoted   = "voted"
	KindChanged = "changed"
)

// Event names on the wire.
const (
	EventReady         = "ready"
	EventIssueCreated  = "issue.created"
	EventIssueVoted    = "issue.voted"
	EventIssuesChanged = "issues.changed"
	EventStatsUpdated  = "stats.updated"
)

const (
	defaultBacklog   = 64
	defaultHeartbeat = 25 * time.Second
	clientBuffer     = 64
	statsTimeout     = 5 * time.Second
)

// StatsFunc computes the tally carried by stats.updated.
type StatsFunc func(ctx context.Context) (models.StatusCounts, error)

// StatsPayload is the data of a stats.updated frame.
type StatsPayload struct {
	models.StatusCounts
	Total int `json:"total"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithStats makes stats.updated frames carry the counts returned by fn.
// Without it the frame only signals that counts may have changed.
func WithStats(fn StatsFunc) Option {
	return func(b *Broker) { b.stats = fn }
}

// WithBacklog sets how many frames are kept for Last-Event-ID replay.
func WithBacklog(n int) Option {
	return func(b *Broker) {
		if n >= 0 {
			b.backlog = n
		}
	}
}

// WithHeartbeat sets the interval of keep-alive comments on idle streams.
func WithHeartbeat(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithLogger sets the broker logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

type frame struct {
	id   uint64
	name string
	data []byte
}

func (f frame) encode() []byte {
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", f.id, f.name, f.data)
}

type issueEvent struct {
	kind string
	id   string
}

type joinReq struct {
	ch chan []byte
	// after is the last frame id the client saw; 0 means a fresh stream.
	after uint64
	done  chan struct{}
}

type statsResult struct {
	counts models.StatusCounts
	err    error
}

// Broker fans issue events out to connected streams.
//
// One loop goroutine owns the client set, the backlog, the frame counter and
// the stats throttle; public methods talk to it over channels.
type Broker struct {
	statsMin  time.Duration
	stats     StatsFunc
	backlog   int
	heartbeat time.Duration
	logger    *slog.Logger

	joinCh   chan joinReq
	leaveCh  chan chan []byte
	eventCh  chan issueEvent
	statsCh  chan statsResult
	countReq chan chan int

	ctx     context.Context
	cancel  context.CancelFunc
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a broker. stats.updated is emitted at most once per
// statsThrottle; an event inside the window schedules one trailing frame so
// the last change is always reflected.
func NewBroker(statsThrottle time.Duration, opts ...Option) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Broker{
		statsMin:  statsThrottle,
		backlog:   defaultBacklog,
		heartbeat: defaultHeartbeat,
		logger:    slog.Default(),
		joinCh:    make(chan joinReq),
		leaveCh:   make(chan chan []byte),
		eventCh:   make(chan issueEvent, 256),
		statsCh:   make(chan statsResult),
		countReq:  make(chan chan int),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// loop state, owned by run.
type loop struct {
	clients  map[chan []byte]struct{}
	history  []frame
	seq      uint64
	lastStat time.Time
	inFlight bool
	trailing bool
}

func (b *Broker) run() {
	defer close(b.stopped)

	st := &loop{clients: make(map[chan []byte]struct{})}
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-b.ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			for ch := range st.clients {
				close(ch)
			}
			return

		case req := <-b.joinCh:
			for _, f := range st.history {
				if req.after > 0 && f.id > req.after {
					select {
					case req.ch <- f.encode():
					default:
					}
				}
			}
			st.clients[req.ch] = struct{}{}
			close(req.done)

		case ch := <-b.leaveCh:
			if _, ok := st.clients[ch]; ok {
				delete(st.clients, ch)
				close(ch)
			}

		case ev := <-b.eventCh:
			name, data, ok := issueFrame(ev)
			if !ok {
				continue
			}
			b.emit(st, name, data)

			if timer != nil {
				continue
			}
			if wait := b.statsMin - time.Since(st.lastStat); wait > 0 {
				timer = time.NewTimer(wait)
				timerC = timer.C
				continue
			}
			b.requestStats(st)

		case <-timerC:
			timer, timerC = nil, nil
			b.requestStats(st)

		case res := <-b.statsCh:
			st.inFlight = false
			if res.err != nil {
				b.logger.Warn("sse: stats failed", slog.String("error", res.err.Error()))
			} else {
				data, _ := json.Marshal(StatsPayload{StatusCounts: res.counts, Total: res.counts.Total()})
				b.emit(st, EventStatsUpdated, data)
			}
			if st.trailing {
				st.trailing = false
				b.requestStats(st)
			}

		case resp := <-b.countReq:
			resp <- len(st.clients)
		}
	}
}

func issueFrame(ev issueEvent) (string, []byte, bool) {
	var name, field string
	switch ev.kind {
	case KindCreated:
		name, field = EventIssueCreated, "id"
	case KindVoted:
		name, field = EventIssueVoted, "id"
	case KindChanged:
		name, field = EventIssuesChanged, "key"
	default:
		return "", nil, false
	}
	data, _ := json.Marshal(map[string]string{field: ev.id})
	return name, data, true
}

// emit numbers a frame, records it in the backlog and sends it to every
// client. Slow clients whose buffer is full miss the frame.
func (b *Broker) emit(st *loop, name string, data []byte) {
	st.seq++
	f := frame{id: st.seq, name: name, data: data}
	if b.backlog > 0 {
		if len(st.history) == b.backlog {
			st.history = append(st.history[:0], st.history[1:]...)
		}
		st.history = append(st.history, f)
	}
	raw := f.encode()
	for ch := range st.clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

// requestStats emits stats.updated now or, when a tally is being computed,
// once more after it lands.
func (b *Broker) requestStats(st *loop) {
	st.lastStat = time.Now()
	if b.stats == nil {
		b.emit(st, EventStatsUpdated, []byte("{}"))
		return
	}
	if st.inFlight {
		st.trailing = true
		return
	}
	st.inFlight = true
	go func() {
		ctx, cancel := context.WithTimeout(b.ctx, statsTimeout)
		defer cancel()
		counts, err := b.stats(ctx)
		select {
		case b.statsCh <- statsResult{counts: counts, err: err}:
		case <-b.stopped:
		}
	}()
}

// Close stops the loop and closes every client stream.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		b.cancel()
	}
	<-b.stopped
}

// PublishIssueEvent reports an issue change. Unknown kinds are dropped.
func (b *Broker) PublishIssueEvent(kind, id string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- issueEvent{kind: kind, id: id}:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected streams.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	select {
	case b.countReq <- resp:
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

func (b *Broker) join(after uint64) (chan []byte, bool) {
	ch := make(chan []byte, clientBuffer)
	req := joinReq{ch: ch, after: after, done: make(chan struct{})}
	select {
	case b.joinCh <- req:
		<-req.done
		return ch, true
	case <-b.stopped:
		return nil, false
	}
}

func (b *Broker) leave(ch chan []byte) {
	select {
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). It writes a ready
// frame, replays frames after Last-Event-ID, then streams until the client
// goes away.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	after, _ := strconv.ParseUint(r.Header.Get("Last-Event-ID"), 10, 64)
	ch, ok := b.join(after)
	if !ok {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	defer b.leave(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: 3000\nevent: %s\ndata: {}\n\n", EventReady)
	flusher.Flush()

	ping := time.NewTicker(b.heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
