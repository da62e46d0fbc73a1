// Package logring implements the live log ring buffer backing the `logs`
// action (§4.6, §5): a multi-producer single... really multi-consumer
// broadcaster where producers (the logging layer) never block and consumers
// may miss entries if they fall behind. Adapted from the teacher's
// internal/eventbus drop-on-full fanout, generalized from per-user channels
// to a single server-wide log stream, and given a Write method so it can be
// plugged directly into pslog as an additional sink.
package logring

import (
	"bytes"
	"sync"

	"pkt.systems/pslog"
)

// Line is one log line captured by the ring.
type Line struct {
	Text string
}

// Ring fans out log lines to subscribers (one per concurrent `logs` action).
type Ring struct {
	mu    sync.Mutex
	subs  map[chan Line]struct{}
	log   pslog.Logger
	depth int

	partial bytes.Buffer
}

// New constructs a Ring with the given per-subscriber channel depth.
func New(depth int, logger pslog.Logger) *Ring {
	if depth <= 0 {
		depth = 4096
	}
	return &Ring{
		subs:  make(map[chan Line]struct{}),
		log:   logger,
		depth: depth,
	}
}

// Subscribe registers a subscriber and returns its channel plus a cancel func.
func (r *Ring) Subscribe() (<-chan Line, func()) {
	if r == nil {
		return nil, func() {}
	}
	ch := make(chan Line, r.depth)
	r.mu.Lock()
	r.subs[ch] = struct{}{}
	r.mu.Unlock()
	return ch, func() {
		r.mu.Lock()
		delete(r.subs, ch)
		r.mu.Unlock()
		close(ch)
	}
}

// Publish fans a line out to every subscriber, dropping it for subscribers
// whose channel is full rather than blocking the producer.
func (r *Ring) Publish(text string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	subs := make([]chan Line, 0, len(r.subs))
	for sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.Unlock()
	if len(subs) == 0 {
		return
	}
	dropped := 0
	line := Line{Text: text}
	for _, sub := range subs {
		select {
		case sub <- line:
		default:
			dropped++
		}
	}
	if dropped > 0 && r.log != nil {
		r.log.Trace("logring dropped", "count", dropped)
	}
}

// Write implements io.Writer so a Ring can be wired in as a pslog sink
// alongside stderr. Partial lines are buffered until a newline completes them.
func (r *Ring) Write(p []byte) (int, error) {
	if r == nil {
		return len(p), nil
	}
	r.mu.Lock()
	r.partial.Write(p)
	var complete []string
	for {
		buf := r.partial.Bytes()
		idx := bytes.IndexByte(buf, '\n')
		if idx < 0 {
			break
		}
		complete = append(complete, string(buf[:idx]))
		r.partial.Next(idx + 1)
	}
	r.mu.Unlock()
	for _, line := range complete {
		r.Publish(line)
	}
	return len(p), nil
}
