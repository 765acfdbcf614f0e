package sessionctl

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// stateHub fans state snapshots out to subscribers on one goroutine, in the
// order they were published. Publish never blocks and never calls subscriber
// code, so it is safe to use while holding the controller lock.
type stateHub struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []delivery
	subs   map[uint64]func(State)
	nextID uint64
	closed bool

	done chan struct{}
}

type delivery struct {
	state State
	fns   []func(State)
}

func newStateHub(logger *slog.Logger) *stateHub {
	h := &stateHub{
		logger: logger,
		subs:   make(map[uint64]func(State)),
		done:   make(chan struct{}),
	}
	h.cond = sync.NewCond(&h.mu)
	go h.run()
	return h
}

func (h *stateHub) Publish(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed || len(h.subs) == 0 {
		return
	}
	ids := make([]uint64, 0, len(h.subs))
	for id := range h.subs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	fns := make([]func(State), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, h.subs[id])
	}
	h.queue = append(h.queue, delivery{state: s, fns: fns})
	h.cond.Signal()
}

func (h *stateHub) Subscribe(fn func(State)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return func() {}
	}
	h.nextID++
	id := h.nextID
	h.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

// Close delivers what is already queued, then stops the goroutine.
func (h *stateHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		<-h.done
		return
	}
	h.closed = true
	h.cond.Broadcast()
	h.mu.Unlock()
	<-h.done
}

func (h *stateHub) run() {
	defer close(h.done)
	for {
		h.mu.Lock()
		for len(h.queue) == 0 && !h.closed {
			h.cond.Wait()
		}
		if len(h.queue) == 0 && h.closed {
			h.mu.Unlock()
			return
		}
		d := h.queue[0]
		h.queue[0] = delivery{}
		h.queue = h.queue[1:]
		h.mu.Unlock()

		for _, fn := range d.fns {
			h.deliver(fn, d.state)
		}
	}
}

func (h *stateHub) deliver(fn func(State), s State) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("sessionctl: state subscriber panicked", "panic", r)
		}
	}()
	fn(s)
}

// Subscribe registers fn for every state published after the call and returns
// a function that removes it. Callbacks run on a single goroutine in
// publication order and may call back into the controller.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	if c == nil || fn == nil {
		return func() {}
	}
	return c.hub.Subscribe(fn)
}

// Watch returns a channel that carries the current state immediately and
// then the most recent state after each change. Intermediate states may be
// coalesced when the reader falls behind. The channel closes when ctx ends.
func (c *Controller) Watch(ctx context.Context) <-chan State {
	if ctx == nil {
		ctx = context.Background()
	}
	ch := make(chan State, 1)
	if c == nil {
		close(ch)
		return ch
	}

	var (
		mu     sync.Mutex
		closed bool
	)
	send := func(s State) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case <-ch:
		default:
		}
		ch <- s
	}

	// Snapshot and registration happen under the controller lock so no
	// publish can fall between them.
	c.mu.Lock()
	unsubscribe := c.hub.Subscribe(send)
	send(c.snapshotLocked())
	c.mu.Unlock()

	go func() {
		<-ctx.Done()
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	}()
	return ch
}
