// Package notify fans ledger events out to in-process observers: webhook
// delivery, metrics, the live event stream and the audit log.
//
// Notify only enqueues. A single dispatcher goroutine drains the queue in
// publish order, hands each event to the watchers and then publishes it on
// an asynchronous topic bus keyed by event kind. Watchers see events in
// global publish order. Subscribers see the events of one kind in order,
// one at a time, but two kinds are delivered independently, so a
// subscriber to several kinds may see comment.added before the
// post.created it refers to.
//
// A slow subscriber delays later events of its kind, never the ledger.
// When the queue is full, new events are dropped and logged.
package notify

import (
	"errors"
	"fmt"
	"sync"

	evbus "github.com/asaskevich/EventBus"
	"github.com/jmerrifield20/socialmedia/internal/social"
	"go.uber.org/zap"
)

// ErrClosed is returned by Subscribe and Watch after Close.
var ErrClosed = errors.New("notify hub closed")

// DefaultQueueSize is the number of events Notify buffers for the
// dispatcher.
const DefaultQueueSize = 1024

// Hub is a social.Notifier that republishes every event on a topic bus.
type Hub struct {
	bus    evbus.Bus
	logger *zap.Logger

	qmu     sync.RWMutex // guards closed and sends on queue
	closed  bool
	queue   chan social.Event
	pending sync.WaitGroup
	done    chan struct{}

	mu       sync.Mutex
	watchers map[int]*watcher
	nextID   int
}

type watcher struct {
	kinds map[social.EventKind]bool // empty = all kinds
	ch    chan social.Event
}

// New creates a Hub with a DefaultQueueSize queue.
func New(logger *zap.Logger) *Hub {
	return NewWithQueue(DefaultQueueSize, logger)
}

// NewWithQueue creates a Hub that buffers up to size undispatched events.
func NewWithQueue(size int, logger *zap.Logger) *Hub {
	if size < 1 {
		size = 1
	}
	h := &Hub{
		bus:      evbus.New(),
		logger:   logger,
		queue:    make(chan social.Event, size),
		done:     make(chan struct{}),
		watchers: make(map[int]*watcher),
	}
	go h.dispatch()
	return h
}

// Notify implements social.Notifier. It never blocks.
func (h *Hub) Notify(ev social.Event) {
	h.qmu.RLock()
	defer h.qmu.RUnlock()
	if h.closed {
		return
	}
	h.pending.Add(1)
	select {
	case h.queue <- ev:
	default:
		h.pending.Done()
		h.logger.Warn("event queue full; dropping event",
			zap.String("kind", string(ev.Kind)),
			zap.Uint64("post_id", ev.PostID),
		)
	}
}

func (h *Hub) dispatch() {
	defer close(h.done)
	for ev := range h.queue {
		h.fanout(ev)
		h.bus.Publish(string(ev.Kind), ev)
		h.pending.Done()
	}
}

func (h *Hub) isClosed() bool {
	h.qmu.RLock()
	defer h.qmu.RUnlock()
	return h.closed
}

// Subscribe registers fn for the given kinds, or every kind when none are
// given. Events of one kind reach fn in publish order, one at a time.
// Subscriptions live as long as the Hub.
func (h *Hub) Subscribe(fn func(social.Event), kinds ...social.EventKind) error {
	if h.isClosed() {
		return ErrClosed
	}
	if len(kinds) == 0 {
		kinds = social.EventKinds
	}
	for _, k := range kinds {
		if !k.Valid() {
			return fmt.Errorf("subscribe: unknown event kind %q", k)
		}
	}
	for _, k := range kinds {
		// Wrap per kind so every topic gets its own ordered handler goroutine.
		handler := func(ev social.Event) { fn(ev) }
		if err := h.bus.SubscribeAsync(string(k), handler, true); err != nil {
			return fmt.Errorf("subscribe %s: %w", k, err)
		}
	}
	return nil
}

// Watch returns a channel of events for short-lived consumers such as
// stream clients, and a cancel func that detaches it. Events arrive in
// publish order across all kinds. If the consumer falls more than buffer
// events behind, further events are dropped for it.
func (h *Hub) Watch(buffer int, kinds ...social.EventKind) (<-chan social.Event, func(), error) {
	if h.isClosed() {
		return nil, nil, ErrClosed
	}
	w := &watcher{kinds: make(map[social.EventKind]bool), ch: make(chan social.Event, buffer)}
	for _, k := range kinds {
		if !k.Valid() {
			return nil, nil, fmt.Errorf("watch: unknown event kind %q", k)
		}
		w.kinds[k] = true
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.watchers[id] = w
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if _, ok := h.watchers[id]; ok {
				delete(h.watchers, id)
				close(w.ch)
			}
			h.mu.Unlock()
		})
	}
	return w.ch, cancel, nil
}

func (h *Hub) fanout(ev social.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, w := range h.watchers {
		if len(w.kinds) > 0 && !w.kinds[ev.Kind] {
			continue
		}
		select {
		case w.ch <- ev:
		default:
			h.logger.Warn("event watcher lagging; dropping event",
				zap.Int("watcher", id),
				zap.String("kind", string(ev.Kind)),
			)
		}
	}
}

// Close stops accepting events, dispatches what is queued, waits for
// in-flight deliveries to finish and closes every watcher channel.
func (h *Hub) Close() {
	h.qmu.Lock()
	if h.closed {
		h.qmu.Unlock()
		return
	}
	h.closed = true
	close(h.queue)
	h.qmu.Unlock()

	<-h.done
	h.bus.WaitAsync()

	h.mu.Lock()
	for id, w := range h.watchers {
		close(w.ch)
		delete(h.watchers, id)
	}
	h.mu.Unlock()
}

// Drain blocks until every event notified so far has been handed to its
// observers. It must not run concurrently with Notify.
func (h *Hub) Drain() {
	h.pending.Wait()
	h.bus.WaitAsync()
}
