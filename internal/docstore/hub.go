package docstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/pkordes/travelogue/internal/domain"
)

// Hub fans change notifications out to live queries.
//
// Backends call Publish with a collection path after every write (or when
// an external change feed reports one). Each listener owns a goroutine that
// re-runs its read when kicked; kicks that arrive while a read is running
// are coalesced into one follow-up read, so a listener never falls behind
// and its callbacks never overlap.
type Hub struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[string]map[*listener]struct{}
}

// NewHub returns an empty Hub. A nil logger uses slog.Default().
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{log: log, subs: make(map[string]map[*listener]struct{})}
}

type listener struct {
	kick    chan struct{}
	done    chan struct{}
	once    sync.Once
	stopped atomic.Bool
}

func (l *listener) stop() {
	l.once.Do(func() {
		l.stopped.Store(true)
		close(l.done)
	})
}

// Publish wakes every listener on collection.
func (h *Hub) Publish(collection string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for l := range h.subs[collection] {
		select {
		case l.kick <- struct{}{}:
		default:
			// A read is already pending for this listener.
		}
	}
}

// Listeners returns the number of active listeners on collection.
func (h *Hub) Listeners(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[collection])
}

// subscribe registers run on topic and starts its goroutine. run is invoked
// once immediately and again after every Publish.
func (h *Hub) subscribe(ctx context.Context, topic string, run func(ctx context.Context, l *listener)) Unsubscribe {
	l := &listener{kick: make(chan struct{}, 1), done: make(chan struct{})}

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*listener]struct{})
	}
	h.subs[topic][l] = struct{}{}
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unsubscribe := func() {
		l.stop()
		cancel()
		h.mu.Lock()
		delete(h.subs[topic], l)
		if len(h.subs[topic]) == 0 {
			delete(h.subs, topic)
		}
		h.mu.Unlock()
	}

	go func() {
		for {
			run(ctx, l)
			select {
			case <-l.kick:
			case <-l.done:
				return
			}
		}
	}()
	return unsubscribe
}

// WatchQuery runs query for q whenever q.Collection changes and delivers the
// result when it differs from the last delivered one. The subscription ends
// when the returned Unsubscribe is called or ctx is cancelled.
func (h *Hub) WatchQuery(
	ctx context.Context,
	q Query,
	query func(context.Context, Query) ([]Snapshot, error),
	onSnap func([]Snapshot),
	onErr func(error),
) Unsubscribe {
	var last []Snapshot
	first := true
	unsub := h.subscribe(ctx, q.Collection, func(ctx context.Context, l *listener) {
		snaps, err := query(ctx, q)
		if l.stopped.Load() {
			return
		}
		if err != nil {
			h.deliverErr(onErr, err)
			return
		}
		if !first && sameResult(last, snaps) {
			return
		}
		first = false
		last = snaps
		onSnap(cloneSnapshots(snaps))
	})
	return h.bindContext(ctx, unsub)
}

// WatchDoc is WatchQuery for a single document. A missing document is
// delivered once as Exists == false.
func (h *Hub) WatchDoc(
	ctx context.Context,
	p Path,
	get func(context.Context, Path) (Snapshot, error),
	onSnap func(Snapshot),
	onErr func(error),
) Unsubscribe {
	var last Snapshot
	first := true
	unsub := h.subscribe(ctx, p.Collection(), func(ctx context.Context, l *listener) {
		snap, err := get(ctx, p)
		if errors.Is(err, domain.ErrNotFound) {
			snap, err = Snapshot{ID: p.ID(), Path: p}, nil
		}
		if l.stopped.Load() {
			return
		}
		if err != nil {
			h.deliverErr(onErr, err)
			return
		}
		if !first && last.Exists == snap.Exists && last.Version == snap.Version {
			return
		}
		first = false
		last = snap
		snap.Data = Clone(snap.Data)
		onSnap(snap)
	})
	return h.bindContext(ctx, unsub)
}

func (h *Hub) deliverErr(onErr func(error), err error) {
	if onErr == nil {
		h.log.Warn("docstore: live query error", "error", err)
		return
	}
	onErr(err)
}

// bindContext stops the subscription when ctx ends.
func (h *Hub) bindContext(ctx context.Context, unsub Unsubscribe) Unsubscribe {
	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			close(done)
			unsub()
		})
	}
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				stop()
			case <-done:
			}
		}()
	}
	return stop
}

func sameResult(a, b []Snapshot) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].Path != b[i].Path || a[i].Version != b[i].Version {
			return false
		}
	}
	return true
}

func cloneSnapshots(snaps []Snapshot) []Snapshot {
	out := make([]Snapshot, len(snaps))
	for i, s := range snaps {
		s.Data = Clone(s.Data)
		out[i] = s
	}
	return out
}
