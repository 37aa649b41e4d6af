package framemsg

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aussiebroadwan/checkout/pkg/slogx"
)

// Bus is an in-process Source. Hosts feed it every inbound message with
// Dispatch; listeners run synchronously in subscription order.
type Bus struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[uint64]Listener
	order     []uint64
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{listeners: make(map[uint64]Listener)}
}

// Subscribe implements Source. The returned function is idempotent.
func (b *Bus) Subscribe(l Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.next++
	id := b.next
	b.listeners[id] = l
	b.order = append(b.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.listeners, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Dispatch delivers env to every current listener.
func (b *Bus) Dispatch(env Envelope) {
	b.mu.RLock()
	snapshot := make([]Listener, 0, len(b.order))
	for _, id := range b.order {
		snapshot = append(snapshot, b.listeners[id])
	}
	b.mu.RUnlock()

	for _, l := range snapshot {
		l(env)
	}
}

// DispatchMessage encodes msg and dispatches it as if posted from origin.
func (b *Bus) DispatchMessage(origin string, msg Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	b.Dispatch(Envelope{Origin: origin, Data: data})
	return nil
}

// Listeners reports how many listeners are registered.
func (b *Bus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// ForwardLogs re-emits log entries posted by the frame at origin into
// logger, tagged with the frame's namespace. Call the returned function to
// stop forwarding.
func ForwardLogs(src Source, origin string, logger *slog.Logger) func() {
	return src.Subscribe(func(env Envelope) {
		if env.Origin != origin {
			return
		}
		msg := Decode(env.Data)
		if msg.Type != TypeLog || msg.Entry == nil {
			return
		}

		e := msg.Entry
		attrs := []any{"frame_namespace", e.Namespace, "frame_ts_ms", e.TimestampMs}
		if e.SessionID != "" {
			attrs = append(attrs, "session_id", e.SessionID)
		}
		if len(e.Data) > 0 {
			attrs = append(attrs, "data", string(e.Data))
		}

		logger.Log(context.Background(), slogx.ParseLevel(e.Level), e.Message, attrs...)
	})
}
