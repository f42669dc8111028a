package app

import (
	"sync"

	"github.com/roamly/xpledger/internal/domain/model"
)

const signalBuffer = 64

// broadcaster fans award signals out to subscribers. Delivery is best-effort;
// signals drive transient UI feedback, so a slow subscriber loses signals
// rather than stalling the award path.
type broadcaster struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan model.Signal
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[int]chan model.Signal)}
}

// Notify implements award.Notifier.
func (b *broadcaster) Notify(s model.Signal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
		}
	}
}

// subscribe returns a signal channel and its cancel func.
func (b *broadcaster) subscribe() (<-chan model.Signal, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan model.Signal, signalBuffer)
	b.subs[id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// closeAll tears down every subscriber.
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
