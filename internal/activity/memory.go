package activity

import (
	"context"
	"sync"

	"github.com/congo-pay/walletcore/internal/events"
)

type memoryLog struct {
	mu     sync.RWMutex
	events []events.CardEvent
	keys   map[string]struct{}
}

// NewInMemory creates an in-memory event log.
func NewInMemory() Log {
	return &memoryLog{keys: make(map[string]struct{})}
}

func (l *memoryLog) Record(_ context.Context, evt events.CardEvent) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := evt.DedupeKey()
	if _, seen := l.keys[key]; seen {
		return false, nil
	}
	l.keys[key] = struct{}{}
	l.events = append(l.events, evt)
	return true, nil
}

func (l *memoryLog) List(_ context.Context, ownerID string, limit int) ([]events.CardEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []events.CardEvent
	for i := len(l.events) - 1; i >= 0; i-- {
		if l.events[i].OwnerID == ownerID {
			out = append(out, l.events[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
