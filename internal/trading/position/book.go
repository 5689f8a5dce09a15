package position

import (
	"sort"
	"sync"

	"github.com/Alias1177/MoexSignal/models"
)

// Key identifies one position: a user trading one instrument
type Key struct {
	UserID       int64
	InstrumentID string
}

// Book holds open positions per user and instrument. Evaluations for the same
// key are serialized with Lock; different keys proceed in parallel.
type Book struct {
	mu        sync.Mutex
	positions map[Key]*models.Position
	locks     map[Key]*sync.Mutex
}

func NewBook() *Book {
	return &Book{
		positions: make(map[Key]*models.Position),
		locks:     make(map[Key]*sync.Mutex),
	}
}

// Lock acquires the per-key lock and returns the function that releases it
func (b *Book) Lock(key Key) func() {
	b.mu.Lock()
	l, ok := b.locks[key]
	if !ok {
		l = &sync.Mutex{}
		b.locks[key] = l
	}
	b.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Get returns a copy of the position, nil when flat
func (b *Book) Get(key Key) *models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.positions[key].Clone()
}

// Set stores the position; a nil or empty position clears the key
func (b *Book) Set(key Key, p *models.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if p == nil || p.Quantity <= 0 {
		delete(b.positions, key)
		return
	}
	b.positions[key] = p.Clone()
}

func (b *Book) Delete(key Key) {
	b.Set(key, nil)
}

// Open returns copies of all open positions
func (b *Book) Open() map[Key]*models.Position {
	b.mu.Lock()
	defer b.mu.Unlock()

	open := make(map[Key]*models.Position, len(b.positions))
	for k, p := range b.positions {
		open[k] = p.Clone()
	}
	return open
}

// Keys returns the keys of open positions in a stable order
func (b *Book) Keys() []Key {
	b.mu.Lock()
	keys := make([]Key, 0, len(b.positions))
	for k := range b.positions {
		keys = append(keys, k)
	}
	b.mu.Unlock()

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].UserID != keys[j].UserID {
			return keys[i].UserID < keys[j].UserID
		}
		return keys[i].InstrumentID < keys[j].InstrumentID
	})
	return keys
}
