package web

import (
	"sync"
	"time"

	"bussola/internal/compass"
)

// HeadingUpdate is what websocket clients receive.
type HeadingUpdate struct {
	HeadingDeg int     `json:"heading_deg"`
	Precise    float64 `json:"heading_precise"`
	RawX       int16   `json:"raw_x"`
	RawY       int16   `json:"raw_y"`
	RawZ       int16   `json:"raw_z"`
	UpdatedUTC string  `json:"updated_utc"`
}

func UpdateFromReading(r compass.Reading) HeadingUpdate {
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	return HeadingUpdate{
		HeadingDeg: r.Heading,
		Precise:    r.Precise,
		RawX:       r.Raw.X,
		RawY:       r.Raw.Y,
		RawZ:       r.Raw.Z,
		UpdatedUTC: at.UTC().Format(time.RFC3339Nano),
	}
}

// HeadingBroadcaster fans heading changes out to websocket clients. It
// keeps the most recent value so new subscribers get it at once. Slow
// subscribers miss updates rather than block the publisher.
type HeadingBroadcaster struct {
	mu       sync.RWMutex
	subs     map[int]chan HeadingUpdate
	nextID   int
	last     HeadingUpdate
	haveLast bool
}

func NewHeadingBroadcaster() *HeadingBroadcaster {
	return &HeadingBroadcaster{
		subs: make(map[int]chan HeadingUpdate),
	}
}

func (b *HeadingBroadcaster) Subscribe(buffer int) (int, <-chan HeadingUpdate) {
	if b == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan HeadingUpdate, buffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	// Replay before the channel is visible to Publish.
	if b.haveLast {
		ch <- b.last
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	return id, ch
}

func (b *HeadingBroadcaster) Unsubscribe(id int) {
	if b == nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *HeadingBroadcaster) Subscribers() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *HeadingBroadcaster) Last() (HeadingUpdate, bool) {
	if b == nil {
		return HeadingUpdate{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.last, b.haveLast
}

func (b *HeadingBroadcaster) Publish(u HeadingUpdate) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = u
	b.haveLast = true
	for _, ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
}
