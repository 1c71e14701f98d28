package web

import (
	"sync"
	"testing"
	"time"

	"bussola/internal/compass"
	"bussola/internal/sensors/qmc5883l"
)

func TestHeadingBroadcaster_ReplaysLast(t *testing.T) {
	b := NewHeadingBroadcaster()
	b.Publish(HeadingUpdate{HeadingDeg: 1})
	b.Publish(HeadingUpdate{HeadingDeg: 2})

	id, ch := b.Subscribe(1)
	defer b.Unsubscribe(id)
	select {
	case u := <-ch:
		if u.HeadingDeg != 2 {
			t.Fatalf("got=%d want=2", u.HeadingDeg)
		}
	default:
		t.Fatalf("no replay")
	}
}

func TestHeadingBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewHeadingBroadcaster()
	id, ch := b.Subscribe(1)
	for i := 0; i < 10; i++ {
		b.Publish(HeadingUpdate{HeadingDeg: i})
	}
	if u := <-ch; u.HeadingDeg != 0 {
		t.Fatalf("got=%d want=0", u.HeadingDeg)
	}
	if last, ok := b.Last(); !ok || last.HeadingDeg != 9 {
		t.Fatalf("last=%+v ok=%v", last, ok)
	}
	b.Unsubscribe(id)
	if _, open := <-ch; open {
		t.Fatalf("channel still open after Unsubscribe")
	}
	b.Unsubscribe(id)
}

func TestHeadingBroadcaster_Nil(t *testing.T) {
	var b *HeadingBroadcaster
	b.Publish(HeadingUpdate{})
	if _, ch := b.Subscribe(1); ch != nil {
		t.Fatalf("expected nil channel")
	}
	if b.Subscribers() != 0 {
		t.Fatalf("expected 0 subscribers")
	}
}

func TestUpdateFromReading(t *testing.T) {
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	u := UpdateFromReading(compass.Reading{
		Heading: 271,
		Precise: 271.6,
		Raw:     qmc5883l.Sample{X: -600, Y: 66, Z: 110},
		At:      at,
	})
	if u.HeadingDeg != 271 || u.Precise != 271.6 || u.RawX != -600 || u.RawZ != 110 {
		t.Fatalf("u=%+v", u)
	}
	if u.UpdatedUTC != "2024-06-01T12:00:00Z" {
		t.Fatalf("updated=%q", u.UpdatedUTC)
	}
}

func TestHeadingBroadcaster_ReplayNeverFollowsNewerValue(t *testing.T) {
	for i := 0; i < 200; i++ {
		b := NewHeadingBroadcaster()
		b.Publish(HeadingUpdate{HeadingDeg: 1})

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Publish(HeadingUpdate{HeadingDeg: 2})
		}()
		id, ch := b.Subscribe(4)
		wg.Wait()

		var got []int
		for len(ch) > 0 {
			got = append(got, (<-ch).HeadingDeg)
		}
		b.Unsubscribe(id)
		if len(got) == 0 || got[len(got)-1] != 2 {
			t.Fatalf("iteration %d: got=%v, last value must be 2", i, got)
		}
	}
}
