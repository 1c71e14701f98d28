package main

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bussola/internal/compass"
)

func TestSummarize(t *testing.T) {
	prev := compass.Snapshot{Samples: 100, Emitted: 10, EmptyCycles: 5, ReadErrors: 1}
	cur := compass.Snapshot{Samples: 700, Emitted: 25, EmptyCycles: 8, ReadErrors: 1, Recoveries: 1, Overflows: 2}

	got := summarize(prev, cur, time.Minute)
	want := summary{
		Window:      time.Minute,
		Samples:     600,
		Emitted:     15,
		EmptyCycles: 3,
		Recoveries:  1,
		Overflows:   2,
		SampleRate:  10,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestSummarize_CounterRestart(t *testing.T) {
	got := summarize(compass.Snapshot{Samples: 50}, compass.Snapshot{Samples: 7}, 0)
	if got.Samples != 7 || got.SampleRate != 0 {
		t.Fatalf("got=%+v want samples=7 rate=0", got)
	}
}
