package main

import (
	"context"
	"time"

	"bussola/internal/compass"
)

const summaryInterval = 60 * time.Second

type summary struct {
	Window      time.Duration
	Samples     uint64
	Emitted     uint64
	EmptyCycles uint64
	ReadErrors  uint64
	Recoveries  uint64
	Overflows   uint64
	SampleRate  float64
}

// summarize reports the counter deltas between two snapshots taken window
// apart. A counter that went backwards is treated as restarted.
func summarize(prev, cur compass.Snapshot, window time.Duration) summary {
	s := summary{
		Window:      window,
		Samples:     delta(prev.Samples, cur.Samples),
		Emitted:     delta(prev.Emitted, cur.Emitted),
		EmptyCycles: delta(prev.EmptyCycles, cur.EmptyCycles),
		ReadErrors:  delta(prev.ReadErrors, cur.ReadErrors),
		Recoveries:  delta(prev.Recoveries, cur.Recoveries),
		Overflows:   delta(prev.Overflows, cur.Overflows),
	}
	if window > 0 {
		s.SampleRate = float64(s.Samples) / window.Seconds()
	}
	return s
}

func delta(prev, cur uint64) uint64 {
	if cur < prev {
		return cur
	}
	return cur - prev
}

func (r *runtime) logSummaries(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	prev := r.compass.Snapshot()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		cur := r.compass.Snapshot()
		s := summarize(prev, cur, every)
		prev = cur
		r.log.Infow("compass summary",
			"heading", cur.HeadingDeg,
			"valid", cur.Valid,
			"samples", s.Samples,
			"sample_rate_hz", s.SampleRate,
			"emitted", s.Emitted,
			"empty_cycles", s.EmptyCycles,
			"read_errors", s.ReadErrors,
			"recoveries", s.Recoveries,
			"overflows", s.Overflows,
			"dropped", r.dropped.Load(),
		)
	}
}
