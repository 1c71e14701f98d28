package web

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"bussola/internal/compass"
)

// OutputStatus counts what one output sink has done.
type OutputStatus struct {
	Dest      string `json:"dest"`
	Sent      uint64 `json:"sent"`
	Errors    uint64 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

type Status struct {
	startUnixNano int64
	compass       func() compass.Snapshot

	mu      sync.Mutex
	outputs map[string]*OutputStatus
}

func NewStatus(src func() compass.Snapshot) *Status {
	s := &Status{compass: src, outputs: map[string]*OutputStatus{}}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	return s
}

// AddOutput registers a sink so it shows up before its first send.
func (s *Status) AddOutput(name, dest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.outputs[name]; !ok {
		s.outputs[name] = &OutputStatus{Dest: dest}
	}
}

// MarkOutput records one send attempt by the named sink.
func (s *Status) MarkOutput(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outputs[name]
	if !ok {
		o = &OutputStatus{}
		s.outputs[name] = o
	}
	if err != nil {
		o.Errors++
		o.LastError = err.Error()
		return
	}
	o.Sent++
}

type StatusSnapshot struct {
	Service   string                  `json:"service"`
	NowUTC    string                  `json:"now_utc"`
	UptimeSec int64                   `json:"uptime_sec"`
	Compass   compass.Snapshot        `json:"compass"`
	Outputs   map[string]OutputStatus `json:"outputs"`
	OutputIDs []string                `json:"output_ids"`
	Host      *HostSnapshot           `json:"host,omitempty"`
}

type HostSnapshot struct {
	CPUTempC      *float64 `json:"cpu_temp_c,omitempty"`
	RootFreeBytes uint64   `json:"root_free_bytes,omitempty"`
	LocalAddrs    []string `json:"local_addrs,omitempty"`
	LastError     string   `json:"last_error,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "bussola",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		Outputs:   map[string]OutputStatus{},
		Host:      snapshotHost(),
	}
	if s.compass != nil {
		snap.Compass = s.compass()
	}

	s.mu.Lock()
	for name, o := range s.outputs {
		snap.Outputs[name] = *o
		snap.OutputIDs = append(snap.OutputIDs, name)
	}
	s.mu.Unlock()
	sort.Strings(snap.OutputIDs)
	return snap
}
