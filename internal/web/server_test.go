package web

import (
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"bussola/internal/compass"
)

type fakeCompass struct {
	snap     compass.Snapshot
	resetErr error
	resets   int
}

func (f *fakeCompass) Snapshot() compass.Snapshot { return f.snap }

func (f *fakeCompass) Reset(ctx context.Context) error {
	f.resets++
	return f.resetErr
}

func newTestServer(t *testing.T, d Deps) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(Handler(d))
	t.Cleanup(ts.Close)
	return ts
}

func TestAPIStatus(t *testing.T) {
	fc := &fakeCompass{snap: compass.Snapshot{Backend: "sim", HeadingDeg: 87, Running: true}}
	st := NewStatus(fc.Snapshot)
	st.AddOutput("udp", "127.0.0.1:10110")
	st.MarkOutput("udp", nil)
	st.MarkOutput("udp", errors.New("refused"))

	ts := newTestServer(t, Deps{Status: st, Compass: fc})

	resp, err := http.Get(ts.URL + "/api/status")
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type=%q", ct)
	}

	var snap StatusSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if snap.Service != "bussola" {
		t.Fatalf("service=%q", snap.Service)
	}
	if snap.Compass.HeadingDeg != 87 || snap.Compass.Backend != "sim" {
		t.Fatalf("compass=%+v", snap.Compass)
	}
	udp := snap.Outputs["udp"]
	if udp.Dest != "127.0.0.1:10110" || udp.Sent != 1 || udp.Errors != 1 || udp.LastError != "refused" {
		t.Fatalf("udp=%+v", udp)
	}
	if len(snap.OutputIDs) != 1 || snap.OutputIDs[0] != "udp" {
		t.Fatalf("output_ids=%v", snap.OutputIDs)
	}
}

func TestAPIStatus_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Deps{Status: NewStatus(nil)})
	resp, err := http.Post(ts.URL+"/api/status", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != http.MethodGet {
		t.Fatalf("code=%d allow=%q", resp.StatusCode, resp.Header.Get("Allow"))
	}
}

func TestAPISensorReset(t *testing.T) {
	fc := &fakeCompass{}
	ts := newTestServer(t, Deps{Compass: fc})

	resp, err := http.Get(ts.URL + "/api/sensor/reset")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("code=%d want 405", resp.StatusCode)
	}

	resp, err = http.Post(ts.URL+"/api/sensor/reset", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || fc.resets != 1 {
		t.Fatalf("code=%d resets=%d", resp.StatusCode, fc.resets)
	}

	fc.resetErr = errors.New("compass: not running")
	resp, err = http.Post(ts.URL+"/api/sensor/reset", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("code=%d want 409", resp.StatusCode)
	}
}

func TestRosePNG(t *testing.T) {
	fc := &fakeCompass{snap: compass.Snapshot{HeadingDeg: 200}}
	ts := newTestServer(t, Deps{Compass: fc})

	for _, q := range []string{"", "?heading=45"} {
		resp, err := http.Get(ts.URL + "/rose.png" + q)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
			t.Fatalf("content-type=%q", ct)
		}
		if _, err := png.Decode(resp.Body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/rose.png?heading=360")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("code=%d want 400", resp.StatusCode)
	}
}

func TestRootPage(t *testing.T) {
	fc := &fakeCompass{snap: compass.Snapshot{HeadingDeg: 7, Backend: "sim"}}
	ts := newTestServer(t, Deps{Compass: fc})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get root: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status code=%d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(b), "007") || !strings.Contains(string(b), "/rose.png?heading=7") {
		t.Fatalf("body=%s", b)
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("code=%d want 404", resp.StatusCode)
	}
}

func TestMetricsMounted(t *testing.T) {
	m := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, "up 1\n") })
	ts := newTestServer(t, Deps{Metrics: m})
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "up 1\n" {
		t.Fatalf("body=%q", b)
	}
}

func TestAbout(t *testing.T) {
	ts := newTestServer(t, Deps{Sensor: SensorInfo{Chip: "QMC5883L", Backend: "sim", Address: "0x0D"}})
	resp, err := http.Get(ts.URL + "/api/about")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var about AboutResponse
	if err := json.NewDecoder(resp.Body).Decode(&about); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if about.Service != "bussola" || about.Sensor.Chip != "QMC5883L" || about.GoVersion == "" {
		t.Fatalf("about=%+v", about)
	}
}

func TestWebSocketStreamsHeadings(t *testing.T) {
	hb := NewHeadingBroadcaster()
	hb.Publish(HeadingUpdate{HeadingDeg: 10})
	ts := newTestServer(t, Deps{Headings: hb})

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var u HeadingUpdate
	if err := conn.ReadJSON(&u); err != nil {
		t.Fatalf("read: %v", err)
	}
	if u.HeadingDeg != 10 {
		t.Fatalf("first=%d want 10 (last value replayed)", u.HeadingDeg)
	}

	hb.Publish(HeadingUpdate{HeadingDeg: 11})
	if err := conn.ReadJSON(&u); err != nil {
		t.Fatalf("read: %v", err)
	}
	if u.HeadingDeg != 11 {
		t.Fatalf("second=%d want 11", u.HeadingDeg)
	}

	conn.Close()
	deadline := time.Now().Add(2 * time.Second)
	for hb.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber not removed after close")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestWebSocketUnavailable(t *testing.T) {
	ts := newTestServer(t, Deps{})
	resp, err := http.Get(ts.URL + "/ws")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("code=%d want 404", resp.StatusCode)
	}
}
