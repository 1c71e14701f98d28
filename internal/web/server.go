package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"bussola/internal/compass"
	"bussola/internal/rose"
)

// Compass is the part of the compass service the UI needs.
type Compass interface {
	Snapshot() compass.Snapshot
	Reset(ctx context.Context) error
}

type Deps struct {
	Status   *Status
	Compass  Compass
	Logs     *LogBuffer
	Headings *HeadingBroadcaster
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Sensor  SensorInfo
}

func Handler(d Deps) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if d.Status == nil {
			http.Error(w, "status unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, d.Status.Snapshot(time.Now().UTC()))
	})

	mux.HandleFunc("/api/sensor/reset", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodPost) {
			return
		}
		if d.Compass == nil {
			http.Error(w, "compass unavailable", http.StatusNotFound)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := d.Compass.Reset(ctx); err != nil {
			code := http.StatusConflict
			if errors.Is(err, context.DeadlineExceeded) {
				code = http.StatusGatewayTimeout
			}
			http.Error(w, err.Error(), code)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("{\"ok\":true}\n"))
	})

	mux.HandleFunc("/rose.png", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		h := 0
		if s := r.URL.Query().Get("heading"); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 || v > 359 {
				http.Error(w, "heading must be an integer in [0,359]", http.StatusBadRequest)
				return
			}
			h = v
		} else if d.Compass != nil {
			h = d.Compass.Snapshot().HeadingDeg
		}
		b, err := rose.Render(h)
		if err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(b)
	})

	mux.Handle("/ws", headingWSHandler(d.Headings))

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}
	mux.Handle("/api/about", aboutHandler(d.Sensor))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !allow(w, r, http.MethodGet) {
			return
		}
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		var snap compass.Snapshot
		if d.Compass != nil {
			snap = d.Compass.Snapshot()
		}
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := indexTmpl.Execute(w, snap); err != nil {
			http.Error(w, "render failed", http.StatusInternalServerError)
		}
	})

	return mux
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	return false
}

func writeJSON(w http.ResponseWriter, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(b)
	_, _ = w.Write([]byte("\n"))
}

var indexTmpl = template.Must(template.New("index").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Bussola</title>
<meta name="viewport" content="width=device-width, initial-scale=1"></head>
<body style="font-family: sans-serif; text-align: center">
<img id="rose" src="/rose.png?heading={{.HeadingDeg}}" width="240" height="320" alt="compass rose">
<h1 id="hdg">{{printf "%03d" .HeadingDeg}}&deg;</h1>
<p>backend {{.Backend}} &middot; {{.Control}}</p>
<p><a href="/api/status">status</a> &middot; <a href="/api/logs?format=text">logs</a> &middot; <a href="/metrics">metrics</a></p>
<script>
(function () {
  var ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
  ws.onmessage = function (ev) {
    var u = JSON.parse(ev.data);
    var h = ("00" + u.heading_deg).slice(-3);
    document.getElementById("hdg").innerHTML = h + "&deg;";
    document.getElementById("rose").src = "/rose.png?heading=" + u.heading_deg;
  };
})();
</script>
</body></html>
`))

// Serve runs an HTTP server for h until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("web: listen %s: %w", listenAddr, err)
	}
}
