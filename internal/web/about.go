package web

import (
	"net/http"
	"runtime"
	"runtime/debug"
	"time"
)

// SensorInfo is the static part of the about page.
type SensorInfo struct {
	Chip    string `json:"chip"`
	Backend string `json:"backend"`
	Address string `json:"address"`
	Control string `json:"control"`
}

type AboutResponse struct {
	Service   string     `json:"service"`
	NowUTC    string     `json:"now_utc"`
	GoVersion string     `json:"go_version"`
	Sensor    SensorInfo `json:"sensor"`
	Version   string     `json:"version,omitempty"`
	Commit    string     `json:"commit,omitempty"`
	Dirty     bool       `json:"dirty,omitempty"`
	BuildTime string     `json:"build_time,omitempty"`
}

func aboutHandler(sensor SensorInfo) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		resp := AboutResponse{
			Service:   "bussola",
			NowUTC:    time.Now().UTC().Format(time.RFC3339Nano),
			GoVersion: runtime.Version(),
			Sensor:    sensor,
		}
		if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
			resp.Version = bi.Main.Version
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					resp.Commit = s.Value
				case "vcs.modified":
					resp.Dirty = s.Value == "true"
				case "vcs.time":
					resp.BuildTime = s.Value
				}
			}
		}
		writeJSON(w, resp)
	})
}
