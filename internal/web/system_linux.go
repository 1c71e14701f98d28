//go:build linux

package web

import (
	"fmt"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

const cpuTempPath = "/sys/class/thermal/thermal_zone0/temp"

func snapshotHost() *HostSnapshot {
	h := &HostSnapshot{LocalAddrs: localInterfaceAddrs()}

	var st unix.Statfs_t
	if err := unix.Statfs("/", &st); err != nil {
		h.LastError = err.Error()
	} else {
		h.RootFreeBytes = st.Bavail * uint64(st.Bsize)
	}

	if c, err := readCPUTempCFromPath(cpuTempPath); err == nil {
		h.CPUTempC = &c
	}
	return h
}

// parseCPUTempC accepts the kernel's milli-degree integer and, on some
// boards, plain degrees.
func parseCPUTempC(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("cpu temp empty")
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("parse cpu temp %q: %w", s, err)
	}
	if n > 1000 {
		return float64(n) / 1000.0, nil
	}
	return float64(n), nil
}

func readCPUTempCFromPath(path string) (float64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read cpu temp: %w", err)
	}
	return parseCPUTempC(string(b))
}

func localInterfaceAddrs() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	out := make([]string, 0, 8)
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() || ip4.IsLinkLocalUnicast() {
				continue
			}
			out = append(out, iface.Name+": "+ipnet.String())
		}
	}
	sort.Strings(out)
	return out
}
