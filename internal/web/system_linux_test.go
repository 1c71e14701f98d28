//go:build linux

package web

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParseCPUTempC(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"52345\n", 52.345},
		{"52", 52},
	}
	for _, tc := range cases {
		v, err := parseCPUTempC(tc.in)
		if err != nil {
			t.Fatalf("parseCPUTempC(%q): %v", tc.in, err)
		}
		if v < tc.want-1e-9 || v > tc.want+1e-9 {
			t.Fatalf("v=%v want %v", v, tc.want)
		}
	}
	if _, err := parseCPUTempC("\n"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := parseCPUTempC("hot"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestReadCPUTempCFromPath(t *testing.T) {
	p := filepath.Join(t.TempDir(), "temp")
	if err := os.WriteFile(p, []byte("42000\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	v, err := readCPUTempCFromPath(p)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if v != 42.0 {
		t.Fatalf("v=%v want 42.0", v)
	}
}

func TestSnapshotHost(t *testing.T) {
	h := snapshotHost()
	if h == nil {
		t.Fatalf("nil host snapshot")
	}
	if h.LastError == "" && h.RootFreeBytes == 0 {
		t.Fatalf("expected free bytes or an error")
	}
}
