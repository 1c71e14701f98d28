package rose

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestCardinalMarks_NorthUp(t *testing.T) {
	got := CardinalMarks(90)
	want := [4]Mark{
		{Label: 'N', X: 120, Y: 60},
		{Label: 'S', X: 120, Y: 260},
		{Label: 'E', X: 220, Y: 160},
		{Label: 'W', X: 20, Y: 160},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("marks mismatch (-want +got):\n%s", diff)
	}
}

func TestCardinalMarks_ZeroHeading(t *testing.T) {
	got := CardinalMarks(0)
	if got[0] != (Mark{Label: 'N', X: 220, Y: 160}) {
		t.Fatalf("north=%+v", got[0])
	}
	if got[1] != (Mark{Label: 'S', X: 20, Y: 160}) {
		t.Fatalf("south=%+v", got[1])
	}
}

func TestCardinalMarks_OnRing(t *testing.T) {
	for h := 0; h < 360; h += 7 {
		for _, m := range CardinalMarks(h) {
			dx, dy := float64(m.X-centerX), float64(m.Y-centerY)
			d := dx*dx + dy*dy
			if d < 99*99 || d > 101*101 {
				t.Fatalf("heading %d mark %c at (%d,%d) off the ring", h, m.Label, m.X, m.Y)
			}
		}
	}
}

func TestLabel(t *testing.T) {
	cases := map[int]string{0: "000", 7: "007", 45: "045", 359: "359"}
	for in, want := range cases {
		if got := Label(in); got != want {
			t.Fatalf("Label(%d)=%q want %q", in, got, want)
		}
	}
}

func TestRender_PNG(t *testing.T) {
	b, err := Render(123)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got := img.Bounds().Size(); got.X != Width || got.Y != Height {
		t.Fatalf("size=%v want %dx%d", got, Width, Height)
	}
	// Outer ring pixel directly below the centre.
	if r, g, b, _ := img.At(centerX+1, centerY+radius).RGBA(); r != 0 || g != 0 || b != 0 {
		t.Fatalf("ring pixel=(%d,%d,%d) want black", r, g, b)
	}
	// Inside the arrow.
	if _, g, _, _ := img.At(centerX, 150).RGBA(); g>>8 != 0xA0 {
		t.Fatalf("arrow pixel not green")
	}
}
