// Package rose draws the compass card: a 240x320 portrait with the cardinal
// letters orbiting a fixed arrow and the heading printed underneath.
package rose

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"
)

const (
	Width  = 240
	Height = 320

	centerX = 120
	centerY = 160
	radius  = 100
)

var (
	white = color.RGBA{0xFF, 0xFF, 0xFF, 0xFF}
	black = color.RGBA{0x00, 0x00, 0x00, 0xFF}
	green = color.RGBA{0x00, 0xA0, 0x00, 0xFF}
)

// Mark is a cardinal letter and the top-left pixel it is drawn at.
type Mark struct {
	Label rune
	X, Y  int
}

// CardinalMarks places N, S, E and W on the outer ring. North sits at the
// heading angle measured counter-clockwise from the +X axis of the screen;
// south is opposite, east a quarter turn clockwise and west a quarter turn
// counter-clockwise.
func CardinalMarks(heading int) [4]Mark {
	place := func(label rune, deg int) Mark {
		rad := float64(deg) * math.Pi / 180
		return Mark{
			Label: label,
			X:     int(math.Round(centerX + math.Cos(rad)*radius)),
			Y:     int(math.Round(centerY - math.Sin(rad)*radius)),
		}
	}
	return [4]Mark{
		place('N', heading),
		place('S', heading+180),
		place('E', heading-90),
		place('W', heading+90),
	}
}

// Label is the heading as printed under the card.
func Label(heading int) string { return fmt.Sprintf("%03d", heading) }

// Draw renders the card for heading.
func Draw(heading int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, Width, Height))
	draw.Draw(img, img.Bounds(), image.NewUniform(white), image.Point{}, draw.Src)

	text(img, 60, 10, "BUSSOLA!", black)

	for y := 55; y < 55+210; y++ {
		img.SetRGBA(centerX, y, green)
	}
	for x := 15; x < 15+210; x++ {
		img.SetRGBA(x, centerY, green)
	}
	circle(img, centerX, centerY, 85, black)
	circle(img, centerX, centerY, radius, black)

	arrow(img)

	for i, m := range CardinalMarks(heading) {
		c := black
		if i == 0 {
			c = green
		}
		text(img, m.X, m.Y, string(m.Label), c)
	}

	text(img, 95, 290, Label(heading), green)
	circle(img, 150, 290, 2, green)
	return img
}

// Render encodes the card as PNG.
func Render(heading int) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, Draw(heading)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// text draws s with its top-left corner at (x, y).
func text(img *image.RGBA, x, y int, s string, c color.RGBA) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(x, y+face.Ascent),
	}
	d.DrawString(s)
}

// circle draws a one pixel outline with the midpoint algorithm.
func circle(img *image.RGBA, cx, cy, r int, c color.RGBA) {
	x, y := r, 0
	err := 1 - r
	for x >= y {
		for _, p := range [][2]int{
			{x, y}, {y, x}, {-y, x}, {-x, y},
			{-x, -y}, {-y, -x}, {y, -x}, {x, -y},
		} {
			img.SetRGBA(cx+p[0], cy+p[1], c)
		}
		y++
		if err < 0 {
			err += 2*y + 1
		} else {
			x--
			err += 2*(y-x) + 1
		}
	}
}

// arrow fills the fixed lubber arrow pointing up from the centre.
func arrow(img *image.RGBA) {
	z := vector.NewRasterizer(Width, Height)
	z.MoveTo(centerX, 105)
	z.LineTo(centerX-42, 200)
	z.LineTo(centerX, 170)
	z.LineTo(centerX+42, 200)
	z.ClosePath()
	z.Draw(img, img.Bounds(), image.NewUniform(green), image.Point{})
}
