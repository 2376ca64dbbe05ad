package recorder

import (
	"image"
	"image/color"
	"image/draw"
)

var (
	cursorOutline = color.RGBA{0, 0, 0, 255}
	cursorFill    = color.RGBA{255, 255, 255, 255}
	rippleColor   = color.RGBA{66, 133, 244, 100}
	failColor     = color.RGBA{219, 68, 55, 255}
)

const rippleRadius = 15

// arrow outline, relative to the pointer tip
var cursorPoints = []image.Point{
	{0, 0},
	{0, 16},
	{4, 12},
	{7, 18},
	{10, 17},
	{7, 11},
	{12, 11},
}

// decorate copies a frame and draws the pointer and attempt markers on it
func decorate(f Frame) *image.RGBA {
	bounds := f.Image.Bounds()
	out := image.NewRGBA(bounds)
	draw.Draw(out, bounds, f.Image, bounds.Min, draw.Src)

	if f.Failed {
		drawBorder(out, failColor, 3)
	}
	if !f.HasPointer {
		return out
	}

	x, y := f.Pointer.X+bounds.Min.X, f.Pointer.Y+bounds.Min.Y
	if f.Click {
		drawClickRipple(out, x, y)
	}
	drawCursor(out, x, y)
	return out
}

// drawCursor fills the arrow polygon with its tip at (x, y), then outlines it
func drawCursor(img *image.RGBA, x, y int) {
	box := polygonBounds(cursorPoints)
	for py := box.Min.Y; py < box.Max.Y; py++ {
		for px := box.Min.X; px < box.Max.X; px++ {
			if insidePolygon(cursorPoints, float64(px)+0.5, float64(py)+0.5) {
				setPixelSafe(img, x+px, y+py, cursorFill)
			}
		}
	}

	for i, p1 := range cursorPoints {
		p2 := cursorPoints[(i+1)%len(cursorPoints)]
		drawLine(img, x+p1.X, y+p1.Y, x+p2.X, y+p2.Y, cursorOutline)
	}
}

func polygonBounds(pts []image.Point) image.Rectangle {
	var r image.Rectangle
	for _, p := range pts {
		r = r.Union(image.Rectangle{Min: p, Max: p.Add(image.Pt(1, 1))})
	}
	return r
}

// insidePolygon reports whether (fx, fy) is inside pts by the even-odd rule
func insidePolygon(pts []image.Point, fx, fy float64) bool {
	in := false
	for i, j := 0, len(pts)-1; i < len(pts); j, i = i, i+1 {
		a, b := pts[i], pts[j]
		if (float64(a.Y) > fy) == (float64(b.Y) > fy) {
			continue
		}
		cross := float64(a.X) + (fy-float64(a.Y))*float64(b.X-a.X)/float64(b.Y-a.Y)
		if fx < cross {
			in = !in
		}
	}
	return in
}

// drawLine is Bresenham's algorithm
func drawLine(img *image.RGBA, x1, y1, x2, y2 int, c color.RGBA) {
	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx, sy := 1, 1
	if x1 > x2 {
		sx = -1
	}
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy

	for {
		setPixelSafe(img, x1, y1, c)
		if x1 == x2 && y1 == y2 {
			return
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// drawClickRipple draws a two pixel ring of rippleRadius around (x, y)
func drawClickRipple(img *image.RGBA, x, y int) {
	inner := (rippleRadius - 1) * (rippleRadius - 1)
	outer := (rippleRadius + 1) * (rippleRadius + 1)
	for dy := -rippleRadius - 1; dy <= rippleRadius+1; dy++ {
		for dx := -rippleRadius - 1; dx <= rippleRadius+1; dx++ {
			if d := dx*dx + dy*dy; d >= inner && d <= outer {
				setPixelSafe(img, x+dx, y+dy, rippleColor)
			}
		}
	}
}

// drawBorder frames the image to mark a failed attempt
func drawBorder(img *image.RGBA, c color.RGBA, width int) {
	b := img.Bounds()
	u := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		image.Rect(b.Min.X, b.Min.Y, b.Max.X, b.Min.Y+width),
		image.Rect(b.Min.X, b.Max.Y-width, b.Max.X, b.Max.Y),
		image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Max.Y),
		image.Rect(b.Max.X-width, b.Min.Y, b.Max.X, b.Max.Y),
	} {
		draw.Draw(img, edge.Intersect(b), u, image.Point{}, draw.Src)
	}
}

func setPixelSafe(img *image.RGBA, x, y int, c color.RGBA) {
	if (image.Point{x, y}).In(img.Bounds()) {
		img.SetRGBA(x, y, c)
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
