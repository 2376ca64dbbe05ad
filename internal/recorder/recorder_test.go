package recorder

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/v0xg/issuebot/internal/resilient"
)

type fakeSource struct {
	w, h    int
	pointer image.Point
	hasPtr  bool
	err     error
	shots   int
}

func (f *fakeSource) Screenshot(context.Context) (image.Image, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.shots++
	img := image.NewRGBA(image.Rect(0, 0, f.w, f.h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{250, 250, 250, 255}}, image.Point{}, draw.Src)
	return img, nil
}

func (f *fakeSource) Pointer() (image.Point, bool) {
	return f.pointer, f.hasPtr
}

func TestObserveAndSave(t *testing.T) {
	src := &fakeSource{w: 320, h: 200, pointer: image.Pt(100, 60), hasPtr: true}
	rec := New(src, Options{MaxWidth: 160})

	req := resilient.Request{Name: "create button"}
	rec.Observe(req, resilient.Outcome{Round: 1, Technique: resilient.TechniqueResolve, Err: errors.New("not attached")})
	rec.Observe(req, resilient.Outcome{Round: 2, Technique: resilient.TechniqueClick, Err: errors.New("covered")})
	rec.Observe(req, resilient.Outcome{Round: 2, Technique: resilient.TechniqueScriptClick, Succeeded: true})

	frames := rec.Frames()
	require.Len(t, frames, 2)
	assert.Equal(t, 2, src.shots)
	assert.True(t, frames[0].Failed)
	assert.False(t, frames[0].Click)
	assert.True(t, frames[1].Click)
	assert.Equal(t, "create button #2 script-click", frames[1].Label)

	path := filepath.Join(t.TempDir(), "run.gif")
	size, err := rec.Save(path)
	require.NoError(t, err)
	assert.Positive(t, size)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	g, err := gif.DecodeAll(f)
	require.NoError(t, err)
	require.Len(t, g.Image, 2)
	assert.Equal(t, 160, g.Config.Width)
	assert.Equal(t, 100, g.Config.Height)
	assert.Equal(t, 50, g.Delay[0])
}

func TestSaveWithoutFrames(t *testing.T) {
	rec := New(&fakeSource{w: 10, h: 10}, Options{})
	_, err := rec.Save(filepath.Join(t.TempDir(), "empty.gif"))
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestCaptureFailureIsNotFatal(t *testing.T) {
	rec := New(&fakeSource{err: errors.New("target closed")}, Options{})
	rec.Observe(resilient.Request{}, resilient.Outcome{Technique: resilient.TechniqueClick, Succeeded: true})
	assert.Empty(t, rec.Frames())
}

func TestMaxFrames(t *testing.T) {
	rec := New(&fakeSource{w: 8, h: 8}, Options{MaxFrames: 3})
	for i := 0; i < 5; i++ {
		require.NoError(t, rec.Capture(string(rune('a'+i)), false, false))
	}
	frames := rec.Frames()
	require.Len(t, frames, 3)
	assert.Equal(t, "c", frames[0].Label)
	assert.Equal(t, "e", frames[2].Label)
}

func TestEmptyScreenshot(t *testing.T) {
	rec := New(&fakeSource{w: 0, h: 0}, Options{})

	assert.ErrorIs(t, rec.Capture("blank", false, false), ErrEmptyFrame)
	assert.Empty(t, rec.Frames())
	assert.ErrorIs(t, rec.SaveSnapshot(context.Background(), filepath.Join(t.TempDir(), "blank.png")), ErrEmptyFrame)

	w, h := rec.outputSize(image.Rectangle{})
	assert.Equal(t, uint(1), w)
	assert.Equal(t, uint(1), h)
}

func TestSaveSnapshot(t *testing.T) {
	rec := New(&fakeSource{w: 400, h: 300}, Options{MaxWidth: 200})
	path := filepath.Join(t.TempDir(), "failure.png")
	require.NoError(t, rec.SaveSnapshot(context.Background(), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 150), img.Bounds())
}

func TestDecorate(t *testing.T) {
	base := image.NewRGBA(image.Rect(0, 0, 100, 100))
	draw.Draw(base, base.Bounds(), &image.Uniform{color.RGBA{200, 200, 200, 255}}, image.Point{}, draw.Src)

	out := decorate(Frame{Image: base, Pointer: image.Pt(40, 40), HasPointer: true, Click: true})
	assert.Equal(t, cursorOutline, out.RGBAAt(40, 40))
	assert.Equal(t, cursorFill, out.RGBAAt(42, 46))
	// inside the arrow's tail, outside its bounding polygon
	assert.Equal(t, cursorFill, out.RGBAAt(46, 54))
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, out.RGBAAt(51, 55))
	assert.Equal(t, rippleColor, out.RGBAAt(40+rippleRadius, 40))
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, base.RGBAAt(40, 40), "source frame must not be modified")

	failed := decorate(Frame{Image: base, Failed: true})
	assert.Equal(t, failColor, failed.RGBAAt(0, 50))
	assert.Equal(t, color.RGBA{200, 200, 200, 255}, failed.RGBAAt(50, 50))
}

func TestInsidePolygon(t *testing.T) {
	square := []image.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}}
	assert.True(t, insidePolygon(square, 5, 5))
	assert.False(t, insidePolygon(square, 11, 5))
	assert.False(t, insidePolygon(square, 5, -1))
	assert.Equal(t, image.Rect(0, 0, 13, 19), polygonBounds(cursorPoints))
}

func TestBuildPalette(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	blue := color.RGBA{0, 82, 204, 255}
	white := color.RGBA{255, 255, 255, 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{white}, image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(0, 0, 16, 4), &image.Uniform{blue}, image.Point{}, draw.Src)

	p := buildPalette(img)
	require.Len(t, p, 256)
	assert.Equal(t, color.RGBA{0, 0, 0, 0}, p[0])
	assert.Equal(t, white, p[1])
	assert.Equal(t, blue, p[2])
}
