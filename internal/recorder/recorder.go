// Package recorder turns executor attempts into an animated GIF of the run,
// with the pointer and click ripples drawn on each frame.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"go.uber.org/zap"

	"github.com/v0xg/issuebot/internal/resilient"
)

var (
	// ErrNoFrames is returned by Save when nothing was captured
	ErrNoFrames = errors.New("no frames recorded")
	// ErrEmptyFrame is returned by Capture for a screenshot with no pixels
	ErrEmptyFrame = errors.New("screenshot is empty")
)

// FrameSource is the page being recorded
type FrameSource interface {
	Screenshot(ctx context.Context) (image.Image, error)
	Pointer() (image.Point, bool)
}

// Options configures a Recorder
type Options struct {
	FPS       int  // playback rate of the GIF
	MaxWidth  uint // output width; height keeps the aspect ratio
	MaxFrames int  // oldest frames are dropped past this
	// CaptureTimeout bounds each screenshot so recording never holds up an
	// action for long
	CaptureTimeout time.Duration
	Logger         *zap.Logger
}

// Frame is one captured screenshot with the attempt that produced it
type Frame struct {
	Image      image.Image
	Pointer    image.Point
	HasPointer bool
	Click      bool // a click technique succeeded
	Failed     bool
	Label      string
}

// Recorder collects frames. Observe matches resilient.Options.OnAttempt.
type Recorder struct {
	src  FrameSource
	opts Options
	log  *zap.Logger

	mu     sync.Mutex
	frames []Frame
}

// New creates a recorder reading frames from src
func New(src FrameSource, opts Options) *Recorder {
	if opts.FPS <= 0 {
		opts.FPS = 2
	}
	if opts.MaxWidth == 0 {
		opts.MaxWidth = 800
	}
	if opts.MaxFrames <= 0 {
		opts.MaxFrames = 300
	}
	if opts.CaptureTimeout <= 0 {
		opts.CaptureTimeout = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Recorder{src: src, opts: opts, log: opts.Logger}
}

// Observe captures a frame for an attempt outcome. Resolution failures are
// skipped; there is nothing new on screen while an element is missing.
func (r *Recorder) Observe(req resilient.Request, o resilient.Outcome) {
	if o.Technique == resilient.TechniqueResolve {
		return
	}
	label := fmt.Sprintf("%s #%d %s", req.Name, o.Round, o.Technique)
	if err := r.Capture(label, isClick(o.Technique) && o.Succeeded, !o.Succeeded); err != nil {
		r.log.Debug("frame capture failed", zap.String("frame", label), zap.Error(err))
	}
}

func isClick(t resilient.Technique) bool {
	switch t {
	case resilient.TechniqueClick, resilient.TechniqueDoubleClick,
		resilient.TechniqueForceClick, resilient.TechniqueScriptClick:
		return true
	}
	return false
}

// Capture takes a screenshot now and appends it as a frame
func (r *Recorder) Capture(label string, click, failed bool) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.CaptureTimeout)
	defer cancel()

	img, err := r.src.Screenshot(ctx)
	if err != nil {
		return err
	}
	if img.Bounds().Empty() {
		return ErrEmptyFrame
	}
	pt, ok := r.src.Pointer()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, Frame{
		Image:      img,
		Pointer:    pt,
		HasPointer: ok,
		Click:      click,
		Failed:     failed,
		Label:      label,
	})
	if over := len(r.frames) - r.opts.MaxFrames; over > 0 {
		// copied so the dropped screenshots can be collected
		r.frames = append([]Frame(nil), r.frames[over:]...)
	}
	return nil
}

// Frames returns a copy of the captured frames
func (r *Recorder) Frames() []Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Frame(nil), r.frames...)
}

// Save encodes the captured frames as a looping GIF and returns its size
func (r *Recorder) Save(path string) (int64, error) {
	frames := r.Frames()
	if len(frames) == 0 {
		return 0, ErrNoFrames
	}

	width, height := r.outputSize(frames[0].Image.Bounds())
	delay := 100 / r.opts.FPS

	g := &gif.GIF{
		Image:     make([]*image.Paletted, len(frames)),
		Delay:     make([]int, len(frames)),
		LoopCount: 0,
	}

	var palette color.Palette
	for i, f := range frames {
		resized := resize.Resize(width, height, decorate(f), resize.Lanczos3)
		if palette == nil {
			palette = buildPalette(resized)
		}

		paletted := image.NewPaletted(resized.Bounds(), palette)
		draw.FloydSteinberg.Draw(paletted, resized.Bounds(), resized, image.Point{})
		g.Image[i] = paletted
		g.Delay[i] = delay
	}

	out, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	if err := gif.EncodeAll(out, g); err != nil {
		return 0, fmt.Errorf("encode gif: %w", err)
	}
	info, err := out.Stat()
	if err != nil {
		return 0, err
	}
	r.log.Debug("recording saved", zap.String("path", path), zap.Int("frames", len(frames)))
	return info.Size(), nil
}

// SaveSnapshot writes a PNG of the page as it is now, pointer included
func (r *Recorder) SaveSnapshot(ctx context.Context, path string) error {
	img, err := r.src.Screenshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if img.Bounds().Empty() {
		return fmt.Errorf("snapshot: %w", ErrEmptyFrame)
	}
	pt, ok := r.src.Pointer()

	width, height := r.outputSize(img.Bounds())
	resized := resize.Resize(width, height, decorate(Frame{Image: img, Pointer: pt, HasPointer: ok}), resize.Lanczos3)

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer out.Close()

	if err := png.Encode(out, resized); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// outputSize scales b down to MaxWidth, keeping the aspect ratio
func (r *Recorder) outputSize(b image.Rectangle) (uint, uint) {
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return 1, 1
	}
	width := r.opts.MaxWidth
	if uint(b.Dx()) < width {
		width = uint(b.Dx())
	}
	height := uint(float64(width) * float64(b.Dy()) / float64(b.Dx()))
	if height == 0 {
		height = 1
	}
	return width, height
}
