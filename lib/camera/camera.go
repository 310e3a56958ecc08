// Package camera captures single JPEG frames for the dashboard.
package camera

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sync"

	"golang.org/x/xerrors"
)

var (
	// ErrUnavailable means no camera is attached or it failed to initialize.
	ErrUnavailable = xerrors.New("camera unavailable")
	// ErrCaptureFailed means the camera is present but produced no frame.
	ErrCaptureFailed = xerrors.New("camera capture failed")
)

type Camera interface {
	// Capture returns one JPEG-encoded frame.
	Capture(ctx context.Context) ([]byte, error)
	Close() error
}

type Config struct {
	Width       int
	Height      int
	JPEGQuality int
	VFlip       bool
}

// DefaultConfig is QVGA at quality 80, flipped for an upside-down mount.
var DefaultConfig = Config{
	Width:       320,
	Height:      240,
	JPEGQuality: 80,
	VFlip:       true,
}

// Unavailable stands in for a camera that could not be opened so the rest
// of the monitor keeps running.
type Unavailable struct {
	Reason error
}

func (u Unavailable) Capture(context.Context) ([]byte, error) {
	if u.Reason != nil {
		return nil, xerrors.Errorf("%s: %w", u.Reason.Error(), ErrUnavailable)
	}
	return nil, ErrUnavailable
}

func (Unavailable) Close() error { return nil }

func encode(img image.Image, cfg Config) ([]byte, error) {
	if cfg.VFlip {
		img = flipVertical(img)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: cfg.JPEGQuality}); err != nil {
		return nil, xerrors.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func flipVertical(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		row := image.Rect(0, b.Dy()-1-y, b.Dx(), b.Dy()-y)
		draw.Draw(dst, row, src, image.Pt(b.Min.X, b.Min.Y+y), draw.Src)
	}
	return dst
}

// TestPattern renders a synthetic frame, for running without hardware.
type TestPattern struct {
	cfg   Config
	mu    sync.Mutex
	frame int
}

func NewTestPattern(cfg Config) *TestPattern {
	return &TestPattern{cfg: cfg}
}

func (p *TestPattern) Capture(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, xerrors.Errorf("capture canceled: %w", err)
	}
	p.mu.Lock()
	p.frame++
	shift := p.frame
	p.mu.Unlock()

	img := image.NewRGBA(image.Rect(0, 0, p.cfg.Width, p.cfg.Height))
	for y := 0; y < p.cfg.Height; y++ {
		for x := 0; x < p.cfg.Width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x + shift) % 256),
				G: uint8(y % 256),
				B: 0x80,
				A: 0xff,
			})
		}
	}
	return encode(img, p.cfg)
}

func (p *TestPattern) Close() error { return nil }
