// Package capture grabs the display, downsizes it to the model's view, and
// encodes it as a JPEG observation.
package capture

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haasonsaas/deskpilot/internal/observability"
	"github.com/haasonsaas/deskpilot/internal/screen"
)

// Default encoding settings.
const (
	DefaultQuality      = 60
	DefaultDebugQuality = 80
	DefaultDebugDir     = "screenshots"
)

// Observation is one encoded frame. Treat it as immutable.
type Observation struct {
	Data       []byte
	Size       int
	Width      int
	Height     int
	CapturedAt time.Time
}

// MediaType is the MIME type of Data.
func (o Observation) MediaType() string { return "image/jpeg" }

// Base64 returns the standard base64 encoding of Data.
func (o Observation) Base64() string {
	return base64.StdEncoding.EncodeToString(o.Data)
}

// DataURI renders the frame as a data: URI.
func (o Observation) DataURI() string {
	return "data:" + o.MediaType() + ";base64," + o.Base64()
}

// Config controls a Capturer.
type Config struct {
	Quality int

	// DebugDir receives a copy of every frame when SaveFrames is set.
	SaveFrames   bool
	DebugDir     string
	DebugQuality int

	Logger  *slog.Logger
	Metrics *observability.Metrics
}

// Capturer turns raw screen grabs into observations sized for the model.
type Capturer struct {
	grabber  Grabber
	geometry screen.Geometry
	config   Config
	logger   *slog.Logger

	mu  sync.Mutex
	seq int
	now func() time.Time
}

// NewCapturer wires a grabber to the scaled geometry.
func NewCapturer(grabber Grabber, geometry screen.Geometry, config Config) *Capturer {
	if config.Quality <= 0 {
		config.Quality = DefaultQuality
	}
	if config.DebugQuality <= 0 {
		config.DebugQuality = DefaultDebugQuality
	}
	if config.DebugDir == "" {
		config.DebugDir = DefaultDebugDir
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Capturer{
		grabber:  grabber,
		geometry: geometry,
		config:   config,
		logger:   logger.With("component", "capture"),
		now:      time.Now,
	}
}

// Observe grabs the display and encodes it at the scaled size.
func (c *Capturer) Observe(ctx context.Context) (Observation, error) {
	img, err := c.grabber.Grab(ctx)
	if err != nil {
		return Observation{}, fmt.Errorf("grab screen: %w", err)
	}

	resized := Resize(img, c.geometry.ScaledWidth, c.geometry.ScaledHeight)
	data, err := EncodeJPEG(resized, c.config.Quality)
	if err != nil {
		return Observation{}, err
	}

	obs := Observation{
		Data:       data,
		Size:       len(data),
		Width:      c.geometry.ScaledWidth,
		Height:     c.geometry.ScaledHeight,
		CapturedAt: c.now(),
	}
	c.logger.Debug("frame captured", "bytes", obs.Size, "width", obs.Width, "height", obs.Height)
	c.config.Metrics.RecordObservation(obs.Size)

	if c.config.SaveFrames {
		// Debug artifacts are best effort and never block the run.
		if path, err := c.saveDebugFrame(resized, obs.CapturedAt); err != nil {
			c.logger.Warn("failed to save debug frame", "error", err)
		} else {
			c.logger.Debug("debug frame saved", "path", path)
		}
	}
	return obs, nil
}

func (c *Capturer) saveDebugFrame(img image.Image, at time.Time) (string, error) {
	data, err := EncodeJPEG(img, c.config.DebugQuality)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(c.config.DebugDir, 0o755); err != nil {
		return "", fmt.Errorf("create debug dir: %w", err)
	}

	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.mu.Unlock()

	name := fmt.Sprintf("frame_%s_%04d.jpg", at.Format("20060102_150405.000000"), seq)
	path := filepath.Join(c.config.DebugDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write debug frame: %w", err)
	}
	return path, nil
}
