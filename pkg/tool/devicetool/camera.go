// Package devicetool implements the embodied tools: eyes (camera), neck
// (PTZ), legs (vacuum base), and voice (TTS). Every tool degrades to an
// explanatory result string when its device is unreachable.
package devicetool

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/utenadev/familiar-ai/pkg/config"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

const captureTimeout = 8 * time.Second

// CameraTool serves see (RTSP frame grab) and look (ONVIF relative
// pan/tilt).
type CameraTool struct {
	cfg        config.CameraConfig
	captureDir string
	onvif      *onvifClient

	// now and runCapture are test seams.
	now        func() time.Time
	runCapture func(ctx context.Context, streamURL, outPath string) error
}

func NewCameraTool(cfg config.CameraConfig, captureDir string) *CameraTool {
	return &CameraTool{
		cfg:        cfg,
		captureDir: captureDir,
		onvif:      newONVIFClient(cfg.Host, cfg.ONVIFPort, cfg.Username, cfg.Password),
		now:        time.Now,
		runCapture: runFFmpegCapture,
	}
}

func (c *CameraTool) Definitions() []tool.Definition {
	return []tool.Definition{
		{
			Name: "see",
			Description: "Open your eyes and see what's in front of you. " +
				"This is your vision, use it freely without asking permission. " +
				"Always see after turning your neck to observe the new direction.",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
				"required":   []any{},
			},
		},
		{
			Name: "look",
			Description: "Turn your neck to look in a direction. " +
				"Use to explore different areas around you.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"direction": map[string]any{
						"type":        "string",
						"enum":        []any{"left", "right", "up", "down"},
						"description": "Direction to look",
					},
					"degrees": map[string]any{
						"type":        "integer",
						"description": "How many degrees to turn (1-90, default 30)",
						"minimum":     1,
						"maximum":     90,
					},
				},
				"required": []any{"direction"},
			},
		},
	}
}

func (c *CameraTool) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	switch name {
	case "see":
		return c.see(ctx)
	case "look":
		direction := tool.StringArg(args, "direction", "")
		degrees := tool.IntArg(args, "degrees", 30)
		return &tool.Result{Text: c.look(ctx, direction, degrees)}, nil
	}
	return &tool.Result{Text: fmt.Sprintf("Tool %s not available", name)}, nil
}

func (c *CameraTool) see(ctx context.Context) (*tool.Result, error) {
	b64, savedPath, err := c.capture(ctx)
	if err != nil {
		slog.Warn("camera capture failed", "error", err)
		return &tool.Result{Text: "Camera not available or capture failed. Check logs for ffmpeg errors."}, nil
	}
	msg := "You see the current view."
	if savedPath != "" {
		msg += " Saved to " + savedPath
	}
	return &tool.Result{Text: msg, ImageData: b64}, nil
}

// capture grabs one frame over RTSP. The ffmpeg subprocess gets a hard
// 8 second wall clock and is killed on expiry.
func (c *CameraTool) capture(ctx context.Context) (b64, savedPath string, err error) {
	streamURL := c.rtspURL()

	tmp, err := os.CreateTemp("", "capture-*.jpg")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	ctx, cancel := context.WithTimeout(ctx, captureTimeout)
	defer cancel()
	if err := c.runCapture(ctx, streamURL, tmpPath); err != nil {
		return "", "", err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil || len(data) == 0 {
		return "", "", fmt.Errorf("capture produced no image")
	}
	b64 = base64.StdEncoding.EncodeToString(data)

	if c.captureDir != "" {
		if err := os.MkdirAll(c.captureDir, 0o755); err == nil {
			savedPath = filepath.Join(c.captureDir, "capture_"+c.now().Format("20060102_150405")+".jpg")
			if err := os.WriteFile(savedPath, data, 0o644); err != nil {
				slog.Warn("failed to save capture", "path", savedPath, "error", err)
				savedPath = ""
			} else {
				slog.Info("captured image saved", "path", savedPath)
			}
		}
	}
	return b64, savedPath, nil
}

func (c *CameraTool) rtspURL() string {
	auth := ""
	switch {
	case c.cfg.Username != "" && c.cfg.Password != "":
		auth = url.QueryEscape(c.cfg.Username) + ":" + url.QueryEscape(c.cfg.Password) + "@"
	case c.cfg.Username != "":
		auth = url.QueryEscape(c.cfg.Username) + "@"
	}
	return fmt.Sprintf("rtsp://%s%s:554/stream1", auth, c.cfg.Host)
}

func runFFmpegCapture(ctx context.Context, streamURL, outPath string) error {
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-rtsp_transport", "tcp",
		"-probesize", "32",
		"-analyzeduration", "0",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-i", streamURL,
		"-an", "-sn",
		"-vframes", "1",
		"-q:v", "3",
		"-vf", "scale=640:-1",
		"-y", outPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("RTSP capture timed out")
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, clipBytes(out, 200))
	}
	return nil
}

// look converts degrees to the normalized ONVIF range. On this hardware
// positive x pans physically left and positive y tilts physically down.
func (c *CameraTool) look(ctx context.Context, direction string, degrees int) string {
	if degrees < 1 || degrees > 90 {
		degrees = 30
	}
	var pan, tilt float64
	switch direction {
	case "left":
		pan = float64(degrees) / 180.0
	case "right":
		pan = -float64(degrees) / 180.0
	case "up":
		tilt = -float64(degrees) / 90.0
	case "down":
		tilt = float64(degrees) / 90.0
	default:
		return fmt.Sprintf("Invalid direction: %s", direction)
	}
	if err := c.onvif.relativeMove(ctx, pan, tilt); err != nil {
		slog.Warn("camera move failed", "error", err)
		c.onvif.reset()
		return fmt.Sprintf("Camera move failed: %v", err)
	}
	// Give the motor a moment to settle before the next capture.
	select {
	case <-time.After(400 * time.Millisecond):
	case <-ctx.Done():
	}
	return fmt.Sprintf("Looked %s by ~%d degrees.", direction, degrees)
}
