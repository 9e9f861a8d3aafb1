package devicetool

import (
	"context"
	"fmt"
	"time"

	"github.com/utenadev/familiar-ai/pkg/config"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

// Vacuum direction_control values.
const (
	directionForward  = "forward"
	directionBackward = "backward"
	directionLeft     = "turn_left"
	directionRight    = "turn_right"
	directionStop     = "stop"
)

// MobilityTool serves walk: driving the robot vacuum the agent rides on.
type MobilityTool struct {
	deviceID string
	cloud    *tuyaClient

	// sleep is a test seam for the timed-move pause.
	sleep func(ctx context.Context, d time.Duration)
}

func NewMobilityTool(cfg config.MobilityConfig) *MobilityTool {
	return &MobilityTool{
		deviceID: cfg.DeviceID,
		cloud:    newTuyaClient(cfg.APIRegion, cfg.APIKey, cfg.APISecret),
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

func (m *MobilityTool) Definitions() []tool.Definition {
	return []tool.Definition{
		{
			Name: "walk",
			Description: "Move the robot body. Use to navigate around the room. " +
				"Always stop after moving to avoid collisions.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"direction": map[string]any{
						"type":        "string",
						"enum":        []any{"forward", "backward", "left", "right", "stop"},
						"description": "Direction to move",
					},
					"duration": map[string]any{
						"type":        "number",
						"description": "How long to move in seconds (0.1-10). If omitted, moves until stopped.",
						"minimum":     0.1,
						"maximum":     10.0,
					},
				},
				"required": []any{"direction"},
			},
		},
	}
}

func (m *MobilityTool) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	if name != "walk" {
		return &tool.Result{Text: fmt.Sprintf("Tool %s not available", name)}, nil
	}
	direction := tool.StringArg(args, "direction", "")
	duration := tool.FloatArg(args, "duration", 0)
	return &tool.Result{Text: m.move(ctx, direction, duration)}, nil
}

func (m *MobilityTool) move(ctx context.Context, direction string, duration float64) string {
	tuyaDir, ok := map[string]string{
		"forward":  directionForward,
		"backward": directionBackward,
		"left":     directionLeft,
		"right":    directionRight,
		"stop":     directionStop,
	}[direction]
	if !ok {
		return fmt.Sprintf("Invalid direction: %s", direction)
	}

	if err := m.cloud.SendCommand(ctx, m.deviceID, "direction_control", tuyaDir); err != nil {
		return fmt.Sprintf("Move failed: %v", err)
	}

	if duration > 0 && tuyaDir != directionStop {
		if duration > 10 {
			duration = 10
		}
		m.sleep(ctx, time.Duration(duration*float64(time.Second)))
		if err := m.cloud.SendCommand(ctx, m.deviceID, "direction_control", directionStop); err != nil {
			return fmt.Sprintf("Moved %s but stop failed: %v", direction, err)
		}
		return fmt.Sprintf("Moved %s for %.1fs and stopped.", direction, duration)
	}
	if direction == "stop" {
		return "Stopped."
	}
	return fmt.Sprintf("Moving %s.", direction)
}
