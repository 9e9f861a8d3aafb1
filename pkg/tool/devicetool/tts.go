package devicetool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/utenadev/familiar-ai/pkg/config"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

// sayMaxChars caps spoken text at a provider-safe length.
const sayMaxChars = 200

// TTSTool serves say: ElevenLabs synthesis played through the camera
// speaker via the go2rtc backchannel, with local players as fallback.
type TTSTool struct {
	cfg    config.TTSConfig
	client *http.Client

	// play is a test seam for audio output.
	play func(ctx context.Context, mp3Path string) error
}

func NewTTSTool(cfg config.TTSConfig) *TTSTool {
	t := &TTSTool{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}
	t.play = t.playAudio
	return t
}

func (t *TTSTool) Definitions() []tool.Definition {
	return []tool.Definition{
		{
			Name: "say",
			Description: "Speak text aloud through your camera speaker. " +
				"Use this to communicate with people in the room.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{
						"type":        "string",
						"description": "Text to speak. Can include ElevenLabs audio tags like [cheerful], [warmly].",
					},
				},
				"required": []any{"text"},
			},
		},
	}
}

func (t *TTSTool) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	if name != "say" {
		return &tool.Result{Text: fmt.Sprintf("Tool %s not available", name)}, nil
	}
	text := tool.StringArg(args, "text", "")
	return &tool.Result{Text: t.say(ctx, text)}, nil
}

func (t *TTSTool) say(ctx context.Context, text string) string {
	runes := []rune(text)
	if len(runes) > sayMaxChars {
		text = string(runes[:sayMaxChars-3]) + "..."
	}

	audio, err := t.synthesize(ctx, text)
	if err != nil {
		return fmt.Sprintf("TTS API failed: %v", err)
	}

	tmp, err := os.CreateTemp("", "say-*.mp3")
	if err != nil {
		return fmt.Sprintf("TTS failed: %v", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)
	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		return fmt.Sprintf("TTS failed: %v", err)
	}
	tmp.Close()

	if err := t.play(ctx, tmpPath); err != nil {
		return "TTS playback failed (all players failed)"
	}
	return fmt.Sprintf("Said: %s...", clip(text, 50))
}

func (t *TTSTool) synthesize(ctx context.Context, text string) ([]byte, error) {
	payload, err := json.Marshal(map[string]any{
		"text":     text,
		"model_id": "eleven_flash_v2_5",
		"voice_settings": map[string]any{
			"stability":        0.5,
			"similarity_boost": 0.75,
		},
	})
	if err != nil {
		return nil, err
	}
	endpoint := "https://api.elevenlabs.io/v1/text-to-speech/" + t.cfg.VoiceID
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", t.cfg.ElevenLabsAPIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

func (t *TTSTool) playAudio(ctx context.Context, mp3Path string) error {
	if err := t.playViaGo2RTC(ctx, mp3Path); err == nil {
		return nil
	} else {
		slog.Warn("go2rtc playback failed, falling back to local player", "error", err)
	}
	// Local fallback players, tried in order.
	for _, playerArgs := range [][]string{
		{"mpv", "--no-terminal", "--ao=pulse", mp3Path},
		{"mpv", "--no-terminal", mp3Path},
		{"ffplay", "-nodisp", "-autoexit", "-loglevel", "error", mp3Path},
	} {
		cmd := exec.CommandContext(ctx, playerArgs[0], playerArgs[1:]...)
		if err := cmd.Run(); err == nil {
			return nil
		} else {
			slog.Warn("local player failed", "player", playerArgs[0], "error", err)
		}
	}
	return fmt.Errorf("all players failed")
}

type go2rtcStreamsResponse struct {
	Consumers []struct {
		Senders []any `json:"senders"`
	} `json:"consumers"`
	Producers []go2rtcProducer `json:"producers"`
}

type go2rtcProducer struct {
	// ID is numeric on current go2rtc but has changed type across
	// releases; compare loosely.
	ID     any    `json:"id"`
	Source string `json:"source"`
}

// playViaGo2RTC pushes the file into the camera's audio backchannel and
// polls until the ffmpeg producer disappears (playback done).
func (t *TTSTool) playViaGo2RTC(ctx context.Context, mp3Path string) error {
	src := "ffmpeg:" + mp3Path + "#audio=pcma#input=file"
	endpoint := fmt.Sprintf("%s/api/streams?dst=%s&src=%s",
		t.cfg.Go2RTCURL, url.QueryEscape(t.cfg.Go2RTCStream), url.QueryEscape(src))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body go2rtcStreamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("bad go2rtc response: %w", err)
	}

	hasSender := false
	for _, consumer := range body.Consumers {
		if len(consumer.Senders) > 0 {
			hasSender = true
			break
		}
	}
	if !hasSender {
		return fmt.Errorf("go2rtc: no audio sender (camera may not support backchannel)")
	}

	var producerID any
	for _, p := range body.Producers {
		if strings.Contains(p.Source, "ffmpeg") {
			producerID = p.ID
			break
		}
	}
	if producerID == nil {
		return nil
	}

	for i := 0; i < 60; i++ {
		select {
		case <-time.After(500 * time.Millisecond):
		case <-ctx.Done():
			return nil
		}
		if !t.producerAlive(ctx, producerID) {
			break
		}
	}
	return nil
}

func (t *TTSTool) producerAlive(ctx context.Context, producerID any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.cfg.Go2RTCURL+"/api/streams", nil)
	if err != nil {
		return false
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var streams map[string]go2rtcStreamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&streams); err != nil {
		return false
	}
	for _, p := range streams[t.cfg.Go2RTCStream].Producers {
		if p.ID == producerID {
			return true
		}
	}
	return false
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
