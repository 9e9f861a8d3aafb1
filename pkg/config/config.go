// Package config loads the process configuration from the environment.
//
// Every knob is an environment variable so the agent can run from a plain
// .env file next to the binary. Load never fails on missing optional
// variables; components degrade (camera off, TTS off) when their
// credentials are absent.
package config

import (
	"os"
	"strconv"
	"strings"
)

// Platform selects the LLM wire protocol.
type Platform string

const (
	PlatformAnthropic Platform = "anthropic"
	PlatformOpenAI    Platform = "openai"
	PlatformGemini    Platform = "gemini"
	PlatformKimi      Platform = "kimi"
	PlatformCLI       Platform = "cli"
)

// ToolsMode selects how tools are exposed to OpenAI-compatible servers.
type ToolsMode string

const (
	// ToolsNative uses the server's function-calling API.
	ToolsNative ToolsMode = "native"
	// ToolsPrompt injects tool schemas into the system prompt and parses
	// <tool_call> blocks out of the completion text.
	ToolsPrompt ToolsMode = "prompt"
)

// BackendConfig selects and parameterizes the LLM backend.
type BackendConfig struct {
	Platform  Platform
	APIKey    string
	Model     string
	BaseURL   string
	ToolsMode ToolsMode
	MaxTokens int

	// BaseURLSet and ToolsModeSet record whether the variable was present
	// in the environment. The openai platform picks different defaults
	// (real endpoint, native tools) when they were not.
	BaseURLSet   bool
	ToolsModeSet bool
}

// DefaultModel returns the platform default when MODEL is unset.
func (b BackendConfig) DefaultModel() string {
	if b.Model != "" {
		return b.Model
	}
	switch b.Platform {
	case PlatformGemini:
		return "gemini-2.5-flash"
	case PlatformOpenAI:
		return "gpt-4o-mini"
	case PlatformKimi:
		return "moonshot-v1-8k"
	default:
		return "claude-haiku-4-5-20251001"
	}
}

// CameraConfig holds ONVIF/RTSP credentials for the PTZ camera.
type CameraConfig struct {
	Host      string
	Username  string
	Password  string
	ONVIFPort int
}

func (c CameraConfig) Enabled() bool { return c.Host != "" }

// MobilityConfig holds the Tuya cloud credentials for the vacuum base.
type MobilityConfig struct {
	APIRegion string
	APIKey    string
	APISecret string
	DeviceID  string
}

func (m MobilityConfig) Enabled() bool { return m.APIKey != "" && m.DeviceID != "" }

// TTSConfig holds the ElevenLabs voice and the go2rtc backchannel target.
type TTSConfig struct {
	ElevenLabsAPIKey string
	VoiceID          string
	Go2RTCURL        string
	Go2RTCStream     string
}

func (t TTSConfig) Enabled() bool { return t.ElevenLabsAPIKey != "" }

// STTConfig holds speech-to-text settings. Only the language hint is
// configurable; the endpoint follows the backend platform.
type STTConfig struct {
	Language string
}

// EmbedderConfig points at the embeddings endpoint behind semantic
// recall.
type EmbedderConfig struct {
	BaseURL string
	Model   string
}

// CodingConfig scopes the coding tools. The tools are registered only when
// Workdir is set; bash additionally requires the explicit opt-in.
type CodingConfig struct {
	Workdir     string
	BashEnabled bool
}

func (c CodingConfig) Enabled() bool { return c.Workdir != "" }

// Config is the root configuration object, built once at startup and passed
// explicitly to every component.
type Config struct {
	AgentName     string
	CompanionName string
	PersonaFile   string

	Backend  BackendConfig
	Camera   CameraConfig
	Mobility MobilityConfig
	TTS      TTSConfig
	STT      STTConfig
	Coding   CodingConfig
	Embedder EmbedderConfig

	// MemoryDBPath overrides the default location under the state dir.
	MemoryDBPath string
	// MCPConfigPath overrides ~/.familiar-ai.json.
	MCPConfigPath string

	LogLevel string
	LogFile  string
}

// Load reads the environment (after LoadDotenv has run) into a Config.
func Load() *Config {
	return &Config{
		AgentName:     envStr("AGENT_NAME", "AI"),
		CompanionName: envStr("COMPANION_NAME", ""),
		PersonaFile:   envStr("PERSONA_FILE", ""),
		Backend: BackendConfig{
			Platform:     Platform(strings.ToLower(envStr("PLATFORM", "anthropic"))),
			APIKey:       envStr("API_KEY", ""),
			Model:        envStr("MODEL", ""),
			BaseURL:      envStr("BASE_URL", "http://localhost:11434/v1"),
			ToolsMode:    ToolsMode(strings.ToLower(envStr("TOOLS_MODE", "prompt"))),
			MaxTokens:    envInt("MAX_TOKENS", 4096),
			BaseURLSet:   os.Getenv("BASE_URL") != "",
			ToolsModeSet: os.Getenv("TOOLS_MODE") != "",
		},
		Camera: CameraConfig{
			Host:      envStr("CAMERA_HOST", ""),
			Username:  envStr("CAMERA_USERNAME", "admin"),
			Password:  envStr("CAMERA_PASSWORD", ""),
			ONVIFPort: envInt("CAMERA_ONVIF_PORT", 2020),
		},
		Mobility: MobilityConfig{
			APIRegion: envStr("TUYA_REGION", "us"),
			APIKey:    envStr("TUYA_API_KEY", ""),
			APISecret: envStr("TUYA_API_SECRET", ""),
			DeviceID:  envStr("TUYA_DEVICE_ID", ""),
		},
		TTS: TTSConfig{
			ElevenLabsAPIKey: envStr("ELEVENLABS_API_KEY", ""),
			VoiceID:          envStr("ELEVENLABS_VOICE_ID", "cgSgspJ2msm6clMCkdW9"),
			Go2RTCURL:        envStr("GO2RTC_URL", "http://localhost:1984"),
			Go2RTCStream:     envStr("GO2RTC_STREAM", "tapo_cam"),
		},
		STT: STTConfig{
			Language: envStr("STT_LANGUAGE", ""),
		},
		Coding: CodingConfig{
			Workdir:     envStr("CODING_WORKDIR", ""),
			BashEnabled: envBool("CODING_BASH", false),
		},
		Embedder: EmbedderConfig{
			BaseURL: envStr("EMBEDDING_URL", "http://localhost:11434"),
			Model:   envStr("EMBEDDING_MODEL", "multilingual-e5-small"),
		},
		MemoryDBPath:  envStr("MEMORY_DB_PATH", ""),
		MCPConfigPath: envStr("MCP_CONFIG", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		LogFile:       envStr("LOG_FILE", ""),
	}
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
