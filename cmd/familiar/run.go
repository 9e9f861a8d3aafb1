package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/utenadev/familiar-ai/pkg/agent"
	"github.com/utenadev/familiar-ai/pkg/config"
	"github.com/utenadev/familiar-ai/pkg/desire"
	"github.com/utenadev/familiar-ai/pkg/embedder"
	"github.com/utenadev/familiar-ai/pkg/i18n"
	"github.com/utenadev/familiar-ai/pkg/llms"
	"github.com/utenadev/familiar-ai/pkg/logger"
	"github.com/utenadev/familiar-ai/pkg/memory"
	"github.com/utenadev/familiar-ai/pkg/scheduler"
	"github.com/utenadev/familiar-ai/pkg/tool"
	"github.com/utenadev/familiar-ai/pkg/tool/devicetool"
	"github.com/utenadev/familiar-ai/pkg/tool/filetool"
	"github.com/utenadev/familiar-ai/pkg/tool/mcptoolset"
	"github.com/utenadev/familiar-ai/pkg/tool/memorytool"
	"github.com/utenadev/familiar-ai/pkg/tool/webtool"
)

const banner = `
╔══════════════════════════════════════╗
║         familiar-ai  v%s            ║
║   AI that lives alongside you 🐾     ║
╚══════════════════════════════════════╝
Commands:
  /clear   - clear conversation history
  /quit    - exit
`

// RunCmd starts the agent loop on stdin/stdout.
type RunCmd struct{}

func (r *RunCmd) Run() error {
	config.LoadDotenv()
	cfg := config.Load()

	logSink, err := logger.Init(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	if logSink != nil {
		defer logSink.Close()
	}

	paths, err := config.NewPaths(cfg)
	if err != nil {
		return err
	}
	locale := i18n.Detect()

	provider, err := llms.New(cfg.Backend)
	if err != nil {
		return err
	}
	defer provider.Close()

	emb := embedder.NewOllamaEmbedder(cfg.Embedder.BaseURL, cfg.Embedder.Model)
	store, err := memory.Open(paths.MemoryDB, emb)
	if err != nil {
		return fmt.Errorf("failed to open memory store: %w", err)
	}
	defer store.Close()

	desires := desire.NewState(paths.DesireFile, locale, cfg.CompanionName)
	persona := config.NewPersona(cfg.PersonaFile)
	defer persona.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := buildRegistry(ctx, cfg, paths, store, locale)

	ag := agent.New(agent.Options{
		Provider:  provider,
		Registry:  registry,
		Store:     store,
		Desires:   desires,
		Persona:   persona,
		Locale:    locale,
		AgentName: cfg.AgentName,
		Companion: cfg.CompanionName,
		MaxTokens: cfg.Backend.MaxTokens,
	})

	fmt.Printf(banner, version)
	slog.Info("Agent ready",
		"platform", cfg.Backend.Platform,
		"model", provider.GetModelName(),
		"locale", locale,
		"tools", len(registry.List()))

	sched := scheduler.New(scheduler.Options{
		Agent:       ag,
		Desires:     desires,
		Registry:    registry,
		Locale:      locale,
		AgentName:   cfg.AgentName,
		In:          os.Stdin,
		Out:         os.Stdout,
		ChatLogPath: paths.ChatLog,
	})
	return sched.Run(ctx)
}

// buildRegistry registers every available tool. Device tools register
// only when their credentials are configured; the agent degrades rather
// than failing on a missing camera.
func buildRegistry(ctx context.Context, cfg *config.Config, paths *config.Paths, store *memory.Store, locale i18n.Locale) *tool.Registry {
	registry := tool.NewRegistry()

	if cfg.Camera.Enabled() {
		registry.Register(devicetool.NewCameraTool(cfg.Camera, paths.CaptureDir))
	}
	if cfg.Mobility.Enabled() {
		registry.Register(devicetool.NewMobilityTool(cfg.Mobility))
	}
	if cfg.TTS.Enabled() {
		registry.Register(devicetool.NewTTSTool(cfg.TTS))
	}

	registry.Register(memorytool.NewMemoryTool(store, locale))
	registry.Register(memorytool.NewToMTool(store, cfg.CompanionName))
	registry.Register(webtool.NewWebTool())

	if cfg.Coding.Enabled() {
		registry.Register(filetool.NewCodingTool(cfg.Coding))
	}

	for _, ts := range mcptoolset.Connect(ctx, paths.MCPConfig) {
		registry.Register(ts)
	}
	return registry
}
