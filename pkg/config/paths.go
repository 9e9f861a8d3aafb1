package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths centralizes every on-disk location the agent touches. One Paths is
// created at startup and handed to components; nothing else decides where
// state lives.
type Paths struct {
	// StateDir is the root for durable state, ~/.familiar-ai by default.
	StateDir string
	// CacheDir is the root for disposable output, ~/.cache/familiar-ai.
	CacheDir string

	MemoryDB   string
	DesireFile string
	ChatLog    string
	CaptureDir string
	MCPConfig  string
}

// NewPaths resolves all paths, applying the overrides carried by cfg.
// Directories are created eagerly so components can open files without
// racing on mkdir.
func NewPaths(cfg *Config) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve home directory: %w", err)
	}

	p := &Paths{
		StateDir: filepath.Join(home, ".familiar-ai"),
		CacheDir: filepath.Join(home, ".cache", "familiar-ai"),
	}
	p.MemoryDB = filepath.Join(p.StateDir, "memory.db")
	p.DesireFile = filepath.Join(p.StateDir, "desires.json")
	p.ChatLog = filepath.Join(p.CacheDir, "chat.log")
	p.CaptureDir = filepath.Join(p.StateDir, "captures")
	p.MCPConfig = filepath.Join(home, ".familiar-ai.json")

	if cfg != nil {
		if cfg.MemoryDBPath != "" {
			p.MemoryDB = cfg.MemoryDBPath
		}
		if cfg.MCPConfigPath != "" {
			p.MCPConfig = cfg.MCPConfigPath
		}
	}

	for _, dir := range []string{p.StateDir, p.CacheDir, p.CaptureDir, filepath.Dir(p.MemoryDB)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return p, nil
}
