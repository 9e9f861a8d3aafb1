package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Persona serves the personality file text and keeps it fresh. The file is
// re-read whenever fsnotify reports a write, so edits land on the next turn
// without a restart.
type Persona struct {
	path string

	mu   sync.RWMutex
	text string

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewPersona loads the persona file and starts watching it. A missing or
// empty path yields a Persona whose Text is always "".
func NewPersona(path string) *Persona {
	p := &Persona{path: path, done: make(chan struct{})}
	if path == "" {
		return p
	}
	p.reload()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("persona watch unavailable", "error", err)
		return p
	}
	// Watch the directory: editors often replace the file, which drops a
	// watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		slog.Warn("persona watch failed", "path", path, "error", err)
		watcher.Close()
		return p
	}
	p.watcher = watcher
	go p.watch()
	return p
}

// Text returns the current persona text, trimmed. Empty when no persona
// file is configured or the file is unreadable.
func (p *Persona) Text() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.text
}

// Close stops the file watcher.
func (p *Persona) Close() {
	close(p.done)
	if p.watcher != nil {
		p.watcher.Close()
	}
}

func (p *Persona) reload() {
	data, err := os.ReadFile(p.path)
	if err != nil {
		slog.Warn("persona file unreadable", "path", p.path, "error", err)
		return
	}
	p.mu.Lock()
	p.text = strings.TrimSpace(string(data))
	p.mu.Unlock()
}

func (p *Persona) watch() {
	base := filepath.Base(p.path)
	for {
		select {
		case <-p.done:
			return
		case event, ok := <-p.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				p.reload()
				slog.Debug("persona reloaded", "path", p.path)
			}
		case err, ok := <-p.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("persona watch error", "error", err)
		}
	}
}
