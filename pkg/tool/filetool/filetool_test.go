package filetool

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/utenadev/familiar-ai/pkg/config"
)

func newTestTool(t *testing.T, bash bool) (*CodingTool, string) {
	t.Helper()
	dir := t.TempDir()
	return NewCodingTool(config.CodingConfig{Workdir: dir, BashEnabled: bash}), dir
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func call(t *testing.T, c *CodingTool, name string, args map[string]any) string {
	t.Helper()
	res, err := c.Call(context.Background(), name, args)
	if err != nil {
		t.Fatalf("%s returned error: %v", name, err)
	}
	return res.Text
}

func TestReadFile(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "a.txt", "one\ntwo\nthree\n")

	out := call(t, c, "read_file", map[string]any{"path": "a.txt"})
	if !strings.Contains(out, "1\tone") || !strings.Contains(out, "3\tthree") {
		t.Errorf("missing numbered lines:\n%s", out)
	}
}

func TestReadFileOffsetLimit(t *testing.T) {
	c, dir := newTestTool(t, false)
	var b strings.Builder
	for i := 1; i <= 20; i++ {
		b.WriteString(strings.Repeat("x", i) + "\n")
	}
	writeFile(t, dir, "big.txt", b.String())

	out := call(t, c, "read_file", map[string]any{
		"path": "big.txt", "offset": float64(5), "limit": float64(3),
	})
	if !strings.Contains(out, "5\t") || strings.Contains(out, "8\t") {
		t.Errorf("window wrong:\n%s", out)
	}
	if !strings.Contains(out, "showing lines 5-7 of 20") {
		t.Errorf("missing truncation note:\n%s", out)
	}
}

func TestReadFileNotFound(t *testing.T) {
	c, _ := newTestTool(t, false)
	out := call(t, c, "read_file", map[string]any{"path": "missing.txt"})
	if !strings.Contains(out, "File not found") {
		t.Errorf("got %q", out)
	}
}

func TestEditFileReplacesUniqueMatch(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "f.go", "package main\n\nvar x = 1\n")

	out := call(t, c, "edit_file", map[string]any{
		"path": "f.go", "old_string": "var x = 1", "new_string": "var x = 2",
	})
	if !strings.Contains(out, "replaced 1 occurrence") {
		t.Fatalf("got %q", out)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "f.go"))
	if !strings.Contains(string(data), "var x = 2") {
		t.Errorf("file not updated: %s", data)
	}
}

func TestEditFileRejectsAmbiguousMatch(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "f.txt", "aaa\naaa\n")

	out := call(t, c, "edit_file", map[string]any{
		"path": "f.txt", "old_string": "aaa", "new_string": "bbb",
	})
	if !strings.Contains(out, "matches 2 locations") {
		t.Errorf("got %q", out)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "f.txt"))
	if string(data) != "aaa\naaa\n" {
		t.Error("ambiguous edit must not modify the file")
	}
}

func TestEditFileRejectsMissingMatch(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "f.txt", "hello\n")

	out := call(t, c, "edit_file", map[string]any{
		"path": "f.txt", "old_string": "nope", "new_string": "x",
	})
	if !strings.Contains(out, "old_string not found") {
		t.Errorf("got %q", out)
	}
}

func TestGlobDoubleStar(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "a.go", "x")
	writeFile(t, dir, "sub/b.go", "x")
	writeFile(t, dir, "sub/deep/c.go", "x")
	writeFile(t, dir, "sub/d.txt", "x")

	out := call(t, c, "glob", map[string]any{"pattern": "**/*.go"})
	for _, want := range []string{"a.go", "b.go", "c.go"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %s in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "d.txt") {
		t.Errorf("matched non-go file:\n%s", out)
	}
}

func TestGlobNoMatches(t *testing.T) {
	c, _ := newTestTool(t, false)
	out := call(t, c, "glob", map[string]any{"pattern": "*.rs"})
	if !strings.Contains(out, "No files matched") {
		t.Errorf("got %q", out)
	}
}

func TestMatchGlob(t *testing.T) {
	tests := []struct {
		pattern, path string
		want          bool
	}{
		{"*.go", "main.go", true},
		{"*.go", "sub/main.go", false},
		{"**/*.go", "main.go", true},
		{"**/*.go", "a/b/c/main.go", true},
		{"src/**/*.ts", "src/a/b.ts", true},
		{"src/**/*.ts", "lib/a/b.ts", false},
		{"**", "anything/at/all", true},
	}
	for _, tt := range tests {
		if got := matchGlob(tt.pattern, tt.path); got != tt.want {
			t.Errorf("matchGlob(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestGrepFilesWithMatches(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "a.go", "func Hello() {}\n")
	writeFile(t, dir, "b.go", "func World() {}\n")

	out := call(t, c, "grep", map[string]any{"pattern": "Hello"})
	if !strings.Contains(out, "a.go") || strings.Contains(out, "b.go") {
		t.Errorf("got:\n%s", out)
	}
}

func TestGrepContentMode(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "a.txt", "alpha\nbeta\ngamma\n")

	out := call(t, c, "grep", map[string]any{
		"pattern": "beta", "output_mode": "content",
	})
	if !strings.Contains(out, "a.txt:2: beta") {
		t.Errorf("got:\n%s", out)
	}
}

func TestGrepGlobFilter(t *testing.T) {
	c, dir := newTestTool(t, false)
	writeFile(t, dir, "a.go", "match\n")
	writeFile(t, dir, "a.txt", "match\n")

	out := call(t, c, "grep", map[string]any{"pattern": "match", "glob": "*.go"})
	if !strings.Contains(out, "a.go") || strings.Contains(out, "a.txt") {
		t.Errorf("got:\n%s", out)
	}
}

func TestGrepInvalidRegex(t *testing.T) {
	c, _ := newTestTool(t, false)
	out := call(t, c, "grep", map[string]any{"pattern": "(unclosed"})
	if !strings.Contains(out, "Invalid regex") {
		t.Errorf("got %q", out)
	}
}

func TestBashDisabledByDefault(t *testing.T) {
	c, _ := newTestTool(t, false)
	out := call(t, c, "bash", map[string]any{"command": "echo hi"})
	if !strings.Contains(out, "not available") {
		t.Errorf("got %q", out)
	}
	for _, def := range c.Definitions() {
		if def.Name == "bash" {
			t.Error("bash must not be advertised when disabled")
		}
	}
}

func TestBashRunsCommand(t *testing.T) {
	c, _ := newTestTool(t, true)
	out := call(t, c, "bash", map[string]any{"command": "echo hello"})
	if strings.TrimSpace(out) != "hello" {
		t.Errorf("got %q", out)
	}
}

func TestBashExitCode(t *testing.T) {
	c, _ := newTestTool(t, true)
	out := call(t, c, "bash", map[string]any{"command": "echo oops >&2; exit 3"})
	if !strings.HasPrefix(out, "Exit 3:") || !strings.Contains(out, "oops") {
		t.Errorf("got %q", out)
	}
}

func TestBashNoOutput(t *testing.T) {
	c, _ := newTestTool(t, true)
	out := call(t, c, "bash", map[string]any{"command": "true"})
	if out != "(no output)" {
		t.Errorf("got %q", out)
	}
}
