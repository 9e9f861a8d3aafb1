// Package filetool gives the agent coding hands: read_file, edit_file,
// glob, grep, and an opt-in bash. Paths resolve relative to the
// configured working directory; the tools are not registered at all when
// none is configured.
package filetool

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/utenadev/familiar-ai/pkg/config"
	"github.com/utenadev/familiar-ai/pkg/tool"
)

const (
	defaultBashTimeout = 30 * time.Second
	grepContentCap     = 500
)

// CodingTool serves the coding tools scoped to one working directory.
type CodingTool struct {
	workdir     string
	bashEnabled bool
}

func NewCodingTool(cfg config.CodingConfig) *CodingTool {
	return &CodingTool{workdir: cfg.Workdir, bashEnabled: cfg.BashEnabled}
}

func (c *CodingTool) Definitions() []tool.Definition {
	defs := []tool.Definition{
		{
			Name: "read_file",
			Description: "Read a file and return its contents with line numbers (cat -n format). " +
				"Use offset and limit to read large files in chunks.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File path (absolute or relative to working directory)",
					},
					"offset": map[string]any{
						"type":        "integer",
						"description": "1-based line number to start reading from (default: 1)",
					},
					"limit": map[string]any{
						"type":        "integer",
						"description": "Maximum number of lines to read (default: all)",
					},
				},
				"required": []any{"path"},
			},
		},
		{
			Name: "edit_file",
			Description: "Edit a file by replacing old_string with new_string. " +
				"old_string must appear exactly once in the file. " +
				"ALWAYS call read_file before edit_file to confirm the exact text.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"path": map[string]any{
						"type":        "string",
						"description": "File path to edit",
					},
					"old_string": map[string]any{
						"type":        "string",
						"description": "Exact text to find and replace (must be unique in file)",
					},
					"new_string": map[string]any{
						"type":        "string",
						"description": "Replacement text",
					},
				},
				"required": []any{"path", "old_string", "new_string"},
			},
		},
		{
			Name: "glob",
			Description: "Find files matching a glob pattern (e.g. '**/*.go'). " +
				"Returns a newline-separated list of matching file paths.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Glob pattern (e.g. '**/*.go', 'src/**/*.ts')",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "Root directory to search in (default: working directory)",
					},
				},
				"required": []any{"pattern"},
			},
		},
		{
			Name: "grep",
			Description: "Search file contents using a regular expression pattern. " +
				"Returns matching file paths (files_with_matches mode) or " +
				"matching lines with context (content mode).",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"pattern": map[string]any{
						"type":        "string",
						"description": "Regular expression pattern to search for",
					},
					"path": map[string]any{
						"type":        "string",
						"description": "File or directory to search (default: working directory)",
					},
					"glob": map[string]any{
						"type":        "string",
						"description": "Filter files by glob pattern (e.g. '*.go')",
					},
					"output_mode": map[string]any{
						"type": "string",
						"enum": []any{"files_with_matches", "content"},
						"description": "Output mode: 'files_with_matches' (default) or " +
							"'content' (show matching lines)",
					},
				},
				"required": []any{"pattern"},
			},
		},
	}
	if c.bashEnabled {
		defs = append(defs, tool.Definition{
			Name: "bash",
			Description: "Run a shell command and return its stdout+stderr. " +
				"Working directory is set to the coding workdir. " +
				"Default timeout: 30 seconds.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"command": map[string]any{
						"type":        "string",
						"description": "Shell command to execute",
					},
					"timeout": map[string]any{
						"type":        "integer",
						"description": "Timeout in seconds (default: 30)",
					},
				},
				"required": []any{"command"},
			},
		})
	}
	return defs
}

func (c *CodingTool) Call(ctx context.Context, name string, args map[string]any) (*tool.Result, error) {
	switch name {
	case "read_file":
		return &tool.Result{Text: c.readFile(
			tool.StringArg(args, "path", ""),
			tool.IntArg(args, "offset", 1),
			tool.IntArg(args, "limit", 0),
		)}, nil
	case "edit_file":
		return &tool.Result{Text: c.editFile(
			tool.StringArg(args, "path", ""),
			tool.StringArg(args, "old_string", ""),
			tool.StringArg(args, "new_string", ""),
		)}, nil
	case "glob":
		return &tool.Result{Text: c.glob(
			tool.StringArg(args, "pattern", ""),
			tool.StringArg(args, "path", ""),
		)}, nil
	case "grep":
		return &tool.Result{Text: c.grep(
			tool.StringArg(args, "pattern", ""),
			tool.StringArg(args, "path", ""),
			tool.StringArg(args, "glob", ""),
			tool.StringArg(args, "output_mode", "files_with_matches"),
		)}, nil
	case "bash":
		if !c.bashEnabled {
			return &tool.Result{Text: "Tool bash not available"}, nil
		}
		return &tool.Result{Text: c.bash(ctx,
			tool.StringArg(args, "command", ""),
			tool.IntArg(args, "timeout", 30),
		)}, nil
	}
	return &tool.Result{Text: fmt.Sprintf("Tool %s not available", name)}, nil
}

func (c *CodingTool) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.workdir, path)
}

func (c *CodingTool) readFile(path string, offset, limit int) string {
	data, err := os.ReadFile(c.resolve(path))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("File not found: %s", path)
		}
		return fmt.Sprintf("Error: %v", err)
	}

	lines := strings.Split(string(data), "\n")
	// A trailing newline yields one empty trailing element; drop it so
	// line counts match what editors show.
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
	}
	total := len(lines)

	start := offset - 1
	if start < 0 {
		start = 0
	}
	end := total
	if limit > 0 && start+limit < total {
		end = start + limit
	}
	if start >= total {
		return fmt.Sprintf("(empty or offset beyond end of file, total lines: %d)", total)
	}

	var b strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&b, "%6d\t%s\n", i+1, lines[i])
	}
	if end < total {
		fmt.Fprintf(&b, "\n(showing lines %d-%d of %d; use offset/limit for more)", start+1, end, total)
	}
	return b.String()
}

func (c *CodingTool) editFile(path, oldString, newString string) string {
	resolved := c.resolve(path)
	data, err := os.ReadFile(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Sprintf("File not found: %s", path)
		}
		return fmt.Sprintf("Error: %v", err)
	}
	original := string(data)

	count := strings.Count(original, oldString)
	if count == 0 {
		return "edit_file failed: old_string not found in file.\n" +
			"Tip: call read_file first and copy the exact text."
	}
	if count > 1 {
		return fmt.Sprintf("edit_file failed: old_string matches %d locations. "+
			"Provide a longer, more unique string.", count)
	}

	updated := strings.Replace(original, oldString, newString, 1)
	if err := os.WriteFile(resolved, []byte(updated), 0o644); err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	return fmt.Sprintf("Edited %s: replaced 1 occurrence.", path)
}

func (c *CodingTool) glob(pattern, root string) string {
	if root == "" {
		root = c.workdir
	}
	var matches []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil || rel == "." {
			return nil
		}
		if matchGlob(pattern, rel) {
			matches = append(matches, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Sprintf("Glob error: %v", err)
	}
	if len(matches) == 0 {
		return fmt.Sprintf("No files matched: %s", pattern)
	}
	sort.Strings(matches)
	return strings.Join(matches, "\n")
}

// matchGlob matches a relative slash path against a pattern where '**'
// crosses directory boundaries and ordinary segments use filepath.Match
// rules.
func matchGlob(pattern, rel string) bool {
	rel = filepath.ToSlash(rel)
	pattern = filepath.ToSlash(pattern)
	return matchSegments(strings.Split(pattern, "/"), strings.Split(rel, "/"))
}

func matchSegments(pat, path []string) bool {
	if len(pat) == 0 {
		return len(path) == 0
	}
	if pat[0] == "**" {
		for i := 0; i <= len(path); i++ {
			if matchSegments(pat[1:], path[i:]) {
				return true
			}
		}
		return false
	}
	if len(path) == 0 {
		return false
	}
	ok, err := filepath.Match(pat[0], path[0])
	if err != nil || !ok {
		return false
	}
	return matchSegments(pat[1:], path[1:])
}

func (c *CodingTool) grep(pattern, root, globFilter, outputMode string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Sprintf("Invalid regex: %v", err)
	}
	if root == "" {
		root = c.workdir
	}

	var candidates []string
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Sprintf("Error: %v", err)
	}
	if !info.IsDir() {
		candidates = []string{root}
	} else {
		filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if globFilter != "" {
				if ok, _ := filepath.Match(globFilter, d.Name()); !ok {
					return nil
				}
			}
			candidates = append(candidates, path)
			return nil
		})
	}
	sort.Strings(candidates)

	var matchedFiles, contentLines []string
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		text := string(data)
		if outputMode == "content" {
			for lineno, line := range strings.Split(text, "\n") {
				if re.MatchString(line) {
					contentLines = append(contentLines, fmt.Sprintf("%s:%d: %s", path, lineno+1, line))
					if len(contentLines) >= grepContentCap {
						break
					}
				}
			}
		} else if re.MatchString(text) {
			matchedFiles = append(matchedFiles, path)
		}
	}

	if outputMode == "content" {
		if len(contentLines) == 0 {
			return "No matches found."
		}
		return strings.Join(contentLines, "\n")
	}
	if len(matchedFiles) == 0 {
		return "No matching files found."
	}
	return strings.Join(matchedFiles, "\n")
}

func (c *CodingTool) bash(ctx context.Context, command string, timeoutSec int) string {
	timeout := defaultBashTimeout
	if timeoutSec > 0 {
		timeout = time.Duration(timeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = c.workdir
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Sprintf("Command timed out after %ds: %s", timeoutSec, command)
	}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return fmt.Sprintf("Exit %d:\n%s", exitErr.ExitCode(), out)
		}
		return fmt.Sprintf("Bash error: %v", err)
	}
	if len(out) == 0 {
		return "(no output)"
	}
	return string(out)
}
