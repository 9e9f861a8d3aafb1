package config

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotenv loads .env files without overriding variables already present
// in the environment. The current directory is checked first, then the
// user's home directory. Missing files are not an error.
func LoadDotenv() {
	candidates := []string{".env"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		_ = godotenv.Load(path)
	}
}
