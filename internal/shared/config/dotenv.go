package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// loadEnvFiles loads KEY=VALUE pairs from the given files if they exist.
// Variables already present in the process environment win. Unreadable files
// come back as warnings.
func loadEnvFiles(paths ...string) []string {
	var warnings []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			warnings = append(warnings, fmt.Sprintf("load %s: %v", path, err))
		}
	}
	return warnings
}
