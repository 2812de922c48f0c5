package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	EnvConfigDir = "SOLO_CONFIG_DIR"
	appDirName   = "solo"
)

// Dir is SOLO_CONFIG_DIR when set, otherwise solo/ under the user config
// directory, falling back to ~/.solo.
func Dir() string {
	if dir := strings.TrimSpace(os.Getenv(EnvConfigDir)); dir != "" {
		return dir
	}
	if base, err := os.UserConfigDir(); err == nil && base != "" {
		return filepath.Join(base, appDirName)
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, "."+appDirName)
	}
	return "." + appDirName
}
