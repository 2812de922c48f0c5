package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/sreq-inc/solo/internal/logging"
)

type StorageBackend string

const (
	StorageFile   StorageBackend = "file"
	StorageSQLite StorageBackend = "sqlite"
	StorageRedis  StorageBackend = "redis"
	StorageMemory StorageBackend = "memory"
)

const (
	HTTPTimeoutDefault = 30 * time.Second
	HTTPTimeoutMin     = time.Second
	HTTPTimeoutMax     = 10 * time.Minute

	RedisDBMax          = 15
	RedisPrefixDefault  = "solo:"
	workspaceFileName   = "workspace.json"
	workspaceSQLiteName = "workspace.db"
)

func DefaultSettings() Settings {
	return Settings{
		Storage: StorageSettings{Backend: StorageFile},
		Log:     logging.DefaultConfig(),
		HTTP: HTTPSettings{
			Timeout:         HTTPTimeoutDefault.String(),
			FollowRedirects: true,
		},
	}
}

// NormaliseSettings fills defaults and clamps out-of-range values. Paths left
// empty are derived from dir.
func NormaliseSettings(in Settings, dir string) Settings {
	out := in
	out.Storage = normaliseStorage(in.Storage, dir)
	out.Log = normaliseLog(in.Log)
	out.HTTP.Timeout = clampDuration(
		in.HTTP.Timeout,
		HTTPTimeoutMin,
		HTTPTimeoutMax,
		HTTPTimeoutDefault,
	).String()
	out.Telemetry.Endpoint = strings.TrimSpace(in.Telemetry.Endpoint)
	return out
}

func normaliseStorage(in StorageSettings, dir string) StorageSettings {
	out := in
	switch StorageBackend(strings.ToLower(strings.TrimSpace(string(in.Backend)))) {
	case StorageSQLite:
		out.Backend = StorageSQLite
	case StorageRedis:
		out.Backend = StorageRedis
	case StorageMemory:
		out.Backend = StorageMemory
	default:
		out.Backend = StorageFile
	}
	if strings.TrimSpace(out.Path) == "" {
		switch out.Backend {
		case StorageFile:
			out.Path = filepath.Join(dir, workspaceFileName)
		case StorageSQLite:
			out.Path = filepath.Join(dir, workspaceSQLiteName)
		}
	}
	if out.Redis.Prefix == "" {
		out.Redis.Prefix = RedisPrefixDefault
	}
	if out.Redis.DB < 0 || out.Redis.DB > RedisDBMax {
		out.Redis.DB = 0
	}
	return out
}

func normaliseLog(in logging.Config) logging.Config {
	out := logging.DefaultConfig()
	if _, err := logging.ParseLevel(in.Level); err == nil && in.Level != "" {
		out.Level = strings.ToLower(in.Level)
	}
	switch strings.ToLower(strings.TrimSpace(in.Format)) {
	case "json":
		out.Format = "json"
	case "console":
		out.Format = "console"
	}
	switch strings.ToLower(strings.TrimSpace(in.Output)) {
	case logging.OutputFile, logging.OutputBoth:
		if strings.TrimSpace(in.FilePath) != "" {
			out.Output = strings.ToLower(strings.TrimSpace(in.Output))
		}
	case logging.OutputNone:
		out.Output = logging.OutputNone
	}
	out.FilePath = in.FilePath
	out.MaxSize = clampInt(in.MaxSize, 1, 1024, out.MaxSize)
	out.MaxBackups = clampInt(in.MaxBackups, 0, 100, out.MaxBackups)
	out.MaxAge = clampInt(in.MaxAge, 1, 365, out.MaxAge)
	return out
}

func clampDuration(raw string, min, max, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func clampInt(value, min, max, fallback int) int {
	if value == 0 {
		return fallback
	}
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
