package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/sreq-inc/solo/internal/logging"
	"github.com/sreq-inc/solo/internal/telemetry"
)

const (
	SettingsFormatTOML SettingsFormat = "toml"
	SettingsFormatJSON SettingsFormat = "json"
)

type Settings struct {
	Storage   StorageSettings   `json:"storage"   toml:"storage"`
	Log       logging.Config    `json:"log"       toml:"log"`
	HTTP      HTTPSettings      `json:"http"      toml:"http"`
	Telemetry TelemetrySettings `json:"telemetry" toml:"telemetry"`
}

type StorageSettings struct {
	Backend StorageBackend `json:"backend"         toml:"backend"`
	Path    string         `json:"path,omitempty"  toml:"path,omitempty"`
	Redis   RedisSettings  `json:"redis"           toml:"redis"`
}

type RedisSettings struct {
	Addr     string `json:"addr,omitempty"     toml:"addr,omitempty"`
	Password string `json:"password,omitempty" toml:"password,omitempty"`
	DB       int    `json:"db,omitempty"       toml:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"   toml:"prefix,omitempty"`
}

type HTTPSettings struct {
	Timeout         string `json:"timeout"            toml:"timeout"`
	FollowRedirects bool   `json:"follow_redirects"   toml:"follow_redirects"`
	Insecure        bool   `json:"insecure,omitempty" toml:"insecure,omitempty"`
	Proxy           string `json:"proxy,omitempty"    toml:"proxy,omitempty"`
}

type TelemetrySettings struct {
	Endpoint    string            `json:"endpoint,omitempty"     toml:"endpoint,omitempty"`
	Insecure    bool              `json:"insecure,omitempty"     toml:"insecure,omitempty"`
	Service     string            `json:"service,omitempty"      toml:"service,omitempty"`
	DialTimeout string            `json:"dial_timeout,omitempty" toml:"dial_timeout,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"      toml:"headers,omitempty"`
}

// HTTPTimeout is the normalised request timeout.
func (s Settings) HTTPTimeout() time.Duration {
	return clampDuration(s.HTTP.Timeout, HTTPTimeoutMin, HTTPTimeoutMax, HTTPTimeoutDefault)
}

// TelemetryConfig combines the file settings with SOLO_OTEL_* variables read
// through getenv; the environment wins.
func (s Settings) TelemetryConfig(getenv func(string) string) telemetry.Config {
	base := telemetry.Config{
		Endpoint:    s.Telemetry.Endpoint,
		Insecure:    s.Telemetry.Insecure,
		ServiceName: s.Telemetry.Service,
		Headers:     s.Telemetry.Headers,
	}
	if d, err := time.ParseDuration(s.Telemetry.DialTimeout); err == nil {
		base.DialTimeout = d
	}
	env := telemetry.ConfigFromEnv(getenv)
	if env.ServiceName == telemetry.DefaultServiceName && base.ServiceName != "" {
		env.ServiceName = ""
	}
	return base.Merge(env)
}

type SettingsFormat string
type SettingsHandle struct {
	Path   string
	Format SettingsFormat
}

// tries loading TOML first, then JSON, then returns empty settings if neither exists.
// parse errors fail immediately but missing files just skip to the next format.
func LoadSettings() (Settings, SettingsHandle, error) {
	dir := Dir()
	candidates := []SettingsHandle{
		{Path: filepath.Join(dir, "settings.toml"), Format: SettingsFormatTOML},
		{Path: filepath.Join(dir, "settings.json"), Format: SettingsFormatJSON},
	}

	var accumulated error
	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate.Path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			accumulated = errors.Join(
				accumulated,
				fmt.Errorf("read settings %q: %w", candidate.Path, err),
			)
			continue
		}

		settings, err := decodeSettings(data, candidate.Format)
		if err != nil {
			return Settings{}, SettingsHandle{}, fmt.Errorf(
				"parse settings %q: %w",
				candidate.Path,
				err,
			)
		}
		return NormaliseSettings(settings, dir), candidate, nil
	}

	if accumulated != nil {
		return Settings{}, SettingsHandle{}, accumulated
	}

	return NormaliseSettings(DefaultSettings(), dir), SettingsHandle{
		Path:   candidates[0].Path,
		Format: SettingsFormatTOML,
	}, nil
}

// decodeSettings starts from the defaults so omitted keys keep them.
func decodeSettings(data []byte, format SettingsFormat) (Settings, error) {
	settings := DefaultSettings()
	switch format {
	case SettingsFormatTOML:
		if err := toml.Unmarshal(data, &settings); err != nil {
			return Settings{}, err
		}
	case SettingsFormatJSON:
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&settings); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, fmt.Errorf("unsupported settings format %q", format)
	}
	return settings, nil
}

func SaveSettings(settings Settings, handle SettingsHandle) error {
	path := handle.Path
	format := handle.Format
	if path == "" {
		path = filepath.Join(Dir(), "settings.toml")
	}
	if format == "" {
		format = SettingsFormatTOML
	}
	settings = NormaliseSettings(settings, filepath.Dir(path))

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure settings directory: %w", err)
	}

	var (
		data []byte
		err  error
	)

	switch format {
	case SettingsFormatTOML:
		data, err = toml.Marshal(settings)
	case SettingsFormatJSON:
		buffer := &bytes.Buffer{}
		encoder := json.NewEncoder(buffer)
		encoder.SetIndent("", "  ")
		if err = encoder.Encode(settings); err == nil {
			data = buffer.Bytes()
		}
	default:
		return fmt.Errorf("unsupported settings format %q", format)
	}
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write settings %q: %w", path, err)
	}
	return nil
}

// write to a temp file then rename so readers never see a partial file.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".solo-settings-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmp.Name()
	defer func() {
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		closeErr := tmp.Close()
		if closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}

	if err := tmp.Chmod(perm); err != nil {
		closeErr := tmp.Close()
		if closeErr != nil {
			return errors.Join(err, closeErr)
		}
		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	return nil
}
