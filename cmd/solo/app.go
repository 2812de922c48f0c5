package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"go.uber.org/zap"

	"github.com/sreq-inc/solo/internal/config"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/httpclient"
	"github.com/sreq-inc/solo/internal/kvstore"
	"github.com/sreq-inc/solo/internal/logging"
	"github.com/sreq-inc/solo/internal/telemetry"
	"github.com/sreq-inc/solo/internal/workspace"
)

const envSession = "SOLO_SESSION"

// app owns everything a command needs. It is opened lazily before the first
// command runs and closed once by main.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string
	copy   func(string) error

	settings config.Settings
	logger   *zap.Logger
	store    kvstore.Store
	instr    telemetry.Instrumenter
	ws       *workspace.Workspace
	closers  []io.Closer
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		getenv: os.Getenv,
		copy:   clipboard.WriteAll,
		logger: zap.NewNop(),
		instr:  telemetry.Noop(),
	}
}

func (a *app) open() error {
	if a.ws != nil {
		return nil
	}
	settings, _, err := config.LoadSettings()
	if err != nil {
		return err
	}
	a.settings = settings

	logger, err := logging.New(settings.Log, a.stderr)
	if err != nil {
		return err
	}
	a.logger = logger

	store, session, closers, err := openStores(settings, sessionPath(config.Dir(), a.getenv))
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, closers...)

	telemetryCfg := settings.TelemetryConfig(a.getenv)
	telemetryCfg.Version = version
	instr, err := telemetry.New(telemetryCfg)
	if err != nil {
		if telemetryCfg.Enabled() {
			a.logger.Warn("telemetry init error", zap.Error(err))
		}
	} else {
		a.instr = instr
	}

	client := httpclient.NewClient(httpclient.Options{
		Timeout:            settings.HTTPTimeout(),
		FollowRedirects:    settings.HTTP.FollowRedirects,
		InsecureSkipVerify: settings.HTTP.Insecure,
		ProxyURL:           settings.HTTP.Proxy,
		UserAgent:          "solo/" + version,
	})
	client.SetTelemetry(a.instr)
	client.SetLogger(a.logger.Named("http"))

	ws, err := workspace.New(store,
		workspace.WithSession(session),
		workspace.WithExecutor(client),
		workspace.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}
	a.ws = ws
	return nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.instr.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown", zap.Error(err))
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			a.logger.Warn("close store", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}

// sessionPath names the file holding the selected collection. A session is
// the invoking shell unless SOLO_SESSION names one explicitly.
func sessionPath(dir string, getenv func(string) string) string {
	id := strings.TrimSpace(getenv(envSession))
	if id == "" {
		id = strconv.Itoa(os.Getppid())
	}
	return filepath.Join(dir, "sessions", filepath.Base(id)+".json")
}

// openStores builds the collection store for the configured backend and the
// session store that remembers the selected collection.
func openStores(settings config.Settings, sessionFile string) (kvstore.Store, kvstore.Store, []io.Closer, error) {
	storage := settings.Storage
	if storage.Backend == config.StorageMemory {
		return kvstore.NewMemory(), kvstore.NewMemory(), nil, nil
	}

	session := kvstore.NewFile(sessionFile)
	if err := session.Load(); err != nil {
		return nil, nil, nil, err
	}

	switch storage.Backend {
	case config.StorageSQLite:
		if err := os.MkdirAll(filepath.Dir(storage.Path), 0o755); err != nil {
			return nil, nil, nil, errdef.Wrap(errdef.CodeFilesystem, err, "create %s", filepath.Dir(storage.Path))
		}
		db, err := kvstore.OpenSQLite(storage.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, session, []io.Closer{db}, nil
	case config.StorageRedis:
		r, err := kvstore.OpenRedis(kvstore.RedisOptions{
			Addr:     storage.Redis.Addr,
			Password: storage.Redis.Password,
			DB:       storage.Redis.DB,
			Prefix:   storage.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		return r, session, []io.Closer{r}, nil
	default:
		file := kvstore.NewFile(storage.Path)
		if err := file.Load(); err != nil {
			return nil, nil, nil, err
		}
		return file, session, nil, nil
	}
}
