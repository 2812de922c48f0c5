package main

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sreq-inc/solo/internal/config"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/restfile"
)

type cliResult struct {
	out    string
	copied string
}

func runCLI(t *testing.T, args ...string) (cliResult, error) {
	t.Helper()
	return runCLIWithEnv(t, nil, args...)
}

func runCLIWithEnv(t *testing.T, env map[string]string, args ...string) (cliResult, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	a := newApp(&out, &errOut)
	a.getenv = func(key string) string { return env[key] }
	var res cliResult
	a.copy = func(s string) error {
		res.copied = s
		return nil
	}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	a.close()
	res.out = out.String()
	return res, err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	res, err := runCLI(t, args...)
	if err != nil {
		t.Fatalf("solo %s: %v", strings.Join(args, " "), err)
	}
	return res.out
}

func TestCollectionLifecycle(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigDir, dir)

	mustRun(t, "collection", "create", "alpha")
	mustRun(t, "collection", "create", "beta")
	mustRun(t, "collection", "use", "beta")
	if got := mustRun(t, "collection", "list"); got != "  alpha\n* beta\n" {
		t.Fatalf("unexpected list:\n%s", got)
	}

	mustRun(t, "collection", "rename", "beta", "gamma")
	if got := mustRun(t, "collection", "list"); got != "  alpha\n* gamma\n" {
		t.Fatalf("selection must follow rename:\n%s", got)
	}

	mustRun(t, "collection", "rm", "gamma")
	if got := mustRun(t, "collection", "list"); got != "  alpha\n" {
		t.Fatalf("unexpected list after remove:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "workspace.json")); err != nil {
		t.Fatalf("expected file store: %v", err)
	}

	_, err := runCLI(t, "collection", "use", "gamma")
	if !errdef.Is(err, errdef.CodeNotFound) || exitCode(err) != 3 {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCurlExportFromCLI(t *testing.T) {
	t.Setenv(config.EnvConfigDir, t.TempDir())

	mustRun(t, "collection", "create", "demo")
	mustRun(t, "collection", "use", "demo")
	mustRun(t, "var", "set", "host", "https://api.test")
	mustRun(t, "var", "set", "token", "tok")
	id := strings.TrimSpace(mustRun(t, "request", "new"))
	if !strings.HasPrefix(id, "request_") {
		t.Fatalf("unexpected id %q", id)
	}
	mustRun(t, "request", "set", id,
		"--method", "post",
		"--url", "{{host}}/users",
		"--query", "dry run=yes",
		"--query", "!skip=1",
		"--bearer", "{{token}}",
		"--body", `{"name":"Sam"}`,
	)

	res, err := runCLI(t, "curl", id, "--copy")
	if err != nil {
		t.Fatalf("curl: %v", err)
	}
	want := `curl -X POST "https://api.test/users?dry%20run=yes" -H "Authorization: Bearer tok" -H "Content-Type: application/json" -d "{\"name\":\"Sam\"}"`
	if strings.TrimSpace(res.out) != want {
		t.Fatalf("expected\n%s\ngot\n%s", want, res.out)
	}
	if res.copied != want {
		t.Fatalf("expected clipboard copy, got %q", res.copied)
	}

	mustRun(t, "var", "rm", "token")
	_, err = runCLI(t, "curl", id)
	if err == nil || !strings.Contains(err.Error(), "token") || exitCode(err) != 2 {
		t.Fatalf("expected unresolved token, got %v", err)
	}
}

func TestRequestSetRejectsForeignFields(t *testing.T) {
	t.Setenv(config.EnvConfigDir, t.TempDir())

	mustRun(t, "collection", "create", "g")
	id := strings.TrimSpace(mustRun(t, "request", "new", "-c", "g", "-p", "graphql"))

	if _, err := runCLI(t, "request", "set", id, "--body", "x"); !errdef.Is(err, errdef.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	mustRun(t, "request", "set", id, "--graphql-variables", `{"id":1}`, "--format")
	mustRun(t, "request", "rename", id, "Who am I")

	show := mustRun(t, "request", "show", id)
	if !strings.Contains(show, "Who am I") || !strings.Contains(show, "\"id\": 1") {
		t.Fatalf("unexpected show output:\n%s", show)
	}
	if got := mustRun(t, "search", "whoami"); !strings.Contains(got, id+"\tg/Who am I") {
		t.Fatalf("unexpected search output %q", got)
	}
}

func TestSendAgainstServer(t *testing.T) {
	t.Setenv(config.EnvConfigDir, t.TempDir())

	seen := make(chan [2]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- [2]string{r.Header.Get("Authorization"), r.URL.RawQuery}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	mustRun(t, "collection", "create", "live")
	mustRun(t, "collection", "use", "live")
	mustRun(t, "var", "set", "host", srv.URL)
	id := strings.TrimSpace(mustRun(t, "request", "new"))
	mustRun(t, "request", "set", id, "--method", "PUT", "--url", "{{host}}/items", "--query", "a=1",
		"--basic", "--user", "admin", "--password", "pw", "--body", `{"ok":true}`)

	out := mustRun(t, "send", id)
	if !strings.HasPrefix(out, "201 Created") || !strings.Contains(out, `{"ok":true}`) {
		t.Fatalf("unexpected send output:\n%s", out)
	}
	got := <-seen
	if !strings.HasPrefix(got[0], "Basic ") || got[1] != "a=1" {
		t.Fatalf("unexpected request auth=%q query=%q", got[0], got[1])
	}
}

func TestVarImportAndBundleRoundTrip(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigDir, dir)

	envPath := filepath.Join(dir, ".env")
	if err := os.WriteFile(envPath, []byte("HOST=http://x\nTOKEN=abc\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	mustRun(t, "collection", "create", "src")
	if got := mustRun(t, "var", "import", envPath, "-c", "src"); got != "imported 2 variables\n" {
		t.Fatalf("unexpected import output %q", got)
	}
	if got := mustRun(t, "var", "list"); !strings.Contains(got, "HOST") || !strings.Contains(got, "TOKEN") {
		t.Fatalf("unexpected var list:\n%s", got)
	}
	id := strings.TrimSpace(mustRun(t, "request", "new", "-p", "grpc"))
	mustRun(t, "request", "set", id, "--grpc-service", "users.v1.Users", "--grpc-method", "Get")

	bundlePath := filepath.Join(dir, "src.yaml")
	mustRun(t, "export", "src", "-o", bundlePath)
	if got := mustRun(t, "import", bundlePath, "--name", "dst"); got != "imported 1 requests into dst\n" {
		t.Fatalf("unexpected import output %q", got)
	}
	listed := mustRun(t, "request", "list", "-c", "dst")
	if !strings.Contains(listed, "GRPC") || strings.Contains(listed, id) {
		t.Fatalf("imported request must get a fresh id:\n%s", listed)
	}
	if got := mustRun(t, "var", "list"); !strings.Contains(got, "HOST") {
		t.Fatalf("variables must be imported:\n%s", got)
	}
	if _, err := runCLI(t, "curl", id); !errdef.Is(err, errdef.CodeValidation) {
		t.Fatalf("grpc curl must be rejected, got %v", err)
	}
}

func TestSQLiteBackendWithSeparateSessions(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvConfigDir, dir)
	settings := "[storage]\nbackend = \"sqlite\"\n"
	if err := os.WriteFile(filepath.Join(dir, "settings.toml"), []byte(settings), 0o644); err != nil {
		t.Fatalf("write settings: %v", err)
	}

	one := map[string]string{envSession: "one"}
	two := map[string]string{envSession: "two"}
	for _, args := range [][]string{{"collection", "create", "shared"}, {"collection", "use", "shared"}} {
		if _, err := runCLIWithEnv(t, one, args...); err != nil {
			t.Fatalf("%v: %v", args, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "workspace.db")); err != nil {
		t.Fatalf("expected sqlite store: %v", err)
	}

	res, err := runCLIWithEnv(t, one, "collection", "list")
	if err != nil || res.out != "* shared\n" {
		t.Fatalf("session one must keep its selection, got %q, %v", res.out, err)
	}
	res, err = runCLIWithEnv(t, two, "collection", "list")
	if err != nil || res.out != "  shared\n" {
		t.Fatalf("session two must start unselected, got %q, %v", res.out, err)
	}
	if _, err := runCLIWithEnv(t, two, "var", "list"); !errdef.Is(err, errdef.CodeValidation) {
		t.Fatalf("expected validation error without a selection, got %v", err)
	}
}

func TestSessionPath(t *testing.T) {
	t.Parallel()

	got := sessionPath("/cfg", func(string) string { return "../../etc/x" })
	if got != filepath.Join("/cfg", "sessions", "x.json") {
		t.Fatalf("unexpected session path %q", got)
	}
	got = sessionPath("/cfg", func(string) string { return "" })
	if filepath.Dir(got) != filepath.Join("/cfg", "sessions") {
		t.Fatalf("unexpected default session path %q", got)
	}
}

func TestVersionSkipsWorkspace(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "unused")
	t.Setenv(config.EnvConfigDir, dir)

	if got := mustRun(t, "version"); !strings.HasPrefix(got, "solo dev") {
		t.Fatalf("unexpected version output %q", got)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("version must not touch the config dir")
	}
}

func TestParseQueryFlags(t *testing.T) {
	t.Parallel()

	got, err := parseQueryFlags([]string{"a=1", "!b=", "c=x=y"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := []restfile.QueryParam{
		{Key: "a", Value: "1", Enabled: true},
		{Key: "b", Value: ""},
		{Key: "c", Value: "x=y", Enabled: true},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("row %d: expected %#v, got %#v", i, want[i], got[i])
		}
	}
	if _, err := parseQueryFlags([]string{"novalue"}); !errdef.Is(err, errdef.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
