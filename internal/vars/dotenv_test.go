package vars

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/MakeNowJust/heredoc"
)

func TestReadDotEnvKeepsFileOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), ".env.local")
	content := heredoc.Doc(`
		# api
		HOST=http://localhost:8080
		export TOKEN="abc 123"
		VERSION=v1 # trailing comment
	`)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}

	rows, err := ReadDotEnv(path)
	if err != nil {
		t.Fatalf("read env: %v", err)
	}
	want := []Variable{
		{Key: "HOST", Value: "http://localhost:8080", Enabled: true},
		{Key: "TOKEN", Value: "abc 123", Enabled: true},
		{Key: "VERSION", Value: "v1", Enabled: true},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Fatalf("unexpected rows %#v", rows)
	}
}

func TestReadDotEnvMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := ReadDotEnv(filepath.Join(t.TempDir(), "nope.env")); err == nil {
		t.Fatalf("expected error")
	}
}
