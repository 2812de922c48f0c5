package vars

import (
	"bufio"
	"bytes"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/sreq-inc/solo/internal/errdef"
)

// ReadDotEnv turns a .env file into enabled variable rows in file order.
func ReadDotEnv(path string) ([]Variable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeFilesystem, err, "read env file %s", path)
	}
	return ParseDotEnv(data)
}

func ParseDotEnv(data []byte) ([]Variable, error) {
	values, err := godotenv.UnmarshalBytes(data)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeMalformed, err, "parse env file")
	}

	order := dotEnvKeyOrder(data)
	seen := make(map[string]struct{}, len(values))
	rows := make([]Variable, 0, len(values))
	for _, key := range order {
		value, ok := values[key]
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rows = append(rows, Variable{Key: key, Value: value, Enabled: true})
	}

	var rest []string
	for key := range values {
		if _, ok := seen[key]; !ok {
			rest = append(rest, key)
		}
	}
	sort.Strings(rest)
	for _, key := range rest {
		rows = append(rows, Variable{Key: key, Value: values[key], Enabled: true})
	}
	return rows, nil
}

// godotenv returns a map, so declaration order is recovered from the raw lines.
func dotEnvKeyOrder(data []byte) []string {
	var keys []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		idx := strings.IndexAny(line, "=:")
		if idx <= 0 {
			continue
		}
		keys = append(keys, strings.TrimSpace(line[:idx]))
	}
	return keys
}
