package vars

import (
	"encoding/json"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/kvstore"
)

// KeyPrefix namespaces variable tables in the same store as collections.
const KeyPrefix = "solo-variables-"

func StorageKey(collection string) string {
	return KeyPrefix + collection
}

func IsStorageKey(key string) bool {
	return strings.HasPrefix(key, KeyPrefix)
}

type Variable struct {
	Key     string `json:"key"     yaml:"key"`
	Value   string `json:"value"   yaml:"value"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

func (v Variable) resolvable() bool {
	return v.Enabled && trimPad(v.Key) != "" && trimPad(v.Value) != ""
}

// EmptyRows is what a table holds when it has nothing else: never zero rows.
func EmptyRows() []Variable {
	return []Variable{{Enabled: true}}
}

func EncodeRows(rows []Variable) (string, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeStorage, err, "encode variables")
	}
	return string(data), nil
}

func DecodeRows(raw string) ([]Variable, error) {
	var rows []Variable
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, errdef.Wrap(errdef.CodeMalformed, err, "parse variables")
	}
	return rows, nil
}

type Field string

const (
	FieldKey     Field = "key"
	FieldValue   Field = "value"
	FieldEnabled Field = "enabled"
)

// Table is the active collection's variables. When attached to a collection
// every mutation is written before the in-memory rows change.
type Table struct {
	store      kvstore.Store
	logger     *zap.Logger
	collection string
	rows       []Variable
}

func NewTable(store kvstore.Store, logger *zap.Logger) *Table {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{store: store, logger: logger, rows: EmptyRows()}
}

func (t *Table) Collection() string {
	return t.collection
}

func (t *Table) Rows() []Variable {
	return append([]Variable(nil), t.rows...)
}

// LoadFor attaches the table to collection. Missing or unreadable data leaves
// one empty row; a corrupt entry is logged and otherwise ignored.
func (t *Table) LoadFor(collection string) error {
	raw, ok, err := t.store.Get(StorageKey(collection))
	if err != nil {
		return err
	}
	rows := EmptyRows()
	if ok {
		decoded, decodeErr := DecodeRows(raw)
		switch {
		case decodeErr != nil:
			t.logger.Warn("ignoring malformed variable table",
				zap.String("collection", collection),
				zap.Error(decodeErr))
		case len(decoded) > 0:
			rows = decoded
		}
	}
	t.collection = collection
	t.rows = rows
	return nil
}

func (t *Table) Clear() {
	t.collection = ""
	t.rows = EmptyRows()
}

func (t *Table) Add() error {
	next := append(t.Rows(), Variable{Enabled: true})
	return t.commit(next)
}

func (t *Table) Remove(index int) error {
	if err := t.checkIndex(index); err != nil {
		return err
	}
	next := append(t.Rows()[:index:index], t.rows[index+1:]...)
	if len(next) == 0 {
		next = EmptyRows()
	}
	return t.commit(next)
}

func (t *Table) Update(index int, field Field, value string) error {
	if err := t.checkIndex(index); err != nil {
		return err
	}
	next := t.Rows()
	switch field {
	case FieldKey:
		next[index].Key = value
	case FieldValue:
		next[index].Value = value
	case FieldEnabled:
		enabled, err := strconv.ParseBool(strings.TrimSpace(value))
		if err != nil {
			return errdef.Wrap(errdef.CodeValidation, err, "enabled must be true or false")
		}
		next[index].Enabled = enabled
	default:
		return errdef.New(errdef.CodeValidation, "unknown variable field %q", field)
	}
	return t.commit(next)
}

// Import appends rows, dropping the placeholder row of an otherwise empty table.
func (t *Table) Import(rows []Variable) error {
	if len(rows) == 0 {
		return nil
	}
	next := t.Rows()
	if len(next) == 1 && next[0] == (Variable{Enabled: true}) {
		next = nil
	}
	next = append(next, rows...)
	return t.commit(next)
}

// Replace swaps every row at once.
func (t *Table) Replace(rows []Variable) error {
	next := append([]Variable(nil), rows...)
	if len(next) == 0 {
		next = EmptyRows()
	}
	return t.commit(next)
}

func (t *Table) checkIndex(index int) error {
	if index < 0 || index >= len(t.rows) {
		return errdef.New(errdef.CodeValidation, "variable index %d out of range", index)
	}
	return nil
}

func (t *Table) commit(next []Variable) error {
	if t.collection != "" {
		raw, err := EncodeRows(next)
		if err != nil {
			return err
		}
		if err := t.store.Set(StorageKey(t.collection), raw); err != nil {
			return err
		}
	}
	t.rows = next
	return nil
}
