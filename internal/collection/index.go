// Package collection keeps the named groups of saved requests. A collection is
// one store key holding a JSON array of entries; its variable table lives under
// vars.StorageKey(name) and shares its lifetime.
package collection

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/kvstore"
	"github.com/sreq-inc/solo/internal/restfile"
	"github.com/sreq-inc/solo/internal/vars"
)

// ActiveContext is the current collection and, when Bound, the request the
// draft mirrors. Operations take it and hand back the next value.
type ActiveContext struct {
	Collection string
	RequestID  string
	Bound      bool
}

func (ac ActiveContext) IsActive(collection string) bool {
	return collection != "" && ac.Collection == collection
}

func (ac ActiveContext) BoundTo(collection, id string) bool {
	return ac.Bound && ac.Collection == collection && ac.RequestID == id
}

// Unbind keeps the collection selected but detaches the request.
func (ac ActiveContext) Unbind() ActiveContext {
	return ActiveContext{Collection: ac.Collection}
}

type Option func(*Index)

func WithIDGenerator(fn func() string) Option {
	return func(ix *Index) {
		if fn != nil {
			ix.newID = fn
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(ix *Index) {
		if logger != nil {
			ix.logger = logger
		}
	}
}

type Index struct {
	store  kvstore.Store
	logger *zap.Logger
	newID  func() string
}

func NewIndex(store kvstore.Store, opts ...Option) *Index {
	ix := &Index{store: store, logger: zap.NewNop(), newID: NewRequestID}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// NewRequestID is time-ordered so ids sort by creation.
func NewRequestID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return "request_" + uuid.NewString()
	}
	return "request_" + id.String()
}

// Found is a located request with its owning collection.
type Found struct {
	Collection  string
	DisplayName string
	Request     restfile.Request
}

// Collections lists every stored collection in key order. Variable keys and
// values that do not parse as a request array are skipped.
func (ix *Index) Collections() ([]string, error) {
	keys, err := ix.store.Keys()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, key := range keys {
		if vars.IsStorageKey(key) {
			continue
		}
		if _, ok, err := ix.load(key); err != nil {
			return nil, err
		} else if ok {
			names = append(names, key)
		}
	}
	return names, nil
}

func (ix *Index) Exists(name string) (bool, error) {
	if strings.TrimSpace(name) == "" || vars.IsStorageKey(name) {
		return false, nil
	}
	_, ok, err := ix.load(name)
	return ok, err
}

func (ix *Index) Entries(name string) ([]restfile.Entry, error) {
	entries, ok, err := ix.load(name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errdef.New(errdef.CodeNotFound, "collection %q not found", name)
	}
	return entries, nil
}

func (ix *Index) CreateCollection(ac ActiveContext, name string) (ActiveContext, error) {
	name = strings.TrimSpace(name)
	if err := ix.validateNewName(name); err != nil {
		return ac, err
	}

	emptyVars, err := vars.EncodeRows(vars.EmptyRows())
	if err != nil {
		return ac, err
	}
	if err := ix.store.Set(vars.StorageKey(name), emptyVars); err != nil {
		return ac, err
	}
	if err := ix.store.Set(name, "[]"); err != nil {
		_ = ix.store.Remove(vars.StorageKey(name))
		return ac, err
	}
	ix.logger.Debug("collection created", zap.String("collection", name))
	return ac, nil
}

// RenameCollection moves the variable table first, then the request array,
// and only then repoints the context, so the context never names a key that
// is already gone.
func (ix *Index) RenameCollection(ac ActiveContext, oldName, newName string) (ActiveContext, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return ac, errdef.New(errdef.CodeValidation, "collection name cannot be empty")
	}
	if newName == oldName {
		return ac, errdef.New(errdef.CodeValidation, "collection is already named %q", oldName)
	}
	if err := ix.validateNewName(newName); err != nil {
		return ac, err
	}

	rawEntries, ok, err := ix.store.Get(oldName)
	if err != nil {
		return ac, err
	}
	if !ok || vars.IsStorageKey(oldName) {
		return ac, errdef.New(errdef.CodeNotFound, "collection %q not found", oldName)
	}

	rawVars, ok, err := ix.store.Get(vars.StorageKey(oldName))
	if err != nil {
		return ac, err
	}
	if !ok {
		if rawVars, err = vars.EncodeRows(vars.EmptyRows()); err != nil {
			return ac, err
		}
	}

	if err := ix.store.Set(vars.StorageKey(newName), rawVars); err != nil {
		return ac, err
	}
	if err := ix.store.Remove(vars.StorageKey(oldName)); err != nil {
		return ac, err
	}
	if err := ix.store.Set(newName, rawEntries); err != nil {
		return ac, err
	}
	if err := ix.store.Remove(oldName); err != nil {
		return ac, err
	}

	ix.logger.Debug("collection renamed",
		zap.String("from", oldName),
		zap.String("to", newName))
	if ac.Collection == oldName {
		ac.Collection = newName
	}
	return ac, nil
}

func (ix *Index) RemoveCollection(ac ActiveContext, name string) (ActiveContext, error) {
	if ok, err := ix.Exists(name); err != nil {
		return ac, err
	} else if !ok {
		if _, present, _ := ix.store.Get(name); !present {
			return ac, errdef.New(errdef.CodeNotFound, "collection %q not found", name)
		}
	}
	if err := ix.store.Remove(vars.StorageKey(name)); err != nil {
		return ac, err
	}
	if err := ix.store.Remove(name); err != nil {
		return ac, err
	}
	ix.logger.Debug("collection removed", zap.String("collection", name))
	if ac.IsActive(name) {
		return ActiveContext{}, nil
	}
	return ac, nil
}

// CreateRequest appends a protocol default request and binds the context to
// it straight away so the first edit is saved.
func (ix *Index) CreateRequest(
	ac ActiveContext,
	collection string,
	protocol restfile.Protocol,
) (ActiveContext, restfile.Request, error) {
	entries, err := ix.Entries(collection)
	if err != nil {
		return ac, restfile.Request{}, err
	}

	req := restfile.New(ix.newID(), protocol)
	entries = append(entries, restfile.Entry{FileName: req.ID, FileData: req.Record()})
	if err := ix.save(collection, entries); err != nil {
		return ac, restfile.Request{}, err
	}
	return ActiveContext{Collection: collection, RequestID: req.ID, Bound: true}, req, nil
}

// FindRequest looks in collection when given, otherwise scans every
// collection in key order and returns the first match.
func (ix *Index) FindRequest(id, collection string) (Found, error) {
	owner, entries, idx, err := ix.locate(id, collection)
	if err != nil {
		return Found{}, err
	}
	return ix.found(owner, entries[idx])
}

// RemoveRequest resolves the owner like FindRequest but never decodes the
// entry, so a record this build cannot read can still be deleted. Removing the
// bound request unbinds the returned context.
func (ix *Index) RemoveRequest(ac ActiveContext, collection, id string) (ActiveContext, error) {
	owner, entries, idx, err := ix.locate(id, collection)
	if err != nil {
		return ac, err
	}
	kept := append(entries[:idx:idx], entries[idx+1:]...)
	if err := ix.save(owner, kept); err != nil {
		return ac, err
	}
	if ac.BoundTo(owner, id) {
		return ac.Unbind(), nil
	}
	return ac, nil
}

// locate finds the raw entry for id and returns its collection, the
// collection's entries and the entry's position.
func (ix *Index) locate(id, collection string) (string, []restfile.Entry, int, error) {
	if collection != "" {
		entries, err := ix.Entries(collection)
		if err != nil {
			return "", nil, -1, errdef.Wrap(errdef.CodeNotFound, err, "request %q", id)
		}
		if idx := indexOf(entries, id); idx >= 0 {
			return collection, entries, idx, nil
		}
		return "", nil, -1, errdef.New(
			errdef.CodeNotFound,
			"request %q not found in %q",
			id,
			collection,
		)
	}

	names, err := ix.Collections()
	if err != nil {
		return "", nil, -1, err
	}
	for _, name := range names {
		entries, _, err := ix.load(name)
		if err != nil {
			return "", nil, -1, err
		}
		if idx := indexOf(entries, id); idx >= 0 {
			return name, entries, idx, nil
		}
	}
	return "", nil, -1, errdef.New(errdef.CodeNotFound, "request %q not found", id)
}

// RenameRequestDisplay changes only the cached display name.
func (ix *Index) RenameRequestDisplay(collection, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errdef.New(errdef.CodeValidation, "request name cannot be empty")
	}
	entries, err := ix.Entries(collection)
	if err != nil {
		return err
	}
	idx := indexOf(entries, id)
	if idx < 0 {
		return errdef.New(errdef.CodeNotFound, "request %q not found in %q", id, collection)
	}
	entries[idx].DisplayName = name
	return ix.save(collection, entries)
}

// SaveRequest upserts req keeping the entry's cached display name.
func (ix *Index) SaveRequest(collection string, req restfile.Request) error {
	entries, err := ix.Entries(collection)
	if err != nil {
		return err
	}
	entry := restfile.Entry{FileName: req.ID, FileData: req.Record()}
	if idx := indexOf(entries, req.ID); idx >= 0 {
		entry.DisplayName = entries[idx].DisplayName
		entries[idx] = entry
	} else {
		entries = append(entries, entry)
	}
	return ix.save(collection, entries)
}

func (ix *Index) validateNewName(name string) error {
	if name == "" {
		return errdef.New(errdef.CodeValidation, "collection name cannot be empty")
	}
	if vars.IsStorageKey(name) {
		return errdef.New(
			errdef.CodeValidation,
			"collection name cannot start with %q",
			vars.KeyPrefix,
		)
	}
	_, present, err := ix.store.Get(name)
	if err != nil {
		return err
	}
	if present {
		return errdef.New(errdef.CodeValidation, "collection %q already exists", name)
	}
	return nil
}

// load reads one collection. Corrupt JSON is logged and reported as absent.
func (ix *Index) load(name string) ([]restfile.Entry, bool, error) {
	raw, ok, err := ix.store.Get(name)
	if err != nil || !ok {
		return nil, false, err
	}
	var entries []restfile.Entry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		ix.logger.Warn("skipping malformed collection",
			zap.String("collection", name),
			zap.Error(errdef.Wrap(errdef.CodeMalformed, err, "parse collection")))
		return nil, false, nil
	}
	if entries == nil {
		entries = []restfile.Entry{}
	}
	return entries, true, nil
}

func (ix *Index) save(name string, entries []restfile.Entry) error {
	if entries == nil {
		entries = []restfile.Entry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return errdef.Wrap(errdef.CodeStorage, err, "encode collection %q", name)
	}
	return ix.store.Set(name, string(data))
}

func (ix *Index) found(collection string, entry restfile.Entry) (Found, error) {
	req, err := restfile.Decode(entry.FileName, entry.FileData)
	if err != nil {
		ix.logger.Warn("skipping malformed request",
			zap.String("collection", collection),
			zap.String("id", entry.FileName),
			zap.Error(err))
		return Found{}, errdef.Wrap(errdef.CodeNotFound, err, "request %q", entry.FileName)
	}
	return Found{Collection: collection, DisplayName: entry.DisplayName, Request: req}, nil
}

func indexOf(entries []restfile.Entry, id string) int {
	for i, entry := range entries {
		if entry.FileName == id {
			return i
		}
	}
	return -1
}
