// Package workspace ties the collection index, the open draft and the active
// variable table together. Every operation threads the ActiveContext through
// the index and then brings the draft and table in line with the result.
package workspace

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sreq-inc/solo/internal/collection"
	"github.com/sreq-inc/solo/internal/curl"
	"github.com/sreq-inc/solo/internal/dispatch"
	"github.com/sreq-inc/solo/internal/draft"
	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/kvstore"
	"github.com/sreq-inc/solo/internal/restfile"
	"github.com/sreq-inc/solo/internal/vars"
)

// SessionKey holds the selected collection in the session store.
const SessionKey = "current-request-folder"

type Option func(*Workspace)

func WithSession(store kvstore.Store) Option {
	return func(w *Workspace) {
		if store != nil {
			w.session = store
		}
	}
}

func WithExecutor(exec dispatch.Executor) Option {
	return func(w *Workspace) {
		w.executor = exec
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(w *Workspace) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(w *Workspace) {
		w.indexOpts = append(w.indexOpts, collection.WithIDGenerator(fn))
	}
}

type Workspace struct {
	index    *collection.Index
	table    *vars.Table
	draft    *draft.Draft
	session  kvstore.Store
	executor dispatch.Executor
	logger   *zap.Logger
	ac       collection.ActiveContext

	indexOpts []collection.Option
}

// New opens a workspace over store. When the session store names an existing
// collection it is selected again.
func New(store kvstore.Store, opts ...Option) (*Workspace, error) {
	w := &Workspace{session: kvstore.NewMemory(), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	w.index = collection.NewIndex(
		store,
		append(w.indexOpts, collection.WithLogger(w.logger.Named("collection")))...,
	)
	w.table = vars.NewTable(store, w.logger.Named("vars"))
	w.draft = draft.New(w.index)

	current, ok, err := w.session.Get(SessionKey)
	if err != nil {
		return nil, err
	}
	if ok && current != "" {
		if exists, err := w.index.Exists(current); err != nil {
			return nil, err
		} else if exists {
			if err := w.SelectCollection(current); err != nil {
				return nil, err
			}
		} else {
			_ = w.session.Remove(SessionKey)
		}
	}
	return w, nil
}

func (w *Workspace) Context() collection.ActiveContext { return w.ac }

func (w *Workspace) Index() *collection.Index { return w.index }

func (w *Workspace) Draft() *draft.Draft { return w.draft }

func (w *Workspace) Table() *vars.Table { return w.table }

func (w *Workspace) Collections() ([]string, error) { return w.index.Collections() }

func (w *Workspace) Entries(name string) ([]restfile.Entry, error) {
	return w.index.Entries(name)
}

// SelectCollection makes name current, loads its variables and leaves the
// draft reset and unbound.
func (w *Workspace) SelectCollection(name string) error {
	exists, err := w.index.Exists(name)
	if err != nil {
		return err
	}
	if !exists {
		return errdef.New(errdef.CodeNotFound, "collection %q not found", name)
	}
	if err := w.table.LoadFor(name); err != nil {
		return err
	}
	w.draft.Reset()
	w.apply(collection.ActiveContext{Collection: name})
	return nil
}

// CreateCollection stores an empty collection and resets the draft; the
// current selection is kept.
func (w *Workspace) CreateCollection(name string) error {
	next, err := w.index.CreateCollection(w.ac, name)
	if err != nil {
		return err
	}
	w.draft.Reset()
	w.apply(next.Unbind())
	return nil
}

func (w *Workspace) RenameCollection(oldName, newName string) error {
	prev := w.ac
	next, err := w.index.RenameCollection(prev, oldName, newName)
	if err != nil {
		return err
	}
	newName = strings.TrimSpace(newName)
	w.draft.MoveTo(oldName, newName)
	if prev.Collection == oldName {
		if err := w.table.LoadFor(next.Collection); err != nil {
			return err
		}
	}
	w.apply(next)
	return nil
}

func (w *Workspace) RemoveCollection(name string) error {
	prev := w.ac
	next, err := w.index.RemoveCollection(prev, name)
	if err != nil {
		return err
	}
	if prev.IsActive(name) {
		w.table.Clear()
		w.draft.Reset()
	}
	w.apply(next)
	return nil
}

// CreateRequest adds a request to collectionName, selects that collection and
// opens the new request bound in the draft.
func (w *Workspace) CreateRequest(collectionName string, protocol restfile.Protocol) (restfile.Request, error) {
	next, req, err := w.index.CreateRequest(w.ac, collectionName, protocol)
	if err != nil {
		return restfile.Request{}, err
	}
	if err := w.ensureTable(next.Collection); err != nil {
		return restfile.Request{}, err
	}
	w.draft.BindTo(next.Collection, req)
	w.apply(next)
	return req, nil
}

// OpenRequest binds the draft to a saved request. An empty collection scans
// every collection; the owner becomes the current collection.
func (w *Workspace) OpenRequest(id, collectionName string) (collection.Found, error) {
	found, err := w.index.FindRequest(id, collectionName)
	if err != nil {
		return collection.Found{}, err
	}
	if err := w.ensureTable(found.Collection); err != nil {
		return collection.Found{}, err
	}
	w.draft.BindTo(found.Collection, found.Request)
	w.apply(collection.ActiveContext{
		Collection: found.Collection,
		RequestID:  found.Request.ID,
		Bound:      true,
	})
	return found, nil
}

func (w *Workspace) RemoveRequest(collectionName, id string) error {
	prev := w.ac
	next, err := w.index.RemoveRequest(prev, collectionName, id)
	if err != nil {
		return err
	}
	if prev.Bound && !next.Bound {
		w.draft.Reset()
	}
	w.apply(next)
	return nil
}

func (w *Workspace) RenameRequest(collectionName, id, name string) error {
	return w.index.RenameRequestDisplay(collectionName, id, name)
}

func (w *Workspace) Search(query string) ([]collection.Hit, error) {
	return w.index.Search(query)
}

// ImportDotEnv appends the variables of a .env file to the active table.
func (w *Workspace) ImportDotEnv(path string) (int, error) {
	if w.table.Collection() == "" {
		return 0, errdef.New(errdef.CodeValidation, "select a collection before importing variables")
	}
	rows, err := vars.ReadDotEnv(path)
	if err != nil {
		return 0, err
	}
	if err := w.table.Import(rows); err != nil {
		return 0, err
	}
	w.logger.Info("imported variables",
		zap.String("collection", w.table.Collection()),
		zap.String("path", path),
		zap.Int("count", len(rows)))
	return len(rows), nil
}

// Preview lists the placeholders of text against the active table.
func (w *Workspace) Preview(text string) []vars.Placeholder {
	return vars.FindPlaceholders(text, w.table.Rows())
}

// PreviewURL is the URL a dispatch would use right now, or the unresolved
// error that would block it.
func (w *Workspace) PreviewURL() (string, error) {
	return dispatch.ResolvedURL(w.draft.Request().Common, w.table.Rows())
}

func (w *Workspace) ExportCurl() (string, error) {
	return curl.Export(w.draft.Request(), w.table.Rows())
}

// Dispatch sends the draft through the executor. Transient state on the
// draft reflects the outcome; nothing is persisted.
func (w *Workspace) Dispatch(ctx context.Context) (*dispatch.Response, error) {
	if w.executor == nil {
		return nil, errdef.New(errdef.CodeConfig, "no executor configured")
	}
	call, err := dispatch.Prepare(w.draft.Request(), w.table.Rows())
	if err != nil {
		return nil, err
	}
	call.Collection = w.ac.Collection
	if coll, id, bound := w.draft.Binding(); bound {
		if found, err := w.index.FindRequest(id, coll); err == nil {
			call.Name = found.DisplayName
		}
	}

	w.draft.BeginDispatch()
	resp, err := w.executor.Execute(ctx, call)
	w.draft.FinishDispatch(resp, err)
	if err != nil {
		w.logger.Warn("dispatch failed",
			zap.String("collection", w.ac.Collection),
			zap.String("request", w.ac.RequestID),
			zap.Error(err))
		return nil, err
	}
	return resp, nil
}

func (w *Workspace) ensureTable(name string) error {
	if w.table.Collection() == name {
		return nil
	}
	return w.table.LoadFor(name)
}

// apply records next and mirrors the selected collection into the session.
func (w *Workspace) apply(next collection.ActiveContext) {
	w.ac = next
	var err error
	if next.Collection == "" {
		err = w.session.Remove(SessionKey)
	} else {
		err = w.session.Set(SessionKey, next.Collection)
	}
	if err != nil {
		w.logger.Warn("session update failed", zap.Error(err))
	}
}
