package collection

import (
	"encoding/json"
	"fmt"
	"reflect"
	"testing"

	"pgregory.net/rapid"

	"github.com/sreq-inc/solo/internal/errdef"
	"github.com/sreq-inc/solo/internal/kvstore"
	"github.com/sreq-inc/solo/internal/restfile"
	"github.com/sreq-inc/solo/internal/vars"
)

func sequentialIDs() Option {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("request_%d", n)
	})
}

func newTestIndex(t *testing.T) (*Index, *kvstore.Memory) {
	t.Helper()
	store := kvstore.NewMemory()
	return NewIndex(store, sequentialIDs()), store
}

func mustCreate(t *testing.T, ix *Index, ac ActiveContext, name string) ActiveContext {
	t.Helper()
	next, err := ix.CreateCollection(ac, name)
	if err != nil {
		t.Fatalf("create %q: %v", name, err)
	}
	return next
}

func TestCreateCollectionPersistsArrayAndVariables(t *testing.T) {
	t.Parallel()

	ix, store := newTestIndex(t)
	mustCreate(t, ix, ActiveContext{}, "  demo  ")

	raw, ok, _ := store.Get("demo")
	if !ok || raw != "[]" {
		t.Fatalf("expected empty array, got %q (ok=%v)", raw, ok)
	}
	rawVars, ok, _ := store.Get(vars.StorageKey("demo"))
	if !ok || rawVars != `[{"key":"","value":"","enabled":true}]` {
		t.Fatalf("unexpected variable table %q", rawVars)
	}
	names, err := ix.Collections()
	if err != nil || !reflect.DeepEqual(names, []string{"demo"}) {
		t.Fatalf("unexpected collections %v (%v)", names, err)
	}
}

func TestCreateCollectionRejectsInvalidNames(t *testing.T) {
	t.Parallel()

	ix, store := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "demo")
	ac, _, err := ix.CreateRequest(ac, "demo", restfile.ProtocolHTTP)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	before, _, _ := store.Get("demo")

	for _, name := range []string{"", "   ", "demo", "solo-variables-x"} {
		if _, err := ix.CreateCollection(ac, name); !errdef.Is(err, errdef.CodeValidation) {
			t.Fatalf("name %q: expected validation error, got %v", name, err)
		}
	}
	after, _, _ := store.Get("demo")
	if before != after {
		t.Fatalf("duplicate create must leave stored array unchanged")
	}
}

func TestCollectionsSkipsVariableKeysAndMalformed(t *testing.T) {
	t.Parallel()

	ix, store := newTestIndex(t)
	mustCreate(t, ix, ActiveContext{}, "b")
	mustCreate(t, ix, ActiveContext{}, "a")
	_ = store.Set("broken", "{not json")

	names, err := ix.Collections()
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if !reflect.DeepEqual(names, []string{"a", "b"}) {
		t.Fatalf("unexpected collections %v", names)
	}
	if ok, _ := ix.Exists("broken"); ok {
		t.Fatalf("malformed collection must read as absent")
	}
}

func TestRenameCollectionMovesEverything(t *testing.T) {
	t.Parallel()

	ix, store := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "old")
	ac, req, err := ix.CreateRequest(ac, "old", restfile.ProtocolHTTP)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	_ = store.Set(vars.StorageKey("old"), `[{"key":"host","value":"h","enabled":true}]`)

	ac, err = ix.RenameCollection(ac, "old", " new ")
	if err != nil {
		t.Fatalf("rename: %v", err)
	}
	if ac.Collection != "new" || ac.RequestID != req.ID || !ac.Bound {
		t.Fatalf("context not repointed: %#v", ac)
	}
	for _, key := range []string{"old", vars.StorageKey("old")} {
		if _, ok, _ := store.Get(key); ok {
			t.Fatalf("old key %q must be removed", key)
		}
	}
	rawVars, _, _ := store.Get(vars.StorageKey("new"))
	if rawVars != `[{"key":"host","value":"h","enabled":true}]` {
		t.Fatalf("variables not migrated: %q", rawVars)
	}
	found, err := ix.FindRequest(req.ID, "new")
	if err != nil || found.Request.ID != req.ID {
		t.Fatalf("request not migrated: %v", err)
	}
}

func TestRenameCollectionErrors(t *testing.T) {
	t.Parallel()

	ix, _ := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "a")
	mustCreate(t, ix, ac, "b")

	cases := []struct {
		from, to string
		code     errdef.Code
	}{
		{"a", "", errdef.CodeValidation},
		{"a", "a", errdef.CodeValidation},
		{"a", "b", errdef.CodeValidation},
		{"missing", "c", errdef.CodeNotFound},
	}
	for _, tc := range cases {
		if _, err := ix.RenameCollection(ac, tc.from, tc.to); !errdef.Is(err, tc.code) {
			t.Fatalf("%s -> %s: expected %s, got %v", tc.from, tc.to, tc.code, err)
		}
	}
}

func TestRemoveCollectionClearsActiveContext(t *testing.T) {
	t.Parallel()

	ix, store := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "demo")
	ac, _, _ = ix.CreateRequest(ac, "demo", restfile.ProtocolHTTP)

	ac, err := ix.RemoveCollection(ac, "demo")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if ac != (ActiveContext{}) {
		t.Fatalf("expected zero context, got %#v", ac)
	}
	if keys, _ := store.Keys(); len(keys) != 0 {
		t.Fatalf("expected empty store, got %v", keys)
	}
	if _, err := ix.RemoveCollection(ac, "demo"); !errdef.Is(err, errdef.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveOtherCollectionKeepsContext(t *testing.T) {
	t.Parallel()

	ix, _ := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "a")
	mustCreate(t, ix, ac, "b")
	ac, _, _ = ix.CreateRequest(ac, "a", restfile.ProtocolHTTP)

	next, err := ix.RemoveCollection(ac, "b")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if next != ac {
		t.Fatalf("context changed: %#v", next)
	}
}

func TestCreateRequestDefaultsAndBinding(t *testing.T) {
	t.Parallel()

	ix, _ := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "demo")

	for _, tc := range []struct {
		protocol restfile.Protocol
		method   string
	}{
		{restfile.ProtocolHTTP, "GET"},
		{restfile.ProtocolGraphQL, "POST"},
		{restfile.ProtocolGRPC, ""},
	} {
		next, req, err := ix.CreateRequest(ac, "demo", tc.protocol)
		if err != nil {
			t.Fatalf("create %s: %v", tc.protocol, err)
		}
		if !next.BoundTo("demo", req.ID) {
			t.Fatalf("context not bound to new request: %#v", next)
		}
		if req.Protocol() != tc.protocol || req.Method() != tc.method {
			t.Fatalf("unexpected defaults %s %q", req.Protocol(), req.Method())
		}
		found, err := ix.FindRequest(req.ID, "")
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if found.Collection != "demo" || found.Request.Protocol() != tc.protocol {
			t.Fatalf("unexpected lookup %#v", found)
		}
	}

	entries, _ := ix.Entries("demo")
	if len(entries) != 3 || entries[0].FileName != "request_1" {
		t.Fatalf("entries must keep creation order: %#v", entries)
	}
	if _, _, err := ix.CreateRequest(ac, "missing", restfile.ProtocolHTTP); !errdef.Is(err, errdef.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFindRequestScopedAndUnscoped(t *testing.T) {
	t.Parallel()

	ix, _ := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "a")
	mustCreate(t, ix, ac, "b")
	_, req, _ := ix.CreateRequest(ac, "b", restfile.ProtocolHTTP)

	if _, err := ix.FindRequest(req.ID, "a"); !errdef.Is(err, errdef.CodeNotFound) {
		t.Fatalf("scoped lookup in wrong collection must fail, got %v", err)
	}
	found, err := ix.FindRequest(req.ID, "")
	if err != nil || found.Collection != "b" {
		t.Fatalf("unscoped lookup: %#v %v", found, err)
	}
	if _, err := ix.FindRequest("request_nope", ""); !errdef.Is(err, errdef.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRemoveRequestUnbindsWhenBound(t *testing.T) {
	t.Parallel()

	ix, _ := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "demo")
	ac, first, _ := ix.CreateRequest(ac, "demo", restfile.ProtocolHTTP)
	ac, second, _ := ix.CreateRequest(ac, "demo", restfile.ProtocolHTTP)

	next, err := ix.RemoveRequest(ac, "demo", first.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if next != ac {
		t.Fatalf("removing another request must keep binding: %#v", next)
	}

	next, err = ix.RemoveRequest(next, "", second.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if next.Bound || next.Collection != "demo" {
		t.Fatalf("expected unbound context in demo, got %#v", next)
	}
	entries, _ := ix.Entries("demo")
	if len(entries) != 0 {
		t.Fatalf("expected empty collection, got %#v", entries)
	}
}

func TestRemoveRequestWithUnreadableRecord(t *testing.T) {
	t.Parallel()

	ix, store := newTestIndex(t)
	mustCreate(t, ix, ActiveContext{}, "demo")
	raw := `[{"fileName":"request_ws","fileData":{"requestType":"websocket","url":"ws://x"}}]`
	if err := store.Set("demo", raw); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := ix.FindRequest("request_ws", "demo"); !errdef.Is(err, errdef.CodeNotFound) {
		t.Fatalf("expected unreadable record to be hidden from find, got %v", err)
	}

	for _, scope := range []string{"demo", ""} {
		if err := store.Set("demo", raw); err != nil {
			t.Fatalf("seed: %v", err)
		}
		bound := ActiveContext{Collection: "demo", RequestID: "request_ws", Bound: true}
		next, err := ix.RemoveRequest(bound, scope, "request_ws")
		if err != nil {
			t.Fatalf("remove (scope %q): %v", scope, err)
		}
		if next != bound.Unbind() {
			t.Fatalf("expected unbound context, got %#v", next)
		}
		entries, _ := ix.Entries("demo")
		if len(entries) != 0 {
			t.Fatalf("expected entry removed (scope %q), got %#v", scope, entries)
		}
	}
}

func TestRenameRequestDisplayAndSavePreserveName(t *testing.T) {
	t.Parallel()

	ix, _ := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "demo")
	_, req, _ := ix.CreateRequest(ac, "demo", restfile.ProtocolHTTP)

	if err := ix.RenameRequestDisplay("demo", req.ID, " "); !errdef.Is(err, errdef.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if err := ix.RenameRequestDisplay("demo", req.ID, "Ping"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	req.Common.URL = "http://localhost:8080/ping"
	if err := ix.SaveRequest("demo", req); err != nil {
		t.Fatalf("save: %v", err)
	}
	found, err := ix.FindRequest(req.ID, "demo")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.DisplayName != "Ping" || found.Request.Common.URL != "http://localhost:8080/ping" {
		t.Fatalf("unexpected saved request %#v", found)
	}
}

func TestStoredShape(t *testing.T) {
	t.Parallel()

	ix, store := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "demo")
	_, req, _ := ix.CreateRequest(ac, "demo", restfile.ProtocolHTTP)
	_ = ix.RenameRequestDisplay("demo", req.ID, "Ping")

	raw, _, _ := store.Get("demo")
	var decoded []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("stored value is not a JSON array: %v", err)
	}
	if len(decoded) != 1 {
		t.Fatalf("unexpected entries %s", raw)
	}
	for _, key := range []string{"fileName", "fileData", "displayName"} {
		if _, ok := decoded[0][key]; !ok {
			t.Fatalf("missing %q in %s", key, raw)
		}
	}
}

func TestSearch(t *testing.T) {
	t.Parallel()

	ix, _ := newTestIndex(t)
	ac := mustCreate(t, ix, ActiveContext{}, "users")
	_, ping, _ := ix.CreateRequest(ac, "users", restfile.ProtocolHTTP)
	_, list, _ := ix.CreateRequest(ac, "users", restfile.ProtocolHTTP)
	_ = ix.RenameRequestDisplay("users", ping.ID, "Ping")
	_ = ix.RenameRequestDisplay("users", list.ID, "List accounts")

	hits, err := ix.Search("lstacc")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 || hits[0].RequestID != list.ID {
		t.Fatalf("unexpected hits %#v", hits)
	}
	if hits, _ := ix.Search("  "); len(hits) != 0 {
		t.Fatalf("blank query must return nothing")
	}
}

func TestPropertyDuplicateCreateFails(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ix := NewIndex(kvstore.NewMemory())
		name := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9 _-]{0,10}`).Draw(t, "name")
		if _, err := ix.CreateCollection(ActiveContext{}, name); err != nil {
			t.Fatalf("first create: %v", err)
		}
		before, _ := ix.Collections()
		if _, err := ix.CreateCollection(ActiveContext{}, name); !errdef.Is(err, errdef.CodeValidation) {
			t.Fatalf("second create must fail, got %v", err)
		}
		after, _ := ix.Collections()
		if !reflect.DeepEqual(before, after) {
			t.Fatalf("collections changed: %v -> %v", before, after)
		}
	})
}

func TestPropertyRenameRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := kvstore.NewMemory()
		ix := NewIndex(store)
		a := rapid.StringMatching(`a[a-z0-9]{0,6}`).Draw(t, "a")
		b := rapid.StringMatching(`b[a-z0-9]{0,6}`).Draw(t, "b")

		ac, err := ix.CreateCollection(ActiveContext{}, a)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		n := rapid.IntRange(0, 3).Draw(t, "requests")
		for i := 0; i < n; i++ {
			ac, _, err = ix.CreateRequest(ac, a, restfile.ProtocolHTTP)
			if err != nil {
				t.Fatalf("create request: %v", err)
			}
		}
		_ = store.Set(vars.StorageKey(a), `[{"key":"k","value":"v","enabled":false}]`)
		snapshot := func() map[string]string {
			out := map[string]string{}
			keys, _ := store.Keys()
			for _, key := range keys {
				out[key], _, _ = store.Get(key)
			}
			return out
		}
		before := snapshot()

		if ac, err = ix.RenameCollection(ac, a, b); err != nil {
			t.Fatalf("rename a->b: %v", err)
		}
		if ac, err = ix.RenameCollection(ac, b, a); err != nil {
			t.Fatalf("rename b->a: %v", err)
		}
		if !reflect.DeepEqual(before, snapshot()) {
			t.Fatalf("state differs after round trip")
		}
		if n > 0 && ac.Collection != a {
			t.Fatalf("context not restored: %#v", ac)
		}
	})
}
