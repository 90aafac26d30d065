package grocery

import (
	"context"
	"errors"
	"testing"

	"github.com/ntb-arenas/grocery-list-tracker/internal/docstore"
)

// failingStore wraps a Store and fails selected operations, for exercising
// partial-failure policies.
type failingStore struct {
	docstore.Store
	failUpdate map[string]bool
	failDelete map[string]bool
	failExists bool
}

var errInjected = errors.New("injected remote failure")

func (f *failingStore) Update(ctx context.Context, ref docstore.DocPath, fields docstore.Fields) error {
	if f.failUpdate[ref.String()] {
		return errInjected
	}
	return f.Store.Update(ctx, ref, fields)
}

func (f *failingStore) Delete(ctx context.Context, ref docstore.DocPath) error {
	if f.failDelete[ref.String()] {
		return errInjected
	}
	return f.Store.Delete(ctx, ref)
}

func (f *failingStore) Exists(ctx context.Context, ref docstore.DocPath) (bool, error) {
	if f.failExists {
		return false, errInjected
	}
	return f.Store.Exists(ctx, ref)
}

// countingStore counts Set calls to observe claim idempotency.
type countingStore struct {
	docstore.Store
	sets int
}

func (c *countingStore) Set(ctx context.Context, ref docstore.DocPath, fields docstore.Fields) error {
	c.sets++
	return c.Store.Set(ctx, ref, fields)
}

// mustAdd seeds one item and returns its combined id.
func mustAdd(t *testing.T, store docstore.Store, scope Scope, name string) string {
	t.Helper()
	id, err := store.Create(context.Background(), scope.items(), docstore.Fields{
		"name":      name,
		"completed": false,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		t.Fatalf("seed item %q: %v", name, err)
	}
	return CombinedID(scope, id)
}

func fetchAll(t *testing.T, store docstore.Store, col docstore.CollectionPath) docstore.Snapshot {
	t.Helper()
	snap, err := store.FetchAll(context.Background(), col)
	if err != nil {
		t.Fatalf("fetch %s: %v", col, err)
	}
	return snap
}

func TestAddItemTrimsName(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)

	if err := svc.AddItem(context.Background(), Personal("X"), "  Milk  "); err != nil {
		t.Fatalf("AddItem: %v", err)
	}

	snap := fetchAll(t, store, Personal("X").items())
	if len(snap) != 1 {
		t.Fatalf("got %d documents, want 1", len(snap))
	}
	if name := snap[0].Fields["name"]; name != "Milk" {
		t.Errorf("name = %v, want Milk", name)
	}
	if completed := snap[0].Fields["completed"]; completed != false {
		t.Errorf("completed = %v, want false", completed)
	}
	if snap[0].CreatedAt == 0 {
		t.Error("createdAt was not resolved")
	}
}

func TestAddItemBlankIsNoop(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)

	if err := svc.AddItem(context.Background(), Personal("X"), "   "); err != nil {
		t.Fatalf("AddItem: %v", err)
	}
	if snap := fetchAll(t, store, Personal("X").items()); len(snap) != 0 {
		t.Fatalf("blank add created %d documents", len(snap))
	}
}

func TestAddItemPersonalWithoutCode(t *testing.T) {
	svc := NewService(docstore.NewMemory())

	err := svc.AddItem(context.Background(), Personal(""), "Milk")
	if !errors.Is(err, ErrNoActiveList) {
		t.Fatalf("err = %v, want ErrNoActiveList", err)
	}
}

func TestClaimListIdempotent(t *testing.T) {
	counting := &countingStore{Store: docstore.NewMemory()}
	svc := NewService(counting)
	ctx := context.Background()

	if err := svc.ClaimList(ctx, "ABC123", "Weekend shop"); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if counting.sets != 1 {
		t.Fatalf("first claim wrote %d metadata documents, want 1", counting.sets)
	}

	// Claiming an existing list must not recreate its metadata.
	if err := svc.ClaimList(ctx, "ABC123", "Other name"); err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if counting.sets != 1 {
		t.Errorf("second claim rewrote metadata (%d sets)", counting.sets)
	}

	snap := fetchAll(t, counting, docstore.Collection(listsCollection))
	if len(snap) != 1 || snap[0].Fields["name"] != "Weekend shop" {
		t.Errorf("metadata = %+v, want one doc named Weekend shop", snap)
	}
}

func TestClaimListDefaultsDisplayName(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)

	if err := svc.ClaimList(context.Background(), "ABC123", ""); err != nil {
		t.Fatalf("claim: %v", err)
	}
	snap := fetchAll(t, store, docstore.Collection(listsCollection))
	if len(snap) != 1 || snap[0].Fields["name"] != "ABC123" {
		t.Errorf("metadata = %+v, want name defaulted to the code", snap)
	}
}

func TestClaimListRemoteFailure(t *testing.T) {
	failing := &failingStore{Store: docstore.NewMemory(), failExists: true}
	svc := NewService(failing)

	err := svc.ClaimList(context.Background(), "ABC123", "")
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}
}

func TestToggleItem(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)
	ctx := context.Background()

	id := mustAdd(t, store, Global, "Eggs")
	if err := svc.ToggleItem(ctx, id, false); err != nil {
		t.Fatalf("ToggleItem: %v", err)
	}
	snap := fetchAll(t, store, Global.items())
	if snap[0].Fields["completed"] != true {
		t.Errorf("completed = %v after toggle, want true", snap[0].Fields["completed"])
	}

	if err := svc.ToggleItem(ctx, id, true); err != nil {
		t.Fatalf("ToggleItem back: %v", err)
	}
	snap = fetchAll(t, store, Global.items())
	if snap[0].Fields["completed"] != false {
		t.Errorf("completed = %v after second toggle, want false", snap[0].Fields["completed"])
	}
}

func TestMarkItemsAcrossScopes(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)

	globalID := mustAdd(t, store, Global, "Bread")
	personalID := mustAdd(t, store, Personal("X"), "Milk")

	if err := svc.MarkItems(context.Background(), []string{globalID, personalID}, true); err != nil {
		t.Fatalf("MarkItems: %v", err)
	}

	if snap := fetchAll(t, store, Global.items()); snap[0].Fields["completed"] != true {
		t.Error("global item not marked")
	}
	if snap := fetchAll(t, store, Personal("X").items()); snap[0].Fields["completed"] != true {
		t.Error("personal item not marked")
	}
}

func TestMarkItemsPartialFailure(t *testing.T) {
	mem := docstore.NewMemory()
	globalID := mustAdd(t, mem, Global, "Bread")
	personalID := mustAdd(t, mem, Personal("X"), "Milk")

	failing := &failingStore{
		Store:      mem,
		failUpdate: map[string]bool{docRef(globalID).String(): true},
	}
	svc := NewService(failing)

	err := svc.MarkItems(context.Background(), []string{globalID, personalID}, true)
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}

	// The failing update never landed, the other one did: not atomic.
	if snap := fetchAll(t, mem, Global.items()); snap[0].Fields["completed"] != false {
		t.Error("failed global update mutated the document")
	}
	if snap := fetchAll(t, mem, Personal("X").items()); snap[0].Fields["completed"] != true {
		t.Error("personal update did not land")
	}
}

func TestDeleteItemsAcrossScopes(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)

	globalID := mustAdd(t, store, Global, "Bread")
	personalID := mustAdd(t, store, Personal("X"), "Milk")
	keep := mustAdd(t, store, Global, "Butter")

	if err := svc.DeleteItems(context.Background(), []string{globalID, personalID}); err != nil {
		t.Fatalf("DeleteItems: %v", err)
	}

	snap := fetchAll(t, store, Global.items())
	if len(snap) != 1 || CombinedID(Global, snap[0].ID) != keep {
		t.Errorf("global items = %+v, want only the kept one", snap)
	}
	if snap := fetchAll(t, store, Personal("X").items()); len(snap) != 0 {
		t.Errorf("personal items = %+v, want none", snap)
	}
}

func TestDeleteListRemovesItemsAndMetadata(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)
	ctx := context.Background()

	if err := svc.ClaimList(ctx, "X", ""); err != nil {
		t.Fatalf("claim: %v", err)
	}
	for _, name := range []string{"Milk", "Eggs", "Bread"} {
		mustAdd(t, store, Personal("X"), name)
	}

	if err := svc.DeleteList(ctx, "X"); err != nil {
		t.Fatalf("DeleteList: %v", err)
	}

	if snap := fetchAll(t, store, Personal("X").items()); len(snap) != 0 {
		t.Errorf("%d item documents survived", len(snap))
	}
	exists, err := store.Exists(ctx, listMetaRef("X"))
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if exists {
		t.Error("metadata document survived")
	}
}

func TestFetchCombinedMergesAndSorts(t *testing.T) {
	store := docstore.NewMemory()
	svc := NewService(store)

	// Memory timestamps are strictly increasing in creation order.
	first := mustAdd(t, store, Global, "Bread")
	second := mustAdd(t, store, Personal("X"), "Milk")
	third := mustAdd(t, store, Global, "Eggs")

	items, err := svc.FetchCombined(context.Background(), "X")
	if err != nil {
		t.Fatalf("FetchCombined: %v", err)
	}
	wantOrder := []string{third, second, first}
	if len(items) != len(wantOrder) {
		t.Fatalf("got %d items, want %d", len(items), len(wantOrder))
	}
	for i, want := range wantOrder {
		if items[i].CombinedID != want {
			t.Errorf("items[%d] = %q, want %q", i, items[i].CombinedID, want)
		}
	}

	// Without a code only the global list is returned.
	items, err = svc.FetchCombined(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchCombined global: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d global items, want 2", len(items))
	}
}
