package grocery

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ntb-arenas/grocery-list-tracker/internal/docstore"
	"github.com/ntb-arenas/grocery-list-tracker/internal/localstore"
)

// LegacyCodeKey is the durable cache key holding the single active list
// code of the pre-registry flow. The tracker keeps it written on claim; the
// multi-list registry takes precedence when both are present.
const LegacyCodeKey = "groceryListCode"

// TrackerConfig configures a Tracker.
type TrackerConfig struct {
	// InitialCode is the personal list to activate at construction. When
	// empty and Local is set, the saved legacy code is used instead.
	InitialCode string
	// Local, when set, mirrors the active code to the durable cache on
	// every successful claim.
	Local localstore.Store
}

// Tracker is the live synchronization core: it mirrors the global
// collection and the active personal list through push subscriptions,
// replacing its item slices wholesale on every delivered snapshot.
//
// At most one subscription per collection is open at any instant; changing
// the active code tears the old pair down before opening the new one, and a
// generation counter discards any callback a torn-down subscription still
// manages to deliver.
type Tracker struct {
	svc   *Service
	store docstore.Store
	local localstore.Store

	mu            sync.Mutex
	gen           int
	activeCode    string
	globalItems   []Item
	personalItems []Item
	loading       bool
	claiming      bool
	unsubs        []docstore.Unsubscribe
	closed        bool
}

// NewTracker builds a Tracker and opens its initial subscriptions.
func NewTracker(store docstore.Store, cfg TrackerConfig) *Tracker {
	code := cfg.InitialCode
	if code == "" && cfg.Local != nil {
		code = cfg.Local.Get(LegacyCodeKey)
	}
	t := &Tracker{
		svc:        NewService(store),
		store:      store,
		local:      cfg.Local,
		activeCode: code,
		loading:    true,
	}
	t.resubscribe()
	return t
}

// Close tears down all subscriptions. The tracker must not be used after.
func (t *Tracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.gen++
	old := t.unsubs
	t.unsubs = nil
	t.mu.Unlock()

	for _, unsub := range old {
		unsub()
	}
}

// SetActiveCode switches the personal list the tracker follows. An empty
// code detaches from any personal list and empties the personal items.
func (t *Tracker) SetActiveCode(code string) {
	t.mu.Lock()
	if t.closed || t.activeCode == code {
		t.mu.Unlock()
		return
	}
	t.activeCode = code
	t.mu.Unlock()

	t.resubscribe()
}

// resubscribe replaces the open subscriptions with a fresh pair for the
// current active code. Old subscriptions are cancelled before the new ones
// open, so two subscriptions on one collection never coexist.
func (t *Tracker) resubscribe() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.gen++
	gen := t.gen
	code := t.activeCode
	old := t.unsubs
	t.unsubs = nil
	t.loading = true
	if code == "" {
		t.personalItems = nil
	}
	t.mu.Unlock()

	for _, unsub := range old {
		unsub()
	}

	var unsubs []docstore.Unsubscribe

	unsubGlobal, err := t.store.Subscribe(Global.items(),
		func(snap docstore.Snapshot) { t.applySnapshot(gen, Global, snap) },
		func(err error) { t.subscriptionError(gen, Global, err) },
	)
	if err != nil {
		t.subscriptionError(gen, Global, err)
	} else {
		unsubs = append(unsubs, unsubGlobal)
	}

	if code != "" {
		scope := Personal(code)
		unsubList, err := t.store.Subscribe(scope.items(),
			func(snap docstore.Snapshot) { t.applySnapshot(gen, scope, snap) },
			func(err error) { t.subscriptionError(gen, scope, err) },
		)
		if err != nil {
			t.subscriptionError(gen, scope, err)
		} else {
			unsubs = append(unsubs, unsubList)
		}
	}

	t.mu.Lock()
	if t.gen != gen || t.closed {
		// Lost a race with a newer switch; these subscriptions are stale.
		t.mu.Unlock()
		for _, unsub := range unsubs {
			unsub()
		}
		return
	}
	t.unsubs = unsubs
	t.mu.Unlock()
}

// applySnapshot replaces one scope's items with a delivered snapshot.
func (t *Tracker) applySnapshot(gen int, scope Scope, snap docstore.Snapshot) {
	items := make([]Item, 0, len(snap))
	for _, doc := range snap {
		items = append(items, itemFromDoc(scope, doc))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if gen != t.gen {
		return
	}
	if scope.Kind == ScopePersonal {
		t.personalItems = items
	} else {
		t.globalItems = items
	}
	t.loading = false
}

// subscriptionError logs a delivery failure and clears the loading flag.
// State stays at the last good snapshot; the store's own reconnect logic is
// trusted to resume delivery.
func (t *Tracker) subscriptionError(gen int, scope Scope, err error) {
	t.mu.Lock()
	if gen != t.gen {
		t.mu.Unlock()
		return
	}
	t.loading = false
	t.mu.Unlock()

	ev := log.Error().Err(err)
	if scope.Kind == ScopePersonal {
		ev = ev.Str("list", scope.Code)
	}
	ev.Msg("item subscription failed")
}

// ClaimList ensures the list exists remotely, then activates it. The
// claiming flag is set for the whole attempt and cleared on every exit
// path; on failure the active code is left unchanged.
func (t *Tracker) ClaimList(ctx context.Context, code, displayName string) error {
	t.mu.Lock()
	t.claiming = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.claiming = false
		t.mu.Unlock()
	}()

	if err := t.svc.ClaimList(ctx, code, displayName); err != nil {
		return err
	}

	if t.local != nil {
		t.local.Set(LegacyCodeKey, code)
	}
	t.SetActiveCode(code)
	return nil
}

// AddItem creates an item in the given scope. Personal scope with no code
// targets the active list; with no active list either, the call fails
// before reaching the store.
func (t *Tracker) AddItem(ctx context.Context, scope Scope, text string) error {
	if scope.Kind == ScopePersonal && scope.Code == "" {
		t.mu.Lock()
		scope.Code = t.activeCode
		t.mu.Unlock()
		if scope.Code == "" {
			return ErrNoActiveList
		}
	}
	return t.svc.AddItem(ctx, scope, text)
}

// AddItemToActive creates an item in the active personal list, or in the
// global list when no personal list is active.
func (t *Tracker) AddItemToActive(ctx context.Context, text string) error {
	t.mu.Lock()
	code := t.activeCode
	t.mu.Unlock()

	if code != "" {
		return t.svc.AddItem(ctx, Personal(code), text)
	}
	return t.svc.AddItem(ctx, Global, text)
}

// ToggleItem flips one item's completed flag.
func (t *Tracker) ToggleItem(ctx context.Context, combinedID string, currentCompleted bool) error {
	return t.svc.ToggleItem(ctx, combinedID, currentCompleted)
}

// MarkItems sets the completed flag on a combined-id selection spanning
// either scope.
func (t *Tracker) MarkItems(ctx context.Context, combinedIDs []string, completed bool) error {
	return t.svc.MarkItems(ctx, combinedIDs, completed)
}

// DeleteItems removes a combined-id selection spanning either scope.
func (t *Tracker) DeleteItems(ctx context.Context, combinedIDs []string) error {
	return t.svc.DeleteItems(ctx, combinedIDs)
}

// DeleteList removes a personal list's items and metadata remotely. The
// locally remembered code is the registry's concern, not touched here.
func (t *Tracker) DeleteList(ctx context.Context, code string) error {
	return t.svc.DeleteList(ctx, code)
}

// CombinedItems returns the personal and global items merged into one view,
// newest first. Pure with respect to the current snapshots.
func (t *Tracker) CombinedItems() []Item {
	t.mu.Lock()
	personal := t.personalItems
	global := t.globalItems
	t.mu.Unlock()
	return MergeCombined(personal, global)
}

// GlobalItems returns the latest global snapshot.
func (t *Tracker) GlobalItems() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Item(nil), t.globalItems...)
}

// PersonalItems returns the latest snapshot of the active personal list.
func (t *Tracker) PersonalItems() []Item {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Item(nil), t.personalItems...)
}

// ActiveCode returns the active personal list code, "" when none.
func (t *Tracker) ActiveCode() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeCode
}

// Loading reports whether the first snapshot since the last subscription
// change is still outstanding.
func (t *Tracker) Loading() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

// Claiming reports whether a ClaimList call is in flight.
func (t *Tracker) Claiming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.claiming
}
