package grocery

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ntb-arenas/grocery-list-tracker/internal/docstore"
)

// Service exposes the item and list operations over a document store. It is
// stateless: every call resolves its targets from arguments alone, so the
// HTTP surface and the live Tracker share one implementation.
type Service struct {
	store docstore.Store
}

func NewService(store docstore.Store) *Service {
	return &Service{store: store}
}

// ClaimList ensures the personal list addressed by code exists remotely,
// creating its metadata document when absent. Claiming an existing list is
// idempotent and never rewrites its metadata.
func (s *Service) ClaimList(ctx context.Context, code, displayName string) error {
	if code == "" {
		return ErrEmptyCode
	}

	ref := listMetaRef(code)
	exists, err := s.store.Exists(ctx, ref)
	if err != nil {
		return fmt.Errorf("check list %q: %w", code, err)
	}
	if exists {
		return nil
	}

	if displayName == "" {
		displayName = code
	}
	err = s.store.Set(ctx, ref, docstore.Fields{
		"name":      displayName,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("create list %q: %w", code, err)
	}
	return nil
}

// ListExists reports whether the list's metadata document is present.
func (s *Service) ListExists(ctx context.Context, code string) (bool, error) {
	return s.store.Exists(ctx, listMetaRef(code))
}

// AddItem creates one item document in the scope's collection. Blank text
// is a silent no-op; a personal scope without a code fails before any
// remote call.
func (s *Service) AddItem(ctx context.Context, scope Scope, text string) error {
	name := strings.TrimSpace(text)
	if name == "" {
		return nil
	}
	if scope.Kind == ScopePersonal && scope.Code == "" {
		return ErrNoActiveList
	}

	_, err := s.store.Create(ctx, scope.items(), docstore.Fields{
		"name":      name,
		"completed": false,
		"createdAt": docstore.ServerTimestamp,
	})
	if err != nil {
		return fmt.Errorf("add item: %w", err)
	}
	return nil
}

// ToggleItem flips an item's completed flag from its currently observed
// value.
func (s *Service) ToggleItem(ctx context.Context, combinedID string, currentCompleted bool) error {
	err := s.store.Update(ctx, docRef(combinedID), docstore.Fields{
		"completed": !currentCompleted,
	})
	if err != nil {
		return fmt.Errorf("toggle item %s: %w", combinedID, err)
	}
	return nil
}

// MarkItems sets the completed flag on every addressed item. All updates
// are launched together and all run to completion; if any fails the call
// reports failure even though the rest may have landed. Not atomic;
// callers re-derive state from the next snapshot.
func (s *Service) MarkItems(ctx context.Context, combinedIDs []string, completed bool) error {
	var g errgroup.Group
	for _, id := range combinedIDs {
		id := id
		g.Go(func() error {
			return s.store.Update(ctx, docRef(id), docstore.Fields{"completed": completed})
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("mark items: %w", err)
	}
	return nil
}

// DeleteItems removes every addressed item, with the same launch-all,
// non-atomic failure policy as MarkItems.
func (s *Service) DeleteItems(ctx context.Context, combinedIDs []string) error {
	var g errgroup.Group
	for _, id := range combinedIDs {
		id := id
		g.Go(func() error {
			return s.store.Delete(ctx, docRef(id))
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("delete items: %w", err)
	}
	return nil
}

// DeleteList removes a personal list: all item documents first, the
// metadata document last, so no reader ever holds a code whose metadata is
// gone while items still resolve the other way around. A crash between the
// two steps can leak item documents; nothing sweeps those.
func (s *Service) DeleteList(ctx context.Context, code string) error {
	if code == "" {
		return ErrEmptyCode
	}
	if err := s.store.DeleteAll(ctx, Personal(code).items()); err != nil {
		return fmt.Errorf("delete items of list %q: %w", code, err)
	}
	if err := s.store.Delete(ctx, listMetaRef(code)); err != nil {
		return fmt.Errorf("delete list %q: %w", code, err)
	}
	return nil
}

// FetchCombined runs one-shot queries for the global list and, when code is
// non-empty, the personal list, and returns the merged descending view.
func (s *Service) FetchCombined(ctx context.Context, code string) ([]Item, error) {
	globalSnap, err := s.store.FetchAll(ctx, Global.items())
	if err != nil {
		return nil, fmt.Errorf("fetch global items: %w", err)
	}
	global := make([]Item, 0, len(globalSnap))
	for _, doc := range globalSnap {
		global = append(global, itemFromDoc(Global, doc))
	}

	var personal []Item
	if code != "" {
		scope := Personal(code)
		snap, err := s.store.FetchAll(ctx, scope.items())
		if err != nil {
			return nil, fmt.Errorf("fetch items of list %q: %w", code, err)
		}
		personal = make([]Item, 0, len(snap))
		for _, doc := range snap {
			personal = append(personal, itemFromDoc(scope, doc))
		}
	}

	return MergeCombined(personal, global), nil
}
