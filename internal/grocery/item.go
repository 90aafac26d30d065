// Package grocery implements the list/item synchronization core: the item
// model, the combined-identifier namespace spanning the shared global list
// and code-addressed personal lists, stateless operations against the
// document store, and the live Tracker that mirrors remote snapshots.
package grocery

import (
	"crypto/rand"
	"math/big"
	"sort"
	"strings"

	"github.com/ntb-arenas/grocery-list-tracker/internal/docstore"
)

// Collection layout in the document store.
const (
	globalCollection = "groceryItems"
	listsCollection  = "lists"
)

// ScopeKind tags which collection owns an item.
type ScopeKind int

const (
	ScopeGlobal ScopeKind = iota
	ScopePersonal
)

// Scope identifies an item's owning collection: the shared global list or
// one personal list addressed by its code.
type Scope struct {
	Kind ScopeKind
	Code string // set only for ScopePersonal
}

// Global is the shared-list scope.
var Global = Scope{Kind: ScopeGlobal}

// Personal returns the scope of the personal list addressed by code.
func Personal(code string) Scope {
	return Scope{Kind: ScopePersonal, Code: code}
}

// items returns the collection that holds the scope's item documents.
func (s Scope) items() docstore.CollectionPath {
	if s.Kind == ScopePersonal {
		return docstore.Collection(listsCollection, s.Code, "items")
	}
	return docstore.Collection(globalCollection)
}

// listMetaRef returns the metadata document of a personal list.
func listMetaRef(code string) docstore.DocPath {
	return docstore.DocPath{Collection: docstore.Collection(listsCollection), ID: code}
}

// Item is one list entry, as mirrored from a remote snapshot.
type Item struct {
	// CombinedID addresses the item uniformly across scopes; see CombinedID.
	CombinedID string `json:"id"`
	// RawID is the store-assigned id within the owning collection.
	RawID string `json:"rawId"`
	Scope Scope  `json:"-"`
	Name  string `json:"name"`
	// Completed marks the item checked off.
	Completed bool `json:"completed"`
	// CreatedAt is the server ordering timestamp in unix milliseconds;
	// 0 when the write has not been echoed back yet, which sorts oldest.
	CreatedAt int64 `json:"createdAt"`
}

// CombinedID encodes a scope and raw document id into the single flat
// namespace the UI addresses items by:
//
//	global:<rawId>
//	list:<code>:<rawId>
//
// The encoding is injective as long as list codes contain no ":"; raw ids
// may contain ":" freely because parsing splits on the first delimiters only.
func CombinedID(scope Scope, rawID string) string {
	if scope.Kind == ScopePersonal {
		return "list:" + scope.Code + ":" + rawID
	}
	return "global:" + rawID
}

// ParseCombinedID recovers the scope and raw id from a combined identifier.
// Anything that matches neither prefix is treated as a bare global raw id;
// that fallback is defensive, not a normal path.
func ParseCombinedID(combined string) (Scope, string) {
	if raw, ok := strings.CutPrefix(combined, "global:"); ok {
		return Global, raw
	}
	if rest, ok := strings.CutPrefix(combined, "list:"); ok {
		if code, raw, ok := strings.Cut(rest, ":"); ok {
			return Personal(code), raw
		}
	}
	return Global, combined
}

// docRef resolves a combined id to its remote document reference.
func docRef(combined string) docstore.DocPath {
	scope, raw := ParseCombinedID(combined)
	return docstore.DocPath{Collection: scope.items(), ID: raw}
}

// itemFromDoc maps a snapshot document into an Item.
func itemFromDoc(scope Scope, doc docstore.Doc) Item {
	name, _ := doc.Fields["name"].(string)
	completed, _ := doc.Fields["completed"].(bool)
	return Item{
		CombinedID: CombinedID(scope, doc.ID),
		RawID:      doc.ID,
		Scope:      scope,
		Name:       name,
		Completed:  completed,
		CreatedAt:  doc.CreatedAt,
	}
}

// MergeCombined returns personal followed by global, re-sorted descending by
// creation time. The sort is stable, so within one timestamp personal items
// keep their lead and each snapshot's own order survives.
func MergeCombined(personal, global []Item) []Item {
	merged := make([]Item, 0, len(personal)+len(global))
	merged = append(merged, personal...)
	merged = append(merged, global...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt > merged[j].CreatedAt
	})
	return merged
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateCode produces a random uppercase list code of length n.
func GenerateCode(n int) string {
	var b strings.Builder
	b.Grow(n)
	alphaLen := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, alphaLen)
		if err != nil {
			// crypto/rand only fails when the platform source is broken;
			// fall back to a fixed character rather than panic.
			b.WriteByte(codeAlphabet[0])
			continue
		}
		b.WriteByte(codeAlphabet[idx.Int64()])
	}
	return b.String()
}
