// Package registry maintains the device-local memory of personal lists: the
// ordered set of codes ever claimed here, which one is active, and the
// reconciliation sweep that prunes codes whose remote list is gone.
package registry

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/ntb-arenas/grocery-list-tracker/internal/localstore"
)

// CodesKey is the durable cache key holding the remembered codes as a JSON
// array of strings.
const CodesKey = "personalListCodes"

// Registry owns the remembered personal-list codes. It must be Initialized
// once per session before its state is trusted; until then consumers see an
// empty, not-ready registry rather than a fake-authoritative default.
//
// Remembering a code is purely local: whether the list still exists
// remotely is the Sweeper's concern.
type Registry struct {
	local localstore.Store

	mu     sync.Mutex
	codes  []string
	active string
	ready  bool
}

func New(local localstore.Store) *Registry {
	return &Registry{local: local}
}

// Initialize loads the remembered codes from the durable cache. An absent
// or unparseable value yields an empty set. The first remembered code
// becomes active.
func (r *Registry) Initialize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = readCodes(r.local)
	if len(r.codes) > 0 {
		r.active = r.codes[0]
	} else {
		r.active = ""
	}
	r.ready = true
}

// readCodes decodes the durable codes array, tolerating absence and junk.
func readCodes(local localstore.Store) []string {
	raw := local.Get(CodesKey)
	if raw == "" {
		return nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(raw), &codes); err != nil {
		log.Warn().Err(err).Msg("unreadable personal list codes, starting empty")
		return nil
	}
	return codes
}

// writeCodes persists the full array, last writer wins across tabs and
// sessions.
func writeCodes(local localstore.Store, codes []string) {
	if codes == nil {
		codes = []string{}
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		log.Error().Err(err).Msg("encode personal list codes")
		return
	}
	local.Set(CodesKey, string(raw))
}

// Claim remembers a code (appending in claim order, exact-string dedup) and
// makes it active. Claiming an already-remembered code still activates it.
func (r *Registry) Claim(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.contains(code) {
		r.codes = append(r.codes, code)
		r.persist()
	}
	r.active = code
}

// Clear forgets a code locally. When the active code is cleared, the entry
// that now occupies its slot (or the last remaining one) takes over, or no
// list is active. The remote list itself is untouched.
func (r *Registry) Clear(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := -1
	for i, c := range r.codes {
		if c == code {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	r.codes = append(r.codes[:idx], r.codes[idx+1:]...)
	r.persist()

	if r.active == code {
		switch {
		case len(r.codes) == 0:
			r.active = ""
		case idx < len(r.codes):
			r.active = r.codes[idx]
		default:
			r.active = r.codes[len(r.codes)-1]
		}
	}
}

// SetActive switches the active code without touching the remembered set.
func (r *Registry) SetActive(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = code
}

// Codes returns the remembered codes in claim order.
func (r *Registry) Codes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.codes...)
}

// ActiveCode returns the active code, "" when none.
func (r *Registry) ActiveCode() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Ready reports whether Initialize has run.
func (r *Registry) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

func (r *Registry) contains(code string) bool {
	for _, c := range r.codes {
		if c == code {
			return true
		}
	}
	return false
}

func (r *Registry) persist() {
	if !r.ready {
		return
	}
	writeCodes(r.local, r.codes)
}
