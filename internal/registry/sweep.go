package registry

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ntb-arenas/grocery-list-tracker/internal/grocery"
	"github.com/ntb-arenas/grocery-list-tracker/internal/localstore"
)

// DefaultCooldown bounds how often consecutive sweeps may hit the remote
// store.
const DefaultCooldown = time.Minute

// Sweeper reconciles the durable code cache against the remote store:
// remembered codes whose list no longer exists are pruned. It never prunes
// on uncertain information: any failed existence check aborts the sweep
// with the cache untouched.
type Sweeper struct {
	svc   *grocery.Service
	local localstore.Store

	cooldown time.Duration
	now      func() time.Time

	group    singleflight.Group
	mu       sync.Mutex
	lastDone time.Time
}

// SweepOption adjusts a Sweeper.
type SweepOption func(*Sweeper)

// WithCooldown overrides the minimum idle time between completed sweeps.
func WithCooldown(d time.Duration) SweepOption {
	return func(s *Sweeper) { s.cooldown = d }
}

// WithClock injects the time source.
func WithClock(now func() time.Time) SweepOption {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(svc *grocery.Service, local localstore.Store, opts ...SweepOption) *Sweeper {
	s := &Sweeper{
		svc:      svc,
		local:    local,
		cooldown: DefaultCooldown,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync runs one reconciliation sweep. A call made while a sweep is in
// flight joins it and returns its result; a call made within the cooldown
// of the previous completed sweep returns immediately without touching the
// remote store.
func (s *Sweeper) Sync(ctx context.Context) error {
	s.mu.Lock()
	if !s.lastDone.IsZero() && s.now().Sub(s.lastDone) < s.cooldown {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_, err, _ := s.group.Do("sweep", func() (any, error) {
		return nil, s.sweep(ctx)
	})
	return err
}

func (s *Sweeper) sweep(ctx context.Context) error {
	codes := readCodes(s.local)

	if len(codes) > 0 {
		exists := make([]bool, len(codes))
		var g errgroup.Group
		for i, code := range codes {
			i, code := i, code
			g.Go(func() error {
				ok, err := s.svc.ListExists(ctx, code)
				exists[i] = ok
				return err
			})
		}
		if err := g.Wait(); err != nil {
			log.Error().Err(err).Msg("list reconciliation aborted")
			return err
		}

		valid := codes[:0:0]
		pruned := map[string]bool{}
		for i, code := range codes {
			if exists[i] {
				valid = append(valid, code)
			} else {
				pruned[code] = true
			}
		}
		if len(pruned) > 0 {
			writeCodes(s.local, valid)
			s.repairLegacyCode(valid, pruned)
			log.Info().
				Int("before", len(codes)).
				Int("after", len(valid)).
				Msg("pruned stale personal list codes")
		}
	}

	s.mu.Lock()
	s.lastDone = s.now()
	s.mu.Unlock()
	return nil
}

// repairLegacyCode keeps the single-code legacy key consistent after a
// prune: an active code that was just pruned falls back to the first
// surviving one, or is dropped when none survive. Codes the registry never
// remembered are left alone.
func (s *Sweeper) repairLegacyCode(valid []string, pruned map[string]bool) {
	active := s.local.Get(grocery.LegacyCodeKey)
	if !pruned[active] {
		return
	}
	if len(valid) > 0 {
		s.local.Set(grocery.LegacyCodeKey, valid[0])
	} else {
		s.local.Remove(grocery.LegacyCodeKey)
	}
}
