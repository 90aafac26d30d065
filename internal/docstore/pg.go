package docstore

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

const notifyChannel = "docstore_changes"

// Applied one statement at a time; pgx's extended protocol does not accept
// multi-statement strings.
var schema = []string{`
CREATE TABLE IF NOT EXISTS documents (
	collection  TEXT        NOT NULL,
	id          TEXT        NOT NULL,
	fields      JSONB       NOT NULL DEFAULT '{}',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, id)
)`, `
CREATE INDEX IF NOT EXISTS documents_collection_created_at
	ON documents (collection, created_at DESC)`,
}

// PG is the Postgres-backed Store. Documents live in a single JSONB table
// keyed by (collection, id); live subscriptions ride on LISTEN/NOTIFY with
// a full-snapshot requery per change notification.
type PG struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	subs    map[CollectionPath]map[int]subscriber
	nextSub int

	listenOnce sync.Once
	cancel     context.CancelFunc
	done       chan struct{}
}

// OpenPG connects a pool, verifies connectivity, and ensures the document
// schema exists.
func OpenPG(ctx context.Context, url string) (*PG, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			pool.Close()
			return nil, err
		}
	}

	log.Info().
		Int32("max_conns", cfg.MaxConns).
		Int32("min_conns", cfg.MinConns).
		Msg("document store connected")

	return &PG{
		pool: pool,
		subs: make(map[CollectionPath]map[int]subscriber),
		done: make(chan struct{}),
	}, nil
}

// Close stops the change listener and releases the pool.
func (s *PG) Close() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.pool.Close()
}

func marshalFields(fields Fields) ([]byte, error) {
	f, _ := resolve(fields)
	return json.Marshal(f)
}

func (s *PG) Create(ctx context.Context, col CollectionPath, fields Fields) (string, error) {
	id := uuid.NewString()
	body, err := marshalFields(fields)
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3)
	`, string(col), id, body)
	if err != nil {
		return "", err
	}
	s.notify(ctx, col)
	return id, nil
}

func (s *PG) Set(ctx context.Context, ref DocPath, fields Fields) error {
	body, err := marshalFields(fields)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO documents (collection, id, fields) VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET fields = EXCLUDED.fields
	`, string(ref.Collection), ref.ID, body)
	if err != nil {
		return err
	}
	s.notify(ctx, ref.Collection)
	return nil
}

func (s *PG) Update(ctx context.Context, ref DocPath, fields Fields) error {
	body, err := marshalFields(fields)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE documents SET fields = fields || $3
		WHERE collection = $1 AND id = $2
	`, string(ref.Collection), ref.ID, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound{Ref: ref}
	}
	s.notify(ctx, ref.Collection)
	return nil
}

func (s *PG) Delete(ctx context.Context, ref DocPath) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM documents WHERE collection = $1 AND id = $2
	`, string(ref.Collection), ref.ID)
	if err != nil {
		return err
	}
	s.notify(ctx, ref.Collection)
	return nil
}

func (s *PG) DeleteAll(ctx context.Context, col CollectionPath) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM documents WHERE collection = $1
	`, string(col))
	if err != nil {
		return err
	}
	s.notify(ctx, col)
	return nil
}

func (s *PG) Exists(ctx context.Context, ref DocPath) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM documents WHERE collection = $1 AND id = $2)
	`, string(ref.Collection), ref.ID).Scan(&exists)
	return exists, err
}

func (s *PG) FetchAll(ctx context.Context, col CollectionPath) (Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, fields, created_at FROM documents
		WHERE collection = $1
		ORDER BY created_at DESC, id
	`, string(col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snap Snapshot
	for rows.Next() {
		var (
			id        string
			body      []byte
			createdAt time.Time
		)
		if err := rows.Scan(&id, &body, &createdAt); err != nil {
			return nil, err
		}
		fields := make(Fields)
		if err := json.Unmarshal(body, &fields); err != nil {
			return nil, err
		}
		snap = append(snap, Doc{ID: id, Fields: fields, CreatedAt: createdAt.UnixMilli()})
	}
	return snap, rows.Err()
}

func (s *PG) ListIDs(ctx context.Context, col CollectionPath) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM documents WHERE collection = $1 ORDER BY id
	`, string(col))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PG) Subscribe(col CollectionPath, onSnapshot SnapshotFunc, onError ErrorFunc) (Unsubscribe, error) {
	s.listenOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancel = cancel
		go s.listen(ctx)
	})

	initial, err := s.FetchAll(context.Background(), col)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	if s.subs[col] == nil {
		s.subs[col] = make(map[int]subscriber)
	}
	s.subs[col][id] = subscriber{onSnapshot: onSnapshot, onError: onError}
	s.mu.Unlock()

	onSnapshot(initial)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[col], id)
	}, nil
}

// notify wakes listeners on every node in the pool. Failures to notify are
// logged, not surfaced: the mutation itself already landed.
func (s *PG) notify(ctx context.Context, col CollectionPath) {
	if _, err := s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, string(col)); err != nil {
		log.Warn().Err(err).Str("collection", string(col)).Msg("change notify failed")
	}
}

// listen holds a LISTEN connection and redelivers snapshots on change
// notifications, reconnecting with exponential backoff when the connection
// drops.
func (s *PG) listen(ctx context.Context) {
	defer close(s.done)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0

	for {
		err := s.listenOnceConn(ctx)
		if ctx.Err() != nil {
			return
		}
		wait := bo.NextBackOff()
		log.Warn().Err(err).Dur("retry_in", wait).Msg("change listener disconnected")
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}
	}
}

func (s *PG) listenOnceConn(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return err
	}

	// A reconnect may have missed notifications; resync everything.
	s.redeliverAll(ctx)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.redeliver(ctx, CollectionPath(n.Payload))
	}
}

func (s *PG) redeliverAll(ctx context.Context) {
	s.mu.Lock()
	cols := make([]CollectionPath, 0, len(s.subs))
	for col, subs := range s.subs {
		if len(subs) > 0 {
			cols = append(cols, col)
		}
	}
	s.mu.Unlock()

	for _, col := range cols {
		s.redeliver(ctx, col)
	}
}

func (s *PG) redeliver(ctx context.Context, col CollectionPath) {
	s.mu.Lock()
	n := len(s.subs[col])
	s.mu.Unlock()
	if n == 0 {
		return
	}

	snap, err := s.FetchAll(ctx, col)

	// Delivery happens under the lock, against the current membership, so a
	// callback never fires after its Unsubscribe has returned.
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs[col] {
		if err != nil {
			if sub.onError != nil {
				sub.onError(err)
			}
			continue
		}
		sub.onSnapshot(snap)
	}
}
