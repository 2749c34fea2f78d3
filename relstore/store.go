// Package relstore implements the relational data model of spec.md §3 on
// top of a flat ordered key-value store (github.com/a-h/kv). Tables and
// join tables are encoded as ordered composite-key prefixes; GetPrefix does
// the work a SQL join would otherwise do, and cascading deletes are the
// explicit Disconnect*/Delete* calls a caller makes inside a Tx. This follows the pattern the teacher already uses for its NPM and
// Python package metadata (npm/db/db.go, python/db/db.go), generalized from
// two tables to the full schema.
package relstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/a-h/kv"
	"github.com/a-h/kv/postgreskv"
	"github.com/a-h/kv/rqlitekv"
	"github.com/a-h/kv/sqlitekv"
	rqlitehttp "github.com/rqlite/rqlite-go-http"

	"github.com/jackc/pgx/v5/pgxpool"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store is the relational store. It owns a kv.Store and exposes CRUD and
// join-traversal operations over the entity schema.
type Store struct {
	kv kv.Store
}

// New selects a backend by dbType ("sqlite", "rqlite", or "postgres") and
// connects to url, mirroring the teacher's store/store.go selection switch.
func New(ctx context.Context, dbType, dsn string) (s *Store, closer func() error, err error) {
	var store kv.Store
	switch dbType {
	case "sqlite":
		store, closer, err = newSqliteStore(dsn)
	case "rqlite":
		store, closer, err = newRqliteStore(dsn)
	case "postgres":
		store, closer, err = newPostgresStore(dsn)
	default:
		return nil, nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
	if err != nil {
		return nil, nil, err
	}
	if err = store.Init(ctx); err != nil {
		_ = closer()
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return &Store{kv: store}, closer, nil
}

// KV exposes the underlying kv.Store so collaborators that need raw
// key-value access alongside the relational schema (downloadcounter's
// daily buckets, accesslog) can share the same backend connection instead
// of opening a second one.
func (s *Store) KV() kv.Store {
	return s.kv
}

// NewWithStore wraps an already-constructed kv.Store. Used by tests to run
// against an in-memory sqlite instance.
func NewWithStore(store kv.Store) *Store {
	return &Store{kv: store}
}

func newSqliteStore(dsn string) (store kv.Store, closer func() error, err error) {
	dsnURI, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, err
	}
	opts := sqlitex.PoolOptions{
		Flags: sqlite.OpenReadWrite | sqlite.OpenCreate | sqlite.OpenURI,
	}
	if strings.EqualFold(dsnURI.Query().Get("_journal_mode"), "wal") {
		opts.Flags |= sqlite.OpenWAL
	}
	pool, err := sqlitex.NewPool(dsn, opts)
	if err != nil {
		return nil, nil, err
	}
	store = sqlitekv.NewStore(pool)
	return store, pool.Close, nil
}

func newRqliteStore(dsn string) (store kv.Store, closer func() error, err error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return nil, nil, err
	}
	client := rqlitehttp.NewClient(dsn, nil)
	if u.User != nil {
		pwd, _ := u.User.Password()
		client.SetBasicAuth(u.User.Username(), pwd)
	}
	store = rqlitekv.NewStore(client)
	return store, func() error { return nil }, nil
}

func newPostgresStore(dsn string) (store kv.Store, closer func() error, err error) {
	pool, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, nil, err
	}
	store = postgreskv.NewStore(pool)
	closer = func() error {
		pool.Close()
		return nil
	}
	return store, closer, nil
}
