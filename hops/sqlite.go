package hops

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hazyhaar/kango/dbopen"
	"github.com/hazyhaar/kango/watch"
)

// Schema is the key/value table the SQLite backend persists into.
const Schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// SQLiteBackend persists values in the kv table of an SQLite database.
type SQLiteBackend struct {
	DB *sql.DB

	verMu   sync.Mutex
	verConn *sql.Conn
	closed  bool
}

// OpenSQLite opens (or creates) the database at path with the kv schema.
func OpenSQLite(path string, opts ...dbopen.Option) (*SQLiteBackend, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("hops: open sqlite: %w", err)
	}
	return &SQLiteBackend{DB: db}, nil
}

// NewSQLiteBackend wraps an already opened database; the kv table must
// exist (see Schema).
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{DB: db}
}

func (b *SQLiteBackend) Load(ctx context.Context, key string) ([]byte, error) {
	var v string
	err := b.DB.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hops: sqlite load %s: %w", key, err)
	}
	return []byte(v), nil
}

func (b *SQLiteBackend) Save(ctx context.Context, key string, value []byte) error {
	err := dbopen.RunTx(ctx, b.DB, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, string(value), time.Now().UnixMilli())
		return err
	})
	if err != nil {
		return fmt.Errorf("hops: sqlite save %s: %w", key, err)
	}
	return nil
}

// DataVersion reads PRAGMA data_version on a connection reserved for it.
// With a single-connection pool (in-memory databases) there is nothing to
// reserve and nobody else to observe, so it reports a constant.
func (b *SQLiteBackend) DataVersion(ctx context.Context) (int64, error) {
	if b.DB.Stats().MaxOpenConnections == 1 {
		return 0, nil
	}
	b.verMu.Lock()
	defer b.verMu.Unlock()
	if b.closed {
		return 0, sql.ErrConnDone
	}
	if b.verConn == nil {
		conn, err := b.DB.Conn(ctx)
		if err != nil {
			return 0, fmt.Errorf("hops: data_version conn: %w", err)
		}
		b.verConn = conn
	}
	return watch.PragmaDataVersion(b.verConn)(ctx)
}

// Close releases the version connection and the database.
func (b *SQLiteBackend) Close() error {
	b.verMu.Lock()
	b.closed = true
	if b.verConn != nil {
		b.verConn.Close()
		b.verConn = nil
	}
	b.verMu.Unlock()
	return b.DB.Close()
}
