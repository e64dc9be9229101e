package cache

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	_ "modernc.org/sqlite"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
	"github.com/dpup/info.ersn.net/navigation/internal/lib/routing"
)

// Both are safe for concurrent EncodeAll/DecodeAll calls.
var (
	blobEncoder, _ = zstd.NewWriter(nil)
	blobDecoder, _ = zstd.NewReader(nil)
)

// OpenSQLite opens and pings a SQLite database. ":memory:" databases are
// limited to one connection, since each connection would otherwise see its
// own empty database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %q: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verify sqlite connection to %q: %w", path, err)
	}
	return db, nil
}

// SQLiteRouteStore persists routes across restarts. Keys are expected to be
// normalized by the caller (see RouteKey).
type SQLiteRouteStore struct {
	DB    *sql.DB
	clock clock.Clock
}

// NewSQLiteRouteStore wraps db. Call InitSchema before use.
func NewSQLiteRouteStore(db *sql.DB, c clock.Clock) *SQLiteRouteStore {
	if c == nil {
		c = clock.Real{}
	}
	return &SQLiteRouteStore{DB: db, clock: c}
}

// InitSchema creates the route_cache table if needed.
func (s *SQLiteRouteStore) InitSchema(ctx context.Context) error {
	if s.DB == nil {
		return errors.New("route store: db is nil")
	}
	_, err := s.DB.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS route_cache (
		cache_key  TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		route      BLOB NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS route_cache_expires_at ON route_cache (expires_at);
	`)
	if err != nil {
		return fmt.Errorf("route store: create schema: %w", err)
	}
	return nil
}

// Get returns the unexpired route stored under key.
func (s *SQLiteRouteStore) Get(ctx context.Context, key string) (routing.Route, bool, error) {
	if s.DB == nil {
		return routing.Route{}, false, errors.New("route store: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return routing.Route{}, false, errors.New("get route store: key must not be empty")
	}

	var blob []byte
	err := s.DB.QueryRowContext(ctx, `
	SELECT route
	FROM route_cache
	WHERE cache_key = ?
		AND expires_at > ?;
	`, key, s.clock.Now().UnixNano()).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return routing.Route{}, false, nil
	}
	if err != nil {
		return routing.Route{}, false, fmt.Errorf("get route store: query route_cache table: %w", err)
	}

	route, err := decodeRoute(blob)
	if err != nil {
		return routing.Route{}, false, fmt.Errorf("get route store key=%q: %w", key, err)
	}
	return route, true, nil
}

// Put stores route under key for ttl, replacing any previous entry.
func (s *SQLiteRouteStore) Put(ctx context.Context, key string, route routing.Route, ttl time.Duration) error {
	if s.DB == nil {
		return errors.New("route store: db is nil")
	}
	if strings.TrimSpace(key) == "" {
		return errors.New("insert route store: key must not be empty")
	}

	blob, err := encodeRoute(route)
	if err != nil {
		return fmt.Errorf("insert route store key=%q: %w", key, err)
	}

	now := s.clock.Now()
	_, err = s.DB.ExecContext(ctx, `
	INSERT OR REPLACE INTO route_cache (
		cache_key,
		source,
		route,
		created_at,
		expires_at
	)
	VALUES (?, ?, ?, ?, ?)
	`, key, route.Source, blob, now.UnixNano(), now.Add(ttl).UnixNano())
	if err != nil {
		return fmt.Errorf("insert route store key=%q: %w", key, err)
	}
	return nil
}

// DeleteExpired removes expired rows and reports how many were removed.
func (s *SQLiteRouteStore) DeleteExpired(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, errors.New("route store: db is nil")
	}
	res, err := s.DB.ExecContext(ctx, `DELETE FROM route_cache WHERE expires_at <= ?`, s.clock.Now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("delete expired routes: %w", err)
	}
	return res.RowsAffected()
}

func encodeRoute(route routing.Route) ([]byte, error) {
	var buf bytes.Buffer
	if err := msgpack.NewEncoder(&buf).Encode(route); err != nil {
		return nil, fmt.Errorf("encode route: %w", err)
	}
	return blobEncoder.EncodeAll(buf.Bytes(), nil), nil
}

func decodeRoute(blob []byte) (routing.Route, error) {
	raw, err := blobDecoder.DecodeAll(blob, nil)
	if err != nil {
		return routing.Route{}, fmt.Errorf("decompress route: %w", err)
	}
	var route routing.Route
	if err := msgpack.Unmarshal(raw, &route); err != nil {
		return routing.Route{}, fmt.Errorf("decode route: %w", err)
	}
	return route, nil
}
