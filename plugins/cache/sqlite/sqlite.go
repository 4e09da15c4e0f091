package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"subsync/pkg/contract"
)

// Options: SQLite 译文缓存配置。
type Options struct {
	Path     string `json:"path"`      // 数据库文件，默认 cache/translations.db
	TTLHours int    `json:"ttl_hours"` // 过期时间，默认 0 表示不过期
}

// Cache 基于 SQLite（WAL）持久化译文，跨进程复用。
type Cache struct {
	db   *sql.DB
	path string
	ttl  time.Duration
	now  func() time.Time
}

const schema = `CREATE TABLE IF NOT EXISTS translations (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// Open 打开（或创建）缓存库并应用迁移。
func Open(opts *Options) (*Cache, error) {
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Path == "" {
		o.Path = filepath.Join("cache", "translations.db")
	}
	if o.TTLHours < 0 {
		return nil, fmt.Errorf("%w: ttl_hours must be >= 0", contract.ErrInvalidInput)
	}
	if dir := filepath.Dir(o.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", o.Path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Cache{db: db, path: o.Path, ttl: time.Duration(o.TTLHours) * time.Hour, now: time.Now}, nil
}

// Path 返回数据库文件路径。
func (c *Cache) Path() string { return c.path }

// Get 见 contract.Cache；过期条目视为未命中。
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	var value string
	var created int64
	err := c.db.QueryRowContext(ctx, `SELECT value, created_at FROM translations WHERE key = ?`, key).Scan(&value, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return "", contract.ErrCacheMiss
	}
	if err != nil {
		return "", fmt.Errorf("select translation: %w", err)
	}
	if c.ttl > 0 && c.now().Sub(time.Unix(created, 0)) > c.ttl {
		return "", contract.ErrCacheMiss
	}
	return value, nil
}

// Set 见 contract.Cache（覆盖写）。
func (c *Cache) Set(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO translations (key, value, created_at) VALUES (?, ?, ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		key, value, c.now().Unix())
	if err != nil {
		return fmt.Errorf("upsert translation: %w", err)
	}
	return nil
}

// Purge 删除过期条目，返回删除数量。
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	if c.ttl <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.ttl).Unix()
	res, err := c.db.ExecContext(ctx, `DELETE FROM translations WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge translations: %w", err)
	}
	return res.RowsAffected()
}

// Close 关闭数据库连接。
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

var _ contract.Cache = (*Cache)(nil)
