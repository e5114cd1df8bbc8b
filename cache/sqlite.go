package cache

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/ardnew/talc/lang"
)

const artifactSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	key     TEXT PRIMARY KEY,
	created INTEGER NOT NULL,
	data    BLOB NOT NULL
);`

// SQLite is a [TemplateCache] that stores artifacts in a SQLite database.
type SQLite struct {
	flight

	cfg    config
	dsn    string
	db     *sql.DB
	loader Loader
}

// NewSQLite opens the database at dsn, creating the artifacts table if
// needed. Artifacts are restored by loader.
func NewSQLite(ctx context.Context, dsn string, loader Loader, opts ...Option) (*SQLite, error) {
	db, err := openDB(dsn)
	if err != nil {
		return nil, ErrStorage.Wrap(err).With(slog.String("dsn", dsn))
	}

	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, artifactSchema); err != nil {
		_ = db.Close()

		return nil, ErrStorage.Wrap(err).With(slog.String("dsn", dsn))
	}

	return &SQLite{cfg: makeConfig(opts...), dsn: dsn, db: db, loader: loader}, nil
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }

// ReadOnly reports whether the cache is in [LoadOnly] mode.
func (s *SQLite) ReadOnly() bool { return s.cfg.mode == LoadOnly }

// Get restores the artifact stored under key.
func (s *SQLite) Get(ctx context.Context, key lang.Key) (*lang.CompiledTemplate, bool, error) {
	var data []byte

	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM artifacts WHERE key = ?", key.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		s.cfg.logger.TraceContext(ctx, "sqlite cache miss",
			slog.String("key", key.String()))

		if s.cfg.mode == LoadOnly {
			return nil, false, ErrArtifactMissing.With(
				slog.String("key", key.String()),
				slog.String("dsn", s.dsn))
		}

		return nil, false, nil
	}

	if err != nil {
		return nil, false, ErrStorage.Wrap(err).With(slog.String("key", key.String()))
	}

	t, err := restore(ctx, s.loader, key, data)
	if err != nil {
		var ce *lang.CorruptionError
		if errors.As(err, &ce) {
			ce.Path = s.dsn + "#" + key.String()
		}

		return nil, false, err
	}

	s.cfg.logger.TraceContext(ctx, "sqlite cache hit",
		slog.String("key", key.String()))

	return t, true, nil
}

// Put stores the artifact of t, replacing any artifact stored under key.
func (s *SQLite) Put(ctx context.Context, key lang.Key, t *lang.CompiledTemplate) error {
	if s.cfg.mode == LoadOnly {
		return ErrReadOnly.With(slog.String("dsn", s.dsn))
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (key, created, data) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET created = excluded.created, data = excluded.data`,
		key.String(), t.Created().UnixNano(), t.Artifact())
	if err != nil {
		return ErrStorage.Wrap(err).With(slog.String("key", key.String()))
	}

	s.cfg.logger.DebugContext(ctx, "sqlite cache store",
		slog.String("key", key.String()),
		slog.Time("created", t.Created()))

	return nil
}

// Keys returns the stored keys, most recently created first.
func (s *SQLite) Keys(ctx context.Context) ([]lang.Key, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM artifacts ORDER BY created DESC")
	if err != nil {
		return nil, ErrStorage.Wrap(err)
	}
	defer rows.Close()

	var keys []lang.Key

	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, ErrStorage.Wrap(err)
		}

		k, err := lang.ParseKey(text)
		if err != nil {
			return nil, ErrStorage.Wrap(err)
		}

		keys = append(keys, k)
	}

	if err := rows.Err(); err != nil {
		return nil, ErrStorage.Wrap(err)
	}

	return keys, nil
}

// Prune deletes artifacts created before t.
func (s *SQLite) Prune(ctx context.Context, before time.Time) (int64, error) {
	if s.cfg.mode == LoadOnly {
		return 0, ErrReadOnly.With(slog.String("dsn", s.dsn))
	}

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM artifacts WHERE created < ?", before.UnixNano())
	if err != nil {
		return 0, ErrStorage.Wrap(err)
	}

	return res.RowsAffected()
}
