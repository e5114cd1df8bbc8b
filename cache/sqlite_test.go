package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ardnew/talc/lang"
)

func newSQLite(t *testing.T, dsn string, opts ...Option) *SQLite {
	t.Helper()

	s, err := NewSQLite(t.Context(), dsn, lang.NewCompiler(), opts...)
	if err != nil {
		t.Fatalf("open error: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestSQLite_RoundTrip(t *testing.T) {
	roundTrip(t, newSQLite(t, filepath.Join(t.TempDir(), "cache.db")))
}

func TestSQLite_Upsert(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "cache.db")
	s := newSQLite(t, dsn)
	ct := compile(t, "Hello ${w}!")

	first, err := lang.NewCompiler().Load(t.Context(), ct.Artifact())
	if err != nil {
		t.Fatalf("load error: %v", err)
	}

	for _, tpl := range []*lang.CompiledTemplate{first, ct} {
		if err := s.Put(t.Context(), ct.Key(), tpl); err != nil {
			t.Fatalf("put error: %v", err)
		}
	}

	keys, err := s.Keys(t.Context())
	if err != nil {
		t.Fatalf("keys error: %v", err)
	}

	if len(keys) != 1 || keys[0] != ct.Key() {
		t.Errorf("expected [%s], got %v", ct.Key(), keys)
	}

	got, ok, err := newSQLite(t, dsn, WithMode(LoadOnly)).Get(t.Context(), ct.Key())
	if err != nil || !ok {
		t.Fatalf("expected hit, got hit=%t err=%v", ok, err)
	}

	if s := render(t, got); s != "Hello world!" {
		t.Errorf("expected %q, got %q", "Hello world!", s)
	}
}

func TestSQLite_LoadOnly(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "cache.db"), WithMode(LoadOnly))
	ct := compile(t, "x")

	if _, _, err := s.Get(t.Context(), ct.Key()); !errors.Is(err, ErrArtifactMissing) {
		t.Errorf("expected %v, got %v", ErrArtifactMissing, err)
	}

	if err := s.Put(t.Context(), ct.Key(), ct); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected %v, got %v", ErrReadOnly, err)
	}

	if !IsReadOnly(s) {
		t.Error("expected read-only cache")
	}
}

func TestSQLite_Corrupt(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	ct := compile(t, "x ${w}")

	_, err := s.db.ExecContext(t.Context(),
		"INSERT INTO artifacts (key, created, data) VALUES (?, ?, ?)",
		ct.Key().String(), time.Now().UnixNano(), []byte("garbage"))
	if err != nil {
		t.Fatalf("insert error: %v", err)
	}

	_, _, err = s.Get(t.Context(), ct.Key())

	var ce *lang.CorruptionError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *lang.CorruptionError, got %v", err)
	}

	if ce.Path == "" {
		t.Error("expected the corrupt entry to be named")
	}
}

func TestSQLite_Prune(t *testing.T) {
	s := newSQLite(t, filepath.Join(t.TempDir(), "cache.db"))
	ct := compile(t, "x ${w}")

	if err := s.Put(t.Context(), ct.Key(), ct); err != nil {
		t.Fatalf("put error: %v", err)
	}

	n, err := s.Prune(t.Context(), ct.Created().Add(time.Second))
	if err != nil {
		t.Fatalf("prune error: %v", err)
	}

	if n != 1 {
		t.Errorf("expected 1 pruned artifact, got %d", n)
	}

	if _, ok, _ := s.Get(t.Context(), ct.Key()); ok {
		t.Error("expected pruned artifact to be gone")
	}
}
