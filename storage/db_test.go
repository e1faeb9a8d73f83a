package storage

import (
	"errors"
	"path/filepath"
	"testing"
)

func exerciseDatabase(t *testing.T, db Database) {
	t.Helper()
	if _, err := db.Get([]byte("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := db.Put([]byte("a/1"), []byte("one")); err != nil {
		t.Fatalf("put: %v", err)
	}
	err := db.Write([]Entry{
		{Key: []byte("a/2"), Value: []byte("two")},
		{Key: []byte("a/3"), Value: []byte("three")},
		{Key: []byte("b/1"), Value: []byte("other")},
		{Key: []byte("a/1")},
	})
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := db.Get([]byte("a/1")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected a/1 deleted, got %v", err)
	}
	value, err := db.Get([]byte("a/3"))
	if err != nil || string(value) != "three" {
		t.Fatalf("unexpected a/3: %q %v", value, err)
	}

	var keys []string
	if err := db.Iterate([]byte("a/"), func(key, value []byte) error {
		keys = append(keys, string(key))
		return nil
	}); err != nil {
		t.Fatalf("iterate: %v", err)
	}
	if len(keys) != 2 || keys[0] != "a/2" || keys[1] != "a/3" {
		t.Fatalf("unexpected keys: %v", keys)
	}

	stop := errors.New("stop")
	visited := 0
	err = db.Iterate([]byte("a/"), func(key, value []byte) error {
		visited++
		return stop
	})
	if !errors.Is(err, stop) || visited != 1 {
		t.Fatalf("expected iteration to stop early, visited=%d err=%v", visited, err)
	}
}

func TestMemDB(t *testing.T) {
	db := NewMemDB()
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestLevelDB(t *testing.T) {
	db, err := NewLevelDB(filepath.Join(t.TempDir(), "ledger"))
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestBoltDB(t *testing.T) {
	db, err := NewBoltDB(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("open bolt: %v", err)
	}
	defer db.Close()
	exerciseDatabase(t, db)
}

func TestMemDBReturnsCopies(t *testing.T) {
	db := NewMemDB()
	value := []byte("value")
	if err := db.Put([]byte("k"), value); err != nil {
		t.Fatalf("put: %v", err)
	}
	value[0] = 'X'
	got, err := db.Get([]byte("k"))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != "value" {
		t.Fatalf("stored value aliased caller buffer: %q", got)
	}
}
