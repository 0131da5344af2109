package statedb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/asheshgoplani/chatjump/internal/engine"
)

func newTestDB(t *testing.T) *StateDB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "state.db")
	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCloseReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")
	ctx := context.Background()

	db1, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := db1.Migrate(); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if err := db1.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := db1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db2, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db2.Close()
	if err := db2.Migrate(); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	got, err := db2.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("Get = %q, %v", got, err)
	}
}

func TestGetMissing(t *testing.T) {
	db := newTestDB(t)
	if _, err := db.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	ts, err := db.UpdatedAt(context.Background(), "nope")
	if err != nil || !ts.IsZero() {
		t.Fatalf("UpdatedAt = %v, %v", ts, err)
	}
}

func TestIndexRoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	empty, err := db.LoadIndex(ctx)
	if err != nil || len(empty) != 0 {
		t.Fatalf("LoadIndex on empty db = %v, %v", empty, err)
	}

	want := []engine.MessageEntry{
		{ID: "m-2", Text: "newest question?"},
		{ID: "m-1", Text: "older question, with unicode: ü 😀"},
	}
	before := time.Now()
	if err := db.SaveIndex(ctx, want); err != nil {
		t.Fatalf("SaveIndex: %v", err)
	}
	got, err := db.LoadIndex(ctx)
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("LoadIndex = %v, want %v", got, want)
	}

	ts, err := db.UpdatedAt(ctx, IndexKey)
	if err != nil {
		t.Fatal(err)
	}
	if ts.Before(before.Add(-time.Second)) {
		t.Fatalf("updated_at %v not refreshed", ts)
	}
}

func TestSaveNilIndexStoresEmptyArray(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.SaveIndex(ctx, nil); err != nil {
		t.Fatal(err)
	}
	raw, err := db.Get(ctx, IndexKey)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[]" {
		t.Fatalf("raw = %q", raw)
	}
}

func TestLoadIndexCorrupt(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.Put(ctx, IndexKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if _, err := db.LoadIndex(ctx); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestMeta(t *testing.T) {
	db := newTestDB(t)
	if v, err := db.GetMeta(MetaSchemaVersion); err != nil || v != "1" {
		t.Fatalf("schema_version = %q, %v", v, err)
	}
	if v, _ := db.GetMeta(MetaDeviceID); v != "" {
		t.Fatalf("device id should start empty, got %q", v)
	}
	if err := db.SetMeta(MetaDeviceID, "device_x"); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.GetMeta(MetaDeviceID); v != "device_x" {
		t.Fatalf("device id = %q", v)
	}
}

func TestServerRegistry(t *testing.T) {
	db := newTestDB(t)
	if err := db.RegisterServer("127.0.0.1:8787", "https://chatgpt.com/c/1"); err != nil {
		t.Fatal(err)
	}
	if err := db.Heartbeat(); err != nil {
		t.Fatal(err)
	}

	// A stale row from a dead process.
	old := time.Now().Add(-time.Hour).Unix()
	if _, err := db.DB().Exec(
		"INSERT INTO servers (pid, addr, started, heartbeat) VALUES (?, ?, ?, ?)",
		999999, "127.0.0.1:1", old, old,
	); err != nil {
		t.Fatal(err)
	}

	alive, err := db.AliveServers(30 * time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if len(alive) != 1 || alive[0].Addr != "127.0.0.1:8787" || alive[0].PID != os.Getpid() {
		t.Fatalf("alive = %+v", alive)
	}

	if err := db.UnregisterServer(); err != nil {
		t.Fatal(err)
	}
	alive, _ = db.AliveServers(30 * time.Second)
	if len(alive) != 0 {
		t.Fatalf("expected no servers, got %+v", alive)
	}
}

func TestEnginePersistence(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.SaveIndex(ctx, []engine.MessageEntry{{ID: "m-a", Text: "stored before restart?"}}); err != nil {
		t.Fatal(err)
	}

	page := newPage(t, `<article data-testid="user-1">A question after restart?</article>`)
	e := engine.New(page, engine.Config{ResweepDelays: []time.Duration{}}, engine.WithPersister(db))
	defer e.Close()
	if err := e.Start(ctx); err != nil {
		t.Fatal(err)
	}

	reply, err := e.IndexReply(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(reply.Index) != 2 {
		t.Fatalf("index = %v", reply.Index)
	}

	stored, err := db.LoadIndex(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 || stored[1].ID != "m-a" {
		t.Fatalf("stored = %v", stored)
	}
}
