package statedb

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/asheshgoplani/chatjump/internal/dom/htmldoc"
)

func newPage(t *testing.T, body string) *htmldoc.Document {
	t.Helper()
	doc, err := htmldoc.ParseString("<html><body>"+body+"</body></html>", "https://chatgpt.com/c/x")
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestImportLegacyShapes(t *testing.T) {
	cases := map[string]string{
		"array":   `[{"id":"m-1","text":"one?"},{"id":"m-2","text":"two?"}]`,
		"storage": `{"chatjump_index":[{"id":"m-1","text":"one?"},{"id":"m-2","text":"two?"}]}`,
		"reply":   `{"index":[{"id":"m-1","text":"one?"},{"id":"m-2","text":"two?"}],"conversationId":"c"}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			db := newTestDB(t)
			ctx := context.Background()
			n, skipped, err := ImportLegacyJSON(ctx, writeFile(t, content), db, 300)
			if err != nil {
				t.Fatalf("import: %v", err)
			}
			if n != 2 || skipped != 0 {
				t.Fatalf("n=%d skipped=%d", n, skipped)
			}
			got, _ := db.LoadIndex(ctx)
			if len(got) != 2 || got[0].ID != "m-1" {
				t.Fatalf("stored = %v", got)
			}
		})
	}
}

func TestImportSkipsInvalidAndDuplicates(t *testing.T) {
	db := newTestDB(t)
	content := `[
		{"id":"m-1","text":"one?"},
		{"id":"m-1","text":"dup"},
		{"id":"","text":"no id"},
		{"id":"m-3","text":""},
		{"id":"m-4","text":"four?"}
	]`
	n, skipped, err := ImportLegacyJSON(context.Background(), writeFile(t, content), db, 300)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || skipped != 3 {
		t.Fatalf("n=%d skipped=%d", n, skipped)
	}
}

func TestImportRespectsBound(t *testing.T) {
	db := newTestDB(t)
	content := `[{"id":"a","text":"1"},{"id":"b","text":"2"},{"id":"c","text":"3"}]`
	n, skipped, err := ImportLegacyJSON(context.Background(), writeFile(t, content), db, 2)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 || skipped != 1 {
		t.Fatalf("n=%d skipped=%d", n, skipped)
	}
}

func TestImportErrors(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, _, err := ImportLegacyJSON(ctx, filepath.Join(t.TempDir(), "missing.json"), db, 300); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, _, err := ImportLegacyJSON(ctx, writeFile(t, "   "), db, 300); err == nil {
		t.Fatal("expected error for empty file")
	}
	if _, _, err := ImportLegacyJSON(ctx, writeFile(t, "{broken"), db, 300); err == nil {
		t.Fatal("expected error for bad json")
	}
}
