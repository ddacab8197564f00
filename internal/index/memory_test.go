package index_test

import (
	"testing"

	"github.com/zynqcloud/filegate/internal/index"
)

func TestMemoryStoreIndexFileAddedThenExisting(t *testing.T) {
	m := index.NewMemoryStore()

	res, err := m.IndexFile("/base", "a.txt", index.Stat{Dev: 1, Ino: 10, Size: 5, MtimeMs: 100}, 1000)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if res.Action != index.ActionAdded {
		t.Fatalf("action = %s, want added", res.Action)
	}
	id := res.ID

	res2, err := m.IndexFile("/base", "a.txt", index.Stat{Dev: 1, Ino: 10, Size: 6, MtimeMs: 200}, 2000)
	if err != nil {
		t.Fatalf("IndexFile again: %v", err)
	}
	if res2.Action != index.ActionExisting {
		t.Fatalf("action = %s, want existing", res2.Action)
	}
	if res2.ID != id {
		t.Fatalf("id changed on existing-path rewrite: %s != %s", res2.ID, id)
	}
}

func TestMemoryStoreMoveDetection(t *testing.T) {
	m := index.NewMemoryStore()

	res, err := m.IndexFile("/base", "old.txt", index.Stat{Dev: 1, Ino: 42, Size: 5, MtimeMs: 100}, 1000)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}

	moved, err := m.IndexFile("/base", "new.txt", index.Stat{Dev: 1, Ino: 42, Size: 5, MtimeMs: 100}, 2000)
	if err != nil {
		t.Fatalf("IndexFile moved: %v", err)
	}
	if moved.Action != index.ActionMoved {
		t.Fatalf("action = %s, want moved", moved.Action)
	}
	if moved.ID != res.ID {
		t.Fatalf("id changed across rename: %s != %s", moved.ID, res.ID)
	}

	oldEntry, err := m.IdentifyPath("/base", "old.txt")
	if err != nil {
		t.Fatal(err)
	}
	if oldEntry != nil {
		t.Fatal("old path still present after move")
	}

	newEntry, err := m.IdentifyPath("/base", "new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if newEntry == nil || newEntry.ID != res.ID {
		t.Fatalf("new path does not resolve to original id")
	}
}

func TestMemoryStoreRemoveFromIndexRecursive(t *testing.T) {
	m := index.NewMemoryStore()
	mustIndex(t, m, "/base", "dir", index.Stat{Dev: 1, Ino: 1, IsDir: true}, 1)
	mustIndex(t, m, "/base", "dir/a.txt", index.Stat{Dev: 1, Ino: 2}, 1)
	mustIndex(t, m, "/base", "dir/sub/b.txt", index.Stat{Dev: 1, Ino: 3}, 1)
	mustIndex(t, m, "/base", "dir-sibling.txt", index.Stat{Dev: 1, Ino: 4}, 1)

	if err := m.RemoveFromIndexRecursive("/base", "dir"); err != nil {
		t.Fatal(err)
	}

	for _, rel := range []string{"dir", "dir/a.txt", "dir/sub/b.txt"} {
		e, err := m.IdentifyPath("/base", rel)
		if err != nil {
			t.Fatal(err)
		}
		if e != nil {
			t.Errorf("expected %q removed, still present", rel)
		}
	}

	e, err := m.IdentifyPath("/base", "dir-sibling.txt")
	if err != nil {
		t.Fatal(err)
	}
	if e == nil {
		t.Error("sibling with shared prefix was incorrectly removed")
	}
}

func TestMemoryStoreRemoveStaleEntries(t *testing.T) {
	m := index.NewMemoryStore()
	mustIndex(t, m, "/base", "stale.txt", index.Stat{Dev: 1, Ino: 1}, 100)
	mustIndex(t, m, "/base", "fresh.txt", index.Stat{Dev: 1, Ino: 2}, 500)

	n, err := m.RemoveStaleEntries("/base", 300)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("removed %d, want 1", n)
	}

	fresh, _ := m.IdentifyPath("/base", "fresh.txt")
	if fresh == nil {
		t.Error("fresh entry was incorrectly removed")
	}
}

func mustIndex(t *testing.T, m *index.MemoryStore, base, rel string, stat index.Stat, ts int64) {
	t.Helper()
	if _, err := m.IndexFile(base, rel, stat, ts); err != nil {
		t.Fatalf("IndexFile(%s): %v", rel, err)
	}
}
