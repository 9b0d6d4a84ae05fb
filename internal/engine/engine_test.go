package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/celerix-dev/celerix-tasks/internal/vault"
)

func TestMemStore_GetPutDelete(t *testing.T) {
	ms := NewMemStore(nil, nil)

	doc := json.RawMessage(`{"title":"write docs"}`)

	if err := ms.Put("tasks", "t1", doc); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := ms.Get("tasks", "t1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(doc) {
		t.Errorf("Expected %s, got %s", doc, got)
	}

	// Mutating the returned copy must not reach the store.
	got[2] = 'X'
	again, _ := ms.Get("tasks", "t1")
	if string(again) != string(doc) {
		t.Errorf("Stored document was mutated through Get: %s", again)
	}

	if _, err := ms.Get("tasks", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if err := ms.Delete("tasks", "t1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := ms.Get("tasks", "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}
	if err := ms.Delete("tasks", "t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
	}
}

func TestMemStore_PutCheckedRejects(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ms.Put("users", "u1", json.RawMessage(`{"email":"a@b.c"}`))

	errTaken := errors.New("taken")
	err := ms.PutChecked("users", "u2", json.RawMessage(`{"email":"a@b.c"}`), func(docs map[string]json.RawMessage) error {
		if len(docs) > 0 {
			return errTaken
		}
		return nil
	})
	if !errors.Is(err, errTaken) {
		t.Fatalf("Expected check error, got %v", err)
	}
	if _, err := ms.Get("users", "u2"); !errors.Is(err, ErrNotFound) {
		t.Error("Rejected document should not have been stored")
	}
}

func TestMemStore_DeleteWhereAndSnapshot(t *testing.T) {
	ms := NewMemStore(nil, nil)
	ms.Put("activity", "a1", json.RawMessage(`{"taskId":"t1"}`))
	ms.Put("activity", "a2", json.RawMessage(`{"taskId":"t1"}`))
	ms.Put("activity", "a3", json.RawMessage(`{"taskId":"t2"}`))

	removed := ms.DeleteWhere("activity", func(id string, doc json.RawMessage) bool {
		var v struct {
			TaskID string `json:"taskId"`
		}
		json.Unmarshal(doc, &v)
		return v.TaskID == "t1"
	})
	if removed != 2 {
		t.Errorf("Expected 2 removed, got %d", removed)
	}

	snap := ms.Snapshot("activity")
	if len(snap) != 1 {
		t.Fatalf("Expected 1 remaining document, got %d", len(snap))
	}
	if _, ok := snap["a3"]; !ok {
		t.Errorf("Expected a3 to remain, got %v", snap)
	}

	cols := ms.Collections()
	if len(cols) != 1 || cols[0] != "activity" {
		t.Errorf("Expected [activity], got %v", cols)
	}
}

func TestFilePersistence(t *testing.T) {
	tmpDir := t.TempDir()

	p, err := NewFilePersistence(tmpDir)
	if err != nil {
		t.Fatalf("NewFilePersistence failed: %v", err)
	}

	data := map[string]json.RawMessage{
		"w1": json.RawMessage(`{"name":"Kanban"}`),
	}
	if err := p.SaveCollection("workflows", data); err != nil {
		t.Fatalf("SaveCollection failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "workflows.json")); os.IsNotExist(err) {
		t.Fatal("Collection file was not created")
	}

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(allData) != 1 {
		t.Errorf("Expected 1 collection, got %d", len(allData))
	}
	if string(allData["workflows"]["w1"]) != `{"name":"Kanban"}` {
		t.Errorf("Loaded data mismatch: %s", allData["workflows"]["w1"])
	}
}

func TestFilePersistence_RefusesCorruptFiles(t *testing.T) {
	tmpDir := t.TempDir()
	broken := filepath.Join(tmpDir, "tasks.json")
	os.WriteFile(broken, []byte("{not json"), 0644)

	p, _ := NewFilePersistence(tmpDir)
	if _, err := p.LoadAll(); err == nil {
		t.Fatal("Expected an error for a corrupt collection file")
	}

	content, _ := os.ReadFile(broken)
	if string(content) != "{not json" {
		t.Errorf("Corrupt file was modified: %s", content)
	}
}

func TestFilePersistence_LoadsHandEditedFiles(t *testing.T) {
	tmpDir := t.TempDir()
	os.WriteFile(filepath.Join(tmpDir, "users.json"), []byte("{\n  \"u1\": {\n    \"name\": \"Ann\"\n  }\n}\n"), 0644)

	p, _ := NewFilePersistence(tmpDir)
	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if string(allData["users"]["u1"]) != `{"name":"Ann"}` {
		t.Errorf("Expected compacted document, got %s", allData["users"]["u1"])
	}
}

func TestMemStore_Persistence(t *testing.T) {
	p, _ := NewFilePersistence(t.TempDir())
	ms := NewMemStore(nil, p)

	for i := 0; i < 20; i++ {
		ms.Put("tasks", fmt.Sprintf("t%d", i), json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
	}
	ms.Delete("tasks", "t0")
	ms.Wait()

	allData, _ := p.LoadAll()
	ms2 := NewMemStore(allData, p)

	if len(ms2.Snapshot("tasks")) != 19 {
		t.Fatalf("Expected 19 documents after reload, got %d", len(ms2.Snapshot("tasks")))
	}
	val, err := ms2.Get("tasks", "t19")
	if err != nil {
		t.Fatalf("Get on new store failed: %v", err)
	}
	if string(val) != `{"n":19}` {
		t.Errorf("Expected latest write, got %s", val)
	}
}

func TestSQLitePersistence(t *testing.T) {
	p, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "tasks.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer p.Close()

	first := map[string]json.RawMessage{
		"t1": json.RawMessage(`{"title":"a"}`),
		"t2": json.RawMessage(`{"title":"b"}`),
	}
	if err := p.SaveCollection("tasks", first); err != nil {
		t.Fatalf("SaveCollection failed: %v", err)
	}
	// A second save replaces the collection rather than merging.
	if err := p.SaveCollection("tasks", map[string]json.RawMessage{"t2": json.RawMessage(`{"title":"c"}`)}); err != nil {
		t.Fatalf("SaveCollection failed: %v", err)
	}

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(allData["tasks"]) != 1 {
		t.Fatalf("Expected 1 task, got %d", len(allData["tasks"]))
	}
	if string(allData["tasks"]["t2"]) != `{"title":"c"}` {
		t.Errorf("Unexpected body %s", allData["tasks"]["t2"])
	}
}

func TestMigrate_FileToSQLite(t *testing.T) {
	src, _ := NewFilePersistence(t.TempDir())
	src.SaveCollection("users", map[string]json.RawMessage{"u1": json.RawMessage(`{"name":"Ann"}`)})
	src.SaveCollection("tasks", map[string]json.RawMessage{
		"t1": json.RawMessage(`{}`),
		"t2": json.RawMessage(`{}`),
	})

	dst, err := OpenSQLite(filepath.Join(t.TempDir(), "dst.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	defer dst.Close()

	n, err := Migrate(src, dst)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 3 {
		t.Errorf("Expected 3 documents copied, got %d", n)
	}

	allData, _ := dst.LoadAll()
	if len(allData["users"]) != 1 || len(allData["tasks"]) != 2 {
		t.Errorf("Destination mismatch: %v", allData)
	}
}

func TestMemStore_Concurrent(t *testing.T) {
	ms := NewMemStore(nil, nil)
	const (
		numGoroutines = 10
		numOps        = 100
	)
	var wg sync.WaitGroup
	errs := make(chan error, numGoroutines*numOps)

	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOps; j++ {
				key := fmt.Sprintf("key-%d-%d", id, j)
				want := fmt.Sprintf(`{"n":%d}`, j)
				ms.Put("c", key, json.RawMessage(want))
				val, err := ms.Get("c", key)
				if err != nil || string(val) != want {
					errs <- fmt.Errorf("expected %s, got %s, err %v", want, val, err)
				}
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	if len(ms.Snapshot("c")) != numGoroutines*numOps {
		t.Errorf("Expected %d documents, got %d", numGoroutines*numOps, len(ms.Snapshot("c")))
	}
}

func TestSealedPersister(t *testing.T) {
	key, _ := vault.ParseKey(strings.Repeat("0f", vault.KeySize))
	c, err := vault.NewCipher(key)
	if err != nil {
		t.Fatalf("NewCipher failed: %v", err)
	}
	dir := t.TempDir()
	file, _ := NewFilePersistence(dir)
	p := NewSealedPersister(file, c)

	doc := json.RawMessage(`{"title":"quarterly plan"}`)
	if err := p.SaveCollection("tasks", map[string]json.RawMessage{"t1": doc}); err != nil {
		t.Fatalf("SaveCollection failed: %v", err)
	}

	onDisk, _ := os.ReadFile(filepath.Join(dir, "tasks.json"))
	if strings.Contains(string(onDisk), "quarterly") {
		t.Fatalf("Plaintext written to disk: %s", onDisk)
	}

	allData, err := p.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if string(allData["tasks"]["t1"]) != string(doc) {
		t.Errorf("Expected %s, got %s", doc, allData["tasks"]["t1"])
	}

	otherKey, _ := vault.ParseKey(strings.Repeat("a0", vault.KeySize))
	other, _ := vault.NewCipher(otherKey)
	if _, err := NewSealedPersister(file, other).LoadAll(); !errors.Is(err, vault.ErrTampered) {
		t.Errorf("Expected ErrTampered with the wrong key, got %v", err)
	}
}
