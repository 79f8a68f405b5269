package storage

import (
	"bytes"
	"errors"
	"testing"
)

// testDB runs the shared test suite against a DB implementation.
func testDB(t *testing.T, db BatchDB) {
	t.Helper()

	t.Run("PutGetHas", func(t *testing.T) {
		if err := db.Put([]byte("key1"), []byte("value1")); err != nil {
			t.Fatalf("Put() error: %v", err)
		}
		val, err := db.Get([]byte("key1"))
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if !bytes.Equal(val, []byte("value1")) {
			t.Errorf("Get() = %q, want %q", val, "value1")
		}
		if ok, err := db.Has([]byte("key1")); err != nil || !ok {
			t.Errorf("Has(key1) = %v, %v; want true", ok, err)
		}
		if ok, err := db.Has([]byte("missing")); err != nil || ok {
			t.Errorf("Has(missing) = %v, %v; want false", ok, err)
		}
	})

	t.Run("GetNonexistent", func(t *testing.T) {
		_, err := db.Get([]byte("nonexistent"))
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() missing key err = %v, want ErrNotFound", err)
		}
	})

	t.Run("DeleteAndOverwrite", func(t *testing.T) {
		db.Put([]byte("ow"), []byte("first"))
		db.Put([]byte("ow"), []byte("second"))
		if val, _ := db.Get([]byte("ow")); !bytes.Equal(val, []byte("second")) {
			t.Errorf("Get() after overwrite = %q, want %q", val, "second")
		}
		if err := db.Delete([]byte("ow")); err != nil {
			t.Fatalf("Delete() error: %v", err)
		}
		if _, err := db.Get([]byte("ow")); !errors.Is(err, ErrNotFound) {
			t.Errorf("Get() after Delete() err = %v, want ErrNotFound", err)
		}
		if err := db.Delete([]byte("never-existed")); err != nil {
			t.Errorf("Delete() nonexistent key error: %v", err)
		}
	})

	t.Run("ValueIsCopied", func(t *testing.T) {
		v := []byte("abc")
		db.Put([]byte("copy"), v)
		v[0] = 'X'
		got, _ := db.Get([]byte("copy"))
		if string(got) != "abc" {
			t.Errorf("stored value changed with caller buffer: %q", got)
		}
	})

	t.Run("ForEachOrdered", func(t *testing.T) {
		db.Put([]byte("e/\x00\x03"), []byte("3"))
		db.Put([]byte("e/\x00\x01"), []byte("1"))
		db.Put([]byte("e/\x00\x02"), []byte("2"))
		db.Put([]byte("other/x"), []byte("4"))

		var got []string
		err := db.ForEach([]byte("e/"), func(key, value []byte) error {
			got = append(got, string(value))
			return nil
		})
		if err != nil {
			t.Fatalf("ForEach() error: %v", err)
		}
		if len(got) != 3 || got[0] != "1" || got[1] != "2" || got[2] != "3" {
			t.Errorf("ForEach(e/) = %v, want [1 2 3]", got)
		}
	})

	t.Run("ForEachStopEarly", func(t *testing.T) {
		stop := errors.New("stop")
		count := 0
		err := db.ForEach([]byte("e/"), func(key, value []byte) error {
			count++
			return stop
		})
		if !errors.Is(err, stop) || count != 1 {
			t.Errorf("ForEach stop: err = %v, count = %d", err, count)
		}
	})

	t.Run("BatchCommit", func(t *testing.T) {
		db.Put([]byte("b/old"), []byte("x"))

		b := db.NewBatch()
		b.Put([]byte("b/one"), []byte("1"))
		b.Put([]byte("b/two"), []byte("2"))
		b.Delete([]byte("b/old"))

		// Nothing visible before commit.
		if ok, _ := db.Has([]byte("b/one")); ok {
			t.Fatal("batch write visible before Commit")
		}
		if ok, _ := db.Has([]byte("b/old")); !ok {
			t.Fatal("batch delete applied before Commit")
		}

		if err := b.Commit(); err != nil {
			t.Fatalf("Commit() error: %v", err)
		}
		for _, k := range []string{"b/one", "b/two"} {
			if ok, _ := db.Has([]byte(k)); !ok {
				t.Errorf("%s missing after Commit", k)
			}
		}
		if ok, _ := db.Has([]byte("b/old")); ok {
			t.Error("b/old still present after batch delete")
		}
	})

	t.Run("BatchDropped", func(t *testing.T) {
		b := db.NewBatch()
		b.Put([]byte("dropped"), []byte("1"))
		if ok, _ := db.Has([]byte("dropped")); ok {
			t.Error("uncommitted batch write should never be visible")
		}
	})
}

func TestMemoryDB(t *testing.T) {
	db := NewMemory()
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB(t *testing.T) {
	db, err := NewBadger(t.TempDir())
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()
	testDB(t, db)
}

func TestBadgerDB_Persistence(t *testing.T) {
	dir := t.TempDir()

	db1, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	b := db1.NewBatch()
	b.Put([]byte("persist"), []byte("data"))
	if err := b.Commit(); err != nil {
		t.Fatalf("Commit() error: %v", err)
	}
	db1.Close()

	db2, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() reopen error: %v", err)
	}
	defer db2.Close()

	val, err := db2.Get([]byte("persist"))
	if err != nil {
		t.Fatalf("Get() after reopen error: %v", err)
	}
	if !bytes.Equal(val, []byte("data")) {
		t.Errorf("persisted value = %q, want %q", val, "data")
	}
}

func TestBadgerDB_LockedByAnotherProcess(t *testing.T) {
	dir := t.TempDir()
	db, err := NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger() error: %v", err)
	}
	defer db.Close()

	if _, err := NewBadger(dir); err == nil {
		t.Error("second open of the same directory should fail")
	}
}
