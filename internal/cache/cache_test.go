package cache

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func openTestStore(t *testing.T) (*Store, *clock) {
	t.Helper()
	tmp := t.TempDir()
	store, err := Open(filepath.Join(tmp, "cache.db"), filepath.Join(tmp, "cache.lock"))
	if err != nil {
		t.Fatalf("Open cache failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	clk := &clock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
	store.now = clk.Now
	return store, clk
}

func TestCacheSetGetFreshAndStale(t *testing.T) {
	store, clk := openTestStore(t)

	if err := store.Set("k1", []byte(`{"v":1}`), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	res, err := store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get fresh failed: %v", err)
	}
	if !res.Hit || res.Stale {
		t.Fatalf("expected fresh hit, got %+v", res)
	}

	clk.Advance(1200 * time.Millisecond)
	res, err = store.Get("k1", 5*time.Second)
	if err != nil {
		t.Fatalf("Get stale failed: %v", err)
	}
	if !res.Hit || !res.Stale || res.TooStale {
		t.Fatalf("expected stale within budget, got %+v", res)
	}
}

func TestCacheTooStale(t *testing.T) {
	store, clk := openTestStore(t)

	if err := store.Set("k2", []byte(`{"v":2}`), time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	clk.Advance(1300 * time.Millisecond)
	res, err := store.Get("k2", 10*time.Millisecond)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !res.TooStale {
		t.Fatalf("expected too stale, got %+v", res)
	}
}

func TestCacheJSONRoundTripAndExpiry(t *testing.T) {
	store, clk := openTestStore(t)

	type entry struct {
		Market string `json:"market"`
	}
	if err := store.SetJSON("markets", []entry{{Market: "0xabc"}}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}
	var got []entry
	hit, err := store.GetJSON("markets", &got)
	if err != nil || !hit {
		t.Fatalf("expected hit, got hit=%v err=%v", hit, err)
	}
	if len(got) != 1 || got[0].Market != "0xabc" {
		t.Fatalf("unexpected cached value: %+v", got)
	}

	clk.Advance(2 * time.Minute)
	hit, err = store.GetJSON("markets", &got)
	if err != nil || hit {
		t.Fatalf("expected stale entry to miss, got hit=%v err=%v", hit, err)
	}

	if err := store.Prune(); err != nil {
		t.Fatalf("Prune failed: %v", err)
	}
	res, err := store.Get("markets", -1)
	if err != nil || res.Hit {
		t.Fatalf("expected pruned entry, got %+v err=%v", res, err)
	}
}

func TestCacheDelete(t *testing.T) {
	store, _ := openTestStore(t)
	if err := store.Set("k3", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := store.Delete("k3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	res, err := store.Get("k3", -1)
	if err != nil || res.Hit {
		t.Fatalf("expected miss after delete, got %+v err=%v", res, err)
	}
}

func TestCacheConcurrentOpenAndSet(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "cache.db")
	lockPath := filepath.Join(tmp, "cache.lock")

	const workers = 16
	const iterations = 40

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for worker := 0; worker < workers; worker++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			store, err := Open(dbPath, lockPath)
			if err != nil {
				errCh <- fmt.Errorf("worker %d open: %w", workerID, err)
				return
			}
			defer store.Close()

			for i := 0; i < iterations; i++ {
				key := fmt.Sprintf("worker-%d-key-%d", workerID, i)
				if err := store.Set(key, []byte(`{"ok":true}`), time.Minute); err != nil {
					errCh <- fmt.Errorf("worker %d set iter %d: %w", workerID, i, err)
					return
				}
				res, err := store.Get(key, time.Minute)
				if err != nil {
					errCh <- fmt.Errorf("worker %d get iter %d: %w", workerID, i, err)
					return
				}
				if !res.Hit {
					errCh <- fmt.Errorf("worker %d get iter %d: expected hit", workerID, i)
					return
				}
			}
		}(worker)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatal(err)
	}
}
