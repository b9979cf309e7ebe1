package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/kango/dbopen"

	_ "modernc.org/sqlite"
)

type counter struct{ v atomic.Int64 }

func (c *counter) detect(context.Context) (int64, error) { return c.v.Load(), nil }

func TestOnChange_FiresOnBump(t *testing.T) {
	var c counter
	w := New(c.detect, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Int64
	done := make(chan struct{})
	go func() {
		w.OnChange(ctx, func() error { fired.Add(1); return nil })
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	c.v.Store(1)

	wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
	defer wcancel()
	if err := w.WaitForVersion(wctx, 1); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}
	if fired.Load() != 1 {
		t.Fatalf("fired: got %d, want 1", fired.Load())
	}
	if s := w.Stats(); s.ChangesDetected != 1 || s.Checks == 0 {
		t.Fatalf("stats: %+v", s)
	}

	cancel()
	<-done
}

func TestOnChange_DebounceCollapses(t *testing.T) {
	var c counter
	w := New(c.detect, Options{Interval: 5 * time.Millisecond, Debounce: 100 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fired atomic.Int64
	go w.OnChange(ctx, func() error { fired.Add(1); return nil })

	time.Sleep(15 * time.Millisecond)
	for i := 1; i <= 3; i++ {
		c.v.Store(int64(i))
		time.Sleep(15 * time.Millisecond)
	}

	wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
	defer wcancel()
	if err := w.WaitForVersion(wctx, 3); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}
	if n := fired.Load(); n != 1 {
		t.Fatalf("fired: got %d, want 1", n)
	}
}

func TestOnChange_FailedActionRetries(t *testing.T) {
	var c counter
	w := New(c.detect, Options{Interval: 5 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int64
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return errors.New("boom")
		}
		return nil
	})

	time.Sleep(15 * time.Millisecond)
	c.v.Store(7)

	wctx, wcancel := context.WithTimeout(ctx, 2*time.Second)
	defer wcancel()
	if err := w.WaitForVersion(wctx, 7); err != nil {
		t.Fatalf("WaitForVersion: %v", err)
	}
	if calls.Load() < 2 {
		t.Fatalf("calls: got %d, want a retry", calls.Load())
	}
}

func TestWaitForVersion_ContextExpires(t *testing.T) {
	var c counter
	w := New(c.detect, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := w.WaitForVersion(ctx, 5); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestPragmaDataVersion_SeesOtherConnection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.db")
	ctx := context.Background()

	reader, err := dbopen.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()
	writer, err := dbopen.Open(path, dbopen.WithSchema("CREATE TABLE IF NOT EXISTS t (x INTEGER)"))
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()

	conn, err := reader.Conn(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	detect := PragmaDataVersion(conn)

	before, err := detect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := writer.Exec("INSERT INTO t VALUES (1)"); err != nil {
		t.Fatal(err)
	}
	after, err := detect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if after == before {
		t.Fatalf("data_version unchanged after foreign commit: %d", after)
	}
}
