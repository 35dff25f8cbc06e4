package clicklog

import (
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	_ "modernc.org/sqlite"
)

func testLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "clicks.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestRecordAndCount(t *testing.T) {
	l := testLog(t)
	l.Record("abc123", "Mozilla/5.0 (X11; Linux x86_64) Chrome/120", false)
	l.Record("abc123", "facebookexternalhit/1.1", true)
	l.Record("other1", "curl/8.0", true)

	n, err := l.CountFor("abc123")
	if err != nil {
		t.Fatalf("CountFor: %v", err)
	}
	if n != 2 {
		t.Fatalf("count = %d, want 2", n)
	}
}

func TestCountForUnknownID(t *testing.T) {
	l := testLog(t)
	n, err := l.CountFor("never")
	if err != nil {
		t.Fatalf("CountFor: %v", err)
	}
	if n != 0 {
		t.Fatalf("count = %d, want 0", n)
	}
}

func TestRecordConcurrent(t *testing.T) {
	l := testLog(t)
	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Record("busy1234", "agent", false)
		}()
	}
	wg.Wait()

	got, err := l.CountFor("busy1234")
	if err != nil {
		t.Fatalf("CountFor: %v", err)
	}
	if got != n {
		t.Fatalf("count = %d, want %d", got, n)
	}
}
