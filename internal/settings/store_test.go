package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"
)

// setupTestStore opens a store in a temporary directory.
func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	dir := t.TempDir()
	opts := DefaultOptions()
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(dir, opts)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, dir
}

// TestOpen tests database creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dir := filepath.Join(t.TempDir(), "data", "deamp")
		s, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open store: %v", err)
		}
		defer s.Close()

		if _, err := os.Stat(filepath.Join(dir, DatabaseFile)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if s.Path() != filepath.Join(dir, DatabaseFile) {
			t.Errorf("unexpected path %s", s.Path())
		}
	})

	t.Run("CreateIfNotExists=false fails for missing database", func(t *testing.T) {
		t.Parallel()

		_, err := Open(t.TempDir(), Options{})
		if !errors.Is(err, ErrDatabaseNotFound) {
			t.Errorf("expected ErrDatabaseNotFound, got %v", err)
		}
	})
}

// TestIgnoredHostnames tests reads and writes of the ignore list.
func TestIgnoredHostnames(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("defaults to an empty list", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestStore(t)
		list, err := s.IgnoredHostnames(ctx)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if list == nil || len(list) != 0 {
			t.Errorf("expected empty non-nil list, got %#v", list)
		}
		updated, err := s.UpdatedAt(ctx)
		if err != nil || !updated.IsZero() {
			t.Errorf("expected zero update time, got %v (%v)", updated, err)
		}
	})

	t.Run("set normalizes and persists", func(t *testing.T) {
		t.Parallel()

		s, dir := setupTestStore(t)
		err := s.SetIgnoredHostnames(ctx, []string{" Example.COM ", "https://news.example.org/amp/x", "example.com", "bücher.example"})
		if err != nil {
			t.Fatalf("set failed: %v", err)
		}

		reopened, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("reopen failed: %v", err)
		}
		defer reopened.Close()

		list, err := reopened.IgnoredHostnames(ctx)
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		want := []string{"example.com", "news.example.org", "xn--bcher-kva.example"}
		if !slices.Equal(list, want) {
			t.Errorf("list = %v, want %v", list, want)
		}
		if updated, _ := reopened.UpdatedAt(ctx); updated.IsZero() {
			t.Error("update time not recorded")
		}
	})

	t.Run("add and remove", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestStore(t)
		if _, err := s.AddIgnoredHostname(ctx, "a.example"); err != nil {
			t.Fatalf("add failed: %v", err)
		}
		list, err := s.AddIgnoredHostname(ctx, "B.example")
		if err != nil {
			t.Fatalf("add failed: %v", err)
		}
		if !slices.Equal(list, []string{"a.example", "b.example"}) {
			t.Errorf("after add: %v", list)
		}

		list, err = s.RemoveIgnoredHostname(ctx, "a.example")
		if err != nil {
			t.Fatalf("remove failed: %v", err)
		}
		if !slices.Equal(list, []string{"b.example"}) {
			t.Errorf("after remove: %v", list)
		}

		if err := s.ClearIgnoredHostnames(ctx); err != nil {
			t.Fatalf("clear failed: %v", err)
		}
		if list, _ := s.IgnoredHostnames(ctx); len(list) != 0 {
			t.Errorf("after clear: %v", list)
		}
	})

	t.Run("rejects invalid hostnames", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestStore(t)
		for _, host := range []string{"", "   ", "http://", "a b"} {
			if _, err := s.AddIgnoredHostname(ctx, host); !errors.Is(err, ErrInvalidHostname) {
				t.Errorf("AddIgnoredHostname(%q): expected ErrInvalidHostname, got %v", host, err)
			}
		}
	})
}

// TestOnIgnoredHostnamesChanged tests change notifications.
func TestOnIgnoredHostnamesChanged(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := setupTestStore(t)

	var got [][]string
	cancel := s.OnIgnoredHostnamesChanged(func(list []string) {
		got = append(got, list)
	})

	if _, err := s.AddIgnoredHostname(ctx, "example.com"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := s.AddIgnoredHostname(ctx, "EXAMPLE.com"); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	if _, err := s.RemoveIgnoredHostname(ctx, "missing.example"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}

	if len(got) != 1 || !slices.Equal(got[0], []string{"example.com"}) {
		t.Errorf("expected one notification for the real change, got %v", got)
	}

	cancel()
	cancel()
	if err := s.ClearIgnoredHostnames(ctx); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("cancelled subscriber was notified: %v", got)
	}
}

// TestOnIgnoredHostnamesChanged_ConcurrentWriters tests that the last
// notification subscribers see is the list that was stored last.
func TestOnIgnoredHostnamesChanged_ConcurrentWriters(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s, _ := setupTestStore(t)

	var (
		mu   sync.Mutex
		last []string
		seen int
	)
	s.OnIgnoredHostnamesChanged(func(list []string) {
		mu.Lock()
		defer mu.Unlock()
		last = list
		seen++
	})

	const writers = 8
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			host := fmt.Sprintf("host%d.example", i)
			if err := s.SetIgnoredHostnames(ctx, []string{host}); err != nil {
				t.Errorf("set %s failed: %v", host, err)
			}
		}()
	}
	wg.Wait()

	stored, err := s.IgnoredHostnames(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if seen == 0 {
		t.Fatal("no notifications")
	}
	if !slices.Equal(last, stored) {
		t.Errorf("last notification = %v, stored list = %v", last, stored)
	}
}

// TestWatch tests notification of writes made through another connection.
func TestWatch(t *testing.T) {
	t.Parallel()

	s, dir := setupTestStore(t)
	other, err := Open(dir, DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open second store: %v", err)
	}
	defer other.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := s.IgnoredHostnames(ctx); err != nil {
		t.Fatalf("read failed: %v", err)
	}

	changes := make(chan []string, 1)
	s.OnIgnoredHostnamesChanged(func(list []string) {
		select {
		case changes <- list:
		default:
		}
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.Watch(ctx, 10*time.Millisecond); err != nil {
			t.Errorf("watch failed: %v", err)
		}
	}()

	// Give Watch time to record the initial data_version.
	time.Sleep(50 * time.Millisecond)

	if err := other.SetIgnoredHostnames(context.Background(), []string{"remote.example"}); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	select {
	case list := <-changes:
		if !slices.Equal(list, []string{"remote.example"}) {
			t.Errorf("notified with %v", list)
		}
	case <-time.After(5 * time.Second):
		t.Error("no notification for external write")
	}

	cancel()
	wg.Wait()
}

// TestNormalizeHostname tests hostname normalization.
func TestNormalizeHostname(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "plain", input: "example.com", want: "example.com"},
		{name: "case and space", input: "  WWW.Example.Com ", want: "www.example.com"},
		{name: "trailing dot", input: "example.com.", want: "example.com"},
		{name: "url", input: "https://User@News.Example.org:8443/amp/a?b=c", want: "news.example.org"},
		{name: "idn", input: "Bücher.example", want: "xn--bcher-kva.example"},
		{name: "ipv4", input: "192.0.2.1", want: "192.0.2.1"},
		{name: "bracketed ipv6", input: "[::1]", want: "::1"},
		{name: "ipv6 url", input: "http://[2001:DB8::1]:8080/a", want: "2001:db8::1"},
		{name: "empty", input: "", wantErr: true},
		{name: "path without scheme", input: "example.com/path", wantErr: true},
		{name: "url without host", input: "file:///tmp/x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := NormalizeHostname(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidHostname) {
					t.Errorf("expected ErrInvalidHostname, got %q, %v", got, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

// TestStaticAndOverlay tests the in-memory sources.
func TestStaticAndOverlay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	base := NewStatic("a.example")
	overlay := NewOverlay(base, "B.example", "a.example")

	list, err := overlay.IgnoredHostnames(ctx)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !slices.Equal(list, []string{"a.example", "b.example"}) {
		t.Errorf("overlay list = %v", list)
	}

	var got []string
	calls := 0
	cancel := overlay.OnIgnoredHostnamesChanged(func(l []string) {
		got = l
		calls++
	})
	base.Set("c.example")
	base.Set("C.example")

	if calls != 1 {
		t.Errorf("expected one notification, got %d", calls)
	}
	if !slices.Equal(got, []string{"c.example", "b.example"}) {
		t.Errorf("notified with %v", got)
	}

	cancel()
	base.Set()
	if calls != 1 {
		t.Error("cancelled subscriber was notified")
	}

	var zero Static
	if l, _ := zero.IgnoredHostnames(ctx); l == nil || len(l) != 0 {
		t.Errorf("zero Static list = %#v", l)
	}
}
