package build

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cruciblehq/cradle/internal/requirements"
	"github.com/google/go-cmp/cmp"
)

func parseLock(t *testing.T, s string) *requirements.Lock {
	t.Helper()
	lock, err := requirements.ParseLock(strings.NewReader(s))
	if err != nil {
		t.Fatalf("ParseLock: %v", err)
	}
	return lock
}

func TestWriteAndReadLock(t *testing.T) {
	p := filepath.Join(t.TempDir(), LockFilename)
	want := parseLock(t, "flask==2.0.0\nWerkzeug==2.0.3\nclick==8.1.7\n")

	if err := writeLock(p, want); err != nil {
		t.Fatalf("writeLock: %v", err)
	}

	got, err := readLock(p)
	if err != nil {
		t.Fatalf("readLock: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("lock mismatch (-want +got):\n%s", diff)
	}
	if got.Digest() != want.Digest() {
		t.Fatalf("digest = %s, want %s", got.Digest(), want.Digest())
	}

	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("directory has %d entries, want only the lock", len(entries))
	}
}

func TestWriteLockReplacesExisting(t *testing.T) {
	p := filepath.Join(t.TempDir(), LockFilename)
	if err := writeLock(p, parseLock(t, "flask==2.0.0\n")); err != nil {
		t.Fatal(err)
	}
	next := parseLock(t, "flask==2.0.1\n")
	if err := writeLock(p, next); err != nil {
		t.Fatal(err)
	}

	got, err := readLock(p)
	if err != nil {
		t.Fatal(err)
	}
	if got.Digest() != next.Digest() {
		t.Fatalf("digest = %s, want %s", got.Digest(), next.Digest())
	}
}

func TestReadLockMissing(t *testing.T) {
	_, err := readLock(filepath.Join(t.TempDir(), LockFilename))
	if !errors.Is(err, ErrDependencyDrift) {
		t.Fatalf("err = %v, want ErrDependencyDrift", err)
	}
}

func TestCheckDrift(t *testing.T) {
	installed := parseLock(t, "flask==2.0.0\nclick==8.1.7\n")

	if err := checkDrift(nil, installed); err != nil {
		t.Fatalf("unlocked build: %v", err)
	}
	if err := checkDrift(parseLock(t, "click==8.1.7\nflask==2.0.0\n"), installed); err != nil {
		t.Fatalf("same set: %v", err)
	}

	err := checkDrift(parseLock(t, "flask==2.0.0\nclick==8.1.6\n"), installed)
	if !errors.Is(err, ErrDependencyDrift) {
		t.Fatalf("err = %v, want ErrDependencyDrift", err)
	}
	if !strings.Contains(err.Error(), "~ click 8.1.6 -> 8.1.7") {
		t.Fatalf("error %q does not describe the change", err)
	}
}
