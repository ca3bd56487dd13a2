package journal

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestAppendAndReadLines(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 2, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	if err := j.Append("+alpha one"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := j.Append("-alpha"); err != nil {
		t.Fatalf("Append: %v", err)
	}

	lines, err := ReadLines(filepath.Join(dir, "data.log"))
	if err != nil {
		t.Fatalf("ReadLines: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("len(lines) = %d; want 2", len(lines))
	}
}

func TestRotatePrunesOldestAndRebuilds(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 1, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	j.Append("+x1 v1")

	var firstRebuildSegments []string
	if err := j.Rotate(func(segments []string) error {
		firstRebuildSegments = segments
		return nil
	}); err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	if len(firstRebuildSegments) != 2 { // the rotated segment + fresh empty active
		t.Fatalf("first rebuild saw %d segments; want 2", len(firstRebuildSegments))
	}

	j.Append("+x2 v2")
	var secondRebuildSegments []string
	if err := j.Rotate(func(segments []string) error {
		secondRebuildSegments = segments
		return nil
	}); err != nil {
		t.Fatalf("second Rotate: %v", err)
	}

	// keep=1 means only the most recently rotated segment (plus the fresh
	// active segment) should remain.
	if len(secondRebuildSegments) != 2 {
		t.Fatalf("second rebuild saw %d segments; want 2 (pruned to keep=1 + active)", len(secondRebuildSegments))
	}
}

func TestListAllForStartup(t *testing.T) {
	dir := t.TempDir()
	j, err := Open(dir, 5, zerolog.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer j.Close()

	j.Append("+a 1")
	j.Rotate(func([]string) error { return nil })
	j.Append("+b 2")

	segments, err := j.ListAllForStartup()
	if err != nil {
		t.Fatalf("ListAllForStartup: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("len(segments) = %d; want 2", len(segments))
	}
}
