// Package journal implements Vortex's append-only, rotating mutation log.
// Grounded on the original engine's rolling_file_logger/journal_logger
// (original_source/logger.cpp) and its storage.cpp rotation pipeline: file
// rotation (close, rename, prune) is layered underneath a Store rebuild that
// replays every surviving segment before the rebuilt store is swapped in.
package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tom-oleson/vortex/internal/telemetry"
)

const activeSegmentName = "data.log"

// Journal owns one active segment file plus a bounded, sorted list of
// retained rotated segments under dir.
type Journal struct {
	mu     sync.Mutex
	dir    string
	keep   int
	file   *os.File
	logger zerolog.Logger
}

// Open creates dir if necessary and opens (or creates) the active segment
// for appending. keep bounds how many rotated segments are retained
// (0..364, clamped by the caller per the configuration contract).
func Open(dir string, keep int, logger zerolog.Logger) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: open directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, activeSegmentName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open active segment: %w", err)
	}

	return &Journal{
		dir:    dir,
		keep:   keep,
		file:   f,
		logger: logger.With().Str("component", "journal").Logger(),
	}, nil
}

// Lock acquires the journal-wide lock used by readers ($ reads) and by
// rotation to guarantee a consistent cut across the Store.
func (j *Journal) Lock() { j.mu.Lock() }

// Unlock releases the lock acquired by Lock.
func (j *Journal) Unlock() { j.mu.Unlock() }

// Append writes record, timestamped, to the active segment and flushes
// before returning. Must complete before the corresponding mutation becomes
// visible in the Store (append-first discipline).
func (j *Journal) Append(record string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.AppendLocked(record)
}

// AppendLocked writes record exactly like Append, but assumes the caller
// already holds the journal lock (e.g. a read-and-remove that must append
// only after confirming a hit, without releasing the lock in between).
func (j *Journal) AppendLocked(record string) error {
	start := time.Now()
	line := fmt.Sprintf("%d %s\n", start.UnixNano(), record)
	if _, err := j.file.WriteString(line); err != nil {
		return fmt.Errorf("journal: append: %w", err)
	}
	err := j.file.Sync()
	telemetry.JournalAppendLatencySeconds.Observe(time.Since(start).Seconds())
	return err
}

// Rotate closes the active segment, renames it into the retained list under
// a timestamp suffix, prunes the oldest retained segment once the list
// exceeds keep, opens a fresh active segment, and then — still holding the
// journal lock — invokes rebuild with every currently retained segment path
// (oldest first), followed by the fresh active segment, so the caller can
// replay them into a scratch store and
// swap it in. The lock is held for the full rebuild so concurrent $ reads
// observe either the pre- or post-rotation state, never a partial one.
func (j *Journal) Rotate(rebuild func(segments []string) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.file.Close(); err != nil {
		return fmt.Errorf("journal: close active segment: %w", err)
	}

	activePath := filepath.Join(j.dir, activeSegmentName)
	rotatedPath := filepath.Join(j.dir, fmt.Sprintf("data.%d.log", time.Now().UnixNano()))
	if err := os.Rename(activePath, rotatedPath); err != nil {
		return fmt.Errorf("journal: rename segment: %w", err)
	}

	f, err := os.OpenFile(activePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("journal: reopen active segment: %w", err)
	}
	j.file = f

	segments, err := j.listSegmentsLocked()
	if err != nil {
		return err
	}

	if j.keep >= 0 && len(segments) > j.keep {
		toPrune := segments[:len(segments)-j.keep]
		kept := segments[len(segments)-j.keep:]
		for _, p := range toPrune {
			if err := os.Remove(p); err != nil {
				j.logger.Warn().Err(err).Str("segment", p).Msg("failed to prune rotated segment")
			}
		}
		segments = kept
	}

	j.logger.Info().
		Int("retained_segments", len(segments)).
		Msg("journal rotated")
	telemetry.JournalRotationsTotal.Inc()
	telemetry.JournalRetainedSegments.Set(float64(len(segments)))

	// Re-enumerate ./journal/*.log (includes the fresh, empty active
	// segment — harmless, it contributes no lines to the replay).
	all, err := j.listAllLogsLocked()
	if err != nil {
		return err
	}
	return rebuild(all)
}

// listSegmentsLocked returns retained rotated segments (excludes the active
// segment), sorted ascending by filename, which sorts chronologically given
// the nanosecond-timestamp suffix.
func (j *Journal) listSegmentsLocked() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, "data.*.log"))
	if err != nil {
		return nil, fmt.Errorf("journal: list segments: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// listAllLogsLocked returns every *.log file under dir (including the
// active segment), sorted ascending.
func (j *Journal) listAllLogsLocked() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(j.dir, "*.log"))
	if err != nil {
		return nil, fmt.Errorf("journal: list logs: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// ListAllForStartup enumerates every *.log segment under dir, sorted
// ascending, for the startup replay into the journal-replay Processor.
func (j *Journal) ListAllForStartup() ([]string, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.listAllLogsLocked()
}

// ReadLines reads every non-empty line of segment path in order.
func ReadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("journal: open segment %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("journal: read segment %s: %w", path, err)
	}
	return lines, nil
}

// Close closes the active segment file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
