package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Journal is a small append-only, JSON-lines-per-record file used by the
// Circuit Breaker Manager (state transitions) and the Decision Graph (edge
// mutations). It is a deliberately simpler cousin of a write-ahead log: one
// JSON object per line, fsync'd on every append, replayed front-to-back on
// startup. Concurrent appends serialise on a single mutex — both consumers
// hold their own single lock for all scopes/edges already, so this
// never becomes a contention point in practice.
type Journal struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

// OpenJournal opens (creating if necessary) the journal file at path for
// appending, and leaves it positioned at EOF.
func OpenJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path is operator-configured
	if err != nil {
		return nil, fmt.Errorf("storage: open journal %s: %w", path, err)
	}
	return &Journal{path: path, f: f}, nil
}

// Append marshals v as JSON and writes it as one line, fsyncing before
// returning so a crash immediately after Append never loses the record.
func (j *Journal) Append(v any) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("storage: marshal journal record: %w", err)
	}
	line = append(line, '\n')
	if _, err := j.f.Write(line); err != nil {
		return fmt.Errorf("storage: write journal record: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("storage: sync journal: %w", err)
	}
	return nil
}

// Replay reads every line of the journal in order and calls fn with each
// raw JSON record. Called once at startup to rebuild in-memory state.
func (j *Journal) Replay(fn func(line []byte) error) error {
	f, err := os.Open(j.path) //nolint:gosec // path is operator-configured
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("storage: open journal for replay: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only; replay errors are already surfaced

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		cp := append([]byte(nil), line...)
		if err := fn(cp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// Compact atomically replaces the journal's contents with whatever rewrite
// writes, then reopens for further appends. Neither the Decision Graph nor
// the Circuit Breaker Manager calls it; both journals only grow.
func (j *Journal) Compact(rewrite func(enc *json.Encoder) error) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	tmpPath := j.path + ".compact"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) //nolint:gosec // path derived from operator-configured journal path
	if err != nil {
		return fmt.Errorf("storage: open compaction tmp: %w", err)
	}
	enc := json.NewEncoder(tmp)
	if err := rewrite(enc); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("storage: sync compaction tmp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close compaction tmp: %w", err)
	}

	if err := j.f.Close(); err != nil {
		return fmt.Errorf("storage: close journal before compaction: %w", err)
	}
	if err := os.Rename(tmpPath, j.path); err != nil {
		return fmt.Errorf("storage: rename compacted journal: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // path is operator-configured
	if err != nil {
		return fmt.Errorf("storage: reopen journal after compaction: %w", err)
	}
	j.f = f
	return nil
}

// Close closes the underlying file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
