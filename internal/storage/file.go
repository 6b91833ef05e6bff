package storage

import (
	"bufio"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	logx "pewcron/pkg/logx"
)

const defaultCompactEvery = 1000

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of tasks and launches)
//   - <prefix>.journal.jsonl (append-only journal of changes since the snapshot)
//
// The journal is periodically compacted into the snapshot.
type fileStore struct {
	*memStore
	log logx.Logger

	snapshotPath string
	journal      *os.File
	writes       int
	compactEvery int
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	mem := newMemStore(cfg)
	if err := loadSnapshot(snapPath, mem.st); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if err := replayJournal(journalPath, mem.st, log); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	fs := &fileStore{
		memStore:     mem,
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		compactEvery: defaultCompactEvery,
	}
	mem.persist = fs.appendLocked
	return fs, nil
}

// appendLocked writes changes to the journal. Caller holds mu.
func (s *fileStore) appendLocked(changes []change) error {
	if s.journal == nil {
		return ErrClosed
	}
	enc := json.NewEncoder(s.journal)
	for _, c := range changes {
		if err := enc.Encode(c); err != nil {
			return err
		}
	}
	s.writes += len(changes)
	if s.writes >= s.compactEvery {
		s.writes = 0
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.log.Debug("journal compact failed", logx.Err(err))
		}
	}
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.st); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Truncate journal.
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.compactLocked()
	if cerr := s.journal.Close(); err == nil {
		err = cerr
	}
	s.journal = nil
	return err
}

func loadSnapshot(path string, out *state) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	snap := newState()
	if err := json.NewDecoder(f).Decode(snap); err != nil {
		return err
	}
	if snap.Tasks != nil {
		out.Tasks = snap.Tasks
	}
	if snap.Launches != nil {
		out.Launches = snap.Launches
	}
	out.NextID = snap.NextID
	return nil
}

func replayJournal(path string, out *state, log logx.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	skipped := 0
	for sc.Scan() {
		var c change
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			skipped++
			continue
		}
		out.apply(c)
	}
	if skipped > 0 {
		log.Warn("journal lines skipped", logx.String("path", path), logx.Int("count", skipped))
	}
	return sc.Err()
}
