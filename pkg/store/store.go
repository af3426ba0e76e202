package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"capcache/pkg/caps"
	"capcache/pkg/metrics"
)

// ErrNotFound is returned by Lookup when a key is absent from all tiers.
var ErrNotFound = errors.New("capability set not found")

// maxConcurrentWritebacks bounds the number of dataset files being persisted
// at once.
const maxConcurrentWritebacks = 4

// Tiered resolves (hash label, scoped node) keys against three layers: a
// memory overlay, a read-only system dataset directory and a writable user
// dataset directory. Commits update the overlay synchronously and persist to
// the user dataset in the background.
//
// Entries present in the system dataset are expected to be pruned from the
// user dataset by whoever curates the datasets; the store does not enforce
// that itself.
type Tiered struct {
	mu      sync.RWMutex
	overlay map[entryKey]*caps.Set

	systemDir string // read-only, may be empty
	userDir   string // writable, may be empty

	codec   Codec
	metrics *metrics.Metrics
	logger  *zap.Logger

	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

type entryKey struct {
	algo string
	node string
}

// New creates a tiered store. Either directory may be empty to disable that
// tier.
func New(systemDir, userDir string, codec Codec, m *metrics.Metrics, logger *zap.Logger) *Tiered {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tiered{
		overlay:   make(map[entryKey]*caps.Set),
		systemDir: systemDir,
		userDir:   userDir,
		codec:     codec,
		metrics:   m,
		logger:    logger,
		sem:       semaphore.NewWeighted(maxConcurrentWritebacks),
	}
}

// Lookup returns the capability set for the given hash label and scoped
// node, trying the memory overlay, then the system dataset, then the user
// dataset. Absence of a dataset file is a miss; any other read or parse
// failure is a hard error.
func (s *Tiered) Lookup(algo, node string) (*caps.Set, error) {
	s.mu.RLock()
	set, ok := s.overlay[entryKey{algo: algo, node: node}]
	s.mu.RUnlock()
	if ok {
		s.logger.Debug("memory overlay hit", zap.String("algo", algo), zap.String("node", node))
		s.metrics.ObserveLookup("overlay")
		return set.Clone(), nil
	}

	for _, tier := range []struct {
		name string
		dir  string
	}{
		{name: "system", dir: s.systemDir},
		{name: "user", dir: s.userDir},
	} {
		if tier.dir == "" {
			continue
		}
		set, found, err := s.readTier(tier.dir, algo, node)
		if err != nil {
			return nil, err
		}
		if found {
			s.logger.Debug("dataset hit",
				zap.String("tier", tier.name),
				zap.String("algo", algo),
				zap.String("node", node))
			s.metrics.ObserveLookup(tier.name)
			return set, nil
		}
	}

	return nil, ErrNotFound
}

func (s *Tiered) readTier(dir, algo, node string) (*caps.Set, bool, error) {
	path := filepath.Join(dir, DatasetFileName(algo, node))
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read dataset file %s: %w", path, err)
	}
	set, err := s.codec.Decode(data)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode dataset file %s: %w", path, err)
	}
	return set, true, nil
}

// Commit stores the set in the memory overlay, tagged with the scoped node
// it was resolved for, and schedules persistence to the user dataset. The
// overlay update is visible to subsequent lookups immediately; persistence
// failures are logged and never surfaced to the caller.
func (s *Tiered) Commit(algo, node string, set *caps.Set) {
	entry := set.Clone()
	entry.Node = node

	s.mu.Lock()
	s.overlay[entryKey{algo: algo, node: node}] = entry
	s.mu.Unlock()

	if s.userDir == "" {
		return
	}

	s.wg.Add(1)
	go s.writeback(algo, node, entry)
}

// writeback persists one entry to the user dataset via an atomic replace: a
// temporary file in the target directory is renamed over the final name, so
// a crash mid-write never leaves a partial file at the final path.
func (s *Tiered) writeback(algo, node string, entry *caps.Set) {
	defer s.wg.Done()

	if err := s.sem.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	if err := s.persist(algo, node, entry); err != nil {
		s.metrics.ObserveWritebackFailure()
		s.logger.Warn("dataset writeback failed",
			zap.String("algo", algo),
			zap.String("node", node),
			zap.Error(err))
	}
}

func (s *Tiered) persist(algo, node string, entry *caps.Set) error {
	tmp, err := os.CreateTemp(s.userDir, ".caps-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary dataset file: %w", err)
	}

	data, err := s.codec.Encode(entry)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to encode capability set: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write dataset file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close dataset file: %w", err)
	}

	final := filepath.Join(s.userDir, DatasetFileName(algo, node))
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace dataset file: %w", err)
	}
	return nil
}

// Close waits for in-flight writebacks to finish.
func (s *Tiered) Close() {
	s.wg.Wait()
}

// DatasetFileName returns the deterministic file name for a cache key. The
// hash label keeps its wire spelling ("sha-1") and the node is
// percent-encoded with no characters treated as safe.
func DatasetFileName(algo, node string) string {
	return fmt.Sprintf("%s_%s.xml", algo, percentEncode(node))
}

func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}
