package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vjranagit/histextract/pkg/source"
	"github.com/vjranagit/histextract/pkg/types"
)

// Key prefixes of the result store
var (
	prefixStep    = []byte("step/")
	prefixNodeSet = []byte("set/")
	prefixHistory = []byte("hist/")
)

// Config holds storage configuration
type Config struct {
	Path             string
	CompressionLevel int
	CacheCapacity    int
	CacheTTL         time.Duration
}

// DefaultConfig returns default storage configuration
func DefaultConfig() *Config {
	return &Config{
		Path:             "./results",
		CompressionLevel: 3,
		CacheCapacity:    64,
		CacheTTL:         10 * time.Minute,
	}
}

// Store is a BadgerDB-backed result store. It implements source.Source.
type Store struct {
	cfg        *Config
	db         *badger.DB
	index      *Index
	cache      *RegionCache
	compressor *Compressor
	mu         sync.RWMutex
}

var _ source.Source = (*Store)(nil)

// NewStore opens or creates a result store and loads its index
func NewStore(cfg *Config) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := badger.DefaultOptions(filepath.Join(cfg.Path, "badger"))
	opts.Logger = nil // Disable BadgerDB logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB: %w", err)
	}

	compressor, err := NewCompressor(cfg.CompressionLevel)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create compressor: %w", err)
	}

	s := &Store{
		cfg:        cfg,
		db:         db,
		index:      NewIndex(),
		cache:      NewRegionCache(cfg.CacheCapacity, cfg.CacheTTL),
		compressor: compressor,
	}

	if err := s.loadIndex(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load index: %w", err)
	}

	return s, nil
}

// OpenSource opens a result for reading: a directory is a result store,
// a file is a history export
func OpenSource(path string, cfg *Config) (source.Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open result: %w", err)
	}

	if !info.IsDir() {
		return LoadExport(path)
	}
	if err := CheckStoreDir(path); err != nil {
		return nil, fmt.Errorf("failed to open result: %w", err)
	}

	storeCfg := *DefaultConfig()
	if cfg != nil {
		storeCfg = *cfg
	}
	storeCfg.Path = path
	return NewStore(&storeCfg)
}

// CheckStoreDir verifies that path holds an existing result store, so
// that opening it does not create one
func CheckStoreDir(path string) error {
	dbPath := filepath.Join(path, "badger")
	info, err := os.Stat(dbPath)
	if err != nil {
		return fmt.Errorf("%s is not a result store: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a result store: %s is not a directory", path, dbPath)
	}
	return nil
}

// loadIndex rebuilds the in-memory index from the stored keys
func (s *Store) loadIndex() error {
	return s.db.View(func(txn *badger.Txn) error {
		// steps are keyed by sequence number, so iteration restores order
		if err := iteratePrefix(txn, prefixStep, true, func(item *badger.Item) error {
			name, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			s.index.AddStep(string(name))
			return nil
		}); err != nil {
			return err
		}

		if err := iteratePrefix(txn, prefixNodeSet, true, func(item *badger.Item) error {
			instance, name, err := parseNodeSetKey(item.Key())
			if err != nil {
				return err
			}
			var labels []int
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &labels)
			}); err != nil {
				return fmt.Errorf("failed to decode node set %s: %w", name, err)
			}
			s.index.SetNodeSet(instance, name, labels)
			return nil
		}); err != nil {
			return err
		}

		return iteratePrefix(txn, prefixHistory, false, func(item *badger.Item) error {
			step, node, variable, err := parseHistoryKey(item.Key())
			if err != nil {
				return err
			}
			s.index.AddVariable(step, node, variable)
			return nil
		})
	})
}

// Import loads steps, node sets and history outputs into the store.
// Re-imported history outputs replace the stored ones.
func (s *Store) Import(ctx context.Context, req *types.ImportRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.importLocked(ctx, req); err != nil {
		// drop index entries of the aborted batch
		s.index.Clear()
		if rerr := s.loadIndex(); rerr != nil {
			return fmt.Errorf("%v (index reload failed: %w)", err, rerr)
		}
		return err
	}

	s.cache.Clear()
	return nil
}

func (s *Store) importLocked(ctx context.Context, req *types.ImportRequest) error {
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for _, step := range req.Steps {
		if err := s.putStepLocked(wb, step); err != nil {
			return err
		}
	}

	for _, ns := range req.NodeSets {
		if err := ctx.Err(); err != nil {
			return err
		}
		labels, err := json.Marshal(ns.Nodes)
		if err != nil {
			return fmt.Errorf("failed to marshal node set: %w", err)
		}
		if err := wb.Set(nodeSetKey(ns.Instance, ns.Name), labels); err != nil {
			return fmt.Errorf("failed to write node set %s: %w", ns.Name, err)
		}
		s.index.SetNodeSet(ns.Instance, ns.Name, ns.Nodes)
	}

	for _, h := range req.History {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.putStepLocked(wb, h.Step); err != nil {
			return err
		}

		node := source.Node{Instance: h.Instance, Label: h.Node}
		payload, err := s.encodeHistory(h.Data)
		if err != nil {
			return fmt.Errorf("failed to encode %s at %s: %w", h.Variable, node, err)
		}
		if err := wb.Set(historyKey(h.Step, node, h.Variable), payload); err != nil {
			return fmt.Errorf("failed to write %s at %s: %w", h.Variable, node, err)
		}
		s.index.AddVariable(h.Step, node, h.Variable)
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("failed to flush import: %w", err)
	}
	return nil
}

// putStepLocked registers a step, writing it only the first time it is seen
func (s *Store) putStepLocked(wb *badger.WriteBatch, step string) error {
	seq, isNew := s.index.AddStep(step)
	if !isNew {
		return nil
	}
	if err := wb.Set(stepKey(seq), []byte(step)); err != nil {
		return fmt.Errorf("failed to write step %s: %w", step, err)
	}
	return nil
}

type historyPayload struct {
	Count            int
	CompressedTimes  []byte
	CompressedValues []byte
}

func (s *Store) encodeHistory(data types.Series) ([]byte, error) {
	times, values, err := s.compressor.CompressSeries(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&historyPayload{
		Count:            len(data),
		CompressedTimes:  times,
		CompressedValues: values,
	})
}

func (s *Store) decodeHistory(val []byte) (types.Series, error) {
	var payload historyPayload
	if err := json.Unmarshal(val, &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return s.compressor.DecompressSeries(payload.CompressedTimes, payload.CompressedValues, payload.Count)
}

// StepNames implements source.Source
func (s *Store) StepNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Steps()
}

// InstanceNames implements source.Source
func (s *Store) InstanceNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Instances()
}

// NodeSetNames implements source.Source
func (s *Store) NodeSetNames(instance string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names, ok := s.index.NodeSets(instance)
	if !ok {
		return nil, fmt.Errorf("instance %q: %w", instance, source.ErrNotFound)
	}
	return names, nil
}

// NodeSet implements source.Source
func (s *Store) NodeSet(instance, name string) (source.NodeSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	labels, ok := s.index.NodeSet(instance, name)
	if !ok {
		return source.NodeSet{}, fmt.Errorf("node set %q in instance %q: %w", name, instance, source.ErrNotFound)
	}

	ns := source.NodeSet{Instance: instance, Name: name, Nodes: make([]source.Node, len(labels))}
	for i, label := range labels {
		ns.Nodes[i] = source.Node{Instance: instance, Label: label}
	}
	return ns, nil
}

// HistoryRegion implements source.Source
func (s *Store) HistoryRegion(step string, node source.Node) (source.Region, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.index.HasStep(step) {
		return nil, fmt.Errorf("step %q: %w", step, source.ErrNotFound)
	}
	meta, ok := s.index.GetRegion(step, node)
	if !ok {
		return nil, fmt.Errorf("history region for node %s in step %q: %w", node, step, source.ErrNotFound)
	}

	if region, ok := s.cache.Get(meta.ID); ok {
		return region, nil
	}

	region := make(source.Region, len(meta.Variables))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, variable := range meta.Variables {
			item, err := txn.Get(historyKey(step, node, variable))
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", variable, err)
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			data, err := s.decodeHistory(val)
			if err != nil {
				return fmt.Errorf("failed to decode %s: %w", variable, err)
			}
			region[variable] = data
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cache.Put(meta.ID, region)
	return region, nil
}

// Export writes the whole store to an export writer, steps and node sets
// first
func (s *Store) Export(ctx context.Context, w *ExportWriter) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, step := range s.index.Steps() {
		if err := w.Append(&types.ExportEntry{Kind: types.KindStep, Step: step}); err != nil {
			return err
		}
	}

	for _, inst := range s.index.Instances() {
		names, _ := s.index.NodeSets(inst)
		for _, name := range names {
			labels, _ := s.index.NodeSet(inst, name)
			entry := &types.ExportEntry{Kind: types.KindNodeSet, Instance: inst, Name: name, Nodes: labels}
			if err := w.Append(entry); err != nil {
				return err
			}
		}
	}

	return s.db.View(func(txn *badger.Txn) error {
		return iteratePrefix(txn, prefixHistory, true, func(item *badger.Item) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			step, node, variable, err := parseHistoryKey(item.Key())
			if err != nil {
				return err
			}
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			data, err := s.decodeHistory(val)
			if err != nil {
				return fmt.Errorf("failed to decode %s at %s: %w", variable, node, err)
			}
			return w.Append(&types.ExportEntry{
				Kind:     types.KindHistory,
				Step:     step,
				Instance: node.Instance,
				Node:     node.Label,
				Variable: variable,
				Data:     data,
			})
		})
	})
}

// RegionCount returns the number of stored history regions
func (s *Store) RegionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.RegionCount()
}

// CacheStats returns region cache statistics
func (s *Store) CacheStats() CacheStats {
	return s.cache.Stats()
}

// Close implements source.Source
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.compressor != nil {
		s.compressor.Close()
		s.compressor = nil
	}
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

func iteratePrefix(txn *badger.Txn, prefix []byte, withValues bool, fn func(*badger.Item) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = withValues
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.Valid(); it.Next() {
		if err := fn(it.Item()); err != nil {
			return err
		}
	}
	return nil
}

// stepKey generates the key of a step: step/<seq>
func stepKey(seq uint32) []byte {
	buf := new(bytes.Buffer)
	buf.Write(prefixStep)
	binary.Write(buf, binary.BigEndian, seq)
	return buf.Bytes()
}

// nodeSetKey generates the key of a node set: set/<instance>\x00<name>
func nodeSetKey(instance, name string) []byte {
	buf := new(bytes.Buffer)
	buf.Write(prefixNodeSet)
	buf.WriteString(instance)
	buf.WriteByte(0)
	buf.WriteString(name)
	return buf.Bytes()
}

// historyKey generates the key of a history output:
// hist/<step>\x00<instance>\x00<label>\x00<variable>
func historyKey(step string, node source.Node, variable string) []byte {
	buf := new(bytes.Buffer)
	buf.Write(prefixHistory)
	buf.WriteString(step)
	buf.WriteByte(0)
	buf.WriteString(node.Instance)
	buf.WriteByte(0)
	binary.Write(buf, binary.BigEndian, int64(node.Label))
	buf.WriteByte(0)
	buf.WriteString(variable)
	return buf.Bytes()
}

var errBadKey = errors.New("malformed key")

func parseNodeSetKey(key []byte) (instance, name string, err error) {
	rest := bytes.TrimPrefix(key, prefixNodeSet)
	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", "", fmt.Errorf("%w: %q", errBadKey, key)
	}
	return string(rest[:i]), string(rest[i+1:]), nil
}

func parseHistoryKey(key []byte) (step string, node source.Node, variable string, err error) {
	rest := bytes.TrimPrefix(key, prefixHistory)

	i := bytes.IndexByte(rest, 0)
	if i < 0 {
		return "", node, "", fmt.Errorf("%w: %q", errBadKey, key)
	}
	step, rest = string(rest[:i]), rest[i+1:]

	i = bytes.IndexByte(rest, 0)
	if i < 0 || len(rest) < i+1+8+1 {
		return "", node, "", fmt.Errorf("%w: %q", errBadKey, key)
	}
	node.Instance, rest = string(rest[:i]), rest[i+1:]
	node.Label = int(int64(binary.BigEndian.Uint64(rest[:8])))

	if rest[8] != 0 {
		return "", node, "", fmt.Errorf("%w: %q", errBadKey, key)
	}
	return step, node, string(rest[9:]), nil
}
