package storage

import (
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/vjranagit/histextract/pkg/source"
)

// Index is the in-memory catalogue of a result store
type Index struct {
	steps     []string
	stepSeq   map[string]uint32
	instances map[string]map[string][]int
	// Maps region fingerprint to region metadata
	regions map[uint64]*regionMetadata
}

// regionMetadata describes the history outputs stored for one point and step
type regionMetadata struct {
	ID        uint64
	Step      string
	Node      source.Node
	Variables []string
}

// NewIndex creates a new index
func NewIndex() *Index {
	return &Index{
		stepSeq:   make(map[string]uint32),
		instances: make(map[string]map[string][]int),
		regions:   make(map[uint64]*regionMetadata),
	}
}

// AddStep registers a step and returns its sequence number and whether it
// was new
func (idx *Index) AddStep(name string) (uint32, bool) {
	if seq, ok := idx.stepSeq[name]; ok {
		return seq, false
	}
	seq := uint32(len(idx.steps))
	idx.stepSeq[name] = seq
	idx.steps = append(idx.steps, name)
	return seq, true
}

// Steps returns step names in sequence order
func (idx *Index) Steps() []string {
	return append([]string(nil), idx.steps...)
}

// HasStep reports whether the step is known
func (idx *Index) HasStep(name string) bool {
	_, ok := idx.stepSeq[name]
	return ok
}

// SetNodeSet records the node labels of a node set
func (idx *Index) SetNodeSet(instance, name string, labels []int) {
	sets, ok := idx.instances[instance]
	if !ok {
		sets = make(map[string][]int)
		idx.instances[instance] = sets
	}
	sets[name] = append([]int(nil), labels...)
}

// Instances returns the instance names in sorted order
func (idx *Index) Instances() []string {
	names := make([]string, 0, len(idx.instances))
	for name := range idx.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NodeSets returns the node set names of an instance in sorted order
func (idx *Index) NodeSets(instance string) ([]string, bool) {
	sets, ok := idx.instances[instance]
	if !ok {
		return nil, false
	}
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, true
}

// NodeSet returns the labels of a node set
func (idx *Index) NodeSet(instance, name string) ([]int, bool) {
	labels, ok := idx.instances[instance][name]
	return labels, ok
}

// AddVariable registers a history output and returns the region fingerprint
func (idx *Index) AddVariable(step string, node source.Node, variable string) uint64 {
	fingerprint := regionFingerprint(step, node)

	meta, exists := idx.regions[fingerprint]
	if !exists {
		meta = &regionMetadata{
			ID:   fingerprint,
			Step: step,
			Node: node,
		}
		idx.regions[fingerprint] = meta
	}

	i := sort.SearchStrings(meta.Variables, variable)
	if i == len(meta.Variables) || meta.Variables[i] != variable {
		meta.Variables = append(meta.Variables, "")
		copy(meta.Variables[i+1:], meta.Variables[i:])
		meta.Variables[i] = variable
	}

	return fingerprint
}

// GetRegion retrieves region metadata
func (idx *Index) GetRegion(step string, node source.Node) (*regionMetadata, bool) {
	meta, ok := idx.regions[regionFingerprint(step, node)]
	return meta, ok
}

// RegionCount returns the number of indexed regions
func (idx *Index) RegionCount() int {
	return len(idx.regions)
}

// Clear clears the index
func (idx *Index) Clear() {
	idx.steps = nil
	idx.stepSeq = make(map[string]uint32)
	idx.instances = make(map[string]map[string][]int)
	idx.regions = make(map[uint64]*regionMetadata)
}

// regionFingerprint hashes step and node into a region id
func regionFingerprint(step string, node source.Node) uint64 {
	d := xxhash.New()
	d.WriteString(step)
	d.Write([]byte{0})
	d.WriteString(node.Instance)
	d.Write([]byte{0})
	var label [8]byte
	for i := 0; i < 8; i++ {
		label[i] = byte(uint64(node.Label) >> (8 * i))
	}
	d.Write(label[:])
	return d.Sum64()
}
