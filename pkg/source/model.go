package source

import (
	"sort"

	"github.com/vjranagit/histextract/pkg/types"
)

// Model is an in-memory Source
type Model struct {
	steps     []string
	stepIndex map[string]bool
	instances map[string]map[string][]int
	history   map[string]map[Node]Region
	closed    bool
}

// NewModel creates an empty model
func NewModel() *Model {
	return &Model{
		stepIndex: make(map[string]bool),
		instances: make(map[string]map[string][]int),
		history:   make(map[string]map[Node]Region),
	}
}

// AddStep registers a step; repeated names keep their first position
func (m *Model) AddStep(name string) {
	if m.stepIndex[name] {
		return
	}
	m.stepIndex[name] = true
	m.steps = append(m.steps, name)
	m.history[name] = make(map[Node]Region)
}

// AddNodeSet defines a node set on an instance, creating the instance if needed
func (m *Model) AddNodeSet(instance, name string, labels ...int) {
	sets, ok := m.instances[instance]
	if !ok {
		sets = make(map[string][]int)
		m.instances[instance] = sets
	}
	sets[name] = append([]int(nil), labels...)
}

// SetHistory records a history output at node for step, registering the
// step if it is new
func (m *Model) SetHistory(step string, node Node, variable string, data types.Series) {
	m.AddStep(step)
	region, ok := m.history[step][node]
	if !ok {
		region = make(Region)
		m.history[step][node] = region
	}
	region[variable] = data
}

// Apply adds an export entry to the model
func (m *Model) Apply(e *types.ExportEntry) error {
	var req types.ImportRequest
	if err := req.Add(e); err != nil {
		return err
	}
	m.Load(&req)
	return nil
}

// Load adds every record of an import request to the model
func (m *Model) Load(req *types.ImportRequest) {
	for _, step := range req.Steps {
		m.AddStep(step)
	}
	for _, ns := range req.NodeSets {
		m.AddNodeSet(ns.Instance, ns.Name, ns.Nodes...)
	}
	for _, h := range req.History {
		m.SetHistory(h.Step, Node{Instance: h.Instance, Label: h.Node}, h.Variable, h.Data)
	}
}

// StepNames implements Source.StepNames
func (m *Model) StepNames() []string {
	return append([]string(nil), m.steps...)
}

// InstanceNames implements Source.InstanceNames
func (m *Model) InstanceNames() []string {
	names := make([]string, 0, len(m.instances))
	for name := range m.instances {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NodeSetNames implements Source.NodeSetNames
func (m *Model) NodeSetNames(instance string) ([]string, error) {
	sets, ok := m.instances[instance]
	if !ok {
		return nil, notFound("instance %q", instance)
	}
	names := make([]string, 0, len(sets))
	for name := range sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// NodeSet implements Source.NodeSet
func (m *Model) NodeSet(instance, name string) (NodeSet, error) {
	sets, ok := m.instances[instance]
	if !ok {
		return NodeSet{}, notFound("instance %q", instance)
	}
	labels, ok := sets[name]
	if !ok {
		return NodeSet{}, notFound("node set %q in instance %q", name, instance)
	}
	ns := NodeSet{Instance: instance, Name: name, Nodes: make([]Node, len(labels))}
	for i, label := range labels {
		ns.Nodes[i] = Node{Instance: instance, Label: label}
	}
	return ns, nil
}

// HistoryRegion implements Source.HistoryRegion
func (m *Model) HistoryRegion(step string, node Node) (Region, error) {
	regions, ok := m.history[step]
	if !ok {
		return nil, notFound("step %q", step)
	}
	region, ok := regions[node]
	if !ok {
		return nil, notFound("history region for node %s in step %q", node, step)
	}
	return region, nil
}

// Close implements Source.Close
func (m *Model) Close() error {
	m.closed = true
	return nil
}

// Closed reports whether Close has been called
func (m *Model) Closed() bool {
	return m.closed
}
