// Package source defines the read contract of a finite-element result and
// an in-memory implementation of it.
package source

import (
	"errors"
	"fmt"

	"github.com/vjranagit/histextract/pkg/types"
)

// ErrNotFound marks a step, instance, node set or history region that the
// result does not contain
var ErrNotFound = errors.New("not found")

// Node addresses a single mesh node of a part instance
type Node struct {
	Instance string
	Label    int
}

func (n Node) String() string {
	return fmt.Sprintf("%s.%d", n.Instance, n.Label)
}

// NodeSet is a named collection of nodes
type NodeSet struct {
	Instance string
	Name     string
	Nodes    []Node
}

// Region holds the history outputs recorded at one point during one step,
// keyed by variable name
type Region map[string]types.Series

// Source is the read surface of a simulation result
type Source interface {
	// StepNames returns the analysis steps in their recorded order
	StepNames() []string

	// InstanceNames returns the part instances of the root assembly
	InstanceNames() []string

	// NodeSetNames returns the node sets defined on an instance
	NodeSetNames(instance string) ([]string, error)

	// NodeSet looks up a node set by instance and name
	NodeSet(instance, name string) (NodeSet, error)

	// HistoryRegion returns the history outputs recorded at node during step
	HistoryRegion(step string, node Node) (Region, error)

	// Close releases the result
	Close() error
}

// notFound wraps ErrNotFound with a description of what was missing
func notFound(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
