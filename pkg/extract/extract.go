package extract

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/vjranagit/histextract/pkg/source"
	"github.com/vjranagit/histextract/pkg/types"
)

// Extractor reads reference-point history outputs from a result
type Extractor struct {
	src      source.Source
	instance string
	log      *logrus.Entry
}

// New creates an extractor looking up node sets on the given instance
func New(src source.Source, instance string, log *logrus.Entry) *Extractor {
	return &Extractor{
		src:      src,
		instance: instance,
		log:      log,
	}
}

// DiscoverNodeSets returns the names of all node sets over all instances
func (e *Extractor) DiscoverNodeSets() (map[string]bool, error) {
	found := make(map[string]bool)
	for _, inst := range e.src.InstanceNames() {
		names, err := e.src.NodeSetNames(inst)
		if err != nil {
			return nil, fmt.Errorf("failed to list node sets of %s: %w", inst, err)
		}
		for _, name := range names {
			found[name] = true
			e.log.WithField("instance", inst).Infof("Found node set: %s", name)
		}
	}
	return found, nil
}

// Extract reads the role's history variables for one step at the first
// node of setName. Missing data is logged and yields a partial or empty
// result; only structural source failures are returned as errors.
func (e *Extractor) Extract(step string, role types.Role, setName string) (map[types.Code]types.Series, error) {
	log := e.log.WithFields(logrus.Fields{
		"step": step,
		"role": role.String(),
		"set":  setName,
	})

	region, err := e.region(step, setName)
	if err != nil {
		if errors.Is(err, source.ErrNotFound) {
			log.WithError(err).Warnf("Node set '%s' not found in step %s, skipping %s", setName, step, role)
			return map[types.Code]types.Series{}, nil
		}
		return nil, fmt.Errorf("failed to read %s history for step %s: %w", role, step, err)
	}

	out := make(map[types.Code]types.Series)
	for _, code := range role.Codes() {
		data, ok := region[code.String()]
		if !ok {
			log.Warnf("%s not available for %s in step %s", code, role, step)
			continue
		}
		out[code] = data
	}

	kind := "force/moment"
	if !role.IsLoad() {
		kind = "displacement"
	}
	log.Infof("Extracted %s data from %s (%s) for step %s", kind, role, setName, step)
	return out, nil
}

func (e *Extractor) region(step, setName string) (source.Region, error) {
	ns, err := e.src.NodeSet(e.instance, setName)
	if err != nil {
		return nil, err
	}
	if len(ns.Nodes) == 0 {
		return nil, fmt.Errorf("node set %q has no nodes: %w", setName, source.ErrNotFound)
	}
	return e.src.HistoryRegion(step, ns.Nodes[0])
}
